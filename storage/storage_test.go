package storage_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"plugin-store/storage"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

// flakyStore fails the first failures calls and then records the blob.
type flakyStore struct {
	failures int32
	calls    atomic.Int32

	mu     sync.Mutex
	stored map[string][]byte
}

func (s *flakyStore) Store(_ context.Context, name string, content []byte, _ string) error {
	if s.calls.Add(1) <= s.failures {
		return errors.New("bucket unavailable")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stored == nil {
		s.stored = map[string][]byte{}
	}
	s.stored[name] = content

	return nil
}

func (s *flakyStore) blob(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.stored[name]

	return content, ok
}

func TestPaths(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "versions/abc.zip", storage.VersionPath("abc"))
	assert.Equal(t,
		"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		storage.Checksum([]byte("test")),
	)

	img := &storage.Image{Content: []byte("test"), Extension: ".webp"}
	assert.Equal(t,
		"artifact_images/My%20Plugin-9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08.webp",
		storage.ImagePath("My Plugin", img),
	)
}

func TestUploaderRetries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		t.Parallel()

		store := &flakyStore{failures: 2}
		uploader := storage.NewUploader(store, storage.RetryPolicy{Attempts: 5, InitialInterval: time.Millisecond})

		require.NoError(t, uploader.Upload(ctx, "versions/a.zip", []byte("zip"), storage.ZipContentType))
		assert.Equal(t, int32(3), store.calls.Load())

		content, ok := store.blob("versions/a.zip")
		require.True(t, ok)
		assert.Equal(t, []byte("zip"), content)
	})

	t.Run("gives up after the configured attempts", func(t *testing.T) {
		t.Parallel()

		store := &flakyStore{failures: 100}
		uploader := storage.NewUploader(store, storage.RetryPolicy{Attempts: 3, InitialInterval: time.Millisecond})

		err := uploader.Upload(ctx, "versions/a.zip", []byte("zip"), storage.ZipContentType)
		assert.Error(t, err)
		assert.Equal(t, int32(3), store.calls.Load())
		_, ok := store.blob("versions/a.zip")
		assert.False(t, ok)
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		t.Parallel()

		store := &flakyStore{failures: 100}
		uploader := storage.NewUploader(store, storage.RetryPolicy{Attempts: 10, InitialInterval: time.Hour})

		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		assert.Error(t, uploader.Upload(cctx, "versions/a.zip", []byte("zip"), ""))
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestImageFetcher(t *testing.T) {
	t.Parallel()

	var flakyHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/typed.webp", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/webp")
		_, _ = w.Write([]byte("RIFF....WEBP"))
	})
	mux.HandleFunc("/sniffed", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pngHeader)
	})
	mux.HandleFunc("/params.jpg", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff})
	})
	mux.HandleFunc("/gif", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		_, _ = w.Write([]byte("GIF89a"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, _ *http.Request) {
		if flakyHits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := storage.NewImageFetcher(2, 5*time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		path      string
		wantType  string
		wantExt   string
		wantError bool
	}{
		{name: "content type header", path: "/typed.webp", wantType: "image/webp", wantExt: ".webp"},
		{name: "sniffed from content", path: "/sniffed", wantType: "image/png", wantExt: ".png"},
		{name: "header parameters ignored", path: "/params.jpg", wantType: "image/jpeg", wantExt: ".jpg"},
		{name: "unsupported type", path: "/gif", wantError: true},
		{name: "not found", path: "/missing", wantError: true},
		{name: "retried after server error", path: "/flaky", wantType: "image/png", wantExt: ".png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := fetcher.Fetch(ctx, srv.URL+tt.path)
			if tt.wantError {
				assert.Error(t, err)
				assert.Nil(t, img)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantType, img.MediaType)
			assert.Equal(t, tt.wantExt, img.Extension)
			assert.NotEmpty(t, img.Content)
		})
	}

	t.Run("unsupported error is typed", func(t *testing.T) {
		_, err := fetcher.Fetch(ctx, srv.URL+"/gif")
		assert.ErrorIs(t, err, storage.ErrUnsupportedImageType)
	})

	t.Run("oversized body rejected", func(t *testing.T) {
		big := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(bytes.Repeat([]byte{0}, storage.MaxImageSize+1))
		}))
		defer big.Close()

		_, err := fetcher.Fetch(ctx, big.URL)
		assert.Error(t, err)
	})
}
