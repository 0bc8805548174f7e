package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

var ErrUnsupportedImageType = errors.New("unsupported image type")

// MaxImageSize bounds the number of bytes read from an image URL.
const MaxImageSize = 10 << 20

// SupportedImageTypes maps the accepted media types to the extension used in
// the stored path.
var SupportedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/avif": ".avif",
}

type Image struct {
	Content   []byte
	MediaType string
	Extension string
}

type ImageFetcher struct {
	client  *retryablehttp.Client
	maxSize int64
}

func NewImageFetcher(retries int, timeout time.Duration) *ImageFetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = retryLogger{}
	if timeout > 0 {
		client.HTTPClient.Timeout = timeout
	}

	return &ImageFetcher{client: client, maxSize: MaxImageSize}
}

// Fetch downloads the image at rawURL. The media type comes from the
// Content-Type header and is sniffed from the content when the header is
// missing or generic.
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("failed to close image response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(content)) > f.maxSize {
		return nil, fmt.Errorf("image exceeds %d bytes", f.maxSize)
	}

	mediaType := parseMediaType(resp.Header.Get("Content-Type"))
	ext, ok := SupportedImageTypes[mediaType]
	if !ok && isGenericMediaType(mediaType) {
		mediaType = parseMediaType(mimetype.Detect(content).String())
		ext, ok = SupportedImageTypes[mediaType]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedImageType, mediaType)
	}

	return &Image{Content: content, MediaType: mediaType, Extension: ext}, nil
}

func parseMediaType(header string) string {
	if header == "" {
		return ""
	}

	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(header, ";", 2)[0]))
	}

	return mediaType
}

func isGenericMediaType(mediaType string) bool {
	switch mediaType {
	case "", "application/octet-stream", "binary/octet-stream":
		return true
	}

	return false
}

// retryLogger routes retryablehttp's leveled logging into zerolog.
type retryLogger struct{}

func (retryLogger) Error(msg string, keysAndValues ...any) {
	log.Error().Fields(keysAndValues).Str("source", "image-fetcher").Msg(msg)
}

func (retryLogger) Warn(msg string, keysAndValues ...any) {
	log.Warn().Fields(keysAndValues).Str("source", "image-fetcher").Msg(msg)
}

func (retryLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Str("source", "image-fetcher").Msg(msg)
}

func (retryLogger) Debug(msg string, keysAndValues ...any) {
	log.Trace().Fields(keysAndValues).Str("source", "image-fetcher").Msg(msg)
}
