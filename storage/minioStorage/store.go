package minioStorage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"plugin-store/config"
	"plugin-store/storage"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

var ErrIncompleteMinioConfig = errors.New("incomplete minio configuration")

var _ storage.BlobStore = (*MinioStore)(nil)

// MinioStore keeps blobs in a MinIO (or other S3-compatible) bucket through
// the minio client.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	timeout time.Duration
}

// New connects to the bucket described by cfg and creates it when missing.
func New(ctx context.Context, cfg config.S3Config) (*MinioStore, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" ||
		strings.TrimSpace(cfg.Bucket) == "" ||
		strings.TrimSpace(cfg.KeyID) == "" ||
		strings.TrimSpace(cfg.AccessKey) == "" {
		return nil, ErrIncompleteMinioConfig
	}

	host, secure, err := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.KeyID, cfg.AccessKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	store := &MinioStore{client: client, bucket: cfg.Bucket, timeout: timeout}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}

	log.Info().
		Str("endpoint", host).
		Str("bucket", cfg.Bucket).
		Msg("minio client initialized")

	return store, nil
}

// splitEndpoint accepts either host[:port] or a URL and returns the host
// part minio expects together with the TLS flag.
func splitEndpoint(endpoint string, useSSL bool) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		return strings.TrimSuffix(endpoint, "/"), useSSL, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid minio endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid minio endpoint %q: missing host", endpoint)
	}

	return u.Host, u.Scheme == "https", nil
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("error checking if bucket exists: %w", err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("error creating bucket: %w", err)
	}
	log.Info().Str("bucket", s.bucket).Msg("bucket created")

	return nil
}

func (s *MinioStore) Store(ctx context.Context, name string, content []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	info, err := s.client.PutObject(
		ctx,
		s.bucket,
		name,
		bytes.NewReader(content),
		int64(len(content)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		log.Error().Err(err).Str("key", name).Msg("upload failure")
		return fmt.Errorf("upload failure: %w", err)
	}

	log.Info().
		Str("key", info.Key).
		Int64("size", info.Size).
		Msg("successfully uploaded blob to minio bucket")

	return nil
}
