package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"plugin-store/config"
	"plugin-store/storage"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// ErrIncompleteS3Config is returned when the S3 configuration is incomplete
var ErrIncompleteS3Config = errors.New("incomplete S3 configuration")

var _ storage.BlobStore = (*S3Store)(nil)

// S3Store keeps blobs in an S3-compatible bucket (Backblaze B2, R2, AWS).
type S3Store struct {
	S3Client *s3.Client
	Timeout  time.Duration
	Bucket   string
}

func New(cfg config.S3Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.AccessKey) == "" ||
		strings.TrimSpace(cfg.KeyID) == "" ||
		strings.TrimSpace(cfg.Endpoint) == "" ||
		strings.TrimSpace(cfg.Region) == "" ||
		strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("%w", ErrIncompleteS3Config)
	}

	s3Client := s3.New(s3.Options{
		UsePathStyle: true,
		BaseEndpoint: aws.String(cfg.Endpoint),
		Region:       cfg.Region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				cfg.KeyID,
				cfg.AccessKey,
				"",
			),
		),
	})

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	return &S3Store{
		S3Client: s3Client,
		Timeout:  timeout,
		Bucket:   cfg.Bucket,
	}, nil
}

func (r *S3Store) Store(ctx context.Context, name string, content []byte, contentType string) error {
	uploader := manager.NewUploader(r.S3Client)

	input := &s3.PutObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(name),
		Body:   bytes.NewReader(content),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	result, err := uploader.Upload(ctx, input)
	if err != nil {
		var mu manager.MultiUploadFailure
		if errors.As(err, &mu) {
			log.Error().
				Str("upload_id", mu.UploadID()).
				Err(mu).
				Msg("multi-upload failure")

			return fmt.Errorf(
				"multi-upload failure (upload_id: %s): %w",
				mu.UploadID(),
				mu,
			)
		}

		log.Error().Err(err).Str("key", name).Msg("upload failure")

		return fmt.Errorf("upload failure: %w", err)
	}

	log.Info().
		Str("location", result.Location).
		Msg("successfully uploaded blob to s3 bucket")

	return nil
}
