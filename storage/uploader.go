package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

type RetryPolicy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts        int
	InitialInterval time.Duration
}

// Uploader stores blobs with bounded exponential retries.
type Uploader struct {
	store  BlobStore
	policy RetryPolicy
}

func NewUploader(store BlobStore, policy RetryPolicy) *Uploader {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = backoff.DefaultInitialInterval
	}

	return &Uploader{store: store, policy: policy}
}

// Upload writes content under name, retrying failed attempts. The returned
// error is the last store error once all attempts are used up or ctx ends.
func (u *Uploader) Upload(ctx context.Context, name string, content []byte, contentType string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = u.policy.InitialInterval
	b.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		return u.store.Store(ctx, name, content, contentType)
	}

	notify := func(err error, next time.Duration) {
		log.Warn().
			Err(err).
			Str("blob", name).
			Int("attempt", attempt).
			Dur("retry_in", next).
			Msg("blob upload failed, retrying")
	}

	//nolint:gosec // Attempts is validated to be positive
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(u.policy.Attempts-1)), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		log.Error().
			Err(err).
			Str("blob", name).
			Int("attempts", attempt).
			Msg("giving up on blob upload")

		return fmt.Errorf("upload %s after %d attempts: %w", name, attempt, err)
	}

	log.Debug().
		Str("blob", name).
		Int("size", len(content)).
		Int("attempts", attempt).
		Msg("blob uploaded")

	return nil
}
