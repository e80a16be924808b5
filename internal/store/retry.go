package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/loginfront/internal/credential"
)

// Defaults for RetryingStore.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second
)

// WriteRecorder receives one call per write attempt.
type WriteRecorder interface {
	RecordStoreWrite(backend, result string)
}

// RetryingStore retries a backend a bounded number of times with a fixed
// delay, then gives up and returns the last error.
type RetryingStore struct {
	next        SecretStore
	maxAttempts int
	delay       time.Duration
	recorder    WriteRecorder
	logger      *zap.Logger
}

// NewRetryingStore wraps next. Non-positive values fall back to defaults.
func NewRetryingStore(next SecretStore, maxAttempts int, delay time.Duration, recorder WriteRecorder, logger *zap.Logger) *RetryingStore {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if delay < 0 {
		delay = DefaultRetryDelay
	}
	if logger == nil {
		logger = zap.L()
	}
	return &RetryingStore{
		next:        next,
		maxAttempts: maxAttempts,
		delay:       delay,
		recorder:    recorder,
		logger:      logger.Named("store-retry"),
	}
}

// Name implements SecretStore.
func (r *RetryingStore) Name() string {
	return r.next.Name()
}

// Persist implements SecretStore.
func (r *RetryingStore) Persist(ctx context.Context, secret credential.Secret) (*WriteResult, error) {
	attempt := 0
	result, err := backoff.Retry(ctx, func() (*WriteResult, error) {
		attempt++
		res, err := r.next.Persist(ctx, secret)
		if err != nil {
			r.record("failure")
			if credential.KindOf(err) == credential.KindMalformed {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		r.record("success")
		return res, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(r.delay)),
		backoff.WithMaxTries(uint(r.maxAttempts)), // #nosec G115 -- clamped to >= 1 in constructor
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Debug("Secret store write failed, retrying",
				zap.String("backend", r.next.Name()),
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		r.logger.Warn("Giving up on secret store write",
			zap.String("backend", r.next.Name()),
			zap.Int("attempts", attempt),
			zap.String("failure_kind", credential.KindOf(err).String()),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

func (r *RetryingStore) record(result string) {
	if r.recorder != nil {
		r.recorder.RecordStoreWrite(r.next.Name(), result)
	}
}
