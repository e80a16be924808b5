package idp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Prober polls the provider's health endpoint.
type Prober struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewProber creates a prober for the configured provider.
func NewProber(cfg Config, client *http.Client, logger *zap.Logger) *Prober {
	cfg = cfg.withDefaults()
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Prober{
		url:     healthURL(cfg),
		client:  client,
		timeout: cfg.Timeout,
		logger:  logger.Named("readiness-prober"),
	}
}

// URL returns the endpoint being probed.
func (p *Prober) URL() string {
	return p.url
}

// Check performs a single probe. Any 2xx answer means ready.
func (p *Prober) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build readiness request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("readiness request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("provider not ready: HTTP %d", resp.StatusCode)
	}
	return nil
}

// WaitUntilReady probes up to maxAttempts times, sleeping delay between
// failed attempts. It returns true on the first successful probe and false
// once the attempts are exhausted or ctx is cancelled. It never issues more
// than maxAttempts requests.
func (p *Prober) WaitUntilReady(ctx context.Context, maxAttempts int, delay time.Duration) bool {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := p.Check(ctx); err != nil {
			p.logger.Debug("Identity provider not ready",
				zap.String("url", p.url),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Error(err))
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		backoff.WithMaxTries(uint(maxAttempts)), // #nosec G115 -- clamped to >= 1 above
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		p.logger.Warn("Identity provider did not become ready",
			zap.String("url", p.url),
			zap.Int("attempts", attempt),
			zap.Error(err))
		return false
	}

	p.logger.Info("Identity provider is ready",
		zap.String("url", p.url),
		zap.Int("attempts", attempt))
	return true
}
