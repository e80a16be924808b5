package idp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newProbeServer(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health/ready", r.URL.Path)
		if calls.Add(1) <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestProber_ReadyAfterTransientFailures(t *testing.T) {
	srv, calls := newProbeServer(t, 3)
	p := NewProber(Config{BaseURL: srv.URL, Realm: "demo", HealthPath: "/health/ready"}, srv.Client(), zaptest.NewLogger(t))

	ok := p.WaitUntilReady(context.Background(), 5, 5*time.Millisecond)

	assert.True(t, ok)
	assert.Equal(t, int32(4), calls.Load())
}

func TestProber_GivesUpAfterMaxAttempts(t *testing.T) {
	for _, maxAttempts := range []int{1, 3, 7} {
		srv, calls := newProbeServer(t, 1000)
		p := NewProber(Config{BaseURL: srv.URL, HealthPath: "health/ready"}, srv.Client(), zaptest.NewLogger(t))

		ok := p.WaitUntilReady(context.Background(), maxAttempts, time.Millisecond)

		assert.False(t, ok)
		assert.Equal(t, int32(maxAttempts), calls.Load(), "max attempts %d", maxAttempts)
	}
}

func TestProber_ZeroAttemptsStillProbesOnce(t *testing.T) {
	srv, calls := newProbeServer(t, 0)
	p := NewProber(Config{BaseURL: srv.URL, HealthPath: "/health/ready"}, srv.Client(), zaptest.NewLogger(t))

	assert.True(t, p.WaitUntilReady(context.Background(), 0, time.Millisecond))
	assert.Equal(t, int32(1), calls.Load())
}

func TestProber_TransportErrorCountsAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewProber(Config{BaseURL: url, HealthPath: "/health/ready", Timeout: 200 * time.Millisecond}, nil, zaptest.NewLogger(t))
	assert.False(t, p.WaitUntilReady(context.Background(), 2, time.Millisecond))
}

func TestProber_CancelledContextReturnsFalse(t *testing.T) {
	srv, calls := newProbeServer(t, 1000)
	p := NewProber(Config{BaseURL: srv.URL, HealthPath: "/health/ready"}, srv.Client(), zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	ok := p.WaitUntilReady(ctx, 1000, 10*time.Millisecond)

	assert.False(t, ok)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Less(t, calls.Load(), int32(1000))
}

func TestProber_FallsBackToRealmURL(t *testing.T) {
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProber(Config{BaseURL: srv.URL + "/", Realm: "demo"}, srv.Client(), zaptest.NewLogger(t))
	require.NoError(t, p.Check(context.Background()))
	assert.Equal(t, "/realms/demo", path.Load())
	assert.Equal(t, srv.URL+"/realms/demo", p.URL())
}
