package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeReady(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/health/ready", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	stdout, _, err := runCommand(t, "probe", "--provider-url", srv.URL, "--realm", "demo", "-o", "json")
	require.NoError(t, err)

	var res probeResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.True(t, res.Ready)
	assert.Equal(t, srv.URL+"/health/ready", res.URL)
	assert.Equal(t, int32(1), hits.Load())
}

func TestProbeNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	stdout, _, err := runCommand(t, "probe", "--provider-url", srv.URL, "--realm", "demo")
	require.Error(t, err)
	assert.Equal(t, ExitCodeUnhealthy, exitCodeFor(err))
	assert.Contains(t, stdout, "HTTP 503")
}

func TestProbeRequiresProvider(t *testing.T) {
	_, _, err := runCommand(t, "probe", "--realm", "demo")
	require.Error(t, err)
	assert.Equal(t, ExitCodeConfigError, exitCodeFor(err))
	assert.Contains(t, err.Error(), "provider.base-url")
}
