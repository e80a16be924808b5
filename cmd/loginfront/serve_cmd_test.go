package main

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/smart-mcp-proxy/loginfront/internal/tlslocal"
)

func TestOpenListenerPlain(t *testing.T) {
	cfg := boltConfig(t)
	cfg.Listen = "127.0.0.1:0"

	ln, err := openListener(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer ln.Close()
	assert.NotEmpty(t, ln.Addr().String())
}

func TestOpenListenerTLS(t *testing.T) {
	cfg := boltConfig(t)
	cfg.Listen = "127.0.0.1:0"
	cfg.TLS.Enabled = true
	cfg.TLS.CertDir = t.TempDir()

	ln, err := openListener(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotNil(t, r.TLS)
		w.WriteHeader(http.StatusNoContent)
	})}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	caPEM, err := os.ReadFile(tlslocal.CAPath(cfg.TLS.CertDir))
	require.NoError(t, err)
	pool := x509.NewCertPool()
	require.True(t, pool.AppendCertsFromPEM(caPEM))

	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}}}
	resp, err := client.Get("https://" + ln.Addr().String() + "/login")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestOpenListenerPortInUse(t *testing.T) {
	cfg := boltConfig(t)
	cfg.Listen = "127.0.0.1:0"
	first, err := openListener(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer first.Close()

	cfg.Listen = first.Addr().String()
	_, err = openListener(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Equal(t, ExitCodePortConflict, exitCodeFor(err))
}
