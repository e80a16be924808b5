package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/smart-mcp-proxy/loginfront/internal/credential"
	"github.com/smart-mcp-proxy/loginfront/internal/observability"
	"github.com/smart-mcp-proxy/loginfront/internal/reqcontext"
	"github.com/smart-mcp-proxy/loginfront/internal/rotation"
)

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingRecorder) RecordLogin(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[result]++
}

func (c *countingRecorder) get(result string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[result]
}

type statusSource struct{ st rotation.Status }

func (s statusSource) Status() rotation.Status { return s.st }

func newTestServer(t *testing.T, cache *credential.Cache, obs *observability.Manager) (*Server, *countingRecorder) {
	t.Helper()
	_, provider := newFakeProvider(t)
	rec := &countingRecorder{}
	auth := newTestAuthenticator(t, provider.URL, cache)
	srv := NewServer(auth, Options{
		PublicURL: "http://localhost:8080",
		Realm:     "demo",
		Recorder:  rec,
	}, obs, zaptest.NewLogger(t))
	return srv, rec
}

func postLogin(srv http.Handler, username, password string) *httptest.ResponseRecorder {
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestPostLogin(t *testing.T) {
	srv, recorder := newTestServer(t, cacheWith("s3cr3t"), nil)

	rec := postLogin(srv, "alice", "wonderland")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body LoginResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice", body.User.Username)
	assert.Equal(t, "Alice Liddell", body.User.FullName)
	assert.NotEmpty(t, body.IDToken)
	assert.Equal(t, 1, recorder.get(LoginSuccess))
}

func TestPostLoginStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		username string
		password string
		code     int
		message  string
	}{
		{"missing fields", "s3cr3t", "", "", http.StatusBadRequest, ErrMissingCredentials.Error()},
		{"bad password", "s3cr3t", "alice", "wrong", http.StatusUnauthorized, ErrInvalidCredentials.Error()},
		{"no secret yet", "", "alice", "wonderland", http.StatusServiceUnavailable, ErrNoClientSecret.Error()},
		{"rejected client secret", "stale", "alice", "wonderland", http.StatusUnauthorized, ErrClientRejected.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := credential.NewCache()
			cache.Swap(credential.Secret{Value: tt.secret})
			srv, _ := newTestServer(t, cache, nil)

			rec := postLogin(srv, tt.username, tt.password)
			assert.Equal(t, tt.code, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body.Error)
			assert.NotContains(t, rec.Body.String(), "stale")
		})
	}
}

func TestLogoutRedirects(t *testing.T) {
	srv, _ := newTestServer(t, cacheWith("s3cr3t"), nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logout", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "http://front.example:5000/logout?id_token_hint=tok123", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", loc.Host)
	assert.Equal(t, "/realms/demo/protocol/openid-connect/logout", loc.Path)
	assert.Equal(t, "tok123", loc.Query().Get("id_token_hint"))
	assert.Equal(t, "http://front.example:5000/login", loc.Query().Get("post_logout_redirect_uri"))
}

func TestIndexRedirectsToLogin(t *testing.T) {
	srv, _ := newTestServer(t, cacheWith("s3cr3t"), nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(t, cacheWith("s3cr3t"), nil)

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.Header.Set(reqcontext.RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(reqcontext.RequestIDHeader))

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.NotEmpty(t, rec.Header().Get(reqcontext.RequestIDHeader))
}

func TestHealthEndpointsMounted(t *testing.T) {
	obs, err := observability.NewManager(zap.NewNop().Sugar(), observability.DefaultConfig("loginfront", "test"))
	require.NoError(t, err)
	lifecycle := observability.NewLifecycleHealthChecker(statusSource{rotation.Status{
		Phase: rotation.PhaseReady, Bootstrapped: true, SecretCached: true,
	}})
	obs.RegisterHealthChecker(lifecycle)
	obs.RegisterReadinessChecker(lifecycle)

	srv, _ := newTestServer(t, cacheWith("s3cr3t"), obs)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	var body observability.Response
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, observability.StatusHealthy, body.Status)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, cacheWith("s3cr3t"), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/login")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
