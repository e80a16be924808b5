package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/smart-mcp-proxy/loginfront/internal/credential"
)

// fakeProvider answers the realm token and userinfo endpoints.
type fakeProvider struct {
	mu            sync.Mutex
	clientSecret  string
	users         map[string]string
	omitIDToken   bool
	userInfoCode  int
	lastForm      url.Values
	tokenCalls    atomic.Int32
	userInfoCalls atomic.Int32
}

func newFakeProvider(t *testing.T) (*fakeProvider, *httptest.Server) {
	t.Helper()
	fp := &fakeProvider{
		clientSecret: "s3cr3t",
		users:        map[string]string{"alice": "wonderland"},
		userInfoCode: http.StatusOK,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/demo/protocol/openid-connect/token", fp.token)
	mux.HandleFunc("/realms/demo/protocol/openid-connect/userinfo", fp.userInfo)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fp, srv
}

func (fp *fakeProvider) token(w http.ResponseWriter, r *http.Request) {
	fp.tokenCalls.Add(1)
	_ = r.ParseForm()

	fp.mu.Lock()
	fp.lastForm = r.PostForm
	secret := fp.clientSecret
	users := fp.users
	omitIDToken := fp.omitIDToken
	fp.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.PostForm.Get("client_id") != "flask-app" || r.PostForm.Get("client_secret") != secret {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized_client","error_description":"Invalid client or Invalid client credentials"}`))
		return
	}
	if pw, ok := users[r.PostForm.Get("username")]; !ok || pw != r.PostForm.Get("password") {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid user credentials"}`))
		return
	}

	body := map[string]any{
		"access_token": "user-access-token",
		"token_type":   "Bearer",
		"expires_in":   300,
	}
	if !omitIDToken {
		body["id_token"] = signedIDToken(jwt.MapClaims{
			"preferred_username": r.PostForm.Get("username"),
			"given_name":         "Alice",
			"family_name":        "Liddell",
			"email":              "alice@example.com",
		})
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (fp *fakeProvider) userInfo(w http.ResponseWriter, r *http.Request) {
	fp.userInfoCalls.Add(1)
	fp.mu.Lock()
	code := fp.userInfoCode
	fp.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer user-access-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if code != http.StatusOK {
		w.WriteHeader(code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"preferred_username":"alice","given_name":"Alice","family_name":""}`))
}

func (fp *fakeProvider) set(fn func(fp *fakeProvider)) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fn(fp)
}

func signedIDToken(claims jwt.MapClaims) string {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		panic(err)
	}
	return tok
}

// swappingReader returns values in order, then repeats the last one.
type swappingReader struct {
	mu     sync.Mutex
	values []string
}

func (r *swappingReader) Read() credential.Secret {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.values[0]
	if len(r.values) > 1 {
		r.values = r.values[1:]
	}
	return credential.Secret{Value: v, ObtainedAt: time.Now()}
}

func newTestAuthenticator(t *testing.T, baseURL string, secrets credential.Reader) *Authenticator {
	t.Helper()
	return NewAuthenticator(LoginConfig{
		BaseURL:  baseURL,
		Realm:    "demo",
		ClientID: "flask-app",
		Timeout:  2 * time.Second,
	}, secrets, nil, zaptest.NewLogger(t))
}

func cacheWith(value string) *credential.Cache {
	c := credential.NewCache()
	c.Swap(credential.Secret{Value: value, ObtainedAt: time.Now()})
	return c
}

func TestLoginProfileFromIDToken(t *testing.T) {
	fp, srv := newFakeProvider(t)
	auth := newTestAuthenticator(t, srv.URL, cacheWith("s3cr3t"))

	res, err := auth.Login(context.Background(), "alice", "wonderland")
	require.NoError(t, err)

	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, "Alice Liddell", res.User.FullName)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.NotEmpty(t, res.IDToken)
	assert.Zero(t, fp.userInfoCalls.Load())

	fp.mu.Lock()
	form := fp.lastForm
	fp.mu.Unlock()
	assert.Equal(t, "password", form.Get("grant_type"))
	assert.Equal(t, "s3cr3t", form.Get("client_secret"))
	assert.Equal(t, "openid email profile", form.Get("scope"))
}

func TestLoginFallsBackToUserInfo(t *testing.T) {
	fp, srv := newFakeProvider(t)
	fp.set(func(fp *fakeProvider) { fp.omitIDToken = true })
	auth := newTestAuthenticator(t, srv.URL, cacheWith("s3cr3t"))

	res, err := auth.Login(context.Background(), "alice", "wonderland")
	require.NoError(t, err)

	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, "Alice", res.User.FullName)
	assert.Equal(t, int32(1), fp.userInfoCalls.Load())
}

func TestLoginUserInfoFailure(t *testing.T) {
	fp, srv := newFakeProvider(t)
	fp.set(func(fp *fakeProvider) {
		fp.omitIDToken = true
		fp.userInfoCode = http.StatusInternalServerError
	})
	auth := newTestAuthenticator(t, srv.URL, cacheWith("s3cr3t"))

	_, err := auth.Login(context.Background(), "alice", "wonderland")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestLoginErrors(t *testing.T) {
	_, srv := newFakeProvider(t)

	tests := []struct {
		name     string
		secret   string
		username string
		password string
		want     error
	}{
		{"missing username", "s3cr3t", "", "x", ErrMissingCredentials},
		{"missing password", "s3cr3t", "alice", "", ErrMissingCredentials},
		{"no cached secret", "", "alice", "wonderland", ErrNoClientSecret},
		{"wrong password", "s3cr3t", "alice", "nope", ErrInvalidCredentials},
		{"unknown user", "s3cr3t", "bob", "x", ErrInvalidCredentials},
		{"stale client secret", "old", "alice", "wonderland", ErrClientRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := credential.NewCache()
			cache.Swap(credential.Secret{Value: tt.secret})
			auth := newTestAuthenticator(t, srv.URL, cache)

			_, err := auth.Login(context.Background(), tt.username, tt.password)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoginRetriesOnceAfterRotation(t *testing.T) {
	fp, srv := newFakeProvider(t)
	fp.set(func(fp *fakeProvider) { fp.clientSecret = "new" })
	auth := newTestAuthenticator(t, srv.URL, &swappingReader{values: []string{"old", "new"}})

	res, err := auth.Login(context.Background(), "alice", "wonderland")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, int32(2), fp.tokenCalls.Load())
}

func TestLoginProviderDown(t *testing.T) {
	_, srv := newFakeProvider(t)
	srv.Close()
	auth := newTestAuthenticator(t, srv.URL, cacheWith("s3cr3t"))

	_, err := auth.Login(context.Background(), "alice", "wonderland")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestProfileFromClaimsDefaults(t *testing.T) {
	p := profileFromClaims(map[string]any{})
	assert.Equal(t, "User", p.Username)
	assert.Empty(t, p.FullName)

	p = profileFromClaims(map[string]any{"preferred_username": "bob", "family_name": "Builder"})
	assert.Equal(t, "Builder", p.FullName)
}

func TestProfileFromIDTokenRejectsGarbage(t *testing.T) {
	_, err := profileFromIDToken("not-a-jwt")
	assert.Error(t, err)

	_, err = profileFromIDToken(signedIDToken(jwt.MapClaims{"sub": "123"}))
	assert.Error(t, err)
}
