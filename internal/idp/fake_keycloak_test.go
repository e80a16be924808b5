package idp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeKeycloak serves the handful of endpoints the admin client uses.
type fakeKeycloak struct {
	t *testing.T

	mu            sync.Mutex
	clients       []ClientRegistration
	secret        string
	tokenStatus   int
	tokenBody     string
	listStatus    int
	secretStatus  int
	regenerated   []string
	regenerateRaw string

	tokenCalls      atomic.Int32
	listCalls       atomic.Int32
	secretCalls     atomic.Int32
	regenerateCalls atomic.Int32
	lastForm        atomic.Value
}

func newFakeKeycloak(t *testing.T) (*fakeKeycloak, *httptest.Server) {
	t.Helper()
	fk := &fakeKeycloak{
		t:            t,
		clients:      []ClientRegistration{{ClientID: "flask-app", ID: "uuid-1"}},
		secret:       "s3cr3t",
		tokenStatus:  http.StatusOK,
		listStatus:   http.StatusOK,
		secretStatus: http.StatusOK,
	}
	srv := httptest.NewServer(http.HandlerFunc(fk.serve))
	t.Cleanup(srv.Close)
	return fk, srv
}

func (fk *fakeKeycloak) serve(w http.ResponseWriter, r *http.Request) {
	fk.mu.Lock()
	defer fk.mu.Unlock()

	switch {
	case r.URL.Path == "/realms/master/protocol/openid-connect/token":
		fk.tokenCalls.Add(1)
		_ = r.ParseForm()
		fk.lastForm.Store(r.PostForm)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fk.tokenStatus)
		if fk.tokenBody != "" {
			_, _ = w.Write([]byte(fk.tokenBody))
			return
		}
		if fk.tokenStatus != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid user credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"admin-token","token_type":"Bearer","expires_in":60}`))

	case r.URL.Path == "/admin/realms/demo/clients":
		fk.listCalls.Add(1)
		if !fk.authorized(w, r) {
			return
		}
		if fk.listStatus != http.StatusOK {
			w.WriteHeader(fk.listStatus)
			return
		}
		fk.writeJSON(w, fk.clients)

	case strings.HasPrefix(r.URL.Path, "/admin/realms/demo/clients/") && strings.HasSuffix(r.URL.Path, "/client-secret"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/admin/realms/demo/clients/"), "/client-secret")
		if !fk.authorized(w, r) {
			return
		}
		if !fk.knownID(id) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if fk.secretStatus != http.StatusOK {
			w.WriteHeader(fk.secretStatus)
			return
		}
		if r.Method == http.MethodPost {
			fk.regenerateCalls.Add(1)
			if len(fk.regenerated) > 0 {
				fk.secret = fk.regenerated[0]
				fk.regenerated = fk.regenerated[1:]
			} else {
				fk.secret = "regen-" + time.Now().Format("150405.000000")
			}
			if fk.regenerateRaw != "" {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(fk.regenerateRaw))
				return
			}
		} else {
			fk.secretCalls.Add(1)
		}
		fk.writeJSON(w, map[string]string{"type": "secret", "value": fk.secret})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (fk *fakeKeycloak) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer admin-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func (fk *fakeKeycloak) knownID(id string) bool {
	for _, c := range fk.clients {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (fk *fakeKeycloak) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fk.t.Errorf("encode fake response: %v", err)
	}
}

func (fk *fakeKeycloak) set(fn func(fk *fakeKeycloak)) {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	fn(fk)
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:       baseURL,
		Realm:         "demo",
		AdminUsername: "admin",
		AdminPassword: "admin-pass",
		Timeout:       2 * time.Second,
	}
}
