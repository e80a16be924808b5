// Package httpapi serves the login front end: JSON login and logout
// handlers plus health, readiness and metrics endpoints on a chi router.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/loginfront/internal/idp"
	"github.com/smart-mcp-proxy/loginfront/internal/observability"
	"github.com/smart-mcp-proxy/loginfront/internal/reqcontext"
)

const (
	maxFormBytes    = 64 << 10
	shutdownTimeout = 10 * time.Second
)

// LoginRecorder counts login outcomes.
type LoginRecorder interface {
	RecordLogin(result string)
}

// Options configures a Server.
type Options struct {
	// PublicURL is the provider address browsers are redirected to on logout.
	PublicURL string
	Realm     string
	Recorder  LoginRecorder
}

// Server provides the HTTP endpoints with chi router
type Server struct {
	auth          *Authenticator
	opts          Options
	logger        *zap.Logger
	router        *chi.Mux
	observability *observability.Manager
}

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates the HTTP server. obs may be nil.
func NewServer(auth *Authenticator, opts Options, obs *observability.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.L()
	}
	s := &Server{
		auth:          auth,
		opts:          opts,
		logger:        logger.Named("http"),
		router:        chi.NewRouter(),
		observability: obs,
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	if s.observability != nil {
		s.router.Use(s.observability.HTTPMiddleware())
	}
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.Get("/", s.handleIndex)
	s.router.Get("/login", s.handleLoginForm)
	s.router.Post("/login", s.handleLogin)
	s.router.Get("/logout", s.handleLogout)

	if s.observability != nil {
		s.observability.Mount(s.router)
	}
}

// requestIDMiddleware honours a valid X-Request-Id or generates one and
// puts a request-scoped logger in the context.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := reqcontext.GetOrGenerateRequestID(r.Header.Get(reqcontext.RequestIDHeader))
		w.Header().Set(reqcontext.RequestIDHeader, requestID)

		ctx := reqcontext.WithRequestID(r.Context(), requestID)
		ctx = reqcontext.WithLogger(ctx, s.logger.With(zap.String("request_id", requestID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		reqcontext.Logger(r.Context(), s.logger).Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleLoginForm(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"method": http.MethodPost,
		"fields": []string{"username", "password"},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	logger := reqcontext.Logger(r.Context(), s.logger)

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	username := r.PostForm.Get("username")

	result, err := s.auth.Login(r.Context(), username, r.PostForm.Get("password"))
	if err != nil {
		status, outcome := loginStatus(err)
		s.recordLogin(outcome)
		if status >= http.StatusInternalServerError {
			logger.Warn("Login unavailable", zap.String("username", username), zap.Error(err))
		} else {
			logger.Info("Login rejected", zap.String("username", username), zap.Error(err))
		}
		s.writeError(w, status, publicMessage(err))
		return
	}

	s.recordLogin(LoginSuccess)
	logger.Info("User logged in", zap.String("username", result.User.Username))
	s.writeJSON(w, http.StatusOK, result)
}

// handleLogout redirects to the provider's end-session endpoint when an id
// token is supplied, otherwise back to /login.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	idToken := r.URL.Query().Get("id_token_hint")
	if idToken == "" {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	q := url.Values{}
	q.Set("id_token_hint", idToken)
	q.Set("post_logout_redirect_uri", externalURL(r, "/login"))
	target := idp.LogoutURL(s.opts.PublicURL, s.opts.Realm) + "?" + q.Encode()

	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) recordLogin(outcome string) {
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordLogin(outcome)
	}
}

func loginStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return http.StatusBadRequest, LoginRejected
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrClientRejected):
		return http.StatusUnauthorized, LoginRejected
	case errors.Is(err, ErrNoClientSecret), errors.Is(err, ErrProviderUnavailable):
		return http.StatusServiceUnavailable, LoginUnavailable
	default:
		return http.StatusInternalServerError, LoginError
	}
}

// publicMessage keeps provider error details out of responses.
func publicMessage(err error) string {
	for _, known := range []error{ErrMissingCredentials, ErrInvalidCredentials, ErrClientRejected, ErrNoClientSecret, ErrProviderUnavailable} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}

func externalURL(r *http.Request, path string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host + path
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Login front end listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down HTTP server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
