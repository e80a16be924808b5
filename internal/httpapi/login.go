package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/smart-mcp-proxy/loginfront/internal/credential"
	"github.com/smart-mcp-proxy/loginfront/internal/idp"
)

// Login outcomes, also used as metric labels.
const (
	LoginSuccess     = "success"
	LoginRejected    = "rejected"
	LoginUnavailable = "unavailable"
	LoginError       = "error"
)

var loginScopes = []string{"openid", "email", "profile"}

var (
	// ErrMissingCredentials means the form lacked a username or password.
	ErrMissingCredentials = errors.New("please provide both username and password")
	// ErrInvalidCredentials means the provider rejected the user.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrClientRejected means the provider refused the client secret, e.g. a
	// login that raced a rotation. It is reported as an ordinary auth failure.
	ErrClientRejected = errors.New("login failed, please try again")
	// ErrNoClientSecret means bootstrap has not cached a secret yet.
	ErrNoClientSecret = errors.New("login is not available yet")
	// ErrProviderUnavailable means the provider could not be reached or
	// returned something unusable.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// LoginConfig locates the realm and client used for user logins.
type LoginConfig struct {
	BaseURL  string
	Realm    string
	ClientID string
	Timeout  time.Duration
}

// Profile is the user information returned after a successful login.
type Profile struct {
	Username   string `json:"username"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	FullName   string `json:"full_name,omitempty"`
	Email      string `json:"email,omitempty"`
}

// LoginResult is what a successful password grant yields.
type LoginResult struct {
	User      Profile   `json:"user"`
	IDToken   string    `json:"id_token,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Authenticator performs user logins with the cached client secret.
type Authenticator struct {
	cfg        LoginConfig
	secrets    credential.Reader
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAuthenticator creates an authenticator. secrets is read on every login
// so rotations take effect immediately.
func NewAuthenticator(cfg LoginConfig, secrets credential.Reader, httpClient *http.Client, logger *zap.Logger) *Authenticator {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.L()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = idp.DefaultTimeout
	}
	return &Authenticator{
		cfg:        cfg,
		secrets:    secrets,
		httpClient: httpClient,
		logger:     logger.Named("login"),
	}
}

// Login exchanges username and password for tokens and returns the profile.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	secret := a.secrets.Read()
	if !secret.IsSet() {
		return nil, ErrNoClientSecret
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	tok, err := a.exchange(ctx, secret, username, password)
	if isInvalidClient(err) {
		// A rotation may have landed between the cache read and the request.
		if fresh := a.secrets.Read(); fresh.IsSet() && fresh.Value != secret.Value {
			a.logger.Debug("Client secret changed during login, retrying once")
			tok, err = a.exchange(ctx, fresh, username, password)
		}
	}
	if err != nil {
		return nil, a.classify(err)
	}

	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: access token not found in response", ErrProviderUnavailable)
	}

	result := &LoginResult{ExpiresAt: tok.Expiry}
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		result.IDToken = idToken
		if profile, err := profileFromIDToken(idToken); err == nil {
			result.User = profile
			return result, nil
		}
		a.logger.Debug("Could not read profile from id_token, using userinfo")
	}

	profile, err := a.userInfo(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}
	result.User = profile
	return result, nil
}

func (a *Authenticator) exchange(ctx context.Context, secret credential.Secret, username, password string) (*oauth2.Token, error) {
	oc := &oauth2.Config{
		ClientID:     a.cfg.ClientID,
		ClientSecret: secret.Value,
		Scopes:       loginScopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  idp.TokenURL(a.cfg.BaseURL, a.cfg.Realm),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return oc.PasswordCredentialsToken(ctx, username, password)
}

func (a *Authenticator) classify(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		switch re.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized:
			if isInvalidClient(err) {
				a.logger.Warn("Provider rejected the client secret", zap.String("error_code", re.ErrorCode))
				return ErrClientRejected
			}
			return ErrInvalidCredentials
		}
	}
	a.logger.Warn("Token request failed", zap.Error(err))
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

func isInvalidClient(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	return re.ErrorCode == "invalid_client" || re.ErrorCode == "unauthorized_client"
}

func (a *Authenticator) userInfo(ctx context.Context, accessToken string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, idp.UserInfoURL(a.cfg.BaseURL, a.cfg.Realm), nil)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("%w: failed to retrieve user info: HTTP %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var claims map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&claims); err != nil {
		return Profile{}, fmt.Errorf("%w: decode user info: %v", ErrProviderUnavailable, err)
	}
	return profileFromClaims(claims), nil
}

// profileFromIDToken reads claims without verifying the signature: the token
// came straight from the provider over the back channel.
func profileFromIDToken(idToken string) (Profile, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return Profile{}, err
	}
	if _, ok := claims["preferred_username"]; !ok {
		return Profile{}, errors.New("id_token has no preferred_username")
	}
	return profileFromClaims(claims), nil
}

func profileFromClaims(claims map[string]any) Profile {
	str := func(key string) string {
		s, _ := claims[key].(string)
		return s
	}
	p := Profile{
		Username:   str("preferred_username"),
		GivenName:  str("given_name"),
		FamilyName: str("family_name"),
		Email:      str("email"),
	}
	if p.Username == "" {
		p.Username = "User"
	}
	p.FullName = strings.TrimSpace(p.GivenName + " " + p.FamilyName)
	return p
}
