package idp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/smart-mcp-proxy/loginfront/internal/credential"
)

// Operation names used in classified errors and logs.
const (
	OpGetAdminToken      = "get_admin_token"
	OpResolveClient      = "resolve_client"
	OpFetchSecret        = "fetch_secret"
	OpRegenerateSecret   = "regenerate_secret"
	clientSecretTypeName = "secret"
)

// AdminToken is a short-lived bearer token for the admin API. It is never
// persisted or reused across cycles.
type AdminToken struct {
	Value  string
	Expiry time.Time
}

// ClientRegistration is the subset of a Keycloak client representation we use.
type ClientRegistration struct {
	ClientID string `json:"clientId"`
	ID       string `json:"id"`
}

type clientSecretRepresentation struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// AdminClient calls the provider's admin API.
type AdminClient struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewAdminClient creates an admin API client.
func NewAdminClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *AdminClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.L()
	}
	return &AdminClient{
		cfg:        cfg.withDefaults(),
		httpClient: httpClient,
		logger:     logger.Named("idp-admin"),
		now:        time.Now,
	}
}

// GetAdminToken performs one password grant with the administrative
// credentials. It does not retry.
func (c *AdminClient) GetAdminToken(ctx context.Context) (*AdminToken, error) {
	oc := &oauth2.Config{
		ClientID: c.cfg.AdminClientID,
		Endpoint: oauth2.Endpoint{
			TokenURL: TokenURL(c.cfg.BaseURL, c.cfg.AdminRealm),
			// Explicit style: auto-detect would send a second request on failure.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := oc.PasswordCredentialsToken(ctx, c.cfg.AdminUsername, c.cfg.AdminPassword)
	if err != nil {
		return nil, classifyTokenError(OpGetAdminToken, err)
	}

	c.logger.Debug("Admin token obtained",
		zap.String("realm", c.cfg.AdminRealm),
		zap.Time("expires_at", tok.Expiry))

	return &AdminToken{Value: tok.AccessToken, Expiry: tok.Expiry}, nil
}

// ResolveClient returns the internal id of the registration whose public
// client id equals clientID. The first match wins.
func (c *AdminClient) ResolveClient(ctx context.Context, token *AdminToken, clientID string) (string, error) {
	var regs []ClientRegistration
	if err := c.doJSON(ctx, OpResolveClient, http.MethodGet, clientsURL(c.cfg.BaseURL, c.cfg.Realm, clientID), token, &regs); err != nil {
		return "", err
	}

	for _, reg := range regs {
		if reg.ClientID == clientID {
			if reg.ID == "" {
				return "", credential.Errorf(credential.KindMalformed, OpResolveClient, "client %q has no internal id", clientID)
			}
			return reg.ID, nil
		}
	}

	return "", credential.Errorf(credential.KindNotFound, OpResolveClient,
		"client %q not found among %d registrations in realm %q", clientID, len(regs), c.cfg.Realm)
}

// FetchCurrentSecret reads the registration's secret without changing it.
func (c *AdminClient) FetchCurrentSecret(ctx context.Context, token *AdminToken, internalID string) (credential.Secret, error) {
	return c.readSecret(ctx, OpFetchSecret, http.MethodGet, token, internalID)
}

// RegenerateSecret asks the provider to mint a new secret, which invalidates
// the previous one. Not idempotent: callers must not run it concurrently.
// When the regenerate response carries no value the new secret is read back.
func (c *AdminClient) RegenerateSecret(ctx context.Context, token *AdminToken, internalID string) (credential.Secret, error) {
	secret, err := c.readSecret(ctx, OpRegenerateSecret, http.MethodPost, token, internalID)
	if err == nil {
		return secret, nil
	}
	if credential.KindOf(err) != credential.KindMalformed {
		return credential.Secret{}, err
	}

	c.logger.Debug("Regenerate response had no secret value, reading it back",
		zap.String("client_internal_id", internalID))
	return c.readSecret(ctx, OpRegenerateSecret, http.MethodGet, token, internalID)
}

func (c *AdminClient) readSecret(ctx context.Context, op, method string, token *AdminToken, internalID string) (credential.Secret, error) {
	var rep clientSecretRepresentation
	if err := c.doJSON(ctx, op, method, clientSecretURL(c.cfg.BaseURL, c.cfg.Realm, internalID), token, &rep); err != nil {
		return credential.Secret{}, err
	}
	if rep.Value == "" {
		return credential.Secret{}, credential.Errorf(credential.KindMalformed, op, "response has no secret value")
	}
	if rep.Type != "" && rep.Type != clientSecretTypeName {
		c.logger.Warn("Unexpected credential type in secret response",
			zap.String("type", rep.Type))
	}
	return credential.Secret{Value: rep.Value, ObtainedAt: c.now()}, nil
}

func (c *AdminClient) doJSON(ctx context.Context, op, method, target string, token *AdminToken, out any) error {
	if token == nil || token.Value == "" {
		return credential.Errorf(credential.KindAuth, op, "missing admin token")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return credential.NewError(credential.KindTransport, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return credential.NewError(credential.KindTransport, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return credential.NewError(credential.KindTransport, op, err)
	}

	if err := statusError(op, resp.StatusCode); err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return credential.NewError(credential.KindMalformed, op, err)
	}
	return nil
}

func statusError(op string, code int) error {
	switch {
	case code >= 200 && code <= 299:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return credential.Errorf(credential.KindAuth, op, "HTTP %d", code)
	case code == http.StatusNotFound:
		return credential.Errorf(credential.KindNotFound, op, "HTTP %d", code)
	default:
		return credential.Errorf(credential.KindTransport, op, "HTTP %d", code)
	}
}

// classifyTokenError maps oauth2 token endpoint failures onto the taxonomy.
func classifyTokenError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		code := 0
		if re.Response != nil {
			code = re.Response.StatusCode
		}
		switch code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return credential.NewError(credential.KindAuth, op, err)
		default:
			return credential.NewError(credential.KindTransport, op, err)
		}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return credential.NewError(credential.KindTransport, op, err)
	}

	// Remaining failures come from decoding the body, e.g. a missing access_token.
	return credential.NewError(credential.KindMalformed, op, err)
}
