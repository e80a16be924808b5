package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/loginfront/internal/credential"
)

// VaultBackendName is the store.backend value selecting Vault.
const VaultBackendName = "vault"

// VaultConfig configures the Vault KV v2 backend.
type VaultConfig struct {
	Address   string
	Token     string
	Namespace string
	Timeout   time.Duration
	Location  Location
}

// VaultStore writes the secret to a Vault KV v2 mount.
type VaultStore struct {
	client  *api.Client
	loc     Location
	timeout time.Duration
	logger  *zap.Logger

	mu            sync.Mutex
	authenticated bool
}

// NewVaultStore creates a Vault-backed store. No request is made until the
// first Persist.
func NewVaultStore(cfg VaultConfig, logger *zap.Logger) (*VaultStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("vault address is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("vault token is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.L()
	}

	vc := api.DefaultConfig()
	if vc.Error != nil {
		return nil, fmt.Errorf("failed to build vault config: %w", vc.Error)
	}
	vc.Address = cfg.Address
	vc.Timeout = cfg.Timeout
	// RetryingStore owns retries.
	vc.MaxRetries = 0

	client, err := api.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	return &VaultStore{
		client:  client,
		loc:     cfg.Location.WithDefaults(),
		timeout: cfg.Timeout,
		logger:  logger.Named("vault-store"),
	}, nil
}

// Name implements SecretStore.
func (s *VaultStore) Name() string {
	return VaultBackendName
}

// Persist implements SecretStore. The token is verified before the first
// write and again after any authentication failure.
func (s *VaultStore) Persist(ctx context.Context, secret credential.Secret) (*WriteResult, error) {
	if err := validateSecret(secret); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dataPath := s.loc.Mount + "/data/" + s.loc.Path
	resp, err := s.client.Logical().WriteWithContext(ctx, dataPath, map[string]interface{}{
		"data": map[string]interface{}{s.loc.Key: secret.Value},
	})
	if err != nil {
		return nil, s.classify(OpPersist, err)
	}
	if resp == nil {
		return nil, credential.Errorf(credential.KindStoreUnavailable, OpPersist, "no response writing %s, is the KV v2 mount %q enabled?", dataPath, s.loc.Mount)
	}

	result := &WriteResult{
		Backend:   VaultBackendName,
		Path:      s.loc.String(),
		Version:   versionOf(resp.Data),
		WrittenAt: time.Now(),
	}
	s.logger.Debug("Secret written to vault",
		zap.String("path", result.Path),
		zap.Int("version", result.Version))
	return result, nil
}

// Check verifies the token without writing anything.
func (s *VaultStore) Check(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = false
	return s.ensureAuthenticated(ctx)
}

func (s *VaultStore) ensureAuthenticated(ctx context.Context) error {
	if s.authenticated {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.client.Auth().Token().LookupSelfWithContext(ctx); err != nil {
		return s.classify(OpAuthenticate, err)
	}
	s.authenticated = true
	s.logger.Debug("Vault token verified", zap.String("address", s.client.Address()))
	return nil
}

// classify maps a vault client error onto the taxonomy. Permission errors
// force re-authentication before the next write.
func (s *VaultStore) classify(op string, err error) error {
	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			s.authenticated = false
			return credential.NewError(credential.KindAuth, op, err)
		}
	}
	return credential.NewError(credential.KindStoreUnavailable, op, err)
}

func versionOf(data map[string]interface{}) int {
	switch v := data["version"].(type) {
	case json.Number:
		n, _ := strconv.Atoi(v.String())
		return n
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
