package observability

import (
	"context"
	"errors"
	"fmt"

	"github.com/smart-mcp-proxy/loginfront/internal/rotation"
)

// LifecycleSource is satisfied by *rotation.Manager.
type LifecycleSource interface {
	Status() rotation.Status
}

// LifecycleHealthChecker reports healthy only once bootstrap has completed
// and a client secret is cached. It also contributes the phase to the
// response details.
type LifecycleHealthChecker struct {
	source LifecycleSource
}

// NewLifecycleHealthChecker creates a checker for the credential manager.
func NewLifecycleHealthChecker(source LifecycleSource) *LifecycleHealthChecker {
	return &LifecycleHealthChecker{source: source}
}

// Name returns the name of the health checker
func (c *LifecycleHealthChecker) Name() string {
	return "credential_lifecycle"
}

// HealthCheck fails until a secret is cached and after the manager gave up.
func (c *LifecycleHealthChecker) HealthCheck(_ context.Context) error {
	st := c.source.Status()
	switch {
	case st.Phase == rotation.PhaseUnhealthy && st.UnhealthyReason != "":
		return fmt.Errorf("credential manager unhealthy: %s", st.UnhealthyReason)
	case st.Phase == rotation.PhaseUnhealthy:
		return errors.New("credential manager unhealthy")
	case !st.Healthy():
		return fmt.Errorf("no client secret yet (phase %s)", st.Phase)
	}
	return nil
}

// ReadinessCheck is the same gate as HealthCheck.
func (c *LifecycleHealthChecker) ReadinessCheck(ctx context.Context) error {
	return c.HealthCheck(ctx)
}

// Details implements DetailReporter.
func (c *LifecycleHealthChecker) Details() map[string]any {
	st := c.source.Status()
	details := map[string]any{
		"phase":            string(st.Phase),
		"rotation_enabled": st.RotationEnabled,
	}
	if !st.SecretObtainedAt.IsZero() {
		details["secret_obtained_at"] = st.SecretObtainedAt
	}
	if !st.NextRotation.IsZero() {
		details["next_rotation"] = st.NextRotation
	}
	return details
}

// Pinger is satisfied by *store.BoltStore.
type Pinger interface {
	Ping() error
}

// DatabaseHealthChecker checks that the local secret database can open a
// read transaction.
type DatabaseHealthChecker struct {
	name string
	db   Pinger
}

// NewDatabaseHealthChecker creates a new database health checker
func NewDatabaseHealthChecker(name string, db Pinger) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{name: name, db: db}
}

// Name returns the name of the health checker
func (dhc *DatabaseHealthChecker) Name() string {
	return dhc.name
}

// HealthCheck performs a database health check
func (dhc *DatabaseHealthChecker) HealthCheck(_ context.Context) error {
	if dhc.db == nil {
		return fmt.Errorf("database is nil")
	}
	return dhc.db.Ping()
}

// ComponentHealthChecker adapts a check function, e.g. a Vault token lookup.
type ComponentHealthChecker struct {
	name  string
	check func(ctx context.Context) error
}

// NewComponentHealthChecker creates a new component health checker
func NewComponentHealthChecker(name string, check func(ctx context.Context) error) *ComponentHealthChecker {
	return &ComponentHealthChecker{name: name, check: check}
}

// Name returns the name of the health checker
func (chc *ComponentHealthChecker) Name() string {
	return chc.name
}

// HealthCheck performs a component health check
func (chc *ComponentHealthChecker) HealthCheck(ctx context.Context) error {
	if chc.check == nil {
		return fmt.Errorf("check function is nil")
	}
	return chc.check(ctx)
}

var (
	_ HealthChecker    = (*LifecycleHealthChecker)(nil)
	_ ReadinessChecker = (*LifecycleHealthChecker)(nil)
	_ DetailReporter   = (*LifecycleHealthChecker)(nil)
	_ HealthChecker    = (*DatabaseHealthChecker)(nil)
	_ HealthChecker    = (*ComponentHealthChecker)(nil)
)
