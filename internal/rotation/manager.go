// Package rotation owns the client secret lifecycle: wait for the identity
// provider, bootstrap the current secret, then regenerate it on a timer.
// Exactly one Manager may run per process.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/loginfront/internal/credential"
	"github.com/smart-mcp-proxy/loginfront/internal/idp"
	"github.com/smart-mcp-proxy/loginfront/internal/store"
)

// Default lifecycle policy.
const (
	DefaultProbeMaxAttempts     = 30
	DefaultProbeDelay           = 2 * time.Second
	DefaultBootstrapMaxAttempts = 10
	DefaultBootstrapRetryDelay  = 5 * time.Second
	DefaultInterval             = time.Hour
	DefaultRecoveryInterval     = 5 * time.Minute
)

const opInstall = "install_secret"

var (
	// ErrAlreadyRunning is returned when a second manager is started in the same process.
	ErrAlreadyRunning = errors.New("credential manager already running")
	// ErrCycleInProgress is returned by RotateOnce when another cycle holds the lock.
	ErrCycleInProgress = errors.New("secret cycle already in progress")
	// ErrNotReady is returned by RotateOnce before bootstrap has completed.
	ErrNotReady = errors.New("credential manager is not ready")
	// ErrProviderUnavailable means the readiness prober gave up.
	ErrProviderUnavailable = errors.New("identity provider did not become ready")
)

// processClaim enforces a single running manager per process.
var processClaim atomic.Bool

// Config is the lifecycle policy. Zero values fall back to the defaults,
// except RotationEnabled.
type Config struct {
	ClientID             string
	ProbeMaxAttempts     int
	ProbeDelay           time.Duration
	BootstrapMaxAttempts int
	BootstrapRetryDelay  time.Duration
	RotationEnabled      bool
	Interval             time.Duration
	RecoveryInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.ProbeMaxAttempts < 1 {
		c.ProbeMaxAttempts = DefaultProbeMaxAttempts
	}
	if c.ProbeDelay < 0 {
		c.ProbeDelay = DefaultProbeDelay
	}
	if c.BootstrapMaxAttempts < 1 {
		c.BootstrapMaxAttempts = DefaultBootstrapMaxAttempts
	}
	if c.BootstrapRetryDelay < 0 {
		c.BootstrapRetryDelay = DefaultBootstrapRetryDelay
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.RecoveryInterval <= 0 {
		c.RecoveryInterval = DefaultRecoveryInterval
	}
	return c
}

// ReadinessProber is satisfied by *idp.Prober.
type ReadinessProber interface {
	WaitUntilReady(ctx context.Context, maxAttempts int, delay time.Duration) bool
}

// AdminAPI is satisfied by *idp.AdminClient.
type AdminAPI interface {
	GetAdminToken(ctx context.Context) (*idp.AdminToken, error)
	ResolveClient(ctx context.Context, token *idp.AdminToken, clientID string) (string, error)
	FetchCurrentSecret(ctx context.Context, token *idp.AdminToken, internalID string) (credential.Secret, error)
	RegenerateSecret(ctx context.Context, token *idp.AdminToken, internalID string) (credential.Secret, error)
}

// Recorder receives lifecycle metrics.
type Recorder interface {
	RecordCycle(kind, result, failureKind string, duration time.Duration)
	RecordSecretInstalled(at time.Time)
	SetPhase(phase string)
}

// CycleKind distinguishes the startup fetch from periodic regeneration.
type CycleKind string

const (
	CycleBootstrap CycleKind = "bootstrap"
	CycleRotation  CycleKind = "rotation"
)

// Cycle is the run state of one bootstrap attempt or rotation tick.
type Cycle struct {
	ID        string
	Kind      CycleKind
	Attempt   int
	StartedAt time.Time
	LastError error
}

// CycleReport summarizes a finished cycle.
type CycleReport struct {
	ID          string        `json:"id"`
	Kind        CycleKind     `json:"kind"`
	Attempt     int           `json:"attempt"`
	Result      string        `json:"result"`
	FailureKind string        `json:"failure_kind,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// StoreReport is the outcome of the last store mirror write.
type StoreReport struct {
	Backend string    `json:"backend"`
	Version int       `json:"version,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Status is a point-in-time snapshot of the manager.
type Status struct {
	Phase            Phase        `json:"phase"`
	Bootstrapped     bool         `json:"bootstrapped"`
	SecretCached     bool         `json:"secret_cached"`
	SecretObtainedAt time.Time    `json:"secret_obtained_at,omitempty"`
	RotationEnabled  bool         `json:"rotation_enabled"`
	NextRotation     time.Time    `json:"next_rotation,omitempty"`
	LastCycle        *CycleReport `json:"last_cycle,omitempty"`
	LastStoreWrite   *StoreReport `json:"last_store_write,omitempty"`
	UnhealthyReason  string       `json:"unhealthy_reason,omitempty"`
}

// Healthy reports whether logins can be served: bootstrap finished and a
// secret is cached.
func (s Status) Healthy() bool {
	return s.Bootstrapped && s.SecretCached && s.Phase != PhaseUnhealthy
}

// Option customizes a Manager.
type Option func(*Manager)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithSecretListener is called with every secret installed in the cache,
// e.g. to register it with the log sanitizer.
func WithSecretListener(fn func(credential.Secret)) Option {
	return func(m *Manager) { m.onInstall = fn }
}

// Manager drives the credential lifecycle and is the only writer of the cache.
type Manager struct {
	cfg       Config
	prober    ReadinessProber
	admin     AdminAPI
	store     store.SecretStore
	cache     *credential.Cache
	recorder  Recorder
	onInstall func(credential.Secret)
	logger    *zap.Logger
	tracer    oteltrace.Tracer
	now       func() time.Time

	phase *phaseMachine

	// cycleMu serializes cycles: at most one regeneration in flight.
	cycleMu sync.Mutex

	mu              sync.RWMutex
	started         bool
	cancel          context.CancelFunc
	done            chan struct{}
	bootstrapped    bool
	nextRotation    time.Time
	lastCycle       *CycleReport
	lastStore       *StoreReport
	unhealthyReason string
}

// NewManager wires a manager. secretStore may be nil, in which case secrets
// are only cached.
func NewManager(cfg Config, prober ReadinessProber, admin AdminAPI, secretStore store.SecretStore, cache *credential.Cache, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.L()
	}
	if cache == nil {
		cache = credential.NewCache()
	}

	m := &Manager{
		cfg:    cfg.withDefaults(),
		prober: prober,
		admin:  admin,
		store:  secretStore,
		cache:  cache,
		logger: logger.Named("credential-manager"),
		tracer: otel.Tracer("github.com/smart-mcp-proxy/loginfront/internal/rotation"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.phase = newPhaseMachine(PhaseUninitialized, func(p Phase) {
		m.logger.Info("Lifecycle phase changed", zap.String("phase", string(p)))
		if m.recorder != nil {
			m.recorder.SetPhase(string(p))
		}
	})
	if m.recorder != nil {
		m.recorder.SetPhase(string(PhaseUninitialized))
	}
	return m
}

// Secrets returns the read side of the cache for request handlers.
func (m *Manager) Secrets() credential.Reader {
	return m.cache
}

// Phase returns the current lifecycle phase.
func (m *Manager) Phase() Phase {
	return m.phase.Current()
}

// Start claims the process-wide slot and runs bootstrap plus the rotation
// loop in a background goroutine. It returns immediately.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || !processClaim.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	m.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go func() {
		defer close(done)
		defer processClaim.Store(false)
		if err := m.run(loopCtx); err != nil && loopCtx.Err() == nil {
			m.logger.Error("Credential manager stopped", zap.Error(err))
		}
	}()
	return nil
}

// Run is the blocking form of Start: it bootstraps and then rotates until
// ctx is cancelled. A bootstrap failure is returned.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.started || !processClaim.CompareAndSwap(false, true) {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.started = true
	m.mu.Unlock()
	defer processClaim.Store(false)

	return m.run(ctx)
}

// Stop cancels the background loop and waits for it to exit. Safe to call
// more than once.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel, done := m.cancel, m.done
	m.mu.RUnlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the goroutine launched by Start exits. It is nil
// before Start.
func (m *Manager) Done() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.done
}

func (m *Manager) run(ctx context.Context) error {
	if err := m.Bootstrap(ctx); err != nil {
		return err
	}
	m.loop(ctx)
	return nil
}

// Bootstrap waits for the provider, then fetches the current secret without
// regenerating it. The whole chain is retried with a fixed delay; exhausting
// either the probe or the retries leaves the manager Unhealthy.
func (m *Manager) Bootstrap(ctx context.Context) error {
	if !m.phase.Transition(PhaseWaitingForProvider) {
		return fmt.Errorf("cannot bootstrap from phase %s", m.phase.Current())
	}

	m.logger.Info("Waiting for identity provider",
		zap.Int("max_attempts", m.cfg.ProbeMaxAttempts),
		zap.Duration("delay", m.cfg.ProbeDelay))
	if !m.prober.WaitUntilReady(ctx, m.cfg.ProbeMaxAttempts, m.cfg.ProbeDelay) {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.markUnhealthy(ErrProviderUnavailable)
		return ErrProviderUnavailable
	}

	m.phase.Transition(PhaseBootstrapping)

	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := m.runCycle(ctx, CycleBootstrap, attempt); err != nil {
			m.logger.Warn("Bootstrap attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", m.cfg.BootstrapMaxAttempts),
				zap.String("failure_kind", credential.KindOf(err).String()),
				zap.Error(err))
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(m.cfg.BootstrapRetryDelay)),
		backoff.WithMaxTries(uint(m.cfg.BootstrapMaxAttempts)), // #nosec G115 -- clamped to >= 1 in withDefaults
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fmt.Errorf("bootstrap failed after %d attempts: %w", attempt, err)
		m.markUnhealthy(err)
		return err
	}

	m.mu.Lock()
	m.bootstrapped = true
	m.mu.Unlock()
	m.phase.Transition(PhaseReady)

	m.logger.Info("Client secret bootstrapped", zap.Int("attempts", attempt))
	return nil
}

// RotateOnce runs a single rotation immediately. It never waits for another
// cycle: if one is in flight it returns ErrCycleInProgress.
func (m *Manager) RotateOnce(ctx context.Context) error {
	if !m.cycleMu.TryLock() {
		return ErrCycleInProgress
	}
	defer m.cycleMu.Unlock()
	return m.rotateLocked(ctx)
}

// loop is the single rotation timer. The next tick is armed only after the
// previous cycle returns.
func (m *Manager) loop(ctx context.Context) {
	if !m.cfg.RotationEnabled {
		m.logger.Info("Secret rotation disabled, keeping bootstrapped secret")
		<-ctx.Done()
		return
	}

	delay := m.cfg.Interval
	timer := time.NewTimer(delay)
	defer timer.Stop()
	m.setNextRotation(delay)

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		delay = m.cfg.Interval
		if err := m.rotate(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			delay = m.cfg.RecoveryInterval
		}
		timer.Reset(delay)
		m.setNextRotation(delay)
		m.logger.Debug("Next rotation scheduled", zap.Duration("in", delay))
	}
}

func (m *Manager) rotate(ctx context.Context) error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	return m.rotateLocked(ctx)
}

func (m *Manager) rotateLocked(ctx context.Context) error {
	if !m.phase.Transition(PhaseRotating) {
		return ErrNotReady
	}
	err := m.runCycle(ctx, CycleRotation, 1)
	m.phase.Transition(PhaseReady)

	switch {
	case err == nil:
		m.logger.Info("Client secret rotated")
	case ctx.Err() != nil:
		m.logger.Info("Secret rotation interrupted", zap.Error(err))
	default:
		m.logger.Error("Secret rotation failed, keeping current secret",
			zap.String("failure_kind", credential.KindOf(err).String()),
			zap.Duration("retry_in", m.cfg.RecoveryInterval),
			zap.Error(err))
	}
	return err
}

// runCycle performs token -> resolve -> fetch|regenerate -> cache -> store.
// Panics are converted to errors.
func (m *Manager) runCycle(ctx context.Context, kind CycleKind, attempt int) (err error) {
	cycle := &Cycle{
		ID:        uuid.NewString(),
		Kind:      kind,
		Attempt:   attempt,
		StartedAt: m.now(),
	}
	logger := m.logger.With(
		zap.String("cycle_id", cycle.ID),
		zap.String("kind", string(kind)),
		zap.Int("attempt", attempt))

	ctx, span := m.tracer.Start(ctx, "credential."+string(kind),
		oteltrace.WithAttributes(
			attribute.String("cycle.id", cycle.ID),
			attribute.Int("cycle.attempt", attempt),
		))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s cycle: %v", kind, r)
			logger.Error("Recovered panic in secret cycle", zap.Any("panic", r), zap.Stack("stack"))
		}
		cycle.LastError = err
		m.finishCycle(cycle, span)
	}()

	secret, err := m.obtainSecret(ctx, kind)
	if err != nil {
		return err
	}

	if !m.cache.Swap(secret) {
		return credential.Errorf(credential.KindMalformed, opInstall, "provider returned an empty secret")
	}
	if m.onInstall != nil {
		m.onInstall(secret)
	}
	if m.recorder != nil {
		m.recorder.RecordSecretInstalled(secret.ObtainedAt)
	}

	// The cache is already updated; a store failure only affects the mirror.
	m.mirror(ctx, logger, secret)
	return nil
}

func (m *Manager) obtainSecret(ctx context.Context, kind CycleKind) (credential.Secret, error) {
	token, err := m.admin.GetAdminToken(ctx)
	if err != nil {
		return credential.Secret{}, err
	}

	internalID, err := m.admin.ResolveClient(ctx, token, m.cfg.ClientID)
	if err != nil {
		return credential.Secret{}, err
	}

	if kind == CycleBootstrap {
		return m.admin.FetchCurrentSecret(ctx, token, internalID)
	}
	return m.admin.RegenerateSecret(ctx, token, internalID)
}

func (m *Manager) mirror(ctx context.Context, logger *zap.Logger, secret credential.Secret) {
	if m.store == nil {
		return
	}

	res, err := m.store.Persist(ctx, secret)
	report := &StoreReport{Backend: m.store.Name(), At: m.now()}
	if err != nil {
		report.Error = err.Error()
		logger.Warn("Secret cached but not mirrored to store",
			zap.String("backend", m.store.Name()),
			zap.String("failure_kind", credential.KindOf(err).String()),
			zap.Error(err))
	} else {
		report.Version = res.Version
		logger.Info("Secret mirrored to store",
			zap.String("backend", res.Backend),
			zap.String("path", res.Path),
			zap.Int("version", res.Version))
	}

	m.mu.Lock()
	m.lastStore = report
	m.mu.Unlock()
}

func (m *Manager) finishCycle(cycle *Cycle, span oteltrace.Span) {
	duration := m.now().Sub(cycle.StartedAt)
	report := &CycleReport{
		ID:        cycle.ID,
		Kind:      cycle.Kind,
		Attempt:   cycle.Attempt,
		Result:    "success",
		StartedAt: cycle.StartedAt,
		Duration:  duration,
	}
	if cycle.LastError != nil {
		report.Result = "failure"
		report.FailureKind = credential.KindOf(cycle.LastError).String()
		report.Error = cycle.LastError.Error()
		span.RecordError(cycle.LastError)
		span.SetStatus(codes.Error, report.FailureKind)
	}

	if m.recorder != nil {
		m.recorder.RecordCycle(string(cycle.Kind), report.Result, report.FailureKind, duration)
	}

	m.mu.Lock()
	m.lastCycle = report
	m.mu.Unlock()
}

func (m *Manager) markUnhealthy(reason error) {
	m.phase.Transition(PhaseUnhealthy)
	m.mu.Lock()
	m.unhealthyReason = reason.Error()
	m.mu.Unlock()
	m.logger.Error("Credential manager is unhealthy", zap.Error(reason))
}

func (m *Manager) setNextRotation(in time.Duration) {
	m.mu.Lock()
	m.nextRotation = m.now().Add(in)
	m.mu.Unlock()
}

// Status returns a snapshot for health reporting.
func (m *Manager) Status() Status {
	secret := m.cache.Read()

	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Status{
		Phase:            m.phase.Current(),
		Bootstrapped:     m.bootstrapped,
		SecretCached:     secret.IsSet(),
		SecretObtainedAt: secret.ObtainedAt,
		RotationEnabled:  m.cfg.RotationEnabled,
		NextRotation:     m.nextRotation,
		UnhealthyReason:  m.unhealthyReason,
	}
	if m.lastCycle != nil {
		c := *m.lastCycle
		st.LastCycle = &c
	}
	if m.lastStore != nil {
		s := *m.lastStore
		st.LastStoreWrite = &s
	}
	return st
}
