// Package session owns the process-wide session lifecycle: who the
// current actor is, what role they resolved to, and the guarantee that
// the answer arrives in bounded time. All mutation of the lifecycle
// state flows through the Controller; nothing else writes it.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"gestaorh.org/internal/bounded"
	"gestaorh.org/internal/idle"
	"gestaorh.org/internal/identity"
	"gestaorh.org/internal/impersonation"
	"gestaorh.org/internal/obs"
	"gestaorh.org/internal/provider"
)

const (
	defaultCallTimeout = 5 * time.Second
	defaultInitCeiling = 8 * time.Second
)

// ErrImpersonationUnavailable is returned when the controller was built
// without an impersonation manager.
var ErrImpersonationUnavailable = errors.New("session: impersonation not configured")

// State is a snapshot of the session lifecycle. Loading is true only
// during the bounded initialization window. Impersonating is true iff
// a credential backup currently exists.
type State struct {
	Principal     *provider.Principal
	Profile       *identity.Profile
	Role          identity.Role // empty when unprovisioned or anonymous
	Loading       bool
	Impersonating bool
}

// RoleResolver maps a principal to a profile, nil meaning unprovisioned.
type RoleResolver interface {
	Resolve(ctx context.Context, id identity.PrincipalID) (*identity.Profile, error)
}

// Controller coordinates the session store adapter, role resolver,
// inactivity monitor and impersonation manager.
type Controller struct {
	sessions     provider.Store
	resolver     RoleResolver
	monitor      *idle.Monitor
	impersonator *impersonation.Manager

	callTimeout time.Duration
	initCeiling time.Duration

	mu          sync.Mutex
	principal   *provider.Principal
	profile     *identity.Profile
	role        identity.Role
	loading     bool
	initAborted bool

	initOnce    sync.Once
	settledOnce sync.Once
	settled     chan struct{}
	startedAt   time.Time

	events      chan provider.Event
	unsubscribe func()
	closeOnce   sync.Once
	done        chan struct{}
}

// Option configures Controller behavior.
type Option func(*Controller)

// WithCallTimeout bounds each individual remote read during
// initialization.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithInitCeiling sets the absolute bound on initialization; Loading is
// forced false when it elapses no matter what the backend did.
func WithInitCeiling(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.initCeiling = d
		}
	}
}

// NewController constructs a Controller in the Loading state. monitor
// and impersonator may be nil when the corresponding features are not
// wired (tests, headless tools).
func NewController(sessions provider.Store, resolver RoleResolver, monitor *idle.Monitor, impersonator *impersonation.Manager, opts ...Option) *Controller {
	c := &Controller{
		sessions:     sessions,
		resolver:     resolver,
		monitor:      monitor,
		impersonator: impersonator,
		callTimeout:  defaultCallTimeout,
		initCeiling:  defaultInitCeiling,
		loading:      true,
		settled:      make(chan struct{}),
		events:       make(chan provider.Event, 64),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init runs the bounded initialization protocol exactly once: resolve
// the current session, then the role, with an independent ceiling that
// forces Loading to false even if every backend call hangs. Subsequent
// calls are no-ops.
func (c *Controller) Init(ctx context.Context) {
	c.initOnce.Do(func() {
		c.startedAt = time.Now()

		// The subscription is registered once, before any event can be
		// missed; events are queued and processed in arrival order only
		// after initialization has settled.
		c.unsubscribe = c.sessions.OnAuthStateChange(func(ev provider.Event) {
			select {
			case c.events <- ev:
			case <-c.done:
			}
		})
		go c.consumeEvents()

		ceiling := time.AfterFunc(c.initCeiling, func() {
			c.mu.Lock()
			c.initAborted = true
			c.mu.Unlock()
			c.settle()
		})

		go func() {
			defer ceiling.Stop()
			c.initialize(ctx)
		}()
	})
}

func (c *Controller) initialize(ctx context.Context) {
	res := bounded.Call[*provider.Session](ctx, c.callTimeout, nil, func(ctx context.Context) (*provider.Session, error) {
		return c.sessions.GetSession(ctx)
	})
	if res.TimedOut || res.Err != nil || res.Value == nil || res.Value.Principal == nil {
		// Absent, failed or slow session reads all settle as anonymous;
		// a provider outage must not wedge the application in Loading.
		if res.Err != nil && !errors.Is(res.Err, provider.ErrNoSession) {
			obs.Event("session_init_failed", map[string]any{"error": res.Err.Error()})
		}
		c.settle()
		return
	}

	principal := res.Value.Principal
	profile, err := c.resolver.Resolve(ctx, principal.ID)
	if err != nil {
		obs.Event("session_init_resolve_failed", map[string]any{"error": err.Error()})
		profile = nil
	}

	c.mu.Lock()
	if c.initAborted {
		// The ceiling already settled the controller; this late result
		// must not mutate shared state.
		c.mu.Unlock()
		return
	}
	c.setIdentityLocked(principal, profile)
	c.mu.Unlock()

	c.armMonitor()
	c.settle()
}

// settle forces Loading to false. Idempotent.
func (c *Controller) settle() {
	c.settledOnce.Do(func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
		close(c.settled)
		obs.ObserveSessionInit(time.Since(c.startedAt))
	})
}

// Settled is closed once Loading has transitioned to false.
func (c *Controller) Settled() <-chan struct{} {
	return c.settled
}

// Snapshot returns a copy of the current lifecycle state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	impersonating := false
	if c.impersonator != nil {
		impersonating = c.impersonator.Impersonating()
	}
	return State{
		Principal:     c.principal,
		Profile:       c.profile,
		Role:          c.role,
		Loading:       c.loading,
		Impersonating: impersonating,
	}
}

// Touch feeds a user-interaction signal to the inactivity monitor.
func (c *Controller) Touch() {
	if c.monitor != nil {
		c.monitor.Touch()
	}
}

// SignOut tears the session down: discards any impersonation backup,
// disarms the inactivity monitor, clears identity state and invalidates
// the provider session. Idempotent by design — callable from the idle
// timeout, manual action and impersonation rollback without
// precondition checks.
func (c *Controller) SignOut(ctx context.Context) {
	if c.impersonator != nil {
		c.impersonator.Discard()
	}
	if c.monitor != nil {
		c.monitor.Disarm()
	}

	c.mu.Lock()
	c.setIdentityLocked(nil, nil)
	c.mu.Unlock()
	c.settle()

	if err := c.sessions.SignOut(ctx); err != nil {
		obs.Event("sign_out_provider_failed", map[string]any{"error": err.Error()})
	}
}

// RefreshProfile re-runs role resolution for the current principal.
func (c *Controller) RefreshProfile(ctx context.Context) error {
	c.mu.Lock()
	principal := c.principal
	c.mu.Unlock()
	if principal == nil {
		return nil
	}
	profile, err := c.resolver.Resolve(ctx, principal.ID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.setIdentityLocked(principal, profile)
	c.mu.Unlock()
	return nil
}

// Impersonate swaps the active session to the target identity through
// the impersonation manager and re-resolves lifecycle state for it.
// Failure leaves the acting session provably unchanged.
func (c *Controller) Impersonate(ctx context.Context, target identity.ProfileID, justification string) error {
	if c.impersonator == nil {
		return ErrImpersonationUnavailable
	}
	if err := c.impersonator.Start(ctx, target, justification); err != nil {
		return err
	}
	c.adoptCurrentSession(ctx)
	return nil
}

// StopImpersonation restores the backed-up acting session. If
// restoration failed the manager has already forced a full sign-out;
// the controller state follows it either way.
func (c *Controller) StopImpersonation(ctx context.Context) error {
	if c.impersonator == nil {
		return ErrImpersonationUnavailable
	}
	err := c.impersonator.Stop(ctx)
	c.adoptCurrentSession(ctx)
	return err
}

// Close unsubscribes from provider events and stops the consumer.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		close(c.done)
	})
}

// adoptCurrentSession synchronizes lifecycle state with whatever
// session the provider currently holds.
func (c *Controller) adoptCurrentSession(ctx context.Context) {
	res := bounded.Call[*provider.Session](ctx, c.callTimeout, nil, func(ctx context.Context) (*provider.Session, error) {
		return c.sessions.GetSession(ctx)
	})
	session := res.Value
	if res.TimedOut || res.Err != nil || session == nil || session.Principal == nil {
		if c.monitor != nil {
			c.monitor.Disarm()
		}
		c.mu.Lock()
		c.setIdentityLocked(nil, nil)
		c.mu.Unlock()
		return
	}

	profile, err := c.resolver.Resolve(ctx, session.Principal.ID)
	if err != nil {
		profile = nil
	}
	c.mu.Lock()
	c.setIdentityLocked(session.Principal, profile)
	c.mu.Unlock()
	c.armMonitor()
}

// consumeEvents processes provider transitions sequentially in arrival
// order, strictly after initialization has settled.
func (c *Controller) consumeEvents() {
	select {
	case <-c.settled:
	case <-c.done:
		return
	}
	for {
		select {
		case ev := <-c.events:
			c.applyEvent(ev)
		case <-c.done:
			return
		}
	}
}

func (c *Controller) applyEvent(ev provider.Event) {
	switch ev.Type {
	case provider.SignedOut:
		if c.monitor != nil {
			c.monitor.Disarm()
		}
		c.mu.Lock()
		c.setIdentityLocked(nil, nil)
		c.mu.Unlock()

	case provider.SignedIn:
		if ev.Session == nil || ev.Session.Principal == nil {
			return
		}
		principal := ev.Session.Principal
		profile, err := c.resolver.Resolve(context.Background(), principal.ID)
		if err != nil {
			profile = nil
		}
		c.mu.Lock()
		c.setIdentityLocked(principal, profile)
		c.mu.Unlock()
		c.armMonitor()

	case provider.TokenRefreshed:
		// A token refresh never changes identity: the credential pair
		// lives in the provider adapter, profile and role stay as-is.
	}
}

func (c *Controller) armMonitor() {
	if c.monitor == nil {
		return
	}
	c.monitor.Arm(func() {
		obs.Event("idle_sign_out", nil)
		c.SignOut(context.Background())
	})
}

// setIdentityLocked is the single write point for principal/profile/role.
func (c *Controller) setIdentityLocked(p *provider.Principal, profile *identity.Profile) {
	c.principal = p
	c.profile = profile
	if profile != nil {
		c.role = profile.Role
	} else {
		c.role = ""
	}
}
