package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tablewait/waitlist-admin/auth"
	"github.com/tablewait/waitlist-admin/internal/logctx"
	"github.com/tablewait/waitlist-admin/storage"
)

var (
	// ErrAlreadyInitialized is returned by a second call to Initialize.
	ErrAlreadyInitialized = errors.New("session: already initialized")
	// ErrOperationInFlight is returned when Login or Resync is
	// called while another mutating operation has not finished.
	ErrOperationInFlight = errors.New("session: operation in flight")
	// ErrEmptyToken is returned when the authenticator succeeds without a token.
	ErrEmptyToken = errors.New("session: authenticator returned an empty token")
)

// Authenticator exchanges credentials for a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, creds auth.Credentials) (string, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, creds auth.Credentials) (string, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, creds auth.Credentials) (string, error) {
	return f(ctx, creds)
}

// Manager owns the client session: status, role, business scope and the
// active business, mirrored to storage.
//
// Mutations are serialized. Observers only ever see fully applied states.
type Manager struct {
	store     storage.Storage
	api       Authenticator
	checker   auth.ValidityChecker
	log       *slog.Logger
	storeOpts []storage.Option

	// op serializes mutating operations.
	op sync.Mutex

	mu    sync.RWMutex
	state State

	initialized atomic.Bool
	ready       chan struct{}
	readyOnce   sync.Once

	notify *notifier
}

// New builds a Manager. A nil checker falls back to a local expiry check.
func New(store storage.Storage, api Authenticator, checker auth.ValidityChecker, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session: storage is required")
	}
	if api == nil {
		return nil, errors.New("session: authenticator is required")
	}
	if checker == nil {
		checker = auth.NewExpiryChecker()
	}

	m := &Manager{
		store:   store,
		api:     api,
		checker: checker,
		log:     slog.Default(),
		state:   unauthenticated(),
		ready:   make(chan struct{}),
		notify:  newNotifier(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// State returns a snapshot of the current session.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Token returns the current bearer token, or "" when unauthenticated.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.token
}

// Ready is closed once Initialize has finished, whatever its outcome.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Subscribe registers a channel receiving each new state. A slow reader
// only misses intermediate states; the latest one is always delivered. The
// returned func unsubscribes and closes the channel.
func (m *Manager) Subscribe() (<-chan State, func()) {
	return m.notify.subscribe()
}

// Observe registers fn to be called synchronously after every transition,
// on the goroutine that performed it. fn must not call mutating methods.
func (m *Manager) Observe(fn func(State)) func() {
	return m.notify.observe(fn)
}

// Close releases subscribers. The Manager must not be used afterwards.
func (m *Manager) Close() {
	m.notify.close()
}

// Initialize restores a persisted session. It runs at most once and waits
// for an operation already in flight; if that operation authenticated the
// session there is nothing left to restore. Invalid, unverifiable or
// unreadable sessions are cleared and leave the Manager unauthenticated;
// those outcomes are logged, not returned. Ready is closed on every path
// of the first call.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.initialized.Load() {
		return ErrAlreadyInitialized
	}
	m.op.Lock()
	defer m.op.Unlock()

	if !m.initialized.CompareAndSwap(false, true) {
		return ErrAlreadyInitialized
	}
	defer m.readyOnce.Do(func() { close(m.ready) })

	if m.State().IsAuthenticated() {
		m.log.DebugContext(ctx, "session.init.superseded")
		return nil
	}

	m.apply(ctx, State{Status: StatusInitializing, BusinessScope: []string{}})

	tok, ok, err := storage.GetString(ctx, m.store, storage.KeyToken, m.storeOpts...)
	switch {
	case err != nil:
		m.log.WarnContext(ctx, "session.init.read_failed", slog.String("err", err.Error()))
		m.failClosed(ctx)
		return nil
	case !ok || tok == "":
		m.log.DebugContext(ctx, "session.init.no_token")
		m.apply(ctx, unauthenticated())
		return nil
	}

	valid, err := m.checker.CheckTokenValidity(ctx, tok)
	if err != nil {
		m.log.WarnContext(ctx, "session.init.check_failed", slog.String("err", err.Error()))
		m.failClosed(ctx)
		return nil
	}
	if !valid {
		m.log.InfoContext(ctx, "session.init.invalid_token")
		m.failClosed(ctx)
		return nil
	}

	next := m.derive(ctx, tok)
	m.apply(ctx, next)
	m.log.InfoContext(m.logCtx(ctx, next), "session.init.restored")
	return nil
}

// Login exchanges creds for a token and authenticates the session. On any
// failure the session is left exactly as it was and the error is returned.
func (m *Manager) Login(ctx context.Context, creds auth.Credentials) error {
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("session: login: %w", err)
	}
	if !m.op.TryLock() {
		return ErrOperationInFlight
	}
	defer m.op.Unlock()

	tok, err := m.api.Authenticate(ctx, creds)
	if err != nil {
		m.log.InfoContext(ctx, "session.login.failed", slog.String("user", creds.Username), slog.String("err", err.Error()))
		return fmt.Errorf("session: login: %w", err)
	}
	if tok == "" {
		return ErrEmptyToken
	}
	if err := m.store.Set(ctx, storage.KeyToken, []byte(tok), m.storeOpts...); err != nil {
		return fmt.Errorf("session: persist token: %w", err)
	}

	next := m.derive(ctx, tok)
	m.apply(ctx, next)
	m.log.InfoContext(m.logCtx(ctx, next), "session.login.ok", slog.String("user", creds.Username))
	return nil
}

// Logout clears the persisted session and resets the state. Calling it while
// logged out is harmless. The in-memory reset always happens; storage errors
// are returned afterwards.
func (m *Manager) Logout(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()

	err := m.clearPersisted(ctx)
	if m.apply(ctx, unauthenticated()) {
		m.log.InfoContext(ctx, "session.logout")
	}
	return err
}

// HandleUnauthorized reacts to the API rejecting the current token. It
// behaves as Logout when a session is active.
func (m *Manager) HandleUnauthorized(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()

	if !m.State().IsAuthenticated() {
		return nil
	}
	m.log.WarnContext(ctx, "session.unauthorized")
	err := m.clearPersisted(ctx)
	m.apply(ctx, unauthenticated())
	return err
}

// SetActiveBusiness selects id, or clears the selection when id is nil. An id
// outside the business scope is ignored. It reports whether the state changed.
func (m *Manager) SetActiveBusiness(ctx context.Context, id *string) (bool, error) {
	m.op.Lock()
	defer m.op.Unlock()

	cur := m.State()
	if id == nil {
		if cur.ActiveBusinessID == nil {
			return false, nil
		}
		if err := m.store.Delete(ctx, m.keyOpts(storage.KeyActiveBusinessID)...); err != nil {
			return false, fmt.Errorf("session: clear active business: %w", err)
		}
		cur.ActiveBusinessID = nil
		m.apply(ctx, cur)
		m.log.DebugContext(m.logCtx(ctx, cur), "session.business.cleared")
		return true, nil
	}

	if !cur.InScope(*id) {
		m.log.DebugContext(ctx, "session.business.out_of_scope", slog.String("business_id", *id))
		return false, nil
	}
	if prev, ok := cur.ActiveBusiness(); ok && prev == *id {
		return false, nil
	}
	if err := m.store.Set(ctx, storage.KeyActiveBusinessID, []byte(*id), m.storeOpts...); err != nil {
		return false, fmt.Errorf("session: persist active business: %w", err)
	}
	sel := *id
	cur.ActiveBusinessID = &sel
	m.apply(ctx, cur)
	m.log.DebugContext(m.logCtx(ctx, cur), "session.business.selected")
	return true, nil
}

// Resync re-reads storage after it was changed by another process. A
// removed token ends the session; a new token is validated like at startup;
// the same token only re-resolves the active business. A storage read error
// is returned and leaves the state as it was.
func (m *Manager) Resync(ctx context.Context) error {
	if !m.op.TryLock() {
		return ErrOperationInFlight
	}
	defer m.op.Unlock()

	tok, ok, err := storage.GetString(ctx, m.store, storage.KeyToken, m.storeOpts...)
	if err != nil {
		return fmt.Errorf("session: resync: %w", err)
	}
	cur := m.State()

	if !ok || tok == "" {
		if m.apply(ctx, unauthenticated()) {
			m.log.InfoContext(ctx, "session.resync.logged_out")
		}
		return nil
	}

	if !cur.IsAuthenticated() || tok != cur.token {
		valid, err := m.checker.CheckTokenValidity(ctx, tok)
		if err != nil || !valid {
			attrs := []any{}
			if err != nil {
				attrs = append(attrs, slog.String("err", err.Error()))
			}
			m.log.InfoContext(ctx, "session.resync.invalid_token", attrs...)
			m.failClosed(ctx)
			return nil
		}
	}

	next := m.derive(ctx, tok)
	if m.apply(ctx, next) {
		m.log.InfoContext(m.logCtx(ctx, next), "session.resync.updated")
	}
	return nil
}

// derive builds the authenticated state for tok and persists the resolved
// active business. Persisting the selection is best effort.
func (m *Manager) derive(ctx context.Context, tok string) State {
	role, _ := auth.DecodeRole(tok)
	scope := auth.DecodeBusinessScope(tok)

	var persisted *string
	raw, ok, err := storage.GetString(ctx, m.store, storage.KeyActiveBusinessID, m.storeOpts...)
	if err != nil {
		m.log.WarnContext(ctx, "session.business.read_failed", slog.String("err", err.Error()))
	} else if ok {
		persisted = &raw
	}

	active := resolveActiveBusiness(persisted, scope)
	switch {
	case active == nil && persisted != nil:
		err = m.store.Delete(ctx, m.keyOpts(storage.KeyActiveBusinessID)...)
	case active != nil && (persisted == nil || *persisted != *active):
		err = m.store.Set(ctx, storage.KeyActiveBusinessID, []byte(*active), m.storeOpts...)
	default:
		err = nil
	}
	if err != nil {
		m.log.WarnContext(ctx, "session.business.persist_failed", slog.String("err", err.Error()))
	}

	return State{
		Status:           StatusAuthenticated,
		Role:             role,
		BusinessScope:    scope,
		ActiveBusinessID: active,
		token:            tok,
	}
}

func (m *Manager) failClosed(ctx context.Context) {
	if err := m.clearPersisted(ctx); err != nil {
		m.log.WarnContext(ctx, "session.clear_failed", slog.String("err", err.Error()))
	}
	m.apply(ctx, unauthenticated())
}

func (m *Manager) clearPersisted(ctx context.Context) error {
	return errors.Join(
		m.store.Delete(ctx, m.keyOpts(storage.KeyToken)...),
		m.store.Delete(ctx, m.keyOpts(storage.KeyActiveBusinessID)...),
	)
}

// apply swaps in next and notifies observers. It reports whether anything
// changed; an identical state is not re-published.
func (m *Manager) apply(ctx context.Context, next State) bool {
	next = next.clone()

	m.mu.Lock()
	if m.state.equal(next) {
		m.mu.Unlock()
		return false
	}
	m.state = next
	m.mu.Unlock()

	m.log.DebugContext(m.logCtx(ctx, next), "session.state")
	m.notify.publish(next)
	return true
}

func (m *Manager) keyOpts(key string) []storage.Option {
	return append(append([]storage.Option(nil), m.storeOpts...), storage.WithKey(key))
}

func (m *Manager) logCtx(ctx context.Context, s State) context.Context {
	active, _ := s.ActiveBusiness()
	return logctx.WithSessionData(ctx, &logctx.SessionData{
		Status:         s.Status.String(),
		Role:           string(s.Role),
		ActiveBusiness: active,
	})
}
