// Package session owns the client's authenticated state. It is the only code
// allowed to move the session between anonymous and authenticated.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-billing-client/internal/errors"
	"github.com/jrsteele09/go-billing-client/pipeline"
	"github.com/jrsteele09/go-billing-client/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Config is the subset of configuration the manager reads.
type Config interface {
	GetLoginPath() string
}

// CredentialStore persists the token and claims; *credentials.Store satisfies it.
type CredentialStore interface {
	Save(rawToken string, claims *token.Claims)
	Load() (string, *token.Claims, bool)
	Clear()
}

// Requester sends backend calls and reports 401s; *pipeline.Client satisfies it.
type Requester interface {
	Post(ctx context.Context, path string, body any, options ...pipeline.RequestOption) (*pipeline.Response, error)
	OnUnauthorized(fn pipeline.UnauthorizedFunc) (unregister func())
}

// Listener is told about every state change.
type Listener func(State)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type Manager struct {
	loginPath string
	store     CredentialStore
	requester Requester
	nowFunc   func() time.Time

	initOnce     sync.Once
	disposeOnce  sync.Once
	unregister   func()
	state        State
	token        string
	claims       *token.Claims
	listeners    []Listener
	lock         sync.RWMutex
	listenerLock sync.Mutex
}

type Option func(*Manager)

func WithNowFunc(now func() time.Time) Option {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// New builds a manager in StateUnknown and subscribes it to the requester's 401 notifications.
// Call Init before reading the state.
func New(cfg Config, store CredentialStore, requester Requester, options ...Option) *Manager {
	m := &Manager{
		loginPath: cfg.GetLoginPath(),
		store:     store,
		requester: requester,
		nowFunc:   time.Now,
		state:     StateUnknown,
	}
	for _, opt := range options {
		opt(m)
	}
	m.unregister = requester.OnUnauthorized(m.expire)
	if m.unregister == nil {
		m.unregister = func() {}
	}
	return m
}

// Init rehydrates from the credential store. Only the first call does any work;
// it returns once the state is settled.
func (m *Manager) Init() State {
	m.initOnce.Do(m.rehydrate)
	return m.State()
}

func (m *Manager) rehydrate() {
	rawToken, _, ok := m.store.Load()
	if !ok {
		m.store.Clear()
		m.transition(StateAnonymous, "", nil)
		return
	}

	// The stored claims are re-derived from the token so the two can never disagree.
	claims, err := token.Decode(rawToken)
	if err != nil {
		log.Warn().Err(err).Msg("[session Init] stored token is malformed, discarding session")
		m.store.Clear()
		m.transition(StateAnonymous, "", nil)
		return
	}
	if claims.Expired(m.nowFunc()) {
		log.Info().Str("user_id", claims.UserID).Msg("[session Init] stored token has expired, discarding session")
		m.store.Clear()
		m.transition(StateAnonymous, "", nil)
		return
	}

	m.store.Save(rawToken, claims)
	m.transition(StateAuthenticated, rawToken, claims)
}

// Login exchanges credentials for a token. On any failure the session ends up
// anonymous and the triggering error is returned unchanged for display.
func (m *Manager) Login(ctx context.Context, email, password string) (*token.Claims, error) {
	m.Init()

	resp, err := m.requester.Post(ctx, m.loginPath, loginRequest{
		Email:    strings.TrimSpace(email),
		Password: password,
	}, pipeline.Unauthenticated())
	if err != nil {
		m.failLogin()
		return nil, err
	}

	var body loginResponse
	if err := resp.DecodeJSON(&body); err != nil {
		m.failLogin()
		return nil, errors.Wrap(err, "[session Login] unreadable login response")
	}
	if strings.TrimSpace(body.Token) == "" {
		m.failLogin()
		return nil, apperrors.ErrMissingToken
	}

	claims, err := token.Decode(body.Token)
	if err != nil {
		m.failLogin()
		return nil, err
	}
	if claims.Expired(m.nowFunc()) {
		m.failLogin()
		return nil, apperrors.ErrTokenExpired
	}

	// Another login or a logout may have finished while this one waited on the
	// backend. The store is last-write-wins, so this result simply replaces it.
	m.lock.Lock()
	m.store.Save(body.Token, claims)
	m.setLocked(StateAuthenticated, body.Token, claims)
	m.lock.Unlock()

	m.notify(StateAuthenticated)
	log.Info().Str("user_id", claims.UserID).Msg("logged in")
	return claims, nil
}

// Logout clears the stored credentials. It never touches the network and never fails.
func (m *Manager) Logout() {
	m.Init()
	m.lock.Lock()
	m.store.Clear()
	changed := m.setLocked(StateAnonymous, "", nil)
	m.lock.Unlock()

	if changed {
		m.notify(StateAnonymous)
	}
}

// Dispose detaches the manager from the requester. The stored session is kept.
// Safe to call more than once and from several goroutines.
func (m *Manager) Dispose() {
	m.disposeOnce.Do(m.unregister)
}

func (m *Manager) State() State {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state
}

func (m *Manager) IsAuthenticated() bool {
	return m.State() == StateAuthenticated
}

// Claims returns the decoded claims of the current session, or nil when anonymous.
// They are for display only and prove nothing about the user.
func (m *Manager) Claims() *token.Claims {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.claims
}

func (m *Manager) Token() (string, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.token, m.token != ""
}

// ExpiresSoon reports whether the current token's exp falls inside window.
func (m *Manager) ExpiresSoon(window time.Duration) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state == StateAuthenticated && m.claims.ExpiresWithin(m.nowFunc(), window)
}

// Subscribe registers l for state changes and returns a function that removes it.
func (m *Manager) Subscribe(l Listener) (unsubscribe func()) {
	m.listenerLock.Lock()
	defer m.listenerLock.Unlock()

	m.listeners = append(m.listeners, l)
	idx := len(m.listeners) - 1
	return func() {
		m.listenerLock.Lock()
		defer m.listenerLock.Unlock()
		if idx < len(m.listeners) {
			m.listeners[idx] = nil
		}
	}
}

// expire runs when the pipeline saw a 401. The pipeline already cleared the store;
// clearing again under the lock discards a login that landed in between.
func (m *Manager) expire() {
	m.lock.Lock()
	m.store.Clear()
	changed := m.setLocked(StateAnonymous, "", nil)
	m.lock.Unlock()

	if changed {
		log.Info().Msg("session expired")
		m.notify(StateAnonymous)
	}
}

// failLogin settles the state after a failed login. An existing session is left
// alone: a failed attempt must not log out someone who is already logged in.
func (m *Manager) failLogin() {
	m.lock.Lock()
	changed := false
	if m.state != StateAuthenticated {
		changed = m.setLocked(StateAnonymous, "", nil)
	}
	m.lock.Unlock()

	if changed {
		m.notify(StateAnonymous)
	}
}

func (m *Manager) transition(state State, rawToken string, claims *token.Claims) {
	m.lock.Lock()
	changed := m.setLocked(state, rawToken, claims)
	m.lock.Unlock()

	if changed {
		m.notify(state)
	}
}

// setLocked must be called with m.lock held. Token and claims always move together.
func (m *Manager) setLocked(state State, rawToken string, claims *token.Claims) bool {
	if state != StateAuthenticated {
		rawToken, claims = "", nil
	}
	changed := m.state != state || m.token != rawToken
	m.state = state
	m.token = rawToken
	m.claims = claims
	return changed
}

func (m *Manager) notify(state State) {
	m.listenerLock.Lock()
	listeners := append([]Listener(nil), m.listeners...)
	m.listenerLock.Unlock()

	for _, l := range listeners {
		if l != nil {
			l(state)
		}
	}
}
