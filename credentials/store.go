// Package credentials persists the session token and its decoded claims.
package credentials

import (
	"encoding/json"
	"sync"

	"github.com/jrsteele09/go-billing-client/internal/config"
	apperrors "github.com/jrsteele09/go-billing-client/internal/errors"
	"github.com/jrsteele09/go-billing-client/storage"
	"github.com/jrsteele09/go-billing-client/storage/memstore"
	"github.com/jrsteele09/go-billing-client/token"
	"github.com/rs/zerolog/log"
)

// StorageError describes a persistence failure. It is logged and recovered from, never returned by Store.
type StorageError = storage.OpError

// Store is the durable home of the token and its claims. The two entries are
// always written, read and removed together.
type Store struct {
	backend   storage.Storage
	tokenKey  string
	claimsKey string

	degraded  bool
	lastError *StorageError
	lock      sync.RWMutex
}

func New(cfg config.StorageConfig, backend storage.Storage) *Store {
	return &Store{
		backend:   backend,
		tokenKey:  cfg.GetTokenKey(),
		claimsKey: cfg.GetClaimsKey(),
	}
}

// Save overwrites both entries. A storage failure switches the store to memory
// for the rest of the process; the in-memory copy still holds the new values.
func (s *Store) Save(rawToken string, claims *token.Claims) {
	if rawToken == "" || claims == nil {
		log.Error().Msg("[credentials Save] token and claims are both required, session not stored")
		return
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		// Raw is a decoded JSON object so this only happens for hand-built claims.
		log.Err(err).Msg("[credentials Save] claims not serializable, session not stored")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	entries := map[string]string{
		s.tokenKey:  rawToken,
		s.claimsKey: string(claimsJSON),
	}
	if err := s.backend.SetMany(entries); err != nil {
		s.degrade("save", err)
		_ = s.backend.SetMany(entries)
	}
}

// Load returns the token and claims, or ok=false when either entry is missing
// or the claims entry cannot be parsed.
func (s *Store) Load() (string, *token.Claims, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	rawToken, tokenOK := s.get("load", s.tokenKey)
	claimsJSON, claimsOK := s.get("load", s.claimsKey)
	if !tokenOK || !claimsOK || rawToken == "" {
		return "", nil, false
	}

	var claims token.Claims
	if err := json.Unmarshal([]byte(claimsJSON), &claims); err != nil {
		log.Warn().Err(err).Str("key", s.claimsKey).Msg("[credentials Load] ignoring malformed claims entry")
		return "", nil, false
	}
	return rawToken, &claims, true
}

// Token returns the current raw token. The request pipeline calls this on every send.
func (s *Store) Token() (string, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	rawToken, ok := s.get("token", s.tokenKey)
	if !ok || rawToken == "" {
		return "", false
	}
	return rawToken, true
}

// Clear removes both entries. Clearing an empty store is a no-op. A backend
// that refuses removal gets both entries blanked instead.
func (s *Store) Clear() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := storage.Purge(s.backend, s.tokenKey, s.claimsKey); err != nil {
		log.Error().Err(err).Msg("[credentials Clear] persisted session could not be removed and may be restored on next start")
		s.degrade("clear", err)
		_ = s.backend.Remove(s.tokenKey, s.claimsKey)
	}
}

// Degraded reports whether persistence failed and the store fell back to memory.
func (s *Store) Degraded() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.degraded
}

// LastError returns the storage failure that caused degradation, if any.
func (s *Store) LastError() error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.lastError == nil {
		return nil
	}
	return s.lastError
}

// get must be called with the lock held.
func (s *Store) get(op, key string) (string, bool) {
	v, err := s.backend.Get(key)
	if err == nil {
		return v, true
	}
	if apperrors.Is(err, storage.ErrNotFound) {
		return "", false
	}
	s.degrade(op, err)
	v, err = s.backend.Get(key)
	return v, err == nil
}

// degrade must be called with the lock held. The replacement memory store starts
// empty: whatever the failing backend held can no longer be trusted.
func (s *Store) degrade(op string, err error) {
	storageErr := &StorageError{Owner: "credential", Op: op, Err: err}
	s.lastError = storageErr
	if s.degraded {
		log.Warn().Err(storageErr).Msg("[credentials] in-memory fallback failed")
		return
	}
	log.Warn().Err(storageErr).Msg("[credentials] persistence unavailable, keeping session in memory only")
	s.degraded = true
	s.backend = memstore.New()
}
