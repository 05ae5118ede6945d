// Package company holds the persisted identity of the company the logged-in user operates.
package company

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/jrsteele09/go-billing-client/internal/config"
	apperrors "github.com/jrsteele09/go-billing-client/internal/errors"
	"github.com/jrsteele09/go-billing-client/internal/utils"
	"github.com/jrsteele09/go-billing-client/storage"
	"github.com/jrsteele09/go-billing-client/storage/memstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrNoCompany is returned by RequireID when no company has been stored.
var ErrNoCompany = apperrors.ErrNoCompany

// Identifier field names seen in stored company entries.
const (
	IDFieldID        = "id"
	IDFieldCompanyID = "company_id"
)

// Company is the cached, denormalized view of the operating company.
type Company struct {
	ID      string `json:"-"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	TaxID   string `json:"tax_id,omitempty"`
}

// Context reads and writes the company entry. The identifier is stored under
// the configured field name; both known names are accepted when reading.
// Storage failures switch the context to memory for the rest of the process,
// the same way the credential store recovers.
type Context struct {
	backend   storage.Storage
	key       string
	idField   string
	degraded  bool
	lastError *storage.OpError
	lock      sync.Mutex
}

func NewContext(cfg config.StorageConfig, backend storage.Storage) *Context {
	idField := cfg.GetCompanyIDField()
	if idField == "" {
		idField = IDFieldID
	}
	return &Context{
		backend: backend,
		key:     cfg.GetCompanyKey(),
		idField: idField,
	}
}

func (c *Context) IDField() string {
	return c.idField
}

func (c *Context) Save(company *Company) error {
	if company == nil || strings.TrimSpace(company.ID) == "" {
		return errors.Wrap(apperrors.ErrInvalidRequest, "company id is required")
	}

	entry := map[string]any{}
	fields, err := json.Marshal(company)
	if err != nil {
		return errors.Wrap(err, "encode company")
	}
	if err := json.Unmarshal(fields, &entry); err != nil {
		return errors.Wrap(err, "encode company")
	}
	entry[c.idField] = company.ID

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "encode company")
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.backend.Set(c.key, string(data)); err != nil {
		c.degrade("save", err)
		return c.backend.Set(c.key, string(data))
	}
	return nil
}

// Load returns the stored company, or nil when none is stored or the entry is unusable.
func (c *Context) Load() (*Company, error) {
	c.lock.Lock()
	data, err := c.backend.Get(c.key)
	if err != nil && !apperrors.Is(err, storage.ErrNotFound) {
		c.degrade("load", err)
		data, err = c.backend.Get(c.key)
	}
	c.lock.Unlock()

	if apperrors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[company Load] read company")
	}
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}

	company, err := decode([]byte(data), c.idField)
	if err != nil {
		log.Warn().Err(err).Str("key", c.key).Msg("[company Load] ignoring malformed company entry")
		return nil, nil
	}
	if company.ID == "" {
		return nil, nil
	}
	return company, nil
}

// Decode reads a company object as the backend returns it. The identifier is
// taken from id, falling back to company_id; it is empty when neither is set.
func Decode(data []byte) (*Company, error) {
	return decode(data, IDFieldID)
}

func decode(data []byte, preferred string) (*Company, error) {
	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, errors.Wrap(err, "decode company")
	}
	if entry == nil {
		return nil, errors.New("decode company: not an object")
	}

	var company Company
	if err := json.Unmarshal(data, &company); err != nil {
		return nil, errors.Wrap(err, "decode company")
	}
	company.ID = pickID(entry, preferred)
	return &company, nil
}

// RequireID fails fast with ErrNoCompany so company-scoped calls never go out with an empty id.
func (c *Context) RequireID() (string, error) {
	company, err := c.Load()
	if err != nil {
		return "", err
	}
	if company == nil {
		return "", ErrNoCompany
	}
	return company.ID, nil
}

func (c *Context) Clear() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := storage.Purge(c.backend, c.key); err != nil {
		log.Error().Err(err).Msg("[company Clear] persisted company could not be removed and may be restored on next start")
		c.degrade("clear", err)
		return c.backend.Remove(c.key)
	}
	return nil
}

// Degraded reports whether persistence failed and the context fell back to memory.
func (c *Context) Degraded() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.degraded
}

// LastError returns the storage failure that caused degradation, if any.
func (c *Context) LastError() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.lastError == nil {
		return nil
	}
	return c.lastError
}

// degrade must be called with the lock held.
func (c *Context) degrade(op string, err error) {
	storageErr := &storage.OpError{Owner: "company", Op: op, Err: err}
	c.lastError = storageErr
	if c.degraded {
		log.Warn().Err(storageErr).Msg("[company] in-memory fallback failed")
		return
	}
	log.Warn().Err(storageErr).Msg("[company] persistence unavailable, keeping company in memory only")
	c.degraded = true
	c.backend = memstore.New()
}

func pickID(entry map[string]any, preferred string) string {
	for _, field := range []string{preferred, IDFieldID, IDFieldCompanyID} {
		if id, ok := utils.ToString(entry[field]); ok && strings.TrimSpace(id) != "" {
			return id
		}
	}
	return ""
}
