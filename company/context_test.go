package company_test

import (
	"errors"
	"testing"

	"github.com/jrsteele09/go-billing-client/company"
	"github.com/jrsteele09/go-billing-client/internal/config"
	apperrors "github.com/jrsteele09/go-billing-client/internal/errors"
	"github.com/jrsteele09/go-billing-client/storage"
	"github.com/jrsteele09/go-billing-client/storage/memstore"
	"github.com/stretchr/testify/require"
)

func TestContext_RequireIDWithoutCompany(t *testing.T) {
	c := company.NewContext(config.Storage{}, memstore.New())

	id, err := c.RequireID()
	require.ErrorIs(t, err, company.ErrNoCompany)
	require.ErrorIs(t, err, apperrors.ErrNoCompany)
	require.Empty(t, id)
}

func TestContext_SaveLoad(t *testing.T) {
	backend := memstore.New()
	c := company.NewContext(config.Storage{}, backend)

	require.NoError(t, c.Save(&company.Company{ID: "c-1", Name: "Acme"}))

	stored, err := backend.Get("company")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"c-1","name":"Acme"}`, stored)

	got, err := c.Load()
	require.NoError(t, err)
	require.Equal(t, "c-1", got.ID)
	require.Equal(t, "Acme", got.Name)

	id, err := c.RequireID()
	require.NoError(t, err)
	require.Equal(t, "c-1", id)

	require.NoError(t, c.Clear())
	require.NoError(t, c.Clear())
	_, err = c.RequireID()
	require.ErrorIs(t, err, company.ErrNoCompany)
}

func TestContext_ConfiguredIDField(t *testing.T) {
	t.Setenv("COMPANY_ID_FIELD", "company_id")
	backend := memstore.New()
	c := company.NewContext(config.Storage{}, backend)
	require.Equal(t, "company_id", c.IDField())

	require.NoError(t, c.Save(&company.Company{ID: "c-2"}))
	stored, err := backend.Get("company")
	require.NoError(t, err)
	require.JSONEq(t, `{"company_id":"c-2"}`, stored)
}

func TestContext_AcceptsEitherIDField(t *testing.T) {
	tests := []struct {
		name    string
		idField string
		entry   string
		want    string
	}{
		{"id only", "id", `{"id":"a"}`, "a"},
		{"company_id only", "id", `{"company_id":"b"}`, "b"},
		{"numeric id", "id", `{"id":17}`, "17"},
		{"configured field wins", "company_id", `{"id":"a","company_id":"b"}`, "b"},
		{"default field wins", "id", `{"id":"a","company_id":"b"}`, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("COMPANY_ID_FIELD", tt.idField)
			backend := memstore.New()
			require.NoError(t, backend.Set("company", tt.entry))

			id, err := company.NewContext(config.Storage{}, backend).RequireID()
			require.NoError(t, err)
			require.Equal(t, tt.want, id)
		})
	}
}

func TestContext_UnusableEntries(t *testing.T) {
	for _, entry := range []string{"{broken", "null", `{"name":"no id"}`, `{"id":""}`} {
		backend := memstore.New()
		require.NoError(t, backend.Set("company", entry))

		_, err := company.NewContext(config.Storage{}, backend).RequireID()
		require.ErrorIs(t, err, company.ErrNoCompany, entry)
	}
}

func TestContext_SaveRequiresID(t *testing.T) {
	c := company.NewContext(config.Storage{}, memstore.New())
	require.ErrorIs(t, c.Save(&company.Company{Name: "nameless"}), apperrors.ErrInvalidRequest)
	require.ErrorIs(t, c.Save(nil), apperrors.ErrInvalidRequest)
}

func TestDecode(t *testing.T) {
	c, err := company.Decode([]byte(`{"company_id":17,"name":"Acme"}`))
	require.NoError(t, err)
	require.Equal(t, "17", c.ID)
	require.Equal(t, "Acme", c.Name)

	c, err = company.Decode([]byte(`{"id":"c-1","company_id":"c-2"}`))
	require.NoError(t, err)
	require.Equal(t, "c-1", c.ID)

	c, err = company.Decode([]byte(`{"name":"Acme"}`))
	require.NoError(t, err)
	require.Empty(t, c.ID)

	_, err = company.Decode([]byte(`[1]`))
	require.Error(t, err)
	_, err = company.Decode([]byte(`null`))
	require.Error(t, err)
}

var errDisk = errors.New("disk full")

// brokenStorage fails every write; reads are served from the wrapped store.
type brokenStorage struct {
	*memstore.MemStore
	removeFailures int
	setManyFails   bool
}

func (b *brokenStorage) Set(string, string) error { return errDisk }

func (b *brokenStorage) SetMany(entries map[string]string) error {
	if b.setManyFails {
		return errDisk
	}
	return b.MemStore.SetMany(entries)
}

func (b *brokenStorage) Remove(keys ...string) error {
	if b.removeFailures > 0 {
		b.removeFailures--
		return errDisk
	}
	return b.MemStore.Remove(keys...)
}

var _ storage.Storage = &brokenStorage{}

func TestContext_SaveDegradesToMemory(t *testing.T) {
	c := company.NewContext(config.Storage{}, &brokenStorage{MemStore: memstore.New(), setManyFails: true})

	require.NoError(t, c.Save(&company.Company{ID: "c-1", Name: "Acme"}))
	require.True(t, c.Degraded())
	require.ErrorIs(t, c.LastError(), apperrors.ErrStorage)
	require.ErrorIs(t, c.LastError(), errDisk)

	id, err := c.RequireID()
	require.NoError(t, err)
	require.Equal(t, "c-1", id)

	require.NoError(t, c.Clear())
	_, err = c.RequireID()
	require.ErrorIs(t, err, company.ErrNoCompany)
}

func TestContext_ClearWhenRemoveKeepsFailing(t *testing.T) {
	tests := []struct {
		name           string
		removeFailures int
		setManyFails   bool
		wantDegraded   bool
	}{
		{name: "remove succeeds on retry", removeFailures: storage.RemoveAttempts - 1},
		{name: "entry blanked instead", removeFailures: storage.RemoveAttempts},
		{name: "nothing works", removeFailures: storage.RemoveAttempts + 1, setManyFails: true, wantDegraded: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := memstore.New()
			require.NoError(t, backend.Set("company", `{"id":"c-1"}`))
			broken := &brokenStorage{MemStore: backend, removeFailures: tt.removeFailures, setManyFails: tt.setManyFails}

			c := company.NewContext(config.Storage{}, broken)
			require.NoError(t, c.Clear())
			require.Equal(t, tt.wantDegraded, c.Degraded())
			_, err := c.RequireID()
			require.ErrorIs(t, err, company.ErrNoCompany)

			if !tt.wantDegraded {
				// A later process reading the same backend finds no company.
				_, err = company.NewContext(config.Storage{}, backend).RequireID()
				require.ErrorIs(t, err, company.ErrNoCompany)
			}
		})
	}
}
