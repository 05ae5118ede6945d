package fakebackend

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-billing-client/billing"
	"github.com/shopspring/decimal"
)

type companyRecord struct {
	ID      string `json:"id"`
	OwnerID string `json:"-"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	TaxID   string `json:"tax_id,omitempty"`
}

// collection is an in-memory, id-keyed set of records owned by one company.
type collection[T any] struct {
	records map[string]*T
	order   []string
	id      func(*T) *string
}

func newCollection[T any](id func(*T) *string) *collection[T] {
	return &collection[T]{records: make(map[string]*T), id: id}
}

func (c *collection[T]) list() []T {
	out := make([]T, 0, len(c.order))
	for _, id := range c.order {
		if r, ok := c.records[id]; ok {
			out = append(out, *r)
		}
	}
	return out
}

func (c *collection[T]) get(id string) (*T, bool) {
	r, ok := c.records[id]
	return r, ok
}

func (c *collection[T]) insert(r *T) *T {
	id := c.id(r)
	*id = uuid.New().String()
	c.records[*id] = r
	c.order = append(c.order, *id)
	return r
}

func (c *collection[T]) replace(id string, r *T) bool {
	if _, ok := c.records[id]; !ok {
		return false
	}
	*c.id(r) = id
	c.records[id] = r
	return true
}

func (c *collection[T]) remove(id string) bool {
	if _, ok := c.records[id]; !ok {
		return false
	}
	delete(c.records, id)
	for i, o := range c.order {
		if o == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// ledger holds one company's data.
type ledger struct {
	customers *collection[billing.Customer]
	employees *collection[billing.Employee]
	items     *collection[billing.Item]
	invoices  *collection[billing.Invoice]
	nextNo    int
}

func newLedger() *ledger {
	return &ledger{
		customers: newCollection(func(c *billing.Customer) *string { return &c.ID }),
		employees: newCollection(func(e *billing.Employee) *string { return &e.ID }),
		items:     newCollection(func(i *billing.Item) *string { return &i.ID }),
		invoices:  newCollection(func(i *billing.Invoice) *string { return &i.ID }),
	}
}

// price fills in the invoice amounts from its lines and the item tax rates.
func (l *ledger) price(inv *billing.Invoice) {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, line := range inv.Lines {
		amount := line.Quantity.Mul(line.UnitPrice)
		subtotal = subtotal.Add(amount)
		if item, ok := l.items.get(line.ItemID); ok {
			tax = tax.Add(amount.Mul(item.TaxRate))
		}
	}
	inv.Subtotal = subtotal.Round(2)
	inv.Tax = tax.Round(2)
	inv.Total = inv.Subtotal.Add(inv.Tax)
	if inv.Status == "" {
		inv.Status = billing.InvoiceDraft
	}
}

type dataStore struct {
	companies map[string]*companyRecord
	ledgers   map[string]*ledger
	lock      sync.Mutex
}

func newDataStore() *dataStore {
	return &dataStore{
		companies: make(map[string]*companyRecord),
		ledgers:   make(map[string]*ledger),
	}
}

func (d *dataStore) createCompany(c *companyRecord) *companyRecord {
	d.lock.Lock()
	defer d.lock.Unlock()
	c.ID = uuid.New().String()
	d.companies[c.ID] = c
	d.ledgers[c.ID] = newLedger()
	return c
}

// withLedger runs fn against the company's ledger when userID owns it.
func (d *dataStore) withLedger(userID, companyID string, fn func(*companyRecord, *ledger)) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	c, ok := d.companies[companyID]
	if !ok || c.OwnerID != userID {
		return false
	}
	fn(c, d.ledgers[companyID])
	return true
}

func (d *dataStore) companiesOf(userID string) []companyRecord {
	d.lock.Lock()
	defer d.lock.Unlock()
	var out []companyRecord
	for _, c := range d.companies {
		if c.OwnerID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
