package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	TaxID   string `json:"tax_id,omitempty"`
}

type Employee struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

type Item struct {
	ID          string          `json:"id,omitempty"`
	SKU         string          `json:"sku,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

type InvoiceStatus string

const (
	InvoiceDraft InvoiceStatus = "draft"
	InvoiceSent  InvoiceStatus = "sent"
	InvoicePaid  InvoiceStatus = "paid"
	InvoiceVoid  InvoiceStatus = "void"
)

type InvoiceLine struct {
	ItemID      string          `json:"item_id,omitempty"`
	Description string          `json:"description,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Invoice amounts are computed by the backend and carried through untouched.
type Invoice struct {
	ID         string          `json:"id,omitempty"`
	Number     string          `json:"number,omitempty"`
	CustomerID string          `json:"customer_id"`
	Status     InvoiceStatus   `json:"status,omitempty"`
	IssuedAt   *time.Time      `json:"issued_at,omitempty"`
	DueAt      *time.Time      `json:"due_at,omitempty"`
	Lines      []InvoiceLine   `json:"lines"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Total      decimal.Decimal `json:"total"`
}

// File is a downloaded document such as an invoice PDF or a report.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

type ForecastPoint struct {
	Period string          `json:"period"`
	Value  decimal.Decimal `json:"value"`
	Lower  decimal.Decimal `json:"lower"`
	Upper  decimal.Decimal `json:"upper"`
}

type Forecast struct {
	Kind   string          `json:"kind"`
	ItemID string          `json:"item_id,omitempty"`
	Points []ForecastPoint `json:"points"`
}
