package billing_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-billing-client/billing"
	"github.com/jrsteele09/go-billing-client/company"
	"github.com/jrsteele09/go-billing-client/credentials"
	"github.com/jrsteele09/go-billing-client/internal/config"
	apperrors "github.com/jrsteele09/go-billing-client/internal/errors"
	"github.com/jrsteele09/go-billing-client/internal/fakebackend"
	"github.com/jrsteele09/go-billing-client/pipeline"
	"github.com/jrsteele09/go-billing-client/session"
	"github.com/jrsteele09/go-billing-client/storage/memstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	baseURL string
}

func (c testConfig) GetBaseURL() string { return c.baseURL }
func (c testConfig) GetLoginPath() string { return "/auth/login" }
func (c testConfig) GetHTTPTimeout() time.Duration { return 5 * time.Second }
func (c testConfig) GetLoginRoute() string { return "/login" }
func (c testConfig) GetExpiryWarning() time.Duration { return time.Minute }

type clock struct {
	now  time.Time
	lock sync.Mutex
}

func (c *clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	clock      *clock
	storage    *memstore.MemStore
	store      *credentials.Store
	companyCtx *company.Context
	routes     []string
	client     *pipeline.Client
	session    *session.Manager
	billing    *billing.Client
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: &clock{now: time.Now()}, storage: memstore.New()}

	backend, err := fakebackend.New(fakebackend.WithNowFunc(f.clock.Now), fakebackend.WithTokenTTL(time.Hour))
	require.NoError(t, err)
	_, err = backend.AddUser("a@b.com", "secret")
	require.NoError(t, err)
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	f.store = credentials.New(config.Storage{}, f.storage)
	f.companyCtx = company.NewContext(config.Storage{}, f.storage)
	client, err := pipeline.New(testConfig{baseURL: server.URL}, f.store,
		pipeline.WithHTTPClient(server.Client()),
		pipeline.WithNavigator(pipeline.NavigatorFunc(func(route string) {
			f.routes = append(f.routes, route)
		})))
	require.NoError(t, err)
	f.client = client

	f.session = session.New(testConfig{}, f.store, client)
	t.Cleanup(f.session.Dispose)
	f.billing = billing.New(client, f.companyCtx)
	return f
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	_, err := f.session.Login(context.Background(), "a@b.com", "secret")
	require.NoError(t, err)
}

func (f *fixture) registerCompany(t *testing.T) *company.Company {
	t.Helper()
	c, err := f.billing.Companies.Register(context.Background(), &company.Company{Name: "Acme", Email: "billing@acme.test"})
	require.NoError(t, err)
	return c
}

func TestCompanyScopedCallsFailFastWithoutCompany(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	t.Cleanup(server.Close)

	client, err := pipeline.New(testConfig{baseURL: server.URL}, credentials.New(config.Storage{}, memstore.New()),
		pipeline.WithHTTPClient(server.Client()))
	require.NoError(t, err)
	b := billing.New(client, company.NewContext(config.Storage{}, memstore.New()))
	ctx := context.Background()

	calls := map[string]func() error{
		"company current": func() error { _, err := b.Companies.Current(ctx); return err },
		"customers list":  func() error { _, err := b.Customers.List(ctx); return err },
		"customer create": func() error { _, err := b.Customers.Create(ctx, &billing.Customer{Name: "x"}); return err },
		"employees list":  func() error { _, err := b.Employees.List(ctx); return err },
		"items get":       func() error { _, err := b.Items.Get(ctx, "1"); return err },
		"invoice delete":  func() error { return b.Invoices.Delete(ctx, "1") },
		"invoice pdf":     func() error { _, err := b.Invoices.DownloadPDF(ctx, "1"); return err },
		"report":          func() error { _, err := b.Reports.Download(ctx, "invoices", nil); return err },
		"import":          func() error { _, err := b.Imports.CSV(ctx, "customers", "c.csv", strings.NewReader("name\n"), nil); return err },
		"sales forecast":  func() error { _, err := b.Predictions.Sales(ctx, 3); return err },
		"demand forecast": func() error { _, err := b.Predictions.Demand(ctx, "", 3); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.ErrorIs(t, err, company.ErrNoCompany)
			require.ErrorIs(t, err, apperrors.ErrNoCompany)
		})
	}
	require.Zero(t, hits.Load())
}

func TestCompanies_RegisterPersistsContext(t *testing.T) {
	f := setupFixture(t)
	f.login(t)

	created := f.registerCompany(t)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "Acme", created.Name)

	id, err := f.companyCtx.RequireID()
	require.NoError(t, err)
	require.Equal(t, created.ID, id)

	current, err := f.billing.Companies.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, created.ID, current.ID)
	require.Equal(t, "billing@acme.test", current.Email)

	list, err := f.billing.Companies.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, created.ID, list[0].ID)
}

// readOnlyStorage refuses writes, like a full disk.
type readOnlyStorage struct {
	*memstore.MemStore
}

func (readOnlyStorage) Set(string, string) error { return errors.New("disk full") }

func TestCompanies_RegisterSurvivesStorageFailure(t *testing.T) {
	f := setupFixture(t)
	f.login(t)

	companyCtx := company.NewContext(config.Storage{}, readOnlyStorage{memstore.New()})
	b := billing.New(f.client, companyCtx)

	created, err := b.Companies.Register(context.Background(), &company.Company{Name: "Acme"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.True(t, companyCtx.Degraded())

	id, err := companyCtx.RequireID()
	require.NoError(t, err)
	require.Equal(t, created.ID, id)

	customers, err := b.Customers.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, customers)
}

func TestCompanies_RegisterRejectedLeavesContextEmpty(t *testing.T) {
	f := setupFixture(t)
	f.login(t)

	_, err := f.billing.Companies.Register(context.Background(), &company.Company{})
	require.EqualError(t, err, "company name is required")
	_, err = f.companyCtx.RequireID()
	require.ErrorIs(t, err, company.ErrNoCompany)
}

func TestCustomers_CRUD(t *testing.T) {
	f := setupFixture(t)
	f.login(t)
	f.registerCompany(t)
	ctx := context.Background()

	created, err := f.billing.Customers.Create(ctx, &billing.Customer{Name: "Globex", Email: "ap@globex.test"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := f.billing.Customers.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Globex", got.Name)

	got.Phone = "555-0100"
	updated, err := f.billing.Customers.Update(ctx, created.ID, got)
	require.NoError(t, err)
	require.Equal(t, "555-0100", updated.Phone)

	list, err := f.billing.Customers.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, f.billing.Customers.Delete(ctx, created.ID))
	list, err = f.billing.Customers.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)

	err = f.billing.Customers.Delete(ctx, created.ID)
	httpErr, ok := pipeline.AsHTTPError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, httpErr.Status)
}

func TestCustomers_ValidationErrorPassesThrough(t *testing.T) {
	f := setupFixture(t)
	f.login(t)
	f.registerCompany(t)

	_, err := f.billing.Customers.Create(context.Background(), &billing.Customer{})
	require.EqualError(t, err, "customer name is required")
	httpErr, ok := pipeline.AsHTTPError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, httpErr.Status)
	require.True(t, f.session.IsAuthenticated())
}

func TestInvoices_TotalsAndPDF(t *testing.T) {
	f := setupFixture(t)
	f.login(t)
	f.registerCompany(t)
	ctx := context.Background()

	customer, err := f.billing.Customers.Create(ctx, &billing.Customer{Name: "Globex"})
	require.NoError(t, err)
	item, err := f.billing.Items.Create(ctx, &billing.Item{
		Name:      "Widget",
		UnitPrice: decimal.RequireFromString("12.50"),
		TaxRate:   decimal.RequireFromString("0.2"),
	})
	require.NoError(t, err)

	inv, err := f.billing.Invoices.Create(ctx, &billing.Invoice{
		CustomerID: customer.ID,
		Lines: []billing.InvoiceLine{
			{ItemID: item.ID, Quantity: decimal.NewFromInt(2), UnitPrice: item.UnitPrice},
			{Description: "Delivery", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("5")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "INV-00001", inv.Number)
	require.Equal(t, billing.InvoiceDraft, inv.Status)
	require.True(t, decimal.RequireFromString("30").Equal(inv.Subtotal), inv.Subtotal.String())
	require.True(t, decimal.RequireFromString("5").Equal(inv.Tax), inv.Tax.String())
	require.True(t, decimal.RequireFromString("35").Equal(inv.Total), inv.Total.String())

	pdf, err := f.billing.Invoices.DownloadPDF(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, "application/pdf", pdf.ContentType)
	require.Equal(t, "invoice-INV-00001.pdf", pdf.Name)
	require.True(t, strings.HasPrefix(string(pdf.Data), "%PDF-"))
}

func TestReports_Download(t *testing.T) {
	f := setupFixture(t)
	f.login(t)
	f.registerCompany(t)
	ctx := context.Background()

	_, err := f.billing.Customers.Create(ctx, &billing.Customer{Name: "Globex", Email: "ap@globex.test"})
	require.NoError(t, err)

	report, err := f.billing.Reports.Download(ctx, "customers", url.Values{})
	require.NoError(t, err)
	require.Equal(t, "text/csv", report.ContentType)
	require.Equal(t, "customers.csv", report.Name)
	require.Contains(t, string(report.Data), "Globex,ap@globex.test")

	_, err = f.billing.Reports.Download(ctx, "unknown", nil)
	require.EqualError(t, err, "unknown report unknown")
}

func TestImports_CSV(t *testing.T) {
	f := setupFixture(t)
	f.login(t)
	f.registerCompany(t)
	ctx := context.Background()

	csv := "name,email\nGlobex,ap@globex.test\n,missing@name.test\nInitech,\n"
	result, err := f.billing.Imports.CSV(ctx, "customers", "customers.csv", strings.NewReader(csv), map[string]string{"source": "test"})
	require.NoError(t, err)
	require.Equal(t, 2, result.Imported)
	require.Equal(t, 1, result.Skipped)
	require.Len(t, result.Errors, 1)

	list, err := f.billing.Customers.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestPredictions(t *testing.T) {
	f := setupFixture(t)
	f.login(t)
	f.registerCompany(t)
	ctx := context.Background()

	customer, err := f.billing.Customers.Create(ctx, &billing.Customer{Name: "Globex"})
	require.NoError(t, err)
	for _, qty := range []int64{2, 4} {
		_, err := f.billing.Invoices.Create(ctx, &billing.Invoice{
			CustomerID: customer.ID,
			Lines:      []billing.InvoiceLine{{ItemID: "sku-1", Quantity: decimal.NewFromInt(qty), UnitPrice: decimal.NewFromInt(10)}},
		})
		require.NoError(t, err)
	}

	sales, err := f.billing.Predictions.Sales(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "sales", sales.Kind)
	require.Len(t, sales.Points, 2)
	require.True(t, decimal.NewFromInt(30).Equal(sales.Points[0].Value), sales.Points[0].Value.String())

	demand, err := f.billing.Predictions.Demand(ctx, "sku-1", 0)
	require.NoError(t, err)
	require.Equal(t, "sku-1", demand.ItemID)
	require.Len(t, demand.Points, 3)
	require.True(t, decimal.NewFromInt(3).Equal(demand.Points[0].Value))

	_, err = f.billing.Predictions.Sales(ctx, 100)
	httpErr, ok := pipeline.AsHTTPError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, httpErr.Status)
}

func TestExpiredTokenEndsSession(t *testing.T) {
	f := setupFixture(t)
	f.login(t)
	f.registerCompany(t)

	f.clock.advance(2 * time.Hour)

	_, err := f.billing.Customers.List(context.Background())
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)

	require.False(t, f.session.IsAuthenticated())
	_, _, ok := f.store.Load()
	require.False(t, ok)
	require.Equal(t, []string{"/login"}, f.routes)

	// The company context is not part of the session and survives.
	_, err = f.companyCtx.RequireID()
	require.NoError(t, err)
}
