// Package fakebackend is an in-process stand-in for the billing backend, used
// by tests and by `invoicectl serve-dev`. It signs real HS256 tokens so the
// client exercises the same bearer and 401 paths it sees in production.
package fakebackend

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-billing-client/billing"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultTokenTTL = time.Hour

type Server struct {
	mux    *http.ServeMux
	routes []string
	users  *userRepo
	issuer *issuer
	data   *dataStore
}

type Option func(*Server)

// WithSigningKey fixes the HS256 key; by default a random key is generated per server.
func WithSigningKey(key []byte) Option {
	return func(s *Server) {
		s.issuer.secret = key
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.issuer.ttl = ttl
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.issuer.now = now
	}
}

func New(options ...Option) (*Server, error) {
	s := &Server{
		mux:    http.NewServeMux(),
		users:  newUserRepo(),
		issuer: &issuer{ttl: defaultTokenTTL, now: time.Now},
		data:   newDataStore(),
	}
	for _, opt := range options {
		opt(s)
	}
	if len(s.issuer.secret) == 0 {
		s.issuer.secret = make([]byte, 32)
		if _, err := rand.Read(s.issuer.secret); err != nil {
			return nil, fmt.Errorf("[fakebackend New] failed to generate signing key: %w", err)
		}
	}
	s.initRoutes()
	return s, nil
}

// AddUser registers a login. Adding an existing email replaces its password.
func (s *Server) AddUser(email, password string) (*User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, errors.New("[fakebackend AddUser] email and password are required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "[fakebackend AddUser] failed to hash password")
	}
	user := &User{Email: email, PasswordHash: hash}
	if existing, err := s.users.getByEmail(email); err == nil {
		user.ID = existing.ID
	}
	s.users.upsert(user)
	return user, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) registerAuthed(pattern string, handler http.HandlerFunc) {
	s.RegisterRouteHandler(pattern, ChainMiddleware(handler, s.APIMiddleware(s.RequireAuth)...))
}

func (s *Server) initRoutes() {
	s.RegisterRouteHandler(RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))

	s.registerAuthed(RouteCompanyCreate, s.CreateCompanyHandler())
	s.registerAuthed(RouteCompanyList, s.ListCompaniesHandler())
	s.registerAuthed(RouteCompanyGet, s.GetCompanyHandler())

	registerCollection(s, CollectionCustomers, collectionRoutes[billing.Customer]{
		pick:     func(l *ledger) *collection[billing.Customer] { return l.customers },
		validate: func(c *billing.Customer) string { return required("customer name", c.Name) },
	})
	registerCollection(s, CollectionEmployees, collectionRoutes[billing.Employee]{
		pick:     func(l *ledger) *collection[billing.Employee] { return l.employees },
		validate: func(e *billing.Employee) string { return required("employee name", e.Name) },
	})
	registerCollection(s, CollectionItems, collectionRoutes[billing.Item]{
		pick: func(l *ledger) *collection[billing.Item] { return l.items },
		validate: func(i *billing.Item) string {
			if i.UnitPrice.IsNegative() {
				return "unit_price must not be negative"
			}
			return required("item name", i.Name)
		},
	})
	registerCollection(s, CollectionInvoices, collectionRoutes[billing.Invoice]{
		pick: func(l *ledger) *collection[billing.Invoice] { return l.invoices },
		validate: func(i *billing.Invoice) string {
			if len(i.Lines) == 0 {
				return "invoice needs at least one line"
			}
			return required("customer_id", i.CustomerID)
		},
		prepare: func(l *ledger, inv, existing *billing.Invoice) {
			if inv.Number == "" && existing != nil {
				inv.Number = existing.Number
			}
			if inv.Number == "" {
				l.nextNo++
				inv.Number = fmt.Sprintf("INV-%05d", l.nextNo)
			}
			l.price(inv)
		},
	})

	s.registerAuthed(RouteInvoicePDF, s.InvoicePDFHandler())
	s.registerAuthed(RouteReports, s.ReportHandler())
	s.registerAuthed(RouteImports, s.ImportHandler())
	s.registerAuthed(RouteSalesPred, s.SalesForecastHandler())
	s.registerAuthed(RouteDemandPred, s.DemandForecastHandler())
}

// LogRoutes prints the registered routes at debug level.
func (s *Server) LogRoutes() {
	for _, route := range s.routes {
		method, path, _ := strings.Cut(route, " ")
		log.Debug().Msgf("%-16s %s", colourMethod(method), path)
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}

	errs := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("dev backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- fmt.Errorf("server.ListenAndServe %w", err)
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func required(field, value string) string {
	if strings.TrimSpace(value) == "" {
		return field + " is required"
	}
	return ""
}
