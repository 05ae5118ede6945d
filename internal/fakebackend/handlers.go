package fakebackend

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-billing-client/billing"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	defaultHorizon = 3
	maxHorizon     = 24
	maxUploadBytes = 10 << 20
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("[fakebackend] failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeAuthError(w http.ResponseWriter, description string) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "error_description": description})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !readJSON(w, r, &req) {
			return
		}
		if err := validateCredentials(req.Email, req.Password); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		user, err := s.users.getByEmail(req.Email)
		if err != nil || !CheckPasswordHash(req.Password, user.PasswordHash) {
			writeError(w, http.StatusBadRequest, "invalid credentials")
			return
		}

		token, err := s.issuer.create(user)
		if err != nil {
			log.Err(err).Msg("[fakebackend Login] failed to create token")
			writeError(w, http.StatusInternalServerError, "could not issue token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":      token,
			"token_type": "Bearer",
			"expires_in": int64(s.issuer.ttl.Seconds()),
		})
	}
}

func (s *Server) CreateCompanyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c companyRecord
		if !readJSON(w, r, &c) {
			return
		}
		if strings.TrimSpace(c.Name) == "" {
			writeError(w, http.StatusBadRequest, "company name is required")
			return
		}
		c.OwnerID = userIDFrom(r.Context())
		writeJSON(w, http.StatusCreated, s.data.createCompany(&c))
	}
}

func (s *Server) ListCompaniesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companies := s.data.companiesOf(userIDFrom(r.Context()))
		if companies == nil {
			companies = []companyRecord{}
		}
		writeJSON(w, http.StatusOK, companies)
	}
}

func (s *Server) GetCompanyHandler() http.HandlerFunc {
	return s.withLedger(func(w http.ResponseWriter, r *http.Request, c *companyRecord, _ *ledger) {
		writeJSON(w, http.StatusOK, c)
	})
}

// withLedger resolves {cid} for the authenticated user; other users' companies are 404.
func (s *Server) withLedger(fn func(http.ResponseWriter, *http.Request, *companyRecord, *ledger)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok := s.data.withLedger(userIDFrom(r.Context()), r.PathValue("cid"), func(c *companyRecord, l *ledger) {
			fn(w, r, c, l)
		})
		if !ok {
			writeError(w, http.StatusNotFound, "company not found")
		}
	}
}

// collectionRoutes wires list/get/create/update/delete for one collection.
type collectionRoutes[T any] struct {
	pick     func(*ledger) *collection[T]
	validate func(*T) string
	prepare  func(l *ledger, rec, existing *T)
}

func registerCollection[T any](s *Server, name string, routes collectionRoutes[T]) {
	base := collectionPrefix + name
	item := base + "/{id}"

	s.registerAuthed("GET "+base, s.withLedger(func(w http.ResponseWriter, r *http.Request, _ *companyRecord, l *ledger) {
		writeJSON(w, http.StatusOK, routes.pick(l).list())
	}))

	s.registerAuthed("GET "+item, s.withLedger(func(w http.ResponseWriter, r *http.Request, _ *companyRecord, l *ledger) {
		rec, ok := routes.pick(l).get(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, name+" record not found")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}))

	s.registerAuthed("POST "+base, s.withLedger(func(w http.ResponseWriter, r *http.Request, _ *companyRecord, l *ledger) {
		rec := new(T)
		if !readJSON(w, r, rec) {
			return
		}
		if msg := routes.validate(rec); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		if routes.prepare != nil {
			routes.prepare(l, rec, nil)
		}
		writeJSON(w, http.StatusCreated, routes.pick(l).insert(rec))
	}))

	s.registerAuthed("PUT "+item, s.withLedger(func(w http.ResponseWriter, r *http.Request, _ *companyRecord, l *ledger) {
		rec := new(T)
		if !readJSON(w, r, rec) {
			return
		}
		if msg := routes.validate(rec); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		existing, ok := routes.pick(l).get(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, name+" record not found")
			return
		}
		if routes.prepare != nil {
			routes.prepare(l, rec, existing)
		}
		routes.pick(l).replace(r.PathValue("id"), rec)
		writeJSON(w, http.StatusOK, rec)
	}))

	s.registerAuthed("DELETE "+item, s.withLedger(func(w http.ResponseWriter, r *http.Request, _ *companyRecord, l *ledger) {
		if !routes.pick(l).remove(r.PathValue("id")) {
			writeError(w, http.StatusNotFound, name+" record not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
}

func (s *Server) InvoicePDFHandler() http.HandlerFunc {
	return s.withLedger(func(w http.ResponseWriter, r *http.Request, c *companyRecord, l *ledger) {
		inv, ok := l.invoices.get(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, "invoice not found")
			return
		}
		var body bytes.Buffer
		fmt.Fprintf(&body, "%%PDF-1.4\n%% %s invoice %s\n%% total %s\n%%%%EOF\n", c.Name, inv.Number, inv.Total.StringFixed(2))
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="invoice-%s.pdf"`, inv.Number))
		_, _ = w.Write(body.Bytes())
	})
}

func (s *Server) ReportHandler() http.HandlerFunc {
	return s.withLedger(func(w http.ResponseWriter, r *http.Request, _ *companyRecord, l *ledger) {
		kind := r.PathValue("kind")
		var rows [][]string
		switch kind {
		case "invoices":
			status := r.URL.Query().Get("status")
			rows = append(rows, []string{"number", "customer_id", "status", "total"})
			for _, inv := range l.invoices.list() {
				if status != "" && string(inv.Status) != status {
					continue
				}
				rows = append(rows, []string{inv.Number, inv.CustomerID, string(inv.Status), inv.Total.StringFixed(2)})
			}
		case "customers":
			rows = append(rows, []string{"id", "name", "email"})
			for _, c := range l.customers.list() {
				rows = append(rows, []string{c.ID, c.Name, c.Email})
			}
		default:
			writeError(w, http.StatusNotFound, "unknown report "+kind)
			return
		}

		var body bytes.Buffer
		cw := csv.NewWriter(&body)
		if err := cw.WriteAll(rows); err != nil {
			writeError(w, http.StatusInternalServerError, "could not render report")
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, kind))
		_, _ = w.Write(body.Bytes())
	})
}

func (s *Server) ImportHandler() http.HandlerFunc {
	return s.withLedger(func(w http.ResponseWriter, r *http.Request, _ *companyRecord, l *ledger) {
		kind := r.PathValue("kind")
		if kind != CollectionCustomers && kind != CollectionItems {
			writeError(w, http.StatusNotFound, "cannot import "+kind)
			return
		}
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "expected multipart/form-data")
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer file.Close()

		records, err := csv.NewReader(file).ReadAll()
		if err != nil || len(records) == 0 {
			writeError(w, http.StatusBadRequest, "file is not CSV")
			return
		}

		header := map[string]int{}
		for i, h := range records[0] {
			header[strings.ToLower(strings.TrimSpace(h))] = i
		}
		if _, ok := header["name"]; !ok {
			writeError(w, http.StatusBadRequest, "CSV header must include name")
			return
		}
		field := func(row []string, name string) string {
			if i, ok := header[name]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}

		var result billing.ImportResult
		for n, row := range records[1:] {
			name := field(row, "name")
			if name == "" {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("row %d: name is empty", n+2))
				continue
			}
			switch kind {
			case CollectionCustomers:
				l.customers.insert(&billing.Customer{Name: name, Email: field(row, "email"), Phone: field(row, "phone"), Address: field(row, "address"), TaxID: field(row, "tax_id")})
			case CollectionItems:
				price, err := decimal.NewFromString(field(row, "unit_price"))
				if err != nil {
					result.Skipped++
					result.Errors = append(result.Errors, fmt.Sprintf("row %d: invalid unit_price", n+2))
					continue
				}
				taxRate, _ := decimal.NewFromString(field(row, "tax_rate"))
				l.items.insert(&billing.Item{Name: name, SKU: field(row, "sku"), UnitPrice: price, TaxRate: taxRate})
			}
			result.Imported++
		}
		writeJSON(w, http.StatusOK, result)
	})
}

// SalesForecastHandler projects the mean invoice total forward with a flat ±20% band.
func (s *Server) SalesForecastHandler() http.HandlerFunc {
	return s.withLedger(func(w http.ResponseWriter, r *http.Request, _ *companyRecord, l *ledger) {
		horizon, ok := parseHorizon(w, r)
		if !ok {
			return
		}
		var totals []decimal.Decimal
		for _, inv := range l.invoices.list() {
			if inv.Status != billing.InvoiceVoid {
				totals = append(totals, inv.Total)
			}
		}
		writeJSON(w, http.StatusOK, flatForecast("sales", "", totals, horizon))
	})
}

// DemandForecastHandler projects the mean line quantity, optionally for one item.
func (s *Server) DemandForecastHandler() http.HandlerFunc {
	return s.withLedger(func(w http.ResponseWriter, r *http.Request, _ *companyRecord, l *ledger) {
		horizon, ok := parseHorizon(w, r)
		if !ok {
			return
		}
		itemID := r.URL.Query().Get("item_id")
		var quantities []decimal.Decimal
		for _, inv := range l.invoices.list() {
			for _, line := range inv.Lines {
				if itemID == "" || line.ItemID == itemID {
					quantities = append(quantities, line.Quantity)
				}
			}
		}
		writeJSON(w, http.StatusOK, flatForecast("demand", itemID, quantities, horizon))
	})
}

func parseHorizon(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("horizon")
	if raw == "" {
		return defaultHorizon, true
	}
	horizon, err := strconv.Atoi(raw)
	if err != nil || horizon < 1 || horizon > maxHorizon {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("horizon must be between 1 and %d", maxHorizon))
		return 0, false
	}
	return horizon, true
}

func flatForecast(kind, itemID string, history []decimal.Decimal, horizon int) billing.Forecast {
	mean := decimal.Zero
	if len(history) > 0 {
		mean = decimal.Sum(decimal.Zero, history...).Div(decimal.NewFromInt(int64(len(history)))).Round(2)
	}
	band := mean.Mul(decimal.RequireFromString("0.2")).Round(2)

	f := billing.Forecast{Kind: kind, ItemID: itemID, Points: make([]billing.ForecastPoint, 0, horizon)}
	for i := 1; i <= horizon; i++ {
		f.Points = append(f.Points, billing.ForecastPoint{
			Period: fmt.Sprintf("P+%d", i),
			Value:  mean,
			Lower:  mean.Sub(band),
			Upper:  mean.Add(band),
		})
	}
	return f
}
