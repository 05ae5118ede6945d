package fakebackend_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-billing-client/internal/fakebackend"
	"github.com/jrsteele09/go-billing-client/token"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server *fakebackend.Server
	now    time.Time
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Unix(1_700_000_000, 0)}
	s, err := fakebackend.New(
		fakebackend.WithSigningKey([]byte("test-signing-key")),
		fakebackend.WithTokenTTL(time.Hour),
		fakebackend.WithNowFunc(func() time.Time { return f.now }),
	)
	require.NoError(t, err)
	_, err = s.AddUser("A@B.com", "secret")
	require.NoError(t, err)
	f.server = s
	return f
}

func (f *fixture) do(method, path, bearer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := f.do(http.MethodPost, "/auth/login", "", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Token
}

func TestLogin(t *testing.T) {
	f := setupFixture(t)
	raw := f.login(t, "a@b.com", "secret")

	claims, err := token.Decode(raw)
	require.NoError(t, err)
	require.NotEmpty(t, claims.UserID)
	require.Equal(t, "a@b.com", claims.Email)
	require.Equal(t, f.now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	require.NotEmpty(t, claims.Raw["jti"])
}

func TestLogin_Rejections(t *testing.T) {
	f := setupFixture(t)
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"wrong password", `{"email":"a@b.com","password":"nope"}`, "invalid credentials"},
		{"unknown user", `{"email":"x@b.com","password":"secret"}`, "invalid credentials"},
		{"missing password", `{"email":"a@b.com"}`, "email and password are required"},
		{"bad email", `{"email":"ab","password":"secret"}`, "invalid email format"},
		{"not json", `email=a@b.com`, "invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/auth/login", "", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.JSONEq(t, `{"message":"`+tt.message+`"}`, rec.Body.String())
		})
	}
}

func TestAddUser_ReplacesPassword(t *testing.T) {
	f := setupFixture(t)
	first := f.login(t, "a@b.com", "secret")

	_, err := f.server.AddUser("a@b.com", "changed")
	require.NoError(t, err)

	rec := f.do(http.MethodPost, "/auth/login", "", `{"email":"a@b.com","password":"secret"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	second := f.login(t, "a@b.com", "changed")
	c1, err := token.Decode(first)
	require.NoError(t, err)
	c2, err := token.Decode(second)
	require.NoError(t, err)
	require.Equal(t, c1.UserID, c2.UserID)

	_, err = f.server.AddUser("", "x")
	require.Error(t, err)
}

func TestRequireAuth(t *testing.T) {
	f := setupFixture(t)
	valid := f.login(t, "a@b.com", "secret")

	forged, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"user_id": "someone", "exp": f.now.Add(time.Hour).Unix(),
	}).SignedString([]byte("other-key"))
	require.NoError(t, err)
	unsigned, err := token.Encode(jwtlib.MapClaims{"user_id": "someone", "exp": f.now.Add(time.Hour).Unix()})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"basic scheme", "Basic abc"},
		{"empty bearer", "Bearer "},
		{"forged signature", "Bearer " + forged},
		{"alg none", "Bearer " + unsigned},
		{"garbage", "Bearer not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/companies", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			f.server.ServeHTTP(rec, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Contains(t, rec.Body.String(), `"error":"unauthorized"`)
		})
	}

	rec := f.do(http.MethodGet, "/companies", valid, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	f.now = f.now.Add(2 * time.Hour)
	rec = f.do(http.MethodGet, "/companies", valid, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCompaniesAreScopedToOwner(t *testing.T) {
	f := setupFixture(t)
	_, err := f.server.AddUser("c@d.com", "secret")
	require.NoError(t, err)
	owner := f.login(t, "a@b.com", "secret")
	other := f.login(t, "c@d.com", "secret")

	rec := f.do(http.MethodPost, "/companies", owner, `{"name":"Acme"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = f.do(http.MethodGet, "/companies/"+created.ID+"/customers", owner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(http.MethodGet, "/companies/"+created.ID+"/customers", other, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"message":"company not found"}`, rec.Body.String())
}

func TestInvoiceUpdateKeepsNumber(t *testing.T) {
	f := setupFixture(t)
	owner := f.login(t, "a@b.com", "secret")
	rec := f.do(http.MethodPost, "/companies", owner, `{"name":"Acme"}`)
	var c struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))

	invoices := "/companies/" + c.ID + "/invoices"
	rec = f.do(http.MethodPost, invoices, owner, `{"customer_id":"c1","lines":[{"quantity":"1","unit_price":"9.99"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var inv struct {
		ID     string `json:"id"`
		Number string `json:"number"`
		Total  string `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	require.Equal(t, "INV-00001", inv.Number)
	require.Equal(t, "9.99", inv.Total)

	rec = f.do(http.MethodPut, invoices+"/"+inv.ID, owner, `{"customer_id":"c1","lines":[{"quantity":"2","unit_price":"9.99"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	require.Equal(t, "INV-00001", inv.Number)
	require.Equal(t, "19.98", inv.Total)

	rec = f.do(http.MethodPost, invoices, owner, `{"customer_id":"c1","lines":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHashPassword(t *testing.T) {
	hash, err := fakebackend.HashPassword("secret")
	require.NoError(t, err)
	require.NotEqual(t, "secret", hash)
	require.True(t, fakebackend.CheckPasswordHash("secret", hash))
	require.False(t, fakebackend.CheckPasswordHash("Secret", hash))
}
