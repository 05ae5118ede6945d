package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/jrsteele09/go-billing-client/internal/config"
	apperrors "github.com/jrsteele09/go-billing-client/internal/errors"
	"github.com/jrsteele09/go-billing-client/internal/fakebackend"
	"github.com/jrsteele09/go-billing-client/pipeline"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server *httptest.Server
	cfg    config.Config
	now    time.Time
	lock   sync.Mutex
}

func (f *fixture) clock() time.Time {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.now = f.now.Add(d)
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	color.NoColor = true
	f := &fixture{now: time.Now()}

	backend, err := fakebackend.New(fakebackend.WithNowFunc(f.clock), fakebackend.WithTokenTTL(time.Hour))
	require.NoError(t, err)
	_, err = backend.AddUser("a@b.com", "secret")
	require.NoError(t, err)
	f.server = httptest.NewServer(backend)
	t.Cleanup(f.server.Close)

	t.Setenv("API_BASE_URL", f.server.URL)
	t.Setenv("STORAGE_BACKEND", "file")
	t.Setenv("FOLDER", t.TempDir())
	t.Setenv("APP_NAME", "invoicectl")
	t.Setenv("SESSION_EXPIRY_WARNING", "1m")
	f.cfg = config.New()
	return f
}

// run executes one command as a fresh process would: new app, state only on disk.
func (f *fixture) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root, closeApp := newRootCmd(f.cfg, pipeline.WithHTTPClient(f.server.Client()))
	var stdout, stderr bytes.Buffer
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	require.NoError(t, closeApp())
	return stdout.String(), stderr.String(), err
}

func TestLoginStatusLogout(t *testing.T) {
	f := setupFixture(t)

	out, _, err := f.run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "Not logged in")

	out, _, err = f.run(t, "", "login", "--email", "a@b.com", "--password", "secret")
	require.NoError(t, err)
	require.Contains(t, out, "Logged in as a@b.com")

	out, _, err = f.run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "Logged in as a@b.com")
	require.Contains(t, out, "No company registered")

	for i := 0; i < 2; i++ {
		out, _, err = f.run(t, "", "logout")
		require.NoError(t, err)
		require.Contains(t, out, "Logged out")
	}

	out, _, err = f.run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "Not logged in")
}

func TestLogin_Prompted(t *testing.T) {
	f := setupFixture(t)

	out, stderr, err := f.run(t, "a@b.com\nsecret\n", "login")
	require.NoError(t, err)
	require.Contains(t, stderr, "Email: ")
	require.Contains(t, stderr, "Password: ")
	require.Contains(t, out, "Logged in as a@b.com")
}

func TestLogin_Rejected(t *testing.T) {
	f := setupFixture(t)

	_, _, err := f.run(t, "", "login", "--email", "a@b.com", "--password", "wrong")
	require.EqualError(t, err, "invalid credentials")

	out, _, err := f.run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "Not logged in")
}

func TestCompanyScopedCommandsRequireLogin(t *testing.T) {
	f := setupFixture(t)

	_, _, err := f.run(t, "", "customers", "list")
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
}

func TestCompanyWorkflow(t *testing.T) {
	f := setupFixture(t)
	_, _, err := f.run(t, "", "login", "--email", "a@b.com", "--password", "secret")
	require.NoError(t, err)

	_, _, err = f.run(t, "", "customers", "list")
	require.ErrorIs(t, err, apperrors.ErrNoCompany)

	out, _, err := f.run(t, "", "company", "register", "--name", "Acme", "--email", "billing@acme.test")
	require.NoError(t, err)
	require.Contains(t, out, "Registered Acme")

	out, _, err = f.run(t, "", "company", "show")
	require.NoError(t, err)
	require.Contains(t, out, "billing@acme.test")

	out, _, err = f.run(t, "", "company", "show", "--remote")
	require.NoError(t, err)
	require.Contains(t, out, "Acme")

	csvPath := filepath.Join(t.TempDir(), "customers.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("name,email\nGlobex,ap@globex.test\n"), 0o600))
	out, _, err = f.run(t, "", "import", "csv", "customers", csvPath)
	require.NoError(t, err)
	require.Contains(t, out, "Imported 1, skipped 0")

	_, _, err = f.run(t, "", "import", "csv", "invoices", csvPath)
	require.ErrorIs(t, err, apperrors.ErrUnsupported)

	out, _, err = f.run(t, "", "customers", "list")
	require.NoError(t, err)
	require.Contains(t, out, "Globex")

	out, _, err = f.run(t, "", "invoices", "list")
	require.NoError(t, err)
	require.Contains(t, out, "NUMBER")

	out, _, err = f.run(t, "", "forecast", "sales", "--horizon", "2")
	require.NoError(t, err)
	require.Contains(t, out, "P+2")

	out, _, err = f.run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "Company Acme")

	out, _, err = f.run(t, "", "company", "clear")
	require.NoError(t, err)
	require.Contains(t, out, "Company context cleared")
	_, _, err = f.run(t, "", "company", "show")
	require.ErrorIs(t, err, apperrors.ErrNoCompany)
}

func TestExpiredSessionIsCleared(t *testing.T) {
	f := setupFixture(t)
	_, _, err := f.run(t, "", "login", "--email", "a@b.com", "--password", "secret")
	require.NoError(t, err)
	_, _, err = f.run(t, "", "company", "register", "--name", "Acme")
	require.NoError(t, err)

	// The backend's clock moves past exp while the client still believes the
	// token is valid; the 401 must end the session.
	f.advance(2 * time.Hour)

	_, stderr, err := f.run(t, "", "customers", "list")
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
	require.Contains(t, stderr, "Run `invoicectl login`")

	out, _, err := f.run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "Not logged in")
	require.Contains(t, out, "Company Acme")
}
