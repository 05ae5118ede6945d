package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/jrsteele09/go-billing-client/billing"
	"github.com/jrsteele09/go-billing-client/company"
	"github.com/jrsteele09/go-billing-client/internal/config"
	apperrors "github.com/jrsteele09/go-billing-client/internal/errors"
	"github.com/jrsteele09/go-billing-client/internal/fakebackend"
	"github.com/jrsteele09/go-billing-client/pipeline"
	"github.com/spf13/cobra"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

// cli builds the app lazily so commands that never talk to the backend do not open storage.
type cli struct {
	cfg     config.Config
	options []pipeline.Option
	app     *app
}

func (c *cli) load(cmd *cobra.Command) (*app, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := newApp(cmd.Context(), c.cfg, cmd.ErrOrStderr(), c.options...)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

// loggedIn loads the app and fails early when there is no session to send.
func (c *cli) loggedIn(cmd *cobra.Command) (*app, error) {
	a, err := c.load(cmd)
	if err != nil {
		return nil, err
	}
	if !a.session.IsAuthenticated() {
		return nil, apperrors.Wrapf(apperrors.ErrNotAuthenticated, "run `%s login` first", c.cfg.GetAppName())
	}
	return a, nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

// newRootCmd returns the command tree and a function releasing whatever the commands opened.
func newRootCmd(cfg config.Config, options ...pipeline.Option) (*cobra.Command, func() error) {
	c := &cli{cfg: cfg, options: options}

	root := &cobra.Command{
		Use:           cfg.GetAppName(),
		Short:         "Command line client for the billing backend",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			displayAppname(cfg.GetAppName())
			return cmd.Help()
		},
	}

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.statusCmd(),
		c.companyCmd(),
		c.customersCmd(),
		c.invoicesCmd(),
		c.importCmd(),
		c.forecastCmd(),
		c.serveDevCmd(),
	)
	return root, c.close
}

func (c *cli) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			in := bufio.NewReader(cmd.InOrStdin())
			if email == "" {
				if email, err = prompt(cmd, in, "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = prompt(cmd, in, "Password: "); err != nil {
					return err
				}
			}

			claims, err := a.session.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			okColor.Fprintf(out, "Logged in as %s\n", displayName(claims.Email, claims.UserID))
			if a.session.ExpiresSoon(c.cfg.GetExpiryWarning()) {
				warnColor.Fprintf(out, "Session expires at %s\n", claims.ExpiresAt.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			a.session.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session and company context",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.store.Degraded() {
				warnColor.Fprintf(out, "Storage unavailable, session kept in memory only: %v\n", a.store.LastError())
			}

			if !a.session.IsAuthenticated() {
				fmt.Fprintln(out, "Not logged in")
			} else {
				claims := a.session.Claims()
				okColor.Fprintf(out, "Logged in as %s\n", displayName(claims.Email, claims.UserID))
				if claims.ExpiresAt != nil {
					line := fmt.Sprintf("Expires %s", claims.ExpiresAt.Local().Format(time.RFC1123))
					if a.session.ExpiresSoon(c.cfg.GetExpiryWarning()) {
						warnColor.Fprintln(out, line)
					} else {
						dimColor.Fprintln(out, line)
					}
				}
			}

			current, err := a.companyCtx.Load()
			if err != nil {
				return err
			}
			if a.companyCtx.Degraded() {
				warnColor.Fprintf(out, "Storage unavailable, company kept in memory only: %v\n", a.companyCtx.LastError())
			}
			if current == nil {
				fmt.Fprintln(out, "No company registered")
				return nil
			}
			fmt.Fprintf(out, "Company %s (%s)\n", current.Name, current.ID)
			return nil
		},
	}
}

func (c *cli) companyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "company",
		Short: "Manage the company context",
	}

	var in company.Company
	register := &cobra.Command{
		Use:   "register",
		Short: "Create the company on the backend and make it the active context",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.loggedIn(cmd)
			if err != nil {
				return err
			}
			created, err := a.billing.Companies.Register(cmd.Context(), &in)
			if err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Registered %s (%s)\n", created.Name, created.ID)
			return nil
		},
	}
	register.Flags().StringVar(&in.Name, "name", "", "company name")
	register.Flags().StringVar(&in.Email, "email", "", "billing email")
	register.Flags().StringVar(&in.Phone, "phone", "", "phone number")
	register.Flags().StringVar(&in.Address, "address", "", "postal address")
	register.Flags().StringVar(&in.TaxID, "tax-id", "", "tax identifier")
	_ = register.MarkFlagRequired("name")

	var remote bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the active company",
		RunE: func(cmd *cobra.Command, args []string) error {
			var current *company.Company
			if remote {
				a, err := c.loggedIn(cmd)
				if err != nil {
					return err
				}
				if current, err = a.billing.Companies.Current(cmd.Context()); err != nil {
					return err
				}
			} else {
				a, err := c.load(cmd)
				if err != nil {
					return err
				}
				if current, err = a.companyCtx.Load(); err != nil {
					return err
				}
				if current == nil {
					return company.ErrNoCompany
				}
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "ID\t%s\nName\t%s\nEmail\t%s\nPhone\t%s\nAddress\t%s\nTax ID\t%s\n",
				current.ID, current.Name, current.Email, current.Phone, current.Address, current.TaxID)
			return w.Flush()
		},
	}
	show.Flags().BoolVar(&remote, "remote", false, "fetch from the backend instead of the local context")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the active company locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			if err := a.companyCtx.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Company context cleared")
			return nil
		},
	}

	cmd.AddCommand(register, show, clearCmd)
	return cmd
}

func (c *cli) customersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "customers", Short: "Customer records"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List customers of the active company",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.loggedIn(cmd)
			if err != nil {
				return err
			}
			customers, err := a.billing.Customers.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL\tPHONE")
			for _, cu := range customers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cu.ID, cu.Name, cu.Email, cu.Phone)
			}
			return w.Flush()
		},
	})
	return cmd
}

func (c *cli) invoicesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "invoices", Short: "Invoices"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List invoices of the active company",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.loggedIn(cmd)
			if err != nil {
				return err
			}
			invoices, err := a.billing.Invoices.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(w, "NUMBER\tSTATUS\tCUSTOMER\tTOTAL\t")
			for _, inv := range invoices {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", inv.Number, inv.Status, inv.CustomerID, inv.Total.StringFixed(2))
			}
			return w.Flush()
		},
	})

	var output string
	download := &cobra.Command{
		Use:   "download <invoice-id>",
		Short: "Save an invoice PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.loggedIn(cmd)
			if err != nil {
				return err
			}
			file, err := a.billing.Invoices.DownloadPDF(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return saveFile(cmd, file, output)
		},
	}
	download.Flags().StringVarP(&output, "output", "o", "", "destination path (defaults to the server's file name)")
	cmd.AddCommand(download)
	return cmd
}

func (c *cli) importCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "import", Short: "Bulk imports"}
	cmd.AddCommand(&cobra.Command{
		Use:   "csv <customers|items> <file>",
		Short: "Upload a CSV file for the backend to import",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, path := args[0], args[1]
			if kind != "customers" && kind != "items" {
				return apperrors.Wrapf(apperrors.ErrUnsupported, "cannot import %q", kind)
			}
			a, err := c.loggedIn(cmd)
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := a.billing.Imports.CSV(cmd.Context(), kind, filepath.Base(path), f, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			okColor.Fprintf(out, "Imported %d, skipped %d\n", result.Imported, result.Skipped)
			for _, e := range result.Errors {
				warnColor.Fprintln(out, "  "+e)
			}
			return nil
		},
	})
	return cmd
}

func (c *cli) forecastCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "forecast", Short: "Backend sales and demand forecasts"}

	var horizon int
	sales := &cobra.Command{
		Use:   "sales",
		Short: "Forecast invoiced sales",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.loggedIn(cmd)
			if err != nil {
				return err
			}
			f, err := a.billing.Predictions.Sales(cmd.Context(), horizon)
			if err != nil {
				return err
			}
			return printForecast(cmd.OutOrStdout(), f)
		},
	}
	sales.Flags().IntVar(&horizon, "horizon", 0, "periods to forecast (backend default when 0)")

	var item string
	var demandHorizon int
	demand := &cobra.Command{
		Use:   "demand",
		Short: "Forecast item demand",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.loggedIn(cmd)
			if err != nil {
				return err
			}
			f, err := a.billing.Predictions.Demand(cmd.Context(), item, demandHorizon)
			if err != nil {
				return err
			}
			return printForecast(cmd.OutOrStdout(), f)
		},
	}
	demand.Flags().StringVar(&item, "item", "", "restrict to one item id")
	demand.Flags().IntVar(&demandHorizon, "horizon", 0, "periods to forecast (backend default when 0)")

	cmd.AddCommand(sales, demand)
	return cmd
}

func (c *cli) serveDevCmd() *cobra.Command {
	var addr, email, password string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "serve-dev",
		Short: "Run the in-process development backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			displayAppname(c.cfg.GetAppName())
			backend, err := fakebackend.New(fakebackend.WithTokenTTL(ttl))
			if err != nil {
				return err
			}
			if _, err := backend.AddUser(email, password); err != nil {
				return err
			}
			backend.LogRoutes()
			fmt.Fprintf(cmd.OutOrStdout(), "Dev backend on %s, login with %s\n", addr, email)
			return backend.ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", c.cfg.GetDevListenAddr(), "listen address")
	cmd.Flags().StringVar(&email, "email", "demo@example.com", "seeded user email")
	cmd.Flags().StringVar(&password, "password", "demo-password", "seeded user password")
	cmd.Flags().DurationVar(&ttl, "token-ttl", time.Hour, "lifetime of issued tokens")
	return cmd
}

func prompt(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(label, ": "), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func displayName(email, userID string) string {
	if email == "" {
		return "user " + userID
	}
	return fmt.Sprintf("%s (user %s)", email, userID)
}

func saveFile(cmd *cobra.Command, file *billing.File, output string) error {
	if output == "" {
		output = filepath.Base(file.Name)
	}
	if err := os.WriteFile(output, file.Data, 0o644); err != nil {
		return err
	}
	okColor.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes)\n", output, len(file.Data))
	return nil
}

func printForecast(out io.Writer, f *billing.Forecast) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "PERIOD\tVALUE\tLOW\tHIGH\t")
	for _, p := range f.Points {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", p.Period, p.Value.StringFixed(2), p.Lower.StringFixed(2), p.Upper.StringFixed(2))
	}
	return w.Flush()
}
