package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/microloan/internal/adapter/http/dto"
	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/infrastructure/auth"
	"github.com/iho/microloan/internal/infrastructure/config"
	"github.com/iho/microloan/internal/infrastructure/postgres"
)

var (
	baseURL  string
	apiToken string
	timeout  time.Duration
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "microloan",
		Short:         "Microloan CLI tool",
		Long:          `A command line interface for quoting loans and operating the microloan API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the microloan API")
	root.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("MICROLOAN_TOKEN"), "Bearer token for the API")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	loanCmd := &cobra.Command{Use: "loan", Short: "Loan operations"}
	loanCmd.AddCommand(getLoanCmd(), reconcileCmd())

	overdueCmd := &cobra.Command{Use: "overdue", Short: "Overdue sweep"}
	overdueCmd.AddCommand(refreshCmd())

	root.AddCommand(quoteCmd(), scheduleCmd(), loanCmd, overdueCmd, tokenCmd(), migrateCmd())
	return root
}

type termFlags struct {
	principal string
	rate      string
	terms     int
	frequency string
	fees      string
	start     string
}

func (f *termFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.principal, "principal", "", "Principal amount")
	cmd.Flags().StringVar(&f.rate, "rate", "", "Interest rate in percent")
	cmd.Flags().IntVar(&f.terms, "terms", 4, "Number of installments")
	cmd.Flags().StringVar(&f.frequency, "frequency", string(domain.FrequencyWeekly), "weekly, biweekly or monthly")
	cmd.Flags().StringVar(&f.fees, "fees", "", "Other fees as a fraction of principal (default 0.01)")
	cmd.Flags().StringVar(&f.start, "start", "", "Start date, YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("principal")
	_ = cmd.MarkFlagRequired("rate")
}

func (f *termFlags) toTerms() (domain.Terms, error) {
	principal, err := decimal.NewFromString(f.principal)
	if err != nil {
		return domain.Terms{}, fmt.Errorf("invalid principal %q", f.principal)
	}
	rate, err := decimal.NewFromString(f.rate)
	if err != nil {
		return domain.Terms{}, fmt.Errorf("invalid rate %q", f.rate)
	}
	fees := domain.DefaultOtherFeeRate
	if f.fees != "" {
		if fees, err = decimal.NewFromString(f.fees); err != nil {
			return domain.Terms{}, fmt.Errorf("invalid fees %q", f.fees)
		}
	}
	start := domain.DateOf(time.Now())
	if f.start != "" {
		if start, err = time.Parse(dto.DateLayout, f.start); err != nil {
			return domain.Terms{}, fmt.Errorf("invalid start date %q", f.start)
		}
	}
	return domain.Terms{
		Principal:     principal,
		InterestRate:  rate,
		TermCount:     f.terms,
		Frequency:     domain.Frequency(strings.ToLower(f.frequency)),
		OtherFeesRate: fees,
		StartDate:     start,
	}, nil
}

func quoteCmd() *cobra.Command {
	var flags termFlags
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Compute loan totals locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := flags.toTerms()
			if err != nil {
				return err
			}
			q, err := domain.ComputeTerms(t)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.QuoteFromDomain(q))
		},
	}
	flags.register(cmd)
	return cmd
}

func scheduleCmd() *cobra.Command {
	var flags termFlags
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the installment plan for a loan",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := flags.toTerms()
			if err != nil {
				return err
			}
			installments, q, err := domain.BuildSchedule(t, t.StartDate, domain.NoLateFee)
			if err != nil {
				return err
			}
			return printSchedule(cmd.OutOrStdout(), installments, q)
		},
	}
	flags.register(cmd)
	return cmd
}

func printSchedule(w io.Writer, installments []domain.Installment, q domain.Quote) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tdue\tprincipal\tinterest\tother\tamount\t")
	for _, in := range installments {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t\n",
			in.Number, in.DueDate.Format(dto.DateLayout),
			in.PrincipalPortion.StringFixed(2), in.InterestPortion.StringFixed(2),
			in.OtherPortion.StringFixed(2), in.Amount.StringFixed(2))
	}
	fmt.Fprintf(tw, "\ttotal\t\t%s\t%s\t%s\t\n", q.Interest.StringFixed(2), q.OtherFees.StringFixed(2), q.TotalPayable.StringFixed(2))
	return tw.Flush()
}

func getLoanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <loan-id>",
		Short: "Show a loan and its installments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var book dto.LoanBookResponse
			if err := apiCall(http.MethodGet, "/api/v1/loans/"+args[0], &book); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  client=%s  version=%d  outstanding=%s\n",
				book.ID, book.Status, truncate(book.ClientID, 20), book.Version, book.Outstanding.StringFixed(2))
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tdue\tstatus\tdue_amount\tmora\tpaid\tnotes")
			for _, in := range book.Installments {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", in.Number, in.DueDate, in.Status,
					in.AmountDue.StringFixed(2), in.MoraAmount.StringFixed(2), in.AmountPaid.StringFixed(2), truncate(in.Observations, 30))
			}
			return tw.Flush()
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [loan-id]",
		Short: "Check stored loans against the ledger invariants",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				var result dto.ReconciliationResponse
				if err := apiCall(http.MethodGet, "/api/v1/loans/"+args[0]+"/reconciliation", &result); err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				if !result.IsReconciled {
					return fmt.Errorf("loan %s has %d discrepancies", result.LoanID, len(result.Discrepancies))
				}
				return nil
			}

			var report dto.ReconciliationReportResponse
			if err := apiCall(http.MethodGet, "/api/v1/reconciliation", &report); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reconciled %d of %d loans\n", report.ReconciledLoans, report.TotalLoans)
			for _, d := range report.Discrepancies {
				for _, issue := range d.Discrepancies {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s #%d %s: %s\n", d.LoanID, issue.InstallmentNumber, issue.Rule, issue.Detail)
				}
			}
			if len(report.Discrepancies) > 0 {
				return fmt.Errorf("reconciliation FAILED")
			}
			return nil
		},
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run the overdue sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result dto.SweepResponse
			if err := apiCall(http.MethodPost, "/api/v1/overdue/refresh", &result); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			token, err := auth.NewJWTManager(secret, ttl).Generate(&domain.User{
				ID:    userID,
				Email: email,
				Role:  domain.Role(role),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Operator id, recorded on every operation")
	cmd.Flags().StringVar(&email, "email", "", "Operator email")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleAdvisor), "admin, advisor, auditor or client")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Database migrations"}

	migrator := func() (*postgres.Migrator, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		return postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, log), nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := migrator()
				if err != nil {
					return err
				}
				return m.Up()
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := migrator()
				if err != nil {
					return err
				}
				return m.Down()
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := migrator()
				if err != nil {
					return err
				}
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%v\n", v, dirty)
				return nil
			},
		},
	)
	return cmd
}

// apiCall performs a request against the API and decodes a 2xx JSON body
// into out.
func apiCall(method, path string, out any) error {
	req, err := http.NewRequest(method, strings.TrimRight(baseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	if apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+apiToken)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr dto.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d): %s", apiErr.Error, resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return json.Unmarshal(body, out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
