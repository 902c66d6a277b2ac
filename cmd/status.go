package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"converge/internal/app"
	"converge/internal/cli"
	"converge/internal/config"
)

var (
	statusFlags    cli.CommandFlags
	statusEndpoint string
	statusTimeout  time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the reconciliation state of a running operator",
	Long: `Queries /statusz on a running operator's health address and lists every
primary resource its controllers know about, with the dispatch state, retry
count and last error.

Exits with code 3 when the operator cannot be reached.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	printer, err := cli.NewPrinter(&statusFlags, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	report, err := fetchStatus(ctx, statusEndpoint, statusTimeout)
	if err != nil {
		return err
	}

	table := cli.NewTable(
		cli.Column{Name: "Controller"},
		cli.Column{Name: "Resource"},
		cli.Column{Name: "State"},
		cli.Column{Name: "Retries"},
		cli.Column{Name: "Reconciles"},
		cli.Column{Name: "Last Reconcile", Wide: true},
		cli.Column{Name: "Next Attempt", Wide: true},
		cli.Column{Name: "Last Error"},
	)
	for _, c := range report.Controllers {
		for _, s := range c.Resources {
			table.AppendRow(
				c.Name,
				s.ID.String(),
				string(s.State),
				strconv.Itoa(s.RetryCount),
				strconv.Itoa(s.Reconciles),
				formatTime(s.LastReconcileTime),
				formatTime(s.NextAttempt),
				cli.TruncateMessage(s.LastError, cli.MessageMaxLen),
			)
		}
	}
	if !report.Running {
		fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatWarning("controllers are not running"))
	}
	return printer.Print(report, table)
}

// fetchStatus reads the status report served by a running operator.
func fetchStatus(ctx context.Context, endpoint string, timeout time.Duration) (*app.StatusReport, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimSuffix(endpoint, "/") + "/statusz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, &UnavailableError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UnavailableError{Endpoint: endpoint, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	var report app.StatusReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode status report: %w", err)
	}
	return &report, nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

func init() {
	rootCmd.AddCommand(statusCmd)
	cli.RegisterOutputFlags(statusCmd, &statusFlags)
	statusCmd.Flags().StringVar(&statusEndpoint, "endpoint", "http://localhost"+config.DefaultHealthAddr, "Health address of the running operator")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 5*time.Second, "Request timeout")
}
