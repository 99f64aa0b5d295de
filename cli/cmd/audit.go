package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/UriL0x/crypto-proyecto/audit"
)

var (
	auditLimit    int
	auditAction   string
	auditFailures bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit log",
	Long:  `List recent audit events from the configured file-based audit log, newest first.`,
	Args:  cobra.NoArgs,
	RunE:  runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "maximum number of events to show")
	auditCmd.Flags().StringVar(&auditAction, "action", "", "filter by action name")
	auditCmd.Flags().BoolVar(&auditFailures, "failures", false, "show only failed operations")
}

func runAudit(cmd *cobra.Command, args []string) error {
	if auditLogger == nil {
		return fmt.Errorf("audit logging is not enabled")
	}

	options := audit.QueryOptions{
		Limit:  auditLimit,
		Action: auditAction,
	}
	if auditFailures {
		failed := false
		options.Success = &failed
	}

	result, err := auditLogger.Query(options)
	if err != nil {
		return err
	}

	if len(result.Events) == 0 {
		fmt.Println("No audit events found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tACTION\tOK\tDETAIL")
	for _, event := range result.Events {
		detail := event.Error
		if detail == "" {
			detail = event.Path
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\n",
			event.Timestamp.Format(time.RFC3339), event.Action, event.Success, detail)
	}
	if err = w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nShowing %d of %d matching events.\n", len(result.Events), result.Filtered)
	return nil
}
