package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run the self-test harness",
	Long: `Exercise the full stack against a throwaway sandbox: encrypt/decrypt
round trips, tamper detection, sandbox containment and escrow behavior.
Exits non-zero if any check fails. The real sandbox and escrow record are
not touched.`,
	Args: cobra.NoArgs,
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	engine, err := newEngine(nil)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	report, err := engine.SelfTest()
	if err != nil {
		return err
	}

	for _, check := range report.Checks {
		if check.Passed {
			color.Green("  ✓ %s", check.Name)
		} else {
			color.Red("  ✗ %s: %s", check.Name, check.Detail)
		}
	}

	fmt.Printf("Passed: %d, Failed: %d\n", report.Passed, report.Failed)

	if !report.OK() {
		return fmt.Errorf("%d self-test check(s) failed", report.Failed)
	}
	color.Green("[OK] All self-test checks passed.")
	return nil
}
