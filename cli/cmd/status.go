package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sandbox and escrow status",
	Long:  `Display the sandbox root, escrow record location and presence, storage backend and memory protection level. Never shows key material.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output in JSON format")
}

func runStatus(cmd *cobra.Command, args []string) error {
	engine, err := newEngine(nil)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	status, err := engine.Status()
	if err != nil {
		return err
	}

	if statusJSON {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Sandbox root:\t%s\n", status.SandboxRoot)
	fmt.Fprintf(w, "Escrow path:\t%s\n", status.EscrowPath)
	fmt.Fprintf(w, "Escrow present:\t%v\n", status.EscrowPresent)
	if status.EscrowChecksum != "" {
		fmt.Fprintf(w, "Escrow checksum:\t%s\n", status.EscrowChecksum)
	}
	fmt.Fprintf(w, "Store type:\t%s\n", status.StoreType)
	fmt.Fprintf(w, "Memory protection:\t%s\n", status.MemoryProtection)
	return w.Flush()
}
