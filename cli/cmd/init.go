package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cifra "github.com/UriL0x/crypto-proyecto"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the escrow record and sandbox layout",
	Long: `Generate a fresh master key, encrypt it under a key derived from the
recovery passphrase, and persist it as the escrow record. Refuses to
overwrite an existing record unless --force is given; a forced re-init
makes everything encrypted under the old key permanently unreadable.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&forceInit, "force", false, "replace an existing escrow record (destroys access to old data)")
}

func runInit(cmd *cobra.Command, args []string) error {
	passphrase, err := cifra.ResolvePassphrase("", true)
	if err != nil {
		return err
	}

	engine, err := newEngine(passphrase)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	if err = engine.Initialize(forceInit); err != nil {
		return err
	}

	status, err := engine.Status()
	if err != nil {
		return err
	}

	color.Green("[OK] Escrow created at: %s", status.EscrowPath)
	fmt.Printf("Sandbox root: %s\n", status.SandboxRoot)
	return nil
}
