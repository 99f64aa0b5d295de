package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cifra "github.com/UriL0x/crypto-proyecto"
)

var decryptCmd = &cobra.Command{
	Use:   "decrypt <infile> <outfile>",
	Short: "Decrypt an envelope inside the sandbox",
	Long: `Validate both paths against the sandbox, unlock the master key with the
recovery passphrase, verify the envelope's authentication tag and write the
recovered plaintext to <outfile>. On any verification failure no output is
produced.`,
	Args: cobra.ExactArgs(2),
	RunE: runDecrypt,
}

func init() {
	rootCmd.AddCommand(decryptCmd)
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	passphrase, err := cifra.ResolvePassphrase("", false)
	if err != nil {
		return err
	}

	engine, err := newEngine(passphrase)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	if err = engine.DecryptFile(args[0], args[1]); err != nil {
		return err
	}

	color.Green("[OK] Decrypted: %s", args[1])
	return nil
}
