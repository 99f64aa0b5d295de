package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cifra "github.com/UriL0x/crypto-proyecto"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt <infile> <outfile>",
	Short: "Encrypt a file inside the sandbox",
	Long: `Validate both paths against the sandbox, unlock the master key with the
recovery passphrase, and write the encrypted envelope to <outfile>. The
write is atomic; a failed run never leaves a partial output file.`,
	Args: cobra.ExactArgs(2),
	RunE: runEncrypt,
}

func init() {
	rootCmd.AddCommand(encryptCmd)
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	passphrase, err := cifra.ResolvePassphrase("", false)
	if err != nil {
		return err
	}

	engine, err := newEngine(passphrase)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	if err = engine.EncryptFile(args[0], args[1]); err != nil {
		return err
	}

	color.Green("[OK] Encrypted: %s", args[1])
	return nil
}
