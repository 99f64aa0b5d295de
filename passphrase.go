package cifra

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"golang.org/x/term"
)

// DefaultPassphraseEnvVar is consulted when no explicit environment
// variable name is configured.
const DefaultPassphraseEnvVar = "CIFRA_PASSPHRASE"

// ErrPassphraseMismatch is returned when the confirmation prompt does not
// match the first entry.
var ErrPassphraseMismatch = errors.New("passphrases do not match")

// ResolvePassphrase obtains the passphrase for the engine: from the named
// environment variable if set, otherwise interactively from the terminal
// with echo disabled. It is never accepted as a command-line argument,
// which would leak it into process listings and shell history.
//
// With confirm set (init flow) the interactive path prompts twice and
// requires both entries to match. The returned slice is caller-owned;
// hand it to Options.DerivationPassphrase, which wipes it on engine
// construction.
func ResolvePassphrase(envVar string, confirm bool) ([]byte, error) {
	if envVar == "" {
		envVar = DefaultPassphraseEnvVar
	}

	if v := os.Getenv(envVar); v != "" {
		return []byte(v), nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("passphrase required: set %s or run interactively", envVar)
	}

	first, err := promptPassphrase("Recovery passphrase: ")
	if err != nil {
		return nil, err
	}
	if len(first) == 0 {
		return nil, errors.New("passphrase cannot be empty")
	}

	if !confirm {
		return first, nil
	}

	second, err := promptPassphrase("Confirm passphrase: ")
	if err != nil {
		memguard.WipeBytes(first)
		return nil, err
	}

	if !bytes.Equal(first, second) {
		memguard.WipeBytes(first)
		memguard.WipeBytes(second)
		return nil, ErrPassphraseMismatch
	}

	memguard.WipeBytes(second)
	return first, nil
}

func promptPassphrase(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return passphrase, nil
}
