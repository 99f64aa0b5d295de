package cifra

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultMaxFileSize bounds how much of a file the engine will buffer.
// Streaming encryption of arbitrarily large files is out of scope; anything
// bigger than this is refused rather than risking memory exhaustion.
const DefaultMaxFileSize = 64 * 1024 * 1024

// Options configures an Engine. One Options value describes one isolated
// sandbox instance, so tests can run several side by side; there is no
// process-wide state.
//
// The passphrase fields are deliberately excluded from serialization. A
// passphrase must reach the engine through an environment variable or an
// interactive prompt, never a command-line argument or a config file.
type Options struct {
	// BasePath is the project root. The sandbox lives at BasePath/sandbox
	// (unless SandboxRoot overrides it) and the escrow record at
	// BasePath/escrow/recovery.enc, outside the sandbox input/output areas.
	BasePath string `json:"base_path"`

	// SandboxRoot overrides the sandbox directory. Optional.
	SandboxRoot string `json:"sandbox_root,omitempty"`

	// DerivationPassphrase is the secret that unwraps the master key.
	// Held only as long as the engine lives, wiped on Close.
	DerivationPassphrase []byte `json:"-"`

	// EnvPassphraseVar names an environment variable to read the
	// passphrase from when DerivationPassphrase is empty.
	EnvPassphraseVar string `json:"-"`

	// EnableMemoryLock attempts to mlock the process address space so key
	// material cannot be swapped to disk. Degrades gracefully without the
	// needed privileges.
	EnableMemoryLock bool `json:"enable_memory_lock"`

	// MaxFileSize caps the plaintext/envelope size in bytes. Zero means
	// DefaultMaxFileSize.
	MaxFileSize int64 `json:"max_file_size,omitempty"`
}

// Validate checks the options and fills in defaults.
func (o *Options) Validate() error {
	if o.BasePath == "" {
		return fmt.Errorf("base path cannot be empty")
	}

	if o.SandboxRoot == "" {
		o.SandboxRoot = filepath.Join(o.BasePath, "sandbox")
	}

	if o.MaxFileSize == 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.MaxFileSize < 0 {
		return fmt.Errorf("max file size cannot be negative")
	}

	if len(o.DerivationPassphrase) == 0 && o.EnvPassphraseVar != "" {
		if v := os.Getenv(o.EnvPassphraseVar); v != "" {
			o.DerivationPassphrase = []byte(v)
		}
	}

	return nil
}
