package cifra

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyInitialized is returned by Initialize when an escrow record
	// already exists. The existing record is never silently overwritten.
	ErrAlreadyInitialized = errors.New("escrow record already exists, refusing to overwrite")

	// ErrEscrowMissing is returned when an operation needs the master key
	// but no escrow record has been created yet.
	ErrEscrowMissing = errors.New("no escrow record found, run init first")

	// ErrEscrowCorrupt is returned when the escrow record fails to
	// authenticate. A wrong passphrase and a tampered record produce this
	// exact same error so a caller cannot distinguish the two cases.
	ErrEscrowCorrupt = errors.New("invalid passphrase or corrupt escrow record")

	// ErrDecryptionFailed is returned when a file envelope fails to
	// authenticate or carries an unrecognized format. No plaintext is
	// released.
	ErrDecryptionFailed = errors.New("decryption failed: envelope corrupt, tampered, or unsupported")

	// ErrEngineClosed is returned by operations on a closed engine.
	ErrEngineClosed = errors.New("engine is closed")
)

// SandboxViolationError reports a path whose canonical form escapes the
// sandbox root. Any operation receiving one aborts before touching the
// filesystem.
type SandboxViolationError struct {
	Path string // the offending path as given
	Root string // the canonical sandbox root
}

func (e *SandboxViolationError) Error() string {
	return fmt.Sprintf("sandbox violation: %s resolves outside %s", e.Path, e.Root)
}

// IsSandboxViolation reports whether err is (or wraps) a sandbox violation.
func IsSandboxViolation(err error) bool {
	var sv *SandboxViolationError
	return errors.As(err, &sv)
}
