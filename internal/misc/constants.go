package misc

const (
	// EscrowVersionPBKDF2 identifies escrow records created by the original
	// release, which derived the wrapping key with PBKDF2-HMAC-SHA256.
	// Records in this format remain readable but are never written.
	EscrowVersionPBKDF2 = 1

	// EscrowVersionArgon2 is the current escrow record format.
	EscrowVersionArgon2 = 2

	// EnvelopeVersion is the current encrypted file envelope format.
	EnvelopeVersion = 1

	// MasterKeySize is the size of the master key in bytes (256-bit).
	MasterKeySize = 32

	// ArgonTime Key derivation parameters. Fixed so escrow records stay
	// portable across runs and machines.
	ArgonTime    uint32 = 4
	ArgonMemory  uint32 = 128 * 1024
	ArgonThreads uint8  = 4
	ArgonKeyLen  uint32 = 32

	// PBKDF2Iterations matches the legacy v1 record format.
	PBKDF2Iterations = 200_000

	SaltSize = 16

	FilePermissions = 0600 // user read + write
	DirPermissions  = 0700
)

// EnvelopeMagic marks an encrypted file envelope on disk.
const EnvelopeMagic = "CIFR"
