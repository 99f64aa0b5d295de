package persist

import "errors"

// ErrEscrowNotFound is returned by LoadEscrow when no escrow record has been
// persisted yet.
var ErrEscrowNotFound = errors.New("escrow record not found")

// Store defines the interface for persisting the escrow record. The record
// handed to this interface is already encrypted by the engine; a store never
// sees key material in the clear.
//
// Implementations must make SaveEscrow atomic: a reader (or a crash) must
// observe either the previous record or the complete new one, never a
// partial write.
type Store interface {

	// SaveEscrow persists the encrypted escrow record, replacing any
	// existing one.
	SaveEscrow(record []byte) error

	// LoadEscrow retrieves the encrypted escrow record. Returns
	// ErrEscrowNotFound if none has been saved.
	LoadEscrow() ([]byte, error)

	// EscrowExists checks whether an escrow record is present.
	EscrowExists() (bool, error)

	// EscrowPath returns a human-readable location of the record, for
	// status output and error messages.
	EscrowPath() string

	// Ping tests connectivity for remote backends.
	Ping() error

	// Close releases any resources the store holds.
	Close() error

	// GetType identifies the backend ("filesystem", "s3").
	GetType() string
}

// StoreConfig provides configuration for the different storage backends.
type StoreConfig struct {
	// Type specifies the storage backend to be used.
	Type StoreType `json:"type"`

	// Config contains backend-specific settings, e.g. "base_path" for the
	// filesystem store or bucket/credential fields for S3.
	Config map[string]interface{} `json:"config"`
}

// StoreType represents the different types of storage backends that can be used.
type StoreType string

const (
	// StoreTypeFileSystem keeps the escrow record on the local filesystem,
	// which is the default and matches the sandbox layout.
	StoreTypeFileSystem StoreType = "filesystem"

	// StoreTypeS3 keeps the escrow record in an S3-compatible bucket.
	StoreTypeS3 StoreType = "s3"
)
