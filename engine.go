package cifra

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/UriL0x/crypto-proyecto/audit"
	"github.com/UriL0x/crypto-proyecto/internal/crypto"
	"github.com/UriL0x/crypto-proyecto/internal/mem"
	"github.com/UriL0x/crypto-proyecto/persist"
)

// Engine is the sandboxed file-encryption engine. It owns the escrow record
// through its persist.Store, confines every file operation to its Sandbox,
// and holds the passphrase in a memguard enclave for the lifetime of the
// engine. The master key itself is unwrapped transiently per operation and
// destroyed immediately after use; it is never cached.
//
// An Engine is safe for concurrent use; a mutex serializes operations. The
// usual deployment is one short-lived CLI process per operation, so the
// lock exists mainly so tests can share an engine.
type Engine struct {
	store   persist.Store
	sandbox *Sandbox
	audit   audit.Logger

	passphraseEnclave *memguard.Enclave

	memoryProtectionLevel mem.ProtectionLevel
	maxFileSize           int64

	mu     sync.Mutex
	closed bool
}

// New creates an Engine backed by a filesystem store rooted at
// options.BasePath. Audit logging is disabled; use NewWithStore to supply a
// logger.
func New(options Options) (*Engine, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}

	store, err := persist.NewFileSystemStore(options.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	return NewWithStore(options, store, nil)
}

// NewWithStore creates an Engine with an explicit store and audit logger.
// A nil auditLogger disables auditing.
func NewWithStore(options Options, store persist.Store, auditLogger audit.Logger) (*Engine, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}

	sandbox, err := NewSandbox(options.SandboxRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}

	engine := &Engine{
		store:       store,
		sandbox:     sandbox,
		audit:       auditLogger,
		maxFileSize: options.MaxFileSize,
	}

	if len(options.DerivationPassphrase) > 0 {
		// Enclave construction wipes the source slice.
		engine.passphraseEnclave = memguard.NewEnclave(options.DerivationPassphrase)
		options.DerivationPassphrase = nil
	}

	if options.EnableMemoryLock {
		level, err := mem.Lock()
		if err != nil {
			engine.audit.Log("memory_lock", false, map[string]interface{}{
				"error": err.Error(),
			})
		}
		engine.memoryProtectionLevel = level
	}

	return engine, nil
}

// Sandbox exposes the engine's path validator.
func (e *Engine) Sandbox() *Sandbox {
	return e.sandbox
}

// Status describes the engine's persisted and runtime state, for the status
// command and diagnostics. It never includes key material.
type Status struct {
	SandboxRoot      string `json:"sandbox_root"`
	EscrowPath       string `json:"escrow_path"`
	EscrowPresent    bool   `json:"escrow_present"`
	EscrowChecksum   string `json:"escrow_checksum,omitempty"`
	StoreType        string `json:"store_type"`
	MemoryProtection string `json:"memory_protection"`
}

// Status reports the current state of the engine and its escrow record.
func (e *Engine) Status() (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Status{}, ErrEngineClosed
	}

	status := Status{
		SandboxRoot:      e.sandbox.Root(),
		EscrowPath:       e.store.EscrowPath(),
		StoreType:        e.store.GetType(),
		MemoryProtection: e.memoryProtectionLevel.String(),
	}

	exists, err := e.store.EscrowExists()
	if err != nil {
		return Status{}, fmt.Errorf("failed to check escrow: %w", err)
	}
	status.EscrowPresent = exists

	if exists {
		record, err := e.store.LoadEscrow()
		if err != nil {
			return Status{}, fmt.Errorf("failed to read escrow: %w", err)
		}
		status.EscrowChecksum = crypto.CalculateChecksum(record)
	}

	return status, nil
}

// Close wipes the held passphrase, releases memory locks and closes the
// store. The engine is unusable afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	e.passphraseEnclave = nil

	if e.memoryProtectionLevel == mem.ProtectionFull {
		if err := mem.Unlock(); err != nil {
			e.audit.Log("memory_unlock", false, map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return e.store.Close()
}

// openPassphrase hands back the passphrase bytes in a locked buffer. The
// caller must Destroy it.
func (e *Engine) openPassphrase() (*memguard.LockedBuffer, error) {
	if e.passphraseEnclave == nil {
		return nil, fmt.Errorf("no passphrase configured")
	}

	buffer, err := e.passphraseEnclave.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to access passphrase: %w", err)
	}
	return buffer, nil
}
