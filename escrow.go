package cifra

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/UriL0x/crypto-proyecto/internal/crypto"
	"github.com/UriL0x/crypto-proyecto/internal/misc"
	"github.com/UriL0x/crypto-proyecto/persist"
)

// Escrow record KDF identifiers. The kdf field in the record selects how
// the wrapping key is re-derived at unlock time.
const (
	kdfArgon2id = "argon2id"
	kdfPBKDF2   = "pbkdf2-sha256"
)

// EscrowRecord is the persisted, encrypted form of the master key. Exactly
// one record exists per sandbox instance, at a reserved path outside the
// sandbox input/output areas.
//
// The Poly1305 authentication tag is the trailing 16 bytes of Ciphertext;
// the record version is bound as associated data, so a version rewrite is
// detected the same way as ciphertext tampering.
type EscrowRecord struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func marshalEscrowRecord(record *EscrowRecord) ([]byte, error) {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal escrow record: %w", err)
	}
	return data, nil
}

func unmarshalEscrowRecord(data []byte) (*EscrowRecord, error) {
	var record EscrowRecord
	if err := json.Unmarshal(data, &record); err != nil {
		// A record that does not even parse is treated exactly like one
		// that fails authentication.
		return nil, ErrEscrowCorrupt
	}
	return &record, nil
}

// Initialize generates a fresh random master key, encrypts it under a key
// derived from the configured passphrase, and persists the escrow record
// atomically. Fails with ErrAlreadyInitialized if a record exists, unless
// force is set; a forced re-init makes everything encrypted under the old
// master key permanently unreadable.
//
// The raw master key exists only inside locked buffers during this call and
// is destroyed before it returns.
func (e *Engine) Initialize(force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}

	exists, err := e.store.EscrowExists()
	if err != nil {
		return fmt.Errorf("failed to check escrow: %w", err)
	}
	if exists && !force {
		e.audit.Log("initialize_escrow", false, map[string]interface{}{
			"error": "already initialized",
		})
		return ErrAlreadyInitialized
	}

	passphrase, err := e.openPassphrase()
	if err != nil {
		return err
	}
	defer passphrase.Destroy()

	masterKey, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("failed to generate master key: %w", err)
	}
	defer masterKey.Destroy()

	salt := make([]byte, misc.SaltSize)
	if _, err = rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	// Keep a copy for the record; the enclave wipes the original.
	saltCopy := make([]byte, len(salt))
	copy(saltCopy, salt)
	saltEnclave := memguard.NewEnclave(salt)

	wrappingKey, err := crypto.DeriveKey(passphrase.Bytes(), saltEnclave)
	if err != nil {
		memguard.WipeBytes(saltCopy)
		return fmt.Errorf("failed to derive wrapping key: %w", err)
	}
	defer wrappingKey.Destroy()

	aad := []byte{byte(misc.EscrowVersionArgon2)}
	sealed, err := crypto.EncryptValue(masterKey.Bytes(), wrappingKey.Bytes(), aad)
	if err != nil {
		memguard.WipeBytes(saltCopy)
		return fmt.Errorf("failed to encrypt master key: %w", err)
	}

	nonceSize := chacha20poly1305.NonceSize
	record := &EscrowRecord{
		Version:    misc.EscrowVersionArgon2,
		KDF:        kdfArgon2id,
		Salt:       saltCopy,
		Nonce:      sealed[:nonceSize],
		Ciphertext: sealed[nonceSize:],
	}

	data, err := marshalEscrowRecord(record)
	if err != nil {
		return err
	}

	if err = e.store.SaveEscrow(data); err != nil {
		e.audit.Log("initialize_escrow", false, map[string]interface{}{
			"error": err.Error(),
		})
		return fmt.Errorf("failed to persist escrow record: %w", err)
	}

	if err = e.ensureSandboxLayout(); err != nil {
		return err
	}

	e.audit.Log("initialize_escrow", true, map[string]interface{}{
		"path":   e.store.EscrowPath(),
		"forced": force,
	})

	return nil
}

// ensureSandboxLayout creates the conventional input/ and output/
// subdirectories. The validator enforces only "inside the sandbox root";
// these exist for the user's convenience.
func (e *Engine) ensureSandboxLayout() error {
	for _, sub := range []string{"input", "output"} {
		dir := filepath.Join(e.sandbox.Root(), sub)
		if err := os.MkdirAll(dir, misc.DirPermissions); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// unlock loads the escrow record, re-derives the wrapping key and decrypts
// the master key into a locked buffer. Every call pays the full derivation
// cost; the master key is never cached across operations.
//
// Returns ErrEscrowMissing if no record exists, and ErrEscrowCorrupt for
// every authentication failure. A wrong passphrase and a tampered record
// are indistinguishable to the caller.
func (e *Engine) unlock() (*memguard.LockedBuffer, error) {
	data, err := e.store.LoadEscrow()
	if err != nil {
		if errors.Is(err, persist.ErrEscrowNotFound) {
			return nil, ErrEscrowMissing
		}
		return nil, fmt.Errorf("failed to load escrow record: %w", err)
	}

	record, err := unmarshalEscrowRecord(data)
	if err != nil {
		return nil, err
	}

	if len(record.Salt) == 0 || len(record.Nonce) == 0 || len(record.Ciphertext) == 0 {
		return nil, ErrEscrowCorrupt
	}

	passphrase, err := e.openPassphrase()
	if err != nil {
		return nil, err
	}
	defer passphrase.Destroy()

	saltCopy := make([]byte, len(record.Salt))
	copy(saltCopy, record.Salt)
	saltEnclave := memguard.NewEnclave(saltCopy)

	var wrappingKey *memguard.LockedBuffer
	switch record.Version {
	case misc.EscrowVersionArgon2:
		if record.KDF != kdfArgon2id {
			return nil, ErrEscrowCorrupt
		}
		wrappingKey, err = crypto.DeriveKey(passphrase.Bytes(), saltEnclave)
	case misc.EscrowVersionPBKDF2:
		if record.KDF != kdfPBKDF2 {
			return nil, ErrEscrowCorrupt
		}
		wrappingKey, err = crypto.DeriveKeyPBKDF2(passphrase.Bytes(), saltEnclave)
	default:
		// Unknown version: reject, never guess.
		return nil, ErrEscrowCorrupt
	}
	if err != nil {
		return nil, fmt.Errorf("failed to derive wrapping key: %w", err)
	}
	defer wrappingKey.Destroy()

	sealed := make([]byte, 0, len(record.Nonce)+len(record.Ciphertext))
	sealed = append(sealed, record.Nonce...)
	sealed = append(sealed, record.Ciphertext...)

	aad := []byte{byte(record.Version)}
	masterKeyBytes, err := crypto.DecryptValue(sealed, wrappingKey.Bytes(), aad)
	if err != nil {
		// Deliberately uniform: no oracle for wrong passphrase vs tamper.
		return nil, ErrEscrowCorrupt
	}

	if len(masterKeyBytes) != misc.MasterKeySize {
		memguard.WipeBytes(masterKeyBytes)
		return nil, ErrEscrowCorrupt
	}

	masterKey := memguard.NewBufferFromBytes(masterKeyBytes)
	memguard.WipeBytes(masterKeyBytes)

	return masterKey, nil
}

// Unlock verifies that the configured passphrase can recover the master
// key, without exposing it. Used by the self-test harness and the CLI to
// fail fast before touching any files.
func (e *Engine) Unlock() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}

	masterKey, err := e.unlock()
	if err != nil {
		e.audit.Log("unlock_escrow", false, map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	masterKey.Destroy()

	e.audit.Log("unlock_escrow", true, nil)
	return nil
}
