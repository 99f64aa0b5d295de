package cifra

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/awnumar/memguard"

	"github.com/UriL0x/crypto-proyecto/internal/crypto"
	"github.com/UriL0x/crypto-proyecto/internal/misc"
	"github.com/UriL0x/crypto-proyecto/persist"
)

func newTestEngine(t *testing.T, passphrase string) (*Engine, *persist.FileSystemStore) {
	t.Helper()

	base := t.TempDir()
	store, err := persist.NewFileSystemStore(base)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	engine, err := NewWithStore(Options{
		BasePath:             base,
		DerivationPassphrase: []byte(passphrase),
	}, store, nil)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	return engine, store
}

func TestInitializeAndUnlock(t *testing.T) {
	engine, store := newTestEngine(t, "test passphrase")

	if err := engine.Unlock(); !errors.Is(err, ErrEscrowMissing) {
		t.Fatalf("unlock before init = %v, want ErrEscrowMissing", err)
	}

	if err := engine.Initialize(false); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	exists, err := store.EscrowExists()
	if err != nil {
		t.Fatalf("EscrowExists failed: %v", err)
	}
	if !exists {
		t.Fatal("escrow record not persisted")
	}

	if err = engine.Unlock(); err != nil {
		t.Fatalf("Unlock after init failed: %v", err)
	}
}

func TestInitializeRefusesSecondRun(t *testing.T) {
	engine, store := newTestEngine(t, "test passphrase")

	if err := engine.Initialize(false); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	before, err := store.LoadEscrow()
	if err != nil {
		t.Fatalf("LoadEscrow failed: %v", err)
	}

	if err = engine.Initialize(false); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second Initialize = %v, want ErrAlreadyInitialized", err)
	}

	after, err := store.LoadEscrow()
	if err != nil {
		t.Fatalf("LoadEscrow failed: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Error("escrow record changed after refused re-init")
	}
}

func TestInitializeForceReplaces(t *testing.T) {
	engine, store := newTestEngine(t, "test passphrase")

	if err := engine.Initialize(false); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	before, _ := store.LoadEscrow()

	if err := engine.Initialize(true); err != nil {
		t.Fatalf("forced Initialize failed: %v", err)
	}
	after, _ := store.LoadEscrow()

	if bytes.Equal(before, after) {
		t.Error("forced re-init did not replace the escrow record")
	}
	if err := engine.Unlock(); err != nil {
		t.Errorf("unlock after forced re-init failed: %v", err)
	}
}

func TestUnlockWrongPassphrase(t *testing.T) {
	base := t.TempDir()
	store, err := persist.NewFileSystemStore(base)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	right, err := NewWithStore(Options{
		BasePath:             base,
		DerivationPassphrase: []byte("right passphrase"),
	}, store, nil)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer func() { _ = right.Close() }()

	if err = right.Initialize(false); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	wrong, err := NewWithStore(Options{
		BasePath:             base,
		DerivationPassphrase: []byte("wrong passphrase"),
	}, store, nil)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer func() { _ = wrong.Close() }()

	if err = wrong.Unlock(); !errors.Is(err, ErrEscrowCorrupt) {
		t.Fatalf("wrong passphrase = %v, want ErrEscrowCorrupt", err)
	}
}

func TestUnlockTamperedRecord(t *testing.T) {
	engine, store := newTestEngine(t, "test passphrase")

	if err := engine.Initialize(false); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	data, err := store.LoadEscrow()
	if err != nil {
		t.Fatalf("LoadEscrow failed: %v", err)
	}

	var record EscrowRecord
	if err = json.Unmarshal(data, &record); err != nil {
		t.Fatalf("failed to parse record: %v", err)
	}
	record.Ciphertext[0] ^= 0x01

	tampered, err := json.Marshal(&record)
	if err != nil {
		t.Fatalf("failed to re-marshal record: %v", err)
	}
	if err = store.SaveEscrow(tampered); err != nil {
		t.Fatalf("SaveEscrow failed: %v", err)
	}

	// The tampered-record error must be indistinguishable from the
	// wrong-passphrase error.
	if err = engine.Unlock(); !errors.Is(err, ErrEscrowCorrupt) {
		t.Fatalf("tampered record = %v, want ErrEscrowCorrupt", err)
	}
}

func TestUnlockGarbageRecord(t *testing.T) {
	engine, store := newTestEngine(t, "test passphrase")

	if err := store.SaveEscrow([]byte("not json at all")); err != nil {
		t.Fatalf("SaveEscrow failed: %v", err)
	}

	if err := engine.Unlock(); !errors.Is(err, ErrEscrowCorrupt) {
		t.Fatalf("garbage record = %v, want ErrEscrowCorrupt", err)
	}
}

func TestUnlockUnknownVersion(t *testing.T) {
	engine, store := newTestEngine(t, "test passphrase")

	if err := engine.Initialize(false); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	data, _ := store.LoadEscrow()
	var record EscrowRecord
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("failed to parse record: %v", err)
	}
	record.Version = 99

	rewritten, _ := json.Marshal(&record)
	if err := store.SaveEscrow(rewritten); err != nil {
		t.Fatalf("SaveEscrow failed: %v", err)
	}

	if err := engine.Unlock(); !errors.Is(err, ErrEscrowCorrupt) {
		t.Fatalf("unknown version = %v, want ErrEscrowCorrupt", err)
	}
}

func TestUnlockLegacyPBKDF2Record(t *testing.T) {
	base := t.TempDir()
	store, err := persist.NewFileSystemStore(base)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	// Build a v1 record by hand, the way the original release wrote them.
	passphrase := []byte("legacy passphrase")
	salt := bytes.Repeat([]byte{0x3c}, misc.SaltSize)
	masterKey := make([]byte, misc.MasterKeySize)
	for i := range masterKey {
		masterKey[i] = byte(i*13 + 7)
	}

	wrappingKey, err := crypto.DeriveKeyPBKDF2(passphrase, memguard.NewEnclave(append([]byte(nil), salt...)))
	if err != nil {
		t.Fatalf("DeriveKeyPBKDF2 failed: %v", err)
	}
	defer wrappingKey.Destroy()

	sealed, err := crypto.EncryptValue(masterKey, wrappingKey.Bytes(), []byte{byte(misc.EscrowVersionPBKDF2)})
	if err != nil {
		t.Fatalf("EncryptValue failed: %v", err)
	}

	record := &EscrowRecord{
		Version:    misc.EscrowVersionPBKDF2,
		KDF:        "pbkdf2-sha256",
		Salt:       salt,
		Nonce:      sealed[:12],
		Ciphertext: sealed[12:],
	}
	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err = store.SaveEscrow(data); err != nil {
		t.Fatalf("SaveEscrow failed: %v", err)
	}

	engine, err := NewWithStore(Options{
		BasePath:             base,
		DerivationPassphrase: []byte("legacy passphrase"),
	}, store, nil)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer func() { _ = engine.Close() }()

	if err = engine.Unlock(); err != nil {
		t.Fatalf("legacy record unlock failed: %v", err)
	}
}

func TestInitializeCreatesSandboxLayout(t *testing.T) {
	engine, _ := newTestEngine(t, "test passphrase")

	if err := engine.Initialize(false); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	for _, sub := range []string{"input", "output"} {
		info, err := os.Stat(filepath.Join(engine.Sandbox().Root(), sub))
		if err != nil {
			t.Errorf("%s directory not created: %v", sub, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", sub)
		}
	}
}

func TestEscrowOutsideSandbox(t *testing.T) {
	engine, store := newTestEngine(t, "test passphrase")

	if err := engine.Initialize(false); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// The escrow record must live outside the sandbox; the validator
	// itself must refuse to touch it.
	if _, err := engine.Sandbox().Resolve(store.EscrowPath()); !IsSandboxViolation(err) {
		t.Errorf("escrow path resolves inside the sandbox: %v", err)
	}
}
