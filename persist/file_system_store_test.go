package persist

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestFileSystemStoreEscrowLifecycle(t *testing.T) {
	store, err := NewFileSystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	exists, err := store.EscrowExists()
	if err != nil {
		t.Fatalf("EscrowExists failed: %v", err)
	}
	if exists {
		t.Fatal("escrow reported present in a fresh store")
	}

	if _, err = store.LoadEscrow(); !errors.Is(err, ErrEscrowNotFound) {
		t.Fatalf("expected ErrEscrowNotFound, got %v", err)
	}

	record := []byte(`{"version":2,"salt":"abc"}`)
	if err = store.SaveEscrow(record); err != nil {
		t.Fatalf("SaveEscrow failed: %v", err)
	}

	exists, err = store.EscrowExists()
	if err != nil {
		t.Fatalf("EscrowExists failed: %v", err)
	}
	if !exists {
		t.Fatal("escrow not reported present after save")
	}

	loaded, err := store.LoadEscrow()
	if err != nil {
		t.Fatalf("LoadEscrow failed: %v", err)
	}
	if !bytes.Equal(loaded, record) {
		t.Errorf("loaded record differs from saved record")
	}
}

func TestFileSystemStoreLayout(t *testing.T) {
	base := t.TempDir()
	store, err := NewFileSystemStore(base)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	want := filepath.Join(base, "escrow", "recovery.enc")
	if store.EscrowPath() != want {
		t.Errorf("escrow path = %s, want %s", store.EscrowPath(), want)
	}

	info, err := os.Stat(filepath.Join(base, "escrow"))
	if err != nil {
		t.Fatalf("escrow directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("escrow path is not a directory")
	}
}

func TestFileSystemStorePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}

	store, err := NewFileSystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err = store.SaveEscrow([]byte("record")); err != nil {
		t.Fatalf("SaveEscrow failed: %v", err)
	}

	info, err := os.Stat(store.EscrowPath())
	if err != nil {
		t.Fatalf("failed to stat escrow file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("escrow file mode = %o, want 0600", info.Mode().Perm())
	}
}

func TestSaveEscrowLeavesNoTempFiles(t *testing.T) {
	base := t.TempDir()
	store, err := NewFileSystemStore(base)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err = store.SaveEscrow([]byte("record")); err != nil {
			t.Fatalf("SaveEscrow failed: %v", err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(base, "escrow"))
	if err != nil {
		t.Fatalf("failed to list escrow dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestWriteSecureFileOverwrites(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "data.bin")

	if err := WriteSecureFile(target, []byte("first"), 0600); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteSecureFile(target, []byte("second"), 0600); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want %q", data, "second")
	}
}

func TestNewFileSystemStoreEmptyPath(t *testing.T) {
	if _, err := NewFileSystemStore(""); err == nil {
		t.Error("expected error for empty base path")
	}
}

func TestFactoryFileSystem(t *testing.T) {
	store, err := NewStore(StoreConfig{
		Type:   StoreTypeFileSystem,
		Config: map[string]interface{}{"base_path": t.TempDir()},
	})
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	if store.GetType() != "filesystem" {
		t.Errorf("store type = %s, want filesystem", store.GetType())
	}
}

func TestFactoryUnknownType(t *testing.T) {
	if _, err := NewStore(StoreConfig{Type: "redis"}); err == nil {
		t.Error("expected error for unsupported store type")
	}
}
