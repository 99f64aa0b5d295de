package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	FilePermissions os.FileMode = 0600
	DirPermissions  os.FileMode = 0700

	// EscrowDirName is reserved for the escrow record, outside the sandbox
	// input/output areas. It is never returned by file listings.
	EscrowDirName  = "escrow"
	EscrowFileName = "recovery.enc"
)

// FileSystemStore implements Store on the local filesystem. The escrow
// record lives at basePath/escrow/recovery.enc.
type FileSystemStore struct {
	basePath   string
	escrowDir  string
	escrowFile string
}

// NewFileSystemStore initializes and returns a new instance of FileSystemStore.
func NewFileSystemStore(basePath string) (*FileSystemStore, error) {
	if basePath == "" {
		return nil, errors.New("base path cannot be empty")
	}

	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}

	fs := &FileSystemStore{
		basePath:   absBase,
		escrowDir:  filepath.Join(absBase, EscrowDirName),
		escrowFile: filepath.Join(absBase, EscrowDirName, EscrowFileName),
	}

	if err := os.MkdirAll(fs.escrowDir, DirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", fs.escrowDir, err)
	}

	return fs, nil
}

// NewFileSystemStoreFromConfig creates a FileSystemStore from StoreConfig.
func NewFileSystemStoreFromConfig(config StoreConfig) (*FileSystemStore, error) {
	basePath, ok := config.Config["base_path"].(string)
	if !ok {
		return nil, fmt.Errorf("base_path is required for filesystem store")
	}

	return NewFileSystemStore(basePath)
}

func (fs *FileSystemStore) SaveEscrow(record []byte) error {
	if err := WriteSecureFile(fs.escrowFile, record, FilePermissions); err != nil {
		return fmt.Errorf("failed to save escrow record to %s: %w", fs.escrowFile, err)
	}
	return nil
}

func (fs *FileSystemStore) LoadEscrow() ([]byte, error) {
	data, err := os.ReadFile(fs.escrowFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrEscrowNotFound
		}
		return nil, fmt.Errorf("failed to read escrow record %s: %w", fs.escrowFile, err)
	}
	return data, nil
}

func (fs *FileSystemStore) EscrowExists() (bool, error) {
	_, err := os.Stat(fs.escrowFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat escrow record %s: %w", fs.escrowFile, err)
	}
	return true, nil
}

func (fs *FileSystemStore) EscrowPath() string {
	return fs.escrowFile
}

func (fs *FileSystemStore) Ping() error {
	// Local filesystem; confirm the escrow directory is still reachable.
	if _, err := os.Stat(fs.escrowDir); err != nil {
		return fmt.Errorf("escrow directory unavailable: %w", err)
	}
	return nil
}

func (fs *FileSystemStore) Close() error {
	return nil
}

func (fs *FileSystemStore) GetType() string {
	return string(StoreTypeFileSystem)
}

// WriteSecureFile writes data to path atomically: the bytes go to a temp
// file in the same directory which is synced, chmodded and renamed into
// place. A crash mid-write never leaves a corrupt or partial file.
func WriteSecureFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err = tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err = tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err = tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err = os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err = os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
