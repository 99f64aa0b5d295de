package cifra

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/UriL0x/crypto-proyecto/audit"
	"github.com/UriL0x/crypto-proyecto/persist"
)

// SelfTestCheck is the outcome of one named self-test assertion.
type SelfTestCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// SelfTestReport summarizes a self-test run: per-check results plus
// passed/failed counts.
type SelfTestReport struct {
	Checks []SelfTestCheck `json:"checks"`
	Passed int             `json:"passed"`
	Failed int             `json:"failed"`
}

// OK reports whether every check passed.
func (r *SelfTestReport) OK() bool {
	return r.Failed == 0
}

func (r *SelfTestReport) record(name string, err error) {
	check := SelfTestCheck{Name: name, Passed: err == nil}
	if err != nil {
		check.Detail = err.Error()
		r.Failed++
	} else {
		r.Passed++
	}
	r.Checks = append(r.Checks, check)
}

// SelfTest exercises the full stack against a throwaway sandbox: envelope
// round trips (including the empty and large cases), tamper detection,
// sandbox containment for traversal and symlink escapes, escrow singleton
// behavior and wrong-passphrase rejection. The caller's own sandbox and
// escrow record are never touched.
func (e *Engine) SelfTest() (*SelfTestReport, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	e.mu.Unlock()

	scratch, err := os.MkdirTemp("", "cifra-selftest-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	store, err := persist.NewFileSystemStore(scratch)
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch store: %w", err)
	}

	engine, err := NewWithStore(Options{
		BasePath:             scratch,
		DerivationPassphrase: []byte("self-test passphrase"),
	}, store, audit.NewNoOpLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch engine: %w", err)
	}
	defer func() { _ = engine.Close() }()

	if err = engine.Initialize(false); err != nil {
		return nil, fmt.Errorf("failed to initialize scratch escrow: %w", err)
	}

	report := &SelfTestReport{}
	report.record("round_trip_simple", checkRoundTrip(engine, []byte("hello")))
	report.record("round_trip_empty", checkRoundTrip(engine, []byte{}))
	report.record("round_trip_large", checkRoundTripLarge(engine))
	report.record("tamper_detection", checkTamperDetection(engine))
	report.record("sandbox_rejects_traversal", checkTraversalRejected(engine))
	report.record("sandbox_rejects_symlink", checkSymlinkRejected(engine))
	report.record("escrow_singleton", checkEscrowSingleton(engine, store))
	report.record("wrong_passphrase_rejected", checkWrongPassphrase(scratch, store))
	report.record("file_round_trip", checkFileRoundTrip(engine))

	e.audit.Log("self_test", report.OK(), map[string]interface{}{
		"passed": report.Passed,
		"failed": report.Failed,
	})

	return report, nil
}

func checkRoundTrip(engine *Engine, plaintext []byte) error {
	envelope, err := engine.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}
	decrypted, err := engine.Decrypt(envelope)
	if err != nil {
		return fmt.Errorf("decrypt: %w", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		return errors.New("decrypted bytes differ from original")
	}
	return nil
}

func checkRoundTripLarge(engine *Engine) error {
	large := make([]byte, 1024*1024)
	if _, err := rand.Read(large); err != nil {
		return fmt.Errorf("generate payload: %w", err)
	}
	return checkRoundTrip(engine, large)
}

func checkTamperDetection(engine *Engine) error {
	envelope, err := engine.Encrypt([]byte("tamper target"))
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}

	// Flip one bit in the ciphertext and one in the tag region.
	for _, offset := range []int{envelopeOverhead - 1, len(envelope) - 1} {
		tampered := append([]byte(nil), envelope...)
		tampered[offset] ^= 0x01
		if _, err = engine.Decrypt(tampered); !errors.Is(err, ErrDecryptionFailed) {
			return fmt.Errorf("tampered envelope at offset %d was not rejected", offset)
		}
	}
	return nil
}

func checkTraversalRejected(engine *Engine) error {
	escape := filepath.Join(engine.Sandbox().Root(), "..", "..", "etc", "passwd")
	if _, err := engine.Sandbox().Resolve(escape); !IsSandboxViolation(err) {
		return fmt.Errorf("traversal path %s was not rejected", escape)
	}
	return nil
}

func checkSymlinkRejected(engine *Engine) error {
	link := filepath.Join(engine.Sandbox().Root(), "self-test-link")
	if err := os.Symlink(string(filepath.Separator), link); err != nil {
		return fmt.Errorf("create symlink: %w", err)
	}
	defer func() { _ = os.Remove(link) }()

	target := filepath.Join(link, "etc", "passwd")
	if _, err := engine.Sandbox().Resolve(target); !IsSandboxViolation(err) {
		return fmt.Errorf("symlink escape via %s was not rejected", link)
	}
	return nil
}

func checkEscrowSingleton(engine *Engine, store persist.Store) error {
	before, err := store.LoadEscrow()
	if err != nil {
		return fmt.Errorf("load escrow: %w", err)
	}

	if err = engine.Initialize(false); !errors.Is(err, ErrAlreadyInitialized) {
		return fmt.Errorf("second init returned %v, want ErrAlreadyInitialized", err)
	}

	after, err := store.LoadEscrow()
	if err != nil {
		return fmt.Errorf("reload escrow: %w", err)
	}
	if !bytes.Equal(before, after) {
		return errors.New("escrow record changed after refused re-init")
	}
	return nil
}

func checkWrongPassphrase(scratch string, store persist.Store) error {
	wrong, err := NewWithStore(Options{
		BasePath:             scratch,
		DerivationPassphrase: []byte("not the passphrase"),
	}, store, audit.NewNoOpLogger())
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer func() { _ = wrong.Close() }()

	if err = wrong.Unlock(); !errors.Is(err, ErrEscrowCorrupt) {
		return fmt.Errorf("wrong passphrase returned %v, want ErrEscrowCorrupt", err)
	}
	return nil
}

func checkFileRoundTrip(engine *Engine) error {
	root := engine.Sandbox().Root()
	inPath := filepath.Join(root, "input", "self-test.txt")
	encPath := filepath.Join(root, "output", "self-test.enc")
	decPath := filepath.Join(root, "output", "self-test.txt")

	content := []byte("PRUEBA123")
	if err := os.WriteFile(inPath, content, 0600); err != nil {
		return fmt.Errorf("write input: %w", err)
	}

	if err := engine.EncryptFile(inPath, encPath); err != nil {
		return fmt.Errorf("encrypt file: %w", err)
	}
	if err := engine.DecryptFile(encPath, decPath); err != nil {
		return fmt.Errorf("decrypt file: %w", err)
	}

	decrypted, err := os.ReadFile(decPath)
	if err != nil {
		return fmt.Errorf("read output: %w", err)
	}
	if !bytes.Equal(decrypted, content) {
		return errors.New("file round trip produced different content")
	}
	return nil
}
