package cifra

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/UriL0x/crypto-proyecto/internal/crypto"
	"github.com/UriL0x/crypto-proyecto/internal/misc"
	"github.com/UriL0x/crypto-proyecto/persist"
)

// File envelope layout:
//
//	[4 bytes: magic "CIFR"]
//	[1 byte:  version]
//	[12 bytes: nonce (random per encryption)]
//	[N bytes: ciphertext + 16-byte Poly1305 tag]
//
// The header (magic + version) is bound as associated data, so rewriting
// either breaks authentication. A fresh random 96-bit nonce per call keeps
// the collision probability negligible over any realistic file count.
const envelopeHeaderSize = len(misc.EnvelopeMagic) + 1

// envelopeOverhead is the minimum size of a valid envelope: an empty
// plaintext still carries header, nonce and tag.
const envelopeOverhead = envelopeHeaderSize + chacha20poly1305.NonceSize + chacha20poly1305.Overhead

func sealEnvelope(masterKey, plaintext []byte) ([]byte, error) {
	header := make([]byte, envelopeHeaderSize)
	copy(header, misc.EnvelopeMagic)
	header[len(misc.EnvelopeMagic)] = byte(misc.EnvelopeVersion)

	sealed, err := crypto.EncryptValue(plaintext, masterKey, header)
	if err != nil {
		return nil, fmt.Errorf("failed to seal envelope: %w", err)
	}

	return append(header, sealed...), nil
}

func openEnvelope(masterKey, envelope []byte) ([]byte, error) {
	if len(envelope) < envelopeOverhead {
		return nil, ErrDecryptionFailed
	}

	header := envelope[:envelopeHeaderSize]
	if !bytes.Equal(header[:len(misc.EnvelopeMagic)], []byte(misc.EnvelopeMagic)) {
		return nil, ErrDecryptionFailed
	}
	if header[len(misc.EnvelopeMagic)] != byte(misc.EnvelopeVersion) {
		// Unknown version: reject, never guess at the format.
		return nil, ErrDecryptionFailed
	}

	plaintext, err := crypto.DecryptValue(envelope[envelopeHeaderSize:], masterKey, header)
	if err != nil {
		// Fail closed: no bytes are released on any verification failure.
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// Encrypt seals plaintext into a file envelope under the escrowed master
// key. The master key is unwrapped for this call only and destroyed before
// returning. Empty plaintext is legal; empty files round-trip.
func (e *Engine) Encrypt(plaintext []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEngineClosed
	}
	if int64(len(plaintext)) > e.maxFileSize {
		return nil, fmt.Errorf("plaintext too large: %d bytes exceeds limit of %d", len(plaintext), e.maxFileSize)
	}

	masterKey, err := e.unlock()
	if err != nil {
		e.audit.Log("encrypt_data", false, map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}
	defer masterKey.Destroy()

	envelope, err := sealEnvelope(masterKey.Bytes(), plaintext)
	if err != nil {
		e.audit.Log("encrypt_data", false, map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	e.audit.Log("encrypt_data", true, map[string]interface{}{
		"data_size":   len(plaintext),
		"result_size": len(envelope),
	})

	return envelope, nil
}

// Decrypt opens a file envelope under the escrowed master key. Fails with
// ErrDecryptionFailed on tag mismatch, truncation, or an unrecognized
// format, releasing no plaintext.
func (e *Engine) Decrypt(envelope []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEngineClosed
	}

	masterKey, err := e.unlock()
	if err != nil {
		e.audit.Log("decrypt_data", false, map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}
	defer masterKey.Destroy()

	plaintext, err := openEnvelope(masterKey.Bytes(), envelope)
	if err != nil {
		e.audit.Log("decrypt_data", false, map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	e.audit.Log("decrypt_data", true, map[string]interface{}{
		"data_size":   len(envelope),
		"result_size": len(plaintext),
	})

	return plaintext, nil
}

// EncryptFile reads inPath, seals its contents and writes the envelope to
// outPath. Both paths are validated against the sandbox before anything is
// read or written; the output write is atomic, so a failure never leaves a
// partial file behind.
func (e *Engine) EncryptFile(inPath, outPath string) error {
	return e.transformFile("encrypt_file", inPath, outPath, sealEnvelope)
}

// DecryptFile reads the envelope at inPath, opens it and writes the
// recovered plaintext to outPath. Same sandbox and atomicity guarantees as
// EncryptFile; on authentication failure no output file is created.
func (e *Engine) DecryptFile(inPath, outPath string) error {
	return e.transformFile("decrypt_file", inPath, outPath, openEnvelope)
}

func (e *Engine) transformFile(action, inPath, outPath string, transform func(key, data []byte) ([]byte, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}

	fail := func(err error) error {
		e.audit.Log(action, false, map[string]interface{}{
			"error": err.Error(),
			"path":  inPath,
		})
		return err
	}

	// Both paths are validated up front: a violation on the output path
	// must abort before the input is even read.
	resolvedIn, err := e.sandbox.Resolve(inPath)
	if err != nil {
		return fail(err)
	}
	resolvedOut, err := e.sandbox.Resolve(outPath)
	if err != nil {
		return fail(err)
	}

	info, err := os.Stat(resolvedIn)
	if err != nil {
		return fail(fmt.Errorf("failed to read %s: %w", resolvedIn, err))
	}
	if info.Size() > e.maxFileSize {
		return fail(fmt.Errorf("file too large: %s is %d bytes, limit is %d", resolvedIn, info.Size(), e.maxFileSize))
	}

	data, err := os.ReadFile(resolvedIn)
	if err != nil {
		return fail(fmt.Errorf("failed to read %s: %w", resolvedIn, err))
	}

	masterKey, err := e.unlock()
	if err != nil {
		return fail(err)
	}
	defer masterKey.Destroy()

	result, err := transform(masterKey.Bytes(), data)
	if err != nil {
		return fail(err)
	}

	if err = os.MkdirAll(filepath.Dir(resolvedOut), misc.DirPermissions); err != nil {
		return fail(fmt.Errorf("failed to create output directory: %w", err))
	}

	if err = persist.WriteSecureFile(resolvedOut, result, misc.FilePermissions); err != nil {
		return fail(fmt.Errorf("failed to write %s: %w", resolvedOut, err))
	}

	e.audit.Log(action, true, map[string]interface{}{
		"path":        inPath,
		"data_size":   len(data),
		"result_size": len(result),
	})

	return nil
}
