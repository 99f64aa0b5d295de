package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"

	"github.com/UriL0x/crypto-proyecto/internal/misc"
)

// GenerateKey produces a fresh random 256-bit key inside a locked buffer.
func GenerateKey() (*memguard.LockedBuffer, error) {
	key := make([]byte, misc.MasterKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	if IsWeakKey(key) {
		memguard.WipeBytes(key)
		return nil, errors.New("generated key failed entropy check")
	}

	protected := memguard.NewBufferFromBytes(key)
	memguard.WipeBytes(key)

	return protected, nil
}

// DeriveKey derives a wrapping key from a passphrase and salt using Argon2id
// with the fixed work parameters in misc. Deterministic for a given
// (passphrase, salt) pair.
func DeriveKey(passphrase []byte, saltEnclave *memguard.Enclave) (*memguard.LockedBuffer, error) {
	saltBuffer, err := saltEnclave.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open salt enclave: %w", err)
	}
	defer saltBuffer.Destroy()

	// Copy the salt so the derivation never reads a destroyed buffer.
	saltBytes := make([]byte, len(saltBuffer.Bytes()))
	copy(saltBytes, saltBuffer.Bytes())
	defer memguard.WipeBytes(saltBytes)

	derivedKey := argon2.IDKey(
		passphrase,
		saltBytes,
		misc.ArgonTime,
		misc.ArgonMemory,
		misc.ArgonThreads,
		misc.ArgonKeyLen,
	)

	protectedKey := memguard.NewBufferFromBytes(derivedKey)
	memguard.WipeBytes(derivedKey)

	return protectedKey, nil
}

// DeriveKeyPBKDF2 derives a wrapping key the way the v1 escrow format did:
// PBKDF2-HMAC-SHA256 with 200k iterations. Only used to unlock legacy records.
func DeriveKeyPBKDF2(passphrase []byte, saltEnclave *memguard.Enclave) (*memguard.LockedBuffer, error) {
	saltBuffer, err := saltEnclave.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open salt enclave: %w", err)
	}
	defer saltBuffer.Destroy()

	saltBytes := make([]byte, len(saltBuffer.Bytes()))
	copy(saltBytes, saltBuffer.Bytes())
	defer memguard.WipeBytes(saltBytes)

	derivedKey := pbkdf2.Key(passphrase, saltBytes, misc.PBKDF2Iterations, misc.MasterKeySize, sha256.New)

	protectedKey := memguard.NewBufferFromBytes(derivedKey)
	memguard.WipeBytes(derivedKey)

	return protectedKey, nil
}

// EncryptValue seals value with ChaCha20-Poly1305 under key, binding aad as
// associated data. Output layout: nonce || ciphertext+tag.
func EncryptValue(value, key, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, value, aad)

	encrypted := make([]byte, len(nonce)+len(ciphertext))
	copy(encrypted[:len(nonce)], nonce)
	copy(encrypted[len(nonce):], ciphertext)

	return encrypted, nil
}

// DecryptValue reverses EncryptValue. Authentication failure is reported as
// an error and no plaintext is returned.
func DecryptValue(encryptedData, key, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(encryptedData) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.New("encrypted data too short")
	}

	nonceSize := aead.NonceSize()
	nonce := encryptedData[:nonceSize]
	ciphertext := encryptedData[nonceSize:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	return plaintext, nil
}

// CalculateChecksum calculates SHA-256 checksum of data
func CalculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// IsWeakKey reports obviously degenerate key material: wrong length, constant
// bytes, or too little byte variety.
func IsWeakKey(key []byte) bool {
	if len(key) < misc.MasterKeySize {
		return true
	}

	firstByte := key[0]
	allSame := true
	for _, b := range key[1:] {
		if b != firstByte {
			allSame = false
			break
		}
	}
	if allSame {
		return true
	}

	uniqueBytes := make(map[byte]bool)
	for _, b := range key {
		uniqueBytes[b] = true
	}

	return len(uniqueBytes) < 16
}
