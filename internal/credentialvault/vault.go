// Package credentialvault provides at-rest symmetric encryption for carrier
// provider credentials. Encrypt and Decrypt (and their map-wide forms
// EncryptMap and DecryptMap) are its only exported operations: plaintext credential material never leaves the vault except
// into a providerdriver.Driver instance constructed from a decrypted map.
package credentialvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const keyLenBytes = 32

// pbkdf2Iterations is the work factor used when deriving a key from a
// passphrase rather than accepting raw key material directly.
const pbkdf2Iterations = 210000

// pbkdf2Salt is a fixed, non-secret salt: the vault key is process-wide and
// rotated by redeploying with a new VOIP_ENCRYPTION_KEY, not by per-value
// salting.
var pbkdf2Salt = []byte("callcore-credential-vault-v1")

// Vault encrypts and decrypts provider credential values with AES-256-CBC.
// The wire format is hex(iv):hex(ciphertext); iv is 16 random bytes per
// call to Encrypt so repeated encryptions of the same plaintext differ.
type Vault struct {
	key []byte
}

// New builds a Vault from raw 32-byte key material. Returns an error (and
// refuses to start) if key is shorter than 32 bytes.
func New(key []byte) (*Vault, error) {
	slog.Info("credentialvault: initializing", "key_len", len(key))
	if len(key) < keyLenBytes {
		return nil, fmt.Errorf("credentialvault: key must be at least %d bytes, got %d", keyLenBytes, len(key))
	}
	return &Vault{key: key[:keyLenBytes]}, nil
}

// NewFromPassphrase derives a 32-byte key from an arbitrary-length
// passphrase via PBKDF2-HMAC-SHA-256, for deployments that supply
// VOIP_ENCRYPTION_KEY as a human-chosen secret rather than raw key bytes.
func NewFromPassphrase(passphrase string) (*Vault, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, errors.New("credentialvault: passphrase must not be empty")
	}
	key := pbkdf2.Key([]byte(passphrase), pbkdf2Salt, pbkdf2Iterations, keyLenBytes, sha256.New)
	return New(key)
}

// Encrypt returns the hex(iv):hex(ciphertext) encoding of plaintext.
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("credentialvault: new cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())

	iv := make([]byte, block.BlockSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("credentialvault: generate iv: %w", err)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. Returns an error if format is malformed, the
// ciphertext length is not a multiple of the block size, or the padding is
// invalid.
func (v *Vault) Decrypt(encoded string) ([]byte, error) {
	ivHex, ctHex, ok := strings.Cut(encoded, ":")
	if !ok {
		return nil, errors.New("credentialvault: malformed ciphertext, want iv:ct")
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, fmt.Errorf("credentialvault: decode iv: %w", err)
	}
	ciphertext, err := hex.DecodeString(ctHex)
	if err != nil {
		return nil, fmt.Errorf("credentialvault: decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("credentialvault: new cipher: %w", err)
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("credentialvault: iv length %d, want %d", len(iv), block.BlockSize())
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, errors.New("credentialvault: ciphertext is not a multiple of the block size")
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext, block.BlockSize())
}

// EncryptMap encrypts every value of a credentials map into a new map; the
// input map is not modified, and keys are left as-is since they are field
// names, not secrets.
func (v *Vault) EncryptMap(plain map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(plain))
	for k, val := range plain {
		enc, err := v.Encrypt([]byte(val))
		if err != nil {
			return nil, fmt.Errorf("credentialvault: encrypt field %q: %w", k, err)
		}
		out[k] = enc
	}
	return out, nil
}

// DecryptMap decrypts every value of an encrypted credentials map.
func (v *Vault) DecryptMap(encoded map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(encoded))
	for k, val := range encoded {
		dec, err := v.Decrypt(val)
		if err != nil {
			return nil, fmt.Errorf("credentialvault: decrypt field %q: %w", k, err)
		}
		out[k] = string(dec)
	}
	return out, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("credentialvault: invalid padded data length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, errors.New("credentialvault: invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("credentialvault: invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}
