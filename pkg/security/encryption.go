package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strings"
)

var (
	ErrInvalidKeySize = errors.New("invalid key size")
	ErrEncryption     = errors.New("encryption failed")
	ErrDecryption     = errors.New("decryption failed")
)

// fieldPrefix marks a sealed column value so rows written before a key was
// configured can still be read.
const fieldPrefix = "enc:v1:"

// FieldCipher seals individual text columns with AES-GCM. A nil FieldCipher
// passes values through unchanged.
type FieldCipher struct {
	gcm cipher.AEAD
}

// NewFieldCipher takes a hex-encoded 16, 24 or 32 byte key.
func NewFieldCipher(hexKey string) (*FieldCipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrInvalidKeySize
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrEncryption
	}
	return &FieldCipher{gcm: gcm}, nil
}

func (f *FieldCipher) Seal(plain string) (string, error) {
	if f == nil || plain == "" {
		return plain, nil
	}
	nonce := make([]byte, f.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", ErrEncryption
	}
	sealed := f.gcm.Seal(nonce, nonce, []byte(plain), nil)
	return fieldPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (f *FieldCipher) Open(value string) (string, error) {
	if !strings.HasPrefix(value, fieldPrefix) {
		return value, nil
	}
	if f == nil {
		return "", ErrDecryption
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, fieldPrefix))
	if err != nil {
		return "", ErrDecryption
	}
	n := f.gcm.NonceSize()
	if len(data) < n {
		return "", ErrDecryption
	}
	plain, err := f.gcm.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plain), nil
}
