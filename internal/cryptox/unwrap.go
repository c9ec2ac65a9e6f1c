// Package cryptox holds the cryptographic primitives behind asset decryption:
// unwrapping the session key with AES-CBC and sealing or opening AES-GCM
// envelopes.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidPadding means the CBC plaintext did not end in valid PKCS7 padding.
	ErrInvalidPadding = errors.New("cryptox: invalid PKCS7 padding")
	// ErrInvalidWrappedKey means the wrapped key is not a whole number of AES blocks.
	ErrInvalidWrappedKey = errors.New("cryptox: wrapped key is not block aligned")
)

// KeyUnwrapper decrypts the wrapped file-encryption key handed out at login.
type KeyUnwrapper struct {
	key []byte
	iv  []byte
}

// NewKeyUnwrapper validates the application level CBC key and IV.
func NewKeyUnwrapper(key, iv []byte) (*KeyUnwrapper, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("cryptox: unwrap key must be 16, 24 or 32 bytes, got %d", len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("cryptox: unwrap iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}

	return &KeyUnwrapper{
		key: bytes.Clone(key),
		iv:  bytes.Clone(iv),
	}, nil
}

// Unwrap decrypts wrappedKeyBase64 with AES-CBC/PKCS7. The plaintext is itself
// base64 (URL-safe and unpadded forms accepted) and decodes to the raw key.
func (u *KeyUnwrapper) Unwrap(wrappedKeyBase64 string) ([]byte, error) {
	wrapped, err := DecodeBase64(wrappedKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("cryptox: decode wrapped key: %w", err)
	}
	if len(wrapped) == 0 || len(wrapped)%aes.BlockSize != 0 {
		return nil, ErrInvalidWrappedKey
	}

	block, err := aes.NewCipher(u.key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: unwrap cipher: %w", err)
	}

	plain := make([]byte, len(wrapped))
	cipher.NewCBCDecrypter(block, u.iv).CryptBlocks(plain, wrapped)

	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return nil, err
	}

	raw, err := DecodeBase64(string(plain))
	if err != nil {
		return nil, fmt.Errorf("cryptox: decode unwrapped key: %w", err)
	}
	return raw, nil
}

// Wrap is the inverse of Unwrap. The backend performs this step in production;
// it is kept for fixtures and tooling.
func (u *KeyUnwrapper) Wrap(rawKey []byte) (string, error) {
	block, err := aes.NewCipher(u.key)
	if err != nil {
		return "", fmt.Errorf("cryptox: wrap cipher: %w", err)
	}

	plain := pkcs7Pad([]byte(base64.StdEncoding.EncodeToString(rawKey)), aes.BlockSize)
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, u.iv).CryptBlocks(out, plain)

	return base64.StdEncoding.EncodeToString(out), nil
}

// NormalizeBase64 maps URL-safe characters to the standard alphabet, drops
// whitespace and pads to a multiple of four.
func NormalizeBase64(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '-':
			return '+'
		case '_':
			return '/'
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)

	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	return s
}

// DecodeBase64 decodes s after NormalizeBase64.
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(NormalizeBase64(s))
}

// Zero overwrites b.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, ErrInvalidPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrInvalidPadding
		}
	}
	return b[:len(b)-n], nil
}
