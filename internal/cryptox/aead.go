package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sys/cpu"
)

const (
	// NonceSize is the AES-GCM nonce length carried in front of every envelope.
	NonceSize = 12
	// TagSize is the AES-GCM authentication tag length.
	TagSize = 16
)

var (
	// ErrEnvelopeTooShort means the envelope cannot hold a nonce and a tag.
	ErrEnvelopeTooShort = errors.New("cryptox: envelope shorter than nonce and tag")
	// ErrAuthentication means the tag did not verify: wrong key or tampered data.
	ErrAuthentication = errors.New("cryptox: message authentication failed")
)

// AEAD seals and opens AES-GCM messages with a caller supplied key.
type AEAD interface {
	Name() string
	Seal(key, nonce, plaintext []byte) ([]byte, error)
	Open(key, nonce, ciphertext []byte) ([]byte, error)
}

// NativeGCM uses the platform AES-GCM path, which runs on AES and carry-less
// multiply instructions when the CPU has them.
type NativeGCM struct{}

// SoftwareGCM forces the portable table-based GCM implementation.
type SoftwareGCM struct{}

// opaqueBlock hides the concrete AES block type from cipher.NewGCM so the
// generic GCM code is used instead of the hardware specialisation.
type opaqueBlock struct {
	cipher.Block
}

func (NativeGCM) Name() string { return "native" }

func (NativeGCM) Seal(key, nonce, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key, false)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nil
}

func (NativeGCM) Open(key, nonce, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key, false)
	if err != nil {
		return nil, err
	}
	return open(gcm, nonce, ciphertext)
}

func (SoftwareGCM) Name() string { return "software" }

func (SoftwareGCM) Seal(key, nonce, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key, true)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nil
}

func (SoftwareGCM) Open(key, nonce, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key, true)
	if err != nil {
		return nil, err
	}
	return open(gcm, nonce, ciphertext)
}

// HasHardwareAES reports whether this CPU accelerates both AES rounds and the
// GHASH multiply.
func HasHardwareAES() bool {
	switch runtime.GOARCH {
	case "amd64", "386":
		return cpu.X86.HasAES && cpu.X86.HasPCLMULQDQ
	case "arm64":
		return cpu.ARM64.HasAES && cpu.ARM64.HasPMULL
	case "s390x":
		return cpu.S390X.HasAES && cpu.S390X.HasGHASH
	case "ppc64le":
		return cpu.PPC64.IsPOWER8
	default:
		return false
	}
}

// SelectAEAD picks the backend once, at startup.
func SelectAEAD() AEAD {
	if HasHardwareAES() {
		return NativeGCM{}
	}
	return SoftwareGCM{}
}

// Seal encrypts plaintext under key with a fresh random nonce and returns
// nonce || ciphertext || tag.
func Seal(a AEAD, key, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}

	sealed, err := a.Seal(key, nonce, plaintext)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, NonceSize+len(sealed))
	out = append(out, nonce...)
	return append(out, sealed...), nil
}

// Open splits envelope into nonce and ciphertext+tag and decrypts it.
func Open(a AEAD, key, envelope []byte) ([]byte, error) {
	if len(envelope) < NonceSize+TagSize {
		return nil, ErrEnvelopeTooShort
	}
	return a.Open(key, envelope[:NonceSize], envelope[NonceSize:])
}

func newGCM(key []byte, software bool) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: aes key: %w", err)
	}
	if software {
		return cipher.NewGCM(opaqueBlock{block})
	}
	return cipher.NewGCM(block)
}

func open(gcm cipher.AEAD, nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("cryptox: nonce must be %d bytes, got %d", gcm.NonceSize(), len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}
