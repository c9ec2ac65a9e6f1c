// Package assets fetches clinical files through the API client and decrypts
// them with the session's file key.
package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MaheshReddy-s/emrcore"
	"github.com/MaheshReddy-s/emrcore/internal/cryptox"
)

const (
	messageMissingKey       = "missing file key, please sign in again"
	messageDecryptionFailed = "failed to decrypt medical report"

	outcomePlain     = "plain"
	outcomeDecrypted = "decrypted"
)

// Fetcher downloads an asset. *emrcore.Client implements it.
type Fetcher interface {
	GetWithMeta(ctx context.Context, path string, opts ...emrcore.RequestOption) (*emrcore.Response, error)
}

// KeySource yields the wrapped file key from sign-in. *emrcore.Session
// implements it.
type KeySource interface {
	WrappedFileKey() string
}

// UnwrapConfig is the application level AES-CBC key and IV that unwrap the
// file key. Key is 16, 24 or 32 bytes; IV is 16 bytes.
type UnwrapConfig struct {
	Key []byte
	IV  []byte
}

// Asset is a fetched file. Encrypted is false for legacy plain PDFs.
type Asset struct {
	Bytes     []byte
	MIMEType  string
	Encrypted bool
	// Blob is nil when blob output is disabled.
	Blob *Blob
}

// Pipeline fetches and decrypts assets. It is safe for concurrent use.
type Pipeline struct {
	fetcher   Fetcher
	keys      KeySource
	unwrapper *cryptox.KeyUnwrapper
	aead      cryptox.AEAD
	blobs     bool
	metrics   *emrcore.MetricsCollector
	logger    emrcore.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBlobOutput toggles Blob construction. It is on by default.
func WithBlobOutput(enabled bool) Option {
	return func(p *Pipeline) {
		p.blobs = enabled
	}
}

// WithSoftwareCipher forces the portable GCM implementation.
func WithSoftwareCipher() Option {
	return func(p *Pipeline) {
		p.aead = cryptox.SoftwareGCM{}
	}
}

// WithMetrics records decrypt outcomes on mc.
func WithMetrics(mc *emrcore.MetricsCollector) Option {
	return func(p *Pipeline) {
		p.metrics = mc
	}
}

// WithLogger sets the logger. Key material is never logged.
func WithLogger(l emrcore.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline builds a pipeline. The cipher backend is picked once here from
// the CPU's capabilities unless WithSoftwareCipher is given.
func NewPipeline(fetcher Fetcher, keys KeySource, cfg UnwrapConfig, opts ...Option) (*Pipeline, error) {
	if fetcher == nil {
		return nil, errors.New("assets: fetcher is required")
	}
	if keys == nil {
		return nil, errors.New("assets: key source is required")
	}

	unwrapper, err := cryptox.NewKeyUnwrapper(cfg.Key, cfg.IV)
	if err != nil {
		return nil, fmt.Errorf("assets: %w", err)
	}

	p := &Pipeline{
		fetcher:   fetcher,
		keys:      keys,
		unwrapper: unwrapper,
		aead:      cryptox.SelectAEAD(),
		blobs:     true,
		logger:    emrcore.NopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Backend names the AES-GCM implementation in use ("native" or "software").
func (p *Pipeline) Backend() string {
	return p.aead.Name()
}

// FetchAndDecrypt downloads url and returns the plaintext with its sniffed
// MIME type. A response already typed application/pdf is returned as is.
// Failures are *emrcore.Error: MissingKey, DecryptionFailed,
// MalformedResponse or whatever the fetch produced.
func (p *Pipeline) FetchAndDecrypt(ctx context.Context, url string) (*Asset, error) {
	wrapped := p.keys.WrappedFileKey()
	if strings.TrimSpace(wrapped) == "" {
		return nil, p.fail(&emrcore.Error{
			Type:      emrcore.ErrorTypeMissingKey,
			Code:      "0",
			Message:   messageMissingKey,
			Timestamp: time.Now(),
		})
	}

	resp, err := p.fetcher.GetWithMeta(ctx, url, emrcore.WithResponseKind(emrcore.KindBinary))
	if err != nil {
		return nil, p.fail(emrcore.NormalizeError(err))
	}

	if isPDF(resp.Header.Get("Content-Type")) {
		p.metrics.RecordDecryption(outcomePlain, p.Backend())
		return p.asset(resp.Body, MIMEPDF, false), nil
	}

	payload, apiErr := extractPayload(resp.Body)
	if apiErr != nil {
		return nil, p.fail(apiErr)
	}

	key, err := p.unwrapper.Unwrap(wrapped)
	if err != nil {
		return nil, p.fail(decryptionFailed(err))
	}
	defer cryptox.Zero(key)

	envelope, err := cryptox.DecodeBase64(payload)
	if err != nil {
		return nil, p.fail(decryptionFailed(fmt.Errorf("decode payload: %w", err)))
	}

	plain, err := p.Decrypt(envelope, key)
	if err != nil {
		return nil, p.fail(emrcore.NormalizeError(err))
	}

	mimeType := SniffMIME(plain)
	p.metrics.RecordDecryption(outcomeDecrypted, p.Backend())
	p.logger.Debug("Asset decrypted", "bytes", len(plain), "mimeType", mimeType, "backend", p.Backend())
	return p.asset(plain, mimeType, true), nil
}

// UnwrapKey decrypts a wrapped file key into raw AES-GCM key bytes.
func (p *Pipeline) UnwrapKey(wrappedKeyBase64 string) ([]byte, error) {
	key, err := p.unwrapper.Unwrap(wrappedKeyBase64)
	if err != nil {
		return nil, decryptionFailed(err)
	}
	return key, nil
}

// Encrypt seals plaintext under key and returns nonce || ciphertext || tag.
// Every call draws a fresh random nonce.
func (p *Pipeline) Encrypt(plaintext, key []byte) ([]byte, error) {
	out, err := cryptox.Seal(p.aead, key, plaintext)
	if err != nil {
		return nil, &emrcore.Error{
			Type:      emrcore.ErrorTypeInvalidRequest,
			Code:      "0",
			Message:   "failed to encrypt asset",
			Cause:     err,
			Timestamp: time.Now(),
		}
	}
	return out, nil
}

// Decrypt opens an envelope produced by Encrypt. Any failure, including a
// tag mismatch, is a DecryptionFailed error.
func (p *Pipeline) Decrypt(envelope, key []byte) ([]byte, error) {
	plain, err := cryptox.Open(p.aead, key, envelope)
	if err != nil {
		return nil, decryptionFailed(err)
	}
	return plain, nil
}

func (p *Pipeline) asset(data []byte, mimeType string, encrypted bool) *Asset {
	a := &Asset{Bytes: data, MIMEType: mimeType, Encrypted: encrypted}
	if p.blobs {
		a.Blob = newBlob(data, mimeType)
	}
	return a
}

func (p *Pipeline) fail(apiErr *emrcore.Error) *emrcore.Error {
	p.metrics.RecordDecryption(apiErr.Type, p.Backend())
	p.logger.Warn("Asset fetch failed", "type", apiErr.Type, "status", apiErr.Status)
	return apiErr
}

// extractPayload finds the base64 ciphertext in a body that is either a JSON
// object with encrypted_data or data, a JSON string, or the bare text.
func extractPayload(body []byte) (string, *emrcore.Error) {
	if !utf8.Valid(body) {
		return "", decryptionFailed(errors.New("payload is not text"))
	}
	text := strings.TrimSpace(string(body))

	var parsed interface{}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return text, nil
	}

	switch v := parsed.(type) {
	case string:
		return v, nil
	case map[string]interface{}:
		for _, field := range []string{"encrypted_data", "data"} {
			if s, ok := v[field].(string); ok && s != "" {
				return s, nil
			}
		}
		return "", &emrcore.Error{
			Type:      emrcore.ErrorTypeMalformedResponse,
			Code:      "0",
			Message:   "asset response has no encrypted_data or data field",
			Timestamp: time.Now(),
		}
	default:
		return text, nil
	}
}

func isPDF(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == MIMEPDF
}

func decryptionFailed(cause error) *emrcore.Error {
	return &emrcore.Error{
		Type:      emrcore.ErrorTypeDecryptionFailed,
		Code:      "0",
		Message:   messageDecryptionFailed,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}
