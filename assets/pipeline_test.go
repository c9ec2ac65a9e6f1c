package assets

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaheshReddy-s/emrcore"
	"github.com/MaheshReddy-s/emrcore/internal/cryptox"
)

var (
	testUnwrapKey = []byte("0123456789abcdef0123456789abcdef")
	testUnwrapIV  = []byte("abcdef9876543210")
	samplePDF     = []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n%%EOF")
)

type fixture struct {
	client   *emrcore.Client
	pipeline *Pipeline
	fileKey  []byte
	hits     *atomic.Int32
}

func newFileKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func wrapKey(t *testing.T, raw []byte) string {
	t.Helper()
	u, err := cryptox.NewKeyUnwrapper(testUnwrapKey, testUnwrapIV)
	require.NoError(t, err)
	wrapped, err := u.Wrap(raw)
	require.NoError(t, err)
	return wrapped
}

func sealB64(t *testing.T, key, plaintext []byte) string {
	t.Helper()
	envelope, err := cryptox.Seal(cryptox.NativeGCM{}, key, plaintext)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(envelope)
}

func newFixture(t *testing.T, handler http.HandlerFunc, opts ...Option) *fixture {
	t.Helper()

	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client := emrcore.New(emrcore.WithBaseURL(server.URL), emrcore.WithCoalescingWindow(0))
	t.Cleanup(client.Close)

	fileKey := newFileKey(t)
	client.SetToken("token")
	client.Session().SetWrappedFileKey(wrapKey(t, fileKey))

	pipeline, err := NewPipeline(client, client.Session(), UnwrapConfig{Key: testUnwrapKey, IV: testUnwrapIV}, opts...)
	require.NoError(t, err)

	return &fixture{client: client, pipeline: pipeline, fileKey: fileKey, hits: hits}
}

func respond(body string, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		_, _ = io.WriteString(w, body)
	}
}

func TestFetchAndDecryptPayloadShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		wrap func(b64 string) string
	}{
		{"encrypted_data field", func(b64 string) string { return `{"encrypted_data":"` + b64 + `"}` }},
		{"data field", func(b64 string) string { return `{"data":"` + b64 + `"}` }},
		{"JSON string", func(b64 string) string { return `"` + b64 + `"` }},
		{"bare text", func(b64 string) string { return b64 }},
		{"bare URL-safe unpadded", func(b64 string) string {
			return strings.TrimRight(strings.NewReplacer("+", "-", "/", "_").Replace(b64), "=")
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var body atomic.Value
			f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "*/*", r.Header.Get("Accept"))
				assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
				w.Header().Set("Content-Type", "text/plain")
				_, _ = io.WriteString(w, body.Load().(string))
			})
			body.Store(tt.wrap(sealB64(t, f.fileKey, samplePDF)))

			asset, err := f.pipeline.FetchAndDecrypt(context.Background(), "/reports/1/file")
			require.NoError(t, err)

			assert.Equal(t, samplePDF, asset.Bytes)
			assert.Equal(t, MIMEPDF, asset.MIMEType)
			assert.True(t, asset.Encrypted)
			require.NotNil(t, asset.Blob)
			assert.Equal(t, len(samplePDF), asset.Blob.Size())
			assert.Equal(t, MIMEPDF, asset.Blob.Type())
		})
	}
}

func TestFetchAndDecryptSniffsImages(t *testing.T) {
	t.Parallel()

	png := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 32)...)
	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 32)...)

	for name, tc := range map[string]struct {
		plain []byte
		mime  string
	}{
		"png":     {png, MIMEPNG},
		"jpeg":    {jpeg, MIMEJPEG},
		"unknown": {[]byte("GIF89a"), MIMEPDF},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var body atomic.Value
			f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body.Load().(string))
			})
			body.Store(sealB64(t, f.fileKey, tc.plain))

			asset, err := f.pipeline.FetchAndDecrypt(context.Background(), "/scans/7")
			require.NoError(t, err)
			assert.Equal(t, tc.mime, asset.MIMEType)
			assert.Equal(t, tc.plain, asset.Bytes)
		})
	}
}

func TestFetchAndDecryptPlainPDF(t *testing.T) {
	t.Parallel()

	f := newFixture(t, respond(string(samplePDF), "application/pdf; charset=binary"))

	asset, err := f.pipeline.FetchAndDecrypt(context.Background(), "/legacy/report.pdf")
	require.NoError(t, err)

	assert.False(t, asset.Encrypted)
	assert.Equal(t, samplePDF, asset.Bytes)
	assert.Equal(t, MIMEPDF, asset.MIMEType)
}

func TestFetchAndDecryptMissingKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t, respond("unused", ""))
	f.client.Session().Logout()

	_, err := f.pipeline.FetchAndDecrypt(context.Background(), "/reports/1/file")
	require.Error(t, err)
	assert.True(t, errors.Is(err, emrcore.ErrMissingKey))
	assert.False(t, emrcore.IsRetryable(err))
	assert.Equal(t, int32(0), f.hits.Load(), "no request without a key")
}

func TestFetchAndDecryptTampered(t *testing.T) {
	t.Parallel()

	var body atomic.Value
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body.Load().(string))
	})

	envelope, err := cryptox.Seal(cryptox.NativeGCM{}, f.fileKey, samplePDF)
	require.NoError(t, err)
	envelope[len(envelope)-1] ^= 0x01
	body.Store(base64.StdEncoding.EncodeToString(envelope))

	asset, err := f.pipeline.FetchAndDecrypt(context.Background(), "/reports/1/file")
	assert.Nil(t, asset)
	require.Error(t, err)
	assert.True(t, errors.Is(err, emrcore.ErrDecryptionFailed))

	var apiErr *emrcore.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "failed to decrypt medical report", apiErr.Message)
	assert.True(t, errors.Is(err, cryptox.ErrAuthentication))
}

func TestFetchAndDecryptBadInputs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		wrapped  string
		wantType string
	}{
		{"not base64", "***not base64***", "", emrcore.ErrorTypeDecryptionFailed},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short")), "", emrcore.ErrorTypeDecryptionFailed},
		{"object without payload", `{"status":"ok"}`, "", emrcore.ErrorTypeMalformedResponse},
		{"garbage wrapped key", base64.StdEncoding.EncodeToString(make([]byte, 64)), "Zm9vYmFy", emrcore.ErrorTypeDecryptionFailed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, respond(tt.body, ""))
			if tt.wrapped != "" {
				f.client.Session().SetWrappedFileKey(tt.wrapped)
			}

			_, err := f.pipeline.FetchAndDecrypt(context.Background(), "/reports/1/file")
			var apiErr *emrcore.Error
			require.True(t, errors.As(err, &apiErr), "expected *emrcore.Error, got %v", err)
			assert.Equal(t, tt.wantType, apiErr.Type)
			assert.False(t, apiErr.Retryable)
		})
	}
}

func TestFetchAndDecryptPropagatesFetchErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"report not found"}`)
	})

	_, err := f.pipeline.FetchAndDecrypt(context.Background(), "/reports/404/file")
	var apiErr *emrcore.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, emrcore.ErrorTypeClient, apiErr.Type)
	assert.Equal(t, "report not found", apiErr.Message)
}

func TestBlobOutputDisabled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, respond(string(samplePDF), "application/pdf"), WithBlobOutput(false))

	asset, err := f.pipeline.FetchAndDecrypt(context.Background(), "/legacy.pdf")
	require.NoError(t, err)
	assert.Nil(t, asset.Blob)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	for _, opts := range [][]Option{nil, {WithSoftwareCipher()}} {
		f := newFixture(t, respond("", ""), opts...)
		key := newFileKey(t)

		first, err := f.pipeline.Encrypt(samplePDF, key)
		require.NoError(t, err)
		second, err := f.pipeline.Encrypt(samplePDF, key)
		require.NoError(t, err)

		assert.Len(t, first, cryptox.NonceSize+len(samplePDF)+cryptox.TagSize)
		assert.NotEqual(t, first[:cryptox.NonceSize], second[:cryptox.NonceSize], "nonce must be fresh per call")

		plain, err := f.pipeline.Decrypt(first, key)
		require.NoError(t, err)
		assert.Equal(t, samplePDF, plain)

		_, err = f.pipeline.Decrypt(first, newFileKey(t))
		assert.True(t, errors.Is(err, emrcore.ErrDecryptionFailed))
	}
}

func TestEncryptRejectsBadKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t, respond("", ""))
	_, err := f.pipeline.Encrypt(samplePDF, []byte("short"))
	require.Error(t, err)
}

func TestSoftwareCipherBackend(t *testing.T) {
	t.Parallel()

	f := newFixture(t, respond("", ""), WithSoftwareCipher())
	assert.Equal(t, "software", f.pipeline.Backend())
}

func TestUnwrapKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t, respond("", ""))
	key, err := f.pipeline.UnwrapKey(f.client.Session().WrappedFileKey())
	require.NoError(t, err)
	assert.Equal(t, f.fileKey, key)

	_, err = f.pipeline.UnwrapKey("AAAA")
	assert.True(t, errors.Is(err, emrcore.ErrDecryptionFailed))
}

func TestNewPipelineValidation(t *testing.T) {
	t.Parallel()

	client := emrcore.New()
	defer client.Close()
	cfg := UnwrapConfig{Key: testUnwrapKey, IV: testUnwrapIV}

	_, err := NewPipeline(nil, client.Session(), cfg)
	assert.Error(t, err)
	_, err = NewPipeline(client, nil, cfg)
	assert.Error(t, err)
	_, err = NewPipeline(client, client.Session(), UnwrapConfig{Key: []byte("short"), IV: testUnwrapIV})
	assert.Error(t, err)
	_, err = NewPipeline(client, client.Session(), UnwrapConfig{Key: testUnwrapKey, IV: []byte("short")})
	assert.Error(t, err)
}

func TestPipelineMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	mc := emrcore.NewMetricsCollectorWithRegistry(registry)

	f := newFixture(t, respond(string(samplePDF), "application/pdf"), WithMetrics(mc))
	_, err := f.pipeline.FetchAndDecrypt(context.Background(), "/legacy.pdf")
	require.NoError(t, err)

	f.client.Session().SetWrappedFileKey("")
	_, err = f.pipeline.FetchAndDecrypt(context.Background(), "/legacy.pdf")
	require.Error(t, err)

	count, err := testutil.GatherAndCount(registry, "emrcore_asset_decryptions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series for plain, one for missing key")
}
