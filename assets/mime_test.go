package assets

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniffMIME(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"pdf", []byte{0x25, 0x50, 0x44, 0x46, 0x2D}, MIMEPDF},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D}, MIMEPNG},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xDB}, MIMEJPEG},
		{"gif falls back", []byte("GIF89a"), MIMEPDF},
		{"short jpeg prefix", []byte{0xFF, 0xD8}, MIMEPDF},
		{"empty", nil, MIMEPDF},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SniffMIME(tt.in), tt.name)
	}
}

func TestFileExtension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".pdf", FileExtension(MIMEPDF))
	assert.Equal(t, ".png", FileExtension(MIMEPNG))
	assert.Equal(t, ".jpg", FileExtension(MIMEJPEG))
	assert.Equal(t, ".pdf", FileExtension("application/octet-stream"))
}

func TestIsPDF(t *testing.T) {
	t.Parallel()

	assert.True(t, isPDF("application/pdf"))
	assert.True(t, isPDF("Application/PDF; charset=binary"))
	assert.False(t, isPDF("application/octet-stream"))
	assert.False(t, isPDF(""))
	assert.False(t, isPDF(";;"))
}

func TestBlob(t *testing.T) {
	t.Parallel()

	b := newBlob([]byte("%PDF"), MIMEPDF)
	assert.Equal(t, 4, b.Size())
	assert.Equal(t, MIMEPDF, b.Type())
	assert.Equal(t, "data:application/pdf;base64,JVBERg==", b.DataURI())

	data, err := io.ReadAll(b.Reader())
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
	again, err := io.ReadAll(b.Reader())
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestExtractPayload(t *testing.T) {
	t.Parallel()

	got, apiErr := extractPayload([]byte(`  {"encrypted_data":"QUJD","data":"ignored"}  `))
	require.Nil(t, apiErr)
	assert.Equal(t, "QUJD", got)

	got, apiErr = extractPayload([]byte("12345678"))
	require.Nil(t, apiErr)
	assert.Equal(t, "12345678", got, "numeric-looking base64 is used as text")

	_, apiErr = extractPayload([]byte{0xff, 0xfe})
	require.NotNil(t, apiErr)
	assert.True(t, strings.Contains(apiErr.Message, "decrypt"))
}
