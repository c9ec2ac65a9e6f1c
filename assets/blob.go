package assets

import (
	"bytes"
	"encoding/base64"
	"io"
)

// Blob is a typed, read-only view of decrypted bytes for viewers that take a
// stream or a data URI.
type Blob struct {
	data     []byte
	mimeType string
}

func newBlob(data []byte, mimeType string) *Blob {
	return &Blob{data: data, mimeType: mimeType}
}

// Size returns the byte length.
func (b *Blob) Size() int {
	return len(b.data)
}

// Type returns the MIME type.
func (b *Blob) Type() string {
	return b.mimeType
}

// Reader returns a fresh reader over the bytes.
func (b *Blob) Reader() io.Reader {
	return bytes.NewReader(b.data)
}

// DataURI renders the blob as a base64 data URI.
func (b *Blob) DataURI() string {
	return "data:" + b.mimeType + ";base64," + base64.StdEncoding.EncodeToString(b.data)
}
