package assets

import "bytes"

const (
	MIMEPDF  = "application/pdf"
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
)

var (
	pdfMagic  = []byte("%PDF")
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
)

// SniffMIME detects PDF, PNG and JPEG by their leading bytes. Anything else
// is reported as PDF, the usual clinical asset.
func SniffMIME(b []byte) string {
	switch {
	case bytes.HasPrefix(b, pdfMagic):
		return MIMEPDF
	case bytes.HasPrefix(b, pngMagic):
		return MIMEPNG
	case bytes.HasPrefix(b, jpegMagic):
		return MIMEJPEG
	default:
		return MIMEPDF
	}
}

// FileExtension returns the download extension for a sniffed MIME type.
func FileExtension(mimeType string) string {
	switch mimeType {
	case MIMEPNG:
		return ".png"
	case MIMEJPEG:
		return ".jpg"
	default:
		return ".pdf"
	}
}
