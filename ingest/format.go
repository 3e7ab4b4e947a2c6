package ingest

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// Format is one of the supported image formats. The set is closed; there
// is no registration hook.
type Format int

const (
	FormatUnknown Format = iota
	FormatPNG
	FormatJPEG
	FormatGIF
	FormatBMP
	FormatTIFF
	FormatWebP
)

// SniffLen is the number of leading bytes Sniff needs.
const SniffLen = 12

func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpeg"
	case FormatGIF:
		return "gif"
	case FormatBMP:
		return "bmp"
	case FormatTIFF:
		return "tiff"
	case FormatWebP:
		return "webp"
	default:
		return "unknown"
	}
}

var (
	sigPNG    = []byte("\x89PNG\r\n\x1a\n")
	sigJPEG   = []byte{0xff, 0xd8, 0xff}
	sigGIF87  = []byte("GIF87a")
	sigGIF89  = []byte("GIF89a")
	sigBMP    = []byte("BM")
	sigTIFFLE = []byte("II*\x00")
	sigTIFFBE = []byte("MM\x00*")
	sigRIFF   = []byte("RIFF")
	sigWEBP   = []byte("WEBP")
)

// Sniff identifies the format from the leading content bytes.
func Sniff(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, sigPNG):
		return FormatPNG
	case bytes.HasPrefix(head, sigJPEG):
		return FormatJPEG
	case bytes.HasPrefix(head, sigGIF87), bytes.HasPrefix(head, sigGIF89):
		return FormatGIF
	case bytes.HasPrefix(head, sigTIFFLE), bytes.HasPrefix(head, sigTIFFBE):
		return FormatTIFF
	case len(head) >= 12 && bytes.HasPrefix(head, sigRIFF) && bytes.Equal(head[8:12], sigWEBP):
		return FormatWebP
	case len(head) >= 14 && bytes.HasPrefix(head, sigBMP):
		return FormatBMP
	default:
		return FormatUnknown
	}
}

var extensionFormats = map[string]Format{
	".png":  FormatPNG,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".jpe":  FormatJPEG,
	".gif":  FormatGIF,
	".bmp":  FormatBMP,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
	".webp": FormatWebP,
}

// describeContent names the MIME type of content the closed table does not
// accept. It only feeds rejection details and never admits a format.
func describeContent(data []byte) string {
	return mimetype.Detect(data).String()
}

// FormatForName returns the format a file name's extension claims.
func FormatForName(name string) (Format, bool) {
	f, ok := extensionFormats[strings.ToLower(filepath.Ext(name))]
	return f, ok
}

// SupportedExtension reports whether name has an image extension.
func SupportedExtension(name string) bool {
	_, ok := FormatForName(name)
	return ok
}

func decodeConfig(f Format, r io.Reader) (image.Config, error) {
	switch f {
	case FormatPNG:
		return png.DecodeConfig(r)
	case FormatJPEG:
		return jpeg.DecodeConfig(r)
	case FormatGIF:
		return gif.DecodeConfig(r)
	case FormatBMP:
		return bmp.DecodeConfig(r)
	case FormatTIFF:
		return tiff.DecodeConfig(r)
	case FormatWebP:
		return webp.DecodeConfig(r)
	default:
		return image.Config{}, errUnknownFormat
	}
}

func decode(f Format, r io.Reader) (image.Image, error) {
	switch f {
	case FormatPNG:
		return png.Decode(r)
	case FormatJPEG:
		return jpeg.Decode(r)
	case FormatGIF:
		return gif.Decode(r)
	case FormatBMP:
		return bmp.Decode(r)
	case FormatTIFF:
		return tiff.Decode(r)
	case FormatWebP:
		return webp.Decode(r)
	default:
		return nil, errUnknownFormat
	}
}
