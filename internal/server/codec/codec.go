package codec

import (
	"strings"
)

// Format identifies an image encoding. Values match the names the standard
// image package registers for its decoders, so a Probe result can be compared
// directly against these constants.
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	WebP Format = "webp"
	GIF  Format = "gif"
	TIFF Format = "tiff"
	BMP  Format = "bmp"
)

// Info describes a decoded image: its encoding and pixel dimensions.
type Info struct {
	Format Format
	Width  int
	Height int
}

// Codec re-encodes images on disk. Implementations are expected to run an
// Encode call to completion once started; cancellation is the caller's
// concern, applied before the call.
type Codec interface {
	// Probe inspects the file header and reports format and dimensions
	// without decoding the full image.
	Probe(path string) (Info, error)

	// Encode decodes inputPath and writes it to outputPath in the given
	// format. Quality applies to lossy formats (JPEG, WebP) and is passed
	// through to the encoder unclamped; lossless formats use encoder
	// defaults. Returns the output dimensions.
	Encode(inputPath, outputPath string, format Format, quality int) (Info, error)
}

// Targets accepted by the compression API. The empty string and "auto" both
// mean "resolve from the source format".
const TargetAuto = "auto"

// ValidTarget reports whether s names an accepted target format.
func ValidTarget(s string) bool {
	switch NormalizeTarget(s) {
	case "", TargetAuto, string(JPEG), string(PNG), string(WebP):
		return true
	}
	return false
}

// NormalizeTarget lowercases and trims a raw target format field.
func NormalizeTarget(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ResolveTarget maps a requested target and the probed source format to the
// format the output is encoded in. An explicit jpeg/png/webp request wins.
// The auto path re-encodes JPEG and WebP sources as JPEG and keeps every
// other source format unchanged; auto never emits WebP, clients that want
// WebP output must request it explicitly.
func ResolveTarget(requested string, detected Format) Format {
	switch NormalizeTarget(requested) {
	case string(JPEG):
		return JPEG
	case string(PNG):
		return PNG
	case string(WebP):
		return WebP
	}

	if detected == JPEG || detected == WebP {
		return JPEG
	}
	return detected
}

// Lossy reports whether the format takes a quality parameter.
func Lossy(f Format) bool {
	return f == JPEG || f == WebP
}
