package codec

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	// Register WebP decoding; imaging itself registers JPEG, PNG, GIF,
	// TIFF and BMP.
	_ "golang.org/x/image/webp"
)

// imagingFormats maps our format names to the encoders imaging provides.
// WebP is handled separately because imaging cannot encode it.
var imagingFormats = map[Format]imaging.Format{
	JPEG: imaging.JPEG,
	PNG:  imaging.PNG,
	GIF:  imaging.GIF,
	TIFF: imaging.TIFF,
	BMP:  imaging.BMP,
}

// ImagingCodec implements Codec on top of disintegration/imaging, with
// chai2010/webp filling the WebP encoding gap.
type ImagingCodec struct{}

// NewImagingCodec creates the default codec implementation.
func NewImagingCodec() *ImagingCodec {
	return &ImagingCodec{}
}

// Probe reads the image header and returns format and dimensions.
func (c *ImagingCodec) Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	cfg, name, err := image.DecodeConfig(f)
	if err != nil {
		return Info{}, fmt.Errorf("unrecognized image data in %s: %w", filepath.Base(path), err)
	}

	return Info{Format: Format(name), Width: cfg.Width, Height: cfg.Height}, nil
}

// Encode decodes inputPath and writes outputPath in the requested format.
// The output file is removed again if encoding fails partway, so a file at
// outputPath always holds a complete image.
func (c *ImagingCodec) Encode(inputPath, outputPath string, format Format, quality int) (Info, error) {
	img, err := imaging.Open(inputPath)
	if err != nil {
		return Info{}, fmt.Errorf("decode %s: %w", filepath.Base(inputPath), err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return Info{}, fmt.Errorf("create output file: %w", err)
	}

	err = encode(out, img, format, quality)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(outputPath)
		return Info{}, fmt.Errorf("encode %s as %s: %w", filepath.Base(inputPath), format, err)
	}

	bounds := img.Bounds()
	return Info{Format: format, Width: bounds.Dx(), Height: bounds.Dy()}, nil
}

func encode(out *os.File, img image.Image, format Format, quality int) error {
	if format == WebP {
		return webp.Encode(out, img, &webp.Options{Quality: float32(quality)})
	}

	imgFormat, ok := imagingFormats[format]
	if !ok {
		return fmt.Errorf("unsupported output format %q", format)
	}

	var opts []imaging.EncodeOption
	if Lossy(format) {
		opts = append(opts, imaging.JPEGQuality(quality))
	}
	return imaging.Encode(out, img, imgFormat, opts...)
}
