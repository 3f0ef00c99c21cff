package cli

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"squish/internal/server/codec"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// Options holds one compression run, fully resolved from the command line.
type Options struct {
	InputPath  string
	OutputPath string
	Quality    int
	Format     string
}

// ParseArgs parses flags and the single input path.
func ParseArgs(args []string) (*Options, error) {
	fs := flag.NewFlagSet("squish", flag.ContinueOnError)
	quality := fs.Int("quality", 80, "encode quality for lossy formats")
	format := fs.String("format", "auto", "target format: auto, jpeg, png or webp")
	out := fs.String("out", "", "output path (default <input>-compressed<ext>)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return nil, &ValidationError{Arg: "<input>", Cause: "no input image provided"}
	}
	if len(rest) > 1 {
		return nil, &ValidationError{Arg: rest[1], Cause: "only one input image is supported"}
	}

	if !codec.ValidTarget(*format) {
		return nil, &ValidationError{Arg: *format, Cause: "unknown format (use auto, jpeg, png or webp)"}
	}

	input := filepath.Clean(rest[0])
	info, err := os.Stat(input)
	if err != nil {
		return nil, &ValidationError{Arg: rest[0], Cause: "not found or not accessible"}
	}
	if info.IsDir() {
		return nil, &ValidationError{Arg: rest[0], Cause: "is a directory, not an image"}
	}

	output := *out
	if output == "" {
		output = defaultOutputPath(input)
	}

	return &Options{
		InputPath:  input,
		OutputPath: output,
		Quality:    *quality,
		Format:     codec.NormalizeTarget(*format),
	}, nil
}

// Run compresses one image and writes a summary to w.
func Run(opts *Options, c codec.Codec, w io.Writer) error {
	src, err := c.Probe(opts.InputPath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	target := codec.ResolveTarget(opts.Format, src.Format)
	if _, err := c.Encode(opts.InputPath, opts.OutputPath, target, opts.Quality); err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}

	origInfo, err := os.Stat(opts.InputPath)
	if err != nil {
		return fmt.Errorf("failed to stat input: %w", err)
	}
	compInfo, err := os.Stat(opts.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to stat output: %w", err)
	}

	var pct int
	if origInfo.Size() > 0 {
		pct = int(math.Round(100 * float64(origInfo.Size()-compInfo.Size()) / float64(origInfo.Size())))
	}

	fmt.Fprintf(w, "✓ %s: %s %dx%d, %d bytes\n",
		opts.InputPath, src.Format, src.Width, src.Height, origInfo.Size())
	fmt.Fprintf(w, "✓ %s: %s, %d bytes (saved %d%%)\n",
		opts.OutputPath, target, compInfo.Size(), pct)
	return nil
}

func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "-compressed" + ext
}
