package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"math/rand"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"squish/internal/server/codec"
	"squish/internal/server/config"
	"squish/internal/server/metrics"
	"squish/internal/server/storage"
)

func newTestService(t *testing.T) (*CompressionService, string) {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		StoragePath:     dir,
		MaxUploadSize:   10 << 20,
		RetentionWindow: 24 * time.Hour,
		MaxConcurrent:   2,
	}
	store := storage.NewFileSystemStore(dir)
	m := metrics.New(prometheus.NewRegistry())
	svc := NewCompressionService(store, codec.NewImagingCodec(), cfg, m)
	return svc, dir
}

// noiseImage produces an incompressible-ish fixture so JPEG re-encoding at
// lower quality actually shrinks it.
func noiseImage(t *testing.T, w, h int) image.Image {
	t.Helper()

	rng := rand.New(rand.NewSource(7))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

func jpegUpload(t *testing.T, name string) Upload {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, noiseImage(t, 120, 90), &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	return Upload{
		Filename:    name,
		ContentType: "image/jpeg",
		Size:        int64(buf.Len()),
		Data:        &buf,
	}
}

func pngUpload(t *testing.T, name string) Upload {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, noiseImage(t, 80, 60)); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	return Upload{
		Filename:    name,
		ContentType: "image/png",
		Size:        int64(buf.Len()),
		Data:        &buf,
	}
}

// panickyCodec delegates to a real codec but panics on the first Encode,
// standing in for a crash inside the encoder libraries.
type panickyCodec struct {
	codec.Codec
	tripped bool
}

func (p *panickyCodec) Encode(inputPath, outputPath string, format codec.Format, quality int) (codec.Info, error) {
	if !p.tripped {
		p.tripped = true
		panic("encoder failure")
	}
	return p.Codec.Encode(inputPath, outputPath, format, quality)
}

func TestCompress(t *testing.T) {
	t.Run("jpeg upload produces prefixed output and both files persist", func(t *testing.T) {
		svc, dir := newTestService(t)

		res, err := svc.Compress(context.Background(), jpegUpload(t, "photo.jpg"), Params{Quality: "60"})
		if err != nil {
			t.Fatalf("Compress failed: %v", err)
		}

		if !strings.HasSuffix(res.Original.Name, "-photo.jpg") {
			t.Errorf("staged name = %q, want suffix -photo.jpg", res.Original.Name)
		}
		if res.Compressed.Name != "compressed-"+res.Original.Name {
			t.Errorf("output name = %q, want compressed-%s", res.Compressed.Name, res.Original.Name)
		}
		if res.Compressed.Format != "jpeg" {
			t.Errorf("resolved format = %q, want jpeg", res.Compressed.Format)
		}
		if res.Original.Width != 120 || res.Original.Height != 90 {
			t.Errorf("original dimensions = %dx%d, want 120x90", res.Original.Width, res.Original.Height)
		}
		if res.Original.Path != "/uploads/"+res.Original.Name {
			t.Errorf("original path = %q", res.Original.Path)
		}

		for _, name := range []string{res.Original.Name, res.Compressed.Name} {
			if _, err := os.Stat(dir + "/" + name); err != nil {
				t.Errorf("expected %s on disk: %v", name, err)
			}
		}
	})

	t.Run("auto keeps png as png", func(t *testing.T) {
		svc, _ := newTestService(t)

		res, err := svc.Compress(context.Background(), pngUpload(t, "diagram.png"), Params{})
		if err != nil {
			t.Fatalf("Compress failed: %v", err)
		}
		if res.Compressed.Format != "png" {
			t.Errorf("resolved format = %q, want png", res.Compressed.Format)
		}
	})

	t.Run("explicit webp transcodes a jpeg source", func(t *testing.T) {
		svc, _ := newTestService(t)

		res, err := svc.Compress(context.Background(), jpegUpload(t, "photo.jpg"), Params{Format: "webp"})
		if err != nil {
			t.Fatalf("Compress failed: %v", err)
		}
		if res.Compressed.Format != "webp" {
			t.Errorf("resolved format = %q, want webp", res.Compressed.Format)
		}
	})

	t.Run("savings reflect the size delta", func(t *testing.T) {
		svc, _ := newTestService(t)

		res, err := svc.Compress(context.Background(), jpegUpload(t, "photo.jpg"), Params{Quality: "20"})
		if err != nil {
			t.Fatalf("Compress failed: %v", err)
		}
		if got := res.Original.Size - res.Compressed.Size; res.Savings.Bytes != got {
			t.Errorf("savings bytes = %d, want %d", res.Savings.Bytes, got)
		}
		if res.Savings.Percentage <= 0 {
			t.Errorf("quality 20 re-encode should shrink the fixture, got %d%%", res.Savings.Percentage)
		}
	})

	t.Run("non-image content type is rejected before staging", func(t *testing.T) {
		svc, dir := newTestService(t)

		up := Upload{
			Filename:    "notes.txt",
			ContentType: "text/plain",
			Size:        10,
			Data:        strings.NewReader("plain text"),
		}
		_, err := svc.Compress(context.Background(), up, Params{})
		if !errors.Is(err, ErrNotImage) {
			t.Fatalf("err = %v, want ErrNotImage", err)
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("reading storage dir: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("rejected upload left %d file(s) behind", len(entries))
		}
	})

	t.Run("oversize upload is rejected", func(t *testing.T) {
		svc, _ := newTestService(t)

		up := jpegUpload(t, "huge.jpg")
		up.Size = 10<<20 + 1
		_, err := svc.Compress(context.Background(), up, Params{})
		if !errors.Is(err, ErrFileTooLarge) {
			t.Fatalf("err = %v, want ErrFileTooLarge", err)
		}
	})

	t.Run("unknown target format is rejected", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Compress(context.Background(), jpegUpload(t, "photo.jpg"), Params{Format: "avif"})
		if !errors.Is(err, ErrBadFormat) {
			t.Fatalf("err = %v, want ErrBadFormat", err)
		}
	})

	t.Run("corrupt image fails after staging", func(t *testing.T) {
		svc, dir := newTestService(t)

		up := Upload{
			Filename:    "fake.jpg",
			ContentType: "image/jpeg",
			Size:        20,
			Data:        strings.NewReader("not really an image"),
		}
		_, err := svc.Compress(context.Background(), up, Params{})
		if err == nil {
			t.Fatal("expected error for corrupt input")
		}

		// The staged input stays behind for the sweeper.
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("reading storage dir: %v", err)
		}
		if len(entries) != 1 {
			t.Errorf("expected 1 staged file, found %d", len(entries))
		}
	})

	t.Run("codec slot survives an encoder panic", func(t *testing.T) {
		dir := t.TempDir()
		cfg := &config.Config{
			StoragePath:     dir,
			MaxUploadSize:   10 << 20,
			RetentionWindow: 24 * time.Hour,
			MaxConcurrent:   1,
		}
		store := storage.NewFileSystemStore(dir)
		m := metrics.New(prometheus.NewRegistry())
		svc := NewCompressionService(store, &panickyCodec{Codec: codec.NewImagingCodec()}, cfg, m)

		func() {
			defer func() {
				if recover() == nil {
					t.Fatal("expected the first call to panic")
				}
			}()
			svc.Compress(context.Background(), jpegUpload(t, "boom.jpg"), Params{})
		}()

		// With a single slot, a leaked acquisition would block the retry
		// until the deadline.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := svc.Compress(ctx, jpegUpload(t, "after.jpg"), Params{}); err != nil {
			t.Fatalf("expected the slot to be free again: %v", err)
		}
	})
}

func TestComputeSavings(t *testing.T) {
	tests := []struct {
		name    string
		orig    int64
		comp    int64
		wantPct int
	}{
		{"thirty percent", 1_000_000, 700_000, 30},
		{"rounds half up", 1000, 995, 1},
		{"rounds down", 1000, 996, 0},
		{"no change", 500, 500, 0},
		{"negative when output grows", 1000, 1500, -50},
		{"zero original", 0, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeSavings(tt.orig, tt.comp)
			if got.Percentage != tt.wantPct {
				t.Errorf("computeSavings(%d, %d).Percentage = %d, want %d", tt.orig, tt.comp, got.Percentage, tt.wantPct)
			}
			if got.Bytes != tt.orig-tt.comp {
				t.Errorf("computeSavings(%d, %d).Bytes = %d, want %d", tt.orig, tt.comp, got.Bytes, tt.orig-tt.comp)
			}
		})
	}
}

func TestResolveQuality(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 80},
		{"abc", 80},
		{"7.5", 80},
		{" 55 ", 55},
		{"100", 100},
		{"0", 0},
		{"-3", -3},
		{"150", 150},
	}

	for _, tt := range tests {
		if got := resolveQuality(tt.raw); got != tt.want {
			t.Errorf("resolveQuality(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain name", "cat.jpg", "cat.jpg"},
		{"unix path stripped", "/etc/passwd", "passwd"},
		{"relative path stripped", "../../escape.png", "escape.png"},
		{"windows path stripped", `C:\Users\me\pic.png`, "pic.png"},
		{"empty becomes image", "", "image"},
		{"dot becomes image", ".", "image"},
		{"dotdot becomes image", "..", "image"},
		{"bare slash becomes image", "/", "image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeFilename(tt.in); got != tt.want {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("long names keep their extension", func(t *testing.T) {
		long := strings.Repeat("a", 300) + ".jpeg"
		got := sanitizeFilename(long)
		if len(got) > 200 {
			t.Errorf("sanitized length = %d, want <= 200", len(got))
		}
		if !strings.HasSuffix(got, ".jpeg") {
			t.Errorf("sanitized name %q lost its extension", got)
		}
	})

	t.Run("oversized extension still capped", func(t *testing.T) {
		got := sanitizeFilename("a." + strings.Repeat("b", 300))
		if len(got) > 200 {
			t.Errorf("sanitized length = %d, want <= 200", len(got))
		}
		if got == "" {
			t.Error("sanitized name must not be empty")
		}
	})
}

func TestDownload(t *testing.T) {
	svc, dir := newTestService(t)

	if err := os.WriteFile(dir+"/stored.jpg", []byte("data"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	t.Run("existing file resolves to its storage path", func(t *testing.T) {
		path, err := svc.Download("stored.jpg")
		if err != nil {
			t.Fatalf("Download failed: %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("returned path not readable: %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := svc.Download("absent.jpg"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("traversal name", func(t *testing.T) {
		if _, err := svc.Download("../stored.jpg"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestInfo(t *testing.T) {
	svc, dir := newTestService(t)

	if err := os.WriteFile(dir+"/stored.jpg", []byte("data"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	details, err := svc.Info("stored.jpg")
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if details.Size != 4 {
		t.Errorf("size = %d, want 4", details.Size)
	}
	if want := details.ModifiedAt.Add(24 * time.Hour); !details.ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want %v", details.ExpiresAt, want)
	}

	if _, err := svc.Info("absent.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing file err = %v, want ErrNotFound", err)
	}
}

func TestGetStats(t *testing.T) {
	svc, dir := newTestService(t)

	files := map[string]int{
		"1-aaaa-cat.jpg":            100,
		"2-bbbb-dog.png":            200,
		"compressed-1-aaaa-cat.jpg": 60,
	}
	for name, size := range files {
		if err := os.WriteFile(dir+"/"+name, bytes.Repeat([]byte("x"), size), 0o644); err != nil {
			t.Fatalf("writing fixture %s: %v", name, err)
		}
	}

	stats, err := svc.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalFiles != 3 {
		t.Errorf("total files = %d, want 3", stats.TotalFiles)
	}
	if stats.Originals != 2 {
		t.Errorf("originals = %d, want 2", stats.Originals)
	}
	if stats.Compressed != 1 {
		t.Errorf("compressed = %d, want 1", stats.Compressed)
	}
	if stats.StorageUsed != 360 {
		t.Errorf("storage used = %d, want 360", stats.StorageUsed)
	}
}
