package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"squish/internal/server/codec"
	"squish/internal/server/config"
	"squish/internal/server/metrics"
	"squish/internal/server/storage"
)

// Sentinel errors for the service layer.
var (
	ErrNoFile       = errors.New("no image file supplied")
	ErrNotImage     = errors.New("uploaded file is not an image")
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	ErrBadFormat    = errors.New("unknown target format")
	ErrNotFound     = errors.New("file not found")
)

const (
	defaultQuality   = 80
	compressedPrefix = "compressed-"
)

// Upload describes the incoming multipart file as handed over by the API
// layer.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        io.Reader
}

// Params carries the per-request knobs exactly as received on the wire.
type Params struct {
	Quality string // string-encoded integer; absent or unparsable means 80
	Format  string // auto|jpeg|png|webp; empty means auto
}

// FileInfo describes one side of a compression result. Format is set only on
// the compressed side.
type FileInfo struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Savings quantifies the size difference between original and output.
// Percentage is negative when compression grew the file.
type Savings struct {
	Percentage int   `json:"percentage"`
	Bytes      int64 `json:"bytes"`
}

// Result is the response body for a successful compression.
type Result struct {
	Original   FileInfo `json:"original"`
	Compressed FileInfo `json:"compressed"`
	Savings    Savings  `json:"savings"`
}

// FileDetails is returned for metadata queries about a stored file.
type FileDetails struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Path       string    `json:"path"`
	ModifiedAt time.Time `json:"modified_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Stats holds filesystem-derived aggregates over the storage directory.
type Stats struct {
	TotalFiles  int   `json:"total_files"`
	Originals   int   `json:"originals"`
	Compressed  int   `json:"compressed"`
	StorageUsed int64 `json:"storage_used_bytes"`
}

// CompressionService orchestrates intake, codec invocation and result
// assembly.
type CompressionService struct {
	store   storage.Store
	codec   codec.Codec
	cfg     *config.Config
	metrics *metrics.Metrics
	sem     *semaphore.Weighted
}

// NewCompressionService creates the orchestrator. Codec invocations are
// bounded by cfg.MaxConcurrent; everything else runs unpooled.
func NewCompressionService(store storage.Store, c codec.Codec, cfg *config.Config, m *metrics.Metrics) *CompressionService {
	return &CompressionService{
		store:   store,
		codec:   c,
		cfg:     cfg,
		metrics: m,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

// Compress handles one upload end to end: validate, stage, probe, encode,
// stat, report. On failure the staged input stays on disk for the sweeper;
// on success both referenced files exist at return time.
func (s *CompressionService) Compress(ctx context.Context, upload Upload, params Params) (*Result, error) {
	// 1. Validate before anything touches disk.
	if !strings.HasPrefix(upload.ContentType, "image/") {
		return nil, fmt.Errorf("%w: got %q", ErrNotImage, upload.ContentType)
	}
	if upload.Size > s.cfg.MaxUploadSize {
		return nil, ErrFileTooLarge
	}
	if !codec.ValidTarget(params.Format) {
		return nil, fmt.Errorf("%w: %q", ErrBadFormat, params.Format)
	}
	quality := resolveQuality(params.Quality)

	// 2. Stage the upload under a collision-resistant name.
	stagedName := stagedFilename(upload.Filename)
	if _, err := s.store.Save(stagedName, upload.Data); err != nil {
		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}

	// 3. Probe the source and resolve the output format.
	src, err := s.codec.Probe(s.store.Path(stagedName))
	if err != nil {
		s.metrics.Compressions.WithLabelValues("unknown", "error").Inc()
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	target := codec.ResolveTarget(params.Format, src.Format)

	// 4. Encode through the concurrency gate. Once a slot is acquired the
	// codec call runs to completion even if the client goes away.
	outName := compressedPrefix + stagedName
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("canceled while waiting for codec slot: %w", err)
	}
	start := time.Now()
	outInfo, err := func() (codec.Info, error) {
		defer s.sem.Release(1)
		return s.codec.Encode(s.store.Path(stagedName), s.store.Path(outName), target, quality)
	}()
	s.metrics.CompressionDuration.WithLabelValues(string(target)).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.Compressions.WithLabelValues(string(target), "error").Inc()
		return nil, fmt.Errorf("compression failed: %w", err)
	}

	// 5. Stat both files and compute savings.
	origStat, err := s.store.Stat(stagedName)
	if err != nil {
		return nil, fmt.Errorf("failed to stat original: %w", err)
	}
	outStat, err := s.store.Stat(outName)
	if err != nil {
		return nil, fmt.Errorf("failed to stat compressed output: %w", err)
	}

	savings := computeSavings(origStat.Size(), outStat.Size())
	if savings.Bytes > 0 {
		s.metrics.BytesSaved.Add(float64(savings.Bytes))
	}
	s.metrics.Compressions.WithLabelValues(string(target), "ok").Inc()

	slog.Info("compression processed",
		"staged", stagedName,
		"source_format", src.Format,
		"target_format", target,
		"quality", quality,
		"original_size", origStat.Size(),
		"compressed_size", outStat.Size(),
		"savings_pct", savings.Percentage,
	)

	return &Result{
		Original: FileInfo{
			Name:   stagedName,
			Size:   origStat.Size(),
			Path:   downloadPath(stagedName),
			Width:  src.Width,
			Height: src.Height,
		},
		Compressed: FileInfo{
			Name:   outName,
			Size:   outStat.Size(),
			Path:   downloadPath(outName),
			Format: string(outInfo.Format),
			Width:  outInfo.Width,
			Height: outInfo.Height,
		},
		Savings: savings,
	}, nil
}

// Download returns the on-disk path for a stored name, rejecting anything
// that could resolve outside the storage directory.
func (s *CompressionService) Download(name string) (string, error) {
	if !storage.ValidName(name) {
		return "", ErrNotFound
	}
	if _, err := s.store.Stat(name); err != nil {
		return "", ErrNotFound
	}
	return s.store.Path(name), nil
}

// Info returns metadata about a stored file without serving its body.
func (s *CompressionService) Info(name string) (*FileDetails, error) {
	if !storage.ValidName(name) {
		return nil, ErrNotFound
	}
	info, err := s.store.Stat(name)
	if err != nil {
		return nil, ErrNotFound
	}

	return &FileDetails{
		Name:       name,
		Size:       info.Size(),
		Path:       downloadPath(name),
		ModifiedAt: info.ModTime(),
		ExpiresAt:  info.ModTime().Add(s.cfg.RetentionWindow),
	}, nil
}

// GetStats scans the storage directory. Filenames are the only index, so the
// originals/compressed split comes from the output prefix.
func (s *CompressionService) GetStats() (*Stats, error) {
	entries, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to scan storage: %w", err)
	}

	stats := &Stats{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stats.TotalFiles++
		if strings.HasPrefix(entry.Name(), compressedPrefix) {
			stats.Compressed++
		} else {
			stats.Originals++
		}
		stats.StorageUsed += info.Size()
	}
	return stats, nil
}

// --- Helpers ---

// resolveQuality parses the raw quality field, defaulting to 80 when absent
// or unparsable. Values are not clamped here; range handling belongs to the
// codec.
func resolveQuality(raw string) int {
	q, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultQuality
	}
	return q
}

// computeSavings applies round(100 * (orig - comp) / orig). The result can
// be negative and is deliberately not clamped.
func computeSavings(orig, comp int64) Savings {
	var pct int
	if orig > 0 {
		pct = int(math.Round(100 * float64(orig-comp) / float64(orig)))
	}
	return Savings{Percentage: pct, Bytes: orig - comp}
}

// stagedFilename builds a name unique across concurrent uploads:
// <unix-millis>-<8 random hex chars>-<sanitized original name>.
func stagedFilename(original string) string {
	return fmt.Sprintf("%d-%s-%s",
		time.Now().UnixMilli(), uuid.NewString()[:8], sanitizeFilename(original))
}

// sanitizeFilename strips directory components and limits length.
func sanitizeFilename(name string) string {
	// Normalize Windows-style backslashes to forward slashes before
	// calling filepath.Base, which is platform-specific.
	name = strings.ReplaceAll(name, "\\", "/")

	// Take only the base name
	name = filepath.Base(name)

	// Limit length, keeping room for the staging prefix. The extension can
	// exceed the cap on its own, so truncate outright in that case.
	if len(name) > 200 {
		ext := filepath.Ext(name)
		if len(ext) >= 200 {
			name = name[:200]
		} else {
			name = name[:200-len(ext)] + ext
		}
	}

	if name == "" || name == "." || name == ".." || name == "/" {
		name = "image"
	}

	return name
}

// downloadPath is the URL path the download server exposes a name under.
func downloadPath(name string) string {
	return "/uploads/" + name
}
