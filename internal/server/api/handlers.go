package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"squish/internal/server/metrics"
	"squish/internal/server/service"

	"github.com/labstack/echo/v4"
)

// Handler contains the HTTP handlers for the squish API.
type Handler struct {
	svc         *service.CompressionService
	metrics     *metrics.Metrics
	storagePath string
}

// NewHandler creates a new handler with the given service dependency.
func NewHandler(svc *service.CompressionService, m *metrics.Metrics, storagePath string) *Handler {
	return &Handler{svc: svc, metrics: m, storagePath: storagePath}
}

// HandleCompress handles POST /api/compress.
// Accepts a multipart form with an "image" field and optional "quality" and
// "format" fields.
func (h *Handler) HandleCompress(c echo.Context) error {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		return mapServiceError(c, service.ErrNoFile)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}
	defer src.Close()

	upload := service.Upload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Data:        src,
	}
	params := service.Params{
		Quality: c.FormValue("quality"),
		Format:  c.FormValue("format"),
	}

	result, err := h.svc.Compress(c.Request().Context(), upload, params)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// HandleDownload handles GET /uploads/:filename.
// Serves the stored file as an attachment. Missing or malformed names get a
// plain-text 404 rather than a JSON body.
func (h *Handler) HandleDownload(c echo.Context) error {
	name := c.Param("filename")

	path, err := h.svc.Download(name)
	if err != nil {
		return c.String(http.StatusNotFound, "File not found")
	}

	if err := c.Attachment(path, name); err != nil {
		// Most likely the sweeper removed the file mid-stream.
		h.metrics.DownloadStreamErrors.Inc()
		slog.Warn("download stream failed", "file", name, "error", err)
		return err
	}
	return nil
}

// HandleInfo handles GET /api/info/:filename.
// Returns stored-file metadata without serving the body.
func (h *Handler) HandleInfo(c echo.Context) error {
	info, err := h.svc.Info(c.Param("filename"))
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, info)
}

// HandleHealth handles GET /health.
// Reports degraded when the storage directory is missing or not a directory.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	storageStatus := "available"

	if info, err := os.Stat(h.storagePath); err != nil || !info.IsDir() {
		status = "degraded"
		if err != nil {
			storageStatus = fmt.Sprintf("error: %v", err)
		} else {
			storageStatus = "error: not a directory"
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":  status,
		"storage": storageStatus,
	})
}

// HandleStats handles GET /api/stats.
// Returns aggregates derived from a storage directory scan.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.svc.GetStats()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to retrieve stats",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total_files":        stats.TotalFiles,
		"originals":          stats.Originals,
		"compressed":         stats.Compressed,
		"storage_used_bytes": stats.StorageUsed,
		"storage_used_human": humanizeBytes(stats.StorageUsed),
	})
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNoFile):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "image file is required (use form field 'image')",
		})
	case errors.Is(err, service.ErrNotImage):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "uploaded file is not an image"})
	case errors.Is(err, service.ErrBadFormat):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "unknown target format (use auto, jpeg, png or webp)",
		})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": "file exceeds maximum allowed size",
		})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "file not found"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":   "compression failed",
			"details": err.Error(),
		})
	}
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
