package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"nvr-worker-go/internal/logging"
	"nvr-worker-go/internal/store"
)

// RecordingStore lists stored recording segments
type RecordingStore interface {
	ListRecordings(ctx context.Context, cameraID string, limit int) ([]store.Recording, error)
	GetRecording(ctx context.Context, id uint) (*store.Recording, error)
}

type RecordingHandler struct {
	recordings  RecordingStore
	storageRoot string
}

type RecordingItem struct {
	ID         uint       `json:"id"`
	CameraID   string     `json:"camera_id"`
	FileName   string     `json:"file_name"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Duration   float64    `json:"duration"`
	FileSize   int64      `json:"file_size"`
	FrameCount int64      `json:"frame_count"`
	Open       bool       `json:"open"`
	URL        string     `json:"url"`
}

type RecordingsResponse struct {
	CameraID   string          `json:"camera_id"`
	Total      int             `json:"total"`
	TotalSize  int64           `json:"total_size_bytes"`
	Recordings []RecordingItem `json:"recordings"`
}

func NewRecordingHandler(recordings RecordingStore, storageRoot string) *RecordingHandler {
	return &RecordingHandler{recordings: recordings, storageRoot: storageRoot}
}

// ListRecordings godoc
// @Summary List recorded segments of a camera
// @Tags recordings
// @Produce json
// @Param camera_id path string true "Camera ID"
// @Param limit query int false "Maximum number of segments to return (default: 50)"
// @Success 200 {object} RecordingsResponse
// @Failure 500 {object} ErrorResponse
// @Router /cameras/{camera_id}/recordings [get]
func (h *RecordingHandler) ListRecordings(c *gin.Context) {
	cameraID := c.Param("camera_id")

	rows, err := h.recordings.ListRecordings(c.Request.Context(), cameraID, queryLimit(c, 50))
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to list recordings")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list recordings"})
		return
	}

	resp := RecordingsResponse{CameraID: cameraID, Recordings: make([]RecordingItem, 0, len(rows))}
	for _, r := range rows {
		resp.TotalSize += r.FileSize
		resp.Recordings = append(resp.Recordings, RecordingItem{
			ID:         r.ID,
			CameraID:   r.CameraID,
			FileName:   filepath.Base(r.FilePath),
			StartTime:  r.StartTime,
			EndTime:    r.EndTime,
			Duration:   r.Duration,
			FileSize:   r.FileSize,
			FrameCount: r.FrameCount,
			Open:       r.EndTime == nil,
			URL:        "/recordings/" + strconv.FormatUint(uint64(r.ID), 10) + "/file",
		})
	}
	resp.Total = len(resp.Recordings)

	c.JSON(http.StatusOK, resp)
}

// StreamRecording godoc
// @Summary Download a recorded segment
// @Tags recordings
// @Produce video/mp4
// @Param id path int true "Recording ID"
// @Success 200 {file} binary
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /recordings/{id}/file [get]
func (h *RecordingHandler) StreamRecording(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid recording id"})
		return
	}

	rec, err := h.recordings.GetRecording(c.Request.Context(), uint(id))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Recording not found"})
		return
	}
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to load recording")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load recording"})
		return
	}

	if !h.withinStorage(rec.FilePath) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Recording not found"})
		return
	}
	if _, err := os.Stat(rec.FilePath); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Recording file missing"})
		return
	}

	c.Header("Content-Type", "video/mp4")
	c.Header("Accept-Ranges", "bytes")
	if rec.EndTime != nil {
		c.Header("Cache-Control", "public, max-age=3600")
	} else {
		c.Header("Cache-Control", "no-cache")
	}
	c.File(rec.FilePath)
}

// withinStorage rejects paths outside the recordings tree
func (h *RecordingHandler) withinStorage(path string) bool {
	if h.storageRoot == "" {
		return true
	}
	root, err := filepath.Abs(filepath.Join(h.storageRoot, "recordings"))
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	return err == nil && rel != ".." && !filepath.IsAbs(rel) && !startsWithParent(rel)
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
