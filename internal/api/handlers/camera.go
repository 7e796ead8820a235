package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"nvr-worker-go/internal/logging"
	"nvr-worker-go/internal/models"
	"nvr-worker-go/internal/services/camera"
	"nvr-worker-go/internal/services/detection"
	"nvr-worker-go/internal/services/publisher/mjpeg"
	"nvr-worker-go/internal/services/streamcapture"
	"nvr-worker-go/internal/store"
)

type CameraHandler struct {
	cameras CameraController
	store   CameraStore
	mjpeg   *mjpeg.Publisher
}

func NewCameraHandler(cameras CameraController, store CameraStore, publisher *mjpeg.Publisher) *CameraHandler {
	return &CameraHandler{
		cameras: cameras,
		store:   store,
		mjpeg:   publisher,
	}
}

// startErrorStatus maps start failures onto HTTP status codes
func startErrorStatus(err error) int {
	var connErr *streamcapture.ConnectionError
	var loadErr *detection.ModelLoadError
	switch {
	case errors.Is(err, camera.ErrInvalidCamera):
		return http.StatusBadRequest
	case errors.Is(err, camera.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.As(err, &connErr):
		return http.StatusBadGateway
	case errors.Is(err, detection.ErrNoModel), errors.As(err, &loadErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// StartCamera starts a camera from an inline configuration
// @Summary Start a camera
// @Description Start (or restart) a camera with the given configuration
// @Tags cameras
// @Accept json
// @Produce json
// @Param request body models.CameraConfig true "Camera configuration"
// @Success 200 {object} models.CameraStatus
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /cameras [post]
func (h *CameraHandler) StartCamera(c *gin.Context) {
	var req models.CameraConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		logging.Error(c).Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	h.start(c, req)
}

// StartStoredCamera starts a camera from its stored configuration
// @Summary Start a stored camera
// @Description Load the camera's configuration, regions and model from the database and start it
// @Tags cameras
// @Produce json
// @Param camera_id path string true "Camera ID"
// @Success 200 {object} models.CameraStatus
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /cameras/{camera_id}/start [post]
func (h *CameraHandler) StartStoredCamera(c *gin.Context) {
	cameraID := c.Param("camera_id")
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "camera store not configured"})
		return
	}

	cfg, err := h.store.LoadCamera(c.Request.Context(), cameraID)
	if errors.Is(err, store.ErrCameraNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Camera not found"})
		return
	}
	if err != nil {
		logging.Error(c).Err(err).Str("camera_id", cameraID).Msg("Failed to load camera")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	h.start(c, cfg)
}

func (h *CameraHandler) start(c *gin.Context, cfg models.CameraConfig) {
	if err := h.cameras.Start(c.Request.Context(), cfg); err != nil {
		logging.Error(c).Err(err).Str("camera_id", cfg.ID).Msg("Failed to start camera")
		c.JSON(startErrorStatus(err), ErrorResponse{Error: err.Error()})
		return
	}

	status, _ := h.cameras.Status(cfg.ID)
	logging.Info(c).Str("camera_id", cfg.ID).Msg("Camera started successfully")
	c.JSON(http.StatusOK, status)
}

// StopCamera stops a camera
// @Summary Stop a camera
// @Tags cameras
// @Param camera_id path string true "Camera ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /cameras/{camera_id}/stop [post]
func (h *CameraHandler) StopCamera(c *gin.Context) {
	cameraID := c.Param("camera_id")
	if h.mjpeg != nil {
		defer h.mjpeg.Forget(cameraID)
	}

	if !h.cameras.Stop(cameraID) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Camera not found"})
		return
	}

	logging.Info(c).Str("camera_id", cameraID).Msg("Camera stopped successfully")
	c.JSON(http.StatusOK, SuccessResponse{Message: "Camera stopped successfully"})
}

// GetCamera gets camera status
// @Summary Get camera status
// @Tags cameras
// @Param camera_id path string true "Camera ID"
// @Success 200 {object} models.CameraStatus
// @Failure 404 {object} ErrorResponse
// @Router /cameras/{camera_id} [get]
func (h *CameraHandler) GetCamera(c *gin.Context) {
	status, ok := h.cameras.Status(c.Param("camera_id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Camera not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// ListCameras lists running cameras
// @Summary List cameras
// @Tags cameras
// @Success 200 {object} map[string]interface{}
// @Router /cameras [get]
func (h *CameraHandler) ListCameras(c *gin.Context) {
	cameras := h.cameras.List()
	c.JSON(http.StatusOK, gin.H{
		"cameras": cameras,
		"count":   len(cameras),
	})
}

// GetLatestFrame returns the latest annotated frame as JPEG
// @Summary Latest frame
// @Tags cameras
// @Produce image/jpeg
// @Param camera_id path string true "Camera ID"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /cameras/{camera_id}/frame [get]
func (h *CameraHandler) GetLatestFrame(c *gin.Context) {
	cameraID := c.Param("camera_id")
	frame, ok := h.cameras.CurrentFrame(cameraID)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Camera not found"})
		return
	}
	if frame == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "No frame available yet"})
		return
	}

	data, err := h.mjpeg.JPEG(cameraID, frame)
	if err != nil {
		logging.Error(c).Err(err).Str("camera_id", cameraID).Msg("Failed to encode frame")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to encode frame"})
		return
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("X-Frame-ID", strconv.FormatInt(frame.FrameID, 10))
	c.Data(http.StatusOK, "image/jpeg", data)
}

// StreamMJPEG streams the live view
// @Summary Live MJPEG stream
// @Tags cameras
// @Produce multipart/x-mixed-replace
// @Param camera_id path string true "Camera ID"
// @Failure 404 {object} ErrorResponse
// @Router /cameras/{camera_id}/mjpeg [get]
func (h *CameraHandler) StreamMJPEG(c *gin.Context) {
	cameraID := c.Param("camera_id")
	if _, ok := h.cameras.Status(cameraID); !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Camera not found"})
		return
	}

	h.mjpeg.StreamMJPEGHTTP(c.Writer, c.Request, cameraID, func() (*models.Frame, bool) {
		return h.cameras.CurrentFrame(cameraID)
	})
}

// GetDetections returns the latest detection batch
// @Summary Latest detections
// @Tags detections
// @Param camera_id path string true "Camera ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /cameras/{camera_id}/detections [get]
func (h *CameraHandler) GetDetections(c *gin.Context) {
	cameraID := c.Param("camera_id")
	detections, ok := h.cameras.LatestDetections(cameraID)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Camera not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"camera_id":  cameraID,
		"detections": detections,
		"count":      len(detections),
	})
}

// GetDetectionHistory returns stored detections
// @Summary Stored detections
// @Tags detections
// @Param camera_id path string true "Camera ID"
// @Param limit query int false "Maximum number of detections (default: 50)"
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} ErrorResponse
// @Router /cameras/{camera_id}/events [get]
func (h *CameraHandler) GetDetectionHistory(c *gin.Context) {
	cameraID := c.Param("camera_id")
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "camera store not configured"})
		return
	}

	events, err := h.store.RecentDetections(c.Request.Context(), cameraID, queryLimit(c, 50))
	if err != nil {
		logging.Error(c).Err(err).Str("camera_id", cameraID).Msg("Failed to load detections")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load detections"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"camera_id":  cameraID,
		"detections": events,
		"count":      len(events),
	})
}

// StartAll starts every active stored camera
// @Summary Start all stored cameras
// @Tags cameras
// @Success 200 {object} BatchResponse
// @Failure 500 {object} ErrorResponse
// @Router /cameras/start-all [post]
func (h *CameraHandler) StartAll(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "camera store not configured"})
		return
	}

	cameras, err := h.store.LoadActiveCameras(c.Request.Context())
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to load cameras")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	started := h.cameras.StartAll(c.Request.Context(), cameras)
	c.JSON(http.StatusOK, BatchResponse{Requested: len(cameras), Succeeded: started})
}

// StopAll stops every running camera
// @Summary Stop all cameras
// @Tags cameras
// @Success 200 {object} BatchResponse
// @Router /cameras/stop-all [post]
func (h *CameraHandler) StopAll(c *gin.Context) {
	total, _ := h.cameras.GetStats()
	stopped := h.cameras.StopAll()
	c.JSON(http.StatusOK, BatchResponse{Requested: total, Succeeded: stopped})
}

func queryLimit(c *gin.Context, def int) int {
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
