package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	WorkerID  string
	Version   string
	cameras   CameraController
	startTime time.Time
}

func NewHealthHandler(workerID, version string, cameras CameraController) *HealthHandler {
	return &HealthHandler{WorkerID: workerID, Version: version, cameras: cameras, startTime: time.Now()}
}

type HealthResponse struct {
	Status         string `json:"status" example:"healthy"`
	WorkerID       string `json:"worker_id" example:"worker-1"`
	Cameras        int    `json:"cameras" example:"4"`
	RunningCameras int    `json:"running_cameras" example:"4"`
}

type WorkerInfoResponse struct {
	WorkerID     string   `json:"worker_id" example:"worker-1"`
	Status       string   `json:"status" example:"running"`
	Version      string   `json:"version" example:"1.0.0"`
	Uptime       string   `json:"uptime" example:"1h2m3s"`
	Capabilities []string `json:"capabilities"`
}

// @Summary Health check
// @Description Check if the worker is healthy and responsive
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	total, running := h.cameras.GetStats()
	c.JSON(http.StatusOK, HealthResponse{
		Status:         "healthy",
		WorkerID:       h.WorkerID,
		Cameras:        total,
		RunningCameras: running,
	})
}

// @Summary Worker information
// @Description Get basic worker information and capabilities
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} WorkerInfoResponse
// @Router / [get]
func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, WorkerInfoResponse{
		WorkerID: h.WorkerID,
		Status:   "running",
		Version:  h.Version,
		Uptime:   time.Since(h.startTime).Round(time.Second).String(),
		Capabilities: []string{
			"rtsp_capture",
			"object_detection",
			"roi_filtering",
			"segment_recording",
			"mjpeg_live_view",
		},
	})
}
