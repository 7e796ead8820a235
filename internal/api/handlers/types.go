package handlers

import (
	"context"

	"nvr-worker-go/internal/models"
)

type ErrorResponse struct {
	Error string `json:"error" example:"camera not found"`
}

type SuccessResponse struct {
	Message string `json:"message" example:"Camera stopped successfully"`
}

// CameraController is the camera manager as seen by the HTTP layer
type CameraController interface {
	Start(ctx context.Context, camera models.CameraConfig) error
	Stop(cameraID string) bool
	StartAll(ctx context.Context, cameras []models.CameraConfig) int
	StopAll() int
	List() []models.CameraStatus
	Status(cameraID string) (models.CameraStatus, bool)
	CurrentFrame(cameraID string) (*models.Frame, bool)
	LatestDetections(cameraID string) ([]models.DetectionEvent, bool)
	GetStats() (int, int)
}

// CameraStore is the stored camera configuration source
type CameraStore interface {
	LoadCamera(ctx context.Context, cameraID string) (models.CameraConfig, error)
	LoadActiveCameras(ctx context.Context) ([]models.CameraConfig, error)
	RecentDetections(ctx context.Context, cameraID string, limit int) ([]models.DetectionEvent, error)
}

type BatchResponse struct {
	Requested int `json:"requested"`
	Succeeded int `json:"succeeded"`
}
