package models

import (
	"context"
	"time"
)

// BBox is an axis-aligned rectangle in pixel space
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

// Center returns the midpoint of the box
func (b BBox) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// RawDetection is what an inference backend returns, before any filtering
type RawDetection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// DetectionEvent is one classified, ROI-filtered observation. All events
// produced from the same frame share Timestamp.
type DetectionEvent struct {
	ID         uint      `json:"id,omitempty"`
	CameraID   string    `json:"camera_id"`
	RegionID   *string   `json:"roi_id"`
	Timestamp  time.Time `json:"timestamp"`
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	BBox       BBox      `json:"bbox"`
	ImagePath  string    `json:"image_path"`
	VideoPath  *string   `json:"video_path"`
	Notified   bool      `json:"notified"`
}

// DetectionSink receives detection batches for persistence and notification.
// Failures are logged by the caller and never roll back engine state.
type DetectionSink interface {
	ReportDetections(ctx context.Context, cameraID string, events []DetectionEvent) error
}

// DetectionSinkFunc adapts a function to DetectionSink
type DetectionSinkFunc func(ctx context.Context, cameraID string, events []DetectionEvent) error

func (f DetectionSinkFunc) ReportDetections(ctx context.Context, cameraID string, events []DetectionEvent) error {
	return f(ctx, cameraID, events)
}
