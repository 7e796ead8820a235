package models

import (
	"strings"
)

// ModelKind selects which inference backend serves a ModelRef
type ModelKind string

const (
	ModelKindDNN  ModelKind = "dnn"
	ModelKindGRPC ModelKind = "grpc"
)

// ModelRef points at an inference model. File-backed models use Path (and
// optionally ConfigPath/LabelsPath); remote models use Endpoint.
type ModelRef struct {
	ID         string    `json:"id,omitempty"`
	Name       string    `json:"name,omitempty"`
	Kind       ModelKind `json:"kind,omitempty"`
	Path       string    `json:"path,omitempty"`
	ConfigPath string    `json:"config_path,omitempty"`
	LabelsPath string    `json:"labels_path,omitempty"`
	Endpoint   string    `json:"endpoint,omitempty"`
}

// EffectiveKind infers the backend kind when none was set explicitly
func (m ModelRef) EffectiveKind() ModelKind {
	if m.Kind != "" {
		return m.Kind
	}
	if m.Endpoint != "" {
		return ModelKindGRPC
	}
	return ModelKindDNN
}

func (m ModelRef) String() string {
	if m.Name != "" {
		return m.Name
	}
	if m.Endpoint != "" {
		return m.Endpoint
	}
	return m.Path
}

// CameraConfig is the resolved configuration a CameraProcessor runs with.
// It is never mutated while a processor is alive; changes require a restart.
type CameraConfig struct {
	ID                  string            `json:"id" binding:"required"`
	Name                string            `json:"name"`
	Address             string            `json:"address" binding:"required"`
	Username            string            `json:"username,omitempty"`
	Password            string            `json:"password,omitempty"`
	RecordingEnabled    bool              `json:"recording_enabled"`
	DetectionEnabled    bool              `json:"detection_enabled"`
	ConfidenceThreshold float64           `json:"confidence_threshold"`
	Model               *ModelRef         `json:"model,omitempty"`
	Regions             []DetectionRegion `json:"regions,omitempty"`
}

// DisplayName is the label drawn onto frames
func (c *CameraConfig) DisplayName() string {
	if strings.TrimSpace(c.Name) != "" {
		return c.Name
	}
	return c.ID
}

// ActiveRegions returns the regions that take part in filtering, in configured order
func (c *CameraConfig) ActiveRegions() []DetectionRegion {
	out := make([]DetectionRegion, 0, len(c.Regions))
	for _, r := range c.Regions {
		if r.Active && len(r.Polygon) >= 3 {
			out = append(out, r)
		}
	}
	return out
}

// Point is a 2-D pixel coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DetectionRegion (ROI) restricts which detections count as alerts
type DetectionRegion struct {
	ID             string   `json:"id"`
	Name           string   `json:"name,omitempty"`
	Polygon        []Point  `json:"polygon"`
	ClassAllowList []string `json:"class_allow_list,omitempty"`
	Active         bool     `json:"active"`
}

// Allows reports whether the region accepts the class label
func (r *DetectionRegion) Allows(class string) bool {
	if len(r.ClassAllowList) == 0 {
		return true
	}
	for _, c := range r.ClassAllowList {
		if c == class {
			return true
		}
	}
	return false
}

// CameraStatus is the live view of a processor exposed to the API
type CameraStatus struct {
	CameraID         string  `json:"camera_id"`
	Name             string  `json:"name"`
	State            string  `json:"state"`
	FPS              float64 `json:"fps"`
	FrameCount       int64   `json:"frame_count"`
	Reconnects       int64   `json:"reconnects"`
	RecordingEnabled bool    `json:"recording_enabled"`
	DetectionEnabled bool    `json:"detection_enabled"`
	CurrentSegment   string  `json:"current_segment,omitempty"`
	Model            string  `json:"model,omitempty"`
}
