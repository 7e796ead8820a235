package models

import "time"

// RecordingSegment describes one rotated video file
type RecordingSegment struct {
	CameraID   string     `json:"camera_id"`
	Path       string     `json:"path"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	FPS        float64    `json:"fps"`
	FrameCount int64      `json:"frame_count"`
	Open       bool       `json:"open"`
}

// Duration is the wall-clock span of a closed segment
func (s RecordingSegment) Duration() time.Duration {
	if s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// SegmentObserver is told about segment lifecycle changes
type SegmentObserver interface {
	SegmentOpened(seg RecordingSegment)
	SegmentClosed(seg RecordingSegment)
}
