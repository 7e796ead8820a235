package messaging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"nvr-worker-go/internal/models"
)

// DetectionMessage is published on detections.<camera>
type DetectionMessage struct {
	CameraID   string                  `json:"camera_id"`
	WorkerID   string                  `json:"worker_id"`
	Timestamp  time.Time               `json:"timestamp"`
	Detections []models.DetectionEvent `json:"detections"`
}

// SegmentMetadata is published on video.segments.<camera> when a segment closes
type SegmentMetadata struct {
	CameraID   string    `json:"camera_id"`
	SegmentID  string    `json:"segment_id"`
	Path       string    `json:"path"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Duration   float64   `json:"duration"`
	FileSize   int64     `json:"file_size"`
	FrameCount int64     `json:"frame_count"`
	FPS        float64   `json:"fps"`
}

func DetectionSubject(cameraID string) string {
	return fmt.Sprintf("detections.%s", cameraID)
}

func SegmentSubject(cameraID string) string {
	return fmt.Sprintf("video.segments.%s", cameraID)
}

// DetectionNotifier forwards detection batches to NATS
type DetectionNotifier struct {
	publisher Publisher
	workerID  string
}

func NewDetectionNotifier(publisher Publisher, workerID string) *DetectionNotifier {
	return &DetectionNotifier{publisher: publisher, workerID: workerID}
}

func (n *DetectionNotifier) Name() string { return "nats" }

func (n *DetectionNotifier) NotifyDetections(ctx context.Context, cameraID string, events []models.DetectionEvent) error {
	if len(events) == 0 {
		return nil
	}
	msg := DetectionMessage{
		CameraID:   cameraID,
		WorkerID:   n.workerID,
		Timestamp:  events[0].Timestamp,
		Detections: events,
	}
	if err := n.publisher.Publish(DetectionSubject(cameraID), msg); err != nil {
		return fmt.Errorf("failed to publish detections: %w", err)
	}
	return nil
}

// SegmentPublisher announces closed recording segments
type SegmentPublisher struct {
	publisher Publisher
	logger    zerolog.Logger
}

func NewSegmentPublisher(publisher Publisher, logger zerolog.Logger) *SegmentPublisher {
	return &SegmentPublisher{publisher: publisher, logger: logger}
}

func (p *SegmentPublisher) SegmentOpened(models.RecordingSegment) {}

func (p *SegmentPublisher) SegmentClosed(seg models.RecordingSegment) {
	metadata := SegmentMetadata{
		CameraID:   seg.CameraID,
		SegmentID:  filepath.Base(seg.Path),
		Path:       seg.Path,
		StartTime:  seg.StartTime,
		Duration:   seg.Duration().Seconds(),
		FrameCount: seg.FrameCount,
		FPS:        seg.FPS,
	}
	if seg.EndTime != nil {
		metadata.EndTime = *seg.EndTime
	}
	if info, err := os.Stat(seg.Path); err == nil {
		metadata.FileSize = info.Size()
	}

	if err := p.publisher.Publish(SegmentSubject(seg.CameraID), metadata); err != nil {
		p.logger.Error().Err(err).Str("camera_id", seg.CameraID).Msg("Failed to publish segment metadata")
		return
	}

	p.logger.Info().
		Str("camera_id", seg.CameraID).
		Str("segment", metadata.SegmentID).
		Int64("size_bytes", metadata.FileSize).
		Float64("duration", metadata.Duration).
		Msg("Published segment metadata")
}
