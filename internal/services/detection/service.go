package detection

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nvr-worker-go/internal/models"
)

// ErrEngineClosed is returned for frames processed after Close
var ErrEngineClosed = errors.New("detection engine closed")

// SegmentTracker exposes the recorder's open segment
type SegmentTracker interface {
	CurrentSegmentPath() string
}

type Options struct {
	ImagesDir   string
	Threshold   float64
	PollTimeout time.Duration
}

// Engine turns frames from its queue into filtered detection events
type Engine struct {
	camera    *models.CameraConfig
	backend   Backend
	regions   []models.DetectionRegion
	queue     <-chan *models.Frame
	snapshots SnapshotWriter
	segments  SegmentTracker
	sink      models.DetectionSink
	opts      Options
	logger    zerolog.Logger

	mu     sync.RWMutex
	latest []models.DetectionEvent

	// backendMu is never held across Detect; a Close during inference is
	// finished by the detecting goroutine
	backendMu    sync.Mutex
	detecting    bool
	closed       bool
	closePending bool

	processed int64
	emitted   int64
}

// NewEngine wires an engine. segments may be nil when recording is disabled.
func NewEngine(
	camera *models.CameraConfig,
	backend Backend,
	queue <-chan *models.Frame,
	snapshots SnapshotWriter,
	segments SegmentTracker,
	sink models.DetectionSink,
	opts Options,
	logger zerolog.Logger,
) *Engine {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = time.Second
	}
	return &Engine{
		camera:    camera,
		backend:   backend,
		regions:   camera.ActiveRegions(),
		queue:     queue,
		snapshots: snapshots,
		segments:  segments,
		sink:      sink,
		opts:      opts,
		logger:    logger,
	}
}

// Run drains the queue until ctx is cancelled
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info().
		Float64("threshold", e.opts.Threshold).
		Int("regions", len(e.regions)).
		Msg("Detection loop started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Int64("frames", e.processed).Int64("events", e.emitted).Msg("Detection loop stopped")
			return
		case frame, ok := <-e.queue:
			if !ok {
				return
			}
			if _, err := e.ProcessFrame(ctx, frame); err != nil {
				if errors.Is(err, ErrEngineClosed) {
					return
				}
				e.logger.Error().Err(err).Int64("frame_id", frame.FrameID).Msg("Detection failed for frame")
			}
		case <-time.After(e.opts.PollTimeout):
			continue
		}
	}
}

// ProcessFrame runs one frame through inference, filtering and reporting.
// A panic in any step is turned into an error for this frame only.
func (e *Engine) ProcessFrame(ctx context.Context, frame *models.Frame) (events []models.DetectionEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			events = nil
			err = fmt.Errorf("panic during detection: %v", r)
		}
	}()

	if frame == nil {
		return nil, nil
	}
	e.processed++

	raw, err := e.detect(ctx, frame)
	if err != nil {
		if errors.Is(err, ErrEngineClosed) {
			return nil, err
		}
		return nil, fmt.Errorf("inference: %w", err)
	}

	matches := Filter(raw, e.opts.Threshold, e.regions)
	if len(matches) == 0 {
		return nil, nil
	}

	ts := time.Now()
	imagePath := filepath.Join(e.opts.ImagesDir, SnapshotName(ts))
	if err := e.snapshots.WriteSnapshot(ctx, imagePath, frame, matches); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	var videoPath *string
	if e.segments != nil {
		if p := e.segments.CurrentSegmentPath(); p != "" {
			videoPath = &p
		}
	}

	events = make([]models.DetectionEvent, 0, len(matches))
	for _, m := range matches {
		events = append(events, models.DetectionEvent{
			CameraID:   e.camera.ID,
			RegionID:   m.RegionID,
			Timestamp:  ts,
			Class:      m.Detection.Class,
			Confidence: m.Detection.Confidence,
			BBox:       m.Detection.BBox,
			ImagePath:  imagePath,
			VideoPath:  videoPath,
		})
	}

	e.mu.Lock()
	e.latest = events
	e.mu.Unlock()
	e.emitted += int64(len(events))

	e.logger.Info().
		Int("count", len(events)).
		Str("image", imagePath).
		Msg("Detections recorded")

	if e.sink != nil {
		batch := make([]models.DetectionEvent, len(events))
		copy(batch, events)
		if err := e.sink.ReportDetections(ctx, e.camera.ID, batch); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to report detections")
		}
	}

	return events, nil
}

// LatestDetections returns a copy of the most recent batch
func (e *Engine) LatestDetections() []models.DetectionEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.DetectionEvent, len(e.latest))
	copy(out, e.latest)
	return out
}

func (e *Engine) detect(ctx context.Context, frame *models.Frame) ([]models.RawDetection, error) {
	e.backendMu.Lock()
	if e.closed {
		e.backendMu.Unlock()
		return nil, ErrEngineClosed
	}
	e.detecting = true
	e.backendMu.Unlock()

	defer func() {
		e.backendMu.Lock()
		e.detecting = false
		release := e.closePending
		e.closePending = false
		e.backendMu.Unlock()
		if release {
			if err := e.backend.Close(); err != nil {
				e.logger.Warn().Err(err).Msg("Failed to release detection backend")
			}
		}
	}()

	return e.backend.Detect(ctx, frame)
}

// Close releases the inference backend. When inference is in flight the
// release happens as soon as it returns. Safe to call more than once.
func (e *Engine) Close() error {
	e.backendMu.Lock()
	if e.closed || e.backend == nil {
		e.closed = true
		e.backendMu.Unlock()
		return nil
	}
	e.closed = true
	if e.detecting {
		e.closePending = true
		e.backendMu.Unlock()
		return nil
	}
	e.backendMu.Unlock()
	return e.backend.Close()
}
