package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"nvr-worker-go/internal/config"
	"nvr-worker-go/internal/models"
	"nvr-worker-go/internal/services/detection"
	"nvr-worker-go/internal/services/recorder"
	"nvr-worker-go/internal/services/streamcapture"
)

// State is the lifecycle state of a camera processor
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

var (
	ErrAlreadyRunning = errors.New("camera processor already running")
	ErrNotRunning     = errors.New("camera processor not running")
)

// AlreadyRunningError is returned by Start when the processor has left Stopped
type AlreadyRunningError struct {
	CameraID string
	State    State
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("camera %s cannot start from state %s", e.CameraID, e.State)
}

func (e *AlreadyRunningError) Is(target error) bool { return target == ErrAlreadyRunning }

// Deps are the collaborators a processor assembles its pipeline from.
// Zero-valued fields fall back to the production implementations where one exists.
type Deps struct {
	Opener           streamcapture.Opener
	Loader           detection.Loader
	Writers          recorder.WriterFactory
	Snapshots        detection.SnapshotWriter
	Sink             models.DetectionSink
	SegmentObservers []models.SegmentObserver
}

// Processor runs capture, recording and detection for one camera
type Processor struct {
	cfg    *config.Config
	camera models.CameraConfig
	model  *models.ModelRef
	deps   Deps
	logger zerolog.Logger

	state atomic.Int32

	mu     sync.RWMutex
	source *streamcapture.Source
	engine *detection.Engine
	rec    *recorder.Recorder
	cancel context.CancelFunc
	loops  sync.WaitGroup
}

// NewProcessor creates a stopped processor. model is the already resolved
// inference model and may be nil when detection is disabled.
func NewProcessor(cfg *config.Config, camera models.CameraConfig, model *models.ModelRef, deps Deps, logger zerolog.Logger) *Processor {
	if deps.Opener == nil {
		deps.Opener = streamcapture.OpenFFmpeg
	}
	if deps.Writers == nil {
		deps.Writers = recorder.NewVideoWriterFactory(cfg.RecordingCodec)
	}
	if deps.Snapshots == nil {
		deps.Snapshots = &detection.JPEGSnapshotWriter{Quality: cfg.SnapshotQuality}
	}
	if camera.ConfidenceThreshold <= 0 {
		camera.ConfidenceThreshold = cfg.DefaultConfidence
	}
	camera.Regions = append([]models.DetectionRegion(nil), camera.Regions...)

	return &Processor{
		cfg:    cfg,
		camera: camera,
		model:  model,
		deps:   deps,
		logger: logger,
	}
}

func (p *Processor) State() State {
	return State(p.state.Load())
}

func (p *Processor) CameraID() string {
	return p.camera.ID
}

// Config returns the configuration the processor was built with
func (p *Processor) Config() models.CameraConfig {
	return p.camera
}

// Start opens the stream, loads the model and launches the loops. On any
// failure everything acquired so far is released and the processor is
// back in Stopped.
func (p *Processor) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return &AlreadyRunningError{CameraID: p.camera.ID, State: p.State()}
	}

	p.logger.Info().
		Bool("recording", p.camera.RecordingEnabled).
		Bool("detection", p.camera.DetectionEnabled).
		Msg("Starting camera")

	source := streamcapture.NewSource(&p.camera, p.deps.Opener, streamcapture.Options{
		ReconnectInterval: p.cfg.ReconnectInterval,
		FPSWindow:         p.cfg.FPSWindow,
	}, p.logger.With().Str("component", "capture").Logger())

	if err := source.Open(); err != nil {
		p.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to open stream for camera %s: %w", p.camera.ID, err)
	}

	var backend detection.Backend
	if p.camera.DetectionEnabled {
		var err error
		backend, err = p.loadBackend(ctx)
		if err != nil {
			source.Close()
			p.state.Store(int32(StateStopped))
			return err
		}
	}

	var rec *recorder.Recorder
	if p.camera.RecordingEnabled {
		queue := make(chan *models.Frame, p.cfg.RecordingQueueSize)
		source.AddConsumer("recording", queue)
		rec = recorder.NewRecorder(p.camera.ID, queue, p.deps.Writers, source.CurrentFrame, recorder.Options{
			VideosDir:          p.cfg.VideosDir(p.camera.ID),
			MaxSegmentDuration: p.cfg.SegmentMaxDuration,
			FPS:                p.cfg.RecordingFPS,
			DefaultWidth:       p.cfg.DefaultFrameWidth,
			DefaultHeight:      p.cfg.DefaultFrameHeight,
			PollTimeout:        p.cfg.QueuePollTimeout,
			RetryBackoff:       p.cfg.ReconnectInterval,
		}, p.logger.With().Str("component", "recorder").Logger(), p.deps.SegmentObservers...)
	}

	var engine *detection.Engine
	if backend != nil {
		queue := make(chan *models.Frame, p.cfg.DetectionQueueSize)
		source.AddConsumer("detection", queue)
		var segments detection.SegmentTracker
		if rec != nil {
			segments = rec
		}
		engine = detection.NewEngine(&p.camera, backend, queue, p.deps.Snapshots, segments, p.deps.Sink, detection.Options{
			ImagesDir:   p.cfg.ImagesDir(p.camera.ID),
			Threshold:   p.camera.ConfidenceThreshold,
			PollTimeout: p.cfg.QueuePollTimeout,
		}, p.logger.With().Str("component", "detection").Logger())
	}

	// Loops outlive the caller's context; only Stop ends them
	runCtx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	p.source, p.rec, p.engine = source, rec, engine
	p.cancel = cancel
	p.mu.Unlock()

	p.goLoop("capture", func() { source.Run(runCtx) })
	if rec != nil {
		p.goLoop("recording", func() { rec.Run(runCtx) })
	}
	if engine != nil {
		p.goLoop("detection", func() { engine.Run(runCtx) })
	}

	p.state.Store(int32(StateRunning))

	ev := p.logger.Info()
	if p.model != nil && p.camera.DetectionEnabled {
		ev = ev.Str("model", p.model.String())
	}
	ev.Msg("Camera started")
	return nil
}

func (p *Processor) loadBackend(ctx context.Context) (detection.Backend, error) {
	if p.model == nil {
		return nil, fmt.Errorf("camera %s: %w", p.camera.ID, detection.ErrNoModel)
	}
	if p.deps.Loader == nil {
		return nil, &detection.ModelLoadError{Model: *p.model, Err: errors.New("no model loader configured")}
	}
	backend, err := p.deps.Loader.Load(ctx, *p.model)
	if err != nil {
		return nil, fmt.Errorf("failed to load model for camera %s: %w", p.camera.ID, err)
	}
	return backend, nil
}

// goLoop runs fn on its own goroutine, tracked by the join group
func (p *Processor) goLoop(name string, fn func()) {
	p.loops.Add(1)
	go func() {
		defer p.loops.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().
					Str("loop", name).
					Interface("panic", r).
					Msg("Camera loop panic recovered")
			}
		}()
		fn()
	}()
}

// Stop cancels the loops, waits up to the join timeout for them and then
// releases the stream handle, the segment writer and the backend whether
// or not the loops finished.
func (p *Processor) Stop() error {
	if !p.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return fmt.Errorf("camera %s cannot stop from state %s: %w", p.camera.ID, p.State(), ErrNotRunning)
	}

	p.logger.Info().Msg("Stopping camera")

	p.mu.RLock()
	cancel := p.cancel
	source, rec, engine := p.source, p.rec, p.engine
	p.mu.RUnlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		p.loops.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Debug().Msg("Shutdown confirmed")
	case <-time.After(p.cfg.JoinTimeout):
		p.logger.Warn().Dur("timeout", p.cfg.JoinTimeout).Msg("Shutdown timeout, releasing resources anyway")
	}

	if source != nil {
		source.Close()
	}
	if rec != nil {
		rec.Close()
	}
	if engine != nil {
		if err := engine.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to release detection backend")
		}
	}

	p.state.Store(int32(StateStopped))
	p.logger.Info().Msg("Camera stopped")
	return nil
}

// CurrentFrame returns the latest annotated frame, or nil
func (p *Processor) CurrentFrame() *models.Frame {
	p.mu.RLock()
	source := p.source
	p.mu.RUnlock()
	if source == nil {
		return nil
	}
	return source.CurrentFrame()
}

// LatestDetections returns a copy of the most recent event batch
func (p *Processor) LatestDetections() []models.DetectionEvent {
	p.mu.RLock()
	engine := p.engine
	p.mu.RUnlock()
	if engine == nil {
		return []models.DetectionEvent{}
	}
	return engine.LatestDetections()
}

// CurrentSegmentPath is the open recording segment, or ""
func (p *Processor) CurrentSegmentPath() string {
	p.mu.RLock()
	rec := p.rec
	p.mu.RUnlock()
	if rec == nil {
		return ""
	}
	return rec.CurrentSegmentPath()
}

func (p *Processor) Status() models.CameraStatus {
	status := models.CameraStatus{
		CameraID:         p.camera.ID,
		Name:             p.camera.DisplayName(),
		State:            p.State().String(),
		RecordingEnabled: p.camera.RecordingEnabled,
		DetectionEnabled: p.camera.DetectionEnabled,
		CurrentSegment:   p.CurrentSegmentPath(),
	}
	if p.model != nil && p.camera.DetectionEnabled {
		status.Model = p.model.String()
	}

	p.mu.RLock()
	source := p.source
	p.mu.RUnlock()
	if source != nil {
		status.FPS = source.FPS()
		status.FrameCount = source.FrameCount()
		status.Reconnects = source.Reconnects()
	}
	return status
}
