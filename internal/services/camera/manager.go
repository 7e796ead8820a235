package camera

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"nvr-worker-go/internal/config"
	"nvr-worker-go/internal/logging"
	"nvr-worker-go/internal/models"
	"nvr-worker-go/internal/services/detection"
)

var ErrInvalidCamera = errors.New("invalid camera configuration")

// DefaultModelFunc returns the fallback model, or nil when there is none
type DefaultModelFunc func(ctx context.Context) *models.ModelRef

// Manager is the registry of running camera processors. At most one
// processor exists per camera id. The registry lock only covers map
// access; processors are started and stopped outside it.
type Manager struct {
	cfg          *config.Config
	deps         Deps
	defaultModel DefaultModelFunc
	logger       zerolog.Logger

	mutex      sync.RWMutex
	processors map[string]*Processor
	cameraOps  map[string]*sync.Mutex
}

func NewManager(cfg *config.Config, deps Deps, defaultModel DefaultModelFunc, logger zerolog.Logger) *Manager {
	if defaultModel == nil {
		defaultModel = ConfiguredDefaultModel(cfg)
	}

	m := &Manager{
		cfg:          cfg,
		deps:         deps,
		defaultModel: defaultModel,
		logger:       logger,
		processors:   make(map[string]*Processor),
		cameraOps:    make(map[string]*sync.Mutex),
	}

	logger.Info().
		Int("detection_queue", cfg.DetectionQueueSize).
		Int("recording_queue", cfg.RecordingQueueSize).
		Dur("join_timeout", cfg.JoinTimeout).
		Msg("Camera manager initialized")

	return m
}

// ConfiguredDefaultModel serves the model named by DEFAULT_MODEL_* settings,
// or the remote model at AI_GRPC_URL when no model file is configured
func ConfiguredDefaultModel(cfg *config.Config) DefaultModelFunc {
	return func(context.Context) *models.ModelRef {
		if cfg.DefaultModelPath == "" {
			if cfg.AIGRPCURL == "" {
				return nil
			}
			return &models.ModelRef{Name: "default", Kind: models.ModelKindGRPC, Endpoint: cfg.AIGRPCURL}
		}
		return &models.ModelRef{
			Name:       "default",
			Kind:       models.ModelKindDNN,
			Path:       cfg.DefaultModelPath,
			ConfigPath: cfg.DefaultModelConfig,
			LabelsPath: cfg.DefaultModelLabels,
		}
	}
}

// cameraLock serialises start/stop calls for one camera id
func (m *Manager) cameraLock(cameraID string) *sync.Mutex {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	mu, ok := m.cameraOps[cameraID]
	if !ok {
		mu = &sync.Mutex{}
		m.cameraOps[cameraID] = mu
	}
	return mu
}

func (m *Manager) take(cameraID string) *Processor {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	p := m.processors[cameraID]
	delete(m.processors, cameraID)
	return p
}

// Start (re)starts a camera. A processor already registered for the id is
// stopped first, so afterwards exactly one processor runs the new config.
func (m *Manager) Start(ctx context.Context, camera models.CameraConfig) error {
	if camera.ID == "" || camera.Address == "" {
		return fmt.Errorf("%w: camera id and address are required", ErrInvalidCamera)
	}

	opLock := m.cameraLock(camera.ID)
	opLock.Lock()
	defer opLock.Unlock()

	logger := logging.WithCamera(m.logger, camera.ID)

	if existing := m.take(camera.ID); existing != nil {
		logger.Info().Msg("Stopping existing camera for clean restart")
		if err := existing.Stop(); err != nil {
			logger.Warn().Err(err).Msg("Failed to stop existing camera")
		}
	}

	var model *models.ModelRef
	if camera.DetectionEnabled {
		resolved, err := detection.ResolveModel(camera.Model, m.defaultModel(ctx))
		if err != nil {
			return fmt.Errorf("failed to resolve model for camera %s: %w", camera.ID, err)
		}
		switch {
		case camera.Model == nil:
			logger.Info().Str("model", resolved.String()).Msg("Camera has no model, using default model")
		case resolved != *camera.Model:
			logger.Warn().
				Str("configured", camera.Model.String()).
				Str("model", resolved.String()).
				Msg("Camera model unavailable, using default model")
		}
		model = &resolved
	}

	p := NewProcessor(m.cfg, camera, model, m.deps, logger)
	if err := p.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to start camera")
		return err
	}

	m.mutex.Lock()
	m.processors[camera.ID] = p
	m.mutex.Unlock()

	return nil
}

// Stop stops and removes a camera. It reports false when nothing was registered.
func (m *Manager) Stop(cameraID string) bool {
	opLock := m.cameraLock(cameraID)
	opLock.Lock()
	defer opLock.Unlock()

	p := m.take(cameraID)
	if p == nil {
		return false
	}
	if err := p.Stop(); err != nil {
		logger := logging.WithCamera(m.logger, cameraID)
		logger.Warn().Err(err).Msg("Failed to stop camera")
	}
	return true
}

// StartAll starts every config and returns how many came up. One camera's
// failure never stops the rest of the batch.
func (m *Manager) StartAll(ctx context.Context, cameras []models.CameraConfig) int {
	started := 0
	for _, camera := range cameras {
		if err := m.Start(ctx, camera); err != nil {
			m.logger.Error().Err(err).Str("camera_id", camera.ID).Msg("Camera failed to start")
			continue
		}
		started++
	}

	m.logger.Info().
		Int("requested", len(cameras)).
		Int("started", started).
		Msg("Start all finished")
	return started
}

// StopAll stops every registered camera concurrently and returns how many were stopped
func (m *Manager) StopAll() int {
	m.mutex.RLock()
	ids := make([]string, 0, len(m.processors))
	for id := range m.processors {
		ids = append(ids, id)
	}
	m.mutex.RUnlock()

	var stopped atomic.Int64
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(cameraID string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error().Str("camera_id", cameraID).Interface("panic", r).Msg("Stop panic recovered")
				}
			}()
			if m.Stop(cameraID) {
				stopped.Add(1)
			}
		}(id)
	}
	wg.Wait()

	m.logger.Info().Int64("stopped", stopped.Load()).Msg("Stop all finished")
	return int(stopped.Load())
}

// Get returns the processor for a camera id
func (m *Manager) Get(cameraID string) (*Processor, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	p, ok := m.processors[cameraID]
	return p, ok
}

// List returns the status of every registered camera, ordered by id
func (m *Manager) List() []models.CameraStatus {
	m.mutex.RLock()
	processors := make([]*Processor, 0, len(m.processors))
	for _, p := range m.processors {
		processors = append(processors, p)
	}
	m.mutex.RUnlock()

	out := make([]models.CameraStatus, 0, len(processors))
	for _, p := range processors {
		out = append(out, p.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}

// GetStats returns the registered and running camera counts
func (m *Manager) GetStats() (int, int) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	running := 0
	for _, p := range m.processors {
		if p.State() == StateRunning {
			running++
		}
	}
	return len(m.processors), running
}

// Shutdown stops all cameras, giving up waiting when ctx expires
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info().Msg("Shutting down camera manager")

	done := make(chan int, 1)
	go func() { done <- m.StopAll() }()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns one camera's live status
func (m *Manager) Status(cameraID string) (models.CameraStatus, bool) {
	p, ok := m.Get(cameraID)
	if !ok {
		return models.CameraStatus{}, false
	}
	return p.Status(), true
}

// CurrentFrame returns the latest annotated frame of a camera
func (m *Manager) CurrentFrame(cameraID string) (*models.Frame, bool) {
	p, ok := m.Get(cameraID)
	if !ok {
		return nil, false
	}
	return p.CurrentFrame(), true
}

// LatestDetections returns a copy of a camera's latest detection batch
func (m *Manager) LatestDetections(cameraID string) ([]models.DetectionEvent, bool) {
	p, ok := m.Get(cameraID)
	if !ok {
		return nil, false
	}
	return p.LatestDetections(), true
}
