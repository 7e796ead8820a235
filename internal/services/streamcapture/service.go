package streamcapture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"nvr-worker-go/internal/models"
)

var overlayColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// ErrSourceClosed is returned by Open once the source has been closed
var ErrSourceClosed = errors.New("frame source closed")

// Options tune a Source. Zero values fall back to defaults.
type Options struct {
	ReconnectInterval time.Duration
	FPSWindow         int
	DisableOverlay    bool
}

// consumer is one bounded downstream queue
type consumer struct {
	name    string
	ch      chan<- *models.Frame
	dropped atomic.Int64
}

// Source reads frames from one camera, keeps the latest one and feeds the
// consumer queues without ever blocking on them.
type Source struct {
	camera  *models.CameraConfig
	address string
	opener  Opener
	opts    Options
	logger  zerolog.Logger

	// capMu guards the handle but is never held across Read. A Close that
	// lands mid-read leaves the release to the reading goroutine.
	capMu   sync.Mutex
	capture Capture
	closed  bool
	reading bool
	orphan  Capture

	consumers []*consumer

	latestMu sync.RWMutex
	latest   *models.Frame

	frameCount atomic.Int64
	reconnects atomic.Int64

	fpsMu            sync.Mutex
	recentFrameTimes []time.Time
	fps              float64
}

// NewSource prepares a frame source for camera. Nothing is opened until Open.
func NewSource(camera *models.CameraConfig, opener Opener, opts Options, logger zerolog.Logger) *Source {
	if opener == nil {
		opener = OpenFFmpeg
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 2 * time.Second
	}
	if opts.FPSWindow < 2 {
		opts.FPSWindow = 30
	}
	return &Source{
		camera:           camera,
		address:          WithCredentials(camera.Address, camera.Username, camera.Password),
		opener:           opener,
		opts:             opts,
		logger:           logger,
		recentFrameTimes: make([]time.Time, 0, opts.FPSWindow),
	}
}

// AddConsumer registers a downstream queue. Must be called before Run.
func (s *Source) AddConsumer(name string, ch chan<- *models.Frame) {
	s.consumers = append(s.consumers, &consumer{name: name, ch: ch})
}

// Open establishes the stream
func (s *Source) Open() error {
	capture, err := s.opener(s.address)
	if err != nil {
		return &ConnectionError{Address: s.address, Err: err}
	}

	s.capMu.Lock()
	if s.closed {
		s.capMu.Unlock()
		capture.Close()
		return ErrSourceClosed
	}
	old := s.capture
	s.capture = capture
	s.capMu.Unlock()

	if old != nil {
		old.Close()
	}

	s.logger.Info().Str("address", redact(s.address)).Msg("Stream opened")
	return nil
}

// Close releases the stream handle and keeps the source from reopening.
// Safe to call more than once.
func (s *Source) Close() {
	s.capMu.Lock()
	capture := s.capture
	s.capture = nil
	s.closed = true
	if s.reading && capture != nil {
		s.orphan = capture
		capture = nil
	}
	s.capMu.Unlock()

	if capture != nil {
		if err := capture.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to release stream")
		}
	}
}

// beginRead hands out the current handle and marks it busy
func (s *Source) beginRead() Capture {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	if s.closed || s.capture == nil {
		return nil
	}
	s.reading = true
	return s.capture
}

// endRead clears the busy mark and releases a handle closed during the read
func (s *Source) endRead() (released bool) {
	s.capMu.Lock()
	s.reading = false
	orphan := s.orphan
	s.orphan = nil
	s.capMu.Unlock()

	if orphan == nil {
		return false
	}
	if err := orphan.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to release stream")
	}
	return true
}

func (s *Source) isClosed() bool {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	return s.closed
}

// Run reads until ctx is cancelled. Read failures never end the loop: the
// source backs off, reopens the stream and carries on.
func (s *Source) Run(ctx context.Context) {
	img := gocv.NewMat()
	defer img.Close()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Stopping frame reader due to context cancel")
			return
		default:
		}

		if !s.readOnce(ctx, &img) {
			if s.isClosed() {
				return
			}
			s.logger.Warn().
				Int64("reconnects", s.reconnects.Load()).
				Dur("backoff", s.opts.ReconnectInterval).
				Msg("Failed to read frame, reconnecting")

			select {
			case <-ctx.Done():
				return
			case <-time.After(s.opts.ReconnectInterval):
			}

			s.reconnects.Add(1)
			if err := s.Open(); err != nil {
				s.logger.Error().Err(err).Msg("Reconnect failed, will retry")
			}
		}
	}
}

// readOnce reads and distributes a single frame, reporting whether the read succeeded
func (s *Source) readOnce(ctx context.Context, img *gocv.Mat) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Frame read panic recovered")
			ok = false
		}
	}()

	capture := s.beginRead()
	if capture == nil {
		return false
	}
	var read, released bool
	func() {
		defer func() { released = s.endRead() }()
		read = capture.Read(img)
	}()
	if released || !read || img.Empty() {
		return false
	}

	frame := s.buildFrame(img)
	if ctx.Err() != nil {
		return true
	}
	s.publish(frame)
	return true
}

// buildFrame stamps the overlay and copies the pixels out of the reusable Mat
func (s *Source) buildFrame(img *gocv.Mat) *models.Frame {
	now := time.Now()

	if img.Channels() == 1 {
		gocv.CvtColor(*img, img, gocv.ColorGrayToBGR)
	}

	if !s.opts.DisableOverlay {
		gocv.PutText(img, now.Format("2006-01-02 15:04:05"), image.Pt(10, 30),
			gocv.FontHersheySimplex, 0.8, overlayColor, 2)
		gocv.PutText(img, s.camera.DisplayName(), image.Pt(10, 60),
			gocv.FontHersheySimplex, 0.8, overlayColor, 2)
	}

	return &models.Frame{
		CameraID:  s.camera.ID,
		FrameID:   s.frameCount.Add(1),
		Data:      img.ToBytes(),
		Width:     img.Cols(),
		Height:    img.Rows(),
		Timestamp: now,
	}
}

// publish overwrites the latest slot and offers the frame to every consumer
func (s *Source) publish(frame *models.Frame) {
	s.latestMu.Lock()
	s.latest = frame
	s.latestMu.Unlock()

	for _, c := range s.consumers {
		select {
		case c.ch <- frame:
		default:
			// Queue full: this consumer misses the frame
			c.dropped.Add(1)
		}
	}

	if fps, ok := s.trackFPS(frame.Timestamp); ok {
		s.logger.Debug().
			Float64("fps", fps).
			Int64("frame_id", frame.FrameID).
			Msg("Capture rate")
	}
}

// trackFPS updates the rolling window and reports a fresh value once per window
func (s *Source) trackFPS(ts time.Time) (float64, bool) {
	s.fpsMu.Lock()
	defer s.fpsMu.Unlock()

	s.recentFrameTimes = append(s.recentFrameTimes, ts)
	if len(s.recentFrameTimes) > s.opts.FPSWindow {
		s.recentFrameTimes = s.recentFrameTimes[1:]
	}
	if len(s.recentFrameTimes) < 2 {
		return 0, false
	}

	span := s.recentFrameTimes[len(s.recentFrameTimes)-1].Sub(s.recentFrameTimes[0]).Seconds()
	if span > 0 {
		s.fps = float64(len(s.recentFrameTimes)-1) / span
	}

	return s.fps, s.frameCount.Load()%int64(s.opts.FPSWindow) == 0
}

// CurrentFrame returns the most recent annotated frame, or nil before the first read
func (s *Source) CurrentFrame() *models.Frame {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	return s.latest
}

// FPS returns the rolling capture rate
func (s *Source) FPS() float64 {
	s.fpsMu.Lock()
	defer s.fpsMu.Unlock()
	return s.fps
}

func (s *Source) FrameCount() int64 { return s.frameCount.Load() }

func (s *Source) Reconnects() int64 { return s.reconnects.Load() }

// Dropped returns how many frames the named consumer missed because its queue was full
func (s *Source) Dropped(name string) int64 {
	for _, c := range s.consumers {
		if c.name == name {
			return c.dropped.Load()
		}
	}
	return 0
}
