package recorder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"nvr-worker-go/internal/models"
)

// ErrClosed is returned once Close has run; a closed recorder never opens another segment
var ErrClosed = errors.New("recorder closed")

type Options struct {
	VideosDir          string
	MaxSegmentDuration time.Duration
	FPS                float64
	DefaultWidth       int
	DefaultHeight      int
	PollTimeout        time.Duration
	RetryBackoff       time.Duration
}

// Recorder writes frames from its queue into rotating segment files.
// The writer belongs to the Run goroutine. writerMu is never held across an
// encoder call, so Close returns promptly even while a write is stuck; the
// writer is then released by the Run goroutine once that write returns.
type Recorder struct {
	cameraID  string
	queue     <-chan *models.Frame
	factory   WriterFactory
	observers []models.SegmentObserver
	frameHint func() *models.Frame
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time

	writerMu sync.Mutex
	writer   SegmentWriter
	segment  *models.RecordingSegment
	width    int
	height   int
	closed   bool
	writing  bool
	// released while a write was in flight; closed by writeFrame
	orphan SegmentWriter

	pathMu sync.RWMutex
	path   string
}

// NewRecorder builds a recorder. frameHint, when set, sizes new segments
// after the most recent frame instead of the default size.
func NewRecorder(
	cameraID string,
	queue <-chan *models.Frame,
	factory WriterFactory,
	frameHint func() *models.Frame,
	opts Options,
	logger zerolog.Logger,
	observers ...models.SegmentObserver,
) *Recorder {
	if opts.MaxSegmentDuration <= 0 {
		opts.MaxSegmentDuration = time.Hour
	}
	if opts.FPS <= 0 {
		opts.FPS = 20
	}
	if opts.DefaultWidth <= 0 || opts.DefaultHeight <= 0 {
		opts.DefaultWidth, opts.DefaultHeight = 1280, 720
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	return &Recorder{
		cameraID:  cameraID,
		queue:     queue,
		factory:   factory,
		observers: observers,
		frameHint: frameHint,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Run writes frames until ctx is cancelled, then closes the open segment
func (r *Recorder) Run(ctx context.Context) {
	defer r.Close()

	r.logger.Info().
		Str("dir", r.opts.VideosDir).
		Dur("max_segment", r.opts.MaxSegmentDuration).
		Float64("fps", r.opts.FPS).
		Msg("Recording loop started")

	for {
		if ctx.Err() != nil {
			return
		}
		if err := r.rotateIfNeeded(); err != nil {
			if errors.Is(err, ErrClosed) {
				return
			}
			r.logger.Error().Err(err).Msg("Failed to open segment")
			if !r.sleep(ctx, r.opts.RetryBackoff) {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case frame, ok := <-r.queue:
			if !ok {
				return
			}
			if err := r.writeFrame(frame); err != nil {
				if errors.Is(err, ErrClosed) {
					return
				}
				r.logger.Warn().Err(err).Int64("frame_id", frame.FrameID).Msg("Failed to write frame")
				if !r.sleep(ctx, r.opts.RetryBackoff) {
					return
				}
			}
		case <-time.After(r.opts.PollTimeout):
			continue
		}
	}
}

func (r *Recorder) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// rotateIfNeeded closes an aged segment and opens a fresh one when none is open
func (r *Recorder) rotateIfNeeded() error {
	r.writerMu.Lock()
	defer r.writerMu.Unlock()

	if r.closed {
		return ErrClosed
	}

	now := r.now()
	if r.segment != nil && now.Sub(r.segment.StartTime) > r.opts.MaxSegmentDuration {
		r.logger.Info().Str("segment", r.segment.Path).Msg("Rotating segment")
		r.closeSegmentLocked(now)
	}
	if r.segment != nil {
		return nil
	}
	return r.openSegmentLocked(now)
}

func (r *Recorder) openSegmentLocked(now time.Time) error {
	if err := os.MkdirAll(r.opts.VideosDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	width, height := r.opts.DefaultWidth, r.opts.DefaultHeight
	if r.frameHint != nil {
		if f := r.frameHint(); f != nil && f.Width > 0 && f.Height > 0 {
			width, height = f.Width, f.Height
		}
	}

	path := filepath.Join(r.opts.VideosDir, now.Format("20060102_150405")+".mp4")
	writer, err := r.factory(path, r.opts.FPS, width, height)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	r.writer = writer
	r.width, r.height = width, height
	r.segment = &models.RecordingSegment{
		CameraID:  r.cameraID,
		Path:      path,
		StartTime: now,
		FPS:       r.opts.FPS,
		Open:      true,
	}

	r.pathMu.Lock()
	r.path = path
	r.pathMu.Unlock()

	r.logger.Info().
		Str("segment", path).
		Int("width", width).
		Int("height", height).
		Msg("Segment opened")

	seg := *r.segment
	for _, o := range r.observers {
		o.SegmentOpened(seg)
	}
	return nil
}

func (r *Recorder) closeSegmentLocked(now time.Time) {
	if r.segment == nil {
		return
	}

	if r.writer != nil {
		if r.writing {
			r.orphan = r.writer
		} else if err := r.writer.Close(); err != nil {
			r.logger.Warn().Err(err).Str("segment", r.segment.Path).Msg("Failed to close writer")
		}
		r.writer = nil
	}

	seg := *r.segment
	seg.EndTime = &now
	seg.Open = false
	r.segment = nil

	r.pathMu.Lock()
	r.path = ""
	r.pathMu.Unlock()

	r.logger.Info().
		Str("segment", seg.Path).
		Int64("frames", seg.FrameCount).
		Dur("duration", seg.Duration()).
		Msg("Segment closed")

	for _, o := range r.observers {
		o.SegmentClosed(seg)
	}
}

// writeFrame encodes one frame, scaling it to the segment size when needed
func (r *Recorder) writeFrame(frame *models.Frame) error {
	if frame == nil {
		return nil
	}

	r.writerMu.Lock()
	if r.closed {
		r.writerMu.Unlock()
		return ErrClosed
	}
	writer, segment := r.writer, r.segment
	width, height := r.width, r.height
	if writer == nil {
		r.writerMu.Unlock()
		return fmt.Errorf("no open segment")
	}
	r.writing = true
	r.writerMu.Unlock()

	err := r.encode(writer, frame, width, height)

	r.writerMu.Lock()
	r.writing = false
	orphan := r.orphan
	r.orphan = nil
	if err == nil && r.segment == segment {
		r.segment.FrameCount++
	}
	r.writerMu.Unlock()

	if orphan != nil {
		if cerr := orphan.Close(); cerr != nil {
			r.logger.Warn().Err(cerr).Msg("Failed to close writer")
		}
	}
	return err
}

func (r *Recorder) encode(writer SegmentWriter, frame *models.Frame, width, height int) error {
	img, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return fmt.Errorf("failed to create Mat from frame data: %w", err)
	}
	defer img.Close()

	out := img
	if frame.Width != width || frame.Height != height {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(img, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
		out = resized
	}

	return writer.Write(out)
}

// CurrentSegmentPath is the open segment's path, or "" when none is open
func (r *Recorder) CurrentSegmentPath() string {
	r.pathMu.RLock()
	defer r.pathMu.RUnlock()
	return r.path
}

// Close finishes the open segment and stops the recorder for good. A writer
// busy in a write is released by the Run goroutine when the write returns.
// Safe to call more than once.
func (r *Recorder) Close() {
	r.writerMu.Lock()
	defer r.writerMu.Unlock()
	r.closed = true
	r.closeSegmentLocked(r.now())
}
