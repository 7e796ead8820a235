package mjpeg

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"nvr-worker-go/internal/models"
)

// FrameFunc returns a camera's latest frame; ok is false once the camera is gone
type FrameFunc func() (frame *models.Frame, ok bool)

type cachedJPEG struct {
	frameID int64
	data    []byte
}

// Publisher serves the latest-frame slot of each camera as JPEG and MJPEG.
// Frames are encoded once per frame id and shared between viewers.
type Publisher struct {
	quality  int
	interval time.Duration

	jpegMutex  sync.RWMutex
	latestJPEG map[string]cachedJPEG
}

func NewPublisher(quality int, interval time.Duration) *Publisher {
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Publisher{
		quality:    quality,
		interval:   interval,
		latestJPEG: make(map[string]cachedJPEG),
	}
}

// EncodeJPEG encodes a BGR frame
func EncodeJPEG(frame *models.Frame, quality int) ([]byte, error) {
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create Mat from frame data: %w", err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	defer buf.Close()

	b := buf.GetBytes()
	jpegCopy := make([]byte, len(b))
	copy(jpegCopy, b)
	return jpegCopy, nil
}

// JPEG returns the encoded frame, reusing the cached bytes while the frame id is unchanged
func (p *Publisher) JPEG(cameraID string, frame *models.Frame) ([]byte, error) {
	if frame == nil {
		return nil, nil
	}

	p.jpegMutex.RLock()
	cached, ok := p.latestJPEG[cameraID]
	p.jpegMutex.RUnlock()
	if ok && cached.frameID == frame.FrameID {
		return cached.data, nil
	}

	data, err := EncodeJPEG(frame, p.quality)
	if err != nil {
		return nil, err
	}

	p.jpegMutex.Lock()
	p.latestJPEG[cameraID] = cachedJPEG{frameID: frame.FrameID, data: data}
	p.jpegMutex.Unlock()
	return data, nil
}

// Forget drops the cached JPEG of a stopped camera
func (p *Publisher) Forget(cameraID string) {
	p.jpegMutex.Lock()
	delete(p.latestJPEG, cameraID)
	p.jpegMutex.Unlock()
}

func placeholder(cameraID string) []byte {
	img := gocv.NewMatWithSize(360, 640, gocv.MatTypeCV8UC3)
	defer img.Close()

	img.SetTo(gocv.Scalar{Val1: 64, Val2: 64, Val3: 64, Val4: 0})

	textColor := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gocv.PutText(&img, fmt.Sprintf("Camera: %s", cameraID),
		image.Pt(20, 180), gocv.FontHersheySimplex, 1.0, textColor, 2)
	gocv.PutText(&img, "Waiting for frames...",
		image.Pt(20, 220), gocv.FontHersheySimplex, 0.8, textColor, 2)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, 90})
	if err != nil {
		return nil
	}
	defer buf.Close()
	b := buf.GetBytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// StreamMJPEGHTTP writes a multipart MJPEG stream until the client leaves or the camera stops
func (p *Publisher) StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request, cameraID string, frames FrameFunc) {
	boundary := "frame"
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	writePart := func(jpeg []byte) bool {
		if _, err := io.WriteString(w, "--"+boundary+"\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "Content-Type: image/jpeg\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(w, fmt.Sprintf("Content-Length: %d\r\n\r\n", len(jpeg))); err != nil {
			return false
		}
		if _, err := w.Write(jpeg); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	var lastID int64 = -1
	var lastJPEG []byte
	next := func() (changed, alive bool) {
		frame, ok := frames()
		if !ok {
			return false, false
		}
		if frame == nil || frame.FrameID == lastID {
			return false, true
		}
		data, err := p.JPEG(cameraID, frame)
		if err != nil {
			log.Debug().Err(err).Str("camera_id", cameraID).Msg("Failed to encode MJPEG frame")
			return false, true
		}
		lastID, lastJPEG = frame.FrameID, data
		return true, true
	}

	changed, alive := next()
	if !alive {
		return
	}
	if !changed {
		lastJPEG = placeholder(cameraID)
	}
	if len(lastJPEG) > 0 && !writePart(lastJPEG) {
		return
	}

	pollTicker := time.NewTicker(p.interval)
	defer pollTicker.Stop()
	keepaliveTicker := time.NewTicker(2 * time.Second)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			changed, alive := next()
			if !alive {
				return
			}
			if changed && !writePart(lastJPEG) {
				return
			}
		case <-keepaliveTicker.C:
			if len(lastJPEG) > 0 && !writePart(lastJPEG) {
				return
			}
		}
	}
}

func (p *Publisher) Shutdown() {
	log.Info().Msg("MJPEG Publisher shutting down")
}
