package detection

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"nvr-worker-go/internal/models"
)

var boxColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// SnapshotWriter persists the evidence image for a detection batch
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, path string, frame *models.Frame, matches []Match) error
}

// ObjectStore mirrors snapshots to remote storage
type ObjectStore interface {
	SaveSnapshot(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// SnapshotName is <YYYYmmdd_HHMMSS>_<8 hex>.jpg
func SnapshotName(ts time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s.jpg", ts.Format("20060102_150405"), suffix)
}

// JPEGSnapshotWriter draws the matched boxes onto a copy of the frame and writes a JPEG
type JPEGSnapshotWriter struct {
	Quality int
	Mirror  ObjectStore
}

func (w *JPEGSnapshotWriter) WriteSnapshot(ctx context.Context, path string, frame *models.Frame, matches []Match) error {
	src, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return fmt.Errorf("failed to create Mat from frame data: %w", err)
	}
	defer src.Close()

	// The frame's bytes are shared with other consumers; draw on a copy
	img := src.Clone()
	defer img.Close()

	for _, m := range matches {
		b := m.Detection.BBox
		rect := image.Rect(int(b.X), int(b.Y), int(b.X+b.Width), int(b.Y+b.Height))
		gocv.Rectangle(&img, rect, boxColor, 2)
		label := fmt.Sprintf("%s %.2f", m.Detection.Class, m.Detection.Confidence)
		gocv.PutText(&img, label, image.Pt(rect.Min.X, max(rect.Min.Y-10, 10)),
			gocv.FontHersheySimplex, 0.5, boxColor, 2)
	}

	quality := w.Quality
	if quality <= 0 {
		quality = 95
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if w.Mirror != nil {
		key := frame.CameraID + "/" + filepath.Base(path)
		if location, err := w.Mirror.SaveSnapshot(ctx, key, data, "image/jpeg"); err != nil {
			log.Warn().Err(err).Str("camera_id", frame.CameraID).Str("key", key).Msg("Failed to mirror snapshot")
		} else {
			log.Debug().Str("camera_id", frame.CameraID).Str("location", location).Msg("Snapshot mirrored")
		}
	}

	return nil
}
