package detection

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"nvr-worker-go/internal/models"
)

// cocoLabels are the COCO class names; SSD models put background at id 0
var cocoLabels = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier",
	"toothbrush",
}

// DNNBackend runs an SSD-style OpenCV DNN network in process
type DNNBackend struct {
	mu        sync.Mutex
	net       gocv.Net
	labels    []string
	inputSize int
}

// NewDNNLoader loads file-backed models with gocv.ReadNet
func NewDNNLoader(inputSize int) Loader {
	if inputSize <= 0 {
		inputSize = 300
	}
	return LoaderFunc(func(ctx context.Context, ref models.ModelRef) (Backend, error) {
		if _, err := os.Stat(ref.Path); err != nil {
			return nil, fmt.Errorf("model file: %w", err)
		}

		net := gocv.ReadNet(ref.Path, ref.ConfigPath)
		if net.Empty() {
			return nil, fmt.Errorf("could not load DNN model %s", ref.Path)
		}

		labels := cocoLabels
		if ref.LabelsPath != "" {
			loaded, err := readLabels(ref.LabelsPath)
			if err != nil {
				net.Close()
				return nil, err
			}
			labels = loaded
		}

		log.Info().
			Str("model", ref.String()).
			Int("labels", len(labels)).
			Int("input_size", inputSize).
			Msg("DNN model loaded")

		return &DNNBackend{net: net, labels: labels, inputSize: inputSize}, nil
	})
}

func readLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels file: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}
	return labels, scanner.Err()
}

func (b *DNNBackend) label(classID int) string {
	// id 0 is background
	if classID >= 1 && classID-1 < len(b.labels) && b.labels[classID-1] != "" {
		return b.labels[classID-1]
	}
	return fmt.Sprintf("class_%d", classID)
}

// Detect interprets the [img_id, class_id, confidence, left, top, right, bottom] rows
func (b *DNNBackend) Detect(ctx context.Context, frame *models.Frame) ([]models.RawDetection, error) {
	img, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create Mat from frame data: %w", err)
	}
	defer img.Close()

	blob := gocv.BlobFromImage(img, 1.0/127.5, image.Pt(b.inputSize, b.inputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	b.mu.Lock()
	b.net.SetInput(blob, "")
	prob := b.net.Forward("")
	b.mu.Unlock()
	defer prob.Close()

	w, h := float64(frame.Width), float64(frame.Height)
	var out []models.RawDetection
	for i := 0; i+6 < prob.Total(); i += 7 {
		confidence := float64(prob.GetFloatAt(0, i+2))
		if confidence <= 0 {
			continue
		}
		left := clamp(float64(prob.GetFloatAt(0, i+3))*w, 0, w)
		top := clamp(float64(prob.GetFloatAt(0, i+4))*h, 0, h)
		right := clamp(float64(prob.GetFloatAt(0, i+5))*w, 0, w)
		bottom := clamp(float64(prob.GetFloatAt(0, i+6))*h, 0, h)
		if right <= left || bottom <= top {
			continue
		}

		out = append(out, models.RawDetection{
			Class:      b.label(int(prob.GetFloatAt(0, i+1))),
			Confidence: confidence,
			BBox:       models.BBox{X: left, Y: top, Width: right - left, Height: bottom - top},
		})
	}
	return out, nil
}

func (b *DNNBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.net.Close()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
