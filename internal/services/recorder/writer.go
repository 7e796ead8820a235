package recorder

import (
	"fmt"

	"gocv.io/x/gocv"
)

// SegmentWriter encodes frames into one segment file
type SegmentWriter interface {
	Write(img gocv.Mat) error
	Close() error
}

// WriterFactory opens a segment file at a fixed output rate and size
type WriterFactory func(path string, fps float64, width, height int) (SegmentWriter, error)

// NewVideoWriterFactory opens segments with gocv.VideoWriterFile
func NewVideoWriterFactory(codec string) WriterFactory {
	if codec == "" {
		codec = "mp4v"
	}
	return func(path string, fps float64, width, height int) (SegmentWriter, error) {
		vw, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
		if err != nil {
			return nil, err
		}
		if !vw.IsOpened() {
			vw.Close()
			return nil, fmt.Errorf("video writer for %s is not opened", path)
		}
		return vw, nil
	}
}
