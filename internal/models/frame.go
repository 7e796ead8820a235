package models

import "time"

// Frame is one decoded BGR24 image. Data is never written after the frame
// is created, so a *Frame can be handed to several readers.
type Frame struct {
	CameraID  string
	FrameID   int64
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Time
}
