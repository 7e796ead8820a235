package streamcapture

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// Capture is the part of gocv.VideoCapture the frame source needs
type Capture interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Opener opens a stream address. OpenFFmpeg is the production opener.
type Opener func(address string) (Capture, error)

// ConnectionError reports a stream that could not be opened
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to open stream %s: %v", redact(e.Address), e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

var ffmpegOnce sync.Once

// OpenFFmpeg opens an RTSP/HTTP/file address with the OpenCV FFmpeg backend
func OpenFFmpeg(address string) (Capture, error) {
	ffmpegOnce.Do(configureFFmpegOptions)

	cap, err := gocv.OpenVideoCaptureWithAPI(address, gocv.VideoCaptureFFmpeg)
	if err != nil {
		return nil, err
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("video capture is not opened")
	}

	// Minimal buffer keeps latency low
	cap.Set(gocv.VideoCaptureBufferSize, 1)

	return cap, nil
}

// WithCredentials embeds username/password into a scheme://host address.
// Addresses without a scheme (device indexes, local files) are returned as is.
func WithCredentials(address, username, password string) string {
	if username == "" {
		return address
	}
	idx := strings.Index(address, "://")
	if idx < 0 {
		return address
	}
	rest := address[idx+3:]
	// Drop any userinfo already present
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		slash := strings.Index(rest, "/")
		if slash < 0 || at < slash {
			rest = rest[at+1:]
		}
	}
	var userinfo *url.Userinfo
	if password != "" {
		userinfo = url.UserPassword(username, password)
	} else {
		userinfo = url.User(username)
	}
	return address[:idx+3] + userinfo.String() + "@" + rest
}

// redact hides the password of an address for logging
func redact(address string) string {
	u, err := url.Parse(address)
	if err != nil || u.User == nil {
		return address
	}
	return u.Redacted()
}

// configureFFmpegOptions sets the capture options OpenCV passes to FFmpeg
func configureFFmpegOptions() {
	if os.Getenv("OPENCV_FFMPEG_CAPTURE_OPTIONS") != "" {
		return
	}

	ffmpegOptions := map[string]string{
		"rtsp_transport":      "tcp",     // Use TCP for more reliable connection
		"buffer_size":         "2097152", // 2MB buffer
		"max_delay":           "500000",  // 0.5s max delay
		"stimeout":            "5000000", // 5s timeout
		"rw_timeout":          "5000000",
		"fflags":              "nobuffer",
		"flags":               "low_delay",
		"analyzeduration":     "500000",
		"probesize":           "2000000",
		"allowed_media_types": "video",
	}

	keys := make([]string, 0, len(ffmpegOptions))
	for k := range ffmpegOptions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+";"+ffmpegOptions[k])
	}
	opts := strings.Join(parts, "|")

	os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS", opts)

	log.Debug().Str("ffmpeg_options", opts).Msg("FFmpeg options configured for OpenCV")
}
