package config

import (
	"path/filepath"
	"testing"
	"time"
)

// TestLoadDefaults checks the values used when no environment is set
func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_ROOT", "")
	t.Setenv("DATABASE_FILE", "")

	cfg := Load()

	if cfg.DetectionQueueSize != 10 {
		t.Errorf("DetectionQueueSize = %d, want 10", cfg.DetectionQueueSize)
	}
	if cfg.RecordingQueueSize != 30 {
		t.Errorf("RecordingQueueSize = %d, want 30", cfg.RecordingQueueSize)
	}
	if cfg.ReconnectInterval != 2*time.Second {
		t.Errorf("ReconnectInterval = %v, want 2s", cfg.ReconnectInterval)
	}
	if cfg.SegmentMaxDuration != time.Hour {
		t.Errorf("SegmentMaxDuration = %v, want 1h", cfg.SegmentMaxDuration)
	}
	if cfg.RecordingFPS != 20 {
		t.Errorf("RecordingFPS = %v, want 20", cfg.RecordingFPS)
	}
	if cfg.DefaultConfidence != 0.5 {
		t.Errorf("DefaultConfidence = %v, want 0.5", cfg.DefaultConfidence)
	}
	if cfg.DatabaseFile != filepath.Join("storage", "nvr.db") {
		t.Errorf("DatabaseFile = %q", cfg.DatabaseFile)
	}
}

// TestLoadOverrides checks typed parsing of environment values
func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_ROOT", "/data")
	t.Setenv("DETECTION_QUEUE_SIZE", "4")
	t.Setenv("SEGMENT_MAX_DURATION", "10m")
	t.Setenv("RECORDING_FPS", "12.5")
	t.Setenv("MQTT_ENABLED", "true")
	t.Setenv("JOIN_TIMEOUT", "not-a-duration")

	cfg := Load()

	if cfg.DetectionQueueSize != 4 {
		t.Errorf("DetectionQueueSize = %d, want 4", cfg.DetectionQueueSize)
	}
	if cfg.SegmentMaxDuration != 10*time.Minute {
		t.Errorf("SegmentMaxDuration = %v, want 10m", cfg.SegmentMaxDuration)
	}
	if cfg.RecordingFPS != 12.5 {
		t.Errorf("RecordingFPS = %v, want 12.5", cfg.RecordingFPS)
	}
	if !cfg.MQTTEnabled {
		t.Error("MQTTEnabled should be true")
	}
	if cfg.JoinTimeout != 5*time.Second {
		t.Errorf("invalid JOIN_TIMEOUT should fall back to default, got %v", cfg.JoinTimeout)
	}
	if cfg.DatabaseFile != filepath.Join("/data", "nvr.db") {
		t.Errorf("DatabaseFile = %q", cfg.DatabaseFile)
	}
}

func TestStorageLayout(t *testing.T) {
	cfg := &Config{StorageRoot: "/srv/nvr"}

	if got, want := cfg.ImagesDir("cam1"), filepath.Join("/srv/nvr", "recordings", "images", "cam1"); got != want {
		t.Errorf("ImagesDir = %q, want %q", got, want)
	}
	if got, want := cfg.VideosDir("cam1"), filepath.Join("/srv/nvr", "recordings", "videos", "cam1"); got != want {
		t.Errorf("VideosDir = %q, want %q", got, want)
	}
}
