package camera

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"nvr-worker-go/internal/models"
	"nvr-worker-go/internal/services/detection"
)

func newTestManager(t *testing.T, opener *fakeOpener, defaultModel DefaultModelFunc) *Manager {
	var writersClosed atomic.Int64
	return NewManager(testConfig(t), testDeps(opener, &fakeBackend{}, &writersClosed), defaultModel, zerolog.Nop())
}

func noDefault(context.Context) *models.ModelRef { return nil }

func TestRestartReplacesProcessor(t *testing.T) {
	opener := &fakeOpener{}
	m := newTestManager(t, opener, noDefault)
	defer m.StopAll()

	first := models.CameraConfig{ID: "camA", Name: "Gate", Address: "rtsp://10.0.0.2/one"}
	if err := m.Start(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	old, _ := m.Get("camA")

	second := first
	second.Address = "rtsp://10.0.0.2/two"
	second.Name = "Gate (new)"
	if err := m.Start(context.Background(), second); err != nil {
		t.Fatal(err)
	}

	total, running := m.GetStats()
	if total != 1 || running != 1 {
		t.Fatalf("stats = %d/%d, want 1/1", total, running)
	}

	p, ok := m.Get("camA")
	if !ok || p == old {
		t.Fatal("expected a fresh processor after restart")
	}
	if p.Config().Address != "rtsp://10.0.0.2/two" {
		t.Errorf("processor runs %s", p.Config().Address)
	}
	if old.State() != StateStopped {
		t.Errorf("previous processor state = %s", old.State())
	}

	opener.mu.Lock()
	firstCapture := opener.captures[0]
	opener.mu.Unlock()
	if !firstCapture.closed.Load() {
		t.Error("previous stream handle still open")
	}
}

func TestStopIsNoopForUnknownCamera(t *testing.T) {
	m := newTestManager(t, &fakeOpener{}, noDefault)
	if m.Stop("missing") {
		t.Error("Stop reported success for an unknown camera")
	}
}

func TestStartAllToleratesPartialFailure(t *testing.T) {
	opener := &fakeOpener{}
	m := newTestManager(t, opener, noDefault)

	cameras := []models.CameraConfig{
		{ID: "cam1", Address: "rtsp://10.0.0.2/1"},
		{ID: "", Address: "rtsp://10.0.0.2/bad"},
		{ID: "cam2", Address: "rtsp://10.0.0.2/2", DetectionEnabled: true}, // no usable model
		{ID: "cam3", Address: "rtsp://10.0.0.2/3"},
	}

	if got := m.StartAll(context.Background(), cameras); got != 2 {
		t.Fatalf("StartAll = %d, want 2", got)
	}
	if _, ok := m.Get("cam2"); ok {
		t.Error("camera with failed start should not be registered")
	}
	if got := len(m.List()); got != 2 {
		t.Errorf("List has %d cameras", got)
	}

	if got := m.StopAll(); got != 2 {
		t.Errorf("StopAll = %d, want 2", got)
	}
	if total, _ := m.GetStats(); total != 0 {
		t.Errorf("registry not empty after StopAll: %d", total)
	}
	if !opener.allClosed() {
		t.Error("stream handles left open")
	}
}

func TestStartFallsBackToDefaultModel(t *testing.T) {
	dir := t.TempDir()
	defaultPath := filepath.Join(dir, "default.pb")
	if err := os.WriteFile(defaultPath, []byte("model"), 0644); err != nil {
		t.Fatal(err)
	}
	fallback := &models.ModelRef{Name: "default", Path: defaultPath}

	var loaded atomic.Value
	opener := &fakeOpener{}
	var writersClosed atomic.Int64
	deps := testDeps(opener, &fakeBackend{}, &writersClosed)
	deps.Loader = detection.LoaderFunc(func(ctx context.Context, ref models.ModelRef) (detection.Backend, error) {
		loaded.Store(ref)
		return &fakeBackend{}, nil
	})
	m := NewManager(testConfig(t), deps, func(context.Context) *models.ModelRef { return fallback }, zerolog.Nop())
	defer m.StopAll()

	cam := models.CameraConfig{
		ID:               "cam1",
		Address:          "rtsp://10.0.0.2/1",
		DetectionEnabled: true,
		Model:            &models.ModelRef{Name: "custom", Path: filepath.Join(dir, "missing.pb")},
	}
	if err := m.Start(context.Background(), cam); err != nil {
		t.Fatal(err)
	}

	ref, _ := loaded.Load().(models.ModelRef)
	if ref.Path != defaultPath {
		t.Errorf("loaded %q, want default model", ref.Path)
	}
	p, _ := m.Get("cam1")
	if p.Status().Model != "default" {
		t.Errorf("status model = %q", p.Status().Model)
	}
}

// logBuffer collects log output written from the camera loops
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDefaultModelFallbackLogLevel(t *testing.T) {
	dir := t.TempDir()
	defaultPath := filepath.Join(dir, "default.pb")
	if err := os.WriteFile(defaultPath, []byte("model"), 0644); err != nil {
		t.Fatal(err)
	}
	fallback := &models.ModelRef{Name: "default", Path: defaultPath}

	cases := []struct {
		name     string
		model    *models.ModelRef
		wantWarn bool
	}{
		{name: "no model configured", model: nil, wantWarn: false},
		{name: "configured model missing", model: &models.ModelRef{Name: "custom", Path: filepath.Join(dir, "missing.pb")}, wantWarn: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := &logBuffer{}
			var writersClosed atomic.Int64
			deps := testDeps(&fakeOpener{}, &fakeBackend{}, &writersClosed)
			m := NewManager(testConfig(t), deps, func(context.Context) *models.ModelRef { return fallback }, zerolog.New(buf))
			defer m.StopAll()

			cam := models.CameraConfig{ID: "cam1", Address: "rtsp://10.0.0.2/1", DetectionEnabled: true, Model: tc.model}
			if err := m.Start(context.Background(), cam); err != nil {
				t.Fatal(err)
			}

			var fallbackLine string
			for _, line := range strings.Split(buf.String(), "\n") {
				if strings.Contains(line, "using default model") {
					fallbackLine = line
				}
			}
			if fallbackLine == "" {
				t.Fatal("fallback to default model was not logged")
			}
			gotWarn := strings.Contains(fallbackLine, `"level":"warn"`)
			if gotWarn != tc.wantWarn {
				t.Errorf("fallback logged as %s, want warn=%v", fallbackLine, tc.wantWarn)
			}
		})
	}
}

func TestStartWithoutAnyModelFails(t *testing.T) {
	m := newTestManager(t, &fakeOpener{}, noDefault)
	err := m.Start(context.Background(), models.CameraConfig{ID: "cam1", Address: "rtsp://x/1", DetectionEnabled: true})
	if !errors.Is(err, detection.ErrNoModel) {
		t.Fatalf("err = %v, want ErrNoModel", err)
	}
}

func TestStartRejectsIncompleteConfig(t *testing.T) {
	m := newTestManager(t, &fakeOpener{}, noDefault)
	if err := m.Start(context.Background(), models.CameraConfig{ID: "cam1"}); !errors.Is(err, ErrInvalidCamera) {
		t.Fatalf("err = %v", err)
	}
}
