package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"nvr-worker-go/internal/models"
	"nvr-worker-go/internal/services/camera"
	"nvr-worker-go/internal/services/detection"
	"nvr-worker-go/internal/services/streamcapture"
	"nvr-worker-go/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCameras struct {
	mu       sync.Mutex
	running  map[string]models.CameraConfig
	startErr map[string]error
	frames   map[string]*models.Frame
	latest   map[string][]models.DetectionEvent
}

func newFakeCameras() *fakeCameras {
	return &fakeCameras{
		running:  map[string]models.CameraConfig{},
		startErr: map[string]error{},
		frames:   map[string]*models.Frame{},
		latest:   map[string][]models.DetectionEvent{},
	}
}

func (f *fakeCameras) Start(_ context.Context, cfg models.CameraConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.startErr[cfg.ID]; err != nil {
		return err
	}
	f.running[cfg.ID] = cfg
	return nil
}

func (f *fakeCameras) Stop(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.running[id]; !ok {
		return false
	}
	delete(f.running, id)
	return true
}

func (f *fakeCameras) StartAll(ctx context.Context, cams []models.CameraConfig) int {
	n := 0
	for _, c := range cams {
		if f.Start(ctx, c) == nil {
			n++
		}
	}
	return n
}

func (f *fakeCameras) StopAll() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.running)
	f.running = map[string]models.CameraConfig{}
	return n
}

func (f *fakeCameras) List() []models.CameraStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.CameraStatus, 0, len(f.running))
	for id, c := range f.running {
		out = append(out, models.CameraStatus{CameraID: id, Name: c.DisplayName(), State: "running"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}

func (f *fakeCameras) Status(id string) (models.CameraStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.running[id]
	if !ok {
		return models.CameraStatus{}, false
	}
	return models.CameraStatus{CameraID: id, Name: c.DisplayName(), State: "running"}, true
}

func (f *fakeCameras) CurrentFrame(id string) (*models.Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.running[id]; !ok {
		return nil, false
	}
	return f.frames[id], true
}

func (f *fakeCameras) LatestDetections(id string) ([]models.DetectionEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.running[id]; !ok {
		return nil, false
	}
	ev := f.latest[id]
	if ev == nil {
		ev = []models.DetectionEvent{}
	}
	return ev, true
}

func (f *fakeCameras) GetStats() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.running), len(f.running)
}

type fakeStore struct {
	cameras map[string]models.CameraConfig
	active  []models.CameraConfig
	history []models.DetectionEvent
	err     error
}

func (s *fakeStore) LoadCamera(_ context.Context, id string) (models.CameraConfig, error) {
	c, ok := s.cameras[id]
	if !ok {
		return models.CameraConfig{}, store.ErrCameraNotFound
	}
	return c, nil
}

func (s *fakeStore) LoadActiveCameras(context.Context) ([]models.CameraConfig, error) {
	return s.active, s.err
}

func (s *fakeStore) RecentDetections(_ context.Context, _ string, limit int) ([]models.DetectionEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.history) {
		return s.history[:limit], nil
	}
	return s.history, nil
}

func cameraRouter(h *CameraHandler) *gin.Engine {
	r := gin.New()
	r.GET("/cameras", h.ListCameras)
	r.POST("/cameras", h.StartCamera)
	r.POST("/cameras/start-all", h.StartAll)
	r.POST("/cameras/stop-all", h.StopAll)
	r.GET("/cameras/:camera_id", h.GetCamera)
	r.POST("/cameras/:camera_id/start", h.StartStoredCamera)
	r.POST("/cameras/:camera_id/stop", h.StopCamera)
	r.GET("/cameras/:camera_id/frame", h.GetLatestFrame)
	r.GET("/cameras/:camera_id/detections", h.GetDetections)
	r.GET("/cameras/:camera_id/events", h.GetDetectionHistory)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStartCameraThenStatusAndStop(t *testing.T) {
	cams := newFakeCameras()
	r := cameraRouter(NewCameraHandler(cams, &fakeStore{}, nil))

	w := do(t, r, http.MethodPost, "/cameras", models.CameraConfig{ID: "cam1", Name: "Front", Address: "rtsp://host/stream"})
	if w.Code != http.StatusOK {
		t.Fatalf("start: status %d body %s", w.Code, w.Body.String())
	}
	var status models.CameraStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.CameraID != "cam1" || status.State != "running" {
		t.Fatalf("unexpected status %+v", status)
	}

	if w := do(t, r, http.MethodGet, "/cameras/cam1", nil); w.Code != http.StatusOK {
		t.Fatalf("get: status %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/cameras/cam1/stop", nil); w.Code != http.StatusOK {
		t.Fatalf("stop: status %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/cameras/cam1/stop", nil); w.Code != http.StatusNotFound {
		t.Fatalf("second stop: status %d, want 404", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/cameras/cam1", nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after stop: status %d, want 404", w.Code)
	}
}

func TestStartCameraRejectsMissingFields(t *testing.T) {
	r := cameraRouter(NewCameraHandler(newFakeCameras(), &fakeStore{}, nil))

	w := do(t, r, http.MethodPost, "/cameras", map[string]string{"name": "no id"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", w.Code)
	}
}

func TestStartErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", fmt.Errorf("%w: empty address", camera.ErrInvalidCamera), http.StatusBadRequest},
		{"already running", &camera.AlreadyRunningError{CameraID: "cam1"}, http.StatusConflict},
		{"connection", fmt.Errorf("start: %w", &streamcapture.ConnectionError{Address: "rtsp://x", Err: errors.New("refused")}), http.StatusBadGateway},
		{"no model", detection.ErrNoModel, http.StatusUnprocessableEntity},
		{"model load", &detection.ModelLoadError{Err: errors.New("corrupt")}, http.StatusUnprocessableEntity},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cams := newFakeCameras()
			cams.startErr["cam1"] = tt.err
			r := cameraRouter(NewCameraHandler(cams, &fakeStore{}, nil))

			w := do(t, r, http.MethodPost, "/cameras", models.CameraConfig{ID: "cam1", Address: "rtsp://x"})
			if w.Code != tt.want {
				t.Fatalf("status %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestStartStoredCamera(t *testing.T) {
	cams := newFakeCameras()
	st := &fakeStore{cameras: map[string]models.CameraConfig{
		"cam2": {ID: "cam2", Address: "rtsp://host/2"},
	}}
	r := cameraRouter(NewCameraHandler(cams, st, nil))

	if w := do(t, r, http.MethodPost, "/cameras/cam2/start", nil); w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodPost, "/cameras/missing/start", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing: status %d, want 404", w.Code)
	}
}

func TestStartAllAndStopAllReportCounts(t *testing.T) {
	cams := newFakeCameras()
	cams.startErr["bad"] = &streamcapture.ConnectionError{Address: "rtsp://bad", Err: errors.New("timeout")}
	st := &fakeStore{active: []models.CameraConfig{
		{ID: "a", Address: "rtsp://a"},
		{ID: "bad", Address: "rtsp://bad"},
		{ID: "c", Address: "rtsp://c"},
	}}
	r := cameraRouter(NewCameraHandler(cams, st, nil))

	w := do(t, r, http.MethodPost, "/cameras/start-all", nil)
	var got BatchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Requested != 3 || got.Succeeded != 2 {
		t.Fatalf("start-all = %+v, want 3 requested 2 succeeded", got)
	}

	w = do(t, r, http.MethodGet, "/cameras", nil)
	var list struct {
		Cameras []models.CameraStatus `json:"cameras"`
		Count   int                   `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 2 || list.Cameras[0].CameraID != "a" {
		t.Fatalf("unexpected list %+v", list)
	}

	w = do(t, r, http.MethodPost, "/cameras/stop-all", nil)
	got = BatchResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Succeeded != 2 {
		t.Fatalf("stop-all stopped %d, want 2", got.Succeeded)
	}
}

func TestLatestFrameUnavailable(t *testing.T) {
	cams := newFakeCameras()
	cams.running["cam1"] = models.CameraConfig{ID: "cam1"}
	r := cameraRouter(NewCameraHandler(cams, &fakeStore{}, nil))

	if w := do(t, r, http.MethodGet, "/cameras/cam1/frame", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503 before first frame", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/cameras/other/frame", nil); w.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", w.Code)
	}
}

func TestDetectionsEndpoints(t *testing.T) {
	cams := newFakeCameras()
	cams.running["cam1"] = models.CameraConfig{ID: "cam1"}
	cams.latest["cam1"] = []models.DetectionEvent{{CameraID: "cam1", Class: "person", Confidence: 0.9}}
	st := &fakeStore{history: []models.DetectionEvent{
		{ID: 3, CameraID: "cam1", Class: "car"},
		{ID: 2, CameraID: "cam1", Class: "person"},
		{ID: 1, CameraID: "cam1", Class: "person"},
	}}
	r := cameraRouter(NewCameraHandler(cams, st, nil))

	type detectionsBody struct {
		Detections []models.DetectionEvent `json:"detections"`
		Count      int                     `json:"count"`
	}

	w := do(t, r, http.MethodGet, "/cameras/cam1/detections", nil)
	var latest detectionsBody
	if err := json.Unmarshal(w.Body.Bytes(), &latest); err != nil {
		t.Fatal(err)
	}
	if latest.Count != 1 || latest.Detections[0].Class != "person" {
		t.Fatalf("unexpected latest detections %+v", latest)
	}

	if w := do(t, r, http.MethodGet, "/cameras/nope/detections", nil); w.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", w.Code)
	}

	w = do(t, r, http.MethodGet, "/cameras/cam1/events?limit=2", nil)
	var history detectionsBody
	if err := json.Unmarshal(w.Body.Bytes(), &history); err != nil {
		t.Fatal(err)
	}
	if history.Count != 2 || history.Detections[0].ID != 3 {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestHealthReportsCameraCounts(t *testing.T) {
	cams := newFakeCameras()
	cams.running["cam1"] = models.CameraConfig{ID: "cam1"}
	h := NewHealthHandler("worker-9", "2.0.0", cams)

	r := gin.New()
	r.GET("/health", h.HealthCheck)
	r.GET("/", h.WorkerInfo)

	w := do(t, r, http.MethodGet, "/health", nil)
	var health HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.WorkerID != "worker-9" || health.Cameras != 1 || health.RunningCameras != 1 {
		t.Fatalf("unexpected health %+v", health)
	}

	w = do(t, r, http.MethodGet, "/", nil)
	var info WorkerInfoResponse
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.Version != "2.0.0" {
		t.Fatalf("version %q", info.Version)
	}
}

type fakeRecordings struct {
	rows []store.Recording
}

func (f *fakeRecordings) ListRecordings(_ context.Context, cameraID string, limit int) ([]store.Recording, error) {
	var out []store.Recording
	for _, r := range f.rows {
		if r.CameraID == cameraID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecordings) GetRecording(_ context.Context, id uint) (*store.Recording, error) {
	for i := range f.rows {
		if f.rows[i].ID == id {
			return &f.rows[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func TestRecordingsListAndServe(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "recordings", "videos", "cam1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "20240501_120000.mp4")
	if err := os.WriteFile(path, []byte("fake-mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	end := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)

	recs := &fakeRecordings{rows: []store.Recording{
		{ID: 1, CameraID: "cam1", FilePath: path, StartTime: end.Add(-time.Hour), EndTime: &end, FileSize: 8},
		{ID: 2, CameraID: "cam1", FilePath: "/etc/passwd", StartTime: end},
	}}
	h := NewRecordingHandler(recs, root)

	r := gin.New()
	r.GET("/cameras/:camera_id/recordings", h.ListRecordings)
	r.GET("/recordings/:id/file", h.StreamRecording)

	w := do(t, r, http.MethodGet, "/cameras/cam1/recordings", nil)
	var list RecordingsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 2 || list.Recordings[0].FileName != "20240501_120000.mp4" || list.Recordings[0].Open {
		t.Fatalf("unexpected list %+v", list)
	}
	if !list.Recordings[1].Open {
		t.Fatal("segment without end time should be open")
	}

	w = do(t, r, http.MethodGet, "/recordings/1/file", nil)
	if w.Code != http.StatusOK || w.Body.String() != "fake-mp4" {
		t.Fatalf("serve: status %d body %q", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Fatalf("content type %q", ct)
	}

	if w := do(t, r, http.MethodGet, "/recordings/2/file", nil); w.Code != http.StatusNotFound {
		t.Fatalf("outside storage: status %d, want 404", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/recordings/9/file", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown: status %d, want 404", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/recordings/abc/file", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status %d, want 400", w.Code)
	}
}
