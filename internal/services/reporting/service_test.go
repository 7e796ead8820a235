package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"nvr-worker-go/internal/models"
)

type memPersister struct {
	saved    []models.DetectionEvent
	notified []uint
	saveErr  error
}

func (p *memPersister) SaveDetections(ctx context.Context, cameraID string, events []models.DetectionEvent) error {
	if p.saveErr != nil {
		return p.saveErr
	}
	for i := range events {
		events[i].ID = uint(len(p.saved) + 1)
		p.saved = append(p.saved, events[i])
	}
	return nil
}

func (p *memPersister) MarkNotified(ctx context.Context, ids []uint) error {
	p.notified = append(p.notified, ids...)
	return nil
}

type stubNotifier struct {
	name  string
	err   error
	calls int
}

func (n *stubNotifier) Name() string { return n.name }

func (n *stubNotifier) NotifyDetections(ctx context.Context, cameraID string, events []models.DetectionEvent) error {
	n.calls++
	return n.err
}

func batch() []models.DetectionEvent {
	ts := time.Now()
	return []models.DetectionEvent{
		{CameraID: "cam1", Class: "person", Confidence: 0.9, Timestamp: ts},
		{CameraID: "cam1", Class: "car", Confidence: 0.8, Timestamp: ts},
	}
}

func TestReporterPersistsThenMarksNotified(t *testing.T) {
	p := &memPersister{}
	failing := &stubNotifier{name: "mqtt", err: errors.New("broker down")}
	ok := &stubNotifier{name: "nats"}
	r := NewReporter(p, []Notifier{failing, ok}, time.Second, zerolog.Nop())

	events := batch()
	err := r.ReportDetections(context.Background(), "cam1", events)
	if err == nil {
		t.Error("expected the failing notifier to be reported")
	}
	if len(p.saved) != 2 {
		t.Fatalf("saved %d events", len(p.saved))
	}
	if len(p.notified) != 2 {
		t.Errorf("marked %d rows notified, want 2", len(p.notified))
	}
	if !events[0].Notified {
		t.Error("events not flagged as notified")
	}
	if failing.calls != 1 || ok.calls != 1 {
		t.Errorf("notifier calls = %d/%d", failing.calls, ok.calls)
	}
}

func TestReporterNoDeliveryLeavesRowsUnnotified(t *testing.T) {
	p := &memPersister{}
	r := NewReporter(p, []Notifier{&stubNotifier{name: "mqtt", err: errors.New("down")}}, time.Second, zerolog.Nop())

	_ = r.ReportDetections(context.Background(), "cam1", batch())
	if len(p.notified) != 0 {
		t.Errorf("rows marked notified without delivery: %v", p.notified)
	}
}

func TestReporterPersistFailureSkipsNotify(t *testing.T) {
	p := &memPersister{saveErr: errors.New("disk full")}
	n := &stubNotifier{name: "nats"}
	r := NewReporter(p, []Notifier{n}, time.Second, zerolog.Nop())

	if err := r.ReportDetections(context.Background(), "cam1", batch()); err == nil {
		t.Fatal("expected persist error")
	}
	if n.calls != 0 {
		t.Error("notified after persistence failed")
	}
}

func TestReporterEmptyBatch(t *testing.T) {
	p := &memPersister{}
	r := NewReporter(p, nil, 0, zerolog.Nop())
	if err := r.ReportDetections(context.Background(), "cam1", nil); err != nil || len(p.saved) != 0 {
		t.Errorf("empty batch: err=%v saved=%d", err, len(p.saved))
	}
}
