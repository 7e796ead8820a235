package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"nvr-worker-go/internal/models"
)

// Persister stores detection batches and tracks which were notified
type Persister interface {
	SaveDetections(ctx context.Context, cameraID string, events []models.DetectionEvent) error
	MarkNotified(ctx context.Context, ids []uint) error
}

// Notifier delivers a detection batch to one channel (MQTT, NATS, ...)
type Notifier interface {
	Name() string
	NotifyDetections(ctx context.Context, cameraID string, events []models.DetectionEvent) error
}

// Reporter is the DetectionSink: persist, notify, then flag the rows as notified
type Reporter struct {
	persister Persister
	notifiers []Notifier
	timeout   time.Duration
	logger    zerolog.Logger
}

func NewReporter(persister Persister, notifiers []Notifier, timeout time.Duration, logger zerolog.Logger) *Reporter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Reporter{
		persister: persister,
		notifiers: notifiers,
		timeout:   timeout,
		logger:    logger,
	}
}

func (r *Reporter) ReportDetections(ctx context.Context, cameraID string, events []models.DetectionEvent) error {
	if len(events) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.persister != nil {
		if err := r.persister.SaveDetections(ctx, cameraID, events); err != nil {
			return fmt.Errorf("failed to persist detections for camera %s: %w", cameraID, err)
		}
	}

	if len(r.notifiers) == 0 {
		return nil
	}

	var errs []error
	delivered := 0
	for _, n := range r.notifiers {
		if err := n.NotifyDetections(ctx, cameraID, events); err != nil {
			r.logger.Warn().Err(err).Str("camera_id", cameraID).Str("notifier", n.Name()).Msg("Notification failed")
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		delivered++
	}

	if delivered > 0 && r.persister != nil {
		ids := make([]uint, 0, len(events))
		for _, e := range events {
			if e.ID != 0 {
				ids = append(ids, e.ID)
			}
		}
		if err := r.persister.MarkNotified(ctx, ids); err != nil {
			errs = append(errs, fmt.Errorf("failed to mark detections notified: %w", err))
		} else {
			for i := range events {
				events[i].Notified = true
			}
		}
	}

	r.logger.Debug().
		Str("camera_id", cameraID).
		Int("events", len(events)).
		Int("notified", delivered).
		Msg("Detections reported")

	return errors.Join(errs...)
}
