package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"nvr-worker-go/internal/config"
	"nvr-worker-go/internal/integrations/mqtt"
	"nvr-worker-go/internal/logging"
	"nvr-worker-go/internal/models"
	"nvr-worker-go/internal/services/camera"
	"nvr-worker-go/internal/services/detection"
	"nvr-worker-go/internal/services/messaging"
	"nvr-worker-go/internal/services/publisher/mjpeg"
	"nvr-worker-go/internal/services/reporting"
	"nvr-worker-go/internal/storage"
	"nvr-worker-go/internal/store"
)

// ServiceContainer holds all services
type ServiceContainer struct {
	Config        *config.Config
	Store         *store.Store
	Messaging     *messaging.Service
	MQTT          *mqtt.Client
	Snapshots     *storage.MinioStore
	Reporter      *reporting.Reporter
	CameraManager *camera.Manager
	MJPEG         *mjpeg.Publisher
}

// NewServiceContainer creates a new service container. The database is
// required; NATS, MQTT and MinIO are optional and skipped when they fail.
func NewServiceContainer(cfg *config.Config) (*ServiceContainer, error) {
	db, err := store.Open(cfg.DatabaseFile, logging.NewServiceLogger(cfg, "store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sc := &ServiceContainer{Config: cfg, Store: db}

	var notifiers []reporting.Notifier
	observers := []models.SegmentObserver{db}

	if cfg.NatsEnabled {
		if svc, err := messaging.NewService(cfg); err != nil {
			log.Warn().Err(err).Str("url", cfg.NatsURL).Msg("NATS unavailable, continuing without it")
		} else {
			sc.Messaging = svc
			notifiers = append(notifiers, messaging.NewDetectionNotifier(svc, cfg.WorkerID))
			observers = append(observers, messaging.NewSegmentPublisher(svc, logging.NewServiceLogger(cfg, "segments")))
		}
	}

	if cfg.MQTTEnabled {
		if cli, err := mqtt.NewClient(mqtt.ConfigFrom(cfg)); err != nil {
			log.Warn().Err(err).Str("host", cfg.MQTTHost).Msg("MQTT unavailable, continuing without it")
		} else {
			sc.MQTT = cli
			notifiers = append(notifiers, mqtt.NewNotifier(cli))
		}
	}

	snapshots := &detection.JPEGSnapshotWriter{Quality: cfg.SnapshotQuality}
	if cfg.MinioEnabled {
		if ms, err := storage.NewMinioStore(cfg); err != nil {
			log.Warn().Err(err).Str("endpoint", cfg.MinioEndpoint).Msg("MinIO unavailable, snapshots stay local only")
		} else {
			sc.Snapshots = ms
			snapshots.Mirror = ms
		}
	}

	sc.Reporter = reporting.NewReporter(db, notifiers, cfg.AITimeout, logging.NewServiceLogger(cfg, "reporting"))

	deps := camera.Deps{
		Loader: &detection.KindLoader{
			DNN:  detection.NewDNNLoader(cfg.DNNInputSize),
			GRPC: detection.NewGRPCLoader(cfg.AITimeout),
		},
		Snapshots:        snapshots,
		Sink:             sc.Reporter,
		SegmentObservers: observers,
	}

	configured := camera.ConfiguredDefaultModel(cfg)
	defaultModel := func(ctx context.Context) *models.ModelRef {
		if ref := db.DefaultModel(ctx); ref != nil {
			return ref
		}
		return configured(ctx)
	}

	sc.CameraManager = camera.NewManager(cfg, deps, defaultModel, logging.NewServiceLogger(cfg, "camera_manager"))
	sc.MJPEG = mjpeg.NewPublisher(cfg.MJPEGQuality, cfg.MJPEGInterval)

	log.Info().
		Bool("nats", sc.Messaging != nil).
		Bool("mqtt", sc.MQTT != nil).
		Bool("minio", sc.Snapshots != nil).
		Int("notifiers", len(notifiers)).
		Msg("Service container initialized")

	return sc, nil
}

// Autostart starts every camera marked active in the database
func (sc *ServiceContainer) Autostart(ctx context.Context) (int, error) {
	cameras, err := sc.Store.LoadActiveCameras(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active cameras: %w", err)
	}
	if len(cameras) == 0 {
		return 0, nil
	}
	started := sc.CameraManager.StartAll(ctx, cameras)
	log.Info().Int("active", len(cameras)).Int("started", started).Msg("Autostart complete")
	return started, nil
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	var errs []error

	if sc.CameraManager != nil {
		if err := sc.CameraManager.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if sc.MJPEG != nil {
		sc.MJPEG.Shutdown()
	}

	if sc.Messaging != nil {
		if err := sc.Messaging.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("nats: %w", err))
		}
	}

	if sc.MQTT != nil {
		sc.MQTT.Close()
	}

	if sc.Store != nil {
		if err := sc.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}

	return errors.Join(errs...)
}
