package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"nvr-worker-go/internal/api/handlers"
	"nvr-worker-go/internal/api/middleware"
	"nvr-worker-go/internal/config"
	"nvr-worker-go/internal/services"
)

type Server struct {
	config    *config.Config
	router    *gin.Engine
	server    *http.Server
	container *services.ServiceContainer

	healthHandler    *handlers.HealthHandler
	cameraHandler    *handlers.CameraHandler
	recordingHandler *handlers.RecordingHandler
	systemHandler    *handlers.SystemHandler
}

func NewServer(cfg *config.Config, container *services.ServiceContainer) (*Server, error) {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:           cfg,
		router:           gin.New(),
		container:        container,
		healthHandler:    handlers.NewHealthHandler(cfg.WorkerID, cfg.Version, container.CameraManager),
		cameraHandler:    handlers.NewCameraHandler(container.CameraManager, container.Store, container.MJPEG),
		recordingHandler: handlers.NewRecordingHandler(container.Store, cfg.StorageRoot),
		systemHandler:    handlers.NewSystemHandler(cfg.WorkerID, cfg.StorageRoot),
	}

	if err := s.Setup(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) Setup() error {
	s.setupMiddleware()

	s.setupRoutes()

	s.setupSwagger()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}

	return nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.CORS())
}

func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Str("worker_id", s.config.WorkerID).Msg("Starting NVR worker API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server first, then every service behind it
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping NVR worker API")
	var errs []error
	if err := s.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if s.container != nil {
		if err := s.container.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) GetServer() *http.Server {
	return s.server
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
