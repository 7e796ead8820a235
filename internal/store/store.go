package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"nvr-worker-go/internal/logging"
	"nvr-worker-go/internal/models"
)

// RecordingLookback is how far back a detection without a video path looks
// for the recording it belongs to
const RecordingLookback = time.Minute

var ErrCameraNotFound = errors.New("camera not found")

// Store persists camera configuration, detections and recordings in SQLite
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Open connects to the SQLite file and runs migrations
func Open(file string, logger zerolog.Logger) (*Store, error) {
	if file != "" && file != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(file), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	logger.Info().Str("file", file).Msg("Connecting to database")

	db, err := gorm.Open(sqlite.Open(file), &gorm.Config{
		Logger: logging.NewGormLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	// SQLite serialises writers; one connection avoids "database is locked"
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&AIModel{}, &Camera{}, &Region{}, &Recording{}, &Detection{}); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	logger.Info().Msg("Database migrations completed successfully")
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadActiveCameras returns the resolved config of every active camera
func (s *Store) LoadActiveCameras(ctx context.Context) ([]models.CameraConfig, error) {
	var cameras []Camera
	err := s.cameraQuery(ctx).Where("is_active = ?", true).Order("id").Find(&cameras).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load cameras: %w", err)
	}

	out := make([]models.CameraConfig, 0, len(cameras))
	for i := range cameras {
		cfg, err := toCameraConfig(&cameras[i])
		if err != nil {
			s.logger.Warn().Err(err).Str("camera_id", cameras[i].ID).Msg("Skipping camera with invalid configuration")
			continue
		}
		out = append(out, cfg)
	}
	return out, nil
}

// LoadCamera returns one camera's resolved config
func (s *Store) LoadCamera(ctx context.Context, cameraID string) (models.CameraConfig, error) {
	var cam Camera
	err := s.cameraQuery(ctx).Where("id = ?", cameraID).First(&cam).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CameraConfig{}, fmt.Errorf("%w: %s", ErrCameraNotFound, cameraID)
	}
	if err != nil {
		return models.CameraConfig{}, fmt.Errorf("failed to load camera %s: %w", cameraID, err)
	}
	return toCameraConfig(&cam)
}

func (s *Store) cameraQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Model").
		Preload("Regions", func(db *gorm.DB) *gorm.DB { return db.Order("position, id") })
}

// SaveCamera creates or replaces a camera together with its regions
func (s *Store) SaveCamera(ctx context.Context, cfg models.CameraConfig, active bool, modelID *uint) error {
	cam := Camera{
		ID:                  cfg.ID,
		Name:                cfg.DisplayName(),
		Address:             cfg.Address,
		Username:            cfg.Username,
		Password:            cfg.Password,
		IsActive:            active,
		RecordingEnabled:    cfg.RecordingEnabled,
		DetectionEnabled:    cfg.DetectionEnabled,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		ModelID:             modelID,
	}

	regions := make([]Region, 0, len(cfg.Regions))
	for i, r := range cfg.Regions {
		row, err := fromRegion(cfg.ID, i, r)
		if err != nil {
			return err
		}
		regions = append(regions, row)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&cam).Error; err != nil {
			return err
		}
		if err := tx.Where("camera_id = ?", cfg.ID).Delete(&Region{}).Error; err != nil {
			return err
		}
		if len(regions) > 0 {
			return tx.Create(&regions).Error
		}
		return nil
	})
}

// SaveModel registers a model, clearing any other default when it is the default
func (s *Store) SaveModel(ctx context.Context, m *AIModel) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if m.IsDefault {
			if err := tx.Model(&AIModel{}).Where("is_default = ?", true).Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Save(m).Error
	})
}

// DefaultModel returns the model flagged as default, or nil
func (s *Store) DefaultModel(ctx context.Context) *models.ModelRef {
	var m AIModel
	err := s.db.WithContext(ctx).Where("is_default = ?", true).Order("id").First(&m).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn().Err(err).Msg("Failed to look up default model")
		}
		return nil
	}
	ref := toModelRef(&m)
	return &ref
}

// SaveDetections persists a batch and fills in the stored IDs. Events
// without a video path are linked to the latest recording that started
// within RecordingLookback before them, unless the camera has recording
// disabled.
func (s *Store) SaveDetections(ctx context.Context, cameraID string, events []models.DetectionEvent) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]Detection, len(events))
	var recording *Recording
	var lookedUp bool
	for i, e := range events {
		bbox, err := json.Marshal(e.BBox)
		if err != nil {
			return err
		}
		rows[i] = Detection{
			CameraID:   cameraID,
			RegionID:   e.RegionID,
			Timestamp:  e.Timestamp.UTC(),
			ClassName:  e.Class,
			Confidence: e.Confidence,
			BBox:       datatypes.JSON(bbox),
			ImagePath:  e.ImagePath,
			VideoPath:  e.VideoPath,
			Notified:   e.Notified,
		}

		if e.VideoPath != nil && *e.VideoPath != "" {
			if rec, err := s.recordingByPath(ctx, *e.VideoPath); err == nil {
				rows[i].RecordingID = &rec.ID
			}
			continue
		}

		if !lookedUp {
			if s.cameraRecords(ctx, cameraID) {
				recording, _ = s.RecordingAt(ctx, cameraID, e.Timestamp)
			}
			lookedUp = true
		}
		if recording != nil {
			path := recording.FilePath
			rows[i].RecordingID = &recording.ID
			rows[i].VideoPath = &path
		}
	}

	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to save detections: %w", err)
	}
	for i := range rows {
		events[i].ID = rows[i].ID
		events[i].VideoPath = rows[i].VideoPath
	}
	return nil
}

// cameraRecords reports whether the stored camera has recording enabled.
// Cameras that were never stored are assumed to record.
func (s *Store) cameraRecords(ctx context.Context, cameraID string) bool {
	var cam Camera
	err := s.db.WithContext(ctx).Select("recording_enabled").Where("id = ?", cameraID).Take(&cam).Error
	if err != nil {
		return true
	}
	return cam.RecordingEnabled
}

// RecordingAt finds the latest recording that started within RecordingLookback before ts
func (s *Store) RecordingAt(ctx context.Context, cameraID string, ts time.Time) (*Recording, error) {
	// Times are stored in UTC so the range compares consistently
	ts = ts.UTC()
	var rec Recording
	err := s.db.WithContext(ctx).
		Where("camera_id = ? AND start_time >= ? AND start_time <= ?", cameraID, ts.Add(-RecordingLookback), ts).
		Order("start_time DESC").
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) recordingByPath(ctx context.Context, path string) (*Recording, error) {
	var rec Recording
	if err := s.db.WithContext(ctx).Where("file_path = ?", path).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkNotified sets the notified flag on the given detections
func (s *Store) MarkNotified(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&Detection{}).Where("id IN ?", ids).Update("notified", true).Error
}

// RecentDetections returns the newest detections of a camera
func (s *Store) RecentDetections(ctx context.Context, cameraID string, limit int) ([]models.DetectionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []Detection
	err := s.db.WithContext(ctx).
		Where("camera_id = ?", cameraID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.DetectionEvent, 0, len(rows))
	for i := range rows {
		out = append(out, toDetectionEvent(&rows[i]))
	}
	return out, nil
}

// ListRecordings returns the newest recordings of a camera
func (s *Store) ListRecordings(ctx context.Context, cameraID string, limit int) ([]Recording, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []Recording
	err := s.db.WithContext(ctx).
		Where("camera_id = ?", cameraID).
		Order("start_time DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// GetRecording returns a recording by id
func (s *Store) GetRecording(ctx context.Context, id uint) (*Recording, error) {
	var rec Recording
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// SegmentOpened stores a row for a new segment
func (s *Store) SegmentOpened(seg models.RecordingSegment) {
	rec := Recording{
		CameraID:  seg.CameraID,
		FilePath:  seg.Path,
		StartTime: seg.StartTime.UTC(),
		FPS:       seg.FPS,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		s.logger.Error().Err(err).Str("camera_id", seg.CameraID).Str("segment", seg.Path).Msg("Failed to save recording")
	}
}

// SegmentClosed completes the segment's row
func (s *Store) SegmentClosed(seg models.RecordingSegment) {
	updates := map[string]interface{}{
		"duration":    seg.Duration().Seconds(),
		"frame_count": seg.FrameCount,
	}
	if seg.EndTime != nil {
		updates["end_time"] = seg.EndTime.UTC()
	}
	if info, err := os.Stat(seg.Path); err == nil {
		updates["file_size"] = info.Size()
	}

	err := s.db.Model(&Recording{}).Where("file_path = ?", seg.Path).Updates(updates).Error
	if err != nil {
		s.logger.Error().Err(err).Str("camera_id", seg.CameraID).Str("segment", seg.Path).Msg("Failed to update recording")
	}
}

func toModelRef(m *AIModel) models.ModelRef {
	return models.ModelRef{
		ID:         strconv.FormatUint(uint64(m.ID), 10),
		Name:       m.Name,
		Kind:       models.ModelKind(m.Kind),
		Path:       m.FilePath,
		ConfigPath: m.ConfigPath,
		LabelsPath: m.LabelsPath,
		Endpoint:   m.Endpoint,
	}
}

func toCameraConfig(c *Camera) (models.CameraConfig, error) {
	cfg := models.CameraConfig{
		ID:                  c.ID,
		Name:                c.Name,
		Address:             c.Address,
		Username:            c.Username,
		Password:            c.Password,
		RecordingEnabled:    c.RecordingEnabled,
		DetectionEnabled:    c.DetectionEnabled,
		ConfidenceThreshold: c.ConfidenceThreshold,
	}
	if c.Model != nil {
		ref := toModelRef(c.Model)
		cfg.Model = &ref
	}
	for i := range c.Regions {
		region, err := toRegion(&c.Regions[i])
		if err != nil {
			return models.CameraConfig{}, err
		}
		cfg.Regions = append(cfg.Regions, region)
	}
	return cfg, nil
}

func toRegion(r *Region) (models.DetectionRegion, error) {
	region := models.DetectionRegion{
		ID:     strconv.FormatUint(uint64(r.ID), 10),
		Name:   r.Name,
		Active: r.IsActive,
	}

	var coords [][]float64
	if len(r.Coordinates) > 0 {
		if err := json.Unmarshal(r.Coordinates, &coords); err != nil {
			return region, fmt.Errorf("region %d: invalid coordinates: %w", r.ID, err)
		}
	}
	for _, c := range coords {
		if len(c) < 2 {
			return region, fmt.Errorf("region %d: point needs x and y", r.ID)
		}
		region.Polygon = append(region.Polygon, models.Point{X: c[0], Y: c[1]})
	}

	if len(r.DetectionClasses) > 0 {
		if err := json.Unmarshal(r.DetectionClasses, &region.ClassAllowList); err != nil {
			return region, fmt.Errorf("region %d: invalid detection classes: %w", r.ID, err)
		}
	}
	return region, nil
}

func fromRegion(cameraID string, position int, r models.DetectionRegion) (Region, error) {
	coords := make([][]float64, 0, len(r.Polygon))
	for _, p := range r.Polygon {
		coords = append(coords, []float64{p.X, p.Y})
	}
	coordJSON, err := json.Marshal(coords)
	if err != nil {
		return Region{}, err
	}

	row := Region{
		CameraID:    cameraID,
		Name:        r.Name,
		Position:    position,
		Coordinates: datatypes.JSON(coordJSON),
		IsActive:    r.Active,
	}
	if row.Name == "" {
		row.Name = fmt.Sprintf("region-%d", position+1)
	}
	if len(r.ClassAllowList) > 0 {
		classes, err := json.Marshal(r.ClassAllowList)
		if err != nil {
			return Region{}, err
		}
		row.DetectionClasses = datatypes.JSON(classes)
	}
	return row, nil
}

func toDetectionEvent(d *Detection) models.DetectionEvent {
	e := models.DetectionEvent{
		ID:         d.ID,
		CameraID:   d.CameraID,
		RegionID:   d.RegionID,
		Timestamp:  d.Timestamp,
		Class:      d.ClassName,
		Confidence: d.Confidence,
		ImagePath:  d.ImagePath,
		VideoPath:  d.VideoPath,
		Notified:   d.Notified,
	}
	_ = json.Unmarshal(d.BBox, &e.BBox)
	return e
}
