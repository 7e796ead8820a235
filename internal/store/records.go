package store

import (
	"time"

	"gorm.io/datatypes"
)

// AIModel is a registered inference model
type AIModel struct {
	ID          uint   `gorm:"primarykey"`
	Name        string `gorm:"not null"`
	Kind        string
	FilePath    string
	ConfigPath  string
	LabelsPath  string
	Endpoint    string
	Description string
	IsDefault   bool `gorm:"index"`
	IsCustom    bool
	CreatedAt   time.Time
}

// Camera is a configured camera. Regions are kept in configured order.
type Camera struct {
	ID                  string `gorm:"primaryKey"`
	Name                string `gorm:"not null"`
	Address             string `gorm:"not null"`
	Username            string
	Password            string
	IsActive            bool `gorm:"index"`
	RecordingEnabled    bool
	DetectionEnabled    bool
	ConfidenceThreshold float64
	ModelID             *uint
	Model               *AIModel `gorm:"foreignKey:ModelID"`
	Regions             []Region `gorm:"foreignKey:CameraID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Region is a stored ROI. Coordinates hold [[x,y],...]; DetectionClasses a list of labels.
type Region struct {
	ID               uint   `gorm:"primarykey"`
	CameraID         string `gorm:"index;not null"`
	Name             string `gorm:"not null"`
	Position         int
	Coordinates      datatypes.JSON `gorm:"type:json"`
	DetectionClasses datatypes.JSON `gorm:"type:json"`
	IsActive         bool
}

// Detection is one persisted detection event
type Detection struct {
	ID          uint      `gorm:"primarykey"`
	CameraID    string    `gorm:"index;not null"`
	RecordingID *uint     `gorm:"index"`
	RegionID    *string   `gorm:"index"`
	Timestamp   time.Time `gorm:"index;not null"`
	ClassName   string    `gorm:"index;not null"`
	Confidence  float64
	BBox        datatypes.JSON `gorm:"type:json"`
	ImagePath   string
	VideoPath   *string
	Notified    bool `gorm:"index"`
	CreatedAt   time.Time
}

// Recording is one video segment on disk
type Recording struct {
	ID         uint      `gorm:"primarykey"`
	CameraID   string    `gorm:"index;not null"`
	FilePath   string    `gorm:"uniqueIndex;not null"`
	StartTime  time.Time `gorm:"index;not null"`
	EndTime    *time.Time
	Duration   float64
	FileSize   int64
	FrameCount int64
	FPS        float64
	CreatedAt  time.Time
}
