package logging

import (
	"time"

	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"
)

// NewGormLogger routes SQL logging through zerolog
func NewGormLogger(base zerolog.Logger) gormlogger.Interface {
	return gormlogger.New(&base, gormlogger.Config{
		SlowThreshold:             2 * time.Second,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
