package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Keys set on the gin context by the API middleware
const (
	RequestIDKey = "request_id"
	StartTimeKey = "start_time"
)

// withRequest decorates an event with the request id, elapsed time and the
// camera the route addresses, when present
func withRequest(c *gin.Context, e *zerolog.Event) *zerolog.Event {
	if c == nil {
		return e
	}
	if s := c.GetString(RequestIDKey); s != "" {
		e.Str("request_id", s)
	}
	if v, ok := c.Get(StartTimeKey); ok {
		if t, ok2 := v.(time.Time); ok2 {
			e.Dur("elapsed", time.Since(t))
		}
	}
	if id := c.Param("camera_id"); id != "" {
		e.Str("camera_id", id)
	}
	return e
}

func Info(c *gin.Context) *zerolog.Event  { return withRequest(c, log.Info()) }
func Debug(c *gin.Context) *zerolog.Event { return withRequest(c, log.Debug()) }
func Warn(c *gin.Context) *zerolog.Event  { return withRequest(c, log.Warn()) }
func Error(c *gin.Context) *zerolog.Event { return withRequest(c, log.Error()) }
