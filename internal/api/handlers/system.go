package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"nvr-worker-go/internal/logging"
)

// SystemHandler handles system-related endpoints
type SystemHandler struct {
	WorkerID    string
	StorageRoot string
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(workerID, storageRoot string) *SystemHandler {
	return &SystemHandler{
		WorkerID:    workerID,
		StorageRoot: storageRoot,
	}
}

// @Summary Get system stats
// @Description CPU, memory and recording disk usage of the worker host
// @Tags system
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /system/stats [get]
func (h *SystemHandler) GetStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := gin.H{
		"worker_id":       h.WorkerID,
		"cpu_cores":       runtime.NumCPU(),
		"goroutines":      runtime.NumGoroutine(),
		"go_version":      runtime.Version(),
		"process_heap_mb": m.Alloc / 1024 / 1024,
	}

	if percent, err := cpu.PercentWithContext(c.Request.Context(), 200*time.Millisecond, false); err == nil && len(percent) > 0 {
		stats["cpu_percent"] = percent[0]
	} else if err != nil {
		logging.Warn(c).Err(err).Msg("Failed to read CPU usage")
	}

	if vm, err := mem.VirtualMemoryWithContext(c.Request.Context()); err == nil {
		stats["memory_total_mb"] = vm.Total / 1024 / 1024
		stats["memory_used_mb"] = vm.Used / 1024 / 1024
		stats["memory_percent"] = vm.UsedPercent
	} else {
		logging.Warn(c).Err(err).Msg("Failed to read memory usage")
	}

	if h.StorageRoot != "" {
		if du, err := disk.UsageWithContext(c.Request.Context(), h.StorageRoot); err == nil {
			stats["disk_total_gb"] = float64(du.Total) / (1 << 30)
			stats["disk_free_gb"] = float64(du.Free) / (1 << 30)
			stats["disk_percent"] = du.UsedPercent
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"stats":     stats,
		"timestamp": time.Now().Unix(),
	})
}
