package utils

import (
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	log "github.com/sirupsen/logrus"
)

var (
	cpuUsageMutex  sync.Mutex
	lastCPUSample  time.Time
	lastCPUUsage   float64
	cpuSampleEvery = 500 * time.Millisecond
)

// SystemStats is a point-in-time view of process and host load.
type SystemStats struct {
	NumCPU      int     `json:"num_cpu"`
	GoRoutines  int     `json:"go_routines"`
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryAlloc uint64  `json:"memory_alloc"`
	MemorySys   uint64  `json:"memory_sys"`

	ActiveJobs int `json:"active_jobs"`

	Timestamp time.Time `json:"timestamp"`
}

// GetCPUUsage samples host CPU usage, rate-limited so frequent status
// requests reuse the last measurement.
func GetCPUUsage() float64 {
	cpuUsageMutex.Lock()
	defer cpuUsageMutex.Unlock()

	if time.Since(lastCPUSample) < cpuSampleEvery {
		return lastCPUUsage
	}

	percentages, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil || len(percentages) == 0 {
		log.Debugf("Failed to sample CPU usage: %v", err)
		return lastCPUUsage
	}
	lastCPUSample = time.Now()
	lastCPUUsage = percentages[0]
	return lastCPUUsage
}

// GetSystemStats collects current system statistics. activeJobs is supplied
// by the job runner.
func GetSystemStats(activeJobs int) SystemStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return SystemStats{
		NumCPU:      runtime.NumCPU(),
		GoRoutines:  runtime.NumGoroutine(),
		CPUUsage:    GetCPUUsage(),
		MemoryAlloc: mem.Alloc,
		MemorySys:   mem.Sys,
		ActiveJobs:  activeJobs,
		Timestamp:   time.Now(),
	}
}
