package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// SystemMetrics holds one system metrics snapshot taken during a decode.
type SystemMetrics struct {
	CPUPercent        float64 // System-wide CPU usage (0-100%)
	ProcessCPUPercent float64 // This process CPU usage (can exceed 100% on multi-core)
	MemoryUsedGB      float64
	MemoryPercent     float64
	DiskReadMBps      float64 // Decoding is read-bound, so read rate is the interesting one
	Timestamp         time.Time
}

// Collector periodically collects and logs system metrics while a long
// decode runs.
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	lastDiskStats map[string]disk.IOCountersStat
	lastDiskTime  time.Time

	mu          sync.RWMutex
	lastMetrics *SystemMetrics
}

// NewCollector creates a new metrics collector
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}

	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
	}
}

// Start begins periodic metrics collection. Returns when the context is
// cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// First sample initializes the disk-rate baseline.
	c.collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// GetMetrics returns the last collected metrics
func (c *Collector) GetMetrics() *SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMetrics
}

func (c *Collector) collect() {
	metrics := &SystemMetrics{Timestamp: time.Now()}

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		metrics.CPUPercent = cpuPercent[0]
	}
	if c.proc != nil {
		if procCPU, err := c.proc.Percent(0); err == nil {
			metrics.ProcessCPUPercent = procCPU
		}
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		metrics.MemoryPercent = vmem.UsedPercent
		metrics.MemoryUsedGB = float64(vmem.Used) / (1024 * 1024 * 1024)
	}
	metrics.DiskReadMBps = c.diskReadRate()

	c.mu.Lock()
	c.lastMetrics = metrics
	c.mu.Unlock()

	c.logger.Info("System metrics",
		zap.Float64("sys_cpu", metrics.CPUPercent),
		zap.Float64("proc_cpu", metrics.ProcessCPUPercent),
		zap.Float64("mem_pct", metrics.MemoryPercent),
		zap.String("mem_used", fmt.Sprintf("%.1f GB", metrics.MemoryUsedGB)),
		zap.String("disk_r", fmt.Sprintf("%.1f MB/s", metrics.DiskReadMBps)),
	)
}

// diskReadRate computes the aggregate read rate since the previous sample.
func (c *Collector) diskReadRate() float64 {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0
	}

	now := time.Now()

	if c.lastDiskStats == nil {
		c.lastDiskStats = counters
		c.lastDiskTime = now
		return 0
	}

	elapsed := now.Sub(c.lastDiskTime).Seconds()
	if elapsed < 0.1 {
		return 0
	}

	var totalReadDelta uint64
	for name, counter := range counters {
		if last, ok := c.lastDiskStats[name]; ok && counter.ReadBytes >= last.ReadBytes {
			totalReadDelta += counter.ReadBytes - last.ReadBytes
		}
	}

	c.lastDiskStats = counters
	c.lastDiskTime = now

	return float64(totalReadDelta) / elapsed / (1024 * 1024)
}
