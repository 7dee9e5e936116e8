// Package metrics logs system load and matching progress while a run is
// in flight
package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// SystemMetrics is one snapshot of system load
type SystemMetrics struct {
	CPUPercent        float64 // system-wide, 0-100
	ProcessCPUPercent float64 // this process, can exceed 100 on multi-core
	ProcessRSSMB      float64
	MemoryUsedGB      float64
	MemoryTotalGB     float64
	MemoryPercent     float64
	Timestamp         time.Time
}

// Collector periodically collects and logs system metrics
type Collector struct {
	interval    time.Duration
	logger      *zap.Logger
	proc        *process.Process
	mu          sync.RWMutex
	lastMetrics *SystemMetrics
}

// NewCollector creates a collector. Intervals under a second fall back to
// 30 seconds.
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

// Start collects until the context is cancelled
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

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

// GetMetrics returns the last snapshot, nil before the first one
func (c *Collector) GetMetrics() *SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMetrics
}

func (c *Collector) collect() {
	m := Sample(c.proc)

	c.mu.Lock()
	c.lastMetrics = m
	c.mu.Unlock()

	c.logger.Info("System metrics",
		zap.Float64("sys_cpu", m.CPUPercent),
		zap.Float64("proc_cpu", m.ProcessCPUPercent),
		zap.String("proc_rss", fmt.Sprintf("%.1f MB", m.ProcessRSSMB)),
		zap.Float64("mem_pct", m.MemoryPercent),
		zap.String("mem_used", fmt.Sprintf("%.1f GB", m.MemoryUsedGB)),
	)
}

// Sample takes one snapshot. Values that cannot be read stay zero. proc
// may be nil.
func Sample(proc *process.Process) *SystemMetrics {
	m := &SystemMetrics{Timestamp: time.Now()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.CPUPercent = pct[0]
	}

	if proc != nil {
		if pct, err := proc.Percent(0); err == nil {
			m.ProcessCPUPercent = pct
		}
		if info, err := proc.MemoryInfo(); err == nil {
			m.ProcessRSSMB = float64(info.RSS) / (1024 * 1024)
		}
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		m.MemoryPercent = vmem.UsedPercent
		m.MemoryUsedGB = float64(vmem.Used) / (1024 * 1024 * 1024)
		m.MemoryTotalGB = float64(vmem.Total) / (1024 * 1024 * 1024)
	}
	return m
}
