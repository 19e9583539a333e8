// Package nodeinfo collects a snapshot of the node's identity and
// capacity using gopsutil v4. The snapshot rides along with heartbeats so
// the controller can see what it is scheduling onto and correlate hook
// failures with node state (a prolog failing under load average 200 is a
// different conversation than one failing on an idle node).
package nodeinfo

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot describes the node at a point in time. Byte values are bytes,
// uptime is seconds.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	Hostname      string `json:"hostname"`
	KernelVersion string `json:"kernelVersion"`
	Platform      string `json:"platform"`

	// CPUs is the logical CPU count.
	CPUs int `json:"cpus"`

	MemoryTotal uint64  `json:"memoryTotal"`
	MemoryUsed  uint64  `json:"memoryUsed"`
	MemoryPct   float64 `json:"memoryPct"`

	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`

	Uptime uint64 `json:"uptime"`
}

// Collector gathers node snapshots.
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a snapshot collector.
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{
		logger: logger.With(slog.String("component", "nodeinfo")),
	}
}

// Collect gathers a snapshot of the node. Individual metric failures are
// logged and leave zero values; only context cancellation is an error.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Timestamp: time.Now()}

	if hostname, err := os.Hostname(); err == nil {
		snap.Hostname = hostname
	}

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		c.logger.Warn("failed to collect host info", slog.String("error", err.Error()))
	} else {
		snap.KernelVersion = info.KernelVersion
		snap.Platform = info.Platform
		snap.Uptime = info.Uptime
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	cpus, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		c.logger.Warn("failed to count CPUs", slog.String("error", err.Error()))
	} else {
		snap.CPUs = cpus
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		c.logger.Warn("failed to collect memory stats", slog.String("error", err.Error()))
	} else {
		snap.MemoryTotal = memInfo.Total
		snap.MemoryUsed = memInfo.Used
		snap.MemoryPct = memInfo.UsedPercent
	}

	loadAvg, err := load.AvgWithContext(ctx)
	if err != nil {
		c.logger.Warn("failed to collect load average", slog.String("error", err.Error()))
	} else {
		snap.Load1 = loadAvg.Load1
		snap.Load5 = loadAvg.Load5
		snap.Load15 = loadAvg.Load15
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return snap, nil
}
