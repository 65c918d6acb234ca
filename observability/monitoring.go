// Package observability collects process-level stats for the periodic
// reporter. Nothing here is on the hot path.
package observability

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/process"
)

type ProcessStats struct {
	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`
	Goroutines int     `json:"goroutines"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSMb      uint64  `json:"rss_mb"`
}

type Monitor struct {
	proc *process.Process
}

func NewMonitor() (*Monitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Monitor{proc: proc}, nil
}

// Collect snapshots the Go runtime and OS view of this process.
func (m *Monitor) Collect() (ProcessStats, error) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := ProcessStats{
		AllocMemMb: memStats.Alloc / 1024 / 1024,
		NumGC:      memStats.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}

	if cpu, err := m.proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := m.proc.MemoryInfo(); err == nil {
		stats.RSSMb = mem.RSS / 1024 / 1024
	}
	return stats, nil
}
