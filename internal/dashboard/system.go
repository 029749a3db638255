package dashboard

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// systemStats is the payload of GET /metrics/system. Grounded on
// adred-codev-ws_poc/go-server/internal/metrics/system.go's gopsutil-backed
// collector, trimmed to host CPU/memory plus the Go runtime's own view.
type systemStats struct {
	CPUPercent   float64 `json:"cpu_percent"`
	MemUsedBytes uint64  `json:"mem_used_bytes"`
	MemTotalBytes uint64 `json:"mem_total_bytes"`
	MemPercent   float64 `json:"mem_percent"`
	Goroutines   int     `json:"goroutines"`
	CollectedAt  int64   `json:"collected_at_ms"`
}

// collectSystemStats samples host CPU over a short window and reads
// current virtual memory, returning best-effort zero values rather than an
// error when gopsutil cannot read a platform metric — this endpoint is
// operator convenience, not something the core depends on.
func collectSystemStats() systemStats {
	stats := systemStats{
		Goroutines:  runtime.NumGoroutine(),
		CollectedAt: time.Now().UnixMilli(),
	}

	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemUsedBytes = vm.Used
		stats.MemTotalBytes = vm.Total
		stats.MemPercent = vm.UsedPercent
	}

	return stats
}
