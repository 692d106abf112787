package telemetry

import (
	"math"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Status is a point-in-time snapshot of the host and process.
type Status struct {
	Time       time.Time `json:"time"`
	Hostname   string    `json:"hostname"`
	PID        int       `json:"pid"`
	UptimeSec  int64     `json:"uptimeSec"`
	CPUPercent float64   `json:"cpuPercent"`
	CPUCores   int       `json:"cpuCores"`
	Load1      float64   `json:"load1"`
	Load5      float64   `json:"load5"`
	Load15     float64   `json:"load15"`
	MemUsedPct float64   `json:"memUsedPercent"`
	MemTotalMB uint64    `json:"memTotalMB"`
	Goroutines int       `json:"goroutines"`
}

// StatusReporter produces Status snapshots for the HTTP API.
type StatusReporter struct {
	started  time.Time
	cpuCores int
}

func NewStatusReporter() *StatusReporter {
	cores := 0
	if info, err := cpu.Info(); err == nil {
		// Sum cores across sockets
		for _, c := range info {
			cores += int(c.Cores)
		}
	}

	return &StatusReporter{started: time.Now(), cpuCores: cores}
}

// Snapshot never fails: host probes that error out leave their fields at
// zero.
func (sr *StatusReporter) Snapshot() Status {
	s := Status{
		Time:       time.Now(),
		PID:        os.Getpid(),
		UptimeSec:  int64(time.Since(sr.started).Seconds()),
		CPUCores:   sr.cpuCores,
		Goroutines: runtime.NumGoroutine(),
	}
	s.Hostname, _ = os.Hostname()

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = math.Round(pct[0]*100) / 100
	}
	if avg, err := load.Avg(); err == nil {
		s.Load1, s.Load5, s.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemUsedPct = math.Round(vm.UsedPercent*100) / 100
		s.MemTotalMB = vm.Total / 1024 / 1024
	}

	return s
}
