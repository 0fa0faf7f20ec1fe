package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// StatsSource reports live registry counts for the telemetry loop.
type StatsSource interface {
	Stats() (connections, groups int)
}

// TelemetryWorker logs process health and registry population at a fixed
// interval.
type TelemetryWorker struct {
	log      *slog.Logger
	interval time.Duration
	source   StatsSource
}

func NewTelemetryWorker(log *slog.Logger, interval time.Duration, source StatsSource) *TelemetryWorker {
	return &TelemetryWorker{log: log, interval: interval, source: source}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			connections, groups := w.source.Stats()

			memInfo, err := proc.MemoryInfo()
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			cpuPercent, err := proc.CPUPercent()
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			w.log.Info("Telemetry",
				"live_connections", connections,
				"live_groups", groups,
				"ram_bytes", memInfo.RSS,
				"cpu_percent", cpuPercent)
		}
	}
}
