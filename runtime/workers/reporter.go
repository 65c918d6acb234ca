package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-hub/observability"
)

// ReporterWorker periodically logs process stats. Supervised like any
// other worker; a gopsutil hiccup is logged and retried next tick.
type ReporterWorker struct {
	log      *slog.Logger
	monitor  *observability.Monitor
	interval time.Duration
}

func NewReporterWorker(log *slog.Logger, monitor *observability.Monitor, interval time.Duration) *ReporterWorker {
	return &ReporterWorker{log: log, monitor: monitor, interval: interval}
}

func (w *ReporterWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping reporter")
			return nil
		case <-ticker.C:
			stats, err := w.monitor.Collect()
			if err != nil {
				w.log.Warn("Stats collection failed", "error", err)
				continue
			}
			w.log.Info("Process stats",
				"alloc_mb", stats.AllocMemMb,
				"rss_mb", stats.RSSMb,
				"num_gc", stats.NumGC,
				"goroutines", stats.Goroutines,
				"cpu_percent", stats.CPUPercent)
		}
	}
}
