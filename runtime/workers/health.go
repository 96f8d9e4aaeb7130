package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HealthWorker logs the process footprint next to the mailbox backlog every interval.
type HealthWorker struct {
	log      *slog.Logger
	source   QueueSource
	interval time.Duration
}

func NewHealthWorker(log *slog.Logger, source QueueSource, interval time.Duration) *HealthWorker {
	return &HealthWorker{log: log, source: source, interval: interval}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health report")
			return nil
		case <-ticker.C:
			rss, cpu, status, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			mailboxes, pending := backlog(w.source)
			w.log.Info("Health",
				"pid", p.Pid,
				"status", status,
				"cpu_percent", cpu,
				"ram_bytes", rss,
				"mailboxes", mailboxes,
				"pending", pending)
		}
	}
}

// backlog returns the number of queues and the messages they still hold.
func backlog(source QueueSource) (int, int) {
	queues := source.Queues()
	pending := 0
	for _, q := range queues {
		pending += q.Len()
	}
	return len(queues), pending
}

func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}
	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
