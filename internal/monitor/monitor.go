package monitor

import (
	"log/slog"
	"time"

	"servicetracker/internal/metrics"
)

// SummarySource yields the current weekly totals.
type SummarySource interface {
	WeeklySummary() []metrics.WeeklyTotal
}

// Monitor periodically recomputes the weekly summary so exported gauges
// follow the sliding window even when no service changes.
type Monitor struct {
	interval time.Duration
	source   SummarySource
	logger   *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a monitor for the given source and interval.
func New(interval time.Duration, source SummarySource, logger *slog.Logger) *Monitor {
	if interval < time.Second {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		interval: interval,
		source:   source,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the refresh loop in a goroutine.
func (m *Monitor) Start() {
	go m.run()
}

// Stop requests graceful loop termination and waits until it is done.
func (m *Monitor) Stop() {
	select {
	case <-m.doneCh:
		return
	default:
	}
	close(m.stopCh)
	<-m.doneCh
}

// RunOnce recomputes the summary and publishes it to the metrics gauges.
func (m *Monitor) RunOnce() []metrics.WeeklyTotal {
	totals := m.source.WeeklySummary()
	metrics.SetWeeklyHours(totals)

	complete := 0
	for _, t := range totals {
		if t.Complete() {
			complete++
		}
	}
	m.logger.Debug("weekly summary refreshed", "names", len(totals), "complete", complete)
	return totals
}

func (m *Monitor) run() {
	defer close(m.doneCh)

	m.RunOnce()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.RunOnce()
		case <-m.stopCh:
			return
		}
	}
}
