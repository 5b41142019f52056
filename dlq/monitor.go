package dlq

import (
	"context"
	"fmt"
	"sync"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/coregx/leadbus"
	"github.com/coregx/leadbus/model"
)

// DefaultSchedule reports every five minutes.
const DefaultSchedule = "@every 5m"

// ReportFunc receives every report produced by a Monitor.
type ReportFunc func(stats model.DLQStats)

// Monitor periodically reports the contents of a dead letter queue.
type Monitor struct {
	inspector *Inspector
	schedule  string
	logger    leadbus.Logger
	onReport  ReportFunc

	mu   sync.Mutex
	cron *cronv3.Cron
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor) error

// ValidateSchedule reports whether spec is a valid cron spec.
func ValidateSchedule(spec string) error {
	if _, err := cronv3.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// WithSchedule sets the cron spec (standard 5-field or a descriptor such as
// "@every 1m"). Defaults to DefaultSchedule.
func WithSchedule(spec string) MonitorOption {
	return func(m *Monitor) error {
		if err := ValidateSchedule(spec); err != nil {
			return err
		}
		m.schedule = spec
		return nil
	}
}

// WithMonitorLogger sets the logger. Defaults to leadbus.NoopLogger.
func WithMonitorLogger(logger leadbus.Logger) MonitorOption {
	return func(m *Monitor) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		m.logger = logger
		return nil
	}
}

// WithReportFunc registers a callback invoked after every report.
func WithReportFunc(fn ReportFunc) MonitorOption {
	return func(m *Monitor) error {
		if fn == nil {
			return fmt.Errorf("report func cannot be nil")
		}
		m.onReport = fn
		return nil
	}
}

// NewMonitor creates a stopped Monitor.
func NewMonitor(inspector *Inspector, opts ...MonitorOption) (*Monitor, error) {
	if inspector == nil {
		return nil, leadbus.NewError(leadbus.ErrCodeConfiguration, "inspector is required")
	}

	m := &Monitor{
		inspector: inspector,
		schedule:  DefaultSchedule,
		logger:    &leadbus.NoopLogger{},
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, leadbus.NewErrorWithCause(leadbus.ErrCodeConfiguration, "failed to apply monitor option", err)
		}
	}
	return m, nil
}

// Start schedules the report. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron != nil {
		return nil
	}

	c := cronv3.New(cronv3.WithChain(
		cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
		cronv3.Recover(cronv3.DefaultLogger),
	))
	if _, err := c.AddFunc(m.schedule, func() { m.Report() }); err != nil {
		return leadbus.NewErrorWithCause(leadbus.ErrCodeConfiguration, "could not add DLQ report job", err)
	}
	c.Start()

	m.cron = c
	m.logger.Infof("DLQ monitor for %s started with schedule: %s", m.inspector.Queue().Name(), m.schedule)
	return nil
}

// Stop stops the schedule and waits for a running report to finish or ctx
// to be done.
func (m *Monitor) Stop(ctx context.Context) {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()

	if c == nil {
		return
	}
	m.logger.Info("Stopping DLQ monitor")
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Running reports whether the monitor is scheduled.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cron != nil
}

// Report computes and logs the current stats immediately.
func (m *Monitor) Report() model.DLQStats {
	stats := m.inspector.Stats()
	name := m.inspector.Queue().Name()

	if stats.TotalItems == 0 {
		m.logger.Debugf("DLQ %s is empty", name)
	} else {
		m.logger.Warnf("DLQ %s holds %d message(s): by_type=%v, oldest=%ds, newest=%ds, top_error=%q",
			name, stats.TotalItems, stats.ByOriginalEventType,
			stats.OldestItemAgeSeconds, stats.NewestItemAgeSeconds, stats.TopErrorMessage)
	}

	if m.onReport != nil {
		m.onReport(stats)
	}
	return stats
}
