package leadbus

import (
	"context"
	"sync"
	"time"

	"github.com/coregx/leadbus/model"
)

// AuditLogger records access attempts: API calls, queue deliveries and
// worker runs. Implementations must not block delivery for long and must be
// safe for concurrent use.
type AuditLogger interface {
	LogAccessAttempt(ctx context.Context, entry model.AccessLog)
}

// NoopAuditLogger discards every entry.
type NoopAuditLogger struct{}

// LogAccessAttempt does nothing.
func (NoopAuditLogger) LogAccessAttempt(_ context.Context, _ model.AccessLog) {}

// LoggingAuditLogger writes entries to a Logger, one line per entry.
type LoggingAuditLogger struct {
	logger Logger
}

// NewLoggingAuditLogger creates a LoggingAuditLogger.
func NewLoggingAuditLogger(logger Logger) *LoggingAuditLogger {
	return &LoggingAuditLogger{logger: logger}
}

// LogAccessAttempt logs entry at info level, or warn level when it failed.
func (a *LoggingAuditLogger) LogAccessAttempt(_ context.Context, entry model.AccessLog) {
	format := "[AUDIT][%s] %s - User %s (Workspace %s) %s %s on %s: %s"
	args := []interface{}{
		entry.APIType, entry.Timestamp.Format(time.RFC3339), entry.UserID, entry.WorkspaceID,
		entry.Outcome(), entry.Action, entry.Endpoint, entry.Details,
	}
	if entry.Successful {
		a.logger.Infof(format, args...)
		return
	}
	a.logger.Warnf(format, args...)
}

// DefaultAuditCapacity is the number of entries MemoryAuditLogger keeps.
const DefaultAuditCapacity = 1000

// MemoryAuditLogger keeps the most recent entries in memory, oldest first.
type MemoryAuditLogger struct {
	mu       sync.Mutex
	capacity int
	records  []model.AccessLog
}

// NewMemoryAuditLogger creates a MemoryAuditLogger holding at most capacity
// entries. A non-positive capacity uses DefaultAuditCapacity.
func NewMemoryAuditLogger(capacity int) *MemoryAuditLogger {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &MemoryAuditLogger{capacity: capacity}
}

// LogAccessAttempt appends entry, evicting the oldest entry when full.
func (m *MemoryAuditLogger) LogAccessAttempt(_ context.Context, entry model.AccessLog) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.records) >= m.capacity {
		copy(m.records, m.records[1:])
		m.records = m.records[:len(m.records)-1]
	}
	m.records = append(m.records, entry)
}

// Records returns a copy of the stored entries, oldest first.
func (m *MemoryAuditLogger) Records() []model.AccessLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AccessLog(nil), m.records...)
}

// RepositoryAuditLogger persists entries through an AccessLogRepository.
// Persistence errors are logged and never surface to the audited operation.
type RepositoryAuditLogger struct {
	repo   AccessLogRepository
	logger Logger
}

// NewRepositoryAuditLogger creates a RepositoryAuditLogger.
func NewRepositoryAuditLogger(repo AccessLogRepository, logger Logger) *RepositoryAuditLogger {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &RepositoryAuditLogger{repo: repo, logger: logger}
}

// LogAccessAttempt saves entry.
func (r *RepositoryAuditLogger) LogAccessAttempt(ctx context.Context, entry model.AccessLog) {
	if _, err := r.repo.Save(ctx, entry); err != nil {
		r.logger.Errorf("Failed to save access log for %s %s: %v", entry.Action, entry.Endpoint, err)
	}
}

// MultiAuditLogger fans entries out to several audit loggers.
type MultiAuditLogger []AuditLogger

// LogAccessAttempt forwards entry to every logger in order.
func (m MultiAuditLogger) LogAccessAttempt(ctx context.Context, entry model.AccessLog) {
	for _, l := range m {
		l.LogAccessAttempt(ctx, entry)
	}
}
