package memory

import (
	"context"
	"sync"

	"github.com/coregx/leadbus/model"
)

// AccessLogRepository implements leadbus.AccessLogRepository in memory.
type AccessLogRepository struct {
	mu      sync.RWMutex
	nextID  int64
	entries []model.AccessLog
}

// NewAccessLogRepository creates an empty AccessLogRepository.
func NewAccessLogRepository() *AccessLogRepository {
	return &AccessLogRepository{}
}

// Save appends an entry.
func (r *AccessLogRepository) Save(_ context.Context, m model.AccessLog) (model.AccessLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	m.ID = r.nextID
	r.entries = append(r.entries, m)
	return m, nil
}

// FindRecent returns the latest entries, newest first.
func (r *AccessLogRepository) FindRecent(_ context.Context, limit int) ([]model.AccessLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.AccessLog, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}
