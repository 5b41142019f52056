package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/coregx/leadbus"
	"github.com/coregx/leadbus/model"
)

// LeadRepository implements leadbus.LeadRepository in memory.
type LeadRepository struct {
	mu     sync.RWMutex
	nextID int64
	leads  map[int64]model.Lead
}

// NewLeadRepository creates an empty LeadRepository.
func NewLeadRepository() *LeadRepository {
	return &LeadRepository{leads: make(map[int64]model.Lead)}
}

// Load retrieves a lead by ID.
func (r *LeadRepository) Load(_ context.Context, id int64) (model.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return model.Lead{}, leadbus.ErrNoData
	}
	return lead, nil
}

// Save creates or updates a lead.
func (r *LeadRepository) Save(_ context.Context, m model.Lead) (model.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.ID == 0 {
		r.nextID++
		m.ID = r.nextID
	} else if _, ok := r.leads[m.ID]; !ok {
		return m, leadbus.ErrNoData
	}
	r.leads[m.ID] = m
	return m, nil
}

// Delete removes a lead.
func (r *LeadRepository) Delete(_ context.Context, m model.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.leads[m.ID]; !ok {
		return leadbus.ErrNoData
	}
	delete(r.leads, m.ID)
	return nil
}

// UpdateCategory sets the category of a lead.
func (r *LeadRepository) UpdateCategory(_ context.Context, id int64, category model.LeadCategory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[id]
	if !ok {
		return leadbus.ErrNoData
	}
	lead.Category = string(category)
	lead.Touch()
	r.leads[id] = lead
	return nil
}

// FindByWorkspace lists the leads of a workspace, newest first.
func (r *LeadRepository) FindByWorkspace(_ context.Context, workspaceID int64, limit int) ([]model.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Lead
	for _, l := range r.leads {
		if l.WorkspaceID == workspaceID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
