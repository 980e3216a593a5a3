package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rafikh/go-emergency-dispatch/internal/models"
)

// MemoryStore is an in-memory Store used by tests and for ephemeral
// deployments. IDs are assigned monotonically, matching the SQLite
// AUTOINCREMENT behavior.
type MemoryStore struct {
	mu sync.RWMutex

	incidents map[int64]models.Incident
	facts     map[int64]models.Facts
	users     map[int64]models.Responder
	resources map[string]models.ResourceType
	deployed  []models.Deployment
	actions   []models.DispatchEntry
	activity  []models.Activity

	nextIncident   int64
	nextUser       int64
	nextDeployment int64
	nextAction     int64
	nextActivity   int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		incidents: make(map[int64]models.Incident),
		facts:     make(map[int64]models.Facts),
		users:     make(map[int64]models.Responder),
		resources: make(map[string]models.ResourceType),
	}
}

func (m *MemoryStore) CreateIncident(_ context.Context, inc *models.Incident, facts models.Facts) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextIncident++
	inc.ID = m.nextIncident
	m.incidents[inc.ID] = *inc

	copied := models.Facts{}
	for k, v := range facts {
		copied[k] = v
	}
	m.facts[inc.ID] = copied
	return nil
}

func (m *MemoryStore) GetIncident(_ context.Context, id int64) (*models.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inc, ok := m.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	return &inc, nil
}

func (m *MemoryStore) UpdateIncident(_ context.Context, inc *models.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.incidents[inc.ID]; !ok {
		return ErrIncidentNotFound
	}
	m.incidents[inc.ID] = *inc
	return nil
}

func (m *MemoryStore) ListIncidents(_ context.Context, f IncidentFilter) ([]models.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var incidents []models.Incident
	for _, inc := range m.incidents {
		if f.Status != nil && inc.Status != *f.Status {
			continue
		}
		if f.Category != nil && inc.Category != *f.Category {
			continue
		}
		if f.Priority != nil && inc.Priority != *f.Priority {
			continue
		}
		incidents = append(incidents, inc)
	}
	sort.Slice(incidents, func(i, j int) bool {
		if incidents[i].CreatedAt.Equal(incidents[j].CreatedAt) {
			return incidents[i].ID > incidents[j].ID
		}
		return incidents[i].CreatedAt.After(incidents[j].CreatedAt)
	})
	if f.Limit > 0 && len(incidents) > f.Limit {
		incidents = incidents[:f.Limit]
	}
	return incidents, nil
}

func (m *MemoryStore) IncidentFacts(_ context.Context, id int64) (models.Facts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	facts := models.Facts{}
	for k, v := range m.facts[id] {
		facts[k] = v
	}
	return facts, nil
}

func (m *MemoryStore) CountByCategory(_ context.Context) (map[models.Category]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[models.Category]int)
	for _, inc := range m.incidents {
		counts[inc.Category]++
	}
	return counts, nil
}

func (m *MemoryStore) CountByStatus(_ context.Context) (map[models.Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[models.Status]int)
	for _, inc := range m.incidents {
		counts[inc.Status]++
	}
	return counts, nil
}

func (m *MemoryStore) CreateResponder(_ context.Context, r *models.Responder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextUser++
	r.ID = m.nextUser
	m.users[r.ID] = *r
	return nil
}

func (m *MemoryStore) GetResponder(_ context.Context, id int64) (*models.Responder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.users[id]
	if !ok {
		return nil, ErrResponderNotFound
	}
	return &r, nil
}

func (m *MemoryStore) UpdateResponder(_ context.Context, r *models.Responder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[r.ID]; !ok {
		return ErrResponderNotFound
	}
	m.users[r.ID] = *r
	return nil
}

func (m *MemoryStore) ListResponders(_ context.Context, category *models.Category) ([]models.Responder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var responders []models.Responder
	for _, r := range m.users {
		if category != nil && r.Category != *category {
			continue
		}
		responders = append(responders, r)
	}
	sort.Slice(responders, func(i, j int) bool { return responders[i].ID < responders[j].ID })
	return responders, nil
}

func (m *MemoryStore) SeedResources(_ context.Context, inventory map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.resources) > 0 {
		return nil
	}
	for resource, total := range inventory {
		m.resources[resource] = models.ResourceType{Name: resource, Total: total, Available: total}
	}
	return nil
}

func (m *MemoryStore) ListResources(_ context.Context) ([]models.ResourceType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resources := make([]models.ResourceType, 0, len(m.resources))
	for _, r := range m.resources {
		resources = append(resources, r)
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].Name < resources[j].Name })
	return resources, nil
}

func (m *MemoryStore) SetAvailable(_ context.Context, resource string, available int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.resources[resource]
	if !ok {
		return ErrResourceNotFound
	}
	r.Available = available
	m.resources[resource] = r
	return nil
}

func (m *MemoryStore) AddDeployment(_ context.Context, d *models.Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextDeployment++
	d.ID = m.nextDeployment
	m.deployed = append(m.deployed, *d)
	return nil
}

func (m *MemoryStore) MarkReturned(_ context.Context, incidentID int64, resource string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	remaining := quantity
	for i := range m.deployed {
		d := &m.deployed[i]
		if remaining == 0 {
			break
		}
		if d.IncidentID != incidentID || d.Resource != resource || !d.Outstanding() {
			continue
		}
		if d.Quantity <= remaining {
			remaining -= d.Quantity
			d.ReturnedAt = &now
			continue
		}
		d.Quantity -= remaining
		m.nextDeployment++
		m.deployed = append(m.deployed, models.Deployment{
			ID:         m.nextDeployment,
			IncidentID: incidentID,
			Resource:   resource,
			Quantity:   remaining,
			DeployedAt: d.DeployedAt,
			ReturnedAt: &now,
		})
		remaining = 0
	}
	if remaining > 0 {
		return fmt.Errorf("outstanding quantity for incident %d resource %q is less than %d", incidentID, resource, quantity)
	}
	return nil
}

func (m *MemoryStore) OutstandingDeployments(_ context.Context) ([]models.Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var outstanding []models.Deployment
	for _, d := range m.deployed {
		if d.Outstanding() {
			outstanding = append(outstanding, d)
		}
	}
	return outstanding, nil
}

func (m *MemoryStore) AppendEntry(_ context.Context, e *models.DispatchEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextAction++
	e.ID = m.nextAction
	m.actions = append(m.actions, *e)
	return nil
}

func (m *MemoryStore) EntriesForIncident(_ context.Context, incidentID int64) ([]models.DispatchEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []models.DispatchEntry
	for _, e := range m.actions {
		if e.IncidentID == incidentID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (m *MemoryStore) RecentEntries(_ context.Context, n int) ([]models.DispatchEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n <= 0 || len(m.actions) == 0 {
		return nil, nil
	}
	start := len(m.actions)
	var entries []models.DispatchEntry
	for i := start - 1; i >= 0 && len(entries) < n; i-- {
		entries = append(entries, m.actions[i])
	}
	return entries, nil
}

func (m *MemoryStore) AppendActivity(_ context.Context, a *models.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextActivity++
	a.ID = m.nextActivity
	m.activity = append(m.activity, *a)
	return nil
}

// Activities returns a copy of the audit trail, oldest first. Used by
// tests to verify asynchronous writes.
func (m *MemoryStore) Activities() []models.Activity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Activity(nil), m.activity...)
}
