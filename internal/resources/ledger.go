// Package resources tracks the fixed inventory of scarce units and
// their allocation to incidents.
package resources

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rafikh/go-emergency-dispatch/internal/models"
	"github.com/rafikh/go-emergency-dispatch/internal/repository"
)

// Ledger owns the resource counters. All mutations happen under one
// mutex so a deploy can never read a stale available count, and the
// invariant available + outstanding == total holds for every type.
// Counter changes are written through to the store before the in-memory
// state is updated.
type Ledger struct {
	mu          sync.Mutex
	store       repository.ResourceStore
	available   map[string]int
	total       map[string]int
	outstanding map[int64]map[string]int // incident -> resource -> quantity
}

// NewLedger seeds the store with the inventory when empty and rebuilds
// the in-memory counters from persisted state, so outstanding
// deployments survive a restart.
func NewLedger(ctx context.Context, store repository.ResourceStore, inventory map[string]int) (*Ledger, error) {
	if err := store.SeedResources(ctx, inventory); err != nil {
		return nil, fmt.Errorf("error seeding resources: %w", err)
	}

	l := &Ledger{
		store:       store,
		available:   make(map[string]int),
		total:       make(map[string]int),
		outstanding: make(map[int64]map[string]int),
	}

	types, err := store.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading resources: %w", err)
	}
	for _, r := range types {
		l.available[r.Name] = r.Available
		l.total[r.Name] = r.Total
	}

	deployed, err := store.OutstandingDeployments(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading outstanding deployments: %w", err)
	}
	for _, d := range deployed {
		l.addOutstanding(d.IncidentID, d.Resource, d.Quantity)
	}

	return l, nil
}

// Deploy allocates quantity units of a resource type to an incident.
// It returns false, leaving all counts unchanged, when fewer than
// quantity units are available. Unknown resource types and non-positive
// quantities are caller errors.
func (l *Ledger) Deploy(ctx context.Context, resource string, incidentID int64, quantity int) (bool, error) {
	if quantity < 1 {
		return false, fmt.Errorf("invalid deploy quantity %d", quantity)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	avail, ok := l.available[resource]
	if !ok {
		return false, fmt.Errorf("deploy %q: %w", resource, repository.ErrResourceNotFound)
	}
	if avail < quantity {
		return false, nil
	}

	if err := l.store.SetAvailable(ctx, resource, avail-quantity); err != nil {
		return false, fmt.Errorf("error persisting resource count: %w", err)
	}
	d := &models.Deployment{
		IncidentID: incidentID,
		Resource:   resource,
		Quantity:   quantity,
		DeployedAt: time.Now().UTC(),
	}
	if err := l.store.AddDeployment(ctx, d); err != nil {
		// Restore the persisted count so the store stays consistent
		// with memory.
		if restoreErr := l.store.SetAvailable(ctx, resource, avail); restoreErr != nil {
			return false, fmt.Errorf("error recording deployment (count restore also failed: %v): %w", restoreErr, err)
		}
		return false, fmt.Errorf("error recording deployment: %w", err)
	}

	l.available[resource] = avail - quantity
	l.addOutstanding(incidentID, resource, quantity)
	return true, nil
}

// Return releases quantity units previously deployed to the incident.
// It returns false when the outstanding balance for the pair is smaller
// than quantity. Partial returns are permitted.
func (l *Ledger) Return(ctx context.Context, incidentID int64, resource string, quantity int) (bool, error) {
	if quantity < 1 {
		return false, fmt.Errorf("invalid return quantity %d", quantity)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.returnLocked(ctx, incidentID, resource, quantity)
}

// ReturnAll releases every outstanding deployment for the incident and
// reports what was returned.
func (l *Ledger) ReturnAll(ctx context.Context, incidentID int64) (map[string]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	returned := make(map[string]int)
	for resource, quantity := range l.outstanding[incidentID] {
		ok, err := l.returnLocked(ctx, incidentID, resource, quantity)
		if err != nil {
			return returned, err
		}
		if ok {
			returned[resource] = quantity
		}
	}
	return returned, nil
}

func (l *Ledger) returnLocked(ctx context.Context, incidentID int64, resource string, quantity int) (bool, error) {
	byResource := l.outstanding[incidentID]
	if byResource[resource] < quantity {
		return false, nil
	}
	avail, ok := l.available[resource]
	if !ok {
		return false, fmt.Errorf("return %q: %w", resource, repository.ErrResourceNotFound)
	}

	if err := l.store.MarkReturned(ctx, incidentID, resource, quantity); err != nil {
		return false, fmt.Errorf("error marking deployment returned: %w", err)
	}
	if err := l.store.SetAvailable(ctx, resource, avail+quantity); err != nil {
		return false, fmt.Errorf("error persisting resource count: %w", err)
	}

	l.available[resource] = avail + quantity
	byResource[resource] -= quantity
	if byResource[resource] == 0 {
		delete(byResource, resource)
	}
	if len(byResource) == 0 {
		delete(l.outstanding, incidentID)
	}
	return true, nil
}

// Available returns a snapshot of available counts per resource type.
func (l *Ledger) Available() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make(map[string]int, len(l.available))
	for resource, count := range l.available {
		snapshot[resource] = count
	}
	return snapshot
}

// Totals returns the fixed capacity per resource type.
func (l *Ledger) Totals() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make(map[string]int, len(l.total))
	for resource, count := range l.total {
		snapshot[resource] = count
	}
	return snapshot
}

// Deployed returns a snapshot of outstanding deployments grouped by
// incident.
func (l *Ledger) Deployed() map[int64]map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make(map[int64]map[string]int, len(l.outstanding))
	for incidentID, byResource := range l.outstanding {
		inner := make(map[string]int, len(byResource))
		for resource, quantity := range byResource {
			inner[resource] = quantity
		}
		snapshot[incidentID] = inner
	}
	return snapshot
}

func (l *Ledger) addOutstanding(incidentID int64, resource string, quantity int) {
	byResource, ok := l.outstanding[incidentID]
	if !ok {
		byResource = make(map[string]int)
		l.outstanding[incidentID] = byResource
	}
	byResource[resource] += quantity
}
