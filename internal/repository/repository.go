// Package repository defines the storage contracts the dispatch core
// issues its logical operations against, plus the SQLite and in-memory
// implementations.
package repository

import (
	"context"
	"errors"

	"github.com/rafikh/go-emergency-dispatch/internal/models"
)

var (
	ErrIncidentNotFound  = errors.New("incident not found")
	ErrResponderNotFound = errors.New("responder not found")
	ErrResourceNotFound  = errors.New("resource type not found")
)

type IncidentFilter struct {
	Status   *models.Status
	Category *models.Category
	Priority *models.Priority
	Limit    int
}

type IncidentStore interface {
	// CreateIncident persists a new incident and its reported facts,
	// assigning the next monotonic ID.
	CreateIncident(ctx context.Context, inc *models.Incident, facts models.Facts) error
	GetIncident(ctx context.Context, id int64) (*models.Incident, error)
	UpdateIncident(ctx context.Context, inc *models.Incident) error
	ListIncidents(ctx context.Context, f IncidentFilter) ([]models.Incident, error)
	IncidentFacts(ctx context.Context, id int64) (models.Facts, error)
	CountByCategory(ctx context.Context) (map[models.Category]int, error)
	CountByStatus(ctx context.Context) (map[models.Status]int, error)
}

type ResponderStore interface {
	CreateResponder(ctx context.Context, r *models.Responder) error
	GetResponder(ctx context.Context, id int64) (*models.Responder, error)
	UpdateResponder(ctx context.Context, r *models.Responder) error
	// ListResponders returns responders, optionally restricted to one
	// category, ordered by ID.
	ListResponders(ctx context.Context, category *models.Category) ([]models.Responder, error)
}

type ResourceStore interface {
	// SeedResources inserts inventory rows when the resources table is
	// empty; existing counts are left untouched.
	SeedResources(ctx context.Context, inventory map[string]int) error
	ListResources(ctx context.Context) ([]models.ResourceType, error)
	SetAvailable(ctx context.Context, resource string, available int) error
	AddDeployment(ctx context.Context, d *models.Deployment) error
	// MarkReturned closes outstanding deployment quantity for the
	// incident/resource pair. Partial returns leave a smaller
	// outstanding balance.
	MarkReturned(ctx context.Context, incidentID int64, resource string, quantity int) error
	OutstandingDeployments(ctx context.Context) ([]models.Deployment, error)
}

type DispatchLogStore interface {
	AppendEntry(ctx context.Context, e *models.DispatchEntry) error
	EntriesForIncident(ctx context.Context, incidentID int64) ([]models.DispatchEntry, error)
	RecentEntries(ctx context.Context, n int) ([]models.DispatchEntry, error)
}

type ActivityStore interface {
	AppendActivity(ctx context.Context, a *models.Activity) error
}

// Store is the full persistence surface consumed by the dispatcher.
type Store interface {
	IncidentStore
	ResponderStore
	ResourceStore
	DispatchLogStore
	ActivityStore
}
