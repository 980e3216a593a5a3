package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rafikh/go-emergency-dispatch/internal/models"
)

// FindEligible returns the responders that can take a new incident of
// the category: matching specialization and currently available. A
// busy responder drops out of the pool even though the model tracks
// concurrent assignments.
func (d *Dispatcher) FindEligible(ctx context.Context, category models.Category) ([]models.Responder, error) {
	responders, err := d.store.ListResponders(ctx, &category)
	if err != nil {
		return nil, fmt.Errorf("error listing responders: %w", err)
	}

	eligible := make([]models.Responder, 0, len(responders))
	for _, r := range responders {
		if r.Available() {
			eligible = append(eligible, r)
		}
	}
	return eligible, nil
}

// AssignBest assigns the first eligible responder for the incident's
// category. It fails with ErrNoEligibleResponder when the pool is
// empty, leaving the incident pending.
func (d *Dispatcher) AssignBest(ctx context.Context, incidentID int64) (*models.Responder, error) {
	inc, err := d.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	eligible, err := d.FindEligible(ctx, inc.Category)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("category %q: %w", inc.Category, ErrNoEligibleResponder)
	}

	responder := eligible[0]
	if err := d.AssignResponder(ctx, incidentID, responder.ID); err != nil {
		return nil, err
	}
	return &responder, nil
}

// Responders lists responders, optionally restricted to one category.
func (d *Dispatcher) Responders(ctx context.Context, category *models.Category) ([]models.Responder, error) {
	return d.store.ListResponders(ctx, category)
}

// RegisterResponder creates an available responder. The category must
// exist in the reference catalog.
func (d *Dispatcher) RegisterResponder(ctx context.Context, name string, category models.Category) (*models.Responder, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name"}
	}
	if !d.catalog.KnownCategory(category) {
		return nil, &ValidationError{Field: "category", Reason: "not in the reference catalog"}
	}

	r := &models.Responder{
		Name:      name,
		Category:  category,
		Status:    models.ResponderAvailable,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.store.CreateResponder(ctx, r); err != nil {
		return nil, fmt.Errorf("error creating responder: %w", err)
	}
	d.recordActivity("registered responder #%d (%s)", r.ID, r.Category)
	return r, nil
}
