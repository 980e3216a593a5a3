package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rafikh/go-emergency-dispatch/internal/events"
	"github.com/rafikh/go-emergency-dispatch/internal/models"
)

// AssignResponder moves a pending incident to ongoing under the named
// responder. The transition runs under the incident lock; the
// eligibility check and the counter update run under the responder
// lock, so two incidents racing for one responder serialize and the
// loser sees it busy. Re-assigning the same responder to an
// already-ongoing incident is an idempotent no-op; any other transition
// is rejected. Resource auto-deployment failures are advisory and never
// block the assignment.
func (d *Dispatcher) AssignResponder(ctx context.Context, incidentID, responderID int64) error {
	unlock := d.lockIncident(incidentID)
	defer unlock()

	inc, err := d.store.GetIncident(ctx, incidentID)
	if err != nil {
		return err
	}

	switch inc.Status {
	case models.StatusSolved:
		return fmt.Errorf("incident %d is solved: %w", incidentID, ErrInvalidTransition)
	case models.StatusOngoing:
		if inc.ResponderID != nil && *inc.ResponderID == responderID {
			return nil
		}
		return fmt.Errorf("incident %d is already assigned: %w", incidentID, ErrInvalidTransition)
	}

	unlockResponder := d.lockResponder(responderID)
	defer unlockResponder()

	responder, err := d.store.GetResponder(ctx, responderID)
	if err != nil {
		return err
	}
	if responder.Category != inc.Category {
		return fmt.Errorf("responder %d has category %q, incident needs %q: %w",
			responderID, responder.Category, inc.Category, ErrNoEligibleResponder)
	}
	if !responder.Available() {
		return fmt.Errorf("responder %d is busy: %w", responderID, ErrNoEligibleResponder)
	}

	now := time.Now().UTC()
	prevResponder := *responder

	inc.Status = models.StatusOngoing
	inc.ResponderID = &responderID
	inc.UpdatedAt = now
	if err := d.store.UpdateIncident(ctx, inc); err != nil {
		return fmt.Errorf("error updating incident: %w", err)
	}

	responder.ActiveIncidents++
	responder.Status = models.ResponderBusy
	if err := d.store.UpdateResponder(ctx, responder); err != nil {
		// Roll the incident back so the failed assignment leaves no
		// trace.
		inc.Status = models.StatusPending
		inc.ResponderID = nil
		if revertErr := d.store.UpdateIncident(ctx, inc); revertErr != nil {
			slog.Error("failed to revert incident after responder update error",
				"incident_id", incidentID, "error", revertErr)
		}
		*responder = prevResponder
		return fmt.Errorf("error updating responder: %w", err)
	}

	slog.Info("responder assigned",
		"incident_id", incidentID, "responder_id", responderID, "category", inc.Category)

	d.autoDeploy(ctx, inc)

	d.appendLog(ctx, models.DispatchEntry{
		IncidentID:  incidentID,
		ResponderID: &responderID,
		Category:    inc.Category,
		Action:      models.ActionAssigned,
		Detail:      fmt.Sprintf("responder %s", responder.Name),
		CreatedAt:   now,
	})
	d.recordActivity("assigned responder #%d to incident #%d", responderID, incidentID)
	d.publish(events.Event{
		Type:        events.IncidentAssigned,
		IncidentID:  incidentID,
		Category:    inc.Category,
		Priority:    inc.Priority.String(),
		Status:      inc.Status,
		ResponderID: &responderID,
		At:          now,
	})
	return nil
}

// ResolveIncident moves an ongoing incident to solved, returning all
// outstanding resource deployments and releasing the responder.
// Resolving a solved incident again is an idempotent no-op; resolving a
// pending incident is rejected.
func (d *Dispatcher) ResolveIncident(ctx context.Context, incidentID int64) error {
	unlock := d.lockIncident(incidentID)
	defer unlock()

	inc, err := d.store.GetIncident(ctx, incidentID)
	if err != nil {
		return err
	}

	switch inc.Status {
	case models.StatusPending:
		return fmt.Errorf("incident %d is still pending: %w", incidentID, ErrInvalidTransition)
	case models.StatusSolved:
		return nil
	}

	now := time.Now().UTC()
	responderID := inc.ResponderID

	// Persist the transition first: a side-effect failure rolls the
	// status back instead of leaving a half-unwound ongoing incident.
	inc.Status = models.StatusSolved
	inc.UpdatedAt = now
	if err := d.store.UpdateIncident(ctx, inc); err != nil {
		return fmt.Errorf("error updating incident: %w", err)
	}

	returned, err := d.ledger.ReturnAll(ctx, incidentID)
	if err != nil {
		d.revertToOngoing(ctx, inc)
		return fmt.Errorf("error returning resources: %w", err)
	}

	for _, resource := range sortedKeys(returned) {
		quantity := returned[resource]
		d.appendLog(ctx, models.DispatchEntry{
			IncidentID: incidentID,
			Category:   inc.Category,
			Action:     models.ActionReturned,
			Detail:     fmt.Sprintf("%d %s", quantity, resource),
			CreatedAt:  now,
		})
		d.publish(events.Event{
			Type:       events.ResourceReturned,
			IncidentID: incidentID,
			Category:   inc.Category,
			Resource:   resource,
			Quantity:   quantity,
			At:         now,
		})
	}

	if responderID != nil {
		if err := d.releaseResponder(ctx, *responderID); err != nil {
			d.revertToOngoing(ctx, inc)
			return err
		}
	}

	slog.Info("incident resolved", "incident_id", incidentID, "category", inc.Category)

	d.appendLog(ctx, models.DispatchEntry{
		IncidentID:  incidentID,
		ResponderID: responderID,
		Category:    inc.Category,
		Action:      models.ActionResolved,
		CreatedAt:   now,
	})
	d.recordActivity("resolved incident #%d", incidentID)
	d.publish(events.Event{
		Type:        events.IncidentSolved,
		IncidentID:  incidentID,
		Category:    inc.Category,
		Priority:    inc.Priority.String(),
		Status:      inc.Status,
		ResponderID: responderID,
		At:          now,
	})
	return nil
}

// releaseResponder decrements a responder's active-incident count under
// its lock, marking it available again at zero.
func (d *Dispatcher) releaseResponder(ctx context.Context, responderID int64) error {
	unlock := d.lockResponder(responderID)
	defer unlock()

	responder, err := d.store.GetResponder(ctx, responderID)
	if err != nil {
		return fmt.Errorf("error loading responder %d: %w", responderID, err)
	}
	if responder.ActiveIncidents > 0 {
		responder.ActiveIncidents--
	}
	if responder.ActiveIncidents == 0 {
		responder.Status = models.ResponderAvailable
	}
	if err := d.store.UpdateResponder(ctx, responder); err != nil {
		return fmt.Errorf("error updating responder: %w", err)
	}
	return nil
}

func (d *Dispatcher) revertToOngoing(ctx context.Context, inc *models.Incident) {
	inc.Status = models.StatusOngoing
	if err := d.store.UpdateIncident(ctx, inc); err != nil {
		slog.Error("failed to revert incident after resolve error",
			"incident_id", inc.ID, "error", err)
	}
}

// autoDeploy applies the category's deployment rule. Shortfalls are
// logged and recorded but never block the transition.
func (d *Dispatcher) autoDeploy(ctx context.Context, inc *models.Incident) {
	rule := d.catalog.DeploymentRule(inc.Category)
	for _, resource := range sortedKeys(rule) {
		quantity := rule[resource]
		now := time.Now().UTC()

		ok, err := d.ledger.Deploy(ctx, resource, inc.ID, quantity)
		if err != nil {
			slog.Error("resource deploy error",
				"incident_id", inc.ID, "resource", resource, "error", err)
			continue
		}
		if !ok {
			slog.Warn("resource exhausted, dispatching without it",
				"incident_id", inc.ID, "resource", resource, "requested", quantity)
			d.appendLog(ctx, models.DispatchEntry{
				IncidentID: inc.ID,
				Category:   inc.Category,
				Action:     models.ActionDeployFailed,
				Detail:     fmt.Sprintf("%d %s unavailable", quantity, resource),
				CreatedAt:  now,
			})
			d.publish(events.Event{
				Type:       events.DeployFailed,
				IncidentID: inc.ID,
				Category:   inc.Category,
				Resource:   resource,
				Quantity:   quantity,
				At:         now,
			})
			continue
		}

		d.appendLog(ctx, models.DispatchEntry{
			IncidentID: inc.ID,
			Category:   inc.Category,
			Action:     models.ActionDeployed,
			Detail:     fmt.Sprintf("%d %s", quantity, resource),
			CreatedAt:  now,
		})
		d.publish(events.Event{
			Type:       events.ResourceDeployed,
			IncidentID: inc.ID,
			Category:   inc.Category,
			Resource:   resource,
			Quantity:   quantity,
			At:         now,
		})
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
