// Package dispatch implements the incident triage and dispatch core:
// the incident lifecycle state machine, responder matching and the
// append-only dispatch log, composed over the resource ledger and the
// reference catalog.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rafikh/go-emergency-dispatch/internal/catalog"
	"github.com/rafikh/go-emergency-dispatch/internal/events"
	"github.com/rafikh/go-emergency-dispatch/internal/models"
	"github.com/rafikh/go-emergency-dispatch/internal/repository"
	"github.com/rafikh/go-emergency-dispatch/internal/resources"
	"github.com/rafikh/go-emergency-dispatch/internal/triage"
	"github.com/rafikh/go-emergency-dispatch/internal/worker"
)

type Dispatcher struct {
	store      repository.Store
	catalog    *catalog.Catalog
	classifier *triage.Classifier
	ledger     *resources.Ledger
	events     *events.Broadcaster // may be nil

	audit *worker.Pool[models.Activity]

	// One mutex per incident: transitions compose the status change,
	// responder counters and resource movements into a single atomic
	// step.
	locks sync.Map // int64 -> *sync.Mutex

	// One mutex per responder: the eligibility check and the counter
	// update must be atomic across incidents, not just within one.
	// Lock order is incident first, then responder.
	responderLocks sync.Map // int64 -> *sync.Mutex
}

type Options struct {
	AuditWorkers int
	AuditBuffer  int
}

func New(store repository.Store, cat *catalog.Catalog, ledger *resources.Ledger, broadcaster *events.Broadcaster, opts Options) *Dispatcher {
	if opts.AuditWorkers < 1 {
		opts.AuditWorkers = 1
	}
	if opts.AuditBuffer < 1 {
		opts.AuditBuffer = 32
	}

	d := &Dispatcher{
		store:      store,
		catalog:    cat,
		classifier: triage.NewClassifier(cat),
		ledger:     ledger,
		events:     broadcaster,
	}
	d.audit = worker.NewPool(opts.AuditWorkers, opts.AuditBuffer, func(ctx context.Context, a models.Activity) {
		if err := store.AppendActivity(ctx, &a); err != nil {
			slog.Error("failed to append activity", "activity", a.Activity, "error", err)
		}
	})
	return d
}

// Start launches the background audit writer.
func (d *Dispatcher) Start(ctx context.Context) {
	d.audit.Start(ctx)
}

// Stop drains and stops the audit writer.
func (d *Dispatcher) Stop() {
	d.audit.Stop()
}

// NewIncident is a citizen report entering the core.
type NewIncident struct {
	Type        string
	Location    string
	Description string
	ReporterID  int64
	Facts       models.Facts
}

// ReportIncident validates the report, derives category and priority
// and creates the incident in pending state. Unknown incident types are
// accepted and classified with defaults.
func (d *Dispatcher) ReportIncident(ctx context.Context, req NewIncident) (*models.Incident, error) {
	switch {
	case req.Type == "":
		return nil, &ValidationError{Field: "type"}
	case req.Location == "":
		return nil, &ValidationError{Field: "location"}
	case req.Description == "":
		return nil, &ValidationError{Field: "description"}
	case req.ReporterID == 0:
		return nil, &ValidationError{Field: "reporter_id"}
	}

	cat, known := d.catalog.CategoryOf(req.Type)
	if !known {
		slog.Debug("unknown incident type, using defaults", "type", req.Type)
	}
	priority := d.classifier.Classify(req.Type, cat, req.Facts)

	now := time.Now().UTC()
	inc := &models.Incident{
		Type:        req.Type,
		Category:    cat,
		Priority:    priority,
		Status:      models.StatusPending,
		Location:    req.Location,
		Description: req.Description,
		ReporterID:  req.ReporterID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.store.CreateIncident(ctx, inc, req.Facts); err != nil {
		return nil, fmt.Errorf("error creating incident: %w", err)
	}

	slog.Info("incident reported",
		"incident_id", inc.ID, "type", inc.Type, "category", inc.Category, "priority", inc.Priority.String())

	d.appendLog(ctx, models.DispatchEntry{
		IncidentID: inc.ID,
		Category:   inc.Category,
		Action:     models.ActionReported,
		Detail:     fmt.Sprintf("priority %s", inc.Priority),
		CreatedAt:  now,
	})
	d.recordActivity("reported incident #%d (%s, %s)", inc.ID, inc.Type, inc.Priority)
	d.publish(events.Event{
		Type:       events.IncidentReported,
		IncidentID: inc.ID,
		Category:   inc.Category,
		Priority:   inc.Priority.String(),
		Status:     inc.Status,
		At:         now,
	})
	return inc, nil
}

// GetIncident returns an incident with its reported facts.
func (d *Dispatcher) GetIncident(ctx context.Context, id int64) (*models.Incident, models.Facts, error) {
	inc, err := d.store.GetIncident(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	facts, err := d.store.IncidentFacts(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading incident facts: %w", err)
	}
	return inc, facts, nil
}

func (d *Dispatcher) ListIncidents(ctx context.Context, f repository.IncidentFilter) ([]models.Incident, error) {
	return d.store.ListIncidents(ctx, f)
}

// ResourceSnapshot is a read-only view of the resource ledger.
type ResourceSnapshot struct {
	Available map[string]int           `json:"available"`
	Totals    map[string]int           `json:"totals"`
	Deployed  map[int64]map[string]int `json:"deployed"`
}

func (d *Dispatcher) ResourceStatus() ResourceSnapshot {
	return ResourceSnapshot{
		Available: d.ledger.Available(),
		Totals:    d.ledger.Totals(),
		Deployed:  d.ledger.Deployed(),
	}
}

func (d *Dispatcher) StatsByCategory(ctx context.Context) (map[models.Category]int, error) {
	return d.store.CountByCategory(ctx)
}

func (d *Dispatcher) StatsByStatus(ctx context.Context) (map[models.Status]int, error) {
	return d.store.CountByStatus(ctx)
}

// ActionsFor returns the dispatch log trail for an incident.
func (d *Dispatcher) ActionsFor(ctx context.Context, incidentID int64) ([]models.DispatchEntry, error) {
	if _, err := d.store.GetIncident(ctx, incidentID); err != nil {
		return nil, err
	}
	return d.store.EntriesForIncident(ctx, incidentID)
}

func (d *Dispatcher) RecentActions(ctx context.Context, n int) ([]models.DispatchEntry, error) {
	return d.store.RecentEntries(ctx, n)
}

// Catalog exposes the reference catalog for read-only directory views.
func (d *Dispatcher) Catalog() *catalog.Catalog {
	return d.catalog
}

func (d *Dispatcher) lockIncident(id int64) func() {
	v, _ := d.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (d *Dispatcher) lockResponder(id int64) func() {
	v, _ := d.responderLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (d *Dispatcher) appendLog(ctx context.Context, e models.DispatchEntry) {
	if err := d.store.AppendEntry(ctx, &e); err != nil {
		slog.Error("failed to append dispatch entry",
			"incident_id", e.IncidentID, "action", e.Action, "error", err)
	}
}

func (d *Dispatcher) recordActivity(format string, args ...any) {
	a := models.Activity{
		Actor:     "dispatch",
		Activity:  fmt.Sprintf(format, args...),
		CreatedAt: time.Now().UTC(),
	}
	if !d.audit.TrySubmit(a) {
		slog.Warn("activity queue full, dropping entry", "activity", a.Activity)
	}
}

func (d *Dispatcher) publish(e events.Event) {
	if d.events != nil {
		d.events.Publish(e)
	}
}
