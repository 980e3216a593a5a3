package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"github.com/rafikh/go-emergency-dispatch/internal/catalog"
	"github.com/rafikh/go-emergency-dispatch/internal/events"
	"github.com/rafikh/go-emergency-dispatch/internal/models"
	"github.com/rafikh/go-emergency-dispatch/internal/repository"
	"github.com/rafikh/go-emergency-dispatch/internal/resources"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testEnv struct {
	dispatcher *Dispatcher
	store      *repository.MemoryStore
	ledger     *resources.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	cat, err := catalog.Load("")
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}
	store := repository.NewMemoryStore()
	ledger, err := resources.NewLedger(ctx, store, cat.Inventory())
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	broadcaster := events.NewBroadcaster()

	d := New(store, cat, ledger, broadcaster, Options{})
	d.Start(ctx)
	t.Cleanup(func() {
		d.Stop()
		broadcaster.Close()
		cancel()
	})

	return &testEnv{dispatcher: d, store: store, ledger: ledger}
}

func (e *testEnv) report(t *testing.T, incidentType string, facts models.Facts) *models.Incident {
	t.Helper()
	inc, err := e.dispatcher.ReportIncident(context.Background(), NewIncident{
		Type:        incidentType,
		Location:    "45 River Rd",
		Description: "test report",
		ReporterID:  1,
		Facts:       facts,
	})
	if err != nil {
		t.Fatalf("ReportIncident(%s) failed: %v", incidentType, err)
	}
	return inc
}

func (e *testEnv) responder(t *testing.T, name string, category models.Category) *models.Responder {
	t.Helper()
	r, err := e.dispatcher.RegisterResponder(context.Background(), name, category)
	if err != nil {
		t.Fatalf("RegisterResponder(%s) failed: %v", name, err)
	}
	return r
}

func TestReportIncident_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  NewIncident
	}{
		{"missing type", NewIncident{Location: "a", Description: "b", ReporterID: 1}},
		{"missing location", NewIncident{Type: "burns", Description: "b", ReporterID: 1}},
		{"missing description", NewIncident{Type: "burns", Location: "a", ReporterID: 1}},
		{"missing reporter", NewIncident{Type: "burns", Location: "a", Description: "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.dispatcher.ReportIncident(ctx, tt.req); !IsValidationError(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	// Nothing was persisted by the rejected reports.
	incidents, err := env.dispatcher.ListIncidents(ctx, repository.IncidentFilter{})
	if err != nil {
		t.Fatalf("ListIncidents failed: %v", err)
	}
	if len(incidents) != 0 {
		t.Errorf("expected no incidents after rejected reports, got %d", len(incidents))
	}
}

func TestReportIncident_PriorityCeiling(t *testing.T) {
	env := newTestEnv(t)

	// cardiac_arrest is Critical from the medical table.
	inc := env.report(t, "cardiac_arrest", nil)
	if inc.Category != models.CategoryMedical {
		t.Errorf("expected medical category, got %q", inc.Category)
	}
	if inc.Priority != models.PriorityCritical {
		t.Errorf("expected Critical, got %s", inc.Priority)
	}
	if inc.Status != models.StatusPending {
		t.Errorf("expected pending, got %s", inc.Status)
	}

	// The injury fact cannot escalate past P1.
	injured := env.report(t, "cardiac_arrest", models.Facts{models.FactInjured: "yes"})
	if injured.Priority != models.PriorityCritical {
		t.Errorf("expected Critical ceiling, got %s", injured.Priority)
	}
}

func TestReportIncident_UnknownTypeAccepted(t *testing.T) {
	env := newTestEnv(t)

	inc := env.report(t, "spontaneous_combustion", nil)
	if inc.Category != models.CategoryGeneral {
		t.Errorf("expected general category, got %q", inc.Category)
	}
	if inc.Priority != models.PriorityMedium {
		t.Errorf("expected Medium default, got %s", inc.Priority)
	}
}

func TestAssignResponder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inc := env.report(t, "structure_fire", nil)
	r := env.responder(t, "Engine 3", models.CategoryFire)

	if err := env.dispatcher.AssignResponder(ctx, inc.ID, r.ID); err != nil {
		t.Fatalf("AssignResponder failed: %v", err)
	}

	got, _, err := env.dispatcher.GetIncident(ctx, inc.ID)
	if err != nil {
		t.Fatalf("GetIncident failed: %v", err)
	}
	if got.Status != models.StatusOngoing {
		t.Errorf("expected ongoing, got %s", got.Status)
	}
	if got.ResponderID == nil || *got.ResponderID != r.ID {
		t.Errorf("expected responder %d, got %v", r.ID, got.ResponderID)
	}
	if !got.UpdatedAt.After(inc.UpdatedAt) && !got.UpdatedAt.Equal(inc.UpdatedAt) {
		t.Error("expected updated_at to be refreshed")
	}

	// Responder went busy with one active incident.
	gotR, err := env.store.GetResponder(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetResponder failed: %v", err)
	}
	if gotR.Status != models.ResponderBusy || gotR.ActiveIncidents != 1 {
		t.Errorf("unexpected responder state: %+v", gotR)
	}

	// A busy responder drops out of the eligible pool.
	eligible, err := env.dispatcher.FindEligible(ctx, models.CategoryFire)
	if err != nil {
		t.Fatalf("FindEligible failed: %v", err)
	}
	for _, e := range eligible {
		if e.ID == r.ID {
			t.Error("busy responder still listed as eligible")
		}
	}

	// Fire incidents auto-deploy one fire truck and one ambulance.
	snapshot := env.dispatcher.ResourceStatus()
	if snapshot.Available["fire_trucks"] != 2 {
		t.Errorf("expected 2 fire trucks available, got %d", snapshot.Available["fire_trucks"])
	}
	if snapshot.Available["ambulances"] != 4 {
		t.Errorf("expected 4 ambulances available, got %d", snapshot.Available["ambulances"])
	}
	if snapshot.Deployed[inc.ID]["fire_trucks"] != 1 || snapshot.Deployed[inc.ID]["ambulances"] != 1 {
		t.Errorf("unexpected deployments: %v", snapshot.Deployed[inc.ID])
	}
}

func TestAssignResponder_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inc := env.report(t, "robbery", nil)
	police := env.responder(t, "Patrol 7", models.CategoryPolice)
	medic := env.responder(t, "Medic 1", models.CategoryMedical)

	// Category mismatch.
	if err := env.dispatcher.AssignResponder(ctx, inc.ID, medic.ID); !errors.Is(err, ErrNoEligibleResponder) {
		t.Errorf("expected ErrNoEligibleResponder for category mismatch, got %v", err)
	}

	// Unknown incident / responder.
	if err := env.dispatcher.AssignResponder(ctx, 999, police.ID); !errors.Is(err, repository.ErrIncidentNotFound) {
		t.Errorf("expected ErrIncidentNotFound, got %v", err)
	}
	if err := env.dispatcher.AssignResponder(ctx, inc.ID, 999); !errors.Is(err, repository.ErrResponderNotFound) {
		t.Errorf("expected ErrResponderNotFound, got %v", err)
	}

	// The incident is untouched by all the failures above.
	got, _, err := env.dispatcher.GetIncident(ctx, inc.ID)
	if err != nil {
		t.Fatalf("GetIncident failed: %v", err)
	}
	if got.Status != models.StatusPending || got.ResponderID != nil {
		t.Errorf("incident mutated by failed assignments: %+v", got)
	}

	// Assign, then try a different responder on the ongoing incident.
	if err := env.dispatcher.AssignResponder(ctx, inc.ID, police.ID); err != nil {
		t.Fatalf("AssignResponder failed: %v", err)
	}
	second := env.responder(t, "Patrol 9", models.CategoryPolice)
	if err := env.dispatcher.AssignResponder(ctx, inc.ID, second.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition reassigning ongoing incident, got %v", err)
	}

	// Same responder again is an idempotent no-op.
	if err := env.dispatcher.AssignResponder(ctx, inc.ID, police.ID); err != nil {
		t.Errorf("expected idempotent success, got %v", err)
	}
	gotR, err := env.store.GetResponder(ctx, police.ID)
	if err != nil {
		t.Fatalf("GetResponder failed: %v", err)
	}
	if gotR.ActiveIncidents != 1 {
		t.Errorf("idempotent assign double-counted: %d", gotR.ActiveIncidents)
	}

	// A busy responder cannot take another pending incident.
	other := env.report(t, "assault", nil)
	if err := env.dispatcher.AssignResponder(ctx, other.ID, police.ID); !errors.Is(err, ErrNoEligibleResponder) {
		t.Errorf("expected ErrNoEligibleResponder for busy responder, got %v", err)
	}
}

func TestAssignBest_EmptyPool(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inc := env.report(t, "drowning", nil)
	if _, err := env.dispatcher.AssignBest(ctx, inc.ID); !errors.Is(err, ErrNoEligibleResponder) {
		t.Errorf("expected ErrNoEligibleResponder, got %v", err)
	}

	got, _, err := env.dispatcher.GetIncident(ctx, inc.ID)
	if err != nil {
		t.Fatalf("GetIncident failed: %v", err)
	}
	if got.Status != models.StatusPending {
		t.Errorf("incident left pending pool, status %s", got.Status)
	}
}

func TestResolveIncident(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inc := env.report(t, "structure_fire", nil)
	r := env.responder(t, "Engine 5", models.CategoryFire)
	if err := env.dispatcher.AssignResponder(ctx, inc.ID, r.ID); err != nil {
		t.Fatalf("AssignResponder failed: %v", err)
	}

	// Two outstanding deployments exist (1 fire truck, 1 ambulance).
	if err := env.dispatcher.ResolveIncident(ctx, inc.ID); err != nil {
		t.Fatalf("ResolveIncident failed: %v", err)
	}

	got, _, err := env.dispatcher.GetIncident(ctx, inc.ID)
	if err != nil {
		t.Fatalf("GetIncident failed: %v", err)
	}
	if got.Status != models.StatusSolved {
		t.Errorf("expected solved, got %s", got.Status)
	}

	// Both deployments came back.
	snapshot := env.dispatcher.ResourceStatus()
	if snapshot.Available["fire_trucks"] != 3 || snapshot.Available["ambulances"] != 5 {
		t.Errorf("resources not returned: %v", snapshot.Available)
	}
	if len(snapshot.Deployed) != 0 {
		t.Errorf("expected no outstanding deployments, got %v", snapshot.Deployed)
	}

	// The responder is available again.
	gotR, err := env.store.GetResponder(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetResponder failed: %v", err)
	}
	if gotR.Status != models.ResponderAvailable || gotR.ActiveIncidents != 0 {
		t.Errorf("unexpected responder state after resolve: %+v", gotR)
	}
}

func TestResolveIncident_PendingRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inc := env.report(t, "vandalism", nil)
	if err := env.dispatcher.ResolveIncident(ctx, inc.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	got, _, err := env.dispatcher.GetIncident(ctx, inc.ID)
	if err != nil {
		t.Fatalf("GetIncident failed: %v", err)
	}
	if got.Status != models.StatusPending {
		t.Errorf("status changed by rejected resolve: %s", got.Status)
	}
}

func TestResolveIncident_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inc := env.report(t, "cardiac_arrest", nil)
	r := env.responder(t, "Medic 2", models.CategoryMedical)
	if err := env.dispatcher.AssignResponder(ctx, inc.ID, r.ID); err != nil {
		t.Fatalf("AssignResponder failed: %v", err)
	}

	if err := env.dispatcher.ResolveIncident(ctx, inc.ID); err != nil {
		t.Fatalf("first ResolveIncident failed: %v", err)
	}
	if err := env.dispatcher.ResolveIncident(ctx, inc.ID); err != nil {
		t.Fatalf("second ResolveIncident failed: %v", err)
	}

	// Counters changed exactly once.
	gotR, err := env.store.GetResponder(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetResponder failed: %v", err)
	}
	if gotR.ActiveIncidents != 0 || gotR.Status != models.ResponderAvailable {
		t.Errorf("responder counters double-mutated: %+v", gotR)
	}
	if got := env.dispatcher.ResourceStatus().Available["ambulances"]; got != 5 {
		t.Errorf("expected 5 ambulances after double resolve, got %d", got)
	}
}

func TestAssign_ResourceShortfallDoesNotBlock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Drain all ambulances.
	for i := 0; i < 5; i++ {
		if ok, err := env.ledger.Deploy(ctx, "ambulances", int64(1000+i), 1); err != nil || !ok {
			t.Fatalf("setup deploy failed: ok=%v err=%v", ok, err)
		}
	}

	inc := env.report(t, "cardiac_arrest", nil)
	r := env.responder(t, "Medic 4", models.CategoryMedical)
	if err := env.dispatcher.AssignResponder(ctx, inc.ID, r.ID); err != nil {
		t.Fatalf("assignment blocked by resource shortfall: %v", err)
	}

	got, _, err := env.dispatcher.GetIncident(ctx, inc.ID)
	if err != nil {
		t.Fatalf("GetIncident failed: %v", err)
	}
	if got.Status != models.StatusOngoing {
		t.Errorf("expected ongoing despite shortfall, got %s", got.Status)
	}

	// The shortfall shows up in the dispatch log.
	entries, err := env.dispatcher.ActionsFor(ctx, inc.ID)
	if err != nil {
		t.Fatalf("ActionsFor failed: %v", err)
	}
	var sawFailure bool
	for _, e := range entries {
		if e.Action == models.ActionDeployFailed {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Error("expected a deploy-failure entry in the dispatch log")
	}
}

func TestDispatchLog_Trail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inc := env.report(t, "structure_fire", nil)
	r := env.responder(t, "Engine 1", models.CategoryFire)
	if err := env.dispatcher.AssignResponder(ctx, inc.ID, r.ID); err != nil {
		t.Fatalf("AssignResponder failed: %v", err)
	}
	if err := env.dispatcher.ResolveIncident(ctx, inc.ID); err != nil {
		t.Fatalf("ResolveIncident failed: %v", err)
	}

	entries, err := env.dispatcher.ActionsFor(ctx, inc.ID)
	if err != nil {
		t.Fatalf("ActionsFor failed: %v", err)
	}

	counts := make(map[models.DispatchAction]int)
	for _, e := range entries {
		counts[e.Action]++
	}
	if counts[models.ActionReported] != 1 || counts[models.ActionAssigned] != 1 || counts[models.ActionResolved] != 1 {
		t.Errorf("unexpected trail: %v", counts)
	}
	if counts[models.ActionDeployed] != 2 || counts[models.ActionReturned] != 2 {
		t.Errorf("expected 2 deploy and 2 return entries, got %v", counts)
	}
	if entries[0].Action != models.ActionReported {
		t.Errorf("trail does not start with the report: %s", entries[0].Action)
	}

	recent, err := env.dispatcher.RecentActions(ctx, 3)
	if err != nil {
		t.Fatalf("RecentActions failed: %v", err)
	}
	if len(recent) != 3 || recent[0].Action != models.ActionResolved {
		t.Errorf("unexpected recent actions: %+v", recent)
	}

	if _, err := env.dispatcher.ActionsFor(ctx, 999); !errors.Is(err, repository.ErrIncidentNotFound) {
		t.Errorf("expected ErrIncidentNotFound, got %v", err)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.report(t, "cardiac_arrest", nil)
	env.report(t, "stroke", nil)
	fire := env.report(t, "structure_fire", nil)
	r := env.responder(t, "Engine 2", models.CategoryFire)
	if err := env.dispatcher.AssignResponder(ctx, fire.ID, r.ID); err != nil {
		t.Fatalf("AssignResponder failed: %v", err)
	}

	byCategory, err := env.dispatcher.StatsByCategory(ctx)
	if err != nil {
		t.Fatalf("StatsByCategory failed: %v", err)
	}
	if byCategory[models.CategoryMedical] != 2 || byCategory[models.CategoryFire] != 1 {
		t.Errorf("unexpected category stats: %v", byCategory)
	}

	byStatus, err := env.dispatcher.StatsByStatus(ctx)
	if err != nil {
		t.Fatalf("StatsByStatus failed: %v", err)
	}
	if byStatus[models.StatusPending] != 2 || byStatus[models.StatusOngoing] != 1 {
		t.Errorf("unexpected status stats: %v", byStatus)
	}
}

func TestRegisterResponder_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.dispatcher.RegisterResponder(ctx, "", models.CategoryFire); !IsValidationError(err) {
		t.Errorf("expected validation error for empty name, got %v", err)
	}
	if _, err := env.dispatcher.RegisterResponder(ctx, "Ghost Unit", models.Category("paranormal")); !IsValidationError(err) {
		t.Errorf("expected validation error for unknown category, got %v", err)
	}
}

func TestConcurrentAssign_OneWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inc := env.report(t, "robbery", nil)
	a := env.responder(t, "Patrol 1", models.CategoryPolice)
	b := env.responder(t, "Patrol 2", models.CategoryPolice)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []int64{a.ID, b.ID} {
		wg.Add(1)
		go func(slot int, responderID int64) {
			defer wg.Done()
			errs[slot] = env.dispatcher.AssignResponder(ctx, inc.ID, responderID)
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("unexpected error from losing assignment: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful assignment, got %d", succeeded)
	}

	// Only the winner's counters moved.
	busy := 0
	for _, id := range []int64{a.ID, b.ID} {
		r, err := env.store.GetResponder(ctx, id)
		if err != nil {
			t.Fatalf("GetResponder failed: %v", err)
		}
		if r.ActiveIncidents > 0 {
			busy++
		}
	}
	if busy != 1 {
		t.Errorf("expected exactly one busy responder, got %d", busy)
	}

	// Exactly one police car deployed.
	if got := env.dispatcher.ResourceStatus().Available["police_cars"]; got != 7 {
		t.Errorf("expected 7 police cars available, got %d", got)
	}
}

func TestConcurrentAssign_ResponderNotDoubleBooked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.report(t, "robbery", nil)
	second := env.report(t, "assault", nil)
	r := env.responder(t, "Patrol 3", models.CategoryPolice)

	// Two incidents race for the same responder.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, incidentID := range []int64{first.ID, second.ID} {
		wg.Add(1)
		go func(slot int, id int64) {
			defer wg.Done()
			errs[slot] = env.dispatcher.AssignResponder(ctx, id, r.ID)
		}(i, incidentID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrNoEligibleResponder) {
			t.Errorf("unexpected error from losing assignment: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful assignment, got %d", succeeded)
	}

	gotR, err := env.store.GetResponder(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetResponder failed: %v", err)
	}
	if gotR.ActiveIncidents != 1 || gotR.Status != models.ResponderBusy {
		t.Errorf("responder double-booked: %+v", gotR)
	}

	ongoing := 0
	for _, id := range []int64{first.ID, second.ID} {
		inc, _, err := env.dispatcher.GetIncident(ctx, id)
		if err != nil {
			t.Fatalf("GetIncident failed: %v", err)
		}
		if inc.Status == models.StatusOngoing {
			ongoing++
		}
	}
	if ongoing != 1 {
		t.Errorf("expected exactly one ongoing incident, got %d", ongoing)
	}
}

// failingResponderStore makes the next n UpdateResponder calls fail.
type failingResponderStore struct {
	repository.Store
	failures atomic.Int32
}

func (s *failingResponderStore) UpdateResponder(ctx context.Context, r *models.Responder) error {
	if s.failures.Add(-1) >= 0 {
		return errors.New("simulated storage failure")
	}
	return s.Store.UpdateResponder(ctx, r)
}

func TestResolveIncident_SideEffectFailureRollsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cat, err := catalog.Load("")
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}
	mem := repository.NewMemoryStore()
	store := &failingResponderStore{Store: mem}
	ledger, err := resources.NewLedger(ctx, store, cat.Inventory())
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}

	d := New(store, cat, ledger, nil, Options{})
	d.Start(ctx)
	t.Cleanup(func() {
		d.Stop()
		cancel()
	})

	inc, err := d.ReportIncident(ctx, NewIncident{
		Type: "cardiac_arrest", Location: "a", Description: "b", ReporterID: 1,
	})
	if err != nil {
		t.Fatalf("ReportIncident failed: %v", err)
	}
	r, err := d.RegisterResponder(ctx, "Medic 6", models.CategoryMedical)
	if err != nil {
		t.Fatalf("RegisterResponder failed: %v", err)
	}
	if err := d.AssignResponder(ctx, inc.ID, r.ID); err != nil {
		t.Fatalf("AssignResponder failed: %v", err)
	}

	store.failures.Store(1)
	if err := d.ResolveIncident(ctx, inc.ID); err == nil {
		t.Fatal("expected resolve to fail on responder update error")
	}

	// The status rolled back, so the incident can be resolved again.
	got, _, err := d.GetIncident(ctx, inc.ID)
	if err != nil {
		t.Fatalf("GetIncident failed: %v", err)
	}
	if got.Status != models.StatusOngoing {
		t.Errorf("expected ongoing after rollback, got %s", got.Status)
	}

	if err := d.ResolveIncident(ctx, inc.ID); err != nil {
		t.Fatalf("retry ResolveIncident failed: %v", err)
	}
	got, _, err = d.GetIncident(ctx, inc.ID)
	if err != nil {
		t.Fatalf("GetIncident failed: %v", err)
	}
	if got.Status != models.StatusSolved {
		t.Errorf("expected solved after retry, got %s", got.Status)
	}

	gotR, err := mem.GetResponder(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetResponder failed: %v", err)
	}
	if gotR.Status != models.ResponderAvailable || gotR.ActiveIncidents != 0 {
		t.Errorf("responder not released after retry: %+v", gotR)
	}
	if avail := ledger.Available()["ambulances"]; avail != 5 {
		t.Errorf("expected 5 ambulances after retry, got %d", avail)
	}
}

func TestAuditTrail_WrittenAsync(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inc := env.report(t, "cardiac_arrest", nil)
	r := env.responder(t, "Medic 9", models.CategoryMedical)
	if err := env.dispatcher.AssignResponder(ctx, inc.ID, r.ID); err != nil {
		t.Fatalf("AssignResponder failed: %v", err)
	}
	if err := env.dispatcher.ResolveIncident(ctx, inc.ID); err != nil {
		t.Fatalf("ResolveIncident failed: %v", err)
	}

	// Stop drains the queue.
	env.dispatcher.Stop()

	activities := env.store.Activities()
	if len(activities) < 3 {
		t.Errorf("expected at least 3 activity records, got %d", len(activities))
	}
}
