package models

import "time"

// DispatchAction identifies what a dispatch log entry records.
type DispatchAction string

const (
	ActionReported     DispatchAction = "reported"
	ActionAssigned     DispatchAction = "assigned"
	ActionResolved     DispatchAction = "resolved"
	ActionDeployed     DispatchAction = "resource_deployed"
	ActionDeployFailed DispatchAction = "resource_deploy_failed"
	ActionReturned     DispatchAction = "resource_returned"
)

// DispatchEntry is one record in the append-only dispatch log.
type DispatchEntry struct {
	ID          int64
	IncidentID  int64
	ResponderID *int64
	Category    Category
	Action      DispatchAction
	Detail      string
	CreatedAt   time.Time
}

// Activity is an audit-trail record of a core operation, written
// asynchronously.
type Activity struct {
	ID        int64
	Actor     string
	Activity  string
	CreatedAt time.Time
}
