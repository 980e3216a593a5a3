package models

import "time"

// ResourceType is a scarce unit type with a fixed capacity.
// Invariant: 0 <= Available <= Total, and Available plus the sum of
// outstanding deployed quantities equals Total at all times.
type ResourceType struct {
	Name      string
	Total     int
	Available int
}

// Deployment is an allocation of resource units to an incident.
// ReturnedAt == nil marks the deployment as outstanding.
type Deployment struct {
	ID         int64
	IncidentID int64
	Resource   string
	Quantity   int
	DeployedAt time.Time
	ReturnedAt *time.Time
}

func (d *Deployment) Outstanding() bool {
	return d.ReturnedAt == nil
}
