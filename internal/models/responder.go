package models

import "time"

type ResponderStatus string

const (
	ResponderAvailable ResponderStatus = "available"
	ResponderBusy      ResponderStatus = "busy"
)

// Responder is a user with a specialization category who can be
// assigned to incidents of that category. Status is busy iff
// ActiveIncidents > 0.
type Responder struct {
	ID              int64
	Name            string
	Category        Category
	Status          ResponderStatus
	ActiveIncidents int
	CreatedAt       time.Time
}

// Available reports whether the responder can take a new assignment.
// A busy responder drops out of the eligible pool even though the model
// tracks multiple concurrent assignments.
func (r *Responder) Available() bool {
	return r.Status == ResponderAvailable && r.ActiveIncidents == 0
}
