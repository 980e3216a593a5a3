package models

import (
	"strings"
	"time"
)

// Priority is the operational urgency of an incident. P1 is the most
// urgent; lower numeric values are more urgent.
type Priority int

const (
	PriorityCritical Priority = 1 // P1
	PriorityHigh     Priority = 2 // P2
	PriorityMedium   Priority = 3 // P3
	PriorityLow      Priority = 4 // P4
	PriorityMinimal  Priority = 5 // P5
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "Critical"
	case PriorityHigh:
		return "High"
	case PriorityMedium:
		return "Medium"
	case PriorityLow:
		return "Low"
	case PriorityMinimal:
		return "Minimal"
	default:
		return "Unknown"
	}
}

func (p Priority) IsValid() bool {
	return p >= PriorityCritical && p <= PriorityMinimal
}

// Escalate moves the priority one step toward P1. P1 is a ceiling.
func (p Priority) Escalate() Priority {
	if p <= PriorityCritical {
		return PriorityCritical
	}
	return p - 1
}

func ParsePriority(s string) Priority {
	switch strings.ToLower(s) {
	case "critical", "p1":
		return PriorityCritical
	case "high", "p2":
		return PriorityHigh
	case "medium", "p3":
		return PriorityMedium
	case "low", "p4":
		return PriorityLow
	case "minimal", "p5":
		return PriorityMinimal
	default:
		return 0
	}
}

// Status is the lifecycle state of an incident.
// pending -> ongoing -> solved, no skips, no way back from solved.
type Status string

const (
	StatusPending Status = "pending"
	StatusOngoing Status = "ongoing"
	StatusSolved  Status = "solved"
)

func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusOngoing || s == StatusSolved
}

// Category is the broad classification an incident type belongs to.
// The full set is defined by the reference catalog; the constants below
// are the categories the auto-deployment rules reference.
type Category string

const (
	CategoryMedical Category = "medical"
	CategoryFire    Category = "fire"
	CategoryPolice  Category = "police"
	CategoryTraffic Category = "traffic"
	CategoryGeneral Category = "general" // fallback for unknown incident types
)

// Facts are the reported answers captured with an incident. Keys are
// question keys from the intake form; values are free-text responses.
type Facts map[string]string

const FactInjured = "is_anyone_injured"

// InjuryReported reports whether the injury fact was answered
// affirmatively. Intake historically accepted "yes"/"y" answers, so any
// response starting with "y" (or "true") counts.
func (f Facts) InjuryReported() bool {
	v := strings.ToLower(strings.TrimSpace(f[FactInjured]))
	return v == "true" || strings.HasPrefix(v, "y")
}

type Incident struct {
	ID          int64
	Type        string   // incident-type key, e.g. "cardiac_arrest"
	Category    Category // derived from Type at creation, immutable
	Priority    Priority
	Status      Status
	Location    string
	Description string
	ReporterID  int64
	ResponderID *int64 // nil until assigned
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
