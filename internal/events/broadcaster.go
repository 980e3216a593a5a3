// Package events fans dispatch events out to in-process subscribers
// (the API's event stream, monitoring consumers).
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rafikh/go-emergency-dispatch/internal/models"
)

type EventType string

const (
	IncidentReported EventType = "incident_reported"
	IncidentAssigned EventType = "incident_assigned"
	IncidentSolved   EventType = "incident_solved"
	ResourceDeployed EventType = "resource_deployed"
	DeployFailed     EventType = "resource_deploy_failed"
	ResourceReturned EventType = "resource_returned"
)

type Event struct {
	Type        EventType       `json:"type"`
	IncidentID  int64           `json:"incident_id"`
	Category    models.Category `json:"category,omitempty"`
	Priority    string          `json:"priority,omitempty"`
	Status      models.Status   `json:"status,omitempty"`
	ResponderID *int64          `json:"responder_id,omitempty"`
	Resource    string          `json:"resource,omitempty"`
	Quantity    int             `json:"quantity,omitempty"`
	At          time.Time       `json:"at"`
}

type Broadcaster struct {
	subscribers map[uint64]chan Event
	nextID      atomic.Uint64
	mu          sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan Event),
	}
}

func (b *Broadcaster) Subscribe() (uint64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, 64)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			// Skip slow subscribers
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels, ending their streams.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
