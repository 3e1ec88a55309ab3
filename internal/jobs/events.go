package jobs

import (
	"sync"
	"time"
)

// EventType names a job stream event.
type EventType string

const (
	EventSnapshot  EventType = "snapshot"
	EventProgress  EventType = "progress"
	EventStatus    EventType = "status"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
)

// Event is pushed to subscribers whenever a job record changes.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Job       *Job      `json:"job"`
}

// Terminal reports whether the event closes the stream.
func (e Event) Terminal() bool {
	return e.Type == EventCompleted || e.Type == EventError
}

// Broker fans job events out to per-job subscribers. Slow subscribers miss events rather
// than stall the publisher.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{}
	buffer int
}

// NewBroker returns a broker whose subscriber channels hold buffer events.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{subs: make(map[string]map[chan Event]struct{}), buffer: buffer}
}

// Subscribe registers a listener for jobID. The returned func unregisters and closes the channel.
func (b *Broker) Subscribe(jobID string) (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	set, ok := b.subs[jobID]
	if !ok {
		set = make(map[chan Event]struct{})
		b.subs[jobID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		set, ok := b.subs[jobID]
		if !ok {
			return
		}
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(b.subs, jobID)
		}
	}
	return ch, cancel
}

// Publish delivers evt to every subscriber of its job.
func (b *Broker) Publish(evt Event) {
	if evt.Job == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[evt.Job.JobID] {
		select {
		case ch <- Event{Type: evt.Type, Timestamp: evt.Timestamp, Job: evt.Job.Clone()}:
		default:
		}
	}
}

// Subscribers reports the listener count for jobID.
func (b *Broker) Subscribers(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[jobID])
}
