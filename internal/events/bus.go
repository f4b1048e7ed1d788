// Package events provides a small in-process observer bus for backup
// lifecycle notifications. The bus is an explicit instance created at
// startup and passed where needed; there is no package-level global.
package events

import (
	"sync"
	"time"
)

// Type identifies a backup lifecycle event.
type Type string

const (
	BackupStarted   Type = "backup_started"
	BackupCompleted Type = "backup_completed"
	BackupFailed    Type = "backup_failed"
	RestoreStarted  Type = "restore_started"
	RestoreDone     Type = "restore_completed"
	RestoreFailed   Type = "restore_failed"
)

// Event carries what happened and when. Err is set only for failure types.
type Event struct {
	Type     Type
	At       time.Time
	Filename string
	Err      error
}

// Bus fans events out to subscribers. Safe for concurrent use.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns its unsubscribe function. Unsubscribing
// twice is harmless.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers e to every active subscriber. Callbacks run outside the
// bus lock so a subscriber may unsubscribe itself.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}
