package orchestrators

import (
	"sync"
	"time"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

// EventType names a scan lifecycle notification
type EventType string

// Lifecycle events
const (
	EventScanCompleted EventType = "scan.completed"
	EventScanFailed    EventType = "scan.failed"
	EventScanCancelled EventType = "scan.cancelled"
)

// ScanEvent is delivered to every subscriber when a scan reaches a terminal state
type ScanEvent struct {
	Type   EventType
	ScanID string
	At     time.Time
	// Result is a snapshot of the scan at the time of the event
	Result *entities.SecurityScanResult
	// Err is set for scan.failed
	Err error
}

// EventHandler receives scan events. Handlers run synchronously on the
// goroutine that finished the scan and must not block.
type EventHandler func(ScanEvent)

type eventBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]EventHandler
}

func newEventBus() *eventBus {
	return &eventBus{handlers: make(map[int]EventHandler)}
}

// subscribe registers h and returns a func that removes it
func (b *eventBus) subscribe(h EventHandler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

func (b *eventBus) emit(ev ScanEvent) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
