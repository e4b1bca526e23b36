package varbus

import "sync"

// Bus is a thread-safe set of named scalar slots shared between engines
// (spec §2). Readers accept possibly-stale values (last-writer-wins); the
// bus itself only guarantees that Get/Set never race (spec §5).
type Bus struct {
	mu    sync.RWMutex
	slots map[string]*AtomicFloat64
}

// NewBus returns an empty variable bus.
func NewBus() *Bus {
	return &Bus{slots: make(map[string]*AtomicFloat64)}
}

// Slot returns the named slot, creating it with an initial value of 0 if it
// does not yet exist. Slot is the get-or-create entry point used by
// inter-node links wired up by the supervisor.
func (b *Bus) Slot(name string) *AtomicFloat64 {
	b.mu.RLock()
	slot, ok := b.slots[name]
	b.mu.RUnlock()
	if ok {
		return slot
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if slot, ok = b.slots[name]; ok {
		return slot
	}
	slot = NewAtomicFloat64(0)
	b.slots[name] = slot
	return slot
}

// Get returns the named slot's current value, and false if the slot has
// never been created.
func (b *Bus) Get(name string) (float64, bool) {
	b.mu.RLock()
	slot, ok := b.slots[name]
	b.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return slot.AtomicRead(), true
}

// Set stores val in the named slot, creating it if necessary.
func (b *Bus) Set(name string, val float64) {
	b.Slot(name).AtomicSet(val)
}

// Names returns the current set of slot names, in no particular order.
func (b *Bus) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.slots))
	for name := range b.slots {
		names = append(names, name)
	}
	return names
}
