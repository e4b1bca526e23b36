package transport

import (
	"fmt"
	"sync"
	"time"
)

// DynamicsFunc computes a device's sensed variables given the variables most
// recently actuated on it. Tests plug in whatever S' = f(M) relationship a
// scenario needs (spec §8 scenarios S1-S3).
type DynamicsFunc func(device string, actuated map[string]float64) map[string]float64

type pendingCmd struct {
	device string
	kind   string
	values map[string]float64
}

// FakeFacade is an in-memory Facade used by engine/barrier/supervisor tests
// in place of the out-of-scope serial/USB transport. It preserves the
// contract's batching and freshness semantics: EnterCommand queues FIFO,
// SendCommands applies every queued command in enqueue order (spec §5), and
// GetInputStates reports fresh=false for any device forced stale or not yet
// refreshed since the last read.
type FakeFacade struct {
	mu       sync.Mutex
	devices  []string
	dynamics DynamicsFunc

	pending []pendingCmd

	actuated  map[string]map[string]float64
	sensed    map[string]map[string]float64
	refreshed map[string]bool
	forceStale map[string]bool
}

// NewFakeFacade returns a fake transport for the given devices, whose sensed
// values are derived from actuated values by dynamics.
func NewFakeFacade(devices []string, dynamics DynamicsFunc) *FakeFacade {
	f := &FakeFacade{
		devices:    append([]string(nil), devices...),
		dynamics:   dynamics,
		actuated:   make(map[string]map[string]float64),
		sensed:     make(map[string]map[string]float64),
		refreshed:  make(map[string]bool),
		forceStale: make(map[string]bool),
	}
	for _, d := range devices {
		f.actuated[d] = make(map[string]float64)
		f.sensed[d] = make(map[string]float64)
	}
	return f
}

// SetStale forces device to report fresh=false on subsequent
// GetInputStates calls, simulating a transport that can't keep up (spec §8
// scenario S4). Pass false to clear it.
func (f *FakeFacade) SetStale(device string, stale bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forceStale[device] = stale
}

func (f *FakeFacade) EnterCommand(device, kind string, values map[string]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.actuated[device]; !ok {
		return fmt.Errorf("transport: unknown device %q", device)
	}
	cp := make(map[string]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	f.pending = append(f.pending, pendingCmd{device: device, kind: kind, values: cp})
	return nil
}

func (f *FakeFacade) SendCommands() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Apply in enqueue order, so later writes to the same variable win (spec §5).
	for _, cmd := range f.pending {
		dst := f.actuated[cmd.device]
		for k, v := range cmd.values {
			dst[k] = v
		}
	}
	f.pending = f.pending[:0]
	return nil
}

func (f *FakeFacade) UpdateInputStates(devices []string, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, d := range devices {
		actuated, ok := f.actuated[d]
		if !ok {
			continue
		}
		if f.dynamics != nil {
			f.sensed[d] = f.dynamics(d, actuated)
		}
		f.refreshed[d] = !f.forceStale[d]
	}
	return nil
}

func (f *FakeFacade) GetInputStates(devices []string, vars []string, _ time.Duration) (map[string]Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]Sample, len(devices))
	for _, d := range devices {
		sensed, ok := f.sensed[d]
		if !ok {
			out[d] = Sample{Values: map[string]float64{}, Fresh: false}
			continue
		}
		values := make(map[string]float64, len(vars))
		for _, v := range vars {
			values[v] = sensed[v]
		}
		out[d] = Sample{Values: values, Fresh: f.refreshed[d]}
		// Freshness is relative to "since the last call" (spec §6); consume it.
		f.refreshed[d] = false
	}
	return out, nil
}

func (f *FakeFacade) DeviceNames() []string {
	return append([]string(nil), f.devices...)
}
