// Package transport defines the façade the engine/barrier layers consume to
// reach the embedded actuator/sensor hardware (spec §6). The real serial/USB
// driver and message framing are out of scope (spec §1); this package only
// specifies and fakes the contract.
package transport

import "time"

// Sample is the last-known value of a device's variables, plus whether it
// was refreshed since the caller's last read (spec §6, "fresh_flag").
type Sample struct {
	Values map[string]float64
	Fresh  bool
}

// Facade abstracts hardware I/O: read named sensor variables, enqueue named
// actuator changes, flush as a batch (spec §2).
type Facade interface {
	// EnterCommand enqueues a change to device's kind-typed variables.
	// Non-blocking: it only appends to the façade's pending-command queue.
	EnterCommand(device, kind string, values map[string]float64) error

	// SendCommands flushes enqueued commands to all devices. Called once
	// per write-barrier cycle by the barrier's last arrival.
	SendCommands() error

	// UpdateInputStates triggers a synchronous refresh of devices' inputs.
	// derivedParams carries any rolling-window feature parameters computed
	// from the barrier's sub-sampling crossing count (spec §4.7); nil when
	// none apply.
	UpdateInputStates(devices []string, derivedParams map[string]any) error

	// GetInputStates returns the last-known sample per device, each tagged
	// with whether it was refreshed since the caller's last read. timeout
	// bounds how long the façade may block obtaining a fresh sample.
	GetInputStates(devices []string, vars []string, timeout time.Duration) (map[string]Sample, error)

	// DeviceNames enumerates the devices reachable through this façade, for
	// barrier/supervisor fan-out.
	DeviceNames() []string
}
