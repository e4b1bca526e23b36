package barrier

import (
	"sync"
	"time"

	"cbla/transport"
)

// Action is one enqueued actuator-variable change, submitted by an engine
// during its write phase.
type Action struct {
	Device string
	Var    string
	Value  float64
}

// DerivedParamFunc computes rolling-window derived sensor features from the
// read-barrier crossing count, used by sub-sampling nodes (spec §4.7). A
// nil func means no derived params are requested.
type DerivedParamFunc func(crossing int) map[string]any

// SyncBarrier coordinates N engines sharing one transport façade through a
// write phase and a (possibly sub-sampled) read phase, per spec §4.7.
// Grounded on original_source/.../CBLA.py's two-barrier Sync_Barrier (write
// + read, each running its transport action on last arrival) generalized
// with original_source/.../Robot.py's three-barrier sub-sampling variant
// (an added start-read barrier resets per-tick sampling state, and the read
// barrier's action calls UpdateInputStates/GetInputStates on every crossing
// but only marks the sample finished once enough wall-clock time,
// sample_interval, has elapsed since the tick began).
type SyncBarrier struct {
	facade  transport.Facade
	devices []string
	vars    []string

	samplePeriod   time.Duration
	sampleInterval time.Duration
	derivedParam   DerivedParamFunc
	readTimeout    time.Duration

	write     *Barrier
	read      *Barrier
	startRead *Barrier

	actionMu sync.Mutex
	actions  []Action

	sampleMu              sync.Mutex
	sample                map[string]transport.Sample
	t0                    time.Time
	crossingCount         int
	sampleIntervalFinished bool
}

// NewSyncBarrier builds a SyncBarrier for n engines. timeout bounds every
// barrier phase (spec §5 default 1000ms); samplePeriod/sampleInterval
// configure sub-sampled reads (sampleInterval <= samplePeriod disables
// sub-sampling, i.e. every read barrier crossing finishes the sample).
func NewSyncBarrier(n int, facade transport.Facade, devices, vars []string, timeout, samplePeriod, sampleInterval time.Duration, derivedParam DerivedParamFunc) *SyncBarrier {
	sb := &SyncBarrier{
		facade:         facade,
		devices:        devices,
		vars:           vars,
		samplePeriod:   samplePeriod,
		sampleInterval: sampleInterval,
		derivedParam:   derivedParam,
	}
	sb.write = New(n, timeout, sb.flushWrites)
	sb.read = New(n, timeout, sb.refreshInputs)
	sb.startRead = New(n, timeout, sb.resetSampling)
	return sb
}

// Enqueue submits one actuator-variable change for the next write barrier,
// matching Node.actuate's per-variable queuing in the original source.
func (sb *SyncBarrier) Enqueue(device, varName string, value float64) {
	sb.actionMu.Lock()
	sb.actions = append(sb.actions, Action{Device: device, Var: varName, Value: value})
	sb.actionMu.Unlock()
}

// WriteWait blocks until every engine has enqueued its action and the
// batched commands have been flushed to the transport.
func (sb *SyncBarrier) WriteWait() error {
	return sb.write.Wait()
}

// StartReadWait resets per-tick sampling state; every engine must call this
// once before its first ReadWait of a tick (spec §4.7 "start_read_barrier").
func (sb *SyncBarrier) StartReadWait() error {
	return sb.startRead.Wait()
}

// ReadWait blocks until a coherent sample has been fetched for this
// crossing and returns it. done reports whether sample_interval has been
// reached and this is therefore the tick's final crossing.
func (sb *SyncBarrier) ReadWait() (sample map[string]transport.Sample, done bool, err error) {
	err = sb.read.Wait()
	sb.sampleMu.Lock()
	sample, done = sb.sample, sb.sampleIntervalFinished
	sb.sampleMu.Unlock()
	return sample, done, err
}

// flushWrites is the write barrier's last-arrival action: it drains the
// action queue, applies last-write-wins per (device, var) in enqueue
// order, and issues one batched EnterCommand per device followed by a
// single SendCommands (spec §4.7, §5 ordering guarantee).
func (sb *SyncBarrier) flushWrites() error {
	sb.actionMu.Lock()
	items := sb.actions
	sb.actions = nil
	sb.actionMu.Unlock()

	byDevice := make(map[string]map[string]float64)
	order := make([]string, 0, len(sb.devices))
	for _, a := range items {
		m, ok := byDevice[a.Device]
		if !ok {
			m = make(map[string]float64)
			byDevice[a.Device] = m
			order = append(order, a.Device)
		}
		m[a.Var] = a.Value
	}

	for _, d := range order {
		if err := sb.facade.EnterCommand(d, "actuate", byDevice[d]); err != nil {
			return err
		}
	}
	return sb.facade.SendCommands()
}

// resetSampling is the start-read barrier's last-arrival action: it resets
// the sub-sampling crossing counter and clock for a fresh tick.
func (sb *SyncBarrier) resetSampling() error {
	sb.sampleMu.Lock()
	sb.t0 = time.Now()
	sb.crossingCount = 0
	sb.sampleIntervalFinished = false
	sb.sampleMu.Unlock()
	return nil
}

// refreshInputs is the read barrier's last-arrival action: it triggers a
// transport refresh and stores the resulting snapshot for all waiters to
// read, finishing the sample once sample_interval has elapsed since the
// tick's start (or immediately, if sub-sampling isn't in use).
func (sb *SyncBarrier) refreshInputs() error {
	sb.sampleMu.Lock()
	sb.crossingCount++
	elapsed := time.Since(sb.t0)
	finished := sb.sampleInterval <= sb.samplePeriod || elapsed >= sb.sampleInterval
	var derived map[string]any
	if finished && sb.derivedParam != nil {
		derived = sb.derivedParam(sb.crossingCount)
	}
	crossing := sb.crossingCount
	sb.sampleMu.Unlock()

	if err := sb.facade.UpdateInputStates(sb.devices, derived); err != nil {
		return err
	}

	timeout := sb.sampleInterval
	if timeout < 100*time.Millisecond {
		timeout = 100 * time.Millisecond
	}
	sample, err := sb.facade.GetInputStates(sb.devices, sb.vars, timeout)

	sb.sampleMu.Lock()
	sb.sample = sample
	sb.sampleIntervalFinished = finished
	sb.sampleMu.Unlock()

	_ = crossing
	return err
}
