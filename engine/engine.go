// Package engine implements the per-node CBLA control loop (spec §4.5):
// predict, act, observe, learn, choose, repeat, coordinated with sibling
// engines through a shared barrier and persisted through a snapshot sink.
//
// Grounded on original_source/.../CBLA.py's CBLA_Engine.run (the tick
// sequence, weighted_choice_sub action sampling, and exploring-rate
// adaptation) and on the teacher's reinforcement.alphaMonteCarloVanillaTrain
// for the surrounding per-worker loop/cancellation shape (stop-flag
// polling at the top of each iteration, matching the teacher's done-channel
// guard in agent_worker).
package engine

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"cbla/barrier"
	"cbla/config"
	"cbla/errs"
	"cbla/robot"
	"cbla/snapshot"
	"cbla/tree"
)

// Engine is one node's learning loop. Per spec §5, a tree is owned
// exclusively by its engine; nothing here is meant to be called from
// multiple goroutines except Stop.
type Engine struct {
	ID      string
	cfg     *config.EngineConfig
	adapter *robot.Adapter
	sb      *barrier.SyncBarrier
	tr      *tree.Tree
	sink    *snapshot.Sink
	logger  *log.Logger
	rnd     *rand.Rand

	stopped atomic.Bool

	rateMu        sync.Mutex
	exploringRate float64
}

// New constructs an Engine. seed makes action sampling reproducible within
// a single run, matching spec §1's non-goal "no reproducibility across
// transport reconnects" (deterministic within a run is still useful for
// tests, but not promised across the real transport).
func New(id string, cfg *config.EngineConfig, adapter *robot.Adapter, sb *barrier.SyncBarrier, tr *tree.Tree, sink *snapshot.Sink, seed int64) *Engine {
	return &Engine{
		ID:            id,
		cfg:           cfg,
		adapter:       adapter,
		sb:            sb,
		tr:            tr,
		sink:          sink,
		logger:        log.New(log.Writer(), "[engine "+id+"] ", log.LstdFlags),
		rnd:           rand.New(rand.NewSource(seed)),
		exploringRate: cfg.ExploringRate,
	}
}

// Stop sets the engine's stop flag; the engine exits at the top of its
// next loop iteration or on its next barrier return (spec §5
// cancellation).
func (e *Engine) Stop() { e.stopped.Store(true) }

func (e *Engine) currentExploringRate() float64 {
	e.rateMu.Lock()
	defer e.rateMu.Unlock()
	return e.exploringRate
}

func (e *Engine) setExploringRate(v float64) {
	e.rateMu.Lock()
	e.exploringRate = v
	e.rateMu.Unlock()
}

// Run executes the engine's main loop starting from initial state s0 and
// action m0, until sim_duration ticks elapse, ctx is cancelled, or Stop is
// called. It returns a fatal error (ContractViolation, TreeCorruption) if
// one occurs; recoverable errors are logged and absorbed at the loop
// boundary, per spec §7.
func (e *Engine) Run(ctx context.Context, s0, m0 []float64) error {
	bootstrap, err := e.adapter.GetPossibleActions(m0, nil, 10)
	if err != nil {
		return err
	}

	s := s0
	m := m0
	var s1Pred []float64

	for t := 0; e.cfg.SimDuration <= 0 || t < e.cfg.SimDuration; t++ {
		if e.stopped.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		s1Pred, err = e.tr.Predict(s, m)
		if errs.Fatal(err) {
			return err
		}

		values, err := e.adapter.ActuateValues(m)
		if err != nil {
			return err
		}
		for varName, val := range values {
			e.sb.Enqueue(e.adapter.Device, varName, val)
		}
		if err := e.sb.WriteWait(); err != nil {
			e.logger.Printf("write barrier error: %v", err)
		}

		if e.cfg.LoopDelay > 0 {
			time.Sleep(e.cfg.LoopDelay)
		}

		if e.stopped.Load() {
			return nil
		}

		s1, fresh, err := e.readState(ctx)
		if err != nil {
			e.logger.Printf("read error: %v", err)
			s1 = s
			fresh = false
		}

		if fresh {
			if appendErr := e.tr.Append(s, m, s1, s1Pred); appendErr != nil {
				if errs.Fatal(appendErr) {
					return appendErr
				}
				e.logger.Printf("append error: %v", appendErr)
			}
		} else {
			e.logger.Printf("tick %d: %v, skipping training append", t, errs.ErrStaleSample)
			s1 = s
		}

		candidates, err := e.adapter.GetPossibleActions(m, nil, 150)
		if err != nil {
			return err
		}
		scores := make([]float64, len(candidates))
		for i, cand := range candidates {
			v, evalErr := e.tr.EvaluateAction(s1, cand)
			if errs.Fatal(evalErr) {
				return evalErr
			}
			scores[i] = v
		}

		rate := e.currentExploringRate()
		isExploring := e.rnd.Float64() < rate
		idx := weightedChoiceSub(scores, rate, e.rnd)
		maxScore := maxOf(scores)

		if isExploring && e.cfg.AdaptExploringRate {
			signal := e.exploringSignal(s, m, s1, scores, idx, maxScore)
			newRate := interpolateRate(signal, e.cfg.RewardRange, e.cfg.ExploringRateRange)
			e.setExploringRate(newRate)
		}

		if e.sink != nil && e.cfg.SnapshotPeriod > 0 && (t%e.cfg.SnapshotPeriod == 0 || (e.cfg.SimDuration > 0 && t == e.cfg.SimDuration-1)) {
			e.persist(t, m, s1)
		}

		s = s1
		if t < len(bootstrap) {
			m = bootstrap[t]
		} else if idx >= 0 {
			m = candidates[idx]
		}
	}
	return nil
}

// readState drains the read barrier (possibly multiple sub-sampled
// crossings) and converts the resulting transport sample into an engine
// state vector. fresh is false if any device reported a stale sample.
func (e *Engine) readState(ctx context.Context) (s []float64, fresh bool, err error) {
	if err := e.sb.StartReadWait(); err != nil {
		return nil, false, err
	}
	for {
		sample, done, err := e.sb.ReadWait()
		if err != nil {
			return nil, false, err
		}
		if done {
			values := make(map[string]float64)
			allFresh := true
			for _, smp := range sample {
				for k, v := range smp.Values {
					values[k] = v
				}
				if !smp.Fresh {
					allFresh = false
				}
			}
			s, err := e.adapter.ReportState(values)
			return s, allFresh, err
		}
		select {
		case <-ctx.Done():
			return nil, false, nil
		default:
		}
	}
}

// exploringSignal resolves the "which L drives adaptation" Open Question
// (spec §9) per cfg.ExploringRateSignal.
func (e *Engine) exploringSignal(s, m, s1 []float64, scores []float64, chosenIdx int, maxScore float64) float64 {
	switch e.cfg.ExploringRateSignal {
	case config.SignalChosen:
		if chosenIdx >= 0 && chosenIdx < len(scores) {
			return scores[chosenIdx]
		}
		return maxScore
	case config.SignalRealized:
		v, err := e.tr.EvaluateAction(s, m)
		if err != nil {
			return maxScore
		}
		return v
	default:
		return maxScore
	}
}

func (e *Engine) persist(t int, action, state []float64) {
	nodes := e.tr.Export()
	var regionErrors []float64
	for _, n := range nodes {
		if n.LeftIdx < 0 {
			regionErrors = append(regionErrors, n.MeanError)
		}
	}
	if err := e.sink.AppendTick(snapshot.TickRecord{
		Tick:          t,
		WallClock:     time.Now(),
		Action:        append([]float64(nil), action...),
		ObservedState: append([]float64(nil), state...),
		RegionErrors:  regionErrors,
	}); err != nil {
		e.logger.Printf("tick persist error: %v", err)
	}
	if err := e.sink.WriteTreeSnapshot(nodes); err != nil {
		e.logger.Printf("tree snapshot error: %v", err)
	}
}

func maxOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// weightedChoiceSub samples an index from weights with probability
// proportional to a shifted, floored version of weights, matching
// original_source/.../CBLA.py's weighted_choice_sub: shift by -min(weights),
// add a min_percent floor of max(shifted), then do a cumulative-random
// draw. Falls back to a uniform draw if every shifted+floored weight is
// zero, and returns -1 if weights is empty.
func weightedChoiceSub(weights []float64, minPercent float64, r *rand.Rand) int {
	if len(weights) == 0 {
		return -1
	}
	minW, maxW := weights[0], weights[0]
	for _, w := range weights {
		if w < minW {
			minW = w
		}
		if w > maxW {
			maxW = w
		}
	}

	shifted := make([]float64, len(weights))
	maxShifted := 0.0
	for i, w := range weights {
		shifted[i] = w - minW
		if shifted[i] > maxShifted {
			maxShifted = shifted[i]
		}
	}

	floor := minPercent * maxShifted
	sum := 0.0
	for i := range shifted {
		shifted[i] += floor
		sum += shifted[i]
	}
	if sum <= 0 {
		return r.Intn(len(weights))
	}

	draw := r.Float64() * sum
	for i, w := range shifted {
		draw -= w
		if draw < 0 {
			return i
		}
	}
	return r.Intn(len(weights))
}

// interpolateRate linearly interpolates the exploring rate between
// rateRange over rewardRange, clamped at the range edges, matching
// CBLA_Engine.run's exploring-rate-adaptation branch (with the original's
// write-to-a-local bug fixed: callers must write the result back to engine
// state, which Run does via setExploringRate).
func interpolateRate(signal float64, rewardRange, rateRange [2]float64) float64 {
	e0, e1 := rewardRange[0], rewardRange[1]
	r0, r1 := rateRange[0], rateRange[1]
	if e1 == e0 {
		return r0
	}
	slope := (r1 - r0) / (e1 - e0)
	intercept := r0 - slope*e0
	rate := slope*signal + intercept

	lo, hi := r0, r1
	if lo > hi {
		lo, hi = hi, lo
	}
	if rate < lo {
		rate = lo
	}
	if rate > hi {
		rate = hi
	}
	return rate
}
