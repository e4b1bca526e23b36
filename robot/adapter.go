// Package robot implements the per-node adapter between engine-level
// state/action vectors and named transport variables (spec §4.6): variable
// naming/clamping, and candidate-action enumeration around the current
// action.
//
// Grounded on original_source/.../Robot.py's Node/Protocell_Node/
// Tentacle_Arm_Node hierarchy: a continuous 1-D actuator clipped to a
// range, a discrete multi-axis actuator enumerated in base-k digits, and a
// "busy" axis pinned to its current value while an in-progress mechanical
// cycle is running.
package robot

import "cbla/errs"

// Variable names one transport slot and the engine vector index it fills.
type Variable struct {
	Name string
	Min  float64
	Max  float64
}

// BusyVariable pins an action axis to its current value whenever the named
// transport sensor variable reports a positive "busy" reading, so
// exploration never interrupts an in-progress mechanical cycle (spec
// §4.6).
type BusyVariable struct {
	AxisIndex int
	Name      string
}

// Adapter maps an engine's state vector S and action vector M to named
// transport variables and back, and enumerates candidate next actions.
type Adapter struct {
	Device        string
	StateVars     []Variable
	ActionVars    []Variable
	BusyVars      []BusyVariable
	DiscreteLevels int // 0 means continuous; >0 means base-DiscreteLevels digit enumeration.
}

// New constructs an Adapter for one transport device.
func New(device string, stateVars, actionVars []Variable, busyVars []BusyVariable, discreteLevels int) *Adapter {
	return &Adapter{
		Device:         device,
		StateVars:      stateVars,
		ActionVars:     actionVars,
		BusyVars:       busyVars,
		DiscreteLevels: discreteLevels,
	}
}

// ActuateValues builds the named-variable command map for an action vector
// M, clamping each axis into its configured range first.
func (a *Adapter) ActuateValues(m []float64) (map[string]float64, error) {
	if len(m) != len(a.ActionVars) {
		return nil, errs.ErrContractViolation
	}
	out := make(map[string]float64, len(m))
	for i, v := range a.ActionVars {
		out[v.Name] = clip(m[i], v.Min, v.Max)
	}
	return out, nil
}

// ReportState builds the engine state vector S from a snapshot of named
// transport readings.
func (a *Adapter) ReportState(values map[string]float64) ([]float64, error) {
	s := make([]float64, len(a.StateVars))
	for i, v := range a.StateVars {
		val, ok := values[v.Name]
		if !ok {
			return nil, errs.ErrContractViolation
		}
		s[i] = val
	}
	return s, nil
}

// GetPossibleActions enumerates n candidate next actions around the
// current action m0, given the current sensor reading state (used to
// detect busy axes). For a continuous adapter (DiscreteLevels == 0) this
// returns n values per axis, m0-n/2+i for i in 0..n-1 (the half-open range
// [m0-n/2, m0+n/2)), clipped to range,
// matching Robot.py's base Node.get_possible_action. For a discrete
// adapter it enumerates the base-DiscreteLevels digits of
// 0..DiscreteLevels^d-1 across the d action axes, matching
// Tentacle_Arm_Node.
func (a *Adapter) GetPossibleActions(m0 []float64, state map[string]float64, n int) ([][]float64, error) {
	if len(m0) != len(a.ActionVars) {
		return nil, errs.ErrContractViolation
	}

	busy := make([]bool, len(a.ActionVars))
	for _, bv := range a.BusyVars {
		if bv.AxisIndex < 0 || bv.AxisIndex >= len(busy) {
			continue
		}
		if v, ok := state[bv.Name]; ok && v > 0 {
			busy[bv.AxisIndex] = true
		}
	}

	if a.DiscreteLevels > 0 {
		return a.discreteCandidates(m0, busy), nil
	}
	return a.continuousCandidates(m0, busy, n), nil
}

func (a *Adapter) continuousCandidates(m0 []float64, busy []bool, n int) [][]float64 {
	out := make([][]float64, 0, n)
	half := float64(n) / 2
	for i := 0; i < n; i++ {
		cand := make([]float64, len(m0))
		for j, v := range a.ActionVars {
			if busy[j] {
				cand[j] = m0[j]
				continue
			}
			cand[j] = clip(m0[j]-half+float64(i), v.Min, v.Max)
		}
		out = append(out, cand)
	}
	return out
}

func (a *Adapter) discreteCandidates(m0 []float64, busy []bool) [][]float64 {
	d := len(a.ActionVars)
	k := a.DiscreteLevels
	total := 1
	for i := 0; i < d; i++ {
		total *= k
	}

	out := make([][]float64, 0, total)
	for n := 0; n < total; n++ {
		digits := toDigits(n, k, d)
		cand := make([]float64, d)
		for j := range cand {
			if busy[j] {
				cand[j] = m0[j]
				continue
			}
			cand[j] = float64(digits[j])
		}
		out = append(out, cand)
	}
	return out
}

// toDigits returns the base-b representation of n as exactly width digits,
// least-significant digit first, matching Robot.py's toDigits helper.
func toDigits(n, b, width int) []int {
	digits := make([]int, width)
	for i := 0; i < width; i++ {
		digits[i] = n % b
		n /= b
	}
	return digits
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
