// Package kga implements the Knowledge-Gain Assessor: a rolling window of
// prediction errors that turns raw regression error into a learning-progress
// reward (spec §3 "KGA", §4.3).
package kga

import "math"

// Window tracks a leaf's prediction-error history and derives reward from
// it. Ported directly from cbla_expert.py's KGA class: a single Python list
// of RMS errors, seeded with one initial value, windowed by delta (recent
// error) and tau (meta/baseline error offset).
type Window struct {
	errors []float64
	delta  int
	tau    int
}

// NewWindow seeds the window with an initial error e0, matching KGA.__init__.
func NewWindow(e0 float64, delta, tau int) *Window {
	return &Window{
		errors: []float64{e0},
		delta:  delta,
		tau:    tau,
	}
}

// AppendError computes the RMS difference between actual and predicted
// vectors, appends it to the window, and returns it. actual and predicted
// must be the same length.
func (w *Window) AppendError(actual, predicted []float64) float64 {
	sum := 0.0
	for i := range actual {
		d := actual[i] - predicted[i]
		sum += d * d
	}
	rms := math.Sqrt(sum / float64(len(actual)))
	w.errors = append(w.errors, rms)
	return rms
}

// MeanError is the mean of the most recent delta errors (calc_mean_error).
// Returns +Inf if the window is empty.
func (w *Window) MeanError() float64 {
	if len(w.errors) == 0 {
		return math.Inf(1)
	}
	window := lastN(w.errors, w.delta)
	return mean(window)
}

// MetaMean is the baseline error level against which recent error is
// compared (metaM): the first recorded error until tau samples have
// accumulated, then the mean of the delta-sized window offset by tau.
func (w *Window) MetaMean() float64 {
	if len(w.errors) == 0 {
		return math.Inf(1)
	}
	if len(w.errors) <= w.tau {
		return w.errors[0]
	}
	end := len(w.errors) - w.tau
	start := end - w.delta
	if start < 0 {
		start = 0
	}
	return mean(w.errors[start:end])
}

// Reward trims the window to its last delta+tau entries, then returns
// metaMean() - meanError(), or 0 when both are infinite (the Inf-Inf NaN
// case in the Python source, e.g. before any error has been appended).
func (w *Window) Reward() float64 {
	keep := w.delta + w.tau
	if len(w.errors) > keep {
		w.errors = w.errors[len(w.errors)-keep:]
	}
	reward := w.MetaMean() - w.MeanError()
	if math.IsNaN(reward) {
		return 0
	}
	return reward
}

// Clone returns an independent copy of the window, used when a leaf splits
// and both children inherit the parent's error history (spec §4.2).
func (w *Window) Clone() *Window {
	return &Window{
		errors: append([]float64(nil), w.errors...),
		delta:  w.delta,
		tau:    w.tau,
	}
}

func lastN(v []float64, n int) []float64 {
	if n >= len(v) {
		return v
	}
	return v[len(v)-n:]
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return math.Inf(1)
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
