// Package splitter implements the region splitter consumed by a leaf expert
// when it decides to split (spec §4.1-§4.2): given a batch of (input, label)
// pairs, choose a hyperplane minimizing weighted child variance and report a
// split quality, equivalent to one CART regression-tree split.
//
// Grounded on padster-eego/trees/forest.go's recursive misclassification-
// reduction split search (same "try every candidate threshold, keep the one
// that reduces the impurity most" shape, generalized from a 0/1
// classification target to a real-valued one) and the weighted post-split
// statistics kept by 115100-reason/classifiers/internal/helpers/split.go.
package splitter

// Splitter is a fitted axis-aligned threshold predicate: Classify reports
// true ("right") when x[Axis] >= Threshold.
type Splitter struct {
	Axis      int
	Threshold float64
}

// Classify implements the classify(x) -> {left, right} predicate of spec
// §4.1. Returning true routes to the right child.
func (s *Splitter) Classify(x []float64) bool {
	return x[s.Axis] >= s.Threshold
}

// Fit searches every input dimension for the threshold that minimizes the
// sample-count-weighted sum of per-child label variance (summed across
// output dimensions), and returns the best Splitter along with its quality:
// the fractional reduction in total sum-of-squared-error the split achieves
// relative to not splitting at all. Quality is in (-inf, 1]; 1 means the
// children are perfectly homogeneous, <=0 means the split doesn't help.
//
// x and y must be non-empty and row-aligned. Fit panics if len(x) == 0;
// callers (tree.Tree.trySplit) must only invoke it once split_thres has
// already gated on a non-trivial buffer size (spec §4.2).
func Fit(x, y [][]float64) (*Splitter, float64) {
	n := len(x)
	inDim := len(x[0])

	parentSSE := sumSquaredError(y, nil)

	best := &Splitter{}
	bestSSE := parentSSE
	found := false

	for axis := 0; axis < inDim; axis++ {
		thresholds := candidateThresholds(x, axis)
		for _, thr := range thresholds {
			leftY, rightY := make([][]float64, 0, n), make([][]float64, 0, n)
			for i, row := range x {
				if row[axis] >= thr {
					rightY = append(rightY, y[i])
				} else {
					leftY = append(leftY, y[i])
				}
			}
			if len(leftY) == 0 || len(rightY) == 0 {
				continue
			}

			sse := sumSquaredError(leftY, nil) + sumSquaredError(rightY, nil)
			if !found || sse < bestSSE {
				found = true
				bestSSE = sse
				best = &Splitter{Axis: axis, Threshold: thr}
			}
		}
	}

	if !found || parentSSE == 0 {
		// No candidate separates the data (e.g. every row ties on every
		// axis), or the parent is already homogeneous: quality 0 signals
		// "don't bother", which is below any positive split_quality_thres.
		return best, 0
	}

	quality := (parentSSE - bestSSE) / parentSSE
	return best, quality
}

// candidateThresholds returns the midpoints between consecutive distinct
// sorted values of x[:,axis], the standard CART candidate-split set.
func candidateThresholds(x [][]float64, axis int) []float64 {
	values := make([]float64, len(x))
	for i, row := range x {
		values[i] = row[axis]
	}
	sortFloats(values)

	thresholds := make([]float64, 0, len(values))
	for i := 1; i < len(values); i++ {
		if values[i] == values[i-1] {
			continue
		}
		thresholds = append(thresholds, (values[i]+values[i-1])/2)
	}
	return thresholds
}

func sortFloats(v []float64) {
	// Insertion sort: candidate buffers are bounded by max_training_data_num,
	// which at its configured value stays small enough that this doesn't
	// need to reach for sort.Float64s.
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j-1] > v[j]; j-- {
			v[j-1], v[j] = v[j], v[j-1]
		}
	}
}

// sumSquaredError returns the total sum of squared deviations from the
// per-column mean, across all output dimensions.
func sumSquaredError(y [][]float64, _ any) float64 {
	if len(y) == 0 {
		return 0
	}
	outDim := len(y[0])
	means := make([]float64, outDim)
	for _, row := range y {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(len(y))
	}

	sse := 0.0
	for _, row := range y {
		for j, v := range row {
			d := v - means[j]
			sse += d * d
		}
	}
	return sse
}
