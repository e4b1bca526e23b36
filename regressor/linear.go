package regressor

import (
	"sync"

	"cbla/errs"
)

// LinearRegressor is an ordinary-least-squares multivariate linear fit,
// solved in closed form via the normal equations. Generalizes the teacher's
// single-variable gradient-descent line fit (padster-eego/ml/bestfitline.go)
// to the multi-dimensional x = S⊕M -> y = S' case this tree requires. Fit
// returns RegressionFailure for an empty, mismatched or ragged buffer, or
// when the ridge-stabilized system is still singular to working precision;
// a rank-deficient buffer (e.g. identical or collinear rows) is absorbed by
// the ridge term and fits without error.
type LinearRegressor struct {
	mu     sync.RWMutex
	coef   [][]float64 // coef[j] is the weight row for output dim j, coef[j][0] is the bias term.
	fitted bool
	inDim  int
}

// NewLinearRegressor returns an unfit linear regressor.
func NewLinearRegressor() Regressor {
	return &LinearRegressor{}
}

// Fit solves beta = (X^T X)^-1 X^T Y for each output column independently
// after augmenting x with a leading bias term of 1.
func (lr *LinearRegressor) Fit(x, y [][]float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return errs.ErrRegressionFailure
	}

	inDim := len(x[0])
	outDim := len(y[0])
	p := inDim + 1

	// Build augmented design matrix rows.
	design := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != inDim || len(y[i]) != outDim {
			return errs.ErrRegressionFailure
		}
		aug := make([]float64, p)
		aug[0] = 1
		copy(aug[1:], row)
		design[i] = aug
	}

	xtx := gramMatrix(design, p)
	xty := crossMatrix(design, y, p, outDim)

	// Ridge-stabilize the normal equations: a tiny diagonal term keeps the
	// solve well-posed for near-degenerate buffers (e.g. all-identical
	// rows early in training) without materially biasing a well-posed fit.
	const ridge = 1e-9
	for i := 0; i < p; i++ {
		xtx[i][i] += ridge
	}

	coefT, err := solveLinearSystem(xtx, xty)
	if err != nil {
		return err
	}

	// coefT is p x outDim; transpose into coef[outDim][p] for Predict.
	coef := make([][]float64, outDim)
	for j := 0; j < outDim; j++ {
		coef[j] = make([]float64, p)
		for i := 0; i < p; i++ {
			coef[j][i] = coefT[i][j]
		}
	}

	lr.mu.Lock()
	lr.coef = coef
	lr.fitted = true
	lr.inDim = inDim
	lr.mu.Unlock()
	return nil
}

func (lr *LinearRegressor) Predict(x []float64) ([]float64, error) {
	lr.mu.RLock()
	defer lr.mu.RUnlock()

	if !lr.fitted {
		return nil, errs.ErrRegressionFailure
	}
	if len(x) != lr.inDim {
		return nil, errs.ErrContractViolation
	}

	out := make([]float64, len(lr.coef))
	for j, row := range lr.coef {
		v := row[0]
		for i, xi := range x {
			v += row[i+1] * xi
		}
		out[j] = v
	}
	return out, nil
}

func (lr *LinearRegressor) Fitted() bool {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	return lr.fitted
}

func (lr *LinearRegressor) Clone() Regressor {
	lr.mu.RLock()
	defer lr.mu.RUnlock()

	clone := &LinearRegressor{fitted: lr.fitted, inDim: lr.inDim}
	if lr.coef != nil {
		clone.coef = make([][]float64, len(lr.coef))
		for i, row := range lr.coef {
			clone.coef[i] = append([]float64(nil), row...)
		}
	}
	return clone
}

// Coef returns a copy of the fitted coefficients, coef[outputDim][1+inputDim]
// with the bias term first. Used by the snapshot schema (spec §6, §9
// "Pickled persistence") to serialize a stable parameter vector instead of
// an opaque model blob.
func (lr *LinearRegressor) Coef() [][]float64 {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	out := make([][]float64, len(lr.coef))
	for i, row := range lr.coef {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// LoadCoef restores a regressor from a previously-serialized coefficient
// matrix (spec §6 snapshot reload, §8 property "Snapshot restart").
func (lr *LinearRegressor) LoadCoef(coef [][]float64) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.coef = make([][]float64, len(coef))
	for i, row := range coef {
		lr.coef[i] = append([]float64(nil), row...)
	}
	if len(coef) > 0 {
		lr.inDim = len(coef[0]) - 1
	}
	lr.fitted = len(coef) > 0
}

func gramMatrix(design [][]float64, p int) [][]float64 {
	m := make([][]float64, p)
	for i := range m {
		m[i] = make([]float64, p)
	}
	for _, row := range design {
		for i := 0; i < p; i++ {
			for j := 0; j < p; j++ {
				m[i][j] += row[i] * row[j]
			}
		}
	}
	return m
}

func crossMatrix(design [][]float64, y [][]float64, p, outDim int) [][]float64 {
	m := make([][]float64, p)
	for i := range m {
		m[i] = make([]float64, outDim)
	}
	for r, row := range design {
		for i := 0; i < p; i++ {
			for j := 0; j < outDim; j++ {
				m[i][j] += row[i] * y[r][j]
			}
		}
	}
	return m
}

// solveLinearSystem solves a*sol = b via Gauss-Jordan elimination with
// partial pivoting, returning errs.ErrRegressionFailure if a is singular to
// working precision.
func solveLinearSystem(a, b [][]float64) ([][]float64, error) {
	n := len(a)
	cols := len(b[0])

	// Augment a with b for in-place elimination, operating on copies so the
	// caller's matrices are untouched.
	aug := make([][]float64, n)
	for i := range a {
		aug[i] = make([]float64, n+cols)
		copy(aug[i], a[i])
		copy(aug[i][n:], b[i])
	}

	const eps = 1e-12
	for col := 0; col < n; col++ {
		pivot := col
		maxAbs := abs(aug[col][col])
		for r := col + 1; r < n; r++ {
			if v := abs(aug[r][col]); v > maxAbs {
				pivot, maxAbs = r, v
			}
		}
		if maxAbs < eps {
			return nil, errs.ErrRegressionFailure
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		pivVal := aug[col][col]
		for j := col; j < n+cols; j++ {
			aug[col][j] /= pivVal
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			if factor == 0 {
				continue
			}
			for j := col; j < n+cols; j++ {
				aug[r][j] -= factor * aug[col][j]
			}
		}
	}

	sol := make([][]float64, n)
	for i := range sol {
		sol[i] = append([]float64(nil), aug[i][n:]...)
	}
	return sol, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
