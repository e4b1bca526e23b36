// Package tree implements the region-splitting expert tree (spec §3-§4.2):
// an online-growing binary tree whose leaves each own a regressor, a bounded
// training buffer, a KGA error window, and an action-value estimate.
//
// Grounded on the flat, index-addressed pool design noted in
// 115100-reason's hoeffding.Tree (a single mutex-guarded tree object
// holding typed node values rather than freestanding pointer-linked
// structs): nodes live in a slice and reference children by index, not
// pointer, which avoids recursion-depth and serialization-cycle concerns
// for an online-growing tree.
package tree

import (
	"fmt"
	"log"

	"cbla/errs"
	"cbla/kga"
	"cbla/regressor"
	"cbla/splitter"
)

// Config holds the per-leaf growth-control parameters and model factories a
// Tree is built with, matching cbla_expert.py's Expert default constants.
type Config struct {
	RegressorFactory regressor.Factory

	RewardSmoothing int

	SplitThres             float64
	SplitThresGrowthRate   float64
	SplitQualityThres0     float64
	SplitQualityDecay      float64
	SplitLockCountThres    int
	MeanErrorThres         float64
	MeanError0             float64
	ActionValue0           float64
	MaxTrainingDataNum     int

	KGADelta int
	KGATau   int
}

// DefaultConfig mirrors cbla_expert.py's module-level defaults. The one
// value the original source doesn't document is the root leaf's initial
// split_quality_thres; this repo starts it at 0 so the very first split
// attempt is judged purely on the commit rules (non-empty children), never
// blocked by an arbitrary floor before any quality measurement exists.
func DefaultConfig(factory regressor.Factory) Config {
	return Config{
		RegressorFactory:     factory,
		RewardSmoothing:      1,
		SplitThres:           600,
		SplitThresGrowthRate: 1.5,
		SplitQualityThres0:   0,
		SplitQualityDecay:    0.5,
		SplitLockCountThres:  250,
		MeanErrorThres:       0.015,
		MeanError0:           0,
		ActionValue0:         0,
		MaxTrainingDataNum:   1000,
		KGADelta:             10,
		KGATau:               30,
	}
}

// node is one expert. leftIdx/rightIdx are indices into Tree.pool, or -1 for
// a leaf. Internal nodes own only splitter; leaves own everything else.
type node struct {
	id       uint64
	level    uint
	leftIdx  int
	rightIdx int

	splitter *splitter.Splitter

	trainX [][]float64
	trainY [][]float64

	regressor      regressor.Regressor
	kgaWindow      *kga.Window
	meanError      float64
	actionValue    float64
	actionCount    int
	trainingCount  int
	rewardsHistory []float64

	splitThres           float64
	splitThresGrowthRate float64
	splitQualityThres    float64
	splitQualityDecay    float64
	splitLockCount       int
	splitLockCountThres  int
	meanErrorThres       float64
}

func (n *node) isLeaf() bool { return n.leftIdx < 0 }

// Tree is a single engine's region-splitting expert tree. Per spec §5 a
// tree is single-threaded, owned exclusively by one engine; no locking is
// performed here.
type Tree struct {
	pool   []*node
	cfg    Config
	sDim   int
	mDim   int
	logger *log.Logger
}

// New builds a tree with a single empty root leaf, for a node whose state
// vector has dimension sDim and whose action vector has dimension mDim.
func New(sDim, mDim int, cfg Config) *Tree {
	t := &Tree{cfg: cfg, sDim: sDim, mDim: mDim, logger: log.New(log.Writer(), "[tree] ", log.LstdFlags)}
	t.pool = []*node{t.newLeaf(0, 0, cfg)}
	return t
}

func (t *Tree) newLeaf(id uint64, level uint, cfg Config) *node {
	return &node{
		id:                   id,
		level:                level,
		leftIdx:              -1,
		rightIdx:             -1,
		regressor:            cfg.RegressorFactory(),
		kgaWindow:            kga.NewWindow(cfg.MeanError0, cfg.KGADelta, cfg.KGATau),
		meanError:            cfg.MeanError0,
		actionValue:          cfg.ActionValue0,
		splitThres:           cfg.SplitThres,
		splitThresGrowthRate: cfg.SplitThresGrowthRate,
		splitQualityThres:    cfg.SplitQualityThres0,
		splitQualityDecay:    cfg.SplitQualityDecay,
		splitLockCountThres:  cfg.SplitLockCountThres,
		meanErrorThres:       cfg.MeanErrorThres,
	}
}

func concat(s, m []float64) []float64 {
	x := make([]float64, len(s)+len(m))
	copy(x, s)
	copy(x[len(s):], m)
	return x
}

// route walks internal classify predicates from the root and returns the
// pool index of the leaf owning x. Returns errs.ErrTreeCorruption if any
// internal node along the path violates the two-children invariant.
func (t *Tree) route(x []float64) (int, error) {
	idx := 0
	for {
		if idx < 0 || idx >= len(t.pool) {
			return 0, fmt.Errorf("tree: route reached invalid index %d: %w", idx, errs.ErrTreeCorruption)
		}
		n := t.pool[idx]
		if n.isLeaf() {
			return idx, nil
		}
		if n.leftIdx < 0 || n.rightIdx < 0 {
			return 0, fmt.Errorf("tree: internal node %d missing a child: %w", n.id, errs.ErrTreeCorruption)
		}
		if n.splitter.Classify(x) {
			idx = n.rightIdx
		} else {
			idx = n.leftIdx
		}
	}
}

// Append routes (s⊕m, s1) to its owning leaf, trains the leaf's regressor,
// and if s1Pred is non-nil updates its KGA/reward state, then attempts a
// split (spec §4.1). s1Pred is nil on ticks where no prior prediction
// exists to score (e.g. the very first tick).
func (t *Tree) Append(s, m, s1 []float64, s1Pred []float64) error {
	if len(s) != t.sDim || len(m) != t.mDim || len(s1) != t.sDim {
		return fmt.Errorf("tree: append dimension mismatch: %w", errs.ErrContractViolation)
	}

	x := concat(s, m)
	idx, err := t.route(x)
	if err != nil {
		return err
	}
	n := t.pool[idx]

	n.trainX = append(n.trainX, x)
	n.trainY = append(n.trainY, append([]float64(nil), s1...))
	if max := t.cfg.MaxTrainingDataNum; max > 0 && len(n.trainX) > max {
		over := len(n.trainX) - max
		n.trainX = n.trainX[over:]
		n.trainY = n.trainY[over:]
	}
	n.trainingCount++
	n.actionCount++

	// A regression failure on the current buffer is a no-op: the regressor
	// keeps whatever it last fit (or stays unfit), per §7 RegressionFailure.
	_ = n.regressor.Fit(n.trainX, n.trainY)

	if s1Pred != nil {
		n.kgaWindow.AppendError(s1, s1Pred)
		n.meanError = n.kgaWindow.MeanError()
		reward := n.kgaWindow.Reward()
		n.rewardsHistory = append(n.rewardsHistory, reward)
		if len(n.rewardsHistory) > t.cfg.RewardSmoothing {
			n.rewardsHistory = n.rewardsHistory[len(n.rewardsHistory)-t.cfg.RewardSmoothing:]
		}
		n.actionValue = mean(n.rewardsHistory)
	}

	if err := t.trySplit(idx); err != nil {
		t.logger.Printf("leaf %d: %v", idx, err)
	}
	return nil
}

// Predict routes s⊕m to its leaf and returns the leaf's regression
// estimate, or s unchanged if the leaf's regressor has never been
// successfully fit (the identity fallback of spec §4.1).
func (t *Tree) Predict(s, m []float64) ([]float64, error) {
	idx, err := t.route(concat(s, m))
	if err != nil {
		return nil, err
	}
	n := t.pool[idx]
	if !n.regressor.Fitted() {
		return append([]float64(nil), s...), nil
	}
	return n.regressor.Predict(concat(s, m))
}

// EvaluateAction routes s⊕m to its leaf and returns that leaf's current
// action_value.
func (t *Tree) EvaluateAction(s, m []float64) (float64, error) {
	idx, err := t.route(concat(s, m))
	if err != nil {
		return 0, err
	}
	return t.pool[idx].actionValue, nil
}

// trySplit applies is_splitting()/split() to the leaf at idx (spec §4.2).
// It is a no-op on any node that does not pass is_splitting; split_lock_count
// decrements toward zero on every call while locked. It returns
// errs.ErrSplitRejected if a split was attempted but aborted by a commit
// rule (an empty child or sub-threshold quality); per errs.go this is
// informational only and never propagates past this package.
func (t *Tree) trySplit(idx int) error {
	n := t.pool[idx]
	if !n.isLeaf() {
		return nil
	}
	if n.splitLockCount > 0 {
		n.splitLockCount--
		return nil
	}
	if float64(len(n.trainX)) <= n.splitThres || n.meanError <= n.meanErrorThres {
		return nil
	}

	cand, quality := splitter.Fit(n.trainX, n.trainY)

	var leftX, leftY, rightX, rightY [][]float64
	for i, row := range n.trainX {
		if cand.Classify(row) {
			rightX = append(rightX, row)
			rightY = append(rightY, n.trainY[i])
		} else {
			leftX = append(leftX, row)
			leftY = append(leftY, n.trainY[i])
		}
	}

	if len(leftX) == 0 || len(rightX) == 0 || quality < n.splitQualityThres {
		n.splitLockCount = n.splitLockCountThres
		return errs.ErrSplitRejected
	}

	nextDecay := n.splitQualityDecay * (2 - n.splitQualityDecay)
	nextSplitThres := n.splitThres * n.splitThresGrowthRate
	nextQualityThres := quality * n.splitQualityDecay

	left := t.newChild(n.id, n.level+1, n, leftX, leftY, nextSplitThres, nextQualityThres, nextDecay)
	right := t.newChild(n.id|(1<<n.level), n.level+1, n, rightX, rightY, nextSplitThres, nextQualityThres, nextDecay)

	n.leftIdx = len(t.pool)
	t.pool = append(t.pool, left)
	n.rightIdx = len(t.pool)
	t.pool = append(t.pool, right)

	n.splitter = cand

	// Parent drops its leaf-only state; it is now purely internal.
	n.trainX = nil
	n.trainY = nil
	n.regressor = nil
	n.kgaWindow = nil
	n.rewardsHistory = nil
	n.meanError = 0
	n.actionValue = 0
	n.actionCount = 0
	n.trainingCount = 0
	return nil
}

func (t *Tree) newChild(id uint64, level uint, parent *node, x, y [][]float64, splitThres, qualityThres, decay float64) *node {
	c := &node{
		id:                   id,
		level:                level,
		leftIdx:              -1,
		rightIdx:             -1,
		trainX:               append([][]float64(nil), x...),
		trainY:               append([][]float64(nil), y...),
		regressor:            parent.regressor.Clone(),
		kgaWindow:            parent.kgaWindow.Clone(),
		meanError:            parent.meanError,
		actionValue:          parent.actionValue,
		actionCount:          parent.actionCount,
		trainingCount:        0,
		rewardsHistory:       append([]float64(nil), parent.rewardsHistory...),
		splitThres:           splitThres,
		splitThresGrowthRate: parent.splitThresGrowthRate,
		splitQualityThres:    qualityThres,
		splitQualityDecay:    decay,
		splitLockCountThres:  parent.splitLockCountThres,
		meanErrorThres:       parent.meanErrorThres,
	}
	_ = c.regressor.Fit(c.trainX, c.trainY)
	return c
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// LeafCount returns the number of leaves currently in the tree, used by
// tests to assert split events occurred.
func (t *Tree) LeafCount() int {
	n := 0
	for _, nd := range t.pool {
		if nd.isLeaf() {
			n++
		}
	}
	return n
}

// LeafMeanError returns the mean_error of the leaf that would own (s, m),
// for test assertions against spec §8 scenario thresholds.
func (t *Tree) LeafMeanError(s, m []float64) (float64, error) {
	idx, err := t.route(concat(s, m))
	if err != nil {
		return 0, err
	}
	return t.pool[idx].meanError, nil
}

// LeafSplitterAt returns the axis-aligned threshold owned by the internal
// node at pool index idx, for scenario assertions (e.g. S3's bimodal
// threshold range). ok is false if idx is out of range or not internal.
func (t *Tree) LeafSplitterAt(idx int) (axis int, threshold float64, ok bool) {
	if idx < 0 || idx >= len(t.pool) {
		return 0, 0, false
	}
	n := t.pool[idx]
	if n.isLeaf() {
		return 0, 0, false
	}
	return n.splitter.Axis, n.splitter.Threshold, true
}
