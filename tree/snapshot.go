package tree

import (
	"log"

	"cbla/errs"
	"cbla/kga"
	"cbla/splitter"
)

// NodeState is the stable, versioned per-node schema used to persist a tree
// (spec §6, §9 "Pickled persistence"): topology plus per-leaf parameter
// vectors, never an opaque model blob.
type NodeState struct {
	ID       uint64
	Level    uint
	LeftIdx  int
	RightIdx int

	// Internal-node fields.
	SplitAxis      int
	SplitThreshold float64

	// Leaf-only fields.
	Coef                 [][]float64
	MeanError            float64
	ActionValue          float64
	ActionCount          int
	TrainingCount        int
	RewardsHistory       []float64
	SplitThres           float64
	SplitThresGrowthRate float64
	SplitQualityThres    float64
	SplitQualityDecay    float64
	SplitLockCount       int
	SplitLockCountThres  int
	MeanErrorThres       float64
}

// coefCarrier is the optional capability a Regressor implementation may
// expose to support snapshotting its fitted parameters as plain data
// instead of serializing the model object itself.
type coefCarrier interface {
	Coef() [][]float64
	LoadCoef([][]float64)
}

// Export returns a structure-plus-parameters snapshot of the tree, suitable
// for YAML serialization (spec §6 snapshot format, §8 property 10, scenario
// S6).
func (t *Tree) Export() []NodeState {
	out := make([]NodeState, len(t.pool))
	for i, n := range t.pool {
		s := NodeState{ID: n.id, Level: n.level, LeftIdx: n.leftIdx, RightIdx: n.rightIdx}
		if !n.isLeaf() {
			s.SplitAxis = n.splitter.Axis
			s.SplitThreshold = n.splitter.Threshold
			out[i] = s
			continue
		}
		if cc, ok := n.regressor.(coefCarrier); ok {
			s.Coef = cc.Coef()
		}
		s.MeanError = n.meanError
		s.ActionValue = n.actionValue
		s.ActionCount = n.actionCount
		s.TrainingCount = n.trainingCount
		s.RewardsHistory = append([]float64(nil), n.rewardsHistory...)
		s.SplitThres = n.splitThres
		s.SplitThresGrowthRate = n.splitThresGrowthRate
		s.SplitQualityThres = n.splitQualityThres
		s.SplitQualityDecay = n.splitQualityDecay
		s.SplitLockCount = n.splitLockCount
		s.SplitLockCountThres = n.splitLockCountThres
		s.MeanErrorThres = n.meanErrorThres
		out[i] = s
	}
	return out
}

// Restore rebuilds a Tree from a previously Exported snapshot. The
// regressor factory must match what the tree was originally configured
// with; training buffers are not restored (they are bounded working state,
// not part of the versioned schema), so a restored leaf's regressor is
// reloaded directly from its coefficient vector rather than re-fit.
func Restore(sDim, mDim int, cfg Config, states []NodeState) (*Tree, error) {
	if len(states) == 0 {
		return nil, errs.ErrContractViolation
	}
	t := &Tree{cfg: cfg, sDim: sDim, mDim: mDim, logger: log.New(log.Writer(), "[tree] ", log.LstdFlags)}
	t.pool = make([]*node, len(states))

	for i, s := range states {
		n := &node{
			id:       s.ID,
			level:    s.Level,
			leftIdx:  s.LeftIdx,
			rightIdx: s.RightIdx,
		}
		if n.leftIdx < 0 {
			n.regressor = cfg.RegressorFactory()
			if cc, ok := n.regressor.(coefCarrier); ok && len(s.Coef) > 0 {
				cc.LoadCoef(s.Coef)
			}
			n.kgaWindow = kga.NewWindow(cfg.MeanError0, cfg.KGADelta, cfg.KGATau)
			n.meanError = s.MeanError
			n.actionValue = s.ActionValue
			n.actionCount = s.ActionCount
			n.trainingCount = s.TrainingCount
			n.rewardsHistory = append([]float64(nil), s.RewardsHistory...)
			n.splitThres = s.SplitThres
			n.splitThresGrowthRate = s.SplitThresGrowthRate
			n.splitQualityThres = s.SplitQualityThres
			n.splitQualityDecay = s.SplitQualityDecay
			n.splitLockCount = s.SplitLockCount
			n.splitLockCountThres = s.SplitLockCountThres
			n.meanErrorThres = s.MeanErrorThres
		} else {
			n.splitter = &splitter.Splitter{Axis: s.SplitAxis, Threshold: s.SplitThreshold}
		}
		t.pool[i] = n
	}
	return t, nil
}
