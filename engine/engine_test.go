package engine

import (
	"context"
	"math/rand"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"cbla/barrier"
	"cbla/config"
	"cbla/regressor"
	"cbla/robot"
	"cbla/transport"
	"cbla/tree"
)

func TestWeightedChoiceSub(t *testing.T) {
	Convey("Given a weight vector with a clear maximum", t, func() {
		weights := []float64{1, 1, 1, 100}
		r := rand.New(rand.NewSource(1))

		Convey("Every candidate retains a positive floor probability", func() {
			counts := make([]int, len(weights))
			const trials = 20000
			for i := 0; i < trials; i++ {
				idx := weightedChoiceSub(weights, 0.1, r)
				counts[idx]++
			}
			for _, c := range counts {
				So(c, ShouldBeGreaterThan, 0)
			}
		})

		Convey("The highest-weight candidate is chosen most often", func() {
			counts := make([]int, len(weights))
			const trials = 5000
			for i := 0; i < trials; i++ {
				idx := weightedChoiceSub(weights, 0.05, r)
				counts[idx]++
			}
			max := 0
			for _, c := range counts {
				if c > max {
					max = c
				}
			}
			So(counts[3], ShouldEqual, max)
		})
	})

	Convey("Given all-equal weights", t, func() {
		weights := []float64{5, 5, 5}
		r := rand.New(rand.NewSource(2))

		Convey("Selection is roughly uniform", func() {
			counts := make([]int, len(weights))
			const trials = 6000
			for i := 0; i < trials; i++ {
				counts[weightedChoiceSub(weights, 0.1, r)]++
			}
			for _, c := range counts {
				So(c, ShouldBeBetween, trials/len(weights)/2, trials/len(weights)*2)
			}
		})
	})
}

func TestInterpolateRate(t *testing.T) {
	Convey("Given the default reward/rate ranges", t, func() {
		rewardRange := [2]float64{0.01, 100.0}
		rateRange := [2]float64{0.5, 0.01}

		Convey("Low reward yields a rate near the high end", func() {
			rate := interpolateRate(0.01, rewardRange, rateRange)
			So(rate, ShouldAlmostEqual, 0.5, 1e-6)
		})

		Convey("High reward yields a rate near the low end", func() {
			rate := interpolateRate(100.0, rewardRange, rateRange)
			So(rate, ShouldAlmostEqual, 0.01, 1e-6)
		})

		Convey("Out-of-range reward clamps at the edges", func() {
			rate := interpolateRate(1000.0, rewardRange, rateRange)
			So(rate, ShouldAlmostEqual, 0.01, 1e-6)
		})
	})
}

func linearDynamics(_ string, actuated map[string]float64) map[string]float64 {
	return map[string]float64{"sensor": 3*actuated["actuator"] - 1}
}

func TestEngineRunScalarLearner(t *testing.T) {
	Convey("Given a single engine over a linear sensor (scenario S1)", t, func() {
		facade := transport.NewFakeFacade([]string{"dev0"}, linearDynamics)
		sb := barrier.NewSyncBarrier(1, facade, []string{"dev0"}, []string{"sensor"},
			time.Second, time.Millisecond, time.Millisecond, nil)
		adapter := robot.New("dev0",
			[]robot.Variable{{Name: "sensor", Min: 0, Max: 1000}},
			[]robot.Variable{{Name: "actuator", Min: 0, Max: 255}},
			nil, 0)

		cfg := config.Default()
		cfg.SimDuration = 300
		cfg.SplitThres = 80
		cfg.LoopDelay = 0

		tr := tree.New(1, 1, tree.Config{
			RegressorFactory:     regressor.NewLinearRegressor,
			RewardSmoothing:      cfg.RewardSmoothing,
			SplitThres:           cfg.SplitThres,
			SplitThresGrowthRate: cfg.SplitThresGrowthRate,
			SplitQualityDecay:    cfg.SplitQualityDecay,
			SplitLockCountThres:  cfg.SplitLockCountThres,
			MeanErrorThres:       cfg.MeanErrThres,
			MaxTrainingDataNum:   cfg.MaxTrainingDataNum,
			KGADelta:             cfg.KGADelta,
			KGATau:               cfg.KGATau,
		})

		e := New("e0", cfg, adapter, sb, tr, nil, 42)

		Convey("Run completes without error and the tree splits", func() {
			err := e.Run(context.Background(), []float64{0}, []float64{0})
			So(err, ShouldBeNil)
			So(tr.LeafCount(), ShouldBeGreaterThan, 1)
		})
	})
}

func TestEngineAdaptiveExploringRate(t *testing.T) {
	Convey("Given an engine with adaptive exploring rate enabled and rate 1.0 (always exploring)", t, func() {
		facade := transport.NewFakeFacade([]string{"dev0"}, linearDynamics)
		sb := barrier.NewSyncBarrier(1, facade, []string{"dev0"}, []string{"sensor"},
			time.Second, time.Millisecond, time.Millisecond, nil)
		adapter := robot.New("dev0",
			[]robot.Variable{{Name: "sensor", Min: 0, Max: 1000}},
			[]robot.Variable{{Name: "actuator", Min: 0, Max: 255}},
			nil, 0)

		cfg := config.Default()
		cfg.SimDuration = 50
		cfg.LoopDelay = 0
		cfg.ExploringRate = 1.0
		cfg.AdaptExploringRate = true

		tr := tree.New(1, 1, tree.Config{
			RegressorFactory:     regressor.NewLinearRegressor,
			RewardSmoothing:      cfg.RewardSmoothing,
			SplitThres:           cfg.SplitThres,
			SplitThresGrowthRate: cfg.SplitThresGrowthRate,
			SplitQualityDecay:    cfg.SplitQualityDecay,
			SplitLockCountThres:  cfg.SplitLockCountThres,
			MeanErrorThres:       cfg.MeanErrThres,
			MaxTrainingDataNum:   cfg.MaxTrainingDataNum,
			KGADelta:             cfg.KGADelta,
			KGATau:               cfg.KGATau,
		})

		e := New("e0", cfg, adapter, sb, tr, nil, 42)
		initialRate := e.currentExploringRate()

		Convey("The exploring rate changes across ticks", func() {
			err := e.Run(context.Background(), []float64{0}, []float64{0})
			So(err, ShouldBeNil)
			So(e.currentExploringRate(), ShouldNotEqual, initialRate)
		})
	})
}
