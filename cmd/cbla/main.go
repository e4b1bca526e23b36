/*
cbla runs a set of Curiosity-Based Learning Agent engines over a shared
transport and variable bus. Each engine grows its own expert tree from a
fixed state/action variable mapping, alternating acting, observing,
fitting, and choosing its next action by expected learning progress.

The real hardware transport is out of scope here (spec §1's external
collaborator); this entry point wires engines against an in-memory fake
façade with linear sensor dynamics, useful for exercising the full
supervisor/engine/tree stack without a physical device attached.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"cbla/barrier"
	"cbla/config"
	"cbla/regressor"
	"cbla/robot"
	"cbla/supervisor"
	"cbla/transport"
	"cbla/tree"
	"cbla/varbus"
)

var (
	dbg         *bool
	nnodes      *int
	configPath  *string
	snapshotDir *string
	devices     *string
)

func init() {
	dbg = flag.Bool("debug", false, "debug mode")
	nnodes = flag.Int("nodes", runtime.NumCPU(), "number of engine/device pairs to run")
	configPath = flag.String("config", "", "path to an engine config YAML file (uses built-in defaults if empty)")
	snapshotDir = flag.String("snapshotDir", "./snapshots", "directory for tick history and tree snapshots")
	devices = flag.String("devices", "", "comma-separated device names (defaults to dev0..devN-1)")
	flag.Parse()
}

func deviceNames() []string {
	if *devices != "" {
		return strings.Split(*devices, ",")
	}
	names := make([]string, *nnodes)
	for i := range names {
		names[i] = fmt.Sprintf("dev%d", i)
	}
	return names
}

// linearDynamics is the demo transport's sensor response: sensor tracks
// 3*actuator-1, the same scalar-learner shape spec.md §8's scenario S1
// exercises, so a fresh run reliably produces at least one split.
func linearDynamics(_ string, actuated map[string]float64) map[string]float64 {
	return map[string]float64{"sensor": 3*actuated["actuator"] - 1}
}

func loadConfig() (*config.EngineConfig, error) {
	if *configPath == "" {
		return config.Default(), nil
	}
	return config.Load(*configPath)
}

func runApp() (err error) {
	names := deviceNames()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	facade := transport.NewFakeFacade(names, linearDynamics)

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	runCtx, runCancel, err := cfg.WithDeadline(appCtx)
	if err != nil {
		return err
	}
	defer runCancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		appCancel()
	}()

	sb := barrier.NewSyncBarrier(len(names), facade, names, []string{"sensor"},
		cfg.BarrierTimeout, cfg.SamplePeriod, cfg.SampleInterval, nil)
	sup := supervisor.New(facade, sb, varbus.NewBus(), *snapshotDir)

	for _, dev := range names {
		adapter := robot.New(dev,
			[]robot.Variable{{Name: "sensor", Min: -1e6, Max: 1e6}},
			[]robot.Variable{{Name: "actuator", Min: 0, Max: 255}},
			nil, 0)

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

		if startErr := sup.Start(runCtx, supervisor.EngineSpec{
			ID:            dev,
			Config:        cfg,
			Adapter:       adapter,
			Tree:          tr,
			InitialState:  []float64{0},
			InitialAction: []float64{0},
			Seed:          time.Now().UnixNano(),
		}); startErr != nil {
			return startErr
		}
		if *dbg {
			log.Printf("started engine %s", dev)
		}
	}

	deaths := sup.DeathEvents(runCtx)
	go func() {
		for id := range deaths {
			log.Printf("engine %s exited fatally", id)
		}
	}()

	// A shutdown signal or a configured run deadline both flip every
	// engine's stop flag; absent either, engines run until their own
	// sim_duration elapses (spec §6 "Process control").
	go func() {
		<-runCtx.Done()
		sup.Stop()
	}()

	cancellationBudget := cfg.BarrierTimeout + cfg.LoopDelay + cfg.SampleInterval + 2*time.Second
	joinTimeout := cancellationBudget
	if cfg.SimDuration > 0 {
		joinTimeout += time.Duration(cfg.SimDuration) * (cfg.LoopDelay + cfg.SampleInterval + time.Millisecond)
	} else {
		joinTimeout = 24 * time.Hour
	}
	return sup.Join(joinTimeout)
}

func main() {
	if err := runApp(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
