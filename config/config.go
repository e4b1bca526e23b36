// Package config loads the per-engine configuration surface (spec §6) from
// YAML, following the outer/inner-document double-unmarshal trick the
// teacher's reinforcement.FromYaml uses: an outer envelope carries a "kind"
// selector and a loosely-typed "def" body, which is re-marshaled and
// unmarshaled into the strongly-typed EngineConfig so a HyperParams-style
// escape hatch can coexist with typed fields.
package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// outerConfig mirrors reinforcement.OuterConfig.
type outerConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// HyperParameter is an escape hatch for experimental knobs EngineConfig's
// typed fields don't yet anticipate, matching reinforcement.HyperParameter.
type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

// ExploringRateSignal selects which score drives exploring-rate adaptation
// (spec §9 Open Question, resolved per SPEC_FULL.md §9).
type ExploringRateSignal string

const (
	SignalMax      ExploringRateSignal = "max"
	SignalChosen   ExploringRateSignal = "chosen"
	SignalRealized ExploringRateSignal = "realized"
)

// EngineConfig is the per-engine configuration surface of spec §6.
type EngineConfig struct {
	SimDuration   int           `yaml:"simDuration"`
	LoopDelay     time.Duration `yaml:"loopDelay"`
	SnapshotPeriod int          `yaml:"snapshotPeriod"`

	ExploringRate       float64              `yaml:"exploringRate"`
	AdaptExploringRate  bool                 `yaml:"adaptExploringRate"`
	ExploringRateSignal ExploringRateSignal  `yaml:"exploringRateSignal"`
	ExploringRateRange  [2]float64           `yaml:"exploringRateRange"`
	RewardRange         [2]float64           `yaml:"rewardRange"`

	SplitThres           float64 `yaml:"splitThres"`
	SplitThresGrowthRate float64 `yaml:"splitThresGrowthRate"`
	SplitLockCountThres  int     `yaml:"splitLockCountThres"`
	SplitQualityDecay    float64 `yaml:"splitQualityDecay"`
	MeanErrThres         float64 `yaml:"meanErrThres"`
	RewardSmoothing      int     `yaml:"rewardSmoothing"`
	MaxTrainingDataNum   int     `yaml:"maxTrainingDataNum"`

	KGADelta int `yaml:"kgaDelta"`
	KGATau   int `yaml:"kgaTau"`

	LearningRate float64 `yaml:"learningRate"`

	BarrierTimeout time.Duration `yaml:"barrierTimeout"`
	SamplePeriod   time.Duration `yaml:"samplePeriod"`
	SampleInterval time.Duration `yaml:"sampleInterval"`

	// HyperParams holds anything the typed fields above don't anticipate,
	// matching reinforcement.TrainingConfig.HyperParams.
	HyperParams []HyperParameter `yaml:"hyperParams"`

	// RunDeadline is a duration string ("2h30m"); empty means no deadline.
	RunDeadline string `yaml:"runDeadline"`
}

// GetHyperParamOrDefault mirrors TrainingConfig.GetHyperParamOrDefault.
func (cfg *EngineConfig) GetHyperParamOrDefault(key string, def float64) float64 {
	for _, kv := range cfg.HyperParams {
		if kv.Key == key {
			return kv.Val
		}
	}
	return def
}

// WithDeadline returns a context bound by RunDeadline, mirroring
// TrainingConfig.WithTrainingDeadline.
func (cfg *EngineConfig) WithDeadline(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if cfg.RunDeadline == "" {
		innerCtx, cancel := context.WithCancel(ctx)
		return innerCtx, cancel, nil
	}
	d, err := time.ParseDuration(cfg.RunDeadline)
	if err != nil {
		return nil, nil, err
	}
	innerCtx, cancel := context.WithTimeout(ctx, d)
	return innerCtx, cancel, nil
}

// Default returns an EngineConfig seeded with cbla_expert.py's default
// constants (spec §4.2-§4.3) plus this repo's concurrency defaults.
func Default() *EngineConfig {
	return &EngineConfig{
		SimDuration:          2000,
		LoopDelay:            0,
		SnapshotPeriod:       1000,
		ExploringRate:        0.05,
		AdaptExploringRate:   false,
		ExploringRateSignal:  SignalMax,
		ExploringRateRange:   [2]float64{0.5, 0.01},
		RewardRange:          [2]float64{0.01, 100.0},
		SplitThres:           600,
		SplitThresGrowthRate: 1.5,
		SplitLockCountThres:  250,
		SplitQualityDecay:    0.5,
		MeanErrThres:         0.015,
		RewardSmoothing:      1,
		MaxTrainingDataNum:   1000,
		KGADelta:             10,
		KGATau:               30,
		LearningRate:         0.25,
		BarrierTimeout:       time.Second,
		SamplePeriod:         10 * time.Millisecond,
		SampleInterval:       10 * time.Millisecond,
	}
}

// Load reads path via viper exactly as reinforcement.FromYaml does: an
// outer envelope is unmarshaled via mapstructure, its "def" body
// re-marshaled to YAML and unmarshaled again into EngineConfig, so loosely
// typed keys under "def" can coexist with EngineConfig's typed fields.
func Load(path string) (*EngineConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	if err := vp.ReadInConfig(); err != nil {
		return nil, err
	}

	outer := &outerConfig{}
	if err := vp.Unmarshal(outer); err != nil {
		return nil, err
	}

	body, err := yaml.Marshal(outer.Def)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(body, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
