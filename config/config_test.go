package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDefault(t *testing.T) {
	Convey("Default seeds cbla_expert.py's constants", t, func() {
		cfg := Default()
		So(cfg.SplitThres, ShouldEqual, 600)
		So(cfg.SplitThresGrowthRate, ShouldEqual, 1.5)
		So(cfg.SplitLockCountThres, ShouldEqual, 250)
		So(cfg.KGADelta, ShouldEqual, 10)
		So(cfg.KGATau, ShouldEqual, 30)
		So(cfg.ExploringRateSignal, ShouldEqual, SignalMax)
	})
}

func TestLoad(t *testing.T) {
	Convey("Given a YAML config with an outer kind/def envelope", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "engine.yaml")
		body := `
kind: cblaEngine
def:
  simDuration: 750
  splitThres: 80
  hyperParams:
    - key: custom
      val: 3.5
`
		So(os.WriteFile(path, []byte(body), 0o644), ShouldBeNil)

		cfg, err := Load(path)
		So(err, ShouldBeNil)

		Convey("Typed fields are populated from the inner document", func() {
			So(cfg.SimDuration, ShouldEqual, 750)
			So(cfg.SplitThres, ShouldEqual, 80)
		})

		Convey("Untyped hyperParams still round-trip via the escape hatch", func() {
			So(cfg.GetHyperParamOrDefault("custom", 0), ShouldEqual, 3.5)
			So(cfg.GetHyperParamOrDefault("missing", 42), ShouldEqual, 42)
		})

		Convey("Fields absent from the document keep their defaults", func() {
			So(cfg.KGADelta, ShouldEqual, 10)
		})
	})
}

func TestWithDeadline(t *testing.T) {
	Convey("Given a config with no RunDeadline", t, func() {
		cfg := Default()
		ctx, cancel, err := cfg.WithDeadline(context.Background())
		defer cancel()
		So(err, ShouldBeNil)
		_, hasDeadline := ctx.Deadline()
		So(hasDeadline, ShouldBeFalse)
	})

	Convey("Given a config with a RunDeadline duration", t, func() {
		cfg := Default()
		cfg.RunDeadline = "50ms"
		ctx, cancel, err := cfg.WithDeadline(context.Background())
		defer cancel()
		So(err, ShouldBeNil)
		deadline, hasDeadline := ctx.Deadline()
		So(hasDeadline, ShouldBeTrue)
		So(deadline, ShouldHappenBefore, time.Now().Add(time.Second))
	})
}
