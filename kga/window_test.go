package kga

import (
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestWindow(t *testing.T) {
	Convey("Given a freshly seeded window", t, func() {
		w := NewWindow(0.0, 10, 30)

		Convey("MeanError and MetaMean both equal the seed before tau samples", func() {
			So(w.MeanError(), ShouldEqual, 0.0)
			So(w.MetaMean(), ShouldEqual, 0.0)
		})

		Convey("Reward is zero on a freshly seeded window", func() {
			So(w.Reward(), ShouldEqual, 0)
		})
	})

	Convey("Given a window fed constant error for longer than delta+tau", t, func() {
		w := NewWindow(0.0, 10, 30)
		for i := 0; i < 60; i++ {
			w.AppendError([]float64{1.0}, []float64{1.5})
		}

		Convey("Reward is zero since recent error equals baseline error", func() {
			r := w.Reward()
			So(math.Abs(r), ShouldBeLessThan, 1e-9)
		})
	})

	Convey("Given a window whose error is decreasing (learning progress)", t, func() {
		w := NewWindow(5.0, 5, 10)
		for i := 0; i < 10; i++ {
			w.AppendError([]float64{0}, []float64{5.0})
		}
		for i := 0; i < 5; i++ {
			w.AppendError([]float64{0}, []float64{0.1})
		}

		Convey("Reward is positive: meta (older, larger) error exceeds recent error", func() {
			So(w.Reward(), ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given a window whose error is increasing (forgetting)", t, func() {
		w := NewWindow(0.1, 5, 10)
		for i := 0; i < 10; i++ {
			w.AppendError([]float64{0}, []float64{0.1})
		}
		for i := 0; i < 5; i++ {
			w.AppendError([]float64{0}, []float64{5.0})
		}

		Convey("Reward is negative: recent error exceeds older baseline error", func() {
			So(w.Reward(), ShouldBeLessThan, 0)
		})
	})

	Convey("Clone is independent of the original", t, func() {
		w := NewWindow(0.0, 5, 5)
		w.AppendError([]float64{0}, []float64{1})
		clone := w.Clone()

		w.AppendError([]float64{0}, []float64{10})
		So(len(clone.errors), ShouldEqual, 2)
		So(len(w.errors), ShouldEqual, 3)
	})
}
