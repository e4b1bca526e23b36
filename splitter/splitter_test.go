package splitter

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFit(t *testing.T) {
	Convey("Given a batch cleanly separable along one axis", t, func() {
		var x, y [][]float64
		for m := 0.0; m < 40; m++ {
			label := 1.0
			if m >= 20 {
				label = 9.0
			}
			x = append(x, []float64{m})
			y = append(y, []float64{label})
		}

		Convey("Fit finds the separating threshold with high quality", func() {
			s, quality := Fit(x, y)
			So(s.Axis, ShouldEqual, 0)
			So(s.Threshold, ShouldBeBetween, 18.5, 20.5)
			So(quality, ShouldBeGreaterThan, 0.9)
		})

		Convey("Classify routes points to the correct side", func() {
			s, _ := Fit(x, y)
			So(s.Classify([]float64{0}), ShouldBeFalse)
			So(s.Classify([]float64{39}), ShouldBeTrue)
		})
	})

	Convey("Given a batch with constant labels", t, func() {
		x := [][]float64{{0}, {1}, {2}, {3}}
		y := [][]float64{{5}, {5}, {5}, {5}}

		Convey("Quality is zero since splitting cannot help", func() {
			_, quality := Fit(x, y)
			So(quality, ShouldEqual, 0)
		})
	})

	Convey("Given a batch with identical rows on every axis", t, func() {
		x := [][]float64{{1, 1}, {1, 1}, {1, 1}}
		y := [][]float64{{1}, {2}, {3}}

		Convey("No candidate threshold separates anything, quality is zero", func() {
			_, quality := Fit(x, y)
			So(quality, ShouldEqual, 0)
		})
	})

	Convey("Given multi-dimensional input where only one axis is informative", t, func() {
		var x, y [][]float64
		for m := 0.0; m < 30; m++ {
			noise := 0.0
			if int(m)%2 == 0 {
				noise = 1.0
			}
			label := 1.0
			if m >= 15 {
				label = 100.0
			}
			x = append(x, []float64{noise, m})
			y = append(y, []float64{label})
		}

		Convey("Fit picks the informative axis", func() {
			s, quality := Fit(x, y)
			So(s.Axis, ShouldEqual, 1)
			So(quality, ShouldBeGreaterThan, 0.9)
		})
	})
}
