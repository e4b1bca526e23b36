package robot

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestAdapterActuateAndReport(t *testing.T) {
	Convey("Given a single-axis continuous adapter", t, func() {
		a := New("dev0",
			[]Variable{{Name: "sensor", Min: 0, Max: 1000}},
			[]Variable{{Name: "actuator", Min: 0, Max: 255}},
			nil, 0)

		Convey("ActuateValues clamps out-of-range actions", func() {
			vals, err := a.ActuateValues([]float64{300})
			So(err, ShouldBeNil)
			So(vals["actuator"], ShouldEqual, 255)
		})

		Convey("ReportState reads named sensor values into S", func() {
			s, err := a.ReportState(map[string]float64{"sensor": 42})
			So(err, ShouldBeNil)
			So(s, ShouldResemble, []float64{42.0})
		})

		Convey("ReportState fails on a missing variable", func() {
			_, err := a.ReportState(map[string]float64{})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestAdapterContinuousCandidates(t *testing.T) {
	Convey("Given a continuous adapter around m0=100", t, func() {
		a := New("dev0", nil,
			[]Variable{{Name: "actuator", Min: 0, Max: 255}},
			nil, 0)

		cands, err := a.GetPossibleActions([]float64{100}, nil, 10)
		So(err, ShouldBeNil)

		Convey("All n candidates are produced and clipped to range", func() {
			So(len(cands), ShouldEqual, 10)
			for _, c := range cands {
				So(c[0], ShouldBeBetween, -1, 256)
			}
		})
	})

	Convey("Given a busy axis, candidates pin it to m0", t, func() {
		a := New("dev0", nil,
			[]Variable{{Name: "actuator", Min: 0, Max: 255}},
			[]BusyVariable{{AxisIndex: 0, Name: "cycling"}}, 0)

		cands, err := a.GetPossibleActions([]float64{100}, map[string]float64{"cycling": 1}, 5)
		So(err, ShouldBeNil)
		for _, c := range cands {
			So(c[0], ShouldEqual, 100)
		}
	})
}

func TestAdapterDiscreteCandidates(t *testing.T) {
	Convey("Given a 2-axis discrete adapter with 4 levels", t, func() {
		a := New("dev0", nil,
			[]Variable{{Name: "tilt", Min: 0, Max: 3}, {Name: "pan", Min: 0, Max: 3}},
			nil, 4)

		cands, err := a.GetPossibleActions([]float64{0, 0}, nil, 0)
		So(err, ShouldBeNil)

		Convey("Exactly k^d candidates are enumerated, covering every digit combination", func() {
			So(len(cands), ShouldEqual, 16)
			seen := map[[2]float64]bool{}
			for _, c := range cands {
				seen[[2]float64{c[0], c[1]}] = true
			}
			So(len(seen), ShouldEqual, 16)
		})
	})
}
