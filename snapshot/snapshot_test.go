package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"cbla/tree"
)

func TestSinkAppendTick(t *testing.T) {
	Convey("Given a sink over a temp dir", t, func() {
		dir := t.TempDir()
		sink, err := NewSink(dir, "engine0")
		So(err, ShouldBeNil)

		Convey("Appending two tick records produces a readable multi-document log", func() {
			So(sink.AppendTick(TickRecord{Tick: 0, WallClock: time.Now(), Action: []float64{1}, ObservedState: []float64{2}}), ShouldBeNil)
			So(sink.AppendTick(TickRecord{Tick: 1, WallClock: time.Now(), Action: []float64{3}, ObservedState: []float64{4}}), ShouldBeNil)

			body, err := os.ReadFile(filepath.Join(dir, "engine0.ticks.yaml"))
			So(err, ShouldBeNil)
			So(len(body), ShouldBeGreaterThan, 0)
		})
	})
}

func TestSinkTreeSnapshotAtomicity(t *testing.T) {
	Convey("Given a tree snapshot written to a sink", t, func() {
		dir := t.TempDir()
		sink, err := NewSink(dir, "engine0")
		So(err, ShouldBeNil)

		nodes := []tree.NodeState{
			{ID: 0, Level: 0, LeftIdx: -1, RightIdx: -1, MeanError: 0.01, ActionValue: 1.5},
		}
		So(sink.WriteTreeSnapshot(nodes), ShouldBeNil)

		Convey("The written snapshot is immediately fully readable", func() {
			path := filepath.Join(dir, "engine0.tree.yaml")
			snap, err := ReadTreeSnapshot(path)
			So(err, ShouldBeNil)
			So(snap.Version, ShouldEqual, treeSnapshotVersion)
			So(len(snap.Nodes), ShouldEqual, 1)
			So(snap.Nodes[0].ActionValue, ShouldEqual, 1.5)
		})

		Convey("No stray temp file is left behind after a successful write", func() {
			entries, err := os.ReadDir(dir)
			So(err, ShouldBeNil)
			for _, e := range entries {
				So(e.Name(), ShouldNotStartWith, ".tree-snapshot-")
			}
		})
	})
}
