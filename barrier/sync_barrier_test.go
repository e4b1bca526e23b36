package barrier

import (
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"cbla/transport"
)

func linearDynamics(_ string, actuated map[string]float64) map[string]float64 {
	return map[string]float64{"sensor": 3*actuated["actuator"] - 1}
}

func TestSyncBarrierWriteThenRead(t *testing.T) {
	Convey("Given 3 engines sharing one device on a sync barrier", t, func() {
		facade := transport.NewFakeFacade([]string{"dev0"}, linearDynamics)
		sb := NewSyncBarrier(3, facade, []string{"dev0"}, []string{"sensor"},
			time.Second, 10*time.Millisecond, 10*time.Millisecond, nil)

		Convey("Writes from every engine to the same variable apply last-write-wins in enqueue order", func() {
			var wg sync.WaitGroup
			for i := 0; i < 3; i++ {
				i := i
				wg.Add(1)
				go func() {
					defer wg.Done()
					sb.Enqueue("dev0", "actuator", float64(10+i))
					So(sb.WriteWait(), ShouldBeNil)
				}()
			}
			wg.Wait()

			var sampleOnce map[string]transport.Sample
			var once sync.Once
			var wg2 sync.WaitGroup
			for i := 0; i < 3; i++ {
				wg2.Add(1)
				go func() {
					defer wg2.Done()
					So(sb.StartReadWait(), ShouldBeNil)
					sample, done, err := sb.ReadWait()
					So(err, ShouldBeNil)
					So(done, ShouldBeTrue)
					once.Do(func() { sampleOnce = sample })
				}()
			}
			wg2.Wait()

			So(sampleOnce["dev0"].Fresh, ShouldBeTrue)
			So(sampleOnce["dev0"].Values["sensor"], ShouldBeIn, []float64{29.0, 32.0, 35.0})
		})
	})
}

func TestSyncBarrierSubSampling(t *testing.T) {
	Convey("Given sample_interval greater than sample_period", t, func() {
		facade := transport.NewFakeFacade([]string{"dev0"}, linearDynamics)
		derivedCalls := 0
		sb := NewSyncBarrier(1, facade, []string{"dev0"}, []string{"sensor"},
			time.Second, 5*time.Millisecond, 25*time.Millisecond,
			func(crossing int) map[string]any {
				derivedCalls++
				return map[string]any{"crossing": crossing}
			})

		Convey("Early read crossings are not finished; a later one is", func() {
			So(sb.StartReadWait(), ShouldBeNil)

			_, done1, err := sb.ReadWait()
			So(err, ShouldBeNil)
			So(done1, ShouldBeFalse)

			time.Sleep(30 * time.Millisecond)
			_, done2, err := sb.ReadWait()
			So(err, ShouldBeNil)
			So(done2, ShouldBeTrue)
			So(derivedCalls, ShouldEqual, 1)
		})
	})
}
