package barrier

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestBarrierRendezvous(t *testing.T) {
	Convey("Given a 4-way barrier whose action counts cycles", t, func() {
		var cycles int32
		b := New(4, time.Second, func() error {
			atomic.AddInt32(&cycles, 1)
			return nil
		})

		Convey("The action runs exactly once per cycle, and every waiter returns", func() {
			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					So(b.Wait(), ShouldBeNil)
				}()
			}
			wg.Wait()
			So(atomic.LoadInt32(&cycles), ShouldEqual, 1)
		})

		Convey("The barrier is reusable across cycles", func() {
			for cycle := 0; cycle < 3; cycle++ {
				var wg sync.WaitGroup
				for i := 0; i < 4; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						b.Wait()
					}()
				}
				wg.Wait()
			}
			So(atomic.LoadInt32(&cycles), ShouldEqual, 3)
		})
	})

	Convey("Given a barrier that never reaches its arrival count", t, func() {
		b := New(2, 30*time.Millisecond, func() error { return nil })

		Convey("A lone waiter times out", func() {
			err := b.Wait()
			So(err, ShouldNotBeNil)
		})
	})
}
