// Package supervisor starts and stops CBLA engines, wires shared variables
// between them, and persists snapshots (spec §2 "Supervisor", §6 "Process
// control").
//
// Grounded on the teacher's reinforcement.Train/alphaMonteCarloVanillaTrain
// shape: independent workers run under a fan-in point, with the
// fan-in built from channerics.Merge exactly as the teacher merges its
// per-agent episode channels. Unlike the teacher, each engine runs under
// its *own* errgroup.Group rather than one shared group, precisely because
// spec §7 requires a fatal error in one engine (ContractViolation,
// TreeCorruption) to mark that engine dead without cancelling its siblings
// — a single shared errgroup's first-error cancellation would do the
// opposite.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"

	"cbla/barrier"
	"cbla/config"
	"cbla/engine"
	"cbla/robot"
	"cbla/snapshot"
	"cbla/transport"
	"cbla/tree"
	"cbla/varbus"
)

// EngineSpec describes one engine to start.
type EngineSpec struct {
	ID            string
	Config        *config.EngineConfig
	Adapter       *robot.Adapter
	Tree          *tree.Tree
	InitialState  []float64
	InitialAction []float64
	Seed          int64
}

// deathEvent is emitted when an engine exits with a fatal error.
type deathEvent struct {
	id  string
	err error
}

type handle struct {
	eng    *engine.Engine
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Supervisor owns the engine set sharing one transport and variable bus.
type Supervisor struct {
	facade  transport.Facade
	sb      *barrier.SyncBarrier
	bus     *varbus.Bus
	sinkDir string
	logger  *log.Logger

	mu      sync.Mutex
	engines map[string]*handle
	deaths  []<-chan deathEvent
}

// New returns a Supervisor over the given transport, shared sync barrier,
// and variable bus, persisting engine snapshots under sinkDir.
func New(facade transport.Facade, sb *barrier.SyncBarrier, bus *varbus.Bus, sinkDir string) *Supervisor {
	return &Supervisor{
		facade:  facade,
		sb:      sb,
		bus:     bus,
		sinkDir: sinkDir,
		logger:  log.New(log.Writer(), "[supervisor] ", log.LstdFlags),
		engines: make(map[string]*handle),
	}
}

// Start launches one engine under its own errgroup so that a fatal error
// from it never cancels its siblings (spec §7 propagation policy).
func (s *Supervisor) Start(ctx context.Context, spec EngineSpec) error {
	sink, err := snapshot.NewSink(s.sinkDir, spec.ID)
	if err != nil {
		return fmt.Errorf("supervisor: building sink for %s: %w", spec.ID, err)
	}

	eng := engine.New(spec.ID, spec.Config, spec.Adapter, s.sb, spec.Tree, sink, spec.Seed)
	engCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(engCtx)

	deaths := make(chan deathEvent, 1)
	g.Go(func() error {
		err := eng.Run(gctx, spec.InitialState, spec.InitialAction)
		if err != nil {
			s.logger.Printf("engine %s exited fatally: %v", spec.ID, err)
			if snapErr := sink.WriteTreeSnapshot(spec.Tree.Export()); snapErr != nil {
				s.logger.Printf("engine %s final snapshot failed: %v", spec.ID, snapErr)
			}
			deaths <- deathEvent{id: spec.ID, err: err}
		}
		close(deaths)
		return err
	})

	s.mu.Lock()
	s.engines[spec.ID] = &handle{eng: eng, cancel: cancel, group: g}
	s.deaths = append(s.deaths, deaths)
	s.mu.Unlock()
	return nil
}

// DeathEvents fans in every engine's death notification into one channel,
// via channerics.Merge exactly as the teacher's alphaMonteCarloVanillaTrain
// merges per-agent episode channels. The returned channel closes when ctx
// is done.
func (s *Supervisor) DeathEvents(ctx context.Context) <-chan string {
	s.mu.Lock()
	sources := append([]<-chan deathEvent(nil), s.deaths...)
	s.mu.Unlock()

	merged := channerics.Merge(ctx.Done(), sources...)
	out := make(chan string)
	go func() {
		defer close(out)
		for ev := range merged {
			select {
			case out <- ev.id:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Stop flips the stop flag on every live engine and cancels its context.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.engines {
		h.eng.Stop()
		h.cancel()
	}
}

// Join waits for every engine goroutine to return, bounded by timeout
// (spec §8 property 9, scenario S5).
func (s *Supervisor) Join(timeout time.Duration) error {
	s.mu.Lock()
	groups := make([]*errgroup.Group, 0, len(s.engines))
	for _, h := range s.engines {
		groups = append(groups, h.group)
	}
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		var firstErr error
		for _, g := range groups {
			if err := g.Wait(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		done <- firstErr
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("supervisor: join timed out after %s", timeout)
	}
}

// LinkVariable forwards the bus value of source into dest on every tick of
// interval, implementing the inter-node variable links described in spec
// §2 ("Variable bus... shared between nodes"): two robot adapters
// configured against the same bus-backed names stay in sync without either
// engine importing the other's internal state directly. Ticking is driven
// by channerics.NewTicker, exactly as the teacher's print_values_async
// drains a done-aware ticker channel with a bare range loop.
func (s *Supervisor) LinkVariable(ctx context.Context, source, dest string, interval time.Duration) {
	go func() {
		for range channerics.NewTicker(ctx.Done(), interval) {
			if v, ok := s.bus.Get(source); ok {
				s.bus.Set(dest, v)
			}
		}
	}()
}

// Bus returns the shared variable bus, so callers can seed or read
// inter-node links directly.
func (s *Supervisor) Bus() *varbus.Bus { return s.bus }
