// Package schedule implements C5: the bounded worker-pool scheduler driving
// units through Pending -> Ready -> Running -> {Finished, Failed}, honoring
// the unit DAG's dependency order and cooperative-drain cancellation on
// first failure.
//
// Grounded on distri's internal/batch.Build scheduler: a ready_queue/active
// counter/events-channel main loop built on errgroup.WithContext, with
// canBuild/markFailed-style dependency bookkeeping keyed off a package
// graph. The same shape is reused here, generalized to Unit identity and to
// a cooperative-drain (vs. distri's harder abort-on-failure) cancellation
// rule: in-flight units run to completion, but no new units start.
package schedule

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/raspbian-packages/cargo/internal/coreerr"
	"github.com/raspbian-packages/cargo/internal/cpuload"
	"github.com/raspbian-packages/cargo/internal/event"
	"github.com/raspbian-packages/cargo/internal/unit"
	"github.com/raspbian-packages/cargo/internal/unitgraph"
)

// State is a unit's position in the scheduling state machine.
type State int

const (
	Pending State = iota
	Ready
	Running
	Finished
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job is the work a scheduler executes for one unit: the compile-script,
// run-script, or compile action, returning whether the unit turned out
// Fresh (skippable) or was actually rebuilt. The scheduler does not
// interpret freshness beyond forwarding it to the event sink.
type Job struct {
	Unit unit.Unit
	Run  func(ctx context.Context) (fresh bool, err error)
}

// ThrottleConfig configures the advisory CPU-idleness throttle. A FloorPercent of 0 disables throttling entirely.
type ThrottleConfig struct {
	FloorPercent float64
}

// Scheduler drives a set of Jobs, derived from a unitgraph.Graph, through a
// bounded worker pool.
type Scheduler struct {
	Graph    *unitgraph.Graph
	Jobs     map[unit.Unit]Job
	Sink     event.Sink
	Workers  int
	Throttle ThrottleConfig

	mu         sync.Mutex
	state      map[unit.Unit]State
	incoming   map[unit.Unit]int // count of not-yet-Finished dependencies
	dependents map[unit.Unit][]unit.Unit
}

type result struct {
	unit  unit.Unit
	fresh bool
	err   error
}

// Run executes every job in the graph, honoring dependency order, up to
// Workers concurrently, and stops dispatching new work (without killing
// in-flight work) on first failure. Returns the first unit's error, or nil
// if every unit finished successfully.
func (s *Scheduler) Run(ctx context.Context) error {
	s.init()
	units := s.Graph.Units()
	total := len(units)

	workCh := make(chan unit.Unit, total)
	eventsCh := make(chan result, total)

	grp, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.Workers; i++ {
		grp.Go(func() error {
			for u := range workCh {
				s.setState(u, Running)
				s.Sink.Emit(event.Event{Kind: event.Running, Unit: u.String()})
				job := s.Jobs[u]
				fresh, err := runJob(gctx, u, job)
				eventsCh <- result{unit: u, fresh: fresh, err: err}
			}
			return nil
		})
	}

	readyQueue := s.initialReady(units)
	active := 0
	failed := false
	var firstErr error
	finished := 0
	last := cpuload.Take()

	limit := func() int {
		if s.Throttle.FloorPercent <= 0 {
			return s.Workers
		}
		now := cpuload.Take()
		idle := cpuload.IdlePercent(last, now)
		last = now
		if cpuload.ShouldThrottle(idle, s.Throttle.FloorPercent) && s.Workers > 1 {
			return s.Workers - 1
		}
		return s.Workers
	}

	for finished < total {
		for !failed && active < limit() && len(readyQueue) > 0 {
			u := readyQueue[0]
			readyQueue = readyQueue[1:]
			s.setState(u, Ready)
			active++
			workCh <- u
		}

		if active == 0 {
			// No work running and nothing ready: remaining units are
			// unreachable because an earlier failure stopped new dispatch
			// before their dependencies finished (cooperative-drain).
			for _, u := range units {
				if s.StateOf(u) == Pending {
					s.setState(u, Failed)
					finished++
				}
			}
			break
		}

		r := <-eventsCh
		active--
		finished++
		if r.err != nil {
			if !failed {
				failed = true
				firstErr = r.err
			}
			s.setState(r.unit, Failed)
			fb := r.fresh
			s.Sink.Emit(event.Event{Kind: event.Failed, Unit: r.unit.String(), Error: r.err.Error(), Fresh: &fb})
			continue
		}

		s.setState(r.unit, Finished)
		fb := r.fresh
		s.Sink.Emit(event.Event{Kind: event.Finished, Unit: r.unit.String(), Fresh: &fb})
		if !failed {
			readyQueue = append(readyQueue, s.markFinished(r.unit)...)
		}
	}

	close(workCh)
	_ = grp.Wait()
	return firstErr
}

// runJob executes job.Run, converting a panic into a *coreerr.PanicInCore
// failure for this unit instead of crashing the whole process. A panicking
// worker aborts its own unit only; it never leaves partially-written shared
// state, since BuildState/fingerprint writes that would follow a successful
// Run never run.
func runJob(ctx context.Context, u unit.Unit, job Job) (fresh bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &coreerr.PanicInCore{Unit: u.String(), Value: rec}
		}
	}()
	return job.Run(ctx)
}

func (s *Scheduler) initialReady(units []unit.Unit) []unit.Unit {
	var ready []unit.Unit
	for _, u := range units {
		if s.incoming[u] == 0 {
			ready = append(ready, u)
		}
	}
	return ready
}

func (s *Scheduler) init() {
	units := s.Graph.Units()
	s.state = make(map[unit.Unit]State, len(units))
	s.incoming = make(map[unit.Unit]int, len(units))
	s.dependents = make(map[unit.Unit][]unit.Unit, len(units))

	for _, u := range units {
		s.state[u] = Pending
		deps := s.Graph.DependenciesOf(u)
		s.incoming[u] = len(deps)
		for _, d := range deps {
			s.dependents[d] = append(s.dependents[d], u)
		}
	}
}

func (s *Scheduler) setState(u unit.Unit, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[u] = st
}

// markFinished records u as Finished and returns dependents whose incoming
// count has just dropped to zero.
func (s *Scheduler) markFinished(u unit.Unit) []unit.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ready []unit.Unit
	for _, d := range s.dependents[u] {
		s.incoming[d]--
		if s.incoming[d] == 0 {
			ready = append(ready, d)
		}
	}
	return ready
}

// StateOf returns u's current scheduling state, for status display.
func (s *Scheduler) StateOf(u unit.Unit) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state[u]
}
