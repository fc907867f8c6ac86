package sim

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lzha174/BusModel/internal/engine"
	mmetrics "github.com/lzha174/BusModel/internal/metrics"
)

type Options struct {
	// Patience is the giving-up timeout, measured from the request time.
	Patience engine.Time
	// Until stops the clock after this instant; zero runs until nothing is left.
	Until engine.Time
	// RunID labels the run log; a random UUID is used when empty.
	RunID string
	// Seed is recorded in the run log only.
	Seed      int64
	LogEvents bool
	Metrics   *mmetrics.Collector
}

// Simulation owns the clock, the signal registry and every process of one run.
type Simulation struct {
	opts       Options
	eng        *engine.Engine
	reg        *Registry
	buses      []*Bus
	passengers []*Passenger

	busProcs []*busProcess
	paxProcs []*passengerProcess
	events   []TraceEvent
	ran      bool
}

func New(buses []*Bus, passengers []*Passenger, opts Options) (*Simulation, error) {
	if opts.Patience <= 0 {
		return nil, fmt.Errorf("patience %d: %w", opts.Patience, ErrInvalidPatience)
	}
	seenBus := make(map[BusID]bool, len(buses))
	for _, b := range buses {
		if seenBus[b.ID] {
			return nil, fmt.Errorf("bus %d: %w", b.ID, ErrDuplicateBus)
		}
		seenBus[b.ID] = true
	}
	seenPax := make(map[PassengerID]bool, len(passengers))
	for _, p := range passengers {
		if seenPax[p.ID] {
			return nil, fmt.Errorf("passenger %d: %w", p.ID, ErrDuplicatePax)
		}
		seenPax[p.ID] = true
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	eng := engine.New()
	return &Simulation{
		opts:       opts,
		eng:        eng,
		reg:        newRegistry(eng, buses),
		buses:      buses,
		passengers: passengers,
	}, nil
}

// Now returns the simulated clock.
func (s *Simulation) Now() engine.Time { return s.eng.Now() }

// Registry exposes the signals of this run.
func (s *Simulation) Registry() *Registry { return s.reg }

// Run starts every bus and passenger process and drives the clock until no process
// can make progress. When ctx is cancelled the partial log is returned with ctx.Err().
func (s *Simulation) Run(ctx context.Context) (*RunLog, error) {
	if s.ran {
		return nil, ErrAlreadyRan
	}
	s.ran = true
	started := time.Now()

	if m := s.opts.Metrics; m != nil {
		s.eng.OnStep(func(now engine.Time) {
			m.EventsProcessed.Inc()
			m.SimClock.Set(float64(now))
		})
	}

	for _, b := range s.buses {
		bp := &busProcess{s: s, bus: b}
		if err := bp.start(); err != nil {
			return nil, fmt.Errorf("start bus %d: %w", b.ID, err)
		}
		s.busProcs = append(s.busProcs, bp)
	}
	for _, p := range s.passengers {
		pp := newPassengerProcess(s, p)
		if err := pp.start(); err != nil {
			return nil, fmt.Errorf("start passenger %d: %w", p.ID, err)
		}
		s.paxProcs = append(s.paxProcs, pp)
	}

	runErr := s.eng.Run(ctx, s.opts.Until)
	for _, pp := range s.paxProcs {
		if !pp.p.state.Terminal() {
			pp.release()
			if m := s.opts.Metrics; m != nil {
				m.Passengers.WithLabelValues(OutcomeIncomplete).Inc()
			}
		}
	}

	rl := s.buildLog()
	if m := s.opts.Metrics; m != nil {
		m.RunDuration.Observe(time.Since(started).Seconds())
	}
	log.Printf("run %s finished at %d: %d events, %d completed, %d abandoned, %d stranded, %d incomplete",
		rl.RunID, rl.EndTime, s.eng.Processed(), rl.Summary.Completed, rl.Summary.Abandoned, rl.Summary.Stranded, rl.Summary.Incomplete)
	return rl, runErr
}

func (s *Simulation) trace(ev TraceEvent) {
	ev.Time = s.eng.Now()
	s.events = append(s.events, ev)
}
