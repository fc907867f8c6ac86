package sim

import (
	"log"

	"github.com/lzha174/BusModel/internal/engine"
)

type busState int

const (
	busWaitingToStart busState = iota
	busAtStop
	busInTransit
	busTerminated
)

func (s busState) String() string {
	switch s {
	case busWaitingToStart:
		return "waiting-to-start"
	case busAtStop:
		return "at-stop"
	case busInTransit:
		return "in-transit"
	case busTerminated:
		return "terminated"
	}
	return "unknown"
}

// busProcess walks one bus through its route: depart, travel, arrive, repeat.
type busProcess struct {
	s     *Simulation
	bus   *Bus
	state busState
	pos   int
}

func (p *busProcess) start() error {
	_, err := p.s.eng.Schedule(p.bus.Start, engine.Primary, func() {
		if p.s.opts.LogEvents {
			log.Printf("starting bus %d (route %d) at %d", p.bus.ID, p.bus.Route.ID, p.s.eng.Now())
		}
		if m := p.s.opts.Metrics; m != nil {
			m.BusesStarted.Inc()
			m.ActiveBuses.Inc()
		}
		p.enterStop(0)
	})
	return err
}

func (p *busProcess) enterStop(pos int) {
	p.state, p.pos = busAtStop, pos
	if pos >= len(p.bus.Schedule) {
		p.terminate()
		return
	}
	seg := p.bus.Schedule[pos]
	if sig := p.s.reg.departureAt(p.bus.ID, pos); sig != nil {
		if err := sig.Fire(Passage{Bus: p.bus.ID, Segment: pos}); err != nil {
			log.Printf("bus %d departure at position %d: %v", p.bus.ID, pos, err)
		}
	}
	p.s.trace(TraceEvent{Kind: TraceBusDepart, Stop: seg.From, Bus: p.bus.ID, Passenger: noPassenger})

	p.state = busInTransit
	p.s.eng.After(seg.Duration, engine.Primary, func() {
		next := pos + 1
		if sig := p.s.reg.arrivalAt(p.bus.ID, next); sig != nil {
			if err := sig.Fire(Passage{Bus: p.bus.ID, Segment: pos}); err != nil {
				log.Printf("bus %d arrival at position %d: %v", p.bus.ID, next, err)
			}
		}
		p.s.trace(TraceEvent{Kind: TraceBusArrive, Stop: seg.To, Bus: p.bus.ID, Passenger: noPassenger})
		p.enterStop(next)
	})
}

func (p *busProcess) terminate() {
	p.state = busTerminated
	if p.s.opts.LogEvents {
		log.Printf("finished bus %d at %d", p.bus.ID, p.s.eng.Now())
	}
	if m := p.s.opts.Metrics; m != nil {
		m.BusesFinished.Inc()
		m.ActiveBuses.Dec()
	}
}
