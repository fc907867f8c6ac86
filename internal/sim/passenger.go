package sim

import (
	"log"

	"github.com/lzha174/BusModel/internal/engine"
)

// candidate is one visit of the passenger's origin by a bus whose route carries the
// passenger forward from there, with the route positions of origin and destination.
// A route passing the origin twice yields one candidate per visit.
type candidate struct {
	bus  *Bus
	from int
	to   int
}

type passengerProcess struct {
	s      *Simulation
	p      *Passenger
	route  []candidate
	missed map[signalKey]bool

	race     *engine.Race[Passage]
	deadline *engine.Timer
	ride     *engine.Subscription[Passage]
}

func newPassengerProcess(s *Simulation, p *Passenger) *passengerProcess {
	pp := &passengerProcess{s: s, p: p, missed: make(map[signalKey]bool)}
	for _, b := range s.buses {
		for from := 0; from < len(b.Schedule); from++ {
			if b.Route.Stops[from] != p.Origin {
				continue
			}
			to := -1
			for i := from + 1; i < len(b.Route.Stops); i++ {
				if b.Route.Stops[i] == p.Destination {
					to = i
					break
				}
			}
			if to < 0 {
				continue
			}
			pp.route = append(pp.route, candidate{bus: b, from: from, to: to})
		}
	}
	return pp
}

func (pp *passengerProcess) start() error {
	_, err := pp.s.eng.Schedule(pp.p.RequestTime, engine.Primary, pp.arrive)
	return err
}

func (pp *passengerProcess) arrive() {
	now := pp.s.eng.Now()
	pp.p.state = Waiting
	pp.s.trace(TraceEvent{Kind: TracePassengerRequest, Stop: pp.p.Origin, Bus: noBus, Passenger: pp.p.ID})
	if len(pp.route) == 0 {
		pp.strand()
		return
	}
	pp.deadline = pp.s.eng.After(pp.s.opts.Patience, engine.Secondary, pp.giveUp)
	if pp.s.opts.LogEvents {
		log.Printf("passenger %d waiting at stop %d for stop %d at %d", pp.p.ID, pp.p.Origin, pp.p.Destination, now)
	}
	pp.wait()
}

// wait races the departure signals of every origin visit not yet missed. With nothing left to
// race the passenger keeps waiting until the deadline.
func (pp *passengerProcess) wait() {
	var signals []*engine.Signal[Passage]
	for _, c := range pp.route {
		if pp.missed[signalKey{bus: c.bus.ID, pos: c.from}] {
			continue
		}
		if sig := pp.s.reg.departureAt(c.bus.ID, c.from); sig != nil {
			signals = append(signals, sig)
		}
	}
	if len(signals) == 0 {
		return
	}
	pp.race = engine.AnyOf(signals, pp.onDeparture)
}

func (pp *passengerProcess) onDeparture(ps Passage) {
	pp.race = nil
	now := pp.s.eng.Now()
	key := signalKey{bus: ps.Bus, pos: ps.Segment}
	bus, ok := pp.s.reg.Bus(ps.Bus)
	if !ok || ps.Segment >= len(bus.Schedule) {
		pp.missed[key] = true
		pp.wait()
		return
	}
	if bus.Schedule[ps.Segment].Departure < now {
		// The bus left before this wake: discard this visit and keep waiting.
		pp.missed[key] = true
		pp.s.trace(TraceEvent{Kind: TraceStale, Stop: pp.p.Origin, Bus: ps.Bus, Passenger: pp.p.ID})
		if m := pp.s.opts.Metrics; m != nil {
			m.StaleDepartures.Inc()
		}
		pp.wait()
		return
	}

	dest := -1
	for _, c := range pp.route {
		if c.bus.ID == ps.Bus && c.from == ps.Segment {
			dest = c.to
			break
		}
	}
	arrival := pp.s.reg.arrivalAt(ps.Bus, dest)
	if arrival == nil {
		pp.missed[key] = true
		pp.wait()
		return
	}

	pp.s.eng.Stop(pp.deadline)
	pp.deadline = nil
	pp.p.board(now, ps.Bus)
	pp.s.trace(TraceEvent{Kind: TraceBoard, Stop: pp.p.Origin, Bus: ps.Bus, Passenger: pp.p.ID})
	if m := pp.s.opts.Metrics; m != nil {
		m.WaitTime.Observe(float64(now - pp.p.RequestTime))
	}
	if pp.s.opts.LogEvents {
		log.Printf("passenger %d boarded bus %d at stop %d at %d", pp.p.ID, ps.Bus, pp.p.Origin, now)
	}
	pp.ride = arrival.Subscribe(pp.onArrival)
}

func (pp *passengerProcess) onArrival(ps Passage) {
	pp.ride = nil
	now := pp.s.eng.Now()
	pp.p.alight(now)
	pp.s.trace(TraceEvent{Kind: TraceAlight, Stop: pp.p.Destination, Bus: ps.Bus, Passenger: pp.p.ID})
	if m := pp.s.opts.Metrics; m != nil {
		m.RideTime.Observe(float64(now - pp.p.boardedAt))
		m.Passengers.WithLabelValues(Completed.String()).Inc()
	}
	if pp.s.opts.LogEvents {
		log.Printf("passenger %d left bus %d at stop %d at %d", pp.p.ID, ps.Bus, pp.p.Destination, now)
	}
}

func (pp *passengerProcess) giveUp() {
	pp.deadline = nil
	if pp.p.state != Waiting {
		return
	}
	pp.race.Cancel()
	pp.race = nil
	now := pp.s.eng.Now()
	pp.p.finish(Abandoned, now)
	pp.s.trace(TraceEvent{Kind: TraceAbandon, Stop: pp.p.Origin, Bus: noBus, Passenger: pp.p.ID})
	if m := pp.s.opts.Metrics; m != nil {
		m.Passengers.WithLabelValues(Abandoned.String()).Inc()
	}
	if pp.s.opts.LogEvents {
		log.Printf("passenger %d gave up at stop %d at %d", pp.p.ID, pp.p.Origin, now)
	}
}

func (pp *passengerProcess) strand() {
	now := pp.s.eng.Now()
	pp.p.finish(Stranded, now)
	pp.s.trace(TraceEvent{Kind: TraceStrand, Stop: pp.p.Origin, Bus: noBus, Passenger: pp.p.ID})
	if m := pp.s.opts.Metrics; m != nil {
		m.Passengers.WithLabelValues(Stranded.String()).Inc()
	}
	if pp.s.opts.LogEvents {
		log.Printf("passenger %d has no bus from stop %d to stop %d", pp.p.ID, pp.p.Origin, pp.p.Destination)
	}
}

// release withdraws any wait still pending, used when a run stops early.
func (pp *passengerProcess) release() {
	pp.race.Cancel()
	pp.race = nil
	pp.ride.Cancel()
	pp.ride = nil
	if pp.deadline != nil {
		pp.s.eng.Stop(pp.deadline)
		pp.deadline = nil
	}
}
