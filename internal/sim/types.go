package sim

import (
	"errors"
	"fmt"

	"github.com/lzha174/BusModel/internal/engine"
	"github.com/lzha174/BusModel/internal/network"
	"github.com/lzha174/BusModel/internal/timetable"
)

type BusID int

type PassengerID int

var (
	ErrInvalidPatience = errors.New("giving-up timeout must be positive")
	ErrInvalidHeadway  = errors.New("bus headway must be positive")
	ErrInvalidCount    = errors.New("bus count must not be negative")
	ErrUnknownRoute    = errors.New("unknown route")
	ErrDuplicateBus    = errors.New("duplicate bus id")
	ErrDuplicatePax    = errors.New("duplicate passenger id")
	ErrAlreadyRan      = errors.New("simulation already ran")
)

// Passage is the payload of departure and arrival signals.
type Passage struct {
	Bus     BusID
	Segment int
}

// Bus is one vehicle run over a route. Its schedule is fixed at construction.
type Bus struct {
	ID       BusID
	Route    network.Route
	Start    engine.Time
	Schedule []timetable.Segment
}

func NewBus(id BusID, route network.Route, start engine.Time, cost timetable.CostFunc) *Bus {
	return &Bus{
		ID:       id,
		Route:    route,
		Start:    start,
		Schedule: timetable.Build(route, start, cost),
	}
}

// Launch describes Count buses on one route, the first leaving at First and the
// rest every Headway after it.
type Launch struct {
	Route   network.RouteID
	First   engine.Time
	Count   int
	Headway engine.Time
}

// LaunchBuses expands launch lines into buses with sequential ids starting at 0.
func LaunchBuses(net *network.Network, launches []Launch, cost timetable.CostFunc) ([]*Bus, error) {
	var buses []*Bus
	for _, l := range launches {
		route, ok := net.Route(l.Route)
		if !ok {
			return nil, fmt.Errorf("launch on route %d: %w", l.Route, ErrUnknownRoute)
		}
		if l.Count < 0 {
			return nil, fmt.Errorf("launch on route %d: %w", l.Route, ErrInvalidCount)
		}
		if l.Headway <= 0 {
			return nil, fmt.Errorf("launch on route %d: %w", l.Route, ErrInvalidHeadway)
		}
		if err := timetable.Check(route, cost); err != nil {
			return nil, fmt.Errorf("launch on route %d: %w", l.Route, err)
		}
		start := l.First
		for i := 0; i < l.Count; i++ {
			buses = append(buses, NewBus(BusID(len(buses)), route, start, cost))
			start += l.Headway
		}
	}
	return buses, nil
}

type PassengerState int

const (
	Pending PassengerState = iota
	Waiting
	Boarded
	Completed
	Abandoned
	Stranded
)

func (s PassengerState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Waiting:
		return "waiting"
	case Boarded:
		return "boarded"
	case Completed:
		return "completed"
	case Abandoned:
		return "abandoned"
	case Stranded:
		return "stranded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s PassengerState) Terminal() bool {
	return s == Completed || s == Abandoned || s == Stranded
}

// Passenger is a trip request plus what happened to it. Observation fields are
// written once by the owning passenger process.
type Passenger struct {
	ID          PassengerID
	Origin      network.StopID
	Destination network.StopID
	RequestTime engine.Time

	state      PassengerState
	boarded    bool
	boardedAt  engine.Time
	bus        BusID
	alighted   bool
	alightedAt engine.Time
	endedAt    engine.Time
}

func NewPassenger(id PassengerID, origin, destination network.StopID, at engine.Time) *Passenger {
	return &Passenger{ID: id, Origin: origin, Destination: destination, RequestTime: at}
}

func (p *Passenger) State() PassengerState { return p.state }

// Boarding returns the boarding time and bus, if the passenger boarded.
func (p *Passenger) Boarding() (engine.Time, BusID, bool) { return p.boardedAt, p.bus, p.boarded }

// Alighting returns the alighting time, if the passenger alighted.
func (p *Passenger) Alighting() (engine.Time, bool) { return p.alightedAt, p.alighted }

func (p *Passenger) board(at engine.Time, bus BusID) {
	if p.boarded {
		return
	}
	p.boarded, p.boardedAt, p.bus = true, at, bus
	p.state = Boarded
}

func (p *Passenger) alight(at engine.Time) {
	if p.alighted {
		return
	}
	p.alighted, p.alightedAt = true, at
	p.finish(Completed, at)
}

func (p *Passenger) finish(s PassengerState, at engine.Time) {
	p.state = s
	p.endedAt = at
}
