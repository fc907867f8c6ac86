package sim

import (
	"fmt"

	"github.com/lzha174/BusModel/internal/engine"
	"github.com/lzha174/BusModel/internal/network"
)

// signalKey addresses one route position of one bus. For routes that never revisit
// a stop this is the same as addressing (bus, stop).
type signalKey struct {
	bus BusID
	pos int
}

// Registry holds the departure and arrival signals of every bus, allocated once
// before the run starts and never reused.
type Registry struct {
	buses      map[BusID]*Bus
	departures map[signalKey]*engine.Signal[Passage]
	arrivals   map[signalKey]*engine.Signal[Passage]
}

func newRegistry(eng *engine.Engine, buses []*Bus) *Registry {
	r := &Registry{
		buses:      make(map[BusID]*Bus, len(buses)),
		departures: make(map[signalKey]*engine.Signal[Passage]),
		arrivals:   make(map[signalKey]*engine.Signal[Passage]),
	}
	for _, b := range buses {
		r.buses[b.ID] = b
		last := len(b.Route.Stops) - 1
		for i, stop := range b.Route.Stops {
			k := signalKey{bus: b.ID, pos: i}
			if i < last {
				r.departures[k] = engine.NewSignal[Passage](eng, fmt.Sprintf("depart bus=%d stop=%d", b.ID, stop))
			}
			if i > 0 {
				r.arrivals[k] = engine.NewSignal[Passage](eng, fmt.Sprintf("arrive bus=%d stop=%d", b.ID, stop))
			}
		}
	}
	return r
}

func (r *Registry) Bus(id BusID) (*Bus, bool) {
	b, ok := r.buses[id]
	return b, ok
}

// Departure returns the signal fired when bus leaves stop (first visit).
func (r *Registry) Departure(bus BusID, stop network.StopID) *engine.Signal[Passage] {
	b, ok := r.buses[bus]
	if !ok {
		return nil
	}
	return r.departures[signalKey{bus: bus, pos: b.Route.Index(stop)}]
}

// Arrival returns the signal fired when bus reaches stop (first visit).
func (r *Registry) Arrival(bus BusID, stop network.StopID) *engine.Signal[Passage] {
	b, ok := r.buses[bus]
	if !ok {
		return nil
	}
	return r.arrivals[signalKey{bus: bus, pos: b.Route.Index(stop)}]
}

func (r *Registry) departureAt(bus BusID, pos int) *engine.Signal[Passage] {
	return r.departures[signalKey{bus: bus, pos: pos}]
}

func (r *Registry) arrivalAt(bus BusID, pos int) *engine.Signal[Passage] {
	return r.arrivals[signalKey{bus: bus, pos: pos}]
}
