package timetable

import (
	"errors"
	"fmt"

	"github.com/lzha174/BusModel/internal/engine"
	"github.com/lzha174/BusModel/internal/network"
)

// Segment is one leg of one bus run.
type Segment struct {
	From      network.StopID `json:"from"`
	To        network.StopID `json:"to"`
	Departure engine.Time    `json:"departure"`
	Duration  engine.Time    `json:"duration"`
}

// Arrival is the instant the bus reaches To.
func (s Segment) Arrival() engine.Time { return s.Departure + s.Duration }

// CostFunc returns the travel duration between two consecutive stops.
type CostFunc func(from, to network.StopID) engine.Time

var ErrInvalidCost = errors.New("leg cost must be at least one time unit")

// Check reports the first leg of route that costs less than one time unit. Routes
// that pass have strictly increasing departures.
func Check(route network.Route, cost CostFunc) error {
	for i := 0; i+1 < len(route.Stops); i++ {
		from, to := route.Stops[i], route.Stops[i+1]
		if d := cost(from, to); d < 1 {
			return fmt.Errorf("route %d leg %d->%d costs %d: %w", route.ID, from, to, d, ErrInvalidCost)
		}
	}
	return nil
}

// Build computes back-to-back legs for a bus leaving the first stop of route at start.
// Routes with fewer than two stops yield an empty schedule. Costs are used as given;
// callers reject short legs with Check.
func Build(route network.Route, start engine.Time, cost CostFunc) []Segment {
	if len(route.Stops) < 2 {
		return nil
	}
	segs := make([]Segment, 0, len(route.Stops)-1)
	dep := start
	for i := 0; i+1 < len(route.Stops); i++ {
		from, to := route.Stops[i], route.Stops[i+1]
		d := cost(from, to)
		segs = append(segs, Segment{From: from, To: to, Departure: dep, Duration: d})
		dep += d
	}
	return segs
}

// IndexDistance charges unit per step of stop id distance.
func IndexDistance(unit engine.Time) CostFunc {
	return func(from, to network.StopID) engine.Time {
		d := int64(to - from)
		if d < 0 {
			d = -d
		}
		return unit * engine.Time(d)
	}
}

// Pair is an unordered adjacent stop pair.
type Pair struct {
	A, B network.StopID
}

func key(a, b network.StopID) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

// Table looks distances up in an undirected adjacent-pair table, scales them by unit
// and falls back when a pair is missing. A nil fallback charges a distance of 1.
func Table(distances map[Pair]float64, unit engine.Time, fallback CostFunc) CostFunc {
	norm := make(map[Pair]float64, len(distances))
	for p, d := range distances {
		norm[key(p.A, p.B)] = d
	}
	return func(from, to network.StopID) engine.Time {
		if d, ok := norm[key(from, to)]; ok {
			return engine.Time(d * float64(unit))
		}
		if fallback != nil {
			return fallback(from, to)
		}
		return unit
	}
}
