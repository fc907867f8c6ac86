package sim

import (
	"github.com/lzha174/BusModel/internal/engine"
	"github.com/lzha174/BusModel/internal/network"
	"github.com/lzha174/BusModel/internal/timetable"
)

const (
	noBus       BusID       = -1
	noPassenger PassengerID = -1
)

// Outcome values reported per passenger.
const (
	OutcomeCompleted  = "completed"
	OutcomeAbandoned  = "abandoned"
	OutcomeStranded   = "stranded"
	OutcomeIncomplete = "incomplete"
)

type TraceKind string

const (
	TraceBusDepart        TraceKind = "bus_depart"
	TraceBusArrive        TraceKind = "bus_arrive"
	TracePassengerRequest TraceKind = "passenger_request"
	TraceStale            TraceKind = "stale_departure"
	TraceBoard            TraceKind = "board"
	TraceAlight           TraceKind = "alight"
	TraceAbandon          TraceKind = "abandon"
	TraceStrand           TraceKind = "strand"
)

// TraceEvent is one line of the run trace. Bus and Passenger are -1 when the event
// does not concern one.
type TraceEvent struct {
	Time      engine.Time    `json:"time"`
	Kind      TraceKind      `json:"kind"`
	Stop      network.StopID `json:"stop"`
	Bus       BusID          `json:"bus"`
	Passenger PassengerID    `json:"passenger"`
}

type BusRecord struct {
	ID       BusID               `json:"id"`
	RouteID  network.RouteID     `json:"routeId"`
	Start    engine.Time         `json:"start"`
	Segments []timetable.Segment `json:"segments"`
}

type PassengerRecord struct {
	ID            PassengerID    `json:"id"`
	Origin        network.StopID `json:"origin"`
	Destination   network.StopID `json:"destination"`
	RequestTime   engine.Time    `json:"requestTime"`
	Outcome       string         `json:"outcome"`
	BoardingTime  *engine.Time   `json:"boardingTime,omitempty"`
	BusID         *BusID         `json:"busId,omitempty"`
	AlightingTime *engine.Time   `json:"alightingTime,omitempty"`
	// EndedAt is when the passenger completed, gave up or found no route.
	EndedAt *engine.Time `json:"endedAt,omitempty"`
}

// Succeeded reports whether the passenger travelled.
func (r PassengerRecord) Succeeded() bool { return r.Outcome == OutcomeCompleted }

type Summary struct {
	Buses      int     `json:"buses"`
	Passengers int     `json:"passengers"`
	Completed  int     `json:"completed"`
	Abandoned  int     `json:"abandoned"`
	Stranded   int     `json:"stranded"`
	Incomplete int     `json:"incomplete"`
	MeanWait   float64 `json:"meanWait"`
	MeanRide   float64 `json:"meanRide"`
}

// RunLog is the complete, self-contained result of one run.
type RunLog struct {
	RunID      string            `json:"runId"`
	Seed       int64             `json:"seed"`
	Patience   engine.Time       `json:"patience"`
	EndTime    engine.Time       `json:"endTime"`
	Buses      []BusRecord       `json:"buses"`
	Passengers []PassengerRecord `json:"passengers"`
	Events     []TraceEvent      `json:"events"`
	Summary    Summary           `json:"summary"`
}

// Bus looks a bus record up by id.
func (l *RunLog) Bus(id BusID) (BusRecord, bool) {
	for _, b := range l.Buses {
		if b.ID == id {
			return b, true
		}
	}
	return BusRecord{}, false
}

// Passenger looks a passenger record up by id.
func (l *RunLog) Passenger(id PassengerID) (PassengerRecord, bool) {
	for _, p := range l.Passengers {
		if p.ID == id {
			return p, true
		}
	}
	return PassengerRecord{}, false
}

func (s *Simulation) buildLog() *RunLog {
	rl := &RunLog{
		RunID:    s.opts.RunID,
		Seed:     s.opts.Seed,
		Patience: s.opts.Patience,
		EndTime:  s.eng.Now(),
		Events:   append([]TraceEvent(nil), s.events...),
	}
	for _, b := range s.buses {
		rl.Buses = append(rl.Buses, BusRecord{
			ID:       b.ID,
			RouteID:  b.Route.ID,
			Start:    b.Start,
			Segments: append([]timetable.Segment(nil), b.Schedule...),
		})
	}

	var waitSum, rideSum float64
	for _, p := range s.passengers {
		rec := PassengerRecord{
			ID:          p.ID,
			Origin:      p.Origin,
			Destination: p.Destination,
			RequestTime: p.RequestTime,
			Outcome:     outcome(p.state),
		}
		if at, bus, ok := p.Boarding(); ok {
			rec.BoardingTime = timePtr(at)
			b := bus
			rec.BusID = &b
		}
		if at, ok := p.Alighting(); ok {
			rec.AlightingTime = timePtr(at)
		}
		if p.state.Terminal() {
			rec.EndedAt = timePtr(p.endedAt)
		}
		switch rec.Outcome {
		case OutcomeCompleted:
			rl.Summary.Completed++
			waitSum += float64(*rec.BoardingTime - p.RequestTime)
			rideSum += float64(*rec.AlightingTime - *rec.BoardingTime)
		case OutcomeAbandoned:
			rl.Summary.Abandoned++
		case OutcomeStranded:
			rl.Summary.Stranded++
		default:
			rl.Summary.Incomplete++
		}
		rl.Passengers = append(rl.Passengers, rec)
	}
	rl.Summary.Buses = len(rl.Buses)
	rl.Summary.Passengers = len(rl.Passengers)
	if rl.Summary.Completed > 0 {
		rl.Summary.MeanWait = waitSum / float64(rl.Summary.Completed)
		rl.Summary.MeanRide = rideSum / float64(rl.Summary.Completed)
	}
	return rl
}

func outcome(s PassengerState) string {
	switch s {
	case Completed:
		return OutcomeCompleted
	case Abandoned:
		return OutcomeAbandoned
	case Stranded:
		return OutcomeStranded
	}
	return OutcomeIncomplete
}

func timePtr(t engine.Time) *engine.Time { return &t }
