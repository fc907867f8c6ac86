package demand

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/lzha174/BusModel/internal/engine"
	"github.com/lzha174/BusModel/internal/network"
	"github.com/lzha174/BusModel/internal/sim"
)

// Policy selects where destinations are drawn from.
type Policy string

const (
	// Downstream draws among stops after the origin on at least one route.
	Downstream Policy = "downstream"
	// Catalog draws among every catalog stop with a larger id than the origin,
	// whether or not a route connects the two.
	Catalog Policy = "catalog"
)

var (
	ErrInvalidRate   = errors.New("arrival rate must be positive")
	ErrInvalidScale  = errors.New("time scale must be positive")
	ErrInvalidCount  = errors.New("passengers per origin must not be negative")
	ErrUnknownPolicy = errors.New("unknown destination policy")
)

// Generator produces passengers from a renewal process per origin stop.
type Generator struct {
	// Rate is the arrival rate of the exponential gap distribution.
	Rate float64
	// Scale converts one unit of the exponential draw to simulated time.
	Scale     float64
	PerOrigin int
	Policy    Policy
	Rand      *rand.Rand
}

func (g Generator) validate() error {
	if g.Rate <= 0 || math.IsNaN(g.Rate) {
		return fmt.Errorf("rate %v: %w", g.Rate, ErrInvalidRate)
	}
	if g.Scale <= 0 || math.IsNaN(g.Scale) {
		return fmt.Errorf("scale %v: %w", g.Scale, ErrInvalidScale)
	}
	if g.PerOrigin < 0 {
		return fmt.Errorf("per origin %d: %w", g.PerOrigin, ErrInvalidCount)
	}
	switch g.Policy {
	case "", Downstream, Catalog:
	default:
		return fmt.Errorf("policy %q: %w", g.Policy, ErrUnknownPolicy)
	}
	return nil
}

// Generate walks the catalog in id order. For every stop that has at least one
// possible destination it emits PerOrigin passengers with request times at
// cumulative exponential gaps from zero. Passenger ids are sequential from 0.
func (g Generator) Generate(net *network.Network) ([]*sim.Passenger, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	rng := g.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	var out []*sim.Passenger
	for _, stop := range net.Stops() {
		dests := g.destinations(net, stop.ID)
		if len(dests) == 0 {
			continue
		}
		var at engine.Time
		for i := 0; i < g.PerOrigin; i++ {
			dest := dests[rng.Intn(len(dests))]
			at += g.gap(rng)
			out = append(out, sim.NewPassenger(sim.PassengerID(len(out)), stop.ID, dest, at))
		}
	}
	return out, nil
}

func (g Generator) destinations(net *network.Network, origin network.StopID) []network.StopID {
	if g.Policy != Catalog {
		return net.Downstream(origin)
	}
	var out []network.StopID
	for _, s := range net.Stops() {
		if s.ID > origin {
			out = append(out, s.ID)
		}
	}
	return out
}

// gap draws one inter-arrival gap, rounded up to whole time units.
func (g Generator) gap(rng *rand.Rand) engine.Time {
	x := rng.ExpFloat64() / g.Rate * g.Scale
	return engine.Time(math.Ceil(x))
}
