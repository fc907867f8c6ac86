// Package scenario reads the simulation input (stop catalog, routes, travel costs,
// bus launches, demand and giving-up timeout) from a YAML document and turns it into
// the values the simulation is built from. Every configuration error is reported
// here, before a run starts.
package scenario

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lzha174/BusModel/internal/demand"
	"github.com/lzha174/BusModel/internal/engine"
	"github.com/lzha174/BusModel/internal/network"
	"github.com/lzha174/BusModel/internal/sim"
	"github.com/lzha174/BusModel/internal/timetable"
)

var (
	ErrInvalidPatience = errors.New("patience must be positive")
	ErrInvalidUnit     = errors.New("cost unit must be positive")
	ErrInvalidDistance = errors.New("distance must cost at least one time unit")
	ErrNoBuses         = errors.New("scenario launches no buses")
)

type Scenario struct {
	Seed      int64           `yaml:"seed"`
	Patience  int64           `yaml:"patience"`
	Until     int64           `yaml:"until"`
	Stops     []network.Stop  `yaml:"stops"`
	Routes    []network.Route `yaml:"routes"`
	Distances []Distance      `yaml:"distances"`
	Cost      Cost            `yaml:"cost"`
	Buses     []Launch        `yaml:"buses"`
	Demand    Demand          `yaml:"demand"`
}

// Distance is one adjacent-pair entry of the distance table.
type Distance struct {
	From     network.StopID `yaml:"from"`
	To       network.StopID `yaml:"to"`
	Distance float64        `yaml:"distance"`
}

// Cost scales distances into time units. Without a distance table the cost of a
// leg is Unit times the stop id distance.
type Cost struct {
	Unit int64 `yaml:"unit"`
}

type Launch struct {
	Route   network.RouteID `yaml:"route"`
	First   int64           `yaml:"first"`
	Count   int             `yaml:"count"`
	Headway int64           `yaml:"headway"`
}

type Demand struct {
	Rate      float64       `yaml:"rate"`
	Scale     float64       `yaml:"scale"`
	PerOrigin int           `yaml:"per_origin"`
	Policy    demand.Policy `yaml:"policy"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	sc, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// Decode parses a YAML scenario, rejecting unknown fields, and validates it.
func Decode(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	sc := &Scenario{}
	if err := dec.Decode(sc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	sc.applyDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func (sc *Scenario) applyDefaults() {
	if sc.Cost.Unit == 0 {
		sc.Cost.Unit = 1
	}
	if sc.Demand.Policy == "" {
		sc.Demand.Policy = demand.Downstream
	}
}

// Validate checks the scenario. The network part is only checked when the scenario
// carries its own stops or routes; a network loaded elsewhere is checked by Build.
func (sc *Scenario) Validate() error {
	if sc.Patience <= 0 {
		return fmt.Errorf("patience %d: %w", sc.Patience, ErrInvalidPatience)
	}
	if sc.Cost.Unit <= 0 {
		return fmt.Errorf("unit %d: %w", sc.Cost.Unit, ErrInvalidUnit)
	}
	for _, d := range sc.Distances {
		if !(d.Distance > 0) || d.Distance*float64(sc.Cost.Unit) < 1 {
			return fmt.Errorf("distance %d->%d = %v: %w", d.From, d.To, d.Distance, ErrInvalidDistance)
		}
	}
	if len(sc.Buses) == 0 {
		return ErrNoBuses
	}
	if len(sc.Stops) == 0 && len(sc.Routes) == 0 {
		return nil
	}
	net, err := sc.Network()
	if err != nil {
		return err
	}
	_, _, err = sc.build(net, 0)
	return err
}

// Build assembles the buses and generated passengers of one run on net. A nil net
// uses the scenario's own stops and routes.
func (sc *Scenario) Build(net *network.Network) ([]*sim.Bus, []*sim.Passenger, error) {
	if net == nil {
		var err error
		if net, err = sc.Network(); err != nil {
			return nil, nil, err
		}
	}
	return sc.build(net, sc.Demand.PerOrigin)
}

func (sc *Scenario) build(net *network.Network, perOrigin int) ([]*sim.Bus, []*sim.Passenger, error) {
	buses, err := sim.LaunchBuses(net, sc.Launches(), sc.CostFunc())
	if err != nil {
		return nil, nil, err
	}
	g := sc.Generator()
	g.PerOrigin = perOrigin
	pax, err := g.Generate(net)
	if err != nil {
		return nil, nil, err
	}
	return buses, pax, nil
}

// Options returns the simulation options the scenario defines.
func (sc *Scenario) Options() sim.Options {
	return sim.Options{
		Patience: engine.Time(sc.Patience),
		Until:    engine.Time(sc.Until),
		Seed:     sc.Seed,
	}
}

func (sc *Scenario) Network() (*network.Network, error) {
	return network.New(sc.Stops, sc.Routes)
}

// CostFunc returns the distance-table cost when distances are given, otherwise the
// stop id distance cost.
func (sc *Scenario) CostFunc() timetable.CostFunc {
	unit := engine.Time(sc.Cost.Unit)
	if len(sc.Distances) == 0 {
		return timetable.IndexDistance(unit)
	}
	table := make(map[timetable.Pair]float64, len(sc.Distances))
	for _, d := range sc.Distances {
		table[timetable.Pair{A: d.From, B: d.To}] = d.Distance
	}
	return timetable.Table(table, unit, nil)
}

func (sc *Scenario) Launches() []sim.Launch {
	out := make([]sim.Launch, 0, len(sc.Buses))
	for _, b := range sc.Buses {
		out = append(out, sim.Launch{
			Route:   b.Route,
			First:   engine.Time(b.First),
			Count:   b.Count,
			Headway: engine.Time(b.Headway),
		})
	}
	return out
}

// Generator returns the passenger generator seeded from the scenario seed.
func (sc *Scenario) Generator() demand.Generator {
	return demand.Generator{
		Rate:      sc.Demand.Rate,
		Scale:     sc.Demand.Scale,
		PerOrigin: sc.Demand.PerOrigin,
		Policy:    sc.Demand.Policy,
		Rand:      rand.New(rand.NewSource(sc.Seed)),
	}
}
