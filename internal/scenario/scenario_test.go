package scenario

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lzha174/BusModel/internal/demand"
	"github.com/lzha174/BusModel/internal/engine"
	"github.com/lzha174/BusModel/internal/network"
	"github.com/lzha174/BusModel/internal/sim"
)

const small = `
seed: 11
patience: 40
stops:
  - {id: 1, name: A}
  - {id: 2, name: B}
  - {id: 3, name: C}
  - {id: 4, name: D}
routes:
  - {id: 1, stops: [1, 2, 3]}
  - {id: 2, stops: [2, 4]}
cost: {unit: 5}
buses:
  - {route: 1, first: 0, count: 3, headway: 10}
  - {route: 2, first: 3, count: 2, headway: 25}
demand: {rate: 1, scale: 4, per_origin: 30, policy: catalog}
`

func TestDecode(t *testing.T) {
	sc, err := Decode(strings.NewReader(small))
	require.NoError(t, err)
	assert.Equal(t, int64(11), sc.Seed)
	assert.Equal(t, int64(40), sc.Patience)
	assert.Len(t, sc.Stops, 4)
	assert.Equal(t, "B", sc.Stops[1].Name)
	assert.Equal(t, []network.StopID{2, 4}, sc.Routes[1].Stops)
	assert.Equal(t, demand.Catalog, sc.Demand.Policy)

	cost := sc.CostFunc()
	assert.Equal(t, engine.Time(10), cost(2, 4))

	opts := sc.Options()
	assert.Equal(t, engine.Time(40), opts.Patience)
	assert.Equal(t, int64(11), opts.Seed)
}

func TestDecodeRejectsConfigurationErrors(t *testing.T) {
	base := func(mut string) string { return strings.Replace(small, mut, "", 1) }
	cases := []struct {
		name string
		doc  string
		want error
	}{
		{"repeated stop", strings.Replace(small, "[1, 2, 3]", "[1, 2, 2, 3]", 1), network.ErrRepeatedStop},
		{"empty route", strings.Replace(small, "[2, 4]", "[]", 1), network.ErrEmptyRoute},
		{"zero patience", strings.Replace(small, "patience: 40", "patience: 0", 1), ErrInvalidPatience},
		{"negative headway", strings.Replace(small, "headway: 10", "headway: -10", 1), sim.ErrInvalidHeadway},
		{"zero headway", strings.Replace(small, "headway: 25", "headway: 0", 1), sim.ErrInvalidHeadway},
		{"unknown route", strings.Replace(small, "{route: 2,", "{route: 9,", 1), sim.ErrUnknownRoute},
		{"zero rate", strings.Replace(small, "rate: 1,", "rate: 0,", 1), demand.ErrInvalidRate},
		{"zero distance", small + "distances:\n  - {from: 1, to: 2, distance: 0}\n", ErrInvalidDistance},
		{"negative distance", small + "distances:\n  - {from: 2, to: 3, distance: -4}\n", ErrInvalidDistance},
		// 0.1 * unit 5 rounds down to a zero-length leg
		{"distance under one unit", small + "distances:\n  - {from: 1, to: 2, distance: 0.1}\n", ErrInvalidDistance},
		{"no buses", base(`buses:
  - {route: 1, first: 0, count: 3, headway: 10}
  - {route: 2, first: 3, count: 2, headway: 25}
`), ErrNoBuses},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tc.doc))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader(small + "\nlayover: 3\n"))
	assert.Error(t, err)
}

func TestDistanceTableCost(t *testing.T) {
	doc := small + `
distances:
  - {from: 2, to: 1, distance: 3}
`
	sc, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	cost := sc.CostFunc()
	assert.Equal(t, engine.Time(15), cost(1, 2))
	// pairs missing from the table count as distance 1
	assert.Equal(t, engine.Time(5), cost(2, 3))
}

func TestLoadShippedScenarios(t *testing.T) {
	for _, path := range []string{"../../configs/scenario.yaml", "../../configs/network-three-routes.yaml"} {
		sc, err := Load(path)
		require.NoError(t, err, path)
		buses, pax, err := sc.Build(nil)
		require.NoError(t, err, path)
		assert.NotEmpty(t, buses)
		assert.NotEmpty(t, pax)
	}

	sc, err := Load("../../configs/scenario.yaml")
	require.NoError(t, err)
	buses, pax, err := sc.Build(nil)
	require.NoError(t, err)
	assert.Len(t, buses, 10)
	assert.Len(t, pax, 14*120)
	assert.Equal(t, engine.Time(45000), buses[9].Start)
	assert.Len(t, buses[0].Schedule, 14)
	assert.Equal(t, engine.Time(500), buses[0].Schedule[0].Duration)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func runOnce(t *testing.T, doc string) *sim.RunLog {
	t.Helper()
	sc, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	buses, pax, err := sc.Build(nil)
	require.NoError(t, err)
	opts := sc.Options()
	opts.RunID = "fixed"
	s, err := sim.New(buses, pax, opts)
	require.NoError(t, err)
	rl, err := s.Run(context.Background())
	require.NoError(t, err)
	return rl
}

func TestRunIsDeterministic(t *testing.T) {
	a := runOnce(t, small)
	b := runOnce(t, small)
	assert.Equal(t, a.Buses, b.Buses)
	assert.Equal(t, a.Passengers, b.Passengers)
	assert.Equal(t, a.Summary, b.Summary)
}

func TestRunInvariants(t *testing.T) {
	rl := runOnce(t, small)
	require.NotEmpty(t, rl.Passengers)

	routes := map[sim.BusID]network.Route{}
	sc, err := Decode(strings.NewReader(small))
	require.NoError(t, err)
	net, err := sc.Network()
	require.NoError(t, err)

	for _, b := range rl.Buses {
		r, ok := net.Route(b.RouteID)
		require.True(t, ok)
		routes[b.ID] = r
		cum := b.Start
		for i, seg := range b.Segments {
			assert.Equal(t, cum, seg.Departure, "bus %d leg %d", b.ID, i)
			if i > 0 {
				assert.Greater(t, seg.Departure, b.Segments[i-1].Departure)
			}
			cum += seg.Duration
		}
	}

	served := func(o, d network.StopID) bool {
		for _, r := range routes {
			if r.Serves(o, d) {
				return true
			}
		}
		return false
	}

	outcomes := map[string]int{}
	for _, p := range rl.Passengers {
		outcomes[p.Outcome]++
		switch p.Outcome {
		case sim.OutcomeCompleted:
			require.NotNil(t, p.BoardingTime)
			require.NotNil(t, p.AlightingTime)
			assert.GreaterOrEqual(t, *p.BoardingTime, p.RequestTime)
			assert.GreaterOrEqual(t, *p.AlightingTime, *p.BoardingTime)
			assert.LessOrEqual(t, *p.BoardingTime-p.RequestTime, engine.Time(sc.Patience))
			assert.True(t, routes[*p.BusID].Serves(p.Origin, p.Destination))
		case sim.OutcomeStranded:
			assert.False(t, served(p.Origin, p.Destination))
			assert.Equal(t, p.RequestTime, *p.EndedAt)
		case sim.OutcomeAbandoned:
			assert.True(t, served(p.Origin, p.Destination))
			assert.Equal(t, p.RequestTime+engine.Time(sc.Patience), *p.EndedAt)
			assert.Nil(t, p.BoardingTime)
		default:
			t.Fatalf("passenger %d ended %s", p.ID, p.Outcome)
		}
	}
	// catalog destinations on two routes produce every outcome
	assert.Positive(t, outcomes[sim.OutcomeCompleted])
	assert.Positive(t, outcomes[sim.OutcomeStranded])
}
