package network

import (
	"errors"
	"fmt"
	"sort"
)

type StopID int

type RouteID int

type Stop struct {
	ID   StopID `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Route is an ordered stop sequence; travel is only valid in index order.
type Route struct {
	ID    RouteID  `json:"id" yaml:"id"`
	Stops []StopID `json:"stops" yaml:"stops"`
}

var (
	ErrEmptyRoute   = errors.New("route has no stops")
	ErrRepeatedStop = errors.New("route repeats a stop on adjacent positions")
	ErrUnknownStop  = errors.New("route references an unknown stop")
	ErrDuplicateID  = errors.New("duplicate id")
)

// Index returns the position of stop in the route, or -1.
func (r Route) Index(stop StopID) int {
	for i, s := range r.Stops {
		if s == stop {
			return i
		}
	}
	return -1
}

// Serves reports whether a trip origin -> destination is legal on this route.
func (r Route) Serves(origin, destination StopID) bool {
	o := r.Index(origin)
	if o < 0 {
		return false
	}
	for _, s := range r.Stops[o+1:] {
		if s == destination {
			return true
		}
	}
	return false
}

// Network is the stop catalog plus the set of routes over it.
type Network struct {
	stops  map[StopID]Stop
	order  []StopID
	routes map[RouteID]Route
	rorder []RouteID
}

// New validates stops and routes and builds a Network.
func New(stops []Stop, routes []Route) (*Network, error) {
	n := &Network{
		stops:  make(map[StopID]Stop, len(stops)),
		routes: make(map[RouteID]Route, len(routes)),
	}
	for _, s := range stops {
		if _, ok := n.stops[s.ID]; ok {
			return nil, fmt.Errorf("stop %d: %w", s.ID, ErrDuplicateID)
		}
		n.stops[s.ID] = s
		n.order = append(n.order, s.ID)
	}
	sort.Slice(n.order, func(i, j int) bool { return n.order[i] < n.order[j] })
	for _, r := range routes {
		if _, ok := n.routes[r.ID]; ok {
			return nil, fmt.Errorf("route %d: %w", r.ID, ErrDuplicateID)
		}
		if err := n.validateRoute(r); err != nil {
			return nil, err
		}
		cp := Route{ID: r.ID, Stops: append([]StopID(nil), r.Stops...)}
		n.routes[r.ID] = cp
		n.rorder = append(n.rorder, r.ID)
	}
	sort.Slice(n.rorder, func(i, j int) bool { return n.rorder[i] < n.rorder[j] })
	return n, nil
}

func (n *Network) validateRoute(r Route) error {
	if len(r.Stops) == 0 {
		return fmt.Errorf("route %d: %w", r.ID, ErrEmptyRoute)
	}
	for i, s := range r.Stops {
		if _, ok := n.stops[s]; !ok {
			return fmt.Errorf("route %d stop %d: %w", r.ID, s, ErrUnknownStop)
		}
		if i > 0 && r.Stops[i-1] == s {
			return fmt.Errorf("route %d position %d: %w", r.ID, i, ErrRepeatedStop)
		}
	}
	return nil
}

func (n *Network) Stop(id StopID) (Stop, bool) {
	s, ok := n.stops[id]
	return s, ok
}

// Stops returns the catalog ordered by id.
func (n *Network) Stops() []Stop {
	out := make([]Stop, 0, len(n.order))
	for _, id := range n.order {
		out = append(out, n.stops[id])
	}
	return out
}

func (n *Network) Route(id RouteID) (Route, bool) {
	r, ok := n.routes[id]
	return r, ok
}

// Routes returns all routes ordered by id.
func (n *Network) Routes() []Route {
	out := make([]Route, 0, len(n.rorder))
	for _, id := range n.rorder {
		out = append(out, n.routes[id])
	}
	return out
}

// Downstream returns, sorted, every stop that lies strictly after origin on at
// least one route.
func (n *Network) Downstream(origin StopID) []StopID {
	seen := make(map[StopID]bool)
	var out []StopID
	for _, id := range n.rorder {
		r := n.routes[id]
		i := r.Index(origin)
		if i < 0 {
			continue
		}
		for _, s := range r.Stops[i+1:] {
			if !seen[s] && s != origin {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
