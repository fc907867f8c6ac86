package db

import (
	"context"
	"fmt"

	"github.com/lzha174/BusModel/internal/network"
)

// LoadNetwork reads the stop catalog and routes. Route stop order follows seq.
func (s *Store) LoadNetwork(ctx context.Context) (*network.Network, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stop_id, name FROM stops ORDER BY stop_id`)
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	var stops []network.Stop
	for rows.Next() {
		var st network.Stop
		if err := rows.Scan(&st.ID, &st.Name); err != nil {
			rows.Close()
			return nil, err
		}
		stops = append(stops, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT route_id, stop_id FROM route_stops ORDER BY route_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("query route_stops: %w", err)
	}
	defer rows.Close()
	var routes []network.Route
	for rows.Next() {
		var rid network.RouteID
		var sid network.StopID
		if err := rows.Scan(&rid, &sid); err != nil {
			return nil, err
		}
		if n := len(routes); n == 0 || routes[n-1].ID != rid {
			routes = append(routes, network.Route{ID: rid})
		}
		last := &routes[len(routes)-1]
		last.Stops = append(last.Stops, sid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	net, err := network.New(stops, routes)
	if err != nil {
		return nil, fmt.Errorf("network from database: %w", err)
	}
	return net, nil
}

// SaveNetwork replaces the stored catalog and routes with net.
func (s *Store) SaveNetwork(ctx context.Context, net *network.Network) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM route_stops`); err != nil {
		return fmt.Errorf("clear route_stops: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stops`); err != nil {
		return fmt.Errorf("clear stops: %w", err)
	}

	stopStmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO stops (stop_id, name) VALUES (?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare stops: %w", err)
	}
	defer stopStmt.Close()
	for _, st := range net.Stops() {
		if _, err := stopStmt.ExecContext(ctx, int64(st.ID), st.Name); err != nil {
			return fmt.Errorf("insert stop %d: %w", st.ID, err)
		}
	}

	routeStmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO route_stops (route_id, seq, stop_id) VALUES (?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare route_stops: %w", err)
	}
	defer routeStmt.Close()
	for _, r := range net.Routes() {
		for i, sid := range r.Stops {
			if _, err := routeStmt.ExecContext(ctx, int64(r.ID), int64(i), int64(sid)); err != nil {
				return fmt.Errorf("insert route %d stop %d: %w", r.ID, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit network: %w", err)
	}
	return nil
}
