package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lzha174/BusModel/internal/engine"
	"github.com/lzha174/BusModel/internal/sim"
)

const (
	insertRun = `INSERT INTO runs (
		run_id, seed, patience, end_time, buses, passengers,
		completed, abandoned, stranded, incomplete, mean_wait, mean_ride
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertSegment = `INSERT INTO run_segments (
		run_id, bus_id, route_id, seq, from_stop, to_stop, departure, duration
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	insertPassenger = `INSERT INTO run_passengers (
		run_id, passenger_id, origin, destination, request_time, outcome,
		boarding_time, bus_id, alighting_time, ended_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertEvent = `INSERT INTO run_events (
		run_id, seq, at, kind, stop_id, bus_id, passenger_id
	) VALUES (?, ?, ?, ?, ?, ?, ?)`
)

// SaveRun writes a finished run log in a single transaction.
func (s *Store) SaveRun(ctx context.Context, rl *sim.RunLog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	sum := rl.Summary
	if _, err := tx.ExecContext(ctx, s.rebind(insertRun),
		rl.RunID, rl.Seed, int64(rl.Patience), int64(rl.EndTime), sum.Buses, sum.Passengers,
		sum.Completed, sum.Abandoned, sum.Stranded, sum.Incomplete, sum.MeanWait, sum.MeanRide,
	); err != nil {
		return fmt.Errorf("insert run %s: %w", rl.RunID, err)
	}

	segStmt, err := tx.PrepareContext(ctx, s.rebind(insertSegment))
	if err != nil {
		return fmt.Errorf("prepare segments: %w", err)
	}
	defer segStmt.Close()
	for _, b := range rl.Buses {
		for i, seg := range b.Segments {
			if _, err := segStmt.ExecContext(ctx,
				rl.RunID, int64(b.ID), int64(b.RouteID), int64(i),
				int64(seg.From), int64(seg.To), int64(seg.Departure), int64(seg.Duration),
			); err != nil {
				return fmt.Errorf("insert bus %d segment %d: %w", b.ID, i, err)
			}
		}
	}

	paxStmt, err := tx.PrepareContext(ctx, s.rebind(insertPassenger))
	if err != nil {
		return fmt.Errorf("prepare passengers: %w", err)
	}
	defer paxStmt.Close()
	for _, p := range rl.Passengers {
		var bus sql.NullInt64
		if p.BusID != nil {
			bus = sql.NullInt64{Int64: int64(*p.BusID), Valid: true}
		}
		if _, err := paxStmt.ExecContext(ctx,
			rl.RunID, int64(p.ID), int64(p.Origin), int64(p.Destination), int64(p.RequestTime), p.Outcome,
			nullTime(p.BoardingTime), bus, nullTime(p.AlightingTime), nullTime(p.EndedAt),
		); err != nil {
			return fmt.Errorf("insert passenger %d: %w", p.ID, err)
		}
	}

	evStmt, err := tx.PrepareContext(ctx, s.rebind(insertEvent))
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer evStmt.Close()
	for i, ev := range rl.Events {
		if _, err := evStmt.ExecContext(ctx,
			rl.RunID, int64(i), int64(ev.Time), string(ev.Kind),
			int64(ev.Stop), int64(ev.Bus), int64(ev.Passenger),
		); err != nil {
			return fmt.Errorf("insert event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", rl.RunID, err)
	}
	return nil
}

// RunSummary reads back the stored summary of one run.
func (s *Store) RunSummary(ctx context.Context, runID string) (sim.Summary, error) {
	var sum sim.Summary
	err := s.db.QueryRowContext(ctx, s.rebind(`
SELECT buses, passengers, completed, abandoned, stranded, incomplete, mean_wait, mean_ride
FROM runs WHERE run_id = ?`), runID).Scan(
		&sum.Buses, &sum.Passengers, &sum.Completed, &sum.Abandoned,
		&sum.Stranded, &sum.Incomplete, &sum.MeanWait, &sum.MeanRide,
	)
	if err != nil {
		return sim.Summary{}, fmt.Errorf("run %s: %w", runID, err)
	}
	return sum, nil
}

func nullTime(t *engine.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*t), Valid: true}
}
