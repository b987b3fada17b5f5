package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/devskill-org/dispatch/document"
)

// ensureSchema creates the schedule table if it does not exist.
func (s *DispatchService) ensureSchema(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database connection not available")
	}

	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS dispatch_schedule (
			run_at      TIMESTAMPTZ NOT NULL,
			timestep    INTEGER NOT NULL,
			entity_name TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			consumed    DOUBLE PRECISION,
			produced    DOUBLE PRECISION,
			stored      DOUBLE PRECISION,
			total_cost  DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (run_at, timestep, entity_name)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create dispatch_schedule table: %w", err)
	}
	return nil
}

// saveSchedule persists one solved schedule to the database, one row per
// entity per timestep.
func (s *DispatchService) saveSchedule(ctx context.Context, schedule *Schedule) error {
	if s.db == nil {
		return fmt.Errorf("database connection not available")
	}

	if len(schedule.Entities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Re-running within the same instant replaces the earlier rows.
	_, err = tx.ExecContext(ctx, `DELETE FROM dispatch_schedule WHERE run_at = $1`, schedule.RunAt)
	if err != nil {
		return fmt.Errorf("failed to delete existing schedule rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dispatch_schedule (
			run_at,
			timestep,
			entity_name,
			entity_type,
			consumed,
			produced,
			stored,
			total_cost
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range schedule.Entities {
		for t := 0; t < schedule.Timesteps; t++ {
			_, err := stmt.ExecContext(ctx,
				schedule.RunAt,
				t,
				e.Name,
				e.EntityType,
				seriesValue(e.Consumed, t),
				seriesValue(e.Produced, t),
				seriesValue(e.Stored, t),
				schedule.Cost,
			)
			if err != nil {
				return fmt.Errorf("failed to insert row for entity %q timestep %d: %w", e.Name, t, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Printf("Saved schedule with %d entities x %d timesteps to database",
		len(schedule.Entities), schedule.Timesteps)
	return nil
}

// seriesValue returns a nullable column value for an output series that may
// be absent for the entity's variant.
func seriesValue(series []float64, t int) sql.NullFloat64 {
	if t >= len(series) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: series[t], Valid: true}
}

// loadLatestSchedule loads the most recent schedule from the database.
func (s *DispatchService) loadLatestSchedule(ctx context.Context) (*Schedule, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection not available")
	}

	var latestRun sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT MAX(run_at) FROM dispatch_schedule`).Scan(&latestRun)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	if !latestRun.Valid {
		return nil, nil
	}
	runAt := latestRun.Time

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			timestep,
			entity_name,
			entity_type,
			consumed,
			produced,
			stored,
			total_cost
		FROM dispatch_schedule
		WHERE run_at = $1
		ORDER BY entity_name, timestep ASC
	`, runAt)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule rows: %w", err)
	}
	defer rows.Close()

	schedule := &Schedule{RunAt: runAt}
	byName := make(map[string]int)

	for rows.Next() {
		var (
			timestep                   int
			name, entityType           string
			consumed, produced, stored sql.NullFloat64
			cost                       float64
		)
		if err := rows.Scan(&timestep, &name, &entityType, &consumed, &produced, &stored, &cost); err != nil {
			return nil, fmt.Errorf("failed to scan schedule row: %w", err)
		}

		schedule.Cost = cost
		if timestep+1 > schedule.Timesteps {
			schedule.Timesteps = timestep + 1
		}

		idx, ok := byName[name]
		if !ok {
			idx = len(schedule.Entities)
			schedule.Entities = append(schedule.Entities, document.EntityJSON{Name: name, EntityType: entityType})
			byName[name] = idx
		}
		e := &schedule.Entities[idx]
		if consumed.Valid {
			e.Consumed = append(e.Consumed, consumed.Float64)
		}
		if produced.Valid {
			e.Produced = append(e.Produced, produced.Float64)
		}
		if stored.Valid {
			e.Stored = append(e.Stored, stored.Float64)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule rows: %w", err)
	}

	if len(schedule.Entities) == 0 {
		s.logger.Printf("No persisted schedule found in database")
		return nil, nil
	}

	s.logger.Printf("Loaded schedule from database (run at %s)", runAt.Format(time.RFC3339))
	return schedule, nil
}
