package solver

import (
	"context"
	"fmt"

	"github.com/devskill-org/dispatch/entity"
)

// Solve builds the dispatch MILP for the given entities and horizon, solves
// it and populates the entities' output time series in place. It returns the
// minimized total cost. The call is synchronous and owns the entity list for
// its duration; on error no outputs are populated.
func Solve(entities []*entity.Entity, timesteps int) (float64, error) {
	return SolveContext(context.Background(), entities, timesteps)
}

// SolveContext is Solve with a context: cancellation aborts the underlying
// solver run.
func SolveContext(ctx context.Context, entities []*entity.Entity, timesteps int) (float64, error) {
	m, err := BuildModel(entities, timesteps)
	if err != nil {
		return 0, err
	}

	res, err := m.lp.SolveWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("solver failed: %w", err)
	}

	m.project(res, entities)
	return res.ObjectiveValue(), nil
}
