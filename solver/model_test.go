package solver

import (
	"strings"
	"testing"

	"github.com/devskill-org/dispatch/entity"
)

func mustConsumer(t *testing.T, name string, power, eff, cost entity.Profile) *entity.Entity {
	t.Helper()
	c, err := entity.NewConsumer(name, power, eff, cost)
	if err != nil {
		t.Fatalf("NewConsumer(%s): %v", name, err)
	}
	return entity.Wrap(c)
}

func mustProducer(t *testing.T, name string, power, eff, cost entity.Profile, canBeDisabled bool) *entity.Entity {
	t.Helper()
	p, err := entity.NewProducer(name, power, eff, cost, canBeDisabled)
	if err != nil {
		t.Fatalf("NewProducer(%s): %v", name, err)
	}
	return entity.Wrap(p)
}

func mustStorage(t *testing.T, name string, capacity, start float64, end *float64, toGrid, fromGrid bool) *entity.Entity {
	t.Helper()
	s, err := entity.NewStorage(name,
		entity.Profile{1.0}, entity.Profile{1.0}, entity.Profile{0.0},
		entity.Profile{1.0}, entity.Profile{1.0}, entity.Profile{0.0},
		capacity, start, end, toGrid, fromGrid)
	if err != nil {
		t.Fatalf("NewStorage(%s): %v", name, err)
	}
	return entity.Wrap(s)
}

func mustGrid(t *testing.T, name string, powerProd, costProd, powerCons, costCons entity.Profile) *entity.Entity {
	t.Helper()
	g, err := entity.NewGrid(name, powerProd, costProd, powerCons, costCons)
	if err != nil {
		t.Fatalf("NewGrid(%s): %v", name, err)
	}
	return entity.Wrap(g)
}

func TestBuildModel_RejectsZeroTimesteps(t *testing.T) {
	entities := []*entity.Entity{
		mustConsumer(t, "house", entity.Profile{1.0}, entity.Profile{1.0}, entity.Profile{0.0}),
	}
	_, err := BuildModel(entities, 0)
	if err == nil {
		t.Fatal("expected error for timesteps = 0")
	}
	if !strings.Contains(err.Error(), "timesteps") {
		t.Errorf("error should mention timesteps, got: %v", err)
	}
}

func TestBuildModel_RejectsInvalidEntity(t *testing.T) {
	// Hand-built entity bypassing the constructor validation.
	bad := entity.Wrap(&entity.Consumer{
		Name:      "house",
		PowerCons: entity.Profile{1.0},
		EffCons:   entity.Profile{1.5},
		CostCons:  entity.Profile{0.0},
	})
	_, err := BuildModel([]*entity.Entity{bad}, 1)
	if err == nil {
		t.Fatal("expected error for out-of-range efficiency")
	}
}

func TestBuildModel_VariableCounts(t *testing.T) {
	tests := []struct {
		name      string
		entities  []*entity.Entity
		timesteps int
		expected  int
	}{
		{
			name: "consumer has one variable per timestep",
			entities: []*entity.Entity{
				mustConsumer(t, "house", entity.Profile{1.0}, entity.Profile{1.0}, entity.Profile{0.0}),
			},
			timesteps: 4,
			expected:  4,
		},
		{
			name: "storage has three variables per timestep",
			entities: []*entity.Entity{
				mustStorage(t, "battery", 20, 10, nil, true, true),
			},
			timesteps: 4,
			// consumed + produced + producing binary = 3 per timestep
			expected: 12,
		},
		{
			name: "grid has three variables per timestep",
			entities: []*entity.Entity{
				mustGrid(t, "city", entity.Profile{1.0}, entity.Profile{0.0}, entity.Profile{1.0}, entity.Profile{0.0}),
			},
			timesteps: 3,
			expected:  9,
		},
		{
			name: "mixed list",
			entities: []*entity.Entity{
				mustConsumer(t, "house", entity.Profile{1.0}, entity.Profile{1.0}, entity.Profile{0.0}),
				mustProducer(t, "pv", entity.Profile{1.0}, entity.Profile{1.0}, entity.Profile{0.0}, true),
				mustStorage(t, "battery", 20, 10, nil, true, true),
				mustGrid(t, "city", entity.Profile{1.0}, entity.Profile{0.0}, entity.Profile{1.0}, entity.Profile{0.0}),
			},
			timesteps: 2,
			// (1 + 1 + 3 + 3) per timestep
			expected: 16,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := BuildModel(tt.entities, tt.timesteps)
			if err != nil {
				t.Fatalf("BuildModel returned error: %v", err)
			}
			if got := m.lp.VariableCount(); got != tt.expected {
				t.Errorf("VariableCount() = %d, expected %d", got, tt.expected)
			}
		})
	}
}

func TestBuildModel_HandleTableShape(t *testing.T) {
	entities := []*entity.Entity{
		mustConsumer(t, "house", entity.Profile{1.0}, entity.Profile{1.0}, entity.Profile{0.0}),
		mustProducer(t, "pv", entity.Profile{1.0}, entity.Profile{1.0}, entity.Profile{0.0}, true),
		mustStorage(t, "battery", 20, 10, nil, true, true),
		mustGrid(t, "city", entity.Profile{1.0}, entity.Profile{0.0}, entity.Profile{1.0}, entity.Profile{0.0}),
	}
	const timesteps = 5

	m, err := BuildModel(entities, timesteps)
	if err != nil {
		t.Fatalf("BuildModel returned error: %v", err)
	}

	if len(m.vars) != len(entities) {
		t.Fatalf("len(vars) = %d, expected %d", len(m.vars), len(entities))
	}

	// The handle table mirrors the entity order: consumed[t]/produced[t]
	// always refer to timestep t, with exactly one handle per timestep for
	// each side the variant has.
	checks := []struct {
		idx                           int
		consumed, produced, producing int
	}{
		{0, timesteps, 0, 0},                 // consumer
		{1, 0, timesteps, 0},                 // producer
		{2, timesteps, timesteps, timesteps}, // storage
		{3, timesteps, timesteps, timesteps}, // grid
	}
	for _, c := range checks {
		ev := m.vars[c.idx]
		if len(ev.consumed) != c.consumed {
			t.Errorf("entity %d: len(consumed) = %d, expected %d", c.idx, len(ev.consumed), c.consumed)
		}
		if len(ev.produced) != c.produced {
			t.Errorf("entity %d: len(produced) = %d, expected %d", c.idx, len(ev.produced), c.produced)
		}
		if len(ev.producing) != c.producing {
			t.Errorf("entity %d: len(producing) = %d, expected %d", c.idx, len(ev.producing), c.producing)
		}
		for _, v := range ev.consumed {
			if v == nil {
				t.Fatalf("entity %d: nil consumed handle", c.idx)
			}
		}
		for _, v := range ev.produced {
			if v == nil {
				t.Fatalf("entity %d: nil produced handle", c.idx)
			}
		}
	}
}

func TestBuildModel_EmptyEntityList(t *testing.T) {
	m, err := BuildModel(nil, 3)
	if err != nil {
		t.Fatalf("BuildModel returned error for empty list: %v", err)
	}
	if got := m.lp.VariableCount(); got != 0 {
		t.Errorf("VariableCount() = %d, expected 0", got)
	}
}
