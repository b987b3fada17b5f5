// Package solver builds and solves the multi-period dispatch problem: a
// mixed-integer linear program whose variables are the fractional utilization
// of each entity's nameplate power at each timestep, subject to node power
// balance, storage state-of-charge bounds and charge/discharge exclusivity.
package solver

import (
	"fmt"
	"math"

	"github.com/costela/golpa"

	"github.com/devskill-org/dispatch/entity"
)

// entityVars holds the solver variable handles for one entity, indexed by
// timestep: consumed[t] and produced[t] always refer to timestep t. The
// handles live only between model construction and result projection and are
// kept out of the serializable entity structs on purpose.
type entityVars struct {
	consumed  []*golpa.Variable
	produced  []*golpa.Variable
	producing []*golpa.Variable // binary mutex, Storage and Grid only
}

// linexpr accumulates one side of a linear constraint.
type linexpr struct {
	vars  []*golpa.Variable
	coefs []float64
}

func (l *linexpr) add(v *golpa.Variable, coef float64) {
	l.vars = append(l.vars, v)
	l.coefs = append(l.coefs, coef)
}

func (l *linexpr) empty() bool { return len(l.vars) == 0 }

// diff builds the expression a - b.
func diff(a, b linexpr) linexpr {
	var d linexpr
	for i, v := range a.vars {
		d.add(v, a.coefs[i])
	}
	for i, v := range b.vars {
		d.add(v, -b.coefs[i])
	}
	return d
}

// modelBuilder wires entities into a golpa model. The first solver error
// sticks and short-circuits the remaining calls.
type modelBuilder struct {
	lp   *golpa.Model
	vars []entityVars
	err  error
}

func (b *modelBuilder) variable(name string, cost float64) *golpa.Variable {
	if b.err != nil {
		return nil
	}
	v, err := b.lp.AddDefinedVariable(name, golpa.ContinuousVariable, cost, 0, 1)
	if err != nil {
		b.err = fmt.Errorf("failed to add variable %s: %w", name, err)
	}
	return v
}

func (b *modelBuilder) binary(name string) *golpa.Variable {
	if b.err != nil {
		return nil
	}
	v, err := b.lp.AddBinaryVariable(name)
	if err != nil {
		b.err = fmt.Errorf("failed to add binary variable %s: %w", name, err)
		return nil
	}
	// Binary mutex variables carry no cost.
	v.SetObjectiveCoefficient(0)
	return v
}

func (b *modelBuilder) constrain(lower, upper float64, e linexpr) {
	if b.err != nil || e.empty() {
		return
	}
	if err := b.lp.AddConstraint(lower, upper, e.vars, e.coefs); err != nil {
		b.err = fmt.Errorf("failed to add constraint: %w", err)
	}
}

// Model holds a built problem ready to be solved, plus the variable handle
// table needed to project the solution back onto the entities.
type Model struct {
	lp        *golpa.Model
	vars      []entityVars
	timesteps int
}

// BuildModel translates the entity list into a MILP over the given horizon.
// Entities are visited in input order at every timestep and per-timestep
// variable handles are appended in timestep order; the result projection
// relies on this indexing discipline.
func BuildModel(entities []*entity.Entity, timesteps int) (*Model, error) {
	if timesteps < 1 {
		return nil, fmt.Errorf("timesteps must be at least 1, got %d", timesteps)
	}
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}

	lp, err := golpa.NewModel("dispatch", golpa.Minimize)
	if err != nil {
		return nil, fmt.Errorf("failed to create solver model: %w", err)
	}

	b := &modelBuilder{lp: lp, vars: make([]entityVars, len(entities))}

	for t := 0; t < timesteps; t++ {
		// Net power injected into the node; must sum to zero (Kirchhoff).
		var node linexpr

		// Aggregate sink demand and source output in pre-efficiency power
		// units, plus the shares belonging to coupling-restricted storages.
		var consumed, produced linexpr
		var consumedStorage, producedStorage linexpr

		for i, e := range entities {
			ev := &b.vars[i]
			switch e.Kind {
			case entity.KindConsumer:
				c := e.Consumer
				cv := b.variable(fmt.Sprintf("%s-%d-c", c.Name, t), c.CostCons.At(t)*c.PowerCons.At(t))
				ev.consumed = append(ev.consumed, cv)

				// Demand is inflexible: the variable is pinned to 1 and
				// exists only to uniformize the objective and node terms.
				b.constrain(1, 1, linexpr{vars: []*golpa.Variable{cv}, coefs: []float64{1}})

				node.add(cv, -c.PowerCons.At(t)/c.EffCons.At(t))
				consumed.add(cv, c.PowerCons.At(t)/c.EffCons.At(t))

			case entity.KindProducer:
				p := e.Producer
				pv := b.variable(fmt.Sprintf("%s-%d-p", p.Name, t), p.CostProd.At(t)*p.PowerProd.At(t))
				ev.produced = append(ev.produced, pv)

				if !p.CanBeDisabled {
					b.constrain(1, 1, linexpr{vars: []*golpa.Variable{pv}, coefs: []float64{1}})
				}

				node.add(pv, p.PowerProd.At(t)*p.EffProd.At(t))
				produced.add(pv, p.PowerProd.At(t)/p.EffProd.At(t))

			case entity.KindStorage:
				s := e.Storage
				cv := b.variable(fmt.Sprintf("%s-%d-c", s.Name, t), s.CostCons.At(t)*s.PowerCons.At(t))
				pv := b.variable(fmt.Sprintf("%s-%d-p", s.Name, t), s.CostProd.At(t)*s.PowerProd.At(t))
				bv := b.binary(fmt.Sprintf("%s-%d-b", s.Name, t))
				ev.consumed = append(ev.consumed, cv)
				ev.produced = append(ev.produced, pv)
				ev.producing = append(ev.producing, bv)

				// Charging and discharging are mutually exclusive:
				// produced <= b and consumed <= 1 - b.
				b.constrain(math.Inf(-1), 0, linexpr{vars: []*golpa.Variable{pv, bv}, coefs: []float64{1, -1}})
				b.constrain(math.Inf(-1), 1, linexpr{vars: []*golpa.Variable{cv, bv}, coefs: []float64{1, 1}})

				consumed.add(cv, s.PowerCons.At(t)/s.EffCons.At(t))
				produced.add(pv, s.PowerProd.At(t)/s.EffProd.At(t))
				if !s.StorageToGridAllowed {
					producedStorage.add(pv, s.PowerProd.At(t)/s.EffProd.At(t))
				}
				if !s.GridToStorageAllowed {
					consumedStorage.add(cv, s.PowerCons.At(t)/s.EffCons.At(t))
				}

				// State of charge after this timestep:
				// start + sum over j<=t of (c_j * eff_cons(j) * power_cons(j)
				// - p_j * power_prod(j)), bounded by [0, capacity].
				var soc linexpr
				for j := 0; j <= t; j++ {
					soc.add(ev.consumed[j], s.EffCons.At(j)*s.PowerCons.At(j))
					soc.add(ev.produced[j], -s.PowerProd.At(j))
				}
				b.constrain(-s.StartCapacity, s.StorageCapacity-s.StartCapacity, soc)

				if s.EndCapacity != nil && t == timesteps-1 {
					target := *s.EndCapacity - s.StartCapacity
					b.constrain(target, target, soc)
				}

				node.add(pv, s.PowerProd.At(t)*s.EffProd.At(t))
				node.add(cv, -s.PowerCons.At(t)/s.EffCons.At(t))

			case entity.KindGrid:
				g := e.Grid
				cv := b.variable(fmt.Sprintf("%s-%d-c", g.Name, t), g.CostCons.At(t)*g.PowerCons.At(t))
				pv := b.variable(fmt.Sprintf("%s-%d-p", g.Name, t), g.CostProd.At(t)*g.PowerProd.At(t))
				bv := b.binary(fmt.Sprintf("%s-%d-b", g.Name, t))
				ev.consumed = append(ev.consumed, cv)
				ev.produced = append(ev.produced, pv)
				ev.producing = append(ev.producing, bv)

				// Importing and exporting are mutually exclusive.
				b.constrain(math.Inf(-1), 0, linexpr{vars: []*golpa.Variable{pv, bv}, coefs: []float64{1, -1}})
				b.constrain(math.Inf(-1), 1, linexpr{vars: []*golpa.Variable{cv, bv}, coefs: []float64{1, 1}})

				// The grid is lossless at the node.
				node.add(pv, g.PowerProd.At(t))
				node.add(cv, -g.PowerCons.At(t))
			}
		}

		if b.err != nil {
			return nil, b.err
		}

		// Kirchhoff: net injection at the node is zero.
		b.constrain(0, 0, node)

		// Coupling restrictions: the charge demand of storages that may not
		// charge from the grid must be coverable by local sources, and the
		// discharge of storages that may not feed the grid must be
		// absorbable by local sinks. Aggregate-level only: feasibility of
		// the totals, no pinning of individual flow pairs.
		if !consumedStorage.empty() {
			b.constrain(0, math.Inf(1), diff(produced, consumedStorage))
		}
		if !producedStorage.empty() {
			b.constrain(0, math.Inf(1), diff(consumed, producedStorage))
		}
	}

	if b.err != nil {
		return nil, b.err
	}

	return &Model{lp: b.lp, vars: b.vars, timesteps: timesteps}, nil
}
