package solver

import (
	"github.com/costela/golpa"

	"github.com/devskill-org/dispatch/entity"
)

// project reads the solved variable values back onto the entities' output
// time series, in input entity order. Consumer and grid series are in
// nameplate power units; storage Produced is in delivered (post-efficiency)
// power while Consumed stays pre-efficiency, and the state-of-charge series
// undoes the efficiencies again to remain in stored-energy units.
func (m *Model) project(res *golpa.SolveResult, entities []*entity.Entity) {
	for i, e := range entities {
		ev := m.vars[i]
		switch e.Kind {
		case entity.KindConsumer:
			c := e.Consumer
			c.Consumed = make([]float64, m.timesteps)
			for t, v := range ev.consumed {
				c.Consumed[t] = res.Value(v) * c.PowerCons.At(t)
			}

		case entity.KindProducer:
			p := e.Producer
			p.Produced = make([]float64, m.timesteps)
			for t, v := range ev.produced {
				p.Produced[t] = res.Value(v) * p.PowerProd.At(t)
			}

		case entity.KindStorage:
			s := e.Storage
			s.Consumed = make([]float64, m.timesteps)
			s.Produced = make([]float64, m.timesteps)
			s.Stored = make([]float64, m.timesteps)

			stored := s.StartCapacity
			for t := 0; t < m.timesteps; t++ {
				s.Consumed[t] = res.Value(ev.consumed[t]) * s.PowerCons.At(t)
				s.Produced[t] = res.Value(ev.produced[t]) * s.PowerProd.At(t) * s.EffProd.At(t)

				stored += s.Consumed[t]*s.EffCons.At(t) - s.Produced[t]/s.EffProd.At(t)
				s.Stored[t] = stored
			}

		case entity.KindGrid:
			g := e.Grid
			g.Consumed = make([]float64, m.timesteps)
			g.Produced = make([]float64, m.timesteps)
			for t := 0; t < m.timesteps; t++ {
				g.Consumed[t] = res.Value(ev.consumed[t]) * g.PowerCons.At(t)
				g.Produced[t] = res.Value(ev.produced[t]) * g.PowerProd.At(t)
			}
		}
	}
}
