// Package document reads and writes the JSON documents the dispatch solver
// exchanges with its callers: an input document carrying the entity list and
// the horizon, and an output array carrying the same entities with their
// solved time series.
package document

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/devskill-org/dispatch/entity"
)

// EntityJSON is the wire shape of one entity. Which fields are required
// depends on EntityType; the output arrays are only ever populated by the
// solver. Solver variable handles never appear here.
type EntityJSON struct {
	Name       string `json:"name"`
	EntityType string `json:"entity_type"`

	CostProd  []float64 `json:"cost_prod,omitempty"`
	PowerProd []float64 `json:"power_prod,omitempty"`
	CostCons  []float64 `json:"cost_cons,omitempty"`
	PowerCons []float64 `json:"power_cons,omitempty"`
	EffProd   []float64 `json:"eff_prod,omitempty"`
	EffCons   []float64 `json:"eff_cons,omitempty"`

	CanBeDisabled *bool `json:"can_be_disabled,omitempty"`

	StorageCapacity      *float64 `json:"storage_capacity,omitempty"`
	StartCapacity        *float64 `json:"start_capacity,omitempty"`
	EndCapacity          *float64 `json:"end_capacity,omitempty"`
	StorageToGridAllowed *bool    `json:"storage_to_grid_allowed,omitempty"`
	GridToStorageAllowed *bool    `json:"grid_to_storage_allowed,omitempty"`

	Consumed []float64 `json:"consumed,omitempty"`
	Produced []float64 `json:"produced,omitempty"`
	Stored   []float64 `json:"stored,omitempty"`
}

// Document is the top-level input shape.
type Document struct {
	Entities  []EntityJSON `json:"entities"`
	Timesteps int          `json:"timesteps"`
}

// Load decodes and structurally validates an input document.
func Load(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode input document: %w", err)
	}
	if doc.Timesteps < 1 {
		return nil, fmt.Errorf("timesteps must be at least 1, got %d", doc.Timesteps)
	}
	return &doc, nil
}

// Build constructs validated entities from the document, in input order.
func (d *Document) Build() ([]*entity.Entity, error) {
	entities := make([]*entity.Entity, 0, len(d.Entities))
	for i := range d.Entities {
		e, err := d.Entities[i].build()
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func (ej *EntityJSON) build() (*entity.Entity, error) {
	switch ej.EntityType {
	case string(entity.KindConsumer):
		if err := ej.require(map[string]bool{
			"power_cons": ej.PowerCons != nil,
			"eff_cons":   ej.EffCons != nil,
			"cost_cons":  ej.CostCons != nil,
		}); err != nil {
			return nil, err
		}
		c, err := entity.NewConsumer(ej.Name, ej.PowerCons, ej.EffCons, ej.CostCons)
		if err != nil {
			return nil, err
		}
		return entity.Wrap(c), nil

	case string(entity.KindProducer):
		if err := ej.require(map[string]bool{
			"power_prod":      ej.PowerProd != nil,
			"eff_prod":        ej.EffProd != nil,
			"cost_prod":       ej.CostProd != nil,
			"can_be_disabled": ej.CanBeDisabled != nil,
		}); err != nil {
			return nil, err
		}
		p, err := entity.NewProducer(ej.Name, ej.PowerProd, ej.EffProd, ej.CostProd, *ej.CanBeDisabled)
		if err != nil {
			return nil, err
		}
		return entity.Wrap(p), nil

	case string(entity.KindStorage):
		if err := ej.require(map[string]bool{
			"power_prod":              ej.PowerProd != nil,
			"eff_prod":                ej.EffProd != nil,
			"cost_prod":               ej.CostProd != nil,
			"power_cons":              ej.PowerCons != nil,
			"eff_cons":                ej.EffCons != nil,
			"cost_cons":               ej.CostCons != nil,
			"storage_capacity":        ej.StorageCapacity != nil,
			"start_capacity":          ej.StartCapacity != nil,
			"storage_to_grid_allowed": ej.StorageToGridAllowed != nil,
			"grid_to_storage_allowed": ej.GridToStorageAllowed != nil,
		}); err != nil {
			return nil, err
		}
		s, err := entity.NewStorage(ej.Name,
			ej.PowerProd, ej.EffProd, ej.CostProd,
			ej.PowerCons, ej.EffCons, ej.CostCons,
			*ej.StorageCapacity, *ej.StartCapacity, ej.EndCapacity,
			*ej.StorageToGridAllowed, *ej.GridToStorageAllowed)
		if err != nil {
			return nil, err
		}
		return entity.Wrap(s), nil

	case string(entity.KindGrid):
		if err := ej.require(map[string]bool{
			"power_prod": ej.PowerProd != nil,
			"cost_prod":  ej.CostProd != nil,
			"power_cons": ej.PowerCons != nil,
			"cost_cons":  ej.CostCons != nil,
		}); err != nil {
			return nil, err
		}
		g, err := entity.NewGrid(ej.Name, ej.PowerProd, ej.CostProd, ej.PowerCons, ej.CostCons)
		if err != nil {
			return nil, err
		}
		return entity.Wrap(g), nil
	}

	return nil, fmt.Errorf("entity %q: unknown entity_type %q", ej.Name, ej.EntityType)
}

// require reports the first missing required field, in a stable order.
func (ej *EntityJSON) require(fields map[string]bool) error {
	order := []string{
		"power_prod", "eff_prod", "cost_prod",
		"power_cons", "eff_cons", "cost_cons",
		"can_be_disabled",
		"storage_capacity", "start_capacity",
		"storage_to_grid_allowed", "grid_to_storage_allowed",
	}
	for _, name := range order {
		present, checked := fields[name]
		if checked && !present {
			return fmt.Errorf("entity %q (%s): missing required field %q", ej.Name, ej.EntityType, name)
		}
	}
	return nil
}

// Result renders the output document: the input entities in input order,
// each with its solved time series attached.
func (d *Document) Result(entities []*entity.Entity) []EntityJSON {
	out := make([]EntityJSON, len(d.Entities))
	for i := range d.Entities {
		out[i] = d.Entities[i]
		e := entities[i]
		switch e.Kind {
		case entity.KindConsumer:
			out[i].Consumed = e.Consumer.Consumed
		case entity.KindProducer:
			out[i].Produced = e.Producer.Produced
		case entity.KindStorage:
			out[i].Consumed = e.Storage.Consumed
			out[i].Produced = e.Storage.Produced
			out[i].Stored = e.Storage.Stored
		case entity.KindGrid:
			out[i].Consumed = e.Grid.Consumed
			out[i].Produced = e.Grid.Produced
		}
	}
	return out
}

// Write encodes the output document.
func Write(w io.Writer, result []EntityJSON) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode result document: %w", err)
	}
	return nil
}
