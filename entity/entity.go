// Package entity defines the energy entities that participate in a dispatch
// optimization: consumers, producers, storages and grid connections. Each
// entity is a passive record of time profiles plus the output time series
// filled in after a solve.
package entity

import "fmt"

// Profile is a cyclic time profile. A profile of length 1 is a constant, a
// profile of length 24 is a daily pattern, and so on. At is the only
// sanctioned way to read a profile by timestep.
type Profile []float64

// At returns the profile value for the given timestep, wrapping cyclically.
func (p Profile) At(timestep int) float64 {
	return p[timestep%len(p)]
}

// Kind identifies the entity variant.
type Kind string

const (
	KindConsumer Kind = "Consumer"
	KindProducer Kind = "Producer"
	KindStorage  Kind = "Storage"
	KindGrid     Kind = "Grid"
)

// Consumer has a fixed demand profile that must be served exactly at every
// timestep. It is not a flexible load.
type Consumer struct {
	Name      string
	PowerCons Profile // demanded power, kW
	EffCons   Profile // consumption efficiency, 0-1
	CostCons  Profile // cost per unit demanded power

	// Consumed is filled in by the solve, one entry per timestep.
	Consumed []float64
}

// NewConsumer creates a validated consumer.
func NewConsumer(name string, powerCons, effCons, costCons Profile) (*Consumer, error) {
	c := &Consumer{
		Name:      name,
		PowerCons: powerCons,
		EffCons:   effCons,
		CostCons:  costCons,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the consumer's profiles.
func (c *Consumer) Validate() error {
	if err := checkProfile(c.Name, "power_cons", c.PowerCons); err != nil {
		return err
	}
	if err := checkEfficiency(c.Name, "eff_cons", c.EffCons); err != nil {
		return err
	}
	return checkProfile(c.Name, "cost_cons", c.CostCons)
}

// Producer produces power at nameplate rating. If CanBeDisabled is false the
// producer runs at full power at every timestep; otherwise its output scales
// freely between zero and the nameplate profile.
type Producer struct {
	Name          string
	PowerProd     Profile
	EffProd       Profile
	CostProd      Profile
	CanBeDisabled bool

	Produced []float64
}

// NewProducer creates a validated producer.
func NewProducer(name string, powerProd, effProd, costProd Profile, canBeDisabled bool) (*Producer, error) {
	p := &Producer{
		Name:          name,
		PowerProd:     powerProd,
		EffProd:       effProd,
		CostProd:      costProd,
		CanBeDisabled: canBeDisabled,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the producer's profiles.
func (p *Producer) Validate() error {
	if err := checkProfile(p.Name, "power_prod", p.PowerProd); err != nil {
		return err
	}
	if err := checkEfficiency(p.Name, "eff_prod", p.EffProd); err != nil {
		return err
	}
	return checkProfile(p.Name, "cost_prod", p.CostProd)
}

// Storage is an energy store with independent charge (consumption) and
// discharge (production) sides. State of charge is bounded by
// [0, StorageCapacity] at every timestep and starts at StartCapacity.
type Storage struct {
	Name string

	// Discharge side.
	PowerProd Profile
	EffProd   Profile
	CostProd  Profile

	// Charge side.
	PowerCons Profile
	EffCons   Profile
	CostCons  Profile

	StorageCapacity float64
	StartCapacity   float64
	// EndCapacity, when set, pins the state of charge at the final timestep.
	EndCapacity *float64

	// Coupling switches. When StorageToGridAllowed is false, this storage's
	// discharge must be absorbable by local sinks at the same timestep;
	// when GridToStorageAllowed is false, its charge must be coverable by
	// local sources.
	StorageToGridAllowed bool
	GridToStorageAllowed bool

	Consumed []float64 // charge power drawn, pre-efficiency
	Produced []float64 // discharge power delivered, post-efficiency
	Stored   []float64 // state of charge after each timestep
}

// NewStorage creates a validated storage.
func NewStorage(name string, powerProd, effProd, costProd, powerCons, effCons, costCons Profile,
	storageCapacity, startCapacity float64, endCapacity *float64,
	storageToGridAllowed, gridToStorageAllowed bool) (*Storage, error) {
	s := &Storage{
		Name:                 name,
		PowerProd:            powerProd,
		EffProd:              effProd,
		CostProd:             costProd,
		PowerCons:            powerCons,
		EffCons:              effCons,
		CostCons:             costCons,
		StorageCapacity:      storageCapacity,
		StartCapacity:        startCapacity,
		EndCapacity:          endCapacity,
		StorageToGridAllowed: storageToGridAllowed,
		GridToStorageAllowed: gridToStorageAllowed,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the storage's profiles.
func (s *Storage) Validate() error {
	if err := checkProfile(s.Name, "power_prod", s.PowerProd); err != nil {
		return err
	}
	if err := checkEfficiency(s.Name, "eff_prod", s.EffProd); err != nil {
		return err
	}
	if err := checkProfile(s.Name, "cost_prod", s.CostProd); err != nil {
		return err
	}
	if err := checkProfile(s.Name, "power_cons", s.PowerCons); err != nil {
		return err
	}
	if err := checkEfficiency(s.Name, "eff_cons", s.EffCons); err != nil {
		return err
	}
	return checkProfile(s.Name, "cost_cons", s.CostCons)
}

// Grid is a symmetric two-port connection: independent profiles for import
// (consumption side, power flowing out of the node) and export (production
// side, power flowing into the node). Costs may be negative (feed-in tariff).
// The grid is modeled lossless at the node.
type Grid struct {
	Name      string
	PowerProd Profile
	CostProd  Profile
	PowerCons Profile
	CostCons  Profile

	Consumed []float64
	Produced []float64
}

// NewGrid creates a validated grid connection.
func NewGrid(name string, powerProd, costProd, powerCons, costCons Profile) (*Grid, error) {
	g := &Grid{
		Name:      name,
		PowerProd: powerProd,
		CostProd:  costProd,
		PowerCons: powerCons,
		CostCons:  costCons,
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks the grid's profiles.
func (g *Grid) Validate() error {
	if err := checkProfile(g.Name, "power_prod", g.PowerProd); err != nil {
		return err
	}
	if err := checkProfile(g.Name, "cost_prod", g.CostProd); err != nil {
		return err
	}
	if err := checkProfile(g.Name, "power_cons", g.PowerCons); err != nil {
		return err
	}
	return checkProfile(g.Name, "cost_cons", g.CostCons)
}

// Entity is a tagged union over the four variants. Exactly one of the variant
// pointers is non-nil and matches Kind. Dispatching on Kind keeps all physics
// of a variant in one place in the model builder and the result projector.
type Entity struct {
	Kind Kind

	Consumer *Consumer
	Producer *Producer
	Storage  *Storage
	Grid     *Grid
}

// Wrap returns the Entity for a variant value.
func Wrap(v any) *Entity {
	switch v := v.(type) {
	case *Consumer:
		return &Entity{Kind: KindConsumer, Consumer: v}
	case *Producer:
		return &Entity{Kind: KindProducer, Producer: v}
	case *Storage:
		return &Entity{Kind: KindStorage, Storage: v}
	case *Grid:
		return &Entity{Kind: KindGrid, Grid: v}
	}
	panic(fmt.Sprintf("entity: unknown variant %T", v))
}

// Name returns the entity's unique name.
func (e *Entity) Name() string {
	switch e.Kind {
	case KindConsumer:
		return e.Consumer.Name
	case KindProducer:
		return e.Producer.Name
	case KindStorage:
		return e.Storage.Name
	case KindGrid:
		return e.Grid.Name
	}
	return ""
}

// Validate checks the wrapped variant.
func (e *Entity) Validate() error {
	switch e.Kind {
	case KindConsumer:
		if e.Consumer == nil {
			return fmt.Errorf("entity tagged %s has no consumer variant", e.Kind)
		}
		return e.Consumer.Validate()
	case KindProducer:
		if e.Producer == nil {
			return fmt.Errorf("entity tagged %s has no producer variant", e.Kind)
		}
		return e.Producer.Validate()
	case KindStorage:
		if e.Storage == nil {
			return fmt.Errorf("entity tagged %s has no storage variant", e.Kind)
		}
		return e.Storage.Validate()
	case KindGrid:
		if e.Grid == nil {
			return fmt.Errorf("entity tagged %s has no grid variant", e.Kind)
		}
		return e.Grid.Validate()
	}
	return fmt.Errorf("unknown entity kind: %q", e.Kind)
}

func checkProfile(entityName, field string, p Profile) error {
	if len(p) == 0 {
		return fmt.Errorf("entity %q: %s profile must not be empty", entityName, field)
	}
	return nil
}

func checkEfficiency(entityName, field string, p Profile) error {
	if err := checkProfile(entityName, field, p); err != nil {
		return err
	}
	for i, v := range p {
		if v < 0 || v > 1 {
			return fmt.Errorf("entity %q: %s[%d] = %v is outside [0, 1]", entityName, field, i, v)
		}
	}
	return nil
}
