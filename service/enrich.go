package service

import (
	"context"
	"fmt"
	"time"

	"github.com/devskill-org/dispatch/entity"
	"github.com/devskill-org/dispatch/market"
	"github.com/devskill-org/dispatch/plant"
)

// applyMarketPrices replaces the configured grid entity's cost profiles with
// the day-ahead market prices, converted to EUR/kWh with the configured fees
// applied. The profile has one entry per hour of the market day; profile
// wrapping repeats it across longer horizons.
func (s *DispatchService) applyMarketPrices(ctx context.Context, entities []*entity.Entity) error {
	config := s.GetConfig()

	grid, err := findGrid(entities, config.MarketGridName)
	if err != nil {
		return err
	}

	doc, err := s.getPriceDocument(ctx)
	if err != nil {
		return err
	}

	location, err := time.LoadLocation(config.Location)
	if err != nil {
		return fmt.Errorf("failed to load market timezone %q: %w", config.Location, err)
	}

	now := s.nowFunc().In(location)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, location)

	prices, complete := doc.HourlyProfile(dayStart, 24)
	if !complete {
		s.logger.Printf("Price document does not cover the full market day, missing hours priced at 0")
	}

	importCosts := make(entity.Profile, len(prices))
	exportCosts := make(entity.Profile, len(prices))
	for h, price := range prices {
		// Import: add operator and delivery fees. Export: subtract the
		// operator fee; the result may go negative (feed-in revenue).
		// Prices arrive in EUR/MWh and the profiles are per kWh.
		importCosts[h] = (price + config.ImportOperatorFee + config.ImportDeliveryFee) / 1000.0
		exportCosts[h] = (price - config.ExportOperatorFee) / 1000.0
	}

	grid.CostCons = importCosts
	grid.CostProd = exportCosts

	s.logger.Printf("Applied market prices to grid %q (%d hourly entries)", grid.Name, len(prices))
	return nil
}

// getPriceDocument returns the cached price document or downloads a new one.
func (s *DispatchService) getPriceDocument(ctx context.Context) (*market.PriceDocument, error) {
	if doc, ok := s.priceCache.Get(); ok {
		return doc, nil
	}

	config := s.GetConfig()

	location, err := time.LoadLocation(config.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to load market timezone %q: %w", config.Location, err)
	}

	ctx, cancel := context.WithTimeout(ctx, config.APITimeout)
	defer cancel()

	doc, err := market.DownloadPriceDocument(ctx, config.SecurityToken, config.URLFormat, location, s.nowFunc())
	if err != nil {
		return nil, fmt.Errorf("failed to download price document: %w", err)
	}

	s.priceCache.Set(doc)
	return doc, nil
}

// applyPlantState overrides the configured storage entity's start capacity
// with the stored energy measured at the inverter.
func (s *DispatchService) applyPlantState(entities []*entity.Entity) error {
	config := s.GetConfig()

	storage, err := findStorage(entities, config.PlantStorageName)
	if err != nil {
		return err
	}

	client, err := plant.NewTCPClient(config.PlantModbusAddress, plant.DefaultUnitID)
	if err != nil {
		return fmt.Errorf("failed to connect to plant Modbus: %w", err)
	}
	defer client.Close()

	state, err := client.ReadState()
	if err != nil {
		return fmt.Errorf("failed to read plant state: %w", err)
	}

	stored := state.StoredEnergyKWh()
	if stored > storage.StorageCapacity {
		stored = storage.StorageCapacity
	}
	storage.StartCapacity = stored

	s.logger.Printf("Applied measured plant state to storage %q: SoC %.1f%%, start capacity %.2f kWh",
		storage.Name, state.SOCPercent, stored)
	return nil
}

// applySolarProfile replaces the configured producer entity's power profile
// with a profile synthesized from the sun's position at the site.
func (s *DispatchService) applySolarProfile(entities []*entity.Entity) error {
	config := s.GetConfig()

	producer, err := findProducer(entities, config.SolarProducerName)
	if err != nil {
		return err
	}

	profile := SolarProfile(s.nowFunc(), config.Latitude, config.Longitude, config.PeakSolarPower, config.CloudCoverage)
	producer.PowerProd = profile

	s.logger.Printf("Applied synthesized solar profile to producer %q (peak %.1f kW)", producer.Name, config.PeakSolarPower)
	return nil
}

func findGrid(entities []*entity.Entity, name string) (*entity.Grid, error) {
	for _, e := range entities {
		if e.Kind == entity.KindGrid && e.Grid.Name == name {
			return e.Grid, nil
		}
	}
	return nil, fmt.Errorf("no grid entity named %q in document", name)
}

func findStorage(entities []*entity.Entity, name string) (*entity.Storage, error) {
	for _, e := range entities {
		if e.Kind == entity.KindStorage && e.Storage.Name == name {
			return e.Storage, nil
		}
	}
	return nil, fmt.Errorf("no storage entity named %q in document", name)
}

func findProducer(entities []*entity.Entity, name string) (*entity.Producer, error) {
	for _, e := range entities {
		if e.Kind == entity.KindProducer && e.Producer.Name == name {
			return e.Producer, nil
		}
	}
	return nil, fmt.Errorf("no producer entity named %q in document", name)
}
