package service

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/devskill-org/dispatch/document"
	"github.com/devskill-org/dispatch/entity"
	"github.com/devskill-org/dispatch/market"
	"github.com/devskill-org/dispatch/solver"
)

// Schedule is one solved dispatch run, kept in memory, persisted and
// broadcast to websocket clients.
type Schedule struct {
	RunAt     time.Time             `json:"run_at"`
	Timesteps int                   `json:"timesteps"`
	Cost      float64               `json:"cost"`
	Entities  []document.EntityJSON `json:"entities"`
}

// DispatchService runs the periodic solve loop.
type DispatchService struct {
	// Configuration
	config *Config

	// State
	latest    *Schedule
	isRunning bool
	stopChan  chan struct{}
	mu        sync.RWMutex

	// Market price cache
	priceCache priceDocumentCache

	// Web server
	webServer *WebServer

	// Database connection
	db *sql.DB

	// Logging
	logger *log.Logger

	// Test hook for the current time
	nowFunc func() time.Time
}

// priceDocumentCache caches the downloaded price document with expiration.
type priceDocumentCache struct {
	mu            sync.RWMutex
	doc           *market.PriceDocument
	fetchedAt     time.Time
	cacheDuration time.Duration
}

// Get retrieves the cached price document if it is still valid.
func (p *priceDocumentCache) Get() (*market.PriceDocument, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.doc == nil {
		return nil, false
	}
	if time.Since(p.fetchedAt) > p.cacheDuration {
		return nil, false
	}
	return p.doc, true
}

// Set updates the cached price document.
func (p *priceDocumentCache) Set(doc *market.PriceDocument) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.doc = doc
	p.fetchedAt = time.Now()
}

// NewDispatchService creates a new service instance.
func NewDispatchService(config *Config, logger *log.Logger) *DispatchService {
	if logger == nil {
		logger = log.Default()
	}

	svc := &DispatchService{
		config:   config,
		stopChan: make(chan struct{}),
		logger:   logger,
		priceCache: priceDocumentCache{
			cacheDuration: 2 * time.Hour,
		},
		nowFunc: time.Now,
	}
	svc.webServer = NewWebServer(svc, config.ListenPort)

	return svc
}

// GetConfig returns the current configuration.
func (s *DispatchService) GetConfig() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// LatestSchedule returns the most recent solved schedule, or nil.
func (s *DispatchService) LatestSchedule() *Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// IsRunning reports whether the solve loop is active.
func (s *DispatchService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Start runs the service until the context is cancelled or Stop is called.
func (s *DispatchService) Start(ctx context.Context) error {
	config := s.GetConfig()

	if config.PostgresConnString != "" {
		db, err := sql.Open("postgres", config.PostgresConnString)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		s.db = db
		if err := s.ensureSchema(ctx); err != nil {
			s.logger.Printf("Warning: failed to ensure database schema: %v", err)
		}

		// Recover the last persisted schedule so the API has something to
		// serve before the first solve completes.
		if schedule, err := s.loadLatestSchedule(ctx); err != nil {
			s.logger.Printf("Warning: failed to load persisted schedule: %v", err)
		} else if schedule != nil {
			s.mu.Lock()
			s.latest = schedule
			s.mu.Unlock()
		}
	}

	if err := s.webServer.Start(); err != nil {
		return fmt.Errorf("failed to start web server: %w", err)
	}

	s.mu.Lock()
	s.isRunning = true
	s.mu.Unlock()

	s.solveLoop(ctx)

	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()

	return ctx.Err()
}

// solveLoop runs the dispatch solve immediately and then once per configured
// interval, until the context is cancelled or Stop is called. Solve-then-wait
// ordering keeps a fresh schedule available right after startup.
func (s *DispatchService) solveLoop(ctx context.Context) {
	interval := s.GetConfig().SolveInterval
	s.logger.Printf("Solve loop started, re-solving every %v", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.runSolve(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			s.logger.Printf("Solve loop finished: context cancelled")
			return
		case <-s.stopChan:
			s.logger.Printf("Solve loop finished: stop requested")
			return
		}
	}
}

// Stop signals the solve loop to stop and shuts down the web server and the
// database connection.
func (s *DispatchService) Stop() {
	close(s.stopChan)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.webServer.Stop(ctx); err != nil {
		s.logger.Printf("Error stopping web server: %v", err)
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Printf("Error closing database: %v", err)
		}
	}
}

// runSolve executes one full solve cycle: load, enrich, solve, publish.
func (s *DispatchService) runSolve(ctx context.Context) {
	s.logger.Printf("Starting dispatch solve at %s", s.nowFunc().Format(time.RFC3339))

	config := s.GetConfig()

	doc, entities, err := s.loadEntities(config.EntitiesFile)
	if err != nil {
		s.logger.Printf("Error loading entities: %v", err)
		return
	}

	// Enrichments are best-effort: a failure is logged and the solve
	// proceeds with the document's own profiles.
	if config.MarketGridName != "" {
		if err := s.applyMarketPrices(ctx, entities); err != nil {
			s.logger.Printf("Warning: failed to apply market prices: %v", err)
		}
	}
	if config.PlantModbusAddress != "" {
		if err := s.applyPlantState(entities); err != nil {
			s.logger.Printf("Warning: failed to apply plant state: %v", err)
		}
	}
	if config.SolarProducerName != "" {
		if err := s.applySolarProfile(entities); err != nil {
			s.logger.Printf("Warning: failed to apply solar profile: %v", err)
		}
	}

	cost, err := solver.SolveContext(ctx, entities, config.Timesteps)
	if err != nil {
		s.logger.Printf("Error solving dispatch: %v (keeping previous schedule)", err)
		return
	}

	schedule := &Schedule{
		RunAt:     s.nowFunc(),
		Timesteps: config.Timesteps,
		Cost:      cost,
		Entities:  doc.Result(entities),
	}

	s.mu.Lock()
	s.latest = schedule
	s.mu.Unlock()

	s.logger.Printf("Dispatch solve completed: %d entities, %d timesteps, total cost %.4f",
		len(schedule.Entities), schedule.Timesteps, schedule.Cost)

	if s.db != nil && !config.DryRun {
		if err := s.saveSchedule(ctx, schedule); err != nil {
			s.logger.Printf("Warning: failed to save schedule to database: %v", err)
		}
	}

	s.webServer.BroadcastSchedule(schedule)
}

// loadEntities reads the base entity document from disk.
func (s *DispatchService) loadEntities(filename string) (*document.Document, []*entity.Entity, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open entities file: %w", err)
	}
	defer file.Close()

	doc, err := document.Load(file)
	if err != nil {
		return nil, nil, err
	}

	entities, err := doc.Build()
	if err != nil {
		return nil, nil, err
	}

	return doc, entities, nil
}
