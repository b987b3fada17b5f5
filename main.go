// Package main provides the dispatch optimizer entry point and CLI interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/devskill-org/dispatch/document"
	"github.com/devskill-org/dispatch/service"
	"github.com/devskill-org/dispatch/solver"
)

func main() {
	var (
		inputFile  = flag.String("input", "", "Input document path (default: standard input)")
		outputFile = flag.String("output", "", "Output document path (default: standard output)")
		serve      = flag.Bool("serve", false, "Run the long-lived dispatch service")
		configFile = flag.String("config", "config.json", "Configuration file path (service mode)")
		help       = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	if *serve {
		runService(*configFile)
		return
	}

	if err := runSolve(*inputFile, *outputFile); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// runSolve performs a single solve: document in, schedule out.
func runSolve(inputFile, outputFile string) error {
	var in io.Reader = os.Stdin
	if inputFile != "" {
		f, err := os.Open(inputFile)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer f.Close()
		in = f
	}

	doc, err := document.Load(in)
	if err != nil {
		return err
	}

	entities, err := doc.Build()
	if err != nil {
		return err
	}

	if _, err := solver.Solve(entities, doc.Timesteps); err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	return document.Write(out, doc.Result(entities))
}

// runService starts the long-lived dispatch service with graceful shutdown.
func runService(configFile string) {
	config, err := service.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading configuration:", err)
		os.Exit(1)
	}

	fmt.Printf("Starting dispatch service with the following configuration:\n")
	fmt.Printf("  Entities File: %s\n", config.EntitiesFile)
	fmt.Printf("  Timesteps: %d\n", config.Timesteps)
	fmt.Printf("  Solve Interval: %s\n", config.SolveInterval)
	fmt.Printf("  Listen Port: %d\n", config.ListenPort)
	if config.DryRun {
		fmt.Printf("  Mode: DRY-RUN (schedules will not be persisted)\n")
	}
	fmt.Println()

	logger := log.New(os.Stdout, "[SERVICE] ", log.LstdFlags)
	svc := service.NewDispatchService(config, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := svc.Start(ctx); err != nil {
			if err != context.Canceled {
				logger.Printf("Service error: %v", err)
			}
		}
	}()

	logger.Printf("Service started. Press Ctrl+C to stop...")

	<-sigChan
	logger.Printf("Shutdown signal received, stopping service...")

	cancel()
	svc.Stop()

	logger.Printf("Service stopped successfully")
}

func showHelp() {
	fmt.Println("dispatch - Multi-period energy dispatch optimizer")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Computes an economically optimal consumption/production schedule for a")
	fmt.Println("  set of energy entities (consumers, producers, storages, grid")
	fmt.Println("  connections) over a discrete time horizon, subject to per-timestep")
	fmt.Println("  power balance and storage state-of-charge dynamics.")
	fmt.Println()
	fmt.Println("  By default a single input document is read from standard input and the")
	fmt.Println("  resulting schedule is written to standard output. In service mode the")
	fmt.Println("  optimizer re-solves periodically, enriching the entity list with live")
	fmt.Println("  market prices, measured plant state and a synthesized solar profile.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  dispatch [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Solve a document from stdin")
	fmt.Println("  dispatch < entities.json")
	fmt.Println()
	fmt.Println("  # Solve a document from a file")
	fmt.Println("  dispatch -input entities.json -output schedule.json")
	fmt.Println()
	fmt.Println("  # Run the long-lived service")
	fmt.Println("  dispatch -serve -config config.json")
}
