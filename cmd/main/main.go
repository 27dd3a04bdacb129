package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quote-streamer/src/config"
	"quote-streamer/src/ingestor"
	"quote-streamer/src/logger"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(config.MConfig, config.Name)
	defer appLogger.Sync()

	// Create ingestor from config
	ingestorService, err := ingestor.NewIngestor(config, appLogger)
	if err != nil {
		appLogger.Critical("failed to create ingestor: %v", err)
	}

	// Start ingestor
	if err := ingestorService.Start(); err != nil {
		ingestorService.StopWithTimeout(5 * time.Second)
		appLogger.Critical("failed to start ingestor: %v", err)
	}

	appLogger.Info("quote streamer running. Dashboard: %s:%d, gRPC health: %s:%d",
		config.Host, config.Port, config.GRPC_Host, config.GRPC_Port)
	appLogger.Info("Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	appLogger.Info("shutting down...")
	if err := ingestorService.StopWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("shutdown error: %v", err)
	}
}
