package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mantonx/harvester/internal/config"
	"github.com/mantonx/harvester/internal/database"
	"github.com/mantonx/harvester/internal/server"
)

func main() {
	fmt.Println("=====================================")
	fmt.Println("  Harvester - Metadata Extraction   ")
	fmt.Println("=====================================")

	configPath := os.Getenv("HARVESTER_CONFIG_PATH")
	if configPath == "" {
		if _, err := os.Stat("./harvester.yaml"); err == nil {
			configPath = "./harvester.yaml"
		}
	}

	if err := config.Load(configPath); err != nil {
		log.Printf("Warning: failed to load configuration from %s: %v", configPath, err)
		log.Printf("Using default configuration")
	} else if configPath != "" {
		log.Printf("Configuration loaded from: %s", configPath)
	} else {
		log.Printf("Using default configuration")
	}

	database.Initialize()
	if database.GetDB() == nil {
		log.Fatal("Failed to initialize database")
	}

	r := server.SetupRouter()
	cfg := config.Get()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	done := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down gracefully...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		// Running sessions checkpoint and exit interrupted before the
		// event bus stops.
		server.Shutdown()
		close(done)
	}()

	log.Printf("Listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	<-done
	log.Println("Shutdown complete")
}
