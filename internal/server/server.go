// Package server assembles the HTTP surface: router setup, module loading,
// and the event stream endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/harvester/internal/database"
	"github.com/mantonx/harvester/internal/events"
	"github.com/mantonx/harvester/internal/logger"
	"github.com/mantonx/harvester/internal/modules/modulemanager"

	// Import all modules to trigger their registration
	_ "github.com/mantonx/harvester/internal/modules/harvestmodule"
)

// SetupRouter configures and returns the main router
func SetupRouter() *gin.Engine {
	r := gin.Default()

	// CORS middleware for development
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	if err := initializeEventBus(); err != nil {
		logger.Error("Failed to initialize event bus: %v", err)
	}

	if err := modulemanager.LoadAll(database.GetDB()); err != nil {
		logger.Error("Failed to initialize modules: %v", err)
	}

	setupRoutes(r)
	modulemanager.RegisterRoutes(r)

	return r
}

// Shutdown tears down the module system and the event bus
func Shutdown() {
	modulemanager.ShutdownAll()

	if bus := events.GetGlobalEventBus(); bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := bus.Stop(ctx); err != nil {
			logger.Warn("Event bus stop: %v", err)
		}
	}
}

func initializeEventBus() error {
	bus := events.NewEventBus(events.DefaultEventBusConfig(), events.BusLogger{})
	if err := bus.Start(context.Background()); err != nil {
		return err
	}

	events.SetGlobalEventBus(bus)
	bus.PublishAsync(events.NewSystemEvent(events.EventSystemStarted, "System started", "harvester is up"))
	return nil
}

func setupRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		status := gin.H{"status": "ok"}
		if bus := events.GetGlobalEventBus(); bus != nil {
			if err := bus.Health(); err != nil {
				status["status"] = "degraded"
				status["events"] = err.Error()
			}
		}
		c.JSON(http.StatusOK, status)
	})

	api := r.Group("/api/events")
	{
		api.GET("/ws", streamEvents)
		api.GET("/recent", recentEvents)
	}
}
