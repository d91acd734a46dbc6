package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"conjoint/internal"
	"conjoint/internal/config"
	"conjoint/internal/container"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// main runs the API and run browser. The conjoint command in cmd/conjoint
// offers the same server alongside the batch commands.
func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	internal.DefaultLogger = internal.NewLogger(internal.ParseLogLevel(appConfig.LogLevel))
	gin.SetMode(appConfig.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appContainer, err := container.New(appConfig)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}
	defer appContainer.Shutdown(context.Background())

	db, err := appContainer.OpenDatabase(ctx, true)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := appContainer.InitWithDatabase(db); err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	if err := appContainer.Serve(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
