package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"contracts-backend/internal/bootstrap"
	"contracts-backend/internal/shared/config"
	"contracts-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()

	app, err := bootstrap.BuildWorker(cfg)
	if err != nil {
		log.Fatalf("bootstrap worker: %v", err)
	}
	defer telemetry.Sync()
	defer app.DB.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.Worker.Start(ctx)
	log.Printf("analysis worker started")

	<-ctx.Done()
	log.Printf("shutting down analysis worker")
	app.Worker.Stop()
}
