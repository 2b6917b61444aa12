package main

import (
	"context"
	"log"

	"contracts-backend/internal/bootstrap"
	"contracts-backend/internal/shared/config"
	"contracts-backend/internal/shared/server"
	"contracts-backend/internal/shared/storage/db"
	"contracts-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer telemetry.Sync()

	if err := db.RunMigrations(context.Background(), app.DB); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	addr := server.Addr(cfg.Port)
	log.Printf("starting API server on %s", addr)
	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
