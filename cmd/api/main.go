package main

import (
	"log"

	"github.com/joho/godotenv"

	"gosegment/adapters/postgres"
	"gosegment/engine"
	"gosegment/internal/config"
	"gosegment/ports"
	"gosegment/ui"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	pipeline, err := engine.New(cfg.Engine)
	if err != nil {
		log.Fatalf("pipeline setup failed: %v", err)
	}

	var artifacts ports.ArtifactRepository
	if cfg.Database.URL != "" {
		db, err := postgres.Connect(cfg.Database.URL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()

		if err := postgres.EnsureSchema(db); err != nil {
			log.Fatalf("schema setup failed: %v", err)
		}
		artifacts = postgres.NewArtifactRepository(db)
	} else {
		log.Println("DATABASE_URL not set; runs will not be persisted")
	}

	app := ui.NewApp(pipeline, artifacts)
	if err := app.Start(ui.Config{Port: cfg.Server.Port}); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
