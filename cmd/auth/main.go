package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/aussiebroadwan/stocktake/internal/auth/app"
)

func main() {
	// A missing .env is fine; the real environment always wins.
	_ = godotenv.Load()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
