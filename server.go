package api

import (
	"context"
	"fmt"
	"os"
	"strings"

	"BlitzCup/controllers"
	"BlitzCup/seed"

	"github.com/joho/godotenv"
)

var server = controllers.Server{}

func init() {
	// Load .env only outside production. In prod, config comes from the
	// platform's environment.
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}
}

func Run() {
	// Local convenience: try loading .env again (no-op in prod).
	_ = godotenv.Load()

	server.Initialize(
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_HOST"),
		os.Getenv("DB_NAME"),
	)

	if os.Getenv("SEED_DEV_DATA") == "true" {
		seed.Load(server.DB)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.StartEventLoop(ctx)

	port := os.Getenv("PORT")
	if port == "" {
		port = os.Getenv("API_PORT")
		if port == "" {
			port = "8888"
		}
	}

	addr := ":" + strings.TrimSpace(port)
	fmt.Printf("Listening on %s\n", addr)
	server.Run(addr)
}
