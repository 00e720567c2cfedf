package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/joho/godotenv"

	"github.com/proposta360/proposal-analytics/db"
	"github.com/proposta360/proposal-analytics/realtime"
	"github.com/proposta360/proposal-analytics/scheduler"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment as-is")
	}

	// db initialization
	postgresDB, err := db.CreatePostgresConnection()
	if err != nil {
		log.Fatal(err)
	}
	defer postgresDB.Close()

	geoipDB, err := db.CreateGeoIPConnection()
	if err != nil {
		// Region lookup degrades to "Unknown" without it.
		log.Println("GeoIP database unavailable:", err)
		geoipDB = nil
	} else {
		defer geoipDB.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub(postgresDB)
	hub.StartKeepAlive(ctx)

	followUpScheduler := scheduler.NewFollowUpScheduler(postgresDB, hub)
	if err := followUpScheduler.Start(); err != nil {
		log.Fatal(err)
	}
	defer followUpScheduler.Stop()

	// router
	router := SetupRouter(postgresDB, geoipDB, hub)

	port := 8080
	address := fmt.Sprintf(":%d", port) // :8080

	server := &http.Server{
		Addr: address,
		Handler: handlers.CORS( // cors config
			handlers.AllowedOrigins([]string{"*"}),
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		)(router),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Println("Server shutdown error:", err)
		}
	}()

	log.Printf("Server is listening on port %d...\n", port)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v\n", err)
	}
}
