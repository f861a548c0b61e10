package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mukkaz/mukkaz/internal/database"
	"github.com/mukkaz/mukkaz/internal/ingest"
	"github.com/mukkaz/mukkaz/internal/server"
	"github.com/mukkaz/mukkaz/internal/storage"
	"github.com/mukkaz/mukkaz/internal/stream"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded .env file")
	}

	port := getEnv("PORT", "8080")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, databaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(databaseURL); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}
	log.Println("database migrations applied")

	maxUploadBytes := getEnvInt64("MAX_UPLOAD_BYTES", 2*1024*1024*1024)

	store, err := storage.New(ctx, storage.Config{
		Endpoint:       getEnv("S3_ENDPOINT", "http://localhost:3900"),
		PublicEndpoint: os.Getenv("S3_PUBLIC_ENDPOINT"),
		Bucket:         getEnv("S3_BUCKET", "mukkaz"),
		AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		SecretKey:      os.Getenv("S3_SECRET_KEY"),
		Region:         getEnv("S3_REGION", "eu-central-1"),
		MaxUploadBytes: maxUploadBytes,
	})
	if err != nil {
		log.Fatalf("storage initialization failed: %v", err)
	}

	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatalf("storage bucket check failed: %v", err)
	}
	log.Println("storage bucket ready")

	streamUploadURL := os.Getenv("STREAM_UPLOAD_URL")
	if streamUploadURL == "" {
		log.Fatal("STREAM_UPLOAD_URL is required")
	}
	streamClient := stream.New(stream.Config{
		UploadURL:       streamUploadURL,
		APIToken:        os.Getenv("STREAM_API_TOKEN"),
		DeliveryBaseURL: getEnv("STREAM_DELIVERY_BASE_URL", stream.DefaultDeliveryBaseURL),
		PollInterval:    time.Duration(getEnvInt64("PROCESSING_POLL_INTERVAL_MS", 5000)) * time.Millisecond,
		MaxPolls:        int(getEnvInt64("PROCESSING_MAX_POLLS", 60)),
	})

	settings := ingest.DefaultSettings()
	settings.MaxUnconditionalFileSizeBytes = getEnvInt64("MAX_UNCONDITIONAL_FILE_SIZE_BYTES", settings.MaxUnconditionalFileSizeBytes)
	settings.DuplicateSubmissionCooldown = time.Duration(getEnvInt64("DUPLICATE_SUBMISSION_COOLDOWN_MS", settings.DuplicateSubmissionCooldown.Milliseconds())) * time.Millisecond

	orch := ingest.NewOrchestrator(settings, ingest.DefaultEngine(), streamClient, store, db.Pool)
	ingestHandler := ingest.NewHandler(db.Pool, orch, maxUploadBytes)

	srv := server.New(server.Config{
		Pinger:          db,
		IngestHandler:   ingestHandler,
		JWTSecret:       jwtSecret,
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		StorageEndpoint: os.Getenv("S3_PUBLIC_ENDPOINT"),
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Minute,
		WriteTimeout:      15 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("mukkaz listening on :%s", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-shutdownCh
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown failed: %v", err)
	}
	log.Println("shutdown complete")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
