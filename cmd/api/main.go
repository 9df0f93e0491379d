package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shinyyama/referral-tree-backend/internal/config"
	"github.com/shinyyama/referral-tree-backend/internal/db"
	appmw "github.com/shinyyama/referral-tree-backend/internal/middleware"
	"github.com/shinyyama/referral-tree-backend/internal/server"
	"github.com/shinyyama/referral-tree-backend/internal/service"
	"github.com/shinyyama/referral-tree-backend/internal/snapshot"
)

var (
	gitSHA    = "dev"
	buildTime = ""
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := server.Options{
		AllowedOrigins: cfg.AllowedOrigins(),
		Service: service.Options{
			MaxDepth:        cfg.MaxTreeDepth,
			MaxParticipants: cfg.MaxParticipants,
			RegisterRetries: cfg.RegisterRetries,
		},
		SHA:   gitSHA,
		Build: buildTime,
	}
	if cfg.FirebaseProjectID != "" {
		authMw, err := appmw.NewAuthMiddleware(ctx, cfg.FirebaseProjectID)
		if err != nil {
			log.Fatalf("failed to init firebase auth: %v", err)
		}
		opts.Auth = authMw
	} else {
		log.Printf("FIREBASE_PROJECT_ID not set; admin routes are unauthenticated")
	}
	if cfg.StorageBucket != "" {
		uploader, err := snapshot.NewGCSUploader(ctx, cfg.StorageBucket)
		if err != nil {
			log.Fatalf("failed to init snapshot storage: %v", err)
		}
		defer uploader.Close()
		opts.Service.Archiver = snapshot.New(uploader)
	}

	// The listener comes up before the database so Cloud Run sees the port
	// early; /healthz stays 503 until SetDB.
	srv := server.New(nil, opts)
	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Printf("starting server on %s", addr)
		errCh <- srv.Start(addr)
	}()

	go func() {
		conn, err := db.Connect(cfg)
		if err != nil {
			log.Printf("db connect error: %v", err)
			return
		}
		if err := db.Migrate(conn); err != nil {
			log.Printf("auto migrate error: %v", err)
		}
		srv.SetDB(conn)
		log.Printf("database ready driver=%s", cfg.DBDriver)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server stopped: %v", err)
		}
	case <-ctx.Done():
		log.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}
}
