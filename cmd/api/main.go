package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gestaorh.org/internal/audit"
	"gestaorh.org/internal/config"
	"gestaorh.org/internal/httpapi"
	"gestaorh.org/internal/identity"
	"gestaorh.org/internal/obs"
	"gestaorh.org/internal/provider"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db *sql.DB
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	deps := httpapi.Deps{
		Admin:       provider.NewAdminClient(cfg.ProviderURL, cfg.ProviderSecret, cfg.CallTimeout),
		RedirectURL: cfg.RedirectURL,
	}
	if cfg.JWTSecret != "" {
		deps.Verifier, err = identity.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
		if err != nil {
			log.Fatalf("verifier: %v", err)
		}
	} else {
		log.Println("GESTAORH_JWT_SECRET not set; privileged functions are unauthenticated")
	}
	if db != nil {
		deps.Platform = identity.NewPGPlatformUsers(db)
		deps.Companies = identity.NewPGCompanyUsers(db)
		deps.Audits = audit.NewPGStore(db)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting gestaorh-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
