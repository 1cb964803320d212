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

	"github.com/knowledgeshare/identity/internal/auth"
	"github.com/knowledgeshare/identity/internal/config"
	"github.com/knowledgeshare/identity/internal/httpapi"
	"github.com/knowledgeshare/identity/internal/mailer"
	"github.com/knowledgeshare/identity/internal/obs"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.PGDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	if err := db.PingContext(pingCtx); err != nil {
		log.Printf("db not reachable yet: %v", err)
	}
	cancelPing()

	signer, err := auth.NewSigner(cfg.JWTSecret, cfg.Issuer)
	if err != nil {
		log.Fatalf("signer: %v", err)
	}

	var mail auth.Mailer
	if cfg.SMTP.Host != "" {
		smtp, err := mailer.NewSMTP(cfg.SMTP, cfg.BaseURL)
		if err != nil {
			log.Fatalf("mailer: %v", err)
		}
		mail = smtp
	} else {
		mail = &mailer.Log{}
	}

	svc, err := auth.NewService(auth.NewPGStore(db), signer, mail,
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
		auth.WithResetTTL(cfg.ResetTTL),
		auth.WithVerificationTTL(cfg.VerificationTTL),
		auth.WithStoreTimeout(cfg.StoreTimeout),
		auth.WithMinPasswordLength(cfg.MinPasswordLen),
	)
	if err != nil {
		log.Fatalf("service: %v", err)
	}

	api := httpapi.New(svc, httpapi.ReadyProbe{DB: db}, version, httpapi.Options{
		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSecond,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting identity-api %s on %s", version, srv.Addr)

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
	_ = db.Close()
	log.Println("Stopped")
}
