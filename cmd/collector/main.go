// Collector serves the AppForge monitoring API: frontend error intake,
// health probes, and request telemetry.
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

	"appforge/platform/internal/audit"
	auditrepo "appforge/platform/internal/audit/repository"
	"appforge/platform/internal/config"
	"appforge/platform/internal/db"
	reportrepo "appforge/platform/internal/report/repository"
	"appforge/platform/internal/security"
	"appforge/platform/internal/server"
	"appforge/platform/internal/telemetry"
	"appforge/platform/internal/telemetry/otel"
	"appforge/platform/internal/telemetry/producer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "appforge-collector", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	// Telemetry events go to Kafka when brokers are configured, otherwise
	// straight to the OTel log pipeline.
	var emitter telemetry.EventEmitter
	kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.KafkaTopic)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	if kafkaProducer != nil {
		defer kafkaProducer.Close()
		emitter = kafkaProducer
	} else {
		emitter = otel.NewEventEmitter(providers.LoggerProvider)
	}

	var verifier *security.Verifier
	if cfg.JWTPublicKey != "" {
		pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
		if err != nil {
			log.Fatalf("jwt public key: %v", err)
		}
		verifier = security.NewVerifier(pub, cfg.JWTIssuer, cfg.JWTAudience)
	} else {
		log.Println("JWT_PUBLIC_KEY not set; all requests are treated as anonymous")
	}

	handler := server.New(cfg, server.Deps{
		DB:            conn,
		ReportRepo:    reportrepo.NewPostgresRepository(conn),
		AuditRecorder: audit.NewLogger(auditrepo.NewPostgresRepository(conn)),
		Emitter:       emitter,
		Verifier:      verifier,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("collector listening on %s (env %s)", cfg.HTTPAddr, cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down collector...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}

	// Let in-flight async audit and telemetry writes finish before tearing
	// down the exporters.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(context.Background()); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	log.Println("collector stopped")
}
