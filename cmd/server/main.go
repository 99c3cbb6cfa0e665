package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attest/internal/audit"
	auditkafka "attest/internal/audit/kafka"
	"attest/internal/platform/config"
	"attest/internal/platform/httpserver"
	"attest/internal/platform/logger"
	platformredis "attest/internal/platform/redis"
	"attest/internal/registry/cache"
	"attest/internal/registry/handler"
	regmetrics "attest/internal/registry/metrics"
	"attest/internal/registry/service"
	"attest/internal/registry/store"
	"attest/internal/token"
	id "attest/pkg/domain"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	owner, err := id.ParsePrincipal(cfg.Owner)
	if err != nil {
		log.Error("ATTEST_OWNER is not a valid principal", "error", err)
		os.Exit(1)
	}

	var (
		identities  store.IdentityStore
		credentials store.CredentialStore
		issuers     store.IssuerStore
		auditStore  audit.Store
	)
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(context.Background()); err != nil {
			log.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}
		identities = store.NewPostgresIdentityStore(db)
		credentials = store.NewPostgresCredentialStore(db)
		issuers = store.NewPostgresIssuerStore(db)
		auditStore = audit.NewPostgresStore(db)
		log.Info("using postgres stores")
	} else {
		identities = store.NewInMemoryIdentityStore()
		credentials = store.NewInMemoryCredentialStore()
		issuers = store.NewInMemoryIssuerStore()
		auditStore = audit.NewInMemoryStore()
		log.Info("using in-memory stores")
	}

	publisherOpts := []audit.PublisherOption{audit.WithLogger(log)}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := auditkafka.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("failed to connect kafka audit sink", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		publisherOpts = append(publisherOpts, audit.WithSink(kafkaSink))
		log.Info("kafka audit sink enabled", "topic", cfg.KafkaTopic)
	}
	auditPublisher := audit.NewPublisher(auditStore, publisherOpts...)

	serviceOpts := []service.Option{
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithMetrics(regmetrics.New()),
	}
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		serviceOpts = append(serviceOpts, service.WithIdentityCache(cache.New(redisClient.Client, cfg.CacheTTL)))
		log.Info("identity cache enabled", "ttl", cfg.CacheTTL)
	}

	registry, err := service.New(owner, identities, credentials, issuers, serviceOpts...)
	if err != nil {
		log.Error("failed to initialize registry", "error", err)
		os.Exit(1)
	}

	tokens := token.NewService(cfg.JWTSigningKey, "attest", "attest-registry")

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.Handler())
	handler.New(registry, log, tokens).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting attest registry", "addr", cfg.Addr, "owner", owner)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
