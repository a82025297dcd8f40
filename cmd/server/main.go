package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	adminhandler "credlock/internal/admin/handler"
	"credlock/internal/blobstore"
	certificatehandler "credlock/internal/certificate/handler"
	certificateservice "credlock/internal/certificate/service"
	certificatememory "credlock/internal/certificate/store/memory"
	certificatepostgres "credlock/internal/certificate/store/postgres"
	identityhandler "credlock/internal/identity/handler"
	identityservice "credlock/internal/identity/service"
	identitymemory "credlock/internal/identity/store/memory"
	identitypostgres "credlock/internal/identity/store/postgres"
	issuercache "credlock/internal/issuer/cache"
	issuerhandler "credlock/internal/issuer/handler"
	issuerservice "credlock/internal/issuer/service"
	issuermemory "credlock/internal/issuer/store/memory"
	issuerpostgres "credlock/internal/issuer/store/postgres"
	"credlock/internal/ledger"
	"credlock/internal/ledger/sweeper"
	"credlock/internal/ledger/tracer"
	"credlock/internal/platform/config"
	"credlock/internal/platform/database"
	"credlock/internal/platform/httpserver"
	kafkaproducer "credlock/internal/platform/kafka/producer"
	"credlock/internal/platform/logger"
	"credlock/internal/platform/metrics"
	"credlock/internal/platform/redis"
	httptransport "credlock/internal/transport/http"
	"credlock/internal/verify"
	verifyhandler "credlock/internal/verify/handler"
	"credlock/internal/verify/receipt"
	"credlock/migrations"
	"credlock/pkg/platform/audit"
	auditmemory "credlock/pkg/platform/audit/store/memory"
	auditpostgres "credlock/pkg/platform/audit/store/postgres"
	"credlock/pkg/platform/tx"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages; everything here is assembly.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)
	m := metrics.New()

	ctx := context.Background()

	// Postgres is optional: without CREDLOCK_DATABASE_URL everything runs on
	// in-memory stores, which is how local development and most tests run.
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		if err := applyMigrations(ctx, pool.DB()); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		log.Info("database connected")
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		log.Info("redis connected")
	}

	// Audit events mirror to Kafka when brokers are configured; the durable
	// store is always present.
	auditOpts := []audit.Option{audit.WithLogger(log)}
	var kafkaProducer *kafkaproducer.Producer
	if cfg.Kafka.Brokers != "" {
		kafkaProducer, err = kafkaproducer.New(kafkaproducer.Config{
			Brokers:         cfg.Kafka.Brokers,
			Topic:           cfg.Kafka.AuditTopic,
			Retries:         3,
			DeliveryTimeout: 10 * time.Second,
		}, log)
		if err != nil {
			log.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		auditOpts = append(auditOpts, audit.WithProducer(kafkaProducer))
		log.Info("kafka producer connected", "topic", cfg.Kafka.AuditTopic)
	}

	var (
		runner        tx.Runner
		auditStore    audit.Store
		identityStore identityservice.Store
		certStore     certificateservice.Store
		sweepStore    sweeper.Store
		recordReader  verify.RecordReader
		requestStore  issuerservice.RequestStore
		issuerStore   issuerservice.IssuerStore
		rosterReader  issuerReader
	)
	if pool != nil {
		runner = tx.NewPostgresRunner(pool.DB())
		auditStore = auditpostgres.NewStore(pool.DB())
		identityStore = identitypostgres.NewStore(pool.DB())
		cs := certificatepostgres.NewStore(pool.DB())
		certStore, sweepStore, recordReader = cs, cs, cs
		requestStore = issuerpostgres.NewRequestStore(pool.DB())
		is := issuerpostgres.NewIssuerStore(pool.DB())
		issuerStore, rosterReader = is, is
	} else {
		runner = tx.NewInMemoryRunner()
		auditStore = auditmemory.NewStore()
		identityStore = identitymemory.NewStore()
		cs := certificatememory.NewStore()
		certStore, sweepStore, recordReader = cs, cs, cs
		requestStore = issuermemory.NewRequestStore()
		is := issuermemory.NewIssuerStore()
		issuerStore, rosterReader = is, is
	}

	publisher := audit.NewPublisher(auditStore, auditOpts...)

	ledgerClient := ledger.NewHTTPClient(cfg.Ledger.URL, &http.Client{
		Timeout: cfg.Ledger.Timeout,
	})
	reconciler := ledger.NewReconciler(ledgerClient,
		ledger.WithLogger(log),
		ledger.WithMetrics(m),
		ledger.WithTracer(tracer.NewOTel()),
		ledger.WithTimeouts(cfg.Ledger.Timeout, cfg.Ledger.FinalityTimeout),
	)

	identitySvc := identityservice.New(identityStore, runner,
		identityservice.WithLogger(log),
		identityservice.WithAuditPublisher(publisher),
		identityservice.WithMetrics(m),
	)

	issuerSvc := issuerservice.New(requestStore, issuerStore, runner, reconciler,
		issuerservice.WithLogger(log),
		issuerservice.WithAuditPublisher(publisher),
		issuerservice.WithRoleCache(issuercache.New(redisClient, 5*time.Minute)),
	)

	certificateSvc := certificateservice.New(certStore, runner, reconciler, issuerSvc,
		certificateservice.WithLogger(log),
		certificateservice.WithAuditPublisher(publisher),
		certificateservice.WithMetrics(m),
		certificateservice.WithBlobStore(blobstore.NewMemory()),
		certificateservice.WithSubjectResolver(&subjectResolver{identities: identitySvc}),
	)

	verifySvc := verify.New(reconciler, recordReader,
		verify.WithLogger(log),
		verify.WithMetrics(m),
		verify.WithReceiptSigner(receipt.NewSigner(cfg.ReceiptSigningKey, cfg.ReceiptTTL)),
		verify.WithIssuerNames(&issuerNameResolver{issuers: rosterReader}),
	)

	sweep := sweeper.New(sweepStore, reconciler,
		sweeper.WithLogger(log),
		sweeper.WithAuditPublisher(publisher),
		sweeper.WithMetrics(m),
		sweeper.WithTracer(tracer.NewOTel()),
		sweeper.WithInterval(cfg.Sweep.Interval),
		sweeper.WithBatchSize(cfg.Sweep.BatchSize),
	)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:      log,
		Identity:    identityhandler.New(identitySvc, log),
		Certificate: certificatehandler.New(certificateSvc, log),
		Issuer:      issuerhandler.New(issuerSvc, log),
		Verify:      verifyhandler.New(verifySvc, log),
		Admin:       adminhandler.New(publisher, identitySvc, certificateSvc, issuerSvc, log),
		AdminToken:  cfg.AdminToken,
		Health: func(ctx context.Context) error {
			if pool != nil {
				if err := pool.Health(ctx); err != nil {
					return fmt.Errorf("database: %w", err)
				}
			}
			if redisClient != nil {
				if err := redisClient.Health(ctx); err != nil {
					return fmt.Errorf("redis: %w", err)
				}
			}
			return nil
		},
	})

	srv := httpserver.New(cfg.Addr, router)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	sweep.Start(sweepCtx)

	log.Info("starting credlock engine",
		"addr", cfg.Addr,
		"ledger_url", cfg.Ledger.URL,
		"sweep_interval", cfg.Sweep.Interval.String(),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	stopSweep()
	sweep.Stop()

	if kafkaProducer != nil {
		if err := kafkaProducer.Flush(5 * time.Second); err != nil {
			log.Warn("kafka flush failed", "error", err)
		}
		_ = kafkaProducer.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if pool != nil {
		_ = pool.Close()
	}

	log.Info("server stopped")
}

// applyMigrations executes the embedded *.up.sql files in order. Statements
// are idempotent, so reapplying on every boot is safe.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := fs.ReadFile(migrations.FS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", file, err)
		}
	}
	return nil
}
