package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"shikkha/internal/docstore"
	"shikkha/internal/effects"
	"shikkha/internal/events"
	eventsMetrics "shikkha/internal/events/metrics"
	"shikkha/internal/index/cache"
	indexMetrics "shikkha/internal/index/metrics"
	"shikkha/internal/index/reconcile"
	indexService "shikkha/internal/index/service"
	indexStore "shikkha/internal/index/store"
	institutionHandler "shikkha/internal/institution/handler"
	institutionService "shikkha/internal/institution/service"
	institutionStore "shikkha/internal/institution/store"
	issuanceHandler "shikkha/internal/issuance/handler"
	"shikkha/internal/issuance/idempotency"
	issuanceMetrics "shikkha/internal/issuance/metrics"
	issuanceService "shikkha/internal/issuance/service"
	jwttoken "shikkha/internal/jwt_token"
	"shikkha/internal/jwt_token/revocation"
	"shikkha/internal/ledger"
	ledgerMetrics "shikkha/internal/ledger/metrics"
	ledgerStore "shikkha/internal/ledger/store"
	operatorHandler "shikkha/internal/operator/handler"
	"shikkha/internal/platform/config"
	"shikkha/internal/platform/database"
	"shikkha/internal/platform/health"
	"shikkha/internal/platform/httpserver"
	"shikkha/internal/platform/kafka"
	"shikkha/internal/platform/kafka/consumer"
	"shikkha/internal/platform/kafka/producer"
	"shikkha/internal/platform/logger"
	"shikkha/internal/platform/metrics"
	"shikkha/internal/platform/redis"
	"shikkha/internal/platform/tracer"
	ratelimitMetrics "shikkha/internal/ratelimit/metrics"
	ratelimit "shikkha/internal/ratelimit/middleware"
	ratelimitModels "shikkha/internal/ratelimit/models"
	"shikkha/internal/ratelimit/store/bucket"
	httptransport "shikkha/internal/transport/http"
	"shikkha/internal/verification"
	verificationHandler "shikkha/internal/verification/handler"
	verificationMetrics "shikkha/internal/verification/metrics"
	id "shikkha/pkg/domain"
	"shikkha/pkg/platform/middleware/request"
)

const (
	shutdownTimeout   = 10 * time.Second
	statsInterval     = 15 * time.Second
	effectsPartitions = 3
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// infra holds the optional backing services. Nil members select the
// in-memory implementations.
type infra struct {
	db    *database.Pool
	redis *redis.Client
}

func (i *infra) sqlDB() *sql.DB {
	if i.db == nil {
		return nil
	}
	return i.db.DB()
}

func (i *infra) redisClient() *goredis.Client {
	if i.redis == nil {
		return nil
	}
	return i.redis.Client
}

func (i *infra) close(log *slog.Logger) {
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("failed to close redis", "error", err)
		}
	}
	if err := i.db.Close(); err != nil {
		log.Warn("failed to close database", "error", err)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	admin, err := id.ParseAddress(cfg.LedgerAdmin)
	if err != nil {
		return fmt.Errorf("invalid LEDGER_ADMIN: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing shikkha",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"ledger_admin", admin.String(),
		"postgres", cfg.Database.URL != "",
		"redis", cfg.Redis.URL != "",
		"kafka", cfg.Kafka.Brokers != "",
		"ipfs", cfg.IPFS.APIURL != "",
	)

	backing, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer backing.close(log)

	healthHandler := health.New(cfg.Environment)
	platformMetrics := metrics.New()
	tr := tracer.NewOTel("shikkha")

	// Ledger
	var ledgerBacking ledgerStore.Store = ledgerStore.NewInMemory()
	if db := backing.sqlDB(); db != nil {
		ledgerBacking = ledgerStore.NewPostgres(db)
	}
	registry, err := ledger.New(ctx, ledgerBacking, admin,
		ledger.WithMetrics(ledgerMetrics.New()),
		ledger.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	// Index
	var idxStore indexStore.Store = indexStore.NewInMemory()
	if db := backing.sqlDB(); db != nil {
		idxStore = indexStore.NewPostgres(db)
	}
	if rc := backing.redisClient(); rc != nil {
		idxStore = cache.New(idxStore, rc, cfg.IndexCacheTTL, cache.WithLogger(log))
	}
	idxMetrics := indexMetrics.New()
	index := indexService.New(idxStore, indexService.WithLogger(log))
	writer := indexService.NewWriter(index,
		indexService.WithRetries(cfg.IndexWriteRetries),
		indexService.WithWriterMetrics(idxMetrics),
		indexService.WithWriterLogger(log),
	)

	projector := reconcile.NewProjector(idxStore,
		reconcile.WithProjectorMetrics(idxMetrics),
		reconcile.WithProjectorLogger(log),
	)
	sweeper := reconcile.NewSweeper(registry, projector, idxStore, cfg.ReconcileBatch, idxMetrics, log)
	auditor := reconcile.NewAuditor(registry, idxStore, cfg.ReconcileBatch, idxMetrics, log)
	scheduler, err := reconcile.NewScheduler(cfg.ReconcileSchedule, sweeper, auditor, idxMetrics, log)
	if err != nil {
		return fmt.Errorf("reconcile schedule: %w", err)
	}

	// Documents
	var documents interface {
		issuanceService.Documents
		verification.DocumentURLs
		Health(ctx context.Context) error
	}
	if cfg.IPFS.APIURL != "" {
		documents = docstore.NewIPFS(docstore.IPFSConfig{
			APIURL:        cfg.IPFS.APIURL,
			Gateway:       cfg.IPFS.GatewayURL,
			ProjectID:     cfg.IPFS.ProjectID,
			ProjectSecret: cfg.IPFS.ProjectSecret,
			Timeout:       cfg.IPFS.Timeout,
			MaxBytes:      int(cfg.MaxDocumentBytes),
		}, log)
	} else {
		documents = docstore.NewInMemory(cfg.IPFS.GatewayURL, int(cfg.MaxDocumentBytes))
	}

	// Submission
	var keys idempotency.Store = idempotency.NewInMemory(nil)
	if rc := backing.redisClient(); rc != nil {
		keys = idempotency.NewRedis(rc)
	}
	issuance := issuanceService.New(registry, effects.NewExtractor(), documents, writer, index,
		issuanceService.WithIdempotency(keys, cfg.IdempotencyTTL),
		issuanceService.WithTracer(tr),
		issuanceService.WithMetrics(issuanceMetrics.New()),
		issuanceService.WithLogger(log),
	)

	// Verification
	resolver := verification.NewResolver(registry, index, documents,
		verification.WithTimeout(cfg.VerifyTimeout),
		verification.WithTracer(tr),
		verification.WithMetrics(verificationMetrics.New()),
		verification.WithLogger(log),
	)

	// Institutions
	var instStore institutionStore.Store = institutionStore.NewInMemory()
	if db := backing.sqlDB(); db != nil {
		instStore = institutionStore.NewPostgres(db)
	}
	institutions := institutionService.New(instStore, institutionService.WithLogger(log))

	// Auth
	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	var trl interface {
		operatorHandler.TokenRevoker
		IsRevoked(ctx context.Context, jti string) (bool, error)
	} = revocation.NewInMemoryTRL(nil)
	if rc := backing.redisClient(); rc != nil {
		trl = revocation.NewRedisTRL(rc)
	}

	var buckets ratelimit.Store = bucket.NewInMemory(nil)
	if rc := backing.redisClient(); rc != nil {
		buckets = bucket.NewRedis(rc)
	}
	limiter := ratelimit.New(buckets, map[ratelimitModels.Class]ratelimitModels.Limit{
		ratelimitModels.ClassPublic: {RequestsPerWindow: cfg.RateLimit.PublicPerMin, Window: time.Minute},
		ratelimitModels.ClassAdmin:  {RequestsPerWindow: cfg.RateLimit.AdminPerMin, Window: time.Minute},
	}, log,
		ratelimit.WithDisabled(cfg.RateLimit.Disabled),
		ratelimit.WithMetrics(ratelimitMetrics.New()),
	)

	registerHealthChecks(healthHandler, cfg, backing)
	if cfg.IPFS.APIURL != "" {
		healthHandler.RegisterCheck("ipfs", documents.Health)
	}

	verifyHTTP := verificationHandler.New(resolver, log)
	issuanceHTTP := issuanceHandler.New(issuance, log)
	institutionHTTP := institutionHandler.New(institutions, log)
	operatorHTTP := operatorHandler.New(sweeper, auditor, trl, cfg.TokenTTL, log)

	router := httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		MaxBodyBytes:   httptransport.MaxBodyBytes(cfg.MaxDocumentBytes),
		RequestTimeout: 30 * time.Second,
		OperatorToken:  cfg.OperatorToken,
		Validator:      jwttoken.NewJWTServiceAdapter(jwtService),
		Revocations:    trl,
		RequestMetrics: request.NewMetrics(),
		Health:         healthHandler,
		RateLimiter:    limiter,
		Public: []httptransport.RouteFunc{
			verifyHTTP.Register,
			institutionHTTP.RegisterPublic,
		},
		Admin: []httptransport.RouteFunc{
			issuanceHTTP.Register,
			institutionHTTP.RegisterAdmin,
		},
		Operator: []httptransport.RouteFunc{
			operatorHTTP.Register,
		},
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return writer.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error {
		recordStats(gctx, platformMetrics, backing)
		return nil
	})

	if cfg.Kafka.Brokers != "" {
		if err := startStream(gctx, g, cfg, log, registry, projector, idxStore); err != nil {
			return err
		}
	}

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func connect(ctx context.Context, cfg config.Server) (*infra, error) {
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &infra{db: db, redis: rc}, nil
}

func registerHealthChecks(h *health.Handler, cfg config.Server, backing *infra) {
	if backing.db != nil {
		h.RegisterCheck("postgres", backing.db.Health)
	}
	if backing.redis != nil {
		h.RegisterCheck("redis", backing.redis.Health)
	}
	if cfg.Kafka.Brokers != "" {
		checker := kafka.NewHealthChecker(cfg.Kafka.Brokers)
		h.RegisterCheck(checker.Name(), checker.Check)
	}
}

// startStream relays ledger receipts to Kafka and projects them back into the
// index from the consumer group.
func startStream(
	ctx context.Context,
	g *errgroup.Group,
	cfg config.Server,
	log *slog.Logger,
	registry *ledger.Registry,
	projector *reconcile.Projector,
	cursors indexStore.Store,
) error {
	topic := cfg.Kafka.EffectsTopic
	if err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, topic, effectsPartitions, 1); err != nil {
		return fmt.Errorf("ensure effects topic: %w", err)
	}

	prod, err := producer.New(producer.Config{
		Brokers: cfg.Kafka.Brokers,
		Acks:    cfg.Kafka.Acks,
		Retries: cfg.Kafka.Retries,
	}, log)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}

	m := eventsMetrics.New()
	relay := events.NewRelay(registry, prod, cursors,
		events.WithTopic(topic),
		events.WithPollInterval(cfg.Kafka.PollInterval),
		events.WithMetrics(m),
		events.WithLogger(log),
	)
	cons, err := consumer.New(consumer.Config{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topics:  []string{topic},
	}, events.NewHandler(projector, m, log), log)
	if err != nil {
		_ = prod.Close()
		return fmt.Errorf("kafka consumer: %w", err)
	}

	relay.Start(ctx)
	cons.Start(ctx)

	g.Go(func() error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(relay.Stop(stopCtx), cons.Stop(stopCtx), prod.Close())
	})
	return nil
}

func recordStats(ctx context.Context, m *metrics.Metrics, backing *infra) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if backing.db != nil {
				m.RecordDBStats(backing.db.Stats())
			}
			if backing.redis != nil {
				m.RecordRedisStats(backing.redis.PoolStats())
			}
		}
	}
}
