package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	fb "firebase.google.com/go/v4"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/amirhosseinghanipour/erasure/internal/application/erasure"
	"github.com/amirhosseinghanipour/erasure/internal/application/intake"
	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/application/retention"
	"github.com/amirhosseinghanipour/erasure/internal/config"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
	infraauth "github.com/amirhosseinghanipour/erasure/internal/infrastructure/auth"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/firebase"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/firestore"
	httprouter "github.com/amirhosseinghanipour/erasure/internal/infrastructure/http"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/http/handlers"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/http/middleware"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/lockout"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/metrics"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/persistence/memory"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/persistence/postgres"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/queue"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/storage"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := newLogger(cfg.Log)

	ctx := context.Background()
	catalog := domain.DefaultCatalog()

	var app *fb.App
	if cfg.UsesFirebase() {
		app, err = firebase.NewApp(ctx, firebase.Config{
			ProjectID:       cfg.Firebase.ProjectID,
			CredentialsFile: cfg.Firebase.CredentialsFile,
			StorageBucket:   cfg.Firebase.StorageBucket,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("initialize firebase")
		}
	}

	var (
		store ports.DocumentStore
		blobs ports.BlobStore
	)
	switch cfg.Store.Driver {
	case config.StoreFirestore:
		fsClient, err := app.Firestore(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("create firestore client")
		}
		defer fsClient.Close()
		store = firestore.NewStore(fsClient)
		storageClient, err := app.Storage(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("create storage client")
		}
		blobs = storage.NewFirebaseBlobStore(storageClient, cfg.Firebase.StorageBucket)
	default:
		log.Warn().Msg("using in-memory document and blob stores; data is not persisted")
		store = memory.NewStore()
		blobs = memory.NewBlobStore()
	}

	var (
		ledger       ports.RunLedger = memory.NewRunLedger()
		ledgerPinger handlers.Pinger
	)
	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect to database")
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("ping database")
		}
		pg := postgres.NewRunLedger(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("ensure run ledger schema")
		}
		ledger, ledgerPinger = pg, pg
	}

	erasureMetrics := metrics.NewErasureMetrics(prometheus.DefaultRegisterer)
	orch := erasure.NewOrchestrator(store, blobs, catalog, erasure.Options{
		BatchCapacity:     cfg.Erasure.BatchCapacity,
		MaxBatchesPerStep: cfg.Erasure.MaxBatchesPerStep,
	}, log, erasure.WithMetrics(erasureMetrics), erasure.WithLedger(ledger))

	var emitter ports.WebhookEmitter = webhook.NewLogEmitter(log)
	if cfg.Webhook.URL != "" {
		emitter = webhook.NewHTTPEmitter(cfg.Webhook.URL, webhook.WithSecret(cfg.Webhook.Secret))
	}
	proc := intake.NewProcessor(orch, store, catalog, emitter, log)

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("parse REDIS_URL")
		}
		redisClient = redis.NewClient(opt)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed; running erase tasks in-process")
			redisClient = nil
		}
	}

	var (
		taskEnqueuer ports.TaskEnqueuer
		asynqWorker  *queue.Worker
		inline       *queue.InlineEnqueuer
	)
	if redisClient != nil {
		redisOpt := redisClient.Options()
		asynqOpt := asynq.RedisClientOpt{Addr: redisOpt.Addr, Username: redisOpt.Username, Password: redisOpt.Password, DB: redisOpt.DB, TLSConfig: redisOpt.TLSConfig}
		asynqEnq, err := queue.NewAsynqEnqueuer(asynqOpt, log)
		if err != nil {
			log.Fatal().Err(err).Msg("create asynq enqueuer")
		}
		defer asynqEnq.Close()
		taskEnqueuer = asynqEnq
		asynqWorker = queue.NewWorker(asynqOpt, proc, cfg.Erasure.WorkerConcurrency, log)
		go func() {
			if err := asynqWorker.Run(); err != nil {
				log.Warn().Err(err).Msg("asynq worker stopped")
			}
		}()
	} else {
		inline = queue.NewInlineEnqueuer(proc, log)
		taskEnqueuer = inline
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	if cfg.Erasure.IntakeEnabled {
		watcher := intake.NewWatcher(store, taskEnqueuer, catalog, log)
		go func() {
			if err := watcher.Run(bgCtx); err != nil {
				log.Error().Err(err).Msg("deletion request watcher stopped")
			}
		}()
	}

	var scheduler *cron.Cron
	if cfg.Erasure.FollowUpSchedule != "" {
		scheduler = cron.New()
		followUp := retention.FollowUpConfig{
			SettleFor:  cfg.Erasure.FollowUpSettle,
			MaxBatches: cfg.Erasure.FollowUpBatches,
		}
		_, err := scheduler.AddFunc(cfg.Erasure.FollowUpSchedule, func() {
			rerun, incomplete, err := retention.RunFollowUps(bgCtx, ledger, proc, followUp, log)
			if err != nil {
				log.Error().Err(err).Msg("follow-up pass failed")
			}
			erasureMetrics.ObserveFollowUp(rerun, incomplete)
			log.Info().Int("rerun", rerun).Int("still_incomplete", incomplete).Msg("follow-up pass done")
		})
		if err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Erasure.FollowUpSchedule).Msg("invalid ERASURE_FOLLOWUP_SCHEDULE")
		}
		scheduler.Start()
	}

	verifier, err := newVerifier(ctx, cfg, app)
	if err != nil {
		log.Fatal().Err(err).Msg("create token verifier")
	}

	ipLimit, err := middleware.NewIPRateLimiter(cfg.RateLimit.RatePerIP)
	if err != nil {
		log.Fatal().Err(err).Msg("create IP rate limiter")
	}
	userLimit, err := middleware.NewUserRateLimiter(cfg.RateLimit.RatePerUser)
	if err != nil {
		log.Fatal().Err(err).Msg("create user rate limiter")
	}

	var healthHandler *handlers.HealthHandler
	if ledgerPinger != nil || redisClient != nil {
		healthHandler = handlers.NewHealthHandler(ledgerPinger, redisClient)
	}

	router := httprouter.NewRouter(httprouter.RouterConfig{
		HealthHandler: healthHandler,
		UsersHandler:  handlers.NewUsersHandler(taskEnqueuer, proc, log),
		AdminHandler:  handlers.NewAdminHandler(proc, orch, ledger, proc, log),
		RequireAuth:   middleware.NewAuthValidator(verifier).Handler,
		RequireAdmin:  middleware.RequireAdminSecret(cfg.Admin.Secret, lockout.NewMemoryStore(cfg.Admin.MaxFailures, cfg.Admin.LockoutSeconds)),
		Log:           log,
		Secure:        middleware.NewSecure(middleware.SecureOptions(cfg.Secure.IsDevelopment)),
		CORS:          middleware.CORS(cfg.CORS.AllowedOrigins, nil, nil),
		IPRateLimit:   ipLimit,
		UserRateLimit: userLimit,
		Metrics:       true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// admin erasures run synchronously
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("store", cfg.Store.Driver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")
	stopBackground()
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if asynqWorker != nil {
		asynqWorker.Shutdown()
	}
	if inline != nil {
		inline.Wait()
	}
	orch.Wait()
	log.Info().Msg("server stopped")
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

func newVerifier(ctx context.Context, cfg *config.Config, app *fb.App) (ports.TokenVerifier, error) {
	if cfg.Auth.Mode == config.AuthJWT {
		pemBytes, err := cfg.LoadJWTPublicKey()
		if err != nil {
			return nil, err
		}
		key, err := infraauth.LoadRSAPublicKeyFromPEM(pemBytes)
		if err != nil {
			return nil, err
		}
		return infraauth.NewJWTVerifier(key, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience), nil
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return infraauth.NewFirebaseVerifier(client, cfg.Auth.CheckRevoked), nil
}
