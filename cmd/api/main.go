package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shipping-orchestrator/internal/core/cache"
	"shipping-orchestrator/internal/core/config"
	"shipping-orchestrator/internal/core/httpclient"
	"shipping-orchestrator/internal/core/logger"
	"shipping-orchestrator/internal/core/server"
	"shipping-orchestrator/internal/core/signature"
	guardadapters "shipping-orchestrator/internal/features/guards/adapters"
	jobadapters "shipping-orchestrator/internal/features/jobs/adapters"
	jobdomain "shipping-orchestrator/internal/features/jobs/domain"
	jobhandler "shipping-orchestrator/internal/features/jobs/handler"
	jobservice "shipping-orchestrator/internal/features/jobs/service"
	quoteadapters "shipping-orchestrator/internal/features/quotes/adapters"
	"shipping-orchestrator/internal/features/quotes/domain"
	quotehandler "shipping-orchestrator/internal/features/quotes/handler"
	"shipping-orchestrator/internal/features/quotes/policy"
	quoteports "shipping-orchestrator/internal/features/quotes/ports"
	"shipping-orchestrator/internal/features/quotes/selection"
	quoteservice "shipping-orchestrator/internal/features/quotes/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// quoteValidity is how long an accepted carrier quote stays actionable.
const quoteValidity = 24 * time.Hour

// busyCooldown is the wait before re-offering a busy carrier.
const busyCooldown = 15 * time.Minute

// @title Shipping Orchestrator API
// @version 1.0
// @description Multi-carrier shipping assignment: quick estimates, parallel quote solicitation, selection and capacity-guarded assignment.
// @contact.name API Support
// @license.name MIT
// @host localhost:8080
// @BasePath /
func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Environment, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	l := logger.Get()
	l.Info("Application starting",
		zap.String("environment", cfg.Environment),
		zap.String("log_level", cfg.LogLevel),
	)

	ctx := context.Background()

	// Redis backs every store: repositories, guards and the job queue.
	redisCache, err := cache.NewRedisAdapter(cfg.Redis.URL)
	if err != nil {
		l.Fatal("Failed to create Redis adapter", zap.Error(err))
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		l.Fatal("Redis health check failed", zap.Error(err))
	}
	l.Info("Redis connection verified")

	redisClient := redisCache.Client()

	// Concurrency guards.
	locks := guardadapters.NewRedisLockStore(redisClient)
	capacity := guardadapters.NewRedisCapacityStore(redisClient)
	idempotency := guardadapters.NewRedisIdempotencyStore(redisClient)

	// Repositories.
	quoteRepo := quoteadapters.NewRedisQuoteRepository(redisCache)
	rejectionRepo := quoteadapters.NewRedisRejectionRepository(redisCache)
	carrierRepo := quoteadapters.NewRedisCarrierRepository(redisCache)
	assignmentRepo := quoteadapters.NewRedisAssignmentRepository(redisCache)
	orderStore := quoteadapters.NewRedisOrderStore(redisCache)

	carriers := seedCarriers(ctx, carrierRepo)

	// Routing: external road service when configured, haversine otherwise.
	var routing quoteports.RoutingProvider
	if cfg.Routing.URL != "" {
		routing = quoteadapters.NewRestRouter(cfg.Routing.URL, time.Duration(cfg.Routing.TimeoutSeconds)*time.Second)
	} else {
		routing = quoteadapters.NewHaversineRouter()
	}
	estimator := quoteservice.NewEstimator(routing)

	// Carrier gateway: real HTTP quote APIs where configured, simulator
	// for the rest.
	proxySettings := httpclient.ProxySettings{
		Enabled:  cfg.Proxy.Enabled,
		Hostname: cfg.Proxy.Hostname,
		Port:     cfg.Proxy.Port,
		Username: cfg.Proxy.Username,
		Password: cfg.Proxy.Password,
	}
	gateway := quoteadapters.NewCompositeCarrierGateway(
		quoteadapters.NewRestCarrierGateway(proxySettings, quoteValidity),
		quoteadapters.NewSimulatedCarrierGateway(time.Now().UnixNano(), quoteValidity),
	)

	riskModel := policy.NewRandomRiskModel(time.Now().UnixNano(), nil,
		policy.CarrierRisk{RouteRefusal: 0.05, CapacityRefusal: 0.05})
	validation := policy.NewCarrierPolicy(riskModel)

	reliability := make(map[string]float64, len(carriers))
	for _, c := range carriers {
		reliability[c.ID] = c.Reliability
	}
	selector := selection.NewEngine(selection.DefaultWeights, reliability)

	orchestrator := quoteservice.NewOrchestrator(
		locks, capacity, idempotency,
		carrierRepo, gateway, validation, selector,
		quoteRepo, rejectionRepo, assignmentRepo, orderStore,
		quoteservice.OrchestratorConfig{
			QuoteTimeout:   time.Duration(cfg.Carriers.QuoteTimeoutSeconds) * time.Second,
			MinQuotes:      cfg.Carriers.MinQuotes,
			IdempotencyTTL: time.Duration(cfg.Guards.IdempotencyTTLHours) * time.Hour,
			QuoteValidity:  quoteValidity,
		},
	)

	retryDriver := quoteservice.NewRetryDriver(orchestrator, assignmentRepo, orderStore, capacity, busyCooldown)

	// Job infrastructure: queue, worker pool and cron scheduler.
	jobQueue := jobadapters.NewRedisJobQueue(redisClient)
	scheduleStore := jobadapters.NewRedisScheduleStore(redisClient)

	worker := jobservice.NewWorker(jobQueue, jobservice.WorkerConfig{
		Concurrency:     cfg.Worker.Concurrency,
		PollInterval:    time.Duration(cfg.Worker.PollSeconds) * time.Second,
		ShutdownTimeout: time.Duration(cfg.Worker.ShutdownTimeoutSeconds) * time.Second,
	})
	registerJobHandlers(worker, retryDriver, locks, redisCache, assignmentRepo, cfg)

	scheduler := jobservice.NewScheduler(scheduleStore, jobQueue,
		time.Duration(cfg.Scheduler.PollSeconds)*time.Second)
	seedSchedules(ctx, scheduleStore)

	if err := worker.Start(); err != nil {
		l.Fatal("Failed to start worker", zap.Error(err))
	}
	if err := scheduler.Start(); err != nil {
		l.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// HTTP surface.
	verifier := signature.NewVerifier(cfg.Webhook.Secret,
		time.Duration(cfg.Webhook.ToleranceSeconds)*time.Second)

	quoteHdl := quotehandler.NewQuoteHandler(estimator, orchestrator)
	webhookHdl := quotehandler.NewWebhookHandler(verifier, assignmentRepo, orderStore)
	jobsHdl := jobhandler.NewJobsHandler(worker, jobQueue)

	srv := server.New(cfg)

	srv.App.Post("/shipping/estimate", quoteHdl.GetQuickEstimate)
	srv.App.Post("/shipping/quotes", quoteHdl.GetRealShippingQuotes)
	srv.App.Post("/shipping/quotes/:quoteId/select", quoteHdl.SelectQuote)
	srv.App.Post("/webhooks/carrier", webhookHdl.HandleCarrierEvent)
	srv.App.Get("/jobs/status", jobsHdl.GetStatus)
	srv.App.Get("/jobs/dead-letters", jobsHdl.GetDeadLetters)
	srv.App.Get("/health", func(c *fiber.Ctx) error {
		if err := redisCache.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	go func() {
		if err := srv.Run(); err != nil {
			l.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("Shutting down")
	if err := srv.Shutdown(10 * time.Second); err != nil {
		l.Error("Server shutdown failed", zap.Error(err))
	}
	scheduler.Stop()
	worker.Stop()
	l.Info("Shutdown complete")
}

// registerJobHandlers binds every recurring maintenance task to its job
// type. The set is closed at startup.
func registerJobHandlers(
	worker *jobservice.Worker,
	retryDriver *quoteservice.RetryDriver,
	locks *guardadapters.RedisLockStore,
	redisCache *cache.RedisAdapter,
	assignments quoteports.AssignmentRepository,
	cfg *config.AppConfig,
) {
	l := logger.Named("jobs")

	mustRegister(worker, jobdomain.JobTypeRetrySweep, func(ctx context.Context, job *jobdomain.Job) error {
		report, err := retryDriver.Run(ctx)
		if err != nil {
			return err
		}
		payload, _ := json.Marshal(report)
		l.Info("Retry sweep completed", zap.ByteString("report", payload))
		return nil
	})

	mustRegister(worker, jobdomain.JobTypeStaleLockSweep, func(ctx context.Context, job *jobdomain.Job) error {
		maxAge := time.Duration(cfg.Guards.LockMaxAgeMinutes) * time.Minute
		released, err := locks.SweepStale(ctx, maxAge)
		if err != nil {
			return err
		}
		l.Info("Stale lock sweep completed", zap.Int("released", released))
		return nil
	})

	mustRegister(worker, jobdomain.JobTypeIdempotencyEviction, func(ctx context.Context, job *jobdomain.Job) error {
		// Redis TTLs do the actual eviction; this reports the live count.
		keys, err := redisCache.Keys(ctx, "idem:*")
		if err != nil {
			return err
		}
		l.Info("Idempotency cache inspected", zap.Int("live_entries", len(keys)))
		return nil
	})

	mustRegister(worker, jobdomain.JobTypeSLACheck, func(ctx context.Context, job *jobdomain.Job) error {
		pending, err := assignments.ListByStates(ctx, domain.AssignmentPending)
		if err != nil {
			return err
		}
		overdue := 0
		now := time.Now().UTC()
		for _, a := range pending {
			if now.After(a.ValidUntil) {
				overdue++
				l.Warn("Assignment past its validity window",
					zap.String("order_id", a.OrderID),
					zap.String("carrier_id", a.CarrierID),
					zap.Time("valid_until", a.ValidUntil),
				)
			}
		}
		l.Info("SLA check completed",
			zap.Int("pending", len(pending)), zap.Int("overdue", overdue))
		return nil
	})
}

func mustRegister(worker *jobservice.Worker, jobType jobdomain.JobType, handler func(context.Context, *jobdomain.Job) error) {
	if err := worker.Register(jobType, handler); err != nil {
		logger.Get().Fatal("Failed to register job handler",
			zap.String("type", string(jobType)), zap.Error(err))
	}
}

// defaultCarriers is the starting carrier roster, written once on an
// empty store so a fresh deployment can quote immediately.
var defaultCarriers = []domain.Carrier{
	{ID: "swiftline", Name: "SwiftLine Express", Mode: domain.CarrierModePush, Active: true, MaxWeightKg: 500, ColdChainCapable: false, MaxCapacity: 50, Reliability: 0.92},
	{ID: "frigo", Name: "FrigoCargo", Mode: domain.CarrierModePush, Active: true, MaxWeightKg: 300, ColdChainCapable: true, MaxCapacity: 20, Reliability: 0.88},
	{ID: "bulkhaul", Name: "BulkHaul Logistics", Mode: domain.CarrierModePush, Active: true, MaxWeightKg: 2000, ColdChainCapable: false, MaxCapacity: 35, Reliability: 0.75},
	{ID: "cityrunner", Name: "CityRunner Couriers", Mode: domain.CarrierModePush, Active: true, MaxWeightKg: 50, ColdChainCapable: false, MaxCapacity: 100, Reliability: 0.85},
	{ID: "portalfreight", Name: "Portal Freight Pool", Mode: domain.CarrierModePull, Active: true, MaxWeightKg: 5000, ColdChainCapable: true, MaxCapacity: 200, Reliability: 0.80},
}

// seedCarriers ensures the carrier roster exists and returns the active
// set for the selection reliability table.
func seedCarriers(ctx context.Context, repo *quoteadapters.RedisCarrierRepository) []domain.Carrier {
	l := logger.Get()

	existing, err := repo.ListActive(ctx)
	if err != nil {
		l.Warn("Failed to list carriers during seeding", zap.Error(err))
	}
	if len(existing) > 0 {
		return existing
	}

	for i := range defaultCarriers {
		if err := repo.Save(ctx, &defaultCarriers[i]); err != nil {
			l.Error("Failed to seed carrier",
				zap.String("carrier_id", defaultCarriers[i].ID), zap.Error(err))
		}
	}
	l.Info("Seeded default carrier roster", zap.Int("count", len(defaultCarriers)))
	return defaultCarriers
}

// defaultSchedules are the recurring maintenance tasks.
var defaultSchedules = []struct {
	id         string
	expression string
	jobType    jobdomain.JobType
	maxRetries int
}{
	{id: "assignment-retry-sweep", expression: "*/15 * * * *", jobType: jobdomain.JobTypeRetrySweep, maxRetries: 3},
	{id: "stale-lock-sweep", expression: "*/30 * * * *", jobType: jobdomain.JobTypeStaleLockSweep, maxRetries: 3},
	{id: "idempotency-eviction", expression: "0 * * * *", jobType: jobdomain.JobTypeIdempotencyEviction, maxRetries: 1},
	{id: "sla-check", expression: "*/10 * * * *", jobType: jobdomain.JobTypeSLACheck, maxRetries: 1},
}

// seedSchedules writes the default cron schedules, preserving any that
// already exist so their LastRun/NextRun history survives restarts.
func seedSchedules(ctx context.Context, store *jobadapters.RedisScheduleStore) {
	l := logger.Get()
	now := time.Now().UTC()

	for _, s := range defaultSchedules {
		if existing, err := store.Get(ctx, s.id); err == nil && existing != nil {
			continue
		}

		next, err := jobservice.NextRun(s.expression, now)
		if err != nil {
			l.Error("Invalid default cron expression",
				zap.String("schedule_id", s.id), zap.Error(err))
			continue
		}

		schedule := &jobdomain.CronSchedule{
			ID:         s.id,
			Expression: s.expression,
			JobType:    s.jobType,
			MaxRetries: s.maxRetries,
			Enabled:    true,
			NextRun:    next,
		}
		if err := store.Save(ctx, schedule); err != nil {
			l.Error("Failed to seed schedule",
				zap.String("schedule_id", s.id), zap.Error(err))
			continue
		}
		l.Info("Seeded schedule",
			zap.String("schedule_id", s.id),
			zap.String("expression", s.expression),
			zap.Time("next_run", next),
		)
	}
}
