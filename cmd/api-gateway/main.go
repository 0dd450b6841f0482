package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/testmentor-api/api/swagger"
	"github.com/noah-isme/testmentor-api/internal/handler"
	"github.com/noah-isme/testmentor-api/internal/repository"
	"github.com/noah-isme/testmentor-api/internal/router"
	"github.com/noah-isme/testmentor-api/internal/service"
	"github.com/noah-isme/testmentor-api/pkg/cache"
	"github.com/noah-isme/testmentor-api/pkg/config"
	"github.com/noah-isme/testmentor-api/pkg/database"
	"github.com/noah-isme/testmentor-api/pkg/jobs"
	"github.com/noah-isme/testmentor-api/pkg/logger"
	"github.com/noah-isme/testmentor-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/testmentor-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/testmentor-api/pkg/middleware/requestid"
	"github.com/noah-isme/testmentor-api/pkg/slotlock"
	"github.com/noah-isme/testmentor-api/pkg/storage"
)

// @title Test Mentor Booking API
// @version 1.0.0
// @description Teacher availability, capacity-checked bookings and the booking lifecycle.
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Migrations.AutoMigrate {
		migrator, err := database.NewMigrator(db.DB, logr)
		if err != nil {
			return err
		}
		if err := migrator.Up(ctx); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			// events are best effort; keep serving without them
			logr.Warn("redis unavailable, booking events disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	validate := validator.New()
	zones := service.NewZoneResolver(cfg.Booking.DefaultTimezone)
	displayLoc, err := zones.Resolve("")
	if err != nil {
		return fmt.Errorf("resolve default timezone: %w", err)
	}
	evaluator := service.NewAvailabilityEvaluator(cfg.Booking.SlotCapacity, zones)
	locks := slotlock.New()
	metrics := service.NewMetricsService(locks.Len)

	teachers := repository.NewTeacherRepository(db)
	profiles := repository.NewProfileRepository(db)
	rules := repository.NewAvailabilityRuleRepository(db)
	exceptions := repository.NewUnavailableExceptionRepository(db)
	bookings := repository.NewBookingRepository(db)
	selections := repository.NewTestSelectionRepository(db)
	conversations := repository.NewConversationRepository(db)
	sessions := repository.NewSessionRepository(db)
	events := repository.NewEventPublisher(redisClient, cfg.Notifications.EventsChannel)
	uow := repository.NewBookingUnitOfWork(db, rules, exceptions, bookings, selections, conversations, sessions)

	receiptStore, err := storage.NewLocalStorage(cfg.Receipts.StorageDir)
	if err != nil {
		return fmt.Errorf("init receipt storage: %w", err)
	}
	receipts := service.NewReceiptService(
		receiptStore,
		storage.NewSignedURLSigner(cfg.Receipts.SignedURLSecret, cfg.Receipts.SignedURLTTL),
		bookings,
		service.ReceiptConfig{
			MaxBytes:     cfg.Receipts.MaxFileSizeBytes,
			AllowedMIMEs: cfg.Receipts.AllowedMIMEs,
			DownloadPath: cfg.APIPrefix + "/receipts/download",
		},
		logr.Named("receipts"),
	)

	mailWorker := service.NewMailWorker(
		mailer.NewResendClient(cfg.Notifications.ResendBaseURL, cfg.Notifications.ResendAPIKey, cfg.Notifications.EmailFrom, nil),
		profiles, selections, displayLoc, logr.Named("mail"),
	)
	mailQueue := jobs.NewQueue("booking-mail", mailWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	mailQueue.Start(ctx)
	defer mailQueue.Stop()
	notifier := service.NewNotificationService(events, mailQueue, cfg.Notifications.Enabled, logr.Named("notifications"))

	audience := ""
	if len(cfg.JWT.Audience) > 0 {
		audience = cfg.JWT.Audience[0]
	}
	auth := service.NewAuthService(logr.Named("auth"), service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          audience,
		Leeway:            30 * time.Second,
	})

	bookingSvc := service.NewBookingService(uow, teachers, bookings, receipts, evaluator, locks, validate, logr.Named("bookings"),
		service.WithBookingNotifier(notifier),
		service.WithBookingMetrics(metrics),
	)
	lifecycleSvc := service.NewBookingLifecycleService(uow, logr.Named("lifecycle"),
		service.WithLifecycleNotifier(notifier),
		service.WithLifecycleMetrics(metrics),
		service.WithSessionDuration(cfg.Booking.SessionDuration),
	)
	availabilitySvc := service.NewAvailabilityService(teachers, rules, exceptions, bookings, evaluator, logr.Named("availability"),
		service.WithSlotStep(cfg.Booking.SlotStep),
	)

	handlers := router.Handlers{
		Teachers:         handler.NewTeacherHandler(service.NewTeacherService(teachers, selections, logr)),
		Availability:     handler.NewAvailabilityHandler(availabilitySvc),
		AvailabilityRule: handler.NewAvailabilityRuleHandler(service.NewAvailabilityRuleService(rules, exceptions, evaluator, validate, cfg.Booking.DefaultTimezone, logr)),
		Bookings:         handler.NewBookingHandler(bookingSvc, lifecycleSvc, receipts),
		Receipts:         handler.NewReceiptHandler(receipts, cfg.Receipts.MaxFileSizeBytes),
		Sessions:         handler.NewSessionHandler(service.NewSessionService(sessions, validate, displayLoc, logr)),
		Conversations:    handler.NewConversationHandler(service.NewConversationService(conversations, events, validate, logr)),
		Metrics:          handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient)),
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	router.Register(r, auth, metrics, handlers, router.Options{
		APIPrefix: cfg.APIPrefix,
		Docs:      cfg.Env != config.EnvProduction,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func readinessChecks(db *sqlx.DB, client *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}
