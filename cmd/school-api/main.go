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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/api/swagger"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/handler"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/middleware"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/repository"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/service"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/cache"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/config"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/database"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/export"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/jobs"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/logger"
	corsmiddleware "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/middleware/cors"
	reqidmiddleware "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/middleware/requestid"
)

// @title School Admin API
// @version 1.0.0
// @description Academic years, fees, coverage and attendance for a single school.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	deps := map[string]handler.Pinger{"postgres": db}
	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
		} else {
			defer client.Close()
			cacheRepo = repository.NewCacheRepository(client)
			deps["redis"] = redisPinger{client: client}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := service.NewValidator()
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.HistoryTTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	userRepo := repository.NewUserRepository(db)
	yearRepo := repository.NewAcademicYearRepository(db)
	transitionRepo := repository.NewTransitionRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	staffRepo := repository.NewStaffRepository(db)
	classRepo := repository.NewClassRepository(db)
	ledgerRepo := repository.NewFeeLedgerRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	coverageRepo := repository.NewCoverageRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	yearSvc := service.NewAcademicYearService(yearRepo, cacheSvc, cfg.Cache.HistoryTTL, validate, logr)
	transitionSvc := service.NewYearTransitionService(transitionRepo, yearRepo, studentRepo, classRepo, yearSvc, metricsSvc, cfg.Transition.Timeout, validate, logr)
	feeSvc := service.NewFeeService(studentRepo, ledgerRepo, paymentRepo, metricsSvc, cfg.Ledger.CASRetries, validate, logr,
		export.NewCSVExporter(), export.NewPDFExporter("Generated by School Admin API"))
	coverageSvc := service.NewCoverageService(coverageRepo, timetableRepo, staffRepo, leaveRepo, yearSvc, metricsSvc, validate, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, metricsSvc, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, staffRepo, classRepo, leaveRepo, yearSvc, notificationSvc, metricsSvc, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	staffSvc := service.NewStaffService(staffRepo, logr)

	notifyQueue := jobs.NewQueue("notifications", notificationSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	notifyQueue.Start(ctx)
	notificationSvc.AttachQueue(notifyQueue)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))

	ops := handler.NewMetricsHandler(metricsSvc, deps)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		AcademicYears: handler.NewAcademicYearHandler(yearSvc, transitionSvc),
		Coverage:      handler.NewCoverageHandler(coverageSvc),
		Attendance:    handler.NewAttendanceHandler(attendanceSvc),
		Fees:          handler.NewFeeHandler(feeSvc),
		Students:      handler.NewStudentHandler(studentSvc),
		Staff:         handler.NewStaffHandler(staffSvc),
		Notifications: handler.NewNotificationHandler(notificationSvc),
	}, authSvc, userRepo, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Leaves room for a year transition to finish inside one request.
		WriteTimeout: cfg.Transition.Timeout + 30*time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	notifyQueue.Stop()
}
