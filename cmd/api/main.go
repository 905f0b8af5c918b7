package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/pre-enrollment-api/api/swagger"
	"github.com/noah-isme/pre-enrollment-api/internal/handler"
	"github.com/noah-isme/pre-enrollment-api/internal/middleware"
	"github.com/noah-isme/pre-enrollment-api/internal/models"
	"github.com/noah-isme/pre-enrollment-api/internal/repository"
	"github.com/noah-isme/pre-enrollment-api/internal/service"
	"github.com/noah-isme/pre-enrollment-api/pkg/cache"
	"github.com/noah-isme/pre-enrollment-api/pkg/config"
	"github.com/noah-isme/pre-enrollment-api/pkg/database"
	"github.com/noah-isme/pre-enrollment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/pre-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/pre-enrollment-api/pkg/middleware/requestid"
)

// @title Pre-Enrollment API
// @version 1.0.0
// @description Student pre-enrollment portal backend
// @BasePath /api/v1
// @schemes http
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	planRepo := repository.NewPlanRepository(db)
	actionLogRepo := repository.NewActionLogRepository(db)
	resetRepo := repository.NewResetAttemptRepository(db)
	configRepo := repository.NewConfigRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	allocator := service.NewTokenAllocator(enrollmentRepo, cfg.Allocator, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, classRepo, allocator, actionLogRepo, metricsSvc, nil, logr)
	classSvc := service.NewClassService(classRepo, enrollmentRepo, subjectRepo, nil, logr)
	catalogSvc := service.NewCatalogService(subjectRepo, planRepo, logr)
	authSvc := service.NewAuthService(userRepo, actionLogRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "pre-enrollment-api",
	})
	resetSvc := service.NewPasswordResetService(enrollmentRepo, resetRepo, userRepo, actionLogRepo, nil, logr, cfg.Reset)
	statsSvc := service.NewStatsService(enrollmentRepo, cacheRepo, logr, cfg.Stats)
	configSvc := service.NewConfigService(configRepo, actionLogRepo, logr)
	actionLogSvc := service.NewActionLogService(actionLogRepo, logr)
	exportSvc := service.NewExportService(enrollmentRepo, classRepo, logr)

	authHandler := handler.NewAuthHandler(authSvc, resetSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, exportSvc, statsSvc, metricsSvc)
	classHandler := handler.NewClassHandler(classSvc, exportSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)
	adminHandler := handler.NewAdminHandler(statsSvc, actionLogSvc, resetSvc, configSvc, metricsSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)
		api.POST("/auth/refresh", authHandler.Refresh)
		api.POST("/auth/forgot-password", authHandler.ResetPassword)

		api.GET("/classes", classHandler.ListGrouped)
		api.GET("/classes/:id/availability", classHandler.Availability)
		api.GET("/subjects", catalogHandler.Subjects)
		api.GET("/plans", catalogHandler.Plans)
		api.GET("/plans/:id", catalogHandler.Plan)
		api.GET("/config", adminHandler.PublicConfig)

		authed := api.Group("")
		authed.Use(middleware.JWT(authSvc))
		{
			authed.POST("/auth/logout", authHandler.Logout)
			authed.POST("/pre-enrollments", enrollmentHandler.Submit)
			authed.GET("/pre-enrollments/latest", enrollmentHandler.Latest)
			authed.PUT("/pre-enrollments/:id", enrollmentHandler.UpdateBasicData)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.JWT(authSvc), middleware.RequireStaff(), middleware.Audit(actionLogRepo, models.ActionAdminAccess))
		{
			admin.GET("/pre-enrollments", enrollmentHandler.List)
			admin.PATCH("/pre-enrollments/:id", enrollmentHandler.UpdateStatus)
			admin.GET("/pre-enrollments/export", enrollmentHandler.Export)

			admin.GET("/classes", classHandler.ListAll)
			admin.POST("/classes", classHandler.Create)
			admin.PUT("/classes/:id", classHandler.Update)
			admin.DELETE("/classes/:id", classHandler.Delete)
			admin.GET("/classes/:id/roster", classHandler.Roster)

			admin.GET("/stats", adminHandler.Stats)
			admin.GET("/action-logs", adminHandler.ActionLogs)
			admin.GET("/password-reset-attempts", adminHandler.ResetAttempts)
			admin.GET("/config", adminHandler.GetConfig)
			admin.PUT("/config", middleware.RequireRoles(models.RoleAdmin), adminHandler.UpdateConfig)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
