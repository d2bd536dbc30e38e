package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/clubpulse/clubpulse-api/api/swagger"
	"github.com/clubpulse/clubpulse-api/internal/handler"
	"github.com/clubpulse/clubpulse-api/internal/middleware"
	"github.com/clubpulse/clubpulse-api/internal/models"
	"github.com/clubpulse/clubpulse-api/internal/repository"
	"github.com/clubpulse/clubpulse-api/internal/service"
	"github.com/clubpulse/clubpulse-api/pkg/cache"
	"github.com/clubpulse/clubpulse-api/pkg/config"
	"github.com/clubpulse/clubpulse-api/pkg/database"
	"github.com/clubpulse/clubpulse-api/pkg/export"
	"github.com/clubpulse/clubpulse-api/pkg/logger"
	corsmiddleware "github.com/clubpulse/clubpulse-api/pkg/middleware/cors"
	reqidmiddleware "github.com/clubpulse/clubpulse-api/pkg/middleware/requestid"
)

// @title ClubPulse API
// @version 0.1.0
// @description Club events, ticketing and promotion progress backend
// @BasePath /
// @schemes http

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
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	clubRepo := repository.NewClubRepository(db)
	eventRepo := repository.NewEventRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	claimRepo := repository.NewClaimRepository(db)
	ticketRepo := repository.NewTicketRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()

	templateSvc := service.NewTemplateService(templateRepo, clubRepo, cfg.Promotions, validate, logr)
	promotionSvc := service.NewPromotionService(templateSvc, progressRepo, claimRepo, cacheRepo, metricsSvc, cfg.Promotions, logr)
	claimSvc := service.NewClaimService(claimRepo, promotionSvc, clubRepo, userRepo, metricsSvc, validate, logr)

	authCfg := service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "clubpulse-api",
	}

	var (
		referralSvc *service.ReferralService
		authSvc     *service.AuthService
	)
	if cfg.Referrals.Enabled {
		referralSvc = service.NewReferralService(referralRepo, clubRepo, eventRepo, promotionSvc, cfg.Referrals, validate, logr)
		authSvc = service.NewAuthService(userRepo, referralSvc, validate, logr, authCfg)
	} else {
		authSvc = service.NewAuthService(userRepo, nil, validate, logr, authCfg)
	}

	clubSvc := service.NewClubService(clubRepo, promotionSvc, validate, logr)
	eventSvc := service.NewEventService(eventRepo, clubRepo, validate, logr)

	var ticketSvc *service.TicketService
	if cfg.Tickets.Enabled {
		renderer := export.NewTicketPDFRenderer()
		ticketSvc = service.NewTicketService(ticketRepo, eventRepo, userRepo, clubRepo, promotionSvc, renderer, metricsSvc, cfg.Tickets, validate, logr)

		queueCtx, cancelQueue := context.WithCancel(context.Background())
		defer cancelQueue()
		ticketSvc.Queue().Start(queueCtx)
		defer ticketSvc.Queue().Stop()
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		logr.Sugar().Fatalw("failed to init scheduler", "error", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.Promotions.RecountInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Promotions.RecountInterval)
			defer cancel()
			if err := promotionSvc.ReconcilePendingClaims(ctx); err != nil {
				logr.Warn("pending claim reconciliation failed", zap.Error(err))
			}
		}),
	)
	if err != nil {
		logr.Sugar().Fatalw("failed to schedule reconciliation job", "error", err)
	}
	scheduler.Start()
	defer scheduler.Shutdown() //nolint:errcheck

	authHandler := handler.NewAuthHandler(authSvc)
	clubHandler := handler.NewClubHandler(clubSvc)
	eventHandler := handler.NewEventHandler(eventSvc)
	templateHandler := handler.NewTemplateHandler(templateSvc)
	promotionHandler := handler.NewPromotionHandler(promotionSvc)
	claimHandler := handler.NewClaimHandler(claimSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db, redisClient)

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
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	events := api.Group("/events")
	events.GET("", eventHandler.List)
	events.GET("/:id", eventHandler.Get)

	manageEvents := api.Group("/events", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleClubManager))
	manageEvents.POST("", eventHandler.Create)
	manageEvents.PUT("/:id", eventHandler.Update)
	manageEvents.POST("/:id/publish", eventHandler.Publish)
	manageEvents.POST("/:id/cancel", eventHandler.Cancel)
	manageEvents.POST("/:id/finish", eventHandler.Finish)

	clubs := api.Group("/clubs", middleware.JWT(authSvc))
	clubs.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleClubManager), clubHandler.Create)
	clubs.GET("/:clubId", clubHandler.Get)
	clubs.POST("/:clubId/follow", clubHandler.Follow)
	clubs.DELETE("/:clubId/follow", clubHandler.Unfollow)
	clubs.GET("/:clubId/templates", templateHandler.ListForClub)
	clubs.GET("/:clubId/promotion", promotionHandler.GetProgress)
	clubs.POST("/:clubId/promotion/activities", promotionHandler.RecordActivity)

	claims := api.Group("/claims", middleware.JWT(authSvc))
	claims.POST("", claimHandler.Submit)
	claims.GET("", claimHandler.List)
	claims.GET("/:id", claimHandler.Get)
	claims.POST("/:id/cancel", claimHandler.Cancel)
	claims.POST("/:id/review", middleware.RequireRoles(models.RoleAdmin, models.RoleClubManager), claimHandler.Review)

	admin := api.Group("/admin", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/templates", middleware.Audit(userRepo, "TEMPLATE_CREATE", "level_template"), templateHandler.Create)
	admin.PUT("/templates/:id", middleware.Audit(userRepo, "TEMPLATE_REPLACE", "level_template"), templateHandler.Replace)
	admin.DELETE("/templates/:id", middleware.Audit(userRepo, "TEMPLATE_DEACTIVATE", "level_template"), templateHandler.Deactivate)

	if ticketSvc != nil {
		ticketHandler := handler.NewTicketHandler(ticketSvc)

		api.POST("/webhooks/payments", ticketHandler.PaymentWebhook)

		orders := api.Group("/orders", middleware.JWT(authSvc))
		orders.POST("", ticketHandler.CreateOrder)

		tickets := api.Group("/tickets", middleware.JWT(authSvc))
		tickets.GET("", ticketHandler.ListMine)
		tickets.GET("/:id/pdf", ticketHandler.DownloadPDF)
		tickets.POST("/:id/redeem", middleware.RequireRoles(models.RoleAdmin, models.RoleClubManager), ticketHandler.Redeem)
	}

	if referralSvc != nil {
		referralHandler := handler.NewReferralHandler(referralSvc)

		r.GET("/r/:code", referralHandler.Redirect)

		shareLinks := api.Group("/share-links", middleware.JWT(authSvc))
		shareLinks.POST("", referralHandler.Create)
		shareLinks.GET("", referralHandler.ListMine)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
