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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"onboarding-funnel/pkg/analytics"
	"onboarding-funnel/pkg/api"
	"onboarding-funnel/pkg/clients/airtable"
	"onboarding-funnel/pkg/clients/segment"
	"onboarding-funnel/pkg/clients/shortio"
	"onboarding-funnel/pkg/clients/textmagic"
	"onboarding-funnel/pkg/config"
	"onboarding-funnel/pkg/logging"
	"onboarding-funnel/pkg/metrics"
	"onboarding-funnel/pkg/middleware"
	"onboarding-funnel/pkg/services"
	"onboarding-funnel/pkg/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	// Initialize configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.GinMode == gin.DebugMode)
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("Error opening store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Error closing store", zap.Error(err))
		}
	}()

	// Initialize API clients
	var analyticsClient analytics.Client
	if cfg.SegmentWriteKey != "" {
		segmentClient, err := segment.NewClient(cfg.SegmentWriteKey, segment.Options{
			Endpoint:  cfg.SegmentEndpoint,
			BatchSize: cfg.SegmentBatchSize,
			Interval:  cfg.SegmentFlushInterval,
		}, logger)
		if err != nil {
			logger.Fatal("Error creating Segment client", zap.Error(err))
		}
		analyticsClient = segmentClient
	}
	emitter := analytics.NewEmitter(analyticsClient, logger, cfg.AnalyticsBuffer)

	var airtableClient airtable.Client
	if cfg.CRMEnabled() {
		airtableClient = airtable.NewClient(cfg.AirtableAPIKey, cfg.AirtableBaseID, logger)
	}
	var textMagicClient textmagic.Client
	var shortIOClient shortio.Client
	if cfg.FollowupEnabled() {
		textMagicClient = textmagic.NewClient(cfg.TextMagicUsername, cfg.TextMagicAPIKey, cfg.TextMagicListID, logger)
		shortIOClient = shortio.NewClient(cfg.ShortIOAPIKey, cfg.ShortIODomain, logger)
	}

	funnelMetrics, err := metrics.NewFunnel(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("Error registering metrics", zap.Error(err))
	}

	// Initialize services
	leadService := services.NewLeadService(
		airtableClient,
		textMagicClient,
		shortIOClient,
		st,
		services.LeadConfig{
			LeadsTable:    cfg.AirtableLeadsTable,
			ResumeURL:     cfg.ResumeURL,
			FollowupDelay: cfg.FollowupDelay,
		},
		logger,
	)
	pages := services.NewPageRegistry(cfg.PageTTL)
	onboardingService := services.NewOnboardingService(st, pages, emitter, funnelMetrics, leadService, logger)
	authService := services.NewAuthService(st, pages, emitter, funnelMetrics, logger)

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logger(logger), middleware.CORS(cfg.AllowedOrigin))

	// Initialize handlers
	visitors := api.NewVisitorTokens(cfg.VisitorSecret, cfg.VisitorTTL, cfg.GinMode == gin.ReleaseMode)
	handlers := api.NewHandlers(onboardingService, authService, visitors, logger)
	api.RegisterRoutes(router, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Error starting server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down server", zap.Error(err))
	}
	leadService.Close()
	if err := emitter.Close(shutdownCtx); err != nil {
		logger.Error("Error flushing analytics", zap.Error(err))
	}
}
