package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/services"
	httphandlers "streamcast/internal/handlers/http"
	"streamcast/internal/infrastructure/encoder"
	"streamcast/internal/infrastructure/fanout"
	"streamcast/internal/infrastructure/ingest"
	"streamcast/internal/infrastructure/middleware"
	"streamcast/internal/infrastructure/monitoring"
	"streamcast/internal/infrastructure/publish"
	repositories "streamcast/internal/infrastructure/repositories"
	"streamcast/internal/infrastructure/repositories/memory"
	"streamcast/internal/infrastructure/reliability"
	signalhub "streamcast/internal/infrastructure/signal"
	"streamcast/internal/infrastructure/streaming"
	"streamcast/pkg/circuitbreaker"
	"streamcast/pkg/config"
	"streamcast/pkg/logger"
	"streamcast/pkg/retry"
	"streamcast/pkg/tracing"
	"streamcast/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/streamcast/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "streamcast",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: os.Getenv("STREAMCAST_ENV"),
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracerProvider.Shutdown(ctx)
	}()

	// Initialize store factory
	storeFactory, err := repositories.NewFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create store factory", "error", err)
	}
	defer storeFactory.Close()

	baseStore := storeFactory.CreateCredentialStore()
	if seeder, ok := baseStore.(*memory.CredentialStore); ok {
		for _, c := range cfg.Credentials {
			key := domain.StreamKey(c.Key)
			if key == "" {
				key = domain.StreamKey(utils.GenerateStreamKey())
			}
			seeder.Seed(&domain.StreamCredential{
				Key:     key,
				OwnerID: domain.UserID(c.Owner),
				Title:   c.Title,
			})
			log.Infow("seeded stream credential", "stream_key", key, "owner", c.Owner)
		}
	}

	credStore := repositories.NewCachedCredentialStore(baseStore, 10*time.Second)
	registry := storeFactory.CreateSessionRegistry()

	// Initialize services
	topologyService := services.NewTopologyService(
		cfg.Topology.MeshMaxViewers,
		cfg.Topology.RelayMaxViewers,
	)
	throughputService := services.NewThroughputService(
		cfg.Quality.PoorBelowKbps,
		cfg.Quality.FairBelowKbps,
	)
	gateway := reliability.NewGatewayWrapper(
		services.NewCredentialService(credStore, registry),
		retry.DefaultConfig(),
		circuitbreaker.DefaultConfig(),
		log,
	)

	// Segment storage and encoder factory
	segmentStore := streaming.NewSegmentStore(
		cfg.Segments.Root,
		cfg.Segments.WindowSize,
		cfg.Segments.Duration,
		log,
	)
	encoderFactory := &encoder.Factory{
		FFmpegPath:      cfg.Encoder.FFmpegPath,
		SegmentRoot:     cfg.Segments.Root,
		SegmentDuration: cfg.Segments.Duration,
		WindowSize:      cfg.Segments.WindowSize,
		StopGrace:       cfg.Encoder.StopGrace,
		Logger:          log,
	}

	// Monitoring and viewer/chat fanout
	prometheusCollector := monitoring.NewPrometheusCollector()
	fanoutHub := fanout.NewHub(registry, prometheusCollector, cfg.Chat.MessagesPerSecond, cfg.Chat.Burst, log)
	fanoutServer := fanout.NewServer(fanoutHub, log)

	// WebRTC configuration (including STUN/TURN from config)
	var iceServers []webrtc.ICEServer
	if len(cfg.WebRTC.ICEServers) > 0 {
		for _, s := range cfg.WebRTC.ICEServers {
			iceServers = append(iceServers, webrtc.ICEServer{
				URLs:       s.URLs,
				Username:   s.Username,
				Credential: s.Credential,
			})
		}
	} else {
		// Fallback STUN server if not configured
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	// Signaling hub for in-browser broadcasters
	signalHub := signalhub.NewHub(
		registry,
		gateway,
		credStore,
		topologyService,
		fanoutHub,
		segmentStore,
		prometheusCollector,
		iceServers,
		log,
	)
	signalServer := signalhub.NewServer(signalHub, log)

	// Ingest path (WebSocket broadcasters)
	sessionDeps := ingest.SessionDeps{
		Registry:       registry,
		Store:          credStore,
		Notifier:       fanoutHub,
		EncoderFactory: encoderFactory,
		Segments:       segmentStore,
		Collector:      prometheusCollector,
		Quality:        throughputService,
		RetentionGrace: cfg.Segments.RetentionGrace,
		Logger:         log,
	}
	ingestServer := ingest.NewServer(
		gateway,
		sessionDeps,
		cfg.Encoder.VideoBitrateKbps,
		cfg.Encoder.AudioBitrateKbps,
		cfg.Ingest.QualityInterval,
		cfg.Ingest.PingInterval,
		cfg.Ingest.ReadTimeout,
		cfg.Ingest.WriteTimeout,
		log,
	)

	// Raw TCP publish path
	publishServer := publish.NewServer(
		cfg.Publish.Address,
		cfg.Publish.App,
		gateway,
		sessionDeps,
		cfg.Ingest.QualityInterval,
		cfg.Encoder.VideoBitrateKbps,
		cfg.Encoder.AudioBitrateKbps,
		log,
	)
	publishErr := make(chan error, 1)
	go func() {
		if err := publishServer.ListenAndServe(); err != nil {
			publishErr <- err
		}
	}()

	// Initialize HTTP handlers
	sessionHandler := httphandlers.NewSessionHandler(
		registry,
		cfg.Segments.Root,
		ingestServer,
		signalHub,
		fanoutHub,
		publishServer,
	)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	sessionHandler.SetupRoutes(router)

	// Readiness endpoint (checks Redis connection when enabled)
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := storeFactory.HealthCheck(ctx); err != nil {
			c.JSON(503, gin.H{
				"status":       "not_ready",
				"timestamp":    time.Now(),
				"dependencies": "unhealthy",
				"error":        err.Error(),
			})
			return
		}

		c.JSON(200, gin.H{
			"status":       "ready",
			"timestamp":    time.Now(),
			"dependencies": "ok",
		})
	})

	// WebSocket endpoints
	router.GET(cfg.Ingest.Path, gin.WrapF(ingestServer.HandleWebSocket))
	router.GET("/signal", gin.WrapF(signalServer.HandleWebSocket))
	router.GET("/chat", gin.WrapF(fanoutServer.HandleWebSocket))

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting Streamcast server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server error", "error", err)
	case err := <-publishErr:
		log.Fatalw("publish server error", "error", err)
	case sig := <-quit:
		log.Infow("shutting down", "signal", sig)
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := publishServer.Close(); err != nil {
		log.Warnw("publish server close failed", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
