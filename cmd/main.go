package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatrelay-backend/internal/browser"
	"chatrelay-backend/internal/config"
	"chatrelay-backend/internal/credential"
	"chatrelay-backend/internal/handler"
	"chatrelay-backend/internal/middleware"
	"chatrelay-backend/internal/model"
	"chatrelay-backend/internal/service"
	"chatrelay-backend/internal/storage"
	"chatrelay-backend/internal/usage"
	"chatrelay-backend/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "path to the YAML config file, empty for defaults only")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	driver := browser.NewPlaywrightDriver(browser.PlaywrightConfig{
		Headless:          cfg.Browser.Headless,
		Args:              cfg.Browser.Args,
		UserAgent:         cfg.Browser.UserAgent,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		TargetURL:         cfg.Browser.TargetURL,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		Install:           cfg.Browser.InstallDriver,
	})
	pool := browser.NewPool(driver, browser.PoolConfig{
		MaxSessions:    cfg.Browser.MaxSessions,
		AcquireTimeout: cfg.Browser.AcquireTimeout,
	})

	tokenStore, err := newTokenStore(cfg.Credential)
	if err != nil {
		logger.Fatalf("Failed to init token store: %v", err)
	}
	defer tokenStore.Close()

	refresher := credential.NewRefresher(credential.Config{
		ScriptURL:       cfg.Credential.ScriptURL,
		UserAgent:       cfg.Browser.UserAgent,
		RefreshInterval: cfg.Credential.RefreshInterval,
		FetchTimeout:    cfg.Credential.FetchTimeout,
		Defaults: model.Credential{
			B:  cfg.Credential.Defaults.B,
			E:  cfg.Credential.Defaults.E,
			S:  cfg.Credential.Defaults.S,
			D:  cfg.Credential.Defaults.D,
			VR: cfg.Credential.Defaults.VR,
		},
		Store: tokenStore,
	}, pool)

	chatService := service.NewChatService(pool, refresher, service.Options{
		DefaultModel: cfg.API.DefaultModel,
		UpstreamPath: cfg.API.UpstreamPath,
		FallbackText: cfg.API.FallbackText,
	})

	chatHandler := handler.NewChatHandler(chatService, usage.NewCounter(cfg.Usage.Tokenizer, cfg.Usage.Encoding), cfg.API.DefaultModel)
	modelHandler := handler.NewModelHandler(cfg.API.Models)
	healthHandler := handler.NewHealthHandler(pool, refresher)

	router := setupRouter(cfg, chatHandler, modelHandler, healthHandler)

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Infof("Server listening on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Warm the browser and the credential so the first request does not pay
	// for them. Failures are retried lazily by the first request.
	go func() {
		ctx := context.Background()
		if err := pool.Init(ctx); err != nil {
			logger.Errorf("Browser pre-warm failed: %v", err)
			return
		}
		if !refresher.Refresh(ctx) {
			logger.Warn("Credential pre-warm failed, using default token")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	pool.Cleanup()
	logger.Info("Server stopped")
}

func newTokenStore(cfg config.CredentialConfig) (storage.Storage, error) {
	var store storage.Storage
	switch cfg.Store {
	case "disk":
		store = storage.NewDiskStorage(cfg.DataDir)
	case "memory", "":
		store = storage.NewMemoryStorage()
	default:
		return nil, fmt.Errorf("unknown credential store %q", cfg.Store)
	}
	if err := store.Init(); err != nil {
		return nil, err
	}
	return store, nil
}

func setupRouter(cfg *config.Config, chatHandler *handler.ChatHandler, modelHandler *handler.ModelHandler, healthHandler *handler.HealthHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	router.GET("/", healthHandler.Root)
	router.GET("/health", healthHandler.Health)
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := router.Group("/v1")
	{
		v1.GET("/models", modelHandler.ListModels)

		chat := []gin.HandlerFunc{middleware.Auth(cfg.Auth.APIKey)}
		if cfg.RateLimit.Enabled {
			chat = append(chat, middleware.RateLimit(middleware.RateLimitConfig{
				RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
				Burst:             cfg.RateLimit.Burst,
			}))
		}
		chat = append(chat, chatHandler.ChatCompletions)
		v1.POST("/chat/completions", chat...)
	}

	return router
}
