package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"gugudan/internal/config"
	"gugudan/internal/handler"
	"gugudan/internal/liveness"
	"gugudan/internal/logging"
	"gugudan/internal/prefs"
	"gugudan/internal/relay"
)

func main() {
	// .envファイルを読み込み
	envErr := godotenv.Load()

	// 環境変数を読み込み
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.Env, cfg.LogLevel)
	if envErr != nil {
		logger.Debug().Err(envErr).Msg(".env file not found, using environment")
	}

	// 設定ファイル
	prefsPath := cfg.PreferencesPath
	if prefsPath == "" {
		p, err := prefs.DefaultPath()
		if err != nil {
			logger.Fatal().Err(err).Msg("resolve preferences path")
		}
		prefsPath = p
	}
	store, err := prefs.Open(prefsPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", prefsPath).Msg("preferences unreadable, using defaults")
	}

	r := relay.New(cfg.RelayURL(),
		relay.WithLogger(logger),
		relay.WithReconnectDelay(cfg.ReconnectDelay),
		relay.WithPreferences(store),
	)
	tracker := liveness.New([]liveness.Service{
		{Name: liveness.Supervisor, URL: cfg.SupervisorHealthURL},
		{Name: liveness.Agent1, URL: cfg.Agent1HealthURL},
		{Name: liveness.Agent2, URL: cfg.Agent2HealthURL},
	}, liveness.WithTimeout(cfg.HealthTimeout), liveness.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.Start()
	go tracker.Run(ctx, cfg.HealthInterval)

	// ハンドラー初期化
	h := handler.New(r, tracker, cfg, logger)

	// WebSocket ブロードキャスターを開始
	go h.HandleBroadcast()
	go h.WatchRelay(ctx)

	router := h.SetupRouter()

	// CORS対応
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           300,
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      c.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	fmt.Println("========================================")
	fmt.Println("  Gugudan Relay Bridge")
	fmt.Println("========================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Supervisor: %s\n", cfg.RelayURL())
	fmt.Printf("  Bridge: http://localhost:%s\n", cfg.ServerPort)
	fmt.Printf("  WebSocket: ws://localhost:%s/ws\n", cfg.ServerPort)
	fmt.Printf("  Preferences: %s\n", prefsPath)
	fmt.Printf("  Allowed Origins: %v\n", cfg.AllowedOrigins)
	fmt.Println("========================================")

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("bridge listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	r.Dispose()
}
