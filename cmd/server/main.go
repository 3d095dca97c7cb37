package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	apihttp "github.com/TurnkeyIsaiah/Brutus/api/http"
	"github.com/TurnkeyIsaiah/Brutus/internal/analysis"
	"github.com/TurnkeyIsaiah/Brutus/internal/background"
	"github.com/TurnkeyIsaiah/Brutus/internal/config"
	"github.com/TurnkeyIsaiah/Brutus/internal/httpserver"
	"github.com/TurnkeyIsaiah/Brutus/internal/live"
	"github.com/TurnkeyIsaiah/Brutus/internal/oracle"
	"github.com/TurnkeyIsaiah/Brutus/internal/research"
	"github.com/TurnkeyIsaiah/Brutus/internal/store"
	supastore "github.com/TurnkeyIsaiah/Brutus/internal/store/supabase"
	"github.com/TurnkeyIsaiah/Brutus/internal/transcribe"
	"github.com/TurnkeyIsaiah/Brutus/internal/ws"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Load()

	var st store.Store
	if cfg.UseMemoryStore {
		logger.Info("using in-memory store")
		st = store.NewMemory()
	} else {
		s, err := supastore.New(cfg.SupabaseURL, cfg.SupabaseServiceKey)
		if err != nil {
			logger.WithError(err).Fatal("supabase store init failed")
		}
		st = s
	}

	brain := oracle.NewClient(cfg.AnthropicKey, cfg.AnthropicModelID, logger)
	whisper := transcribe.NewWhisperClient(cfg.OpenAIKey, logger)

	runner := background.NewRunner(logger, 4)
	defer runner.Close()

	analyzer := analysis.NewService(st, st, brain, runner, logger)
	coordinator := live.NewCoordinator(st, st, st, whisper, brain, analyzer, live.DefaultConfig(), logger)
	researcher := research.NewService(st, brain, runner, logger)

	e := httpserver.New()

	handlers := apihttp.NewHandlers(coordinator, analyzer, whisper, researcher, st, logger)
	handlers.Register(e, []byte(cfg.JWTSecret))

	wsHandler := ws.NewHandler(coordinator, []byte(cfg.JWTSecret), logger)
	e.GET("/ws", wsHandler.Serve)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTPAddress).Info("server listening")
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
		_ = server.Close()
	}
}
