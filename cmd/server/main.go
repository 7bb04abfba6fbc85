package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Pratham2994/OmniCompiler/internal/api"
	"github.com/Pratham2994/OmniCompiler/internal/config"
	"github.com/Pratham2994/OmniCompiler/internal/history"
	"github.com/Pratham2994/OmniCompiler/internal/insight"
	"github.com/Pratham2994/OmniCompiler/internal/logging"
	"github.com/Pratham2994/OmniCompiler/internal/predict"
	"github.com/Pratham2994/OmniCompiler/internal/sandbox"
	"github.com/Pratham2994/OmniCompiler/internal/session"
	"github.com/Pratham2994/OmniCompiler/internal/supervisor"
)

func main() {
	logging.Init()
	defer logging.Sync()
	log := logging.L()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("configuration invalid", zap.Error(err))
	}

	if cfg.UseDocker && !config.DockerAvailable() {
		log.Fatal("docker is required for execution but was not detected on PATH (OC_USE_DOCKER=1)")
	}

	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	var store *history.Store
	if cfg.HistoryDB != "" {
		store, err = history.Open(cfg.HistoryDB)
		if err != nil {
			log.Warn("session history disabled", zap.Error(err))
			store = nil
		}
	}

	registry := session.NewRegistry()
	launcher := &sandbox.Launcher{
		UseDocker:   cfg.UseDocker,
		ImagePrefix: cfg.ImagePrefix,
	}

	sv := &supervisor.Supervisor{
		Launcher: launcher,
		Registry: registry,
		History:  store,
		Opts: supervisor.Options{
			WallClock:      cfg.WallClock,
			KillGrace:      cfg.KillGrace,
			CommandTimeout: cfg.CommandTimeout,
		},
	}

	router := api.NewRouter(&api.API{
		Registry:         registry,
		Launcher:         launcher,
		Supervisor:       sv,
		Predictor:        &predict.Predictor{Dir: cfg.PredictorDir},
		Insight:          insight.NewClient(cfg.GeminiAPIKey),
		CreateRatePerMin: cfg.CreateRatePerMin,
		PrepareTimeout:   cfg.WallClock,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("listening", zap.String("port", cfg.Port), zap.Bool("docker", cfg.UseDocker))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}
}
