package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mocknet/virtualmodems/internal/archer"
	"github.com/mocknet/virtualmodems/internal/audit"
	"github.com/mocknet/virtualmodems/internal/banner"
	"github.com/mocknet/virtualmodems/internal/config"
	"github.com/mocknet/virtualmodems/internal/deco"
	"github.com/mocknet/virtualmodems/internal/lockfile"
	"github.com/mocknet/virtualmodems/internal/omada"
	"github.com/mocknet/virtualmodems/internal/profile"
	"github.com/mocknet/virtualmodems/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	profileFlag := flag.String("profile", "", "device profile to run (deco, archer, omada)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	registry := profile.NewRegistry(logger)
	profiles := []profile.Profile{
		deco.New(),
		archer.New(),
		omada.New(),
	}
	for _, p := range profiles {
		if err := registry.Register(p); err != nil {
			logger.Fatal("failed to register profile", zap.Error(err))
		}
	}

	name := cfg.GetString("profile")
	if *profileFlag != "" {
		name = *profileFlag
	}
	active, ok := registry.Get(name)
	if !ok {
		logger.Fatal("unknown profile",
			zap.String("profile", name),
			zap.Strings("available", registry.Names()),
		)
	}

	if err := active.Init(cfg.Viper(), logger.Named(active.Name())); err != nil {
		logger.Fatal("failed to initialize profile", zap.Error(err))
	}

	host := cfg.GetString("server.host")
	port := cfg.GetInt("server.port")

	release, err := lockfile.Acquire(active.Name(), host, port)
	if err != nil {
		logger.Fatal("another instance is already running", zap.Error(err))
	}
	defer release()

	store, err := audit.OpenStore(cfg.GetString("audit.db_path"), cfg.GetInt("audit.max_entries"))
	if err != nil {
		logger.Fatal("failed to open audit store", zap.Error(err))
	}
	defer store.Close()

	promReg := prometheus.NewRegistry()
	auditLog := audit.NewLog(active.Name(), store, logger.Named("audit"), promReg)

	addr := fmt.Sprintf("%s:%d", host, port)
	srv := server.New(addr, active, auditLog, promReg, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	banner.PrintStartup(active, host, port)
	logger.Info("virtual modem ready",
		zap.String("profile", active.Name()),
		zap.String("addr", addr),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("virtual modem stopped")
}
