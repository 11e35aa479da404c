package main

import (
	"fmt"
	"log"

	"au-panel/internal/api/routes"
	"au-panel/internal/config"
	"au-panel/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Server.Mode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	deps, err := routes.NewDeps(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to initialize server", zap.Error(err))
	}
	defer deps.DB.Close()

	if err := deps.Auth.CreateDefaultUser(); err != nil {
		zlog.Warn("failed to create default user", zap.Error(err))
	}

	// Caches must hold a full snapshot before the first request lands.
	if err := deps.AppSvc.RefreshCache(); err != nil {
		zlog.Fatal("failed to build app cache", zap.Error(err))
	}
	if err := deps.AppSvc.SeedPorts(); err != nil {
		zlog.Fatal("failed to seed port cache", zap.Error(err))
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	zlog.Info("starting AU-Panel server", zap.String("addr", addr))

	if cfg.Server.TLS.Enabled {
		err = r.RunTLS(addr, cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
	} else {
		err = r.Run(addr)
	}
	if err != nil {
		zlog.Fatal("server exited", zap.Error(err))
	}
}
