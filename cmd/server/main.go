package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glmanhtu/PapyrusViz-sub000/config"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/api/handlers"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/api/middleware"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/cleanup"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/jobs"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/db"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/logger"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/mqtt"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/server/sse"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	// Project stores open lazily per project path
	manager := db.NewManager()

	// Reopen projects created under the data directory in earlier sessions
	// so they show up in listings right away.
	if entries, err := os.ReadDir(cfg.Server.DataDir); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			projectPath := filepath.Join(cfg.Server.DataDir, entry.Name())
			if _, err := os.Stat(filepath.Join(projectPath, db.StoreFileName)); err != nil {
				continue
			}
			if _, err := manager.Open(projectPath); err != nil {
				log.Warnf("Failed to reopen project %s: %v", projectPath, err)
			}
		}
	}

	// Periodic orphaned-thumbnail sweep over open projects
	cleanupService := cleanup.NewService(manager, time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute)
	if cleanupService != nil {
		cleanupService.StartBackgroundCleanup()
		defer cleanupService.StopBackgroundCleanup()
	}

	// Start the SSE hub
	hub := sse.NewHub()
	go hub.Run()

	// Optional MQTT job-event publisher
	var publisher jobs.Publisher
	if cfg.MQTT.Enabled {
		mqttPublisher := mqtt.NewPublisher(cfg.MQTT)
		if err := mqttPublisher.Start(); err != nil {
			log.Warnf("Failed to start MQTT publisher: %v. Continuing without MQTT.", err)
		} else {
			defer mqttPublisher.Stop()
			publisher = mqttPublisher
		}
	} else {
		log.Info("MQTT is disabled in config.")
	}

	runner := jobs.NewRunner(hub, publisher)

	// HTTP server
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
	}))

	sessionStore := cookie.NewStore([]byte(cfg.API.SessionSecret))
	router.Use(sessions.Sessions("papyrusviz", sessionStore))
	router.Use(middleware.I18n(middleware.I18nConfig{
		DefaultLanguage: cfg.API.DefaultLanguage,
		LocalesDir:      cfg.API.LocalesDir,
	}))

	apiHandler := handlers.NewAPIHandler(manager, cfg, runner, hub)
	apiHandler.RegisterRoutes(router.Group("/api"))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Infof("Starting server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
