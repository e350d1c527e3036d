package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/nugget/taskbuddy/internal/api"
	"github.com/nugget/taskbuddy/internal/assistant"
	"github.com/nugget/taskbuddy/internal/buildinfo"
	"github.com/nugget/taskbuddy/internal/config"
	"github.com/nugget/taskbuddy/internal/mqtt"
)

// runServe handles "taskbuddy serve". It opens the database, builds the
// stores and the optional MQTT publisher, starts the API server and
// blocks until SIGINT or SIGTERM.
//
// Shutdown publishes MQTT "offline", then drains the HTTP server; the
// database is closed via defer.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting TaskBuddy", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger = configuredLogger(stdout, cfg, config.LevelTrace)

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"data_dir", cfg.DataDir,
		"timezone", cfg.Location().String(),
	)

	db, err := openDB(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database opened", "dir", cfg.DataDir)

	a, err := newApp(ctx, cfg, db, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- MQTT ---
	// Optional. The publisher also receives fault notifications.
	notifiers := assistant.Notifiers{assistant.LogNotifier{Logger: logger}}
	stats := &statsAdapter{audit: a.audit}
	var mqttPub *mqtt.Publisher
	if cfg.MQTT.Configured() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("mqtt instance id: %w", err)
		}
		mqttPub = mqtt.New(cfg.MQTT, instanceID, stats, a.bus, logger)
		notifiers = append(notifiers, mqttPub)
		logger.Info("mqtt publishing enabled",
			"broker", cfg.MQTT.Broker,
			"device_name", cfg.MQTT.DeviceName,
			"instance_id", instanceID,
		)
	} else {
		logger.Info("mqtt publishing disabled (not configured)")
	}

	// --- API server ---
	sessions := api.NewSessions(a.dispatcher(), a.options(notifiers))
	stats.sessions = sessions

	if mqttPub != nil {
		go func() {
			if err := mqttPub.Start(ctx); err != nil {
				logger.Error("mqtt publisher failed", "error", err)
			}
		}()
	}

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, sessions, logger)
	server.SetThemes(a.themes)
	server.SetTeam(a.team)
	server.SetAudit(a.audit)
	server.SetEventBus(a.bus)

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		if mqttPub != nil {
			offlineCtx, offlineCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer offlineCancel()
			if err := mqttPub.Stop(offlineCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("api shutdown failed", "error", err)
		}
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("TaskBuddy stopped")
	return nil
}

// statsAdapter bridges the session table, audit log and build info to
// [mqtt.StatsSource].
type statsAdapter struct {
	sessions *api.Sessions
	audit    *assistant.Audit
}

func (s *statsAdapter) Uptime() time.Duration  { return buildinfo.Uptime() }
func (s *statsAdapter) Version() string        { return buildinfo.Version }
func (s *statsAdapter) ActiveSessions() int    { return s.sessions.Count() }
func (s *statsAdapter) Stats() assistant.Stats { return s.audit.Stats() }
