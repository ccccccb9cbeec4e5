// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wso2/api-platform/policy-engine/internal/credentials"
	"github.com/wso2/api-platform/policy-engine/internal/groups"
	"github.com/wso2/api-platform/policy-engine/internal/ledger"
	"github.com/wso2/api-platform/policy-engine/internal/logging"
	"github.com/wso2/api-platform/policy-engine/internal/metrics"
	"github.com/wso2/api-platform/policy-engine/internal/notify"
	"github.com/wso2/api-platform/policy-engine/internal/reload"
	"github.com/wso2/api-platform/policy-engine/internal/runtime"
	"github.com/wso2/api-platform/policy-engine/internal/schema"
	"github.com/wso2/api-platform/policy-engine/internal/state"
	"github.com/wso2/api-platform/policy-engine/internal/tools"
	"github.com/wso2/api-platform/policy-engine/internal/validator"
	"github.com/wso2/api-platform/policy-engine/pkg/blocks"
	"github.com/wso2/api-platform/policy-engine/pkg/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "/etc/policy-engine/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := blocks.NewRegistry(logger)
	blocks.RegisterBuiltins(registry)

	schemas := schema.NewResolver(logger)
	if cfg.Schemas.Dir != "" {
		n, err := schemas.LoadDir(cfg.Schemas.Dir)
		if err != nil {
			logger.Error("failed to load schemas", "dir", cfg.Schemas.Dir, "error", err)
			os.Exit(1)
		}
		logger.Info("schemas loaded", "dir", cfg.Schemas.Dir, "count", n)
	}

	toolRegistry := tools.NewRegistry(logger)
	if cfg.Tools.Dir != "" {
		n, err := toolRegistry.LoadDir(cfg.Tools.Dir)
		if err != nil {
			logger.Error("failed to load tools", "dir", cfg.Tools.Dir, "error", err)
			os.Exit(1)
		}
		logger.Info("tools loaded", "dir", cfg.Tools.Dir, "count", n)
	}

	v := validator.New(registry, schemas, toolRegistry, validator.Options{
		Reachability:       cfg.Validation.ReachabilityEnabled(),
		StructuralFallback: cfg.Validation.StructuralFallbackEnabled(),
	}, logger)

	stateStore, err := state.NewStore(state.Config{
		Type: state.StoreType(cfg.State.Type),
		Redis: state.RedisConfig{
			Addr:      cfg.State.Addr,
			Password:  cfg.State.Password,
			DB:        cfg.State.DB,
			KeyPrefix: cfg.State.KeyPrefix,
		},
	})
	if err != nil {
		logger.Error("failed to create state store", "error", err)
		os.Exit(1)
	}
	cache := state.NewCache(stateStore, cfg.State.ShortTTL, cfg.State.LongTTL)
	cleanup := state.NewCleanupWorker(stateStore, cfg.State.CleanupInterval, logger)
	go cleanup.Start(ctx)

	groupStore, err := groups.NewStore(groups.Config{
		Type: groups.StoreType(cfg.Groups.Type),
		Redis: groups.RedisConfig{
			Addr:      cfg.Groups.Addr,
			Password:  cfg.Groups.Password,
			DB:        cfg.Groups.DB,
			KeyPrefix: cfg.Groups.KeyPrefix,
		},
	})
	if err != nil {
		logger.Error("failed to create group store", "error", err)
		os.Exit(1)
	}

	secret := []byte(cfg.Credentials.SigningSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			logger.Error("failed to generate signing secret", "error", err)
			os.Exit(1)
		}
		logger.Warn("credential signing secret not set, using an ephemeral one")
	}
	issuer, err := credentials.NewJWTIssuer(cfg.Credentials.IssuerDID, secret, cfg.Credentials.TTL)
	if err != nil {
		logger.Error("failed to create credential issuer", "error", err)
		os.Exit(1)
	}
	groupManager := groups.NewManager(groupStore, issuer, logger)

	m := metrics.New()
	hub := notify.NewHub(cfg.Server.UpdatesPort, logger)

	deps := runtime.Deps{
		Registry: registry,
		Cache:    cache,
		Schemas:  schemas,
		Groups:   groupManager,
		Roles:    groupManager,
		Issuer:   issuer,
		Notifier: hub,
		Observer: m,
		EventLog: logging.NewEventLogger(logger.With("component", "events")),
		MaxDepth: cfg.Policies.MaxDepth,
	}

	var anchor *ledger.KafkaAnchor
	if cfg.Ledger.Enabled {
		anchor = ledger.NewKafkaAnchor(ledger.KafkaConfig{Brokers: cfg.Ledger.Brokers, Topic: cfg.Ledger.Topic}, logger)
		deps.Ledger = anchor
		deps.Mint = ledger.NewMint(anchor)
	}

	var publisher *notify.MQTTPublisher
	if cfg.Notify.MQTTBrokerURL != "" {
		connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
		publisher, err = notify.NewMQTTPublisher(connectCtx, notify.MQTTConfig{
			BrokerURL: cfg.Notify.MQTTBrokerURL,
			Topic:     cfg.Notify.Topic,
		}, logger)
		connectCancel()
		if err != nil {
			logger.Error("failed to connect external event publisher", "error", err)
			os.Exit(1)
		}
		deps.Publisher = publisher
	}

	engine := runtime.NewEngine(deps, logger)
	reloader := reload.NewReloader(v, engine, m, cfg.Policies.DryRun, logger)

	watcher := config.NewWatcher(cfg.Policies.Dir, cfg.Policies.WatchInterval, reloader, logger)
	go watcher.Watch(ctx)

	go func() {
		if err := hub.Start(ctx); err != nil {
			logger.Error("update hub failed", "error", err)
		}
	}()

	metricsServer := newMetricsServer(cfg.Server.MetricsPort, m)
	go func() {
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	logger.Info("policy engine started",
		"config", configPath,
		"policies", cfg.Policies.Dir,
		"dry_run", cfg.Policies.DryRun,
		"ledger", cfg.Ledger.Enabled,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down policy engine")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	engine.UnloadAll(shutdownCtx)
	engine.Wait()

	hub.Stop(shutdownCtx)
	metricsServer.Shutdown(shutdownCtx)
	if publisher != nil {
		publisher.Close(shutdownCtx)
	}
	if anchor != nil {
		anchor.Close()
	}
	groupStore.Close()
	stateStore.Close()

	logger.Info("policy engine stopped")
}

func newMetricsServer(port int, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
