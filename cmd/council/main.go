// Command council runs the multi-provider orchestration service: an
// HTTP API that decomposes requests, routes subtasks to AI providers
// by weighted scoring, and streams progress back to callers.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/orchestration"
	"github.com/aicouncil/council/providers"
	"github.com/aicouncil/council/registry"
	"github.com/aicouncil/council/resilience"
	"github.com/aicouncil/council/server"
	"github.com/aicouncil/council/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		// No logger yet
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := core.NewProductionLogger(cfg.Name)

	var tel core.Telemetry = &core.NoOpTelemetry{}
	if cfg.Telemetry.Enabled {
		provider, err := telemetry.NewProvider(cfg.Name, cfg.Telemetry.Endpoint)
		if err != nil {
			logger.Warn("Telemetry disabled", map[string]interface{}{
				"operation": "startup",
				"error":     err.Error(),
			})
		} else {
			tel = provider
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				provider.Shutdown(ctx)
			}()
		}
	}

	// Redis backs the health cache and cost ledger when configured,
	// otherwise everything stays in process memory
	var store core.Memory
	if cfg.RedisURL != "" {
		redisStore, err := core.NewRedisStore(core.RedisStoreOptions{
			RedisURL:  cfg.RedisURL,
			Namespace: cfg.Name,
			Logger:    logger,
		})
		if err != nil {
			logger.Error("Redis unavailable, using in-memory store", map[string]interface{}{
				"operation": "startup",
				"error":     err.Error(),
			})
			store = core.NewMemoryStore()
		} else {
			store = redisStore
		}
	} else {
		store = core.NewMemoryStore()
	}

	oracle := providers.NewOracle(logger)
	invokers := providers.NewInvokerSet(oracle, logger)
	breakers := resilience.NewGroup(resilience.GroupConfig{
		FailureThreshold:   5,
		RecoveryTimeout:    60 * time.Second,
		MaxRecoveryTimeout: 10 * time.Minute,
		Logger:             logger,
	})
	health := providers.NewHealthChecker(invokers, breakers, store, logger)

	catalog := registry.NewWithCatalog()
	catalog.SetLogger(logger)

	orchConfig := orchestration.DefaultConfig()
	orchConfig.ParallelismOverride = cfg.Execution.ParallelismOverride
	orchConfig.EnableArbitration = cfg.Execution.EnableArbitration
	orchConfig.EnableSynthesis = cfg.Execution.EnableSynthesis
	orchConfig.EnableCostRecording = cfg.Cost.Enabled

	analyzer := orchestration.NewRuleAnalyzer(logger)
	analyzer.SetTelemetry(tel)
	router := orchestration.NewWeightedRouter(catalog, health, orchConfig.MaxFallbacks, logger)
	router.SetTelemetry(tel)
	executor := orchestration.NewPooledExecutor(invokers, breakers, catalog, logger)
	executor.SetParallelismOverride(orchConfig.ParallelismOverride)
	executor.SetDegrader(health)
	executor.SetTelemetry(tel)
	arbiter := orchestration.NewConfidenceArbiter(catalog, logger)
	arbiter.SetTelemetry(tel)
	synthesizer := orchestration.NewOrderedSynthesizer(logger)
	synthesizer.SetTelemetry(tel)
	recorder := orchestration.NewLedgerRecorder(store, logger)

	orch := orchestration.NewOrchestrator(analyzer, router, executor, arbiter, synthesizer, recorder, orchConfig, logger)
	orch.SetTelemetry(tel)

	srv := server.New(orch, health, cfg.Port, logger)

	errs := make(chan error, 1)
	go func() {
		errs <- srv.Start()
	}()

	logger.Info("Council started", map[string]interface{}{
		"operation": "startup",
		"port":      cfg.Port,
		"providers": len(invokers.Providers()),
		"models":    len(catalog.All()),
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errs:
		if err != nil {
			logger.Error("Server failed", map[string]interface{}{
				"operation": "serve",
				"error":     err.Error(),
			})
			os.Exit(1)
		}
	case sig := <-stop:
		logger.Info("Shutting down", map[string]interface{}{
			"operation": "shutdown",
			"signal":    sig.String(),
		})
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Shutdown failed", map[string]interface{}{
				"operation": "shutdown",
				"error":     err.Error(),
			})
		}
	}
}
