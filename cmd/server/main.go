package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"learnforge/internal/api"
	"learnforge/internal/config"
	"learnforge/internal/core"
	"learnforge/internal/store"
	"learnforge/internal/utils"
)

func main() {
	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig

	logger := utils.InitLogger(cfg.LogLevel)

	checkFlag := flag.Bool("check", false, "Test the configured AI endpoints and exit")
	flag.Parse()

	llmService := core.NewLLMService(cfg.AITimeout, logger)

	if *checkFlag {
		os.Exit(runCheck(cfg, llmService))
	}

	provider, closeProvider, err := cfg.OpenProvider()
	if err != nil {
		logger.Error("failed to open storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer closeProvider()
	logger.Info("storage ready", "backend", cfg.StorageBackend)

	users := store.NewUserStore(provider, logger)
	curriculum := core.NewCurriculumService(users, llmService, logger)

	apiHandler := api.NewAPIHandler(users, curriculum, cfg.SeedData, logger)
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: content and chat replies are streamed for as long as the model takes.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("could not listen", "addr", serverAddr, "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	// Let background lesson-prompt generation persist before the store closes.
	curriculum.Wait()
	logger.Info("server exiting gracefully")
}

// runCheck tests every capability with the default settings and returns the
// process exit code.
func runCheck(cfg config.Config, llm *core.LLMService) int {
	settings, err := cfg.DefaultSettings()
	if err != nil {
		slog.Error("failed to load settings", "error", err)
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.AITimeout)
	defer cancel()

	code := 0
	for _, capability := range []string{core.CapabilityGeneration, core.CapabilityTips, core.CapabilityChat} {
		aiCfg, _ := core.CapabilityConfig(settings, capability)
		res := llm.TestConnection(ctx, aiCfg)
		fmt.Printf("%-10s %-5t %s\n", capability, res.Success, res.Message)
		if !res.Success {
			code = 1
		}
	}
	return code
}
