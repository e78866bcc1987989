package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/delight-co/finest-grained-auth-proxy/internal/config"
	apperrors "github.com/delight-co/finest-grained-auth-proxy/internal/errors"
	"github.com/delight-co/finest-grained-auth-proxy/internal/executor"
	"github.com/delight-co/finest-grained-auth-proxy/internal/handlers"
	"github.com/delight-co/finest-grained-auth-proxy/internal/health"
	"github.com/delight-co/finest-grained-auth-proxy/internal/logger"
	"github.com/delight-co/finest-grained-auth-proxy/internal/masking"
	"github.com/delight-co/finest-grained-auth-proxy/internal/middleware"
	"github.com/delight-co/finest-grained-auth-proxy/internal/plugins"
	"github.com/delight-co/finest-grained-auth-proxy/internal/plugins/github"
	"github.com/delight-co/finest-grained-auth-proxy/internal/plugins/gsuite"
)

func main() {
	var (
		configPath = pflag.String("config", "", "Path to the JSONC configuration file (required)")
		portFlag   = pflag.Int("port", 0, "Override the configured bind port")
		logLevel   = pflag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
		logPretty  = pflag.Bool("log-pretty", false, "Pretty console log output for development")
	)
	pflag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: proxy --config <path> [--port <int>]")
		os.Exit(2)
	}

	logger.Initialize(*logLevel, *logPretty)

	log.Println("Starting auth proxy...")

	knownPlugins := []string{github.PluginName, gsuite.PluginName}
	cfg, err := config.Load(*configPath, knownPlugins, plugins.ValidPattern)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// The masker covers every secret in the configuration plus the token
	// shapes upstream error messages may echo back.
	masker := masking.NewMasker(
		config.SecretValues(cfg),
		append(append([]string{}, github.TokenPatterns...), gsuite.TokenPatterns...),
	)

	registry, err := buildRegistry(cfg, masker)
	if err != nil {
		log.Fatalf("Failed to build plugin registry: %v", err)
	}
	if len(registry.All()) == 0 {
		log.Println("Warning: no plugins configured; only /health will respond usefully")
	}

	exec := executor.New(cfg.CLITimeout)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(apperrors.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger())

	cliHandler := handlers.NewCLIHandler(registry, exec, masker)
	statusHandler := handlers.NewStatusHandler(registry)

	router.POST("/cli", cliHandler.HandleCLI)
	router.GET("/health", statusHandler.HandleHealth)
	router.GET("/auth/status", statusHandler.HandleAuthStatus)

	// Plugins contribute their own routes (the git smart-protocol trio).
	for _, p := range registry.All() {
		for _, route := range p.Routes() {
			router.Handle(route.Method, route.Path, route.Handler)
		}
	}

	// Optional background credential sweep.
	if cfg.HealthSweep != "" {
		sweeper, err := health.NewSweeper(registry, cfg.HealthSweep)
		if err != nil {
			log.Fatalf("Invalid health_sweep schedule: %v", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
		log.Printf("Credential health sweep scheduled: %s", cfg.HealthSweep)
	}

	port := cfg.Port
	if *portFlag != 0 {
		port = *portFlag
	}

	// The proxy assumes a local, trusted network; bind loopback only.
	server := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Auth proxy listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	case sig := <-quit:
		log.Printf("Received %s, shutting down...", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
	log.Println("Auth proxy stopped")
}

// buildRegistry instantiates every built-in plugin that has configuration
// present, in the fixed built-in order.
func buildRegistry(cfg *config.Config, masker *masking.Masker) (*plugins.Registry, error) {
	var list []plugins.Plugin

	if pc, ok := cfg.Plugins[github.PluginName]; ok {
		p, err := github.New(pc, masker, cfg.HTTPTimeout)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	if pc, ok := cfg.Plugins[gsuite.PluginName]; ok {
		p, err := gsuite.New(pc, masker, cfg.HTTPTimeout)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	return plugins.NewRegistry(list...)
}
