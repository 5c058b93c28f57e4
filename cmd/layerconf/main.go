package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/layerconf/internal/application"
	"github.com/eugenenazirov/layerconf/internal/config"
	"github.com/eugenenazirov/layerconf/internal/logging"
	"github.com/eugenenazirov/layerconf/internal/resolver"
)

var signalNotify = signal.Notify

func main() {
	kingpinApp := kingpin.New("layerconf", "Layered configuration resolver - computes effective tool configs from a base and scoped overrides")

	serveCmd := kingpinApp.Command("serve", "Serve rule sets over HTTP").Default()
	configFile := serveCmd.Flag("config", "Path to YAML configuration file").String()
	port := serveCmd.Flag("port", "HTTP port exposed by the service").String()
	ruleSets := serveCmd.Flag("ruleset", "Rule-set file to load at startup (repeatable)").Strings()
	watch := serveCmd.Flag("watch", "Reload rule-set files when they change").Bool()
	logLevel := serveCmd.Flag("log-level", "Log level (debug, info, warn, error)").String()
	rateLimitRPSFlag := serveCmd.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := serveCmd.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	resolveCmd := kingpinApp.Command("resolve", "Print the effective configuration for one file")
	opts := resolveOptions{}
	resolveCmd.Flag("ruleset", "Rule-set file to resolve").Required().StringVar(&opts.RuleSet)
	resolveCmd.Flag("path", "File path the configuration is resolved for").StringVar(&opts.Path)
	resolveCmd.Flag("tag", "Context tag matched literally against override patterns (repeatable)").StringsVar(&opts.Tags)
	resolveCmd.Flag("env", "Environment override as KEY=VALUE on top of the process environment (repeatable)").StringsVar(&opts.Env)
	resolveCmd.Flag("format", "Output format").Default(formatYAML).EnumVar(&opts.Format, formatYAML, formatJSON)

	switch kingpin.MustParse(kingpinApp.Parse(os.Args[1:])) {
	case resolveCmd.FullCommand():
		err := runResolve(opts, resolver.SnapshotEnv(os.Environ()), os.Stdout)
		kingpinApp.FatalIfError(err, "resolve")
		return
	}

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
		RuleSets:   *ruleSets,
	}

	if *port != "" {
		overrides.Port = port
	}

	if *watch {
		overrides.Watch = watch
	}

	if *logLevel != "" {
		overrides.LogLevel = logLevel
	}

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Captured once: every resolution served by this process sees the same
	// environment.
	env := resolver.SnapshotEnv(os.Environ())

	app, err := application.New(cfg, logger, env)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
