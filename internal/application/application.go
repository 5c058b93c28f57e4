package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/layerconf/internal/api"
	"github.com/eugenenazirov/layerconf/internal/config"
	"github.com/eugenenazirov/layerconf/internal/resolver"
	"github.com/eugenenazirov/layerconf/internal/ruleset"
	"github.com/eugenenazirov/layerconf/internal/storage"
)

// ErrDuplicateRuleSet is returned when two rule-set files resolve to the same name.
var ErrDuplicateRuleSet = errors.New("duplicate rule set name")

// App encapsulates the application dependencies and HTTP server.
type App struct {
	storage storage.Storage
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server
	watcher *Watcher
}

// New initializes the application from the provided configuration. Rule-set
// files named in cfg are loaded and compiled up front; env is the environment
// snapshot every resolution served by the app sees.
func New(cfg config.Config, logger *zap.Logger, env resolver.Env) (*App, error) {
	store := storage.NewMemoryStorage()
	files, err := LoadRuleSets(store, cfg.RuleSetPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule sets: %w", err)
	}
	for path, name := range files {
		logger.Info("rule set loaded", zap.String("name", name), zap.String("path", path))
	}

	handler := api.NewHandler(store, env)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithMetrics(cfg.EnableMetrics),
	)

	app := &App{
		storage: store,
		handler: handler,
		router:  apiRouter,
		logger:  logger,
		server:  NewServer(cfg, BuildRootHandler(apiRouter)),
	}
	if cfg.WatchRuleSets {
		app.watcher = NewWatcher(store, files, logger)
	}
	return app, nil
}

// LoadRuleSets decodes and compiles each rule-set file and stores it under
// its document name. It returns the absolute file paths mapped to the names
// they were stored under. Nothing is stored unless every file is valid.
func LoadRuleSets(store storage.Storage, paths []string) (map[string]string, error) {
	type loaded struct {
		path     string
		name     string
		resolver *resolver.Resolver
	}

	sets := make([]loaded, 0, len(paths))
	byName := make(map[string]string, len(paths))
	for _, path := range paths {
		doc, err := ruleset.LoadFile(path)
		if err != nil {
			return nil, err
		}
		compiled, err := doc.Compile()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if other, ok := byName[doc.Name]; ok {
			return nil, fmt.Errorf("%w: %q is defined by both %s and %s", ErrDuplicateRuleSet, doc.Name, other, path)
		}
		byName[doc.Name] = path

		abs, err := absPath(path)
		if err != nil {
			return nil, err
		}
		sets = append(sets, loaded{path: abs, name: doc.Name, resolver: compiled})
	}

	files := make(map[string]string, len(sets))
	for _, set := range sets {
		if err := store.SetRuleSet(set.name, set.resolver); err != nil {
			return nil, fmt.Errorf("store rule set %q: %w", set.name, err)
		}
		files[set.path] = set.name
	}
	return files, nil
}

// BuildRootHandler constructs the root HTTP handler that routes API and
// metrics requests and answers 404 for everything else.
func BuildRootHandler(apiHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/metrics", apiHandler)
	mux.Handle("/", http.NotFoundHandler())
	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and, when enabled, the rule-set
// watcher. The watcher stops when ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			return fmt.Errorf("start rule-set watcher: %w", err)
		}
	}

	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}
