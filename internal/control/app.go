// Package control assembles the application: storage, providers,
// resilience state, importers, and the metrics endpoint.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkral/importer/internal/core/config"
	"github.com/mkral/importer/internal/core/cursor"
	"github.com/mkral/importer/internal/core/domain"
	"github.com/mkral/importer/internal/core/worker"
	"github.com/mkral/importer/internal/importing/importer"
	"github.com/mkral/importer/internal/importing/metrics"
	redisclient "github.com/mkral/importer/internal/infra/redis"
	"github.com/mkral/importer/internal/infra/rpc/breaker"
	"github.com/mkral/importer/internal/infra/rpc/health"
	"github.com/mkral/importer/internal/infra/rpc/provider"
	"github.com/mkral/importer/internal/infra/rpc/ratelimit"
	"github.com/mkral/importer/internal/infra/rpc/routing"
	"github.com/mkral/importer/internal/infra/storage"
	"github.com/mkral/importer/internal/infra/storage/memory"
	"github.com/mkral/importer/internal/infra/storage/postgres"
)

// Config holds the application configuration.
type Config struct {
	Port     int
	Chains   []config.ChainConfig
	Import   config.ImportConfig
	Redis    redisclient.Config
	Database postgres.Config

	// GRPCHandlers maps provider names to their call handlers; a config
	// entry with transport "grpc" needs one registered here.
	GRPCHandlers map[string]provider.GRPCHandler
}

// App is the assembled application.
type App struct {
	cfg Config
	log *slog.Logger

	importers map[domain.Blockchain]*importer.Importer
	providers []provider.Provider
	breakers  map[domain.Blockchain]*breaker.Breaker
	trackers  map[domain.Blockchain]*health.Tracker
	pruners   []*worker.Pruner
	limiter   *ratelimit.Limiter

	cursors      *cursor.Manager
	transactions storage.TransactionRepository

	db            *postgres.DB
	redisClient   *redisclient.Client
	metricsServer *http.Server
}

// NewApp wires all components from configuration.
func NewApp(cfg Config) (*App, error) {
	log := slog.Default()

	app := &App{
		cfg:       cfg,
		log:       log,
		importers: make(map[domain.Blockchain]*importer.Importer),
		breakers:  make(map[domain.Blockchain]*breaker.Breaker),
		trackers:  make(map[domain.Blockchain]*health.Tracker),
		limiter:   ratelimit.NewLimiter(),
	}

	app.limiter.SetWaitCallback(func(key domain.ProviderKey, wait time.Duration) {
		metrics.RateLimitWaitSeconds.WithLabelValues(string(key)).Add(wait.Seconds())
	})

	if err := app.initStorage(); err != nil {
		return nil, err
	}

	for _, chainCfg := range cfg.Chains {
		if err := app.initChain(chainCfg); err != nil {
			app.closeProviders()
			return nil, err
		}
	}

	return app, nil
}

// initStorage picks the persistence backend: PostgreSQL when configured,
// otherwise Redis checkpoints with in-memory transactions, otherwise
// fully in-memory.
func (a *App) initStorage() error {
	if a.cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), a.cfg.Database)
		if err != nil {
			return fmt.Errorf("init db: %w", err)
		}
		if err := db.Migrate("migrations"); err != nil {
			return fmt.Errorf("migrate db: %w", err)
		}

		a.db = db
		a.cursors = cursor.NewManager(postgres.NewCursorRepo(db))
		a.transactions = postgres.NewTxRepo(db)
		a.log.Info("Using PostgreSQL storage")
		return nil
	}

	if a.cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(a.cfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		store := memory.NewStorage()
		a.redisClient = client
		a.cursors = cursor.NewManager(redisclient.NewCursorRepo(client))
		a.transactions = memory.NewTxRepo(store)
		a.log.Info("Using Redis checkpoints with in-memory transactions")
		return nil
	}

	store := memory.NewStorage()
	a.cursors = cursor.NewManager(memory.NewCursorRepo(store))
	a.transactions = memory.NewTxRepo(store)
	a.log.Info("Using Memory storage")
	return nil
}

// initChain builds the resilience state, providers, and importer for one
// chain.
func (a *App) initChain(chainCfg config.ChainConfig) error {
	chain := chainCfg.Chain

	b := breaker.New(breaker.Config{
		MaxConsecutiveFailures: chainCfg.Breaker.MaxConsecutiveFailures,
		Cooldown:               chainCfg.Breaker.Cooldown,
		MaxCooldown:            chainCfg.Breaker.MaxCooldown,
	})
	b.SetTransitionCallback(func(tr breaker.Transition) {
		metrics.CircuitTransitionsTotal.WithLabelValues(
			string(tr.Key), string(tr.From), string(tr.To)).Inc()
		a.log.Info("circuit transition",
			"provider", tr.Key, "from", tr.From, "to", tr.To)
	})
	a.breakers[chain] = b

	tracker := health.NewTracker(chainCfg.Breaker.MaxConsecutiveFailures)
	a.trackers[chain] = tracker

	providers := make([]provider.Provider, 0, len(chainCfg.Providers))
	for _, pCfg := range chainCfg.Providers {
		p, err := a.buildProvider(chain, pCfg)
		if err != nil {
			return fmt.Errorf("chain %s provider %s: %w", chain, pCfg.Name, err)
		}
		a.limiter.Configure(domain.Key(chain, pCfg.Name), ratelimit.Config{
			RequestsPerSecond: pCfg.RateLimit.RequestsPerSecond,
			BurstLimit:        pCfg.RateLimit.BurstLimit,
			RequestsPerMinute: pCfg.RateLimit.RequestsPerMinute,
			RequestsPerHour:   pCfg.RateLimit.RequestsPerHour,
		})
		providers = append(providers, p)
		a.providers = append(a.providers, p)
	}

	a.importers[chain] = importer.New(importer.Config{
		Chain:              chain,
		Providers:          providers,
		Limiter:            a.limiter,
		Executor:           routing.NewExecutor(b, tracker),
		Breaker:            b,
		Health:             tracker,
		Cursors:            a.cursors,
		Transactions:       a.transactions,
		Logger:             a.log,
		PageSize:           a.cfg.Import.PageSize,
		PerAttemptTimeout:  a.cfg.Import.PerAttemptTimeout,
		TotalTimeout:       a.cfg.Import.TotalTimeout,
		RequiredOperations: chainCfg.RequiredOperations,
		OptionalOperations: chainCfg.OptionalOperations,
	})

	if chainCfg.RetentionPeriod > 0 {
		a.pruners = append(a.pruners, worker.NewPruner(chain, chainCfg.RetentionPeriod, a.transactions))
	}

	a.log.Info("Chain initialized", "chain", chain, "providers", len(providers))
	return nil
}

func (a *App) buildProvider(chain domain.Blockchain, pCfg config.ProviderConfig) (provider.Provider, error) {
	switch pCfg.Transport {
	case "grpc":
		handler, ok := a.cfg.GRPCHandlers[pCfg.Name]
		if !ok {
			return nil, fmt.Errorf("no grpc handler registered")
		}
		return provider.NewGRPCProvider(
			pCfg.Name, chain, pCfg.Capabilities(), pCfg.RateLimit,
			pCfg.URL, handler,
		)
	case "http", "":
		return provider.NewHTTPProvider(
			pCfg.Name, chain, pCfg.Capabilities(), pCfg.RateLimit,
			pCfg.URL, 10*time.Second,
			provider.RESTBuildRequest(pCfg.APIKey),
			provider.RESTDecode(),
		), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", pCfg.Transport)
	}
}

// Importer returns the importer for a chain.
func (a *App) Importer(chain domain.Blockchain) (*importer.Importer, bool) {
	imp, ok := a.importers[chain]
	return imp, ok
}

// Cursors exposes the checkpoint manager for administrative commands.
func (a *App) Cursors() *cursor.Manager { return a.cursors }

// ProviderStatus is one row of the status report.
type ProviderStatus struct {
	Chain    domain.Blockchain
	Provider string
	Circuit  breaker.State
	Health   health.Status
}

// Status reports circuit and health state for every configured provider.
func (a *App) Status() []ProviderStatus {
	var out []ProviderStatus
	for _, chainCfg := range a.cfg.Chains {
		chain := chainCfg.Chain
		b := a.breakers[chain]
		tracker := a.trackers[chain]
		for _, pCfg := range chainCfg.Providers {
			key := domain.Key(chain, pCfg.Name)
			out = append(out, ProviderStatus{
				Chain:    chain,
				Provider: pCfg.Name,
				Circuit:  b.State(key),
				Health:   tracker.Status(key),
			})
		}
	}
	return out
}

// Start brings up the metrics endpoint.
func (a *App) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	a.metricsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Port),
		Handler: mux,
	}

	go func() {
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("Metrics server failed", "error", err)
		}
	}()

	for _, p := range a.pruners {
		go p.Start(ctx)
	}

	return nil
}

// Stop shuts everything down.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping importer...")

	a.closeProviders()

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
	if a.metricsServer != nil {
		return a.metricsServer.Shutdown(ctx)
	}
	return nil
}

func (a *App) closeProviders() {
	for _, p := range a.providers {
		if c, ok := p.(provider.Closable); ok {
			if err := c.Close(); err != nil {
				a.log.Warn("Failed to close provider", "provider", p.Name(), "error", err)
			}
		}
	}
}
