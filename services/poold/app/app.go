// Package app assembles the pool daemon from its configuration: storage,
// asset bank, originator registries, the pool engine, the event journal and
// the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"thurman/core/events"
	"thurman/core/state"
	"thurman/crypto"
	"thurman/native/bank"
	nativecommon "thurman/native/common"
	"thurman/native/originators"
	"thurman/native/pool"
	"thurman/observability"
	"thurman/services/poold/config"
	"thurman/services/poold/journal"
	"thurman/services/poold/middleware"
	"thurman/services/poold/server"
	"thurman/services/poold/stream"
	"thurman/storage"
)

// DevCallerHeader names the header trusted as the caller address when auth
// is disabled in the dev environment.
const DevCallerHeader = "X-Poold-Caller"

const streamBuffer = 256

var genesisMarker = []byte("poold/genesis-applied")

// App is a fully wired pool daemon.
type App struct {
	Engine     *pool.Engine
	Bank       *bank.Bank
	Registries map[crypto.Address]*originators.Registry
	Journal    *journal.Journal
	Hub        *stream.Hub
	Server     *server.Server

	db     storage.Database
	logger *slog.Logger
}

// Build opens storage and either restores persisted state or applies genesis
// when the store is empty.
func Build(ctx context.Context, cfg config.Config, genesis *config.Genesis, logger *slog.Logger) (*App, error) {
	if genesis == nil {
		return nil, errors.New("app: genesis required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}
	a := &App{db: db, logger: logger, Registries: make(map[crypto.Address]*originators.Registry)}
	if err := a.build(ctx, cfg, genesis); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func openStorage(cfg config.StorageConfig) (storage.Database, error) {
	switch cfg.Driver {
	case config.DriverLevelDB:
		db, err := storage.NewLevelDB(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("app: open leveldb: %w", err)
		}
		return db, nil
	default:
		return storage.NewMemDB(), nil
	}
}

func (a *App) build(ctx context.Context, cfg config.Config, genesis *config.Genesis) error {
	manager := state.NewManager(a.db)
	var applied bool
	if _, err := manager.KVGet(genesisMarker, &applied); err != nil {
		return fmt.Errorf("app: read genesis marker: %w", err)
	}

	emitters := events.Fanout{observability.Events()}
	if cfg.Journal.Driver != config.DriverNone {
		db, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
		if err != nil {
			return err
		}
		a.Journal, err = journal.New(db, a.logger)
		if err != nil {
			return err
		}
		emitters = append(emitters, a.Journal)
	}
	a.Hub = stream.NewHub(streamBuffer)
	emitters = append(emitters, a.Hub)

	a.Bank = bank.New(genesis.Asset.Symbol, genesis.Asset.Decimals).WithStore(manager)
	if applied {
		balances, err := manager.LoadBalances()
		if err != nil {
			return fmt.Errorf("app: load balances: %w", err)
		}
		a.Bank.Restore(balances)
	}

	for _, entry := range genesis.Registry {
		reg, err := a.registry(manager, entry, emitters, applied)
		if err != nil {
			return err
		}
		a.Registries[reg.Address()] = reg
	}

	opts := []pool.Option{
		pool.WithStore(manager.Pools()),
		pool.WithCapabilityStore(manager),
		pool.WithObserver(observability.Pools()),
		pool.WithEmitter(emitters),
		pool.WithLogger(a.logger),
		pool.WithPauses(nativecommon.NewPauseSet(genesis.Paused...)),
	}
	for _, reg := range a.Registries {
		opts = append(opts, pool.WithRegistry(reg))
	}
	a.Engine = pool.NewEngine(
		pool.Capabilities{Admin: genesis.Admin, Operators: genesis.Operators},
		genesis.Engine,
		a.Bank,
		opts...,
	)

	if applied {
		if err := a.Engine.Restore(ctx); err != nil {
			return err
		}
	} else {
		if err := a.applyGenesis(ctx, genesis); err != nil {
			return err
		}
		if err := a.Engine.PersistCapabilities(); err != nil {
			return fmt.Errorf("app: %w", err)
		}
		if err := manager.KVPut(genesisMarker, true); err != nil {
			return fmt.Errorf("app: write genesis marker: %w", err)
		}
	}

	a.Server = server.New(server.Config{
		Engine:     a.Engine,
		Assets:     a.Bank,
		Registries: a.Registries,
		Journal:    a.Journal,
		Hub:        a.Hub,
		ExportDir:  cfg.Journal.ExportDir,
		Auth:       authConfig(cfg),
		RateLimits: map[string]middleware.RateLimit{
			"reads":  {RequestsPerMinute: cfg.RateLimits.Reads.RequestsPerMinute, Burst: cfg.RateLimits.Reads.Burst},
			"writes": {RequestsPerMinute: cfg.RateLimits.Writes.RequestsPerMinute, Burst: cfg.RateLimits.Writes.Burst},
		},
		CORS:   middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		Logger: a.logger,
	})
	a.logger.Info("pool daemon assembled",
		"pools", a.Engine.PoolCount(),
		"registries", len(a.Registries),
		"restored", applied,
		"journal", cfg.Journal.Driver,
		"storage", cfg.Storage.Driver)
	return nil
}

// registry restores a persisted registry snapshot or seeds a new one from
// genesis. Seeding goes through the admin-gated mutators so every entry is
// persisted and emitted.
func (a *App) registry(manager *state.Manager, entry config.GenesisRegistry, emitter events.Emitter, applied bool) (*originators.Registry, error) {
	opts := []originators.Option{originators.WithStore(manager), originators.WithEmitter(emitter)}
	if applied {
		snap, ok, err := manager.LoadRegistry(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("app: load registry %s: %w", entry.Address, err)
		}
		if ok {
			return originators.FromSnapshot(snap, opts...), nil
		}
	}
	reg := originators.NewRegistry(entry.Address, entry.Admin, opts...)
	if err := manager.SaveRegistry(reg.Snapshot()); err != nil {
		return nil, err
	}
	for _, addr := range entry.Originators {
		if err := reg.RegisterOriginator(entry.Admin, addr); err != nil {
			return nil, fmt.Errorf("app: registry %s: %w", entry.Address, err)
		}
	}
	for _, addr := range entry.Accruers {
		if err := reg.GrantAccruer(entry.Admin, addr); err != nil {
			return nil, fmt.Errorf("app: registry %s: %w", entry.Address, err)
		}
	}
	return reg, nil
}

func (a *App) applyGenesis(ctx context.Context, genesis *config.Genesis) error {
	for i, b := range genesis.Balance {
		amount, err := config.ParseAmount(b.Amount)
		if err != nil {
			return fmt.Errorf("app: genesis balance %d: %w", i, err)
		}
		if err := a.Bank.Credit(b.Account, amount); err != nil {
			return fmt.Errorf("app: genesis balance %d: %w", i, err)
		}
	}
	for i, p := range genesis.Pool {
		fee, err := config.ParseFraction(p.MarginFee)
		if err != nil {
			return fmt.Errorf("app: genesis pool %d: %w", i, err)
		}
		id, err := a.Engine.AddPool(genesis.Admin, p.Vault, p.Registry, fee)
		if err != nil {
			return fmt.Errorf("app: genesis pool %d: %w", i, err)
		}
		settings, err := p.Settings.Settings()
		if err != nil {
			return fmt.Errorf("app: genesis pool %d: %w", i, err)
		}
		if err := a.Engine.SetPoolOperationalSettings(ctx, genesis.Admin, id, settings); err != nil {
			return fmt.Errorf("app: genesis pool %d: %w", i, err)
		}
	}
	a.logger.Info("genesis applied", "pools", len(genesis.Pool), "balances", len(genesis.Balance))
	return nil
}

func authConfig(cfg config.Config) middleware.AuthConfig {
	out := middleware.AuthConfig{
		Enabled:       cfg.Auth.Enabled,
		HMACSecret:    cfg.Auth.HMACSecret,
		Issuer:        cfg.Auth.Issuer,
		Audience:      cfg.Auth.Audience,
		OptionalPaths: cfg.Auth.OptionalPaths,
		ClockSkew:     cfg.Auth.ClockSkew,
	}
	if !cfg.Auth.Enabled && cfg.Environment == "dev" {
		out.DevCallerHeader = DevCallerHeader
	}
	return out
}

// Handler returns the HTTP handler of the assembled daemon.
func (a *App) Handler() http.Handler {
	return a.Server.Handler()
}

// Close releases the hub and the key-value store.
func (a *App) Close() {
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
