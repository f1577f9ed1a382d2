package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/tasklink/internal/apperr"
	"github.com/starford/tasklink/internal/index"
	"github.com/starford/tasklink/internal/noteservice"
	"github.com/starford/tasklink/internal/parser"
	"github.com/starford/tasklink/internal/registry"
	"github.com/starford/tasklink/internal/settings"
	"github.com/starford/tasklink/internal/storage"
	"github.com/starford/tasklink/internal/syncer"
	"github.com/starford/tasklink/internal/todoapi"
)

// Core holds the components shared by the HTTP server, the MCP server and
// the one-shot CLI commands.
type Core struct {
	Config  *Config
	Logger  *slog.Logger
	Store   *storage.FS
	DB      *index.DB
	Service *noteservice.Service
	// ListID is the remote list new tasks are created in.
	ListID string
}

// Close releases the index database.
func (c *Core) Close() error {
	return c.DB.Close()
}

// Open wires storage, index, registry, remote client and note service
// without starting any server.
func Open(ctx context.Context, opts ...Option) (*Core, error) {
	return newApplication(opts).build(ctx)
}

func (a *application) build(ctx context.Context) (*Core, error) {
	if a.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := a.config

	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("registry_backend", cfg.Registry.Backend),
		slog.String("remote", cfg.Remote.BaseURL),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	core := &Core{Config: cfg, Logger: logger, Store: store, DB: db}

	var prefs *settings.Store
	if cfg.Registry.SettingsPath != "" {
		if prefs, err = settings.Open(cfg.Registry.SettingsPath); err != nil {
			db.Close()
			return nil, err
		}
	}

	reg, err := openRegistry(ctx, cfg.Registry.Backend, db, prefs, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	client := todoapi.New(cfg.Remote.BaseURL, cfg.Remote.Token, cfg.Remote.Timeout, logger)
	listID, err := resolveListID(ctx, cfg.Remote, client, prefs, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	sy := syncer.NewSyncer(syncer.New(client, reg, listID, logger), syncer.Options{
		Parse: parser.Options{
			Glyphs:     cfg.Display.Glyphs,
			Symbols:    cfg.Display.StatusSymbols,
			BodyFormat: cfg.Display.CreatedIn,
		},
		Render: cfg.Display.RenderOptions(),
		Link: syncer.LinkOptions{
			ApplicationName: cfg.Display.LinkAppName,
			URLTemplate:     cfg.Display.LinkURL,
		},
		Workers: cfg.App.Workers,
	}, logger)

	core.ListID = listID
	core.Service = noteservice.NewService(noteservice.Deps{
		Store:    store,
		Index:    db,
		Syncer:   sy,
		Resolver: reg,
		Lists:    client,
		Digest:   cfg.Display.DigestOptions(),
		Events:   a.events,
		Logger:   logger,
	})
	return core, nil
}

// openRegistry loads the token registry from the configured backend. With
// the sqlite backend, tokens from an existing settings file are imported.
func openRegistry(ctx context.Context, backend string, db *index.DB, prefs *settings.Store, logger *slog.Logger) (*registry.Registry, error) {
	var p registry.Persister = db
	switch backend {
	case RegistrySettings:
		if prefs == nil {
			return nil, fmt.Errorf("registry: settings backend needs a settings path")
		}
		p = prefs
	default:
		if prefs != nil {
			snap, err := prefs.LoadRegistry(ctx)
			if err != nil {
				return nil, err
			}
			n, err := db.ImportRegistry(ctx, snap)
			if err != nil {
				return nil, fmt.Errorf("import settings registry: %w", err)
			}
			if n > 0 {
				logger.Info("Imported block links from settings", slog.Int("count", n))
			}
		}
	}

	reg, err := registry.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	logger.Info("Registry loaded",
		slog.String("backend", backend),
		slog.Int("tokens", reg.Len()),
		slog.Int("counter", reg.Counter()))
	return reg, nil
}

// resolveListID picks the remote list: configured id, then the id cached in
// the settings file, then the list called cfg.ListName, created on demand.
func resolveListID(ctx context.Context, cfg RemoteConfig, client *todoapi.Client, prefs *settings.Store, logger *slog.Logger) (string, error) {
	if cfg.ListID != "" {
		return cfg.ListID, nil
	}
	if prefs != nil {
		if id := prefs.Data().ListID; id != "" {
			return id, nil
		}
	}
	if cfg.ListName == "" {
		return "", fmt.Errorf("remote: %w", apperr.ErrNoList)
	}

	id, err := client.EnsureList(ctx, cfg.ListName)
	if err != nil {
		return "", fmt.Errorf("resolve list %q: %w", cfg.ListName, err)
	}
	logger.Info("Using remote list", slog.String("name", cfg.ListName), slog.String("id", id))
	if prefs != nil {
		if err := prefs.SetListID(id); err != nil {
			logger.Warn("cache list id failed", slog.String("error", err.Error()))
		}
	}
	return id, nil
}
