package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/soyeahso/arbiter/internal/catalog"
	"github.com/soyeahso/arbiter/internal/config"
	"github.com/soyeahso/arbiter/internal/dialog"
	"github.com/soyeahso/arbiter/internal/hooks"
	"github.com/soyeahso/arbiter/internal/logging"
	"github.com/soyeahso/arbiter/internal/registry"
	"github.com/soyeahso/arbiter/internal/store"
)

// loadConfig loads and validates the config file, logging every issue.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return config.Config{}, err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return config.Config{}, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

// openLogger builds the process logger from the logging section. The
// --log-level flag wins over the configured level.
func openLogger(cfg config.LoggingConfig) (*logging.Logger, io.Closer, error) {
	level := cfg.Level
	if logLevel != "" {
		level = logLevel
	}
	return logging.Open(logging.Options{Level: level, Style: cfg.ConsoleStyle, File: cfg.File})
}

// buildCatalog turns the configured model list into a catalog. An empty list
// keeps the built-in table.
func buildCatalog(cfg config.DialogConfig) *catalog.Catalog {
	models := make([]catalog.Model, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		models = append(models, catalog.Model{Label: m.Label, ID: m.ID})
	}
	return catalog.New(models, cfg.DefaultModel)
}

func dialogSettings(cfg config.DialogConfig) dialog.Settings {
	return dialog.Settings{
		Catalog:         buildCatalog(cfg),
		ReplyDelay:      cfg.ReplyDelay(),
		Acknowledgement: cfg.Acknowledgement,
	}
}

// openRegistry selects the agent registry backend. The returned close
// function is never nil.
func openRegistry(ctx context.Context, cfg config.RegistryConfig, log *logging.Logger) (registry.Registry, func(), error) {
	switch cfg.Store {
	case "sqlite":
		db, err := store.Open(ctx, log)
		if err != nil {
			return nil, nil, fmt.Errorf("opening agent store: %w", err)
		}
		log.Info().Msg("using SQLite agent registry")
		return store.NewAgentStore(db), func() { db.Close() }, nil
	default:
		log.Info().Msg("using in-memory agent registry")
		return registry.NewMemory(), func() {}, nil
	}
}

// core is the scheduler and controller shared by every UI collaborator.
type core struct {
	sched *dialog.Scheduler
	ctrl  *dialog.Controller
	hooks *hooks.Manager
	close func()
}

func newCore(ctx context.Context, cfg config.Config, log *logging.Logger) (*core, error) {
	reg, closeReg, err := openRegistry(ctx, cfg.Registry, log)
	if err != nil {
		return nil, err
	}

	hm := hooks.NewManager(log)
	hm.RegisterConfig(cfg.Hooks)

	sched := dialog.NewScheduler(log)
	ctrl := dialog.NewController(sched, reg, hm, dialogSettings(cfg.Dialog), log)
	return &core{sched: sched, ctrl: ctrl, hooks: hm, close: closeReg}, nil
}
