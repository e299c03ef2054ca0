// Package bootstrap handles application initialization and lifecycle for
// the photo review service.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/nemf/photo-review/internal/claims"
	"github.com/nemf/photo-review/internal/config"
	"github.com/nemf/photo-review/internal/handlers"
	"github.com/nemf/photo-review/internal/history"
	"github.com/nemf/photo-review/internal/linkage"
	"github.com/nemf/photo-review/internal/logger"
	"github.com/nemf/photo-review/internal/mo"
	"github.com/nemf/photo-review/internal/navigation"
	"github.com/nemf/photo-review/internal/store"
	"github.com/nemf/photo-review/internal/users"
)

// Start initializes and runs the service until shutdown.
func Start() error {
	// Phase 1: config and logger
	cfg, err := config.Load(config.Path("config.yml"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// Phase 2: review state and users
	st, err := store.Load(cfg.Data.ReviewFile, log)
	if err != nil {
		return fmt.Errorf("failed to load review data: %w", err)
	}

	registry, err := users.Load(cfg.Data.UsersFile, log)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}

	// Phase 3: lookup tables, optional DB and table watcher
	lookupSvc, watcher, closeDB, err := SetupLookup(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to set up lookups: %w", err)
	}
	defer closeDB()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if watcher != nil {
		go watcher.Run(ctx)
		defer watcher.Close()
	}

	// Phase 4: optional event publisher
	publisher := SetupEventPublisher(cfg, log)

	// Phase 5: domain engines and HTTP server
	claimMgr := claims.NewManager(cfg.Claims.Timeout, cfg.Claims.Override)
	tracker := history.NewTracker()
	nav := navigation.NewEngine(st, claimMgr, tracker)
	link := linkage.NewEngine(st, log)
	moFactory := mo.NewFactory(cfg.MO.BaseURL, cfg.MO.RequestsPerSecond, log)

	h := handlers.New(handlers.Deps{
		Store:     st,
		Claims:    claimMgr,
		History:   tracker,
		Nav:       nav,
		Linkage:   link,
		Users:     registry,
		Lookup:    lookupSvc,
		Events:    publisher,
		MO:        moFactory,
		ImagesDir: cfg.Data.ImagesDir,
		Log:       log,
	})

	server := NewServer(cfg, h, registry, log)

	log.Info("Starting HTTP server",
		logger.String("host", cfg.Server.Host),
		logger.Int("port", cfg.Server.Port),
		logger.Int("images", st.Len()),
	)

	if runErr := server.Run(); runErr != nil {
		log.Error("Server error", logger.Error(runErr))
		return fmt.Errorf("server error: %w", runErr)
	}

	log.Info("Server exited")
	return nil
}
