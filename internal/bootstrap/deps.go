package bootstrap

import (
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/nemf/photo-review/internal/config"
	"github.com/nemf/photo-review/internal/events"
	"github.com/nemf/photo-review/internal/logger"
	"github.com/nemf/photo-review/internal/lookup"
)

// SetupLookup builds the lookup service: JSON tables, the optional MySQL
// mirror, and a filesystem watcher when a table directory is configured.
// The returned closer shuts the DB pool down; it is a no-op when the DB
// is disabled.
func SetupLookup(cfg *config.Config, log logger.Logger) (*lookup.Service, *lookup.Watcher, func(), error) {
	tables, err := lookup.LoadTables(cfg.Data.LookupDir)
	if err != nil {
		return nil, nil, nil, err
	}

	closeDB := func() {}
	var repo *lookup.Repository
	if cfg.Lookup.Enabled {
		db, err := sql.Open("mysql", cfg.Lookup.DSN())
		if err != nil {
			return nil, nil, nil, err
		}
		db.SetMaxOpenConns(cfg.Lookup.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Lookup.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Lookup.ConnMaxLifetime)

		if err := db.Ping(); err != nil {
			// The mirror is an enhancement; tables still serve lookups.
			log.Warn("Lookup database unavailable, using tables only",
				logger.String("host", cfg.Lookup.Host),
				logger.Error(err),
			)
			_ = db.Close()
		} else {
			log.Info("Lookup database connected",
				logger.String("host", cfg.Lookup.Host),
				logger.String("dbname", cfg.Lookup.DBName),
			)
			repo = lookup.NewRepository(db)
			closeDB = func() { _ = db.Close() }
		}
	}

	svc := lookup.NewService(tables, repo, log)

	var watcher *lookup.Watcher
	if cfg.Data.LookupDir != "" {
		watcher, err = lookup.NewWatcher(tables, log)
		if err != nil {
			log.Warn("Lookup table watcher unavailable, hot reload disabled",
				logger.Error(err),
			)
			watcher = nil
		}
	}

	return svc, watcher, closeDB, nil
}

// SetupEventPublisher creates an optional event publisher if Redis is
// enabled. Returns nil if Redis is disabled or unavailable.
func SetupEventPublisher(cfg *config.Config, log logger.Logger) *events.Publisher {
	if !cfg.Redis.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	log.Info("Event publisher initialized",
		logger.String("redis_address", cfg.Redis.Address),
	)
	return events.NewPublisher(client, log)
}
