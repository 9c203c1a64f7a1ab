package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lazypower/constellation/internal/activity"
	"github.com/lazypower/constellation/internal/config"
	"github.com/lazypower/constellation/internal/engine"
	"github.com/lazypower/constellation/internal/logging"
	"github.com/lazypower/constellation/internal/store"
)

// loadConfig reads --config, falling back to the default path.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return config.Config{}, err
		}
	}
	return config.Load(path)
}

func openDB(cfg config.Config) (*store.DB, string, error) {
	path := cfg.Database.Path
	if path == "" {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			return nil, "", fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, path, fmt.Errorf("open database: %w", err)
	}
	return db, path, nil
}

// openFeed returns the file-backed feed when a directory is configured and
// an in-memory buffer otherwise.
func openFeed(cfg config.Config) engine.Feed {
	if cfg.Feed.Dir != "" {
		return activity.OpenLog(cfg.Feed.Dir, activity.DefaultLimits())
	}
	return activity.NewBuffer(activity.DefaultLimits())
}

// offline is an engine restored from the database for a one-shot command.
type offline struct {
	*engine.Engine
	db *store.DB
}

func (o *offline) Close() error { return o.db.Close() }

// openOffline loads the persisted graph without starting any timers. With
// readFeed the feed files are buffered but not ingested, so queries over
// raw activity work; without it the engine gets an empty in-memory feed
// and leaves the stored read positions alone.
func openOffline(ctx context.Context, cfg config.Config, log *zap.Logger, readFeed bool) (*offline, error) {
	db, _, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	var feed engine.Feed = activity.NewBuffer(activity.DefaultLimits())
	if readFeed {
		feed = openFeed(cfg)
		if l, ok := feed.(*activity.Log); ok {
			if _, err := l.Reload(); err != nil {
				log.Warn("feed read incomplete", zap.Error(err))
			}
		}
	}
	eng := engine.New(cfg, engine.Deps{DB: db, Feed: feed, Logger: log})
	if err := eng.Load(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}
	return &offline{Engine: eng, db: db}, nil
}

// quietLogger keeps one-shot commands to warnings unless the config asks
// for more.
func quietLogger(cfg config.Config) (*zap.Logger, error) {
	lc := cfg.Log
	if lc.Level == config.Default().Log.Level {
		lc.Level = "warn"
	}
	return logging.New(lc)
}
