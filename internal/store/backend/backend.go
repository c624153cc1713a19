// Package backend opens the parent and child tiers named in configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgallion1/docrag/internal/config"
	"github.com/dgallion1/docrag/internal/store"
	"github.com/dgallion1/docrag/internal/store/memory"
	"github.com/dgallion1/docrag/internal/store/pathstore"
	"github.com/dgallion1/docrag/internal/store/postgres"
	"github.com/dgallion1/docrag/internal/store/qdrant"
	"github.com/dgallion1/docrag/internal/store/sqlite"
)

// Open returns a Store for cfg.ParentStore and cfg.ChildStore. When both
// tiers name the same backend they share one instance.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Store, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.ParentStore == cfg.ChildStore {
		st, err := openBoth(ctx, cfg.ParentStore, cfg, log)
		if err != nil {
			return nil, err
		}
		log.Info("store opened", "backend", cfg.ParentStore)
		return st, nil
	}

	parents, err := openParents(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	children, err := openChildren(ctx, cfg, log)
	if err != nil {
		if c, ok := parents.(interface{ Close() error }); ok {
			err = errors.Join(err, c.Close())
		}
		return nil, err
	}
	log.Info("store opened", "parents", cfg.ParentStore, "children", cfg.ChildStore)
	return store.Split(parents, children), nil
}

func openBoth(ctx context.Context, name string, cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch name {
	case config.BackendSQLite:
		return sqlite.Open(cfg.SQLitePath, sqlite.WithLogger(log))
	case config.BackendPostgres:
		return postgres.Open(ctx, cfg.PostgresURL, postgres.WithLogger(log))
	case config.BackendMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("backend %q cannot hold both parents and children", name)
}

func openParents(ctx context.Context, cfg config.Config, log *slog.Logger) (store.ParentStore, error) {
	if cfg.ParentStore == config.BackendPathstore {
		client := pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
		return pathstore.NewParentStore(client), nil
	}
	return openBoth(ctx, cfg.ParentStore, cfg, log)
}

func openChildren(ctx context.Context, cfg config.Config, log *slog.Logger) (store.ChildStore, error) {
	if cfg.ChildStore == config.BackendQdrant {
		return qdrant.NewChildStore(qdrant.Config{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
		}), nil
	}
	return openBoth(ctx, cfg.ChildStore, cfg, log)
}
