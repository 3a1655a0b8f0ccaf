package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/objectledge/coral/internal/attrtype"
	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/event"
	"github.com/objectledge/coral/internal/logger"
	"github.com/objectledge/coral/internal/querysql"
	"github.com/objectledge/coral/internal/schema"
	"github.com/objectledge/coral/internal/store"
)

// env is the database a command works on: the store, the class graph
// loaded from it and the resource service over both.
type env struct {
	store *store.Store
	graph *schema.Graph
	res   *store.Resources
}

// openEnv opens the configured database and loads its schema. The parent
// directory of the database file is created when missing.
func openEnv(ctx context.Context, opts *RootOptions) (*env, error) {
	cfg := opts.effectiveConfig()
	log := logger.Logger

	path := cfg.Database.Path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, errors.Wrap(err, "create database directory")
			}
		}
	}

	st, err := store.Open(path, store.WithLogger(log))
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}

	g, err := schema.Open(ctx, attrtype.NewRegistry(), st,
		schema.WithHub(event.NewHub(log)),
		schema.WithLogger(log))
	if err != nil {
		st.Close()
		return nil, errors.Wrap(err, "load schema")
	}

	log.Debugw("database opened", "path", path, "classes", len(g.ResourceClasses()))
	return &env{
		store: st,
		graph: g,
		res:   store.NewResources(st, g, querysql.WithSubclassMatching(cfg.Query.MatchSubclasses)),
	}, nil
}

// Close releases the resource service and the database.
func (e *env) Close() error {
	e.res.Close()
	return e.store.Close()
}
