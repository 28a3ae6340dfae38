package app

import (
	"context"
	"database/sql"
	"fmt"

	"aulaplan/internal/config"
	"aulaplan/internal/db"
	"aulaplan/internal/engine"
	"aulaplan/internal/migrate"
)

// Workspace bundles everything a CLI command needs: an open migrated
// database, the workspace config and an engine wired to both.
type Workspace struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

func (w *Workspace) Close() error {
	return w.DB.Close()
}

// Open prepares the workspace directory, runs migrations and loads
// aulaplan.yml. A missing config file falls back to defaults and seeds the
// category catalog so the workspace is usable out of the box.
func Open(ctx context.Context, workspace string) (*Workspace, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("aulaplan")
	}
	e := engine.New(conn, cfg)
	if err := e.SeedCategories(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seed categories: %w", err)
	}
	return &Workspace{DB: conn, Config: cfg, Engine: e}, nil
}
