package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"hireline/internal/config"
	"hireline/internal/db"
	"hireline/internal/engine"
	"hireline/internal/metrics"
	"hireline/internal/migrate"
	"hireline/internal/notify"
	"hireline/internal/ocr"
	"hireline/internal/storage"
)

// Options selects the workspace and tenant to run against.
type Options struct {
	Workspace  string
	TenantID   string
	StorageDir string
	Logger     *slog.Logger
}

// Runtime is an opened workspace: the database, its config and an engine wired to both.
type Runtime struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Open opens the workspace database, applies pending migrations and loads hireline.yml,
// falling back to the defaults for opts.TenantID when the file is absent.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := config.LoadOptional(opts.Workspace, opts.TenantID)
	if err != nil {
		return nil, err
	}
	if opts.TenantID != "" {
		cfg.Tenant.ID = opts.TenantID
	}
	if strings.TrimSpace(cfg.Tenant.ID) == "" {
		return nil, fmt.Errorf("tenant not specified; use --tenant or set tenant.id in %s", config.Path(opts.Workspace))
	}

	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	dir := opts.StorageDir
	if dir == "" {
		dir = db.DocumentsDir(opts.Workspace)
	}
	store, err := storage.NewLocal(dir)
	if err != nil {
		conn.Close()
		return nil, err
	}

	e := engine.New(conn, cfg)
	e.Storage = store
	e.Metrics = metrics.New()
	e.Logger = opts.Logger
	if u := strings.TrimSpace(cfg.OCR.URL); u != "" {
		e.OCR.Extractor = ocr.HTTPExtractor{URL: u, APIKey: cfg.OCR.APIKey, Client: &http.Client{}}
	}
	if len(cfg.Collaborators.Notifications) > 0 {
		e.Notifier = notify.NewWebhooks(cfg.Collaborators.Notifications)
	}
	if strings.TrimSpace(cfg.Collaborators.Contract.URL) != "" {
		e.Contracts = notify.NewHTTPContracts(cfg.Collaborators.Contract)
	}
	return &Runtime{DB: conn, Config: cfg, Engine: e}, nil
}
