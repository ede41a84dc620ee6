package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	stateDir      = ".hireline"
	defaultDBName = "hireline.db"
	documentsDir  = "documents"
)

// Config locates the database. File overrides the workspace default when set.
type Config struct {
	Workspace   string
	File        string
	BusyTimeout time.Duration
}

func stateRoot(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, stateDir)
}

// EnsureWorkspace creates the .hireline state directory if missing and returns it.
func EnsureWorkspace(workspace string) (string, error) {
	path := stateRoot(workspace)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// DocumentsDir is where uploaded documents live when no other storage is configured.
func DocumentsDir(workspace string) string {
	return filepath.Join(stateRoot(workspace), documentsDir)
}

// Open opens the SQLite database with foreign keys on and checks it is reachable.
// Writers are serialised on a single connection; code holding a *sql.Tx must not
// touch the *sql.DB until it commits.
func Open(cfg Config) (*sql.DB, error) {
	path := cfg.File
	if path == "" {
		if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
			return nil, err
		}
		path = Path(cfg.Workspace)
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	q := url.Values{}
	q.Add("cache", "shared")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	conn, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return conn, nil
}

// Path returns the default db path for the workspace.
func Path(workspace string) string {
	return filepath.Join(stateRoot(workspace), defaultDBName)
}
