package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotOpen indicates an operation on a closed store.
var ErrNotOpen = errors.New("settings: store not open")

// Options configures the settings database.
type Options struct {
	// Path is the SQLite database file. The parent directory is created
	// if missing.
	Path string

	// WALMode enables write-ahead logging.
	WALMode bool

	// BusyTimeoutMS is the SQLite busy timeout in milliseconds. The
	// gateway may hold the same database open.
	BusyTimeoutMS int
}

// Store persists plugin configuration in the gateway's settings database.
//
// Configuration lives under one key per package, as JSON. The schema
// matches what the gateway itself uses, so settings written here show up
// in the gateway UI and vice versa.
type Store struct {
	db          *sql.DB
	packageName string
}

// Open opens (creating if needed) the settings database.
//
// Parameters:
//   - opts: database location and SQLite tuning
//   - packageName: namespace for this plugin's configuration key
//
// Returns:
//   - *Store: ready for Load/Save
//   - error: filesystem or database failure
func Open(opts Options, packageName string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("settings: create data dir: %w", err)
	}

	dsn := opts.Path + "?_busy_timeout=" + itoa(opts.BusyTimeoutMS)
	if opts.WALMode {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("settings: open database: %w", err)
	}

	// Same schema the gateway uses for its own settings.
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("settings: create schema: %w", err)
	}

	return &Store{db: db, packageName: packageName}, nil
}

// LoadConfig returns the stored configuration for this plugin, or an empty
// map when nothing has been saved yet.
func (s *Store) LoadConfig(ctx context.Context) (map[string]any, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, s.configKey()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: load config: %w", err)
	}

	var cfg map[string]any
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("settings: decode stored config: %w", err)
	}
	return cfg, nil
}

// SaveConfig stores the plugin configuration, replacing any previous value.
func (s *Store) SaveConfig(ctx context.Context, cfg map[string]any) error {
	if s.db == nil {
		return ErrNotOpen
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("settings: encode config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`,
		s.configKey(), string(raw))
	if err != nil {
		return fmt.Errorf("settings: save config: %w", err)
	}
	return nil
}

// Close releases the database handle. Idempotent.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) configKey() string {
	return "addons.config." + s.packageName
}

func itoa(n int) string {
	if n <= 0 {
		n = 5000
	}
	return strconv.Itoa(n)
}
