// Package db provides database functionality for shipyardd with in-memory SQLite
// and persistence to disk on shutdown.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bitswalk/shipyard/src/common/logs"
	"github.com/bitswalk/shipyard/src/common/paths"
	"github.com/bitswalk/shipyard/src/shipyardd/db/migrations"
	_ "github.com/mattn/go-sqlite3"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the db package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
		migrations.SetLogger(l)
	}
}

// Database wraps the SQLite connection with persistence capabilities
type Database struct {
	db           *sql.DB
	persistPath  string
	mu           sync.RWMutex
	shutdownOnce sync.Once
}

// Config holds the database configuration
type Config struct {
	// PersistPath is the file path where the database will be saved on shutdown.
	// Empty disables persistence.
	PersistPath string
	// LoadOnStart determines whether to load existing data from disk on startup
	LoadOnStart bool
}

// DefaultConfig returns a default database configuration
func DefaultConfig() Config {
	return Config{
		PersistPath: "~/.shipyardd/shipyardd.db",
		LoadOnStart: true,
	}
}

// persistedTables lists tables copied back from disk, parents first
var persistedTables = []string{"projects", "project_versions", "deployments", "image_scans"}

// New creates a new in-memory database with persistence support
func New(cfg Config) (*Database, error) {
	persistPath := paths.Expand(cfg.PersistPath)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	// Every pooled connection to :memory: would be its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	database := &Database{
		db:          db,
		persistPath: persistPath,
	}

	if err := migrations.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if cfg.LoadOnStart && persistPath != "" {
		if _, err := os.Stat(persistPath); err == nil {
			if err := database.LoadFromDisk(); err != nil {
				log.Warn("Failed to load database from disk, starting empty", "path", persistPath, "error", err)
			}
		}
	}

	return database, nil
}

// DB returns the underlying sql.DB for direct queries
func (d *Database) DB() *sql.DB {
	return d.db
}

// Shutdown persists the database to disk and closes the connection
func (d *Database) Shutdown() error {
	var shutdownErr error

	d.shutdownOnce.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		if d.persistPath != "" {
			if err := d.persistToDisk(); err != nil {
				shutdownErr = fmt.Errorf("failed to persist database: %w", err)
			}
		}

		if err := d.db.Close(); err != nil {
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%v; also failed to close database: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("failed to close database: %w", err)
			}
		}
	})

	return shutdownErr
}

// persistToDisk writes the in-memory database to a temp file then renames it over the target
func (d *Database) persistToDisk() error {
	if d.persistPath == "" {
		return nil
	}

	dir := filepath.Dir(d.persistPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempPath := d.persistPath + ".tmp"
	os.Remove(tempPath)

	if _, err := d.db.Exec(fmt.Sprintf("VACUUM INTO '%s'", sqlQuote(tempPath))); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to vacuum database to disk: %w", err)
	}

	if err := os.Rename(tempPath, d.persistPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename database file: %w", err)
	}

	return nil
}

func (d *Database) tableExistsInDiskDB(tableName string) bool {
	var count int
	err := d.db.QueryRow(`
		SELECT COUNT(*) FROM disk_db.sqlite_master
		WHERE type='table' AND name=?
	`, tableName).Scan(&count)
	return err == nil && count > 0
}

// tableColumns returns the column names of a table in the given schema
func (d *Database) tableColumns(schema, table string) ([]string, error) {
	rows, err := d.db.Query(fmt.Sprintf("PRAGMA %s.table_info(%s)", schema, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// LoadFromDisk loads data from the persisted database file into memory.
// Only columns present in both schemas are copied, so older files load after a migration.
func (d *Database) LoadFromDisk() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.persistPath == "" {
		return nil
	}

	if _, err := d.db.Exec(fmt.Sprintf("ATTACH DATABASE '%s' AS disk_db", sqlQuote(d.persistPath))); err != nil {
		return fmt.Errorf("failed to attach disk database: %w", err)
	}
	defer d.db.Exec("DETACH DATABASE disk_db")

	for _, table := range persistedTables {
		if !d.tableExistsInDiskDB(table) {
			continue
		}

		memCols, err := d.tableColumns("main", table)
		if err != nil {
			return fmt.Errorf("failed to read columns of %s: %w", table, err)
		}
		diskCols, err := d.tableColumns("disk_db", table)
		if err != nil {
			return fmt.Errorf("failed to read disk columns of %s: %w", table, err)
		}

		shared := intersect(memCols, diskCols)
		if len(shared) == 0 {
			continue
		}

		colList := strings.Join(shared, ", ")
		query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) SELECT %s FROM disk_db.%s", table, colList, colList, table)
		if _, err := d.db.Exec(query); err != nil {
			log.Warn("Failed to restore table from disk", "table", table, "error", err)
		}
	}

	return nil
}

// SaveToDisk manually triggers a save to disk
func (d *Database) SaveToDisk() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.persistToDisk()
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[s] = true
	}
	var out []string
	for _, s := range a {
		if set[s] {
			out = append(out, s)
		}
	}
	return out
}

func sqlQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
