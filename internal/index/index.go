// Package index maintains the derived SQLite reference index at
// .tkb/tkb.db.
//
// The index is a rebuildable cache over the canonical line-oriented store:
// scan rewrites it, validate/coverage/impact read from it instead of
// re-extracting every artifact. Deleting the database loses nothing; the
// next scan recreates it.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"tkb/internal/errors"
	"tkb/internal/logging"
	"tkb/internal/model"
)

const currentSchemaVersion = 2

// Index is the database handle with transaction helpers.
type Index struct {
	conn   *sql.DB
	logger *logging.Logger
	dbPath string
}

// Open opens or creates the index at <repoRoot>/.tkb/tkb.db.
func Open(repoRoot string, logger *logging.Logger) (*Index, error) {
	tkbDir := filepath.Join(repoRoot, ".tkb")
	if err := os.MkdirAll(tkbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .tkb directory: %w", err)
	}

	dbPath := filepath.Join(tkbDir, "tkb.db")
	dbExists := fileExists(dbPath)

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous=NORMAL", // Balance between safety and performance
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000", // Wait up to 5 seconds on lock
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	ix := &Index{conn: conn, logger: logger, dbPath: dbPath}

	if !dbExists {
		logger.Info("Creating reference index", map[string]interface{}{
			"path": dbPath,
		})
		if err := ix.initializeSchema(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to initialize index schema: %w", err)
		}
	} else if err := ix.checkSchema(); err != nil {
		conn.Close()
		return nil, err
	}

	return ix, nil
}

// Close closes the database connection.
func (ix *Index) Close() error {
	if ix.conn != nil {
		return ix.conn.Close()
	}
	return nil
}

// WithTx executes fn within a transaction, rolling back on error or panic.
func (ix *Index) WithTx(fn func(*sql.Tx) error) error {
	tx, err := ix.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			ix.logger.Error("failed to rollback transaction", map[string]interface{}{
				"error":          err.Error(),
				"rollback_error": rbErr.Error(),
			})
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (ix *Index) initializeSchema() error {
	return ix.WithTx(func(tx *sql.Tx) error {
		stmts := []string{
			`CREATE TABLE schema_version (
				version INTEGER NOT NULL
			)`,
			`CREATE TABLE refs (
				from_id TEXT NOT NULL,
				to_id   TEXT NOT NULL,
				type    TEXT NOT NULL,
				file    TEXT NOT NULL DEFAULT '',
				line    INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX idx_refs_from ON refs(from_id)`,
			`CREATE INDEX idx_refs_to ON refs(to_id)`,
			`CREATE INDEX idx_refs_file ON refs(file)`,
			`CREATE TABLE warnings (
				code    TEXT NOT NULL,
				message TEXT NOT NULL,
				file    TEXT NOT NULL DEFAULT '',
				line    INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE waivers (
				spec_id TEXT NOT NULL,
				ac_id   TEXT NOT NULL,
				owner   TEXT NOT NULL,
				reason  TEXT NOT NULL
			)`,
			`CREATE TABLE meta (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)",
			currentSchemaVersion); err != nil {
			return err
		}
		return nil
	})
}

// checkSchema verifies the on-disk version. A mismatched index is stale
// tooling output, not data loss; the caller can delete and re-scan.
func (ix *Index) checkSchema() error {
	var version int
	err := ix.conn.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		version = 0
	} else if err != nil {
		return fmt.Errorf("failed to read index schema version: %w", err)
	}

	if version != currentSchemaVersion {
		return fmt.Errorf("index schema version %d does not match %d; delete %s and re-run scan",
			version, currentSchemaVersion, ix.dbPath)
	}
	return nil
}

// Replace atomically swaps the indexed references, parse warnings, and
// waiver annotations for a fresh scan's output and stamps the scan time.
func (ix *Index) Replace(refs []model.Reference, warnings []*errors.TkbError, waivers []model.Waiver) error {
	return ix.WithTx(func(tx *sql.Tx) error {
		for _, table := range []string{"refs", "warnings", "waivers"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return err
			}
		}

		refStmt, err := tx.Prepare(
			"INSERT INTO refs (from_id, to_id, type, file, line) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer refStmt.Close()

		for _, ref := range refs {
			if _, err := refStmt.Exec(ref.From, ref.To, string(ref.Type),
				ref.Pos.File, ref.Pos.Line); err != nil {
				return err
			}
		}

		warnStmt, err := tx.Prepare(
			"INSERT INTO warnings (code, message, file, line) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer warnStmt.Close()

		for _, w := range warnings {
			file, line := "", 0
			if w.Position != nil {
				file, line = w.Position.File, w.Position.Line
			}
			if _, err := warnStmt.Exec(string(w.Code), w.Message, file, line); err != nil {
				return err
			}
		}

		waiverStmt, err := tx.Prepare(
			"INSERT INTO waivers (spec_id, ac_id, owner, reason) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer waiverStmt.Close()

		for _, w := range waivers {
			if _, err := waiverStmt.Exec(w.SpecID, w.ACID, w.Owner, w.Reason); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(
			"INSERT INTO meta (key, value) VALUES ('last_scan', ?) "+
				"ON CONFLICT(key) DO UPDATE SET value=excluded.value",
			time.Now().UTC().Format(time.RFC3339)); err != nil {
			return err
		}
		return nil
	})
}

// Refs returns all indexed references in insertion-stable order.
func (ix *Index) Refs() ([]model.Reference, error) {
	rows, err := ix.conn.Query(
		"SELECT from_id, to_id, type, file, line FROM refs ORDER BY from_id, to_id, type, line")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []model.Reference
	for rows.Next() {
		var ref model.Reference
		var typ string
		if err := rows.Scan(&ref.From, &ref.To, &typ, &ref.Pos.File, &ref.Pos.Line); err != nil {
			return nil, err
		}
		ref.Type = model.LinkType(typ)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// Warnings returns the parse warnings recorded by the last scan.
func (ix *Index) Warnings() ([]*errors.TkbError, error) {
	rows, err := ix.conn.Query(
		"SELECT code, message, file, line FROM warnings ORDER BY file, line, message")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var warnings []*errors.TkbError
	for rows.Next() {
		var code, message, file string
		var line int
		if err := rows.Scan(&code, &message, &file, &line); err != nil {
			return nil, err
		}
		w := errors.New(errors.ErrorCode(code), message)
		if file != "" {
			w.At(file, line)
		}
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

// Waivers returns the waiver annotations recorded by the last scan.
func (ix *Index) Waivers() ([]model.Waiver, error) {
	rows, err := ix.conn.Query(
		"SELECT spec_id, ac_id, owner, reason FROM waivers ORDER BY spec_id, ac_id, owner")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var waivers []model.Waiver
	for rows.Next() {
		var w model.Waiver
		if err := rows.Scan(&w.SpecID, &w.ACID, &w.Owner, &w.Reason); err != nil {
			return nil, err
		}
		waivers = append(waivers, w)
	}
	return waivers, rows.Err()
}

// LastScan returns the timestamp of the most recent scan, zero if none.
func (ix *Index) LastScan() (time.Time, error) {
	var value string
	err := ix.conn.QueryRow("SELECT value FROM meta WHERE key = 'last_scan'").Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}

// Stats returns row counts per table for the maintain --stats report.
func (ix *Index) Stats() (map[string]int, error) {
	stats := make(map[string]int)
	for _, table := range []string{"refs", "warnings", "waivers"} {
		var n int
		if err := ix.conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, err
		}
		stats[table] = n
	}
	return stats, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
