package catalog

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sensiblebit/pemfile"
	_ "modernc.org/sqlite"
)

// sqliteSectionRow maps a row in the SQLite sections table.
type sqliteSectionRow struct {
	ID       string         `db:"id"`
	Kind     string         `db:"kind"`
	Label    string         `db:"label"`
	Source   string         `db:"source"`
	Seen     int            `db:"seen"`
	Payload  []byte         `db:"payload"`
	Subject  sql.NullString `db:"subject"`
	NotAfter *time.Time     `db:"not_after"`
	IsCA     bool           `db:"is_ca"`
}

// sqliteErrorRow maps a row in the SQLite scan_errors table.
type sqliteErrorRow struct {
	Source  string `db:"source"`
	Message string `db:"message"`
}

// openMemDB creates an in-memory SQLite database with the catalog schema.
func openMemDB() (*sqlx.DB, error) {
	dsn := "file::memory:?_pragma=temp_store(2)&_pragma=journal_mode(off)&_pragma=synchronous(off)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return db, nil
}

// initSQLiteSchema creates the sections and scan_errors tables.
func initSQLiteSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sections (
			id        text PRIMARY KEY,
			kind      text NOT NULL,
			label     text NOT NULL,
			source    text NOT NULL,
			seen      integer NOT NULL,
			payload   blob NOT NULL,
			subject   text,
			not_after timestamp,
			is_ca     boolean NOT NULL DEFAULT 0
		);
	`)
	if err != nil {
		return fmt.Errorf("creating sections table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_sections_kind ON sections (kind);
	`)
	if err != nil {
		return fmt.Errorf("creating kind index: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS scan_errors (
			source  text NOT NULL,
			message text NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating scan_errors table: %w", err)
	}
	return nil
}

// LoadFromSQLite opens a SQLite catalog file and merges its sections and
// errors into store. Sections already in store add their Seen counts.
func LoadFromSQLite(store *MemStore, dbPath string) error {
	db, err := openMemDB()
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	_, err = db.Exec("ATTACH DATABASE ? AS diskdb", dbPath)
	if err != nil {
		return fmt.Errorf("attaching database %s: %w", dbPath, err)
	}
	defer func() {
		if _, detachErr := db.Exec("DETACH DATABASE diskdb"); detachErr != nil {
			slog.Warn("detaching database", "path", dbPath, "error", detachErr)
		}
	}()

	if _, err = db.Exec("INSERT OR IGNORE INTO sections SELECT * FROM diskdb.sections"); err != nil {
		return fmt.Errorf("loading sections from %s: %w", dbPath, err)
	}
	if _, err = db.Exec("INSERT INTO scan_errors SELECT * FROM diskdb.scan_errors"); err != nil {
		return fmt.Errorf("loading scan errors from %s: %w", dbPath, err)
	}

	var rows []sqliteSectionRow
	if err := db.Select(&rows, "SELECT * FROM sections ORDER BY rowid"); err != nil {
		return fmt.Errorf("reading sections: %w", err)
	}
	for _, r := range rows {
		if recordID(r.Label, r.Payload) != r.ID {
			slog.Warn("skipping section with mismatched id", "id", r.ID, "source", r.Source)
			continue
		}
		rec := &Record{
			ID:      r.ID,
			Kind:    pemfile.Classify(r.Label),
			Label:   r.Label,
			Bytes:   r.Payload,
			Source:  r.Source,
			Seen:    max(r.Seen, 1),
			Subject: r.Subject.String,
			IsCA:    r.IsCA,
		}
		if r.NotAfter != nil {
			rec.NotAfter = *r.NotAfter
		}
		store.add(rec)
	}

	var errs []sqliteErrorRow
	if err := db.Select(&errs, "SELECT * FROM scan_errors"); err != nil {
		return fmt.Errorf("reading scan errors: %w", err)
	}
	for _, e := range errs {
		store.errors = append(store.errors, ErrorRecord(e))
	}

	slog.Info("loaded database into catalog", "path", dbPath, "sections", len(rows))
	return nil
}

// SaveToSQLite writes the contents of store to a SQLite database file. The
// file must not already exist.
func SaveToSQLite(store *MemStore, dbPath string) error {
	db, err := openMemDB()
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	for _, rec := range store.Records() {
		row := sqliteSectionRow{
			ID:      rec.ID,
			Kind:    rec.Kind.String(),
			Label:   rec.Label,
			Source:  rec.Source,
			Seen:    rec.Seen,
			Payload: rec.Bytes,
			Subject: sql.NullString{String: rec.Subject, Valid: rec.Subject != ""},
			IsCA:    rec.IsCA,
		}
		if !rec.NotAfter.IsZero() {
			notAfter := rec.NotAfter.UTC()
			row.NotAfter = &notAfter
		}
		_, err := db.NamedExec(`
			INSERT OR IGNORE INTO sections (id, kind, label, source, seen, payload, subject, not_after, is_ca)
			VALUES (:id, :kind, :label, :source, :seen, :payload, :subject, :not_after, :is_ca)
		`, row)
		if err != nil {
			slog.Warn("saving section to DB", "id", rec.ID, "error", err)
		}
	}

	for _, e := range store.errors {
		_, err := db.NamedExec(`
			INSERT INTO scan_errors (source, message) VALUES (:source, :message)
		`, sqliteErrorRow(e))
		if err != nil {
			slog.Warn("saving scan error to DB", "source", e.Source, "error", err)
		}
	}

	// VACUUM INTO produces a clean, compact copy
	if _, err := db.Exec("VACUUM INTO ?", dbPath); err != nil {
		return fmt.Errorf("saving database to %s: %w", dbPath, err)
	}

	slog.Info("database saved", "path", dbPath)
	return nil
}
