package sink

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/dhcgn/mbox-curator/model"
)

const DatabaseName = "threads.db"

const schema = `
CREATE TABLE IF NOT EXISTS threads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	grp TEXT NOT NULL,
	forum TEXT NOT NULL,
	source_file TEXT NOT NULL,
	root_id TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	metadata TEXT NOT NULL,
	content TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_threads_grp ON threads(grp);
`

// SQLite stores every export as one row of <dir>/threads.db. Each Write is
// a single transaction so a file is either fully stored or not at all.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(dir string, resume bool) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, DatabaseName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open thread database: %w", err)
	}
	// one writer; the runner's sink stage is the only caller
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if !resume {
		if _, err := db.Exec(`DROP TABLE IF EXISTS threads;`); err != nil {
			db.Close()
			return nil, fmt.Errorf("reset thread table: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create thread schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Write(group string, exports []model.Export) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO threads (grp, forum, source_file, root_id, content_hash, metadata, content) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, exp := range exports {
		meta, err := encodeMetadata(exp.Metadata)
		if err != nil {
			return err
		}
		m := exp.Metadata
		if _, err := stmt.Exec(group, m.ForumName, m.SourceFile, m.RootID, m.ContentHash, meta, exp.Content); err != nil {
			return fmt.Errorf("insert thread %s: %w", m.RootID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
