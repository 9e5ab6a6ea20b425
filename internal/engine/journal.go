package engine

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// journalFlushEvery bounds how many records sit in memory before a write.
const journalFlushEvery = 64

// JournalEntry is one completed receive.
type JournalEntry struct {
	ReceivedAt time.Time
	Path       string
	Remote     string
	Hash       string // hex BLAKE3 of the decoded payload
	Size       int64
}

// Journal is an SQLite log of files a daemon has fully received. A later
// receive of the same path replaces the earlier row.
type Journal struct {
	db   *sql.DB
	path string

	mu      sync.Mutex
	batch   []JournalEntry
	done    chan struct{}
	stopped bool
}

// OpenJournal opens (or creates) the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS received (
			path        TEXT PRIMARY KEY,
			size        INTEGER NOT NULL,
			hash        TEXT NOT NULL,
			remote      TEXT NOT NULL,
			received_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal table: %w", err)
	}

	j := &Journal{db: db, path: path, done: make(chan struct{})}
	go j.flushLoop()
	return j, nil
}

// Record queues e for writing. Records are flushed in batches, on a timer,
// and on Close.
func (j *Journal) Record(e JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	j.batch = append(j.batch, e)
	if len(j.batch) >= journalFlushEvery {
		return j.flushLocked()
	}
	return nil
}

// Flush writes any queued records.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flushLocked()
}

func (j *Journal) flushLocked() error {
	if len(j.batch) == 0 {
		return nil
	}

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO received
		(path, size, hash, remote, received_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback() //nolint:errcheck // already failing
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range j.batch {
		if _, err := stmt.Exec(e.Path, e.Size, e.Hash, e.Remote, e.ReceivedAt.UnixNano()); err != nil {
			tx.Rollback() //nolint:errcheck // already failing
			return fmt.Errorf("insert %s: %w", e.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	j.batch = j.batch[:0]
	return nil
}

func (j *Journal) flushLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.mu.Lock()
			_ = j.flushLocked()
			j.mu.Unlock()
		}
	}
}

// Lookup returns the latest record for path. Queued records are flushed
// first.
func (j *Journal) Lookup(path string) (JournalEntry, bool, error) {
	if err := j.Flush(); err != nil {
		return JournalEntry{}, false, err
	}

	e := JournalEntry{Path: path}
	var nanos int64
	err := j.db.QueryRow(
		"SELECT size, hash, remote, received_at FROM received WHERE path = ?", path,
	).Scan(&e.Size, &e.Hash, &e.Remote, &nanos)
	if err == sql.ErrNoRows {
		return JournalEntry{}, false, nil
	}
	if err != nil {
		return JournalEntry{}, false, fmt.Errorf("lookup %s: %w", path, err)
	}
	e.ReceivedAt = time.Unix(0, nanos)
	return e, true, nil
}

// Entries returns every record, oldest first.
func (j *Journal) Entries() ([]JournalEntry, error) {
	if err := j.Flush(); err != nil {
		return nil, err
	}

	rows, err := j.db.Query(
		"SELECT path, size, hash, remote, received_at FROM received ORDER BY received_at, path")
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var (
			e     JournalEntry
			nanos int64
		)
		if err := rows.Scan(&e.Path, &e.Size, &e.Hash, &e.Remote, &nanos); err != nil {
			return nil, err
		}
		e.ReceivedAt = time.Unix(0, nanos)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Path returns the database file path.
func (j *Journal) Path() string { return j.path }

// Close flushes queued records and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if !j.stopped {
		j.stopped = true
		close(j.done)
	}
	flushErr := j.flushLocked()
	j.mu.Unlock()

	if err := j.db.Close(); err != nil {
		return err
	}
	return flushErr
}
