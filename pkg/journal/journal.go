// Package journal persists every command sent to the vehicle in SQLite.
package journal

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const (
	StatusOK       = "ok"
	StatusRejected = "rejected"
	StatusFailed   = "failed"

	defaultListLimit = 50
	maxListLimit     = 1000
)

// Entry is one command as recorded in the journal.
type Entry struct {
	ID        uuid.UUID              `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Command   string                 `json:"command"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Status    string                 `json:"status"`
	Error     string                 `json:"error,omitempty"`
}

type dbEntry struct {
	ID        string    `db:"id"`
	Timestamp time.Time `db:"timestamp"`
	Command   string    `db:"command"`
	Params    string    `db:"params"`
	Status    string    `db:"status"`
	Error     string    `db:"error"`
}

// Journal is the command store. It is safe for concurrent use.
type Journal struct {
	dbConn *sqlx.DB
}

// Open connects to the SQLite file at path and applies pending migrations.
func Open(path string) (*Journal, error) {
	db, err := sqlx.Connect("sqlite", fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to journal db")
	}

	db.SetMaxOpenConns(1)

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "setting dialect for migrations")
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "applying migrations")
	}

	return &Journal{dbConn: db}, nil
}

func (j *Journal) Close() error {
	if err := j.dbConn.Close(); err != nil {
		return errors.Wrap(err, "closing journal")
	}
	return nil
}

// Record stores e, assigning an id and timestamp when missing.
func (j *Journal) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.Command == "" {
		return e, errors.New("journal entry without command")
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	// stored as text, a single zone keeps ORDER BY chronological
	e.Timestamp = e.Timestamp.UTC()
	if e.Status == "" {
		e.Status = StatusOK
	}

	params := "{}"
	if len(e.Params) > 0 {
		data, err := json.Marshal(e.Params)
		if err != nil {
			return e, errors.Wrap(err, "marshalling params")
		}
		params = string(data)
	}

	query := `INSERT INTO commands (id, timestamp, command, params, status, error) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := j.dbConn.ExecContext(ctx, query, e.ID.String(), e.Timestamp, e.Command, params, e.Status, e.Error)
	if err != nil {
		return e, errors.Wrapf(err, "inserting %s command", e.Command)
	}

	return e, nil
}

// List returns up to limit entries, newest first. A non-positive limit uses
// the default.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var rows []dbEntry
	query := `SELECT id, timestamp, command, params, status, error FROM commands ORDER BY timestamp DESC, rowid DESC LIMIT ?`
	if err := j.dbConn.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, errors.Wrap(err, "listing commands")
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing command id %s", r.ID)
		}

		e := Entry{
			ID:        id,
			Timestamp: r.Timestamp,
			Command:   r.Command,
			Status:    r.Status,
			Error:     r.Error,
		}
		if r.Params != "" && r.Params != "{}" {
			if err := json.Unmarshal([]byte(r.Params), &e.Params); err != nil {
				return nil, errors.Wrapf(err, "decoding params of command %s", r.ID)
			}
		}
		entries = append(entries, e)
	}

	return entries, nil
}
