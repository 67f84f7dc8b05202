// Package audit persists a log of tool invocations to SQLite. All writes go
// through a single worker goroutine; SQLite supports one writer at a time and
// concurrent write attempts surface as "database is locked" errors.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/mitralabs/mitra/internal/models"
	"github.com/mitralabs/mitra/pkg/logger"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("audit")
}

const writeQueueSize = 100

type writeRequest struct {
	record models.InvocationRecord
	result chan error
}

// Log is the invocation audit log. Record is safe to call from any
// goroutine; the single worker serializes the actual inserts.
type Log struct {
	db      *sql.DB
	queue   chan writeRequest
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// Open opens (or creates) the audit database at path and starts the writer.
// Use ":memory:" for an ephemeral log.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.WithError(err).Warn("Failed to enable WAL mode")
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS invocations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		correlation_id TEXT NOT NULL,
		tool TEXT NOT NULL,
		server_id TEXT NOT NULL,
		args_json TEXT,
		success INTEGER NOT NULL,
		error_kind TEXT,
		error_message TEXT,
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create invocations table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_invocations_created_at
		ON invocations(created_at)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	l := &Log{
		db:    db,
		queue: make(chan writeRequest, writeQueueSize),
		done:  make(chan struct{}),
	}
	l.start()
	return l, nil
}

func (l *Log) start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return
	}
	l.started = true
	l.wg.Add(1)
	go l.worker()
}

// Close drains pending writes and closes the database
func (l *Log) Close() error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return l.db.Close()
	}
	l.started = false
	l.mu.Unlock()

	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

// Record appends one invocation outcome, blocking until the insert lands
func (l *Log) Record(ctx context.Context, record models.InvocationRecord) error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return fmt.Errorf("audit log is closed")
	}
	l.mu.Unlock()

	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().Unix()
	}

	result := make(chan error, 1)
	req := writeRequest{record: record, result: result}

	select {
	case l.queue <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return fmt.Errorf("audit log is shutting down")
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// A request enqueued while Close was draining may never be served
		return fmt.Errorf("audit log is shutting down")
	}
}

// RecordOutcome builds and appends a record from an invocation and its result
func (l *Log) RecordOutcome(ctx context.Context, inv models.ToolInvocation, terr *models.ToolError, duration time.Duration) error {
	record := models.InvocationRecord{
		CorrelationID: inv.CorrelationID,
		Tool:          inv.Tool,
		ServerID:      inv.ServerID,
		Success:       terr == nil,
		DurationMs:    duration.Milliseconds(),
	}
	if len(inv.Arguments) > 0 {
		if data, err := json.Marshal(inv.Arguments); err == nil {
			record.ArgsJSON = string(data)
		}
	}
	if terr != nil {
		record.ErrorKind = string(terr.Kind)
		record.ErrorMessage = terr.Message
	}
	return l.Record(ctx, record)
}

// Recent returns the newest records, most recent first
func (l *Log) Recent(ctx context.Context, limit int) ([]models.InvocationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `SELECT id, correlation_id, tool, server_id,
		COALESCE(args_json, ''), success, COALESCE(error_kind, ''),
		COALESCE(error_message, ''), duration_ms, created_at
		FROM invocations ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query invocations: %w", err)
	}
	defer rows.Close()

	var records []models.InvocationRecord
	for rows.Next() {
		var r models.InvocationRecord
		if err := rows.Scan(&r.ID, &r.CorrelationID, &r.Tool, &r.ServerID,
			&r.ArgsJSON, &r.Success, &r.ErrorKind, &r.ErrorMessage,
			&r.DurationMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// worker is the single goroutine performing inserts
func (l *Log) worker() {
	defer l.wg.Done()
	for {
		select {
		case req := <-l.queue:
			req.result <- l.insert(req.record)
		case <-l.done:
			l.drain()
			return
		}
	}
}

func (l *Log) drain() {
	for {
		select {
		case req := <-l.queue:
			req.result <- l.insert(req.record)
		default:
			return
		}
	}
}

func (l *Log) insert(r models.InvocationRecord) error {
	_, err := l.db.Exec(`INSERT INTO invocations
		(correlation_id, tool, server_id, args_json, success, error_kind, error_message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.CorrelationID, r.Tool, r.ServerID, r.ArgsJSON, r.Success,
		r.ErrorKind, r.ErrorMessage, r.DurationMs, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert invocation: %w", err)
	}
	return nil
}
