package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// DefaultListLimit bounds ListReparses when no limit is given
const DefaultListLimit = 50

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func toHash(b []byte) [32]byte {
	var h [32]byte
	copy(h[:], b)
	return h
}

// Document operations

func (s *SQLiteStorage) upsertDocumentWithQuerier(ctx context.Context, q querier, doc *Document) error {
	query := `
		INSERT INTO documents (path, module_name, engine, session_id, line_count, size_bytes, content_hash, opened_at, updated_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(path) DO UPDATE SET
			module_name = excluded.module_name,
			engine = excluded.engine,
			session_id = excluded.session_id,
			line_count = excluded.line_count,
			size_bytes = excluded.size_bytes,
			content_hash = excluded.content_hash,
			opened_at = excluded.opened_at,
			updated_at = excluded.updated_at,
			closed_at = NULL
		RETURNING id
	`
	now := time.Now()
	if doc.OpenedAt.IsZero() {
		doc.OpenedAt = now
	}
	err := q.QueryRowContext(ctx, query,
		doc.Path, doc.ModuleName, doc.Engine, doc.SessionID, doc.LineCount, doc.SizeBytes,
		doc.ContentHash[:], toUnix(doc.OpenedAt), toUnix(now)).Scan(&doc.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	doc.UpdatedAt = now
	doc.ClosedAt = nil
	return nil
}

// UpsertDocument creates or reopens the document row for doc.Path
func (s *SQLiteStorage) UpsertDocument(ctx context.Context, doc *Document) error {
	return s.upsertDocumentWithQuerier(ctx, s.querier(), doc)
}

const documentColumns = `id, path, module_name, engine, session_id, line_count, size_bytes,
	content_hash, opened_at, updated_at, closed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var moduleName, engine, sessionID sql.NullString
	var hash []byte
	var openedAt, updatedAt int64
	var closedAt sql.NullInt64
	err := row.Scan(&doc.ID, &doc.Path, &moduleName, &engine, &sessionID, &doc.LineCount,
		&doc.SizeBytes, &hash, &openedAt, &updatedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	doc.ModuleName = moduleName.String
	doc.Engine = engine.String
	doc.SessionID = sessionID.String
	doc.ContentHash = toHash(hash)
	doc.OpenedAt = fromUnix(openedAt)
	doc.UpdatedAt = fromUnix(updatedAt)
	if closedAt.Valid {
		t := fromUnix(closedAt.Int64)
		doc.ClosedAt = &t
	}
	return &doc, nil
}

func (s *SQLiteStorage) getDocumentWithQuerier(ctx context.Context, q querier, path string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE path = ?`
	doc, err := scanDocument(q.QueryRowContext(ctx, query, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocument returns the document row for path
func (s *SQLiteStorage) GetDocument(ctx context.Context, path string) (*Document, error) {
	return s.getDocumentWithQuerier(ctx, s.querier(), path)
}

func (s *SQLiteStorage) listDocumentsWithQuerier(ctx context.Context, q querier) ([]*Document, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListDocuments returns every tracked document ordered by path
func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*Document, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) markClosedWithQuerier(ctx context.Context, q querier, path string, at time.Time) error {
	result, err := q.ExecContext(ctx,
		"UPDATE documents SET closed_at = ?, updated_at = ? WHERE path = ?",
		toUnix(at), toUnix(time.Now()), path)
	if err != nil {
		return fmt.Errorf("failed to close document: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkClosed records that the document at path was closed
func (s *SQLiteStorage) MarkClosed(ctx context.Context, path string, at time.Time) error {
	return s.markClosedWithQuerier(ctx, s.querier(), path, at)
}

func (s *SQLiteStorage) deleteDocumentWithQuerier(ctx context.Context, q querier, path string) error {
	result, err := q.ExecContext(ctx, "DELETE FROM documents WHERE path = ?", path)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDocument removes the document and its journal
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, path string) error {
	return s.deleteDocumentWithQuerier(ctx, s.querier(), path)
}

// Reparse operations

// recordReparseWithQuerier inserts the entry, creating the document row on
// first use, and keeps the document's line count and hash current.
func (s *SQLiteStorage) recordReparseWithQuerier(ctx context.Context, q querier, rec *Reparse) error {
	if rec.Path == "" {
		return errors.New("reparse record has no path")
	}
	if rec.ParsedAt.IsZero() {
		rec.ParsedAt = time.Now()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO documents (path, engine, session_id, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO NOTHING
	`, rec.Path, rec.Engine, rec.SessionID, toUnix(rec.ParsedAt), toUnix(rec.ParsedAt))
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	err = q.QueryRowContext(ctx, "SELECT id FROM documents WHERE path = ?", rec.Path).Scan(&rec.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to resolve document: %w", err)
	}

	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}
	err = q.QueryRowContext(ctx, `
		INSERT INTO reparses (
			document_id, session_id, version, mode, engine, success, error,
			symbol_count, diagnostic_count, line_count, content_hash, duration_ns, parsed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, rec.DocumentID, rec.SessionID, int64(rec.Version), rec.Mode, rec.Engine, rec.Success, errText,
		rec.SymbolCount, rec.DiagnosticCount, rec.LineCount, rec.ContentHash[:],
		int64(rec.Duration), toUnix(rec.ParsedAt)).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to record reparse: %w", err)
	}

	if rec.Success {
		_, err = q.ExecContext(ctx, `
			UPDATE documents SET line_count = ?, content_hash = ?, engine = ?, updated_at = ?
			WHERE id = ?
		`, rec.LineCount, rec.ContentHash[:], rec.Engine, toUnix(rec.ParsedAt), rec.DocumentID)
		if err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
	}

	return nil
}

// RecordReparse appends rec to the journal in its own transaction
func (s *SQLiteStorage) RecordReparse(ctx context.Context, rec *Reparse) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.recordReparseWithQuerier(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) listReparsesWithQuerier(ctx context.Context, q querier, path string, limit int) ([]*Reparse, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := q.QueryContext(ctx, `
		SELECT r.id, r.document_id, d.path, r.session_id, r.version, r.mode, r.engine,
		       r.success, r.error, r.symbol_count, r.diagnostic_count, r.line_count,
		       r.content_hash, r.duration_ns, r.parsed_at
		FROM reparses r
		JOIN documents d ON r.document_id = d.id
		WHERE d.path = ?
		ORDER BY r.id DESC
		LIMIT ?
	`, path, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*Reparse
	for rows.Next() {
		var rec Reparse
		var version, duration, parsedAt int64
		var engine, errText sql.NullString
		var hash []byte
		err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.Path, &rec.SessionID, &version, &rec.Mode,
			&engine, &rec.Success, &errText, &rec.SymbolCount, &rec.DiagnosticCount, &rec.LineCount,
			&hash, &duration, &parsedAt)
		if err != nil {
			return nil, err
		}
		rec.Version = uint64(version)
		rec.Engine = engine.String
		rec.Error = errText.String
		rec.ContentHash = toHash(hash)
		rec.Duration = time.Duration(duration)
		rec.ParsedAt = fromUnix(parsedAt)
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// ListReparses returns up to limit journal entries for path, newest first
func (s *SQLiteStorage) ListReparses(ctx context.Context, path string, limit int) ([]*Reparse, error) {
	return s.listReparsesWithQuerier(ctx, s.querier(), path, limit)
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier, path string) (*DocumentStatus, error) {
	doc, err := s.getDocumentWithQuerier(ctx, q, path)
	if err != nil {
		return nil, err
	}

	status := &DocumentStatus{Document: doc}

	var avg float64
	var maxNs int64
	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0),
		       COALESCE(SUM(CASE WHEN mode = 'inline' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN mode = 'background' THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(duration_ns), 0),
		       COALESCE(MAX(duration_ns), 0)
		FROM reparses WHERE document_id = ?
	`, doc.ID).Scan(&status.ReparseCount, &status.FailureCount, &status.InlineCount,
		&status.BackgroundCount, &avg, &maxNs)
	if err != nil {
		return nil, err
	}
	status.AvgDuration = time.Duration(avg)
	status.MaxDuration = time.Duration(maxNs)

	last, err := s.listReparsesWithQuerier(ctx, q, path, 1)
	if err != nil {
		return nil, err
	}
	if len(last) > 0 {
		status.LastReparse = last[0]
	}

	err = q.QueryRowContext(ctx,
		"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()").Scan(&status.DatabaseBytes)
	if err != nil {
		return nil, err
	}

	version, err := schemaVersion(ctx, q)
	if err != nil {
		return nil, err
	}
	status.Health = HealthStatus{
		DatabaseAccessible: true,
		SchemaVersion:      version.String(),
	}

	return status, nil
}

// GetStatus aggregates the journal of the document at path
func (s *SQLiteStorage) GetStatus(ctx context.Context, path string) (*DocumentStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier(), path)
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) UpsertDocument(ctx context.Context, doc *Document) error {
	return t.storage.upsertDocumentWithQuerier(ctx, t.tx, doc)
}

func (t *sqliteTx) GetDocument(ctx context.Context, path string) (*Document, error) {
	return t.storage.getDocumentWithQuerier(ctx, t.tx, path)
}

func (t *sqliteTx) ListDocuments(ctx context.Context) ([]*Document, error) {
	return t.storage.listDocumentsWithQuerier(ctx, t.tx)
}

func (t *sqliteTx) MarkClosed(ctx context.Context, path string, at time.Time) error {
	return t.storage.markClosedWithQuerier(ctx, t.tx, path, at)
}

func (t *sqliteTx) DeleteDocument(ctx context.Context, path string) error {
	return t.storage.deleteDocumentWithQuerier(ctx, t.tx, path)
}

func (t *sqliteTx) RecordReparse(ctx context.Context, rec *Reparse) error {
	return t.storage.recordReparseWithQuerier(ctx, t.tx, rec)
}

func (t *sqliteTx) ListReparses(ctx context.Context, path string, limit int) ([]*Reparse, error) {
	return t.storage.listReparsesWithQuerier(ctx, t.tx, path, limit)
}

func (t *sqliteTx) GetStatus(ctx context.Context, path string) (*DocumentStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.tx, path)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
