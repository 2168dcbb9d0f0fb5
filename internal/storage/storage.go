package storage

import (
	"context"
	"time"

	"github.com/dshills/livedoc/pkg/types"
)

// Storage persists the reparse journal: which documents were open and how
// every reparse of them went. It does not store parsed models.
type Storage interface {
	// Document operations
	UpsertDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, path string) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	MarkClosed(ctx context.Context, path string, at time.Time) error
	DeleteDocument(ctx context.Context, path string) error

	// Reparse operations
	RecordReparse(ctx context.Context, rec *Reparse) error
	ListReparses(ctx context.Context, path string, limit int) ([]*Reparse, error)

	// Status operations
	GetStatus(ctx context.Context, path string) (*DocumentStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Document is one tracked source file
type Document struct {
	ID          int64
	Path        string // Absolute
	ModuleName  string
	Engine      string
	SessionID   string // Workspace session that opened it last
	LineCount   int
	SizeBytes   int64
	ContentHash [32]byte
	OpenedAt    time.Time
	ClosedAt    *time.Time // Nullable
	UpdatedAt   time.Time
}

// Reparse is one journal entry
type Reparse struct {
	ID              int64
	DocumentID      int64
	Path            string
	SessionID       string
	Version         uint64
	Mode            string
	Engine          string
	Success         bool
	Error           string
	SymbolCount     int
	DiagnosticCount int
	LineCount       int
	ContentHash     [32]byte
	Duration        time.Duration
	ParsedAt        time.Time
}

// DocumentStatus aggregates the journal of one document
type DocumentStatus struct {
	Document        *Document
	ReparseCount    int
	FailureCount    int
	InlineCount     int
	BackgroundCount int
	AvgDuration     time.Duration
	MaxDuration     time.Duration
	LastReparse     *Reparse
	DatabaseBytes   int64
	Health          HealthStatus
}

// HealthStatus represents the health of the journal
type HealthStatus struct {
	DatabaseAccessible bool
	SchemaVersion      string
}

// ReparseFromResult converts a published parse result to a journal entry
func ReparseFromResult(sessionID string, result *types.ParseResult) *Reparse {
	return &Reparse{
		Path:            result.Path,
		SessionID:       sessionID,
		Version:         result.Version,
		Mode:            string(result.Mode),
		Engine:          result.Engine,
		Success:         true,
		SymbolCount:     len(result.Symbols),
		DiagnosticCount: len(result.Errors),
		LineCount:       result.LineCount,
		ContentHash:     result.ContentHash,
		Duration:        result.Duration,
		ParsedAt:        result.ParsedAt,
	}
}
