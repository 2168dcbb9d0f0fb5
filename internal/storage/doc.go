// Package storage provides SQLite-based persistence for the reparse journal.
//
// The journal records which documents were open and the outcome of every
// reparse: version, mode, engine, symbol and diagnostic counts, duration and
// failure text. Parsed models themselves are never persisted; they live only
// in memory.
//
// # Database Schema
//
// Tables:
//   - documents: one row per path (module, engine, last line count and hash,
//     open and close times)
//   - reparses: the journal, one row per completed or failed reparse
//   - schema_version: applied migrations, compared with semver
//
// Times are stored as unix nanoseconds.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.livedoc/journal.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	err = db.RecordReparse(ctx, storage.ReparseFromResult(sessionID, result))
//
//	history, err := db.ListReparses(ctx, "/src/app/main.go", 20)
//	status, err := db.GetStatus(ctx, "/src/app/main.go")
//
// # Transactions
//
// Use transactions for atomic operations:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	_ = tx.UpsertDocument(ctx, doc)
//	_ = tx.RecordReparse(ctx, rec)
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// # Build Tags
//
// The storage package supports two build configurations:
//
// Pure Go build (default):
//
//   - Uses modernc.org/sqlite driver
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build ./...
//
// CGO build (sqlite_cgo tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//     CGO_ENABLED=1 go build -tags "sqlite_cgo" ./...
package storage
