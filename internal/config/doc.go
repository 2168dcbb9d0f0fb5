// Package config loads the livedoc server configuration.
//
// Settings come from DefaultConfig, then an optional YAML file, then
// LIVEDOC_* environment variables:
//
//	debounce: 250ms            # LIVEDOC_DEBOUNCE
//	sync_line_threshold: 800   # LIVEDOC_SYNC_LINE_THRESHOLD
//	backpressure: coalesce     # LIVEDOC_BACKPRESSURE (coalesce|block)
//	engine: ast                # LIVEDOC_ENGINE (ast|treesitter)
//	db_path: ~/.livedoc/journal.db
//	watch: true                # LIVEDOC_WATCH
//	load_workers: 8            # LIVEDOC_LOAD_WORKERS
//	log_level: info            # LIVEDOC_LOG_LEVEL
//
// Unknown keys in the file are rejected.
package config
