package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// LoadOptions control LoadDir
type LoadOptions struct {
	Workers       int  // Concurrent opens (default: runtime.NumCPU())
	IncludeTests  bool // Open _test.go files (true when opts is nil)
	IncludeVendor bool // Descend into vendor directories (default: false)
}

// LoadStats summarize one LoadDir run
type LoadStats struct {
	FilesFound    int
	FilesOpened   int
	FilesSkipped  int // Already open
	FilesFailed   int
	Duration      time.Duration
	ErrorMessages []string
}

// LoadDir opens every Go file under root as a disk-backed document. Files
// that are already open are skipped, and a file that fails to open does not
// stop the others. Only one LoadDir runs at a time.
func (ws *Workspace) LoadDir(ctx context.Context, root string, opts *LoadOptions) (*LoadStats, error) {
	if opts == nil {
		opts = &LoadOptions{IncludeTests: true}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	if !ws.loadLock.TryAcquire() {
		return nil, ErrLoadInProgress
	}
	defer ws.loadLock.Release()

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}

	start := time.Now()
	files, err := discoverFiles(root, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	ws.log.Infof("loading %d files from %s with %d workers", len(files), root, workers)

	stats := &LoadStats{FilesFound: len(files)}
	var (
		opened  int32
		skipped int32
		failed  int32
		mu      sync.Mutex // protects stats.ErrorMessages
	)

	semaphore := make(chan struct{}, workers)
	g, gctx := errgroup.WithContext(ctx)

	for _, path := range files {
		select {
		case <-gctx.Done():
		case semaphore <- struct{}{}:
		}
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			defer func() { <-semaphore }()

			_, err := ws.OpenFile(gctx, path)
			switch {
			case err == nil:
				atomic.AddInt32(&opened, 1)
			case errors.Is(err, ErrAlreadyOpen):
				atomic.AddInt32(&skipped, 1)
			case errors.Is(err, ErrShutdown):
				return err
			default:
				atomic.AddInt32(&failed, 1)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
				mu.Unlock()
			}
			return nil
		})
	}

	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	stats.FilesOpened = int(opened)
	stats.FilesSkipped = int(skipped)
	stats.FilesFailed = int(failed)
	stats.Duration = time.Since(start)

	if err != nil {
		return stats, err
	}
	ws.log.Infof("loaded %s: %d opened, %d skipped, %d failed in %s",
		root, stats.FilesOpened, stats.FilesSkipped, stats.FilesFailed, stats.Duration)
	return stats, nil
}

// discoverFiles finds the Go files under root
func discoverFiles(root string, opts *LoadOptions) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if !opts.IncludeVendor && d.Name() == "vendor" {
				return filepath.SkipDir
			}
			if strings.HasPrefix(d.Name(), ".") || d.Name() == "testdata" {
				return filepath.SkipDir
			}
			return nil
		}

		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		if !opts.IncludeTests && strings.HasSuffix(path, "_test.go") {
			return nil
		}

		files = append(files, path)
		return nil
	})

	return files, err
}
