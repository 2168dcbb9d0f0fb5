package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/livedoc/pkg/types"
)

var (
	// ErrBindingFailed is returned when a document cannot be bound to an engine
	ErrBindingFailed = errors.New("cannot bind parse engine")
	// ErrUnknownEngine is returned for an engine name that is not registered
	ErrUnknownEngine = errors.New("unknown parse engine")
)

// Engine is the contract every parse engine satisfies
type Engine interface {
	Parse(ctx context.Context, path string, content []byte) (*types.ParseResult, error)
	Name() string
}

// Module describes the go.mod that encloses a document
type Module struct {
	Root      string // Directory containing go.mod
	Path      string // Module path
	GoVersion string
}

// FindModule walks up from dir looking for a go.mod file. It returns nil
// without error when the document lives outside any module.
func FindModule(dir string) (*Module, error) {
	for {
		goModPath := filepath.Join(dir, "go.mod")
		info, err := parseGoMod(goModPath)
		if err == nil {
			return &Module{Root: dir, Path: info.Module, GoVersion: info.GoVersion}, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", goModPath, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Bind resolves the project context of the document at path and returns an
// engine of the named kind bound to it. An empty name selects the AST engine.
func Bind(name, path string) (Engine, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: document has no path", ErrBindingFailed)
	}
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: %q is not an absolute path", ErrBindingFailed, path)
	}

	module, err := FindModule(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBindingFailed, err)
	}

	switch name {
	case "", EngineAST:
		return &Parser{module: module}, nil
	case EngineTreeSitter:
		ts, err := NewTreeSitter()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBindingFailed, err)
		}
		ts.module = module
		return ts, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
}

// goModInfo contains parsed go.mod information
type goModInfo struct {
	Module    string
	GoVersion string
}

// parseGoMod extracts basic info from go.mod file
func parseGoMod(goModPath string) (*goModInfo, error) {
	content, err := os.ReadFile(goModPath)
	if err != nil {
		return nil, err
	}

	info := &goModInfo{}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "module ") {
			info.Module = strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "module")), `"`)
		} else if strings.HasPrefix(line, "go ") {
			info.GoVersion = strings.TrimSpace(strings.TrimPrefix(line, "go"))
		}
	}

	return info, nil
}
