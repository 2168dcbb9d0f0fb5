//go:build !cgo

package parser

import (
	"context"
	"errors"

	"github.com/dshills/livedoc/pkg/types"
)

// EngineTreeSitter names the tree-sitter based engine
const EngineTreeSitter = "treesitter"

// ErrEngineUnavailable is returned when the tree-sitter engine is not compiled in
var ErrEngineUnavailable = errors.New("tree-sitter engine requires a cgo build")

// TreeSitter is unavailable without cgo
type TreeSitter struct {
	module *Module
}

// NewTreeSitter always fails in builds without cgo
func NewTreeSitter() (*TreeSitter, error) {
	return nil, ErrEngineUnavailable
}

// Name returns the engine name recorded on results
func (ts *TreeSitter) Name() string {
	return EngineTreeSitter
}

// Parse always fails in builds without cgo
func (ts *TreeSitter) Parse(ctx context.Context, path string, content []byte) (*types.ParseResult, error) {
	return nil, ErrEngineUnavailable
}
