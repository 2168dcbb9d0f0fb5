package types

import (
	"errors"
	"path/filepath"
)

// Domain errors for type validation
var (
	ErrMissingPath    = errors.New("document path is required")
	ErrRelativePath   = errors.New("document path must be absolute")
	ErrInvalidVersion = errors.New("result version must be positive")
)

// ValidateIdentity checks that a result identifies the buffer it came from
func (pr *ParseResult) ValidateIdentity() error {
	if pr.Path == "" {
		return ErrMissingPath
	}
	if !filepath.IsAbs(pr.Path) {
		return ErrRelativePath
	}
	if pr.Version == 0 {
		return ErrInvalidVersion
	}
	return nil
}
