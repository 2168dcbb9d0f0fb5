// Package types provides shared type definitions for livedoc.
//
// This package defines the domain types exchanged between the parse engines,
// the reparse coordinator and the transports: symbols, parse results and the
// structural model derived from them.
//
// # Core Types
//
// ParseResult is the immutable output of one parse of a buffer snapshot. Besides
// the extracted symbols and diagnostics it records which buffer version it was
// computed from and how it was produced:
//
//	result := &types.ParseResult{
//	    Path:        "/src/app/main.go",
//	    Version:     42,
//	    PackageName: "main",
//	    Mode:        types.ModeBackground,
//	}
//
// Symbol represents a Go language construct extracted from source code:
//
//	symbol := &types.Symbol{
//	    Name:      "ParseFile",
//	    Kind:      types.KindFunction,
//	    Package:   "parser",
//	    Signature: "func ParseFile(path string) (*ParseResult, error)",
//	}
//
// # Structural Model
//
// Model groups the flat symbol list into top-level declarations, attaching
// struct fields and methods to the type that owns them:
//
//	model := result.Model()
//	if decl, ok := model.Lookup("Server"); ok {
//	    for _, child := range decl.Children {
//	        fmt.Println(child.Kind, child.Name)
//	    }
//	}
//
// # Validation
//
// Symbols implement validation methods to ensure data integrity:
//
//	if err := symbol.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package types
