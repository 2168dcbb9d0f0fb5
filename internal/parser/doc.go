// Package parser provides the parse engines that turn a Go source buffer into a
// types.ParseResult.
//
// Engines are pure functions of (path, content): they hold no state between
// calls and never look at the live buffer themselves. The reparse coordinator
// treats them as black boxes.
//
// # Engines
//
// Two engines are available:
//   - "ast" (default): go/parser based, exact positions, doc comments and
//     struct fields; recovers declarations from a partial AST on syntax errors
//   - "treesitter": tree-sitter Go grammar, local error recovery so later
//     declarations survive a broken one; needs a cgo build
//
// # Basic Usage
//
//	engine, err := parser.Bind("ast", "/src/app/main.go")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := engine.Parse(ctx, "/src/app/main.go", content)
//	for _, symbol := range result.Symbols {
//	    fmt.Printf("Found %s: %s\n", symbol.Kind, symbol.Name)
//	}
//
// # Binding
//
// Bind resolves the project context of a document before any parse happens: it
// walks up to the nearest go.mod and records the module path on every result.
// Documents without an absolute path cannot be bound and fail immediately with
// ErrBindingFailed.
//
// # Error Handling
//
// Syntax errors are data, not failures:
//
//	result, err := engine.Parse(ctx, path, content)
//	// err is nil even for syntax errors
//
//	if result.HasErrors() {
//	    for _, parseErr := range result.Errors {
//	        fmt.Printf("%d:%d %s\n", parseErr.Line, parseErr.Column, parseErr.Message)
//	    }
//	}
//
// Parse returns an error only when the context is done or the engine itself
// cannot run.
package parser
