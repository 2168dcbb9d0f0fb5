package lsp

import (
	"fmt"
	"net/url"
	"path/filepath"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/dshills/livedoc/internal/document"
	"github.com/dshills/livedoc/pkg/types"
)

func uriToPath(uri protocol.DocumentUri) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("failed to parse uri: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported uri scheme %q", u.Scheme)
	}
	return filepath.Clean(filepath.FromSlash(u.Path)), nil
}

func pathToURI(path string) protocol.DocumentUri {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

func toChanges(events []any) ([]document.Change, error) {
	changes := make([]document.Change, 0, len(events))
	for _, raw := range events {
		switch event := raw.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			changes = append(changes, document.Change{Text: event.Text})
		case protocol.TextDocumentContentChangeEvent:
			change := document.Change{Text: event.Text}
			if event.Range != nil {
				change.Range = &document.Range{
					Start: document.Position{Line: int(event.Range.Start.Line), Character: int(event.Range.Start.Character)},
					End:   document.Position{Line: int(event.Range.End.Line), Character: int(event.Range.End.Character)},
				}
			}
			changes = append(changes, change)
		default:
			return nil, fmt.Errorf("unexpected change event type %T", raw)
		}
	}
	return changes, nil
}

// toPosition converts a 1-based source position to a 0-based protocol one
func toPosition(p types.Position) protocol.Position {
	return protocol.Position{
		Line:      protocol.UInteger(max(p.Line-1, 0)),
		Character: protocol.UInteger(max(p.Column-1, 0)),
	}
}

func toDiagnostics(errs []types.ParseError) []protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	source := lsName

	diagnostics := make([]protocol.Diagnostic, 0, len(errs))
	for _, e := range errs {
		pos := toPosition(types.Position{Line: e.Line, Column: e.Column})
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    protocol.Range{Start: pos, End: pos},
			Severity: &severity,
			Source:   &source,
			Message:  e.Message,
		})
	}
	return diagnostics
}

var symbolKinds = map[types.SymbolKind]protocol.SymbolKind{
	types.KindFunction:  protocol.SymbolKindFunction,
	types.KindMethod:    protocol.SymbolKindMethod,
	types.KindStruct:    protocol.SymbolKindStruct,
	types.KindInterface: protocol.SymbolKindInterface,
	types.KindType:      protocol.SymbolKindClass,
	types.KindConst:     protocol.SymbolKindConstant,
	types.KindVar:       protocol.SymbolKindVariable,
	types.KindField:     protocol.SymbolKindField,
}

func toSymbol(sym types.Symbol) protocol.DocumentSymbol {
	kind, ok := symbolKinds[sym.Kind]
	if !ok {
		kind = protocol.SymbolKindVariable
	}

	r := protocol.Range{Start: toPosition(sym.Start), End: toPosition(sym.End)}
	out := protocol.DocumentSymbol{
		Name:           sym.Name,
		Kind:           kind,
		Range:          r,
		SelectionRange: r,
	}
	if sym.Signature != "" {
		detail := sym.Signature
		out.Detail = &detail
	}
	return out
}

func toDocumentSymbols(model *types.Model) []protocol.DocumentSymbol {
	symbols := make([]protocol.DocumentSymbol, 0, len(model.Declarations))
	for _, decl := range model.Declarations {
		sym := toSymbol(decl.Symbol)
		for _, child := range decl.Children {
			sym.Children = append(sym.Children, toSymbol(child))
		}
		symbols = append(symbols, sym)
	}
	return symbols
}
