//go:build cgo

package parser

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/dshills/livedoc/pkg/types"
)

// EngineTreeSitter names the tree-sitter based engine
const EngineTreeSitter = "treesitter"

// TreeSitter parses Go buffers with the tree-sitter Go grammar. It recovers
// from syntax errors locally, so declarations after a broken one survive.
type TreeSitter struct {
	lang   *sitter.Language
	module *Module
}

// NewTreeSitter creates a tree-sitter engine
func NewTreeSitter() (*TreeSitter, error) {
	return &TreeSitter{lang: golang.GetLanguage()}, nil
}

// Name returns the engine name recorded on results
func (ts *TreeSitter) Name() string {
	return EngineTreeSitter
}

// Parse parses content with a fresh tree-sitter parser.
func (ts *TreeSitter) Parse(ctx context.Context, path string, content []byte) (*types.ParseResult, error) {
	start := time.Now()

	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(ts.lang)

	tree, err := p.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	result := &types.ParseResult{
		Path:        path,
		LineCount:   bytes.Count(content, []byte("\n")) + 1,
		ContentHash: sha256.Sum256(content),
		Engine:      EngineTreeSitter,
	}
	if ts.module != nil {
		result.ModuleName = ts.module.Path
	}

	root := tree.RootNode()
	w := &sitterWalker{src: content, result: result}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		w.declaration(root.NamedChild(i))
	}
	if root.HasError() {
		w.diagnostics(root)
	}

	result.Duration = time.Since(start)
	return result, nil
}

type sitterWalker struct {
	src    []byte
	result *types.ParseResult
}

func (w *sitterWalker) declaration(n *sitter.Node) {
	switch n.Type() {
	case "package_clause":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c.Type() == "package_identifier" {
				w.result.PackageName = c.Content(w.src)
			}
		}
	case "import_declaration":
		w.imports(n)
	case "function_declaration":
		w.add(n, n.ChildByFieldName("name"), types.KindFunction, "")
	case "method_declaration":
		w.add(n, n.ChildByFieldName("name"), types.KindMethod, w.receiver(n))
	case "type_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			spec := n.NamedChild(i)
			if spec.Type() != "type_spec" && spec.Type() != "type_alias" {
				continue
			}
			kind := types.KindType
			if t := spec.ChildByFieldName("type"); t != nil {
				switch t.Type() {
				case "struct_type":
					kind = types.KindStruct
				case "interface_type":
					kind = types.KindInterface
				}
			}
			w.add(spec, spec.ChildByFieldName("name"), kind, "")
		}
	case "const_declaration", "var_declaration":
		kind := types.KindVar
		if n.Type() == "const_declaration" {
			kind = types.KindConst
		}
		w.valueSpecs(n, kind)
	}
}

func (w *sitterWalker) valueSpecs(n *sitter.Node, kind types.SymbolKind) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "const_spec", "var_spec":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				if id := c.NamedChild(j); id.Type() == "identifier" {
					w.add(c, id, kind, "")
				}
			}
		case "var_spec_list":
			w.valueSpecs(c, kind)
		}
	}
}

func (w *sitterWalker) imports(n *sitter.Node) {
	var visit func(*sitter.Node)
	visit = func(c *sitter.Node) {
		if c.Type() == "import_spec" {
			imp := types.Import{}
			if p := c.ChildByFieldName("path"); p != nil {
				imp.Path = strings.Trim(p.Content(w.src), "\"`")
			}
			if name := c.ChildByFieldName("name"); name != nil {
				imp.Alias = name.Content(w.src)
			}
			w.result.Imports = append(w.result.Imports, imp)
			return
		}
		for i := 0; i < int(c.NamedChildCount()); i++ {
			visit(c.NamedChild(i))
		}
	}
	visit(n)
}

func (w *sitterWalker) receiver(n *sitter.Node) string {
	recv := n.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	var name string
	var visit func(*sitter.Node)
	visit = func(c *sitter.Node) {
		if name != "" {
			return
		}
		if c.Type() == "type_identifier" {
			name = c.Content(w.src)
			return
		}
		for i := 0; i < int(c.NamedChildCount()); i++ {
			visit(c.NamedChild(i))
		}
	}
	if param := recv.NamedChild(0); param != nil {
		if t := param.ChildByFieldName("type"); t != nil {
			visit(t)
		}
	}
	return name
}

func (w *sitterWalker) add(decl, name *sitter.Node, kind types.SymbolKind, receiver string) {
	if name == nil {
		return
	}
	ident := name.Content(w.src)
	if ident == "" || ident == "_" {
		return
	}
	signature := strings.SplitN(decl.Content(w.src), "\n", 2)[0]
	w.result.Symbols = append(w.result.Symbols, types.Symbol{
		Name:      ident,
		Kind:      kind,
		Package:   w.result.PackageName,
		Signature: strings.TrimSuffix(strings.TrimSpace(signature), "{"),
		Scope:     scopeOf(ident),
		Receiver:  receiver,
		Start:     pointPosition(decl.StartPoint()),
		End:       pointPosition(decl.EndPoint()),
	})
}

func (w *sitterWalker) diagnostics(n *sitter.Node) {
	switch {
	case n.IsMissing():
		pos := pointPosition(n.StartPoint())
		w.result.AddError(w.result.Path, pos.Line, pos.Column, fmt.Sprintf("syntax error: missing %s", n.Type()))
		return
	case n.IsError():
		pos := pointPosition(n.StartPoint())
		w.result.AddError(w.result.Path, pos.Line, pos.Column, "syntax error: unexpected input")
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c.HasError() || c.IsMissing() {
			w.diagnostics(c)
		}
	}
}

func pointPosition(p sitter.Point) types.Position {
	return types.Position{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}
