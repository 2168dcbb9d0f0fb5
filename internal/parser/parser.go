package parser

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"os"
	"strings"
	"time"

	"github.com/dshills/livedoc/pkg/types"
)

// EngineAST names the go/ast based engine
const EngineAST = "ast"

// Parser extracts symbols, imports and diagnostics from Go source held in memory.
//
// A Parser keeps no state between calls: every Parse uses its own token.FileSet,
// so one instance can serve any number of reparses of a long-lived buffer.
type Parser struct {
	module *Module
}

// New creates a Parser that is not bound to any module
func New() *Parser {
	return &Parser{}
}

// Name returns the engine name recorded on results
func (p *Parser) Name() string {
	return EngineAST
}

// Module returns the module the parser is bound to, or nil
func (p *Parser) Module() *Module {
	return p.module
}

// Parse parses content as the Go file at path.
//
// Syntax errors are not failures: they are recorded in the result together with
// whatever declarations could be recovered from the partial AST. An error is
// returned only when the context is done.
func (p *Parser) Parse(ctx context.Context, path string, content []byte) (*types.ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &types.ParseResult{
		Path:        path,
		LineCount:   bytes.Count(content, []byte("\n")) + 1,
		ContentHash: sha256.Sum256(content),
		Engine:      EngineAST,
	}
	if p.module != nil {
		result.ModuleName = p.module.Path
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments|parser.AllErrors)
	if err != nil {
		var list scanner.ErrorList
		if errors.As(err, &list) {
			for _, e := range list {
				result.AddError(path, e.Pos.Line, e.Pos.Column, "syntax error: "+e.Msg)
			}
		} else {
			result.AddError(path, 0, 0, fmt.Sprintf("syntax error: %v", err))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// parser.ParseFile returns a partial AST alongside syntax errors
	if file != nil {
		if file.Name != nil {
			result.PackageName = file.Name.Name
		}

		result.Imports = extractImports(file)

		extractor := &symbolExtractor{
			fset:        fset,
			packageName: result.PackageName,
			symbols:     make([]types.Symbol, 0),
		}
		for _, decl := range file.Decls {
			extractor.visit(decl)
		}
		result.Symbols = extractor.symbols
	}

	result.Duration = time.Since(start)
	return result, nil
}

// ParseFile reads a Go source file from disk and parses it
func (p *Parser) ParseFile(filePath string) (*types.ParseResult, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return p.Parse(context.Background(), filePath, content)
}

// extractImports extracts import statements from the AST
func extractImports(file *ast.File) []types.Import {
	imports := make([]types.Import, 0, len(file.Imports))

	for _, imp := range file.Imports {
		if imp.Path == nil {
			continue
		}
		importSpec := types.Import{
			Path: strings.Trim(imp.Path.Value, "\"`"),
		}
		if imp.Name != nil {
			importSpec.Alias = imp.Name.Name
		}
		imports = append(imports, importSpec)
	}

	return imports
}

// symbolExtractor collects symbols from top-level declarations
type symbolExtractor struct {
	fset        *token.FileSet
	packageName string
	symbols     []types.Symbol
}

func (e *symbolExtractor) visit(decl ast.Decl) {
	switch d := decl.(type) {
	case *ast.FuncDecl:
		e.extractFunction(d)
	case *ast.GenDecl:
		for _, spec := range d.Specs {
			switch s := spec.(type) {
			case *ast.TypeSpec:
				e.extractTypeSpec(s, d.Doc)
			case *ast.ValueSpec:
				e.extractValueSpec(s, d.Doc, d.Tok)
			}
		}
	}
}

// extractFunction extracts function and method declarations
func (e *symbolExtractor) extractFunction(funcDecl *ast.FuncDecl) {
	if funcDecl.Name == nil {
		return
	}

	sym := types.Symbol{
		Name:       funcDecl.Name.Name,
		Kind:       types.KindFunction,
		Package:    e.packageName,
		DocComment: docText(funcDecl.Doc),
		Scope:      scopeOf(funcDecl.Name.Name),
		Start:      e.position(funcDecl.Pos()),
		End:        e.position(funcDecl.End()),
	}

	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		sym.Kind = types.KindMethod
		sym.Receiver = receiverName(funcDecl.Recv.List[0].Type)
	}

	sym.Signature = functionSignature(funcDecl)
	e.symbols = append(e.symbols, sym)
}

// extractTypeSpec extracts struct, interface, and named type declarations
func (e *symbolExtractor) extractTypeSpec(typeSpec *ast.TypeSpec, doc *ast.CommentGroup) {
	name := typeSpec.Name.Name
	if typeSpec.Doc != nil {
		doc = typeSpec.Doc
	}

	sym := types.Symbol{
		Name:       name,
		Package:    e.packageName,
		DocComment: docText(doc),
		Scope:      scopeOf(name),
		Start:      e.position(typeSpec.Pos()),
		End:        e.position(typeSpec.End()),
	}

	switch t := typeSpec.Type.(type) {
	case *ast.StructType:
		sym.Kind = types.KindStruct
		sym.Signature = fmt.Sprintf("type %s struct { ... } // %d fields", name, t.Fields.NumFields())
	case *ast.InterfaceType:
		sym.Kind = types.KindInterface
		sym.Signature = fmt.Sprintf("type %s interface { ... } // %d methods", name, t.Methods.NumFields())
	default:
		sym.Kind = types.KindType
		if typeSpec.Assign.IsValid() {
			sym.Signature = fmt.Sprintf("type %s = %s", name, exprString(typeSpec.Type))
		} else {
			sym.Signature = fmt.Sprintf("type %s %s", name, exprString(typeSpec.Type))
		}
	}

	e.symbols = append(e.symbols, sym)

	if structType, ok := typeSpec.Type.(*ast.StructType); ok && structType.Fields != nil {
		for _, field := range structType.Fields.List {
			for _, fieldName := range field.Names {
				e.symbols = append(e.symbols, types.Symbol{
					Name:      fieldName.Name,
					Kind:      types.KindField,
					Package:   e.packageName,
					Parent:    name,
					Scope:     scopeOf(fieldName.Name),
					Start:     e.position(field.Pos()),
					End:       e.position(field.End()),
					Signature: fmt.Sprintf("%s %s", fieldName.Name, exprString(field.Type)),
				})
			}
		}
	}
}

// extractValueSpec extracts const and var declarations
func (e *symbolExtractor) extractValueSpec(valueSpec *ast.ValueSpec, doc *ast.CommentGroup, tok token.Token) {
	kind := types.KindVar
	if tok == token.CONST {
		kind = types.KindConst
	}
	if valueSpec.Doc != nil {
		doc = valueSpec.Doc
	}

	for _, name := range valueSpec.Names {
		if name.Name == "_" {
			continue
		}
		sym := types.Symbol{
			Name:       name.Name,
			Kind:       kind,
			Package:    e.packageName,
			DocComment: docText(doc),
			Scope:      scopeOf(name.Name),
			Start:      e.position(valueSpec.Pos()),
			End:        e.position(valueSpec.End()),
		}

		switch {
		case valueSpec.Type != nil:
			sym.Signature = fmt.Sprintf("%s %s", name.Name, exprString(valueSpec.Type))
		case len(valueSpec.Values) > 0:
			sym.Signature = fmt.Sprintf("%s = ...", name.Name)
		default:
			sym.Signature = name.Name
		}

		e.symbols = append(e.symbols, sym)
	}
}

func (e *symbolExtractor) position(pos token.Pos) types.Position {
	position := e.fset.Position(pos)
	return types.Position{
		Line:   position.Line,
		Column: position.Column,
	}
}

// receiverName extracts the receiver type name from a method, dropping
// pointers and type parameters
func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverName(t.X)
	case *ast.IndexExpr:
		return receiverName(t.X)
	case *ast.IndexListExpr:
		return receiverName(t.X)
	case *ast.Ident:
		return t.Name
	}
	return ""
}

// functionSignature builds a function signature string
func functionSignature(funcDecl *ast.FuncDecl) string {
	var sig strings.Builder

	sig.WriteString("func ")
	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		sig.WriteString("(")
		sig.WriteString(exprString(funcDecl.Recv.List[0].Type))
		sig.WriteString(") ")
	}

	sig.WriteString(funcDecl.Name.Name)
	sig.WriteString("(")
	sig.WriteString(fieldListString(funcDecl.Type.Params))
	sig.WriteString(")")

	if results := fieldListString(funcDecl.Type.Results); results != "" {
		if funcDecl.Type.Results.NumFields() > 1 || len(funcDecl.Type.Results.List[0].Names) > 0 {
			sig.WriteString(" (" + results + ")")
		} else {
			sig.WriteString(" " + results)
		}
	}

	return sig.String()
}

// fieldListString converts a field list to a string representation
func fieldListString(fieldList *ast.FieldList) string {
	if fieldList == nil || len(fieldList.List) == 0 {
		return ""
	}

	var parts []string
	for _, field := range fieldList.List {
		typeStr := exprString(field.Type)
		if len(field.Names) == 0 {
			parts = append(parts, typeStr)
			continue
		}
		for _, name := range field.Names {
			parts = append(parts, name.Name+" "+typeStr)
		}
	}

	return strings.Join(parts, ", ")
}

// exprString renders a type expression in a compact form
func exprString(expr ast.Expr) string {
	switch t := expr.(type) {
	case nil:
		return ""
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprString(t.X)
	case *ast.ArrayType:
		if t.Len != nil {
			return "[...]" + exprString(t.Elt)
		}
		return "[]" + exprString(t.Elt)
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", exprString(t.Key), exprString(t.Value))
	case *ast.ChanType:
		return "chan " + exprString(t.Value)
	case *ast.FuncType:
		return "func(...)"
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.StructType:
		return "struct{...}"
	case *ast.SelectorExpr:
		return exprString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + exprString(t.Elt)
	case *ast.IndexExpr:
		return exprString(t.X) + "[" + exprString(t.Index) + "]"
	default:
		return "..."
	}
}

func docText(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}

func scopeOf(name string) types.SymbolScope {
	if token.IsExported(name) {
		return types.ScopeExported
	}
	return types.ScopeUnexported
}
