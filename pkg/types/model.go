package types

// Declaration is a top-level symbol together with the symbols that hang off it
// (struct fields and methods declared on the type).
type Declaration struct {
	Symbol
	Children []Symbol
}

// Model is the structural view of a parsed buffer handed to observers that
// only care about the declarations, not the provenance of the parse.
type Model struct {
	Path         string
	Version      uint64
	PackageName  string
	ModuleName   string
	Imports      []Import
	Declarations []Declaration
	Diagnostics  []ParseError
}

// Model projects the result onto its structural view.
//
// Fields attach to the struct named by Symbol.Parent and methods to the type
// named by Symbol.Receiver. Methods whose receiver type is declared in another
// file of the package stay at the top level.
func (pr *ParseResult) Model() *Model {
	m := &Model{
		Path:        pr.Path,
		Version:     pr.Version,
		PackageName: pr.PackageName,
		ModuleName:  pr.ModuleName,
		Imports:     append([]Import(nil), pr.Imports...),
		Diagnostics: append([]ParseError(nil), pr.Errors...),
	}

	index := make(map[string]int)
	for _, sym := range pr.Symbols {
		if sym.Kind == KindField || sym.Kind == KindMethod {
			continue
		}
		if sym.Kind == KindStruct || sym.Kind == KindInterface || sym.Kind == KindType {
			index[sym.Name] = len(m.Declarations)
		}
		m.Declarations = append(m.Declarations, Declaration{Symbol: sym})
	}

	for _, sym := range pr.Symbols {
		var owner string
		switch sym.Kind {
		case KindField:
			owner = sym.Parent
		case KindMethod:
			owner = sym.Receiver
		default:
			continue
		}
		if i, ok := index[owner]; ok {
			m.Declarations[i].Children = append(m.Declarations[i].Children, sym)
			continue
		}
		if sym.Kind == KindMethod {
			m.Declarations = append(m.Declarations, Declaration{Symbol: sym})
		}
	}

	return m
}

// Lookup returns the top-level declaration with the given name
func (m *Model) Lookup(name string) (Declaration, bool) {
	for _, d := range m.Declarations {
		if d.Name == name {
			return d, true
		}
	}
	return Declaration{}, false
}
