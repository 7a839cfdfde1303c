// Package sema is the combined analyzer (spec.md §4.4, §4.5): a single
// traversal of the AST that performs both name resolution and type
// checking, accumulating two separate diagnostic lists. The scope chain
// design follows isaacev-Plaid's frontend.Scope (parent link, per-scope
// symbol map, lookup walking up to the root) adapted to GP-λ's simpler
// symbol model — there is no upvalue bookkeeping here
// because the emitter lifts captures explicitly rather than at resolve
// time (see DESIGN.md).
package sema

import (
	"github.com/ReinoutWW/gplambda/internal/ast"
	"github.com/ReinoutWW/gplambda/internal/token"
)

// Kind tags why a scope exists (spec.md §3's Scope tag).
type Kind int

const (
	Global Kind = iota
	Function
	Block
	Lambda
)

func (k Kind) String() string {
	switch k {
	case Global:
		return "Global"
	case Function:
		return "Function"
	case Block:
		return "Block"
	case Lambda:
		return "Lambda"
	default:
		return "?"
	}
}

// SymbolTag distinguishes the three symbol flavors spec.md §3 lists.
type SymbolTag int

const (
	VariableSymbol SymbolTag = iota
	FunctionSymbol
	BuiltinSymbol
)

// Symbol is a named entity resolvable within a scope chain.
type Symbol struct {
	Name        string
	Type        ast.Type
	Pos         token.Position
	Tag         SymbolTag
	Initialized bool
	Used        bool
	// Params is set for FunctionSymbol/BuiltinSymbol: the declared
	// parameter list, kept alongside Type so each parameter's name is
	// available, not just the whole function type.
	Params []ast.Param
	Defined bool
}

// Scope is a bag mapping name to symbol, with a parent link and a kind
// tag (spec.md §3). The chain forms a tree rooted at the single Global
// scope a Table owns.
type Scope struct {
	kind    Kind
	parent  *Scope
	symbols map[string]*Symbol
}

func newScope(kind Kind, parent *Scope) *Scope {
	return &Scope{kind: kind, parent: parent, symbols: make(map[string]*Symbol)}
}

// Kind reports this scope's tag.
func (s *Scope) Kind() Kind { return s.kind }

// Parent returns the enclosing scope, or nil at Global.
func (s *Scope) Parent() *Scope { return s.parent }

// IsDefinedLocally tests only the current scope (spec.md §4.4).
func (s *Scope) IsDefinedLocally(name string) bool {
	_, ok := s.symbols[name]
	return ok
}

// Resolve searches current → … → global, returning the first hit, or
// nil if the name is undefined anywhere in the chain (spec.md §4.4).
func (s *Scope) Resolve(name string) *Symbol {
	for sc := s; sc != nil; sc = sc.parent {
		if sym, ok := sc.symbols[name]; ok {
			return sym
		}
	}
	return nil
}

// define inserts sym into this scope. The caller must have already
// checked IsDefinedLocally; define does not itself guard against
// redefinition so that Table.Define can report the collision with the
// original symbol's position.
func (s *Scope) define(sym *Symbol) {
	s.symbols[sym.Name] = sym
}

// Table owns the scope tree (spec.md §3, §4.4). It is created once per
// compilation and discarded when analysis finishes (spec.md §5).
type Table struct {
	global  *Scope
	current *Scope
}

// NewTable builds a Table with a single Global scope pre-seeded with
// the three built-in function symbols spec.md §3 names.
func NewTable() *Table {
	global := newScope(Global, nil)
	t := &Table{global: global, current: global}
	for _, b := range builtins() {
		global.define(b)
	}
	return t
}

// BuiltinSignatures maps each built-in's name to its function type, the
// set of built-in function types spec.md §3 mandates be pre-seeded into the global
// scope. internal/codegen reads this same table so the emitter's
// built-in function signatures can never drift from the analyzer's.
var BuiltinSignatures = map[string]ast.Function{
	"println":  {Params: []ast.Type{ast.StringType}, Return: ast.VoidType},
	"readLine": {Params: nil, Return: ast.StringType},
	"toString": {Params: []ast.Type{ast.IntType}, Return: ast.StringType},
}

func builtins() []*Symbol {
	return []*Symbol{
		{
			Name:        "println",
			Type:        BuiltinSignatures["println"],
			Tag:         BuiltinSymbol,
			Defined:     true,
			Initialized: true,
			Params:      []ast.Param{{Name: "value", Type: ast.StringType}},
		},
		{
			Name:        "readLine",
			Type:        BuiltinSignatures["readLine"],
			Tag:         BuiltinSymbol,
			Defined:     true,
			Initialized: true,
		},
		{
			Name:        "toString",
			Type:        BuiltinSignatures["toString"],
			Tag:         BuiltinSymbol,
			Defined:     true,
			Initialized: true,
			Params:      []ast.Param{{Name: "value", Type: ast.IntType}},
		},
	}
}

// Global returns the root scope.
func (t *Table) Global() *Scope { return t.global }

// Current returns the scope the analyzer is presently inside.
func (t *Table) Current() *Scope { return t.current }

// EnterScope pushes a new scope with the given tag, parent = current
// (spec.md §4.4).
func (t *Table) EnterScope(kind Kind) *Scope {
	t.current = newScope(kind, t.current)
	return t.current
}

// ExitScope pops the current scope. Calling this at Global is a
// program-invariant violation (spec.md §4.4, §7.4): it panics rather
// than returning an error because it can never be triggered by any
// user input, valid or invalid.
func (t *Table) ExitScope() {
	if t.current.parent == nil {
		panic("internal error: cannot exit global scope")
	}
	t.current = t.current.parent
}

// Define inserts symbol into the current scope. ok is false if a
// symbol with the same name already exists in that scope (spec.md
// §4.4's Redefinition outcome); existing is that prior symbol, for
// building a diagnostic that points at its original declaration.
func (t *Table) Define(sym *Symbol) (existing *Symbol, ok bool) {
	if prior, present := t.current.symbols[sym.Name]; present {
		return prior, false
	}
	t.current.define(sym)
	return nil, true
}

// Resolve delegates to the current scope's chain walk.
func (t *Table) Resolve(name string) *Symbol {
	return t.current.Resolve(name)
}

// IsDefinedLocally delegates to the current scope.
func (t *Table) IsDefinedLocally(name string) bool {
	return t.current.IsDefinedLocally(name)
}
