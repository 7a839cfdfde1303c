package ast

import "strings"

// PrimKind is the tag of a Primitive type (spec.md §3).
type PrimKind int

const (
	Int PrimKind = iota
	String
	Bool
	Void
)

func (p PrimKind) String() string {
	switch p {
	case Int:
		return "Int"
	case String:
		return "String"
	case Bool:
		return "Bool"
	case Void:
		return "Void"
	default:
		return "?"
	}
}

// Type is the sum of Primitive and Function types spec.md §3 defines.
// Equality is structural; there is no subtyping and no implicit
// conversion.
type Type interface {
	isType()
	String() string
	Equal(Type) bool
}

// Primitive is one of Int, String, Bool, Void. Equality is by tag.
type Primitive struct {
	Kind PrimKind
}

func (Primitive) isType() {}

func (p Primitive) String() string { return p.Kind.String() }

func (p Primitive) Equal(other Type) bool {
	o, ok := other.(Primitive)
	return ok && o.Kind == p.Kind
}

// Function is Func<P1, ..., Pn, R>: an ordered parameter list and a
// return type. Equality is structural and order-sensitive.
type Function struct {
	Params []Type
	Return Type
}

func (Function) isType() {}

func (f Function) String() string {
	parts := make([]string, 0, len(f.Params)+1)
	for _, p := range f.Params {
		parts = append(parts, p.String())
	}
	ret := "Void"
	if f.Return != nil {
		ret = f.Return.String()
	}
	parts = append(parts, ret)
	return "Func<" + strings.Join(parts, ", ") + ">"
}

func (f Function) Equal(other Type) bool {
	o, ok := other.(Function)
	if !ok || len(o.Params) != len(f.Params) {
		return false
	}
	for i, p := range f.Params {
		if !p.Equal(o.Params[i]) {
			return false
		}
	}
	if f.Return == nil || o.Return == nil {
		return f.Return == nil && o.Return == nil
	}
	return f.Return.Equal(o.Return)
}

// Convenience constructors used throughout the analyzer and emitter.
var (
	IntType    Type = Primitive{Kind: Int}
	StringType Type = Primitive{Kind: String}
	BoolType   Type = Primitive{Kind: Bool}
	VoidType   Type = Primitive{Kind: Void}
)

// errorType is the sentinel the analyzer substitutes for an expression
// whose real type could not be determined (an unresolved name, a
// non-function call target, ...), so that one root-cause diagnostic
// does not breed a cascade of secondary ones about the types it flows
// into. It is only ever produced and consumed by internal/sema.
type errorType struct{}

func (errorType) isType()             {}
func (errorType) String() string      { return "<error>" }
func (errorType) Equal(other Type) bool { return true }

var ErrorType Type = errorType{}
