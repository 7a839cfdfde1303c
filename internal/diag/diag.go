// Package diag carries the compiler's error taxonomy (spec.md §7): every
// diagnostic the pipeline raises is one of Syntax, Semantic, Type or
// Internal, and every diagnostic carries the (line, column) it points at.
package diag

import (
	"fmt"
	"strings"

	"github.com/ReinoutWW/gplambda/internal/token"
)

// Category is one of the four error classes spec.md §7 defines.
type Category int

const (
	Syntax Category = iota
	Semantic
	Type
	Internal
)

func (c Category) String() string {
	switch c {
	case Syntax:
		return "Syntax error"
	case Semantic:
		return "Semantic error"
	case Type:
		return "Type error"
	case Internal:
		return "Internal compiler error"
	default:
		return "Unknown error"
	}
}

// Diagnostic is a single reported problem.
type Diagnostic struct {
	Category Category
	Pos      token.Position
	Message  string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("[%d:%d] %s: %s", d.Pos.Line, d.Pos.Column, d.Category, d.Message)
}

func New(category Category, pos token.Position, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Category: category, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func Syntaxf(pos token.Position, format string, args ...interface{}) Diagnostic {
	return New(Syntax, pos, format, args...)
}

func Semanticf(pos token.Position, format string, args ...interface{}) Diagnostic {
	return New(Semantic, pos, format, args...)
}

func Typef(pos token.Position, format string, args ...interface{}) Diagnostic {
	return New(Type, pos, format, args...)
}

func Internalf(pos token.Position, format string, args ...interface{}) Diagnostic {
	return New(Internal, pos, format, args...)
}

// List is an ordered collection of diagnostics, reported in detection
// order (spec.md §5's ordering guarantee).
type List []Diagnostic

func (l List) Error() string {
	lines := make([]string, len(l))
	for i, d := range l {
		lines[i] = d.Error()
	}
	return strings.Join(lines, "\n")
}

// HasErrors reports whether the list contains at least one diagnostic.
func (l List) HasErrors() bool {
	return len(l) > 0
}
