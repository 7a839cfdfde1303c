// Package lexer turns GP-λ source text into a stream of tokens, following
// spec.md §4.1. It is grounded on tawago's internal/lexer package: a
// bufio.Reader-backed scanner that tracks (line, column) by hand and
// panics with a diag.Diagnostic on malformed input, to be recovered by the
// caller.
package lexer

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"unicode"

	"github.com/coreos/pkg/capnslog"

	"github.com/ReinoutWW/gplambda/internal/diag"
	"github.com/ReinoutWW/gplambda/internal/token"
)

var log = capnslog.NewPackageLogger("github.com/ReinoutWW/gplambda", "gplc/lexer")

// Lexer scans one rune at a time from the underlying reader, skipping
// whitespace and comments, and yielding classified tokens.
type Lexer struct {
	pos    token.Position
	reader *bufio.Reader
	peeked *token.Token
}

// NewLexer constructs a Lexer over reader. A UTF-8 byte-order mark at the
// start of the stream, if present, is skipped (spec.md §6).
func NewLexer(reader io.Reader) *Lexer {
	br := bufio.NewReader(reader)
	skipBOM(br)
	return &Lexer{
		pos:    token.Position{Line: 1, Column: 1},
		reader: br,
	}
}

func skipBOM(r *bufio.Reader) {
	bom, _, err := r.ReadRune()
	if err != nil {
		return
	}
	if bom != '\uFEFF' {
		r.UnreadRune()
	}
}

func (l *Lexer) here() token.Position { return l.pos }

func (l *Lexer) advance() (rune, error) {
	r, _, err := l.reader.ReadRune()
	if err != nil {
		return 0, err
	}
	if r == '\n' {
		l.pos.Line++
		l.pos.Column = 1
	} else {
		l.pos.Column++
	}
	return r, nil
}

func (l *Lexer) backup(r rune) {
	if err := l.reader.UnreadRune(); err != nil {
		panic(err)
	}
	if r == '\n' {
		l.pos.Line--
	} else {
		l.pos.Column--
	}
}

func (l *Lexer) peekRune() (rune, bool) {
	r, _, err := l.reader.ReadRune()
	if err != nil {
		return 0, false
	}
	l.reader.UnreadRune()
	return r, true
}

func single(k token.Kind, pos token.Position, lit string) token.Token {
	return token.Token{Kind: k, Span: token.SpanAt(pos), Literal: lit}
}

// Peek returns the next token without consuming it.
func (l *Lexer) Peek() token.Token {
	if l.peeked == nil {
		t := l.Lex()
		l.peeked = &t
	}
	return *l.peeked
}

// Lex returns and consumes the next token. At end of input it returns a
// token.EOF token forever after.
func (l *Lexer) Lex() token.Token {
	if l.peeked != nil {
		t := *l.peeked
		l.peeked = nil
		return t
	}

	for {
		start := l.here()
		r, err := l.advance()
		if err != nil {
			return single(token.EOF, start, "")
		}

		switch {
		case r == ' ' || r == '\t' || r == '\r' || r == '\n':
			continue
		case r == '/':
			if consumed := l.trySkipComment(); consumed {
				continue
			}
			return single(token.SLASH, start, "/")
		case r == '"':
			return l.lexString(start)
		case unicode.IsDigit(r):
			l.backup(r)
			return l.lexInt()
		case isIdentStart(r):
			l.backup(r)
			return l.lexIdent()
		}

		if tok, ok := l.lexOperator(r, start); ok {
			return tok
		}

		panic(diag.Syntaxf(start, "unexpected character %q", r))
	}
}

// trySkipComment consumes a line or block comment if one starts at the
// current position (a '/' has already been consumed). It returns false,
// consuming nothing more, if no comment follows; the '/' stays consumed
// and the caller emits it as a SLASH token.
func (l *Lexer) trySkipComment() bool {
	r, ok := l.peekRune()
	if !ok {
		return false
	}

	switch r {
	case '/':
		l.advance()
		for {
			r, err := l.advance()
			if err != nil || r == '\n' {
				return true
			}
		}
	case '*':
		l.advance()
		openPos := l.here()
		prev := rune(0)
		for {
			r, err := l.advance()
			if err != nil {
				panic(diag.Syntaxf(openPos, "unterminated block comment"))
			}
			if prev == '*' && r == '/' {
				return true
			}
			prev = r
		}
	default:
		return false
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentCont(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

func (l *Lexer) lexIdent() token.Token {
	start := l.here()
	var lit []rune
	for {
		r, err := l.advance()
		if err != nil {
			break
		}
		if !isIdentCont(r) {
			l.backup(r)
			break
		}
		lit = append(lit, r)
	}
	text := string(lit)
	kind, ok := token.Keywords[text]
	if !ok {
		kind = token.IDENT
	}
	return token.Token{Kind: kind, Span: token.Span{From: start, To: l.here()}, Literal: text}
}

func (l *Lexer) lexInt() token.Token {
	start := l.here()
	var lit []rune
	for {
		r, err := l.advance()
		if err != nil {
			break
		}
		if !unicode.IsDigit(r) {
			l.backup(r)
			break
		}
		lit = append(lit, r)
	}
	text := string(lit)
	if v, err := strconv.ParseInt(text, 10, 64); err != nil || v > math.MaxInt32 || v < math.MinInt32 {
		panic(diag.Syntaxf(start, "integer literal %q overflows a signed 32-bit integer", text))
	}
	return token.Token{Kind: token.INT, Span: token.Span{From: start, To: l.here()}, Literal: text}
}

// lexString consumes a string literal. The opening quote has already been
// read; the returned literal's text is the raw source between the quotes,
// escapes untouched — unescaping is a one-time AST-builder responsibility
// per spec.md §4.3.
func (l *Lexer) lexString(start token.Position) token.Token {
	var lit []rune
	for {
		r, err := l.advance()
		if err != nil {
			panic(diag.Syntaxf(start, "unterminated string literal"))
		}
		switch r {
		case '"':
			return token.Token{Kind: token.STRING, Span: token.Span{From: start, To: l.here()}, Literal: string(lit)}
		case '\n':
			panic(diag.Syntaxf(l.here(), "unescaped newline in string literal"))
		case '\\':
			esc, err := l.advance()
			if err != nil {
				panic(diag.Syntaxf(start, "unterminated string literal"))
			}
			lit = append(lit, '\\', esc)
		default:
			lit = append(lit, r)
		}
	}
}

func (l *Lexer) lexOperator(r rune, start token.Position) (token.Token, bool) {
	two := func(second rune, twoKind, oneKind token.Kind) (token.Token, bool) {
		if n, ok := l.peekRune(); ok && n == second {
			l.advance()
			return token.Token{Kind: twoKind, Span: token.Span{From: start, To: l.here()}, Literal: string(r) + string(second)}, true
		}
		return single(oneKind, start, string(r)), true
	}

	switch r {
	case '(':
		return single(token.LPAREN, start, "("), true
	case ')':
		return single(token.RPAREN, start, ")"), true
	case '{':
		return single(token.LBRACE, start, "{"), true
	case '}':
		return single(token.RBRACE, start, "}"), true
	case ';':
		return single(token.SEMI, start, ";"), true
	case ',':
		return single(token.COMMA, start, ","), true
	case ':':
		return single(token.COLON, start, ":"), true
	case '.':
		return single(token.DOT, start, "."), true
	case '+':
		return single(token.PLUS, start, "+"), true
	case '*':
		return single(token.STAR, start, "*"), true
	case '%':
		return single(token.PERCENT, start, "%"), true
	case '-':
		return two('>', token.ARROW, token.MINUS)
	case '=':
		if n, ok := l.peekRune(); ok && n == '>' {
			l.advance()
			return token.Token{Kind: token.FATARROW, Span: token.Span{From: start, To: l.here()}, Literal: "=>"}, true
		}
		return two('=', token.EQ, token.ASSIGN)
	case '!':
		return two('=', token.NE, token.BANG)
	case '<':
		return two('=', token.LE, token.LT)
	case '>':
		return two('=', token.GE, token.GT)
	case '&':
		if n, ok := l.peekRune(); ok && n == '&' {
			l.advance()
			return token.Token{Kind: token.AND, Span: token.Span{From: start, To: l.here()}, Literal: "&&"}, true
		}
		panic(diag.Syntaxf(start, "unexpected character %q, expected '&&'", r))
	case '|':
		if n, ok := l.peekRune(); ok && n == '|' {
			l.advance()
			return token.Token{Kind: token.OR, Span: token.Span{From: start, To: l.here()}, Literal: "||"}, true
		}
		panic(diag.Syntaxf(start, "unexpected character %q, expected '||'", r))
	}
	return token.Token{}, false
}

// All lexes the entire remaining input into a token slice, ending with a
// single EOF token. The parser buffers tokens this way so it can look
// arbitrarily far ahead to disambiguate a parenthesized lambda parameter
// list from a parenthesized expression (spec.md §4.2).
func (l *Lexer) All() []token.Token {
	var toks []token.Token
	for {
		t := l.Lex()
		toks = append(toks, t)
		if t.Kind == token.EOF {
			log.Debugf("lexed %d tokens", len(toks))
			return toks
		}
	}
}
