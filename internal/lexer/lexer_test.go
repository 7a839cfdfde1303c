package lexer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ReinoutWW/gplambda/internal/diag"
	"github.com/ReinoutWW/gplambda/internal/token"
)

func lexAll(t *testing.T, src string) []token.Token {
	t.Helper()
	return NewLexer(strings.NewReader(src)).All()
}

func kinds(toks []token.Token) []token.Kind {
	ks := make([]token.Kind, len(toks))
	for i, tok := range toks {
		ks[i] = tok.Kind
	}
	return ks
}

func TestLexerKeywordsAndPunctuation(t *testing.T) {
	toks := lexAll(t, "func main() -> Void { return; }")
	assert.Equal(t, []token.Kind{
		token.FUNC, token.IDENT, token.LPAREN, token.RPAREN, token.ARROW,
		token.VOID_TYPE, token.LBRACE, token.RETURN, token.SEMI, token.RBRACE, token.EOF,
	}, kinds(toks))
}

func TestLexerOperators(t *testing.T) {
	cases := []struct {
		src  string
		want token.Kind
	}{
		{"->", token.ARROW},
		{"=>", token.FATARROW},
		{"==", token.EQ},
		{"!=", token.NE},
		{"<=", token.LE},
		{">=", token.GE},
		{"&&", token.AND},
		{"||", token.OR},
		{"=", token.ASSIGN},
		{"<", token.LT},
		{">", token.GT},
		{"!", token.BANG},
	}
	for _, c := range cases {
		toks := lexAll(t, c.src)
		require.Len(t, toks, 2)
		assert.Equal(t, c.want, toks[0].Kind, "lexing %q", c.src)
	}
}

func TestLexerComments(t *testing.T) {
	toks := lexAll(t, "let x = 1; // trailing\n/* block\ncomment */ let y = 2;")
	assert.Equal(t, []token.Kind{
		token.LET, token.IDENT, token.ASSIGN, token.INT, token.SEMI,
		token.LET, token.IDENT, token.ASSIGN, token.INT, token.SEMI, token.EOF,
	}, kinds(toks))
}

func TestLexerStringEscapesPassThroughRaw(t *testing.T) {
	toks := lexAll(t, `"hi\n\"there\""`)
	require.Len(t, toks, 2)
	assert.Equal(t, token.STRING, toks[0].Kind)
	assert.Equal(t, `hi\n\"there\"`, toks[0].Literal)
}

func TestLexerIntegerOverflowIsSyntaxError(t *testing.T) {
	l := NewLexer(strings.NewReader("99999999999"))
	defer func() {
		r := recover()
		require.NotNil(t, r)
		d, ok := r.(diag.Diagnostic)
		require.True(t, ok)
		assert.Equal(t, diag.Syntax, d.Category)
	}()
	l.All()
}

func TestLexerUnescapedNewlineInStringIsSyntaxError(t *testing.T) {
	l := NewLexer(strings.NewReader("\"abc\ndef\""))
	defer func() {
		r := recover()
		require.NotNil(t, r)
		d, ok := r.(diag.Diagnostic)
		require.True(t, ok)
		assert.Equal(t, diag.Syntax, d.Category)
	}()
	l.All()
}

func TestLexerPositionsAreOneIndexed(t *testing.T) {
	toks := lexAll(t, "let\nx")
	require.True(t, len(toks) >= 2)
	assert.Equal(t, 1, toks[0].Span.From.Line)
	assert.Equal(t, 2, toks[1].Span.From.Line)
}
