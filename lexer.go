package ambsheet

import (
	"fmt"
	"strings"
)

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenEquals
	TokenNumber
	TokenString
	TokenBoolean
	TokenCell
	TokenRange
	TokenFunction
	TokenOperator
	TokenComma
	TokenLeftParen
	TokenRightParen
	TokenLeftBrace
	TokenRightBrace
	TokenIdentifier
	TokenError
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of formula"
	case TokenEquals:
		return "'='"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenBoolean:
		return "boolean"
	case TokenCell:
		return "cell reference"
	case TokenRange:
		return "range"
	case TokenFunction:
		return "function"
	case TokenOperator:
		return "operator"
	case TokenComma:
		return "','"
	case TokenLeftParen:
		return "'('"
	case TokenRightParen:
		return "')'"
	case TokenLeftBrace:
		return "'{'"
	case TokenRightBrace:
		return "'}'"
	case TokenIdentifier:
		return "identifier"
	default:
		return "error"
	}
}

// BinaryOp represents binary operators in AST nodes
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpPower
	BinOpConcat
	BinOpEqual
	BinOpNotEqual
	BinOpLess
	BinOpLessEqual
	BinOpGreater
	BinOpGreaterEqual
)

// UnaryOp represents unary operators in AST nodes
type UnaryOp int

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
	UnaryOpPercent
)

// character classification constants. slightly easier to read.
const (
	charNull       = 0
	charTab        = '\t'
	charNewline    = '\n'
	charReturn     = '\r'
	charSpace      = ' '
	charQuote      = '"'
	charPercent    = '%'
	charAmpersand  = '&'
	charLParen     = '('
	charRParen     = ')'
	charLBrace     = '{'
	charRBrace     = '}'
	charAsterisk   = '*'
	charPlus       = '+'
	charComma      = ','
	charMinus      = '-'
	charPeriod     = '.'
	charSlash      = '/'
	charColon      = ':'
	charLess       = '<'
	charEqual      = '='
	charGreater    = '>'
	charCaret      = '^'
	charUnderscore = '_'
	charExclaim    = '!'
	charDollar     = '$'
)

// Token represents a lexical token with position information
type Token struct {
	Type  TokenType
	Value string
	Pos   int // rune position in input
}

// Lexer tokenizes formula expressions and amb literals
type Lexer struct {
	input      string
	runes      []rune // UTF-8 aware representation
	pos        int
	parenDepth int
	braceDepth int
	tokens     []Token
}

// NewLexer creates a new lexer for the given formula input
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		runes:  []rune(input),
		pos:    0,
		tokens: []Token{},
	}
}

// Tokenize tokenizes the entire input. a leading '=' becomes TokenEquals,
// every later '=' is the comparison operator.
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.runes) {
			break
		}
		tok := l.nextToken()
		if tok.Type == TokenError {
			return nil, NewSpreadsheetError(ErrorCodeParse, fmt.Sprintf("%s at position %d", tok.Value, tok.Pos))
		}
		l.tokens = append(l.tokens, tok)
	}

	if l.parenDepth > 0 {
		return nil, NewSpreadsheetError(ErrorCodeParse, "unbalanced parentheses: missing closing parenthesis")
	}
	if l.braceDepth > 0 {
		return nil, NewSpreadsheetError(ErrorCodeParse, "unbalanced braces: missing closing brace")
	}

	l.tokens = append(l.tokens, Token{Type: TokenEOF, Pos: l.pos})
	return l.tokens, nil
}

// nextToken returns the next token from the input
func (l *Lexer) nextToken() Token {
	startPos := l.pos
	ch := l.current()

	if ch == charQuote {
		return l.scanString()
	}

	if l.isDigit(ch) || (ch == charPeriod && l.isDigit(l.peek(1))) {
		return l.scanNumber()
	}

	switch ch {
	case charLParen:
		l.pos++
		l.parenDepth++
		return Token{Type: TokenLeftParen, Value: "(", Pos: startPos}
	case charRParen:
		l.pos++
		l.parenDepth--
		if l.parenDepth < 0 {
			return Token{Type: TokenError, Value: "unexpected closing parenthesis", Pos: startPos}
		}
		return Token{Type: TokenRightParen, Value: ")", Pos: startPos}
	case charLBrace:
		l.pos++
		l.braceDepth++
		return Token{Type: TokenLeftBrace, Value: "{", Pos: startPos}
	case charRBrace:
		l.pos++
		l.braceDepth--
		if l.braceDepth < 0 {
			return Token{Type: TokenError, Value: "unexpected closing brace", Pos: startPos}
		}
		return Token{Type: TokenRightBrace, Value: "}", Pos: startPos}
	case charComma:
		l.pos++
		return Token{Type: TokenComma, Value: ",", Pos: startPos}
	case charPlus, charMinus, charAsterisk, charSlash, charCaret, charAmpersand, charPercent:
		l.pos++
		return Token{Type: TokenOperator, Value: string(ch), Pos: startPos}
	case charEqual:
		l.pos++
		if startPos == 0 {
			return Token{Type: TokenEquals, Value: "=", Pos: startPos}
		}
		return Token{Type: TokenOperator, Value: "=", Pos: startPos}
	case charLess, charGreater, charExclaim:
		return l.scanComparison()
	}

	if l.isAlpha(ch) || ch == charUnderscore || ch == charDollar {
		return l.scanIdentifierOrCell()
	}

	l.pos++
	return Token{Type: TokenError, Value: "unexpected character: " + string(ch), Pos: startPos}
}

// helper methods for character navigation and classification

// substring returns a substring of the original input based on rune positions
func (l *Lexer) substring(start, end int) string {
	if start < 0 || end > len(l.runes) || start > end {
		return ""
	}
	return string(l.runes[start:end])
}

func (l *Lexer) current() rune {
	if l.pos >= len(l.runes) {
		return charNull
	}
	return l.runes[l.pos]
}

func (l *Lexer) peek(offset int) rune {
	pos := l.pos + offset
	if pos >= len(l.runes) || pos < 0 {
		return charNull
	}
	return l.runes[pos]
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.runes) {
		ch := l.current()
		if ch == charSpace || ch == charTab || ch == charNewline || ch == charReturn {
			l.pos++
		} else {
			break
		}
	}
}

func (l *Lexer) isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func (l *Lexer) isAlphaNumeric(ch rune) bool {
	return l.isAlpha(ch) || l.isDigit(ch)
}

// scanNumber scans a number token including decimals and scientific notation
func (l *Lexer) scanNumber() Token {
	startPos := l.pos

	for l.pos < len(l.runes) && l.isDigit(l.current()) {
		l.pos++
	}

	if l.current() == charPeriod && l.isDigit(l.peek(1)) {
		l.pos++ // consume '.'
		for l.pos < len(l.runes) && l.isDigit(l.current()) {
			l.pos++
		}
	}

	// scientific notation only when digits follow, so "5e" stays "5" + "e"
	if l.current() == 'e' || l.current() == 'E' {
		savedPos := l.pos
		l.pos++
		if l.current() == charPlus || l.current() == charMinus {
			l.pos++
		}
		if !l.isDigit(l.current()) {
			l.pos = savedPos
		} else {
			for l.pos < len(l.runes) && l.isDigit(l.current()) {
				l.pos++
			}
		}
	}

	return Token{Type: TokenNumber, Value: l.substring(startPos, l.pos), Pos: startPos}
}

// scanString scans a string literal with support for double-quote escapes
func (l *Lexer) scanString() Token {
	startPos := l.pos
	l.pos++ // consume opening quote

	var result []rune
	for l.pos < len(l.runes) {
		ch := l.current()
		if ch == charQuote {
			if l.peek(1) == charQuote {
				result = append(result, charQuote)
				l.pos += 2
				continue
			}
			l.pos++
			return Token{Type: TokenString, Value: string(result), Pos: startPos}
		}
		result = append(result, ch)
		l.pos++
	}

	return Token{Type: TokenError, Value: "unclosed string literal", Pos: startPos}
}

// scanComparison scans <, <=, <>, >, >= and !=
func (l *Lexer) scanComparison() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++

	switch ch {
	case charLess:
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenOperator, Value: "<=", Pos: startPos}
		}
		if l.current() == charGreater {
			l.pos++
			return Token{Type: TokenOperator, Value: "<>", Pos: startPos}
		}
		return Token{Type: TokenOperator, Value: "<", Pos: startPos}
	case charGreater:
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenOperator, Value: ">=", Pos: startPos}
		}
		return Token{Type: TokenOperator, Value: ">", Pos: startPos}
	default:
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenOperator, Value: "<>", Pos: startPos}
		}
		return Token{Type: TokenError, Value: "unexpected '!'", Pos: startPos}
	}
}

// scanIdentifierOrCell scans identifiers, functions, cells, ranges, and booleans
func (l *Lexer) scanIdentifierOrCell() Token {
	startPos := l.pos

	for l.pos < len(l.runes) && (l.isAlphaNumeric(l.current()) || l.current() == charUnderscore || l.current() == charDollar) {
		l.pos++
	}

	value := l.substring(startPos, l.pos)
	upperValue := strings.ToUpper(value)

	if _, ok := splitCellRef(value); ok {
		if l.current() == charLParen && !strings.ContainsRune(value, charDollar) {
			return Token{Type: TokenFunction, Value: upperValue, Pos: startPos}
		}
		if l.current() == charColon {
			savedPos := l.pos
			l.pos++ // consume ':'

			cellStart := l.pos
			for l.pos < len(l.runes) && (l.isAlphaNumeric(l.current()) || l.current() == charDollar) {
				l.pos++
			}

			if _, ok := splitCellRef(l.substring(cellStart, l.pos)); ok {
				return Token{Type: TokenRange, Value: l.substring(startPos, l.pos), Pos: startPos}
			}
			l.pos = savedPos
			return Token{Type: TokenError, Value: "invalid range reference", Pos: startPos}
		}
		return Token{Type: TokenCell, Value: value, Pos: startPos}
	}

	if strings.ContainsRune(value, charDollar) {
		return Token{Type: TokenError, Value: "invalid cell reference: " + value, Pos: startPos}
	}

	if upperValue == "TRUE" || upperValue == "FALSE" {
		return Token{Type: TokenBoolean, Value: upperValue, Pos: startPos}
	}

	// a function is an identifier directly followed by an open paren
	if l.current() == charLParen {
		return Token{Type: TokenFunction, Value: upperValue, Pos: startPos}
	}

	return Token{Type: TokenIdentifier, Value: value, Pos: startPos}
}

// cellRef is a decoded A1-style reference with per-axis absolute flags
type cellRef struct {
	row, col       int
	rowAbs, colAbs bool
}

// splitCellRef decodes references like A1, $A1, A$1, $AB$12. the column is
// base-26 (A=0, Z=25, AA=26) and the row is converted to zero-based.
func splitCellRef(s string) (cellRef, bool) {
	var ref cellRef
	i := 0

	if i < len(s) && s[i] == charDollar {
		ref.colAbs = true
		i++
	}
	letterStart := i
	for i < len(s) && (s[i] >= 'A' && s[i] <= 'Z' || s[i] >= 'a' && s[i] <= 'z') {
		i++
	}
	letters := strings.ToUpper(s[letterStart:i])
	if len(letters) == 0 || len(letters) > 3 {
		return cellRef{}, false
	}

	if i < len(s) && s[i] == charDollar {
		ref.rowAbs = true
		i++
	}
	digitStart := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if digitStart == i || i != len(s) || i-digitStart > 7 {
		return cellRef{}, false
	}

	col := 0
	for _, ch := range letters {
		col = col*26 + int(ch-'A') + 1
	}
	ref.col = col - 1

	row := 0
	for _, ch := range s[digitStart:] {
		row = row*10 + int(ch-'0')
	}
	if row < 1 {
		return cellRef{}, false
	}
	ref.row = row - 1

	return ref, true
}
