package ambsheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxAmbValues bounds how many values a single amb literal or sampler may
// expand to at parse time
const maxAmbValues = 100000

type NodePosition struct {
	Start int
	End   int
}

// ASTNode is one node of a parsed formula. interpretation lives in the
// Interpreter, nodes only describe the formula.
type ASTNode interface {
	GetPosition() NodePosition
	ToString() string
}

// ParserContext provides context for parsing relative references and for
// allocating amb node identities
type ParserContext struct {
	CurrentRow    int
	CurrentColumn int
	NextAmbID     func() AmbID
}

// Parser parses tokens into an AST
type Parser struct {
	tokens   []Token
	pos      int
	context  *ParserContext
	ambNodes []AmbID
}

// StringNode represents a string literal
type StringNode struct {
	Value    string
	Position NodePosition
}

func (n *StringNode) GetPosition() NodePosition {
	return n.Position
}

func (n *StringNode) ToString() string {
	escaped := strings.ReplaceAll(n.Value, "\"", "\"\"")
	return fmt.Sprintf("\"%s\"", escaped)
}

// NumberNode represents a numeric literal
type NumberNode struct {
	Value    float64
	Position NodePosition
}

func (n *NumberNode) GetPosition() NodePosition {
	return n.Position
}

func (n *NumberNode) ToString() string {
	return formatNumber(n.Value)
}

// BooleanNode represents a boolean literal
type BooleanNode struct {
	Value    bool
	Position NodePosition
}

func (n *BooleanNode) GetPosition() NodePosition {
	return n.Position
}

func (n *BooleanNode) ToString() string {
	if n.Value {
		return "TRUE"
	}
	return "FALSE"
}

// CellRefNode represents a cell reference. a relative axis stores the delta
// from the cell the formula was parsed in, an absolute axis stores the index.
type CellRefNode struct {
	Row         int
	Col         int
	RowAbsolute bool
	ColAbsolute bool
	Position    NodePosition
}

// Target resolves the reference for a formula evaluated at cell
func (n *CellRefNode) Target(cell Position) Position {
	target := Position{Row: n.Row, Col: n.Col}
	if !n.RowAbsolute {
		target.Row += cell.Row
	}
	if !n.ColAbsolute {
		target.Col += cell.Col
	}
	return target
}

func (n *CellRefNode) GetPosition() NodePosition {
	return n.Position
}

func (n *CellRefNode) ToString() string {
	return fmt.Sprintf("REF(%s,%s)", axisString(n.Row, n.RowAbsolute), axisString(n.Col, n.ColAbsolute))
}

func axisString(v int, absolute bool) string {
	if absolute {
		return fmt.Sprintf("$%d", v)
	}
	return fmt.Sprintf("%+d", v)
}

// RangeNode represents a rectangular range of cells
type RangeNode struct {
	Start    *CellRefNode
	End      *CellRefNode
	Position NodePosition
}

// Bounds resolves the range for a formula evaluated at cell, normalized so
// that start is above and to the left of end
func (n *RangeNode) Bounds(cell Position) RangeAddress {
	a, b := n.Start.Target(cell), n.End.Target(cell)
	return RangeAddress{
		StartRow:    min(a.Row, b.Row),
		StartColumn: min(a.Col, b.Col),
		EndRow:      max(a.Row, b.Row),
		EndColumn:   max(a.Col, b.Col),
	}
}

func (n *RangeNode) GetPosition() NodePosition {
	return n.Position
}

func (n *RangeNode) ToString() string {
	return fmt.Sprintf("RANGE(%s:%s)", n.Start.ToString(), n.End.ToString())
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Op       BinaryOp
	Left     ASTNode
	Right    ASTNode
	Position NodePosition
}

func (n *BinaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *BinaryOpNode) ToString() string {
	return fmt.Sprintf("(%s%s%s)", n.Left.ToString(), n.Op, n.Right.ToString())
}

func (op BinaryOp) String() string {
	switch op {
	case BinOpAdd:
		return "+"
	case BinOpSubtract:
		return "-"
	case BinOpMultiply:
		return "*"
	case BinOpDivide:
		return "/"
	case BinOpPower:
		return "^"
	case BinOpConcat:
		return "&"
	case BinOpEqual:
		return "="
	case BinOpNotEqual:
		return "<>"
	case BinOpLess:
		return "<"
	case BinOpLessEqual:
		return "<="
	case BinOpGreater:
		return ">"
	case BinOpGreaterEqual:
		return ">="
	}
	return "?"
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Op       UnaryOp
	Operand  ASTNode
	Position NodePosition
}

func (n *UnaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *UnaryOpNode) ToString() string {
	switch n.Op {
	case UnaryOpMinus:
		return "-" + n.Operand.ToString()
	case UnaryOpPercent:
		return fmt.Sprintf("(%s%%)", n.Operand.ToString())
	default:
		return "+" + n.Operand.ToString()
	}
}

// IfNode represents if(cond, then, else). only one branch is evaluated per world.
type IfNode struct {
	Cond     ASTNode
	Then     ASTNode
	Else     ASTNode
	Position NodePosition
}

func (n *IfNode) GetPosition() NodePosition {
	return n.Position
}

func (n *IfNode) ToString() string {
	return fmt.Sprintf("IF(%s,%s,%s)", n.Cond.ToString(), n.Then.ToString(), n.Else.ToString())
}

// FunctionCallNode represents a function call
type FunctionCallNode struct {
	Name     string
	Args     []ASTNode
	Position NodePosition
}

func (n *FunctionCallNode) GetPosition() NodePosition {
	return n.Position
}

func (n *FunctionCallNode) ToString() string {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		args[i] = arg.ToString()
	}
	return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ","))
}

// AmbPartKind says how one part of an amb literal expands
type AmbPartKind int

const (
	AmbPartSingle AmbPartKind = iota // 5
	AmbPartRepeat                    // 5 x 3
	AmbPartRange                     // 1 to 10 by 2
)

// AmbPart is one comma-separated part of an amb literal
type AmbPart struct {
	Kind  AmbPartKind
	Value Primitive // single and repeat
	Count int       // repeat
	From  float64   // range
	To    float64   // range
	Step  float64   // range, already defaulted to +1/-1
}

// AmbLiteralNode represents {part, part, ...}. Values holds the expansion of
// all parts in source order; the position in Values is the choice index.
type AmbLiteralNode struct {
	ID       AmbID
	Parts    []AmbPart
	Values   []Primitive
	Position NodePosition
}

func (n *AmbLiteralNode) GetPosition() NodePosition {
	return n.Position
}

func (n *AmbLiteralNode) ToString() string {
	parts := make([]string, len(n.Parts))
	for i, part := range n.Parts {
		switch part.Kind {
		case AmbPartRepeat:
			parts[i] = fmt.Sprintf("%s x %d", literalString(part.Value), part.Count)
		case AmbPartRange:
			parts[i] = fmt.Sprintf("%s to %s by %s", formatNumber(part.From), formatNumber(part.To), formatNumber(part.Step))
		default:
			parts[i] = literalString(part.Value)
		}
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// AmbifyNode represents ambify(range): one world per cell of the range
type AmbifyNode struct {
	ID       AmbID
	Range    *RangeNode
	Position NodePosition
}

func (n *AmbifyNode) GetPosition() NodePosition {
	return n.Position
}

func (n *AmbifyNode) ToString() string {
	return fmt.Sprintf("AMBIFY(%s)", n.Range.ToString())
}

// NormalNode represents normal(mean, stdev, count). samples are drawn the
// first time the node is interpreted and reused afterwards.
type NormalNode struct {
	ID       AmbID
	Mean     float64
	Stdev    float64
	Count    int
	Position NodePosition

	samples []float64
}

func (n *NormalNode) GetPosition() NodePosition {
	return n.Position
}

func (n *NormalNode) ToString() string {
	return fmt.Sprintf("NORMAL(%s,%s,%d)", formatNumber(n.Mean), formatNumber(n.Stdev), n.Count)
}

// NewParser creates a new parser with the given tokens and context
func NewParser(tokens []Token, context *ParserContext) *Parser {
	if context.NextAmbID == nil {
		var next AmbID
		context.NextAmbID = func() AmbID {
			next++
			return next
		}
	}
	return &Parser{
		tokens:  tokens,
		pos:     0,
		context: context,
	}
}

// IsFormula reports whether text should be parsed as a formula rather than
// taken as a literal: it starts with '=' or is wrapped in braces
func IsFormula(text string) bool {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "=") {
		return true
	}
	return strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")
}

// Parse lexes and parses one cell's formula text. relative references are
// resolved against cell. amb node IDs come from next, or from a private
// counter when next is nil.
func Parse(text string, cell Position, next func() AmbID) (ASTNode, error) {
	node, _, err := parseFormula(text, cell, next)
	return node, err
}

// parseFormula is Parse that also returns the amb node IDs in source order
func parseFormula(text string, cell Position, next func() AmbID) (ASTNode, []AmbID, error) {
	tokens, err := NewLexer(strings.TrimSpace(text)).Tokenize()
	if err != nil {
		return nil, nil, err
	}
	parser := NewParser(tokens, &ParserContext{
		CurrentRow:    cell.Row,
		CurrentColumn: cell.Col,
		NextAmbID:     next,
	})
	node, err := parser.Parse()
	if err != nil {
		return nil, nil, err
	}
	return node, parser.AmbNodes(), nil
}

// AmbNodes returns the IDs allocated while parsing, in source order
func (p *Parser) AmbNodes() []AmbID {
	return p.ambNodes
}

// Parse parses the tokens into an AST
func (p *Parser) Parse() (ASTNode, error) {
	if len(p.tokens) == 0 || p.tokens[0].Type == TokenEOF {
		return nil, p.errorf("empty formula")
	}

	var node ASTNode
	var err error
	switch p.tokens[0].Type {
	case TokenEquals:
		p.pos++
		node, err = p.parseComparison()
	case TokenLeftBrace:
		node, err = p.parseAmbLiteral()
	default:
		return nil, p.errorf("formula must start with '=' or '{'")
	}
	if err != nil {
		return nil, err
	}

	if p.current().Type != TokenEOF {
		return nil, p.errorf("unexpected %s after expression: %s", p.current().Type, p.current().Value)
	}
	return node, nil
}

func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) errorf(format string, args ...any) *SpreadsheetError {
	msg := fmt.Sprintf(format, args...)
	if p.pos < len(p.tokens) {
		msg = fmt.Sprintf("%s (at position %d)", msg, p.tokens[p.pos].Pos)
	}
	return NewSpreadsheetError(ErrorCodeParse, msg)
}

func (p *Parser) isOperator(values ...string) (string, bool) {
	tok := p.current()
	if tok.Type != TokenOperator {
		return "", false
	}
	for _, v := range values {
		if tok.Value == v {
			return v, true
		}
	}
	return "", false
}

func (p *Parser) expect(tokenType TokenType) (Token, error) {
	tok := p.current()
	if tok.Type != tokenType {
		return tok, p.errorf("expected %s, found %s", tokenType, tok.Type)
	}
	p.pos++
	return tok, nil
}

func (p *Parser) binary(op BinaryOp, left, right ASTNode) ASTNode {
	return &BinaryOpNode{
		Op:       op,
		Left:     left,
		Right:    right,
		Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
	}
}

// parseComparison handles comparison operators (lowest precedence)
func (p *Parser) parseComparison() (ASTNode, error) {
	left, err := p.parseConcatenation()
	if err != nil {
		return nil, err
	}

	for {
		opStr, ok := p.isOperator("=", "<>", "<", "<=", ">", ">=")
		if !ok {
			return left, nil
		}

		var op BinaryOp
		switch opStr {
		case "=":
			op = BinOpEqual
		case "<>":
			op = BinOpNotEqual
		case "<":
			op = BinOpLess
		case "<=":
			op = BinOpLessEqual
		case ">":
			op = BinOpGreater
		case ">=":
			op = BinOpGreaterEqual
		}

		p.pos++
		right, err := p.parseConcatenation()
		if err != nil {
			return nil, err
		}
		left = p.binary(op, left, right)
	}
}

// parseConcatenation handles string concatenation operator
func (p *Parser) parseConcatenation() (ASTNode, error) {
	left, err := p.parseAddition()
	if err != nil {
		return nil, err
	}

	for {
		if _, ok := p.isOperator("&"); !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parseAddition()
		if err != nil {
			return nil, err
		}
		left = p.binary(BinOpConcat, left, right)
	}
}

// parseAddition handles addition and subtraction
func (p *Parser) parseAddition() (ASTNode, error) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}

	for {
		opStr, ok := p.isOperator("+", "-")
		if !ok {
			return left, nil
		}
		op := BinOpAdd
		if opStr == "-" {
			op = BinOpSubtract
		}

		p.pos++
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}
		left = p.binary(op, left, right)
	}
}

// parseMultiplication handles multiplication and division
func (p *Parser) parseMultiplication() (ASTNode, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}

	for {
		opStr, ok := p.isOperator("*", "/")
		if !ok {
			return left, nil
		}
		op := BinOpMultiply
		if opStr == "/" {
			op = BinOpDivide
		}

		p.pos++
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = p.binary(op, left, right)
	}
}

// parsePower handles exponentiation
func (p *Parser) parsePower() (ASTNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	// right-associative
	if _, ok := p.isOperator("^"); ok {
		p.pos++
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		return p.binary(BinOpPower, left, right), nil
	}

	return left, nil
}

// parseUnary handles unary operators
func (p *Parser) parseUnary() (ASTNode, error) {
	opStr, ok := p.isOperator("+", "-")
	if !ok {
		return p.parsePostfix()
	}

	startPos := p.current().Pos
	p.pos++
	operand, err := p.parseUnary() // recurse for chained unary operators
	if err != nil {
		return nil, err
	}

	op := UnaryOpPlus
	if opStr == "-" {
		op = UnaryOpMinus
	}
	return &UnaryOpNode{
		Op:       op,
		Operand:  operand,
		Position: NodePosition{Start: startPos, End: operand.GetPosition().End},
	}, nil
}

// parsePostfix handles postfix operators (percent)
func (p *Parser) parsePostfix() (ASTNode, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		if _, ok := p.isOperator("%"); !ok {
			return node, nil
		}
		endPos := p.current().Pos + 1
		p.pos++
		node = &UnaryOpNode{
			Op:       UnaryOpPercent,
			Operand:  node,
			Position: NodePosition{Start: node.GetPosition().Start, End: endPos},
		}
	}
}

// parsePrimary handles primary expressions (literals, references,
// functions, parentheses, amb literals)
func (p *Parser) parsePrimary() (ASTNode, error) {
	tok := p.current()

	switch tok.Type {
	case TokenNumber:
		p.pos++
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.errorf("invalid number: %s", tok.Value)
		}
		return &NumberNode{
			Value:    val,
			Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
		}, nil

	case TokenString:
		p.pos++
		return &StringNode{
			Value:    tok.Value,
			Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value) + 2}, // +2 for quotes
		}, nil

	case TokenBoolean:
		p.pos++
		return &BooleanNode{
			Value:    tok.Value == "TRUE",
			Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
		}, nil

	case TokenCell:
		p.pos++
		return p.parseCellReference(tok)

	case TokenRange:
		p.pos++
		return p.parseRange(tok)

	case TokenFunction:
		switch tok.Value {
		case "IF":
			return p.parseIf()
		case "AMBIFY":
			return p.parseAmbify()
		case "NORMAL":
			return p.parseNormal()
		}
		return p.parseFunctionCall()

	case TokenLeftParen:
		p.pos++
		node, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRightParen); err != nil {
			return nil, err
		}
		return node, nil

	case TokenLeftBrace:
		return p.parseAmbLiteral()

	case TokenIdentifier:
		return nil, p.errorf("unknown name: %s", tok.Value)

	case TokenEOF:
		return nil, p.errorf("unexpected end of expression")

	default:
		return nil, p.errorf("unexpected token: %s", tok.Value)
	}
}

// parseArguments parses "(arg, arg, ...)" after a function name token
func (p *Parser) parseArguments() ([]ASTNode, int, error) {
	if _, err := p.expect(TokenLeftParen); err != nil {
		return nil, 0, err
	}

	args := []ASTNode{}
	if p.current().Type == TokenRightParen {
		end := p.current().Pos + 1
		p.pos++
		return args, end, nil
	}

	for {
		arg, err := p.parseComparison()
		if err != nil {
			return nil, 0, err
		}
		args = append(args, arg)

		switch p.current().Type {
		case TokenRightParen:
			end := p.current().Pos + 1
			p.pos++
			return args, end, nil
		case TokenComma:
			p.pos++
		default:
			return nil, 0, p.errorf("expected ',' or ')' in function arguments")
		}
	}
}

// parseFunctionCall parses a function call. unknown names are not rejected
// here; the interpreter reports them when the call is reached.
func (p *Parser) parseFunctionCall() (ASTNode, error) {
	funcTok := p.current()
	p.pos++

	args, end, err := p.parseArguments()
	if err != nil {
		return nil, err
	}
	return &FunctionCallNode{
		Name:     funcTok.Value,
		Args:     args,
		Position: NodePosition{Start: funcTok.Pos, End: end},
	}, nil
}

// parseIf parses if(cond, then, else)
func (p *Parser) parseIf() (ASTNode, error) {
	startPos := p.current().Pos
	p.pos++

	args, end, err := p.parseArguments()
	if err != nil {
		return nil, err
	}
	if len(args) != 3 {
		return nil, p.errorf("if expects 3 arguments, got %d", len(args))
	}
	return &IfNode{
		Cond:     args[0],
		Then:     args[1],
		Else:     args[2],
		Position: NodePosition{Start: startPos, End: end},
	}, nil
}

// parseAmbify parses ambify(A1:B3). a single cell is accepted as a 1x1 range.
func (p *Parser) parseAmbify() (ASTNode, error) {
	startPos := p.current().Pos
	p.pos++

	if _, err := p.expect(TokenLeftParen); err != nil {
		return nil, err
	}

	var rangeNode *RangeNode
	tok := p.current()
	switch tok.Type {
	case TokenRange:
		p.pos++
		node, err := p.parseRange(tok)
		if err != nil {
			return nil, err
		}
		rangeNode = node.(*RangeNode)
	case TokenCell:
		p.pos++
		node, err := p.parseCellReference(tok)
		if err != nil {
			return nil, err
		}
		ref := node.(*CellRefNode)
		rangeNode = &RangeNode{Start: ref, End: ref, Position: ref.Position}
	default:
		return nil, p.errorf("ambify expects a cell range")
	}

	closeTok, err := p.expect(TokenRightParen)
	if err != nil {
		return nil, err
	}

	return &AmbifyNode{
		ID:       p.allocAmbID(),
		Range:    rangeNode,
		Position: NodePosition{Start: startPos, End: closeTok.Pos + 1},
	}, nil
}

// parseNormal parses normal(mean, stdev, count) with numeric literal arguments
func (p *Parser) parseNormal() (ASTNode, error) {
	startPos := p.current().Pos
	p.pos++

	if _, err := p.expect(TokenLeftParen); err != nil {
		return nil, err
	}

	var nums [3]float64
	for i := range nums {
		if i > 0 {
			if _, err := p.expect(TokenComma); err != nil {
				return nil, err
			}
		}
		n, err := p.parseSignedNumber()
		if err != nil {
			return nil, err
		}
		nums[i] = n
	}

	closeTok, err := p.expect(TokenRightParen)
	if err != nil {
		return nil, err
	}

	mean, stdev, count := nums[0], nums[1], nums[2]
	if stdev < 0 {
		return nil, p.errorf("normal standard deviation must not be negative")
	}
	if count != math.Trunc(count) || count < 1 || count > maxAmbValues {
		return nil, p.errorf("normal sample count must be an integer between 1 and %d", maxAmbValues)
	}

	return &NormalNode{
		ID:       p.allocAmbID(),
		Mean:     mean,
		Stdev:    stdev,
		Count:    int(count),
		Position: NodePosition{Start: startPos, End: closeTok.Pos + 1},
	}, nil
}

// parseAmbLiteral parses {part, part, ...}
func (p *Parser) parseAmbLiteral() (ASTNode, error) {
	openTok, err := p.expect(TokenLeftBrace)
	if err != nil {
		return nil, err
	}

	node := &AmbLiteralNode{ID: p.allocAmbID()}
	for {
		part, err := p.parseAmbPart()
		if err != nil {
			return nil, err
		}
		node.Parts = append(node.Parts, part)
		node.Values = append(node.Values, expandAmbPart(part)...)
		if len(node.Values) > maxAmbValues {
			return nil, p.errorf("amb literal expands to more than %d values", maxAmbValues)
		}

		if p.current().Type == TokenComma {
			p.pos++
			continue
		}
		closeTok, err := p.expect(TokenRightBrace)
		if err != nil {
			return nil, err
		}
		node.Position = NodePosition{Start: openTok.Pos, End: closeTok.Pos + 1}
		return node, nil
	}
}

// parseAmbPart parses "literal", "literal x N" or "from to to [by step]"
func (p *Parser) parseAmbPart() (AmbPart, error) {
	value, err := p.parseAmbValue()
	if err != nil {
		return AmbPart{}, err
	}

	switch p.keyword() {
	case "x":
		p.pos++
		count, err := p.parseSignedNumber()
		if err != nil {
			return AmbPart{}, err
		}
		if count != math.Trunc(count) || count < 0 || count > maxAmbValues {
			return AmbPart{}, p.errorf("repeat count must be an integer between 0 and %d", maxAmbValues)
		}
		return AmbPart{Kind: AmbPartRepeat, Value: value, Count: int(count)}, nil

	case "to":
		from, ok := value.(float64)
		if !ok {
			return AmbPart{}, p.errorf("range start must be a number")
		}
		p.pos++
		to, err := p.parseSignedNumber()
		if err != nil {
			return AmbPart{}, err
		}

		step := 1.0
		if to < from {
			step = -1.0
		}
		if p.keyword() == "by" {
			p.pos++
			if step, err = p.parseSignedNumber(); err != nil {
				return AmbPart{}, err
			}
		}
		if step == 0 || (to-from)*step < 0 {
			return AmbPart{}, p.errorf("range step %s never reaches %s from %s", formatNumber(step), formatNumber(to), formatNumber(from))
		}
		if math.Floor((to-from)/step)+1 > maxAmbValues {
			return AmbPart{}, p.errorf("range expands to more than %d values", maxAmbValues)
		}
		return AmbPart{Kind: AmbPartRange, From: from, To: to, Step: step}, nil
	}

	return AmbPart{Kind: AmbPartSingle, Value: value}, nil
}

// parseAmbValue parses a literal inside an amb literal
func (p *Parser) parseAmbValue() (Primitive, error) {
	tok := p.current()
	switch tok.Type {
	case TokenString:
		p.pos++
		return tok.Value, nil
	case TokenBoolean:
		p.pos++
		return tok.Value == "TRUE", nil
	default:
		return p.parseSignedNumber()
	}
}

// parseSignedNumber parses an optionally signed numeric literal
func (p *Parser) parseSignedNumber() (float64, error) {
	sign := 1.0
	if opStr, ok := p.isOperator("+", "-"); ok {
		if opStr == "-" {
			sign = -1.0
		}
		p.pos++
	}

	tok := p.current()
	if tok.Type != TokenNumber {
		return 0, p.errorf("expected number, found %s", tok.Type)
	}
	p.pos++
	val, err := strconv.ParseFloat(tok.Value, 64)
	if err != nil {
		return 0, p.errorf("invalid number: %s", tok.Value)
	}
	return sign * val, nil
}

// keyword returns the lower-cased amb keyword (x, to, by) at the current
// token, or "". "5x3" lexes as 5 followed by the cell X3, so a cell token
// spelling keyword+digits is split back into the keyword and a number.
func (p *Parser) keyword() string {
	tok := p.current()
	switch tok.Type {
	case TokenIdentifier:
		kw := strings.ToLower(tok.Value)
		if kw == "x" || kw == "to" || kw == "by" {
			return kw
		}
	case TokenCell:
		lower := strings.ToLower(tok.Value)
		for _, kw := range []string{"x", "to", "by"} {
			digits := strings.TrimPrefix(lower, kw)
			if digits == lower || digits == "" || strings.Trim(digits, "0123456789") != "" {
				continue
			}
			split := []Token{
				{Type: TokenIdentifier, Value: kw, Pos: tok.Pos},
				{Type: TokenNumber, Value: digits, Pos: tok.Pos + len(kw)},
			}
			rest := append(split, p.tokens[p.pos+1:]...)
			p.tokens = append(p.tokens[:p.pos], rest...)
			return kw
		}
	}
	return ""
}

func (p *Parser) allocAmbID() AmbID {
	id := p.context.NextAmbID()
	p.ambNodes = append(p.ambNodes, id)
	return id
}

// parseCellReference parses a cell reference token into a CellRefNode
func (p *Parser) parseCellReference(tok Token) (ASTNode, error) {
	ref, ok := splitCellRef(tok.Value)
	if !ok {
		return nil, p.errorf("invalid cell reference: %s", tok.Value)
	}
	return p.cellRefNode(ref, NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)}), nil
}

func (p *Parser) cellRefNode(ref cellRef, position NodePosition) *CellRefNode {
	node := &CellRefNode{
		Row:         ref.row,
		Col:         ref.col,
		RowAbsolute: ref.rowAbs,
		ColAbsolute: ref.colAbs,
		Position:    position,
	}
	if !ref.rowAbs {
		node.Row = ref.row - p.context.CurrentRow
	}
	if !ref.colAbs {
		node.Col = ref.col - p.context.CurrentColumn
	}
	return node
}

// parseRange parses a range token into a RangeNode
func (p *Parser) parseRange(tok Token) (ASTNode, error) {
	parts := strings.Split(tok.Value, ":")
	if len(parts) != 2 {
		return nil, p.errorf("invalid range format: %s", tok.Value)
	}

	start, ok := splitCellRef(parts[0])
	if !ok {
		return nil, p.errorf("invalid start cell in range: %s", parts[0])
	}
	end, ok := splitCellRef(parts[1])
	if !ok {
		return nil, p.errorf("invalid end cell in range: %s", parts[1])
	}

	startPos := NodePosition{Start: tok.Pos, End: tok.Pos + len(parts[0])}
	endPos := NodePosition{Start: tok.Pos + len(parts[0]) + 1, End: tok.Pos + len(tok.Value)}
	return &RangeNode{
		Start:    p.cellRefNode(start, startPos),
		End:      p.cellRefNode(end, endPos),
		Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
	}, nil
}

// expandAmbPart lists the values produced by one amb literal part
func expandAmbPart(part AmbPart) []Primitive {
	switch part.Kind {
	case AmbPartRepeat:
		values := make([]Primitive, part.Count)
		for i := range values {
			values[i] = part.Value
		}
		return values
	case AmbPartRange:
		// step by index rather than accumulation so 0.1 steps do not drift
		count := int(math.Floor((part.To-part.From)/part.Step+1e-9)) + 1
		values := make([]Primitive, count)
		for i := range values {
			values[i] = part.From + float64(i)*part.Step
		}
		return values
	default:
		return []Primitive{part.Value}
	}
}

// formatNumber formats a number without unnecessary decimals
func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func literalString(v Primitive) string {
	switch val := v.(type) {
	case string:
		return (&StringNode{Value: val}).ToString()
	case bool:
		return (&BooleanNode{Value: val}).ToString()
	case float64:
		return formatNumber(val)
	}
	return fmt.Sprint(v)
}
