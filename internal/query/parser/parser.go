package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports where the input stopped making sense.
type ParseError struct {
	Message  string
	Position int
	Token    Token
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s (got %s)", e.Position, e.Message, e.Token.Literal)
}

// Parser is a precedence-climbing parser over the Lexer's tokens, with one
// token of lookahead.
type Parser struct {
	lexer *Lexer
	cur   Token
	peek  Token
}

// NewParser creates a Parser positioned on the first token of input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	p.advance()
	p.advance()
	return p
}

// Parse parses one SELECT statement.
func Parse(input string) (Statement, error) {
	return NewParser(input).ParseStatement()
}

// ParseExpr parses a bare expression such as a WHERE clause body or a
// partitioning key expression. The whole input must be consumed.
func ParseExpr(input string) (Expression, error) {
	p := NewParser(input)
	expr, err := p.expression(precLowest)
	if err != nil {
		return nil, err
	}
	if err := p.end(); err != nil {
		return nil, err
	}
	return expr, nil
}

// ParseStatement parses the statement at the current position.
func (p *Parser) ParseStatement() (Statement, error) {
	if !p.at(TokenSelect) {
		return nil, p.errorf("expected SELECT")
	}
	return p.selectStatement()
}

func (p *Parser) advance() {
	p.cur = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) at(t TokenType) bool { return p.cur.Type == t }

// accept consumes the current token when it is t.
func (p *Parser) accept(t TokenType) bool {
	if p.cur.Type != t {
		return false
	}
	p.advance()
	return true
}

// expect consumes t or fails with "expected <what>".
func (p *Parser) expect(t TokenType, what string) error {
	if !p.accept(t) {
		return p.errorf("expected %s", what)
	}
	return nil
}

func (p *Parser) errorf(format string, args ...interface{}) *ParseError {
	return &ParseError{
		Message:  fmt.Sprintf(format, args...),
		Position: p.cur.Pos,
		Token:    p.cur,
	}
}

// end accepts an optional trailing semicolon followed by EOF.
func (p *Parser) end() error {
	p.accept(TokenSemicolon)
	if !p.at(TokenEOF) {
		return p.errorf("unexpected trailing input")
	}
	return nil
}

func (p *Parser) selectStatement() (*SelectStatement, error) {
	p.advance() // SELECT

	stmt := &SelectStatement{}
	for {
		col, err := p.selectColumn()
		if err != nil {
			return nil, err
		}
		stmt.Columns = append(stmt.Columns, col)
		if !p.accept(TokenComma) {
			break
		}
	}

	if err := p.expect(TokenFrom, "FROM"); err != nil {
		return nil, err
	}
	if !p.at(TokenIdent) {
		return nil, p.errorf("expected table name")
	}
	stmt.From = &TableRef{Name: p.cur.Literal}
	p.advance()
	alias, err := p.alias()
	if err != nil {
		return nil, err
	}
	stmt.From.Alias = alias

	if p.accept(TokenWhere) {
		if stmt.Where, err = p.expression(precLowest); err != nil {
			return nil, err
		}
	}

	if err := p.end(); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) selectColumn() (SelectColumn, error) {
	if p.accept(TokenStar) {
		return SelectColumn{Expr: &StarExpr{}}, nil
	}
	expr, err := p.expression(precLowest)
	if err != nil {
		return SelectColumn{}, err
	}
	alias, err := p.alias()
	if err != nil {
		return SelectColumn{}, err
	}
	return SelectColumn{Expr: expr, Alias: alias}, nil
}

// alias reads "AS name" or a bare trailing identifier.
func (p *Parser) alias() (string, error) {
	explicit := p.accept(TokenAs)
	if !p.at(TokenIdent) {
		if explicit {
			return "", p.errorf("expected identifier after AS")
		}
		return "", nil
	}
	name := p.cur.Literal
	p.advance()
	return name, nil
}

const (
	precLowest = iota
	precOr
	precAnd
	precNot
	precCompare
	precAdd
	precMul
	precUnary
)

// binaryOps maps the tokens that build a BinaryExpr to their operator text and
// binding power.
var binaryOps = map[TokenType]struct {
	op   string
	prec int
}{
	TokenOr:    {"OR", precOr},
	TokenAnd:   {"AND", precAnd},
	TokenEq:    {"=", precCompare},
	TokenNe:    {"<>", precCompare},
	TokenLt:    {"<", precCompare},
	TokenGt:    {">", precCompare},
	TokenLe:    {"<=", precCompare},
	TokenGe:    {">=", precCompare},
	TokenPlus:  {"+", precAdd},
	TokenMinus: {"-", precAdd},
	TokenStar:  {"*", precMul},
	TokenSlash: {"/", precMul},
}

// infixPrecedence returns the binding power of the current token used as an
// infix operator, or precLowest when it cannot continue an expression.
func (p *Parser) infixPrecedence() int {
	if b, ok := binaryOps[p.cur.Type]; ok {
		return b.prec
	}
	switch p.cur.Type {
	case TokenLike, TokenIn, TokenBetween, TokenIs:
		return precCompare
	case TokenNot:
		// Infix only as NOT IN / NOT LIKE / NOT BETWEEN.
		switch p.peek.Type {
		case TokenIn, TokenLike, TokenBetween:
			return precCompare
		}
	}
	return precLowest
}

func (p *Parser) expression(prec int) (Expression, error) {
	left, err := p.prefix()
	if err != nil {
		return nil, err
	}
	for !p.at(TokenEOF) && prec < p.infixPrecedence() {
		if left, err = p.infix(left); err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *Parser) prefix() (Expression, error) {
	tok := p.cur
	switch tok.Type {
	case TokenIdent:
		p.advance()
		return p.identifier(tok.Literal)
	case TokenNumber:
		p.advance()
		return numberLiteral(tok)
	case TokenString:
		p.advance()
		return &Literal{Value: strings.ReplaceAll(tok.Literal, "''", "'")}, nil
	case TokenParam:
		idx, err := strconv.Atoi(tok.Literal)
		if err != nil || idx < 1 {
			return nil, &ParseError{Message: "placeholders are numbered from 1", Position: tok.Pos, Token: tok}
		}
		p.advance()
		return &ParamRef{Index: idx}, nil
	case TokenNull:
		p.advance()
		return &Literal{Value: nil}, nil
	case TokenTrue, TokenFalse:
		p.advance()
		return &Literal{Value: tok.Type == TokenTrue}, nil
	case TokenLParen:
		p.advance()
		inner, err := p.expression(precLowest)
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenRParen, ")"); err != nil {
			return nil, err
		}
		return &ParenExpr{Expr: inner}, nil
	case TokenNot:
		p.advance()
		operand, err := p.expression(precNot)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Operator: "NOT", Operand: operand}, nil
	case TokenMinus:
		p.advance()
		operand, err := p.expression(precUnary)
		if err != nil {
			return nil, err
		}
		return negate(operand), nil
	}
	return nil, p.errorf("unexpected token in expression")
}

// negate folds numeric literals so "-5" compares as a constant.
func negate(e Expression) Expression {
	if lit, ok := e.(*Literal); ok {
		switch v := lit.Value.(type) {
		case int64:
			return &Literal{Value: -v}
		case float64:
			return &Literal{Value: -v}
		}
	}
	return &UnaryExpr{Operator: "-", Operand: e}
}

func numberLiteral(tok Token) (Expression, error) {
	if !strings.Contains(tok.Literal, ".") {
		if n, err := strconv.ParseInt(tok.Literal, 10, 64); err == nil {
			return &Literal{Value: n}, nil
		}
	}
	f, err := strconv.ParseFloat(tok.Literal, 64)
	if err != nil {
		return nil, &ParseError{Message: "invalid number", Position: tok.Pos, Token: tok}
	}
	return &Literal{Value: f}, nil
}

// identifier continues after a leading identifier: a qualified column, a
// function call or a plain column.
func (p *Parser) identifier(name string) (Expression, error) {
	if p.accept(TokenDot) {
		if !p.at(TokenIdent) {
			return nil, p.errorf("expected column name after dot")
		}
		col := &ColumnRef{Table: name, Column: p.cur.Literal}
		p.advance()
		return col, nil
	}
	if !p.accept(TokenLParen) {
		return &ColumnRef{Column: name}, nil
	}

	call := &FunctionCall{Name: strings.ToLower(name)}
	switch {
	case p.accept(TokenStar):
		call.Args = []Expression{&StarExpr{}}
	case !p.at(TokenRParen):
		args, err := p.expressionList()
		if err != nil {
			return nil, err
		}
		call.Args = args
	}
	if err := p.expect(TokenRParen, ") after function arguments"); err != nil {
		return nil, err
	}
	return call, nil
}

func (p *Parser) expressionList() ([]Expression, error) {
	var exprs []Expression
	for {
		e, err := p.expression(precLowest)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
		if !p.accept(TokenComma) {
			return exprs, nil
		}
	}
}

func (p *Parser) infix(left Expression) (Expression, error) {
	if b, ok := binaryOps[p.cur.Type]; ok {
		p.advance()
		right, err := p.expression(b.prec)
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Left: left, Operator: b.op, Right: right}, nil
	}

	if p.accept(TokenIs) {
		not := p.accept(TokenNot)
		if err := p.expect(TokenNull, "NULL after IS"); err != nil {
			return nil, err
		}
		return &IsNullExpr{Expr: left, Not: not}, nil
	}

	not := p.accept(TokenNot)
	switch {
	case p.accept(TokenIn):
		if err := p.expect(TokenLParen, "( after IN"); err != nil {
			return nil, err
		}
		values, err := p.expressionList()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenRParen, ") after IN values"); err != nil {
			return nil, err
		}
		return &InExpr{Expr: left, Values: values, Not: not}, nil

	case p.accept(TokenLike):
		pattern, err := p.expression(precCompare)
		if err != nil {
			return nil, err
		}
		return &LikeExpr{Expr: left, Pattern: pattern, Not: not}, nil

	case p.accept(TokenBetween):
		low, err := p.expression(precCompare)
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenAnd, "AND in BETWEEN expression"); err != nil {
			return nil, err
		}
		high, err := p.expression(precCompare)
		if err != nil {
			return nil, err
		}
		return &BetweenExpr{Expr: left, Low: low, High: high, Not: not}, nil
	}

	if not {
		return nil, p.errorf("expected IN, LIKE, or BETWEEN after NOT")
	}
	return left, nil
}
