package sqlfront

import (
	"strconv"
	"strings"

	"github.com/irouter/qrouter/core"
)

// Parser turns a token stream into a core.Stmt. Only single SELECT queries
// are accepted; anything else fails with core.ErrUnsupportedStatement.
type Parser struct {
	toks []Token
	pos  int
	dialect string
}

// NewParser constructs a Parser for the given dialect. The dialect is stored
// on the Parser but does not change parsing or error messages.
func NewParser(dialect string) *Parser {
	return &Parser{dialect: dialect}
}

// Parse tokenizes and parses sql, returning a core.Stmt or a *core.Error.
func (p *Parser) Parse(sql string) (*core.Stmt, error) {
	toks, err := Tokenize(sql)
	if err != nil {
		return nil, err
	}
	p.toks = toks
	p.pos = 0
	return p.parseSelect()
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) atKeyword(kw string) bool {
	t := p.cur()
	return t.Kind == TokKeyword && t.Text == kw
}

func (p *Parser) atPunct(s string) bool {
	t := p.cur()
	return t.Kind == TokPunct && t.Text == s
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.atKeyword(kw) {
		return core.NewParseError(p.cur().Pos, "expected "+kw)
	}
	p.advance()
	return nil
}

func (p *Parser) expectPunct(s string) error {
	if !p.atPunct(s) {
		return core.NewParseError(p.cur().Pos, "expected '"+s+"'")
	}
	p.advance()
	return nil
}

func (p *Parser) parseSelect() (*core.Stmt, error) {
	if p.cur().Kind == TokEOF {
		return nil, core.NewParseError(0, "empty query")
	}
	if !p.atKeyword("SELECT") {
		return nil, core.NewUnsupportedStatement("only SELECT statements are supported")
	}
	p.advance()

	stmt := &core.Stmt{Kind: core.StmtSelect}

	if p.atKeyword("DISTINCT") {
		stmt.Distinct = true
		p.advance()
	}

	projs, err := p.parseProjections()
	if err != nil {
		return nil, err
	}
	stmt.Projections = projs

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	from, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	stmt.From = from

	for p.atKeyword("JOIN") || p.atKeyword("INNER") || p.atKeyword("LEFT") ||
		p.atKeyword("RIGHT") || p.atKeyword("FULL") {
		jc, err := p.parseJoin()
		if err != nil {
			return nil, err
		}
		stmt.Joins = append(stmt.Joins, jc)
	}

	if p.atKeyword("WHERE") {
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = &expr
	}

	if p.atKeyword("GROUP") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		exprs, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		stmt.GroupBy = exprs
	}

	if p.atKeyword("HAVING") {
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Having = &expr
	}

	if p.atKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		terms, err := p.parseOrderTerms()
		if err != nil {
			return nil, err
		}
		stmt.OrderBy = terms
	}

	if p.atKeyword("LIMIT") {
		p.advance()
		if p.cur().Kind != TokNumber {
			return nil, core.NewParseError(p.cur().Pos, "expected number after LIMIT")
		}
		n, _ := strconv.ParseInt(p.advance().Text, 10, 64)
		stmt.Limit = &n
	}

	if p.atPunct(";") {
		p.advance()
	}
	if p.cur().Kind != TokEOF {
		return nil, core.NewParseError(p.cur().Pos, "unexpected trailing input")
	}

	return stmt, nil
}

func (p *Parser) parseProjections() ([]core.Projection, error) {
	var out []core.Projection
	for {
		if p.atPunct("*") {
			p.advance()
			out = append(out, core.Projection{Star: true})
		} else {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			proj := core.Projection{Expr: expr}
			if p.atKeyword("AS") {
				p.advance()
				if p.cur().Kind != TokIdent {
					return nil, core.NewParseError(p.cur().Pos, "expected alias after AS")
				}
				proj.Alias = p.advance().Text
			} else if p.cur().Kind == TokIdent {
				proj.Alias = p.advance().Text
			}
			out = append(out, proj)
		}
		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return out, nil
}

func (p *Parser) parseTableRef() (core.TableRef, error) {
	if p.cur().Kind != TokIdent {
		return core.TableRef{}, core.NewParseError(p.cur().Pos, "expected table name")
	}
	name := p.advance().Text
	ref := core.TableRef{Table: name, Alias: name}
	if p.atKeyword("AS") {
		p.advance()
		if p.cur().Kind != TokIdent {
			return core.TableRef{}, core.NewParseError(p.cur().Pos, "expected alias after AS")
		}
		ref.Alias = p.advance().Text
	} else if p.cur().Kind == TokIdent {
		ref.Alias = p.advance().Text
	}
	return ref, nil
}

func (p *Parser) parseJoin() (core.JoinClause, error) {
	kind := core.JoinInner
	switch {
	case p.atKeyword("LEFT"):
		kind = core.JoinLeft
		p.advance()
	case p.atKeyword("RIGHT"):
		kind = core.JoinRight
		p.advance()
	case p.atKeyword("FULL"):
		kind = core.JoinFull
		p.advance()
	case p.atKeyword("INNER"):
		p.advance()
	}
	if err := p.expectKeyword("JOIN"); err != nil {
		return core.JoinClause{}, err
	}
	ref, err := p.parseTableRef()
	if err != nil {
		return core.JoinClause{}, err
	}
	jc := core.JoinClause{Kind: kind, Table: ref}
	if p.atKeyword("ON") {
		p.advance()
		on, err := p.parseExpr()
		if err != nil {
			return core.JoinClause{}, err
		}
		jc.On = on
	}
	return jc, nil
}

func (p *Parser) parseExprList() ([]core.Expr, error) {
	var out []core.Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return out, nil
}

func (p *Parser) parseOrderTerms() ([]core.OrderTerm, error) {
	var out []core.OrderTerm
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		term := core.OrderTerm{Expr: e, Direction: core.Asc}
		if p.atKeyword("ASC") {
			p.advance()
		} else if p.atKeyword("DESC") {
			term.Direction = core.Desc
			p.advance()
		}
		out = append(out, term)
		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return out, nil
}

// Expression parsing, precedence climbing from OR (lowest) to unary (highest).

func (p *Parser) parseExpr() (core.Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (core.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return core.Expr{}, err
	}
	args := []core.Expr{left}
	for p.atKeyword("OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return core.Expr{}, err
		}
		args = append(args, right)
	}
	if len(args) == 1 {
		return args[0], nil
	}
	return core.Expr{Kind: core.ExprOr, Args: args}, nil
}

func (p *Parser) parseAnd() (core.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return core.Expr{}, err
	}
	args := []core.Expr{left}
	for p.atKeyword("AND") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return core.Expr{}, err
		}
		args = append(args, right)
	}
	if len(args) == 1 {
		return args[0], nil
	}
	return core.Expr{Kind: core.ExprAnd, Args: args}, nil
}

func (p *Parser) parseNot() (core.Expr, error) {
	if p.atKeyword("NOT") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return core.Expr{}, err
		}
		return core.Expr{Kind: core.ExprNot, Operand: &operand}, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (core.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return core.Expr{}, err
	}

	switch {
	case p.atKeyword("BETWEEN"):
		p.advance()
		lo, err := p.parseAdditive()
		if err != nil {
			return core.Expr{}, err
		}
		if err := p.expectKeyword("AND"); err != nil {
			return core.Expr{}, err
		}
		hi, err := p.parseAdditive()
		if err != nil {
			return core.Expr{}, err
		}
		return core.Expr{Kind: core.ExprBetween, Left: &left, Low: &lo, High: &hi}, nil

	case p.atKeyword("IN"):
		p.advance()
		if err := p.expectPunct("("); err != nil {
			return core.Expr{}, err
		}
		list, err := p.parseExprList()
		if err != nil {
			return core.Expr{}, err
		}
		if err := p.expectPunct(")"); err != nil {
			return core.Expr{}, err
		}
		return core.Expr{Kind: core.ExprIn, Left: &left, InList: list}, nil

	case p.atKeyword("IS"):
		p.advance()
		negate := false
		if p.atKeyword("NOT") {
			negate = true
			p.advance()
		}
		if err := p.expectKeyword("NULL"); err != nil {
			return core.Expr{}, err
		}
		kind := core.ExprIsNull
		if negate {
			kind = core.ExprIsNotNull
		}
		return core.Expr{Kind: kind, Operand: &left}, nil

	case p.cur().Kind == TokPunct && isCompareOp(p.cur().Text):
		op := p.advance().Text
		right, err := p.parseAdditive()
		if err != nil {
			return core.Expr{}, err
		}
		return core.Expr{Kind: core.ExprBinary, Op: compareOpFor(op), Left: &left, Right: &right}, nil
	}

	return left, nil
}

func isCompareOp(s string) bool {
	switch s {
	case "=", "!=", "<>", "<", "<=", ">", ">=":
		return true
	}
	return false
}

func compareOpFor(s string) core.BinaryOp {
	switch s {
	case "=":
		return core.OpEq
	case "!=", "<>":
		return core.OpNeq
	case "<":
		return core.OpLt
	case "<=":
		return core.OpLte
	case ">":
		return core.OpGt
	case ">=":
		return core.OpGte
	}
	return core.OpEq
}

func (p *Parser) parseAdditive() (core.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return core.Expr{}, err
	}
	for p.cur().Kind == TokPunct && (p.cur().Text == "+" || p.cur().Text == "-" || p.cur().Text == "||") {
		op := p.advance().Text
		right, err := p.parseMultiplicative()
		if err != nil {
			return core.Expr{}, err
		}
		var bop core.BinaryOp
		switch op {
		case "+":
			bop = core.OpAdd
		case "-":
			bop = core.OpSub
		case "||":
			bop = core.OpConcat
		}
		left = core.Expr{Kind: core.ExprBinary, Op: bop, Left: &left, Right: &right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (core.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return core.Expr{}, err
	}
	for p.cur().Kind == TokPunct && (p.cur().Text == "*" || p.cur().Text == "/") {
		op := p.advance().Text
		right, err := p.parseUnary()
		if err != nil {
			return core.Expr{}, err
		}
		bop := core.OpMul
		if op == "/" {
			bop = core.OpDiv
		}
		left = core.Expr{Kind: core.ExprBinary, Op: bop, Left: &left, Right: &right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (core.Expr, error) {
	if p.atPunct("-") {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return core.Expr{}, err
		}
		return core.Expr{Kind: core.ExprUnary, Op: core.OpSub, Operand: &operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (core.Expr, error) {
	t := p.cur()

	switch {
	case t.Kind == TokPunct && t.Text == "(":
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return core.Expr{}, err
		}
		if err := p.expectPunct(")"); err != nil {
			return core.Expr{}, err
		}
		return e, nil

	case t.Kind == TokPunct && t.Text == "*":
		p.advance()
		return core.Expr{Kind: core.ExprStar}, nil

	case t.Kind == TokNumber:
		p.advance()
		return numberLiteral(t.Text), nil

	case t.Kind == TokString:
		p.advance()
		return core.Expr{Kind: core.ExprLiteral, Literal: core.Literal{Kind: core.LitString, Str: t.Text}}, nil

	case t.Kind == TokKeyword && (t.Text == "TRUE" || t.Text == "FALSE"):
		p.advance()
		return core.Expr{Kind: core.ExprLiteral, Literal: core.Literal{Kind: core.LitBool, Bool: t.Text == "TRUE"}}, nil

	case t.Kind == TokIdent:
		return p.parseIdentOrCall()
	}

	return core.Expr{}, core.NewParseError(t.Pos, "unexpected token '"+t.Text+"'")
}

func numberLiteral(text string) core.Expr {
	if strings.Contains(text, ".") {
		f, _ := strconv.ParseFloat(text, 64)
		return core.Expr{Kind: core.ExprLiteral, Literal: core.Literal{Kind: core.LitFloat, Flt: f}}
	}
	n, _ := strconv.ParseInt(text, 10, 64)
	return core.Expr{Kind: core.ExprLiteral, Literal: core.Literal{Kind: core.LitInt, Int: n}}
}

func (p *Parser) parseIdentOrCall() (core.Expr, error) {
	name := p.advance().Text

	if p.atPunct(".") {
		p.advance()
		if p.atPunct("*") {
			p.advance()
			return core.Expr{Kind: core.ExprStar, Table: name}, nil
		}
		if p.cur().Kind != TokIdent {
			return core.Expr{}, core.NewParseError(p.cur().Pos, "expected column name after '.'")
		}
		col := p.advance().Text
		return core.Expr{Kind: core.ExprColumn, Table: name, Column: col}, nil
	}

	if p.atPunct("(") {
		p.advance()
		var args []core.Expr
		if !p.atPunct(")") {
			if p.atPunct("*") {
				p.advance()
				args = append(args, core.Expr{Kind: core.ExprStar})
			} else {
				list, err := p.parseExprList()
				if err != nil {
					return core.Expr{}, err
				}
				args = list
			}
		}
		if err := p.expectPunct(")"); err != nil {
			return core.Expr{}, err
		}
		call := core.Expr{Kind: core.ExprFuncCall, Func: strings.ToUpper(name), Call: args}
		if p.atKeyword("OVER") {
			p.advance()
			call.Over = true
			if err := p.skipOverClause(); err != nil {
				return core.Expr{}, err
			}
		}
		return call, nil
	}

	return core.Expr{Kind: core.ExprColumn, Column: name}, nil
}

// skipOverClause consumes an OVER (PARTITION BY ... ORDER BY ...) clause
// without building a dedicated AST node; the router only needs to know a
// call is windowed, not the window frame itself, for feature extraction.
func (p *Parser) skipOverClause() error {
	if err := p.expectPunct("("); err != nil {
		return err
	}
	depth := 1
	for depth > 0 {
		if p.cur().Kind == TokEOF {
			return core.NewParseError(p.cur().Pos, "unterminated OVER clause")
		}
		if p.atPunct("(") {
			depth++
		} else if p.atPunct(")") {
			depth--
		}
		p.advance()
	}
	return nil
}
