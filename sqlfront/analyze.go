package sqlfront

import "github.com/irouter/qrouter/core"

// Frontend wires the Tokenizer/Parser/Optimizer/Canonicalizer/FeatureExtractor
// together into the single Analyze entry point the engine calls.
type Frontend struct {
	dialect  string
	parser   *Parser
	opt      *Optimizer
	canon    *Canonicalizer
	features *FeatureExtractor
}

func NewFrontend(dialect string) *Frontend {
	return &Frontend{
		dialect:  dialect,
		parser:   NewParser(dialect),
		opt:      NewOptimizer(),
		canon:    NewCanonicalizer(),
		features: NewFeatureExtractor(),
	}
}

// TableResolver reports whether a table name is registered and, if so, its
// declared schema (nil when no schema was declared). The pruner's Catalog
// implements this; kept as a small interface here so sqlfront never imports
// the partition package.
type TableResolver interface {
	ResolveTable(name string) (core.Table, bool)
}

// Analyze runs parse -> optimize -> canonicalize -> extract features and
// predicates, producing a core.AnalyzedQuery. catalog may be nil, in which
// case UnknownTable/AmbiguousColumn checks are skipped (no schema to check
// against).
func (fe *Frontend) Analyze(sql string, catalog TableResolver) (*core.AnalyzedQuery, error) {
	stmt, err := fe.parser.Parse(sql)
	if err != nil {
		return nil, err
	}

	tables := allTables(stmt)
	if catalog != nil {
		for _, t := range tables {
			if _, ok := catalog.ResolveTable(t); !ok {
				return nil, core.NewUnknownTable(t)
			}
		}
		if err := checkAmbiguousColumns(stmt, catalog); err != nil {
			return nil, err
		}
	}

	optimized := fe.opt.Optimize(stmt)
	canonical := fe.canon.Canonicalize(optimized)
	features := fe.features.Extract(optimized)
	predicates := ExtractPredicates(optimized)
	if catalog != nil {
		retypePredicates(predicates, catalog)
	}

	return &core.AnalyzedQuery{
		OriginalText:  sql,
		CanonicalText: canonical,
		AST:           *optimized,
		Tables:        tables,
		Predicates:    predicates,
		Features:      features,
		Dialect:       fe.dialect,
	}, nil
}

// retypePredicates re-tags string literals in predicates whose column has a
// declared non-string logical type (date, timestamp, numeric), so that
// downstream comparisons (pruning, cost estimation) compare within a
// matching Literal.Kind rather than lexicographically on the raw text a
// literal happened to be spelled with.
func retypePredicates(byTable map[string][]core.Predicate, catalog TableResolver) {
	for table, preds := range byTable {
		tbl, ok := catalog.ResolveTable(table)
		if !ok || tbl.Schema == nil {
			continue
		}
		colType := map[string]core.LogicalType{}
		for _, c := range tbl.Schema {
			colType[c.Name] = c.Type
		}
		for i := range preds {
			retypeOne(&preds[i], colType)
		}
	}
}

func retypeOne(p *core.Predicate, colType map[string]core.LogicalType) {
	lt, ok := colType[p.Col]
	if !ok {
		return
	}
	kind, ok := literalKindFor(lt)
	if !ok {
		return
	}
	retype := func(l *core.Literal) {
		if l == nil || l.Kind != core.LitString || kind == core.LitString {
			return
		}
		if coerced, ok := core.CoerceString(l.Str, kind); ok {
			*l = coerced
		}
	}
	retype(&p.Value)
	retype(p.Lo)
	retype(p.Hi)
	for i := range p.Set {
		retype(&p.Set[i])
	}
}

func literalKindFor(t core.LogicalType) (core.LiteralKind, bool) {
	switch t {
	case core.TypeInt64:
		return core.LitInt, true
	case core.TypeFloat64:
		return core.LitFloat, true
	case core.TypeBool:
		return core.LitBool, true
	case core.TypeString:
		return core.LitString, true
	case core.TypeDate:
		return core.LitDate, true
	case core.TypeTimestampNS:
		return core.LitTimestamp, true
	}
	return 0, false
}

// checkAmbiguousColumns raises AmbiguousColumn only when a schema is
// registered for more than one referenced table and an unqualified column
// reference matches a column name declared in more than one of them, per
// spec.md section 4.1.
func checkAmbiguousColumns(stmt *core.Stmt, catalog TableResolver) error {
	if len(stmt.Joins) == 0 {
		return nil
	}
	schemas := map[string]core.Schema{}
	for _, t := range allTables(stmt) {
		if tbl, ok := catalog.ResolveTable(t); ok && tbl.Schema != nil {
			schemas[t] = tbl.Schema
		}
	}
	if len(schemas) < 2 {
		return nil
	}

	var walk func(e core.Expr) error
	walk = func(e core.Expr) error {
		if e.Kind == core.ExprColumn && e.Table == "" {
			owners := 0
			for _, sch := range schemas {
				for _, c := range sch {
					if c.Name == e.Column {
						owners++
						break
					}
				}
			}
			if owners > 1 {
				return core.NewAmbiguousColumn(e.Column)
			}
		}
		return walkChildren(e, walk)
	}

	if stmt.Where != nil {
		if err := walk(*stmt.Where); err != nil {
			return err
		}
	}
	for _, p := range stmt.Projections {
		if !p.Star {
			if err := walk(p.Expr); err != nil {
				return err
			}
		}
	}
	return nil
}

func walkChildren(e core.Expr, f func(core.Expr) error) error {
	switch e.Kind {
	case core.ExprBinary:
		if err := f(*e.Left); err != nil {
			return err
		}
		return f(*e.Right)
	case core.ExprAnd, core.ExprOr:
		for _, a := range e.Args {
			if err := f(a); err != nil {
				return err
			}
		}
	case core.ExprNot:
		return f(*e.Operand)
	case core.ExprFuncCall:
		for _, a := range e.Call {
			if err := f(a); err != nil {
				return err
			}
		}
	}
	return nil
}
