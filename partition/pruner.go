package partition

import (
	"context"

	"github.com/irouter/qrouter/core"
)

// Pruner evaluates a query's per-table predicates against a Catalog's
// partition indexes, producing a ScanPlan that lists only the partitions
// (and their files) that cannot be proven disjoint from the predicates.
type Pruner struct {
	catalog *Catalog
}

func NewPruner(catalog *Catalog) *Pruner {
	return &Pruner{catalog: catalog}
}

// Plan builds a ScanPlan for the given per-table predicate sets. Every table
// referenced by tables is resolved through the catalog; its partition index
// is built on first access and self-refreshes on later calls whenever a
// mtime-only walk finds a file newer than what the index last observed.
func (pr *Pruner) Plan(ctx context.Context, tables []string, predicates map[string][]core.Predicate) (*core.ScanPlan, error) {
	plan := &core.ScanPlan{Tables: map[string]*core.TableScan{}}

	for _, table := range tables {
		idx, err := pr.catalog.IndexFor(table)
		if err != nil {
			return nil, err
		}
		partitions, err := idx.Snapshot(ctx)
		if err != nil {
			return nil, err
		}

		preds := filterPrunable(predicates[table])
		scan := &core.TableScan{Table: table}
		plan.PartitionsTotal += len(partitions)

		for _, part := range partitions {
			retain, warn := evaluatePartition(table, part, preds)
			if warn != nil {
				plan.Warnings = append(plan.Warnings, *warn)
			}
			if !retain {
				continue
			}
			plan.PartitionsScanned++
			scan.Partitions = append(scan.Partitions, part)
			scan.Files = append(scan.Files, part.Files...)
			scan.Bytes += part.SizeBytes
		}

		plan.Tables[table] = scan
		plan.TotalBytes += scan.Bytes
	}

	if plan.PartitionsTotal > 0 {
		plan.FractionPruned = 1 - float64(plan.PartitionsScanned)/float64(plan.PartitionsTotal)
	}

	return plan, nil
}

// filterPrunable drops PredOther entries, which pruning cannot evaluate.
func filterPrunable(preds []core.Predicate) []core.Predicate {
	var out []core.Predicate
	for _, p := range preds {
		if p.Kind != core.PredOther {
			out = append(out, p)
		}
	}
	return out
}

// evaluatePartition reports whether part must be retained (cannot be proven
// disjoint from every predicate) plus an optional non-fatal warning. Pruning
// is conservative: any predicate that cannot be evaluated against the
// partition's key/value map (missing key, type mismatch) causes the
// partition to be retained rather than dropped.
func evaluatePartition(table string, part *core.Partition, preds []core.Predicate) (bool, *core.PruneWarning) {
	kv := map[string]string{}
	for _, k := range part.Keys {
		kv[k.Key] = k.Value
	}

	var warning *core.PruneWarning
	for _, p := range preds {
		val, ok := kv[p.Col]
		if !ok {
			// column isn't a partition key; predicate cannot prune this table on it
			continue
		}

		// IN coerces the partition's raw value once per candidate member's
		// own kind rather than once against a single kind picked up front:
		// a mixed-kind Set (e.g. a string and an int literal) must give
		// every member a fair, correctly-typed comparison, since a member
		// whose kind fails to coerce simply cannot equal val under that
		// member specifically — that is a sound conclusion, not an
		// ambiguous one, so it needs no warning.
		if p.Kind == core.PredIn {
			if predicateExcludesIn(p, val) {
				return false, warning
			}
			continue
		}

		lit, coerced := core.CoerceString(val, literalKindOf(p))
		if !coerced {
			if warning == nil {
				warning = &core.PruneWarning{
					Kind:    core.WarnTypeCoercion,
					Table:   table,
					Column:  p.Col,
					Message: "could not coerce partition value \"" + val + "\" to predicate literal type; retaining partition",
				}
			}
			continue // retain: cannot prove disjoint
		}
		if !predicateExcludes(p, lit) {
			continue
		}
		return false, warning
	}
	return true, warning
}

// literalKindOf picks the LiteralKind to coerce a partition's raw string
// value into so it can be compared against p's literal(s). Not used for
// PredIn, which coerces per-member (see predicateExcludesIn).
func literalKindOf(p core.Predicate) core.LiteralKind {
	switch p.Kind {
	case core.PredEq, core.PredNeq:
		return p.Value.Kind
	case core.PredRange:
		if p.Lo != nil {
			return p.Lo.Kind
		}
		if p.Hi != nil {
			return p.Hi.Kind
		}
	}
	return core.LitString
}

// predicateExcludes reports whether the partition's coerced literal value
// PROVES the predicate can never match any row in the partition, i.e. it is
// safe to drop the partition. A partition key is by construction present
// (never null), so IsNull always excludes and IsNotNull never does.
func predicateExcludes(p core.Predicate, val core.Literal) bool {
	switch p.Kind {
	case core.PredIsNull:
		return true

	case core.PredEq:
		cmp, ok := core.CompareLiterals(val, p.Value)
		return ok && cmp != 0

	case core.PredNeq:
		cmp, ok := core.CompareLiterals(val, p.Value)
		return ok && cmp == 0

	case core.PredRange:
		if p.Lo != nil {
			cmp, ok := core.CompareLiterals(val, *p.Lo)
			if !ok {
				return false
			}
			if cmp < 0 || (cmp == 0 && !p.LoInclusive) {
				return true
			}
		}
		if p.Hi != nil {
			cmp, ok := core.CompareLiterals(val, *p.Hi)
			if !ok {
				return false
			}
			if cmp > 0 || (cmp == 0 && !p.HiInclusive) {
				return true
			}
		}
		return false

	default:
		return false
	}
}

// predicateExcludesIn reports whether an IN predicate proves a partition
// with the given raw key value can never match any row, coercing val
// separately against each Set member's own LiteralKind rather than once
// against a single kind chosen up front, so a mixed-kind Set gives every
// member a fair comparison.
func predicateExcludesIn(p core.Predicate, val string) bool {
	if len(p.Set) == 0 {
		return false
	}
	for _, s := range p.Set {
		lit, ok := core.CoerceString(val, s.Kind)
		if !ok {
			continue
		}
		if cmp, ok := core.CompareLiterals(lit, s); ok && cmp == 0 {
			return false
		}
	}
	return true
}
