// Package core holds the types, errors and logging plumbing shared by every
// subsystem of the query router: the SQL front-end, the partition pruner,
// the cost model, the result cache and the orchestrating engine.
package core

import (
	"time"

	"github.com/apache/arrow/go/v14/arrow"
)

// LogicalType is one of the row-level column types the router understands.
// It is the type domain literals, declared schemas and result columns all
// live in.
type LogicalType int

const (
	TypeUnknown LogicalType = iota
	TypeInt64
	TypeFloat64
	TypeBool
	TypeString
	TypeDate
	TypeTimestampNS
	TypeNull
)

func (t LogicalType) String() string {
	switch t {
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeDate:
		return "date"
	case TypeTimestampNS:
		return "timestamp_ns"
	case TypeNull:
		return "null"
	default:
		return "unknown"
	}
}

// Column is a single (name, logical type) pair of a declared or result schema.
type Column struct {
	Name string
	Type LogicalType
}

// Schema is an ordered list of columns.
type Schema []Column

// Table describes a catalog-registered table: an immutable identifier, its
// root directory on disk, and an optional declared schema. Tables are
// created once, at registration, and referenced many times thereafter.
type Table struct {
	Name   string
	Root   string
	Schema Schema // nil when no schema was declared
}

// FileInfo describes a single physical data file backing a partition.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// PartitionKV is one (key, value) pair of a partition's directory path,
// e.g. "date=2024-11-01" becomes {Key: "date", Value: "2024-11-01"}.
type PartitionKV struct {
	Key   string
	Value string
}

// Partition is a contiguous directory-level subset of a table, identified by
// the ordered chain of key=value directory components leading to it.
type Partition struct {
	Keys      []PartitionKV
	Files     []FileInfo
	SizeBytes int64
	MaxMTime  time.Time
}

// LiteralKind tags the concrete type carried by a Literal.
type LiteralKind int

const (
	LitInt LiteralKind = iota
	LitFloat
	LitBool
	LitString
	LitDate      // days since epoch
	LitTimestamp // nanoseconds since epoch
)

// Literal is a tagged constant value appearing in a predicate. Comparison
// between two literals is only defined when their Kind matches; comparing
// across kinds is the caller's job to reject (surfaced as an Other
// predicate upstream).
type Literal struct {
	Kind LiteralKind
	Int  int64   // LitInt, LitDate (days), LitTimestamp (ns)
	Flt  float64 // LitFloat
	Bool bool    // LitBool
	Str  string  // LitString
}

// PredicateKind tags the shape of a normalized conjunct.
type PredicateKind int

const (
	PredEq PredicateKind = iota
	PredNeq
	PredRange
	PredIn
	PredIsNull
	PredIsNotNull
	PredOther
)

// Predicate is a single normalized conjunct extracted from a query's WHERE
// clause. It refers to exactly one column of exactly one referenced table.
type Predicate struct {
	Kind  PredicateKind
	Table string
	Col   string

	// PredEq / PredNeq
	Value Literal

	// PredRange
	Lo, Hi                 *Literal
	LoInclusive, HiInclusive bool

	// PredIn
	Set []Literal

	// PredOther: retained for the executor, opaque to pruning.
	RawText string
}

// Features summarizes the shape of a query's AST for the cost model.
type Features struct {
	Joins            int
	Aggregations     int
	Windows          int
	Distinct         bool
	OrderBy          bool
	Limit            *int64
	ProjectedColumns int
	Selectivity      float64 // heuristic estimate in [0,1]
	ComplexityScore  int     // joins*3 + aggregations*2 + windows*4 + distinct*1 + order_by*1
}

// AnalyzedQuery is the output of the SQL front-end: a parsed, optimized and
// canonicalized query together with the predicates and features extracted
// from it.
type AnalyzedQuery struct {
	OriginalText  string
	CanonicalText string
	AST           Stmt
	Tables        []string
	Predicates    map[string][]Predicate // table -> predicates referencing it
	Features      Features
	Dialect       string
}

// PruneWarningKind tags a non-fatal condition surfaced by the pruner.
type PruneWarningKind int

const (
	WarnTypeCoercion PruneWarningKind = iota
)

// PruneWarning is a warning-level condition attached to a ScanPlan; it never
// aborts pruning.
type PruneWarning struct {
	Kind    PruneWarningKind
	Table   string
	Column  string
	Message string
}

// ScanPlan is the pruner's output for one Analyze/Engine call: the retained
// partitions and flattened file list per referenced table, plus global
// pruning statistics.
type ScanPlan struct {
	Tables map[string]*TableScan

	TotalBytes        int64
	PartitionsScanned int
	PartitionsTotal   int
	FractionPruned    float64
	Warnings          []PruneWarning
}

// TableScan is the per-table slice of a ScanPlan.
type TableScan struct {
	Table      string
	Partitions []*Partition
	Files      []FileInfo
	Bytes      int64
}

// AllFiles returns every file path across every table in the plan, used as
// the cache witness set.
func (p *ScanPlan) AllFiles() []string {
	var out []string
	for _, ts := range p.Tables {
		for _, f := range ts.Files {
			out = append(out, f.Path)
		}
	}
	return out
}

// MaxWitnessMTime returns the most recent modification time across every
// file the plan witnessed, used as the cache's staleness watermark: a cache
// hit is only valid if no witnessed file has changed since this time.
func (p *ScanPlan) MaxWitnessMTime() time.Time {
	var max time.Time
	for _, ts := range p.Tables {
		for _, f := range ts.Files {
			if f.ModTime.After(max) {
				max = f.ModTime
			}
		}
	}
	return max
}

// BackendKind enumerates the three modeled execution engines.
type BackendKind int

const (
	Vectorized BackendKind = iota
	Parallel
	Distributed
)

func (k BackendKind) String() string {
	switch k {
	case Vectorized:
		return "vectorized"
	case Parallel:
		return "parallel"
	case Distributed:
		return "distributed"
	default:
		return "unknown"
	}
}

// CostEstimate is the per-backend cost breakdown produced by the cost model.
// Keeping scan/compute/overhead separate (rather than only the summed
// EstimatedMS) lets callers cite the specific deciding term in a selection
// reason.
type CostEstimate struct {
	Kind             BackendKind
	ScanMS           float64
	ComputeOverheadMS float64
	StartupMS        float64
	EstimatedMS      float64
	EstimatedMemory  int64
	Feasible         bool
	Reason           string
}

// BackendCandidate is a ranked cost estimate for one backend kind.
type BackendCandidate = CostEstimate

// Table is deliberately not redeclared here as a data value type; see
// core.RowSet below for the tabular row representation.

// RowSet is the tabular value produced by an executor and stored in the
// cache: an Arrow record plus the declared logical schema it was produced
// against.
type RowSet struct {
	Schema Schema
	Record arrow.Record
}

// NumRows reports the row count of the underlying Arrow record, or 0 when
// there is none.
func (r RowSet) NumRows() int64 {
	if r.Record == nil {
		return 0
	}
	return r.Record.NumRows()
}

// QueryResult is the outcome of a single Execute call.
type QueryResult struct {
	Rows              RowSet
	BackendUsed       BackendKind
	ExecutionTimeMS   float64
	RowsProcessed     int64
	ScanPlanSummary   ScanPlanSummary
	FromCache         bool
}

// ScanPlanSummary is the compact, cacheable projection of a ScanPlan used in
// QueryResult and the Explain report.
type ScanPlanSummary struct {
	TotalBytes        int64
	PartitionsScanned int
	PartitionsTotal   int
	FractionPruned    float64
}

func SummarizeScanPlan(p *ScanPlan) ScanPlanSummary {
	return ScanPlanSummary{
		TotalBytes:        p.TotalBytes,
		PartitionsScanned: p.PartitionsScanned,
		PartitionsTotal:   p.PartitionsTotal,
		FractionPruned:    p.FractionPruned,
	}
}
