package cost

import (
	"fmt"

	"github.com/irouter/qrouter/core"
)

// tieBreakOrder is the deterministic preference order spec.md mandates when
// two backends tie on estimated cost: prefer the least resource-intensive
// engine first.
var tieBreakOrder = map[core.BackendKind]int{
	core.Vectorized:  0,
	core.Parallel:    1,
	core.Distributed: 2,
}

// Selector picks the cheapest feasible backend from a Model's estimates,
// applying a per-backend memory ceiling and an explicit exclusion set (used
// by the engine to retry after marking a backend infeasible mid-query).
type Selector struct {
	model *Model
}

func NewSelector(model *Model) *Selector {
	return &Selector{model: model}
}

// Select returns the winning candidate plus the full candidate list, in the
// model's profile order (not sorted by cost), each marked feasible or not.
// excluded backends are always marked infeasible with the given reason
// (e.g. "out_of_memory on prior attempt") regardless of their cost estimate.
func (s *Selector) Select(bytesScanned int64, features core.Features, excluded map[core.BackendKind]string) (*core.BackendCandidate, []core.CostEstimate, error) {
	candidates := s.model.Estimate(bytesScanned, features)

	reasons := map[core.BackendKind]string{}
	for i := range candidates {
		c := &candidates[i]
		if reason, isExcluded := excluded[c.Kind]; isExcluded {
			c.Feasible = false
			c.Reason = reason
			reasons[c.Kind] = reason
			continue
		}
		if limit := s.model.memoryLimit(c.Kind); limit > 0 && c.EstimatedMemory > limit {
			c.Feasible = false
			c.Reason = fmt.Sprintf("estimated memory %d exceeds limit %d", c.EstimatedMemory, limit)
			reasons[c.Kind] = c.Reason
		}
	}

	var winner *core.BackendCandidate
	for i := range candidates {
		c := &candidates[i]
		if !c.Feasible {
			continue
		}
		if winner == nil || better(*c, *winner) {
			winner = c
		}
	}

	if winner == nil {
		return nil, candidates, core.NewNoFeasibleBackend(reasons)
	}
	winner.Reason = reasonFor(*winner, candidates)
	return winner, candidates, nil
}

// better reports whether a should be preferred over b: strictly lower cost
// wins outright, an exact tie falls back to tieBreakOrder.
func better(a, b core.CostEstimate) bool {
	if a.EstimatedMS != b.EstimatedMS {
		return a.EstimatedMS < b.EstimatedMS
	}
	return tieBreakOrder[a.Kind] < tieBreakOrder[b.Kind]
}

// reasonFor cites the deciding factor behind winner's selection (spec.md
// section 4.3: "a human-readable reason that cites the deciding factor").
// If a more-preferred backend (lower tieBreakOrder) was ruled out ahead of
// winner, that exclusion is the deciding factor — usually memory. Otherwise
// the reason names whichever term of winner's own cost breakdown dominates.
func reasonFor(winner core.CostEstimate, candidates []core.CostEstimate) string {
	for _, c := range candidates {
		if c.Feasible || c.Kind == winner.Kind {
			continue
		}
		if tieBreakOrder[c.Kind] < tieBreakOrder[winner.Kind] {
			return fmt.Sprintf("%s excluded (%s); %s (%.2fms) is the next-cheapest feasible backend",
				c.Kind, c.Reason, winner.Kind, winner.EstimatedMS)
		}
	}

	switch {
	case winner.StartupMS >= winner.ScanMS+winner.ComputeOverheadMS:
		return fmt.Sprintf("startup amortization: fixed startup cost (%.2fms) is outweighed by the lower scan cost (%.2fms) it buys, for a total of %.2fms",
			winner.StartupMS, winner.ScanMS+winner.ComputeOverheadMS, winner.EstimatedMS)
	case winner.ComputeOverheadMS > winner.ScanMS:
		return fmt.Sprintf("complexity: query complexity overhead (%.2fms) exceeds the base scan cost (%.2fms), for a total of %.2fms",
			winner.ComputeOverheadMS, winner.ScanMS, winner.EstimatedMS)
	default:
		return fmt.Sprintf("bytes scanned: scan cost (%.2fms) dominates the %.2fms estimate, lowest among feasible backends",
			winner.ScanMS, winner.EstimatedMS)
	}
}
