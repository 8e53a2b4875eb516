package net

import "sort"

// Strategy picks the order in which servers are tried for a new connection
// or a fetch-retry rotation.
type Strategy string

const (
	// StrategyRoundRobin cycles through servers in turn.
	StrategyRoundRobin Strategy = "round_robin"
	// StrategyWeighted orders servers by configured priority, highest first.
	StrategyWeighted Strategy = "weighted"
	// StrategyHealthFirst orders healthy servers before unhealthy ones,
	// breaking ties by priority.
	StrategyHealthFirst Strategy = "health_first"
)

type rotator struct {
	strategy Strategy
	order    []string // last round-robin order, rotated on each call
}

func newRotator(strategy Strategy, serverIDs []string) *rotator {
	order := make([]string, len(serverIDs))
	copy(order, serverIDs)
	return &rotator{strategy: strategy, order: order}
}

// next returns the server IDs to try, in priority order, for this attempt.
// prefer, if non-empty, is always tried first regardless of strategy.
func (r *rotator) next(prefer string, priority map[string]int, healthy map[string]bool) []string {
	candidates := make([]string, len(r.order))
	copy(candidates, r.order)

	switch r.strategy {
	case StrategyWeighted:
		sort.SliceStable(candidates, func(i, j int) bool {
			return priority[candidates[i]] > priority[candidates[j]]
		})
	case StrategyHealthFirst:
		sort.SliceStable(candidates, func(i, j int) bool {
			hi, hj := healthy[candidates[i]], healthy[candidates[j]]
			if hi != hj {
				return hi
			}
			return priority[candidates[i]] > priority[candidates[j]]
		})
	case StrategyRoundRobin:
		if len(r.order) > 0 {
			r.order = append(r.order[1:], r.order[0])
		}
	}

	if prefer == "" {
		return candidates
	}
	out := make([]string, 0, len(candidates)+1)
	out = append(out, prefer)
	for _, id := range candidates {
		if id != prefer {
			out = append(out, id)
		}
	}
	return out
}
