package planner

import (
	"strings"

	"github.com/rustyeddy/rebalancer/risk"
)

// Group is a sleeve of the portfolio that receives Weight of equity,
// split equally across its symbols.
type Group struct {
	Name    string   `json:"name" yaml:"name"`
	Weight  float64  `json:"weight" yaml:"weight"`
	Symbols []string `json:"symbols" yaml:"symbols"`
}

// Targets builds dollar targets from the groups. Each group's share is
// split over its listed symbols, duplicates included. A symbol listed in
// more than one group takes the later group's value but keeps the position
// of its first listing. When the groups ask for more than MaxTotalExposure
// all targets shrink proportionally; each target is then capped at
// MaxPositionPct of equity.
func Targets(equity float64, groups []Group, l risk.Limits) []Target {
	if equity <= 0 {
		return nil
	}

	idx := map[string]int{}
	var out []Target
	for _, g := range groups {
		var syms []string
		for _, s := range g.Symbols {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				syms = append(syms, s)
			}
		}
		if len(syms) == 0 || g.Weight <= 0 {
			continue
		}

		each := equity * g.Weight / float64(len(syms))
		for _, s := range syms {
			if i, ok := idx[s]; ok {
				out[i].Value = each
				continue
			}
			idx[s] = len(out)
			out = append(out, Target{Symbol: s, Value: each})
		}
	}

	total := 0.0
	for _, t := range out {
		total += t.Value
	}
	if limit := equity * l.MaxTotalExposure; total > limit && total > 0 {
		scale := limit / total
		for i := range out {
			out[i].Value *= scale
		}
	}

	posCap := equity * l.MaxPositionPct
	for i := range out {
		out[i].Value = min(out[i].Value, posCap)
	}
	return out
}
