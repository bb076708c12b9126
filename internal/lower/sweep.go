package lower

import (
	"strconv"
	"strings"

	"github.com/lyzr/slurmplan/internal/plan"
)

// sweepCombo is one assignment in a sweep's Cartesian product, keeping
// the parameter order of the originating plan.SweepParam slice so
// {sweep_idx} and template formatting are reproducible.
type sweepCombo struct {
	names  []string
	values []string
}

// cartesianProduct enumerates every combination of the sweep's
// parameter value lists, in mapping (insertion) order: the first
// parameter varies slowest, matching Python's itertools.product over
// the same key order.
func cartesianProduct(params []plan.SweepParam) []sweepCombo {
	if len(params) == 0 {
		return nil
	}
	total := 1
	for _, p := range params {
		total *= len(p.Values)
	}
	combos := make([]sweepCombo, total)
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}

	for idx := 0; idx < total; idx++ {
		rem := idx
		values := make([]string, len(params))
		for i := len(params) - 1; i >= 0; i-- {
			n := len(params[i].Values)
			values[i] = params[i].Values[rem%n]
			rem /= n
		}
		combos[idx] = sweepCombo{names: names, values: values}
	}
	return combos
}

// formatSweepTemplate replaces {param} tokens for every sweep
// parameter, plus {sweep_idx} and {group_id}, leaving any other
// brace-delimited token untouched.
func formatSweepTemplate(template string, combo sweepCombo, idx int, groupID string) string {
	pairs := make([]string, 0, 2*(len(combo.names)+2))
	for i, name := range combo.names {
		pairs = append(pairs, "{"+name+"}", combo.values[i])
	}
	pairs = append(pairs, "{sweep_idx}", strconv.Itoa(idx))
	pairs = append(pairs, "{group_id}", groupID)
	return strings.NewReplacer(pairs...).Replace(template)
}
