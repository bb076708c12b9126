package plan

import (
	"fmt"

	"github.com/lyzr/slurmplan/internal/errs"
)

// jobKeys and groupKeys enumerate the keys a leaf/group mapping may
// carry; anything else at that position is rejected per spec.
var jobKeys = map[string]bool{
	"preamble_key": true,
	"command":      true,
	"name":         true,
}

var groupKeys = map[string]bool{
	"kind":           true,
	"jobs":           true,
	"preamble_key":   true,
	"name":           true,
	"sweep":          true,
	"sweep_template": true,
	"loop_count":     true,
	"loop_kind":      true,
}

// ParsePlan builds a *Group from the root of a generic nested mapping,
// the shape an external YAML/JSON reader hands us. The root must be a
// group node (wrapped in a "group" key, matching the shape of any
// other group-position entry in the tree).
func ParsePlan(raw map[string]interface{}) (*Group, error) {
	node, err := parseNode(raw)
	if err != nil {
		return nil, err
	}
	group, ok := node.(*Group)
	if !ok {
		return nil, errs.New(errs.InvalidPlan, "root of plan must be a group", nil)
	}
	return group, nil
}

// parseNode dispatches on key presence: "job" means leaf, "group"
// means interior node. Anything else is rejected.
func parseNode(raw map[string]interface{}) (Node, error) {
	if len(raw) != 1 {
		return nil, errs.New(errs.InvalidPlan, "node must have exactly one of \"job\" or \"group\"", nil)
	}
	if jobRaw, ok := raw["job"]; ok {
		return parseJob(jobRaw)
	}
	if groupRaw, ok := raw["group"]; ok {
		return parseGroup(groupRaw)
	}
	return nil, errs.New(errs.InvalidPlan, "node must have exactly one of \"job\" or \"group\"", nil)
}

func parseJob(raw interface{}) (*Job, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errs.New(errs.InvalidPlan, "job must be a mapping", nil)
	}
	for k := range m {
		if !jobKeys[k] {
			return nil, errs.New(errs.InvalidPlan, fmt.Sprintf("unknown job key %q", k), nil)
		}
	}

	preambleKey, _ := stringField(m, "preamble_key")
	command, ok := stringField(m, "command")
	if !ok || command == "" {
		return nil, errs.New(errs.InvalidPlan, "job.command is required", nil)
	}
	name, _ := stringField(m, "name")

	return &Job{
		PreambleKey: preambleKey,
		Command:     command,
		Name:        name,
	}, nil
}

func parseGroup(raw interface{}) (*Group, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errs.New(errs.InvalidPlan, "group must be a mapping", nil)
	}
	for k := range m {
		if !groupKeys[k] {
			return nil, errs.New(errs.InvalidPlan, fmt.Sprintf("unknown group key %q", k), nil)
		}
	}

	kindStr, ok := stringField(m, "kind")
	if !ok || kindStr == "" {
		return nil, errs.New(errs.InvalidPlan, "group.kind is required", nil)
	}
	kind := Kind(kindStr)

	name, _ := stringField(m, "name")
	preambleKey, _ := stringField(m, "preamble_key")

	group := &Group{
		Kind:        kind,
		Name:        name,
		PreambleKey: preambleKey,
	}

	switch kind {
	case Sequential, Parallel:
		children, err := parseChildren(m)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			return nil, errs.New(errs.InvalidPlan, fmt.Sprintf("%s group requires a non-empty jobs list", kind), nil)
		}
		group.Children = children

	case Sweep:
		sweep, err := parseSweep(m)
		if err != nil {
			return nil, err
		}
		if len(sweep) == 0 {
			return nil, errs.New(errs.InvalidPlan, "sweep group requires a non-empty sweep mapping", nil)
		}
		template, _ := stringField(m, "sweep_template")
		if template == "" {
			return nil, errs.New(errs.InvalidPlan, "sweep group requires a non-empty sweep_template", nil)
		}
		group.Sweep = sweep
		group.SweepTemplate = template

	case Loop:
		count, err := intField(m, "loop_count")
		if err != nil {
			return nil, err
		}
		if count < 1 {
			return nil, errs.New(errs.InvalidPlan, "loop group requires loop_count >= 1", nil)
		}
		loopKind := Sequential
		if raw, ok := m["loop_kind"]; ok {
			s, ok := raw.(string)
			if !ok || (Kind(s) != Sequential && Kind(s) != Parallel) {
				return nil, errs.New(errs.InvalidPlan, "loop_kind must be \"sequential\" or \"parallel\"", nil)
			}
			loopKind = Kind(s)
		}
		children, err := parseChildren(m)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			return nil, errs.New(errs.InvalidPlan, "loop group requires a non-empty jobs list", nil)
		}
		group.LoopCount = count
		group.LoopKind = loopKind
		group.Children = children

	default:
		return nil, errs.New(errs.InvalidPlan, fmt.Sprintf("unknown group kind %q", kindStr), nil)
	}

	return group, nil
}

func parseChildren(m map[string]interface{}) ([]Node, error) {
	rawJobs, ok := m["jobs"]
	if !ok {
		return nil, nil
	}
	items, ok := rawJobs.([]interface{})
	if !ok {
		return nil, errs.New(errs.InvalidPlan, "jobs must be a list", nil)
	}
	children := make([]Node, 0, len(items))
	for _, item := range items {
		childMap, ok := item.(map[string]interface{})
		if !ok {
			return nil, errs.New(errs.InvalidPlan, "each jobs entry must be a mapping", nil)
		}
		child, err := parseNode(childMap)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// parseSweep reads the sweep mapping preserving insertion order. It
// accepts a list of single-key mappings (`[{"p1": [...]}, {"p2": [...]}]`)
// since Go's generic map type cannot itself carry key order, and the
// Cartesian product's key order is load-bearing (spec.md §4.3).
func parseSweep(m map[string]interface{}) ([]SweepParam, error) {
	rawSweep, ok := m["sweep"]
	if !ok {
		return nil, nil
	}
	items, ok := rawSweep.([]interface{})
	if !ok {
		return nil, errs.New(errs.InvalidPlan, "sweep must be an ordered list of single-key mappings", nil)
	}

	params := make([]SweepParam, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok || len(entry) != 1 {
			return nil, errs.New(errs.InvalidPlan, "each sweep entry must be a single-key mapping", nil)
		}
		for name, rawValues := range entry {
			values, err := stringSlice(rawValues)
			if err != nil {
				return nil, errs.New(errs.InvalidPlan, fmt.Sprintf("sweep parameter %q: %v", name, err), nil)
			}
			if len(values) == 0 {
				return nil, errs.New(errs.InvalidPlan, fmt.Sprintf("sweep parameter %q has no values", name), nil)
			}
			params = append(params, SweepParam{Name: name, Values: values})
		}
	}
	return params, nil
}

func stringField(m map[string]interface{}, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func intField(m map[string]interface{}, key string) (int, error) {
	v, ok := m[key]
	if !ok {
		return 0, errs.New(errs.InvalidPlan, fmt.Sprintf("%s is required", key), nil)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, errs.New(errs.InvalidPlan, fmt.Sprintf("%s must be a number", key), nil)
	}
}

func stringSlice(v interface{}) ([]string, error) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a list of values")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprint(item))
	}
	return out, nil
}
