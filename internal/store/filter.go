package store

import (
	"fmt"
	"strings"

	"github.com/lyzr/slurmplan/internal/errs"
)

// Filter is one parsed `field<op>value` token from the query
// surface's filter language.
type Filter struct {
	Field string
	Op    string // "=" exact, "~" substring
	Value string
}

// columnFields are the jobs/vw_jobs columns the store can filter on
// directly in SQL. "status" is accepted but handled after hydration,
// since it is scheduler-reported, not a stored column.
var columnFields = map[string]bool{
	"id":         true,
	"command":    true,
	"preamble":   true,
	"node_id":    true,
	"node_name":  true,
	"created_at": true,
	"updated_at": true,
}

const statusField = "status"

// ParseFilter splits one `field=value` or `field~value` token.
// Whichever operator character occurs first in the token wins — field
// names never contain either character.
func ParseFilter(token string) (Filter, error) {
	eq := strings.Index(token, "=")
	tilde := strings.Index(token, "~")

	var opIdx int
	var op string
	switch {
	case eq == -1 && tilde == -1:
		return Filter{}, errs.New(errs.InvalidFilter, fmt.Sprintf("malformed filter %q: missing = or ~", token), nil)
	case tilde == -1 || (eq != -1 && eq < tilde):
		opIdx, op = eq, "="
	default:
		opIdx, op = tilde, "~"
	}

	field := token[:opIdx]
	value := token[opIdx+1:]
	if field == "" {
		return Filter{}, errs.New(errs.InvalidFilter, fmt.Sprintf("malformed filter %q: empty field", token), nil)
	}
	if !columnFields[field] && field != statusField {
		return Filter{}, errs.New(errs.InvalidFilter, fmt.Sprintf("unknown filter field %q", field), nil)
	}
	return Filter{Field: field, Op: op, Value: value}, nil
}

// ParseFilters parses every token, stopping at the first error.
func ParseFilters(tokens []string) ([]Filter, error) {
	out := make([]Filter, 0, len(tokens))
	for _, t := range tokens {
		f, err := ParseFilter(t)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// splitStatus separates the status= filters (applied post-hydration)
// from the column filters (applied in SQL).
func splitStatus(filters []Filter) (column []Filter, status []Filter) {
	for _, f := range filters {
		if f.Field == statusField {
			status = append(status, f)
		} else {
			column = append(column, f)
		}
	}
	return column, status
}

// buildWhere renders the column filters into a parameterized WHERE
// clause. Values are always bound, never interpolated.
func buildWhere(filters []Filter) (string, []interface{}) {
	if len(filters) == 0 {
		return "", nil
	}
	var clauses []string
	var args []interface{}
	for _, f := range filters {
		switch f.Op {
		case "~":
			clauses = append(clauses, f.Field+" LIKE ?")
			args = append(args, "%"+f.Value+"%")
		default:
			clauses = append(clauses, f.Field+" = ?")
			args = append(args, f.Value)
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func matchesStatus(job Job, status []Filter) bool {
	for _, f := range status {
		switch f.Op {
		case "~":
			if !strings.Contains(job.Status, f.Value) {
				return false
			}
		default:
			if job.Status != f.Value {
				return false
			}
		}
	}
	return true
}
