// Package plan holds the tagged tree of group/job nodes a workflow
// compiles from, and the parser that builds it from a generic nested
// mapping (the shape a YAML/JSON reader would hand us).
package plan

// Kind enumerates the four composable group constructs.
type Kind string

const (
	Sequential Kind = "sequential"
	Parallel   Kind = "parallel"
	Sweep      Kind = "sweep"
	Loop       Kind = "loop"
)

// Node is the sum type every plan tree element satisfies: either a
// *Job leaf or a *Group interior node. The parser decides which by key
// presence in the raw mapping; nothing else implements this interface.
type Node interface {
	node()
}

// Job is a plan leaf: one submittable unit before lowering.
type Job struct {
	PreambleKey string
	Command     string
	Name        string // optional; empty means unnamed
}

func (*Job) node() {}

// SweepParam is one named parameter of a sweep's Cartesian product.
// Sweeps use an ordered slice rather than a map so that "stable key
// order = insertion order" (spec requirement) doesn't depend on Go's
// unspecified map iteration order.
type SweepParam struct {
	Name   string
	Values []string
}

// Group is a plan interior node: one of the four composable
// constructs, immutable once parsed.
type Group struct {
	Kind        Kind
	Children    []Node
	PreambleKey string // used by sweep-generated synthetic leaves
	Name        string // optional; empty means unnamed

	// Sweep-only fields.
	Sweep         []SweepParam
	SweepTemplate string

	// Loop-only fields.
	LoopCount int
	LoopKind  Kind // Sequential or Parallel; defaults to Sequential
}

func (*Group) node() {}
