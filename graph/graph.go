// Package graph implements FunctionGraph (spec §4.3): the append-only
// symbolic IR that accumulates tensor ops and the set of globally-guarded
// inputs for one translation attempt, and knows how to close a segment by
// handing it to the CodeGen and MetaInfer oracles.
package graph

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/wudi/sotjit/codegen"
	"github.com/wudi/sotjit/guard"
	"github.com/wudi/sotjit/internal/tracelog"
	"github.com/wudi/sotjit/meta"
	"github.com/wudi/sotjit/tracker"
	"github.com/wudi/sotjit/variable"
)

// Op is one recorded tensor operation: a call to a named host operator
// with symbolic (MetaInfo) arguments and results (spec §4.3, §6).
type Op struct {
	Name    string
	Inputs  []variable.Variable
	Outputs []variable.Variable
}

// Segment is one closed slice of the SIR, frozen by a start_compile call.
// SegmentID is threaded into the rewritten code's CALL_COMPILED_SEGMENT
// pseudo-op (SPEC_FULL §3) so segments from unrelated translation attempts
// never collide inside the cache.
type Segment struct {
	SegmentID uuid.UUID
	Ops       []Op
	Inputs    []variable.Variable
	Outputs   []variable.Variable
}

// FunctionGraph accumulates one translation attempt's symbolic IR (spec
// §4.3). One graph is created per top-level translation; nested inline
// executors append to the same graph instance.
type FunctionGraph struct {
	infer    *meta.Inferer
	cg       codegen.CodeGen
	ops      []Op
	globals  []variable.Variable
	segments []Segment
	guard    *guard.Guard
	bind     func(tracker.Tracker) (string, any)
}

// New builds an empty FunctionGraph bound to the given MetaInfer oracle
// consumer, CodeGen emitter, and frame-resolver used to stringify guards.
func New(infer *meta.Inferer, cg codegen.CodeGen, bind func(tracker.Tracker) (string, any)) *FunctionGraph {
	return &FunctionGraph{infer: infer, cg: cg, guard: guard.New(), bind: bind}
}

// RecordOp appends one tensor op to the SIR, inferring its output MetaInfo
// via the MetaInfer oracle (spec §4.3, §6).
func (g *FunctionGraph) RecordOp(name string, inputs []variable.Variable, outputTracker tracker.Tracker) (variable.Variable, error) {
	argNode := argsToNode(inputs)
	outNode, err := g.infer.Infer(name, argNode)
	if err != nil {
		return nil, fmt.Errorf("graph: infer_meta(%s) failed: %w", name, err)
	}
	if outNode.Leaf == nil {
		return nil, fmt.Errorf("graph: infer_meta(%s) did not return a leaf MetaInfo", name)
	}
	out := variable.NewTensor(outputTracker, *outNode.Leaf)
	g.ops = append(g.ops, Op{Name: name, Inputs: inputs, Outputs: []variable.Variable{out}})
	tracelog.Debugf("graph: recorded op %s -> %s", name, outNode.Leaf)
	return out, nil
}

// AddGlobalGuardedVariable marks v as part of the guard surface: any value
// whose identity the rewritten code depends on beyond tracing (e.g. a
// branch predicate) must be added here so guard_fn re-checks it (spec
// §4.4.1a: "mark the predicate tensor as globally-guarded").
func (g *FunctionGraph) AddGlobalGuardedVariable(v variable.Variable) error {
	g.globals = append(g.globals, v)
	return variable.AddGuardFor(g.guard, v, g.bind)
}

// StartCompile closes the current SIR segment over outputs (spec §4.3):
// it deduplicates inputs via a topological sort over
// flatten_traceable_inputs(outputs), guards them, and instructs CodeGen to
// emit the load/call sequence. MetaInfer is not consulted here: input
// shapes are not re-verified when a segment is closed, only inferred per
// op by RecordOp. May be called multiple times across graph breaks, producing a
// chain of compiled segments; each call freezes the inputs used so far
// into guards.
func (g *FunctionGraph) StartCompile(outputs ...variable.Variable) (Segment, error) {
	inputs := topoSortInputs(outputs)
	for _, in := range inputs {
		if err := variable.AddGuardFor(g.guard, in, g.bind); err != nil {
			return Segment{}, fmt.Errorf("graph: guarding segment input %s: %w", in.DebugName(), err)
		}
	}

	seg := Segment{SegmentID: uuid.New(), Ops: g.ops, Inputs: inputs, Outputs: outputs}
	g.segments = append(g.segments, seg)
	g.ops = nil

	for _, in := range inputs {
		if err := variable.Reconstruct(in, g.cg); err != nil {
			return Segment{}, fmt.Errorf("graph: loading segment input %s: %w", in.DebugName(), err)
		}
	}
	g.cg.GenLoadConst(seg.SegmentID.String())
	g.cg.GenCallFunction(len(inputs) + 1)

	tracelog.Infof("graph: closed segment %s with %d inputs, %d ops", seg.SegmentID, len(inputs), len(seg.Ops))
	return seg, nil
}

// GuardFn folds every accumulated guard (from AddGlobalGuardedVariable and
// every StartCompile call so far) into a single predicate (spec §4.3).
func (g *FunctionGraph) GuardFn(resolve guard.FrameResolver) func() bool {
	return g.guard.Fn(resolve)
}

// Guard exposes the accumulated guard for inspection/merging by a caller
// stitching multiple FunctionGraphs together across a graph-break chain.
func (g *FunctionGraph) Guard() *guard.Guard { return g.guard }

// Segments returns every segment closed so far, in the order of record.
func (g *FunctionGraph) Segments() []Segment { return g.segments }

// argsToNode boxes a flat argument list into the Node shape infer_meta
// expects (spec §6: "args and outputs are nested structures of MetaInfo").
// Non-tensor arguments contribute a zero-value leaf; the oracle is
// expected to ignore shape/dtype fields it has no use for.
func argsToNode(inputs []variable.Variable) meta.Node {
	leaves := make([]meta.Node, 0, len(inputs))
	for _, in := range inputs {
		if t, ok := in.(*variable.Tensor); ok {
			leaves = append(leaves, meta.Leaf(t.Meta))
			continue
		}
		leaves = append(leaves, meta.Leaf(meta.Info{}))
	}
	return meta.Seq(leaves...)
}

// topoSortInputs returns flatten_traceable_inputs(outputs) deduplicated
// and ordered so that every input appears after the inputs it was derived
// from (spec §8 property 6: "topologically valid order"). Literals from the
// code object's constant pool (Const trackers) are not segment inputs.
func topoSortInputs(outputs []variable.Variable) []variable.Variable {
	seen := map[tracker.Tracker]bool{}
	var order []variable.Variable

	var visit func(v variable.Variable)
	visit = func(v variable.Variable) {
		tr := v.Tracker()
		if seen[tr] {
			return
		}
		for _, dep := range variable.Inputs(v) {
			visit(dep)
		}
		seen[tr] = true
		order = append(order, v)
	}

	for _, out := range outputs {
		for _, in := range variable.FlattenTraceableInputs(out) {
			if _, isConst := in.Tracker().(*tracker.Const); isConst {
				continue
			}
			visit(in)
		}
	}

	slices.SortStableFunc(order, func(a, b variable.Variable) int {
		switch {
		case a.DebugName() < b.DebugName():
			return -1
		case a.DebugName() > b.DebugName():
			return 1
		default:
			return 0
		}
	})
	return stableTopo(order)
}

// stableTopo re-derives a dependency-respecting order from a
// name-sorted candidate list: name sorting alone gives determinism but can
// violate dependency order, so this pass re-threads a depth-first walk over the
// already-deduplicated set using each Variable's own Inputs().
func stableTopo(candidates []variable.Variable) []variable.Variable {
	index := map[tracker.Tracker]int{}
	for i, v := range candidates {
		index[v.Tracker()] = i
	}
	visited := make([]bool, len(candidates))
	var out []variable.Variable
	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		for _, dep := range variable.Inputs(candidates[i]) {
			if j, ok := index[dep.Tracker()]; ok {
				visit(j)
			}
		}
		out = append(out, candidates[i])
	}
	for i := range candidates {
		visit(i)
	}
	return out
}
