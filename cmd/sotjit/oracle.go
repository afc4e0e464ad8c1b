package main

import (
	"fmt"

	"github.com/wudi/sotjit/meta"
)

// toyOracle is a stand-in MetaInfer (spec §1, §6's "out of scope / external
// collaborators"): it knows enough elementwise/compare shape rules to drive
// the demo and repl frames, the way the teacher's cmd/vm-demo stands up a
// throwaway bytecode program rather than a real compiler front end.
type toyOracle struct{}

func (toyOracle) InferMeta(op string, args meta.Node) (meta.Node, error) {
	leaves := flattenLeaves(args)
	if len(leaves) == 0 {
		return meta.Node{}, fmt.Errorf("sotjit: %s called with no tensor operands", op)
	}

	switch op {
	case "add", "sub", "mul", "div", "mod", "pow", "and", "or", "xor", "lshift", "rshift",
		"iadd", "isub", "imul", "idiv", "neg", "pos", "not", "invert", "getitem":
		return meta.Leaf(broadcast(leaves)), nil
	case "lt", "le", "eq", "ne", "ge", "gt", "is", "is_not":
		out := broadcast(leaves)
		out.DType = "bool"
		return meta.Leaf(out), nil
	default:
		return meta.Leaf(broadcast(leaves)), nil
	}
}

func flattenLeaves(n meta.Node) []meta.Info {
	if n.Leaf != nil {
		return []meta.Info{*n.Leaf}
	}
	var out []meta.Info
	for _, child := range n.Sequence {
		out = append(out, flattenLeaves(child)...)
	}
	return out
}

// broadcast picks the widest shape among leaves and the first non-empty
// dtype, a simplification adequate for the demo's purely illustrative
// tensors (no real kernel ever runs).
func broadcast(leaves []meta.Info) meta.Info {
	best := leaves[0]
	for _, l := range leaves[1:] {
		if len(l.Shape) > len(best.Shape) {
			best = l
		}
	}
	dtype := best.DType
	if dtype == "" {
		for _, l := range leaves {
			if l.DType != "" {
				dtype = l.DType
				break
			}
		}
	}
	return meta.Info{Shape: best.Shape, DType: dtype, StopGradient: best.StopGradient}
}
