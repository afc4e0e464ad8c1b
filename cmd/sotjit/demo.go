package main

import (
	"fmt"

	"github.com/wudi/sotjit/bytecode"
	"github.com/wudi/sotjit/cache"
	"github.com/wudi/sotjit/codegen"
	"github.com/wudi/sotjit/config"
	"github.com/wudi/sotjit/frame"
	"github.com/wudi/sotjit/guard"
	"github.com/wudi/sotjit/meta"
	"github.com/wudi/sotjit/tracker"
	"github.com/wudi/sotjit/variable"
)

// demoFrame is one toy frame description: a code object plus the scope it
// runs in, enough to drive the cache without a real compiler front end
// (this module's CodeGen/MetaInfer oracles are out of scope per spec §1).
type demoFrame struct {
	name   string
	build  func() *bytecode.CodeObject
	locals map[string]variable.Variable
}

// addOneTwiceCode builds x + 1 + 2 (spec §8's single-compiled-segment
// scenario): LOAD_FAST x, LOAD_CONST 1, BINARY_ADD, LOAD_CONST 2,
// BINARY_ADD, RETURN_VALUE.
func addOneTwiceCode() *bytecode.CodeObject {
	return &bytecode.CodeObject{
		Name:     "add_one_twice",
		Varnames: []string{"x"},
		Consts:   []any{int64(1), int64(2)},
		ArgCount: 1,
		Instructions: []bytecode.Instruction{
			{Opcode: bytecode.OP_LOAD_FAST, Arg: 0},
			{Opcode: bytecode.OP_LOAD_CONST, Arg: 0},
			{Opcode: bytecode.OP_BINARY_ADD},
			{Opcode: bytecode.OP_LOAD_CONST, Arg: 1},
			{Opcode: bytecode.OP_BINARY_ADD},
			{Opcode: bytecode.OP_RETURN_VALUE},
		},
	}
}

// sumListCode builds: for i in xs: y += i; return y (spec §8's
// fully-inlined-loop scenario over a concrete list). The GET_ITER'd
// iterator stays on the stack across every visit to FOR_ITER; the trailing
// JUMP_ABSOLUTE re-enters it once per concrete element.
func sumListCode() *bytecode.CodeObject {
	return &bytecode.CodeObject{
		Name:     "sum_list",
		Varnames: []string{"xs", "y", "i"},
		ArgCount: 1,
		Instructions: []bytecode.Instruction{
			{Opcode: bytecode.OP_LOAD_FAST, Arg: 0},     // 0: xs
			{Opcode: bytecode.OP_GET_ITER},              // 1
			{Opcode: bytecode.OP_FOR_ITER, Arg: 9},       // 2: exhausted -> 9
			{Opcode: bytecode.OP_STORE_FAST, Arg: 2},     // 3: i
			{Opcode: bytecode.OP_LOAD_FAST, Arg: 1},      // 4: y
			{Opcode: bytecode.OP_LOAD_FAST, Arg: 2},      // 5: i
			{Opcode: bytecode.OP_INPLACE_ADD},            // 6
			{Opcode: bytecode.OP_STORE_FAST, Arg: 1},     // 7: y
			{Opcode: bytecode.OP_JUMP_ABSOLUTE, Arg: 2},  // 8: re-enter FOR_ITER
			{Opcode: bytecode.OP_LOAD_FAST, Arg: 1},      // 9: y
			{Opcode: bytecode.OP_RETURN_VALUE},           // 10
		},
	}
}

// wrapConsts turns a code object's raw constant pool into the
// tracker-wrapped variables Frame.Const expects (spec §4.2's virtual
// environment setup), the same translation executor/calls.go's
// inline-call setup does for nested frames.
func wrapConsts(code *bytecode.CodeObject) []variable.Variable {
	consts := make([]variable.Variable, len(code.Consts))
	for i, lit := range code.Consts {
		consts[i] = variable.Default.From(&tracker.Const{Literal: lit}, lit)
	}
	return consts
}

func demoFrames() []demoFrame {
	xTracker := &tracker.Local{Name: "x"}
	xTensor := variable.Default.From(xTracker, meta.Info{Shape: []int64{4, 4}, DType: "float32"})

	xsTracker := &tracker.Local{Name: "xs"}
	items := variable.ListValue{
		variable.Default.From(&tracker.Const{Literal: int64(1)}, int64(1)),
		variable.Default.From(&tracker.Const{Literal: int64(2)}, int64(2)),
		variable.Default.From(&tracker.Const{Literal: int64(3)}, int64(3)),
	}
	xsList := variable.Default.From(xsTracker, items)
	yInit := variable.Default.From(&tracker.Const{Literal: int64(0)}, int64(0))

	return []demoFrame{
		{
			name:  "add_one_twice(x: tensor[4,4])",
			build: addOneTwiceCode,
			locals: map[string]variable.Variable{
				"x": xTensor,
			},
		},
		{
			name:  "sum_list(xs: [1,2,3])",
			build: sumListCode,
			locals: map[string]variable.Variable{
				"xs": xsList,
				"y":  yInit,
			},
		},
	}
}

// runDemo builds a handful of toy frames, runs each through the cache twice
// (to show the second lookup hit), and prints a humanized report.
func runDemo(cfg *config.Config) error {
	c := cache.New(cfg.StrictMode, cache.NewTranslateFunc(toyOracle{}, func() codegen.CodeGen { return codegen.NewEmitter("compiled") }, cfg.StrictMode))

	if cfg.CacheDB != "" {
		store, err := cache.OpenStore(cfg.CacheDB)
		if err != nil {
			return err
		}
		defer store.Close()
		c.Attach(store)
	}

	for _, df := range demoFrames() {
		code := df.build()
		resolve := func(name string) (any, bool) {
			v, ok := df.locals[name]
			if !ok {
				return nil, false
			}
			val, err := variable.GetValue(v)
			if err != nil {
				return v, true
			}
			return val, true
		}

		fmt.Printf("=== %s ===\n", df.name)
		for attempt := 1; attempt <= 2; attempt++ {
			f := frame.New(code, df.locals, nil, nil, wrapConsts(code))
			cc, err := c.Lookup(f, guard.FrameResolver(resolve))
			if err != nil {
				fmt.Printf("attempt %d: translation error: %v\n", attempt, err)
				continue
			}
			if cc == nil {
				fmt.Printf("attempt %d: no custom code (fell back to default evaluation)\n", attempt)
				continue
			}
			fmt.Printf("attempt %d: rewritten code %q, %d instructions\n", attempt, cc.Code.Name, len(cc.Code.Instructions))
		}
	}

	printReport(c)
	return nil
}

func printReport(c *cache.InstructionTranslatorCache) {
	snap := c.Metrics().Snapshot()
	fmt.Println("\n--- Cache Report ---")
	fmt.Printf("calls=%s hits=%s misses=%s skips=%s hit-rate=%s\n", snap.Calls, snap.Hits, snap.Misses, snap.Skips, snap.HitRate)
	for _, h := range snap.Hotspots {
		fmt.Printf("  %-24s calls=%-6s hit-rate=%s\n", h.CodeName, h.Calls, h.HitRate)
	}
}
