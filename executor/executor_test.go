package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/sotjit/bytecode"
	"github.com/wudi/sotjit/codegen"
	trerrors "github.com/wudi/sotjit/errors"
	"github.com/wudi/sotjit/frame"
	"github.com/wudi/sotjit/graph"
	"github.com/wudi/sotjit/guard"
	"github.com/wudi/sotjit/meta"
	"github.com/wudi/sotjit/tracker"
	"github.com/wudi/sotjit/variable"
)

// broadcastOracle is a minimal StaticGraphOracle stand-in, grounded on
// cmd/sotjit's toyOracle: it never runs a real kernel, it just reports a
// plausible output shape so RecordOp has something to push.
type broadcastOracle struct{}

func (broadcastOracle) InferMeta(op string, args meta.Node) (meta.Node, error) {
	return meta.Leaf(meta.Info{Shape: []int64{4, 4}, DType: "float32"}), nil
}

func newGraph(bind func(tracker.Tracker) (string, any)) (*graph.FunctionGraph, codegen.CodeGen) {
	cg := codegen.NewEmitter("compiled")
	g := graph.New(meta.NewInferer(broadcastOracle{}), cg, bind)
	return g, cg
}

func localBind(locals map[string]variable.Variable) func(tracker.Tracker) (string, any) {
	return func(t tracker.Tracker) (string, any) {
		l, ok := t.(*tracker.Local)
		if !ok {
			return "?", nil
		}
		v, ok := locals[l.Name]
		if !ok {
			return l.Name, nil
		}
		val, err := variable.GetValue(v)
		if err != nil {
			return l.Name, nil
		}
		return l.Name, val
	}
}

func constVar(n int64) variable.Variable {
	return variable.NewConstant(&tracker.Const{Literal: n}, n)
}

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

func wrapConsts(code *bytecode.CodeObject) []variable.Variable {
	consts := make([]variable.Variable, len(code.Consts))
	for i, lit := range code.Consts {
		consts[i] = variable.NewConstant(&tracker.Const{Literal: lit}, lit)
	}
	return consts
}

func TestExecutor_ConstantFoldEntirelyOnLiterals(t *testing.T) {
	code := addOneTwiceCode()
	locals := map[string]variable.Variable{"x": constVar(10)}
	f := frame.New(code, locals, nil, nil, wrapConsts(code))
	g, cg := newGraph(localBind(locals))
	e := New(f, g, cg, true, guard.FrameResolver(func(string) (any, bool) { return nil, false }))

	require.NoError(t, e.Transform())
	require.NotNil(t, e.ReturnValue)
	val, err := variable.GetValue(e.ReturnValue)
	require.NoError(t, err)
	assert.Equal(t, int64(13), val, "10 + 1 + 2 must fold to a plain constant")
	assert.Len(t, g.Segments(), 1, "RETURN_VALUE always closes a segment, even an all-constant one")
	assert.Empty(t, g.Segments()[0].Ops, "no tensor op was ever recorded")
	assert.NotNil(t, e.NewCode)
	assert.NotNil(t, e.GuardFn)
}

func TestExecutor_SingleCompiledSegmentOverTensor(t *testing.T) {
	code := addOneTwiceCode()
	xTensor := variable.NewTensor(&tracker.Local{Name: "x"}, meta.Info{Shape: []int64{4, 4}, DType: "float32"})
	locals := map[string]variable.Variable{"x": xTensor}
	f := frame.New(code, locals, nil, nil, wrapConsts(code))
	g, cg := newGraph(localBind(locals))
	e := New(f, g, cg, true, guard.FrameResolver(func(string) (any, bool) { return nil, false }))

	require.NoError(t, e.Transform())
	require.Len(t, g.Segments(), 1)
	assert.Len(t, g.Segments()[0].Ops, 2, "both BINARY_ADDs against the tensor must be recorded")
	assert.Equal(t, "add", g.Segments()[0].Ops[0].Name)
	assert.Equal(t, "add", g.Segments()[0].Ops[1].Name)
	require.Len(t, g.Segments()[0].Inputs, 1)
	assert.Equal(t, "x", g.Segments()[0].Inputs[0].DebugName())
	assert.NotNil(t, e.NewCode)
	assert.NotNil(t, e.GuardFn)
}

func sumListCode() *bytecode.CodeObject {
	return &bytecode.CodeObject{
		Name:     "sum_list",
		Varnames: []string{"xs", "y", "i"},
		ArgCount: 1,
		Instructions: []bytecode.Instruction{
			{Opcode: bytecode.OP_LOAD_FAST, Arg: 0},
			{Opcode: bytecode.OP_GET_ITER},
			{Opcode: bytecode.OP_FOR_ITER, Arg: 9},
			{Opcode: bytecode.OP_STORE_FAST, Arg: 2},
			{Opcode: bytecode.OP_LOAD_FAST, Arg: 1},
			{Opcode: bytecode.OP_LOAD_FAST, Arg: 2},
			{Opcode: bytecode.OP_INPLACE_ADD},
			{Opcode: bytecode.OP_STORE_FAST, Arg: 1},
			{Opcode: bytecode.OP_JUMP_ABSOLUTE, Arg: 2},
			{Opcode: bytecode.OP_LOAD_FAST, Arg: 1},
			{Opcode: bytecode.OP_RETURN_VALUE},
		},
	}
}

func TestExecutor_ForLoopOverConcreteListFullyInlines(t *testing.T) {
	code := sumListCode()
	items := []variable.Variable{constVar(1), constVar(2), constVar(3)}
	xsList := variable.NewList(&tracker.Local{Name: "xs"}, items)
	yInit := variable.NewConstant(&tracker.Const{Literal: int64(0)}, int64(0))
	locals := map[string]variable.Variable{"xs": xsList, "y": yInit}
	f := frame.New(code, locals, nil, nil, nil)
	g, cg := newGraph(localBind(locals))
	e := New(f, g, cg, true, guard.FrameResolver(func(string) (any, bool) { return nil, false }))

	require.NoError(t, e.Transform())
	require.NotNil(t, e.ReturnValue)
	val, err := variable.GetValue(e.ReturnValue)
	require.NoError(t, err)
	assert.Equal(t, int64(6), val, "1+2+3 must fold without ever breaking the graph")
	assert.Empty(t, g.Segments()[0].Ops, "a purely concrete loop records no tensor ops")
}

func TestExecutor_JumpOnTensorPredicateBreaksGraph(t *testing.T) {
	code := &bytecode.CodeObject{
		Name:     "cond",
		Varnames: []string{"p"},
		ArgCount: 1,
		Instructions: []bytecode.Instruction{
			{Opcode: bytecode.OP_LOAD_FAST, Arg: 0},
			{Opcode: bytecode.OP_POP_JUMP_IF_FALSE, Arg: 4},
			{Opcode: bytecode.OP_LOAD_FAST, Arg: 0},
			{Opcode: bytecode.OP_RETURN_VALUE},
			{Opcode: bytecode.OP_LOAD_FAST, Arg: 0},
			{Opcode: bytecode.OP_RETURN_VALUE},
		},
	}
	pTensor := variable.NewTensor(&tracker.Local{Name: "p"}, meta.Info{Shape: nil, DType: "bool"})
	locals := map[string]variable.Variable{"p": pTensor}
	f := frame.New(code, locals, nil, nil, nil)
	g, cg := newGraph(localBind(locals))
	e := New(f, g, cg, true, guard.FrameResolver(func(string) (any, bool) { return nil, false }))

	require.NoError(t, e.Transform(), "a top-level executor must resolve the break, never surface it")
	assert.Nil(t, e.ReturnValue, "Transform stops at the break point, it never reaches RETURN_VALUE")
	assert.NotNil(t, e.NewCode)
	assert.NotNil(t, e.GuardFn)
	assert.Equal(t, 2, g.Guard().Len(), "the tensor predicate is guarded once directly and once as StartCompile's own segment input")
}

func TestExecutor_InlineExecutorPropagatesBreakGraphInsteadOfResolving(t *testing.T) {
	code := &bytecode.CodeObject{
		Name:     "cond_inline",
		Varnames: []string{"p"},
		ArgCount: 1,
		Instructions: []bytecode.Instruction{
			{Opcode: bytecode.OP_LOAD_FAST, Arg: 0},
			{Opcode: bytecode.OP_POP_JUMP_IF_FALSE, Arg: 3},
			{Opcode: bytecode.OP_RETURN_VALUE},
			{Opcode: bytecode.OP_RETURN_VALUE},
		},
	}
	pTensor := variable.NewTensor(&tracker.Local{Name: "p"}, meta.Info{DType: "bool"})
	locals := map[string]variable.Variable{"p": pTensor}
	f := frame.New(code, locals, nil, nil, nil)
	g, cg := newGraph(localBind(locals))
	parent := New(frame.New(&bytecode.CodeObject{}, nil, nil, nil, nil), g, cg, true, guard.FrameResolver(func(string) (any, bool) { return nil, false }))
	inline := newInline(parent, f)

	err := inline.Transform()
	require.Error(t, err)
	assert.True(t, trerrors.IsBreakGraph(err), "an inline executor must hand BreakGraphError back to its caller, never resolve it itself")
}

func TestExecutor_CallBreakGraphRestoresPendingCallContext(t *testing.T) {
	code := &bytecode.CodeObject{
		Name:     "caller",
		Names:    []string{"f"},
		Consts:   []any{int64(5)},
		Instructions: []bytecode.Instruction{
			{Opcode: bytecode.OP_LOAD_GLOBAL, Arg: 0},
			{Opcode: bytecode.OP_LOAD_CONST, Arg: 0},
			{Opcode: bytecode.OP_CALL_FUNCTION, Arg: 1},
			{Opcode: bytecode.OP_RETURN_VALUE},
		},
	}
	breaking := variable.NewBuiltinCallable(&tracker.Global{Name: "f"}, "f", func(args []variable.Variable, kwargs map[string]variable.Variable) (variable.Variable, error) {
		return nil, trerrors.NewBreakGraph("builtin cannot be simulated")
	})
	globals := map[string]variable.Variable{"f": breaking}
	f := frame.New(code, nil, globals, nil, wrapConsts(code))
	g, cg := newGraph(localBind(nil))
	e := New(f, g, cg, true, guard.FrameResolver(func(string) (any, bool) { return nil, false }))

	require.NoError(t, e.Transform())
	assert.Nil(t, e.ReturnValue)
	assert.NotNil(t, e.NewCode, "breakGraphInCall must still produce rewritten code")
	assert.NotNil(t, e.GuardFn)
}

func TestExecutor_ForIterOverTensorBreaksGraph(t *testing.T) {
	code := &bytecode.CodeObject{
		Name:     "loop_over_tensor",
		Varnames: []string{"xs", "i"},
		ArgCount: 1,
		Instructions: []bytecode.Instruction{
			{Opcode: bytecode.OP_LOAD_FAST, Arg: 0},
			{Opcode: bytecode.OP_GET_ITER},
			{Opcode: bytecode.OP_FOR_ITER, Arg: 5},
			{Opcode: bytecode.OP_STORE_FAST, Arg: 1},
			{Opcode: bytecode.OP_JUMP_ABSOLUTE, Arg: 2},
			{Opcode: bytecode.OP_LOAD_FAST, Arg: 1},
			{Opcode: bytecode.OP_RETURN_VALUE},
		},
	}
	xsTensor := variable.NewTensor(&tracker.Local{Name: "xs"}, meta.Info{Shape: []int64{3}, DType: "float32"})
	locals := map[string]variable.Variable{"xs": xsTensor}
	f := frame.New(code, locals, nil, nil, nil)
	g, cg := newGraph(localBind(locals))
	e := New(f, g, cg, true, guard.FrameResolver(func(string) (any, bool) { return nil, false }))

	require.NoError(t, e.Transform())
	assert.NotNil(t, e.NewCode, "a non-enumerable iterator source must still resolve via breakGraphInForLoop")
	assert.NotNil(t, e.GuardFn)
}

func TestExecutor_CallChainListsOutermostFirst(t *testing.T) {
	g, cg := newGraph(localBind(nil))
	top := New(frame.New(&bytecode.CodeObject{Name: "top"}, nil, nil, nil, nil), g, cg, true, guard.FrameResolver(func(string) (any, bool) { return nil, false }))
	mid := newInline(top, frame.New(&bytecode.CodeObject{Name: "mid"}, nil, nil, nil, nil))
	leaf := newInline(mid, frame.New(&bytecode.CodeObject{Name: "leaf"}, nil, nil, nil, nil))

	assert.Equal(t, []string{"top", "mid", "leaf"}, leaf.CallChain())
}

func TestExecutor_UnhandledOpcodeReportsNotImplemented(t *testing.T) {
	code := &bytecode.CodeObject{
		Name:         "weird",
		Instructions: []bytecode.Instruction{{Opcode: bytecode.Opcode(250)}},
	}
	f := frame.New(code, nil, nil, nil, nil)
	g, cg := newGraph(localBind(nil))
	e := New(f, g, cg, true, guard.FrameResolver(func(string) (any, bool) { return nil, false }))

	err := e.Transform()
	require.Error(t, err)
	assert.True(t, trerrors.IsNotImplemented(err))
}
