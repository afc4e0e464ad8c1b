package executor

import (
	"github.com/wudi/sotjit/bytecode"
	trerrors "github.com/wudi/sotjit/errors"
	"github.com/wudi/sotjit/internal/tracelog"
	"github.com/wudi/sotjit/tracker"
	"github.com/wudi/sotjit/variable"
)

func handleGetIter(e *Executor, instr bytecode.Instruction) error {
	src, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	kind := variable.IterUserDefined
	switch src.(type) {
	case *variable.List, *variable.Tuple:
		kind = variable.IterSequence
	case *variable.Dict:
		kind = variable.IterDict
	case *variable.Tensor:
		kind = variable.IterTensor
	}
	tr := &tracker.GetIter{Source: src.Tracker()}
	e.Frame.Push(variable.NewIterator(tr, kind, src))
	return nil
}

// handleForIter drives the sequence/dict case by simulating exactly one
// concrete iteration per visit: the bytecode's own JUMP_ABSOLUTE back to
// this instruction re-enters the handler for the next element, so a fully
// concrete loop unrolls for free as Transform walks the frame linearly
// (spec §8 scenario: "for i in [1,2,3]: x += i ... fully inlined").
// breakGraphInForLoop is reached only through pendingBreak, when
// iteratorItems cannot enumerate the iterator's source (a tensor or
// user-defined iterator). A graph break raised inside the loop body is
// resolved by the break protocol of the opcode that raised it; loopStack
// is not consulted for it.
func handleForIter(e *Executor, instr bytecode.Instruction) error {
	top, err := e.Frame.Peek(0)
	if err != nil {
		return err
	}
	it, ok := top.(*variable.Iterator)
	if !ok {
		return opErr(instr.Opcode, "FOR_ITER requires an iterator on top of stack, got %T", top)
	}
	if e.Inline && it.Kind != variable.IterSequence && it.Kind != variable.IterDict && it.Kind != variable.IterEnumerate {
		return trerrors.NewBreakGraph("inline executor only supports sequence/dict/enumerate iterators")
	}

	items, err := iteratorItems(it)
	if err != nil {
		if !e.Inline {
			e.pendingBreak = &breakContext{kind: breakForLoop, iterVar: it, forIterIndex: e.Frame.Lasti, forIterJump: instr.Arg}
		}
		return trerrors.NewBreakGraph(err.Error())
	}

	if it.Idx >= len(items) {
		if _, popErr := e.Frame.Pop(); popErr != nil {
			return popErr
		}
		if len(e.loopStack) > 0 {
			e.loopStack = e.loopStack[:len(e.loopStack)-1]
		}
		e.Frame.Jump(instr.Arg)
		return errJumped
	}

	item := items[it.Idx]
	it.Idx++
	e.loopStack = append(e.loopStack, breakContext{kind: breakForLoop, iterVar: it, forIterIndex: e.Frame.Lasti, forIterJump: instr.Arg})
	e.Frame.Push(item)
	return nil
}

// iteratorItems enumerates a concrete sequence/dict iterator's elements in
// order. Tensor/user-defined iterators cannot be enumerated without
// running host code, so callers treat the error as a graph-break trigger.
func iteratorItems(it *variable.Iterator) ([]variable.Variable, error) {
	switch it.Kind {
	case variable.IterSequence:
		switch c := it.Source.(type) {
		case *variable.List:
			return c.Items, nil
		case *variable.Tuple:
			return c.Items, nil
		}
	case variable.IterDict:
		if d, ok := it.Source.(*variable.Dict); ok {
			return d.Values, nil
		}
	}
	return nil, trerrors.NewNotImplemented("FOR_ITER", "cannot enumerate a %v iterator without running host code", it.Kind)
}

// breakGraphInForLoop implements spec §4.4.1(c): synthesize a loop-body
// function (loop-live locals plus a break flag) and an after-loop
// function, and emit the rewritten FOR_ITER/call/unpack/branch sequence.
func (e *Executor) breakGraphInForLoop(ctx breakContext) error {
	bodyStart := ctx.forIterIndex + 1
	loopEnd := ctx.forIterJump

	loopBody, bodyInputs := e.CG.GenLoopBodyBetween(ctx.forIterIndex, bodyStart, loopEnd)
	afterLoop, afterInputs := e.CG.GenForLoopFnBetween(ctx.forIterIndex, loopEnd, loopEnd)

	for _, name := range bodyInputs {
		if v, err := e.Frame.LookupLocal(name); err == nil {
			if err := e.Graph.AddGlobalGuardedVariable(v); err != nil {
				return err
			}
		}
	}

	if _, err := e.Graph.StartCompile(); err != nil {
		return trerrors.WrapInner(err, e.CallChain())
	}

	// Rewritten tail mirrors the original FOR_ITER/JUMP_ABSOLUTE cycle: call
	// the compiled loop body once per element, unpack its break flag, and
	// either loop back to FOR_ITER or fall through to the after-loop call,
	// instead of jumping straight to after-loop and skipping the body.
	e.CG.AddInstr(bytecode.OP_FOR_ITER, loopEnd)

	e.CG.GenLoadConst(loopBody)
	for _, name := range bodyInputs {
		e.CG.GenLoadFast(name)
	}
	e.CG.GenCallFunction(len(bodyInputs))
	e.CG.GenUnpackSequence(1)

	e.CG.AddInstr(bytecode.OP_POP_JUMP_IF_FALSE, loopEnd)
	e.CG.AddInstr(bytecode.OP_JUMP_ABSOLUTE, ctx.forIterIndex)

	e.CG.GenLoadConst(afterLoop)
	for _, name := range afterInputs {
		e.CG.GenLoadFast(name)
	}
	e.CG.GenCallFunction(len(afterInputs))
	e.CG.GenReturn()

	e.NewCode = e.CG.GenPycode()
	e.GuardFn = e.Graph.GuardFn(e.resolve)
	tracelog.Debugf("executor(%s): for-loop break at ip=%d, loop body %q, after-loop %q", e.callSite, ctx.forIterIndex, loopBody.Code.Name, afterLoop.Code.Name)
	return nil
}
