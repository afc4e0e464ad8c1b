package executor

import (
	"github.com/wudi/sotjit/bytecode"
	trerrors "github.com/wudi/sotjit/errors"
	"github.com/wudi/sotjit/variable"
)

func handleJumpForward(e *Executor, instr bytecode.Instruction) error {
	e.Frame.Jump(instr.Arg)
	return errJumped
}

func handleJumpAbsolute(e *Executor, instr bytecode.Instruction) error {
	e.Frame.Jump(instr.Arg)
	return errJumped
}

// errJumped signals Transform to skip the automatic Advance() a handler
// normally gets, since the handler already repositioned lasti.
var errJumped = errNoAdvance{}

type errNoAdvance struct{}

func (errNoAdvance) Error() string { return "executor: jump already advanced lasti" }

func handlePopJumpIfTrue(e *Executor, instr bytecode.Instruction) error {
	return popJumpIf(e, instr, true)
}

func handlePopJumpIfFalse(e *Executor, instr bytecode.Instruction) error {
	return popJumpIf(e, instr, false)
}

func popJumpIf(e *Executor, instr bytecode.Instruction, jumpOnTrue bool) error {
	pred, err := e.Frame.Pop()
	if err != nil {
		return err
	}

	if isTensor(pred) {
		if e.Inline {
			return trerrors.NewBreakGraph("conditional jump on tensor inside an inline call")
		}
		fallTarget := e.Frame.Lasti + 1
		e.pendingBreak = &breakContext{
			kind:       breakJump,
			predicate:  pred,
			takeTarget: instr.Arg,
			fallTarget: fallTarget,
		}
		return trerrors.NewBreakGraph("conditional jump on a tensor predicate")
	}

	val, err := variable.GetValue(pred)
	if err != nil {
		return opErr(instr.Opcode, "non-constant, non-tensor predicate: %v", err)
	}
	if err := e.Graph.AddGlobalGuardedVariable(pred); err != nil {
		return err
	}
	if jumpOnTrue == truthy(val) {
		e.Frame.Jump(instr.Arg)
		return errJumped
	}
	return nil
}
