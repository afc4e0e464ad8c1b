package executor

import (
	"github.com/wudi/sotjit/bytecode"
	trerrors "github.com/wudi/sotjit/errors"
	"github.com/wudi/sotjit/frame"
	"github.com/wudi/sotjit/internal/tracelog"
	"github.com/wudi/sotjit/tracker"
	"github.com/wudi/sotjit/variable"
)

func handleCallFunction(e *Executor, instr bytecode.Instruction) error {
	return callBreakGraph(e, instr, func() error {
		args, err := e.Frame.PopN(instr.Arg)
		if err != nil {
			return err
		}
		callee, err := e.Frame.Pop()
		if err != nil {
			return err
		}
		return e.invoke(callee, args, nil)
	})
}

func handleCallFunctionKw(e *Executor, instr bytecode.Instruction) error {
	return callBreakGraph(e, instr, func() error {
		namesVar, err := e.Frame.Pop()
		if err != nil {
			return err
		}
		namesTuple, ok := namesVar.(*variable.Tuple)
		if !ok {
			return opErr(instr.Opcode, "CALL_FUNCTION_KW keyword-name tuple must be constant")
		}
		flat, err := e.Frame.PopN(instr.Arg)
		if err != nil {
			return err
		}
		if len(namesTuple.Items) > len(flat) {
			return opErr(instr.Opcode, "CALL_FUNCTION_KW has more names than arguments")
		}
		posCount := len(flat) - len(namesTuple.Items)
		args := flat[:posCount]
		kwargs := map[string]variable.Variable{}
		seen := map[string]bool{}
		for i, nameVar := range namesTuple.Items {
			nameVal, err := variable.GetValue(nameVar)
			if err != nil {
				return opErr(instr.Opcode, "keyword name must be constant: %v", err)
			}
			name, ok := nameVal.(string)
			if !ok {
				return opErr(instr.Opcode, "keyword name must be a string")
			}
			if seen[name] {
				return trerrors.NewInner(trerrors.ErrDuplicateKeyword, "duplicate keyword argument %q", name)
			}
			seen[name] = true
			kwargs[name] = flat[posCount+i]
		}
		callee, err := e.Frame.Pop()
		if err != nil {
			return err
		}
		return e.invoke(callee, args, kwargs)
	})
}

// handleCallFunctionEx implements CALL_FUNCTION_EX (spec §4.4): bit 0 of
// the argument selects whether a kwargs dict sits above the args tuple.
func handleCallFunctionEx(e *Executor, instr bytecode.Instruction) error {
	return callBreakGraph(e, instr, func() error {
		var kwargs map[string]variable.Variable
		if instr.Arg&0x01 != 0 {
			kwVar, err := e.Frame.Pop()
			if err != nil {
				return err
			}
			kwDict, ok := kwVar.(*variable.Dict)
			if !ok {
				return opErr(instr.Opcode, "CALL_FUNCTION_EX keyword operand must be a dict")
			}
			kwargs = map[string]variable.Variable{}
			for i, k := range kwDict.Keys {
				name, ok := k.(string)
				if !ok {
					return opErr(instr.Opcode, "CALL_FUNCTION_EX keyword name must be a string")
				}
				kwargs[name] = kwDict.Values[i]
			}
		}
		argsVar, err := e.Frame.Pop()
		if err != nil {
			return err
		}
		argsTuple, ok := argsVar.(*variable.Tuple)
		if !ok {
			return opErr(instr.Opcode, "CALL_FUNCTION_EX args operand must be a tuple")
		}
		callee, err := e.Frame.Pop()
		if err != nil {
			return err
		}
		return e.invoke(callee, argsTuple.Items, kwargs)
	})
}

func handleCallMethod(e *Executor, instr bytecode.Instruction) error {
	return callBreakGraph(e, instr, func() error {
		args, err := e.Frame.PopN(instr.Arg)
		if err != nil {
			return err
		}
		self, err := e.Frame.Pop()
		if err != nil {
			return err
		}
		method, err := e.Frame.Pop()
		if err != nil {
			return err
		}
		if _, isDummy := method.(*variable.Dummy); isDummy {
			return e.invoke(self, args, nil)
		}
		allArgs := append([]variable.Variable{self}, args...)
		return e.invoke(method, allArgs, nil)
	})
}

// callBreakGraph mirrors the teacher's decorator idiom (@call_break_graph,
// spec §4.4): it snapshots the stack before running body, and if body
// raises BreakGraphError, restores the snapshot and records the call
// context so Transform's top-level catch can run
// _break_graph_in_call (spec §4.4.1b).
func callBreakGraph(e *Executor, instr bytecode.Instruction, body func() error) error {
	snapshot := e.Frame.StackSnapshot()
	err := body()
	if err == nil {
		return nil
	}
	if !trerrors.IsBreakGraph(err) {
		return err
	}
	if e.Inline {
		return err
	}
	for e.Frame.StackDepth() > 0 {
		if _, popErr := e.Frame.Pop(); popErr != nil {
			return popErr
		}
	}
	for _, v := range snapshot {
		e.Frame.Push(v)
	}
	e.pendingBreak = &breakContext{
		kind:         breakCall,
		preCallStack: snapshot,
		callInstr:    instr,
		afterCallIdx: e.Frame.Lasti + 1,
	}
	return err
}

// invoke dispatches a callable: builtins run their host operator directly;
// user-defined/closure functions are simulated via a nested inline
// executor (spec §4.4.2); anything else is NotImplemented.
func (e *Executor) invoke(callee variable.Variable, args []variable.Variable, kwargs map[string]variable.Variable) error {
	c, ok := callee.(*variable.Callable)
	if !ok {
		return trerrors.NewNotImplemented("CALL_FUNCTION", "callee %T is not callable", callee)
	}
	switch c.Kind {
	case variable.CallableBuiltin:
		out, err := c.Operator(args, kwargs)
		if err != nil {
			return err
		}
		e.Frame.Push(out)
		return nil
	case variable.CallableUserFunction, variable.CallableClosureFunction:
		out, err := e.runInline(c, args, kwargs)
		if err != nil {
			return err
		}
		e.Frame.Push(out)
		return nil
	case variable.CallableMethod, variable.CallableBoundMethod:
		allArgs := append([]variable.Variable{c.Self}, args...)
		return e.invoke(c.Unbound, allArgs, kwargs)
	default:
		return trerrors.NewNotImplemented("CALL_FUNCTION", "unsupported callable kind")
	}
}

// runInline builds the OpcodeInlineExecutor contract (spec §4.4.2): bind
// args against the callee signature, populate globals/builtins/consts/
// closure with the appropriate trackers, and run to completion.
func (e *Executor) runInline(c *variable.Callable, args []variable.Variable, kwargs map[string]variable.Variable) (variable.Variable, error) {
	def := c.Def
	if def == nil {
		return nil, trerrors.NewNotImplemented("CALL_FUNCTION", "callable %q has no code object", c.Name)
	}
	code, ok := def.Code.(*bytecode.CodeObject)
	if !ok || code == nil {
		return nil, trerrors.NewNotImplemented("CALL_FUNCTION", "callable %q has no bytecode", c.Name)
	}

	locals := map[string]variable.Variable{}
	for i := 0; i < code.ArgCount && i < len(args); i++ {
		locals[code.LocalName(i)] = args[i]
	}
	for i := len(args); i < code.ArgCount; i++ {
		defIdx := i - (code.ArgCount - len(def.Defaults))
		if defIdx >= 0 && defIdx < len(def.Defaults) {
			locals[code.LocalName(i)] = def.Defaults[defIdx]
		}
	}
	for name, v := range kwargs {
		locals[name] = v
	}
	if c.CapturedLocals != nil {
		for name, v := range c.CapturedLocals {
			if _, bound := locals[name]; !bound {
				locals[name] = v
			}
		}
	}

	globals := map[string]variable.Variable{}
	for name := range def.Globals {
		globals[name] = variable.NewObject(&tracker.FunctionGlobal{Fn: c.Tracker(), Name: name}, nil, "global:"+name)
	}

	consts := make([]variable.Variable, len(code.Consts))
	for i, lit := range code.Consts {
		consts[i] = variable.Default.From(&tracker.Const{Literal: lit}, lit)
	}

	for i := range def.Closure {
		if i < len(code.Freevars) {
			locals[code.Freevars[i]] = variable.NewObject(&tracker.FunctionClosure{Fn: c.Tracker(), Idx: i}, nil, "closure:"+code.Freevars[i])
		}
	}

	f := frame.New(code, locals, globals, nil, consts)
	inline := newInline(e, f)
	if err := inline.Transform(); err != nil {
		return nil, err
	}
	if inline.ReturnValue == nil {
		return nil, trerrors.NewInner(trerrors.ErrUnreachableState, "inline call to %q returned without RETURN_VALUE", c.Name)
	}
	return inline.ReturnValue, nil
}

func handleMakeFunction(e *Executor, instr bytecode.Instruction) error {
	flags := bytecode.MakeFunctionFlag(instr.Arg)
	if flags&bytecode.MakeFunctionKwDefaults != 0 {
		return trerrors.NewBreakGraph("MAKE_FUNCTION with keyword-only defaults is not supported")
	}

	var closure []variable.Variable
	if flags&bytecode.MakeFunctionClosure != 0 {
		v, err := e.Frame.Pop()
		if err != nil {
			return err
		}
		tup, ok := v.(*variable.Tuple)
		if !ok {
			return opErr(instr.Opcode, "MAKE_FUNCTION closure operand must be a tuple")
		}
		closure = tup.Items
	}
	if flags&bytecode.MakeFunctionAnnotations != 0 {
		if _, err := e.Frame.Pop(); err != nil {
			return err
		}
	}
	var defaults []variable.Variable
	if flags&bytecode.MakeFunctionDefaults != 0 {
		v, err := e.Frame.Pop()
		if err != nil {
			return err
		}
		tup, ok := v.(*variable.Tuple)
		if !ok {
			return opErr(instr.Opcode, "MAKE_FUNCTION defaults operand must be a tuple")
		}
		defaults = tup.Items
	}

	nameVar, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	codeVar, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	nameVal, err := variable.GetValue(nameVar)
	if err != nil {
		return opErr(instr.Opcode, "function name must be constant: %v", err)
	}
	name, _ := nameVal.(string)
	codeObj, ok := codeVar.(*variable.Object)
	if !ok {
		return opErr(instr.Opcode, "function code operand must wrap a code object")
	}
	code, ok := codeObj.HostValue.(*bytecode.CodeObject)
	if !ok {
		return opErr(instr.Opcode, "MAKE_FUNCTION code operand did not carry a *bytecode.CodeObject")
	}

	def := &variable.FunctionDef{Code: code, Defaults: defaults, Closure: closure}
	tr := newDummy(nameVar, codeVar)
	var fn *variable.Callable
	if len(closure) > 0 {
		fn = variable.NewClosureFunctionCallable(tr, name, def, nil)
	} else {
		fn = variable.NewUserFunctionCallable(tr, name, def)
	}
	e.Frame.Push(fn)
	return nil
}

// breakGraphInJump implements spec §4.4.1(a): compile-and-call the graph
// up to the tensor predicate, then materialize and call the if/else
// resume closures, preserving the original jump in the rewritten tail.
func (e *Executor) breakGraphInJump(ctx breakContext) error {
	if err := e.Graph.AddGlobalGuardedVariable(ctx.predicate); err != nil {
		return err
	}
	if _, err := e.Graph.StartCompile(ctx.predicate); err != nil {
		return trerrors.WrapInner(err, e.CallChain())
	}

	ifResume, ifInputs := e.CG.GenResumeFnAt(ctx.takeTarget, e.Frame.StackDepth())
	elseResume, elseInputs := e.CG.GenResumeFnAt(ctx.fallTarget, e.Frame.StackDepth())

	e.CG.GenLoadConst(ifResume)
	for _, name := range ifInputs {
		e.CG.GenLoadFast(name)
	}
	e.CG.GenCallFunction(len(ifInputs))
	e.CG.GenReturn()

	e.CG.GenLoadConst(elseResume)
	for _, name := range elseInputs {
		e.CG.GenLoadFast(name)
	}
	e.CG.GenCallFunction(len(elseInputs))
	e.CG.GenReturn()

	jumpOp := bytecode.OP_POP_JUMP_IF_FALSE
	if instr, ok := e.Frame.CurrentInstruction(); ok {
		jumpOp = instr.Opcode
	}
	e.CG.AddInstr(jumpOp, ctx.fallTarget)

	e.NewCode = e.CG.GenPycode()
	e.GuardFn = e.Graph.GuardFn(e.resolve)
	tracelog.Debugf("executor(%s): jump break at ip=%d, if-resume %q, else-resume %q", e.callSite, e.Frame.Lasti, ifResume.Code.Name, elseResume.Code.Name)
	return nil
}

// breakGraphInCall implements spec §4.4.1(b): restore the pre-call stack,
// compile-and-call the graph with every tensor on the stack as an output,
// re-emit the original call, and tail-call a single resume function for
// the instruction after the call.
func (e *Executor) breakGraphInCall(ctx breakContext) error {
	var outputs []variable.Variable
	for _, v := range ctx.preCallStack {
		if isTensor(v) {
			outputs = append(outputs, v)
		}
	}
	if _, err := e.Graph.StartCompile(outputs...); err != nil {
		return trerrors.WrapInner(err, e.CallChain())
	}

	e.CG.AddInstr(ctx.callInstr.Opcode, ctx.callInstr.Arg)

	resume, inputs := e.CG.GenResumeFnAt(ctx.afterCallIdx, e.Frame.StackDepth())
	e.CG.GenLoadConst(resume)
	for _, name := range inputs {
		e.CG.GenLoadFast(name)
	}
	e.CG.GenCallFunction(len(inputs))
	e.CG.GenReturn()

	e.NewCode = e.CG.GenPycode()
	e.GuardFn = e.Graph.GuardFn(e.resolve)
	tracelog.Debugf("executor(%s): call break at ip=%d, resume %q", e.callSite, e.Frame.Lasti, resume.Code.Name)
	return nil
}
