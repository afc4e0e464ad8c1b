// Package frame is the per-frame simulator state (spec §4.4): the
// simulated operand stack, the name scopes a host frame exposes, and the
// cursor (lasti/current_line) the executor advances as it walks
// instructions. Adapted from the teacher's vm.ExecutionContext/CallFrame
// pair, simplified to single-threaded use since one frame is only ever
// walked by the one translation attempt that owns it (spec §5).
package frame

import (
	"fmt"

	"github.com/wudi/sotjit/bytecode"
	trerrors "github.com/wudi/sotjit/errors"
	"github.com/wudi/sotjit/variable"
)

// Frame holds everything OpcodeExecutor needs to simulate one function's
// bytecode: its code object, its scopes, and its simulated stack.
type Frame struct {
	Code *bytecode.CodeObject

	stack []variable.Variable

	Locals   map[string]variable.Variable
	Globals  map[string]variable.Variable
	Builtins map[string]variable.Variable
	Consts   []variable.Variable

	Lasti       int
	CurrentLine int
}

// New builds a frame over code with the given initial scopes. callers pass
// nil for any scope that should start empty.
func New(code *bytecode.CodeObject, locals, globals, builtins map[string]variable.Variable, consts []variable.Variable) *Frame {
	if locals == nil {
		locals = map[string]variable.Variable{}
	}
	if globals == nil {
		globals = map[string]variable.Variable{}
	}
	if builtins == nil {
		builtins = map[string]variable.Variable{}
	}
	return &Frame{
		Code:     code,
		stack:    make([]variable.Variable, 0, 16),
		Locals:   locals,
		Globals:  globals,
		Builtins: builtins,
		Consts:   consts,
	}
}

// Push appends v to the simulated operand stack. A Dangling-tracked
// variable must never reach here (spec §3 invariant); Push itself does not
// check the tracker.
func (f *Frame) Push(v variable.Variable) {
	f.stack = append(f.stack, v)
}

// Pop removes and returns the top of the simulated stack.
func (f *Frame) Pop() (variable.Variable, error) {
	if len(f.stack) == 0 {
		return nil, trerrors.NewInner(trerrors.ErrStackUnderflow, "pop on empty simulated stack")
	}
	idx := len(f.stack) - 1
	v := f.stack[idx]
	f.stack = f.stack[:idx]
	return v, nil
}

// PopN removes and returns the top n values, in original (bottom-to-top)
// order.
func (f *Frame) PopN(n int) ([]variable.Variable, error) {
	if len(f.stack) < n {
		return nil, trerrors.NewInner(trerrors.ErrStackUnderflow, "pop %d on stack of depth %d", n, len(f.stack))
	}
	idx := len(f.stack) - n
	out := append([]variable.Variable(nil), f.stack[idx:]...)
	f.stack = f.stack[:idx]
	return out, nil
}

// Peek returns the value at depth (0 == top) without removing it.
func (f *Frame) Peek(depth int) (variable.Variable, error) {
	idx := len(f.stack) - 1 - depth
	if idx < 0 || idx >= len(f.stack) {
		return nil, trerrors.NewInner(trerrors.ErrStackUnderflow, "peek(%d) on stack of depth %d", depth, len(f.stack))
	}
	return f.stack[idx], nil
}

// StackDepth reports how many values are currently on the simulated
// stack, used by the resume-function synthesis to know how many values the
// resume closure must accept (spec §4.4.1b).
func (f *Frame) StackDepth() int { return len(f.stack) }

// StackSnapshot returns a copy of the current stack contents, bottom to
// top, for resume-function argument wiring.
func (f *Frame) StackSnapshot() []variable.Variable {
	return append([]variable.Variable(nil), f.stack...)
}

// RotN rotates the top k stack values, moving the top value to depth k-1
// (ROT_TWO/ROT_THREE/ROT_FOUR).
func (f *Frame) RotN(k int) error {
	if len(f.stack) < k {
		return trerrors.NewInner(trerrors.ErrStackUnderflow, "rot%d on stack of depth %d", k, len(f.stack))
	}
	idx := len(f.stack) - k
	top := f.stack[len(f.stack)-1]
	copy(f.stack[idx+1:], f.stack[idx:len(f.stack)-1])
	f.stack[idx] = top
	return nil
}

// DupTop duplicates the top n values in place.
func (f *Frame) DupTop(n int) error {
	if len(f.stack) < n {
		return trerrors.NewInner(trerrors.ErrStackUnderflow, "dup_top(%d) on stack of depth %d", n, len(f.stack))
	}
	f.stack = append(f.stack, f.stack[len(f.stack)-n:]...)
	return nil
}

// LookupLocal resolves a LOAD_FAST name against this frame's locals,
// reporting ErrVariableNotFound if absent (spec §4.4's LOAD_FAST handler).
func (f *Frame) LookupLocal(name string) (variable.Variable, error) {
	v, ok := f.Locals[name]
	if !ok {
		return nil, fmt.Errorf("%w: local %q", trerrors.ErrVariableNotFound, name)
	}
	return v, nil
}

// LookupGlobal resolves LOAD_GLOBAL/LOAD_NAME against globals, falling
// through to builtins (spec §4.4).
func (f *Frame) LookupGlobal(name string) (variable.Variable, error) {
	if v, ok := f.Globals[name]; ok {
		return v, nil
	}
	if v, ok := f.Builtins[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: global %q", trerrors.ErrVariableNotFound, name)
}

// LookupBuiltin resolves LOAD_BUILTIN directly against the builtins scope.
func (f *Frame) LookupBuiltin(name string) (variable.Variable, error) {
	v, ok := f.Builtins[name]
	if !ok {
		return nil, fmt.Errorf("%w: builtin %q", trerrors.ErrVariableNotFound, name)
	}
	return v, nil
}

// StoreLocal binds name to v in this frame's locals (STORE_FAST).
func (f *Frame) StoreLocal(name string, v variable.Variable) {
	f.Locals[name] = v
}

// Const returns the idx-th entry of the code object's constant pool,
// wrapped with a Const tracker by the caller (this method only performs
// the bounds-checked lookup).
func (f *Frame) Const(idx int) (variable.Variable, error) {
	if idx < 0 || idx >= len(f.Consts) {
		return nil, trerrors.NewInner(trerrors.ErrUnreachableState, "const index %d out of range (pool size %d)", idx, len(f.Consts))
	}
	return f.Consts[idx], nil
}

// Advance moves the instruction cursor to the next instruction,
// maintaining current_line from the code object's per-instruction line
// table (spec §4.4 per-frame state: "lasti, current_line").
func (f *Frame) Advance() {
	f.Lasti++
	if f.Code != nil && f.Lasti >= 0 && f.Lasti < len(f.Code.Instructions) {
		f.CurrentLine = f.Code.Instructions[f.Lasti].Line
	}
}

// Jump sets the instruction cursor directly, for jump opcodes.
func (f *Frame) Jump(target int) {
	f.Lasti = target
	if f.Code != nil && target >= 0 && target < len(f.Code.Instructions) {
		f.CurrentLine = f.Code.Instructions[target].Line
	}
}

// CurrentInstruction returns the instruction at the cursor, or false once
// the frame has run off the end of its code object.
func (f *Frame) CurrentInstruction() (bytecode.Instruction, bool) {
	if f.Code == nil || f.Lasti < 0 || f.Lasti >= len(f.Code.Instructions) {
		return bytecode.Instruction{}, false
	}
	return f.Code.Instructions[f.Lasti], true
}
