package codegen

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/wudi/sotjit/bytecode"
)

// Emitter is the concrete CodeGen implementation. It mirrors PyCodeGen's
// append-and-assemble shape: instructions accumulate in order and GenPycode
// assembles them into a code object. Jump targets are stored as given,
// already absolute instruction indices; no second pass patches them.
type Emitter struct {
	name      string
	instrs    []bytecode.Instruction
	consts    []any
	constIdx  map[string]int
	varnames  []string
	varIdx    map[string]int
	names     []string
	nameIdx   map[string]int
	pendingJumps []int // indices into instrs whose Arg is a jump target still to resolve
}

// NewEmitter creates a CodeGen for a fresh rewritten function body. name is
// used only for diagnostics (segment ids use uuid, not this name, to stay
// unique across translation attempts — SPEC_FULL §3).
func NewEmitter(name string) *Emitter {
	return &Emitter{
		name:     name,
		constIdx: map[string]int{},
		varIdx:   map[string]int{},
		nameIdx:  map[string]int{},
	}
}

func (e *Emitter) internConst(v any) int {
	key := fmt.Sprintf("%T:%#v", v, v)
	if idx, ok := e.constIdx[key]; ok {
		return idx
	}
	idx := len(e.consts)
	e.consts = append(e.consts, v)
	e.constIdx[key] = idx
	return idx
}

func (e *Emitter) internVar(name string) int {
	if idx, ok := e.varIdx[name]; ok {
		return idx
	}
	idx := len(e.varnames)
	e.varnames = append(e.varnames, name)
	e.varIdx[name] = idx
	return idx
}

func (e *Emitter) internName(name string) int {
	if idx, ok := e.nameIdx[name]; ok {
		return idx
	}
	idx := len(e.names)
	e.names = append(e.names, name)
	e.nameIdx[name] = idx
	return idx
}

func (e *Emitter) emit(op bytecode.Opcode, arg int) {
	e.instrs = append(e.instrs, bytecode.Instruction{Opcode: op, Arg: arg})
}

func (e *Emitter) GenLoadConst(value any) { e.emit(bytecode.OP_LOAD_CONST, e.internConst(value)) }
func (e *Emitter) GenLoadFast(name string) { e.emit(bytecode.OP_LOAD_FAST, e.internVar(name)) }
func (e *Emitter) GenStoreFast(name string) { e.emit(bytecode.OP_STORE_FAST, e.internVar(name)) }

func (e *Emitter) GenLoadObject(obj any, name string) {
	if obj == nil {
		e.emit(bytecode.OP_LOAD_GLOBAL, e.internName(name))
		return
	}
	e.GenLoadConst(obj)
	e.GenLoadAttr(name)
}

func (e *Emitter) GenLoadAttr(name string) { e.emit(bytecode.OP_LOAD_ATTR, e.internName(name)) }
func (e *Emitter) GenSubscribe()           { e.emit(bytecode.OP_BINARY_SUBSCR, 0) }
func (e *Emitter) GenGetIter()             { e.emit(bytecode.OP_GET_ITER, 0) }
func (e *Emitter) GenCallFunction(argc int) { e.emit(bytecode.OP_CALL_FUNCTION, argc) }
func (e *Emitter) GenReturn()              { e.emit(bytecode.OP_RETURN_VALUE, 0) }
func (e *Emitter) GenRotN(k int) {
	switch k {
	case 2:
		e.emit(bytecode.OP_ROT_TWO, 0)
	case 3:
		e.emit(bytecode.OP_ROT_THREE, 0)
	case 4:
		e.emit(bytecode.OP_ROT_FOUR, 0)
	}
}
func (e *Emitter) GenPopTop()               { e.emit(bytecode.OP_POP_TOP, 0) }
func (e *Emitter) GenUnpackSequence(n int)  { e.emit(bytecode.OP_UNPACK_SEQUENCE, n) }

func (e *Emitter) AddInstr(op bytecode.Opcode, jumpTo int) {
	idx := len(e.instrs)
	e.instrs = append(e.instrs, bytecode.Instruction{Opcode: op, Arg: jumpTo})
	if jumpTo >= 0 {
		e.pendingJumps = append(e.pendingJumps, idx)
	}
}

func (e *Emitter) ExtendInstrs(instrs []bytecode.Instruction) {
	e.instrs = append(e.instrs, instrs...)
}

func (e *Emitter) AddPureInstructions(instrs []bytecode.Instruction) {
	e.ExtendInstrs(instrs)
}

func (e *Emitter) PopInstr() (bytecode.Instruction, bool) {
	if len(e.instrs) == 0 {
		return bytecode.Instruction{}, false
	}
	last := e.instrs[len(e.instrs)-1]
	e.instrs = e.instrs[:len(e.instrs)-1]
	return last, true
}

// GenPycode assembles the accumulated instructions into a CodeObject.
// Jump targets recorded via AddInstr are already absolute instruction
// indices in this simplified model (the translator never reorders
// instructions after emission), so no further patching is required here.
func (e *Emitter) GenPycode() *bytecode.CodeObject {
	return &bytecode.CodeObject{
		Name:         e.name,
		Instructions: append([]bytecode.Instruction(nil), e.instrs...),
		Consts:       append([]any(nil), e.consts...),
		Varnames:     append([]string(nil), e.varnames...),
		Names:        append([]string(nil), e.names...),
	}
}

// GenResumeFnAt synthesizes a resume function (spec §4.4.1b/c): a fresh
// code object whose params are the live inputs, body is a tail slice of
// this emitter's own instructions starting at index.
func (e *Emitter) GenResumeFnAt(index int, stackSize int) (*ResumeFunction, []string) {
	inputs := make([]string, stackSize)
	for i := range inputs {
		inputs[i] = fmt.Sprintf("__stack_%d", i)
	}
	return e.resumeFrom(index, len(e.instrs), inputs), inputs
}

func (e *Emitter) GenLoopBodyBetween(forIter, bodyStart, loopEnd int) (*ResumeFunction, []string) {
	inputs := []string{"__break_flag"}
	return e.resumeFrom(bodyStart, loopEnd, inputs), inputs
}

func (e *Emitter) GenForLoopFnBetween(iterIdx, start, end int) (*ResumeFunction, []string) {
	inputs := []string{fmt.Sprintf("__iter_%d", iterIdx)}
	return e.resumeFrom(start, end, inputs), inputs
}

func (e *Emitter) resumeFrom(start, end int, inputs []string) *ResumeFunction {
	if start < 0 {
		start = 0
	}
	if end > len(e.instrs) {
		end = len(e.instrs)
	}
	body := []bytecode.Instruction{}
	if start < end {
		body = append(body, e.instrs[start:end]...)
	}
	return &ResumeFunction{
		Code: &bytecode.CodeObject{
			Name:         fmt.Sprintf("%s.resume.%s", e.name, uuid.NewString()[:8]),
			Instructions: body,
			Consts:       append([]any(nil), e.consts...),
			Varnames:     append([]string(nil), inputs...),
			Names:        append([]string(nil), e.names...),
			ArgCount:     len(inputs),
		},
		Inputs: inputs,
	}
}

// ReplaceDummyVariable implements the non-strict-mode fallback: a code
// object that performs no simulation at all (empty body, the host falls
// back to its default evaluation of the original frame) guarded by an
// always-true predicate, per spec §4.5.
func (e *Emitter) ReplaceDummyVariable() (*bytecode.CodeObject, func() bool) {
	return &bytecode.CodeObject{Name: e.name + ".fallback"}, func() bool { return true }
}
