// Package codegen defines the CodeGen oracle (spec §6): the rewritten
// bytecode emitter consumed by tracker.Emit, variable.Reconstruct, and the
// graph-break protocol. It is treated as an external collaborator per
// spec §1 ("Out of scope / external collaborators"), but this module still
// ships one concrete implementation so the rest of the translator has
// something real to drive and test against.
package codegen

import "github.com/wudi/sotjit/bytecode"

// ResumeFunction is a synthesized host function representing the tail of a
// translated function after a graph-break point (spec Glossary).
type ResumeFunction struct {
	Code   *bytecode.CodeObject
	Inputs []string // names of the locals the resume function expects, in order
}

// CodeGen is the oracle interface a rewritten-code emitter must satisfy.
// Every method name mirrors spec §6's PyCodeGen surface directly so the
// mapping to the specification is obvious at a glance.
type CodeGen interface {
	GenLoadConst(value any)
	GenLoadFast(name string)
	GenStoreFast(name string)
	// GenLoadObject loads obj.name; obj == nil means "global/builtin name".
	GenLoadObject(obj any, name string)
	GenLoadAttr(name string)
	GenSubscribe()
	GenGetIter()
	GenCallFunction(argc int)
	GenReturn()
	GenRotN(k int)
	GenPopTop()
	GenUnpackSequence(n int)

	// AddInstr appends a raw instruction; jumpTo is stored as its operand
	// as given, an absolute instruction index.
	AddInstr(op bytecode.Opcode, jumpTo int)
	ExtendInstrs(instrs []bytecode.Instruction)
	AddPureInstructions(instrs []bytecode.Instruction)
	PopInstr() (bytecode.Instruction, bool)

	// GenPycode assembles the accumulated instructions into a code object.
	GenPycode() *bytecode.CodeObject

	// GenResumeFnAt synthesizes a resume function starting at instruction
	// index, given the interpreter stack will hold stackSize values when
	// it is invoked (spec §4.4.1b).
	GenResumeFnAt(index int, stackSize int) (*ResumeFunction, []string)
	// GenLoopBodyBetween synthesizes the loop-body function used by the
	// for-loop break protocol (spec §4.4.1c).
	GenLoopBodyBetween(forIter, bodyStart, loopEnd int) (*ResumeFunction, []string)
	// GenForLoopFnBetween synthesizes the after-loop tail function.
	GenForLoopFnBetween(iterIdx, start, end int) (*ResumeFunction, []string)

	// ReplaceDummyVariable produces the fallback (code, always-true-guard)
	// pair used when start_translate recovers from a NotImplemented or
	// BreakGraphError in non-strict mode (spec §4.5).
	ReplaceDummyVariable() (*bytecode.CodeObject, func() bool)
}
