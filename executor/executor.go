// Package executor implements OpcodeExecutor and OpcodeInlineExecutor
// (spec §4.4): the stack-simulating interpreter that walks a frame's
// bytecode, recording tensor ops into a FunctionGraph and emitting
// rewritten code plus a guard on graph-break or normal return.
//
// Dispatch follows the teacher's InstructionFactory idiom: a table from
// opcode to handler built once per executor, rather than a switch
// spanning hundreds of cases (vm/instruction_factory.go).
package executor

import (
	"errors"
	"fmt"

	"github.com/wudi/sotjit/bytecode"
	"github.com/wudi/sotjit/codegen"
	trerrors "github.com/wudi/sotjit/errors"
	"github.com/wudi/sotjit/frame"
	"github.com/wudi/sotjit/graph"
	"github.com/wudi/sotjit/guard"
	"github.com/wudi/sotjit/internal/tracelog"
	"github.com/wudi/sotjit/tracker"
	"github.com/wudi/sotjit/variable"
)

// errStop is the internal control-flow sentinel that unwinds Transform
// once RETURN_VALUE (or, for an inline executor, an equivalent event) has
// set the executor's terminal fields. It never escapes this package.
var errStop = errors.New("executor: stop")

type handlerFunc func(*Executor, bytecode.Instruction) error

// breakKind tags which graph-break protocol (spec §4.4.1) a pending
// BreakGraphError must be resolved with once it reaches Transform's
// top-level catch site.
type breakKind int

const (
	breakNone breakKind = iota
	breakJump
	breakCall
	breakForLoop
)

// breakContext carries what the raising handler knew at the break site, so
// the top-level catch in Transform can synthesize the right resume
// functions without re-deriving state (spec §4.4.1 a/b/c).
type breakContext struct {
	kind breakKind

	// breakJump
	predicate  variable.Variable
	takeTarget int
	fallTarget int

	// breakCall
	preCallStack []variable.Variable
	callInstr    bytecode.Instruction
	afterCallIdx int

	// breakForLoop
	iterVar      *variable.Iterator
	forIterIndex int
	forIterJump  int
}

// Executor is OpcodeExecutor (top-level, Inline == false) and
// OpcodeInlineExecutor (Inline == true) at once: the inline variant is a
// restricted mode of the same simulator (spec §4.4.2), not a separate
// type, since every opcode handler the two share is identical.
type Executor struct {
	Frame *frame.Frame
	Graph *graph.FunctionGraph
	CG    codegen.CodeGen

	Inline bool
	Strict bool

	handlers map[bytecode.Opcode]handlerFunc
	resolve  guard.FrameResolver

	// Outcome, populated once Transform stops.
	ReturnValue variable.Variable
	NewCode     *bytecode.CodeObject
	GuardFn     func() bool

	pendingBreak *breakContext
	loopStack    []breakContext

	// callSite is a human-readable label for this frame, contributed to
	// an InnerError's call-stack summary (spec §4.5 "stringified call-stack
	// summary; each simulator in the call stack contributes one source
	// line").
	callSite string
	parent   *Executor
}

// New builds a top-level OpcodeExecutor over f, recording tensor ops into
// g and emitting rewritten code through cg.
func New(f *frame.Frame, g *graph.FunctionGraph, cg codegen.CodeGen, strict bool, resolve guard.FrameResolver) *Executor {
	e := &Executor{Frame: f, Graph: g, CG: cg, Strict: strict, resolve: resolve}
	e.registerHandlers()
	if f.Code != nil {
		e.callSite = f.Code.Name
	}
	return e
}

// newInline builds an OpcodeInlineExecutor sharing the parent's graph and
// codegen (spec §4.4.2: inline calls append to the caller's graph).
func newInline(parent *Executor, f *frame.Frame) *Executor {
	e := &Executor{
		Frame:  f,
		Graph:  parent.Graph,
		CG:     parent.CG,
		Strict: parent.Strict,
		Inline: true,
		resolve: parent.resolve,
		parent:  parent,
	}
	e.registerHandlers()
	if f.Code != nil {
		e.callSite = f.Code.Name
	}
	return e
}

// CallChain renders one line per simulator in the inline-call chain,
// outermost first, for an InnerError's stack summary (spec §4.5).
func (e *Executor) CallChain() []string {
	var chain []string
	cur := e
	for cur != nil {
		chain = append([]string{cur.callSite}, chain...)
		cur = cur.parent
	}
	return chain
}

// Transform runs the frame to completion: either a normal return (setting
// ReturnValue, and for a top-level executor NewCode/GuardFn) or a
// graph-break resolved into NewCode/GuardFn (spec §4.4, §4.4.1).
func (e *Executor) Transform() error {
	for {
		instr, ok := e.Frame.CurrentInstruction()
		if !ok {
			return trerrors.NewInner(trerrors.ErrUnreachableState, "ran off the end of %q without RETURN_VALUE", e.callSite)
		}

		handler, ok := e.handlers[instr.Opcode]
		if !ok {
			return trerrors.NewNotImplemented(instr.Opcode.String(), "no simulator handler for %s", instr.Opcode)
		}

		tracelog.Tracef("executor(%s): %s @%d", e.callSite, instr.Opcode, e.Frame.Lasti)
		err := handler(e, instr)
		if err == nil {
			e.Frame.Advance()
			continue
		}
		if _, ok := err.(errNoAdvance); ok {
			continue
		}
		if errors.Is(err, errStop) {
			return nil
		}
		if trerrors.IsBreakGraph(err) {
			if e.Inline {
				return err
			}
			if resolveErr := e.resolveBreakGraph(); resolveErr != nil {
				return resolveErr
			}
			return nil
		}
		return err
	}
}

// resolveBreakGraph dispatches a pending break to the right protocol (spec
// §4.4.1): jump-on-tensor, break-inside-call, or break-inside-for-loop.
func (e *Executor) resolveBreakGraph() error {
	ctx := e.pendingBreak
	if ctx == nil {
		return trerrors.NewInner(trerrors.ErrUnreachableState, "break graph raised with no pending context")
	}
	switch ctx.kind {
	case breakJump:
		return e.breakGraphInJump(*ctx)
	case breakCall:
		return e.breakGraphInCall(*ctx)
	case breakForLoop:
		return e.breakGraphInForLoop(*ctx)
	default:
		return trerrors.NewInner(trerrors.ErrUnreachableState, "break graph raised with unknown context kind")
	}
}

// newDummy builds a Dummy tracker deriving from the given operands,
// marking the result as synthesized-and-not-traceable (design note §9).
func newDummy(operands ...variable.Variable) tracker.Tracker {
	from := make([]tracker.Traced, len(operands))
	for i, v := range operands {
		from[i] = v
	}
	return &tracker.Dummy{From: from}
}

func opErr(opcode bytecode.Opcode, format string, args ...any) error {
	return trerrors.NewNotImplemented(opcode.String(), format, args...)
}

func fmtKey(v any) string { return fmt.Sprintf("%#v", v) }

// truthy computes Python-style truthiness for a constant's unwrapped host
// value: nil, zero numbers, empty strings, and false are falsy; everything
// else is truthy.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
