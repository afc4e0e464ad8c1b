// Package tracker implements the provenance terms (spec §4.1, §9) that
// record how a Variable's value can be recovered from the live host frame.
// Trackers form a DAG rooted at frame inputs (locals/globals/builtins/
// consts); cycles are prevented by construction, since a tracker's inputs
// are fixed at creation (design note §9) and never mutated afterward.
//
// Every variant is a pointer type so two trackers compare equal only by
// identity — required for the DAG walk (flatten_traceable_inputs,
// topological sort, cycle detection) to use trackers as map keys safely,
// since some variants (Dummy) hold slices that would make value-type
// trackers incomparable.
package tracker

import (
	"fmt"

	"github.com/wudi/sotjit/codegen"
)

// Tracker is the tagged union of provenance terms. Rather than a class
// hierarchy with dynamic type checks, every variant implements the same
// two operations and a type switch in Emit/Stringify dispatches on the
// concrete type (design note §9).
type Tracker interface {
	// Traceable reports whether this tracker can recover the value it
	// describes from the live frame. Dummy and Dangling are not.
	Traceable() bool
	// Inputs returns the tracker's fixed dependency set, used to walk the
	// DAG for flatten_traceable_inputs and cycle auditing.
	Inputs() []Tracker
	// kind is unexported so Tracker cannot be implemented outside this
	// package, keeping the union closed the way a sum type would be.
	kind() string
}

// Local is the provenance of a value loaded from a frame local slot.
type Local struct{ Name string }

func (*Local) Traceable() bool   { return true }
func (*Local) Inputs() []Tracker { return nil }
func (*Local) kind() string      { return "Local" }

// Global is the provenance of a value loaded from the frame's globals dict.
type Global struct{ Name string }

func (*Global) Traceable() bool   { return true }
func (*Global) Inputs() []Tracker { return nil }
func (*Global) kind() string      { return "Global" }

// Builtin is the provenance of a value loaded from the builtins scope.
type Builtin struct{ Name string }

func (*Builtin) Traceable() bool   { return true }
func (*Builtin) Inputs() []Tracker { return nil }
func (*Builtin) kind() string      { return "Builtin" }

// Const is the provenance of a literal pulled from the code object's
// constant pool.
type Const struct{ Literal any }

func (*Const) Traceable() bool   { return true }
func (*Const) Inputs() []Tracker { return nil }
func (*Const) kind() string      { return "Const" }

// GetItem is the provenance of container[key]; recursive, emits the
// container first, then the literal key, then a subscript op.
type GetItem struct {
	Container Tracker
	Key       any
}

func (g *GetItem) Traceable() bool   { return g.Container.Traceable() }
func (g *GetItem) Inputs() []Tracker { return []Tracker{g.Container} }
func (*GetItem) kind() string        { return "GetItem" }

// GetAttr is the provenance of object.attr.
type GetAttr struct {
	Object Tracker
	Attr   string
}

func (g *GetAttr) Traceable() bool   { return g.Object.Traceable() }
func (g *GetAttr) Inputs() []Tracker { return []Tracker{g.Object} }
func (*GetAttr) kind() string        { return "GetAttr" }

// GetIter is the provenance of an iterator produced by GET_ITER.
type GetIter struct{ Source Tracker }

func (g *GetIter) Traceable() bool   { return g.Source.Traceable() }
func (g *GetIter) Inputs() []Tracker { return []Tracker{g.Source} }
func (*GetIter) kind() string        { return "GetIter" }

// FunctionGlobal is the provenance of a value pulled from a specific
// function's captured __globals__ mapping (used by the inline executor,
// spec §4.4.2).
type FunctionGlobal struct {
	Fn   Tracker
	Name string
}

func (g *FunctionGlobal) Traceable() bool   { return g.Fn.Traceable() }
func (g *FunctionGlobal) Inputs() []Tracker { return []Tracker{g.Fn} }
func (*FunctionGlobal) kind() string        { return "FunctionGlobal" }

// FunctionClosure is the provenance of a value pulled from a specific
// function's closure cell at index Idx.
type FunctionClosure struct {
	Fn  Tracker
	Idx int
}

func (g *FunctionClosure) Traceable() bool   { return g.Fn.Traceable() }
func (g *FunctionClosure) Inputs() []Tracker { return []Tracker{g.Fn} }
func (*FunctionClosure) kind() string        { return "FunctionClosure" }

// Traced is satisfied by anything that carries a Tracker — in practice,
// package variable's Variable interface. Dummy holds its derivation as
// []Traced rather than []Tracker so a Dummy's inputs can be walked back
// into full Variables (spec §4.2 flatten_traceable_inputs) without this
// package importing variable and creating an import cycle.
type Traced interface{ Tracker() Tracker }

// Dummy marks a value that was synthesized during simulation (e.g. the
// result of a tensor op) and cannot be traced back to the frame. Its
// Inputs are the trackers of the variables it was derived from.
type Dummy struct{ From []Traced }

func (*Dummy) Traceable() bool { return false }
func (d *Dummy) Inputs() []Tracker {
	in := make([]Tracker, len(d.From))
	for i, f := range d.From {
		in[i] = f.Tracker()
	}
	return in
}
func (*Dummy) kind() string { return "Dummy" }

// Dangling marks a temporary value that must never reach the simulated
// stack (spec §3 Variable invariants).
type Dangling struct{}

func (*Dangling) Traceable() bool   { return false }
func (*Dangling) Inputs() []Tracker { return nil }
func (*Dangling) kind() string      { return "Dangling" }

// Emit produces bytecode that, when executed in the current frame, loads
// the traced value onto the interpreter stack (spec §4.1). Recursive for
// GetItem/GetAttr/GetIter.
func Emit(t Tracker, cg codegen.CodeGen) error {
	switch v := t.(type) {
	case *Local:
		cg.GenLoadFast(v.Name)
		return nil
	case *Global:
		cg.GenLoadObject(nil, v.Name)
		return nil
	case *Builtin:
		cg.GenLoadObject(nil, v.Name)
		return nil
	case *Const:
		cg.GenLoadConst(v.Literal)
		return nil
	case *GetItem:
		if err := Emit(v.Container, cg); err != nil {
			return err
		}
		cg.GenLoadConst(v.Key)
		cg.GenSubscribe()
		return nil
	case *GetAttr:
		if err := Emit(v.Object, cg); err != nil {
			return err
		}
		cg.GenLoadAttr(v.Attr)
		return nil
	case *GetIter:
		if err := Emit(v.Source, cg); err != nil {
			return err
		}
		cg.GenGetIter()
		return nil
	case *FunctionGlobal:
		if err := Emit(v.Fn, cg); err != nil {
			return err
		}
		cg.GenLoadAttr("__globals__")
		cg.GenLoadConst(v.Name)
		cg.GenSubscribe()
		return nil
	case *FunctionClosure:
		if err := Emit(v.Fn, cg); err != nil {
			return err
		}
		cg.GenLoadAttr("__closure__")
		cg.GenLoadConst(v.Idx)
		cg.GenSubscribe()
		return nil
	default:
		return fmt.Errorf("tracker: %T is not traceable, cannot emit", t)
	}
}

// StringifyResult is a textual expression plus the set of free variables
// it depends on (spec §4.1), e.g. "fn.__globals__['x']" bound to fn.
type StringifyResult struct {
	Expr     string
	FreeVars map[string]any
}

func merge(results ...StringifyResult) map[string]any {
	out := map[string]any{}
	for _, r := range results {
		for k, v := range r.FreeVars {
			out[k] = v
		}
	}
	return out
}

// Stringify produces the textual guard expression for a traceable
// tracker. Only traceable trackers may appear in guards (spec §4.1). bind
// resolves a root tracker (Local/Global/Builtin/FunctionGlobal/
// FunctionClosure) to the frame-expression name and the concrete value to
// bind it to.
func Stringify(t Tracker, bind func(Tracker) (name string, value any)) (StringifyResult, error) {
	switch v := t.(type) {
	case *Local, *Global, *Builtin, *FunctionGlobal, *FunctionClosure:
		name, value := bind(t)
		return StringifyResult{Expr: name, FreeVars: map[string]any{name: value}}, nil
	case *Const:
		return StringifyResult{Expr: fmt.Sprintf("%#v", v.Literal), FreeVars: map[string]any{}}, nil
	case *GetItem:
		inner, err := Stringify(v.Container, bind)
		if err != nil {
			return StringifyResult{}, err
		}
		return StringifyResult{
			Expr:     fmt.Sprintf("%s[%#v]", inner.Expr, v.Key),
			FreeVars: merge(inner),
		}, nil
	case *GetAttr:
		inner, err := Stringify(v.Object, bind)
		if err != nil {
			return StringifyResult{}, err
		}
		return StringifyResult{
			Expr:     fmt.Sprintf("%s.%s", inner.Expr, v.Attr),
			FreeVars: merge(inner),
		}, nil
	case *GetIter:
		inner, err := Stringify(v.Source, bind)
		if err != nil {
			return StringifyResult{}, err
		}
		return StringifyResult{
			Expr:     fmt.Sprintf("iter(%s)", inner.Expr),
			FreeVars: merge(inner),
		}, nil
	default:
		return StringifyResult{}, fmt.Errorf("tracker: %T is not traceable, cannot stringify", t)
	}
}

// Cycle reports whether, starting from roots, the tracker DAG contains a
// cycle. Trackers are immutable once constructed so this should never
// trigger outside a bug; tracker tests cover both the acyclic and the
// cyclic case.
func Cycle(roots []Tracker) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[Tracker]int{}
	var visit func(t Tracker) bool
	visit = func(t Tracker) bool {
		switch color[t] {
		case gray:
			return true
		case black:
			return false
		}
		color[t] = gray
		for _, in := range t.Inputs() {
			if visit(in) {
				return true
			}
		}
		color[t] = black
		return false
	}
	for _, r := range roots {
		if visit(r) {
			return true
		}
	}
	return false
}
