// Package variable implements the polymorphic value wrapper (spec §3, §4.2)
// that flows through the simulated stack. Every variable carries exactly
// one tracker describing its provenance.
//
// Following design note §9, Variable is a closed tagged union (an
// interface only this package can implement) and each operation is a
// single free function dispatching on the concrete type, rather than a
// class hierarchy with virtual methods.
package variable

import (
	"fmt"

	"github.com/wudi/sotjit/bytecode"
	"github.com/wudi/sotjit/codegen"
	trerrors "github.com/wudi/sotjit/errors"
	"github.com/wudi/sotjit/guard"
	"github.com/wudi/sotjit/meta"
	"github.com/wudi/sotjit/tracker"
)

var errValueNotMaterial = trerrors.ErrValueNotMaterial

// Variable is the tagged union of every value kind that can sit on the
// simulated stack. It satisfies tracker.Traced so a Dummy tracker can hold
// Variables as its derivation inputs without an import cycle.
type Variable interface {
	tracker.Traced
	DebugName() string
	SetDebugName(string)
	kind() string
}

type base struct {
	tr   tracker.Tracker
	name string
}

func (b *base) Tracker() tracker.Tracker { return b.tr }
func (b *base) DebugName() string {
	if b.name == "" {
		if l, ok := b.tr.(*tracker.Local); ok {
			return l.Name
		}
		return "tmp_var"
	}
	return b.name
}
func (b *base) SetDebugName(n string) { b.name = n }

func newBase(tr tracker.Tracker) base { return base{tr: tr} }

// Constant wraps one of the primitive literal kinds {int, float, str,
// bool, none} (spec §3).
type Constant struct {
	base
	Value any
}

func NewConstant(tr tracker.Tracker, value any) *Constant {
	return &Constant{base: newBase(tr), Value: value}
}
func (*Constant) kind() string { return "Constant" }

// Tensor wraps a MetaInfo; during simulation its identity is opaque —
// never the concrete tensor (spec §3).
type Tensor struct {
	base
	Meta meta.Info
}

func NewTensor(tr tracker.Tracker, m meta.Info) *Tensor {
	return &Tensor{base: newBase(tr), Meta: m}
}
func (*Tensor) kind() string { return "Tensor" }

// List holds an ordered, mutable sequence of child variables.
type List struct {
	base
	Items []Variable
}

func NewList(tr tracker.Tracker, items []Variable) *List {
	return &List{base: newBase(tr), Items: items}
}
func (*List) kind() string { return "List" }

// Tuple holds an ordered, immutable sequence of child variables.
type Tuple struct {
	base
	Items []Variable
}

func NewTuple(tr tracker.Tracker, items []Variable) *Tuple {
	return &Tuple{base: newBase(tr), Items: items}
}
func (*Tuple) kind() string { return "Tuple" }

// Dict holds a mapping of unwrapped literal keys to child variables.
// Keys must be unwrapped literal values per spec §3 so the executor can
// add them to the globally-guarded set.
type Dict struct {
	base
	Keys   []any
	Values []Variable
}

func NewDict(tr tracker.Tracker, keys []any, values []Variable) *Dict {
	return &Dict{base: newBase(tr), Keys: keys, Values: values}
}
func (*Dict) kind() string { return "Dict" }

func (d *Dict) Get(key any) (Variable, bool) {
	for i, k := range d.Keys {
		if fmt.Sprintf("%#v", k) == fmt.Sprintf("%#v", key) {
			return d.Values[i], true
		}
	}
	return nil, false
}

func (d *Dict) Set(key any, v Variable) {
	for i, k := range d.Keys {
		if fmt.Sprintf("%#v", k) == fmt.Sprintf("%#v", key) {
			d.Values[i] = v
			return
		}
	}
	d.Keys = append(d.Keys, key)
	d.Values = append(d.Values, v)
}

// Slice wraps a Python-style [start:stop:step] triple; any component may
// be nil, meaning "omitted".
type Slice struct {
	base
	Start, Stop, Step Variable
}

func NewSlice(tr tracker.Tracker, start, stop, step Variable) *Slice {
	return &Slice{base: newBase(tr), Start: start, Stop: stop, Step: step}
}
func (*Slice) kind() string { return "Slice" }

// IterKind distinguishes the iterator flavors spec §4.4 enumerates.
type IterKind int

const (
	IterSequence IterKind = iota
	IterDict
	IterTensor
	IterEnumerate
	IterUserDefined
)

// Iterator tracks a source container variable and a 0-based cursor.
type Iterator struct {
	base
	Kind   IterKind
	Source Variable
	Idx    int
}

func NewIterator(tr tracker.Tracker, kind IterKind, source Variable) *Iterator {
	return &Iterator{base: newBase(tr), Kind: kind, Source: source}
}
func (*Iterator) kind() string { return "Iterator" }

// CallableKind distinguishes the callable flavors spec §3/§4.4 enumerate.
type CallableKind int

const (
	CallableBuiltin CallableKind = iota
	CallableUserFunction
	CallableClosureFunction
	CallableMethod
	CallableBoundMethod
)

// HostOperator is the signature every builtin callable wraps: a host
// operator function invoked with already-unwrapped variable arguments.
type HostOperator func(args []Variable, kwargs map[string]Variable) (Variable, error)

// FunctionDef is the callee definition a UserDefinedFunction/
// ClosureFunction callable wraps: code object + global mapping + default
// args + closure tuple (spec §3).
type FunctionDef struct {
	Code     *CodeObject
	Globals  map[string]Variable
	Defaults []Variable
	Closure  []Variable
}

// CodeObject is a minimal forward-declared alias kept local to this
// package's public surface so callers don't need to import bytecode just
// to build a Callable; the executor package supplies the real
// *bytecode.CodeObject.
type CodeObject = any

// Callable wraps a callee definition. For UserDefinedFunction, Def holds
// the code/globals/defaults/closure; for ClosureFunction, CapturedLocals
// additionally snapshots the defining frame's locals; for Method, Unbound
// and Self are populated; for Builtin, Operator is populated.
type Callable struct {
	base
	Kind           CallableKind
	Operator       HostOperator
	Def            *FunctionDef
	CapturedLocals map[string]Variable
	Unbound        Variable
	Self           Variable
	Name           string
}

func NewBuiltinCallable(tr tracker.Tracker, name string, op HostOperator) *Callable {
	return &Callable{base: newBase(tr), Kind: CallableBuiltin, Name: name, Operator: op}
}

func NewUserFunctionCallable(tr tracker.Tracker, name string, def *FunctionDef) *Callable {
	return &Callable{base: newBase(tr), Kind: CallableUserFunction, Name: name, Def: def}
}

func NewClosureFunctionCallable(tr tracker.Tracker, name string, def *FunctionDef, captured map[string]Variable) *Callable {
	return &Callable{base: newBase(tr), Kind: CallableClosureFunction, Name: name, Def: def, CapturedLocals: captured}
}

func NewMethodCallable(tr tracker.Tracker, name string, unbound, self Variable) *Callable {
	return &Callable{base: newBase(tr), Kind: CallableMethod, Name: name, Unbound: unbound, Self: self}
}

func (*Callable) kind() string { return "Callable" }

// Object is the terminal fallback wrapping anything unrecognized (spec
// §4.2: "A terminal fallback wraps anything unrecognized as Object").
type Object struct {
	base
	HostValue any
	HostType  string
}

func NewObject(tr tracker.Tracker, hostValue any, hostType string) *Object {
	return &Object{base: newBase(tr), HostValue: hostValue, HostType: hostType}
}
func (*Object) kind() string { return "Object" }

// Dummy is the NULL placeholder variant (spec §4.2), distinct from
// tracker.Dummy: this is a *value* that stands for "no value here" (e.g.
// consumed by LOAD_METHOD's two-slot push when the method isn't bound).
type Dummy struct{ base }

func NewDummy(tr tracker.Tracker) *Dummy { return &Dummy{base: newBase(tr)} }
func (*Dummy) kind() string              { return "Dummy" }

// GetValue returns the underlying host value. Fails for variables whose
// value is not materializable (e.g. a synthetic tensor mid-translation).
func GetValue(v Variable) (any, error) {
	switch t := v.(type) {
	case *Constant:
		return t.Value, nil
	case *Tuple:
		out := make([]any, len(t.Items))
		for i, it := range t.Items {
			val, err := GetValue(it)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	case *List:
		out := make([]any, len(t.Items))
		for i, it := range t.Items {
			val, err := GetValue(it)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	case *Dict:
		out := map[string]any{}
		for i, k := range t.Keys {
			val, err := GetValue(t.Values[i])
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = val
		}
		return out, nil
	case *Object:
		return t.HostValue, nil
	default:
		return nil, fmt.Errorf("%w: %s has no materializable value", errValueNotMaterial, v.DebugName())
	}
}

// GetType returns the host type name of GetValue(v).
func GetType(v Variable) (string, error) {
	switch v.(type) {
	case *Constant, *Tuple, *List, *Dict, *Object:
		val, err := GetValue(v)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%T", val), nil
	case *Tensor:
		return "Tensor", nil
	case *Callable:
		return "function", nil
	case *Iterator:
		return "iterator", nil
	case *Slice:
		return "slice", nil
	default:
		return "", fmt.Errorf("%w: cannot type %s", errValueNotMaterial, v.DebugName())
	}
}

// Reconstruct emits bytecode that rebuilds v's value on the interpreter
// stack: if v's tracker is traceable, emit the tracker directly; else fall
// through to the container-aware reconstruction (spec §4.2).
func Reconstruct(v Variable, cg codegen.CodeGen) error {
	tr := v.Tracker()
	if _, isDummyTracker := tr.(*tracker.Dummy); !isDummyTracker && tr.Traceable() {
		return tracker.Emit(tr, cg)
	}
	return reconstructInner(v, cg)
}

func reconstructInner(v Variable, cg codegen.CodeGen) error {
	switch t := v.(type) {
	case *Constant:
		cg.GenLoadConst(t.Value)
		return nil
	case *List:
		for _, item := range t.Items {
			if err := Reconstruct(item, cg); err != nil {
				return err
			}
		}
		cg.AddInstr(bytecode.OP_BUILD_LIST, len(t.Items))
		return nil
	case *Tuple:
		for _, item := range t.Items {
			if err := Reconstruct(item, cg); err != nil {
				return err
			}
		}
		cg.AddInstr(bytecode.OP_BUILD_TUPLE, len(t.Items))
		return nil
	case *Dict:
		for i, k := range t.Keys {
			cg.GenLoadConst(k)
			if err := Reconstruct(t.Values[i], cg); err != nil {
				return err
			}
		}
		cg.AddInstr(bytecode.OP_BUILD_MAP, len(t.Keys))
		return nil
	default:
		return fmt.Errorf("%w: %s cannot be reconstructed (not traceable, not a container)", errValueNotMaterial, v.DebugName())
	}
}

// FlattenItems enumerates all leaf sub-variables; containers recurse.
func FlattenItems(v Variable) []Variable {
	switch t := v.(type) {
	case *List:
		return flattenMany(t.Items)
	case *Tuple:
		return flattenMany(t.Items)
	case *Dict:
		return flattenMany(t.Values)
	default:
		return []Variable{v}
	}
}

func flattenMany(items []Variable) []Variable {
	out := make([]Variable, 0, len(items))
	for _, it := range items {
		out = append(out, FlattenItems(it)...)
	}
	return out
}

// Inputs returns v's tracker's immediate derivation inputs as Variables
// (only meaningful for a Dummy tracker — traceable trackers have no
// Variable-typed inputs by construction here).
func Inputs(v Variable) []Variable {
	d, ok := v.Tracker().(*tracker.Dummy)
	if !ok {
		return nil
	}
	out := make([]Variable, 0, len(d.From))
	for _, f := range d.From {
		if vv, ok := f.(Variable); ok {
			out = append(out, vv)
		}
	}
	return out
}

// FlattenTraceableInputs topologically enumerates the traceable ancestors
// across the tracker DAG (spec §4.2): if v's own tracker is traceable, v
// itself is the (only) traceable input; otherwise recurse into the
// variables v's Dummy tracker was derived from.
func FlattenTraceableInputs(v Variable) []Variable {
	if v.Tracker().Traceable() {
		return []Variable{v}
	}
	var out []Variable
	for _, in := range Inputs(v) {
		out = append(out, FlattenTraceableInputs(in)...)
	}
	return out
}

// MakeStringifyGuard builds "tracker.stringify() == literal(get_value())"
// for constant-comparable variables, or a MetaInfo-tuple comparison for
// tensors (spec §4.2). bind resolves a root tracker to its frame
// expression and current value.
func MakeStringifyGuard(v Variable, bind func(tracker.Tracker) (string, any)) (tracker.StringifyResult, any, error) {
	if !v.Tracker().Traceable() {
		return tracker.StringifyResult{}, nil, fmt.Errorf("%w: cannot guard a non-traceable variable %s", errValueNotMaterial, v.DebugName())
	}
	expr, err := tracker.Stringify(v.Tracker(), bind)
	if err != nil {
		return tracker.StringifyResult{}, nil, err
	}
	if t, ok := v.(*Tensor); ok {
		return expr, t.Meta, nil
	}
	val, err := GetValue(v)
	if err != nil {
		return tracker.StringifyResult{}, nil, err
	}
	return expr, val, nil
}

// AddGuardFor installs one equality check per free root variable v's
// expression depends on, rather than keying a single check off the full
// compound expression text: a FrameResolver only ever resolves simple root
// names (spec §4.2 FrameResolver), so a subscript/attribute expression like
// "xs[0]" can never be looked up directly. Guarding on each free root's own
// bound value is coarser (it pins the whole container, not just the one
// element read) but it is the check a resolver can actually evaluate.
func AddGuardFor(g *guard.Guard, v Variable, bind func(tracker.Tracker) (string, any)) error {
	expr, _, err := MakeStringifyGuard(v, bind)
	if err != nil {
		return err
	}
	for name, value := range expr.FreeVars {
		g.Add(name, value)
	}
	return nil
}
