package variable

import (
	"fmt"

	"github.com/wudi/sotjit/meta"
	"github.com/wudi/sotjit/tracker"
)

// Predicate reports whether a host value should be wrapped by the paired
// Constructor.
type Predicate func(v any) bool

// Constructor wraps a host value that matched the paired Predicate,
// attaching tr as its provenance.
type Constructor func(tr tracker.Tracker, v any) Variable

type registration struct {
	predicate   Predicate
	constructor Constructor
}

// VariableFactory holds an ordered list of predicate-constructor
// registrations (spec §4.2): the first whose predicate accepts the host
// value wins, so more specific matchers must be registered before the
// generic ones they would otherwise shadow. A value matching none of them
// falls through to the terminal Object wrapper.
type VariableFactory struct {
	regs []registration
}

// NewVariableFactory builds a factory pre-registered with every host-value
// kind this module's virtual environment setup can hand it (spec §4.2's
// "for each entry in the frame's locals/globals/builtins/consts, wrap the
// host value via VariableFactory.from_value"): tensors before sequences
// before mappings before scalars, since a *Dict host value also happens to
// satisfy no earlier predicate and a bare slice could otherwise be mistaken
// for anything else that ranges over it.
func NewVariableFactory() *VariableFactory {
	f := &VariableFactory{}
	f.Register(isTensorValue, constructTensor)
	f.Register(isListValue, constructList)
	f.Register(isTupleValue, constructTuple)
	f.Register(isDictValue, constructDict)
	f.Register(isScalarValue, func(tr tracker.Tracker, v any) Variable {
		return NewConstant(tr, v)
	})
	return f
}

// Default is the factory the module's virtual environment setup wraps
// every frame's locals/globals/builtins/consts host values through (spec
// §4.2), pre-registered with this module's value kinds by NewVariableFactory.
var Default = NewVariableFactory()

// Register appends one predicate-constructor pair to the end of the list,
// after every previously registered pair.
func (f *VariableFactory) Register(p Predicate, c Constructor) {
	f.regs = append(f.regs, registration{predicate: p, constructor: c})
}

// From wraps v with tr as its provenance, trying registrations in order
// and falling back to Object if none accept it.
func (f *VariableFactory) From(tr tracker.Tracker, v any) Variable {
	for _, r := range f.regs {
		if r.predicate(v) {
			return r.constructor(tr, v)
		}
	}
	return NewObject(tr, v, fmt.Sprintf("%T", v))
}

// ListValue and TupleValue let a caller that builds host-side scope
// entries pick sequence mutability explicitly, since both otherwise share
// the same underlying []Variable shape.
type ListValue []Variable
type TupleValue []Variable

// DictValue is the host-side shape of a mapping scope entry: parallel
// key/value slices, mirroring Dict's own fields since keys must already be
// unwrapped literals (spec §3) before they reach the factory.
type DictValue struct {
	Keys   []any
	Values []Variable
}

func isTensorValue(v any) bool { _, ok := v.(meta.Info); return ok }
func constructTensor(tr tracker.Tracker, v any) Variable {
	return NewTensor(tr, v.(meta.Info))
}

func isListValue(v any) bool { _, ok := v.(ListValue); return ok }
func constructList(tr tracker.Tracker, v any) Variable {
	return NewList(tr, []Variable(v.(ListValue)))
}

func isTupleValue(v any) bool { _, ok := v.(TupleValue); return ok }
func constructTuple(tr tracker.Tracker, v any) Variable {
	return NewTuple(tr, []Variable(v.(TupleValue)))
}

func isDictValue(v any) bool { _, ok := v.(DictValue); return ok }
func constructDict(tr tracker.Tracker, v any) Variable {
	d := v.(DictValue)
	return NewDict(tr, d.Keys, d.Values)
}

func isScalarValue(v any) bool {
	switch v.(type) {
	case int, int64, float64, string, bool, nil:
		return true
	default:
		return false
	}
}
