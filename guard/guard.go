// Package guard implements the stringified boolean predicate over a live
// frame (spec §3, §4.3) that certifies a cached translation's reusability.
package guard

import (
	"fmt"
	"strings"
)

// Expression is one StringifyExpression: textual predicate text plus the
// free variables it closes over, with the values they were bound to.
type Expression struct {
	Text     string
	Bindings map[string]any
}

// Equality is one guard check: a free variable's frame-resolved value must
// equal the literal captured at translation time. Guard text is built entirely
// from tracker.Stringify + literal() comparisons (spec §4.2's
// make_stringify_guard: "tracker.stringify() == literal(get_value())"), so
// evaluating it only ever needs an equality check between the bound
// frame-resolved value and the captured literal — never real expression
// evaluation. resolve maps a free-variable name to its current,
// frame-resolved value.
type Equality struct {
	Name    string // the free variable bound to the frame-resolved value
	Literal any    // the value captured at translation time
}

// Guard is the conjunction of all accumulated equality checks (spec §4.3
// guard_fn: "fold all accumulated guards into a single predicate").
type Guard struct {
	checks []Equality
}

// New builds an empty (always-true) guard.
func New() *Guard { return &Guard{} }

// Add appends one equality check. Guards compose by conjunction (spec §3).
func (g *Guard) Add(name string, literal any) {
	g.checks = append(g.checks, Equality{Name: name, Literal: literal})
}

// Merge folds another guard's checks into this one.
func (g *Guard) Merge(other *Guard) {
	if other == nil {
		return
	}
	g.checks = append(g.checks, other.checks...)
}

// Len reports how many equality checks this guard holds, used by tests to
// assert guard growth (spec §8 property 3: "the guard chain is extended,
// never discarded").
func (g *Guard) Len() int { return len(g.checks) }

// String renders the guard's source-level expression for diagnostics, in
// the teacher's style of producing a readable stringified predicate rather
// than a closure.
func (g *Guard) String() string {
	if len(g.checks) == 0 {
		return "True"
	}
	parts := make([]string, 0, len(g.checks))
	for _, c := range g.checks {
		parts = append(parts, fmt.Sprintf("(%s == %#v)", c.Name, c.Literal))
	}
	return strings.Join(parts, " && ")
}

// FrameResolver resolves a free-variable name (produced by a tracker's
// Stringify) to its current value on the live frame being checked.
type FrameResolver func(name string) (any, bool)

// Fn compiles the guard into a predicate callable against a live frame,
// mirroring the Python "dummy_guard: Guard = lambda frame: True" style of
// exposing guards as plain callables. Guard evaluation exceptions are
// logged by the caller and treated as a failed guard (spec §7); Fn itself
// never panics, it returns false on a missing binding.
func (g *Guard) Fn(resolve FrameResolver) func() bool {
	checks := g.checks
	return func() bool {
		for _, c := range checks {
			v, ok := resolve(c.Name)
			if !ok {
				return false
			}
			if !literalEqual(v, c.Literal) {
				return false
			}
		}
		return true
	}
}

func literalEqual(a, b any) bool {
	return fmt.Sprintf("%#v", a) == fmt.Sprintf("%#v", b)
}
