// Package cache implements InstructionTranslatorCache (spec §4.5): the
// per-code-object cache of rewritten code/guard pairs that lets the host
// frame hook skip re-translation when a prior guard still holds.
package cache

import (
	"github.com/google/uuid"

	"github.com/wudi/sotjit/bytecode"
	"github.com/wudi/sotjit/codegen"
	trerrors "github.com/wudi/sotjit/errors"
	"github.com/wudi/sotjit/executor"
	"github.com/wudi/sotjit/frame"
	"github.com/wudi/sotjit/graph"
	"github.com/wudi/sotjit/guard"
	"github.com/wudi/sotjit/internal/tracelog"
	"github.com/wudi/sotjit/meta"
	"github.com/wudi/sotjit/tracker"
)

// CustomCode is what the frame hook returns to the host: rewritten bytecode
// to run instead of the original, or nil meaning "fall back to default
// evaluation" (spec §4.5, §6 "Frame hook").
type CustomCode struct {
	Code             *bytecode.CodeObject
	DisableEvalFrame bool
}

// getter is Lookup or Skip (spec §4.5): the per-code-object strategy for
// answering a frame hook call once at least one translation attempt has
// happened.
type getterKind int

const (
	getterLookup getterKind = iota
	getterSkip
)

// entry is one (rewritten_code, guard) pair, tried in insertion order.
type entry struct {
	attemptID uuid.UUID
	code      *bytecode.CodeObject
	guardFn   func() bool
	guardText string
}

// cacheLine is the pair (getter, entries[]) held per host code object.
type cacheLine struct {
	getter  getterKind
	entries []entry
}

// TranslateFunc builds a fresh CodeGen and FunctionGraph and runs
// start_translate over frame, matching spec §4.5's "create an
// OpcodeExecutor(frame), call transform()" contract. Cache is deliberately
// agnostic to how CodeGen/MetaInfer are constructed, so callers can swap in
// a fake for tests.
type TranslateFunc func(f *frame.Frame, resolve guard.FrameResolver) (*executor.Executor, error)

// InstructionTranslatorCache is the process-wide, singleton cache described
// by spec §5: one instance serves every frame hook call for the process'
// lifetime.
type InstructionTranslatorCache struct {
	strict    bool
	translate TranslateFunc
	lines     map[*bytecode.CodeObject]*cacheLine
	metrics   *Metrics
	store     *Store
}

// New builds an empty cache. translate is the start_translate hook; strict
// toggles whether NotImplemented/BreakGraphError re-raise (true) or fall
// back to a replace-dummy-variable rewrite with an always-true guard
// (false), per spec §4.5.
func New(strict bool, translate TranslateFunc) *InstructionTranslatorCache {
	return &InstructionTranslatorCache{
		strict:    strict,
		translate: translate,
		lines:     map[*bytecode.CodeObject]*cacheLine{},
		metrics:   NewMetrics(),
	}
}

// Attach wires an optional SQLite-backed persistence store (SPEC_FULL §3);
// without this call the cache is purely in-memory.
func (c *InstructionTranslatorCache) Attach(s *Store) { c.store = s }

// Metrics exposes the call/hit/miss counters accumulated so far.
func (c *InstructionTranslatorCache) Metrics() *Metrics { return c.metrics }

// Lookup is the frame hook (spec §6 "the host invokes cache(frame) ->
// CustomCode | null"). It returns nil when the caller should fall back to
// default evaluation.
func (c *InstructionTranslatorCache) Lookup(f *frame.Frame, resolve guard.FrameResolver) (*CustomCode, error) {
	c.metrics.RecordCall()
	line, ok := c.lines[f.Code]
	if !ok {
		c.metrics.RecordCodeHit(f.Code.Name, false)
		return c.firstTranslation(f, resolve)
	}

	switch line.getter {
	case getterSkip:
		c.metrics.RecordSkip()
		c.metrics.RecordCodeHit(f.Code.Name, false)
		return nil, nil
	case getterLookup:
		if cc, matched := c.tryEntries(line, f); cc != nil {
			c.metrics.RecordHit()
			c.metrics.RecordCodeHit(f.Code.Name, true)
			c.recordHit(f.Code.Name, matched.guardText)
			return cc, nil
		}
	}

	c.metrics.RecordMiss()
	c.metrics.RecordCodeHit(f.Code.Name, false)
	return c.retranslate(line, f, resolve)
}

// firstTranslation handles a code object never seen before: translate once,
// and seed the cache line with either Skip (hard fail) or Lookup plus the
// first entry.
func (c *InstructionTranslatorCache) firstTranslation(f *frame.Frame, resolve guard.FrameResolver) (*CustomCode, error) {
	line := &cacheLine{}
	c.lines[f.Code] = line

	ex, err := c.startTranslate(f, resolve)
	if err != nil {
		return nil, err
	}
	if ex == nil {
		line.getter = getterSkip
		c.metrics.RecordMiss()
		return nil, nil
	}

	e := entry{attemptID: uuid.New(), code: ex.NewCode, guardFn: ex.GuardFn, guardText: ex.Graph.Guard().String()}
	line.getter = getterLookup
	line.entries = append(line.entries, e)
	c.metrics.RecordMiss()
	c.persist(f.Code, e)
	tracelog.Debugf("cache: first translation of %q -> attempt %s, guard %q", f.Code.Name, e.attemptID, e.guardText)
	return &CustomCode{Code: e.code, DisableEvalFrame: false}, nil
}

// retranslate appends a new entry after every existing guard in line missed
// (spec §4.5: "If none match, translate again and append the new entry").
func (c *InstructionTranslatorCache) retranslate(line *cacheLine, f *frame.Frame, resolve guard.FrameResolver) (*CustomCode, error) {
	ex, err := c.startTranslate(f, resolve)
	if err != nil {
		return nil, err
	}
	if ex == nil {
		line.getter = getterSkip
		return nil, nil
	}
	e := entry{attemptID: uuid.New(), code: ex.NewCode, guardFn: ex.GuardFn, guardText: ex.Graph.Guard().String()}
	line.entries = append(line.entries, e)
	c.persist(f.Code, e)
	tracelog.Debugf("cache: appended translation of %q -> attempt %s, guard %q", f.Code.Name, e.attemptID, e.guardText)
	return &CustomCode{Code: e.code, DisableEvalFrame: false}, nil
}

// tryEntries walks entries in insertion order, returning the first whose
// guard holds. A guard panic is treated the same as a guard that failed to
// evaluate: logged and skipped rather than propagated (spec §4.5: "On any
// exception inside a guard, log and continue").
func (c *InstructionTranslatorCache) tryEntries(line *cacheLine, f *frame.Frame) (*CustomCode, *entry) {
	for i, e := range line.entries {
		if guardHolds(e, f) {
			return &CustomCode{Code: e.code, DisableEvalFrame: false}, &line.entries[i]
		}
	}
	return nil, nil
}

// recordHit persists a cache hit to the optional store (SPEC_FULL §3); a
// nil store is the common case and is a no-op.
func (c *InstructionTranslatorCache) recordHit(codeName, guardText string) {
	if c.store == nil {
		return
	}
	if err := c.store.RecordHit(codeName, guardText); err != nil {
		tracelog.Warnf("cache: store RecordHit failed for %q: %v", codeName, err)
	}
}

func guardHolds(e entry, f *frame.Frame) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			tracelog.Warnf("cache: guard for %q attempt %s panicked: %v", f.Code.Name, e.attemptID, r)
			ok = false
		}
	}()
	if e.guardFn == nil {
		return false
	}
	return e.guardFn()
}

// startTranslate implements spec §4.5's translate step: build a fresh
// FunctionGraph/CodeGen pair, run OpcodeExecutor.Transform, and convert
// NotImplemented/BreakGraphError into the replace-dummy-variable fallback
// unless strict mode is set. A nil, nil result means "hard fail, Skip".
func (c *InstructionTranslatorCache) startTranslate(f *frame.Frame, resolve guard.FrameResolver) (*executor.Executor, error) {
	ex, err := c.translate(f, resolve)
	if err == nil {
		return ex, nil
	}

	if trerrors.IsNotImplemented(err) || trerrors.IsBreakGraph(err) {
		if c.strict {
			return nil, trerrors.WrapInner(err, []string{f.Code.Name})
		}
		tracelog.Warnf("cache: translation of %q fell back to replace-dummy-variable: %v", f.Code.Name, err)
		return c.replaceDummyFallback(ex, err)
	}
	return nil, trerrors.WrapInner(err, []string{f.Code.Name})
}

// replaceDummyFallback asks CodeGen for a replace-dummy-variable rewrite
// paired with its own always-true guard (spec §4.5).
func (c *InstructionTranslatorCache) replaceDummyFallback(ex *executor.Executor, cause error) (*executor.Executor, error) {
	if ex == nil || ex.CG == nil {
		return nil, nil
	}
	code, alwaysTrue := ex.CG.ReplaceDummyVariable()
	if code == nil {
		tracelog.Debugf("cache: replace-dummy-variable produced no fallback after %v", cause)
		return nil, nil
	}
	ex.NewCode = code
	ex.GuardFn = alwaysTrue
	return ex, nil
}

func (c *InstructionTranslatorCache) persist(code *bytecode.CodeObject, e entry) {
	if c.store == nil {
		return
	}
	if err := c.store.RecordEntry(code.Name, e.guardText); err != nil {
		tracelog.Warnf("cache: store persist failed for %q: %v", code.Name, err)
	}
}

// NewTranslateFunc builds a TranslateFunc from the MetaInfer oracle and a
// CodeGen factory (spec §4.5's "create an OpcodeExecutor(frame), call
// transform()"). The graph's guards bind each Local/Global/Builtin tracker
// to its frame name and live value through bindTracker (spec §4.1).
func NewTranslateFunc(inferOracle meta.StaticGraphOracle, newCodeGen func() codegen.CodeGen, strict bool) TranslateFunc {
	return func(f *frame.Frame, resolve guard.FrameResolver) (*executor.Executor, error) {
		cg := newCodeGen()
		infer := meta.NewInferer(inferOracle)
		g := graph.New(infer, cg, func(tr tracker.Tracker) (string, any) { return bindTracker(tr, resolve) })
		ex := executor.New(f, g, cg, strict, resolve)
		err := ex.Transform()
		return ex, err
	}
}

// bindTracker resolves the frame-visible name for a leaf tracker so a
// Guard equality check can compare it against the live frame (spec §4.1).
// Non-leaf/unresolvable trackers contribute no binding.
func bindTracker(tr tracker.Tracker, resolve guard.FrameResolver) (string, any) {
	var name string
	switch t := tr.(type) {
	case *tracker.Local:
		name = t.Name
	case *tracker.Global:
		name = t.Name
	case *tracker.Builtin:
		name = t.Name
	default:
		return "", nil
	}
	v, _ := resolve(name)
	return name, v
}
