package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/sotjit/bytecode"
	"github.com/wudi/sotjit/codegen"
	trerrors "github.com/wudi/sotjit/errors"
	"github.com/wudi/sotjit/executor"
	"github.com/wudi/sotjit/frame"
	"github.com/wudi/sotjit/graph"
	"github.com/wudi/sotjit/guard"
	"github.com/wudi/sotjit/meta"
	"github.com/wudi/sotjit/tracker"
)

type nopOracle struct{}

func (nopOracle) InferMeta(op string, args meta.Node) (meta.Node, error) {
	return meta.Leaf(meta.Info{}), nil
}

func noResolve(string) (any, bool) { return nil, false }

// stubExecutor builds a real Executor (so Graph is non-nil, as Lookup always
// reads ex.Graph.Guard()) but never runs Transform — tests set NewCode and
// GuardFn directly to drive the cache's hit/miss/skip branches precisely.
func stubExecutor(code *bytecode.CodeObject, newCode *bytecode.CodeObject, guardFn func() bool) *executor.Executor {
	f := frame.New(code, nil, nil, nil, nil)
	cg := codegen.NewEmitter("stub")
	g := graph.New(meta.NewInferer(nopOracle{}), cg, func(tracker.Tracker) (string, any) { return "", nil })
	ex := executor.New(f, g, cg, true, guard.FrameResolver(noResolve))
	ex.NewCode = newCode
	ex.GuardFn = guardFn
	return ex
}

func TestCache_FirstTranslationThenHit(t *testing.T) {
	code := &bytecode.CodeObject{Name: "fn"}
	calls := 0
	translate := func(f *frame.Frame, resolve guard.FrameResolver) (*executor.Executor, error) {
		calls++
		return stubExecutor(f.Code, &bytecode.CodeObject{Name: "fn.rewritten"}, func() bool { return true }), nil
	}
	c := New(true, translate)

	f := frame.New(code, nil, nil, nil, nil)
	cc, err := c.Lookup(f, noResolve)
	require.NoError(t, err)
	require.NotNil(t, cc)
	assert.Equal(t, "fn.rewritten", cc.Code.Name)
	assert.Equal(t, 1, calls)

	cc2, err := c.Lookup(f, noResolve)
	require.NoError(t, err)
	require.NotNil(t, cc2)
	assert.Equal(t, "fn.rewritten", cc2.Code.Name, "a passing guard must reuse the cached entry, not retranslate")
	assert.Equal(t, 1, calls, "second lookup must hit the cache, not call translate again")

	snap := c.Metrics().Snapshot()
	assert.Equal(t, "2", snap.Calls)
	assert.Equal(t, "1", snap.Hits)
	assert.Equal(t, "1", snap.Misses)
}

func TestCache_FailingGuardTriggersRetranslate(t *testing.T) {
	code := &bytecode.CodeObject{Name: "fn"}
	calls := 0
	translate := func(f *frame.Frame, resolve guard.FrameResolver) (*executor.Executor, error) {
		calls++
		return stubExecutor(f.Code, &bytecode.CodeObject{Name: "fn.rewritten"}, func() bool { return false }), nil
	}
	c := New(true, translate)
	f := frame.New(code, nil, nil, nil, nil)

	_, err := c.Lookup(f, noResolve)
	require.NoError(t, err)
	_, err = c.Lookup(f, noResolve)
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "an always-failing guard must force a retranslation on every lookup")
	snap := c.Metrics().Snapshot()
	assert.Equal(t, "0", snap.Hits)
	assert.Equal(t, "2", snap.Misses)
}

func TestCache_PanickingGuardIsTreatedAsAFailedGuard(t *testing.T) {
	code := &bytecode.CodeObject{Name: "fn"}
	first := true
	translate := func(f *frame.Frame, resolve guard.FrameResolver) (*executor.Executor, error) {
		if first {
			first = false
			return stubExecutor(f.Code, &bytecode.CodeObject{Name: "fn.v1"}, func() bool { panic("boom") }), nil
		}
		return stubExecutor(f.Code, &bytecode.CodeObject{Name: "fn.v2"}, func() bool { return true }), nil
	}
	c := New(true, translate)
	f := frame.New(code, nil, nil, nil, nil)

	_, err := c.Lookup(f, noResolve)
	require.NoError(t, err)

	cc, err := c.Lookup(f, noResolve)
	require.NoError(t, err, "a panicking guard must never escape Lookup")
	require.NotNil(t, cc)
	assert.Equal(t, "fn.v2", cc.Code.Name, "the panicking entry must be skipped and a fresh attempt appended")
}

func TestCache_StrictModePropagatesNotImplemented(t *testing.T) {
	code := &bytecode.CodeObject{Name: "fn"}
	translate := func(f *frame.Frame, resolve guard.FrameResolver) (*executor.Executor, error) {
		return nil, trerrors.NewNotImplemented("SOME_OP", "no handler")
	}
	c := New(true, translate)
	f := frame.New(code, nil, nil, nil, nil)

	_, err := c.Lookup(f, noResolve)
	require.Error(t, err)
	assert.True(t, trerrors.IsInner(err), "strict mode wraps the unrecoverable translation failure as an InnerError")
}

func TestCache_NonStrictModeFallsBackToReplaceDummyVariable(t *testing.T) {
	code := &bytecode.CodeObject{Name: "fn"}
	translate := func(f *frame.Frame, resolve guard.FrameResolver) (*executor.Executor, error) {
		ex := stubExecutor(f.Code, nil, nil)
		return ex, trerrors.NewNotImplemented("SOME_OP", "no handler")
	}
	c := New(false, translate)
	f := frame.New(code, nil, nil, nil, nil)

	cc, err := c.Lookup(f, noResolve)
	require.NoError(t, err)
	require.NotNil(t, cc)
	assert.Equal(t, "stub.fallback", cc.Code.Name)

	cc2, err := c.Lookup(f, noResolve)
	require.NoError(t, err)
	require.NotNil(t, cc2, "the fallback's always-true guard must keep matching on subsequent lookups")
}

func TestCache_SkipGetterShortCircuitsWithoutRetranslating(t *testing.T) {
	code := &bytecode.CodeObject{Name: "fn"}
	calls := 0
	translate := func(f *frame.Frame, resolve guard.FrameResolver) (*executor.Executor, error) {
		calls++
		return nil, nil
	}
	c := New(true, translate)
	f := frame.New(code, nil, nil, nil, nil)

	cc, err := c.Lookup(f, noResolve)
	require.NoError(t, err)
	assert.Nil(t, cc, "a translate call that returns no executor means fall back to default evaluation")

	cc2, err := c.Lookup(f, noResolve)
	require.NoError(t, err)
	assert.Nil(t, cc2)
	assert.Equal(t, 1, calls, "once a code object is marked Skip, translate must never be called again for it")

	snap := c.Metrics().Snapshot()
	assert.Equal(t, "1", snap.Skips)
}
