package variable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/sotjit/codegen"
	"github.com/wudi/sotjit/guard"
	"github.com/wudi/sotjit/meta"
	"github.com/wudi/sotjit/tracker"
)

func TestGetValue(t *testing.T) {
	c := NewConstant(&tracker.Const{Literal: int64(7)}, int64(7))
	v, err := GetValue(c)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	items := []Variable{
		NewConstant(&tracker.Const{Literal: int64(1)}, int64(1)),
		NewConstant(&tracker.Const{Literal: int64(2)}, int64(2)),
	}
	list := NewList(&tracker.Local{Name: "xs"}, items)
	lv, err := GetValue(list)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, lv)

	tensor := NewTensor(&tracker.Local{Name: "x"}, meta.Info{Shape: []int64{1}})
	_, err = GetValue(tensor)
	assert.Error(t, err, "a tensor's value is never materializable during symbolic execution")
}

func TestDict_GetAndSet(t *testing.T) {
	d := NewDict(&tracker.Local{Name: "d"}, nil, nil)
	d.Set("a", NewConstant(&tracker.Const{Literal: int64(1)}, int64(1)))
	d.Set("b", NewConstant(&tracker.Const{Literal: int64(2)}, int64(2)))

	v, ok := d.Get("a")
	require.True(t, ok)
	val, err := GetValue(v)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)

	// overwriting an existing key must not grow the key/value slices
	d.Set("a", NewConstant(&tracker.Const{Literal: int64(9)}, int64(9)))
	assert.Len(t, d.Keys, 2)
	v2, _ := d.Get("a")
	val2, _ := GetValue(v2)
	assert.Equal(t, int64(9), val2)

	_, ok = d.Get("missing")
	assert.False(t, ok)
}

func TestReconstruct_TraceableTrackerEmitsDirectly(t *testing.T) {
	c := NewConstant(&tracker.Local{Name: "x"}, int64(1))
	cg := codegen.NewEmitter("seg")
	require.NoError(t, Reconstruct(c, cg))
	code := cg.GenPycode()
	require.Len(t, code.Instructions, 1)
}

func TestReconstruct_ContainerFallsThroughToElements(t *testing.T) {
	items := []Variable{
		NewConstant(&tracker.Const{Literal: int64(1)}, int64(1)),
		NewConstant(&tracker.Const{Literal: int64(2)}, int64(2)),
	}
	list := NewList(&tracker.Dummy{}, items)
	cg := codegen.NewEmitter("seg")
	require.NoError(t, Reconstruct(list, cg))
	code := cg.GenPycode()
	// two LOAD_CONST plus one BUILD_LIST
	require.Len(t, code.Instructions, 3)
}

func TestReconstruct_NonTraceableNonContainerFails(t *testing.T) {
	dummy := NewDummy(&tracker.Dummy{})
	cg := codegen.NewEmitter("seg")
	assert.Error(t, Reconstruct(dummy, cg))
}

func TestFlattenItems_RecursesIntoContainers(t *testing.T) {
	inner := NewList(&tracker.Dummy{}, []Variable{
		NewConstant(&tracker.Const{Literal: int64(1)}, int64(1)),
	})
	outer := NewTuple(&tracker.Dummy{}, []Variable{
		inner,
		NewConstant(&tracker.Const{Literal: int64(2)}, int64(2)),
	})
	flat := FlattenItems(outer)
	assert.Len(t, flat, 2)
}

func TestFlattenTraceableInputs_StopsAtTraceableRoot(t *testing.T) {
	local := NewConstant(&tracker.Local{Name: "x"}, int64(1))
	assert.Equal(t, []Variable{local}, FlattenTraceableInputs(local))
}

func TestFlattenTraceableInputs_RecursesThroughDummy(t *testing.T) {
	a := NewConstant(&tracker.Local{Name: "a"}, int64(1))
	b := NewConstant(&tracker.Local{Name: "b"}, int64(2))
	sum := NewTensor(&tracker.Dummy{From: []tracker.Traced{a, b}}, meta.Info{Shape: []int64{1}})

	got := FlattenTraceableInputs(sum)
	assert.ElementsMatch(t, []Variable{a, b}, got)
}

func TestAddGuardFor_LiteralVariable(t *testing.T) {
	local := NewConstant(&tracker.Local{Name: "x"}, int64(7))
	bind := func(tr tracker.Tracker) (string, any) {
		if l, ok := tr.(*tracker.Local); ok {
			return l.Name, int64(7)
		}
		return "", nil
	}
	g := guard.New()
	require.NoError(t, AddGuardFor(g, local, bind))
	assert.Equal(t, 1, g.Len())
	assert.True(t, g.Fn(func(string) (any, bool) { return int64(7), true })())
}

func TestAddGuardFor_TensorUsesMetaInfo(t *testing.T) {
	tr := &tracker.Local{Name: "x"}
	m := meta.Info{Shape: []int64{4, 4}, DType: "float32"}
	tensor := NewTensor(tr, m)
	bind := func(tracker.Tracker) (string, any) { return "x", m }

	g := guard.New()
	require.NoError(t, AddGuardFor(g, tensor, bind))
	assert.True(t, g.Fn(func(string) (any, bool) { return m, true })())
}

func TestAddGuardFor_NonTraceableFails(t *testing.T) {
	dummy := NewDummy(&tracker.Dummy{})
	g := guard.New()
	err := AddGuardFor(g, dummy, func(tracker.Tracker) (string, any) { return "", nil })
	assert.Error(t, err)
}

func TestDebugName_DefaultsWhenUnset(t *testing.T) {
	c := NewConstant(&tracker.Const{Literal: int64(1)}, int64(1))
	assert.Equal(t, "tmp_var", c.DebugName())
	c.SetDebugName("x")
	assert.Equal(t, "x", c.DebugName())
}
