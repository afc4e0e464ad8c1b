package variable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/sotjit/meta"
	"github.com/wudi/sotjit/tracker"
)

func TestVariableFactory_ScalarWrapsAsConstant(t *testing.T) {
	f := NewVariableFactory()
	v := f.From(&tracker.Local{Name: "x"}, int64(7))
	c, ok := v.(*Constant)
	require.True(t, ok)
	assert.Equal(t, int64(7), c.Value)
}

func TestVariableFactory_TensorPredicateWinsOverScalar(t *testing.T) {
	f := NewVariableFactory()
	m := meta.Info{Shape: []int64{4, 4}, DType: "float32"}
	v := f.From(&tracker.Local{Name: "x"}, m)
	tensor, ok := v.(*Tensor)
	require.True(t, ok)
	assert.Equal(t, m, tensor.Meta)
}

func TestVariableFactory_ListValue(t *testing.T) {
	f := NewVariableFactory()
	items := ListValue{NewConstant(&tracker.Const{Literal: int64(1)}, int64(1))}
	v := f.From(&tracker.Local{Name: "xs"}, items)
	list, ok := v.(*List)
	require.True(t, ok)
	assert.Len(t, list.Items, 1)
}

func TestVariableFactory_DictValue(t *testing.T) {
	f := NewVariableFactory()
	dv := DictValue{Keys: []any{"a"}, Values: []Variable{NewConstant(&tracker.Const{Literal: int64(1)}, int64(1))}}
	v := f.From(&tracker.Local{Name: "d"}, dv)
	dict, ok := v.(*Dict)
	require.True(t, ok)
	assert.Equal(t, []any{"a"}, dict.Keys)
}

func TestVariableFactory_UnrecognizedFallsBackToObject(t *testing.T) {
	f := NewVariableFactory()
	type hostStruct struct{ N int }
	v := f.From(&tracker.Local{Name: "o"}, hostStruct{N: 1})
	obj, ok := v.(*Object)
	require.True(t, ok)
	assert.Equal(t, hostStruct{N: 1}, obj.HostValue)
}

func TestVariableFactory_RegisterExtendsDispatchOrder(t *testing.T) {
	f := NewVariableFactory()
	type marker struct{}
	f.Register(func(v any) bool {
		_, ok := v.(marker)
		return ok
	}, func(tr tracker.Tracker, v any) Variable {
		return NewConstant(tr, "matched")
	})
	v := f.From(&tracker.Local{Name: "m"}, marker{})
	c, ok := v.(*Constant)
	require.True(t, ok)
	assert.Equal(t, "matched", c.Value)
}

func TestDefaultFactory_IsPreRegistered(t *testing.T) {
	v := Default.From(&tracker.Local{Name: "x"}, int64(1))
	_, ok := v.(*Constant)
	assert.True(t, ok)
}
