package meta

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfo_EqualIgnoresName(t *testing.T) {
	a := Info{Shape: []int64{2, 2}, DType: "float32", Name: "a"}
	b := Info{Shape: []int64{2, 2}, DType: "float32", Name: "b"}
	assert.True(t, a.Equal(b))

	c := Info{Shape: []int64{2, 3}, DType: "float32"}
	assert.False(t, a.Equal(c))
}

type countingOracle struct {
	calls int
	out   Node
	err   error
}

func (o *countingOracle) InferMeta(op string, args Node) (Node, error) {
	o.calls++
	return o.out, o.err
}

func TestInferer_MemoizesByOpAndArgs(t *testing.T) {
	oracle := &countingOracle{out: Leaf(Info{Shape: []int64{4}, DType: "float32"})}
	inf := NewInferer(oracle)

	in := Leaf(Info{Shape: []int64{4}, DType: "float32"})
	out1, err := inf.Infer("add", in)
	require.NoError(t, err)
	out2, err := inf.Infer("add", in)
	require.NoError(t, err)

	assert.Equal(t, 1, oracle.calls, "the second identical call must hit the memo, not the oracle")
	assert.True(t, out1.Leaf.Equal(*out2.Leaf))
}

func TestInferer_DistinctArgsMissTheCache(t *testing.T) {
	oracle := &countingOracle{out: Leaf(Info{Shape: []int64{4}})}
	inf := NewInferer(oracle)

	_, err := inf.Infer("add", Leaf(Info{Shape: []int64{4}}))
	require.NoError(t, err)
	_, err = inf.Infer("add", Leaf(Info{Shape: []int64{8}}))
	require.NoError(t, err)

	assert.Equal(t, 2, oracle.calls)
}

func TestInferer_GradSpecialCaseBoxesLeaf(t *testing.T) {
	oracle := &countingOracle{}
	inf := NewInferer(oracle)

	leaf := Leaf(Info{Shape: []int64{1}})
	out, err := inf.Infer("grad", leaf)
	require.NoError(t, err)
	assert.Equal(t, 0, oracle.calls, "grad is special-cased and must never reach the oracle")
	require.Len(t, out.Sequence, 1)
	assert.True(t, out.Sequence[0].Leaf.Equal(*leaf.Leaf))
}

func TestInferer_GradSpecialCasePassesSequenceThrough(t *testing.T) {
	inf := NewInferer(&countingOracle{})
	seq := Seq(Leaf(Info{Shape: []int64{1}}), Leaf(Info{Shape: []int64{2}}))
	out, err := inf.Infer("grad", seq)
	require.NoError(t, err)
	assert.Len(t, out.Sequence, 2)
}

func TestInferer_PropagatesOracleError(t *testing.T) {
	wantErr := errors.New("boom")
	inf := NewInferer(&countingOracle{err: wantErr})
	_, err := inf.Infer("add", Leaf(Info{Shape: []int64{1}}))
	assert.ErrorIs(t, err, wantErr)
}

type countingFactory struct {
	calls int
}

func (f *countingFactory) NewStaticVariable(info Info) (any, error) {
	f.calls++
	return "placeholder:" + info.String(), nil
}

func TestVariableCreator_MemoizesByKey(t *testing.T) {
	factory := &countingFactory{}
	vc := NewVariableCreator(factory)

	info := Info{Shape: []int64{2, 2}, DType: "float32"}
	first, err := vc.Get(info)
	require.NoError(t, err)
	second, err := vc.Get(info)
	require.NoError(t, err)

	assert.Equal(t, 1, factory.calls)
	assert.Equal(t, first, second)
}

func TestVariableCreator_ClearDropsMemo(t *testing.T) {
	factory := &countingFactory{}
	vc := NewVariableCreator(factory)
	info := Info{Shape: []int64{1}}

	_, err := vc.Get(info)
	require.NoError(t, err)
	vc.Clear()
	_, err = vc.Get(info)
	require.NoError(t, err)

	assert.Equal(t, 2, factory.calls, "Clear must force the next Get to re-consult the factory")
}
