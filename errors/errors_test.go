package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewInner_IsDetectedAndUnwraps(t *testing.T) {
	err := NewInner(ErrStackUnderflow, "pop on empty stack")
	assert.True(t, IsInner(err))
	assert.False(t, IsNotImplemented(err))
	assert.False(t, IsBreakGraph(err))
	assert.True(t, errors.Is(err, ErrStackUnderflow))
	assert.Contains(t, err.Error(), "pop on empty stack")
}

func TestNewNotImplemented_CarriesOpcodeAndSite(t *testing.T) {
	err := NewNotImplemented("CALL_FUNCTION", "callee %T is not callable", 7)
	assert.True(t, IsNotImplemented(err))
	assert.True(t, errors.Is(err, ErrOpcodeNotSupported))
	assert.Contains(t, err.Error(), "CALL_FUNCTION")
}

func TestNewBreakGraph_IsDistinctFromInnerAndNotImplemented(t *testing.T) {
	err := NewBreakGraph("conditional jump on a tensor predicate")
	assert.True(t, IsBreakGraph(err))
	assert.False(t, IsInner(err))
	assert.False(t, IsNotImplemented(err))
}

func TestWithStackAndWithSite_AnnotateInPlace(t *testing.T) {
	err := NewNotImplemented("BINARY_ADD", "unsupported").
		WithSite("BINARY_ADD", 12).
		WithStack([]string{"outer", "inner"})
	assert.Equal(t, 12, err.Lasti)
	assert.Equal(t, []string{"outer", "inner"}, err.Stack)
	assert.Contains(t, err.Error(), "ip=12")
}

func TestWrapInner_PreservesExistingInnerErrorStack(t *testing.T) {
	inner := NewInner(ErrUnreachableState, "ran off the end").WithStack([]string{"already set"})
	wrapped := WrapInner(inner, []string{"should not overwrite"})
	assert.Same(t, inner, wrapped)
	assert.Equal(t, []string{"already set"}, wrapped.Stack)
}

func TestWrapInner_WrapsArbitraryErrorAsInner(t *testing.T) {
	plain := errors.New("boom")
	wrapped := WrapInner(plain, []string{"frame_a", "frame_b"})
	assert.True(t, IsInner(wrapped))
	assert.Equal(t, []string{"frame_a", "frame_b"}, wrapped.Stack)
	assert.Same(t, plain, wrapped.Base)
}

func TestWrapInner_NilIsNoop(t *testing.T) {
	assert.Nil(t, WrapInner(nil, nil))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "InnerError", KindInner.String())
	assert.Equal(t, "NotImplemented", KindNotImplemented.String())
	assert.Equal(t, "BreakGraphError", KindBreakGraph.String())
	assert.Equal(t, "UnknownError", Kind(99).String())
}
