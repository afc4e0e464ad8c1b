package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/sotjit/bytecode"
)

func TestEmitter_InternsRepeatedConstsAndVars(t *testing.T) {
	e := NewEmitter("seg")
	e.GenLoadConst(int64(7))
	e.GenLoadConst(int64(7))
	e.GenLoadFast("x")
	e.GenLoadFast("x")

	code := e.GenPycode()
	require.Len(t, code.Consts, 1, "the same literal should intern to one slot")
	require.Len(t, code.Varnames, 1, "the same local name should intern to one slot")
	assert.Equal(t, bytecode.OP_LOAD_CONST, code.Instructions[0].Opcode)
	assert.Equal(t, 0, code.Instructions[0].Arg)
	assert.Equal(t, 0, code.Instructions[1].Arg)
}

func TestEmitter_GenLoadObject(t *testing.T) {
	e := NewEmitter("seg")
	e.GenLoadObject(nil, "print")
	code := e.GenPycode()
	require.Len(t, code.Instructions, 1)
	assert.Equal(t, bytecode.OP_LOAD_GLOBAL, code.Instructions[0].Opcode)
	assert.Equal(t, []string{"print"}, code.Names)
}

func TestEmitter_GenLoadObjectWithReceiver(t *testing.T) {
	e := NewEmitter("seg")
	e.GenLoadObject("some-host-object", "attr")
	code := e.GenPycode()
	require.Len(t, code.Instructions, 2)
	assert.Equal(t, bytecode.OP_LOAD_CONST, code.Instructions[0].Opcode)
	assert.Equal(t, bytecode.OP_LOAD_ATTR, code.Instructions[1].Opcode)
}

func TestEmitter_PopInstr(t *testing.T) {
	e := NewEmitter("seg")
	e.GenPopTop()
	e.GenReturn()

	last, ok := e.PopInstr()
	require.True(t, ok)
	assert.Equal(t, bytecode.OP_RETURN_VALUE, last.Opcode)

	_, ok = e.PopInstr()
	require.True(t, ok)
	_, ok = e.PopInstr()
	assert.False(t, ok, "popping an empty instruction buffer must report false")
}

func TestEmitter_GenLoopBodyBetween(t *testing.T) {
	e := NewEmitter("seg")
	e.GenLoadFast("i")
	e.GenLoadFast("y")
	e.GenReturn()

	fn, inputs := e.GenLoopBodyBetween(0, 1, 2)
	assert.Equal(t, []string{"__break_flag"}, inputs)
	require.Len(t, fn.Code.Instructions, 1, "body slice should only cover [bodyStart, loopEnd)")
	assert.Equal(t, bytecode.OP_LOAD_FAST, fn.Code.Instructions[0].Opcode)
}

func TestEmitter_ReplaceDummyVariableAlwaysTrue(t *testing.T) {
	e := NewEmitter("seg")
	code, guard := e.ReplaceDummyVariable()
	require.NotNil(t, code)
	assert.True(t, guard())
	assert.Empty(t, code.Instructions)
}
