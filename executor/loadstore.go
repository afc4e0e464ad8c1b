package executor

import (
	"github.com/wudi/sotjit/bytecode"
	trerrors "github.com/wudi/sotjit/errors"
	"github.com/wudi/sotjit/tracker"
	"github.com/wudi/sotjit/variable"
)

func (e *Executor) registerHandlers() {
	e.handlers = map[bytecode.Opcode]handlerFunc{
		bytecode.OP_NOP:          handleNop,
		bytecode.OP_LOAD_FAST:    handleLoadFast,
		bytecode.OP_LOAD_GLOBAL:  handleLoadGlobal,
		bytecode.OP_LOAD_NAME:    handleLoadGlobal,
		bytecode.OP_LOAD_CONST:   handleLoadConst,
		bytecode.OP_LOAD_BUILTIN: handleLoadBuiltin,
		bytecode.OP_STORE_FAST:   handleStoreFast,
		bytecode.OP_STORE_NAME:   handleStoreFast,
		bytecode.OP_LOAD_ATTR:    handleLoadAttr,
		bytecode.OP_LOAD_METHOD:  handleLoadMethod,

		bytecode.OP_ROT_TWO:     handleRotN(2),
		bytecode.OP_ROT_THREE:   handleRotN(3),
		bytecode.OP_ROT_FOUR:    handleRotN(4),
		bytecode.OP_POP_TOP:     handlePopTop,
		bytecode.OP_DUP_TOP:     handleDupTop(1),
		bytecode.OP_DUP_TOP_TWO: handleDupTop(2),

		bytecode.OP_RETURN_VALUE: handleReturnValue,

		bytecode.OP_UNARY_POSITIVE: handleUnary,
		bytecode.OP_UNARY_NEGATIVE: handleUnary,
		bytecode.OP_UNARY_NOT:      handleUnary,
		bytecode.OP_UNARY_INVERT:   handleUnary,

		bytecode.OP_BINARY_ADD:          handleBinary,
		bytecode.OP_BINARY_SUBTRACT:     handleBinary,
		bytecode.OP_BINARY_MULTIPLY:     handleBinary,
		bytecode.OP_BINARY_TRUE_DIVIDE:  handleBinary,
		bytecode.OP_BINARY_MODULO:       handleBinary,
		bytecode.OP_BINARY_POWER:        handleBinary,
		bytecode.OP_BINARY_AND:          handleBinary,
		bytecode.OP_BINARY_OR:           handleBinary,
		bytecode.OP_BINARY_XOR:          handleBinary,
		bytecode.OP_BINARY_LSHIFT:       handleBinary,
		bytecode.OP_BINARY_RSHIFT:       handleBinary,
		bytecode.OP_INPLACE_ADD:         handleInplace,
		bytecode.OP_INPLACE_SUBTRACT:    handleInplace,
		bytecode.OP_INPLACE_MULTIPLY:    handleInplace,
		bytecode.OP_INPLACE_TRUE_DIVIDE: handleInplace,

		bytecode.OP_COMPARE_LT:     handleCompare,
		bytecode.OP_COMPARE_LE:     handleCompare,
		bytecode.OP_COMPARE_EQ:     handleCompare,
		bytecode.OP_COMPARE_NE:     handleCompare,
		bytecode.OP_COMPARE_GE:     handleCompare,
		bytecode.OP_COMPARE_GT:     handleCompare,
		bytecode.OP_COMPARE_IS:     handleCompare,
		bytecode.OP_COMPARE_IS_NOT: handleCompare,

		bytecode.OP_BINARY_SUBSCR: handleBinarySubscr,
		bytecode.OP_STORE_SUBSCR:  handleStoreSubscr,
		bytecode.OP_DELETE_SUBSCR: handleDeleteSubscr,

		bytecode.OP_BUILD_LIST:    handleBuildList,
		bytecode.OP_BUILD_TUPLE:   handleBuildTuple,
		bytecode.OP_BUILD_SET:     handleBuildList,
		bytecode.OP_BUILD_MAP:     handleBuildMap,
		bytecode.OP_BUILD_STRING:  handleBuildString,
		bytecode.OP_BUILD_SLICE:   handleBuildSlice,
		bytecode.OP_LIST_TO_TUPLE: handleListToTuple,
		bytecode.OP_LIST_EXTEND:   handleListExtend,
		bytecode.OP_DICT_UPDATE:   handleDictUpdate,
		bytecode.OP_DICT_MERGE:    handleDictMerge,

		bytecode.OP_BUILD_LIST_UNPACK:          handleBuildListUnpack,
		bytecode.OP_BUILD_TUPLE_UNPACK:         handleBuildTupleUnpack,
		bytecode.OP_BUILD_SET_UNPACK:           handleBuildListUnpack,
		bytecode.OP_BUILD_MAP_UNPACK:           handleBuildMapUnpack,
		bytecode.OP_BUILD_MAP_UNPACK_WITH_CALL: handleBuildMapUnpack,

		bytecode.OP_GET_ITER:        handleGetIter,
		bytecode.OP_FOR_ITER:        handleForIter,
		bytecode.OP_UNPACK_SEQUENCE: handleUnpackSequence,
		bytecode.OP_FORMAT_VALUE:    handleFormatValue,

		bytecode.OP_CALL_FUNCTION:    handleCallFunction,
		bytecode.OP_CALL_FUNCTION_KW: handleCallFunctionKw,
		bytecode.OP_CALL_FUNCTION_EX: handleCallFunctionEx,
		bytecode.OP_CALL_METHOD:      handleCallMethod,
		bytecode.OP_MAKE_FUNCTION:    handleMakeFunction,

		bytecode.OP_JUMP_FORWARD:        handleJumpForward,
		bytecode.OP_JUMP_ABSOLUTE:       handleJumpAbsolute,
		bytecode.OP_POP_JUMP_IF_TRUE:    handlePopJumpIfTrue,
		bytecode.OP_POP_JUMP_IF_FALSE:   handlePopJumpIfFalse,
	}
}

func handleNop(_ *Executor, _ bytecode.Instruction) error { return nil }

func handleLoadFast(e *Executor, instr bytecode.Instruction) error {
	name := e.Frame.Code.LocalName(instr.Arg)
	v, err := e.Frame.LookupLocal(name)
	if err != nil {
		return err
	}
	e.Frame.Push(v)
	return nil
}

func handleLoadGlobal(e *Executor, instr bytecode.Instruction) error {
	name := e.Frame.Code.GlobalName(instr.Arg)
	v, err := e.Frame.LookupGlobal(name)
	if err != nil {
		return err
	}
	e.Frame.Push(v)
	return nil
}

func handleLoadBuiltin(e *Executor, instr bytecode.Instruction) error {
	name := e.Frame.Code.GlobalName(instr.Arg)
	v, err := e.Frame.LookupBuiltin(name)
	if err != nil {
		return err
	}
	e.Frame.Push(v)
	return nil
}

func handleLoadConst(e *Executor, instr bytecode.Instruction) error {
	v, err := e.Frame.Const(instr.Arg)
	if err != nil {
		return err
	}
	e.Frame.Push(v)
	return nil
}

func handleStoreFast(e *Executor, instr bytecode.Instruction) error {
	v, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	name := e.Frame.Code.LocalName(instr.Arg)
	v.SetDebugName(name)
	e.Frame.StoreLocal(name, v)
	return nil
}

func handleLoadAttr(e *Executor, instr bytecode.Instruction) error {
	obj, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	name := e.Frame.Code.GlobalName(instr.Arg)
	tr := &tracker.GetAttr{Object: obj.Tracker(), Attr: name}
	if callable, ok := obj.(*variable.Callable); ok {
		e.Frame.Push(callable)
		return nil
	}
	e.Frame.Push(variable.NewObject(tr, nil, "attr:"+name))
	return nil
}

func handleLoadMethod(e *Executor, instr bytecode.Instruction) error {
	obj, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	name := e.Frame.Code.GlobalName(instr.Arg)
	tr := &tracker.GetAttr{Object: obj.Tracker(), Attr: name}
	// Two-slot push: always (Dummy, obj). Bound methods are not resolved,
	// so CALL_METHOD calls obj directly with the call's arguments.
	e.Frame.Push(variable.NewDummy(tr))
	e.Frame.Push(obj)
	return nil
}

func handleRotN(k int) handlerFunc {
	return func(e *Executor, _ bytecode.Instruction) error {
		return e.Frame.RotN(k)
	}
}

func handlePopTop(e *Executor, _ bytecode.Instruction) error {
	_, err := e.Frame.Pop()
	return err
}

func handleDupTop(n int) handlerFunc {
	return func(e *Executor, _ bytecode.Instruction) error {
		return e.Frame.DupTop(n)
	}
}

func handleReturnValue(e *Executor, _ bytecode.Instruction) error {
	v, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	e.ReturnValue = v
	if e.Inline {
		return errStop
	}
	if _, err := e.Graph.StartCompile(v); err != nil {
		return trerrors.WrapInner(err, e.CallChain())
	}
	e.CG.GenReturn()
	e.NewCode = e.CG.GenPycode()
	e.GuardFn = e.Graph.GuardFn(e.resolve)
	return errStop
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
