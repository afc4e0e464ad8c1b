// Package bytecode describes the stack-machine instruction set that the
// host interpreter's frames are made of. The executor packages read this
// format; the codegen package emits it.
package bytecode

// Opcode identifies one instruction kind understood by the simulator.
// Opcodes the simulator has no handler for trigger a graph-break via
// NotImplemented (see package executor).
type Opcode byte

// Load/store family (0-19).
const (
	OP_NOP Opcode = iota
	OP_LOAD_FAST
	OP_LOAD_GLOBAL
	OP_LOAD_CONST
	OP_LOAD_NAME
	OP_LOAD_BUILTIN
	OP_STORE_FAST
	OP_STORE_NAME
	OP_LOAD_ATTR
	OP_LOAD_METHOD
)

// Arithmetic, bitwise and comparison family (20-49).
const (
	OP_UNARY_POSITIVE Opcode = iota + 20
	OP_UNARY_NEGATIVE
	OP_UNARY_NOT
	OP_UNARY_INVERT
	OP_BINARY_ADD
	OP_BINARY_SUBTRACT
	OP_BINARY_MULTIPLY
	OP_BINARY_TRUE_DIVIDE
	OP_BINARY_MODULO
	OP_BINARY_POWER
	OP_BINARY_AND
	OP_BINARY_OR
	OP_BINARY_XOR
	OP_BINARY_LSHIFT
	OP_BINARY_RSHIFT
	OP_INPLACE_ADD
	OP_INPLACE_SUBTRACT
	OP_INPLACE_MULTIPLY
	OP_INPLACE_TRUE_DIVIDE
	OP_COMPARE_LT
	OP_COMPARE_LE
	OP_COMPARE_EQ
	OP_COMPARE_NE
	OP_COMPARE_GE
	OP_COMPARE_GT
	OP_COMPARE_IS
	OP_COMPARE_IS_NOT
)

// Container, subscript and sequence family (50-79).
const (
	OP_BINARY_SUBSCR Opcode = iota + 50
	OP_STORE_SUBSCR
	OP_DELETE_SUBSCR
	OP_BUILD_LIST
	OP_BUILD_TUPLE
	OP_BUILD_SET
	OP_BUILD_MAP
	OP_BUILD_STRING
	OP_BUILD_SLICE
	OP_LIST_TO_TUPLE
	OP_LIST_EXTEND
	OP_DICT_UPDATE
	OP_DICT_MERGE
	OP_BUILD_LIST_UNPACK
	OP_BUILD_TUPLE_UNPACK
	OP_BUILD_SET_UNPACK
	OP_BUILD_MAP_UNPACK
	OP_BUILD_MAP_UNPACK_WITH_CALL
	OP_GET_ITER
	OP_FOR_ITER
	OP_UNPACK_SEQUENCE
	OP_FORMAT_VALUE
)

// Call and function family (80-99).
const (
	OP_CALL_FUNCTION Opcode = iota + 80
	OP_CALL_FUNCTION_KW
	OP_CALL_FUNCTION_EX
	OP_CALL_METHOD
	OP_MAKE_FUNCTION
)

// Control flow family (100-119).
const (
	OP_JUMP_FORWARD Opcode = iota + 100
	OP_JUMP_ABSOLUTE
	OP_POP_JUMP_IF_TRUE
	OP_POP_JUMP_IF_FALSE
	OP_RETURN_VALUE
)

// Pure stack manipulation family (120-139).
const (
	OP_ROT_TWO Opcode = iota + 120
	OP_ROT_THREE
	OP_ROT_FOUR
	OP_POP_TOP
	OP_DUP_TOP
	OP_DUP_TOP_TWO
)

var opcodeNames = map[Opcode]string{
	OP_NOP:                        "NOP",
	OP_LOAD_FAST:                  "LOAD_FAST",
	OP_LOAD_GLOBAL:                "LOAD_GLOBAL",
	OP_LOAD_CONST:                 "LOAD_CONST",
	OP_LOAD_NAME:                  "LOAD_NAME",
	OP_LOAD_BUILTIN:               "LOAD_BUILTIN",
	OP_STORE_FAST:                 "STORE_FAST",
	OP_STORE_NAME:                 "STORE_NAME",
	OP_LOAD_ATTR:                  "LOAD_ATTR",
	OP_LOAD_METHOD:                "LOAD_METHOD",
	OP_UNARY_POSITIVE:             "UNARY_POSITIVE",
	OP_UNARY_NEGATIVE:             "UNARY_NEGATIVE",
	OP_UNARY_NOT:                  "UNARY_NOT",
	OP_UNARY_INVERT:               "UNARY_INVERT",
	OP_BINARY_ADD:                 "BINARY_ADD",
	OP_BINARY_SUBTRACT:            "BINARY_SUBTRACT",
	OP_BINARY_MULTIPLY:            "BINARY_MULTIPLY",
	OP_BINARY_TRUE_DIVIDE:         "BINARY_TRUE_DIVIDE",
	OP_BINARY_MODULO:              "BINARY_MODULO",
	OP_BINARY_POWER:               "BINARY_POWER",
	OP_BINARY_AND:                 "BINARY_AND",
	OP_BINARY_OR:                  "BINARY_OR",
	OP_BINARY_XOR:                 "BINARY_XOR",
	OP_BINARY_LSHIFT:              "BINARY_LSHIFT",
	OP_BINARY_RSHIFT:              "BINARY_RSHIFT",
	OP_INPLACE_ADD:                "INPLACE_ADD",
	OP_INPLACE_SUBTRACT:           "INPLACE_SUBTRACT",
	OP_INPLACE_MULTIPLY:           "INPLACE_MULTIPLY",
	OP_INPLACE_TRUE_DIVIDE:        "INPLACE_TRUE_DIVIDE",
	OP_COMPARE_LT:                 "COMPARE_LT",
	OP_COMPARE_LE:                 "COMPARE_LE",
	OP_COMPARE_EQ:                 "COMPARE_EQ",
	OP_COMPARE_NE:                 "COMPARE_NE",
	OP_COMPARE_GE:                 "COMPARE_GE",
	OP_COMPARE_GT:                 "COMPARE_GT",
	OP_COMPARE_IS:                 "COMPARE_IS",
	OP_COMPARE_IS_NOT:             "COMPARE_IS_NOT",
	OP_BINARY_SUBSCR:              "BINARY_SUBSCR",
	OP_STORE_SUBSCR:               "STORE_SUBSCR",
	OP_DELETE_SUBSCR:              "DELETE_SUBSCR",
	OP_BUILD_LIST:                 "BUILD_LIST",
	OP_BUILD_TUPLE:                "BUILD_TUPLE",
	OP_BUILD_SET:                  "BUILD_SET",
	OP_BUILD_MAP:                  "BUILD_MAP",
	OP_BUILD_STRING:               "BUILD_STRING",
	OP_BUILD_SLICE:                "BUILD_SLICE",
	OP_LIST_TO_TUPLE:              "LIST_TO_TUPLE",
	OP_LIST_EXTEND:                "LIST_EXTEND",
	OP_DICT_UPDATE:                "DICT_UPDATE",
	OP_DICT_MERGE:                 "DICT_MERGE",
	OP_BUILD_LIST_UNPACK:          "BUILD_LIST_UNPACK",
	OP_BUILD_TUPLE_UNPACK:         "BUILD_TUPLE_UNPACK",
	OP_BUILD_SET_UNPACK:           "BUILD_SET_UNPACK",
	OP_BUILD_MAP_UNPACK:           "BUILD_MAP_UNPACK",
	OP_BUILD_MAP_UNPACK_WITH_CALL: "BUILD_MAP_UNPACK_WITH_CALL",
	OP_GET_ITER:                   "GET_ITER",
	OP_FOR_ITER:                   "FOR_ITER",
	OP_UNPACK_SEQUENCE:            "UNPACK_SEQUENCE",
	OP_FORMAT_VALUE:               "FORMAT_VALUE",
	OP_CALL_FUNCTION:              "CALL_FUNCTION",
	OP_CALL_FUNCTION_KW:           "CALL_FUNCTION_KW",
	OP_CALL_FUNCTION_EX:           "CALL_FUNCTION_EX",
	OP_CALL_METHOD:                "CALL_METHOD",
	OP_MAKE_FUNCTION:              "MAKE_FUNCTION",
	OP_JUMP_FORWARD:               "JUMP_FORWARD",
	OP_JUMP_ABSOLUTE:              "JUMP_ABSOLUTE",
	OP_POP_JUMP_IF_TRUE:           "POP_JUMP_IF_TRUE",
	OP_POP_JUMP_IF_FALSE:          "POP_JUMP_IF_FALSE",
	OP_RETURN_VALUE:               "RETURN_VALUE",
	OP_ROT_TWO:                    "ROT_TWO",
	OP_ROT_THREE:                  "ROT_THREE",
	OP_ROT_FOUR:                   "ROT_FOUR",
	OP_POP_TOP:                    "POP_TOP",
	OP_DUP_TOP:                    "DUP_TOP",
	OP_DUP_TOP_TWO:                "DUP_TOP_TWO",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// FormatFlag encodes the conversion requested by FORMAT_VALUE (spec 4.4).
type FormatFlag byte

const (
	FormatNone FormatFlag = iota
	FormatStr
	FormatRepr
	FormatASCII
	FormatHasSpec
)

// MakeFunctionFlag encodes which optional tuples MAKE_FUNCTION pops, mirroring
// CPython's MAKE_FUNCTION oparg bits.
type MakeFunctionFlag byte

const (
	MakeFunctionDefaults MakeFunctionFlag = 1 << iota
	MakeFunctionKwDefaults
	MakeFunctionAnnotations
	MakeFunctionClosure
)
