package executor

import (
	"math"

	"github.com/wudi/sotjit/bytecode"
	"github.com/wudi/sotjit/variable"
)

// opName maps an opcode to the host operator name recorded into the graph
// and handed to MetaInfer when a tensor operand is present (spec §4.4,
// §6).
var opName = map[bytecode.Opcode]string{
	bytecode.OP_UNARY_POSITIVE:     "pos",
	bytecode.OP_UNARY_NEGATIVE:     "neg",
	bytecode.OP_UNARY_NOT:          "not",
	bytecode.OP_UNARY_INVERT:       "invert",
	bytecode.OP_BINARY_ADD:         "add",
	bytecode.OP_BINARY_SUBTRACT:    "sub",
	bytecode.OP_BINARY_MULTIPLY:    "mul",
	bytecode.OP_BINARY_TRUE_DIVIDE: "div",
	bytecode.OP_BINARY_MODULO:      "mod",
	bytecode.OP_BINARY_POWER:       "pow",
	bytecode.OP_BINARY_AND:         "and",
	bytecode.OP_BINARY_OR:          "or",
	bytecode.OP_BINARY_XOR:         "xor",
	bytecode.OP_BINARY_LSHIFT:      "lshift",
	bytecode.OP_BINARY_RSHIFT:      "rshift",
	bytecode.OP_INPLACE_ADD:        "add",
	bytecode.OP_INPLACE_SUBTRACT:   "sub",
	bytecode.OP_INPLACE_MULTIPLY:   "mul",
	bytecode.OP_INPLACE_TRUE_DIVIDE: "div",
	bytecode.OP_COMPARE_LT:         "lt",
	bytecode.OP_COMPARE_LE:         "le",
	bytecode.OP_COMPARE_EQ:         "eq",
	bytecode.OP_COMPARE_NE:         "ne",
	bytecode.OP_COMPARE_GE:         "ge",
	bytecode.OP_COMPARE_GT:         "gt",
	bytecode.OP_COMPARE_IS:         "is",
	bytecode.OP_COMPARE_IS_NOT:     "is_not",
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return float64(n), true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func bothInt(a, b any) (int64, int64, bool) {
	ai, aok := a.(int64)
	if !aok {
		if n, ok := a.(int); ok {
			ai, aok = int64(n), true
		}
	}
	bi, bok := b.(int64)
	if !bok {
		if n, ok := b.(int); ok {
			bi, bok = int64(n), true
		}
	}
	return ai, bi, aok && bok
}

// foldBinary computes a host binary op eagerly against two already-
// unwrapped literal values (spec §4.4: "constant operands fold").
func foldBinary(op bytecode.Opcode, a, b any) (any, error) {
	if ai, bi, ok := bothInt(a, b); ok {
		switch op {
		case bytecode.OP_BINARY_ADD, bytecode.OP_INPLACE_ADD:
			return ai + bi, nil
		case bytecode.OP_BINARY_SUBTRACT, bytecode.OP_INPLACE_SUBTRACT:
			return ai - bi, nil
		case bytecode.OP_BINARY_MULTIPLY, bytecode.OP_INPLACE_MULTIPLY:
			return ai * bi, nil
		case bytecode.OP_BINARY_MODULO:
			if bi == 0 {
				return nil, opErr(op, "modulo by zero")
			}
			return ai % bi, nil
		case bytecode.OP_BINARY_AND:
			return ai & bi, nil
		case bytecode.OP_BINARY_OR:
			return ai | bi, nil
		case bytecode.OP_BINARY_XOR:
			return ai ^ bi, nil
		case bytecode.OP_BINARY_LSHIFT:
			return ai << uint(bi), nil
		case bytecode.OP_BINARY_RSHIFT:
			return ai >> uint(bi), nil
		}
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return nil, opErr(op, "operands %v, %v are not numeric constants", a, b)
	}
	switch op {
	case bytecode.OP_BINARY_ADD, bytecode.OP_INPLACE_ADD:
		return af + bf, nil
	case bytecode.OP_BINARY_SUBTRACT, bytecode.OP_INPLACE_SUBTRACT:
		return af - bf, nil
	case bytecode.OP_BINARY_MULTIPLY, bytecode.OP_INPLACE_MULTIPLY:
		return af * bf, nil
	case bytecode.OP_BINARY_TRUE_DIVIDE, bytecode.OP_INPLACE_TRUE_DIVIDE:
		if bf == 0 {
			return nil, opErr(op, "division by zero")
		}
		return af / bf, nil
	case bytecode.OP_BINARY_MODULO:
		return math.Mod(af, bf), nil
	case bytecode.OP_BINARY_POWER:
		return math.Pow(af, bf), nil
	default:
		return nil, opErr(op, "no constant-fold rule for %s", op)
	}
}

func foldCompare(op bytecode.Opcode, a, b any) (bool, error) {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch op {
			case bytecode.OP_COMPARE_LT:
				return af < bf, nil
			case bytecode.OP_COMPARE_LE:
				return af <= bf, nil
			case bytecode.OP_COMPARE_EQ:
				return af == bf, nil
			case bytecode.OP_COMPARE_NE:
				return af != bf, nil
			case bytecode.OP_COMPARE_GE:
				return af >= bf, nil
			case bytecode.OP_COMPARE_GT:
				return af > bf, nil
			}
		}
	}
	switch op {
	case bytecode.OP_COMPARE_EQ, bytecode.OP_COMPARE_IS:
		return fmtKey(a) == fmtKey(b), nil
	case bytecode.OP_COMPARE_NE, bytecode.OP_COMPARE_IS_NOT:
		return fmtKey(a) != fmtKey(b), nil
	default:
		return false, opErr(op, "cannot compare %v and %v", a, b)
	}
}

func isTensor(v variable.Variable) bool {
	_, ok := v.(*variable.Tensor)
	return ok
}

func handleUnary(e *Executor, instr bytecode.Instruction) error {
	v, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	name := opName[instr.Opcode]
	if isTensor(v) {
		out, err := e.Graph.RecordOp(name, []variable.Variable{v}, newDummy(v))
		if err != nil {
			return err
		}
		e.Frame.Push(out)
		return nil
	}
	val, err := variable.GetValue(v)
	if err != nil {
		return opErr(instr.Opcode, "non-constant operand: %v", err)
	}
	var result any
	switch instr.Opcode {
	case bytecode.OP_UNARY_NOT:
		result = !truthy(val)
	case bytecode.OP_UNARY_NEGATIVE:
		f, ok := toFloat(val)
		if !ok {
			return opErr(instr.Opcode, "operand %v is not numeric", val)
		}
		if i, iok := val.(int64); iok {
			result = -i
		} else {
			result = -f
		}
	case bytecode.OP_UNARY_POSITIVE:
		result = val
	default:
		return opErr(instr.Opcode, "unsupported unary op")
	}
	e.Frame.Push(variable.NewConstant(newDummy(v), result))
	return nil
}

func handleBinary(e *Executor, instr bytecode.Instruction) error {
	return binaryOp(e, instr, false)
}

func handleInplace(e *Executor, instr bytecode.Instruction) error {
	return binaryOp(e, instr, true)
}

func binaryOp(e *Executor, instr bytecode.Instruction, inplace bool) error {
	rhs, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	lhs, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	name := opName[instr.Opcode]

	if isTensor(lhs) || isTensor(rhs) {
		out, err := e.Graph.RecordOp(name, []variable.Variable{lhs, rhs}, newDummy(lhs, rhs))
		if err != nil {
			return err
		}
		if inplace {
			out.SetDebugName(lhs.DebugName())
		}
		e.Frame.Push(out)
		return nil
	}

	lv, err := variable.GetValue(lhs)
	if err != nil {
		return opErr(instr.Opcode, "non-constant lhs: %v", err)
	}
	rv, err := variable.GetValue(rhs)
	if err != nil {
		return opErr(instr.Opcode, "non-constant rhs: %v", err)
	}
	result, err := foldBinary(instr.Opcode, lv, rv)
	if err != nil {
		return err
	}
	out := variable.NewConstant(newDummy(lhs, rhs), result)
	if inplace {
		out.SetDebugName(lhs.DebugName())
	}
	e.Frame.Push(out)
	return nil
}

func handleCompare(e *Executor, instr bytecode.Instruction) error {
	rhs, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	lhs, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	name := opName[instr.Opcode]

	if isTensor(lhs) || isTensor(rhs) {
		out, err := e.Graph.RecordOp(name, []variable.Variable{lhs, rhs}, newDummy(lhs, rhs))
		if err != nil {
			return err
		}
		e.Frame.Push(out)
		return nil
	}

	lv, err := variable.GetValue(lhs)
	if err != nil {
		return opErr(instr.Opcode, "non-constant lhs: %v", err)
	}
	rv, err := variable.GetValue(rhs)
	if err != nil {
		return opErr(instr.Opcode, "non-constant rhs: %v", err)
	}
	result, err := foldCompare(instr.Opcode, lv, rv)
	if err != nil {
		return err
	}
	e.Frame.Push(variable.NewConstant(newDummy(lhs, rhs), result))
	return nil
}
