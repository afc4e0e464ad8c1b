package executor

import (
	"fmt"

	"github.com/wudi/sotjit/bytecode"
	trerrors "github.com/wudi/sotjit/errors"
	"github.com/wudi/sotjit/tracker"
	"github.com/wudi/sotjit/variable"
)

func handleBinarySubscr(e *Executor, instr bytecode.Instruction) error {
	key, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	container, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	keyVal, err := variable.GetValue(key)
	if err != nil {
		return opErr(instr.Opcode, "subscript key must be a constant: %v", err)
	}
	if key.Tracker().Traceable() {
		if err := e.Graph.AddGlobalGuardedVariable(key); err != nil {
			return err
		}
	}
	tr := &tracker.GetItem{Container: container.Tracker(), Key: keyVal}

	switch c := container.(type) {
	case *variable.List:
		idx, ok := asInt(keyVal)
		if !ok || idx < 0 || idx >= len(c.Items) {
			return opErr(instr.Opcode, "list index %v out of range", keyVal)
		}
		e.Frame.Push(c.Items[idx])
		return nil
	case *variable.Tuple:
		idx, ok := asInt(keyVal)
		if !ok || idx < 0 || idx >= len(c.Items) {
			return opErr(instr.Opcode, "tuple index %v out of range", keyVal)
		}
		e.Frame.Push(c.Items[idx])
		return nil
	case *variable.Dict:
		v, ok := c.Get(keyVal)
		if !ok {
			return opErr(instr.Opcode, "key %v not found in dict", keyVal)
		}
		e.Frame.Push(v)
		return nil
	case *variable.Tensor:
		out, err := e.Graph.RecordOp("getitem", []variable.Variable{container}, tr)
		if err != nil {
			return err
		}
		e.Frame.Push(out)
		return nil
	default:
		return opErr(instr.Opcode, "cannot subscript %T", container)
	}
}

func handleStoreSubscr(e *Executor, instr bytecode.Instruction) error {
	key, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	container, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	value, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	keyVal, err := variable.GetValue(key)
	if err != nil {
		return opErr(instr.Opcode, "subscript key must be a constant: %v", err)
	}
	if key.Tracker().Traceable() {
		if err := e.Graph.AddGlobalGuardedVariable(key); err != nil {
			return err
		}
	}
	switch c := container.(type) {
	case *variable.List:
		idx, ok := asInt(keyVal)
		if !ok || idx < 0 || idx >= len(c.Items) {
			return opErr(instr.Opcode, "list index %v out of range", keyVal)
		}
		c.Items[idx] = value
		return nil
	case *variable.Dict:
		c.Set(keyVal, value)
		return nil
	default:
		return opErr(instr.Opcode, "cannot store-subscript into %T", container)
	}
}

func handleDeleteSubscr(e *Executor, instr bytecode.Instruction) error {
	key, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	container, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	keyVal, err := variable.GetValue(key)
	if err != nil {
		return opErr(instr.Opcode, "subscript key must be a constant: %v", err)
	}
	switch c := container.(type) {
	case *variable.List:
		idx, ok := asInt(keyVal)
		if !ok || idx < 0 || idx >= len(c.Items) {
			return opErr(instr.Opcode, "list index %v out of range", keyVal)
		}
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		return nil
	case *variable.Dict:
		for i, k := range c.Keys {
			if fmtKey(k) == fmtKey(keyVal) {
				c.Keys = append(c.Keys[:i], c.Keys[i+1:]...)
				c.Values = append(c.Values[:i], c.Values[i+1:]...)
				return nil
			}
		}
		return opErr(instr.Opcode, "key %v not found in dict", keyVal)
	default:
		return opErr(instr.Opcode, "cannot delete-subscript from %T", container)
	}
}

func handleBuildList(e *Executor, instr bytecode.Instruction) error {
	items, err := e.Frame.PopN(instr.Arg)
	if err != nil {
		return err
	}
	e.Frame.Push(variable.NewList(newDummy(items...), items))
	return nil
}

func handleBuildTuple(e *Executor, instr bytecode.Instruction) error {
	items, err := e.Frame.PopN(instr.Arg)
	if err != nil {
		return err
	}
	e.Frame.Push(variable.NewTuple(newDummy(items...), items))
	return nil
}

func handleBuildMap(e *Executor, instr bytecode.Instruction) error {
	flat, err := e.Frame.PopN(instr.Arg * 2)
	if err != nil {
		return err
	}
	keys := make([]any, 0, instr.Arg)
	values := make([]variable.Variable, 0, instr.Arg)
	for i := 0; i+1 < len(flat); i += 2 {
		keyVal, err := variable.GetValue(flat[i])
		if err != nil {
			return opErr(instr.Opcode, "map key must be a constant: %v", err)
		}
		keys = append(keys, keyVal)
		values = append(values, flat[i+1])
	}
	e.Frame.Push(variable.NewDict(newDummy(flat...), keys, values))
	return nil
}

func handleBuildString(e *Executor, instr bytecode.Instruction) error {
	items, err := e.Frame.PopN(instr.Arg)
	if err != nil {
		return err
	}
	var out string
	for _, it := range items {
		c, ok := it.(*variable.Constant)
		if !ok {
			return opErr(instr.Opcode, "BUILD_STRING requires constant operands")
		}
		s, ok := c.Value.(string)
		if !ok {
			return opErr(instr.Opcode, "BUILD_STRING requires string constants")
		}
		out += s
	}
	e.Frame.Push(variable.NewConstant(newDummy(items...), out))
	return nil
}

func handleBuildSlice(e *Executor, instr bytecode.Instruction) error {
	parts, err := e.Frame.PopN(3)
	if err != nil {
		return err
	}
	e.Frame.Push(variable.NewSlice(newDummy(parts...), parts[0], parts[1], parts[2]))
	return nil
}

func handleListToTuple(e *Executor, instr bytecode.Instruction) error {
	top, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	list, ok := top.(*variable.List)
	if !ok {
		return opErr(instr.Opcode, "LIST_TO_TUPLE expects a list, got %T", top)
	}
	e.Frame.Push(variable.NewTuple(newDummy(list), list.Items))
	return nil
}

func handleListExtend(e *Executor, instr bytecode.Instruction) error {
	extra, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	target, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	list, ok := target.(*variable.List)
	if !ok {
		return opErr(instr.Opcode, "LIST_EXTEND target must be a list, got %T", target)
	}
	items := variable.FlattenItems(extra)
	list.Items = append(list.Items, items...)
	e.Frame.Push(list)
	return nil
}

func handleDictUpdate(e *Executor, instr bytecode.Instruction) error {
	src, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	target, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	srcDict, ok := src.(*variable.Dict)
	if !ok {
		return opErr(instr.Opcode, "DICT_UPDATE source must be a dict, got %T", src)
	}
	dict, ok := target.(*variable.Dict)
	if !ok {
		return opErr(instr.Opcode, "DICT_UPDATE target must be a dict, got %T", target)
	}
	for i, k := range srcDict.Keys {
		dict.Set(k, srcDict.Values[i])
	}
	e.Frame.Push(dict)
	return nil
}

func handleDictMerge(e *Executor, instr bytecode.Instruction) error {
	src, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	target, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	srcDict, ok := src.(*variable.Dict)
	if !ok {
		return opErr(instr.Opcode, "DICT_MERGE source must be a dict, got %T", src)
	}
	dict, ok := target.(*variable.Dict)
	if !ok {
		return opErr(instr.Opcode, "DICT_MERGE target must be a dict, got %T", target)
	}
	for i, k := range srcDict.Keys {
		if _, exists := dict.Get(k); exists {
			return trerrors.NewInner(trerrors.ErrDuplicateKeyword, "duplicate key %v in DICT_MERGE", k)
		}
		dict.Set(k, srcDict.Values[i])
	}
	e.Frame.Push(dict)
	return nil
}

func handleBuildListUnpack(e *Executor, instr bytecode.Instruction) error {
	parts, err := e.Frame.PopN(instr.Arg)
	if err != nil {
		return err
	}
	var items []variable.Variable
	for _, p := range parts {
		items = append(items, variable.FlattenItems(p)...)
	}
	e.Frame.Push(variable.NewList(newDummy(parts...), items))
	return nil
}

func handleBuildTupleUnpack(e *Executor, instr bytecode.Instruction) error {
	parts, err := e.Frame.PopN(instr.Arg)
	if err != nil {
		return err
	}
	var items []variable.Variable
	for _, p := range parts {
		items = append(items, variable.FlattenItems(p)...)
	}
	e.Frame.Push(variable.NewTuple(newDummy(parts...), items))
	return nil
}

func handleBuildMapUnpack(e *Executor, instr bytecode.Instruction) error {
	parts, err := e.Frame.PopN(instr.Arg)
	if err != nil {
		return err
	}
	keys := make([]any, 0)
	values := make([]variable.Variable, 0)
	seen := map[string]bool{}
	for _, p := range parts {
		d, ok := p.(*variable.Dict)
		if !ok {
			return opErr(instr.Opcode, "BUILD_MAP_UNPACK operand must be a dict, got %T", p)
		}
		for i, k := range d.Keys {
			ks := fmtKey(k)
			if seen[ks] {
				return trerrors.NewInner(trerrors.ErrDuplicateKeyword, "repeated key %v in BUILD_MAP_UNPACK", k)
			}
			seen[ks] = true
			keys = append(keys, k)
			values = append(values, d.Values[i])
		}
	}
	e.Frame.Push(variable.NewDict(newDummy(parts...), keys, values))
	return nil
}

func handleUnpackSequence(e *Executor, instr bytecode.Instruction) error {
	seq, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	if isTensor(seq) {
		return opErr(instr.Opcode, "UNPACK_SEQUENCE on a tensor is not supported")
	}
	var items []variable.Variable
	switch c := seq.(type) {
	case *variable.List:
		items = c.Items
	case *variable.Tuple:
		items = c.Items
	default:
		return opErr(instr.Opcode, "UNPACK_SEQUENCE requires a list or tuple, got %T", seq)
	}
	if len(items) != instr.Arg {
		return opErr(instr.Opcode, "UNPACK_SEQUENCE expected %d items, got %d", instr.Arg, len(items))
	}
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		item.SetDebugName(fmt.Sprintf("%s[%d]", seq.DebugName(), i))
		e.Frame.Push(item)
	}
	return nil
}

func handleFormatValue(e *Executor, instr bytecode.Instruction) error {
	v, err := e.Frame.Pop()
	if err != nil {
		return err
	}
	c, ok := v.(*variable.Constant)
	if !ok {
		return opErr(instr.Opcode, "FORMAT_VALUE requires a constant operand")
	}
	flag := bytecode.FormatFlag(instr.Arg)
	var out string
	switch flag {
	case bytecode.FormatStr, bytecode.FormatNone:
		out = fmt.Sprintf("%v", c.Value)
	case bytecode.FormatRepr:
		out = fmt.Sprintf("%#v", c.Value)
	case bytecode.FormatASCII:
		out = fmt.Sprintf("%v", c.Value)
	default:
		return opErr(instr.Opcode, "FORMAT_VALUE with a non-constant format spec is not supported")
	}
	e.Frame.Push(variable.NewConstant(newDummy(v), out))
	return nil
}
