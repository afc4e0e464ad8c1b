// Package meta implements the tensor descriptor used in place of a real
// tensor during symbolic execution (spec §3, §4.6), plus the memoized
// infer_meta oracle consumer.
package meta

import "fmt"

// Info is a tensor descriptor: value-object, immutable, hashed and compared
// by (Shape, DType, StopGradient) only (spec §3). Name is a debug label
// (SPEC_FULL §4) and is deliberately excluded from the key.
type Info struct {
	Shape        []int64
	DType        string
	StopGradient bool
	Name         string
}

// key is the hashable projection of Info used for equality/caching.
type key struct {
	shape string
	dtype string
	stop  bool
}

func (m Info) key() key {
	return key{shape: fmt.Sprint(m.Shape), dtype: m.DType, stop: m.StopGradient}
}

// Equal compares two descriptors by (shape, dtype, stop_gradient).
func (m Info) Equal(other Info) bool {
	return m.key() == other.key()
}

func (m Info) String() string {
	return fmt.Sprintf("MetaInfo(shape=%v, dtype=%s, stop_gradient=%v)", m.Shape, m.DType, m.StopGradient)
}
