package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/sotjit/codegen"
)

func TestTraceable(t *testing.T) {
	tests := []struct {
		name string
		tr   Tracker
		want bool
	}{
		{"local", &Local{Name: "x"}, true},
		{"global", &Global{Name: "g"}, true},
		{"builtin", &Builtin{Name: "len"}, true},
		{"const", &Const{Literal: 1}, true},
		{"getitem", &GetItem{Container: &Local{Name: "xs"}, Key: 0}, true},
		{"getattr", &GetAttr{Object: &Local{Name: "obj"}, Attr: "f"}, true},
		{"getiter", &GetIter{Source: &Local{Name: "xs"}}, true},
		{"dummy", &Dummy{}, false},
		{"dangling", &Dangling{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tr.Traceable())
		})
	}
}

func TestEmit(t *testing.T) {
	local := &Local{Name: "x"}
	cg := codegen.NewEmitter("t")
	require.NoError(t, Emit(local, cg))

	getAttr := &GetAttr{Object: &Global{Name: "obj"}, Attr: "field"}
	cg2 := codegen.NewEmitter("t2")
	require.NoError(t, Emit(getAttr, cg2))

	dummy := &Dummy{}
	assert.Error(t, Emit(dummy, codegen.NewEmitter("t3")))
}

func TestStringify(t *testing.T) {
	bind := func(tr Tracker) (string, any) {
		switch v := tr.(type) {
		case *Local:
			return v.Name, int64(42)
		case *Global:
			return v.Name, "hi"
		}
		return "", nil
	}

	local := &Local{Name: "x"}
	res, err := Stringify(local, bind)
	require.NoError(t, err)
	assert.Equal(t, "x", res.Expr)
	assert.Equal(t, int64(42), res.FreeVars["x"])

	getItem := &GetItem{Container: local, Key: 0}
	res2, err := Stringify(getItem, bind)
	require.NoError(t, err)
	assert.Equal(t, "x[0]", res2.Expr)
	assert.Equal(t, int64(42), res2.FreeVars["x"])

	getAttr := &GetAttr{Object: &Global{Name: "g"}, Attr: "field"}
	res3, err := Stringify(getAttr, bind)
	require.NoError(t, err)
	assert.Equal(t, "g.field", res3.Expr)

	_, err = Stringify(&Dummy{}, bind)
	assert.Error(t, err)
}

func TestCycle_NoFalsePositiveOnSharedInput(t *testing.T) {
	shared := &Local{Name: "x"}
	a := &GetAttr{Object: shared, Attr: "a"}
	b := &GetAttr{Object: shared, Attr: "b"}
	assert.False(t, Cycle([]Tracker{a, b, shared}))
}

func TestCycle_DetectsSelfReferencingDummy(t *testing.T) {
	d := &Dummy{}
	// A Dummy whose sole input's Tracker() loops back to d itself.
	d.From = []Traced{selfTraced{tr: d}}
	assert.True(t, Cycle([]Tracker{d}))
}

type selfTraced struct{ tr Tracker }

func (s selfTraced) Tracker() Tracker { return s.tr }

func TestPointerIdentityMakesTrackersComparable(t *testing.T) {
	a := &Local{Name: "x"}
	b := &Local{Name: "x"}
	assert.NotEqual(t, a, b, "distinct allocations with equal fields must not collapse to one map key")

	m := map[Tracker]int{}
	m[a] = 1
	m[b] = 2
	assert.Len(t, m, 2)
}
