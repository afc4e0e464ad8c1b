package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuard_EmptyIsAlwaysTrue(t *testing.T) {
	g := New()
	assert.Equal(t, "True", g.String())
	assert.True(t, g.Fn(func(string) (any, bool) { return nil, false })())
}

func TestGuard_AddAndFn(t *testing.T) {
	g := New()
	g.Add("x", int64(7))
	g.Add("y", "hello")

	resolve := func(name string) (any, bool) {
		switch name {
		case "x":
			return int64(7), true
		case "y":
			return "hello", true
		}
		return nil, false
	}
	assert.True(t, g.Fn(resolve)())
	assert.Equal(t, 2, g.Len())
}

func TestGuard_FnFailsOnMismatch(t *testing.T) {
	g := New()
	g.Add("x", int64(7))
	resolve := func(string) (any, bool) { return int64(8), true }
	assert.False(t, g.Fn(resolve)())
}

func TestGuard_FnFailsOnMissingBinding(t *testing.T) {
	g := New()
	g.Add("x", int64(7))
	resolve := func(string) (any, bool) { return nil, false }
	assert.False(t, g.Fn(resolve)())
}

func TestGuard_Merge(t *testing.T) {
	a := New()
	a.Add("x", 1)
	b := New()
	b.Add("y", 2)
	a.Merge(b)
	assert.Equal(t, 2, a.Len())

	a.Merge(nil)
	assert.Equal(t, 2, a.Len(), "merging a nil guard must be a no-op")
}

func TestGuard_StringRendersConjunction(t *testing.T) {
	g := New()
	g.Add("x", int64(7))
	g.Add("y", "s")
	assert.Equal(t, `(x == 7) && (y == "s")`, g.String())
}
