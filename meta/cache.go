package meta

import "sync"

// StaticVariableFactory is the out-of-scope collaborator that converts a
// MetaInfo into the tensor framework's own static-graph placeholder
// (spec §4.6: "convert each MetaInfo argument into its cached static
// variable"). The concrete placeholder type is opaque to this module.
type StaticVariableFactory interface {
	NewStaticVariable(Info) (any, error)
}

// VariableCreator memoizes a static-graph variable per MetaInfo (spec
// §4.6), so repeated inference calls for the same tensor shape/dtype reuse
// one placeholder instead of asking the oracle to mint a fresh one.
type VariableCreator struct {
	factory StaticVariableFactory
	mu      sync.Mutex
	byKey   map[key]any
}

func NewVariableCreator(factory StaticVariableFactory) *VariableCreator {
	return &VariableCreator{factory: factory, byKey: map[key]any{}}
}

func (vc *VariableCreator) Get(info Info) (any, error) {
	k := info.key()
	vc.mu.Lock()
	if v, ok := vc.byKey[k]; ok {
		vc.mu.Unlock()
		return v, nil
	}
	vc.mu.Unlock()

	v, err := vc.factory.NewStaticVariable(info)
	if err != nil {
		return nil, err
	}
	vc.mu.Lock()
	vc.byKey[k] = v
	vc.mu.Unlock()
	return v, nil
}

// Clear drops every memoized placeholder. Exposed for test teardown, per
// spec §5's "singletons ... clear available for tests".
func (vc *VariableCreator) Clear() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.byKey = map[key]any{}
}
