package meta

import "sync"

// Args and Outputs are nested structures of Info, matching spec §6's
// "args and outputs are nested structures of MetaInfo". A Node here is
// either a leaf Info or a slice of Node, which is enough nesting for every
// op this translator needs to reason about (tensors and tuples of tensors).
type Node struct {
	Leaf     *Info
	Sequence []Node
}

func Leaf(i Info) Node   { return Node{Leaf: &i} }
func Seq(n ...Node) Node { return Node{Sequence: n} }

// StaticGraphOracle is the out-of-scope "MetaInfer" collaborator (spec §1,
// §6): given a function and symbolic tensor descriptors, it returns the
// descriptors of the result. This module treats it as an oracle consumed
// through an interface rather than implementing real shape inference.
type StaticGraphOracle interface {
	InferMeta(op string, args Node) (Node, error)
}

// specialInferFn is a hand-written inferer for ops the static graph cannot
// model, mirroring sot/infer_meta.py's SpecialInferMeta table.
type specialInferFn func(args Node) (Node, error)

var specialInferMeta = map[string]specialInferFn{
	// grad returns its inputs as-is, boxed to a 1-element sequence if the
	// input was a bare leaf — ported behavior-for-behavior from
	// infer_meta.py's handling of paddle.grad (SPEC_FULL §5).
	"grad": func(args Node) (Node, error) {
		if args.Leaf != nil {
			return Seq(args), nil
		}
		return args, nil
	},
}

// Inferer is the memoized infer_meta(op, args) entry point (spec §4.6):
// first consults SpecialInferMeta, otherwise delegates to the oracle.
type Inferer struct {
	oracle StaticGraphOracle
	mu     sync.Mutex
	cache  map[string]Node
}

func NewInferer(oracle StaticGraphOracle) *Inferer {
	return &Inferer{oracle: oracle, cache: map[string]Node{}}
}

func (inf *Inferer) Infer(op string, args Node) (Node, error) {
	if special, ok := specialInferMeta[op]; ok {
		return special(args)
	}
	key := cacheKey(op, args)
	inf.mu.Lock()
	if cached, ok := inf.cache[key]; ok {
		inf.mu.Unlock()
		return cached, nil
	}
	inf.mu.Unlock()

	out, err := inf.oracle.InferMeta(op, args)
	if err != nil {
		return Node{}, err
	}
	inf.mu.Lock()
	inf.cache[key] = out
	inf.mu.Unlock()
	return out, nil
}

func cacheKey(op string, args Node) string {
	var b []byte
	b = append(b, op...)
	b = append(b, ':')
	appendNode(&b, args)
	return string(b)
}

func appendNode(b *[]byte, n Node) {
	if n.Leaf != nil {
		*b = append(*b, n.Leaf.String()...)
		return
	}
	*b = append(*b, '(')
	for _, child := range n.Sequence {
		appendNode(b, child)
		*b = append(*b, ',')
	}
	*b = append(*b, ')')
}
