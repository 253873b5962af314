// Package forest models the parsed input for one sentence: a packed forest
// of labelled vertices over source spans, with one edge per derivation
// alternative. A Forest is built once per sentence, never mutated during
// decoding, and owned by a single decode.
package forest

import "fmt"

// Span is a contiguous, inclusive range of source word positions.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// NumWords returns the number of source words the span covers.
func (s Span) NumWords() int { return s.End - s.Start + 1 }

func (s Span) String() string { return fmt.Sprintf("[%d,%d]", s.Start, s.End) }

// Vertex is one forest node: a label (syntactic category or surface word)
// at a span. Packed forests give a vertex several incoming edges, one per
// derivation alternative; terminals have none.
type Vertex struct {
	Label    string
	Span     Span
	Incoming []*Edge
}

// IsTerminal reports whether the vertex is a leaf of the forest.
func (v *Vertex) IsTerminal() bool { return len(v.Incoming) == 0 }

func (v *Vertex) String() string { return v.Label + v.Span.String() }

// Edge is one derivation alternative: an ordered list of child vertices and
// the forest-assigned weight of choosing this alternative (0 for trees).
type Edge struct {
	Head   *Vertex
	Tail   []*Vertex
	Weight float64
}

// Forest is the input structure for one sentence decode. Vertices() yields
// children before parents, which is the order nodes must be processed in.
type Forest struct {
	vertices []*Vertex
	root     *Vertex
	isTree   bool
}

// Vertices returns all vertices in dependency order (children first, root
// last).
func (f *Forest) Vertices() []*Vertex { return f.vertices }

// Root returns the goal vertex.
func (f *Forest) Root() *Vertex { return f.root }

// IsTree reports whether every vertex has at most one incoming edge.
func (f *Forest) IsTree() bool { return f.isTree }

// Builder assembles a Forest. Vertices and edges may be added in any order;
// Build performs the dependency ordering.
type Builder struct {
	vertices []*Vertex
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// AddVertex creates a vertex covering source positions start..end inclusive.
func (b *Builder) AddVertex(label string, start, end int) *Vertex {
	v := &Vertex{Label: label, Span: Span{Start: start, End: end}}
	b.vertices = append(b.vertices, v)
	return v
}

// AddEdge records a derivation alternative for head.
func (b *Builder) AddEdge(head *Vertex, tail []*Vertex, weight float64) *Edge {
	e := &Edge{Head: head, Tail: tail, Weight: weight}
	head.Incoming = append(head.Incoming, e)
	return e
}

// Build orders the vertices children-first from root and returns the
// finished forest. Vertices unreachable from root are dropped. Returns an
// error if the structure is cyclic.
func (b *Builder) Build(root *Vertex) (*Forest, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*Vertex]int, len(b.vertices))
	var order []*Vertex
	isTree := true

	var visit func(v *Vertex) error
	visit = func(v *Vertex) error {
		switch state[v] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("forest contains a cycle through %s", v)
		}
		state[v] = visiting
		if len(v.Incoming) > 1 {
			isTree = false
		}
		for _, e := range v.Incoming {
			for _, c := range e.Tail {
				if err := visit(c); err != nil {
					return err
				}
			}
		}
		state[v] = done
		order = append(order, v)
		return nil
	}
	if err := visit(root); err != nil {
		return nil, err
	}
	return &Forest{vertices: order, root: root, isTree: isTree}, nil
}
