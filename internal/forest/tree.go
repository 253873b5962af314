package forest

// TreeNode is a plain parse tree node, the usual input for tree-to-string
// decoding. Leaves are surface words.
type TreeNode struct {
	Label    string
	Children []*TreeNode
}

// TN is a convenience constructor for parse trees.
func TN(label string, children ...*TreeNode) *TreeNode {
	return &TreeNode{Label: label, Children: children}
}

// FromTree converts a parse tree into a single-alternative Forest, assigning
// spans from the left-to-right leaf order.
func FromTree(root *TreeNode) (*Forest, error) {
	b := NewBuilder()
	next := 0
	var walk func(n *TreeNode) *Vertex
	walk = func(n *TreeNode) *Vertex {
		if len(n.Children) == 0 {
			v := b.AddVertex(n.Label, next, next)
			next++
			return v
		}
		tail := make([]*Vertex, len(n.Children))
		for i, c := range n.Children {
			tail[i] = walk(c)
		}
		v := b.AddVertex(n.Label, tail[0].Span.Start, tail[len(tail)-1].Span.End)
		b.AddEdge(v, tail, 0)
		return v
	}
	rv := walk(root)
	return b.Build(rv)
}
