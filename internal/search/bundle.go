package search

import (
	"log/slog"

	"github.com/syntaxmt/forest-decoder/internal/forest"
	"github.com/syntaxmt/forest-decoder/internal/grammar"
	pkgerrors "github.com/syntaxmt/forest-decoder/pkg/errors"
)

// HyperedgeBundle groups every rule alternative sharing one tail structure
// at one node, together with the already-computed result stack of each tail
// position. Conceptually a cube: one axis of rule alternatives plus one
// axis per tail position.
type HyperedgeBundle struct {
	Stacks      []Stack
	Rules       []*grammar.Rule
	InputWeight float64
}

// estimate is the cheapest available upper bound for the bundle: input
// weight plus the best rule estimate plus the best ranked vertex of every
// tail stack.
func (b *HyperedgeBundle) estimate() float64 {
	e := b.InputWeight + b.Rules[0].Estimate
	for _, s := range b.Stacks {
		e += s[0].Score()
	}
	return e
}

// BundleCollector is the match callback for one node's matching pass: it
// converts partial hyperedges into bundles and retains only the top
// ruleLimit of them by estimated priority.
type BundleCollector struct {
	stacks    map[*forest.Vertex]Stack
	container *BoundedPriorityContainer[*HyperedgeBundle]
	logger    *slog.Logger
	err       error
}

// NewBundleCollector returns a collector reading tail stacks from stacks
// and retaining at most ruleLimit bundles per node.
func NewBundleCollector(stacks map[*forest.Vertex]Stack, ruleLimit int) *BundleCollector {
	return &BundleCollector{
		stacks:    stacks,
		container: NewBoundedPriorityContainer[*HyperedgeBundle](ruleLimit),
		logger:    slog.Default().With("component", "bundle-collector"),
	}
}

// Process converts one partial hyperedge into a bundle and offers it to the
// container. A tail vertex without a created stack is an internal
// consistency violation recorded in Err; a created-but-empty stack only
// skips the bundle.
func (c *BundleCollector) Process(p *PartialHyperedge) {
	if c.err != nil {
		return
	}
	stacks := make([]Stack, len(p.Tail))
	for i, t := range p.Tail {
		s, ok := c.stacks[t]
		if !ok {
			c.err = pkgerrors.Newf(pkgerrors.ErrMissingStack, "tail vertex %s of node %s", t, p.Head)
			return
		}
		if len(s) == 0 {
			c.logger.Debug("skipping bundle with empty tail stack", "node", p.Head.String(), "tail", t.String())
			return
		}
		stacks[i] = s
	}
	b := &HyperedgeBundle{
		Stacks:      stacks,
		Rules:       p.Rules,
		InputWeight: p.InputWeight,
	}
	c.container.Insert(b, b.estimate())
}

// Err returns the first consistency violation seen, if any.
func (c *BundleCollector) Err() error { return c.err }

// Bundles returns the retained bundles in descending priority order.
func (c *BundleCollector) Bundles() []*HyperedgeBundle { return c.container.Items() }

// Size returns the number of retained bundles.
func (c *BundleCollector) Size() int { return c.container.Size() }

// Clear resets the collector for the next node.
func (c *BundleCollector) Clear() {
	c.container.Clear()
	c.err = nil
}
