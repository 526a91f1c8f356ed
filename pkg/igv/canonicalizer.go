package igv

import (
	"fmt"
	"log/slog"

	"github.com/sunlang/suntv/pkg/ir"
)

// Canonicalizer validates that a parsed graph is well-formed before it is
// handed to the interpreter.
type Canonicalizer struct {
	logger *slog.Logger
}

func NewCanonicalizer(logger *slog.Logger) *Canonicalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Canonicalizer{logger: logger}
}

// Canonicalize validates g in place.
func (c *Canonicalizer) Canonicalize(g *ir.Graph) error {
	if g == nil {
		return fmt.Errorf("nil graph")
	}
	seen := make(map[ir.NodeID]struct{}, len(g.Nodes()))
	for _, n := range g.Nodes() {
		if _, dup := seen[n.ID()]; dup {
			return fmt.Errorf("duplicate node id %d", n.ID())
		}
		seen[n.ID()] = struct{}{}
	}
	if err := c.checkSingleStartRoot(g); err != nil {
		return err
	}
	c.logger.Debug("graph canonicalization successful", "nodes", len(g.Nodes()))
	return nil
}

func (c *Canonicalizer) checkSingleStartRoot(g *ir.Graph) error {
	var start, root *ir.Node
	for _, n := range g.Nodes() {
		switch n.Op() {
		case ir.OpStart:
			if start != nil {
				return fmt.Errorf("multiple Start nodes found (ids %d, %d)", start.ID(), n.ID())
			}
			start = n
		case ir.OpRoot:
			if root != nil {
				return fmt.Errorf("multiple Root nodes found (ids %d, %d)", root.ID(), n.ID())
			}
			root = n
		}
	}
	if start == nil {
		return fmt.Errorf("no Start node found")
	}
	if root == nil {
		return fmt.Errorf("no Root node found")
	}
	c.logger.Debug("found Start and Root", "start", start.ID(), "root", root.ID())
	return nil
}
