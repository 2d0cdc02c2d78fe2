package blocktree

import (
	"fmt"

	"github.com/emicklei/dot"
)

// Dot renders the live tree in graphviz dot format for debugging.
// Finalized blocks are drawn filled.
func (t *Tree) Dot() string {
	g := dot.NewGraph(dot.Directed)
	nodes := make(map[nodeID]dot.Node)
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.pruned {
			continue
		}
		label := fmt.Sprintf("%s\nslot %d", n.hash.Short(), n.slot)
		dn := g.Node(n.hash.Short()).Label(label)
		if n.finalized {
			dn = dn.Attr("style", "filled")
		}
		nodes[nodeID(i)] = dn
	}
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.pruned || n.parent == noNode {
			continue
		}
		parent, ok := nodes[n.parent]
		if !ok {
			continue
		}
		g.Edge(parent, nodes[nodeID(i)])
	}
	return g.String()
}
