package flow

// Graph is a built, immutable flow definition.
//
// Nodes live in an arena and edges are arena indices. A Graph holds no run
// state, so one Graph can back many engines and many concurrent runs.
type Graph[C any] struct {
	name     string
	nodes    []node[C]
	index    map[string]int
	entries  []int
	branches []string
}

func newGraph[C any](d *definition[C]) *Graph[C] {
	g := &Graph[C]{
		name:     d.name,
		nodes:    make([]node[C], len(d.nodes)),
		index:    make(map[string]int, len(d.index)),
		branches: append([]string{RootBranch}, d.branches...),
	}
	for i, n := range d.nodes {
		n.prev = append([]int(nil), n.prev...)
		n.next = append([]int(nil), n.next...)
		g.nodes[i] = n
		g.index[n.id] = i
		if n.entry && n.branch == RootBranch {
			g.entries = append(g.entries, i)
		}
	}
	return g
}

// Name returns the flow name given to NewBuilder.
func (g *Graph[C]) Name() string {
	return g.name
}

// Len returns the number of nodes.
func (g *Graph[C]) Len() int {
	return len(g.nodes)
}

// Branches returns the branch names, root first, in creation order.
func (g *Graph[C]) Branches() []string {
	return append([]string(nil), g.branches...)
}

// Node returns the node with the given identifier.
func (g *Graph[C]) Node(id string) (NodeInfo, bool) {
	idx, ok := g.index[id]
	if !ok {
		return NodeInfo{}, false
	}
	return g.info(idx), true
}

// Nodes returns all nodes in declaration order.
func (g *Graph[C]) Nodes() []NodeInfo {
	out := make([]NodeInfo, len(g.nodes))
	for i := range g.nodes {
		out[i] = g.info(i)
	}
	return out
}

// EntryNodes returns the begin nodes of the root branch in declaration
// order. They are the starting points of every run.
func (g *Graph[C]) EntryNodes() []NodeInfo {
	out := make([]NodeInfo, len(g.entries))
	for i, idx := range g.entries {
		out[i] = g.info(idx)
	}
	return out
}

// ProcessKeys returns every process key referenced by the graph, in
// first-seen order.
func (g *Graph[C]) ProcessKeys() []ProcessKey {
	return processKeys(g.nodes)
}

func (g *Graph[C]) info(idx int) NodeInfo {
	n := &g.nodes[idx]
	info := NodeInfo{
		ID:          n.id,
		Name:        n.name,
		Branch:      n.branch,
		Type:        n.typ,
		Entry:       n.entry,
		Process:     n.process,
		Conditional: n.condition != nil,
		Timeout:     n.timeout,
	}
	for _, p := range n.prev {
		info.Predecessors = append(info.Predecessors, g.nodes[p].id)
	}
	for _, s := range n.next {
		info.Successors = append(info.Successors, g.nodes[s].id)
	}
	return info
}

func processKeys[C any](nodes []node[C]) []ProcessKey {
	seen := make(map[ProcessKey]struct{}, len(nodes))
	var keys []ProcessKey
	for _, n := range nodes {
		if _, ok := seen[n.process]; ok {
			continue
		}
		seen[n.process] = struct{}{}
		keys = append(keys, n.process)
	}
	return keys
}
