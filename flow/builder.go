package flow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NodeOption customizes a node created by Begin or AddNext.
type NodeOption func(*nodeOptions)

type nodeOptions struct {
	id   string
	name string
}

// NodeID sets the node identifier. Identifiers must be unique in the whole
// flow. When omitted, a random UUID is used.
func NodeID(id string) NodeOption {
	return func(o *nodeOptions) { o.id = id }
}

// NodeName sets the display name recorded in history. When omitted, the
// process key is used.
func NodeName(name string) NodeOption {
	return func(o *nodeOptions) { o.name = name }
}

// definition is the mutable arena shared by the root builder and all branch
// builders of one flow.
type definition[C any] struct {
	name     string
	nodes    []node[C]
	index    map[string]int
	branches []string
	err      error
	built    bool
}

func (d *definition[C]) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// ok reports whether construction may continue.
func (d *definition[C]) ok() bool {
	if d.err == nil && d.built {
		d.err = &ConfigError{Code: "ALREADY_BUILT", Message: "builder cannot be modified after Build"}
	}
	return d.err == nil
}

func (d *definition[C]) hasBranch(name string) bool {
	if name == RootBranch {
		return true
	}
	for _, b := range d.branches {
		if b == name {
			return true
		}
	}
	return false
}

// Builder assembles the nodes of one branch of a flow.
//
// The root builder is created with NewBuilder; branch builders are handed to
// the configure function of AddBranch. Builders are used once, at startup,
// and are not safe for concurrent use.
//
// Construction errors are latched: the first error stops construction, every
// later call becomes a no-op, and Build returns the error.
//
// Example:
//
//	b := flow.NewBuilder[*Sale]("checkout")
//	b.Begin("init").
//	    AddNext("discount").
//	    AddBranch("taxes", func(t *flow.Builder[*Sale]) {
//	        t.Begin("state-tax").WithCondition(func(s *Sale) bool { return s.State != "" })
//	        t.Begin("municipal-tax")
//	    }).
//	    AddNext("save")
//	g, err := b.Build()
type Builder[C any] struct {
	def    *definition[C]
	branch string
	parent *Builder[C]

	// nodes holds the arena indices of this branch plus every branch merged into it.
	nodes []int
}

// NewBuilder creates the root builder of a flow named name.
func NewBuilder[C any](name string) *Builder[C] {
	return &Builder[C]{
		def: &definition[C]{
			name:  name,
			index: make(map[string]int),
		},
		branch: RootBranch,
	}
}

// Branch returns the name of the branch this builder configures.
func (b *Builder[C]) Branch() string {
	return b.branch
}

// Err returns the first configuration error, if any.
func (b *Builder[C]) Err() error {
	return b.def.err
}

// Begin adds an entry node to the current branch.
func (b *Builder[C]) Begin(process ProcessKey, opts ...NodeOption) *NodeBuilder[C] {
	idx, ok := b.addNode(process, NodeBegin, opts)
	if !ok {
		return &NodeBuilder[C]{scope: b, idx: -1}
	}
	return &NodeBuilder[C]{scope: b, idx: idx}
}

// ProcessKeys returns every process key referenced so far, in first-seen
// order. Use it to register processes with a Factory before running.
func (b *Builder[C]) ProcessKeys() []ProcessKey {
	return processKeys(b.def.nodes)
}

// Build validates the flow and returns an immutable Graph.
func (b *Builder[C]) Build() (*Graph[C], error) {
	if b.parent != nil {
		return nil, &ConfigError{
			Code:    "INVALID_BRANCH",
			Message: "Build must be called on the root builder",
			Branch:  b.branch,
		}
	}
	if !b.def.ok() {
		return nil, b.def.err
	}

	g := newGraph(b.def)
	if len(g.entries) == 0 {
		b.def.fail(&ConfigError{Code: "EMPTY_GRAPH", Message: "flow " + b.def.name + " has no begin nodes"})
		return nil, b.def.err
	}

	b.def.built = true
	return g, nil
}

func (b *Builder[C]) addNode(process ProcessKey, typ NodeType, opts []NodeOption) (int, bool) {
	d := b.def
	if !d.ok() {
		return -1, false
	}
	if strings.TrimSpace(string(process)) == "" {
		d.fail(&ConfigError{Code: "EMPTY_PROCESS", Message: "process key cannot be empty", Branch: b.branch})
		return -1, false
	}

	var o nodeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(o.id) == "" {
		o.id = uuid.NewString()
	}
	if strings.TrimSpace(o.name) == "" {
		o.name = string(process)
	}

	if _, exists := d.index[o.id]; exists {
		d.fail(&ConfigError{
			Code: "DUPLICATE_NODE",
			Message: fmt.Sprintf("node with identifier %q already exists; "+
				"use AddBranch to run a process again", o.id),
			NodeID: o.id,
			Branch: b.branch,
		})
		return -1, false
	}

	d.nodes = append(d.nodes, node[C]{
		id:      o.id,
		name:    o.name,
		branch:  b.branch,
		typ:     typ,
		entry:   typ == NodeBegin,
		process: process,
	})
	idx := len(d.nodes) - 1
	d.index[o.id] = idx
	b.nodes = append(b.nodes, idx)
	return idx, true
}

func (b *Builder[C]) link(from, to int) {
	d := b.def
	d.nodes[from].next = append(d.nodes[from].next, to)
	d.nodes[to].prev = append(d.nodes[to].prev, from)
}

// lastNodes returns the Begin and Simple nodes of the branch that have no
// successors yet. End nodes are never extended.
func (b *Builder[C]) lastNodes() []int {
	var last []int
	for _, idx := range b.nodes {
		n := &b.def.nodes[idx]
		if n.typ != NodeEnd && len(n.next) == 0 {
			last = append(last, idx)
		}
	}
	return last
}

// branchEntries returns the entry nodes owned by this branch that are not yet
// attached to a parent node.
func (b *Builder[C]) branchEntries() []int {
	var entries []int
	for _, idx := range b.nodes {
		n := &b.def.nodes[idx]
		if n.entry && n.branch == b.branch && len(n.prev) == 0 {
			entries = append(entries, idx)
		}
	}
	return entries
}

// addBranch creates the branch name, configures it, and splices its entry
// nodes after parent.
func (b *Builder[C]) addBranch(parent int, name string, configure func(*Builder[C])) (*Builder[C], bool) {
	d := b.def
	if !d.ok() {
		return nil, false
	}
	if d.nodes[parent].typ == NodeEnd {
		d.fail(&ConfigError{
			Code:    "END_NODE",
			Message: "cannot add branch " + name + " after end node " + d.nodes[parent].id,
			NodeID:  d.nodes[parent].id,
			Branch:  b.branch,
		})
		return nil, false
	}

	if name == "" {
		name = uuid.NewString()
	}
	switch {
	case strings.TrimSpace(name) == "":
		d.fail(&ConfigError{Code: "INVALID_BRANCH", Message: "branch name cannot be blank", Branch: b.branch})
		return nil, false
	case name == RootBranch:
		d.fail(&ConfigError{Code: "INVALID_BRANCH", Message: "branch name cannot be \"" + RootBranch + "\"", Branch: b.branch})
		return nil, false
	case d.hasBranch(name):
		d.fail(&ConfigError{Code: "DUPLICATE_BRANCH", Message: "branch " + name + " already exists", Branch: b.branch})
		return nil, false
	case configure == nil:
		d.fail(&ConfigError{Code: "INVALID_BRANCH", Message: "branch " + name + " has no configure function", Branch: b.branch})
		return nil, false
	}
	d.branches = append(d.branches, name)

	child := &Builder[C]{def: d, branch: name, parent: b}
	configure(child)
	if !d.ok() {
		return nil, false
	}

	entries := child.branchEntries()
	if len(entries) == 0 {
		d.fail(&ConfigError{Code: "INVALID_BRANCH", Message: "branch " + name + " has no begin nodes", Branch: name})
		return nil, false
	}
	for _, e := range entries {
		b.link(parent, e)
	}

	b.nodes = append(b.nodes, child.nodes...)
	return child, true
}

// NodeBuilder is a handle on the most recently built node of a branch.
type NodeBuilder[C any] struct {
	scope *Builder[C]
	idx   int
}

// ID returns the identifier of the node, or "" after a configuration error.
func (nb *NodeBuilder[C]) ID() string {
	if nb.idx < 0 {
		return ""
	}
	return nb.scope.def.nodes[nb.idx].id
}

// AddNext adds a node that runs after the current node and returns a handle
// on it.
//
// It fails with ErrDuplicateNode if the identifier is already used; running a
// process again must be modeled with AddBranch, which keeps the graph acyclic.
func (nb *NodeBuilder[C]) AddNext(process ProcessKey, opts ...NodeOption) *NodeBuilder[C] {
	if nb.idx < 0 || !nb.scope.def.ok() {
		return &NodeBuilder[C]{scope: nb.scope, idx: -1}
	}
	if cur := &nb.scope.def.nodes[nb.idx]; cur.typ == NodeEnd {
		nb.scope.def.fail(&ConfigError{
			Code:    "END_NODE",
			Message: "cannot add a successor to end node " + cur.id,
			NodeID:  cur.id,
			Branch:  nb.scope.branch,
		})
		return &NodeBuilder[C]{scope: nb.scope, idx: -1}
	}

	idx, ok := nb.scope.addNode(process, NodeSimple, opts)
	if !ok {
		return &NodeBuilder[C]{scope: nb.scope, idx: -1}
	}
	nb.scope.link(nb.idx, idx)
	return &NodeBuilder[C]{scope: nb.scope, idx: idx}
}

// AddBranch adds a named sub-graph after the current node.
//
// configure receives a builder scoped to the new branch. The branch's begin
// nodes become successors of the current node and all of its nodes are merged
// into the current branch. An empty name is replaced with a UUID.
func (nb *NodeBuilder[C]) AddBranch(name string, configure func(*Builder[C])) *Join[C] {
	j := &Join[C]{scope: nb.scope, parent: nb.idx}
	if nb.idx < 0 {
		return j
	}
	child, ok := nb.scope.addBranch(nb.idx, name, configure)
	if ok {
		j.branches = append(j.branches, child)
	}
	return j
}

// WithCondition attaches a predicate to the current node. When the predicate
// is false at run time the node is skipped and successors reachable only
// through it do not run.
func (nb *NodeBuilder[C]) WithCondition(pred Predicate[C]) *NodeBuilder[C] {
	if nb.idx >= 0 && nb.scope.def.ok() {
		nb.scope.def.nodes[nb.idx].condition = pred
	}
	return nb
}

// WithTimeout bounds the execution time of the current node's process.
// It overrides the engine's default node timeout.
func (nb *NodeBuilder[C]) WithTimeout(d time.Duration) *NodeBuilder[C] {
	if nb.idx >= 0 && nb.scope.def.ok() {
		nb.scope.def.nodes[nb.idx].timeout = d
	}
	return nb
}

// End marks the current node as a terminal node.
func (nb *NodeBuilder[C]) End() {
	if nb.idx >= 0 && nb.scope.def.ok() {
		nb.scope.def.nodes[nb.idx].typ = NodeEnd
	}
}

// Join is returned by AddBranch. It adds sibling branches after the same
// node and converges them again with AddNext.
type Join[C any] struct {
	scope    *Builder[C]
	parent   int
	branches []*Builder[C]
}

// AddBranch adds a sibling branch after the same parent node.
func (j *Join[C]) AddBranch(name string, configure func(*Builder[C])) *Join[C] {
	if j.parent < 0 {
		return j
	}
	child, ok := j.scope.addBranch(j.parent, name, configure)
	if ok {
		j.branches = append(j.branches, child)
	}
	return j
}

// AddNext adds a node to the parent branch that runs after the last nodes of
// every joined branch (fan-in). The node runs once, after all of them
// completed or were skipped.
func (j *Join[C]) AddNext(process ProcessKey, opts ...NodeOption) *NodeBuilder[C] {
	dead := &NodeBuilder[C]{scope: j.scope, idx: -1}
	if j.parent < 0 || !j.scope.def.ok() {
		return dead
	}

	var last []int
	for _, br := range j.branches {
		last = append(last, br.lastNodes()...)
	}
	if len(last) == 0 {
		j.scope.def.fail(&ConfigError{
			Code:    "NO_PARENT",
			Message: fmt.Sprintf("cannot join %s: branches have no open last nodes", process),
			Branch:  j.scope.branch,
		})
		return dead
	}

	idx, ok := j.scope.addNode(process, NodeSimple, opts)
	if !ok {
		return dead
	}
	for _, l := range last {
		j.scope.link(l, idx)
	}
	return &NodeBuilder[C]{scope: j.scope, idx: idx}
}
