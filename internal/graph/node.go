package graph

// Node is anything that can be connected into the graph.
type Node interface {
	Connect(dst Node)
	Disconnect()
	DisconnectFrom(dst Node)
	graphNode() *node
}

type processor interface {
	process(in, out *Bus)
}

// feedbackProcessor nodes emit their output before pulling inputs, which
// lets a cycle through them resolve.
type feedbackProcessor interface {
	emit(out *Bus)
	absorb(in *Bus)
}

// node is the shared wiring embedded by every node type. Inputs are summed.
type node struct {
	ctx     *Context
	proc    any
	inputs  []*node
	outputs []*node
	in      Bus
	out     Bus
	pass    uint64
	busy    bool
}

func (n *node) graphNode() *node { return n }

func (n *node) init(c *Context, proc any) {
	n.ctx = c
	n.proc = proc
}

// Connect routes this node's output into dst. Connecting twice is a no-op.
func (n *node) Connect(dst Node) {
	d := dst.graphNode()
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	for _, in := range d.inputs {
		if in == n {
			return
		}
	}
	d.inputs = append(d.inputs, n)
	n.outputs = append(n.outputs, d)
}

// Disconnect removes every outgoing connection.
func (n *node) Disconnect() {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	for _, d := range n.outputs {
		d.inputs = without(d.inputs, n)
	}
	n.outputs = nil
}

// DisconnectFrom removes the connection to dst, if any.
func (n *node) DisconnectFrom(dst Node) {
	d := dst.graphNode()
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	d.inputs = without(d.inputs, n)
	n.outputs = without(n.outputs, d)
}

func without(list []*node, n *node) []*node {
	for i, x := range list {
		if x == n {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// pull renders the node for the current pass, at most once. Caller holds
// ctx.mu.
func (n *node) pull() *Bus {
	c := n.ctx
	if n.pass == c.pass {
		return &n.out
	}
	if fb, ok := n.proc.(feedbackProcessor); ok {
		n.pass = c.pass
		fb.emit(&n.out)
		n.gather()
		fb.absorb(&n.in)
		return &n.out
	}
	if n.busy {
		return &silence
	}
	n.busy = true
	n.gather()
	if p, ok := n.proc.(processor); ok {
		p.process(&n.in, &n.out)
	} else {
		n.out = n.in
	}
	n.busy = false
	n.pass = c.pass
	return &n.out
}

func (n *node) gather() {
	n.in.zero()
	for _, src := range n.inputs {
		n.in.add(src.pull())
	}
}
