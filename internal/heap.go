package internal

// PriorityHeap orders pending reruns by computation height so that a
// computation always reruns after the computations it depends on.
type PriorityHeap struct {
	min int
	max int

	nodes []*heapNode // [height]head

	lookup map[*Computation]*heapNode // for O(1) removal
}

type heapNode struct {
	node   *Computation
	height int

	next *heapNode
	prev *heapNode
}

func NewHeap() *PriorityHeap {
	return &PriorityHeap{
		min:    0,
		max:    -1,
		nodes:  make([]*heapNode, 64),
		lookup: make(map[*Computation]*heapNode),
	}
}

func (h *PriorityHeap) Len() int {
	return len(h.lookup)
}

func (h *PriorityHeap) Insert(node *Computation) {
	if node.HasFlag(FlagInHeap) {
		return
	}
	node.AddFlag(FlagInHeap)

	height := node.height
	for height >= len(h.nodes) {
		h.nodes = append(h.nodes, make([]*heapNode, len(h.nodes))...)
	}

	entry := &heapNode{node: node, height: height}
	h.lookup[node] = entry

	if h.nodes[height] == nil {
		h.nodes[height] = entry
		entry.prev = entry // loop to self
		entry.next = nil
	} else {
		head := h.nodes[height]
		tail := head.prev

		tail.next = entry
		entry.prev = tail
		entry.next = nil
		head.prev = entry
	}

	if h.max < 0 || height < h.min {
		h.min = height
	}
	if height > h.max {
		h.max = height
	}
}

func (h *PriorityHeap) Remove(node *Computation) {
	if !node.HasFlag(FlagInHeap) {
		return
	}
	node.RemoveFlag(FlagInHeap)

	entry, ok := h.lookup[node]
	if !ok {
		return
	}
	delete(h.lookup, node)

	height := entry.height

	// single node
	if entry.prev == entry {
		h.nodes[height] = nil
		entry.next = nil
		return
	}

	// multiple nodes
	head := h.nodes[height]
	if entry == head {
		h.nodes[height] = entry.next
	} else {
		entry.prev.next = entry.next
	}

	next := entry.next
	if next == nil {
		next = h.nodes[height]
	}
	next.prev = entry.prev

	entry.prev = entry
	entry.next = nil
}

// Pop removes and returns the lowest pending computation, or nil when empty.
func (h *PriorityHeap) Pop() *Computation {
	if len(h.lookup) == 0 {
		h.min, h.max = 0, -1
		return nil
	}

	for ; h.min <= h.max; h.min++ {
		if entry := h.nodes[h.min]; entry != nil {
			h.Remove(entry.node)
			return entry.node
		}
	}

	return nil
}

// Drain processes each entry in topological order with the `process` function leaving the heap empty.
// Entries inserted while draining are processed in the same pass.
func (h *PriorityHeap) Drain(process func(*Computation)) {
	for node := h.Pop(); node != nil; node = h.Pop() {
		process(node)
	}
}
