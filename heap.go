package binrewrite

import (
	"github.com/emirpasic/gods/v2/queues/priorityqueue"
)

// addressChunk is one entry in the address heap: a contiguous slack region
// of Size bytes starting at Addr.
type addressChunk struct {
	Size int
	Addr ConcreteAddress
}

// chunkPriority orders chunks with the largest size first; ties are broken
// by ascending address, giving the heap's "arbitrary but deterministic" tie
// rule a concrete, reproducible meaning.
func chunkPriority(a, b addressChunk) int {
	if a.Size != b.Size {
		return b.Size - a.Size
	}
	if a.Addr < b.Addr {
		return -1
	}
	if a.Addr > b.Addr {
		return 1
	}
	return 0
}

// AddressHeap is a max-priority queue of slack regions, keyed by chunk
// size.
type AddressHeap struct {
	q *priorityqueue.Queue[addressChunk]
}

// NewAddressHeap returns an empty heap.
func NewAddressHeap() *AddressHeap {
	return &AddressHeap{q: priorityqueue.NewWith(chunkPriority)}
}

// Push inserts a slack chunk. Zero- or negative-size chunks are dropped
// silently, since a chunk can never be allocated from.
func (h *AddressHeap) Push(size int, addr ConcreteAddress) {
	if size <= 0 {
		return
	}
	h.q.Enqueue(addressChunk{Size: size, Addr: addr})
}

// Peek returns the largest chunk without removing it.
func (h *AddressHeap) Peek() (addressChunk, bool) { return h.q.Peek() }

// Pop removes and returns the largest chunk.
func (h *AddressHeap) Pop() (addressChunk, bool) { return h.q.Dequeue() }

// Empty reports whether the heap holds no chunks.
func (h *AddressHeap) Empty() bool { return h.q.Empty() }

// Size reports the number of chunks currently held.
func (h *AddressHeap) Size() int { return h.q.Size() }

// DrainAll removes and returns every remaining chunk, largest first. Used
// at the end of layout to materialize padding for unused slack.
func (h *AddressHeap) DrainAll() []addressChunk {
	out := make([]addressChunk, 0, h.q.Size())
	for {
		c, ok := h.q.Dequeue()
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out
}

// InjectedBlobRequest is one client-supplied code blob to be placed by the
// allocator, keyed by the symbolic address the client will reference it by.
type InjectedBlobRequest struct {
	Symbolic SymbolicAddress
	Bytes    []byte
}

// Allocator assigns concrete addresses to symbolic blocks and injected
// blobs, reusing heap slack before advancing a fresh cursor.
type Allocator struct {
	Cursor      ConcreteAddress
	Heap        *AddressHeap
	Assignments map[SymbolicAddress]ConcreteAddress
	ReusedBytes int
}

// NewAllocator builds an allocator starting its fresh region at start.
func NewAllocator(start ConcreteAddress, heap *AddressHeap) *Allocator {
	return &Allocator{Cursor: start, Heap: heap, Assignments: make(map[SymbolicAddress]ConcreteAddress)}
}

// allocateBase picks a base address for a run of size S bytes, consuming
// heap slack first and falling back to the fresh cursor. A chunk is popped
// entirely; any leftover bytes are pushed back as a new, smaller chunk —
// unless the leftover is exactly zero, in which case nothing is
// re-inserted (pinned by the spec's open question on this exact case).
func (a *Allocator) allocateBase(size int) ConcreteAddress {
	if chunk, ok := a.Heap.Peek(); ok && chunk.Size >= size {
		a.Heap.Pop()
		a.ReusedBytes += size
		if remaining := chunk.Size - size; remaining > 0 {
			a.Heap.Push(remaining, chunk.Addr.MustAdd(int64(size)))
		}
		return chunk.Addr
	}
	base := a.Cursor
	a.Cursor = a.Cursor.MustAdd(int64(size))
	return base
}

// allocateBaseFresh always advances the cursor, ignoring heap slack. Used
// by the Parallel strategy, which places everything in the fresh region.
func (a *Allocator) allocateBaseFresh(size int) ConcreteAddress {
	base := a.Cursor
	a.Cursor = a.Cursor.MustAdd(int64(size))
	return base
}

// AllocateGroup assigns addresses to every block in group, which must be
// placed contiguously. Constituent block addresses are a prefix sum of
// sizes starting from the group's base.
func (a *Allocator) AllocateGroup(isa ISA, group []SymbolicBlock, useHeap bool) {
	sizes := make([]int, len(group))
	total := 0
	for i, b := range group {
		sizes[i] = SymbolicBlockSize(isa, b)
		total += sizes[i]
	}

	var base ConcreteAddress
	if useHeap {
		base = a.allocateBase(total)
	} else {
		base = a.allocateBaseFresh(total)
	}

	offset := 0
	for i, b := range group {
		a.Assignments[b.Address.Symbolic] = base.MustAdd(int64(offset))
		offset += sizes[i]
	}
}

// AllocateInjected assigns addresses to injected code blobs, in a separate
// pass after all blocks, keyed by symbolic address and sized by blob
// length.
func (a *Allocator) AllocateInjected(blobs []InjectedBlobRequest, useHeap bool) {
	for _, blob := range blobs {
		size := len(blob.Bytes)
		var addr ConcreteAddress
		if useHeap {
			addr = a.allocateBase(size)
		} else {
			addr = a.allocateBaseFresh(size)
		}
		a.Assignments[blob.Symbolic] = addr
	}
}
