package binrewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressHeapOrdersBySizeThenAddress(t *testing.T) {
	h := NewAddressHeap()
	h.Push(4, ConcreteAddress(0x200))
	h.Push(4, ConcreteAddress(0x100))
	h.Push(10, ConcreteAddress(0x300))

	c, ok := h.Pop()
	require.True(t, ok)
	assert.Equal(t, 10, c.Size)

	c, ok = h.Pop()
	require.True(t, ok)
	assert.Equal(t, ConcreteAddress(0x100), c.Addr, "ties should break by ascending address")
}

func TestAddressHeapDropsNonPositiveChunks(t *testing.T) {
	h := NewAddressHeap()
	h.Push(0, ConcreteAddress(0x10))
	h.Push(-1, ConcreteAddress(0x20))
	assert.True(t, h.Empty())
}

func TestAllocatorReusesHeapSlackBeforeCursor(t *testing.T) {
	h := NewAddressHeap()
	h.Push(8, ConcreteAddress(0x50))
	a := NewAllocator(ConcreteAddress(0x1000), h)

	addr := a.allocateBase(5)
	assert.Equal(t, ConcreteAddress(0x50), addr)
	assert.Equal(t, 5, a.ReusedBytes)

	// Remainder (3 bytes) should have been pushed back.
	remaining, ok := h.Peek()
	require.True(t, ok)
	assert.Equal(t, 3, remaining.Size)
	assert.Equal(t, ConcreteAddress(0x55), remaining.Addr)
}

func TestAllocatorExactFitDoesNotReinsertZeroRemainder(t *testing.T) {
	h := NewAddressHeap()
	h.Push(5, ConcreteAddress(0x50))
	a := NewAllocator(ConcreteAddress(0x1000), h)

	a.allocateBase(5)
	assert.True(t, h.Empty(), "an exact-fit allocation must not reinsert a zero-size chunk")
}

func TestAllocatorFallsBackToCursorWhenNoSlackFits(t *testing.T) {
	h := NewAddressHeap()
	h.Push(2, ConcreteAddress(0x50))
	a := NewAllocator(ConcreteAddress(0x1000), h)

	addr := a.allocateBase(10)
	assert.Equal(t, ConcreteAddress(0x1000), addr)
	assert.Equal(t, ConcreteAddress(0x100A), a.Cursor)
}

func TestAllocateGroupPrefixSums(t *testing.T) {
	isa := stubISA{}
	a := NewAllocator(ConcreteAddress(0x2000), NewAddressHeap())

	b1, _ := NewBasicBlock(SymbolicInfo{Symbolic: 1}, []TaggedInstruction{{Bytes: []byte{0x01, 0x02}}})
	b2, _ := NewBasicBlock(SymbolicInfo{Symbolic: 2}, []TaggedInstruction{{Bytes: []byte{0x03}}})

	a.AllocateGroup(isa, []SymbolicBlock{b1, b2}, false)
	assert.Equal(t, ConcreteAddress(0x2000), a.Assignments[1])
	assert.Equal(t, ConcreteAddress(0x2002), a.Assignments[2])
}
