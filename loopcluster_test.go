package binrewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCFG struct {
	blocks     []ConcreteAddress
	successors map[ConcreteAddress][]ConcreteAddress
}

func (f *fakeCFG) Blocks() []ConcreteAddress { return f.blocks }
func (f *fakeCFG) Successors(addr ConcreteAddress) []ConcreteAddress {
	return f.successors[addr]
}

func TestClusterLoopsFindsSimpleLoop(t *testing.T) {
	// 0x100 -> 0x110 -> 0x120 -> 0x110 (loop between 0x110 and 0x120), 0x100 is not part of the loop.
	cfg := &fakeCFG{
		blocks: []ConcreteAddress{0x100, 0x110, 0x120},
		successors: map[ConcreteAddress][]ConcreteAddress{
			0x100: {0x110},
			0x110: {0x120},
			0x120: {0x110},
		},
	}
	classOf, err := ClusterLoops(map[ConcreteAddress]CFGProvider{
		0x100: func() (SCFG, error) { return cfg, nil },
	})
	require.NoError(t, err)

	assert.Equal(t, classOf[0x110], classOf[0x120], "loop members should share a class")
	assert.NotEqual(t, classOf[0x100], classOf[0x110], "non-loop block should not join the loop's class")
}

func TestClusterLoopsFindsSelfLoop(t *testing.T) {
	cfg := &fakeCFG{
		blocks: []ConcreteAddress{0x200},
		successors: map[ConcreteAddress][]ConcreteAddress{
			0x200: {0x200},
		},
	}
	classOf, err := ClusterLoops(map[ConcreteAddress]CFGProvider{
		0x200: func() (SCFG, error) { return cfg, nil },
	})
	require.NoError(t, err)
	_, ok := classOf[0x200]
	assert.True(t, ok, "a self-loop should still get a class")
}

func TestExpandMustRelocatePullsInUnmodifiedSiblings(t *testing.T) {
	classOf := map[ConcreteAddress]ConcreteAddress{0x110: 0x110, 0x120: 0x110}
	pairs := []SymbolicPair{
		{Original: ConcreteBlock{Address: 0x110}, Status: Modified},
		{Original: ConcreteBlock{Address: 0x120}, Status: Unmodified},
		{Original: ConcreteBlock{Address: 0x130}, Status: Unmodified},
	}
	must := ExpandMustRelocate(classOf, pairs)
	assert.True(t, must[0x110])
	assert.True(t, must[0x120], "unmodified loop sibling must be pulled in")
	assert.False(t, must[0x130], "unrelated unmodified block must stay put")
}

func TestGroupByLoopClassOrdersWithinGroup(t *testing.T) {
	classOf := map[ConcreteAddress]ConcreteAddress{0x120: 0x110, 0x110: 0x110}
	must := map[ConcreteAddress]bool{0x110: true, 0x120: true}
	pairs := []SymbolicPair{
		{Original: ConcreteBlock{Address: 0x120}, Status: Unmodified},
		{Original: ConcreteBlock{Address: 0x110}, Status: Modified},
	}
	groups := GroupByLoopClass(classOf, must, pairs)
	require.Len(t, groups, 1)
	require.Len(t, groups[0], 2)
	assert.Equal(t, ConcreteAddress(0x110), groups[0][0].Original.Address)
	assert.Equal(t, ConcreteAddress(0x120), groups[0][1].Original.Address)
}
