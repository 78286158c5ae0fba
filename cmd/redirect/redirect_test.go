package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binrewrite"
)

func TestParseTargetsDefaultsToAllBlocks(t *testing.T) {
	blocks := []binrewrite.ConcreteBlock{
		{Address: 0x100, Instructions: []binrewrite.Instruction{{Bytes: []byte{0xEA}}}},
		{Address: 0x200, Instructions: []binrewrite.Instruction{{Bytes: []byte{0xEA}}}},
	}
	targets, err := parseTargets("", blocks)
	require.NoError(t, err)
	assert.True(t, targets[0x100])
	assert.True(t, targets[0x200])
}

func TestParseTargetsParsesExplicitList(t *testing.T) {
	targets, err := parseTargets("0x100, 0x200", nil)
	require.NoError(t, err)
	assert.Len(t, targets, 2)
	assert.True(t, targets[0x100])
	assert.True(t, targets[0x200])
}

func TestParseTargetsRejectsGarbage(t *testing.T) {
	_, err := parseTargets("not-an-address", nil)
	assert.Error(t, err)
}

func TestParseStrategyBuildsEachKind(t *testing.T) {
	s, err := parseStrategy("parallel", "", false)
	require.NoError(t, err)
	assert.Equal(t, binrewrite.ParallelStrategy, s.Kind)

	s, err = parseStrategy("compact-sorted", "", true)
	require.NoError(t, err)
	assert.Equal(t, binrewrite.CompactStrategyKind, s.Kind)
	assert.Equal(t, binrewrite.SortedOrder, s.Order)
	assert.Equal(t, binrewrite.KeepLoopBlocksTogether, s.Loop)

	s, err = parseStrategy("compact-random", "1,2,3", false)
	require.NoError(t, err)
	assert.Equal(t, binrewrite.RandomOrder, s.Order)
	assert.Equal(t, []uint32{1, 2, 3}, s.Seed)
}

func TestParseStrategyRejectsUnknownName(t *testing.T) {
	_, err := parseStrategy("bogus", "", false)
	assert.Error(t, err)
}

func TestParseSeedDefaultsWhenEmpty(t *testing.T) {
	seed, err := parseSeed("")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, seed)
}

func TestParseSeedParsesWords(t *testing.T) {
	seed, err := parseSeed("10, 20,30")
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 20, 30}, seed)
}
