package binrewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterializeResolvesSymbolicJumpTarget(t *testing.T) {
	ctx := NewRewriterContext(stubISA{}, ByteMemory(nil), nil)

	target := SymbolicAddress(2)
	srcBlock := mustSymbolicBlock(t, 1, 0x100, []byte{0xE8})
	dstBlock := mustSymbolicBlock(t, 2, 0x200, []byte{0xEA})

	origSrc := mustBlock(t, 0x100, []byte{0xE8})
	origDst := mustBlock(t, 0x200, []byte{0xEA})

	layout := &Layout{
		ProgramBlockLayout: []AddressAssignedPair{
			{
				Original: origSrc,
				Status:   Modified,
				New: AddressAssignedBlock{
					Block: SymbolicBlock{
						Address:      srcBlock.Address,
						Instructions: []TaggedInstruction{{Bytes: []byte{0x4C, 0, 0}, Target: &target}},
					},
					Assigned: 0x5000,
				},
			},
			{
				Original: origDst,
				Status:   Unmodified,
				New:      AddressAssignedBlock{Block: dstBlock, Assigned: 0x6000},
			},
		},
	}

	out, err := Materialize(ctx, layout)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, ConcreteAddress(0x5000), out[0].New.Address)
	assert.Equal(t, []byte{0x4C, 0, 0}, out[0].New.Instructions[0].Bytes)
}

func TestMaterializeFailsOnUnresolvedTarget(t *testing.T) {
	ctx := NewRewriterContext(stubISA{}, ByteMemory(nil), nil)

	missing := SymbolicAddress(99)
	origSrc := mustBlock(t, 0x100, []byte{0xE8})

	layout := &Layout{
		ProgramBlockLayout: []AddressAssignedPair{
			{
				Original: origSrc,
				Status:   Modified,
				New: AddressAssignedBlock{
					Block: SymbolicBlock{
						Address:      SymbolicInfo{Symbolic: 1, Original: 0x100},
						Instructions: []TaggedInstruction{{Bytes: []byte{0x4C, 0, 0}, Target: &missing}},
					},
					Assigned: 0x5000,
				},
			},
		},
	}

	_, err := Materialize(ctx, layout)
	require.Error(t, err)
	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
}

// branchISA is a second, richer ISA stub used only in this file: stubISA's
// JumpType/ModifyJumpTarget are both no-ops, which can't exercise real
// PC-relative retargeting. branchISA recognizes a 2-byte relative branch
// (0xF0 + signed offset, the shape a 6502 BEQ takes) and a 3-byte absolute
// jump (0x4C + little-endian target), enough to prove Materialize recomputes
// a relocated block's own jump/branch operand rather than copying it
// through unchanged.
type branchISA struct{}

func (branchISA) InstructionSize(i Instruction) int            { return len(i.Bytes) }
func (branchISA) TaggedInstructionSize(i TaggedInstruction) int { return len(i.Bytes) }

func (branchISA) JumpType(i Instruction, mem Memory, addrOfInsn ConcreteAddress) (JumpInfo, error) {
	switch {
	case len(i.Bytes) == 2 && i.Bytes[0] == 0xF0:
		off := int(int8(i.Bytes[1]))
		return JumpInfo{Kind: RelativeJump, Cond: Conditional, Target: addrOfInsn.MustAdd(2 + int64(off)), Offset: int64(off)}, nil
	case len(i.Bytes) == 3 && i.Bytes[0] == 0x4C:
		target := ConcreteAddress(uint64(i.Bytes[2])<<8 | uint64(i.Bytes[1]))
		return JumpInfo{Kind: AbsoluteJump, Cond: Unconditional, Target: target}, nil
	default:
		return JumpInfo{Kind: NoJump}, nil
	}
}

func (branchISA) TaggedJumpKind(TaggedInstruction) (JumpKind, Conditionality) {
	return NoJump, Unconditional
}

func (branchISA) MakeRelativeJumpTo(from, to ConcreteAddress) ([]Instruction, error) {
	return []Instruction{{Bytes: []byte{0x4C, byte(to), byte(to >> 8)}}}, nil
}

func (branchISA) ModifyJumpTarget(i Instruction, from, to ConcreteAddress) (Instruction, bool) {
	switch {
	case len(i.Bytes) == 2 && i.Bytes[0] == 0xF0:
		off := to.Sub(from) - 2
		if off < -128 || off > 127 {
			return Instruction{}, false
		}
		return Instruction{Bytes: []byte{0xF0, byte(int8(off))}}, true
	case len(i.Bytes) == 3 && i.Bytes[0] == 0x4C:
		return Instruction{Bytes: []byte{0x4C, byte(to), byte(to >> 8)}}, true
	default:
		return Instruction{}, false
	}
}

func (branchISA) MakePadding(n int) []Instruction {
	out := make([]Instruction, n)
	for i := range out {
		out[i] = Instruction{Bytes: []byte{0xEA}}
	}
	return out
}

func (branchISA) MakeSymbolicJump(target SymbolicAddress) []TaggedInstruction {
	t := target
	return []TaggedInstruction{{Bytes: []byte{0x4C, 0, 0}, Target: &t}}
}

func (branchISA) MakeSymbolicCall(target SymbolicAddress) TaggedInstruction {
	t := target
	return TaggedInstruction{Bytes: []byte{0x20, 0, 0}, Target: &t}
}

func (branchISA) Concretize(mem Memory, addrOfInsn ConcreteAddress, insn TaggedInstruction, resolved ConcreteAddress) (Instruction, error) {
	if insn.Target == nil {
		return Instruction{Bytes: append([]byte(nil), insn.Bytes...)}, nil
	}
	return Instruction{Bytes: []byte{0x4C, byte(resolved), byte(resolved >> 8)}}, nil
}

// TestMaterializeRetargetsRelocatedBranch covers the loop-clustering scenario
// where a block is dragged to a new address without being tagged (its
// instructions are verbatim, untouched bytes): its own trailing branch still
// encodes a PC-relative displacement computed against its *original*
// address and target, so Materialize must recompute it rather than copy it
// through, or the relocated block jumps to the wrong place at runtime.
func TestMaterializeRetargetsRelocatedBranch(t *testing.T) {
	ctx := NewRewriterContext(branchISA{}, ByteMemory(nil), nil)

	origB1 := mustBlock(t, 0x100, []byte{0xEA})
	origB2 := mustBlock(t, 0x110, []byte{0xF0, 0xEE}) // BEQ back to 0x100 (offset -18)

	layout := &Layout{
		ProgramBlockLayout: []AddressAssignedPair{
			{
				Original: origB1,
				Status:   Unmodified,
				New:      AddressAssignedBlock{Block: mustSymbolicBlock(t, 1, 0x100, []byte{0xEA}), Assigned: 0x5000},
			},
			{
				Original: origB2,
				Status:   Unmodified,
				New:      AddressAssignedBlock{Block: mustSymbolicBlock(t, 2, 0x110, []byte{0xF0, 0xEE}), Assigned: 0x5003},
			},
		},
	}

	out, err := Materialize(ctx, layout)
	require.NoError(t, err)
	require.Len(t, out, 2)

	b2 := out[1].New
	require.Len(t, b2.Instructions, 1)
	assert.Equal(t, []byte{0xF0, 0xFB}, b2.Instructions[0].Bytes) // -5: 0x5000 - (0x5003+2)
}

// TestMaterializeFlagsUnrelocatableTerminator covers a relocated branch whose
// new displacement no longer fits a signed byte: Materialize must not abort
// the run, but must count the diagnostic and leave the stale bytes in place.
func TestMaterializeFlagsUnrelocatableTerminator(t *testing.T) {
	ctx := NewRewriterContext(branchISA{}, ByteMemory(nil), nil)

	origB1 := mustBlock(t, 0x100, []byte{0xEA})
	origB2 := mustBlock(t, 0x110, []byte{0xF0, 0xEE}) // BEQ back to 0x100 (offset -18)

	layout := &Layout{
		ProgramBlockLayout: []AddressAssignedPair{
			{
				Original: origB1,
				Status:   Unmodified,
				New:      AddressAssignedBlock{Block: mustSymbolicBlock(t, 1, 0x100, []byte{0xEA}), Assigned: 0x9000},
			},
			{
				Original: origB2,
				Status:   Unmodified,
				New:      AddressAssignedBlock{Block: mustSymbolicBlock(t, 2, 0x110, []byte{0xF0, 0xEE}), Assigned: 0x5003},
			},
		},
	}

	out, err := Materialize(ctx, layout)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, []byte{0xF0, 0xEE}, out[1].New.Instructions[0].Bytes)
	assert.Equal(t, 1, ctx.UnrelocatableTermCount)
}

func TestMaterializeInjectedWrapsBytesAsBlocks(t *testing.T) {
	layout := &Layout{
		InjectedBlockLayout: []InjectedBlock{
			{Symbolic: 7, Assigned: 0x7000, Bytes: []byte{0xE6, 0x80, 0x60}},
		},
	}
	blocks := MaterializeInjected(layout)
	require.Len(t, blocks, 1)
	assert.Equal(t, ConcreteAddress(0x7000), blocks[0].Address)
	assert.Equal(t, []byte{0xE6, 0x80, 0x60}, blocks[0].Instructions[0].Bytes)
}
