package binrewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBasicBlockRejectsEmpty(t *testing.T) {
	_, err := NewBasicBlock(ConcreteAddress(0), []Instruction(nil))
	require.Error(t, err)
}

func TestNewBasicBlockAccepts(t *testing.T) {
	b, err := NewBasicBlock(ConcreteAddress(0x10), []Instruction{{Bytes: []byte{0xEA}}})
	require.NoError(t, err)
	assert.Equal(t, ConcreteAddress(0x10), b.Address)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "Modified", Modified.String())
	assert.Equal(t, "Unmodified", Unmodified.String())
}

func TestConcreteBlockSizeAndEnd(t *testing.T) {
	b, err := NewBasicBlock(ConcreteAddress(0x1000), []Instruction{
		{Bytes: []byte{0x01, 0x02}},
		{Bytes: []byte{0x03}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, ConcreteBlockSize(stubISA{}, b))
	assert.Equal(t, ConcreteAddress(0x1003), ConcreteBlockEnd(stubISA{}, b))
}

// stubISA is a minimal ISA used only to exercise block-size accounting in
// this file's tests.
type stubISA struct{}

func (stubISA) InstructionSize(i Instruction) int             { return len(i.Bytes) }
func (stubISA) TaggedInstructionSize(i TaggedInstruction) int  { return len(i.Bytes) }
func (stubISA) JumpType(Instruction, Memory, ConcreteAddress) (JumpInfo, error) {
	return JumpInfo{}, nil
}
func (stubISA) TaggedJumpKind(TaggedInstruction) (JumpKind, Conditionality) {
	return NoJump, Unconditional
}
func (stubISA) MakeRelativeJumpTo(from, to ConcreteAddress) ([]Instruction, error) {
	return []Instruction{{Bytes: []byte{0x4C, 0x00, 0x00}}}, nil
}
func (stubISA) ModifyJumpTarget(i Instruction, from, to ConcreteAddress) (Instruction, bool) {
	return i, false
}
func (stubISA) MakePadding(n int) []Instruction {
	out := make([]Instruction, n)
	for i := range out {
		out[i] = Instruction{Bytes: []byte{0xEA}}
	}
	return out
}
func (stubISA) MakeSymbolicJump(target SymbolicAddress) []TaggedInstruction {
	t := target
	return []TaggedInstruction{{Bytes: []byte{0x4C, 0, 0}, Target: &t}}
}
func (stubISA) MakeSymbolicCall(target SymbolicAddress) TaggedInstruction {
	t := target
	return TaggedInstruction{Bytes: []byte{0x20, 0, 0}, Target: &t}
}
func (stubISA) Concretize(mem Memory, addrOfInsn ConcreteAddress, insn TaggedInstruction, resolved ConcreteAddress) (Instruction, error) {
	return Instruction{Bytes: insn.Bytes}, nil
}
