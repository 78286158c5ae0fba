package binrewrite

import "github.com/pkg/errors"

// Instruction is a concrete, untagged instruction: final encoded bytes with
// no annotation. Used by ConcreteBlock.
type Instruction struct {
	Bytes []byte
}

// TaggedInstruction is a symbolic instruction: its encoding may be a
// placeholder until concretize binds its Target, but its size is stable
// from the moment it is created (the ISA provider's contract).
type TaggedInstruction struct {
	Bytes  []byte
	Target *SymbolicAddress // nil when the instruction carries no symbolic jump target
}

// BasicBlock is an ordered, non-empty instruction sequence starting at
// Address.
type BasicBlock[Addr any, Insn any] struct {
	Address      Addr
	Instructions []Insn
}

// NewBasicBlock constructs a BasicBlock, rejecting an empty instruction
// list per the block-model invariant that a block is never empty.
func NewBasicBlock[Addr any, Insn any](address Addr, instructions []Insn) (BasicBlock[Addr, Insn], error) {
	if len(instructions) == 0 {
		return BasicBlock[Addr, Insn]{}, errors.New("basic block must have at least one instruction")
	}
	return BasicBlock[Addr, Insn]{Address: address, Instructions: instructions}, nil
}

// ConcreteBlock is a basic block whose address is a real machine address
// and whose instructions are already fully encoded.
type ConcreteBlock = BasicBlock[ConcreteAddress, Instruction]

// SymbolicBlock is a basic block whose jump targets are symbolic and whose
// own final address is not yet known.
type SymbolicBlock = BasicBlock[SymbolicInfo, TaggedInstruction]

// ConcreteBlockSize sums instruction sizes via the ISA's own accounting,
// per spec: size is never assumed from raw byte length alone.
func ConcreteBlockSize(isa ISA, b ConcreteBlock) int {
	n := 0
	for _, insn := range b.Instructions {
		n += isa.InstructionSize(insn)
	}
	return n
}

// ConcreteBlockEnd returns the address one past the block's last byte.
func ConcreteBlockEnd(isa ISA, b ConcreteBlock) ConcreteAddress {
	return b.Address.MustAdd(int64(ConcreteBlockSize(isa, b)))
}

// SymbolicBlockSize sums tagged-instruction sizes via the ISA's accounting.
func SymbolicBlockSize(isa ISA, b SymbolicBlock) int {
	n := 0
	for _, insn := range b.Instructions {
		n += isa.TaggedInstructionSize(insn)
	}
	return n
}

// Status marks whether a LayoutPair's new block differs from its original.
type Status int

const (
	Unmodified Status = iota
	Modified
)

func (s Status) String() string {
	if s == Modified {
		return "Modified"
	}
	return "Unmodified"
}

// LayoutPair is the fundamental unit processed by the engine: an original
// block and its (possibly identical) replacement.
type LayoutPair[New any] struct {
	Original ConcreteBlock
	New      New
	Status   Status
}

// SymbolicPair is what the client rewrite (and the fallthrough reifier)
// produce: an original block paired with its symbolic replacement.
type SymbolicPair = LayoutPair[SymbolicBlock]

// AddressAssignedBlock is a SymbolicBlock paired with the ConcreteAddress
// the allocator assigned it.
type AddressAssignedBlock struct {
	Block    SymbolicBlock
	Assigned ConcreteAddress
}

// AddressAssignedPair is what the layout driver produces: every
// SymbolicPair with its replacement's final address resolved.
type AddressAssignedPair = LayoutPair[AddressAssignedBlock]

// ConcretePair is the fully materialized form: every tagged instruction has
// been concretized against the final address assignments.
type ConcretePair = LayoutPair[ConcreteBlock]

// InjectedBlock is a client-supplied code blob placed by the allocator.
type InjectedBlock struct {
	Symbolic SymbolicAddress
	Assigned ConcreteAddress
	Bytes    []byte
}

// Layout is the engine's final output.
type Layout struct {
	ProgramBlockLayout  []AddressAssignedPair
	LayoutPaddingBlocks []ConcreteBlock
	InjectedBlockLayout []InjectedBlock
}
