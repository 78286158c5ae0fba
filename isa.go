package binrewrite

// Conditionality distinguishes a jump that always transfers control from
// one that might not. Calls are treated as conditional for block-ending
// purposes: control returns to the instruction after the call.
type Conditionality int

const (
	Unconditional Conditionality = iota
	Conditional
)

// JumpKind enumerates the shapes of control transfer an instruction can
// represent.
type JumpKind int

const (
	NoJump JumpKind = iota
	RelativeJump
	AbsoluteJump
	IndirectJump
	DirectCall
	IndirectCall
	ReturnJump
)

// JumpInfo describes the control-transfer behavior of a single instruction.
type JumpInfo struct {
	Kind   JumpKind
	Cond   Conditionality
	Target ConcreteAddress // valid for RelativeJump, AbsoluteJump, DirectCall
	Offset int64           // valid for RelativeJump: the encoded signed displacement
}

// IsUnconditional reports whether this instruction always transfers
// control, i.e. no implicit fallthrough follows it.
func (j JumpInfo) IsUnconditional() bool {
	switch j.Kind {
	case ReturnJump, IndirectJump, AbsoluteJump, RelativeJump:
		return j.Cond == Unconditional
	default:
		return false
	}
}

// ISA is the narrow capability set the core consumes from an
// architecture-specific collaborator. Implementations must guarantee that
// InstructionSize/TaggedInstructionSize is stable for an instruction from
// the moment it is created until it is concretized.
type ISA interface {
	// InstructionSize returns the encoded size, in bytes, of a concrete
	// instruction.
	InstructionSize(i Instruction) int

	// TaggedInstructionSize returns the encoded size a tagged instruction
	// will have once concretized. Must never change for a given value.
	TaggedInstructionSize(i TaggedInstruction) int

	// JumpType classifies a concrete instruction's control-transfer
	// behavior. addrOfInsn is the instruction's own address, needed to
	// resolve PC-relative encodings.
	JumpType(i Instruction, mem Memory, addrOfInsn ConcreteAddress) (JumpInfo, error)

	// TaggedJumpKind classifies a tagged instruction's control-transfer
	// shape without resolving a concrete target (it may not have one yet).
	TaggedJumpKind(i TaggedInstruction) (kind JumpKind, cond Conditionality)

	// MakeRelativeJumpTo builds the instruction sequence used to redirect
	// an original block at from to its relocated copy at to. May fail, but
	// never silently truncates; callers must check the resulting size
	// against available slack themselves.
	MakeRelativeJumpTo(from, to ConcreteAddress) ([]Instruction, error)

	// ModifyJumpTarget retargets an existing jump without changing its
	// encoded size. Returns ok=false if retargeting to the requested
	// target is impossible (e.g. out of encodable range).
	ModifyJumpTarget(i Instruction, from, to ConcreteAddress) (out Instruction, ok bool)

	// MakePadding produces exactly nBytes of instructions that are never
	// executed on any control-flow path in a well-formed output.
	MakePadding(nBytes int) []Instruction

	// MakeSymbolicJump produces the tagged instruction(s) for an
	// unconditional jump to a not-yet-placed block.
	MakeSymbolicJump(target SymbolicAddress) []TaggedInstruction

	// MakeSymbolicCall produces the tagged instruction for a call to a
	// not-yet-placed block.
	MakeSymbolicCall(target SymbolicAddress) TaggedInstruction

	// Concretize binds a tagged instruction's symbolic target (resolved to
	// resolved, meaningful only when the instruction carries one) to
	// final encoded bytes. addrOfInsn is the instruction's own final
	// address, needed for PC-relative encodings.
	Concretize(mem Memory, addrOfInsn ConcreteAddress, insn TaggedInstruction, resolved ConcreteAddress) (Instruction, error)
}
