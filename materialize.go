package binrewrite

// resolvedAddresses builds the symbolic->concrete lookup Concretize needs,
// from every block and injected blob a Layout placed.
func resolvedAddresses(layout *Layout) map[SymbolicAddress]ConcreteAddress {
	out := make(map[SymbolicAddress]ConcreteAddress, len(layout.ProgramBlockLayout)+len(layout.InjectedBlockLayout))
	for _, pair := range layout.ProgramBlockLayout {
		out[pair.New.Block.Address.Symbolic] = pair.New.Assigned
	}
	for _, blob := range layout.InjectedBlockLayout {
		out[blob.Symbolic] = blob.Assigned
	}
	return out
}

// relocatedAddresses maps every original block address to where the layout
// actually placed it, covering blocks a client never modified: loop
// clustering can drag an Unmodified sibling along with a Modified group
// member (see ExpandMustRelocate), and that sibling's own terminator still
// needs retargeting even though nothing tagged it with a symbolic target.
func relocatedAddresses(layout *Layout) map[ConcreteAddress]ConcreteAddress {
	out := make(map[ConcreteAddress]ConcreteAddress, len(layout.ProgramBlockLayout))
	for _, pair := range layout.ProgramBlockLayout {
		out[pair.Original.Address] = pair.New.Assigned
	}
	return out
}

// Materialize concretizes every relocated block's instructions, binding
// symbolic jump targets to their final addresses. It is the last step before
// an image writer can emit real bytes.
func Materialize(ctx *RewriterContext, layout *Layout) ([]ConcretePair, error) {
	resolved := resolvedAddresses(layout)
	relocated := relocatedAddresses(layout)

	out := make([]ConcretePair, len(layout.ProgramBlockLayout))
	for i, pair := range layout.ProgramBlockLayout {
		addr := pair.New.Assigned
		origAddr := pair.Original.Address
		origIdx := 0

		insns := make([]Instruction, 0, len(pair.New.Block.Instructions))
		for _, tagged := range pair.New.Block.Instructions {
			var target ConcreteAddress
			if tagged.Target != nil {
				t, ok := resolved[*tagged.Target]
				if !ok {
					return nil, ctx.Fail(&UnassignedSymbolicBlockError{Addr: *tagged.Target})
				}
				target = t
			}
			insn, err := ctx.ISA.Concretize(ctx.Memory, addr, tagged, target)
			if err != nil {
				return nil, ctx.Fail(err)
			}

			// tagged.Target == nil means this instruction's bytes are a
			// verbatim copy of the next not-yet-consumed original
			// instruction (both the plain pass-through pairs loop
			// clustering relocates untouched, and the untouched middle/tail
			// instructions a client's Modified rewrite carried through) —
			// every tagged instruction with a Target consumes no original
			// instruction, since it is new. Retarget it against the
			// original instruction's own pre-relocation address, which may
			// no longer match where this instruction now lives or where
			// its raw operand still points.
			if tagged.Target == nil && origIdx < len(pair.Original.Instructions) {
				orig := pair.Original.Instructions[origIdx]
				retargeted, err := retargetRelocatedJump(ctx, insn, origAddr, addr, relocated)
				if err != nil {
					return nil, ctx.Fail(err)
				}
				insn = retargeted
				origAddr = origAddr.MustAdd(int64(ctx.ISA.InstructionSize(orig)))
				origIdx++
			}

			insns = append(insns, insn)
			addr = addr.MustAdd(int64(ctx.ISA.InstructionSize(insn)))
		}

		block, err := NewBasicBlock(pair.New.Assigned, insns)
		if err != nil {
			return nil, ctx.Fail(err)
		}
		out[i] = ConcretePair{Original: pair.Original, Status: pair.Status, New: block}
	}
	return out, nil
}

// retargetRelocatedJump rewrites insn's embedded jump operand when either
// its own address moved or its target block moved. origAddr is the
// instruction's address before any relocation (needed to decode a
// PC-relative encoding correctly); newAddr is where it now lives. relocated
// maps original block addresses to their final assigned address.
//
// A direct/absolute jump's operand is a literal target address, so it only
// needs rewriting when the target itself moved. A relative branch's encoded
// displacement additionally depends on the branch instruction's own
// address, so it must be recomputed whenever that address changed too, even
// if the target stayed put — otherwise a loop back-edge dragged to a new
// location by KeepLoopBlocksTogether decodes to the wrong place at runtime.
func retargetRelocatedJump(ctx *RewriterContext, insn Instruction, origAddr, newAddr ConcreteAddress, relocated map[ConcreteAddress]ConcreteAddress) (Instruction, error) {
	info, err := ctx.ISA.JumpType(insn, ctx.Memory, origAddr)
	if err != nil {
		return Instruction{}, err
	}

	newTarget, moved := relocated[info.Target]
	switch info.Kind {
	case RelativeJump:
		if !moved {
			newTarget = info.Target
		}
		if newTarget == info.Target && origAddr == newAddr {
			return insn, nil
		}
	case AbsoluteJump, DirectCall:
		if !moved {
			return insn, nil
		}
	default:
		return insn, nil
	}

	out, ok := ctx.ISA.ModifyJumpTarget(insn, newAddr, newTarget)
	if !ok {
		ctx.Tell(&UnrelocatableTerminatorError{InsnAddr: newAddr, OldTarget: info.Target, NewTarget: newTarget})
		return insn, nil
	}
	return out, nil
}

// MaterializeInjected concretizes every injected code blob's bytes as a
// plain ConcreteBlock at its assigned address, for callers that already
// produced final encoded bytes (instrument's demo pass never emits
// symbolic jumps inside an injected blob, so no resolution is needed here).
func MaterializeInjected(layout *Layout) []ConcreteBlock {
	out := make([]ConcreteBlock, 0, len(layout.InjectedBlockLayout))
	for _, blob := range layout.InjectedBlockLayout {
		out = append(out, ConcreteBlock{
			Address:      blob.Assigned,
			Instructions: []Instruction{{Bytes: blob.Bytes}},
		})
	}
	return out
}
