package binrewrite

// ReifyFallthroughs appends an explicit unconditional jump to every
// relocated block that would otherwise rely on implicit "falls into the
// next address" semantics. The allocator is about to relocate blocks
// arbitrarily, so this must happen before layout.
//
// must is the same must-relocate membership loop clustering computes
// (ExpandMustRelocate, or its Modified-only fallback when loops are
// ignored): a block only needs this treatment if it is actually going to
// move. Status == Modified is not the right test here — loop clustering
// can drag an Unmodified sibling's own address along with a Modified
// group member, and that sibling may end a block with no terminating
// jump at all (it simply fell into whatever address came next in the
// original image), which is exactly as stale once relocated as a
// conditional branch's raw displacement.
//
// Program order is defined as the iteration order of pairs itself: the
// caller (discovery, or whatever produced the SymbolicPair slice) is
// responsible for supplying blocks in original-address order. This mirrors
// the teacher's own two-pass structure in disassemble.go: a first pass
// builds an index (there, branch targets; here, successor addresses), a
// second pass consumes it.
func ReifyFallthroughs(ctx *RewriterContext, pairs []SymbolicPair, must map[ConcreteAddress]bool) ([]SymbolicPair, error) {
	successor := make(map[SymbolicAddress]SymbolicAddress, len(pairs))
	for i := 0; i+1 < len(pairs); i++ {
		successor[pairs[i].New.Address.Symbolic] = pairs[i+1].New.Address.Symbolic
	}

	out := make([]SymbolicPair, len(pairs))
	copy(out, pairs)

	for i := range out {
		pair := &out[i]
		if !must[pair.Original.Address] {
			continue
		}
		if len(pair.New.Instructions) == 0 {
			continue
		}

		last := pair.New.Instructions[len(pair.New.Instructions)-1]
		kind, cond := ctx.ISA.TaggedJumpKind(last)
		if kind != NoJump && cond == Unconditional {
			continue
		}

		target, ok := successor[pair.New.Address.Symbolic]
		if !ok {
			return nil, ctx.Fail(&MissingSuccessorError{Addr: pair.New.Address.Symbolic})
		}

		jump := ctx.ISA.MakeSymbolicJump(target)
		extended := make([]TaggedInstruction, 0, len(pair.New.Instructions)+len(jump))
		extended = append(extended, pair.New.Instructions...)
		extended = append(extended, jump...)
		pair.New.Instructions = extended
	}

	return out, nil
}
