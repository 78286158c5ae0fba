package binrewrite

// RedirectedBlock is one patched original block: the bytes the redirector
// wrote over the start of a relocated block's original location.
type RedirectedBlock struct {
	Block ConcreteBlock
}

// Redirect patches every relocated original block with a jump to its new
// location, padding the remainder with the ISA's filler instructions.
//
// A pair counts as relocated when its assigned address differs from its
// original address — not merely when its Status is Modified. This is
// deliberate: a loop can pull an Unmodified sibling along with a Modified
// member (see GroupByLoopClass), and that sibling's original home still
// needs a jump stub pointing at its new one, even though the block's own
// bytes never changed. Status alone would miss this case; the literal spec
// text restricts Status == Modified to heap-building (CompactLayout), not to
// what the redirector patches.
func Redirect(ctx *RewriterContext, layout *Layout) ([]RedirectedBlock, error) {
	jmpSize, err := redirectJumpSize(ctx.ISA)
	if err != nil {
		return nil, ctx.Fail(err)
	}

	var out []RedirectedBlock
	for _, pair := range layout.ProgramBlockLayout {
		origAddr := pair.Original.Address
		newAddr := pair.New.Assigned
		if newAddr == origAddr {
			continue
		}

		origSize := ConcreteBlockSize(ctx.ISA, pair.Original)
		if origSize < jmpSize {
			ctx.Tell(&BlockTooSmallForRedirectionError{
				OrigSize:    origSize,
				JumpSize:    jmpSize,
				OrigAddr:    origAddr,
				Description: "original block left untouched, callers must still reach it directly",
			})
			continue
		}

		jumpInsns, err := ctx.ISA.MakeRelativeJumpTo(origAddr, newAddr)
		if err != nil {
			return nil, ctx.Fail(err)
		}

		insns := make([]Instruction, 0, len(jumpInsns))
		insns = append(insns, jumpInsns...)
		used := 0
		for _, insn := range jumpInsns {
			used += ctx.ISA.InstructionSize(insn)
		}
		if pad := origSize - used; pad > 0 {
			insns = append(insns, ctx.ISA.MakePadding(pad)...)
		}

		block, err := NewBasicBlock(origAddr, insns)
		if err != nil {
			return nil, ctx.Fail(err)
		}
		out = append(out, RedirectedBlock{Block: block})
		ctx.AddBlockMapping(origAddr, newAddr)
	}
	return out, nil
}
