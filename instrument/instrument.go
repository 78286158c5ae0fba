// Package instrument provides a demo client rewrite pass: it counts how
// often each instrumented block executes by routing it through a shared
// trampoline before falling through to the block's own body, the same shape
// of rewrite the core engine expects any client collaborator to produce
// (see binrewrite.SymbolicPair).
package instrument

import (
	"binrewrite"
)

// Config controls the instrumentation pass.
type Config struct {
	// Targets is the set of original block addresses to instrument. Blocks
	// not in this set are carried through unchanged as Unmodified pairs.
	Targets map[binrewrite.ConcreteAddress]bool

	// CounterAddr is the zero-page byte the shared trampoline increments on
	// every call.
	CounterAddr byte
}

// Result is the instrumentation pass's output: a SymbolicPair per input
// block plus the shared trampoline blob, ready for binrewrite.CompactLayout.
type Result struct {
	Pairs      []binrewrite.SymbolicPair
	Trampoline binrewrite.InjectedCodeRequest
}

// Instrument builds one SymbolicPair per block in blocks. For each block in
// cfg.Targets it prepends a call to the shared counting trampoline; every
// other block passes through untouched. Calls (JSR) to a block that is
// itself present in blocks are retargeted symbolically so relocation stays
// correct; conditional branches are never retargeted — the 6502 ISA binding
// has no symbolic branch primitive, only a symbolic unconditional jump/call,
// so a block whose own trailing branch targets another known block is left
// Unmodified rather than produce a stale displacement after relocation.
func Instrument(ctx *binrewrite.RewriterContext, blocks []binrewrite.ConcreteBlock, cfg Config) (*Result, error) {
	isa := ctx.ISA

	symbolOf := make(map[binrewrite.ConcreteAddress]binrewrite.SymbolicAddress, len(blocks))
	for _, b := range blocks {
		symbolOf[b.Address] = ctx.NewSymbols.New()
	}
	trampolineSym := ctx.NewSymbols.New()

	pairs := make([]binrewrite.SymbolicPair, 0, len(blocks))
	for _, block := range blocks {
		sym := symbolOf[block.Address]
		info := binrewrite.SymbolicInfo{Symbolic: sym, Original: block.Address}

		if !cfg.Targets[block.Address] {
			pairs = append(pairs, binrewrite.SymbolicPair{
				Original: block,
				New:      verbatim(info, block),
				Status:   binrewrite.Unmodified,
			})
			continue
		}

		newBlock, modified, err := instrumentBlock(ctx, isa, info, block, symbolOf, trampolineSym)
		if err != nil {
			return nil, err
		}
		status := binrewrite.Modified
		if !modified {
			status = binrewrite.Unmodified
			newBlock = verbatim(info, block)
		}
		pairs = append(pairs, binrewrite.SymbolicPair{Original: block, New: newBlock, Status: status})
	}

	trampoline := binrewrite.InjectedCodeRequest{
		Symbolic: trampolineSym,
		Bytes:    trampolineBytes(cfg.CounterAddr),
	}

	return &Result{Pairs: pairs, Trampoline: trampoline}, nil
}

// verbatim wraps a concrete block's instructions as pass-through tagged
// instructions with no symbolic target.
func verbatim(info binrewrite.SymbolicInfo, block binrewrite.ConcreteBlock) binrewrite.SymbolicBlock {
	insns := make([]binrewrite.TaggedInstruction, len(block.Instructions))
	for i, insn := range block.Instructions {
		insns[i] = binrewrite.TaggedInstruction{Bytes: append([]byte(nil), insn.Bytes...)}
	}
	return binrewrite.SymbolicBlock{Address: info, Instructions: insns}
}

// instrumentBlock prepends a call to the trampoline, then copies every
// instruction of block through, retargeting the trailing control transfer
// symbolically where it is safe to do so. modified reports whether the
// trampoline call was actually attached (false when the trailing branch
// could not be safely retargeted, in which case the caller keeps it
// Unmodified instead).
func instrumentBlock(
	ctx *binrewrite.RewriterContext,
	isa binrewrite.ISA,
	info binrewrite.SymbolicInfo,
	block binrewrite.ConcreteBlock,
	symbolOf map[binrewrite.ConcreteAddress]binrewrite.SymbolicAddress,
	trampolineSym binrewrite.SymbolicAddress,
) (binrewrite.SymbolicBlock, bool, error) {
	lastIdx := len(block.Instructions) - 1
	lastAddr := block.Address
	for i := 0; i < lastIdx; i++ {
		lastAddr = lastAddr.MustAdd(int64(isa.InstructionSize(block.Instructions[i])))
	}
	last := block.Instructions[lastIdx]

	jump, err := isa.JumpType(last, ctx.Memory, lastAddr)
	if err != nil {
		return binrewrite.SymbolicBlock{}, false, ctx.Fail(err)
	}

	if jump.Kind == binrewrite.RelativeJump {
		if _, known := symbolOf[jump.Target]; known {
			return binrewrite.SymbolicBlock{}, false, nil
		}
	}

	insns := make([]binrewrite.TaggedInstruction, 0, len(block.Instructions)+2)
	insns = append(insns, binrewrite.TaggedInstruction{
		Bytes:  append([]byte(nil), isa.MakeSymbolicCall(trampolineSym).Bytes...),
		Target: ptr(trampolineSym),
	})

	for i := 0; i < lastIdx; i++ {
		insns = append(insns, binrewrite.TaggedInstruction{Bytes: append([]byte(nil), block.Instructions[i].Bytes...)})
	}

	switch jump.Kind {
	case binrewrite.DirectCall:
		if sym, known := symbolOf[jump.Target]; known {
			insns = append(insns, isa.MakeSymbolicCall(sym))
		} else {
			insns = append(insns, binrewrite.TaggedInstruction{Bytes: append([]byte(nil), last.Bytes...)})
		}
	case binrewrite.AbsoluteJump:
		if sym, known := symbolOf[jump.Target]; known {
			insns = append(insns, isa.MakeSymbolicJump(sym)...)
		} else {
			insns = append(insns, binrewrite.TaggedInstruction{Bytes: append([]byte(nil), last.Bytes...)})
		}
	default:
		insns = append(insns, binrewrite.TaggedInstruction{Bytes: append([]byte(nil), last.Bytes...)})
	}

	return binrewrite.SymbolicBlock{Address: info, Instructions: insns}, true, nil
}

func ptr(s binrewrite.SymbolicAddress) *binrewrite.SymbolicAddress { return &s }

func trampolineBytes(counterAddr byte) []byte {
	return []byte{0xE6, counterAddr, 0x60} // INC zp; RTS
}
