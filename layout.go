package binrewrite

import (
	"golang.org/x/exp/slices"
)

// OrderKind selects how groups are ordered before allocation in the
// Compact strategy.
type OrderKind int

const (
	SortedOrder OrderKind = iota
	RandomOrder
)

// LoopPolicy selects whether loop-equivalent blocks must stay adjacent.
type LoopPolicy int

const (
	IgnoreLoops LoopPolicy = iota
	KeepLoopBlocksTogether
)

// StrategyKind is the top-level layout strategy tag.
type StrategyKind int

const (
	ParallelStrategy StrategyKind = iota
	CompactStrategyKind
)

// LayoutStrategy is a tagged variant over the three layout strategies the
// spec defines. Per the spec's design notes, the choice is pattern-matched
// once at the top of the layout driver rather than hidden behind
// polymorphic dispatch.
type LayoutStrategy struct {
	Kind  StrategyKind
	Order OrderKind // meaningful only when Kind == CompactStrategyKind
	Seed  []uint32  // meaningful only when Order == RandomOrder
	Loop  LoopPolicy
}

// Parallel builds the Parallel(loop) strategy.
func Parallel(loop LoopPolicy) LayoutStrategy {
	return LayoutStrategy{Kind: ParallelStrategy, Loop: loop}
}

// CompactSorted builds the Compact(SortedOrder, loop) strategy.
func CompactSorted(loop LoopPolicy) LayoutStrategy {
	return LayoutStrategy{Kind: CompactStrategyKind, Order: SortedOrder, Loop: loop}
}

// CompactRandom builds the Compact(RandomOrder(seed), loop) strategy.
func CompactRandom(seed []uint32, loop LoopPolicy) LayoutStrategy {
	return LayoutStrategy{Kind: CompactStrategyKind, Order: RandomOrder, Seed: seed, Loop: loop}
}

// loopStrategy is a simple accessor, per the spec's design note.
func (s LayoutStrategy) loopStrategy() LoopPolicy { return s.Loop }

// InjectedCodeRequest is one client-supplied code blob to place, addressed
// by the symbolic address the client will reference it by once placed.
type InjectedCodeRequest struct {
	Symbolic SymbolicAddress
	Bytes    []byte
}

// redirectJumpSize measures the size of the jump the redirector will use,
// by asking the ISA to build one between two placeholder addresses. For
// every ISA this repo ships, that size does not depend on the addresses
// involved.
func redirectJumpSize(isa ISA) (int, error) {
	insns, err := isa.MakeRelativeJumpTo(0, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, insn := range insns {
		n += isa.InstructionSize(insn)
	}
	return n, nil
}

// CompactLayout is the engine's single entry point. It reifies
// fallthroughs, optionally clusters loops, allocates addresses for every
// relocated block and injected blob, and returns the resulting Layout.
//
// incomplete is discovery's isIncompleteFunction membership test, realized
// as the set of original block addresses belonging to a function discovery
// could not fully resolve. The core refuses to rewrite them regardless of
// what Status a client proposed — see refuseIncompleteFunctions.
func CompactLayout(
	ctx *RewriterContext,
	startAddr ConcreteAddress,
	strategy LayoutStrategy,
	pairs []SymbolicPair,
	injected []InjectedCodeRequest,
	cfgs map[ConcreteAddress]CFGProvider,
	incomplete map[ConcreteAddress]bool,
) (*Layout, error) {
	pairs = refuseIncompleteFunctions(ctx, pairs, incomplete)

	var must map[ConcreteAddress]bool
	var classOf map[ConcreteAddress]ConcreteAddress
	var err error
	if strategy.loopStrategy() == KeepLoopBlocksTogether && len(cfgs) > 0 {
		classOf, err = ClusterLoops(cfgs)
		if err != nil {
			return nil, ctx.Fail(err)
		}
		must = ExpandMustRelocate(classOf, pairs)
	} else {
		must = map[ConcreteAddress]bool{}
		for _, p := range pairs {
			if p.Status == Modified {
				must[p.Original.Address] = true
			}
		}
	}

	reified, err := ReifyFallthroughs(ctx, pairs, must)
	if err != nil {
		return nil, err
	}

	jmpSize, err := redirectJumpSize(ctx.ISA)
	if err != nil {
		return nil, ctx.Fail(err)
	}

	heap := NewAddressHeap()
	for _, p := range reified {
		if p.Status != Modified {
			continue
		}
		origSize := ConcreteBlockSize(ctx.ISA, p.Original)
		if slack := origSize - jmpSize; slack > 0 {
			heap.Push(slack, p.Original.Address.MustAdd(int64(jmpSize)))
		}
	}

	var groups [][]SymbolicPair
	if classOf != nil {
		groups = GroupByLoopClass(classOf, must, reified)
	} else {
		for _, p := range reified {
			if must[p.Original.Address] {
				groups = append(groups, []SymbolicPair{p})
			}
		}
	}

	useHeap := strategy.Kind == CompactStrategyKind
	if useHeap {
		switch strategy.Order {
		case SortedOrder:
			slices.SortFunc(groups, func(a, b []SymbolicPair) int {
				return groupSize(ctx.ISA, b) - groupSize(ctx.ISA, a)
			})
		case RandomOrder:
			shuffleGroups(groups, strategy.Seed)
		}
	}

	allocator := NewAllocator(startAddr, heap)
	for _, g := range groups {
		blocks := make([]SymbolicBlock, len(g))
		for i, p := range g {
			blocks[i] = p.New
		}
		allocator.AllocateGroup(ctx.ISA, blocks, useHeap)
	}

	blobs := make([]InjectedBlobRequest, len(injected))
	for i, req := range injected {
		blobs[i] = InjectedBlobRequest{Symbolic: req.Symbolic, Bytes: req.Bytes}
	}
	allocator.AllocateInjected(blobs, useHeap)
	ctx.ReusedByteCount += allocator.ReusedBytes

	assignedPairs := make([]AddressAssignedPair, len(reified))
	for i, p := range reified {
		assigned := p.Original.Address
		if must[p.Original.Address] {
			addr, ok := allocator.Assignments[p.New.Address.Symbolic]
			if !ok {
				return nil, ctx.Fail(&UnassignedSymbolicBlockError{Addr: p.New.Address.Symbolic})
			}
			assigned = addr
		}
		assignedPairs[i] = AddressAssignedPair{
			Original: p.Original,
			Status:   p.Status,
			New:      AddressAssignedBlock{Block: p.New, Assigned: assigned},
		}
	}

	injectedLayout := make([]InjectedBlock, len(injected))
	for i, req := range injected {
		addr, ok := allocator.Assignments[req.Symbolic]
		if !ok {
			return nil, ctx.Fail(&UnassignedSymbolicBlockError{Addr: req.Symbolic})
		}
		injectedLayout[i] = InjectedBlock{Symbolic: req.Symbolic, Assigned: addr, Bytes: req.Bytes}
	}

	var padding []ConcreteBlock
	for _, chunk := range heap.DrainAll() {
		padInsns := ctx.ISA.MakePadding(chunk.Size)
		block, err := NewBasicBlock(chunk.Addr, padInsns)
		if err != nil {
			return nil, ctx.Fail(err)
		}
		padding = append(padding, block)
	}

	return &Layout{
		ProgramBlockLayout:  assignedPairs,
		LayoutPaddingBlocks: padding,
		InjectedBlockLayout: injectedLayout,
	}, nil
}

// refuseIncompleteFunctions forces every pair whose original block belongs
// to a function discovery could not fully resolve back to Unmodified and
// rebuilds its New block as a verbatim copy of the original, discarding
// whatever a client proposed — the core's side of the isIncompleteFunction
// contract (spec.md S6: such a block is counted but never relocated, even
// when a client passed it in as Modified).
func refuseIncompleteFunctions(ctx *RewriterContext, pairs []SymbolicPair, incomplete map[ConcreteAddress]bool) []SymbolicPair {
	if len(incomplete) == 0 {
		return pairs
	}

	out := make([]SymbolicPair, len(pairs))
	copy(out, pairs)
	for i := range out {
		if !incomplete[out[i].Original.Address] {
			continue
		}
		if out[i].Status == Modified {
			ctx.TellIncompleteFunction(out[i].Original.Address)
		}
		out[i].Status = Unmodified
		out[i].New = verbatimSymbolic(out[i].New.Address, out[i].Original)
	}
	return out
}

// verbatimSymbolic wraps a concrete block's instructions as pass-through
// tagged instructions carrying no symbolic target, under the given
// not-yet-placed identity.
func verbatimSymbolic(addr SymbolicInfo, block ConcreteBlock) SymbolicBlock {
	insns := make([]TaggedInstruction, len(block.Instructions))
	for i, insn := range block.Instructions {
		insns[i] = TaggedInstruction{Bytes: append([]byte(nil), insn.Bytes...)}
	}
	return SymbolicBlock{Address: addr, Instructions: insns}
}

func groupSize(isa ISA, g []SymbolicPair) int {
	n := 0
	for _, p := range g {
		n += SymbolicBlockSize(isa, p.New)
	}
	return n
}
