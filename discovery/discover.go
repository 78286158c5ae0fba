// Package discovery finds basic block boundaries in a raw 6502 byte region
// by linear sweep, the same two-pass approach the teacher's Disassembler
// uses: a first pass to find every branch/jump target, a second pass to cut
// the region into blocks at those targets.
package discovery

import (
	"sort"

	"binrewrite"
	"binrewrite/isa6502"
)

// Result is everything Discover learns about one scanned region.
type Result struct {
	Blocks     []binrewrite.ConcreteBlock
	Successors map[binrewrite.ConcreteAddress][]binrewrite.ConcreteAddress
	Incomplete []binrewrite.ConcreteAddress
}

// Discover scans [start, end) for basic blocks reachable from entries. Any
// byte it cannot decode as a recognized opcode ends the scan for that
// function and records an incomplete-function diagnostic on ctx instead of
// failing the whole run, mirroring the teacher's "print as data and keep
// going" tolerance for undecodable bytes — except here, rather than silently
// falling back to data, the function is flagged so the engine refuses to
// rewrite it.
func Discover(ctx *binrewrite.RewriterContext, mem binrewrite.Memory, entries []binrewrite.ConcreteAddress, start, end binrewrite.ConcreteAddress) (*Result, error) {
	leaders, _, incomplete, err := findLeaders(mem, entries, start, end)
	if err != nil {
		return nil, ctx.Fail(err)
	}
	for _, addr := range incomplete {
		ctx.TellIncompleteFunction(addr)
	}

	sortedLeaders := make([]binrewrite.ConcreteAddress, 0, len(leaders))
	for addr := range leaders {
		if addr < start || addr >= end {
			continue
		}
		sortedLeaders = append(sortedLeaders, addr)
	}
	sort.Slice(sortedLeaders, func(i, j int) bool { return sortedLeaders[i] < sortedLeaders[j] })

	blocks := make([]binrewrite.ConcreteBlock, 0, len(sortedLeaders))
	successors := make(map[binrewrite.ConcreteAddress][]binrewrite.ConcreteAddress, len(sortedLeaders))

	for i, leader := range sortedLeaders {
		var stop binrewrite.ConcreteAddress
		if i+1 < len(sortedLeaders) {
			stop = sortedLeaders[i+1]
		} else {
			stop = end
		}

		block, succs, ok, err := decodeBlock(mem, leader, stop, end)
		if err != nil {
			return nil, ctx.Fail(err)
		}
		if !ok {
			continue
		}
		blocks = append(blocks, block)
		successors[leader] = succs
	}

	return &Result{Blocks: blocks, Successors: successors, Incomplete: incomplete}, nil
}

// IsIncompleteFunction is the isIncompleteFunction(addr) membership test the
// core's layout driver consults before relocating a block: true if addr was
// one of the blocks this scan produced and the scan hit an undecodable byte
// or an unresolved indirect control transfer anywhere in it. Discover scans
// one function per call, so a single undecodable byte anywhere taints every
// block it found, not just the one straddling the bad byte — the function
// as a whole could not be fully resolved.
func (r *Result) IsIncompleteFunction(addr binrewrite.ConcreteAddress) bool {
	if len(r.Incomplete) == 0 {
		return false
	}
	for _, b := range r.Blocks {
		if b.Address == addr {
			return true
		}
	}
	return false
}

// IncompleteBlocks returns the set IsIncompleteFunction reports true for, in
// the shape binrewrite.CompactLayout's incomplete parameter expects.
func (r *Result) IncompleteBlocks() map[binrewrite.ConcreteAddress]bool {
	if len(r.Incomplete) == 0 {
		return nil
	}
	out := make(map[binrewrite.ConcreteAddress]bool, len(r.Blocks))
	for _, b := range r.Blocks {
		out[b.Address] = true
	}
	return out
}

// findLeaders performs the first pass: walk every entry point forward,
// collecting block-leader addresses (branch/jump targets and the
// instruction after every call) and noting any function that runs into an
// undecodable byte before falling off the scanned region.
func findLeaders(mem binrewrite.Memory, entries []binrewrite.ConcreteAddress, start, end binrewrite.ConcreteAddress) (map[binrewrite.ConcreteAddress]bool, map[binrewrite.ConcreteAddress]bool, []binrewrite.ConcreteAddress, error) {
	leaders := map[binrewrite.ConcreteAddress]bool{}
	jumpTargets := map[binrewrite.ConcreteAddress]bool{}
	var incomplete []binrewrite.ConcreteAddress

	for _, entry := range entries {
		leaders[entry] = true
	}

	visited := map[binrewrite.ConcreteAddress]bool{}
	queue := append([]binrewrite.ConcreteAddress(nil), entries...)

	for len(queue) > 0 {
		cursor := queue[0]
		queue = queue[1:]

		for cursor < end {
			if visited[cursor] {
				break
			}
			visited[cursor] = true

			insn, length, ok, err := decodeOne(mem, cursor)
			if err != nil {
				return nil, nil, nil, err
			}
			if !ok {
				incomplete = append(incomplete, cursor)
				break
			}

			op, _ := isa6502.OpCodesMap[insn[0]]
			switch {
			case op.Value == isa6502.OpJMPAbsolute || op.Value == isa6502.OpJSRAbsolute:
				target := binrewrite.ConcreteAddress(uint64(insn[2])<<8 | uint64(insn[1]))
				leaders[target] = true
				jumpTargets[target] = true
				if target >= start && target < end && !visited[target] {
					queue = append(queue, target)
				}
				if op.Value == isa6502.OpJSRAbsolute {
					next := cursor.MustAdd(int64(length))
					leaders[next] = true
					cursor = next
					continue
				}
				cursor = cursor.MustAdd(int64(length))
				goto doneFunction

			case op.Value == isa6502.OpJMPIndirect:
				// An indirect jump's target set depends on runtime memory
				// content, typically a jump table, that this static sweep
				// cannot resolve. The function is incomplete.
				incomplete = append(incomplete, cursor)
				cursor = cursor.MustAdd(int64(length))
				goto doneFunction

			case op.Value == isa6502.OpRTS || op.Value == isa6502.OpRTI:
				cursor = cursor.MustAdd(int64(length))
				goto doneFunction

			case isa6502.IsBranch(op.Name):
				off := int(insn[1])
				if off > 127 {
					off -= 256
				}
				target := cursor.MustAdd(2 + int64(off))
				leaders[target] = true
				jumpTargets[target] = true
				if target >= start && target < end && !visited[target] {
					queue = append(queue, target)
				}
				next := cursor.MustAdd(int64(length))
				leaders[next] = true
				cursor = next

			default:
				cursor = cursor.MustAdd(int64(length))
			}
		}
	doneFunction:
	}

	return leaders, jumpTargets, incomplete, nil
}

// decodeBlock slices [leader, stop) into a ConcreteBlock of whole
// instructions plus the successor addresses control can reach from its last
// instruction. end is the overall scanned-region boundary, needed to tell a
// genuine fallthrough into the next block (stop < end) apart from running off
// the end of the scanned region entirely (stop == end). ok is false if the
// region straddled a leader mid-instruction or contained an undecodable byte
// — the caller drops such a block rather than emit a corrupt one.
func decodeBlock(mem binrewrite.Memory, leader, stop, end binrewrite.ConcreteAddress) (binrewrite.ConcreteBlock, []binrewrite.ConcreteAddress, bool, error) {
	var insns []binrewrite.Instruction
	cursor := leader

	for cursor < stop {
		insn, length, ok, err := decodeOne(mem, cursor)
		if err != nil {
			return binrewrite.ConcreteBlock{}, nil, false, err
		}
		if !ok {
			return binrewrite.ConcreteBlock{}, nil, false, nil
		}
		if cursor.MustAdd(int64(length)) > stop {
			return binrewrite.ConcreteBlock{}, nil, false, nil
		}
		insns = append(insns, binrewrite.Instruction{Bytes: insn})
		cursor = cursor.MustAdd(int64(length))
	}

	if len(insns) == 0 {
		return binrewrite.ConcreteBlock{}, nil, false, nil
	}

	successors := blockSuccessors(insns, cursor, end)

	block, err := binrewrite.NewBasicBlock(leader, insns)
	if err != nil {
		return binrewrite.ConcreteBlock{}, nil, false, err
	}
	return block, successors, true, nil
}

// blockSuccessors reports the addresses control can reach from a block's
// last instruction. fallthroughAddr is always the address one past the
// block's last instruction (== its stop); it is a real successor unless it
// runs off the end of the scanned region.
func blockSuccessors(insns []binrewrite.Instruction, fallthroughAddr, end binrewrite.ConcreteAddress) []binrewrite.ConcreteAddress {
	last := insns[len(insns)-1].Bytes
	op, ok := isa6502.OpCodesMap[last[0]]
	if !ok {
		return nil
	}

	switch {
	case op.Value == isa6502.OpJMPAbsolute:
		return []binrewrite.ConcreteAddress{binrewrite.ConcreteAddress(uint64(last[2])<<8 | uint64(last[1]))}

	case op.Value == isa6502.OpRTS || op.Value == isa6502.OpRTI || op.Value == isa6502.OpJMPIndirect:
		return nil

	case isa6502.IsBranch(op.Name):
		off := int(last[1])
		if off > 127 {
			off -= 256
		}
		branchTarget := (fallthroughAddr.MustAdd(-int64(op.Length))).MustAdd(2 + int64(off))
		targets := []binrewrite.ConcreteAddress{branchTarget}
		if fallthroughAddr < end {
			targets = append(targets, fallthroughAddr)
		}
		return targets

	default: // JSR or plain fallthrough
		if fallthroughAddr < end {
			return []binrewrite.ConcreteAddress{fallthroughAddr}
		}
		return nil
	}
}

// decodeOne reads one instruction's worth of bytes at addr. ok is false if
// the byte at addr does not match any known opcode.
func decodeOne(mem binrewrite.Memory, addr binrewrite.ConcreteAddress) ([]byte, int, bool, error) {
	b, err := mem.ByteAt(addr)
	if err != nil {
		return nil, 0, false, err
	}
	op, ok := isa6502.OpCodesMap[b]
	if !ok {
		return nil, 0, false, nil
	}

	bytes := make([]byte, op.Length)
	bytes[0] = b
	for i := uint(1); i < op.Length; i++ {
		nb, err := mem.ByteAt(addr.MustAdd(int64(i)))
		if err != nil {
			return nil, 0, false, err
		}
		bytes[i] = nb
	}
	return bytes, int(op.Length), true, nil
}
