package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"

	"binrewrite"
	"binrewrite/discovery"
	"binrewrite/instrument"
	"binrewrite/isa6502"
)

func redirectCommand() *cli.Command {
	return &cli.Command{
		Name:      "redirect",
		Usage:     "discover, instrument, relayout and redirect a raw 6502 file",
		ArgsUsage: "file entry-addr",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "loadaddr", Usage: "load address of byte 0 of the file"},
			&cli.StringFlag{Name: "strategy", Value: "compact-sorted", Usage: "parallel | compact-sorted | compact-random"},
			&cli.StringFlag{Name: "seed", Usage: "comma-separated uint32 seed words for compact-random"},
			&cli.BoolFlag{Name: "keep-loops", Usage: "keep loop-equivalent blocks adjacent in the new layout"},
			&cli.StringFlag{Name: "targets", Usage: "comma-separated addresses of blocks to instrument; default all"},
			&cli.IntFlag{Name: "counter", Value: 0x80, Usage: "zero-page address the trampoline counts into"},
			&cli.StringFlag{Name: "out", Value: "out.bin", Usage: "output file for the relaid-out image"},
		},
		Action: runRedirect,
	}
}

func runRedirect(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return cli.Exit("insufficient arguments", 1)
	}

	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	entry, err := strconv.ParseInt(c.Args().Get(1), 0, 64)
	if err != nil {
		return cli.Exit("could not parse entry address", 1)
	}

	load := binrewrite.ConcreteAddress(c.Int("loadaddr"))
	mem := loadedMemory(data, load)
	ctx := binrewrite.NewRewriterContext(isa6502.ISA{}, mem, nil)

	discResult, err := discovery.Discover(ctx, mem, []binrewrite.ConcreteAddress{binrewrite.ConcreteAddress(entry)}, load, load.MustAdd(int64(len(data))))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	targets, err := parseTargets(c.String("targets"), discResult.Blocks)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	instResult, err := instrument.Instrument(ctx, discResult.Blocks, instrument.Config{
		Targets:     targets,
		CounterAddr: byte(c.Int("counter")),
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	strategy, err := parseStrategy(c.String("strategy"), c.String("seed"), c.Bool("keep-loops"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	var cfgs map[binrewrite.ConcreteAddress]binrewrite.CFGProvider
	if c.Bool("keep-loops") {
		cfgs = cfgProviders(binrewrite.ConcreteAddress(entry), discResult)
	}

	newRegionStart := load.MustAdd(int64(len(data)))
	layout, err := binrewrite.CompactLayout(ctx, newRegionStart, strategy, instResult.Pairs,
		[]binrewrite.InjectedCodeRequest{instResult.Trampoline}, cfgs, discResult.IncompleteBlocks())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	redirected, err := binrewrite.Redirect(ctx, layout)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	concretePairs, err := binrewrite.Materialize(ctx, layout)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	injected := binrewrite.MaterializeInjected(layout)

	if err := writeImage(c.String("out"), load, data, redirected, concretePairs, injected); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	var diagErrs *multierror.Error
	for _, d := range ctx.Diagnostics() {
		diagErrs = multierror.Append(diagErrs, d)
	}
	if diagErrs != nil {
		fmt.Fprintln(os.Stderr, diagErrs)
	}
	relocated := 0
	for _, p := range layout.ProgramBlockLayout {
		if p.New.Assigned != p.Original.Address {
			relocated++
		}
	}
	fmt.Printf("wrote %s: %d blocks relocated, %d bytes reused, %d small blocks left unredirected\n",
		c.String("out"), relocated, ctx.ReusedByteCount, ctx.SmallBlockCount)
	return nil
}

// discoveredCFG adapts a discovery.Result into binrewrite.SCFG, so loop
// clustering can run against the blocks and successors already found.
type discoveredCFG struct {
	blocks     []binrewrite.ConcreteAddress
	successors map[binrewrite.ConcreteAddress][]binrewrite.ConcreteAddress
}

func (c *discoveredCFG) Blocks() []binrewrite.ConcreteAddress { return c.blocks }
func (c *discoveredCFG) Successors(addr binrewrite.ConcreteAddress) []binrewrite.ConcreteAddress {
	return c.successors[addr]
}

// cfgProviders builds the single-entry CFGProvider map CompactLayout expects
// for loop clustering, keyed by the one function entry this command
// discovers from.
func cfgProviders(entry binrewrite.ConcreteAddress, disc *discovery.Result) map[binrewrite.ConcreteAddress]binrewrite.CFGProvider {
	blocks := make([]binrewrite.ConcreteAddress, len(disc.Blocks))
	for i, b := range disc.Blocks {
		blocks[i] = b.Address
	}
	cfg := &discoveredCFG{blocks: blocks, successors: disc.Successors}
	return map[binrewrite.ConcreteAddress]binrewrite.CFGProvider{
		entry: func() (binrewrite.SCFG, error) { return cfg, nil },
	}
}

func parseTargets(spec string, blocks []binrewrite.ConcreteBlock) (map[binrewrite.ConcreteAddress]bool, error) {
	targets := map[binrewrite.ConcreteAddress]bool{}
	if spec == "" {
		for _, b := range blocks {
			targets[b.Address] = true
		}
		return targets, nil
	}
	for _, s := range strings.Split(spec, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid target address %q: %w", s, err)
		}
		targets[binrewrite.ConcreteAddress(v)] = true
	}
	return targets, nil
}

func parseStrategy(name, seedSpec string, keepLoops bool) (binrewrite.LayoutStrategy, error) {
	loop := binrewrite.IgnoreLoops
	if keepLoops {
		loop = binrewrite.KeepLoopBlocksTogether
	}

	switch name {
	case "parallel":
		return binrewrite.Parallel(loop), nil
	case "compact-sorted":
		return binrewrite.CompactSorted(loop), nil
	case "compact-random":
		seed, err := parseSeed(seedSpec)
		if err != nil {
			return binrewrite.LayoutStrategy{}, err
		}
		return binrewrite.CompactRandom(seed, loop), nil
	default:
		return binrewrite.LayoutStrategy{}, fmt.Errorf("unknown strategy %q", name)
	}
}

func parseSeed(spec string) ([]uint32, error) {
	if spec == "" {
		return []uint32{1}, nil
	}
	var words []uint32
	for _, s := range strings.Split(spec, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid seed word %q: %w", s, err)
		}
		words = append(words, uint32(v))
	}
	return words, nil
}

// writeImage assembles the final byte stream as a single flat buffer wide
// enough to cover every address any block touches — the original image, any
// relocated block (whether it landed in reused original-image slack or in
// the freshly appended region), padding blocks, and injected code — filled
// with NOP in between, then patches every block in at its real address.
// Addresses are not assumed contiguous with the append order layout.go
// produced them in.
func writeImage(path string, load binrewrite.ConcreteAddress, original []byte, redirected []binrewrite.RedirectedBlock, pairs []binrewrite.ConcretePair, injected []binrewrite.ConcreteBlock) error {
	end := load.MustAdd(int64(len(original)))
	grow := func(block binrewrite.ConcreteBlock) {
		size := 0
		for _, insn := range block.Instructions {
			size += len(insn.Bytes)
		}
		if blockEnd := block.Address.MustAdd(int64(size)); blockEnd > end {
			end = blockEnd
		}
	}
	for _, r := range redirected {
		grow(r.Block)
	}
	for _, pair := range pairs {
		grow(pair.New)
	}
	for _, blk := range injected {
		grow(blk)
	}

	buf := make([]byte, end.Sub(load))
	for i := range buf {
		buf[i] = 0xEA // NOP, used purely as filler between real blocks
	}
	copy(buf, original)

	patch := func(block binrewrite.ConcreteBlock) error {
		off := block.Address.Sub(load)
		for _, insn := range block.Instructions {
			if off < 0 || off+int64(len(insn.Bytes)) > int64(len(buf)) {
				return fmt.Errorf("patch at %s falls outside the image", block.Address)
			}
			copy(buf[off:], insn.Bytes)
			off += int64(len(insn.Bytes))
		}
		return nil
	}

	for _, r := range redirected {
		if err := patch(r.Block); err != nil {
			return err
		}
	}
	for _, pair := range pairs {
		if err := patch(pair.New); err != nil {
			return err
		}
	}
	for _, blk := range injected {
		if err := patch(blk); err != nil {
			return err
		}
	}

	return os.WriteFile(path, buf, 0644)
}
