package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/urfave/cli/v2"

	"binrewrite"
	"binrewrite/discovery"
	"binrewrite/isa6502"
)

func disasmCommand() *cli.Command {
	return &cli.Command{
		Name:      "disasm",
		Aliases:   []string{"d"},
		Usage:     "discover and print basic blocks in a raw 6502 file",
		ArgsUsage: "file entry-addr",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "loadaddr", Usage: "load address of byte 0 of the file"},
		},
		Action: func(c *cli.Context) error {
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

			result, err := discovery.Discover(ctx, mem, []binrewrite.ConcreteAddress{binrewrite.ConcreteAddress(entry)}, load, load.MustAdd(int64(len(data))))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			printBlocks(result.Blocks)
			for _, addr := range ctx.Diagnostics() {
				fmt.Fprintln(os.Stderr, addr)
			}
			return nil
		},
	}
}

// loadedMemory wraps data so it is addressable starting at load rather than
// zero.
func loadedMemory(data []byte, load binrewrite.ConcreteAddress) binrewrite.Memory {
	return &offsetMemory{base: load, bytes: data}
}

type offsetMemory struct {
	base  binrewrite.ConcreteAddress
	bytes []byte
}

func (m *offsetMemory) ByteAt(addr binrewrite.ConcreteAddress) (byte, error) {
	off := addr.Sub(m.base)
	if off < 0 || off >= int64(len(m.bytes)) {
		return 0, &binrewrite.NoByteRegionAtAddressError{Addr: addr}
	}
	return m.bytes[off], nil
}

func printBlocks(blocks []binrewrite.ConcreteBlock) {
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Address < blocks[j].Address })
	for _, b := range blocks {
		fmt.Printf(".block_%s\n", b.Address)
		addr := b.Address
		for _, insn := range b.Instructions {
			op, ok := isa6502.OpCodesMap[insn.Bytes[0]]
			name := "???"
			if ok {
				name = op.Name
			}
			fmt.Printf(" %-4s \\ %s %X\n", name, addr, insn.Bytes)
			addr = addr.MustAdd(int64(len(insn.Bytes)))
		}
	}
}
