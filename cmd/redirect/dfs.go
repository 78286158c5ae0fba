package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"binrewrite"
)

func listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Aliases:   []string{"ls"},
		Usage:     "list a DFS disk image's catalog",
		ArgsUsage: "image",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 1 {
				return cli.Exit("insufficient arguments", 1)
			}
			return listDFS(c.Args().First())
		},
	}
}

func listDFS(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return cli.Exit(fmt.Sprintf("reading %s: %s", file, err), 1)
	}

	img, err := binrewrite.ParseDFS(data)
	if err != nil {
		return cli.Exit(fmt.Sprintf("parsing %s: %s", file, err), 1)
	}
	fmt.Printf("Disk Title  %s\n", img.Title)
	fmt.Printf("Num Files   %d\n", len(img.Files))
	fmt.Printf("Num Sectors %d\n", img.Sectors)
	fmt.Printf("Boot Option %d\n", img.BootOpt)
	fmt.Printf("Disk Cycle  0x%0X\n\n", img.Cycle)

	fmt.Println("Filename  Length LoadAddr ExecAddr Sector")
	for _, f := range img.Files {
		fmt.Printf("%-7s   %04X   %08X %08X %3d\n", f.Filename, f.Length, f.LoadAddr, f.ExecAddr, f.StartSector)
	}
	return nil
}
