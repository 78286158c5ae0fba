// Command redirect is a CLI over the binrewrite engine: list a DFS disk
// image's catalog, disassemble a region of a file, or run the full
// discover -> instrument -> layout -> redirect pipeline against it.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()
	app.Name = "redirect"
	app.Usage = "basic-block redirection and layout engine for 6502 images"
	app.Action = func(c *cli.Context) error {
		cli.ShowAppHelp(c)
		return nil
	}
	app.Commands = []*cli.Command{
		listCommand(),
		disasmCommand(),
		redirectCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
