package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "calypso-session",
		Usage: "Run Calypso secure sessions between a card and a SAM",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to the YAML configuration",
			},
			&cli.BoolFlag{
				Name:  "simulate",
				Usage: "Use a software card and SAM instead of PC/SC readers",
			},
			&cli.IntFlag{
				Name:  "po-reader",
				Usage: "Index of the card reader (overrides config)",
			},
			&cli.IntFlag{
				Name:  "sam-reader",
				Usage: "Index of the SAM reader (overrides config)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log APDU exchanges",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format: auto, text or json (overrides config)",
			},
		},
		Commands: []*cli.Command{
			identifyCommand(),
			readCommand(),
			appendCommand(),
			cancelDemoCommand(),
		},
	}
}
