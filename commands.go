package main

import (
	"context"
	"fmt"

	"github.com/gregLibert/calypso-session/pkg/calypso"
	"github.com/gregLibert/calypso-session/pkg/tlv"
	"github.com/urfave/cli/v3"
)

func identifyCommand() *cli.Command {
	return &cli.Command{
		Name:   "identify",
		Usage:  "Select the card application and prepare the SAM",
		Action: runIdentify,
	}
}

func runIdentify(ctx context.Context, cmd *cli.Command) error {
	t, err := openTerminal(cmd)
	if err != nil {
		return err
	}
	defer t.Close()

	if err := t.identify(); err != nil {
		return err
	}
	return t.report(nil)
}

func readCommand() *cli.Command {
	return &cli.Command{
		Name:  "read",
		Usage: "Open a session, read records and close it",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "count",
				Usage: "Number of records to read from record 1",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:  "multiple",
				Usage: "Read all the records in one command",
			},
		},
		Action: runRead,
	}
}

func runRead(ctx context.Context, cmd *cli.Command) error {
	count := int(cmd.Int("count"))
	if count < 1 || count > calypso.MaxRecordNumber {
		return fmt.Errorf("--count must be 1..%d", calypso.MaxRecordNumber)
	}

	t, err := openTerminal(cmd)
	if err != nil {
		return err
	}
	defer t.Close()

	sfi := t.cfg.Session.SFI
	var cmds []calypso.PoCommand
	if cmd.Bool("multiple") {
		cmds = append(cmds, calypso.ReadRecordsCommand{SFI: sfi, Record: 1, Multiple: true})
	} else {
		for rec := 1; rec <= count; rec++ {
			cmds = append(cmds, calypso.ReadRecordsCommand{SFI: sfi, Record: byte(rec)})
		}
	}

	if err := t.identify(); err != nil {
		return err
	}
	responses, err := t.open(cmds...)
	if err != nil {
		return err
	}
	printRecords(t.out, responses)

	if _, err := t.engine.Close(t.cfg.Session.Ratify); err != nil {
		return t.report(err)
	}
	return t.report(nil)
}

func appendCommand() *cli.Command {
	return &cli.Command{
		Name:  "append",
		Usage: "Append a record inside a session and close it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "data",
				Usage:    "Record content in hex",
				Required: true,
			},
		},
		Action: runAppend,
	}
}

func runAppend(ctx context.Context, cmd *cli.Command) error {
	data, err := tlv.ParseHex(cmd.String("data"))
	if err != nil {
		return fmt.Errorf("--data: %w", err)
	}

	t, err := openTerminal(cmd)
	if err != nil {
		return err
	}
	defer t.Close()

	if err := t.identify(); err != nil {
		return err
	}
	if _, err := t.open(); err != nil {
		return err
	}
	if _, err := t.engine.Close(t.cfg.Session.Ratify, calypso.AppendRecordCommand{SFI: t.cfg.Session.SFI, Data: data}); err != nil {
		return t.report(err)
	}
	return t.report(nil)
}

func cancelDemoCommand() *cli.Command {
	return &cli.Command{
		Name:   "cancel-demo",
		Usage:  "Open a session and abort it without involving the SAM",
		Action: runCancelDemo,
	}
}

func runCancelDemo(ctx context.Context, cmd *cli.Command) error {
	t, err := openTerminal(cmd)
	if err != nil {
		return err
	}
	defer t.Close()

	if err := t.identify(); err != nil {
		return err
	}
	if _, err := t.open(); err != nil {
		return err
	}
	if err := t.engine.Cancel(); err != nil {
		return t.report(err)
	}
	return t.report(nil)
}
