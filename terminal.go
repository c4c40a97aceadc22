package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gregLibert/calypso-session/internal/cardsim"
	"github.com/gregLibert/calypso-session/internal/config"
	"github.com/gregLibert/calypso-session/internal/reader"
	"github.com/gregLibert/calypso-session/pkg/calypso"
	"github.com/gregLibert/calypso-session/pkg/iso7816"
	"github.com/gregLibert/calypso-session/pkg/session"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// simulatedMaster is the key shared by the simulated card and SAM.
var simulatedMaster = []byte("calypso-simulate")

// terminal is the engine with its channels, as configured by the global flags.
type terminal struct {
	cfg    *config.Config
	engine *session.Engine
	out    io.Writer
	logger *slog.Logger
	close  func() error
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if cmd.IsSet("po-reader") {
		cfg.PO.ReaderIndex = int(cmd.Int("po-reader"))
	}
	if cmd.IsSet("sam-reader") {
		cfg.SAM.ReaderIndex = int(cmd.Int("sam-reader"))
	}
	if cmd.Bool("verbose") {
		cfg.Log.Level = "debug"
	}
	if f := cmd.String("log-format"); f != "" {
		cfg.Log.Format = f
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(w *os.File, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "auto" {
		format = "json"
		if term.IsTerminal(int(w.Fd())) {
			format = "text"
		}
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

// openTerminal connects both channels and builds the engine.
func openTerminal(cmd *cli.Command) (*terminal, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(os.Stderr, cfg.Log.Format, cfg.LogLevel)

	var po, sam iso7816.Transmitter
	closeFn := func() error { return nil }

	if cmd.Bool("simulate") {
		po, sam = simulatedPair(cfg)
		logger.Info("using simulated card and SAM")
	} else {
		poConn, err := reader.Connect(cfg.PO.ReaderIndex)
		if err != nil {
			return nil, fmt.Errorf("card reader: %w", err)
		}
		samConn, err := reader.Connect(cfg.SAM.ReaderIndex)
		if err != nil {
			_ = poConn.Close()
			return nil, fmt.Errorf("SAM reader: %w", err)
		}
		logger.Info("readers connected", "po", poConn.Reader, "sam", samConn.Reader)
		po, sam = poConn, samConn
		closeFn = func() error { return errors.Join(poConn.Close(), samConn.Close()) }
	}

	engine := session.NewEngine(po, sam,
		session.WithLogger(logger),
		session.WithSamRevision(cfg.SamRevision),
		session.WithDefaultPoRevision(cfg.PoRevision),
		session.WithDigestUpdateMultiple(cfg.Session.DigestUpdateMultiple),
	)
	return &terminal{cfg: cfg, engine: engine, out: output(cmd), logger: logger, close: closeFn}, nil
}

func simulatedPair(cfg *config.Config) (*cardsim.PO, *cardsim.SAM) {
	po := cardsim.NewPO(cfg.PoRevision, simulatedMaster)
	if cfg.AID != nil {
		po.AID = cfg.AID
	}
	po.Files[cfg.Session.SFI] = [][]byte{
		[]byte("CONTRACT-0001"),
		[]byte("EVENT-2026-10-19"),
		[]byte("BALANCE-0042"),
	}

	samRev := cfg.SamRevision
	if samRev == calypso.SamRevisionAuto {
		samRev = calypso.SamRevisionC1
	}
	return po, cardsim.NewSAM(samRev, simulatedMaster)
}

func (t *terminal) Close() {
	if err := t.close(); err != nil {
		t.logger.Warn("closing channels", "error", err)
	}
}

// identify runs Identify with the configured AID, or discovery when none is set.
func (t *terminal) identify() error {
	st, err := t.engine.Identify(t.cfg.AID)
	if err != nil {
		return t.report(err)
	}
	if st.FCI != nil {
		fmt.Fprintln(t.out, st.FCI.Describe())
	}
	return nil
}

func (t *terminal) open(cmds ...calypso.PoCommand) ([]session.PoResponse, error) {
	out, err := t.engine.Open(session.OpenParams{
		KeyIndex:     t.cfg.Session.KeyIndex,
		SFI:          t.cfg.Session.SFI,
		RecordNumber: t.cfg.Session.RecordNumber,

		WorkKeyRecord: t.cfg.Session.WorkKeyRecord,
	}, cmds...)
	if err != nil {
		return out, t.report(err)
	}
	if rec := t.engine.State().OpenRecord; len(rec) > 0 {
		fmt.Fprintf(t.out, "Record read at opening: %X\n", rec)
	}
	return out, nil
}

// report prints the session report, with the transcript when there is one, and returns err.
func (t *terminal) report(err error) error {
	st := t.engine.State()
	fmt.Fprintln(t.out, st.Describe())
	if st.Transcript != nil {
		fmt.Fprintln(t.out, st.Transcript.Describe())
	}
	return err
}

func printRecords(w io.Writer, responses []session.PoResponse) {
	for _, r := range responses {
		for _, rec := range r.Records {
			fmt.Fprintf(w, "Record %02d: %X %q\n", rec.Number, rec.Data, rec.Data)
		}
	}
}
