// Package session runs the Calypso secure session between a card (PO) and a SAM.
//
// An Engine owns both channels for the lifetime of a session and moves it through
// Identify, Open, Proceed and Close (or Cancel). Operations are strictly sequential: each
// card command is transmitted alone and mirrored into the SAM digest before the next one.
// Nothing is retried; every error ends the session in PhaseFailed.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gregLibert/calypso-session/pkg/calypso"
	"github.com/gregLibert/calypso-session/pkg/iso7816"
	"github.com/gregLibert/calypso-session/pkg/tlv"
)

// ATRProvider is implemented by SAM channels able to report their answer-to-reset.
type ATRProvider interface {
	ATR() ([]byte, error)
}

// OpenParams selects the session key and the record read by Open Session.
// RecordNumber 0 reads nothing.
type OpenParams struct {
	KeyIndex     byte
	SFI          byte
	RecordNumber byte

	// WorkKeyRecord selects the SAM work key when the card reports KIF FF.
	WorkKeyRecord byte
}

// PoResponse is the outcome of one queued card command.
type PoResponse struct {
	Command  calypso.PoCommand
	Request  []byte
	Response *iso7816.ResponseAPDU
	Records  []calypso.Record
}

// Engine is the secure session state machine. It is safe to call from several goroutines
// but operations are serialized.
type Engine struct {
	mu sync.Mutex

	po     *endpoint
	sam    *endpoint
	samTx  iso7816.Transmitter
	opts   options
	logger *slog.Logger

	state  *State
	digest *DigestCoordinator
}

// NewEngine creates an idle engine over the card and SAM channels.
func NewEngine(po, sam iso7816.Transmitter, opts ...Option) *Engine {
	o := newOptions(opts)
	return &Engine{
		po:     &endpoint{kind: calypso.EndpointPO, client: iso7816.NewNamedClient(po, "po", o.logger)},
		sam:    &endpoint{kind: calypso.EndpointSAM, client: iso7816.NewNamedClient(sam, "sam", o.logger)},
		samTx:  sam,
		opts:   o,
		logger: o.logger,
		state:  &State{Phase: PhaseIdle},
	}
}

// State returns a copy of the current session state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.snapshot()
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Phase
}

func (e *Engine) transition(to Phase) {
	from := e.state.Phase
	e.state.Phase = to
	e.logger.Info("session phase", "from", from.String(), "to", to.String())
}

// fail ends the session with err as cause and returns err.
func (e *Engine) fail(err error) error {
	e.state.Err = err
	e.transition(PhaseFailed)
	e.logger.Warn("session failed", "error", err)
	return err
}

func (e *Engine) expect(op string, phases ...Phase) error {
	for _, p := range phases {
		if e.state.Phase == p {
			return nil
		}
	}
	return &PhaseError{Op: op, Phase: e.state.Phase}
}

// Identify selects the card application and prepares the SAM. A nil aid is discovered
// with GET DATA (4F). It starts a fresh session from Idle or from a terminal phase.
func (e *Engine) Identify(aid []byte) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase != PhaseIdle && !e.state.Phase.Terminal() {
		return e.state.snapshot(), &PhaseError{Op: "identify", Phase: e.state.Phase}
	}
	e.state = &State{Phase: PhaseIdle}
	e.digest = nil

	if err := e.identify(aid); err != nil {
		err = e.fail(&IdentificationError{Err: err})
		return e.state.snapshot(), err
	}
	e.transition(PhaseIdentified)
	return e.state.snapshot(), nil
}

func (e *Engine) identify(aid []byte) error {
	rev := e.opts.defaultPoRevision

	if aid == nil {
		discovered, err := e.discoverAID(rev)
		if err != nil {
			return err
		}
		aid = discovered
	}

	req, err := calypso.SelectApplication(rev, aid)
	if err != nil {
		return err
	}
	if _, err := e.po.call(req); err != nil {
		return err
	}

	req, err = calypso.GetDataFCI(rev)
	if err != nil {
		return err
	}
	resp, err := e.po.call(req)
	if err != nil {
		return err
	}
	fci, err := calypso.ParseFCI(resp.Data)
	if err != nil {
		return fmt.Errorf("parse FCI: %w", err)
	}

	samRev, err := e.resolveSamRevision()
	if err != nil {
		return err
	}

	s := e.state
	s.AID = append([]byte(nil), aid...)
	s.FCI = fci
	s.SerialNumber = append([]byte(nil), fci.SerialNumber()...)
	s.PoRevision = fci.Revision(e.opts.defaultPoRevision)
	s.SamRevision = samRev

	req, err = calypso.SelectDiversifier(samRev, s.SerialNumber)
	if err != nil {
		return err
	}
	if _, err := e.sam.call(req); err != nil {
		return err
	}

	n := calypso.ChallengeLength(s.PoRevision)
	req, err = calypso.GetChallenge(samRev, n)
	if err != nil {
		return err
	}
	resp, err = e.sam.call(req)
	if err != nil {
		return err
	}
	s.SamChallenge, err = calypso.ParseChallenge(resp.Data, n)
	if err != nil {
		return err
	}

	e.logger.Info("card identified",
		"aid", fmt.Sprintf("%X", s.AID),
		"serial", fmt.Sprintf("%X", s.SerialNumber),
		"po_revision", s.PoRevision.String(),
		"sam_revision", s.SamRevision.String())
	return nil
}

func (e *Engine) discoverAID(rev calypso.PoRevision) ([]byte, error) {
	req, err := calypso.GetDataAID(rev)
	if err != nil {
		return nil, err
	}
	resp, err := e.po.call(req)
	if err != nil {
		return nil, err
	}
	if aid, err := tlv.Lookup(resp.Data, "4F"); err == nil {
		return aid, nil
	}
	return resp.Data, nil
}

func (e *Engine) resolveSamRevision() (calypso.SamRevision, error) {
	if e.opts.samRevision != calypso.SamRevisionAuto {
		return e.opts.samRevision, nil
	}
	atr := e.opts.samATR
	if atr == nil {
		p, ok := e.samTx.(ATRProvider)
		if !ok {
			return 0, fmt.Errorf("SAM revision is auto but no ATR is available")
		}
		var err error
		if atr, err = p.ATR(); err != nil {
			return 0, fmt.Errorf("read SAM ATR: %w", err)
		}
	}
	return calypso.ResolveSamRevision(calypso.SamRevisionAuto, atr)
}

// Open opens the secure session with the SAM challenge, seeds the digest and runs cmds
// as a first Proceeding step.
func (e *Engine) Open(params OpenParams, cmds ...calypso.PoCommand) ([]PoResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.expect("open", PhaseIdentified); err != nil {
		return nil, err
	}
	s := e.state

	req, err := calypso.OpenSession(s.PoRevision, params.KeyIndex, params.SFI, params.RecordNumber, s.SamChallenge)
	if err != nil {
		return nil, e.fail(err)
	}
	queued, err := e.build(cmds)
	if err != nil {
		return nil, e.fail(err)
	}

	resp, err := e.po.call(req)
	if err != nil {
		return nil, e.fail(err)
	}
	opened, err := calypso.ParseOpenSession(s.PoRevision, resp.Data)
	if err != nil {
		return nil, e.fail(err)
	}

	kif := opened.KIF
	if !opened.KIFPresent {
		var known bool
		if kif, known = calypso.DefaultKIF(params.KeyIndex); !known {
			kif = 0xFF
		}
	}
	if kif == 0xFF && params.WorkKeyRecord == 0 {
		return nil, e.fail(&calypso.ResponseError{Kind: calypso.KindOpenSession, Reason: "card reports no KIF and no SAM work key record is set"})
	}
	s.KeyIndex = params.KeyIndex
	s.KIF = kif
	s.KVC = opened.KVC
	s.PreviousRatified = opened.PreviousRatified
	s.OpenRecord = opened.RecordData

	e.digest = newDigestCoordinator(e.sam, s.SamRevision, s.PoRevision, e.opts)
	if err := e.digest.Init(kif, opened.KVC, params.WorkKeyRecord, opened.Raw); err != nil {
		return nil, e.fail(err)
	}
	s.Transcript = e.digest.Transcript()
	e.transition(PhaseOpened)

	if len(queued) == 0 {
		return nil, nil
	}
	return e.proceed(queued)
}

// Proceed transmits cmds one at a time, mirroring each exchange into the digest.
// Every request is built before the first one is sent.
func (e *Engine) Proceed(cmds ...calypso.PoCommand) ([]PoResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.expect("proceed", PhaseOpened, PhaseProceeding); err != nil {
		return nil, err
	}
	queued, err := e.build(cmds)
	if err != nil {
		return nil, e.fail(err)
	}
	return e.proceed(queued)
}

type queuedCommand struct {
	cmd calypso.PoCommand
	req *calypso.Request
}

func (e *Engine) build(cmds []calypso.PoCommand) ([]queuedCommand, error) {
	queued := make([]queuedCommand, 0, len(cmds))
	for _, cmd := range cmds {
		req, err := cmd.Build(e.state.PoRevision)
		if err != nil {
			return nil, err
		}
		queued = append(queued, queuedCommand{cmd: cmd, req: req})
	}
	return queued, nil
}

func (e *Engine) proceed(queued []queuedCommand) ([]PoResponse, error) {
	if e.state.Phase != PhaseProceeding {
		e.transition(PhaseProceeding)
	}

	out := make([]PoResponse, 0, len(queued))
	for _, q := range queued {
		executed, resp, err := e.po.exchange(q.req)
		if err != nil {
			return out, e.fail(err)
		}
		if err := e.digest.Update(executed, resp.Data); err != nil {
			return out, e.fail(err)
		}
		if err := calypso.CheckStatus(q.req.Kind, resp.Status); err != nil {
			return out, e.fail(err)
		}

		r := PoResponse{Command: q.cmd, Request: executed, Response: resp}
		if rc, ok := q.cmd.(calypso.ReadRecordsCommand); ok {
			if r.Records, err = calypso.ParseReadRecords(rc.Record, rc.Multiple, resp.Data); err != nil {
				return out, e.fail(err)
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// Close runs cmds, then closes the session: Digest Close, Close Session carrying the SAM
// signature, Digest Authenticate with the card signature.
func (e *Engine) Close(ratify bool, cmds ...calypso.PoCommand) ([]PoResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.expect("close", PhaseOpened, PhaseProceeding); err != nil {
		return nil, err
	}
	queued, err := e.build(cmds)
	if err != nil {
		return nil, e.fail(err)
	}

	var out []PoResponse
	if len(queued) > 0 {
		if out, err = e.proceed(queued); err != nil {
			return out, err
		}
	}
	e.transition(PhaseClosing)

	s := e.state
	samSig, err := e.digest.Close()
	if err != nil {
		return out, e.fail(err)
	}

	req, err := calypso.CloseSession(s.PoRevision, ratify, samSig)
	if err != nil {
		return out, e.fail(err)
	}
	resp, err := e.po.call(req)
	if err != nil {
		return out, e.fail(err)
	}
	closed, err := calypso.ParseCloseSession(resp.Data, calypso.SignatureLength(s.PoRevision))
	if err != nil {
		return out, e.fail(err)
	}
	if len(closed.Signature) == 0 {
		return out, e.fail(&calypso.ResponseError{Kind: calypso.KindCloseSession, Reason: "no card signature"})
	}

	if err := e.digest.Authenticate(closed.Signature); err != nil {
		return out, e.fail(err)
	}
	e.transition(PhaseAuthenticated)
	return out, nil
}

// Cancel abandons the session. An opened session is aborted on the card with an unsigned
// Close Session; the SAM is not contacted. The session ends Failed with ErrSessionCancelled.
// A failed abort is returned joined with ErrSessionCancelled.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.expect("cancel", PhaseIdentified, PhaseOpened, PhaseProceeding); err != nil {
		return err
	}

	var abortErr error
	if e.state.Phase != PhaseIdentified {
		req, err := calypso.CloseSession(e.state.PoRevision, false, nil)
		if err == nil {
			_, err = e.po.call(req)
		}
		if err != nil {
			e.logger.Warn("session abort not acknowledged", "error", err)
			abortErr = errors.Join(ErrSessionCancelled, err)
		}
	}

	e.fail(ErrSessionCancelled)
	return abortErr
}
