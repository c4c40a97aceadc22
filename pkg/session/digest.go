package session

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gregLibert/calypso-session/pkg/calypso"
	"github.com/gregLibert/calypso-session/pkg/iso7816"
	"github.com/gregLibert/calypso-session/pkg/tlv"
)

// TRANSCRIPT:
// The SAM computes the session MAC over the exact bytes the card saw, in the order it saw them:
//
//	Digest Init    KIF | KVC | Open Session response data
//	Digest Update  PO command bytes          (one per Proceeding/Closing command)
//	Digest Update  PO response data | 90 00  (always 90 00, whatever the card answered)
//	Digest Close   -> terminal half-session signature
//	Digest Authenticate(card half-session signature) -> verdict
//
// Identification traffic and the Close Session exchange itself are never fed.

// successTrailer is appended to every card response before it reaches the digest.
var successTrailer = []byte{0x90, 0x00}

// TranscriptEntry is one card exchange as fed to the SAM.
type TranscriptEntry struct {
	Command  []byte
	Response []byte // response data followed by 90 00
}

// Transcript mirrors what the SAM digest has received.
type Transcript struct {
	KIF  byte
	KVC  byte
	Seed []byte

	Entries []TranscriptEntry

	SamSignature []byte
	PoSignature  []byte

	fingerprint [sha256.Size]byte
}

// Fingerprint is a running SHA-256 over the seed and every entry, in order.
func (t *Transcript) Fingerprint() []byte {
	fp := t.fingerprint
	return fp[:]
}

func (t *Transcript) chain(items ...[]byte) {
	h := sha256.New()
	h.Write(t.fingerprint[:])
	for _, item := range items {
		var l [2]byte
		binary.BigEndian.PutUint16(l[:], uint16(len(item)))
		h.Write(l[:])
		h.Write(item)
	}
	copy(t.fingerprint[:], h.Sum(nil))
}

func (t *Transcript) clone() *Transcript {
	if t == nil {
		return nil
	}
	c := *t
	c.Entries = append([]TranscriptEntry(nil), t.Entries...)
	return &c
}

// Describe renders the transcript in report style.
func (t *Transcript) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== DIGEST TRANSCRIPT ===\n")
	sb.WriteString(fmt.Sprintf("[0] Seed:   KIF %02X KVC %02X | %s\n", t.KIF, t.KVC, tlv.Spaced(t.Seed)))
	for i, e := range t.Entries {
		sb.WriteString(fmt.Sprintf("[%d] C-APDU: %s\n", i+1, tlv.Spaced(e.Command)))
		sb.WriteString(fmt.Sprintf("    R-APDU: %s\n", tlv.Spaced(e.Response)))
	}
	if len(t.SamSignature) > 0 {
		sb.WriteString(fmt.Sprintf("[=] SAM signature: %X\n", t.SamSignature))
	}
	if len(t.PoSignature) > 0 {
		sb.WriteString(fmt.Sprintf("[=] PO signature:  %X\n", t.PoSignature))
	}
	sb.WriteString(fmt.Sprintf("[=] Fingerprint:   %X\n", t.Fingerprint()))
	return strings.TrimRight(sb.String(), "\n")
}

type digestStage int

const (
	digestIdle digestStage = iota
	digestOpen
	digestClosed
	digestDone
)

// DigestCoordinator keeps the SAM transcript in lockstep with the card.
type DigestCoordinator struct {
	sam      *endpoint
	samRev   calypso.SamRevision
	poRev    calypso.PoRevision
	multiple bool
	logger   *slog.Logger

	stage      digestStage
	transcript *Transcript
}

// NewDigestCoordinator drives the SAM behind client. samRev must already be resolved.
func NewDigestCoordinator(client *iso7816.Client, samRev calypso.SamRevision, poRev calypso.PoRevision, opts ...Option) *DigestCoordinator {
	o := newOptions(opts)
	return newDigestCoordinator(&endpoint{kind: calypso.EndpointSAM, client: client}, samRev, poRev, o)
}

func newDigestCoordinator(sam *endpoint, samRev calypso.SamRevision, poRev calypso.PoRevision, o options) *DigestCoordinator {
	return &DigestCoordinator{
		sam:      sam,
		samRev:   samRev,
		poRev:    poRev,
		multiple: o.digestUpdateMultiple,
		logger:   o.logger,
	}
}

// Transcript returns the transcript fed so far, or nil before Init.
func (d *DigestCoordinator) Transcript() *Transcript {
	return d.transcript
}

// Init seeds the SAM digest with the Open Session response data. workKeyRecord names the SAM
// key record when kif is 0xFF.
func (d *DigestCoordinator) Init(kif, kvc, workKeyRecord byte, openData []byte) error {
	if d.stage != digestIdle {
		return fmt.Errorf("digest init: %w", ErrTranscriptState)
	}
	req, err := calypso.DigestInit(d.samRev, d.poRev == calypso.PoRevision32, kif, kvc, workKeyRecord, openData)
	if err != nil {
		return err
	}
	if _, err := d.sam.call(req); err != nil {
		return err
	}

	d.transcript = &Transcript{KIF: kif, KVC: kvc, Seed: append([]byte(nil), openData...)}
	d.transcript.chain([]byte{kif, kvc}, openData)
	d.stage = digestOpen
	return nil
}

// Update feeds one card exchange: the command bytes, then the response data with 90 00.
func (d *DigestCoordinator) Update(command, responseData []byte) error {
	if d.stage != digestOpen {
		return fmt.Errorf("digest update: %w", ErrTranscriptState)
	}

	response := make([]byte, 0, len(responseData)+len(successTrailer))
	response = append(response, responseData...)
	response = append(response, successTrailer...)

	if d.multiple && calypso.MultipleFits(command, response) {
		req, err := calypso.DigestUpdateMultiple(d.samRev, command, response)
		if err != nil {
			return err
		}
		if _, err := d.sam.call(req); err != nil {
			return err
		}
	} else {
		for _, item := range [][]byte{command, response} {
			req, err := calypso.DigestUpdate(d.samRev, false, item)
			if err != nil {
				return err
			}
			if _, err := d.sam.call(req); err != nil {
				return err
			}
		}
	}

	d.transcript.Entries = append(d.transcript.Entries, TranscriptEntry{
		Command:  append([]byte(nil), command...),
		Response: response,
	})
	d.transcript.chain(command, response)
	return nil
}

// Close asks the SAM for the terminal half-session signature.
func (d *DigestCoordinator) Close() ([]byte, error) {
	if d.stage != digestOpen {
		return nil, fmt.Errorf("digest close: %w", ErrTranscriptState)
	}
	n := calypso.SignatureLength(d.poRev)
	req, err := calypso.DigestClose(d.samRev, n)
	if err != nil {
		return nil, err
	}
	resp, err := d.sam.call(req)
	if err != nil {
		return nil, err
	}
	sig, err := calypso.ParseDigestClose(resp.Data, n)
	if err != nil {
		return nil, err
	}

	d.transcript.SamSignature = sig
	d.stage = digestClosed
	return sig, nil
}

// Authenticate submits the card half-session signature. A 6988 verdict is
// ErrAuthenticationFailed.
func (d *DigestCoordinator) Authenticate(poSignature []byte) error {
	if d.stage != digestClosed {
		return fmt.Errorf("digest authenticate: %w", ErrTranscriptState)
	}
	req, err := calypso.DigestAuthenticate(d.samRev, poSignature)
	if err != nil {
		return err
	}
	d.stage = digestDone
	d.transcript.PoSignature = append([]byte(nil), poSignature...)

	_, err = d.sam.call(req)
	var se *calypso.StatusError
	if errors.As(err, &se) && se.Status == iso7816.SW_ERR_SM_OBJ_INCORRECT {
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	return err
}
