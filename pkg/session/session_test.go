package session_test

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/gregLibert/calypso-session/internal/cardsim"
	"github.com/gregLibert/calypso-session/pkg/calypso"
	"github.com/gregLibert/calypso-session/pkg/iso7816"
	"github.com/gregLibert/calypso-session/pkg/session"
	"github.com/gregLibert/calypso-session/pkg/tlv"
	"github.com/stretchr/testify/require"
)

var master = tlv.Hex("00112233445566778899AABBCCDDEEFF")

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fixedRand makes the SAM challenges predictable: 01 02 03 04 ...
func fixedRand() io.Reader {
	return bytes.NewReader(tlv.Hex("0102030405060708090A0B0C0D0E0F10"))
}

func newPair(poRev calypso.PoRevision, samRev calypso.SamRevision) (*cardsim.PO, *cardsim.SAM) {
	po := cardsim.NewPO(poRev, master)
	sam := cardsim.NewSAM(samRev, master)
	sam.Rand = fixedRand()
	return po, sam
}

// sent returns the commands with instruction ins received by a simulator.
func sent(log []cardsim.Exchange, ins byte) [][]byte {
	var out [][]byte
	for _, x := range log {
		if x.Command[1] == ins {
			out = append(out, x.Command)
		}
	}
	return out
}

func TestEngine_LegacyReadSession(t *testing.T) {
	po, sam := newPair(calypso.PoRevisionLegacy, calypso.SamRevisionS1D)
	po.Files[0x08] = [][]byte{tlv.Hex("CAFE"), tlv.Hex("BEEF")}

	e := session.NewEngine(po, sam, session.WithLogger(quiet))

	st, err := e.Identify(po.AID)
	require.NoError(t, err)
	require.Equal(t, session.PhaseIdentified, st.Phase)
	require.Equal(t, calypso.PoRevisionLegacy, st.PoRevision)
	require.Equal(t, calypso.SamRevisionS1D, st.SamRevision, "resolved from the SAM ATR")
	require.Equal(t, po.Serial, st.SerialNumber)
	require.Equal(t, tlv.Hex("01020304"), st.SamChallenge)

	_, err = e.Open(session.OpenParams{KeyIndex: 3, SFI: 0x08, RecordNumber: 1})
	require.NoError(t, err)
	require.Equal(t, [][]byte{tlv.Hex("94 8A 8B 40 04 01020304")}, sent(po.Log(), 0x8A))

	st = e.State()
	require.Equal(t, session.PhaseOpened, st.Phase)
	require.True(t, st.PreviousRatified)
	require.Len(t, st.OpenRecord, 29)
	require.Equal(t, tlv.Hex("CAFE"), st.OpenRecord[:2])
	kif, _ := calypso.DefaultKIF(3)
	require.Equal(t, kif, st.KIF, "legacy cards return no KIF")

	out, err := e.Proceed(calypso.ReadRecordsCommand{SFI: 0x08, Record: 2})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, []calypso.Record{{Number: 2, Data: tlv.Hex("BEEF")}}, out[0].Records)
	require.Equal(t, tlv.Hex("94 B2 02 44 00"), out[0].Request)

	_, err = e.Close(true)
	require.NoError(t, err)
	require.Equal(t, session.PhaseAuthenticated, e.Phase())
	require.False(t, po.InSession())

	st = e.State()
	require.Len(t, st.Transcript.Entries, 1)
	require.Equal(t, tlv.Hex("BEEF 9000"), st.Transcript.Entries[0].Response)
	require.Len(t, st.Transcript.SamSignature, 4)
	require.Len(t, st.Transcript.PoSignature, 4)
	require.Contains(t, st.Describe(), "[1] Phase: Authenticated")
}

func TestEngine_Rev32WriteSession(t *testing.T) {
	po, sam := newPair(calypso.PoRevision32, calypso.SamRevisionC1)

	e := session.NewEngine(po, sam,
		session.WithLogger(quiet),
		session.WithSamRevision(calypso.SamRevisionC1),
		session.WithDefaultPoRevision(calypso.PoRevision32))

	st, err := e.Identify(po.AID)
	require.NoError(t, err)
	require.Equal(t, calypso.PoRevision32, st.PoRevision, "inconclusive startup keeps the default")
	require.Len(t, st.SamChallenge, 8)

	_, err = e.Open(session.OpenParams{KeyIndex: 1, SFI: 0x08},
		calypso.AppendRecordCommand{SFI: 0x08, Data: tlv.Hex("0102")})
	require.NoError(t, err)
	require.Equal(t, [][]byte{tlv.Hex("00 8A 01 42 09 00 0102030405060708 00")}, sent(po.Log(), 0x8A))
	require.Equal(t, session.PhaseProceeding, e.Phase())

	_, err = e.Close(false, calypso.UpdateRecordCommand{SFI: 0x08, Record: 1, Data: tlv.Hex("0304")})
	require.NoError(t, err)
	require.Equal(t, session.PhaseAuthenticated, e.Phase())
	require.Equal(t, [][]byte{tlv.Hex("0304")}, po.Files[0x08])

	st = e.State()
	require.Len(t, st.Transcript.Entries, 2)
	require.Len(t, st.Transcript.SamSignature, 8)

	digestInit := sent(sam.Log(), 0x8A)
	require.Len(t, digestInit, 1)
	require.Equal(t, byte(0x02), digestInit[0][2], "3.2 mode")
}

func TestEngine_EmptySession(t *testing.T) {
	po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
	e := session.NewEngine(po, sam, session.WithLogger(quiet))

	_, err := e.Identify(po.AID)
	require.NoError(t, err)
	_, err = e.Open(session.OpenParams{KeyIndex: 1, SFI: 0x08})
	require.NoError(t, err)
	_, err = e.Close(true)
	require.NoError(t, err)

	st := e.State()
	require.Equal(t, session.PhaseAuthenticated, st.Phase)
	require.Empty(t, st.Transcript.Entries)
	require.Empty(t, sent(sam.Log(), 0x8C))

	// A finished session can be followed by a new one; the last one was ratified.
	sam.Rand = fixedRand()
	_, err = e.Identify(po.AID)
	require.NoError(t, err)
	_, err = e.Open(session.OpenParams{KeyIndex: 2, SFI: 0x08})
	require.NoError(t, err)
	require.True(t, e.State().PreviousRatified)
}

func TestEngine_DiscoversAID(t *testing.T) {
	po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
	e := session.NewEngine(po, sam, session.WithLogger(quiet))

	st, err := e.Identify(nil)
	require.NoError(t, err)
	require.Equal(t, po.AID, st.AID)
	require.Equal(t, [][]byte{tlv.Hex("00 CA 00 4F 00"), tlv.Hex("00 CA 00 6F 00")}, sent(po.Log(), 0xCA))
}

func TestEngine_IdentifyFailures(t *testing.T) {
	t.Run("unknown application", func(t *testing.T) {
		po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
		e := session.NewEngine(po, sam, session.WithLogger(quiet))

		st, err := e.Identify(tlv.Hex("A000000000"))
		var idErr *session.IdentificationError
		require.ErrorAs(t, err, &idErr)
		var se *calypso.StatusError
		require.ErrorAs(t, err, &se)
		require.Equal(t, calypso.KindSelectApplication, se.Kind)
		require.Equal(t, session.PhaseFailed, st.Phase)
		require.Empty(t, sam.Log())

		// Failed is terminal but a new identification may start over.
		_, err = e.Identify(po.AID)
		require.NoError(t, err)
	})

	t.Run("auto SAM revision without ATR", func(t *testing.T) {
		po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
		e := session.NewEngine(po, struct{ transmitterOnly }{sam}, session.WithLogger(quiet))

		_, err := e.Identify(po.AID)
		var idErr *session.IdentificationError
		require.ErrorAs(t, err, &idErr)
		require.Equal(t, session.PhaseFailed, e.Phase())
	})

	t.Run("ATR given as option", func(t *testing.T) {
		po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
		atr, _ := sam.ATR()
		e := session.NewEngine(po, struct{ transmitterOnly }{sam},
			session.WithLogger(quiet), session.WithSamATR(atr))

		st, err := e.Identify(po.AID)
		require.NoError(t, err)
		require.Equal(t, calypso.SamRevisionC1, st.SamRevision)
	})

	t.Run("SAM class mismatch", func(t *testing.T) {
		po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
		e := session.NewEngine(po, sam, session.WithLogger(quiet), session.WithSamRevision(calypso.SamRevisionS1D))

		_, err := e.Identify(po.AID)
		var se *calypso.StatusError
		require.ErrorAs(t, err, &se)
		require.Equal(t, calypso.KindSelectDiversifier, se.Kind)
	})
}

// transmitterOnly hides the ATR method of the simulated SAM.
type transmitterOnly interface {
	Transmit([]byte) ([]byte, error)
}

func TestEngine_WrongPhase(t *testing.T) {
	po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
	e := session.NewEngine(po, sam, session.WithLogger(quiet))

	var pe *session.PhaseError
	_, err := e.Open(session.OpenParams{KeyIndex: 1})
	require.ErrorAs(t, err, &pe)
	require.Equal(t, session.PhaseIdle, pe.Phase)
	require.ErrorAs(t, e.Cancel(), &pe)
	require.Equal(t, session.PhaseIdle, e.Phase())

	_, err = e.Identify(po.AID)
	require.NoError(t, err)
	before := e.State()

	_, err = e.Proceed(calypso.ReadRecordsCommand{SFI: 8, Record: 1})
	require.ErrorAs(t, err, &pe)
	_, err = e.Close(true)
	require.ErrorAs(t, err, &pe)
	_, err = e.Identify(po.AID)
	require.ErrorAs(t, err, &pe)

	after := e.State()
	require.Equal(t, session.PhaseIdentified, after.Phase)
	require.Equal(t, before.SamChallenge, after.SamChallenge)
	require.Nil(t, after.Err)
}

func TestEngine_Cancel(t *testing.T) {
	t.Run("opened session", func(t *testing.T) {
		po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
		po.Files[0x08] = [][]byte{tlv.Hex("01")}
		e := session.NewEngine(po, sam, session.WithLogger(quiet))

		_, err := e.Identify(po.AID)
		require.NoError(t, err)
		_, err = e.Open(session.OpenParams{KeyIndex: 1, SFI: 0x08}, calypso.ReadRecordsCommand{SFI: 0x08, Record: 1})
		require.NoError(t, err)

		require.NoError(t, e.Cancel())

		st := e.State()
		require.Equal(t, session.PhaseFailed, st.Phase)
		require.ErrorIs(t, st.Err, session.ErrSessionCancelled)
		require.False(t, po.InSession())
		require.Equal(t, [][]byte{tlv.Hex("00 8E 00 00 00")}, sent(po.Log(), 0x8E))
		require.Zero(t, sam.Count(0x8E), "no digest close")
		require.Zero(t, sam.Count(0x82), "no digest authenticate")
	})

	t.Run("identified session", func(t *testing.T) {
		po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
		e := session.NewEngine(po, sam, session.WithLogger(quiet))

		_, err := e.Identify(po.AID)
		require.NoError(t, err)
		require.NoError(t, e.Cancel())
		require.Equal(t, session.PhaseFailed, e.Phase())
		require.Zero(t, po.Count(0x8E))
	})

	t.Run("unreachable card", func(t *testing.T) {
		po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
		e := session.NewEngine(po, sam, session.WithLogger(quiet))

		_, err := e.Identify(po.AID)
		require.NoError(t, err)
		_, err = e.Open(session.OpenParams{KeyIndex: 1, SFI: 0x08})
		require.NoError(t, err)

		po.FailOn(0x8E, cardsim.ErrRemoved)
		err = e.Cancel()
		var ce *session.ChannelError
		require.ErrorAs(t, err, &ce)
		require.ErrorIs(t, err, cardsim.ErrRemoved)
		require.ErrorIs(t, err, session.ErrSessionCancelled)
		require.ErrorIs(t, e.State().Err, session.ErrSessionCancelled)
	})

	t.Run("abort refused by the card", func(t *testing.T) {
		po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
		e := session.NewEngine(po, sam, session.WithLogger(quiet))

		_, err := e.Identify(po.AID)
		require.NoError(t, err)
		_, err = e.Open(session.OpenParams{KeyIndex: 1, SFI: 0x08})
		require.NoError(t, err)

		// The card leaves the session behind the engine's back.
		_, err = po.Transmit(tlv.Hex("00 8E 00 00 00"))
		require.NoError(t, err)

		err = e.Cancel()
		var se *calypso.StatusError
		require.ErrorAs(t, err, &se)
		require.Equal(t, iso7816.SW_ERR_COND_OF_USE_NOT_SAT, se.Status)
		require.ErrorIs(t, err, session.ErrSessionCancelled)
		require.Equal(t, session.PhaseFailed, e.Phase())
		require.Zero(t, sam.Count(0x8E))
	})
}

func TestEngine_ChannelFailure(t *testing.T) {
	for _, tc := range []struct {
		name     string
		endpoint calypso.Endpoint
		ins      byte
	}{
		{"card", calypso.EndpointPO, 0xB2},
		{"sam", calypso.EndpointSAM, 0x8C},
	} {
		t.Run(tc.name, func(t *testing.T) {
			po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
			po.Files[0x08] = [][]byte{tlv.Hex("01")}
			e := session.NewEngine(po, sam, session.WithLogger(quiet))

			_, err := e.Identify(po.AID)
			require.NoError(t, err)
			_, err = e.Open(session.OpenParams{KeyIndex: 1, SFI: 0x08})
			require.NoError(t, err)

			po.FailOn(tc.ins, cardsim.ErrRemoved)
			sam.FailOn(tc.ins, cardsim.ErrRemoved)

			_, err = e.Proceed(calypso.ReadRecordsCommand{SFI: 0x08, Record: 1})
			var ce *session.ChannelError
			require.ErrorAs(t, err, &ce)
			require.Equal(t, tc.endpoint, ce.Endpoint)
			require.ErrorIs(t, err, cardsim.ErrRemoved)

			st := e.State()
			require.Equal(t, session.PhaseFailed, st.Phase)
			require.Equal(t, err, st.Err)
		})
	}
}

func TestEngine_CardStatusFailureIsDigested(t *testing.T) {
	po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
	e := session.NewEngine(po, sam, session.WithLogger(quiet))

	_, err := e.Identify(po.AID)
	require.NoError(t, err)
	_, err = e.Open(session.OpenParams{KeyIndex: 1, SFI: 0x08})
	require.NoError(t, err)

	_, err = e.Proceed(calypso.ReadRecordsCommand{SFI: 0x08, Record: 1})
	var se *calypso.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, calypso.KindReadRecords, se.Kind)

	st := e.State()
	require.Equal(t, session.PhaseFailed, st.Phase)
	require.Len(t, st.Transcript.Entries, 1, "the exchange reached the digest before the status check")
	require.Equal(t, tlv.Hex("9000"), st.Transcript.Entries[0].Response)
}

func TestEngine_AuthenticationFailure(t *testing.T) {
	po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
	po.CorruptSignature = true
	e := session.NewEngine(po, sam, session.WithLogger(quiet))

	_, err := e.Identify(po.AID)
	require.NoError(t, err)
	_, err = e.Open(session.OpenParams{KeyIndex: 1, SFI: 0x08})
	require.NoError(t, err)

	_, err = e.Close(true, calypso.AppendRecordCommand{SFI: 0x08, Data: tlv.Hex("AA")})
	require.ErrorIs(t, err, session.ErrAuthenticationFailed)
	require.Equal(t, session.PhaseFailed, e.Phase())
	require.Contains(t, e.State().Describe(), "Cause:")
}

func TestEngine_ParameterErrorBeforeTransmission(t *testing.T) {
	po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
	e := session.NewEngine(po, sam, session.WithLogger(quiet))

	_, err := e.Identify(po.AID)
	require.NoError(t, err)
	_, err = e.Open(session.OpenParams{KeyIndex: 1, SFI: 0x08})
	require.NoError(t, err)
	sentBefore := len(po.Log())

	_, err = e.Proceed(
		calypso.AppendRecordCommand{SFI: 0x08, Data: tlv.Hex("01")},
		calypso.ReadRecordsCommand{SFI: 0x20, Record: 1},
	)
	var pe *calypso.ParameterError
	require.ErrorAs(t, err, &pe)
	require.Len(t, po.Log(), sentBefore, "nothing is sent when a queued command is invalid")
	require.Equal(t, session.PhaseFailed, e.Phase())
}

func TestEngine_RecordWriteMustFitOneDigestUpdate(t *testing.T) {
	po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
	po.Files[0x08] = [][]byte{}
	e := session.NewEngine(po, sam, session.WithLogger(quiet))

	_, err := e.Identify(po.AID)
	require.NoError(t, err)
	_, err = e.Open(session.OpenParams{KeyIndex: 1, SFI: 0x08})
	require.NoError(t, err)

	_, err = e.Proceed(calypso.AppendRecordCommand{SFI: 0x08, Data: bytes.Repeat([]byte{0xAA}, calypso.MaxRecordData+1)})
	var pe *calypso.ParameterError
	require.ErrorAs(t, err, &pe)
	require.Zero(t, po.Count(0xE2), "the card never sees the oversized record")
	require.Empty(t, po.Files[0x08])
	require.Equal(t, session.PhaseFailed, e.Phase())
}

func TestEngine_LargestRecordWrite(t *testing.T) {
	po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
	po.Files[0x08] = [][]byte{}
	e := session.NewEngine(po, sam, session.WithLogger(quiet))

	_, err := e.Identify(po.AID)
	require.NoError(t, err)
	record := bytes.Repeat([]byte{0xAA}, calypso.MaxRecordData)
	_, err = e.Open(session.OpenParams{KeyIndex: 1, SFI: 0x08}, calypso.AppendRecordCommand{SFI: 0x08, Data: record})
	require.NoError(t, err)
	_, err = e.Close(true)
	require.NoError(t, err)

	require.Equal(t, session.PhaseAuthenticated, e.Phase())
	require.Equal(t, [][]byte{record}, po.Files[0x08])
	updates := sent(sam.Log(), 0x8C)
	require.Len(t, updates, 2)
	require.Len(t, updates[0], 5+iso7816.MaxShortLc, "the 255-byte append is one digest item")
}

func TestEngine_DigestUpdateMultiple(t *testing.T) {
	po, sam := newPair(calypso.PoRevision31, calypso.SamRevisionC1)
	po.Files[0x08] = [][]byte{tlv.Hex("01"), tlv.Hex("02")}
	e := session.NewEngine(po, sam, session.WithLogger(quiet), session.WithDigestUpdateMultiple(true))

	_, err := e.Identify(po.AID)
	require.NoError(t, err)
	_, err = e.Open(session.OpenParams{KeyIndex: 1, SFI: 0x08})
	require.NoError(t, err)

	out, err := e.Proceed(calypso.ReadRecordsCommand{SFI: 0x08, Record: 1, Multiple: true})
	require.NoError(t, err)
	require.Equal(t, []calypso.Record{
		{Number: 1, Data: tlv.Hex("01")},
		{Number: 2, Data: tlv.Hex("02")},
	}, out[0].Records)

	_, err = e.Close(true, calypso.AppendRecordCommand{SFI: 0x08, Data: tlv.Hex("03")})
	require.NoError(t, err)
	require.Equal(t, session.PhaseAuthenticated, e.Phase())

	updates := sent(sam.Log(), 0x8C)
	require.Len(t, updates, 2, "one update per exchange")
	for _, u := range updates {
		require.Equal(t, byte(0x80), u[2])
	}
}
