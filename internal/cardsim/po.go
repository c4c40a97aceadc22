package cardsim

import (
	"bytes"

	"github.com/gregLibert/calypso-session/pkg/calypso"
	"github.com/gregLibert/calypso-session/pkg/iso7816"
	"github.com/moov-io/bertlv"
)

const (
	insSelect  = 0xA4
	insGetData = 0xCA
	insOpen    = 0x8A
	insRead    = 0xB2
	insUpdate  = 0xDC
	insAppend  = 0xE2
	insClose   = 0x8E

	legacyRecordSize = 29
	cardKVC          = 0x79
)

// Startup information with an application type byte for each revision. The Rev3.2 value is
// outside both inference ranges, so the terminal keeps its default revision.
var (
	StartupLegacy = []byte{0x0A, 0x3C, 0x10, 0x05, 0x14, 0x10, 0x01}
	Startup31     = []byte{0x0A, 0x3C, 0x23, 0x05, 0x14, 0x10, 0x01}
	Startup32     = []byte{0x0A, 0x3C, 0x90, 0x05, 0x14, 0x10, 0x01}
)

// PO is a simulated Calypso card. Files maps an SFI to its records, record 1 first.
type PO struct {
	recorder

	Revision calypso.PoRevision
	AID      []byte
	Serial   []byte
	Startup  []byte
	Master   []byte
	Files    map[byte][][]byte

	// CorruptSignature flips a bit of the card half-session signature.
	CorruptSignature bool

	selected bool
	counter  uint32
	ratified bool

	inSession  bool
	key        []byte
	transcript [][]byte
	random     byte
}

// NewPO returns a card of revision rev with default identifiers and an empty file 08.
func NewPO(rev calypso.PoRevision, master []byte) *PO {
	startup := Startup31
	switch rev {
	case calypso.PoRevisionLegacy:
		startup = StartupLegacy
	case calypso.PoRevision32:
		startup = Startup32
	}
	return &PO{
		Revision: rev,
		AID:      []byte{0xA0, 0x00, 0x00, 0x02, 0x91, 0xA0, 0x00, 0x00, 0x01, 0x91},
		Serial:   []byte{0x00, 0x00, 0x00, 0x00, 0x12, 0x34, 0x56, 0x78},
		Startup:  startup,
		Master:   master,
		Files:    map[byte][][]byte{0x08: nil},
		counter:  0x030490,
		ratified: true,
	}
}

// Transmit implements iso7816.Transmitter.
func (p *PO) Transmit(raw []byte) ([]byte, error) {
	return p.transmit(raw, p.handle)
}

// InSession reports whether a secure session is open on the card.
func (p *PO) InSession() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inSession
}

// FCI encodes the File Control Information of the application.
func (p *PO) FCI() []byte {
	fci, err := bertlv.Encode([]bertlv.TLV{
		bertlv.NewComposite("6F",
			bertlv.NewTag("84", p.AID),
			bertlv.NewComposite("A5",
				bertlv.NewComposite("BF0C",
					bertlv.NewTag("C7", p.Serial),
					bertlv.NewTag("53", p.Startup),
				),
			),
		),
	})
	if err != nil {
		panic(err)
	}
	return fci
}

func (p *PO) class() byte {
	if p.Revision == calypso.PoRevisionLegacy {
		return 0x94
	}
	return 0x00
}

func (p *PO) handle(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	ins := byte(cmd.Instruction.Raw)

	// Identification commands are accepted with either class.
	if ins != insSelect && ins != insGetData && cmd.Class.Raw != p.class() {
		return status(iso7816.SW_ERR_CLA_NOT_SUPPORTED)
	}

	var resp *iso7816.ResponseAPDU
	switch ins {
	case insSelect:
		resp = p.selectApplication(cmd)
	case insGetData:
		resp = p.getData(cmd)
	case insOpen:
		return p.openSession(cmd)
	case insClose:
		return p.closeSession(cmd)
	case insRead:
		resp = p.readRecords(cmd)
	case insUpdate:
		resp = p.updateRecord(cmd)
	case insAppend:
		resp = p.appendRecord(cmd)
	default:
		return status(iso7816.SW_ERR_INS_INVALID)
	}

	if p.inSession {
		raw, _ := cmd.Bytes()
		p.transcript = append(p.transcript, raw, append(append([]byte(nil), resp.Data...), 0x90, 0x00))
	}
	return resp
}

func (p *PO) selectApplication(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	if iso7816.SelectionMethod(cmd.P1) != iso7816.SelectByDFName || !bytes.Equal(cmd.Data, p.AID) {
		return status(iso7816.SW_ERR_FILE_NOT_FOUND)
	}
	p.selected = true
	return success(p.FCI())
}

func (p *PO) getData(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	if p.inSession {
		return status(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
	}
	switch uint16(cmd.P1)<<8 | uint16(cmd.P2) {
	case calypso.TagFCI:
		if !p.selected {
			return status(iso7816.SW_ERR_REF_DATA_NOT_FOUND)
		}
		return success(p.FCI())
	case calypso.TagAID:
		aid, _ := bertlv.Encode([]bertlv.TLV{bertlv.NewTag("4F", p.AID)})
		return success(aid)
	}
	return status(iso7816.SW_ERR_WRONG_P1P2)
}

func (p *PO) openSession(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	if p.inSession {
		return status(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
	}

	keyIndex := cmd.P1 & 0x07
	record := cmd.P1 >> 3
	sfi := cmd.P2 >> 3
	mode := cmd.P2 & 0x07
	challenge := cmd.Data

	switch p.Revision {
	case calypso.PoRevisionLegacy:
		if cmd.P1&0x80 == 0 || mode != 0 || keyIndex == 0 {
			return status(iso7816.SW_ERR_WRONG_P1P2)
		}
		record &= 0x0F
	case calypso.PoRevision31:
		if mode != 1 {
			return status(iso7816.SW_ERR_WRONG_P1P2)
		}
	case calypso.PoRevision32:
		if mode != 2 || len(challenge) == 0 || challenge[0] != 0x00 {
			return status(iso7816.SW_ERR_WRONG_P1P2)
		}
		challenge = challenge[1:]
	}
	if keyIndex < 1 || keyIndex > calypso.MaxKeyIndex {
		return status(iso7816.SW_ERR_FUNC_NOT_SUPPORTED)
	}
	if len(challenge) != calypso.ChallengeLength(p.Revision) {
		return status(iso7816.SW_ERR_WRONG_LENGTH)
	}

	var recordData []byte
	if record > 0 {
		recs, ok := p.Files[sfi]
		if !ok {
			return status(iso7816.SW_ERR_FILE_NOT_FOUND)
		}
		if int(record) <= len(recs) {
			recordData = recs[record-1]
		}
	}

	kif, _ := calypso.DefaultKIF(keyIndex)
	p.counter--
	p.random++
	counter := []byte{byte(p.counter >> 16), byte(p.counter >> 8), byte(p.counter)}

	var data []byte
	switch p.Revision {
	case calypso.PoRevisionLegacy:
		data = append(data, cardKVC)
		data = append(data, counter...)
		data = append(data, p.random)
		if record > 0 {
			padded := make([]byte, legacyRecordSize)
			copy(padded, recordData)
			data = append(data, padded...)
		}
		if !p.ratified {
			data = append(data, 0x00, 0x00)
		}
	case calypso.PoRevision31:
		flags := byte(0x00)
		if !p.ratified {
			flags = 0x01
		}
		data = append(data, counter...)
		data = append(data, p.random, flags, kif, cardKVC, byte(len(recordData)))
		data = append(data, recordData...)
	case calypso.PoRevision32:
		flags := byte(0x00)
		if !p.ratified {
			flags = 0x01
		}
		data = append(data, counter...)
		data = append(data, bytes.Repeat([]byte{p.random}, 8)...)
		data = append(data, flags, kif, cardKVC, byte(len(recordData)))
		data = append(data, recordData...)
	}

	p.inSession = true
	p.ratified = false
	p.key = sessionKey(p.Master, p.Serial)
	p.transcript = [][]byte{data}
	return success(data)
}

func (p *PO) closeSession(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	if !p.inSession {
		return status(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
	}
	p.inSession = false

	if len(cmd.Data) == 0 {
		return success(nil)
	}

	n := calypso.SignatureLength(p.Revision)
	if len(cmd.Data) != n {
		return status(iso7816.SW_ERR_WRONG_LENGTH)
	}
	if !bytes.Equal(cmd.Data, signature(p.key, terminalHalf, p.transcript, n)) {
		return status(iso7816.SW_ERR_SM_OBJ_INCORRECT)
	}

	sig := signature(p.key, cardHalf, p.transcript, n)
	if p.CorruptSignature {
		sig[0] ^= 0x01
	}
	p.ratified = cmd.P1 == 0x80
	return success(sig)
}

func (p *PO) file(sfi byte) ([][]byte, *iso7816.ResponseAPDU) {
	recs, ok := p.Files[sfi]
	if !ok {
		return nil, status(iso7816.SW_ERR_FILE_NOT_FOUND)
	}
	return recs, nil
}

func (p *PO) readRecords(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	sfi, mode := cmd.P2>>3, cmd.P2&0x07
	recs, errResp := p.file(sfi)
	if errResp != nil {
		return errResp
	}
	if cmd.P1 == 0 || int(cmd.P1) > len(recs) {
		return status(iso7816.SW_ERR_RECORD_NOT_FOUND)
	}

	switch iso7816.ReadRecordMode(mode) {
	case iso7816.RefByNum_ReadP1:
		return success(append([]byte(nil), recs[cmd.P1-1]...))
	case iso7816.RefByNum_ReadAllFromP1:
		var out []byte
		for i := int(cmd.P1); i <= len(recs); i++ {
			out = append(out, byte(i), byte(len(recs[i-1])))
			out = append(out, recs[i-1]...)
		}
		return success(out)
	}
	return status(iso7816.SW_ERR_WRONG_P1P2)
}

func (p *PO) updateRecord(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	sfi, mode := cmd.P2>>3, cmd.P2&0x07
	if iso7816.ReadRecordMode(mode) != iso7816.RefByNum_ReadP1 {
		return status(iso7816.SW_ERR_WRONG_P1P2)
	}
	recs, errResp := p.file(sfi)
	if errResp != nil {
		return errResp
	}
	switch {
	case cmd.P1 == 0 || int(cmd.P1) > len(recs)+1:
		return status(iso7816.SW_ERR_RECORD_NOT_FOUND)
	case int(cmd.P1) == len(recs)+1:
		p.Files[sfi] = append(recs, append([]byte(nil), cmd.Data...))
	default:
		recs[cmd.P1-1] = append([]byte(nil), cmd.Data...)
	}
	return success(nil)
}

func (p *PO) appendRecord(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	sfi, mode := cmd.P2>>3, cmd.P2&0x07
	if cmd.P1 != 0 || mode != 0 {
		return status(iso7816.SW_ERR_WRONG_P1P2)
	}
	recs, errResp := p.file(sfi)
	if errResp != nil {
		return errResp
	}
	p.Files[sfi] = append([][]byte{append([]byte(nil), cmd.Data...)}, recs...)
	return success(nil)
}
