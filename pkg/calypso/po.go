package calypso

import (
	"fmt"

	"github.com/gregLibert/calypso-session/pkg/iso7816"
)

// Data object tags reachable with GET DATA.
const (
	TagFCI uint16 = 0x006F
	TagAID uint16 = 0x004F
)

const (
	minAIDLength = 5
	maxAIDLength = 16
)

// GetDataFCI reads the File Control Information of the selected application.
// It is only valid outside a secure session.
func GetDataFCI(rev PoRevision) (*Request, error) {
	return getData(KindGetDataFCI, rev, TagFCI)
}

// GetDataAID probes the AID of the current application.
func GetDataAID(rev PoRevision) (*Request, error) {
	return getData(KindGetDataAID, rev, TagAID)
}

func getData(kind CommandKind, rev PoRevision, tag uint16) (*Request, error) {
	cla, err := PoClass(rev)
	if err != nil {
		return nil, err
	}
	apdu := iso7816.GetData(cla, tag)
	return &Request{Kind: kind, APDU: apdu}, nil
}

// SelectApplication selects an application by AID.
func SelectApplication(rev PoRevision, aid []byte) (*Request, error) {
	if len(aid) < minAIDLength || len(aid) > maxAIDLength {
		return nil, &ParameterError{Kind: KindSelectApplication, Field: "aid", Reason: fmt.Sprintf("length %d outside %d..%d", len(aid), minAIDLength, maxAIDLength)}
	}
	cla, err := PoClass(rev)
	if err != nil {
		return nil, err
	}
	return &Request{Kind: KindSelectApplication, APDU: iso7816.SelectByAID(cla, aid)}, nil
}

// OpenSession opens a secure session with the SAM challenge. Legacy cards take no Le.
func OpenSession(rev PoRevision, keyIndex, sfi, recordNumber byte, challenge []byte) (*Request, error) {
	p1, p2, pad, err := OpenSessionParams(rev, keyIndex, recordNumber, sfi)
	if err != nil {
		return nil, err
	}
	if want := ChallengeLength(rev); len(challenge) != want {
		return nil, &ParameterError{Kind: KindOpenSession, Field: "challenge", Reason: fmt.Sprintf("length %d, %s expects %d", len(challenge), rev, want)}
	}
	cla, err := PoClass(rev)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, len(challenge)+1)
	if pad {
		data = append(data, 0x00)
	}
	data = append(data, challenge...)

	ne := iso7816.MaxShortLe
	if rev == PoRevisionLegacy {
		ne = 0
	}
	return newRequest(KindOpenSession, cla, p1, p2, data, ne), nil
}

// ReadRecords reads one record, or every record from recordNumber to the end of the file.
func ReadRecords(rev PoRevision, sfi, recordNumber byte, multiple bool) (*Request, error) {
	if err := checkRecordTarget(KindReadRecords, sfi, recordNumber); err != nil {
		return nil, err
	}
	cla, err := PoClass(rev)
	if err != nil {
		return nil, err
	}
	mode := iso7816.RefByNum_ReadP1
	if multiple {
		mode = iso7816.RefByNum_ReadAllFromP1
	}
	return &Request{Kind: KindReadRecords, APDU: iso7816.NewReadRecordCommand(cla, sfi, recordNumber, mode)}, nil
}

// UpdateRecord overwrites a record.
func UpdateRecord(rev PoRevision, sfi, recordNumber byte, data []byte) (*Request, error) {
	if err := checkRecordTarget(KindUpdateRecord, sfi, recordNumber); err != nil {
		return nil, err
	}
	if err := checkRecordData(KindUpdateRecord, data); err != nil {
		return nil, err
	}
	cla, err := PoClass(rev)
	if err != nil {
		return nil, err
	}
	return &Request{Kind: KindUpdateRecord, APDU: iso7816.UpdateRecord(cla, sfi, recordNumber, data)}, nil
}

// AppendRecord adds a record to a cyclic file.
func AppendRecord(rev PoRevision, sfi byte, data []byte) (*Request, error) {
	if sfi > iso7816.MaxSFI {
		return nil, &ParameterError{Kind: KindAppendRecord, Field: "sfi", Reason: fmt.Sprintf("0x%02X is above 0x1F", sfi)}
	}
	if err := checkRecordData(KindAppendRecord, data); err != nil {
		return nil, err
	}
	cla, err := PoClass(rev)
	if err != nil {
		return nil, err
	}
	return &Request{Kind: KindAppendRecord, APDU: iso7816.AppendRecord(cla, sfi, data)}, nil
}

// CloseSession closes the secure session. An empty signature aborts the session.
func CloseSession(rev PoRevision, ratify bool, signature []byte) (*Request, error) {
	if n := len(signature); n != 0 && n != 4 && n != 8 {
		return nil, &ParameterError{Kind: KindCloseSession, Field: "signature", Reason: fmt.Sprintf("length %d, expected 4 or 8", n)}
	}
	cla, err := PoClass(rev)
	if err != nil {
		return nil, err
	}
	var p1 byte
	if ratify {
		p1 = 0x80
	}
	return newRequest(KindCloseSession, cla, p1, 0x00, signature, iso7816.MaxShortLe), nil
}

func checkRecordTarget(kind CommandKind, sfi, recordNumber byte) error {
	if sfi > iso7816.MaxSFI {
		return &ParameterError{Kind: kind, Field: "sfi", Reason: fmt.Sprintf("0x%02X is above 0x1F", sfi)}
	}
	if recordNumber < 1 {
		return &ParameterError{Kind: kind, Field: "record number", Reason: "must be at least 1"}
	}
	if recordNumber > MaxRecordNumber {
		return &ParameterError{Kind: kind, Field: "record number", Reason: fmt.Sprintf("0x%02X is above 0x1F", recordNumber)}
	}
	return nil
}

func checkRecordData(kind CommandKind, data []byte) error {
	if len(data) < 1 || len(data) > MaxRecordData {
		return &ParameterError{Kind: kind, Field: "record data", Reason: fmt.Sprintf("length %d outside 1..%d", len(data), MaxRecordData)}
	}
	return nil
}

func checkData(kind CommandKind, field string, data []byte, min int) error {
	if len(data) < min || len(data) > iso7816.MaxShortLc {
		return &ParameterError{Kind: kind, Field: field, Reason: fmt.Sprintf("length %d outside %d..%d", len(data), min, iso7816.MaxShortLc)}
	}
	return nil
}

// PoCommand is a card command queued for a session phase. Implementations are
// ReadRecordsCommand, UpdateRecordCommand and AppendRecordCommand.
type PoCommand interface {
	Kind() CommandKind
	Build(rev PoRevision) (*Request, error)
	isPoCommand()
}

// ReadRecordsCommand reads Record, or every record from Record when Multiple is set.
type ReadRecordsCommand struct {
	SFI      byte
	Record   byte
	Multiple bool
}

func (ReadRecordsCommand) Kind() CommandKind { return KindReadRecords }
func (ReadRecordsCommand) isPoCommand()      {}

func (c ReadRecordsCommand) Build(rev PoRevision) (*Request, error) {
	return ReadRecords(rev, c.SFI, c.Record, c.Multiple)
}

type UpdateRecordCommand struct {
	SFI    byte
	Record byte
	Data   []byte
}

func (UpdateRecordCommand) Kind() CommandKind { return KindUpdateRecord }
func (UpdateRecordCommand) isPoCommand()      {}

func (c UpdateRecordCommand) Build(rev PoRevision) (*Request, error) {
	return UpdateRecord(rev, c.SFI, c.Record, c.Data)
}

type AppendRecordCommand struct {
	SFI  byte
	Data []byte
}

func (AppendRecordCommand) Kind() CommandKind { return KindAppendRecord }
func (AppendRecordCommand) isPoCommand()      {}

func (c AppendRecordCommand) Build(rev PoRevision) (*Request, error) {
	return AppendRecord(rev, c.SFI, c.Data)
}
