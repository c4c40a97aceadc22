package calypso

import (
	"fmt"
	"strings"
)

// OpenSessionResult is the decoded Open Session response.
type OpenSessionResult struct {
	Counter []byte // transaction counter, 3 bytes
	Random  []byte // card random, 1 byte (legacy, 3.1) or 8 bytes (3.2)

	// PreviousRatified is false when the previous session was not ratified.
	PreviousRatified bool
	// ManageSecureSession is the 3.2 flag authorizing session management commands.
	ManageSecureSession bool

	KIF        byte
	KIFPresent bool // legacy cards return no KIF
	KVC        byte
	RecordData []byte

	// Raw is the full response payload, the Digest Init seed.
	Raw []byte
}

// ParseOpenSession decodes data according to the card revision. The layout is selected by
// rev; the payload length is only checked against that layout.
func ParseOpenSession(rev PoRevision, data []byte) (*OpenSessionResult, error) {
	switch rev {
	case PoRevisionLegacy:
		return parseOpenSessionLegacy(data)
	case PoRevision31:
		return parseOpenSessionRev3(data, 4, 1)
	case PoRevision32:
		return parseOpenSessionRev3(data, 11, 8)
	}
	return nil, responseErrorf(KindOpenSession, "unknown revision %s", rev)
}

// Legacy layout: KVC | counter(3) | random(1) | [record(29)] | [not-ratified marker(2)].
func parseOpenSessionLegacy(data []byte) (*OpenSessionResult, error) {
	res := &OpenSessionResult{Raw: clone(data)}
	switch len(data) {
	case 5, 34:
		res.PreviousRatified = true
	case 7, 36:
		res.PreviousRatified = false
	default:
		return nil, responseErrorf(KindOpenSession, "legacy payload of %d bytes, expected 5, 7, 34 or 36", len(data))
	}

	res.KVC = data[0]
	res.Counter = clone(data[1:4])
	res.Random = clone(data[4:5])
	if len(data) >= 34 {
		res.RecordData = clone(data[5:34])
	}
	return res, nil
}

// Rev3 layout: counter(3) | random(n) | flags | KIF | KVC | L | record(L).
// flagsAt is the offset of the flags byte: 4 for 3.1, 11 for 3.2.
func parseOpenSessionRev3(data []byte, flagsAt, randomLen int) (*OpenSessionResult, error) {
	header := flagsAt + 4
	if len(data) < header {
		return nil, responseErrorf(KindOpenSession, "payload of %d bytes is shorter than the %d byte header", len(data), header)
	}
	l := int(data[header-1])
	if len(data) != header+l {
		return nil, responseErrorf(KindOpenSession, "payload of %d bytes, record length %d expects %d", len(data), l, header+l)
	}

	flags := data[flagsAt]
	res := &OpenSessionResult{
		Counter:    clone(data[0:3]),
		Random:     clone(data[3 : 3+randomLen]),
		KIF:        data[flagsAt+1],
		KIFPresent: true,
		KVC:        data[flagsAt+2],
		RecordData: clone(data[header:]),
		Raw:        clone(data),
	}
	if randomLen == 8 {
		res.PreviousRatified = flags&0x01 == 0
		res.ManageSecureSession = flags&0x02 != 0
	} else {
		res.PreviousRatified = flags == 0x00
	}
	return res, nil
}

// CloseSessionResult is the decoded Close Session response.
type CloseSessionResult struct {
	Signature     []byte
	PostponedData []byte
}

// ParseCloseSession decodes the card half-session signature. The payload is either empty,
// the bare signature, or L | postponed data(L) | signature.
func ParseCloseSession(data []byte, signatureLength int) (*CloseSessionResult, error) {
	switch {
	case len(data) == 0:
		return &CloseSessionResult{}, nil
	case len(data) == signatureLength:
		return &CloseSessionResult{Signature: clone(data)}, nil
	case len(data) > signatureLength:
		l := int(data[0])
		if 1+l+signatureLength != len(data) {
			return nil, responseErrorf(KindCloseSession, "postponed data length %d does not match a %d byte payload", l, len(data))
		}
		return &CloseSessionResult{
			PostponedData: clone(data[1 : 1+l]),
			Signature:     clone(data[1+l:]),
		}, nil
	}
	return nil, responseErrorf(KindCloseSession, "payload of %d bytes, expected %d", len(data), signatureLength)
}

// Record is one record returned by Read Records.
type Record struct {
	Number byte
	Data   []byte
}

// ParseReadRecords decodes a Read Records payload. A single-record read returns the record
// as is; a multiple read is a sequence of number | length | data.
func ParseReadRecords(recordNumber byte, multiple bool, data []byte) ([]Record, error) {
	if !multiple {
		return []Record{{Number: recordNumber, Data: clone(data)}}, nil
	}

	var records []Record
	for i := 0; i < len(data); {
		if i+2 > len(data) {
			return nil, responseErrorf(KindReadRecords, "truncated record header at offset %d", i)
		}
		num, l := data[i], int(data[i+1])
		if i+2+l > len(data) {
			return nil, responseErrorf(KindReadRecords, "record %d declares %d bytes, %d left", num, l, len(data)-i-2)
		}
		records = append(records, Record{Number: num, Data: clone(data[i+2 : i+2+l])})
		i += 2 + l
	}
	return records, nil
}

// ParseChallenge checks a Get Challenge payload.
func ParseChallenge(data []byte, length int) ([]byte, error) {
	if len(data) != length {
		return nil, responseErrorf(KindGetChallenge, "challenge of %d bytes, expected %d", len(data), length)
	}
	return clone(data), nil
}

// ParseDigestClose checks a Digest Close payload.
func ParseDigestClose(data []byte, length int) ([]byte, error) {
	if len(data) != length {
		return nil, responseErrorf(KindDigestClose, "signature of %d bytes, expected %d", len(data), length)
	}
	return clone(data), nil
}

// Describe renders the open session outcome in report style.
func (r *OpenSessionResult) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== OPEN SESSION RESPONSE ===\n")
	sb.WriteString(fmt.Sprintf("    + Counter:  %X\n", r.Counter))
	sb.WriteString(fmt.Sprintf("    + Random:   %X\n", r.Random))
	if r.KIFPresent {
		sb.WriteString(fmt.Sprintf("    + KIF:      %02X\n", r.KIF))
	} else {
		sb.WriteString("    + KIF:      (none)\n")
	}
	sb.WriteString(fmt.Sprintf("    + KVC:      %02X\n", r.KVC))
	sb.WriteString(fmt.Sprintf("    + Ratified: %t\n", r.PreviousRatified))
	if len(r.RecordData) > 0 {
		sb.WriteString(fmt.Sprintf("    + Record:   %X\n", r.RecordData))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
