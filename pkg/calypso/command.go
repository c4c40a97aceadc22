package calypso

import (
	"fmt"

	"github.com/gregLibert/calypso-session/pkg/iso7816"
)

// Endpoint tells which party a command is addressed to.
type Endpoint int

const (
	EndpointPO Endpoint = iota
	EndpointSAM
)

func (e Endpoint) String() string {
	if e == EndpointSAM {
		return "SAM"
	}
	return "PO"
}

// CommandKind enumerates the supported commands. The zero value is not a command.
type CommandKind int

const (
	KindGetDataFCI CommandKind = iota + 1
	KindGetDataAID
	KindSelectApplication
	KindOpenSession
	KindReadRecords
	KindUpdateRecord
	KindAppendRecord
	KindCloseSession
	KindSelectDiversifier
	KindGetChallenge
	KindDigestInit
	KindDigestUpdate
	KindDigestUpdateMultiple
	KindDigestClose
	KindDigestAuthenticate
)

func (k CommandKind) String() string {
	if d, ok := descriptors[k]; ok {
		return d.Name
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// Descriptor is the immutable description of one command.
type Descriptor struct {
	Kind     CommandKind
	Name     string
	Ins      iso7816.InsCode
	Endpoint Endpoint

	statuses StatusTable
}

// Status looks sw up in the command's status table.
func (d Descriptor) Status(sw iso7816.StatusWord) (Status, bool) {
	s, ok := d.statuses[sw]
	return s, ok
}

func (d Descriptor) instruction() iso7816.Instruction {
	return iso7816.MustInstruction(d.Ins)
}

var descriptors = map[CommandKind]Descriptor{}

func register(kind CommandKind, name string, ins iso7816.InsCode, ep Endpoint, statuses StatusTable) {
	if _, dup := descriptors[kind]; dup {
		panic(fmt.Sprintf("calypso: command %d registered twice", kind))
	}
	if !statuses.hasSuccess() {
		panic(fmt.Sprintf("calypso: status table of %s has no success entry", name))
	}
	iso7816.MustInstruction(ins)
	descriptors[kind] = Descriptor{Kind: kind, Name: name, Ins: ins, Endpoint: ep, statuses: statuses}
}

func init() {
	register(KindGetDataFCI, "Get Data (FCI)", 0xCA, EndpointPO, getDataFCIStatus)
	register(KindGetDataAID, "Get Data (AID)", 0xCA, EndpointPO, getDataAIDStatus)
	register(KindSelectApplication, "Select Application", 0xA4, EndpointPO, selectApplicationStatus)
	register(KindOpenSession, "Open Session", 0x8A, EndpointPO, openSessionStatus)
	register(KindReadRecords, "Read Records", 0xB2, EndpointPO, readRecordsStatus)
	register(KindUpdateRecord, "Update Record", 0xDC, EndpointPO, updateRecordStatus)
	register(KindAppendRecord, "Append Record", 0xE2, EndpointPO, appendRecordStatus)
	register(KindCloseSession, "Close Session", 0x8E, EndpointPO, closeSessionStatus)
	register(KindSelectDiversifier, "Select Diversifier", 0x14, EndpointSAM, selectDiversifierStatus)
	register(KindGetChallenge, "Get Challenge", 0x84, EndpointSAM, getChallengeStatus)
	register(KindDigestInit, "Digest Init", 0x8A, EndpointSAM, digestInitStatus)
	register(KindDigestUpdate, "Digest Update", 0x8C, EndpointSAM, digestUpdateStatus)
	register(KindDigestUpdateMultiple, "Digest Update Multiple", 0x8C, EndpointSAM, digestUpdateMultipleStatus)
	register(KindDigestClose, "Digest Close", 0x8E, EndpointSAM, digestCloseStatus)
	register(KindDigestAuthenticate, "Digest Authenticate", 0x82, EndpointSAM, digestAuthenticateStatus)
}

func lookup(kind CommandKind) Descriptor {
	d, ok := descriptors[kind]
	if !ok {
		panic(fmt.Sprintf("calypso: unknown command kind %d", int(kind)))
	}
	return d
}

// Lookup returns the descriptor of kind.
func Lookup(kind CommandKind) (Descriptor, bool) {
	d, ok := descriptors[kind]
	return d, ok
}

// Descriptors returns every registered descriptor ordered by kind.
func Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(descriptors))
	for k := KindGetDataFCI; k <= KindDigestAuthenticate; k++ {
		if d, ok := descriptors[k]; ok {
			out = append(out, d)
		}
	}
	return out
}
