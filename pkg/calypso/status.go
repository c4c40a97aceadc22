package calypso

import (
	"github.com/gregLibert/calypso-session/pkg/iso7816"
)

// Status is the meaning of one status word for one command.
type Status struct {
	Success   bool
	Condition string
}

// StatusTable maps the status words a command may return to their meaning.
type StatusTable map[iso7816.StatusWord]Status

func (t StatusTable) hasSuccess() bool {
	for _, s := range t {
		if s.Success {
			return true
		}
	}
	return false
}

// with returns a copy of t extended with extra.
func (t StatusTable) with(extra StatusTable) StatusTable {
	out := make(StatusTable, len(t)+len(extra))
	for sw, s := range t {
		out[sw] = s
	}
	for sw, s := range extra {
		out[sw] = s
	}
	return out
}

func pass(condition string) Status { return Status{Success: true, Condition: condition} }
func fail(condition string) Status { return Status{Condition: condition} }

var (
	success = StatusTable{
		0x9000: pass("Successful execution"),
	}

	samCommon = success.with(StatusTable{
		0x6D00: fail("Instruction unknown"),
		0x6E00: fail("Class not supported"),
	})

	getDataFCIStatus = success.with(StatusTable{
		0x6283: pass("Successful execution, FCI request and DF is invalidated"),
		0x6A88: fail("Data object not found (optional mode not available)"),
		0x6B00: fail("P1 or P2 value not supported"),
	})

	getDataAIDStatus = success.with(StatusTable{
		0x6A88: fail("Data object not found (optional mode not available)"),
		0x6B00: fail("P1 or P2 value not supported"),
	})

	selectApplicationStatus = success.with(StatusTable{
		0x6283: pass("Successful execution, selected application is invalidated"),
		0x6700: fail("Lc value not supported"),
		0x6A82: fail("File not found"),
		0x6A86: fail("Incorrect P1 or P2"),
	})

	openSessionStatus = success.with(StatusTable{
		0x6700: fail("Lc value not supported"),
		0x6900: fail("Transaction counter is 0"),
		0x6981: fail("Command forbidden (read requested and current EF is a binary file)"),
		0x6982: fail("Security conditions not fulfilled (PIN not presented, encryption required)"),
		0x6985: fail("Access forbidden (never access mode, session already opened)"),
		0x6986: fail("Command not allowed (read requested and no current EF)"),
		0x6A81: fail("Wrong key index"),
		0x6A82: fail("File not found"),
		0x6A83: fail("Record not found (record index is above NumRec)"),
		0x6B00: fail("P1 or P2 value not supported (key index incorrect, wrong P2)"),
	})

	readRecordsStatus = success.with(StatusTable{
		0x6981: fail("Command forbidden on binary files"),
		0x6982: fail("Security conditions not fulfilled (PIN not presented, encryption required)"),
		0x6985: fail("Access forbidden (never access mode, stored value log file)"),
		0x6986: fail("Command not allowed (no current EF)"),
		0x6A82: fail("File not found"),
		0x6A83: fail("Record not found (record index is 0 or above NumRec)"),
		0x6B00: fail("P2 value not supported"),
	})

	updateRecordStatus = success.with(StatusTable{
		0x6400: fail("Too many modifications in session"),
		0x6700: fail("Lc value not supported"),
		0x6981: fail("Command forbidden on cyclic files when the record exists and is not record 01, and on binary files"),
		0x6982: fail("Security conditions not fulfilled (no session, wrong key, encryption required)"),
		0x6985: fail("Access forbidden (never access mode, DF is invalidated)"),
		0x6986: fail("Command not allowed (no current EF)"),
		0x6A82: fail("File not found"),
		0x6A83: fail("Record not found (record index is 0 or above NumRec)"),
		0x6B00: fail("P2 value not supported"),
	})

	appendRecordStatus = success.with(StatusTable{
		0x6400: fail("Too many modifications in session"),
		0x6700: fail("Lc value not supported"),
		0x6981: fail("The current EF is not a cyclic EF"),
		0x6982: fail("Security conditions not fulfilled (no session, wrong key)"),
		0x6985: fail("Access forbidden (never access mode, DF is invalidated)"),
		0x6986: fail("Command not allowed (no current EF)"),
		0x6A82: fail("File not found"),
		0x6B00: fail("P1 or P2 value not supported"),
	})

	closeSessionStatus = success.with(StatusTable{
		0x6700: fail("Lc value not supported (signature length does not match the session mode)"),
		0x6985: fail("No session was opened"),
		0x6988: fail("Incorrect terminal signature"),
		0x6B00: fail("P1 or P2 value not supported"),
	})

	selectDiversifierStatus = samCommon.with(StatusTable{
		0x6700: fail("Lc value not supported"),
		0x6985: fail("Preconditions not satisfied: a session has been opened but not closed"),
	})

	getChallengeStatus = samCommon.with(StatusTable{
		0x6700: fail("Le value not supported"),
	})

	digestInitStatus = samCommon.with(StatusTable{
		0x6700: fail("Lc value not supported"),
		0x6900: fail("An event counter cannot be incremented"),
		0x6985: fail("Preconditions not satisfied"),
		0x6A00: fail("Incorrect P2"),
		0x6A83: fail("Record not found: signing key not found"),
	})

	digestUpdateStatus = samCommon.with(StatusTable{
		0x6700: fail("Lc value not supported"),
		0x6985: fail("Preconditions not satisfied"),
		0x6B00: fail("Incorrect value in P1 or P2"),
		0x6988: fail("Incorrect signature"),
	})

	digestUpdateMultipleStatus = samCommon.with(StatusTable{
		0x6700: fail("Lc value not supported"),
		0x6900: fail("Transaction counter is 0"),
		0x6985: fail("Preconditions not satisfied"),
		0x6A00: fail("Incorrect value in P1 or P2"),
		0x6B00: fail("Incorrect value in P1 or P2"),
	})

	digestCloseStatus = samCommon.with(StatusTable{
		0x6700: fail("Lc value not supported"),
		0x6985: fail("Preconditions not satisfied"),
	})

	digestAuthenticateStatus = samCommon.with(StatusTable{
		0x6700: fail("Lc value not supported"),
		0x6985: fail("Preconditions not satisfied"),
		0x6988: fail("Incorrect signature"),
	})
)

// CheckStatus classifies the status word returned for a command of the given kind.
// Success entries return nil; failure entries and unmapped words return a *StatusError.
func CheckStatus(kind CommandKind, sw iso7816.StatusWord) error {
	d, found := Lookup(kind)
	if !found {
		return &StatusError{Kind: kind, Status: sw, Condition: "unknown command"}
	}
	s, mapped := d.Status(sw)
	if !mapped {
		return &StatusError{Kind: kind, Status: sw, Condition: "unmapped status word (" + sw.Verbose() + ")"}
	}
	if !s.Success {
		return &StatusError{Kind: kind, Status: sw, Condition: s.Condition}
	}
	return nil
}

// IsSuccessful reports whether sw means success for kind.
func IsSuccessful(kind CommandKind, sw iso7816.StatusWord) bool {
	return CheckStatus(kind, sw) == nil
}
