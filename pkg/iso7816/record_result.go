package iso7816

import (
	"fmt"
	"strings"

	"github.com/gregLibert/calypso-session/pkg/tlv"
)

// RecordResult is the outcome of a READ, UPDATE or APPEND RECORD exchange.
type RecordResult struct {
	Trace
}

func NewRecordResult(t Trace) (*RecordResult, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("cannot create result from empty trace")
	}

	switch ins := t[0].Command.Instruction.Raw; ins {
	case INS_READ_RECORD, INS_UPDATE_RECORD, INS_APPEND_RECORD:
	default:
		return nil, fmt.Errorf("trace must start with a record command (got %02X)", byte(ins))
	}

	return &RecordResult{Trace: t}, nil
}

func recordCommandName(ins InsCode) string {
	switch ins {
	case INS_UPDATE_RECORD:
		return "UPDATE RECORD"
	case INS_APPEND_RECORD:
		return "APPEND RECORD"
	default:
		return "READ RECORD"
	}
}

// Describe generates a detailed, ASCII-formatted report of the record operation.
func (r *RecordResult) Describe() string {
	var sb strings.Builder

	tx0 := r.Trace[0]
	cmd := tx0.Command
	name := recordCommandName(cmd.Instruction.Raw)

	sb.WriteString(fmt.Sprintf("=== %s COMMAND REPORT ===\n", name))

	sfi := cmd.P2 >> 3
	mode := ReadRecordMode(cmd.P2 & 0x07)

	sb.WriteString(fmt.Sprintf("[1] Command: %s\n", name))

	targetStr := "Current EF"
	if sfi > 0 {
		targetStr = fmt.Sprintf("SFI %02X (%d)", sfi, sfi)
	}
	sb.WriteString(fmt.Sprintf("    + Target:  %s\n", targetStr))

	if cmd.Instruction.Raw == INS_APPEND_RECORD {
		sb.WriteString("    + P1:      00 -> New Record\n")
	} else {
		p1Desc := fmt.Sprintf("Record Identifier %02X", cmd.P1)
		if (mode & 0b100) != 0 {
			if cmd.P1 == 0 {
				p1Desc = "Current Record"
			} else {
				p1Desc = fmt.Sprintf("Record Number %d", cmd.P1)
			}
		}
		sb.WriteString(fmt.Sprintf("    + P1:      %02X -> %s\n", cmd.P1, p1Desc))
		sb.WriteString(fmt.Sprintf("    + Mode:    %02X -> %s\n", byte(mode), mode))
	}

	if len(cmd.Data) > 0 {
		sb.WriteString(fmt.Sprintf("    + Written: %X\n", cmd.Data))
	}

	status := tx0.Response.Status
	resultMsg := "[OK]"
	resultDesc := "SW_NO_ERROR"

	switch {
	case status.SW1() == 0x61:
		resultDesc = fmt.Sprintf("%02X (%d) bytes still available", status.SW2(), status.SW2())
	case status.SW1() == 0x6C:
		resultMsg = "[!!]"
		resultDesc = fmt.Sprintf("Wrong length, correct is %02X (%d)", status.SW2(), status.SW2())
	case status != SW_NO_ERROR:
		resultMsg = "[!!]"
		resultDesc = status.Verbose()
	}

	sb.WriteString(fmt.Sprintf("    + Result:  [%02X %02X] %s %s\n", status.SW1(), status.SW2(), resultMsg, resultDesc))
	sb.WriteString("\n")

	lastTx := r.Last()
	if len(r.Trace) > 1 {
		sb.WriteString(fmt.Sprintf("[2] Protocol: Auto-handling (%d steps)\n", len(r.Trace)))
		sb.WriteString(fmt.Sprintf("    + Final SW: [%04X]\n", uint16(lastTx.Response.Status)))
	}

	finalPayload := lastTx.Response.Data
	sb.WriteString("[=] DATA OUTCOME:\n")
	if len(finalPayload) > 0 {
		sb.WriteString(fmt.Sprintf("    + Length: %d bytes\n", len(finalPayload)))
		sb.WriteString(fmt.Sprintf("    + Dump:   %X\n", finalPayload))
		sb.WriteString(fmt.Sprintf("    + ASCII:  %q\n", tlv.MakeSafeASCII(finalPayload)))
	} else {
		sb.WriteString("    - No Data Received.\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}
