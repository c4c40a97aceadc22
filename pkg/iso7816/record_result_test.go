package iso7816

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRecordResult_Describe(t *testing.T) {
	cmd := ReadRecord(Class{}, 1, 1)
	resp := ResponseAPDU{
		Data:   []byte("HELLO"),
		Status: SW_NO_ERROR,
	}

	res, err := NewRecordResult(Trace{{Command: cmd, Response: &resp}})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	actualLines := strings.Split(res.Describe(), "\n")
	expectedLines := []string{
		"=== READ RECORD COMMAND REPORT ===",
		"[1] Command: READ RECORD",
		"    + Target:  SFI 01 (1)",
		"    + P1:      01 -> Record Number 1",
		"    + Mode:    04 -> Ref Num: Record P1",
		"    + Result:  [90 00] [OK] SW_NO_ERROR",
		"",
		"[=] DATA OUTCOME:",
		"    + Length: 5 bytes",
		"    + Dump:   48454C4C4F",
		`    + ASCII:  "HELLO"`,
	}

	if diff := cmp.Diff(expectedLines, actualLines); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordResult_Describe_NotFound(t *testing.T) {
	cmd := NewReadRecordCommand(Class{}, 2, 0xFE, RefByID_NextOccurrence)
	resp := ResponseAPDU{Status: SW_ERR_RECORD_NOT_FOUND}

	res, _ := NewRecordResult(Trace{{Command: cmd, Response: &resp}})
	actualLines := strings.Split(res.Describe(), "\n")

	expectedLines := []string{
		"=== READ RECORD COMMAND REPORT ===",
		"[1] Command: READ RECORD",
		"    + Target:  SFI 02 (2)",
		"    + P1:      FE -> Record Identifier FE",
		"    + Mode:    02 -> Ref ID: Next Occurrence",
		"    + Result:  [6A 83] [!!] [6A83] SW_ERR_RECORD_NOT_FOUND (Record not found)",
		"",
		"[=] DATA OUTCOME:",
		"    - No Data Received.",
	}

	if diff := cmp.Diff(expectedLines, actualLines); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordResult_Describe_Append(t *testing.T) {
	cmd := AppendRecord(MustClass(0x94), 0x19, []byte{0xCA, 0xFE})
	resp := ResponseAPDU{Status: SW_NO_ERROR}

	res, err := NewRecordResult(Trace{{Command: cmd, Response: &resp}})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	actualLines := strings.Split(res.Describe(), "\n")
	expectedLines := []string{
		"=== APPEND RECORD COMMAND REPORT ===",
		"[1] Command: APPEND RECORD",
		"    + Target:  SFI 19 (25)",
		"    + P1:      00 -> New Record",
		"    + Written: CAFE",
		"    + Result:  [90 00] [OK] SW_NO_ERROR",
		"",
		"[=] DATA OUTCOME:",
		"    - No Data Received.",
	}

	if diff := cmp.Diff(expectedLines, actualLines); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRecordResult_RejectsOtherCommands(t *testing.T) {
	cmd := GetData(Class{}, 0x006F)
	if _, err := NewRecordResult(Trace{{Command: cmd, Response: &ResponseAPDU{Status: SW_NO_ERROR}}}); err == nil {
		t.Fatal("expected an error for a GET DATA trace")
	}
	if _, err := NewRecordResult(nil); err == nil {
		t.Fatal("expected an error for an empty trace")
	}
}
