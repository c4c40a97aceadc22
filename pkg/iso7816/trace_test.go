package iso7816

import "testing"

func tx(cmd *CommandAPDU, sw StatusWord) Transaction {
	if cmd == nil {
		cmd = &CommandAPDU{}
	}
	return Transaction{Command: cmd, Response: &ResponseAPDU{Status: sw}}
}

func TestTransaction_IsSuccess(t *testing.T) {
	tests := []struct {
		name string
		tx   Transaction
		want bool
	}{
		{"9000", tx(nil, SW_NO_ERROR), true},
		{"61XX counts as success", tx(nil, NewStatusWord(0x61, 0x10)), true},
		{"6A82", tx(nil, SW_ERR_FILE_NOT_FOUND), false},
		{"no response", Transaction{Command: &CommandAPDU{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tx.IsSuccess(); got != tt.want {
				t.Errorf("IsSuccess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrace_IsSuccess(t *testing.T) {
	tests := []struct {
		name  string
		trace Trace
		want  bool
	}{
		{"empty", nil, false},
		{"single 9000", Trace{tx(nil, SW_NO_ERROR)}, true},
		{"61XX then 9000", Trace{tx(nil, NewStatusWord(0x61, 0x10)), tx(nil, SW_NO_ERROR)}, true},
		{"9000 then 6985", Trace{tx(nil, SW_NO_ERROR), tx(nil, SW_ERR_COND_OF_USE_NOT_SAT)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.trace.IsSuccess(); got != tt.want {
				t.Errorf("IsSuccess() = %v, want %v", got, tt.want)
			}
			if (tt.trace.Last() == nil) != (len(tt.trace) == 0) {
				t.Errorf("Last() inconsistent with length %d", len(tt.trace))
			}
		})
	}
}

func TestTrace_ProcessedAndResponse(t *testing.T) {
	var empty Trace
	if empty.Processed() != nil || empty.Response() != nil {
		t.Fatal("empty trace has neither processed command nor response")
	}

	cls := MustClass(ClaCalypsoLegacy)
	read := ReadRecord(cls, 0x08, 1)
	corrected := *read
	corrected.Ne = 0x1D
	getResponse := NewCommandAPDU(cls, MustInstruction(INS_GET_RESPONSE), 0, 0, nil, 0x1D)
	final := &ResponseAPDU{Data: []byte{0x01}, Status: SW_NO_ERROR}

	tr := Trace{
		tx(read, NewStatusWord(0x6C, 0x1D)),
		tx(&corrected, NewStatusWord(0x61, 0x1D)),
		{Command: getResponse, Response: final},
	}

	if got := tr.Processed(); got != &corrected {
		t.Errorf("Processed() = %v, want the re-issued command", got)
	}
	if got := tr.Response(); got != final {
		t.Errorf("Response() = %v, want the GET RESPONSE answer", got)
	}
}
