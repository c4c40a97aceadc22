package iso7816

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewInstruction(t *testing.T) {
	tests := []struct {
		ins     InsCode
		want    Instruction
		wantErr bool
	}{
		{ins: INS_SELECT, want: Instruction{Raw: INS_SELECT}},
		{ins: 0xB1, want: Instruction{Raw: INS_READ_BINARY_BER, IsBERTLV: true}},
		{ins: 0x8A, want: Instruction{Raw: 0x8A}},
		{ins: 0x6A, wantErr: true},
		{ins: 0x90, wantErr: true},
		{ins: 0x9F, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ins.String(), func(t *testing.T) {
			got, err := NewInstruction(tt.ins)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewInstruction(0x%02X) error = %v, wantErr %v", byte(tt.ins), err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("NewInstruction(0x%02X) mismatch (-want +got):\n%s", byte(tt.ins), diff)
			}
		})
	}
}

func TestInstruction_Verbose(t *testing.T) {
	tests := map[InsCode]string{
		INS_SELECT:          "INS: 0xA4 | Command: INS_SELECT | Format: Standard",
		INS_READ_BINARY_BER: "INS: 0xB1 | Command: INS_READ_BINARY_BER | Format: BER-TLV",
		0x8E:                "INS: 0x8E | Command: InsCode(0x8E) | Format: Standard",
	}

	for ins, want := range tests {
		if got := MustInstruction(ins).Verbose(); got != want {
			t.Errorf("Verbose() = %q, want %q", got, want)
		}
	}
}

func TestMustInstruction_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustInstruction(0x6A) did not panic")
		}
	}()
	MustInstruction(0x6A)
}
