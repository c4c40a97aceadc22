package iso7816

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/calypso-session/pkg/tlv"
)

func TestCommandAPDU_Encoding(t *testing.T) {
	iso := MustClass(ClaISO)
	sam := MustClass(ClaCalypsoSAM)
	legacy := MustClass(ClaCalypsoLegacy)

	tests := []struct {
		name     string
		cmd      *CommandAPDU
		wantCase int
		expected []byte
	}{
		{
			name:     "case 1, session abort",
			cmd:      NewCommandAPDU(legacy, MustInstruction(0x8E), 0x00, 0x00, nil, 0),
			wantCase: 1,
			expected: tlv.Hex("94 8E 00 00"),
		},
		{
			name:     "case 2, Le 00 is 256",
			cmd:      NewCommandAPDU(iso, MustInstruction(INS_GET_DATA), 0x00, 0x6F, nil, MaxShortLe),
			wantCase: 2,
			expected: tlv.Hex("00 CA 00 6F 00"),
		},
		{
			name:     "case 3, digest update",
			cmd:      NewCommandAPDU(sam, MustInstruction(0x8C), 0x00, 0x00, tlv.Hex("9000"), 0),
			wantCase: 3,
			expected: tlv.Hex("80 8C 00 00 02 9000"),
		},
		{
			name:     "case 4, close session",
			cmd:      NewCommandAPDU(iso, MustInstruction(0x8E), 0x80, 0x00, tlv.Hex("11223344"), 4),
			wantCase: 4,
			expected: tlv.Hex("00 8E 80 00 04 11223344 04"),
		},
		{
			name:     "extended Lc",
			cmd:      NewCommandAPDU(iso, MustInstruction(INS_UPDATE_RECORD), 0x01, 0x44, make([]byte, 260), 0),
			wantCase: 3,
			expected: append(tlv.Hex("00 DC 01 44 00 0104"), make([]byte, 260)...),
		},
		{
			name:     "extended Le without data",
			cmd:      NewCommandAPDU(iso, MustInstruction(INS_READ_BINARY), 0x00, 0x00, nil, MaxExtendedLe),
			wantCase: 2,
			expected: tlv.Hex("00 B0 00 00 00 0000"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmd.Case(); got != tt.wantCase {
				t.Errorf("Case() = %d, want %d", got, tt.wantCase)
			}
			got, err := tt.cmd.Bytes()
			if err != nil {
				t.Fatalf("Bytes() failed: %v", err)
			}
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("encoding mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCommandAPDU_EncodingLimits(t *testing.T) {
	iso := MustClass(ClaISO)
	if _, err := NewCommandAPDU(iso, MustInstruction(INS_SELECT), 0, 0, nil, MaxExtendedLe+1).Bytes(); err == nil {
		t.Error("Ne above 65536 must fail")
	}
	if _, err := NewCommandAPDU(iso, MustInstruction(INS_SELECT), 0, 0, make([]byte, MaxExtendedLc+1), 0).Bytes(); err == nil {
		t.Error("Nc above 65535 must fail")
	}
}

func TestParseResponseAPDU(t *testing.T) {
	raw := tlv.Hex("0102039000")
	resp, err := ParseResponseAPDU(raw)

	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if diff := cmp.Diff(tlv.Hex("010203"), resp.Data); diff != "" {
		t.Errorf("Data mismatch (-want +got):\n%s", diff)
	}
	raw[0] = 0xFF
	if resp.Data[0] != 0x01 {
		t.Error("response data must not alias the raw buffer")
	}
	if resp.Status != SW_NO_ERROR {
		t.Errorf("Wrong status: got %04X, want %04X", uint16(resp.Status), uint16(SW_NO_ERROR))
	}
}

func TestParseResponseAPDU_TooShort(t *testing.T) {
	if _, err := ParseResponseAPDU([]byte{0x90}); err == nil {
		t.Error("Expected error for short response, got nil")
	}
}

func TestParseCommandAPDU(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantData string
		wantNe   int
		wantErr  bool
	}{
		{name: "Case 1", raw: "948E0000"},
		{name: "Case 2 Le=00", raw: "00CA006F00", wantNe: 256},
		{name: "Case 3", raw: "948A8B400411223344", wantData: "11223344"},
		{name: "Case 4", raw: "008A0B41041122334400", wantData: "11223344", wantNe: 256},
		{name: "Too short", raw: "94B2", wantErr: true},
		{name: "Inconsistent Lc", raw: "94DC01440511", wantErr: true},
		{name: "Extended length", raw: "94DC0144000001AA", wantErr: true},
		{name: "Reserved INS", raw: "946A0000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, _ := hex.DecodeString(tt.raw)
			cmd, err := ParseCommandAPDU(raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommandAPDU() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := strings.ToUpper(hex.EncodeToString(cmd.Data)); got != tt.wantData {
				t.Errorf("Data = %s, want %s", got, tt.wantData)
			}
			if cmd.Ne != tt.wantNe {
				t.Errorf("Ne = %d, want %d", cmd.Ne, tt.wantNe)
			}

			// Short commands must encode back to the same bytes.
			again, err := cmd.Bytes()
			if err != nil {
				t.Fatalf("Bytes() failed: %v", err)
			}
			if got := strings.ToUpper(hex.EncodeToString(again)); got != strings.ToUpper(tt.raw) {
				t.Errorf("Re-encoded = %s, want %s", got, tt.raw)
			}
		})
	}
}

func TestResponseAPDU_Bytes(t *testing.T) {
	resp := &ResponseAPDU{Data: []byte{0xCA, 0xFE}, Status: NewStatusWord(0x62, 0x83)}
	if got := hex.EncodeToString(resp.Bytes()); got != "cafe6283" {
		t.Errorf("Bytes() = %s, want cafe6283", got)
	}
}
