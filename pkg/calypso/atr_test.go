package calypso

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/calypso-session/pkg/tlv"
)

func TestParseSamATR(t *testing.T) {
	tests := []struct {
		name    string
		atr     []byte
		want    SamRevision
		serial  []byte
		wantErr bool
	}{
		{"C1 with 3 interface bytes", tlv.Hex("3B 3F9600 805A 0080C1200000 11223344 829000"), SamRevisionC1, tlv.Hex("11223344"), false},
		{"S1D3", tlv.Hex("3B 3F9600 805A 0080D2200000 A1A2A3A4 829000"), SamRevisionS1D, tlv.Hex("A1A2A3A4"), false},
		{"S1E with 5 interface bytes", tlv.Hex("3B DF18FF81 F1 805A 0080E1200000 00000001 829000"), SamRevisionS1E, tlv.Hex("00000001"), false},
		{"Unknown subtype", tlv.Hex("3B 3F9600 805A 0080B1200000 11223344 829000"), 0, nil, true},
		{"Not a SAM", tlv.Hex("3B 8F8001 804F0CA000000306030001000000006A"), 0, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSamATR(tt.atr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSamATR() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Revision != tt.want {
				t.Errorf("Revision = %s, want %s", got.Revision, tt.want)
			}
			if diff := cmp.Diff(tt.serial, got.SerialNumber); diff != "" {
				t.Errorf("Serial mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveSamRevision(t *testing.T) {
	atr := tlv.Hex("3B 3F9600 805A 0080C1200000 11223344 829000")

	if rev, err := ResolveSamRevision(SamRevisionS1D, nil); err != nil || rev != SamRevisionS1D {
		t.Errorf("explicit revision must be kept, got %s, %v", rev, err)
	}
	if rev, err := ResolveSamRevision(SamRevisionAuto, atr); err != nil || rev != SamRevisionC1 {
		t.Errorf("Auto resolved to %s, %v", rev, err)
	}
	if _, err := ResolveSamRevision(SamRevisionAuto, tlv.Hex("3B00")); err == nil {
		t.Error("Auto with a foreign ATR must fail")
	}
}
