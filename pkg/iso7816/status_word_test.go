package iso7816

import (
	"strings"
	"testing"
)

func TestStatusWord_Counter(t *testing.T) {
	tests := []struct {
		sw        StatusWord
		isCounter bool
	}{
		{NewStatusWord(0x63, 0xC0), true},
		{NewStatusWord(0x63, 0xCF), true},
		{NewStatusWord(0x63, 0x00), false},
		{NewStatusWord(0x62, 0xC1), false},
	}

	for _, tt := range tests {
		if got := tt.sw.IsCounter(); got != tt.isCounter {
			t.Errorf("SW %04X IsCounter = %v, want %v", uint16(tt.sw), got, tt.isCounter)
		}
	}
}

func TestStatusWord_Classification(t *testing.T) {
	tests := []struct {
		sw                          StatusWord
		isSuccess, isWarning, isErr bool
	}{
		{SW_NO_ERROR, true, false, false},
		{NewStatusWord(0x61, 0x10), true, false, false},
		{SW_WARN_FILE_DEACTIVATED, false, true, false},
		{NewStatusWord(0x63, 0xC2), false, true, false},
		{SW_ERR_WRONG_LENGTH, false, false, true},
		{SW_ERR_SM_OBJ_INCORRECT, false, false, true},
	}

	for _, tt := range tests {
		if got := tt.sw.IsSuccess(); got != tt.isSuccess {
			t.Errorf("SW %04X IsSuccess = %v, want %v", uint16(tt.sw), got, tt.isSuccess)
		}
		if got := tt.sw.IsWarning(); got != tt.isWarning {
			t.Errorf("SW %04X IsWarning = %v, want %v", uint16(tt.sw), got, tt.isWarning)
		}
		if got := tt.sw.IsError(); got != tt.isErr {
			t.Errorf("SW %04X IsError = %v, want %v", uint16(tt.sw), got, tt.isErr)
		}
	}
}

func TestStatusWord_Verbose(t *testing.T) {
	tests := []struct {
		sw       StatusWord
		contains string
	}{
		{NewStatusWord(0x63, 0xC3), "counter = 3"},
		{NewStatusWord(0x61, 0x20), "32 bytes available"},
		{NewStatusWord(0x6C, 0x05), "correct Le is 5"},
		{SW_ERR_SM_OBJ_INCORRECT, "[6988] SW_ERR_SM_OBJ_INCORRECT (Incorrect signature)"},
		{NewStatusWord(0x6A, 0x8F), "[6A8F] Checking Error: Wrong parameters"},
		{NewStatusWord(0x93, 0x00), "Unknown Status"},
	}

	for _, tt := range tests {
		if got := tt.sw.Verbose(); !strings.Contains(got, tt.contains) {
			t.Errorf("Verbose(%04X) = %q; want containing %q", uint16(tt.sw), got, tt.contains)
		}
	}
}

func TestStatusWord_String(t *testing.T) {
	if got := SW_ERR_RECORD_NOT_FOUND.String(); got != "SW_ERR_RECORD_NOT_FOUND" {
		t.Errorf("String() = %q", got)
	}
	if got := NewStatusWord(0x6A, 0x8F).String(); got != "StatusWord(0x6A8F)" {
		t.Errorf("String() = %q", got)
	}
}
