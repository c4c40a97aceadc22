package iso7816

import (
	"fmt"

	"github.com/gregLibert/calypso-session/pkg/bits"
)

// StatusWord is SW1-SW2. Two ranges carry a value instead of a fixed meaning:
//
//	61XX  XX more bytes are waiting for GET RESPONSE
//	6CXX  wrong Le, XX is the right one
//
// and 63CX reports a counter X (remaining tries) in the low nibble.
type StatusWord uint16

// NewStatusWord assembles SW1 and SW2.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

func (sw StatusWord) SW1() byte { return byte(sw >> 8) }
func (sw StatusWord) SW2() byte { return byte(sw) }

// IsCounter reports a 63CX status.
func (sw StatusWord) IsCounter() bool {
	return sw.SW1() == 0x63 && bits.GetRange(sw.SW2(), 8, 5) == 0x0C
}

// IsSuccess is true for 9000 and for 61XX, where the data is complete once fetched.
func (sw StatusWord) IsSuccess() bool {
	return sw == SW_NO_ERROR || sw.SW1() == 0x61
}

// IsWarning is true for 62XX and 63XX.
func (sw StatusWord) IsWarning() bool {
	sw1 := sw.SW1()
	return sw1 == 0x62 || sw1 == 0x63
}

// IsError is true for the execution and checking errors 64XX to 6FXX.
func (sw StatusWord) IsError() bool {
	sw1 := sw.SW1()
	return sw1 >= 0x64 && sw1 <= 0x6F
}

// Verbose describes sw for reports.
func (sw StatusWord) Verbose() string {
	switch sw1, sw2 := sw.SW1(), sw.SW2(); {
	case sw1 == 0x61:
		return fmt.Sprintf("Process completed, %d bytes available", sw2)
	case sw1 == 0x6C:
		return fmt.Sprintf("Wrong length, correct Le is %d", sw2)
	case sw.IsCounter():
		return fmt.Sprintf("Warning: State changed, counter = %d", bits.GetRange(sw2, 4, 1))
	}

	if info, ok := statusWords[sw]; ok {
		return fmt.Sprintf("[%04X] %s (%s)", uint16(sw), info.name, info.meaning)
	}
	return fmt.Sprintf("[%04X] %s", uint16(sw), sw.category())
}

// category is the ISO meaning of SW1 alone.
func (sw StatusWord) category() string {
	switch sw.SW1() {
	case 0x62:
		return "Warning: NV memory unchanged"
	case 0x63:
		return "Warning: NV memory changed"
	case 0x64:
		return "Execution Error: NV memory unchanged"
	case 0x65:
		return "Execution Error: NV memory changed"
	case 0x67:
		return "Checking Error: Wrong length"
	case 0x68:
		return "Checking Error: Function not supported"
	case 0x69:
		return "Checking Error: Command not allowed"
	case 0x6A, 0x6B:
		return "Checking Error: Wrong parameters"
	default:
		return "Unknown Status"
	}
}

func (sw StatusWord) String() string {
	if info, ok := statusWords[sw]; ok {
		return info.name
	}
	return fmt.Sprintf("StatusWord(0x%04X)", uint16(sw))
}

// Status words met in Calypso card and SAM exchanges (ISO/IEC 7816-4).
const (
	SW_NO_ERROR StatusWord = 0x9000

	SW_WARN_FILE_DEACTIVATED StatusWord = 0x6283
	SW_WARN_EOF_REACHED      StatusWord = 0x6282

	SW_ERR_EXEC_NO_INFO   StatusWord = 0x6400
	SW_ERR_MEMORY_FAILURE StatusWord = 0x6581

	SW_ERR_WRONG_LENGTH StatusWord = 0x6700

	SW_ERR_CMD_NOT_ALLOWED_NO_INFO StatusWord = 0x6900
	SW_ERR_CMD_INCOMPATIBLE_FILE   StatusWord = 0x6981
	SW_ERR_SECURITY_STATUS_NOT_SAT StatusWord = 0x6982
	SW_ERR_AUTH_METHOD_BLOCKED     StatusWord = 0x6983
	SW_ERR_COND_OF_USE_NOT_SAT     StatusWord = 0x6985
	SW_ERR_CMD_NOT_ALLOWED_NO_EF   StatusWord = 0x6986
	SW_ERR_SM_OBJ_INCORRECT        StatusWord = 0x6988

	SW_ERR_WRONG_PARAMS_NO_INFO  StatusWord = 0x6A00
	SW_ERR_FUNC_NOT_SUPPORTED    StatusWord = 0x6A81
	SW_ERR_FILE_NOT_FOUND        StatusWord = 0x6A82
	SW_ERR_RECORD_NOT_FOUND      StatusWord = 0x6A83
	SW_ERR_INCORRECT_PARAMS_P1P2 StatusWord = 0x6A86
	SW_ERR_REF_DATA_NOT_FOUND    StatusWord = 0x6A88

	SW_ERR_WRONG_P1P2        StatusWord = 0x6B00
	SW_ERR_INS_INVALID       StatusWord = 0x6D00
	SW_ERR_CLA_NOT_SUPPORTED StatusWord = 0x6E00
	SW_ERR_UNKNOWN           StatusWord = 0x6F00
)

var statusWords = map[StatusWord]struct{ name, meaning string }{
	SW_NO_ERROR:                    {"SW_NO_ERROR", "Successful execution"},
	SW_WARN_FILE_DEACTIVATED:       {"SW_WARN_FILE_DEACTIVATED", "Selected file invalidated"},
	SW_WARN_EOF_REACHED:            {"SW_WARN_EOF_REACHED", "End of file reached"},
	SW_ERR_EXEC_NO_INFO:            {"SW_ERR_EXEC_NO_INFO", "Execution error"},
	SW_ERR_MEMORY_FAILURE:          {"SW_ERR_MEMORY_FAILURE", "Memory failure"},
	SW_ERR_WRONG_LENGTH:            {"SW_ERR_WRONG_LENGTH", "Wrong length"},
	SW_ERR_CMD_NOT_ALLOWED_NO_INFO: {"SW_ERR_CMD_NOT_ALLOWED_NO_INFO", "Command not allowed"},
	SW_ERR_CMD_INCOMPATIBLE_FILE:   {"SW_ERR_CMD_INCOMPATIBLE_FILE", "Command incompatible with file structure"},
	SW_ERR_SECURITY_STATUS_NOT_SAT: {"SW_ERR_SECURITY_STATUS_NOT_SAT", "Security status not satisfied"},
	SW_ERR_AUTH_METHOD_BLOCKED:     {"SW_ERR_AUTH_METHOD_BLOCKED", "Authentication method blocked"},
	SW_ERR_COND_OF_USE_NOT_SAT:     {"SW_ERR_COND_OF_USE_NOT_SAT", "Conditions of use not satisfied"},
	SW_ERR_CMD_NOT_ALLOWED_NO_EF:   {"SW_ERR_CMD_NOT_ALLOWED_NO_EF", "Command not allowed, no current EF"},
	SW_ERR_SM_OBJ_INCORRECT:        {"SW_ERR_SM_OBJ_INCORRECT", "Incorrect signature"},
	SW_ERR_WRONG_PARAMS_NO_INFO:    {"SW_ERR_WRONG_PARAMS_NO_INFO", "Wrong parameters"},
	SW_ERR_FUNC_NOT_SUPPORTED:      {"SW_ERR_FUNC_NOT_SUPPORTED", "Function not supported"},
	SW_ERR_FILE_NOT_FOUND:          {"SW_ERR_FILE_NOT_FOUND", "File not found"},
	SW_ERR_RECORD_NOT_FOUND:        {"SW_ERR_RECORD_NOT_FOUND", "Record not found"},
	SW_ERR_INCORRECT_PARAMS_P1P2:   {"SW_ERR_INCORRECT_PARAMS_P1P2", "Incorrect P1 or P2"},
	SW_ERR_REF_DATA_NOT_FOUND:      {"SW_ERR_REF_DATA_NOT_FOUND", "Referenced data not found"},
	SW_ERR_WRONG_P1P2:              {"SW_ERR_WRONG_P1P2", "Wrong P1 or P2"},
	SW_ERR_INS_INVALID:             {"SW_ERR_INS_INVALID", "Instruction not supported"},
	SW_ERR_CLA_NOT_SUPPORTED:       {"SW_ERR_CLA_NOT_SUPPORTED", "Class not supported"},
	SW_ERR_UNKNOWN:                 {"SW_ERR_UNKNOWN", "No precise diagnosis"},
}
