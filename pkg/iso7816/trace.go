package iso7816

// A Transaction is one C-APDU and the R-APDU the card returned for it. A Trace holds every
// transaction that one logical command produced: the original exchange plus any 6CXX
// re-issue and 61XX GET RESPONSE chaining.

// Transaction pairs a command with its response. Response is nil when the exchange failed
// at the transport level.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess reports whether a response arrived with a success status.
func (t *Transaction) IsSuccess() bool {
	return t.Response != nil && t.Response.Status.IsSuccess()
}

// Trace lists the transactions of one logical command in transmission order.
type Trace []Transaction

// Last returns the final transaction, or nil for an empty trace.
func (t Trace) Last() *Transaction {
	if n := len(t); n > 0 {
		return &t[n-1]
	}
	return nil
}

// IsSuccess judges the trace on its last transaction only. Intermediate 61XX and 6CXX
// answers do not count.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	return last != nil && last.IsSuccess()
}

// Processed returns the command the card actually executed: the last command of the trace
// that is not a GET RESPONSE. After a 6CXX correction this is the re-issued command.
func (t Trace) Processed() *CommandAPDU {
	for i := len(t) - 1; i >= 0; i-- {
		if cmd := t[i].Command; cmd != nil && cmd.Instruction.Raw != INS_GET_RESPONSE {
			return cmd
		}
	}
	return nil
}

// Response returns the final response of the trace, or nil.
func (t Trace) Response() *ResponseAPDU {
	if last := t.Last(); last != nil {
		return last.Response
	}
	return nil
}
