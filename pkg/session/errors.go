package session

import (
	"errors"
	"fmt"

	"github.com/gregLibert/calypso-session/pkg/calypso"
)

var (
	// ErrAuthenticationFailed is returned when the SAM rejects the card signature.
	ErrAuthenticationFailed = errors.New("session authentication failed")
	// ErrSessionCancelled is the failure cause of a cancelled session.
	ErrSessionCancelled = errors.New("session cancelled")
	// ErrTranscriptState is returned when digest operations are called out of order.
	ErrTranscriptState = errors.New("digest transcript out of sequence")
)

// ChannelError wraps a transport failure on one endpoint.
type ChannelError struct {
	Endpoint calypso.Endpoint
	Kind     calypso.CommandKind
	Err      error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s channel failed during %s: %v", e.Endpoint, e.Kind, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// IdentificationError wraps any failure of Identify.
type IdentificationError struct {
	Err error
}

func (e *IdentificationError) Error() string {
	return fmt.Sprintf("identification failed: %v", e.Err)
}

func (e *IdentificationError) Unwrap() error { return e.Err }

// PhaseError reports an operation invoked in a phase that does not allow it.
// The session state is left untouched.
type PhaseError struct {
	Op    string
	Phase Phase
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("cannot %s in phase %s", e.Op, e.Phase)
}
