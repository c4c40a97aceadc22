package calypso

import (
	"fmt"

	"github.com/gregLibert/calypso-session/pkg/iso7816"
)

// ParameterError reports an argument rejected before any request was built.
type ParameterError struct {
	Kind   CommandKind // zero when the check is not tied to one command
	Field  string
	Reason string
}

func (e *ParameterError) Error() string {
	if e.Kind == 0 {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: invalid %s: %s", e.Kind, e.Field, e.Reason)
}

// StatusError reports a status word that is not a success for the command.
type StatusError struct {
	Kind      CommandKind
	Status    iso7816.StatusWord
	Condition string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with SW=%04X (%s)", e.Kind, uint16(e.Status), e.Condition)
}

// ResponseError reports a response payload whose shape does not match the command.
type ResponseError struct {
	Kind   CommandKind
	Reason string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Kind, e.Reason)
}

func responseErrorf(kind CommandKind, format string, args ...any) *ResponseError {
	return &ResponseError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}
