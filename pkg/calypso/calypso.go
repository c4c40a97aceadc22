// Package calypso encodes and decodes the Calypso command set exchanged between a terminal,
// a card (PO) and a secure access module (SAM).
//
// Every command is described once in an immutable Descriptor table (instruction byte, endpoint,
// status table). Encoders are free functions taking the endpoint revision explicitly and
// returning a Request or a *ParameterError; nothing is sent when an argument is out of range.
//
// Revision rules (class byte, parameter byte layout, challenge padding) live in revision.go and
// are pure lookups, safe to share between concurrent sessions.
package calypso

import (
	"github.com/gregLibert/calypso-session/pkg/iso7816"
	"github.com/gregLibert/calypso-session/pkg/tlv"
)

// Request is an encoded command ready for an endpoint channel.
type Request struct {
	Kind CommandKind
	APDU *iso7816.CommandAPDU
}

// Bytes returns the C-APDU as it travels on the wire.
func (r *Request) Bytes() ([]byte, error) {
	return r.APDU.Bytes()
}

// String renders the request as spaced hex, or the encoding error.
func (r *Request) String() string {
	raw, err := r.Bytes()
	if err != nil {
		return r.Kind.String() + ": " + err.Error()
	}
	return r.Kind.String() + ": " + tlv.Spaced(raw)
}

// newRequest builds a short-length request. Callers have validated data lengths.
func newRequest(kind CommandKind, cla iso7816.Class, p1, p2 byte, data []byte, ne int) *Request {
	d := lookup(kind)
	return &Request{
		Kind: kind,
		APDU: iso7816.NewCommandAPDU(cla, d.instruction(), p1, p2, data, ne),
	}
}
