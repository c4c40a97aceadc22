package session

import (
	"fmt"

	"github.com/gregLibert/calypso-session/pkg/calypso"
	"github.com/gregLibert/calypso-session/pkg/iso7816"
)

// endpoint drives one secure element channel.
type endpoint struct {
	kind   calypso.Endpoint
	client *iso7816.Client
}

// exchange transmits req and returns the command the card executed with its final response.
// Transport failures become *ChannelError; the status word is not checked.
func (e *endpoint) exchange(req *calypso.Request) ([]byte, *iso7816.ResponseAPDU, error) {
	trace, err := e.client.Send(req.APDU)
	if err != nil {
		return nil, nil, &ChannelError{Endpoint: e.kind, Kind: req.Kind, Err: err}
	}

	resp := trace.Response()
	if resp == nil {
		return nil, nil, &ChannelError{Endpoint: e.kind, Kind: req.Kind, Err: fmt.Errorf("no response")}
	}

	executed, err := trace.Processed().Bytes()
	if err != nil {
		return nil, nil, &ChannelError{Endpoint: e.kind, Kind: req.Kind, Err: err}
	}
	return executed, resp, nil
}

// call is exchange followed by the status check of the command.
func (e *endpoint) call(req *calypso.Request) (*iso7816.ResponseAPDU, error) {
	_, resp, err := e.exchange(req)
	if err != nil {
		return nil, err
	}
	if err := calypso.CheckStatus(req.Kind, resp.Status); err != nil {
		return resp, err
	}
	return resp, nil
}
