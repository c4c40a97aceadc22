// Package cardsim implements a software Calypso card and SAM speaking raw APDUs.
//
// Both share a master key. The session key is HMAC-SHA256(master, card serial number) and
// the half-session signatures are truncated HMACs over the length-prefixed transcript:
// 0x01 for the terminal (SAM) half, 0x02 for the card half. This is not the Calypso
// cryptography; it only has to agree between the two simulators and break when the
// transcript differs.
package cardsim

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/gregLibert/calypso-session/pkg/iso7816"
)

const (
	terminalHalf byte = 0x01
	cardHalf     byte = 0x02
)

// ErrRemoved is returned by a simulator whose card was pulled out.
var ErrRemoved = errors.New("card removed")

func sessionKey(master, serial []byte) []byte {
	m := hmac.New(sha256.New, master)
	m.Write(serial)
	return m.Sum(nil)
}

func signature(key []byte, half byte, transcript [][]byte, n int) []byte {
	m := hmac.New(sha256.New, key)
	m.Write([]byte{half})
	for _, item := range transcript {
		var l [2]byte
		binary.BigEndian.PutUint16(l[:], uint16(len(item)))
		m.Write(l[:])
		m.Write(item)
	}
	return m.Sum(nil)[:n]
}

// Exchange is one command received by a simulator and its answer.
type Exchange struct {
	Command  []byte
	Response []byte
}

// recorder keeps the exchange log and failure injection shared by both simulators.
type recorder struct {
	mu     sync.Mutex
	log    []Exchange
	failOn map[byte]error
}

// FailOn makes every command with instruction ins fail at transport level.
func (r *recorder) FailOn(ins byte, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn == nil {
		r.failOn = make(map[byte]error)
	}
	r.failOn[ins] = err
}

// Log returns the exchanges handled so far.
func (r *recorder) Log() []Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Exchange(nil), r.log...)
}

// Count returns how many commands with instruction ins were received.
func (r *recorder) Count(ins byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.log {
		if len(x.Command) > 1 && x.Command[1] == ins {
			n++
		}
	}
	return n
}

func (r *recorder) transmit(raw []byte, handle func(*iso7816.CommandAPDU) *iso7816.ResponseAPDU) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(raw) > 1 {
		if err, ok := r.failOn[raw[1]]; ok {
			return nil, err
		}
	}

	var resp *iso7816.ResponseAPDU
	cmd, err := iso7816.ParseCommandAPDU(raw)
	if err != nil {
		resp = status(iso7816.SW_ERR_WRONG_LENGTH)
	} else {
		resp = handle(cmd)
	}

	out := resp.Bytes()
	r.log = append(r.log, Exchange{Command: append([]byte(nil), raw...), Response: out})
	return out, nil
}

func status(sw iso7816.StatusWord) *iso7816.ResponseAPDU {
	return &iso7816.ResponseAPDU{Status: sw}
}

func success(data []byte) *iso7816.ResponseAPDU {
	return &iso7816.ResponseAPDU{Data: data, Status: iso7816.SW_NO_ERROR}
}
