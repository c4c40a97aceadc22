package calypso

import (
	"fmt"
)

// SelectDiversifier loads the card serial number used to diversify SAM keys.
func SelectDiversifier(rev SamRevision, diversifier []byte) (*Request, error) {
	if n := len(diversifier); n != 4 && n != 8 {
		return nil, &ParameterError{Kind: KindSelectDiversifier, Field: "diversifier", Reason: fmt.Sprintf("length %d, expected 4 or 8", n)}
	}
	cla, err := SamClass(rev)
	if err != nil {
		return nil, err
	}
	return newRequest(KindSelectDiversifier, cla, 0x00, 0x00, diversifier, 0), nil
}

// GetChallenge asks the SAM for a 4 or 8 byte challenge.
func GetChallenge(rev SamRevision, length int) (*Request, error) {
	if length != 4 && length != 8 {
		return nil, &ParameterError{Kind: KindGetChallenge, Field: "challenge length", Reason: fmt.Sprintf("%d, expected 4 or 8", length)}
	}
	cla, err := SamClass(rev)
	if err != nil {
		return nil, err
	}
	return newRequest(KindGetChallenge, cla, 0x00, 0x00, nil, length), nil
}

// DigestInit seeds the SAM transcript with the Open Session response data.
// When kif is 0xFF the card gave no usable key reference and the SAM work key is taken from
// record workKeyRecord instead; workKeyRecord is ignored otherwise.
func DigestInit(rev SamRevision, rev32Mode bool, kif, kvc, workKeyRecord byte, openData []byte) (*Request, error) {
	if len(openData) == 0 {
		return nil, &ParameterError{Kind: KindDigestInit, Field: "open data", Reason: "empty"}
	}
	if kif == 0xFF && (workKeyRecord == 0x00 || workKeyRecord == 0xFF) {
		return nil, &ParameterError{Kind: KindDigestInit, Field: "work key record", Reason: fmt.Sprintf("0x%02X is not a record number", workKeyRecord)}
	}
	cla, err := SamClass(rev)
	if err != nil {
		return nil, err
	}

	var p1 byte
	if rev32Mode {
		p1 += 0x02
	}

	p2 := byte(0xFF)
	data := make([]byte, 0, len(openData)+2)
	if kif == 0xFF {
		p2 = workKeyRecord
	} else {
		data = append(data, kif, kvc)
	}
	data = append(data, openData...)

	if err := checkData(KindDigestInit, "open data", data, 1); err != nil {
		return nil, err
	}
	return newRequest(KindDigestInit, cla, p1, p2, data, 0), nil
}

// DigestUpdate feeds one PO command or response into the SAM transcript.
func DigestUpdate(rev SamRevision, encrypted bool, data []byte) (*Request, error) {
	if err := checkData(KindDigestUpdate, "digest data", data, 1); err != nil {
		return nil, err
	}
	cla, err := SamClass(rev)
	if err != nil {
		return nil, err
	}
	var p1 byte
	if encrypted {
		p1 = 0x80
	}
	return newRequest(KindDigestUpdate, cla, p1, 0x00, data, 0), nil
}

// DigestUpdateMultiple feeds several transcript items in one command, each prefixed with its length.
func DigestUpdateMultiple(rev SamRevision, items ...[]byte) (*Request, error) {
	if len(items) == 0 {
		return nil, &ParameterError{Kind: KindDigestUpdateMultiple, Field: "items", Reason: "none given"}
	}
	var data []byte
	for i, item := range items {
		if len(item) == 0 || len(item) > 0xFF {
			return nil, &ParameterError{Kind: KindDigestUpdateMultiple, Field: "items", Reason: fmt.Sprintf("item %d has length %d", i, len(item))}
		}
		data = append(data, byte(len(item)))
		data = append(data, item...)
	}
	if err := checkData(KindDigestUpdateMultiple, "items", data, 1); err != nil {
		return nil, err
	}
	cla, err := SamClass(rev)
	if err != nil {
		return nil, err
	}
	return newRequest(KindDigestUpdateMultiple, cla, 0x80, 0x00, data, 0), nil
}

// MultipleFits reports whether items fit in a single Digest Update Multiple.
func MultipleFits(items ...[]byte) bool {
	total := 0
	for _, item := range items {
		if len(item) == 0 || len(item) > 0xFF {
			return false
		}
		total += 1 + len(item)
	}
	return total <= 0xFF
}

// DigestClose asks the SAM for the terminal half-session signature.
func DigestClose(rev SamRevision, length int) (*Request, error) {
	if length != 4 && length != 8 {
		return nil, &ParameterError{Kind: KindDigestClose, Field: "signature length", Reason: fmt.Sprintf("%d, expected 4 or 8", length)}
	}
	cla, err := SamClass(rev)
	if err != nil {
		return nil, err
	}
	return newRequest(KindDigestClose, cla, 0x00, 0x00, nil, length), nil
}

// DigestAuthenticate submits the PO half-session signature for verification.
func DigestAuthenticate(rev SamRevision, signature []byte) (*Request, error) {
	if n := len(signature); n != 4 && n != 8 {
		return nil, &ParameterError{Kind: KindDigestAuthenticate, Field: "signature", Reason: fmt.Sprintf("length %d, expected 4 or 8", n)}
	}
	cla, err := SamClass(rev)
	if err != nil {
		return nil, err
	}
	return newRequest(KindDigestAuthenticate, cla, 0x00, 0x00, signature, 0), nil
}
