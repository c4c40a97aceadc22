package calypso

import (
	"fmt"
	"strings"

	"github.com/gregLibert/calypso-session/pkg/tlv"
	"github.com/moov-io/bertlv"
)

// FILE CONTROL INFORMATION returned by a Calypso application:
//
//	6F FCI template
//	   84 DF name (AID)
//	   A5 proprietary template
//	      BF0C discretionary data
//	           C7 application serial number (8 bytes)
//	           53 startup information (7 bytes)

// FCI is the Calypso File Control Information.
type FCI struct {
	DFName              []byte                `tlv:"84"`
	ProprietaryTemplate FCIProprietaryTemplate `tlv:"A5"`
}

type FCIProprietaryTemplate struct {
	Discretionary *FCIDiscretionaryData `tlv:"BF0C"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

type FCIDiscretionaryData struct {
	SerialNumber []byte       `tlv:"C7"`
	StartupInfo  StartupInfo  `tlv:"53"`
	Unknown      []bertlv.TLV `tlv:",unknown"`
}

// StartupInfo is the 7-byte startup information of tag 53.
type StartupInfo struct {
	BufferSizeIndicator byte
	PlatformType        byte
	ApplicationType     byte
	ApplicationSubtype  byte
	SoftwareIssuer      byte
	SoftwareVersion     byte
	SoftwareRevision    byte

	Raw []byte
}

const startupInfoLength = 7

// UnmarshalTLV implements tlv.Unmarshaler. Trailing bytes are kept in Raw.
func (s *StartupInfo) UnmarshalTLV(data []byte) error {
	if len(data) < startupInfoLength {
		return fmt.Errorf("startup information of %d bytes, expected at least %d", len(data), startupInfoLength)
	}
	*s = StartupInfo{
		BufferSizeIndicator: data[0],
		PlatformType:        data[1],
		ApplicationType:     data[2],
		ApplicationSubtype:  data[3],
		SoftwareIssuer:      data[4],
		SoftwareVersion:     data[5],
		SoftwareRevision:    data[6],
		Raw:                 append([]byte(nil), data...),
	}
	return nil
}

// ParseFCI interprets a GET DATA (FCI) or SELECT response payload.
// The serial number and startup information are mandatory.
func ParseFCI(data []byte) (*FCI, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data cannot be parsed")
	}

	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("BER-TLV decode failed: %w", err)
	}

	processingPackets := packets
	if p, found := tlv.Find(packets, "6F"); found {
		processingPackets = p.TLVs
	}

	fci := &FCI{}
	if err := tlv.UnmarshalFromPackets(processingPackets, fci); err != nil {
		return nil, fmt.Errorf("failed to map structure: %w", err)
	}

	disc := fci.ProprietaryTemplate.Discretionary
	if disc == nil {
		return nil, fmt.Errorf("discretionary data (BF0C) missing")
	}
	if len(disc.SerialNumber) != 8 {
		return nil, fmt.Errorf("application serial number (C7) of %d bytes, expected 8", len(disc.SerialNumber))
	}
	if disc.StartupInfo.Raw == nil {
		return nil, fmt.Errorf("startup information (53) missing")
	}
	return fci, nil
}

// SerialNumber returns the 8-byte application serial number.
func (f *FCI) SerialNumber() []byte {
	return f.ProprietaryTemplate.Discretionary.SerialNumber
}

// Startup returns the decoded startup information.
func (f *FCI) Startup() StartupInfo {
	return f.ProprietaryTemplate.Discretionary.StartupInfo
}

// Revision infers the card revision from the application type byte.
func (f *FCI) Revision(fallback PoRevision) PoRevision {
	return RevisionFromStartup(f.Startup().ApplicationType, fallback)
}

// Describe generates a detailed, standardized report of the FCI content.
func (f *FCI) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== CALYPSO FCI TEMPLATE ===")

	tlv.WriteStructFields(&sb, "FCI", f)
	tlv.WriteStructFields(&sb, "Proprietary", f.ProprietaryTemplate)

	if disc := f.ProprietaryTemplate.Discretionary; disc != nil {
		tlv.WriteStructFields(&sb, "Discretionary", disc)
		s := disc.StartupInfo
		sb.WriteString(fmt.Sprintf("\n    - Startup: %X (platform %02X, type %02X, subtype %02X, issuer %02X, version %02X.%02X)",
			s.Raw, s.PlatformType, s.ApplicationType, s.ApplicationSubtype, s.SoftwareIssuer, s.SoftwareVersion, s.SoftwareRevision))
	}

	return strings.TrimRight(sb.String(), "\n")
}
