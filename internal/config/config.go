// Package config loads the terminal configuration from YAML.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gregLibert/calypso-session/pkg/calypso"
	"github.com/gregLibert/calypso-session/pkg/tlv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	PO      POConfig      `yaml:"po"`
	SAM     SAMConfig     `yaml:"sam"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`

	// Decoded by Validate.
	AID         []byte              `yaml:"-"`
	PoRevision  calypso.PoRevision  `yaml:"-"`
	SamRevision calypso.SamRevision `yaml:"-"`
	LogLevel    slog.Level          `yaml:"-"`
}

type POConfig struct {
	ReaderIndex     int    `yaml:"reader_index"`
	AID             string `yaml:"aid,omitempty"`
	DefaultRevision string `yaml:"default_revision"`
}

type SAMConfig struct {
	ReaderIndex int    `yaml:"reader_index"`
	Revision    string `yaml:"revision"`
}

type SessionConfig struct {
	KeyIndex             byte `yaml:"key_index"`
	SFI                  byte `yaml:"sfi"`
	RecordNumber         byte `yaml:"record_number"`
	Ratify               bool `yaml:"ratify"`
	DigestUpdateMultiple bool `yaml:"digest_update_multiple"`
	WorkKeyRecord        byte `yaml:"work_key_record,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given: card on reader 0, SAM on
// reader 1, key 3, record 1 of SFI 08 read at opening.
func Default() *Config {
	cfg := &Config{
		PO:  POConfig{ReaderIndex: 0, DefaultRevision: "rev3.1"},
		SAM: SAMConfig{ReaderIndex: 1, Revision: "auto"},
		Session: SessionConfig{
			KeyIndex:     3,
			SFI:          0x08,
			RecordNumber: 1,
			Ratify:       true,
		},
		Log: LogConfig{Level: "info", Format: "auto"},
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads path over the defaults and validates the result. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(content)
}

// Parse decodes YAML content over the defaults and validates the result.
func Parse(content []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	cfg := Default()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values and fills the decoded fields.
func (c *Config) Validate() error {
	if c.PO.ReaderIndex < 0 {
		return fmt.Errorf("config.po.reader_index must be >= 0")
	}
	if c.SAM.ReaderIndex < 0 {
		return fmt.Errorf("config.sam.reader_index must be >= 0")
	}

	c.AID = nil
	if aid := strings.TrimSpace(c.PO.AID); aid != "" {
		b, err := tlv.ParseHex(aid)
		if err != nil {
			return fmt.Errorf("config.po.aid: %w", err)
		}
		if len(b) < 5 || len(b) > 16 {
			return fmt.Errorf("config.po.aid must be 5 to 16 bytes, got %d", len(b))
		}
		c.AID = b
	}

	var err error
	if c.PoRevision, err = calypso.ParsePoRevision(c.PO.DefaultRevision); err != nil {
		return fmt.Errorf("config.po.default_revision: %w", err)
	}
	if c.SamRevision, err = calypso.ParseSamRevision(c.SAM.Revision); err != nil {
		return fmt.Errorf("config.sam.revision: %w", err)
	}

	if c.Session.KeyIndex < 1 || c.Session.KeyIndex > calypso.MaxKeyIndex {
		return fmt.Errorf("config.session.key_index must be 1..%d", calypso.MaxKeyIndex)
	}
	if c.Session.SFI > 0x1F {
		return fmt.Errorf("config.session.sfi must be <= 0x1F")
	}
	if c.Session.RecordNumber > calypso.MaxRecordNumber {
		return fmt.Errorf("config.session.record_number must be <= 0x%02X", calypso.MaxRecordNumber)
	}
	if c.Session.WorkKeyRecord == 0xFF {
		return fmt.Errorf("config.session.work_key_record must be a SAM record number, not 0xFF")
	}

	if err := c.LogLevel.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("config.log.level: %w", err)
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("config.log.format must be auto, text or json, got %q", c.Log.Format)
	}
	return nil
}
