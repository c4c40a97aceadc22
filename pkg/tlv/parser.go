// Package tlv provides high-level utilities for parsing and mapping BER-TLV
// (Basic Encoding Rules - Tag-Length-Value) data into Go structures using struct tags.
//
// Calypso cards answer GET DATA and SELECT with nested templates
// (6F > A5 > BF0C > C7/53). Struct tags describe one level each; nested
// templates map onto nested structs.
package tlv

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Unmarshaler allows custom types to implement their own TLV parsing logic.
type Unmarshaler interface {
	UnmarshalTLV(data []byte) error
}

// Unmarshal parses raw BER-TLV data and maps it into a target Go struct.
func Unmarshal(data []byte, target interface{}) error {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("bertlv decode failed: %w", err)
	}
	return UnmarshalFromPackets(packets, target)
}

// UnmarshalFromPackets maps a slice of pre-decoded bertlv.TLV objects to a target struct.
// It supports multiple occurrences of the same tag if the target field is a slice.
func UnmarshalFromPackets(packets []bertlv.TLV, target interface{}) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer")
	}

	v = v.Elem()
	t := v.Type()
	consumed := make(map[int]bool)

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		tagHex, ok := fieldTag(fieldType)
		if !ok {
			continue
		}

		for idx, packet := range packets {
			if !strings.EqualFold(packet.Tag, tagHex) {
				continue
			}
			if err := mapPacketToField(packet, field); err != nil {
				return fmt.Errorf("tag %s: %w", tagHex, err)
			}
			consumed[idx] = true
		}
	}

	return collectUnknown(v, t, packets, consumed)
}

// Find walks a tag path through nested templates and returns the matching TLV.
// Find(packets, "6F", "A5", "BF0C", "C7") returns the C7 object of a Calypso FCI.
func Find(packets []bertlv.TLV, path ...string) (*bertlv.TLV, bool) {
	if len(path) == 0 {
		return nil, false
	}
	for i := range packets {
		if !strings.EqualFold(packets[i].Tag, path[0]) {
			continue
		}
		if len(path) == 1 {
			return &packets[i], true
		}
		return Find(packets[i].TLVs, path[1:]...)
	}
	return nil, false
}

// Lookup decodes data and returns the raw payload found at the given tag path.
func Lookup(data []byte, path ...string) ([]byte, error) {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("bertlv decode failed: %w", err)
	}
	p, ok := Find(packets, path...)
	if !ok {
		return nil, fmt.Errorf("tag path %s not found", strings.Join(path, "/"))
	}
	return rawValue(*p), nil
}

func fieldTag(f reflect.StructField) (string, bool) {
	cfg := f.Tag.Get("tlv")
	if cfg == "" || cfg == ",unknown" || f.Name == "Unknown" {
		return "", false
	}
	return strings.ToUpper(strings.Split(cfg, ",")[0]), true
}

// mapPacketToField dispatches the TLV data to the appropriate reflection logic.
func mapPacketToField(packet bertlv.TLV, field reflect.Value) error {
	// Slices of structs grow by one element per occurrence.
	if field.Kind() == reflect.Slice && !isByteSlice(field) {
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := decodeToValue(packet, elem); err != nil {
			return err
		}
		field.Set(reflect.Append(field, elem))
		return nil
	}
	return decodeToValue(packet, field)
}

func decodeToValue(packet bertlv.TLV, field reflect.Value) error {
	if field.CanAddr() {
		if u, ok := field.Addr().Interface().(Unmarshaler); ok {
			return u.UnmarshalTLV(rawValue(packet))
		}
	}

	switch {
	case isByteSlice(field):
		field.SetBytes(rawValue(packet))
	case field.Kind() == reflect.Uint8:
		if len(packet.Value) != 1 {
			return fmt.Errorf("expected 1 byte, got %d", len(packet.Value))
		}
		field.SetUint(uint64(packet.Value[0]))
	case isStructOrPtrToStruct(field):
		target := structTarget(field)
		if len(packet.TLVs) > 0 {
			return UnmarshalFromPackets(packet.TLVs, target.Interface())
		}
		return Unmarshal(packet.Value, target.Interface())
	}
	return nil
}

func collectUnknown(v reflect.Value, t reflect.Type, packets []bertlv.TLV, consumed map[int]bool) error {
	var unknown reflect.Value
	for i := 0; i < v.NumField(); i++ {
		if t.Field(i).Tag.Get("tlv") == ",unknown" || t.Field(i).Name == "Unknown" {
			unknown = v.Field(i)
			break
		}
	}
	if !unknown.IsValid() || !unknown.CanSet() {
		return nil
	}

	var leftovers []bertlv.TLV
	for idx, packet := range packets {
		if !consumed[idx] {
			leftovers = append(leftovers, packet)
		}
	}
	if len(leftovers) > 0 {
		unknown.Set(reflect.ValueOf(leftovers))
	}
	return nil
}

// rawValue returns the value bytes of p, re-encoding children of constructed objects.
func rawValue(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}

func isByteSlice(v reflect.Value) bool {
	return v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8
}

func isStructOrPtrToStruct(v reflect.Value) bool {
	if v.Kind() == reflect.Struct {
		return true
	}
	return v.Kind() == reflect.Ptr && v.Type().Elem().Kind() == reflect.Struct
}

func structTarget(field reflect.Value) reflect.Value {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return field
	}
	return field.Addr()
}
