package tlv

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

var unknownType = reflect.TypeOf([]bertlv.TLV{})

// WriteStructFields appends one "    - prefix.Field (tag): value" line per populated field
// of s, which may be a struct or a pointer to one. Handled fields are byte slices, tagged
// single bytes and []bertlv.TLV leftovers. The "fmt" struct tag selects "ascii" or "int"
// rendering for byte slices.
//
// No trailing newline is written; a non-empty builder gets a separating newline first.
func WriteStructFields(sb *strings.Builder, prefix string, s any) {
	val := reflect.Indirect(reflect.ValueOf(s))
	if val.Kind() != reflect.Struct {
		return
	}

	var lines []string
	for i := range val.NumField() {
		if f := val.Type().Field(i); f.IsExported() {
			lines = append(lines, describeField(prefix, f, val.Field(i))...)
		}
	}
	if len(lines) == 0 {
		return
	}
	if sb.Len() > 0 {
		sb.WriteByte('\n')
	}
	sb.WriteString(strings.Join(lines, "\n"))
}

func describeField(prefix string, f reflect.StructField, v reflect.Value) []string {
	line := func(name, value string) string {
		return fmt.Sprintf("    - %s.%s: %s", prefix, name, value)
	}

	switch {
	case f.Type == unknownType:
		var out []string
		for _, t := range v.Interface().([]bertlv.TLV) {
			out = append(out, line("Unknown Tag "+t.Tag, fmt.Sprintf("%X", rawValue(t))))
		}
		return out
	case f.Type.Kind() == reflect.Slice && f.Type.Elem().Kind() == reflect.Uint8:
		if v.Len() == 0 {
			return nil
		}
		return []string{line(labelOf(f), renderBytes(v.Bytes(), f.Tag.Get("fmt")))}
	case f.Type.Kind() == reflect.Uint8 && f.Tag.Get("tlv") != "":
		return []string{line(labelOf(f), fmt.Sprintf("%02X", v.Uint()))}
	}
	return nil
}

func labelOf(f reflect.StructField) string {
	if tag := f.Tag.Get("tlv"); tag != "" && tag != ",unknown" {
		return f.Name + " (" + tag + ")"
	}
	return f.Name
}

func renderBytes(data []byte, format string) string {
	switch format {
	case "ascii":
		return fmt.Sprintf("%X (%q)", data, MakeSafeASCII(data))
	case "int":
		var n uint64
		for _, b := range data {
			n = n<<8 | uint64(b)
		}
		return fmt.Sprintf("%X (Dec: %d)", data, n)
	}
	return fmt.Sprintf("%X", data)
}

// MakeSafeASCII maps every byte outside the printable ASCII range to a dot.
func MakeSafeASCII(data []byte) string {
	out := make([]byte, len(data))
	for i, b := range data {
		if b < 0x20 || b > 0x7E {
			b = '.'
		}
		out[i] = b
	}
	return string(out)
}
