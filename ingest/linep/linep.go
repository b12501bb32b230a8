// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package linep decodes the line-protocol tuple format: one tuple
// per line,
//
//	measurement,tag=value[,tag=value...] field=value[,field=value...] [timestamp]
//
// where "measurement" is the property URI and the "item"/"context"
// tags carry the other two legs of the tuple key. This is a pure
// decoder producing archive.Tuple values; it performs no I/O of its
// own.
package linep

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tuplearchive/archive/archive"
	"github.com/tuplearchive/archive/value"
)

// Clock returns the current wall time used when a line omits its
// timestamp. Overridable by tests.
var Clock = func() time.Time { return time.Now() }

// ParseLine decodes a single line-protocol line into a Tuple. An
// empty line (after trimming trailing newline) yields ok == false
// with no error.
func ParseLine(line string) (archive.Tuple, bool, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return archive.Tuple{}, false, nil
	}

	head, fieldSet, tsStr, err := splitSections(line)
	if err != nil {
		return archive.Tuple{}, false, fmt.Errorf("linep: %w", err)
	}

	measurement, tags, err := splitHead(head)
	if err != nil {
		return archive.Tuple{}, false, fmt.Errorf("linep: %w", err)
	}
	if measurement == "" {
		return archive.Tuple{}, false, fmt.Errorf("linep: missing measurement (property) in line %q", line)
	}

	item, hasItem := tags["item"]
	if !hasItem || item == "" {
		return archive.Tuple{}, false, fmt.Errorf("linep: missing item tag in line %q", line)
	}
	context := tags["context"]

	fields, err := splitFields(fieldSet)
	if err != nil {
		return archive.Tuple{}, false, fmt.Errorf("linep: %w", err)
	}
	raw, hasValue := fields["value"]
	if !hasValue {
		return archive.Tuple{}, false, fmt.Errorf("linep: missing value field in line %q", line)
	}
	v, err := parseFieldValue(raw)
	if err != nil {
		return archive.Tuple{}, false, fmt.Errorf("linep: %w", err)
	}

	t, err := resolveTime(tsStr)
	if err != nil {
		return archive.Tuple{}, false, fmt.Errorf("linep: %w", err)
	}

	return archive.Tuple{
		Item:     item,
		Property: measurement,
		Context:  context,
		Time:     t,
		Value:    v,
	}, true, nil
}

// splitSections splits a line into its tag-set, field-set, and
// optional timestamp, honoring backslash-escaped spaces and
// "-quoted sections as non-splitting.
func splitSections(line string) (head, fields, ts string, err error) {
	parts, err := splitUnescaped(line, ' ')
	if err != nil {
		return "", "", "", err
	}
	switch len(parts) {
	case 2:
		return parts[0], parts[1], "", nil
	case 3:
		return parts[0], parts[1], parts[2], nil
	default:
		return "", "", "", fmt.Errorf("expected \"tags fields [timestamp]\", got %d sections", len(parts))
	}
}

// splitUnescaped splits s on sep, treating a backslash as escaping
// the character that follows it (the escaped character is kept,
// backslash dropped is handled later by unescape) and a
// "-quoted run as opaque to sep.
func splitUnescaped(s string, sep byte) ([]string, error) {
	var out []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			cur.WriteByte(c)
			cur.WriteByte(s[i+1])
			i++
		case c == '"':
			inQuotes = !inQuotes
			cur.WriteByte(c)
		case c == sep && !inQuotes:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	out = append(out, cur.String())
	return out, nil
}

// unescape removes the backslash from every escaped occurrence of
// ',', '=', ' ', '"', '\\', and the tab mnemonic 't' (backslash
// followed by the letter 't' denotes a literal tab byte, the same
// convention as the "\t" notation used to display one).
func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case ',', '=', ' ', '"', '\\':
				b.WriteByte(s[i+1])
				i++
				continue
			case 't':
				b.WriteByte('\t')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// splitHead parses "measurement,tag=val,tag=val" into the
// measurement name and a tag map.
func splitHead(head string) (string, map[string]string, error) {
	parts, err := splitUnescaped(head, ',')
	if err != nil {
		return "", nil, err
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("empty measurement/tag set")
	}
	measurement := unescape(parts[0])
	tags := make(map[string]string, len(parts)-1)
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return "", nil, fmt.Errorf("malformed tag %q", p)
		}
		tags[unescape(k)] = unescape(v)
	}
	return measurement, tags, nil
}

// splitFields parses "key=value,key=value" field assignments.
// Quoted values are passed through with their surrounding quotes
// intact so parseFieldValue can distinguish a quoted string from a
// bare numeric/boolean/int token.
func splitFields(fieldSet string) (map[string]string, error) {
	parts, err := splitUnescaped(fieldSet, ',')
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(parts))
	for _, p := range parts {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("malformed field %q", p)
		}
		out[unescape(k)] = v
	}
	return out, nil
}

// parseFieldValue decodes a single field's raw (still-escaped,
// still-quoted) text: a trailing 'i' marks an integer, bare "t"/"f"
// booleans, a quoted run a string, anything else a float64.
func parseFieldValue(raw string) (value.Value, error) {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return value.String(unescape(raw[1 : len(raw)-1])), nil
	}
	switch raw {
	case "t":
		return value.Bool(true), nil
	case "f":
		return value.Bool(false), nil
	}
	if strings.HasSuffix(raw, "i") {
		n, err := strconv.ParseInt(strings.TrimSuffix(raw, "i"), 10, 64)
		if err != nil {
			return value.Value{}, fmt.Errorf("malformed integer field %q: %w", raw, err)
		}
		return value.Int64(n), nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return value.Value{}, fmt.Errorf("malformed numeric field %q: %w", raw, err)
	}
	return value.Float64(f), nil
}

// resolveTime resolves the optional trailing timestamp: absent
// means "now" in milliseconds; present means the nanosecond
// timestamp divided by 10^6. Both forms are returned verbatim as
// Tuple.Time; this format carries millisecond wall time even though
// the archive's other producers write seconds.
func resolveTime(tsStr string) (int64, error) {
	if tsStr == "" {
		return Clock().UnixMilli(), nil
	}
	ns, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed timestamp %q: %w", tsStr, err)
	}
	return ns / 1_000_000, nil
}
