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

// Package jsonfmt decodes the nested JSON tuple format: a top-level
// object keyed by item URI, each mapping to an object keyed by
// property URI, each mapping to an array of {value, time, seqNr?}
// entries. A "@context" object remaps URI prefixes; nested objects
// become Record values, and an object carrying "@id" becomes a URI
// value. This is a pure decoder producing archive.Tuple values,
// built on encoding/json's map[string]any decoding rather than a
// streaming token reader, since the tuple shape is a fixed two-level
// object.
package jsonfmt

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tuplearchive/archive/archive"
	"github.com/tuplearchive/archive/value"
)

const contextKey = "@context"
const idKey = "@id"

// Decode parses a full JSON document into the tuples it describes.
// Only the top-level "@context" object is read, before any prefix
// expansion is applied; "@context" keys inside an item object are
// skipped and not merged, and if the top level repeats "@context"
// only the last one takes effect.
func Decode(data []byte) ([]archive.Tuple, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("jsonfmt: %w", err)
	}

	prefixes := map[string]string{}
	for key, raw := range root {
		if key != contextKey {
			continue
		}
		var ctx map[string]string
		if err := json.Unmarshal(raw, &ctx); err != nil {
			return nil, fmt.Errorf("jsonfmt: malformed %s: %w", contextKey, err)
		}
		for k, v := range ctx {
			prefixes[k] = v
		}
	}

	var items []string
	for key := range root {
		if key == contextKey {
			continue
		}
		items = append(items, key)
	}
	sort.Strings(items)

	var out []archive.Tuple
	for _, itemKey := range items {
		item := expand(prefixes, itemKey)
		var props map[string]json.RawMessage
		if err := json.Unmarshal(root[itemKey], &props); err != nil {
			return nil, fmt.Errorf("jsonfmt: item %q: expected an object of properties: %w", itemKey, err)
		}
		var propNames []string
		for p := range props {
			propNames = append(propNames, p)
		}
		sort.Strings(propNames)
		for _, propKey := range propNames {
			if propKey == contextKey {
				continue
			}
			property := expand(prefixes, propKey)
			var entries []entry
			if err := json.Unmarshal(props[propKey], &entries); err != nil {
				return nil, fmt.Errorf("jsonfmt: item %q property %q: expected an array of entries: %w", itemKey, propKey, err)
			}
			for _, e := range entries {
				v, err := toValue(prefixes, e.Value)
				if err != nil {
					return nil, fmt.Errorf("jsonfmt: item %q property %q: %w", itemKey, propKey, err)
				}
				out = append(out, archive.Tuple{
					Item:     item,
					Property: property,
					Time:     e.Time,
					SeqNr:    e.SeqNr,
					Value:    v,
				})
			}
		}
	}
	return out, nil
}

// entry is one {value, time, seqNr?} array element.
type entry struct {
	Value any   `json:"value"`
	Time  int64 `json:"time"`
	SeqNr int32 `json:"seqNr"`
}

// expand applies a "@context" prefix remap: "prefix:rest" becomes
// prefixes["prefix"]+"rest" when prefix is mapped, else uri is
// returned unchanged.
func expand(prefixes map[string]string, uri string) string {
	for i := 0; i < len(uri); i++ {
		if uri[i] != ':' {
			continue
		}
		prefix := uri[:i]
		if base, ok := prefixes[prefix]; ok {
			return base + uri[i+1:]
		}
		break
	}
	return uri
}

// toValue converts a decoded JSON scalar/object/array into a tuple
// Value: objects with "@id" become URI values, other objects become
// Records, and JSON scalars map onto the matching Value constructor.
func toValue(prefixes map[string]string, raw any) (value.Value, error) {
	switch v := raw.(type) {
	case nil:
		return value.Value{}, fmt.Errorf("null values are not supported")
	case bool:
		return value.Bool(v), nil
	case float64:
		if v == float64(int64(v)) {
			return value.Int64(int64(v)), nil
		}
		return value.Float64(v), nil
	case string:
		return value.String(v), nil
	case map[string]any:
		if id, ok := v[idKey]; ok {
			uri, ok := id.(string)
			if !ok {
				return value.Value{}, fmt.Errorf("%s must be a string", idKey)
			}
			return value.URI(expand(prefixes, uri)), nil
		}
		var keys []string
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rec := value.NewRecordEmpty()
		for _, k := range keys {
			child, err := toValue(prefixes, v[k])
			if err != nil {
				return value.Value{}, err
			}
			rec.Append(expand(prefixes, k), child)
		}
		return value.NewRecord(rec), nil
	default:
		return value.Value{}, fmt.Errorf("unsupported JSON value %T", raw)
	}
}
