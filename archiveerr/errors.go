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

// Package archiveerr holds the error taxonomy shared by every layer
// of the tuple archive: the value codec, id mapper, columnar writer,
// fetch engine, and aggregation iterator all report failures using
// these sentinels so that callers can use errors.Is regardless of
// which layer produced them.
package archiveerr

import "errors"

// Kind classifies an archive error for callers that want to
// distinguish fatal conditions from conditions that are merely
// surfaced as empty results or skipped rows.
type Kind int

const (
	// KindIOFailure: underlying storage read/write failed.
	// Fatal for the call; iterator closes; writer state is
	// indeterminate past the last successfully renamed partition.
	KindIOFailure Kind = iota
	// KindMappingNotFound: a requested URI has no id. Normal
	// miss; fetch/properties surface an empty sequence, never
	// this error, but idmap returns it internally.
	KindMappingNotFound
	// KindValueEncoding: malformed or unsupported value on write.
	KindValueEncoding
	// KindValueDecoding: malformed or unsupported value on read.
	// Fatal for the single row; read paths skip the row and log.
	KindValueDecoding
	// KindUnsupportedAggregation: non-numeric aggregation request.
	// Fatal for the call.
	KindUnsupportedAggregation
	// KindInvariantViolation: a broken invariant. A partition
	// directory whose name fails to parse, or whose Pmin > Pmax, is
	// skipped silently without producing this error; an aggregating
	// windowed fetch with end < begin fails with it.
	KindInvariantViolation
)

func (k Kind) String() string {
	switch k {
	case KindIOFailure:
		return "IOFailure"
	case KindMappingNotFound:
		return "MappingNotFound"
	case KindValueEncoding:
		return "ValueEncodingError"
	case KindValueDecoding:
		return "ValueDecodingError"
	case KindUnsupportedAggregation:
		return "UnsupportedAggregation"
	case KindInvariantViolation:
		return "InvariantViolation"
	default:
		return "unknown"
	}
}

// Error is an archive error annotated with its Kind so that
// callers can switch on errors.As(err, *Error) to recover it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrX) match any *Error of the same Kind,
// so the sentinels below recognize errors built with New.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Sentinels usable directly with errors.Is.
var (
	ErrIOFailure              = New(KindIOFailure, "archive", errors.New("i/o failure"))
	ErrMappingNotFound        = New(KindMappingNotFound, "archive", errors.New("mapping not found"))
	ErrValueEncoding          = New(KindValueEncoding, "archive", errors.New("value encoding error"))
	ErrValueDecoding          = New(KindValueDecoding, "archive", errors.New("value decoding error"))
	ErrUnsupportedAggregation = New(KindUnsupportedAggregation, "archive", errors.New("unsupported aggregation"))
	ErrInvariantViolation     = New(KindInvariantViolation, "archive", errors.New("invariant violation"))
)

// Is reports whether err has the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if as, ok := err.(*Error); ok {
			e = as
			if e.Kind == kind {
				return true
			}
			err = e.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
