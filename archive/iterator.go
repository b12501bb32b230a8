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

package archive

import (
	"math"
	"sort"

	"github.com/tuplearchive/archive/archiveerr"
	"github.com/tuplearchive/archive/idmap"
)

// Iterator is a pull sequence of Tuples. Results are materialized
// eagerly rather than streamed partition by partition; Close only
// needs to release the iterator itself, since the underlying readers
// are already closed by the time a fetch call returns.
type Iterator struct {
	tuples []Tuple
	pos    int
	closed bool
}

// Next advances the iterator and returns its next Tuple. ok is false
// once the sequence is exhausted or the iterator has been closed.
func (it *Iterator) Next() (Tuple, bool) {
	if it.closed || it.pos >= len(it.tuples) {
		return Tuple{}, false
	}
	t := it.tuples[it.pos]
	it.pos++
	return t, true
}

// Close releases the iterator. Calling it more than once, or after
// exhaustion, is a no-op.
func (it *Iterator) Close() error {
	it.closed = true
	return nil
}

func emptyIterator() *Iterator { return &Iterator{} }

// fetch implements the basic window-less fetch: resolve the triple,
// scan with the per-property limit, order by time then seqNr
// descending.
func (e *fetchEngine) fetch(item, property, context string, hasProperty, hasContext bool, limit int) (*Iterator, error) {
	res, err := e.resolver.Resolve(idmap.Triple{
		Item: item, Property: property, HasProperty: hasProperty, Context: context, HasContext: hasContext,
	})
	if err != nil {
		if archiveerr.Is(err, archiveerr.KindMappingNotFound) {
			return emptyIterator(), nil
		}
		return nil, err
	}

	rows, err := e.scanRaw(res, limit, math.MinInt64, math.MaxInt64)
	if err != nil {
		return nil, err
	}
	tuples := make([]Tuple, 0, len(rows))
	for _, row := range rows {
		t, err := e.toTuple(row)
		if err != nil {
			if archiveerr.Is(err, archiveerr.KindMappingNotFound) {
				continue // reverse lookup miss: skip the row
			}
			return nil, err
		}
		tuples = append(tuples, t)
	}
	sortByTimeSeqDesc(tuples)
	return &Iterator{tuples: tuples}, nil
}

// fetchWindow is the time-windowed fetch. When op is "", it returns
// the same ordered, limited sequence as fetch but restricted to
// [begin, end]; when op is set, the result is the interval-bucketed
// aggregated series.
func (e *fetchEngine) fetchWindow(item, property, context string, hasProperty, hasContext bool, end, begin int64, limit int, interval int64, op string) (*Iterator, error) {
	res, err := e.resolver.Resolve(idmap.Triple{
		Item: item, Property: property, HasProperty: hasProperty, Context: context, HasContext: hasContext,
	})
	if err != nil {
		if archiveerr.Is(err, archiveerr.KindMappingNotFound) {
			return emptyIterator(), nil
		}
		return nil, err
	}
	if op != "" && end < begin {
		return nil, archiveerr.New(archiveerr.KindInvariantViolation, "archive.fetchWindow",
			errEndBeforeBegin)
	}

	rows, err := e.scanRaw(res, limit, begin, end)
	if err != nil {
		return nil, err
	}
	tuples := make([]Tuple, 0, len(rows))
	for _, row := range rows {
		t, err := e.toTuple(row)
		if err != nil {
			if archiveerr.Is(err, archiveerr.KindMappingNotFound) {
				continue
			}
			return nil, err
		}
		tuples = append(tuples, t)
	}

	if op == "" {
		sortByTimeSeqDesc(tuples)
		return &Iterator{tuples: tuples}, nil
	}
	aggregated, err := aggregate(tuples, end, interval, op)
	if err != nil {
		return nil, err
	}
	return &Iterator{tuples: aggregated}, nil
}

func sortByTimeSeqDesc(tuples []Tuple) {
	sort.SliceStable(tuples, func(i, j int) bool {
		if tuples[i].Time != tuples[j].Time {
			return tuples[i].Time > tuples[j].Time
		}
		return tuples[i].SeqNr > tuples[j].SeqNr
	})
}
