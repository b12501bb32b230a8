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
	"errors"
	"fmt"
	"sort"

	"github.com/tuplearchive/archive/archiveerr"
	"github.com/tuplearchive/archive/value"
)

var errEndBeforeBegin = errors.New("end must be >= begin when an aggregation op is requested")

type groupKey struct {
	item, property, context string
}

// aggregate buckets tuples by (item, property, context) and by
// floor((end-time)/interval), emitting one Tuple per (key, bucket)
// with the bucket's representative timestamp, seqNr 0, and the op's
// aggregate value. interval is in the same unit as Tuple.Time;
// interval 0 means one bucket over the whole window.
func aggregate(tuples []Tuple, end, interval int64, op string) ([]Tuple, error) {
	var order []groupKey
	seen := map[groupKey]bool{}
	buckets := map[groupKey]map[int64][]value.Value{}

	for _, t := range tuples {
		k := groupKey{t.Item, t.Property, t.Context}
		if !seen[k] {
			seen[k] = true
			order = append(order, k)
			buckets[k] = map[int64][]value.Value{}
		}
		var bucketIdx int64
		if interval > 0 {
			bucketIdx = (end - t.Time) / interval
		}
		repTime := end - bucketIdx*interval
		buckets[k][repTime] = append(buckets[k][repTime], t.Value)
	}

	var out []Tuple
	for _, k := range order {
		reps := make([]int64, 0, len(buckets[k]))
		for rep := range buckets[k] {
			reps = append(reps, rep)
		}
		sort.Slice(reps, func(i, j int) bool { return reps[i] > reps[j] })
		for _, rep := range reps {
			v, err := aggregateBucket(op, buckets[k][rep])
			if err != nil {
				return nil, err
			}
			out = append(out, Tuple{Item: k.item, Property: k.property, Context: k.context, Time: rep, SeqNr: 0, Value: v})
		}
	}
	return out, nil
}

func aggregateBucket(op string, values []value.Value) (value.Value, error) {
	switch op {
	case "count":
		return value.Int64(int64(len(values))), nil
	case "first":
		return values[0], nil
	case "last":
		return values[len(values)-1], nil
	case "min", "max", "avg", "sum":
		return numericAggregate(op, values)
	default:
		return value.Value{}, archiveerr.New(archiveerr.KindUnsupportedAggregation, "archive.aggregateBucket",
			fmt.Errorf("unknown aggregation op %q", op))
	}
}

func numericAggregate(op string, values []value.Value) (value.Value, error) {
	sum := 0.0
	best := values[0]
	bestNum, ok := best.Numeric()
	if !ok {
		return value.Value{}, unsupportedAggErr(op, best)
	}
	sum += bestNum
	for _, v := range values[1:] {
		n, ok := v.Numeric()
		if !ok {
			return value.Value{}, unsupportedAggErr(op, v)
		}
		sum += n
		switch op {
		case "min":
			if n < bestNum {
				bestNum, best = n, v
			}
		case "max":
			if n > bestNum {
				bestNum, best = n, v
			}
		}
	}
	switch op {
	case "min", "max":
		return best, nil
	case "sum":
		return value.Float64(sum), nil
	case "avg":
		return value.Float64(sum / float64(len(values))), nil
	}
	panic("unreachable")
}

func unsupportedAggErr(op string, v value.Value) error {
	return archiveerr.New(archiveerr.KindUnsupportedAggregation, "archive.aggregateBucket",
		fmt.Errorf("%s: value of kind %v is not numeric", op, v.Kind()))
}
