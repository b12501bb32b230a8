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
	"log"
	"path"
	"sort"

	"github.com/tuplearchive/archive/archiveerr"
	"github.com/tuplearchive/archive/idmap"
	"github.com/tuplearchive/archive/partkey"
	"github.com/tuplearchive/archive/rowfile"
	"github.com/tuplearchive/archive/storagefs"
)

// fetchEngine resolves URIs to ids, prunes partition directories,
// and scans the surviving row files.
type fetchEngine struct {
	fs       *storagefs.DirFS
	resolver *idmap.Resolver
}

// leaf names one surviving week directory, relative to fs.
type leaf struct {
	yearDir, weekDir string
}

// prunedLeaves keeps a year directory iff its name parses to a
// [Pmin, Pmax]_YYYY range whose item bounds contain itemID, then
// filters each kept year's week directories by the same predicate on
// their own parsed ranges. Malformed names mark non-data directories
// and are skipped silently.
func (e *fetchEngine) prunedLeaves(itemID uint64) ([]leaf, error) {
	years, err := e.fs.ListDir(".")
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindIOFailure, "archive.fetch.prunedLeaves", err)
	}
	sort.Strings(years)

	var out []leaf
	for _, yname := range years {
		if yname == "temp" || yname == "metadata" {
			continue
		}
		yrange, _, err := partkey.ParseYearDirName(yname)
		if err != nil || !yrange.Valid() || !yrange.ContainsItem(itemID) {
			continue // malformed or out of range: skip, keep going
		}
		weeks, err := e.fs.ListDir(yname)
		if err != nil {
			return nil, archiveerr.New(archiveerr.KindIOFailure, "archive.fetch.prunedLeaves", err)
		}
		sort.Strings(weeks)
		for _, wname := range weeks {
			wrange, err := partkey.ParseWeekDirName(wname)
			if err != nil || !wrange.Valid() || !wrange.ContainsItem(itemID) {
				continue
			}
			out = append(out, leaf{yearDir: yname, weekDir: wname})
		}
	}
	return out, nil
}

// rowPredicate builds the pushdown predicate for a resolved triple:
// exact 24-byte equality when the whole key is known, an item+
// property match when the context is "any", and an item-range match
// otherwise.
func rowPredicate(res *idmap.Resolved) rowfile.Predicate {
	switch {
	case res.HasProperty && res.HasContext:
		return rowfile.Exact(partkey.Key{Item: res.Item, Property: res.Property, Context: res.Context})
	case res.HasProperty:
		propID := res.Property
		return func(k partkey.Key) bool { return k.Item == res.Item && k.Property == propID }
	default:
		return rowfile.ItemIn(res.Item, res.Item)
	}
}

// scanRaw opens every pruned leaf for item/property/context and
// applies the per-property limit over the raw concatenated reader
// order (discovery order, not time order). Rows outside [begin, end]
// are dropped before they can consume any of the limit. limit == 0
// disables skipping; the currentProperty/count state survives reader
// boundaries so a property spanning several weeks still yields at
// most limit rows.
func (e *fetchEngine) scanRaw(res *idmap.Resolved, limit int, begin, end int64) ([]rowfile.Row, error) {
	leaves, err := e.prunedLeaves(res.Item)
	if err != nil {
		return nil, err
	}
	pred := rowPredicate(res)

	var out []rowfile.Row
	var currentProperty uint64
	haveCurrent := false
	counts := map[uint64]int{}

	for _, lf := range leaves {
		f, err := e.fs.Open(path.Join(lf.yearDir, lf.weekDir, dataFileName))
		if err != nil {
			return nil, archiveerr.New(archiveerr.KindIOFailure, "archive.fetch.scanRaw", err)
		}
		rd := rowfile.NewReader(f, compressionProfile)
		for {
			row, ok, err := rd.Next(pred)
			if err != nil {
				if archiveerr.Is(err, archiveerr.KindValueDecoding) {
					// the frame was already consumed; drop the row
					log.Printf("archive: skipping undecodable row in %s/%s: %s", lf.yearDir, lf.weekDir, err)
					continue
				}
				f.Close()
				return nil, err
			}
			if !ok {
				break
			}
			if row.Time < begin || row.Time > end {
				continue
			}
			if !haveCurrent || row.ID.Property != currentProperty {
				currentProperty = row.ID.Property
				haveCurrent = true
				for k := range counts {
					delete(counts, k)
				}
			}
			if limit > 0 && counts[currentProperty] >= limit {
				continue
			}
			counts[currentProperty]++
			out = append(out, row)
		}
		f.Close()
	}
	return out, nil
}

// toTuple resolves a raw row's id back to URIs, producing the
// caller-facing Tuple.
func (e *fetchEngine) toTuple(row rowfile.Row) (Tuple, error) {
	item, err := e.resolver.ReverseItem(row.ID.Item)
	if err != nil {
		return Tuple{}, err
	}
	property, err := e.resolver.ReverseProperty(row.ID.Property)
	if err != nil {
		return Tuple{}, err
	}
	context, err := e.resolver.ReverseContext(row.ID.Context)
	if err != nil {
		return Tuple{}, err
	}
	return Tuple{
		Item:     item,
		Property: property,
		Context:  context,
		Time:     row.Time,
		SeqNr:    row.SeqNr,
		Value:    row.Value,
	}, nil
}
