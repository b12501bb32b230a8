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
	"path/filepath"
	"sort"

	"github.com/tuplearchive/archive/archiveerr"
	"github.com/tuplearchive/archive/idmap"
	"github.com/tuplearchive/archive/storagefs"
)

// Store is the archive's public surface: put/fetch/properties/
// descendants plus the aggregating fetch overload, everything an
// embedding front end (HTTP façade, query adapter, ingestion
// pipeline) needs to call.
type Store struct {
	fs     *storagefs.DirFS
	item   *idmap.DirFile
	prop   *idmap.DirFile
	ctx    *idmap.DirFile
	mapper *idmap.Mapper
	engine *fetchEngine
	writer *Writer
	closed bool
}

// Open opens (creating if necessary) the archive rooted at dir,
// reloading the three mapping files so ids already on disk are not
// re-allocated. A leftover temp/ staging directory from a prior
// aborted put holds only unpromoted data and is discarded.
func Open(dir string) (*Store, error) {
	fs, err := storagefs.NewDirFS(dir)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindIOFailure, "archive.Open", err)
	}
	if err := storagefs.RemoveStaleTemp(fs, "temp"); err != nil {
		return nil, archiveerr.New(archiveerr.KindIOFailure, "archive.Open", err)
	}

	item, err := idmap.OpenDirFile(filepath.Join(dir, "metadata", "itemMapping.parquet"))
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindIOFailure, "archive.Open", err)
	}
	prop, err := idmap.OpenDirFile(filepath.Join(dir, "metadata", "propertyMapping.parquet"))
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindIOFailure, "archive.Open", err)
	}
	ctx, err := idmap.OpenDirFile(filepath.Join(dir, "metadata", "contextMapping.parquet"))
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindIOFailure, "archive.Open", err)
	}

	mapper, err := idmap.NewMapper(item, prop, ctx)
	if err != nil {
		return nil, err
	}
	resolver, err := idmap.NewResolver(item, prop, ctx)
	if err != nil {
		return nil, err
	}

	return &Store{
		fs:     fs,
		item:   item,
		prop:   prop,
		ctx:    ctx,
		mapper: mapper,
		engine: &fetchEngine{fs: fs, resolver: resolver},
		writer: NewWriter(fs, mapper),
	}, nil
}

// Put persists tuples durably. A single archive must not have two
// concurrent Put calls in flight; callers that need parallel
// ingestion serialize externally.
func (s *Store) Put(tuples []Tuple) error {
	if err := s.writer.Put(tuples); err != nil {
		return err
	}
	// a fetch before this put may have cached its URIs as unmapped
	s.engine.resolver.InvalidateMisses()
	return nil
}

// Fetch implements the basic `fetch(item, property, context, limit)`
// overload. hasProperty/hasContext false means "any" for that role.
// The context filter applies only together with a property: with
// hasProperty false, rows of every property and context of item are
// returned.
func (s *Store) Fetch(item, property, context string, hasProperty, hasContext bool, limit int) (*Iterator, error) {
	return s.engine.fetch(item, property, context, hasProperty, hasContext, limit)
}

// FetchWindow implements the time-windowed/aggregating
// `fetch(item, property, context, end, begin, limit, interval, op)`
// overload. op == "" requests the plain windowed form; any of
// "min"/"max"/"avg"/"sum"/"count"/"first"/"last" requests the
// interval-bucketed aggregated series.
func (s *Store) FetchWindow(item, property, context string, hasProperty, hasContext bool, end, begin int64, limit int, interval int64, op string) (*Iterator, error) {
	return s.engine.fetchWindow(item, property, context, hasProperty, hasContext, end, begin, limit, interval, op)
}

// Properties returns the distinct property URIs seen for item,
// sorted for deterministic output.
func (s *Store) Properties(item string) ([]string, error) {
	res, err := s.engine.resolver.Resolve(idmap.Triple{Item: item})
	if err != nil {
		if archiveerr.Is(err, archiveerr.KindMappingNotFound) {
			return nil, nil
		}
		return nil, err
	}
	rows, err := s.engine.scanRaw(res, 0, math.MinInt64, math.MaxInt64)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, row := range rows {
		uri, err := s.engine.resolver.ReverseProperty(row.ID.Property)
		if err != nil {
			continue
		}
		if !seen[uri] {
			seen[uri] = true
			out = append(out, uri)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Descendants returns the distinct URI values found among item's
// tuple values — the closest archive-only analogue of child item
// URIs, since this engine carries no separate graph index: any
// property value that is itself a URI is a link to another item's
// identifier.
func (s *Store) Descendants(item string, limit int) ([]string, error) {
	res, err := s.engine.resolver.Resolve(idmap.Triple{Item: item})
	if err != nil {
		if archiveerr.Is(err, archiveerr.KindMappingNotFound) {
			return nil, nil
		}
		return nil, err
	}
	rows, err := s.engine.scanRaw(res, 0, math.MinInt64, math.MaxInt64)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, row := range rows {
		uri, ok := row.Value.URI()
		if !ok {
			continue
		}
		if !seen[uri] {
			seen[uri] = true
			out = append(out, uri)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// ApproximateSize returns a non-negative row-count estimate for the
// given selector.
func (s *Store) ApproximateSize(item, property, context string, hasProperty, hasContext bool) (int64, error) {
	res, err := s.engine.resolver.Resolve(idmap.Triple{
		Item: item, Property: property, HasProperty: hasProperty, Context: context, HasContext: hasContext,
	})
	if err != nil {
		if archiveerr.Is(err, archiveerr.KindMappingNotFound) {
			return 0, nil
		}
		return 0, err
	}
	rows, err := s.engine.scanRaw(res, 0, math.MinInt64, math.MaxInt64)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// Delete is not implemented in archive mode: it always reports zero
// tuples affected.
func (s *Store) Delete(item, property, context string, hasProperty, hasContext bool) (int64, error) {
	return 0, nil
}

// Close releases the writer's open row file (if any) and the three
// mapping file handles.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.writer.Close(); err != nil {
		return err
	}
	for _, f := range []*idmap.DirFile{s.item, s.prop, s.ctx} {
		if err := f.Close(); err != nil {
			return archiveerr.New(archiveerr.KindIOFailure, "archive.Store.Close", err)
		}
	}
	return nil
}
