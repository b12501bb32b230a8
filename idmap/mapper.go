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

// Package idmap implements the bidirectional mapping between URI
// strings and dense 64-bit ids, per role (item, property, context):
// a write-side in-memory map with an append-only backing file, and a
// read-side resolver backed by bounded LRU caches (one for URI->id
// resolutions, one per role for id->URI lookups).
package idmap

import (
	"fmt"

	"golang.org/x/exp/maps"

	"github.com/tuplearchive/archive/archiveerr"
)

// Role identifies which of the three mapping files an id belongs to.
type Role int

const (
	RoleItem Role = iota
	RoleProperty
	RoleContext
)

func (r Role) String() string {
	switch r {
	case RoleItem:
		return "item"
	case RoleProperty:
		return "property"
	case RoleContext:
		return "context"
	default:
		return "unknown"
	}
}

// File is the durable append-only backing store for one role's
// mapping. Mapper and Resolver are both built on top of it.
type File interface {
	// Append durably persists one (id, uri) row. An archive has at
	// most one writer at a time, so Append is never called
	// concurrently.
	Append(id uint64, uri string) error
	// Load reads every (id, uri) row currently on disk, in id
	// order, calling fn for each. Used both to bootstrap Mapper's
	// counters at open and to serve Resolver scans.
	Load(fn func(id uint64, uri string) error) error
}

// Mapper is the write side of the id mapper: one in-memory
// URI->id map and monotonically increasing counter per role, backed
// by three append-only mapping files.
type Mapper struct {
	roles [3]roleState
}

type roleState struct {
	file  File
	byURI map[string]uint64
	next  uint64 // next id to allocate; ids are dense from 1
}

// NewMapper constructs a Mapper over the three per-role mapping
// files and reloads their existing contents so a restarted process
// continues the id sequence instead of re-allocating ids that
// already exist on disk.
func NewMapper(item, property, context File) (*Mapper, error) {
	m := &Mapper{}
	m.roles[RoleItem] = roleState{file: item, byURI: map[string]uint64{}}
	m.roles[RoleProperty] = roleState{file: property, byURI: map[string]uint64{}}
	m.roles[RoleContext] = roleState{file: context, byURI: map[string]uint64{}}
	for role := range m.roles {
		rs := &m.roles[role]
		err := rs.file.Load(func(id uint64, uri string) error {
			rs.byURI[uri] = id
			if id >= rs.next {
				rs.next = id + 1
			}
			return nil
		})
		if err != nil {
			return nil, archiveerr.New(archiveerr.KindIOFailure, "idmap.NewMapper", err)
		}
		if rs.next == 0 {
			rs.next = 1
		}
	}
	return m, nil
}

// Resolve returns the id for uri under role, allocating and
// persisting a new dense id (current counter value, then
// incrementing) if uri has not been seen before. changed reports
// whether a new id was allocated, which the columnar writer uses to
// predict the next partition key.
func (m *Mapper) Resolve(role Role, uri string) (id uint64, changed bool, err error) {
	rs := &m.roles[role]
	if id, ok := rs.byURI[uri]; ok {
		return id, false, nil
	}
	id = rs.next
	if err := rs.file.Append(id, uri); err != nil {
		return 0, false, archiveerr.New(archiveerr.KindIOFailure, "idmap.Resolve",
			fmt.Errorf("%s mapping: %w", role, err))
	}
	rs.byURI[uri] = id
	rs.next++
	return id, true, nil
}

// WouldAllocate reports whether resolving uri under role would
// introduce a new id, without actually allocating one. The writer
// checks this before resolving a tuple's ids so a partition roll can
// predict the id range the next partition will open with.
func (m *Mapper) WouldAllocate(role Role, uri string) bool {
	_, ok := m.roles[role].byURI[uri]
	return !ok
}

// Count returns the number of distinct ids allocated for role so
// far; the ids on disk are exactly {1..Count}.
func (m *Mapper) Count(role Role) uint64 {
	return m.roles[role].next - 1
}

// Reset clears the in-memory maps and restarts every counter at 1,
// without touching the backing files.
func (m *Mapper) Reset() {
	for i := range m.roles {
		maps.Clear(m.roles[i].byURI)
		m.roles[i].next = 1
	}
}
