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

package idmap

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tuplearchive/archive/archiveerr"
)

// Triple holds the (itemUri?, propertyUri?, contextUri?) query key
// used to memoize resolutions. An absent property or context URI
// means "any" and resolves to no mapping entry for that role.
type Triple struct {
	Item, Property, Context string
	HasProperty, HasContext bool
}

// Resolved is the {itemMapping?, propertyMapping?, contextMapping?}
// result of resolving a Triple. A zero value with Found=false for a
// role means that role's input URI was null ("any").
type Resolved struct {
	Item        uint64
	Property    uint64
	HasProperty bool
	Context     uint64
	HasContext  bool
}

const (
	forwardCacheSize = 20000
	reverseCacheSize = 10000
)

// Resolver is the read side of the id mapper: resolves URI triples
// to mapping ids (scanning the mapping files with an equality
// predicate) and reverse-resolves ids back to URIs for iteration,
// memoizing both directions in bounded LRU caches shared across
// concurrent readers.
type Resolver struct {
	files [3]File

	mu      sync.Mutex
	forward *lru.Cache[Triple, *Resolved]
	reverse [3]*lru.Cache[uint64, string]
}

// NewResolver constructs a Resolver over the three mapping files.
func NewResolver(item, property, context File) (*Resolver, error) {
	fwd, err := lru.New[Triple, *Resolved](forwardCacheSize)
	if err != nil {
		return nil, err
	}
	r := &Resolver{
		files:   [3]File{item, property, context},
		forward: fwd,
	}
	for i := range r.reverse {
		c, err := lru.New[uint64, string](reverseCacheSize)
		if err != nil {
			return nil, err
		}
		r.reverse[i] = c
	}
	return r, nil
}

// lookupURI scans a mapping file for the row whose uri column
// equals want.
func lookupURI(f File, want string) (uint64, bool, error) {
	var found uint64
	var ok bool
	err := f.Load(func(id uint64, uri string) error {
		if uri == want {
			found, ok = id, true
		}
		return nil
	})
	return found, ok, err
}

func lookupID(f File, want uint64) (string, bool, error) {
	var found string
	var ok bool
	err := f.Load(func(id uint64, uri string) error {
		if id == want {
			found, ok = uri, true
		}
		return nil
	})
	return found, ok, err
}

// Resolve resolves (itemUri, propertyUri?, contextUri?) to ids. A
// missing (non-null) URI yields a MappingNotFound error, which
// fetch/properties/descendants turn into an empty sequence rather
// than propagating.
func (r *Resolver) Resolve(t Triple) (*Resolved, error) {
	r.mu.Lock()
	if cached, ok := r.forward.Get(t); ok {
		r.mu.Unlock()
		if cached == nil {
			return nil, archiveerr.New(archiveerr.KindMappingNotFound, "idmap.Resolve", nil)
		}
		return cached, nil
	}
	r.mu.Unlock()

	var out Resolved
	itemID, ok, err := lookupURI(r.files[RoleItem], t.Item)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindIOFailure, "idmap.Resolve", err)
	}
	if !ok {
		r.mu.Lock()
		r.forward.Add(t, nil)
		r.mu.Unlock()
		return nil, archiveerr.New(archiveerr.KindMappingNotFound, "idmap.Resolve",
			fmt.Errorf("item %q not mapped", t.Item))
	}
	out.Item = itemID

	if t.HasProperty {
		propID, ok, err := lookupURI(r.files[RoleProperty], t.Property)
		if err != nil {
			return nil, archiveerr.New(archiveerr.KindIOFailure, "idmap.Resolve", err)
		}
		if !ok {
			r.mu.Lock()
			r.forward.Add(t, nil)
			r.mu.Unlock()
			return nil, archiveerr.New(archiveerr.KindMappingNotFound, "idmap.Resolve",
				fmt.Errorf("property %q not mapped", t.Property))
		}
		out.Property, out.HasProperty = propID, true
	}

	if t.HasContext {
		ctxID, ok, err := lookupURI(r.files[RoleContext], t.Context)
		if err != nil {
			return nil, archiveerr.New(archiveerr.KindIOFailure, "idmap.Resolve", err)
		}
		if !ok {
			r.mu.Lock()
			r.forward.Add(t, nil)
			r.mu.Unlock()
			return nil, archiveerr.New(archiveerr.KindMappingNotFound, "idmap.Resolve",
				fmt.Errorf("context %q not mapped", t.Context))
		}
		out.Context, out.HasContext = ctxID, true
	}

	r.mu.Lock()
	r.forward.Add(t, &out)
	r.mu.Unlock()
	return &out, nil
}

// InvalidateMisses drops every negative (URI-not-mapped) entry from
// the forward cache. A put can map URIs that earlier fetch calls
// memoized as missing; positive entries stay valid forever since ids
// are never reused.
func (r *Resolver) InvalidateMisses() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.forward.Keys() {
		if v, ok := r.forward.Peek(k); ok && v == nil {
			r.forward.Remove(k)
		}
	}
}

// ReverseProperty resolves a property id back to its URI, caching
// the result in the bounded reverse-lookup cache used during row
// iteration to surface property names.
func (r *Resolver) ReverseProperty(id uint64) (string, error) {
	return r.reverse1(RoleProperty, id)
}

// ReverseItem resolves an item id back to its URI.
func (r *Resolver) ReverseItem(id uint64) (string, error) {
	return r.reverse1(RoleItem, id)
}

// ReverseContext resolves a context id back to its URI.
func (r *Resolver) ReverseContext(id uint64) (string, error) {
	return r.reverse1(RoleContext, id)
}

func (r *Resolver) reverse1(role Role, id uint64) (string, error) {
	r.mu.Lock()
	if uri, ok := r.reverse[role].Get(id); ok {
		r.mu.Unlock()
		return uri, nil
	}
	r.mu.Unlock()

	uri, ok, err := lookupID(r.files[role], id)
	if err != nil {
		return "", archiveerr.New(archiveerr.KindIOFailure, "idmap.reverse", err)
	}
	if !ok {
		return "", archiveerr.New(archiveerr.KindMappingNotFound, "idmap.reverse",
			fmt.Errorf("%s id %d not mapped", role, id))
	}
	r.mu.Lock()
	r.reverse[role].Add(id, uri)
	r.mu.Unlock()
	return uri, nil
}
