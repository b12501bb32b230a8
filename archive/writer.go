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
	"os"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/tuplearchive/archive/archiveerr"
	"github.com/tuplearchive/archive/idmap"
	"github.com/tuplearchive/archive/partkey"
	"github.com/tuplearchive/archive/rowfile"
	"github.com/tuplearchive/archive/storagefs"
)

// weekSeconds is one week in seconds, the writer's chunk width.
const weekSeconds = 604800

// compressionProfile is the ZSTD level-12 profile partition leaves
// are written with.
const compressionProfile = "zstd-archive"

// dataFileName is the leaf file name under a week directory.
const dataFileName = "data.parquet"

// Writer is the columnar writer state machine: a 5-tuple (current
// file, week key, year key, nextChunkTimestamp, prevDate) with
// "write row", "roll week", and "roll year" transitions, kept
// explicit rather than hidden in closures.
type Writer struct {
	fs     *storagefs.DirFS
	mapper *idmap.Mapper

	started            bool
	nextChunkTimestamp int64

	yearStage string // temp staging directory for the open year
	weekStage string // temp staging directory for the open week, under yearStage

	weekMin  partkey.Key
	yearMin  partkey.Key
	yearNum  int
	prevDate time.Time

	rowFile   *os.File
	rowWriter *rowfile.Writer
}

// NewWriter constructs a Writer over fs's archive root, using mapper
// to resolve URIs to ids.
func NewWriter(fs *storagefs.DirFS, mapper *idmap.Mapper) *Writer {
	return &Writer{fs: fs, mapper: mapper}
}

// Put persists tuples, in order, durably: the slice is one complete
// stream, and end-of-stream finalizes both the current week and its
// enclosing year directory, so everything is under its final
// partition-keyed name by the time Put returns. A failure mid-stream
// aborts with IOFailure; partitions already promoted before the
// failure remain durable and the in-flight temp/ staging directory
// is left behind for the next Open to discard.
func (w *Writer) Put(tuples []Tuple) error {
	for _, t := range tuples {
		if err := w.putOne(t); err != nil {
			return err
		}
	}
	return w.finish()
}

func currentCounts(m *idmap.Mapper) partkey.Key {
	return partkey.Key{
		Item:     m.Count(idmap.RoleItem),
		Property: m.Count(idmap.RoleProperty),
		Context:  m.Count(idmap.RoleContext),
	}
}

func b2u64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (w *Writer) putOne(t Tuple) error {
	// If this tuple triggers a roll, the new week opens with Pmin =
	// current counters plus 1 in each role this tuple introduces a
	// new id for, so the WouldAllocate checks must run before
	// Resolve below mutates the counters.
	before := currentCounts(w.mapper)
	wouldItem := w.mapper.WouldAllocate(idmap.RoleItem, t.Item)
	wouldProp := w.mapper.WouldAllocate(idmap.RoleProperty, t.Property)
	wouldCtx := w.mapper.WouldAllocate(idmap.RoleContext, t.Context)

	// id resolution
	itemID, _, err := w.mapper.Resolve(idmap.RoleItem, t.Item)
	if err != nil {
		return err
	}
	propID, _, err := w.mapper.Resolve(idmap.RoleProperty, t.Property)
	if err != nil {
		return err
	}
	ctxID, _, err := w.mapper.Resolve(idmap.RoleContext, t.Context)
	if err != nil {
		return err
	}
	key := partkey.Key{Item: itemID, Property: propID, Context: ctxID}

	tupleDate := time.Unix(t.Time, 0).UTC()
	predicted := partkey.Key{
		Item:     before.Item + b2u64(wouldItem),
		Property: before.Property + b2u64(wouldProp),
		Context:  before.Context + b2u64(wouldCtx),
	}

	switch {
	case !w.started:
		if err := w.begin(t.Time, tupleDate, before); err != nil {
			return err
		}
	case t.Time >= w.nextChunkTimestamp:
		if err := w.rollWeek(tupleDate, predicted); err != nil {
			return err
		}
	}

	// ids reused from an earlier stream can sit below the opening
	// snapshot; widen Pmin so the partition's range still covers them
	w.weekMin = partkey.Min(w.weekMin, key)
	w.yearMin = partkey.Min(w.yearMin, key)

	if err := w.rowWriter.Append(rowfile.Row{ID: key, Time: t.Time, SeqNr: t.SeqNr, Value: t.Value}); err != nil {
		return archiveerr.New(archiveerr.KindIOFailure, "archive.Writer.Put", err)
	}
	w.prevDate = tupleDate
	return nil
}

// begin opens the stream's first week/year staging directories. The
// stream's opening Pmin is the id-counter snapshot taken before the
// first tuple resolved its ids: every id the stream can observe is
// above it, and a roll that allocates nothing new still produces a
// distinct directory name from the week that opened the stream.
func (w *Writer) begin(t0 int64, date time.Time, minKey partkey.Key) error {
	w.weekMin = minKey
	w.yearMin = minKey
	w.yearNum = date.Year()
	w.prevDate = date
	w.nextChunkTimestamp = t0 + weekSeconds

	w.yearStage = path.Join("temp", "year-"+uuid.NewString())
	if err := w.openWeekFile(); err != nil {
		return err
	}
	w.started = true
	return nil
}

func (w *Writer) openWeekFile() error {
	w.weekStage = path.Join(w.yearStage, "week-"+uuid.NewString())
	f, err := w.fs.AppendFile(path.Join(w.weekStage, dataFileName))
	if err != nil {
		return archiveerr.New(archiveerr.KindIOFailure, "archive.Writer.openWeekFile", err)
	}
	w.rowFile = f
	w.rowWriter = rowfile.NewWriter(f, compressionProfile)
	return nil
}

// rollWeek closes the current week's data file and renames its
// staging directory to its final partition-keyed name, rolling the
// year too if tupleDate's year differs from the currently open one,
// then opens a fresh staging directory for the next week.
func (w *Writer) rollWeek(tupleDate time.Time, predictedMin partkey.Key) error {
	if err := w.finalizeWeek(); err != nil {
		return err
	}

	yearChanged := tupleDate.Year() != w.yearNum
	if yearChanged {
		if err := w.finalizeYear(); err != nil {
			return err
		}
		w.yearStage = path.Join("temp", "year-"+uuid.NewString())
		w.yearNum = tupleDate.Year()
		w.yearMin = predictedMin
	}

	w.weekMin = predictedMin
	w.nextChunkTimestamp += weekSeconds
	return w.openWeekFile()
}

// finalizeWeek closes the active row writer and promotes the week
// staging directory to its final "<encode(Min)>_<encode(Max)>"
// name, where Max is read from the id counters at the moment of the
// roll decision — including whatever the triggering tuple itself
// just allocated.
func (w *Writer) finalizeWeek() error {
	if err := w.rowWriter.Close(); err != nil {
		return archiveerr.New(archiveerr.KindIOFailure, "archive.Writer.finalizeWeek", err)
	}
	if err := w.rowFile.Close(); err != nil {
		return archiveerr.New(archiveerr.KindIOFailure, "archive.Writer.finalizeWeek", err)
	}
	weekMax := currentCounts(w.mapper)
	name := partkey.WeekDirName(partkey.Range{Min: w.weekMin, Max: weekMax})
	if err := w.promoteWeek(w.weekStage, path.Join(w.yearStage, name)); err != nil {
		return archiveerr.New(archiveerr.KindIOFailure, "archive.Writer.finalizeWeek", err)
	}
	return nil
}

// promoteWeek moves a staged week directory to its final name. When
// the name is already taken (a roll that allocated no new ids
// produces the same bounds as its predecessor), the staged data file
// is appended to the existing one instead: row-file blocks are
// self-contained, so file-level concatenation merges the two weeks.
func (w *Writer) promoteWeek(stagedRel, targetRel string) error {
	if !w.fs.Exists(targetRel) {
		return w.fs.Rename(stagedRel, targetRel)
	}
	err := w.fs.AppendFrom(path.Join(targetRel, dataFileName), path.Join(stagedRel, dataFileName))
	if err != nil {
		return err
	}
	return w.fs.RemoveAll(stagedRel)
}

// promoteYear moves a staged year directory (holding only finalized
// week subdirectories) to its final name, merging week by week when
// a previous stream already produced a year directory of the same
// name.
func (w *Writer) promoteYear(stagedRel, targetRel string) error {
	if !w.fs.Exists(targetRel) {
		return w.fs.Rename(stagedRel, targetRel)
	}
	weeks, err := w.fs.ListDir(stagedRel)
	if err != nil {
		return err
	}
	for _, wk := range weeks {
		if err := w.promoteWeek(path.Join(stagedRel, wk), path.Join(targetRel, wk)); err != nil {
			return err
		}
	}
	return w.fs.RemoveAll(stagedRel)
}

// finalizeYear renames the year staging directory (which by now
// contains only finalized week subdirectories) to its final
// "<encode(Min)>_<encode(Max)>_<YYYY>" name, using prevDate's year —
// the year that is closing, not the one the triggering tuple opens.
func (w *Writer) finalizeYear() error {
	yearMax := currentCounts(w.mapper)
	name := partkey.YearDirName(partkey.Range{Min: w.yearMin, Max: yearMax}, w.prevDate.Year())
	if err := w.promoteYear(w.yearStage, name); err != nil {
		return archiveerr.New(archiveerr.KindIOFailure, "archive.Writer.finalizeYear", err)
	}
	return nil
}

// finish finalizes the current week and its enclosing year directory
// at end-of-stream and resets the state machine for the next stream.
// It is a no-op if no tuple was ever written.
func (w *Writer) finish() error {
	if !w.started {
		return nil
	}
	if err := w.finalizeWeek(); err != nil {
		return err
	}
	if err := w.finalizeYear(); err != nil {
		return err
	}
	w.started = false
	w.rowFile = nil
	w.rowWriter = nil
	return nil
}

// Close finalizes any stream still open. Put already finalizes at
// end-of-stream, so this only matters after a failed Put left state
// behind.
func (w *Writer) Close() error {
	return w.finish()
}
