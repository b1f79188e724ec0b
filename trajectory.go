/*
 * trajectory.go, part of gsd
 *
 * Copyright 2016 The gsd developers
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package gsd

import (
	"fmt"
	"log"

	"github.com/gosimdata/gsd/fl"
)

// Version of the library, recorded in the application tag of created files.
const Version = "0.9.0"

// SchemaName is the only schema this layer reads and writes.
const SchemaName = "hoomd"

var schemaVersion = [2]uint32{0, 1}

const defaultStep uint64 = 0
const defaultDimensions uint8 = 3

var defaultBox = []float32{1, 1, 1, 0, 0, 0}

// Trajectory reads and/or writes hoomd-schema frames on an open gsd file.
// The handle lazily caches the fully resolved frame 0 the first time any
// operation needs it; the cache is set at most once and is the reference
// against which appends are diffed and reads are defaulted. A Trajectory is
// not safe for concurrent use; callers must serialize Append and ReadFrame.
//
// The handle does not own the file: closing it is the caller's job.
type Trajectory struct {
	file    *fl.File
	initial *Snapshot
}

// NewTrajectory wraps an open gsd file. It fails fast if the file does not
// declare the hoomd schema or declares a schema version other than the
// exactly supported one.
func NewTrajectory(f *fl.File) (*Trajectory, error) {
	if f.Schema() != SchemaName {
		return nil, &SchemaMismatchError{errBase: errBase{filename: f.Name(), deco: []string{"NewTrajectory"}}, schema: f.Schema()}
	}
	if f.SchemaVersion() != schemaVersion {
		return nil, &SchemaVersionError{errBase: errBase{filename: f.Name(), deco: []string{"NewTrajectory"}}, version: f.SchemaVersion()}
	}
	log.Printf("gsd: opened hoomd trajectory %s, %d frames", f.Name(), f.NFrames())
	return &Trajectory{file: f}, nil
}

// Len returns the number of frames in the trajectory.
func (t *Trajectory) Len() int {
	return t.file.NFrames()
}

// loadInitial resolves frame 0 into the cache. The transition happens once;
// further calls are no-ops.
func (t *Trajectory) loadInitial() error {
	if t.initial != nil {
		return nil
	}
	snap, err := t.readFrame(0)
	if err != nil {
		return errDecorate(err, "loadInitial")
	}
	t.initial = snap
	return nil
}

// Append validates the snapshot and writes it as a new frame. Absent fields
// are not written; present fields whose data can be reconstructed on read,
// from the same field of frame 0 or from the catalog default, are elided.
// The frame is committed at the end of the call; a failure before that
// leaves the trajectory without the frame.
func (t *Trajectory) Append(snap *Snapshot) error {
	if err := snap.Validate(); err != nil {
		return errDecorate(err, "Append")
	}
	// diffing against frame 0 needs frame 0 loaded, when there is one
	if t.initial == nil && t.Len() > 0 {
		if err := t.loadInitial(); err != nil {
			return errDecorate(err, "Append")
		}
	}
	if err := t.writeConfiguration(&snap.Configuration); err != nil {
		return errDecorate(err, "Append")
	}
	for i := range particleFields {
		d := &particleFields[i]
		var c *fl.Chunk
		var err error
		switch d.rule {
		case fileScalar:
			if !t.shouldWriteN(snap.Particles.N) {
				continue
			}
			c, err = fl.NewUint32Chunk([]uint32{snap.Particles.N}, 1)
		case nameList:
			if !t.shouldWriteTypes(snap.Particles.Types) {
				continue
			}
			c, err = encodeTypes(snap.Particles.Types)
		default:
			f := d.get(&snap.Particles)
			if !t.shouldWrite(d, f) {
				continue
			}
			c, err = f.toChunk()
		}
		if err != nil {
			return errDecorate(err, "Append")
		}
		if err := t.file.WriteChunk("particles/"+d.name, c); err != nil {
			return errDecorate(err, "Append")
		}
	}
	if err := t.file.EndFrame(); err != nil {
		return errDecorate(err, "Append")
	}
	return nil
}

// Extend appends each snapshot in order. No atomicity across snapshots: a
// failure leaves the already appended frames committed.
func (t *Trajectory) Extend(snaps []*Snapshot) error {
	for _, s := range snaps {
		if err := t.Append(s); err != nil {
			return errDecorate(err, "Extend")
		}
	}
	return nil
}

// shouldWrite decides whether a per-particle field must be physically
// written: absent fields never, fields equal to the cached frame-0 value or
// to the broadcast catalog default never, everything else yes.
func (t *Trajectory) shouldWrite(d *fieldDesc, f *Field) bool {
	if f == nil {
		return false
	}
	if t.initial != nil {
		if init := d.get(&t.initial.Particles); init != nil && init.Equal(f) {
			return false
		}
	}
	return !f.matchesRow(d.def)
}

func (t *Trajectory) shouldWriteN(n uint32) bool {
	if t.initial != nil && t.initial.Particles.N == n {
		return false
	}
	return n != 0
}

func (t *Trajectory) shouldWriteTypes(types []string) bool {
	if types == nil {
		return false
	}
	if t.initial != nil && stringsEqual(t.initial.Particles.Types, types) {
		return false
	}
	// the default is ["A"]; broadcast comparison means any all-"A" list
	// (including an empty one) matches it
	for _, s := range types {
		if s != "A" {
			return true
		}
	}
	return false
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func f32Equal(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (t *Trajectory) writeConfiguration(c *ConfigurationData) error {
	if c.Step != nil && t.shouldWriteStep(*c.Step) {
		ch, err := fl.NewUint64Chunk([]uint64{*c.Step}, 1)
		if err != nil {
			return err
		}
		if err := t.file.WriteChunk("configuration/step", ch); err != nil {
			return err
		}
	}
	if c.Dimensions != nil && t.shouldWriteDimensions(*c.Dimensions) {
		ch, err := fl.NewUint8Chunk([]uint8{*c.Dimensions}, 1)
		if err != nil {
			return err
		}
		if err := t.file.WriteChunk("configuration/dimensions", ch); err != nil {
			return err
		}
	}
	if c.Box != nil && t.shouldWriteBox(c.Box) {
		ch, err := fl.NewFloat32Chunk(c.Box, 1)
		if err != nil {
			return err
		}
		if err := t.file.WriteChunk("configuration/box", ch); err != nil {
			return err
		}
	}
	return nil
}

func (t *Trajectory) shouldWriteStep(v uint64) bool {
	if t.initial != nil && t.initial.Configuration.Step != nil && *t.initial.Configuration.Step == v {
		return false
	}
	return v != defaultStep
}

func (t *Trajectory) shouldWriteDimensions(v uint8) bool {
	if t.initial != nil && t.initial.Configuration.Dimensions != nil && *t.initial.Configuration.Dimensions == v {
		return false
	}
	return v != defaultDimensions
}

func (t *Trajectory) shouldWriteBox(box []float32) bool {
	if t.initial != nil && t.initial.Configuration.Box != nil && f32Equal(t.initial.Configuration.Box, box) {
		return false
	}
	return !f32Equal(box, defaultBox)
}

// encodeTypes packs the type names into a fixed-width byte matrix: one row
// per name, width = longest name in UTF-8 bytes + 1, each name left
// justified and zero padded.
func encodeTypes(types []string) (*fl.Chunk, error) {
	wid := 1
	for _, s := range types {
		if len(s)+1 > wid {
			wid = len(s) + 1
		}
	}
	buf := make([]int8, len(types)*wid)
	for i, s := range types {
		for j := 0; j < len(s); j++ {
			buf[i*wid+j] = int8(s[j])
		}
	}
	return fl.NewInt8Chunk(buf, wid)
}

// decodeTypes is the inverse of encodeTypes, trimming the zero padding off
// each row.
func decodeTypes(c *fl.Chunk) ([]string, error) {
	raw, err := c.Int8s()
	if err != nil {
		return nil, err
	}
	wid := c.Cols()
	out := make([]string, c.Rows())
	for i := range out {
		row := raw[i*wid : (i+1)*wid]
		end := len(row)
		for j, b := range row {
			if b == 0 {
				end = j
				break
			}
		}
		bs := make([]byte, end)
		for j := 0; j < end; j++ {
			bs[j] = byte(row[j])
		}
		out[i] = string(bs)
	}
	return out, nil
}

// ReadFrame reconstructs the full snapshot of one frame. Chunks physically
// present in the frame are read; everything else falls back to the cached
// frame 0 and then to the catalog defaults. Fallback buffers are shared
// storage and are returned read-only.
func (t *Trajectory) ReadFrame(idx int) (*Snapshot, error) {
	if idx < 0 || idx >= t.Len() {
		return nil, &FrameIndexError{errBase: errBase{filename: t.file.Name(), deco: []string{"ReadFrame"}},
			idx: idx, nframes: t.Len()}
	}
	// frame 0 is the reference frame no matter which frame is requested
	if t.initial == nil && idx != 0 {
		if err := t.loadInitial(); err != nil {
			return nil, errDecorate(err, "ReadFrame")
		}
	}
	snap, err := t.readFrame(idx)
	if err != nil {
		return nil, errDecorate(err, "ReadFrame")
	}
	if t.initial == nil && idx == 0 {
		t.initial = snap
	}
	return snap, nil
}

func (t *Trajectory) readFrame(idx int) (*Snapshot, error) {
	snap := new(Snapshot)
	p := &snap.Particles

	// particle count
	if t.file.ChunkExists(idx, "particles/N") {
		c, err := t.file.ReadChunk(idx, "particles/N")
		if err != nil {
			return nil, errDecorate(err, "readFrame")
		}
		v, err := c.Uint32s()
		if err != nil {
			return nil, errDecorate(err, "readFrame")
		}
		if len(v) == 0 {
			return nil, fmt.Errorf("gsd file %s: empty particles/N chunk in frame %d", t.file.Name(), idx)
		}
		p.N = v[0]
	} else if t.initial != nil {
		p.N = t.initial.Particles.N
	}

	// type names
	if t.file.ChunkExists(idx, "particles/types") {
		c, err := t.file.ReadChunk(idx, "particles/types")
		if err != nil {
			return nil, errDecorate(err, "readFrame")
		}
		if p.Types, err = decodeTypes(c); err != nil {
			return nil, errDecorate(err, "readFrame")
		}
	} else if t.initial != nil {
		p.Types = t.initial.Particles.Types
	} else {
		p.Types = []string{"A"}
	}

	// per particle quantities
	for i := range particleFields {
		d := &particleFields[i]
		if d.get == nil {
			continue
		}
		path := "particles/" + d.name
		if t.file.ChunkExists(idx, path) {
			c, err := t.file.ReadChunk(idx, path)
			if err != nil {
				return nil, errDecorate(err, "readFrame")
			}
			f, err := fieldFromChunk(c)
			if err != nil {
				return nil, errDecorate(err, "readFrame")
			}
			d.set(p, f)
			continue
		}
		if t.initial != nil && t.initial.Particles.N == p.N {
			// alias frame-0 storage; the buffer (and with it the cached
			// copy) becomes read-only
			if f := d.get(&t.initial.Particles); f != nil {
				f.shared = true
				d.set(p, f)
				continue
			}
		}
		d.set(p, tileRow(d.def, int(p.N)))
	}

	// configuration
	cf := &snap.Configuration
	step := defaultStep
	if t.file.ChunkExists(idx, "configuration/step") {
		c, err := t.file.ReadChunk(idx, "configuration/step")
		if err != nil {
			return nil, errDecorate(err, "readFrame")
		}
		v, err := c.Uint64s()
		if err != nil {
			return nil, errDecorate(err, "readFrame")
		}
		if len(v) == 0 {
			return nil, fmt.Errorf("gsd file %s: empty configuration/step chunk in frame %d", t.file.Name(), idx)
		}
		step = v[0]
	} else if t.initial != nil && t.initial.Configuration.Step != nil {
		step = *t.initial.Configuration.Step
	}
	cf.Step = &step

	dims := defaultDimensions
	if t.file.ChunkExists(idx, "configuration/dimensions") {
		c, err := t.file.ReadChunk(idx, "configuration/dimensions")
		if err != nil {
			return nil, errDecorate(err, "readFrame")
		}
		v, err := c.Uint8s()
		if err != nil {
			return nil, errDecorate(err, "readFrame")
		}
		if len(v) == 0 {
			return nil, fmt.Errorf("gsd file %s: empty configuration/dimensions chunk in frame %d", t.file.Name(), idx)
		}
		dims = v[0]
	} else if t.initial != nil && t.initial.Configuration.Dimensions != nil {
		dims = *t.initial.Configuration.Dimensions
	}
	cf.Dimensions = &dims

	if t.file.ChunkExists(idx, "configuration/box") {
		c, err := t.file.ReadChunk(idx, "configuration/box")
		if err != nil {
			return nil, errDecorate(err, "readFrame")
		}
		box, err := c.Float32s()
		if err != nil {
			return nil, errDecorate(err, "readFrame")
		}
		cf.Box = box
	} else if t.initial != nil && t.initial.Configuration.Box != nil {
		cf.Box = t.initial.Configuration.Box
	} else {
		cf.Box = append([]float32(nil), defaultBox...)
	}

	return snap, nil
}

// Create makes a new hoomd gsd file at path and writes the snapshot as
// frame 0. Any existing file at path is overwritten. The optional zstd
// level is forwarded to the file layer.
func Create(path string, snap *Snapshot, level ...int) error {
	log.Printf("gsd: creating hoomd file %s", path)
	if err := fl.Create(path, "gsd-go "+Version, SchemaName, schemaVersion, level...); err != nil {
		return errDecorate(err, "Create")
	}
	f, err := fl.Open(path, "w")
	if err != nil {
		return errDecorate(err, "Create")
	}
	defer f.Close()
	traj, err := NewTrajectory(f)
	if err != nil {
		return errDecorate(err, "Create")
	}
	if err := traj.Append(snap); err != nil {
		return errDecorate(err, "Create")
	}
	return nil
}
