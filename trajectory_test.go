/*
 * trajectory_test.go, part of gsd
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
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/gosimdata/gsd/fl"
)

func testSnapshot() *Snapshot {
	snap := new(Snapshot)
	p := &snap.Particles
	p.N = 2
	p.Types = []string{"A", "B"}
	p.TypeID = NewU32([]uint32{0, 1})
	p.Position = NewF32([]float32{0, 0, 0, 1, 1, 1})
	p.Mass = NewF32([]float32{1.5, 2.5})
	return snap
}

func openTraj(Te *testing.T, path, mode string) (*fl.File, *Trajectory) {
	f, err := fl.Open(path, mode)
	if err != nil {
		Te.Fatal(err)
	}
	traj, err := NewTrajectory(f)
	if err != nil {
		f.Close()
		Te.Fatal(err)
	}
	return f, traj
}

func TestRoundTrip(Te *testing.T) {
	fmt.Println("hoomd round trip test!")
	path := filepath.Join(Te.TempDir(), "rt.gsd")
	if err := Create(path, testSnapshot()); err != nil {
		Te.Fatal(err)
	}
	f, traj := openTraj(Te, path, "r")
	defer f.Close()
	if traj.Len() != 1 {
		Te.Fatalf("want 1 frame, got %d", traj.Len())
	}
	snap, err := traj.ReadFrame(0)
	if err != nil {
		Te.Fatal(err)
	}
	p := &snap.Particles
	if p.N != 2 {
		Te.Errorf("N = %d, want 2", p.N)
	}
	if !stringsEqual(p.Types, []string{"A", "B"}) {
		Te.Errorf("types read back wrong: %v", p.Types)
	}
	if p.Position.F32At(1, 0) != 1 || p.Position.F32At(0, 2) != 0 {
		Te.Error("position read back wrong")
	}
	if !p.Position.Writable() {
		Te.Error("explicitly stored position should be an owned buffer")
	}
	if p.Mass.F32At(1, 0) != 2.5 {
		Te.Error("mass read back wrong")
	}
	if p.TypeID.U32At(1, 0) != 1 {
		Te.Error("typeid read back wrong")
	}
	// never-written fields come back as broadcast defaults, read-only
	if p.Velocity.Rows() != 2 || p.Velocity.F32At(1, 2) != 0 {
		Te.Error("velocity default reconstructed wrong")
	}
	if p.Velocity.Writable() {
		Te.Error("reconstructed velocity should be read-only")
	}
	if err := p.Velocity.SetF32(0, 0, 1); err != ErrReadOnly {
		Te.Errorf("mutating reconstructed velocity gave %v", err)
	}
	if p.Orientation.F32At(0, 0) != 1 || p.Orientation.F32At(0, 1) != 0 {
		Te.Error("orientation default reconstructed wrong")
	}
	if p.Diameter.F32At(1, 0) != 1 {
		Te.Error("diameter default reconstructed wrong")
	}
}

// A frame equal to the catalog defaults everywhere writes no chunks at all:
// only the commit marker lands on disk.
func TestDefaultElision(Te *testing.T) {
	fmt.Println("default elision test!")
	path := filepath.Join(Te.TempDir(), "defaults.gsd")
	if err := Create(path, new(Snapshot)); err != nil {
		Te.Fatal(err)
	}
	f, err := fl.Open(path, "r")
	if err != nil {
		Te.Fatal(err)
	}
	defer f.Close()
	if f.NFrames() != 1 {
		Te.Fatalf("want 1 frame, got %d", f.NFrames())
	}
	for _, d := range particleFields {
		if f.ChunkExists(0, "particles/"+d.name) {
			Te.Errorf("default frame wrote particles/%s", d.name)
		}
	}
	for _, name := range []string{"step", "dimensions", "box"} {
		if f.ChunkExists(0, "configuration/"+name) {
			Te.Errorf("default frame wrote configuration/%s", name)
		}
	}
	traj, err := NewTrajectory(f)
	if err != nil {
		Te.Fatal(err)
	}
	snap, err := traj.ReadFrame(0)
	if err != nil {
		Te.Fatal(err)
	}
	if snap.Particles.N != 0 {
		Te.Errorf("default N = %d", snap.Particles.N)
	}
	if !stringsEqual(snap.Particles.Types, []string{"A"}) {
		Te.Errorf("default types = %v", snap.Particles.Types)
	}
	if snap.Particles.Position.Rows() != 0 {
		Te.Error("default position should be empty")
	}
	if *snap.Configuration.Step != 0 || *snap.Configuration.Dimensions != 3 {
		Te.Error("default configuration scalars wrong")
	}
	if !f32Equal(snap.Configuration.Box, []float32{1, 1, 1, 0, 0, 0}) {
		Te.Errorf("default box = %v", snap.Configuration.Box)
	}
	// explicitly supplying the default values elides them just the same
	path2 := filepath.Join(Te.TempDir(), "defaults2.gsd")
	snap2 := new(Snapshot)
	snap2.Particles.N = 2
	snap2.Particles.Mass = NewF32([]float32{1, 1})
	snap2.Particles.Orientation = NewF32([]float32{1, 0, 0, 0, 1, 0, 0, 0})
	snap2.Configuration.Step = Uint64p(0)
	if err := Create(path2, snap2); err != nil {
		Te.Fatal(err)
	}
	f2, err := fl.Open(path2, "r")
	if err != nil {
		Te.Fatal(err)
	}
	defer f2.Close()
	if !f2.ChunkExists(0, "particles/N") {
		Te.Error("non-default N should be written")
	}
	for _, name := range []string{"particles/mass", "particles/orientation", "configuration/step"} {
		if f2.ChunkExists(0, name) {
			Te.Errorf("default-valued %s should be elided", name)
		}
	}
}

func TestFrameZeroDiffing(Te *testing.T) {
	fmt.Println("frame 0 diffing test!")
	path := filepath.Join(Te.TempDir(), "diff.gsd")
	if err := Create(path, testSnapshot()); err != nil {
		Te.Fatal(err)
	}
	f, traj := openTraj(Te, path, "w")
	// identical position, changed velocity
	snap := testSnapshot()
	snap.Particles.Velocity = NewF32([]float32{0, 0, 1, 0, 0, 2})
	if err := traj.Append(snap); err != nil {
		Te.Fatal(err)
	}
	if f.ChunkExists(1, "particles/position") {
		Te.Error("position equal to frame 0 should not be written in frame 1")
	}
	if f.ChunkExists(1, "particles/N") || f.ChunkExists(1, "particles/types") {
		Te.Error("N/types equal to frame 0 should not be written in frame 1")
	}
	if !f.ChunkExists(1, "particles/velocity") {
		Te.Error("changed velocity must be written in frame 1")
	}
	read1, err := traj.ReadFrame(1)
	if err != nil {
		Te.Fatal(err)
	}
	if read1.Particles.Position != traj.initial.Particles.Position {
		Te.Error("frame 1 position should alias the cached frame 0 buffer")
	}
	if read1.Particles.Position.Writable() {
		Te.Error("aliased frame 0 buffer must be read-only")
	}
	if read1.Particles.Velocity.F32At(1, 2) != 2 {
		Te.Error("frame 1 velocity read back wrong")
	}
	f.Close()
}

func TestShapeValidation(Te *testing.T) {
	path := filepath.Join(Te.TempDir(), "shape.gsd")
	if err := Create(path, testSnapshot()); err != nil {
		Te.Fatal(err)
	}
	f, traj := openTraj(Te, path, "w")
	defer f.Close()
	bad := new(Snapshot)
	bad.Particles.N = 3
	bad.Particles.Position = NewF32([]float32{1, 2, 3, 4})
	err := traj.Append(bad)
	if err == nil {
		Te.Fatal("appending a misshaped snapshot should fail")
	}
	if _, ok := err.(*ShapeError); !ok {
		Te.Errorf("want ShapeError, got %T: %v", err, err)
	}
	if traj.Len() != 1 {
		Te.Errorf("failed append committed a frame: Len = %d", traj.Len())
	}
	// the trajectory is still usable
	if err := traj.Append(testSnapshot()); err != nil {
		Te.Fatal(err)
	}
	if traj.Len() != 2 {
		Te.Errorf("Len = %d after valid append", traj.Len())
	}
}

func TestTypesEncoding(Te *testing.T) {
	c, err := encodeTypes([]string{"A", "BB", "C"})
	if err != nil {
		Te.Fatal(err)
	}
	if c.Rows() != 3 || c.Cols() != 3 {
		Te.Fatalf("types matrix is %dx%d, want 3x3", c.Rows(), c.Cols())
	}
	raw, err := c.Int8s()
	if err != nil {
		Te.Fatal(err)
	}
	want := []int8{'A', 0, 0, 'B', 'B', 0, 'C', 0, 0}
	for i := range want {
		if raw[i] != want[i] {
			Te.Fatalf("byte %d is %d, want %d", i, raw[i], want[i])
		}
	}
	back, err := decodeTypes(c)
	if err != nil {
		Te.Fatal(err)
	}
	if !stringsEqual(back, []string{"A", "BB", "C"}) {
		Te.Errorf("types decoded to %v", back)
	}
}

func TestOutOfRangeRead(Te *testing.T) {
	path := filepath.Join(Te.TempDir(), "oor.gsd")
	if err := Create(path, testSnapshot()); err != nil {
		Te.Fatal(err)
	}
	f, traj := openTraj(Te, path, "w")
	defer f.Close()
	if err := traj.Append(testSnapshot()); err != nil {
		Te.Fatal(err)
	}
	if _, err := traj.ReadFrame(2); err == nil {
		Te.Error("reading frame 2 of 2 should fail")
	} else if _, ok := err.(*FrameIndexError); !ok {
		Te.Errorf("want FrameIndexError, got %T", err)
	}
	if _, err := traj.ReadFrame(-1); err == nil {
		Te.Error("reading frame -1 should fail")
	} else if _, ok := err.(*FrameIndexError); !ok {
		Te.Errorf("want FrameIndexError, got %T", err)
	}
}

func TestCacheMonotonicity(Te *testing.T) {
	fmt.Println("cache monotonicity test!")
	path := filepath.Join(Te.TempDir(), "cache.gsd")
	if err := Create(path, testSnapshot()); err != nil {
		Te.Fatal(err)
	}
	// append on a fresh handle populates the cache before diffing
	f, traj := openTraj(Te, path, "w")
	if traj.initial != nil {
		Te.Fatal("cache should start unset")
	}
	if err := traj.Append(testSnapshot()); err != nil {
		Te.Fatal(err)
	}
	if traj.initial == nil {
		Te.Fatal("append should have populated the cache")
	}
	first := traj.initial
	// re-reading frame 0 returns a fresh snapshot and leaves the cache alone
	s0, err := traj.ReadFrame(0)
	if err != nil {
		Te.Fatal(err)
	}
	if s0 == first {
		Te.Error("re-read of frame 0 should build a fresh snapshot")
	}
	if traj.initial != first {
		Te.Error("cache identity changed after re-reading frame 0")
	}
	// reading a later frame first also goes through frame 0
	s1, err := traj.ReadFrame(1)
	if err != nil {
		Te.Fatal(err)
	}
	if traj.initial != first || s1 == first {
		Te.Error("cache identity changed after reading frame 1")
	}
	f.Close()

	// on a read handle, the first ReadFrame(0) itself becomes the cache
	r, rtraj := openTraj(Te, path, "r")
	defer r.Close()
	c0, err := rtraj.ReadFrame(0)
	if err != nil {
		Te.Fatal(err)
	}
	if rtraj.initial != c0 {
		Te.Error("first read of frame 0 should become the cache")
	}
}

func TestExtend(Te *testing.T) {
	path := filepath.Join(Te.TempDir(), "extend.gsd")
	if err := Create(path, testSnapshot()); err != nil {
		Te.Fatal(err)
	}
	f, traj := openTraj(Te, path, "w")
	defer f.Close()
	var snaps []*Snapshot
	for i := 1; i <= 3; i++ {
		s := testSnapshot()
		s.Particles.Position = NewF32([]float32{0, 0, float32(i), 1, 1, float32(i)})
		snaps = append(snaps, s)
	}
	if err := traj.Extend(snaps); err != nil {
		Te.Fatal(err)
	}
	if traj.Len() != 4 {
		Te.Fatalf("Len = %d after extend, want 4", traj.Len())
	}
	for i := 1; i <= 3; i++ {
		s, err := traj.ReadFrame(i)
		if err != nil {
			Te.Fatal(err)
		}
		if s.Particles.Position.F32At(0, 2) != float32(i) {
			Te.Errorf("frame %d position wrong", i)
		}
	}
}

func TestConfiguration(Te *testing.T) {
	fmt.Println("configuration chunk test!")
	path := filepath.Join(Te.TempDir(), "conf.gsd")
	snap0 := testSnapshot()
	snap0.Configuration.Step = Uint64p(100)
	snap0.Configuration.Dimensions = Uint8p(2)
	snap0.Configuration.Box = []float32{10, 10, 10, 0, 0, 0}
	if err := Create(path, snap0); err != nil {
		Te.Fatal(err)
	}
	f, traj := openTraj(Te, path, "w")
	snap1 := testSnapshot()
	snap1.Configuration.Step = Uint64p(200)
	snap1.Configuration.Box = []float32{10, 10, 10, 0, 0, 0}
	if err := traj.Append(snap1); err != nil {
		Te.Fatal(err)
	}
	if !f.ChunkExists(0, "configuration/step") || !f.ChunkExists(0, "configuration/box") {
		Te.Error("frame 0 configuration chunks missing")
	}
	if !f.ChunkExists(1, "configuration/step") {
		Te.Error("changed step must be written in frame 1")
	}
	if f.ChunkExists(1, "configuration/box") {
		Te.Error("box equal to frame 0 should be elided in frame 1")
	}
	if f.ChunkExists(1, "configuration/dimensions") {
		Te.Error("absent dimensions should not be written")
	}
	s1, err := traj.ReadFrame(1)
	if err != nil {
		Te.Fatal(err)
	}
	if *s1.Configuration.Step != 200 {
		Te.Errorf("frame 1 step = %d", *s1.Configuration.Step)
	}
	if *s1.Configuration.Dimensions != 2 {
		Te.Errorf("frame 1 dimensions = %d, want frame 0 fallback 2", *s1.Configuration.Dimensions)
	}
	if !f32Equal(s1.Configuration.Box, []float32{10, 10, 10, 0, 0, 0}) {
		Te.Errorf("frame 1 box = %v", s1.Configuration.Box)
	}
	// a malformed box is rejected before anything is written
	bad := testSnapshot()
	bad.Configuration.Box = []float32{1, 2, 3}
	if err := traj.Append(bad); err == nil {
		Te.Error("3-value box should fail validation")
	}
	f.Close()
}

func TestSchemaChecks(Te *testing.T) {
	dir := Te.TempDir()
	other := filepath.Join(dir, "other.gsd")
	if err := fl.Create(other, "test", "custom", [2]uint32{0, 1}); err != nil {
		Te.Fatal(err)
	}
	f, err := fl.Open(other, "r")
	if err != nil {
		Te.Fatal(err)
	}
	if _, err := NewTrajectory(f); err == nil {
		Te.Error("foreign schema should be rejected")
	} else if _, ok := err.(*SchemaMismatchError); !ok {
		Te.Errorf("want SchemaMismatchError, got %T", err)
	}
	f.Close()

	vers := filepath.Join(dir, "vers.gsd")
	if err := fl.Create(vers, "test", SchemaName, [2]uint32{0, 2}); err != nil {
		Te.Fatal(err)
	}
	f2, err := fl.Open(vers, "r")
	if err != nil {
		Te.Fatal(err)
	}
	if _, err := NewTrajectory(f2); err == nil {
		Te.Error("unsupported schema version should be rejected")
	} else if _, ok := err.(*SchemaVersionError); !ok {
		Te.Errorf("want SchemaVersionError, got %T", err)
	}
	f2.Close()
}

func TestCreateOverwrites(Te *testing.T) {
	path := filepath.Join(Te.TempDir(), "ow.gsd")
	if err := Create(path, testSnapshot()); err != nil {
		Te.Fatal(err)
	}
	snap := testSnapshot()
	snap.Particles.Mass = NewF32([]float32{7, 7})
	if err := Create(path, snap); err != nil {
		Te.Fatal(err)
	}
	f, traj := openTraj(Te, path, "r")
	defer f.Close()
	if traj.Len() != 1 {
		Te.Fatalf("recreated file has %d frames", traj.Len())
	}
	s, err := traj.ReadFrame(0)
	if err != nil {
		Te.Fatal(err)
	}
	if s.Particles.Mass.F32At(0, 0) != 7 {
		Te.Error("recreated file holds stale data")
	}
}

func TestCompressedTrajectory(Te *testing.T) {
	fmt.Println("compressed trajectory test!")
	path := filepath.Join(Te.TempDir(), "comp.gsd")
	if err := Create(path, testSnapshot(), 19); err != nil {
		Te.Fatal(err)
	}
	f, traj := openTraj(Te, path, "r")
	defer f.Close()
	s, err := traj.ReadFrame(0)
	if err != nil {
		Te.Fatal(err)
	}
	if s.Particles.Position.F32At(1, 1) != 1 || s.Particles.Mass.F32At(0, 0) != 1.5 {
		Te.Error("compressed trajectory read back wrong")
	}
}

func TestDenseInterop(Te *testing.T) {
	fmt.Println("gonum interop test!")
	path := filepath.Join(Te.TempDir(), "dense.gsd")
	snap := new(Snapshot)
	snap.Particles.N = 2
	d := mat.NewDense(2, 3, []float64{0.5, 0, 0, 1.5, 2.5, 3.5})
	if err := snap.Particles.SetPositionsDense(d); err != nil {
		Te.Fatal(err)
	}
	if err := Create(path, snap); err != nil {
		Te.Fatal(err)
	}
	f, traj := openTraj(Te, path, "r")
	defer f.Close()
	s, err := traj.ReadFrame(0)
	if err != nil {
		Te.Fatal(err)
	}
	back, err := s.Particles.PositionsDense()
	if err != nil {
		Te.Fatal(err)
	}
	if back.At(1, 2) != 3.5 || back.At(0, 0) != 0.5 {
		Te.Errorf("positions through Dense wrong: %v", mat.Formatted(back))
	}
	// the returned matrix is a copy even for read-only fields
	v, err := s.Particles.VelocitiesDense()
	if err != nil {
		Te.Fatal(err)
	}
	v.Set(0, 0, 99)
	if s.Particles.Velocity.F32At(0, 0) != 0 {
		Te.Error("mutating the Dense copy must not touch the field")
	}
	// wrong width is rejected
	if err := snap.Particles.SetPositionsDense(mat.NewDense(2, 4, make([]float64, 8))); err == nil {
		Te.Error("2x4 matrix should be rejected for position")
	}
}

// An N = 0 frame reconstructs empty per-particle fields; asking for one as a
// Dense matrix must fail cleanly, since gonum can not represent an empty
// matrix.
func TestDenseEmptyField(Te *testing.T) {
	path := filepath.Join(Te.TempDir(), "empty.gsd")
	if err := Create(path, new(Snapshot)); err != nil {
		Te.Fatal(err)
	}
	f, traj := openTraj(Te, path, "r")
	defer f.Close()
	s, err := traj.ReadFrame(0)
	if err != nil {
		Te.Fatal(err)
	}
	if _, err := s.Particles.PositionsDense(); err == nil {
		Te.Error("PositionsDense on an empty field should fail")
	} else if _, ok := err.(*ShapeError); !ok {
		Te.Errorf("want ShapeError, got %T: %v", err, err)
	}
	if _, err := s.Particles.VelocitiesDense(); err == nil {
		Te.Error("VelocitiesDense on an empty field should fail")
	}
	// the inverse direction rejects an empty matrix the same way
	if err := s.Particles.SetPositionsDense(new(mat.Dense)); err == nil {
		Te.Error("an empty matrix should be rejected")
	}
}

// A physically present count chunk with no elements is malformed, not an
// N = 0 frame.
func TestEmptyCountChunk(Te *testing.T) {
	path := filepath.Join(Te.TempDir(), "badn.gsd")
	if err := fl.Create(path, "test", SchemaName, schemaVersion); err != nil {
		Te.Fatal(err)
	}
	f, err := fl.Open(path, "w")
	if err != nil {
		Te.Fatal(err)
	}
	defer f.Close()
	u, err := fl.NewUint32Chunk(nil, 1)
	if err != nil {
		Te.Fatal(err)
	}
	if err := f.WriteChunk("particles/N", u); err != nil {
		Te.Fatal(err)
	}
	if err := f.EndFrame(); err != nil {
		Te.Fatal(err)
	}
	traj, err := NewTrajectory(f)
	if err != nil {
		Te.Fatal(err)
	}
	if _, err := traj.ReadFrame(0); err == nil {
		Te.Error("an empty particles/N chunk should fail the read")
	}
}

// The cache built by readFrame carries every configuration pointer and every
// catalog field; reads must not depend on that shape holding.
func TestSparseCacheFallbacks(Te *testing.T) {
	path := filepath.Join(Te.TempDir(), "sparse.gsd")
	if err := Create(path, testSnapshot()); err != nil {
		Te.Fatal(err)
	}
	f, traj := openTraj(Te, path, "w")
	defer f.Close()
	if err := traj.Append(testSnapshot()); err != nil {
		Te.Fatal(err)
	}
	traj.initial = new(Snapshot)
	s, err := traj.ReadFrame(1)
	if err != nil {
		Te.Fatal(err)
	}
	if *s.Configuration.Step != 0 || *s.Configuration.Dimensions != 3 {
		Te.Error("missing cached configuration should fall back to the defaults")
	}
	if !f32Equal(s.Configuration.Box, defaultBox) {
		Te.Errorf("box = %v, want default", s.Configuration.Box)
	}
	if s.Particles.Position == nil || s.Particles.Position.Writable() {
		Te.Error("per-particle fallback should be a read-only default")
	}
}
