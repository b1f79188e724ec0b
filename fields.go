/*
 * fields.go, part of gsd
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
	"errors"
	"fmt"

	"github.com/gosimdata/gsd/fl"
)

// ErrReadOnly is returned by the Set methods of a Field whose storage is
// shared with the initial frame or synthesized from a default value.
var ErrReadOnly = errors.New("gsd: field buffer is reconstructed/shared and read-only")

// Field is a canonical per-particle buffer: a fixed element type, a
// row-major rows x cols layout, and a shared tag. Owned fields (built with
// the New* constructors or read from a chunk of their own frame) are
// mutable; shared fields alias frame-0 storage or were tiled from a catalog
// default, and reject mutation.
type Field struct {
	dtype  fl.Dtype
	rows   int
	cols   int
	f32    []float32
	u32    []uint32
	i32    []int32
	shared bool
}

// NewF32 wraps a flat float32 slice. The shape is provisional until
// Validate reshapes it against the particle count.
func NewF32(data []float32) *Field {
	return &Field{dtype: fl.F32, rows: len(data), cols: 1, f32: data}
}

// NewF32From64 is NewF32 for float64 input, converting each element.
func NewF32From64(data []float64) *Field {
	f := make([]float32, len(data))
	for i, v := range data {
		f[i] = float32(v)
	}
	return NewF32(f)
}

// NewF32Rows wraps row-structured float32 data. All rows must have the same
// length.
func NewF32Rows(rows [][]float32) (*Field, error) {
	if len(rows) == 0 {
		return NewF32(nil), nil
	}
	w := len(rows[0])
	flat := make([]float32, 0, len(rows)*w)
	for i, r := range rows {
		if len(r) != w {
			return nil, &ShapeError{message: fmt.Sprintf("row %d has %d elements, row 0 has %d", i, len(r), w)}
		}
		flat = append(flat, r...)
	}
	return &Field{dtype: fl.F32, rows: len(rows), cols: w, f32: flat}, nil
}

// NewU32 wraps a flat uint32 slice.
func NewU32(data []uint32) *Field {
	return &Field{dtype: fl.U32, rows: len(data), cols: 1, u32: data}
}

// NewI32 wraps a flat int32 slice.
func NewI32(data []int32) *Field {
	return &Field{dtype: fl.I32, rows: len(data), cols: 1, i32: data}
}

func (f *Field) Rows() int       { return f.rows }
func (f *Field) Cols() int       { return f.cols }
func (f *Field) Dtype() fl.Dtype { return f.dtype }

// Len returns the total element count.
func (f *Field) Len() int {
	switch f.dtype {
	case fl.F32:
		return len(f.f32)
	case fl.U32:
		return len(f.u32)
	case fl.I32:
		return len(f.i32)
	}
	return 0
}

// Writable reports whether the backing storage is owned by this field. A
// false return means the storage is aliased from the initial frame or a
// default and must not be mutated.
func (f *Field) Writable() bool { return !f.shared }

// F32At returns element (i,j) of a float32 field. Panics on a wrong dtype
// or an out of range index.
func (f *Field) F32At(i, j int) float32 { f.mustType(fl.F32); return f.f32[f.idx(i, j)] }

// U32At returns element (i,j) of a uint32 field.
func (f *Field) U32At(i, j int) uint32 { f.mustType(fl.U32); return f.u32[f.idx(i, j)] }

// I32At returns element (i,j) of an int32 field.
func (f *Field) I32At(i, j int) int32 { f.mustType(fl.I32); return f.i32[f.idx(i, j)] }

// SetF32 sets element (i,j) of a float32 field. Shared fields return
// ErrReadOnly.
func (f *Field) SetF32(i, j int, v float32) error {
	if f.shared {
		return ErrReadOnly
	}
	f.mustType(fl.F32)
	f.f32[f.idx(i, j)] = v
	return nil
}

// SetU32 sets element (i,j) of a uint32 field.
func (f *Field) SetU32(i, j int, v uint32) error {
	if f.shared {
		return ErrReadOnly
	}
	f.mustType(fl.U32)
	f.u32[f.idx(i, j)] = v
	return nil
}

// SetI32 sets element (i,j) of an int32 field.
func (f *Field) SetI32(i, j int, v int32) error {
	if f.shared {
		return ErrReadOnly
	}
	f.mustType(fl.I32)
	f.i32[f.idx(i, j)] = v
	return nil
}

// Float32s returns the flat backing slice of a float32 field. If the field
// is not Writable the slice aliases shared storage and must be treated as
// immutable.
func (f *Field) Float32s() []float32 { f.mustType(fl.F32); return f.f32 }

// Uint32s returns the flat backing slice of a uint32 field.
func (f *Field) Uint32s() []uint32 { f.mustType(fl.U32); return f.u32 }

// Int32s returns the flat backing slice of an int32 field.
func (f *Field) Int32s() []int32 { f.mustType(fl.I32); return f.i32 }

func (f *Field) mustType(d fl.Dtype) {
	if f.dtype != d {
		panic(fmt.Sprintf("gsd: field holds %v, not %v", f.dtype, d))
	}
}

func (f *Field) idx(i, j int) int {
	if i < 0 || i >= f.rows || j < 0 || j >= f.cols {
		panic(fmt.Sprintf("gsd: index (%d,%d) out of range for %dx%d field", i, j, f.rows, f.cols))
	}
	return i*f.cols + j
}

// canon reshapes the field to [n, cols], failing with a ShapeError when the
// element count or type does not match. Reshaping is metadata-only; the
// backing storage does not move.
func (f *Field) canon(name string, n uint32, cols int, dtype fl.Dtype) error {
	if f.dtype != dtype {
		return &ShapeError{field: name,
			message: fmt.Sprintf("element type is %v, catalog mandates %v", f.dtype, dtype)}
	}
	if want := int(n) * cols; f.Len() != want {
		return &ShapeError{field: name,
			message: fmt.Sprintf("can't reshape %d elements to %dx%d", f.Len(), n, cols)}
	}
	f.rows = int(n)
	f.cols = cols
	return nil
}

// Equal reports exact elementwise equality. Any type or shape mismatch
// compares unequal.
func (f *Field) Equal(o *Field) bool {
	if o == nil || f.dtype != o.dtype || f.rows != o.rows || f.cols != o.cols {
		return false
	}
	switch f.dtype {
	case fl.F32:
		for i, v := range f.f32 {
			if v != o.f32[i] {
				return false
			}
		}
	case fl.U32:
		for i, v := range f.u32 {
			if v != o.u32[i] {
				return false
			}
		}
	case fl.I32:
		for i, v := range f.i32 {
			if v != o.i32[i] {
				return false
			}
		}
	}
	return true
}

// matchesRow reports whether every row of f equals the single row of def.
// An empty field matches vacuously, so empty data is never written.
func (f *Field) matchesRow(def *Field) bool {
	if f.dtype != def.dtype || f.cols != def.cols {
		return f.Len() == 0 && def.Len() == 0
	}
	for i := 0; i < f.rows; i++ {
		for j := 0; j < f.cols; j++ {
			switch f.dtype {
			case fl.F32:
				if f.f32[i*f.cols+j] != def.f32[j] {
					return false
				}
			case fl.U32:
				if f.u32[i*f.cols+j] != def.u32[j] {
					return false
				}
			case fl.I32:
				if f.i32[i*f.cols+j] != def.i32[j] {
					return false
				}
			}
		}
	}
	return true
}

// tileRow broadcasts a 1-row default to n rows. The result is shared
// (read-only): it is a reconstruction, not a write target.
func tileRow(def *Field, n int) *Field {
	out := &Field{dtype: def.dtype, rows: n, cols: def.cols, shared: true}
	switch def.dtype {
	case fl.F32:
		out.f32 = make([]float32, n*def.cols)
		for i := 0; i < n; i++ {
			copy(out.f32[i*def.cols:], def.f32)
		}
	case fl.U32:
		out.u32 = make([]uint32, n*def.cols)
		for i := 0; i < n; i++ {
			copy(out.u32[i*def.cols:], def.u32)
		}
	case fl.I32:
		out.i32 = make([]int32, n*def.cols)
		for i := 0; i < n; i++ {
			copy(out.i32[i*def.cols:], def.i32)
		}
	}
	return out
}

func (f *Field) toChunk() (*fl.Chunk, error) {
	switch f.dtype {
	case fl.F32:
		return fl.NewFloat32Chunk(f.f32, f.cols)
	case fl.U32:
		return fl.NewUint32Chunk(f.u32, f.cols)
	case fl.I32:
		return fl.NewInt32Chunk(f.i32, f.cols)
	}
	return nil, fmt.Errorf("gsd: can't encode field of type %v", f.dtype)
}

func fieldFromChunk(c *fl.Chunk) (*Field, error) {
	f := &Field{dtype: c.Dtype(), rows: c.Rows(), cols: c.Cols()}
	var err error
	switch c.Dtype() {
	case fl.F32:
		f.f32, err = c.Float32s()
	case fl.U32:
		f.u32, err = c.Uint32s()
	case fl.I32:
		f.i32, err = c.Int32s()
	default:
		err = fmt.Errorf("gsd: can't decode field of type %v", c.Dtype())
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func sharedF32Row(vals ...float32) *Field {
	return &Field{dtype: fl.F32, rows: 1, cols: len(vals), f32: vals, shared: true}
}

func sharedU32Row(vals ...uint32) *Field {
	return &Field{dtype: fl.U32, rows: 1, cols: len(vals), u32: vals, shared: true}
}

func sharedI32Row(vals ...int32) *Field {
	return &Field{dtype: fl.I32, rows: 1, cols: len(vals), i32: vals, shared: true}
}

type shapeRule uint8

const (
	fileScalar shapeRule = iota
	perParticleScalar
	perParticleVector
	nameList
)

// fieldDesc describes one entry of the particle field catalog: its chunk
// name, shape rule, element type, 1-row default value, and typed accessors
// into ParticleData. The catalog is closed and ordered; its order fixes the
// chunk-write order on append and the resolution order on read.
type fieldDesc struct {
	name string
	rule shapeRule
	cols int
	def  *Field
	get  func(*ParticleData) *Field
	set  func(*ParticleData, *Field)
}

var particleFields = []fieldDesc{
	{name: "N", rule: fileScalar},
	{name: "types", rule: nameList},
	{name: "typeid", rule: perParticleScalar, cols: 1, def: sharedU32Row(0),
		get: func(p *ParticleData) *Field { return p.TypeID },
		set: func(p *ParticleData, f *Field) { p.TypeID = f }},
	{name: "mass", rule: perParticleScalar, cols: 1, def: sharedF32Row(1),
		get: func(p *ParticleData) *Field { return p.Mass },
		set: func(p *ParticleData, f *Field) { p.Mass = f }},
	{name: "charge", rule: perParticleScalar, cols: 1, def: sharedF32Row(0),
		get: func(p *ParticleData) *Field { return p.Charge },
		set: func(p *ParticleData, f *Field) { p.Charge = f }},
	{name: "diameter", rule: perParticleScalar, cols: 1, def: sharedF32Row(1),
		get: func(p *ParticleData) *Field { return p.Diameter },
		set: func(p *ParticleData, f *Field) { p.Diameter = f }},
	{name: "moment_inertia", rule: perParticleVector, cols: 3, def: sharedF32Row(0, 0, 0),
		get: func(p *ParticleData) *Field { return p.MomentInertia },
		set: func(p *ParticleData, f *Field) { p.MomentInertia = f }},
	{name: "position", rule: perParticleVector, cols: 3, def: sharedF32Row(0, 0, 0),
		get: func(p *ParticleData) *Field { return p.Position },
		set: func(p *ParticleData, f *Field) { p.Position = f }},
	{name: "orientation", rule: perParticleVector, cols: 4, def: sharedF32Row(1, 0, 0, 0),
		get: func(p *ParticleData) *Field { return p.Orientation },
		set: func(p *ParticleData, f *Field) { p.Orientation = f }},
	{name: "velocity", rule: perParticleVector, cols: 3, def: sharedF32Row(0, 0, 0),
		get: func(p *ParticleData) *Field { return p.Velocity },
		set: func(p *ParticleData, f *Field) { p.Velocity = f }},
	{name: "angmom", rule: perParticleVector, cols: 4, def: sharedF32Row(0, 0, 0, 0),
		get: func(p *ParticleData) *Field { return p.Angmom },
		set: func(p *ParticleData, f *Field) { p.Angmom = f }},
	{name: "image", rule: perParticleVector, cols: 3, def: sharedI32Row(0, 0, 0),
		get: func(p *ParticleData) *Field { return p.Image },
		set: func(p *ParticleData, f *Field) { p.Image = f }},
}

func (d *fieldDesc) dtype() fl.Dtype {
	if d.def != nil {
		return d.def.dtype
	}
	return fl.U32
}
