/*
 * chunk.go, part of gsd
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

package fl

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Dtype identifies the element type of a chunk on the wire.
type Dtype uint8

const (
	U8 Dtype = iota + 1
	I8
	U32
	I32
	U64
	I64
	F32
	F64
)

// Size returns the width of one element, in bytes.
func (d Dtype) Size() int {
	switch d {
	case U8, I8:
		return 1
	case U32, I32, F32:
		return 4
	case U64, I64, F64:
		return 8
	}
	return 0
}

func (d Dtype) String() string {
	names := map[Dtype]string{U8: "uint8", I8: "int8", U32: "uint32",
		I32: "int32", U64: "uint64", I64: "int64", F32: "float32", F64: "float64"}
	if s, ok := names[d]; ok {
		return s
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// Chunk is one named array within a frame: an element type, a row-major
// rows x cols shape and the raw little-endian payload.
type Chunk struct {
	dtype Dtype
	rows  int
	cols  int
	data  []byte
}

func (c *Chunk) Dtype() Dtype { return c.dtype }
func (c *Chunk) Rows() int    { return c.rows }
func (c *Chunk) Cols() int    { return c.cols }

// Len returns the total number of elements.
func (c *Chunk) Len() int { return c.rows * c.cols }

func newChunk(dtype Dtype, n, cols int) (*Chunk, error) {
	if cols <= 0 {
		return nil, &Error{message: fmt.Sprintf("chunk column count must be positive, got %d", cols)}
	}
	if n%cols != 0 {
		return nil, &Error{message: fmt.Sprintf("%d elements not divisible into rows of %d", n, cols)}
	}
	return &Chunk{dtype: dtype, rows: n / cols, cols: cols, data: make([]byte, n*dtype.Size())}, nil
}

// NewFloat32Chunk builds an f32 chunk with len(data)/cols rows.
func NewFloat32Chunk(data []float32, cols int) (*Chunk, error) {
	c, err := newChunk(F32, len(data), cols)
	if err != nil {
		return nil, err
	}
	for i, v := range data {
		binary.LittleEndian.PutUint32(c.data[4*i:], math.Float32bits(v))
	}
	return c, nil
}

// NewUint32Chunk builds a u32 chunk with len(data)/cols rows.
func NewUint32Chunk(data []uint32, cols int) (*Chunk, error) {
	c, err := newChunk(U32, len(data), cols)
	if err != nil {
		return nil, err
	}
	for i, v := range data {
		binary.LittleEndian.PutUint32(c.data[4*i:], v)
	}
	return c, nil
}

// NewInt32Chunk builds an i32 chunk with len(data)/cols rows.
func NewInt32Chunk(data []int32, cols int) (*Chunk, error) {
	c, err := newChunk(I32, len(data), cols)
	if err != nil {
		return nil, err
	}
	for i, v := range data {
		binary.LittleEndian.PutUint32(c.data[4*i:], uint32(v))
	}
	return c, nil
}

// NewInt8Chunk builds an i8 chunk with len(data)/cols rows.
func NewInt8Chunk(data []int8, cols int) (*Chunk, error) {
	c, err := newChunk(I8, len(data), cols)
	if err != nil {
		return nil, err
	}
	for i, v := range data {
		c.data[i] = byte(v)
	}
	return c, nil
}

// NewUint8Chunk builds a u8 chunk with len(data)/cols rows.
func NewUint8Chunk(data []uint8, cols int) (*Chunk, error) {
	c, err := newChunk(U8, len(data), cols)
	if err != nil {
		return nil, err
	}
	copy(c.data, data)
	return c, nil
}

// NewUint64Chunk builds a u64 chunk with len(data)/cols rows.
func NewUint64Chunk(data []uint64, cols int) (*Chunk, error) {
	c, err := newChunk(U64, len(data), cols)
	if err != nil {
		return nil, err
	}
	for i, v := range data {
		binary.LittleEndian.PutUint64(c.data[8*i:], v)
	}
	return c, nil
}

func (c *Chunk) want(d Dtype) error {
	if c.dtype != d {
		return &Error{message: fmt.Sprintf("chunk holds %v, not %v", c.dtype, d)}
	}
	return nil
}

// Float32s decodes the payload of an f32 chunk.
func (c *Chunk) Float32s() ([]float32, error) {
	if err := c.want(F32); err != nil {
		return nil, err
	}
	out := make([]float32, c.Len())
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(c.data[4*i:]))
	}
	return out, nil
}

// Uint32s decodes the payload of a u32 chunk.
func (c *Chunk) Uint32s() ([]uint32, error) {
	if err := c.want(U32); err != nil {
		return nil, err
	}
	out := make([]uint32, c.Len())
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(c.data[4*i:])
	}
	return out, nil
}

// Int32s decodes the payload of an i32 chunk.
func (c *Chunk) Int32s() ([]int32, error) {
	if err := c.want(I32); err != nil {
		return nil, err
	}
	out := make([]int32, c.Len())
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(c.data[4*i:]))
	}
	return out, nil
}

// Int8s decodes the payload of an i8 chunk.
func (c *Chunk) Int8s() ([]int8, error) {
	if err := c.want(I8); err != nil {
		return nil, err
	}
	out := make([]int8, c.Len())
	for i := range out {
		out[i] = int8(c.data[i])
	}
	return out, nil
}

// Uint8s decodes the payload of a u8 chunk.
func (c *Chunk) Uint8s() ([]uint8, error) {
	if err := c.want(U8); err != nil {
		return nil, err
	}
	out := make([]uint8, c.Len())
	copy(out, c.data)
	return out, nil
}

// Uint64s decodes the payload of a u64 chunk.
func (c *Chunk) Uint64s() ([]uint64, error) {
	if err := c.want(U64); err != nil {
		return nil, err
	}
	out := make([]uint64, c.Len())
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(c.data[8*i:])
	}
	return out, nil
}
