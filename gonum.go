/*
 * gonum.go, part of gsd
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

//gonum.go holds the conversions between the canonical float32 fields and
//gonum Dense matrices, so analysis code working in float64 can feed and
//consume snapshots directly.

package gsd

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/gosimdata/gsd/fl"
)

func denseToField(d *mat.Dense, cols int, name string) (*Field, error) {
	r, c := d.Dims()
	if r == 0 {
		return nil, &ShapeError{field: name, message: "matrix holds no rows"}
	}
	if c != cols {
		return nil, &ShapeError{field: name,
			message: fmt.Sprintf("matrix is %dx%d, want %d columns", r, c, cols)}
	}
	flat := make([]float32, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			flat[i*c+j] = float32(d.At(i, j))
		}
	}
	return &Field{dtype: fl.F32, rows: r, cols: c, f32: flat}, nil
}

func fieldToDense(f *Field, name string) (*mat.Dense, error) {
	if f == nil {
		return nil, &ShapeError{field: name, message: "field is absent"}
	}
	// mat.NewDense can not represent an empty matrix
	if f.rows == 0 {
		return nil, &ShapeError{field: name, message: "field holds no rows"}
	}
	vals := f.Float32s()
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = float64(v)
	}
	return mat.NewDense(f.rows, f.cols, out), nil
}

// SetPositionsDense fills Position from an Nx3 gonum matrix, converting to
// the canonical float32 storage.
func (p *ParticleData) SetPositionsDense(d *mat.Dense) error {
	f, err := denseToField(d, 3, "position")
	if err != nil {
		return errDecorate(err, "SetPositionsDense")
	}
	p.Position = f
	return nil
}

// PositionsDense returns Position as a freshly allocated float64 gonum
// matrix. The result is always an independent copy, safe to mutate even
// when the field itself is read-only.
func (p *ParticleData) PositionsDense() (*mat.Dense, error) {
	d, err := fieldToDense(p.Position, "position")
	if err != nil {
		return nil, errDecorate(err, "PositionsDense")
	}
	return d, nil
}

// SetVelocitiesDense fills Velocity from an Nx3 gonum matrix.
func (p *ParticleData) SetVelocitiesDense(d *mat.Dense) error {
	f, err := denseToField(d, 3, "velocity")
	if err != nil {
		return errDecorate(err, "SetVelocitiesDense")
	}
	p.Velocity = f
	return nil
}

// VelocitiesDense returns Velocity as a freshly allocated float64 gonum
// matrix.
func (p *ParticleData) VelocitiesDense() (*mat.Dense, error) {
	d, err := fieldToDense(p.Velocity, "velocity")
	if err != nil {
		return nil, errDecorate(err, "VelocitiesDense")
	}
	return d, nil
}
