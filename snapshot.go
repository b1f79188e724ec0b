/*
 * snapshot.go, part of gsd
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

import "fmt"

// ParticleData holds the per-particle quantities of one frame. N is the
// particle count; every other field is optional. A nil field is absent: it
// is not written on append and is reconstructed from frame 0 or from its
// default on read. Present fields are canonicalized to [N, width] by
// Validate, which append calls before writing anything.
//
// Snapshots produced by ReadFrame always carry every field, already shaped;
// fields that were reconstructed rather than read are not Writable.
type ParticleData struct {
	//Number of particles.
	N uint32
	//Names of the particle types.
	Types []string
	//N per-particle type ids (indexes into Types).
	TypeID *Field
	//N per-particle masses.
	Mass *Field
	//N per-particle charges.
	Charge *Field
	//N per-particle diameters.
	Diameter *Field
	//Nx3 per-particle moments of inertia.
	MomentInertia *Field
	//Nx3 per-particle positions.
	Position *Field
	//Nx4 per-particle orientation quaternions.
	Orientation *Field
	//Nx3 per-particle velocities.
	Velocity *Field
	//Nx4 per-particle angular momentum quaternions.
	Angmom *Field
	//Nx3 per-particle periodic image counts.
	Image *Field
}

// Validate canonicalizes every present field against N and the field
// catalog. Absent (nil) fields are skipped. The first field that can not be
// reshaped aborts with a ShapeError.
func (p *ParticleData) Validate() error {
	for i := range particleFields {
		d := &particleFields[i]
		if d.get == nil {
			continue
		}
		f := d.get(p)
		if f == nil {
			continue
		}
		if err := f.canon(d.name, p.N, d.cols, d.dtype()); err != nil {
			return err
		}
	}
	return nil
}

// ConfigurationData holds the file-level scalars of one frame: the time
// step, the box dimensionality and the 6-value box description
// (lx, ly, lz, xy, xz, yz). All are optional; nil means absent, with the
// same elision and reconstruction rules as particle fields.
type ConfigurationData struct {
	Step       *uint64
	Dimensions *uint8
	Box        []float32
}

// Validate checks the box length. Absent values are skipped.
func (c *ConfigurationData) Validate() error {
	if c.Box != nil && len(c.Box) != 6 {
		return &ShapeError{field: "configuration/box",
			message: fmt.Sprintf("box needs 6 values, got %d", len(c.Box))}
	}
	return nil
}

// Snapshot is one logical frame: the configuration scalars plus one
// particle record.
type Snapshot struct {
	Configuration ConfigurationData
	Particles     ParticleData
}

// Validate validates all contained snapshot data.
func (s *Snapshot) Validate() error {
	if err := s.Configuration.Validate(); err != nil {
		return err
	}
	return s.Particles.Validate()
}

// Uint64p and Uint8p are conveniences for filling the optional
// configuration scalars.
func Uint64p(v uint64) *uint64 { return &v }
func Uint8p(v uint8) *uint8    { return &v }
