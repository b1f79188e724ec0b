/*
 * errors.go, part of gsd
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

// Error is the interface for errors that all packages in this library
// implement. The Decorate method allows to add and retrieve info from the
// error, without changing its type or wrapping it around something else.
// The decoration slice should contain the functions in the calling stack,
// plus, for each function, any relevant extra information.
type Error interface {
	Error() string
	Decorate(string) []string
}

// TrajError is the interface for errors on trajectory handles and files.
type TrajError interface {
	Error
	Critical() bool
	FileName() string
	Format() string
}

// errDecorate asserts that the error implements Error and decorates it with
// the caller's name before returning it. Non-Error errors pass unchanged.
func errDecorate(err error, caller string) error {
	e, ok := err.(Error)
	if !ok {
		return err
	}
	e.Decorate(caller)
	return e
}

type errBase struct {
	filename string
	deco     []string
}

// Decorate adds new information to the error
func (err *errBase) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

// FileName returns the file to which the failing handle was associated
func (err *errBase) FileName() string { return err.filename }

// Format returns the format of the file (always "gsd") associated to the error
func (err *errBase) Format() string { return "gsd" }

// SchemaMismatchError means the file's declared schema name is not the one
// this layer handles. Raised at handle construction, not recoverable.
type SchemaMismatchError struct {
	errBase
	schema string
}

func (err *SchemaMismatchError) Error() string {
	return fmt.Sprintf("gsd file %s is not a %s schema file: schema is %q", err.filename, SchemaName, err.schema)
}

func (err *SchemaMismatchError) Critical() bool { return true }

// SchemaVersionError means the file's schema version is not exactly the
// supported one. Raised at handle construction, not recoverable.
type SchemaVersionError struct {
	errBase
	version [2]uint32
}

func (err *SchemaVersionError) Error() string {
	return fmt.Sprintf("gsd file %s has incompatible %s schema version %d.%d, want %d.%d",
		err.filename, SchemaName, err.version[0], err.version[1], schemaVersion[0], schemaVersion[1])
}

func (err *SchemaVersionError) Critical() bool { return true }

// FrameIndexError means a frame index outside [0, Len()) was requested.
// Callers iterating a trajectory can recover by stopping.
type FrameIndexError struct {
	errBase
	idx     int
	nframes int
}

func (err *FrameIndexError) Error() string {
	return fmt.Sprintf("gsd file %s: frame %d out of range, trajectory has %d frames", err.filename, err.idx, err.nframes)
}

func (err *FrameIndexError) Critical() bool { return false }

// ShapeError means a field's data can not be reshaped to the entity-count
// derived shape during canonicalization. It aborts the append that
// triggered the validation before any chunk is written.
type ShapeError struct {
	field   string
	message string
	deco    []string
}

func (err *ShapeError) Error() string {
	return fmt.Sprintf("field %s: %s", err.field, err.message)
}

// Decorate adds new information to the error
func (err *ShapeError) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

// Field returns the name of the field that failed canonicalization.
func (err *ShapeError) Field() string { return err.field }
