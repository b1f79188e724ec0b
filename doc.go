/*
 * doc.go, part of gsd
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

/*Package gsd reads and writes simulation trajectories in the hoomd schema
on top of the chunked gsd container (package fl).

A trajectory is a sequence of frames. Each frame carries the particle count,
the type names and a fixed catalog of per-particle arrays (positions,
orientations, velocities...), plus a few file-level configuration scalars.
Frames in a long trajectory tend to repeat most of their data, so the writer
only stores what can not be reconstructed: a field equal to its value in
frame 0, or to its catalog default, is elided, and the reader rebuilds it
through the same fallback chain. Buffers obtained through a fallback share
storage with frame 0 or are synthesized defaults; they are flagged read-only
and must not be mutated in place.

Typical writing:

	snap := new(gsd.Snapshot)
	snap.Particles.N = 2
	snap.Particles.Types = []string{"A", "B"}
	snap.Particles.TypeID = gsd.NewU32([]uint32{0, 1})
	snap.Particles.Position = gsd.NewF32([]float32{0, 0, 0, 1, 1, 1})
	if err := gsd.Create("dump.gsd", snap); err != nil {
		...
	}

and reading:

	f, err := fl.Open("dump.gsd", "r")
	defer f.Close()
	traj, err := gsd.NewTrajectory(f)
	for i := 0; i < traj.Len(); i++ {
		snap, err := traj.ReadFrame(i)
		...
	}

Handles are single threaded; callers must serialize access.*/
package gsd
