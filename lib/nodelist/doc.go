// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

// Package nodelist reads the set of hosts a batch job was allocated.
//
// PBS and Torque write one line per allocated slot to the file named by
// PBS_NODEFILE, so a node with twelve cores appears twelve times.
// [Parse] keeps the first whitespace-separated field of each line and
// drops repeats, preserving first-seen order. Slurm exports a compact
// host-range expression instead (SLURM_JOB_NODELIST=node[01-04,09]),
// which [ExpandHostlist] expands.
//
// A [List] is immutable after construction. It decides how many
// engines to spawn and where.
package nodelist
