// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2024 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package rank implements the streaming top-2 selection over
// per-volume configuration records. It is a direct port of the
// original firmware's sift_envdata_volume: a fixed pool of three
// candidate slots (two ranked, one scratch for the newest read) and a
// two-step compare-and-swap that bubbles the newest candidate into
// place. The result is independent of the order records arrive in.
package rank

import "github.com/efibootguard/bgselect/envdata"

// Candidate is a record together with the index of the volume it was
// read from.
type Candidate struct {
	VolumeIndex int
	Record      envdata.EnvData
}

// Ranker maintains the best and second-best candidate seen so far.
type Ranker struct {
	onBootVolume func(volumeIndex int) bool

	slots [3]Candidate
	// rank holds indices into slots. rank[0] is best, rank[1] is
	// second-best, rank[2] is the scratch position a freshly inserted
	// candidate lands in before being sifted upward. -1 means empty.
	rank [3]int
	// free is the stack of slot indices not yet claimed by rank.
	free []int
}

// New creates a Ranker. onBootVolume reports whether the given volume
// index is the one firmware booted from; it disambiguates candidates
// that are otherwise tied.
func New(onBootVolume func(volumeIndex int) bool) *Ranker {
	return &Ranker{
		onBootVolume: onBootVolume,
		rank:         [3]int{-1, -1, -1},
		free:         []int{2, 1, 0},
	}
}

// Insert folds one more read record into the running top-2. Insertion
// order never affects the final Best/SecondBest.
func (r *Ranker) Insert(c Candidate) {
	const scratch = 2

	if r.rank[scratch] < 0 {
		r.rank[scratch] = r.free[len(r.free)-1]
		r.free = r.free[:len(r.free)-1]
	}
	r.slots[r.rank[scratch]] = c

	for i := scratch; i > 0; i-- {
		r.sift(i-1, i)
	}
}

// sift compares the candidates occupying rank positions lhs and rhs,
// swapping them if the one at rhs is preferred.
func (r *Ranker) sift(lhs, rhs int) {
	if preferSwap(r.at(lhs), r.at(rhs), r.onBootVolume) {
		r.rank[lhs], r.rank[rhs] = r.rank[rhs], r.rank[lhs]
	}
}

func (r *Ranker) at(rankPos int) *Candidate {
	idx := r.rank[rankPos]
	if idx < 0 {
		return nil
	}
	return &r.slots[idx]
}

// Best returns the most-preferred candidate seen so far, or nil if
// nothing has been inserted.
func (r *Ranker) Best() *Candidate { return r.at(0) }

// SecondBest returns the next most-preferred candidate, or nil if
// fewer than two candidates have been inserted.
func (r *Ranker) SecondBest() *Candidate { return r.at(1) }

// preferSwap reports whether rhs should be preferred over lhs. A
// present candidate always beats an absent one. Ties are broken in
// order: not in-progress, higher revision, lower ustate rank, resident
// on the boot volume, lower volume index.
func preferSwap(lhs, rhs *Candidate, onBootVolume func(int) bool) bool {
	if rhs == nil {
		return false
	}
	if lhs == nil {
		return true
	}

	l, rrec := lhs.Record, rhs.Record

	switch {
	case l.InProgress != rrec.InProgress:
		return l.InProgress > rrec.InProgress
	case l.Revision != rrec.Revision:
		return l.Revision < rrec.Revision
	case l.UState.Rank() != rrec.UState.Rank():
		return l.UState.Rank() > rrec.UState.Rank()
	}

	lBoot := onBootVolume(lhs.VolumeIndex)
	rBoot := onBootVolume(rhs.VolumeIndex)
	switch {
	case lBoot != rBoot:
		return !lBoot && rBoot
	case lhs.VolumeIndex != rhs.VolumeIndex:
		return lhs.VolumeIndex > rhs.VolumeIndex
	default:
		return false
	}
}
