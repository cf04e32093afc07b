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

package hostvol

// BootVolumeChecker answers the ranker's "is this the boot volume"
// tiebreak (spec.md's IsOnBootVolume). DirectoryHost delegates to one
// when it needs an answer more precise than its own device-based
// filtering, so the same ranking logic works whether that answer
// comes from real firmware or from a fixed, caller-supplied index.
type BootVolumeChecker interface {
	IsOnBootVolume(volumeIndex int) bool
}

var (
	_ BootVolumeChecker = (*StaticBootVolumeChecker)(nil)
	_ BootVolumeChecker = (*EFIBootVolumeChecker)(nil)
)

// StaticBootVolumeChecker is a fixed-answer BootVolumeChecker for
// tests and host tools that already know which volume booted (for
// example from a --boot-volume flag or a scripted scenario) without
// consulting firmware at all.
type StaticBootVolumeChecker struct {
	// BootVolumeIndex is the one volume index considered the boot
	// volume; -1 means none of them are.
	BootVolumeIndex int
}

// NewStaticBootVolumeChecker returns a checker that reports true only
// for bootVolumeIndex. Pass -1 for "no volume is the boot volume".
func NewStaticBootVolumeChecker(bootVolumeIndex int) *StaticBootVolumeChecker {
	return &StaticBootVolumeChecker{BootVolumeIndex: bootVolumeIndex}
}

func (c *StaticBootVolumeChecker) IsOnBootVolume(volumeIndex int) bool {
	return c.BootVolumeIndex >= 0 && volumeIndex == c.BootVolumeIndex
}
