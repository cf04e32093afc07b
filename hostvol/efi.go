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

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	efi "github.com/canonical/go-efilib"
	efilinux "github.com/canonical/go-efilib/linux"
)

// EFIBootVolumeChecker answers the ranker's "is this the boot volume"
// tiebreak (spec.md's IsOnBootVolume) against real UEFI firmware: it
// reads the BootCurrent and Boot#### variables to find the device
// path firmware actually loaded from, and compares it against each
// candidate volume's own device path.
type EFIBootVolumeChecker struct {
	// VolumeDevicePaths holds one EFI device path per volume index,
	// typically the path to the partition's root directory on the
	// ESP, as discovered by the caller (e.g. via blkid/GPT PARTUUID).
	VolumeDevicePaths []efi.DevicePath
}

// NewEFIBootVolumeChecker builds a checker for the given per-volume
// device paths.
func NewEFIBootVolumeChecker(volumeDevicePaths []efi.DevicePath) *EFIBootVolumeChecker {
	return &EFIBootVolumeChecker{VolumeDevicePaths: volumeDevicePaths}
}

// IsOnBootVolume reports whether volumeIndex's device path equals the
// device path firmware actually booted from once both are cut at
// their file-path node (see devicePathSharesDisk). Any failure to
// read firmware state (BootCurrent missing, efivarfs unavailable, the
// Boot#### entry malformed) is treated as "not the boot volume" rather
// than propagated, since this predicate only ever breaks a tie between
// otherwise-equal candidates.
func (c *EFIBootVolumeChecker) IsOnBootVolume(volumeIndex int) bool {
	if volumeIndex < 0 || volumeIndex >= len(c.VolumeDevicePaths) {
		return false
	}
	bootPath, err := currentBootDevicePath(context.Background())
	if err != nil {
		return false
	}
	return devicePathSharesDisk(bootPath, c.VolumeDevicePaths[volumeIndex])
}

func currentBootDevicePath(ctx context.Context) (efi.DevicePath, error) {
	data, _, err := efi.ReadVariable(ctx, "BootCurrent", efi.GlobalVariable)
	if err != nil {
		return nil, fmt.Errorf("hostvol: read BootCurrent: %w", err)
	}
	if len(data) < 2 {
		return nil, fmt.Errorf("hostvol: BootCurrent variable too short")
	}
	current := binary.LittleEndian.Uint16(data)

	optData, _, err := efi.ReadVariable(ctx, fmt.Sprintf("Boot%04X", current), efi.GlobalVariable)
	if err != nil {
		return nil, fmt.Errorf("hostvol: read Boot%04X: %w", current, err)
	}

	opt, err := efi.ReadLoadOption(bytes.NewReader(optData))
	if err != nil {
		return nil, fmt.Errorf("hostvol: parse Boot%04X load option: %w", current, err)
	}
	return opt.FilePath, nil
}

// DevicePathForDir resolves dir's EFI device path down to its
// underlying GPT partition, for building the VolumeDevicePaths an
// EFIBootVolumeChecker compares against. It is the real-firmware
// counterpart of a caller manually supplying a partition UUID.
func DevicePathForDir(dir string) (efi.DevicePath, error) {
	path, err := efilinux.FilePathToDevicePath(dir, efilinux.ShortFormPathHD)
	if err != nil {
		return nil, fmt.Errorf("hostvol: device path for %q: %w", dir, err)
	}
	return path, nil
}

// devicePathSharesDisk compares the two device paths' string forms up
// to (and including) their partition node, ignoring the trailing
// file-path node that names the loaded binary itself. This mirrors
// the original firmware's device-path equality check, which the
// platform's device-path protocol performs natively; here it is
// approximated on the textual representation go-efilib produces.
func devicePathSharesDisk(a, b fmt.Stringer) bool {
	as := truncateAtFilePathNode(a.String())
	bs := truncateAtFilePathNode(b.String())
	return as != "" && as == bs
}

func truncateAtFilePathNode(s string) string {
	if i := strings.Index(s, "/File("); i >= 0 {
		return s[:i]
	}
	return s
}
