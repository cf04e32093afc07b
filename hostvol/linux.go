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

// Package hostvol implements cfgpart.VolumeHost against real Linux
// mount points and, where available, real EFI firmware state, so the
// host-side tools (cmd/bgenvctl, cmd/bgenv-statusd) can exercise the
// selector against genuine config partitions instead of a simulated
// scenario.
package hostvol

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ConfigFileName is the name of the configuration record file inside
// each config partition's mount point.
const ConfigFileName = "BGENV.DAT"

// DirectoryHost implements cfgpart.VolumeHost over a fixed list of
// directories, each one the mount point of a config partition. It is
// the Linux equivalent of the EFI firmware's per-volume root handle.
type DirectoryHost struct {
	// Dirs are the candidate config partition mount points, indexed
	// by volume index.
	Dirs []string
	// BootDiskDevice is the device number (as reported by stat(2)) of
	// the disk firmware booted from. Volumes whose mount point lives
	// on a different device are filtered out.
	BootDiskDevice uint64
	// BootVolumeChecker, if set, answers IsOnBootVolume instead of the
	// device-number comparison below, letting a real firmware-backed
	// checker (EFIBootVolumeChecker) or a fixed answer
	// (StaticBootVolumeChecker) drive the ranker's tiebreak.
	BootVolumeChecker BootVolumeChecker
}

// NewDirectoryHost builds a host over dirs without touching them. A
// bootDiskDevice of zero disables boot-disk filtering, and the
// device-based IsOnBootVolume answer is then always false.
func NewDirectoryHost(dirs []string, bootDiskDevice uint64) *DirectoryHost {
	return &DirectoryHost{Dirs: dirs, BootDiskDevice: bootDiskDevice}
}

func (h *DirectoryHost) EnumerateConfigPartitions() ([]int, error) {
	indices := make([]int, len(h.Dirs))
	for i := range h.Dirs {
		indices[i] = i
	}
	return indices, nil
}

// FilterConfigPartitions excludes any volume whose mount point does
// not live on the boot disk, matching the original firmware's
// filter_cfg_parts, which excludes copies of the config partition that
// happen to sit on a different physical disk (for example, a backup
// image of the EFI system partition).
func (h *DirectoryHost) FilterConfigPartitions(volumeIndices []int) []int {
	if h.BootDiskDevice == 0 {
		return volumeIndices
	}
	out := make([]int, 0, len(volumeIndices))
	for _, i := range volumeIndices {
		dev, err := deviceOf(h.Dirs[i])
		if err != nil {
			continue
		}
		if dev == h.BootDiskDevice {
			out = append(out, i)
		}
	}
	return out
}

func (h *DirectoryHost) IsOnBootVolume(volumeIndex int) bool {
	if h.BootVolumeChecker != nil {
		return h.BootVolumeChecker.IsOnBootVolume(volumeIndex)
	}
	if h.BootDiskDevice == 0 {
		return false
	}
	dev, err := deviceOf(h.Dirs[volumeIndex])
	return err == nil && dev == h.BootDiskDevice
}

func (h *DirectoryHost) configPath(volumeIndex int) string {
	return filepath.Join(h.Dirs[volumeIndex], ConfigFileName)
}

func (h *DirectoryHost) OpenConfigFile(volumeIndex int) (io.ReadCloser, error) {
	f, err := os.Open(h.configPath(volumeIndex))
	if err != nil {
		return nil, fmt.Errorf("hostvol: %w", err)
	}
	return f, nil
}

func (h *DirectoryHost) OpenConfigFileForWrite(volumeIndex int) (io.WriteCloser, error) {
	f, err := os.OpenFile(h.configPath(volumeIndex), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("hostvol: %w", err)
	}
	return f, nil
}

// deviceOf returns the st_dev of path's filesystem, used to decide
// whether a candidate config partition lives on the boot disk.
func deviceOf(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, fmt.Errorf("stat %q: %w", path, err)
	}
	return uint64(st.Dev), nil
}
