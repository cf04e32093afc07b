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

// Package cfgpart scans configuration partitions and reads or writes
// the single fixed-size record each one carries. It defines the host
// capability interface the selector borrows firmware services
// through (open/read/write/close a config file, enumerate and filter
// candidate volumes, test boot-volume residency) and implements the
// per-volume read/write logic on top of it.
package cfgpart

import (
	"errors"
	"fmt"
	"io"

	"github.com/efibootguard/bgselect/envdata"
)

// VolumeHost is the set of firmware/host services the scanner and
// reader need. A production implementation talks to real volumes
// (hostvol), a test implementation talks to an in-memory scenario
// (bgselecttest).
type VolumeHost interface {
	// EnumerateConfigPartitions returns the indices of every volume
	// that might carry a configuration record.
	EnumerateConfigPartitions() ([]int, error)
	// FilterConfigPartitions narrows candidates down to those
	// actually eligible to carry configuration (for example,
	// excluding copies that live on a disk other than the boot disk).
	FilterConfigPartitions(volumeIndices []int) []int
	// IsOnBootVolume reports whether the given volume is the one
	// firmware loaded its boot image from.
	IsOnBootVolume(volumeIndex int) bool
	// OpenConfigFile opens the configuration record file on the given
	// volume for reading.
	OpenConfigFile(volumeIndex int) (io.ReadCloser, error)
	// OpenConfigFileForWrite opens the configuration record file on
	// the given volume for writing back a mutated record.
	OpenConfigFileForWrite(volumeIndex int) (io.WriteCloser, error)
}

var ErrBadBufferSize = errors.New("cfgpart: config file has wrong size")

// Scan enumerates and filters the platform's configuration
// partitions. errored is raised (but scanning is not aborted) when
// the filtered count does not match the expected number of
// partitions, since a boot may still be possible from whatever valid
// record exists.
func Scan(host VolumeHost, expectedCount int) (volumeIndices []int, errored bool, err error) {
	indices, err := host.EnumerateConfigPartitions()
	if err != nil {
		return nil, true, fmt.Errorf("cfgpart: enumerate config partitions: %w", err)
	}

	filtered := host.FilterConfigPartitions(indices)
	if len(filtered) != expectedCount {
		errored = true
	}
	return filtered, errored, nil
}

// ReadRecord opens, reads and closes the configuration file on the
// given volume, normalising its strings. errored is sticky: it is set
// whenever any part of the open/read/close sequence failed, even if
// the record itself was recovered (e.g. a failed close after a
// successful read).
func ReadRecord(host VolumeHost, volumeIndex int) (rec envdata.EnvData, errored bool, err error) {
	f, err := host.OpenConfigFile(volumeIndex)
	if err != nil {
		return envdata.EnvData{}, true, fmt.Errorf("cfgpart: open config file on volume %d: %w", volumeIndex, err)
	}

	buf := make([]byte, envdata.RecordSize)
	n, readErr := io.ReadFull(f, buf)

	if closeErr := f.Close(); closeErr != nil {
		errored = true
	}

	if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
		return envdata.EnvData{}, true, fmt.Errorf("cfgpart: read config file on volume %d: %w", volumeIndex, readErr)
	}
	if n != envdata.RecordSize {
		return envdata.EnvData{}, true, fmt.Errorf("cfgpart: volume %d: %w: got %d bytes, want %d", volumeIndex, ErrBadBufferSize, n, envdata.RecordSize)
	}

	rec, err = envdata.Decode(buf[:n])
	if err != nil {
		return envdata.EnvData{}, true, fmt.Errorf("cfgpart: decode config file on volume %d: %w", volumeIndex, err)
	}

	return rec, errored, nil
}

// WriteRecord persists rec to the configuration file on the given
// volume, recomputing its CRC32 as part of encoding.
func WriteRecord(host VolumeHost, volumeIndex int, rec envdata.EnvData) error {
	buf, err := envdata.Encode(rec)
	if err != nil {
		return fmt.Errorf("cfgpart: encode record for volume %d: %w", volumeIndex, err)
	}

	w, err := host.OpenConfigFileForWrite(volumeIndex)
	if err != nil {
		return fmt.Errorf("cfgpart: open config file for write on volume %d: %w", volumeIndex, err)
	}

	_, writeErr := w.Write(buf)
	closeErr := w.Close()

	if writeErr != nil {
		return fmt.Errorf("cfgpart: write config file on volume %d: %w", volumeIndex, writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("cfgpart: close config file on volume %d: %w", volumeIndex, closeErr)
	}
	return nil
}
