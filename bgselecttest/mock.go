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

// Package bgselecttest provides an in-memory host implementation of
// cfgpart.VolumeHost for tests, in the spirit of snapd's
// bootloader/bootloadertest.MockBootloader: a small, inspectable fake
// instead of a mock-generator. It also supports the original firmware
// test harness's error-injection sweep: every call into a host
// primitive (enumerate, open, read-close, open-for-write,
// write-close) is numbered, and the Nth one can be made to fail.
package bgselecttest

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/efibootguard/bgselect/envdata"
)

// ErrInjected is returned by whichever host call FailAt designates.
var ErrInjected = errors.New("bgselecttest: injected failure")

// ErrNoRecord is returned by OpenConfigFile when a volume's scenario
// carries no record, simulating an unreadable or never-written
// partition.
var ErrNoRecord = errors.New("bgselecttest: volume has no record")

// VolumeScenario describes one simulated configuration partition.
type VolumeScenario struct {
	// Record is the content OpenConfigFile will serve. A nil Record
	// simulates a volume whose config file cannot be opened.
	Record *envdata.EnvData
	// OnBootVolume marks this volume as the one firmware booted from.
	OnBootVolume bool
	// FilteredOut excludes this volume from FilterConfigPartitions's
	// output, simulating e.g. a copy living on a non-boot disk.
	FilteredOut bool
}

// MockHost is a cfgpart.VolumeHost backed by a fixed list of
// VolumeScenario values.
type MockHost struct {
	Volumes []VolumeScenario
	// Written records the last successfully-closed write to each
	// volume index.
	Written map[int]envdata.EnvData

	// FailAt, if non-zero, is the 1-based index of the host-primitive
	// call that should fail with ErrInjected.
	FailAt int

	calls int
}

// NewMockHost builds a MockHost from the given scenarios, indexed in
// the order given.
func NewMockHost(volumes ...VolumeScenario) *MockHost {
	return &MockHost{Volumes: volumes}
}

// CallCount reports how many host-primitive calls have been made so
// far; used to size an error-injection sweep.
func (m *MockHost) CallCount() int { return m.calls }

func (m *MockHost) nextCall() error {
	m.calls++
	if m.FailAt != 0 && m.calls == m.FailAt {
		return ErrInjected
	}
	return nil
}

func (m *MockHost) EnumerateConfigPartitions() ([]int, error) {
	if err := m.nextCall(); err != nil {
		return nil, err
	}
	indices := make([]int, len(m.Volumes))
	for i := range m.Volumes {
		indices[i] = i
	}
	return indices, nil
}

func (m *MockHost) FilterConfigPartitions(in []int) []int {
	out := make([]int, 0, len(in))
	for _, i := range in {
		if !m.Volumes[i].FilteredOut {
			out = append(out, i)
		}
	}
	return out
}

func (m *MockHost) IsOnBootVolume(volumeIndex int) bool {
	return m.Volumes[volumeIndex].OnBootVolume
}

func (m *MockHost) OpenConfigFile(volumeIndex int) (io.ReadCloser, error) {
	if err := m.nextCall(); err != nil {
		return nil, err
	}
	v := m.Volumes[volumeIndex]
	if v.Record == nil {
		return nil, fmt.Errorf("volume %d: %w", volumeIndex, ErrNoRecord)
	}
	data, err := envdata.Encode(*v.Record)
	if err != nil {
		return nil, err
	}
	return &mockReadCloser{host: m, r: bytes.NewReader(data)}, nil
}

func (m *MockHost) OpenConfigFileForWrite(volumeIndex int) (io.WriteCloser, error) {
	if err := m.nextCall(); err != nil {
		return nil, err
	}
	return &mockWriteCloser{host: m, volumeIndex: volumeIndex, buf: &bytes.Buffer{}}, nil
}

type mockReadCloser struct {
	host *MockHost
	r    *bytes.Reader
}

func (rc *mockReadCloser) Read(p []byte) (int, error) { return rc.r.Read(p) }
func (rc *mockReadCloser) Close() error                { return rc.host.nextCall() }

type mockWriteCloser struct {
	host        *MockHost
	volumeIndex int
	buf         *bytes.Buffer
}

func (wc *mockWriteCloser) Write(p []byte) (int, error) { return wc.buf.Write(p) }

func (wc *mockWriteCloser) Close() error {
	if err := wc.host.nextCall(); err != nil {
		return err
	}
	rec, err := envdata.Decode(wc.buf.Bytes())
	if err != nil {
		return err
	}
	if wc.host.Written == nil {
		wc.host.Written = map[int]envdata.EnvData{}
	}
	wc.host.Written[wc.volumeIndex] = rec
	return nil
}
