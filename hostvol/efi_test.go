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
	. "gopkg.in/check.v1"
)

type efiSuite struct{}

var _ = Suite(&efiSuite{})

type fakeDevicePath string

func (p fakeDevicePath) String() string { return string(p) }

func (s *efiSuite) TestDevicePathSharesDiskMatchesUpToFileNode(c *C) {
	a := fakeDevicePath("PciRoot(0x0)/Pci(0x1d,0x0)/NVMe(0x1,...)/HD(1,GPT,...)/File(\\EFI\\part0\\BGENV.DAT)")
	b := fakeDevicePath("PciRoot(0x0)/Pci(0x1d,0x0)/NVMe(0x1,...)/HD(1,GPT,...)")
	c.Check(devicePathSharesDisk(a, b), Equals, true)
}

func (s *efiSuite) TestDevicePathSharesDiskRejectsDifferentPartitions(c *C) {
	a := fakeDevicePath("PciRoot(0x0)/Pci(0x1d,0x0)/NVMe(0x1,...)/HD(1,GPT,...)/File(\\EFI\\part0\\BGENV.DAT)")
	b := fakeDevicePath("PciRoot(0x0)/Pci(0x1d,0x0)/NVMe(0x1,...)/HD(2,GPT,...)")
	c.Check(devicePathSharesDisk(a, b), Equals, false)
}

func (s *efiSuite) TestDevicePathSharesDiskRejectsEmpty(c *C) {
	c.Check(devicePathSharesDisk(fakeDevicePath(""), fakeDevicePath("")), Equals, false)
}

func (s *efiSuite) TestIsOnBootVolumeRejectsOutOfRange(c *C) {
	checker := NewEFIBootVolumeChecker(nil)
	c.Check(checker.IsOnBootVolume(0), Equals, false)
	c.Check(checker.IsOnBootVolume(-1), Equals, false)
}
