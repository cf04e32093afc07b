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

package hostvol_test

import (
	. "gopkg.in/check.v1"

	"github.com/efibootguard/bgselect/hostvol"
)

type staticSuite struct{}

var _ = Suite(&staticSuite{})

func (s *staticSuite) TestMatchesOnlyConfiguredVolume(c *C) {
	checker := hostvol.NewStaticBootVolumeChecker(1)
	c.Check(checker.IsOnBootVolume(0), Equals, false)
	c.Check(checker.IsOnBootVolume(1), Equals, true)
	c.Check(checker.IsOnBootVolume(2), Equals, false)
}

func (s *staticSuite) TestNegativeIndexMatchesNothing(c *C) {
	checker := hostvol.NewStaticBootVolumeChecker(-1)
	c.Check(checker.IsOnBootVolume(0), Equals, false)
	c.Check(checker.IsOnBootVolume(-1), Equals, false)
}

func (s *staticSuite) TestDirectoryHostDelegatesToChecker(c *C) {
	host := hostvol.NewDirectoryHost([]string{c.MkDir(), c.MkDir()}, 0)
	host.BootVolumeChecker = hostvol.NewStaticBootVolumeChecker(1)

	c.Check(host.IsOnBootVolume(0), Equals, false)
	c.Check(host.IsOnBootVolume(1), Equals, true)
}
