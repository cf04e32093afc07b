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

package main

import (
	"os"
	"testing"

	. "gopkg.in/check.v1"
	"gopkg.in/yaml.v3"

	"github.com/efibootguard/bgselect/bgselecttest"
	"github.com/efibootguard/bgselect/envdata"
)

func Test(t *testing.T) { TestingT(t) }

type bgenvctlSuite struct{}

var _ = Suite(&bgenvctlSuite{})

func (s *bgenvctlSuite) TestDumpReportsEachVolume(c *C) {
	rec := envdata.EnvData{Revision: 7, UState: envdata.OK, KernelFile: "vmlinuz"}
	host := bgselecttest.NewMockHost(
		bgselecttest.VolumeScenario{Record: &rec},
		bgselecttest.VolumeScenario{Record: nil},
	)

	tmp, err := os.CreateTemp(c.MkDir(), "dump-*.yaml")
	c.Assert(err, IsNil)
	defer tmp.Close()

	c.Assert(dump(host, tmp), IsNil)

	data, err := os.ReadFile(tmp.Name())
	c.Assert(err, IsNil)

	var entries []dumpEntry
	c.Assert(yaml.Unmarshal(data, &entries), IsNil)
	c.Assert(entries, HasLen, 2)
	c.Check(entries[0].Revision, Equals, uint32(7))
	c.Check(entries[0].KernelFile, Equals, "vmlinuz")
	c.Check(entries[1].Error, Not(Equals), "")
}
