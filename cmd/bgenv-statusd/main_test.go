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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/efibootguard/bgselect/bgselect"
)

func Test(t *testing.T) { TestingT(t) }

type statusdSuite struct{}

var _ = Suite(&statusdSuite{})

func (s *statusdSuite) TestStatusReportsSuccess(c *C) {
	srv := &statusServer{}
	srv.set(decision{Status: bgselect.Success.String(), PayloadPath: "/boot/vmlinuz", TimeoutSec: 30})

	req := httptest.NewRequest("GET", "/v1/status", nil)
	w := httptest.NewRecorder()
	newRouter(srv).ServeHTTP(w, req)

	c.Check(w.Code, Equals, http.StatusOK)
	var got decision
	c.Assert(json.Unmarshal(w.Body.Bytes(), &got), IsNil)
	c.Check(got.Status, Equals, bgselect.Success.String())
	c.Check(got.PayloadPath, Equals, "/boot/vmlinuz")
}

func (s *statusdSuite) TestStatusReportsFailureAsUnavailable(c *C) {
	srv := &statusServer{}
	srv.set(decision{Status: bgselect.ConfigError.String(), Error: "no viable config"})

	req := httptest.NewRequest("GET", "/v1/status", nil)
	w := httptest.NewRecorder()
	newRouter(srv).ServeHTTP(w, req)

	c.Check(w.Code, Equals, http.StatusServiceUnavailable)
	var got decision
	c.Assert(json.Unmarshal(w.Body.Bytes(), &got), IsNil)
	c.Check(got.Error, Equals, "no viable config")
}

// Off-target (non-EFI) test environments can't resolve a real device
// path; efiDevicePaths must degrade to nil entries rather than fail
// the whole daemon.
func (s *statusdSuite) TestEFIDevicePathsDegradesGracefully(c *C) {
	paths := efiDevicePaths([]string{c.MkDir(), c.MkDir()})
	c.Assert(paths, HasLen, 2)
}
