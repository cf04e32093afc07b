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

// Package hostconfig loads the ini-style configuration file used by
// the host-side tools (cmd/bgenvctl, cmd/bgenv-statusd). It follows
// the same parser the teacher codebase uses to read grub-editenv
// output, github.com/mvo5/goconfigparser, with a single unnamed
// section.
package hostconfig

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mvo5/goconfigparser"

	"github.com/efibootguard/bgselect/envdata"
)

// Config holds the host-tool settings, some of which in firmware are
// compiled constants (ENV_NUM_CONFIG_PARTS), that are worth
// making operator-configurable for a userspace tool running against a
// directory of files rather than real EFI volumes.
type Config struct {
	ConfigPartsDir     string
	NumConfigParts     int
	WatchdogDefaultSec uint32
	StatusListenAddr   string
}

// Default returns the configuration used when no config file is
// present.
func Default() Config {
	return Config{
		ConfigPartsDir:     "/boot/bgenv",
		NumConfigParts:     envdata.NumConfigParts,
		WatchdogDefaultSec: 30,
		StatusListenAddr:   "127.0.0.1:8652",
	}
}

// Load reads path as an ini file with keys config-parts-dir,
// num-config-parts, watchdog-default-sec and status-listen-addr,
// overlaying them onto Default(). A missing file is not an error;
// Default() is returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	cp := goconfigparser.New()
	cp.AllowNoSectionHeader = true
	if err := cp.ReadFile(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("hostconfig: read %q: %w", path, err)
	}

	if v, err := cp.Get("", "config-parts-dir"); err == nil && v != "" {
		cfg.ConfigPartsDir = v
	}
	if v, err := cp.Get("", "num-config-parts"); err == nil && v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil {
			return Config{}, fmt.Errorf("hostconfig: num-config-parts: %w", perr)
		}
		cfg.NumConfigParts = n
	}
	if v, err := cp.Get("", "watchdog-default-sec"); err == nil && v != "" {
		n, perr := strconv.ParseUint(v, 10, 32)
		if perr != nil {
			return Config{}, fmt.Errorf("hostconfig: watchdog-default-sec: %w", perr)
		}
		cfg.WatchdogDefaultSec = uint32(n)
	}
	if v, err := cp.Get("", "status-listen-addr"); err == nil && v != "" {
		cfg.StatusListenAddr = v
	}

	return cfg, nil
}
