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

// Command bgenvctl is the host-side administration tool for the boot
// configuration partitions: it dumps the records the selector would
// see, writes a new record to a given partition, and can simulate a
// boot cycle against a directory of fake partitions for testing an
// update workflow end to end.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"

	"github.com/efibootguard/bgselect/bgselect"
	"github.com/efibootguard/bgselect/cfgpart"
	"github.com/efibootguard/bgselect/envdata"
	"github.com/efibootguard/bgselect/hostconfig"
	"github.com/efibootguard/bgselect/hostvol"
)

type options struct {
	ConfigFile string `long:"config" description:"path to bgenvctl's ini config file" default:"/etc/bgenv.conf"`
}

var opts options

type dumpCommand struct{}

type createCommand struct {
	Volume       int    `long:"volume" description:"volume index to write" required:"true"`
	Revision     uint32 `long:"revision" description:"revision number of the new record"`
	KernelFile   string `long:"kernel" description:"kernel file name" required:"true"`
	KernelParams string `long:"params" description:"kernel command line"`
	Watchdog     uint32 `long:"watchdog" description:"watchdog timeout in seconds"`
}

type simulateBootCommand struct {
	BootVolume int `long:"boot-volume" description:"volume index to treat as the boot disk" default:"-1"`
}

func (c *dumpCommand) Execute(args []string) error {
	host, err := openHost()
	if err != nil {
		return err
	}
	return dump(host, os.Stdout)
}

func (c *createCommand) Execute(args []string) error {
	host, err := openHost()
	if err != nil {
		return err
	}
	rec := envdata.EnvData{
		Revision:           c.Revision,
		UState:             envdata.Installed,
		KernelFile:         c.KernelFile,
		KernelParams:       c.KernelParams,
		WatchdogTimeoutSec: c.Watchdog,
	}
	if err := cfgpart.WriteRecord(host, c.Volume, rec); err != nil {
		return fmt.Errorf("bgenvctl: create: %w", err)
	}
	fmt.Fprintf(os.Stdout, "wrote revision %d to volume %d\n", rec.Revision, c.Volume)
	return nil
}

func (c *simulateBootCommand) Execute(args []string) error {
	host, err := openHostWithBootVolume(c.BootVolume)
	if err != nil {
		return err
	}
	logger := bgselect.NewLogger(log.New(os.Stderr, "bgenvctl: ", log.LstdFlags))
	params, status, err := bgselect.LoadConfig(host, bgselect.WithLogger(logger))
	fmt.Fprintf(os.Stdout, "status: %s\n", status)
	if err != nil {
		fmt.Fprintf(os.Stdout, "error: %v\n", err)
		return nil
	}
	fmt.Fprintf(os.Stdout, "payload: %s %s (timeout %ds)\n", params.PayloadPath, params.PayloadOptions, params.TimeoutSec)
	return nil
}

func openHost() (cfgpart.VolumeHost, error) {
	return openHostWithBootVolume(-1)
}

func openHostWithBootVolume(bootVolume int) (cfgpart.VolumeHost, error) {
	cfg, err := hostconfig.Load(opts.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("bgenvctl: %w", err)
	}

	dirs, err := partitionDirs(cfg.ConfigPartsDir, cfg.NumConfigParts)
	if err != nil {
		return nil, err
	}

	host := hostvol.NewDirectoryHost(dirs, 0)
	if bootVolume >= 0 && bootVolume < len(dirs) {
		host.BootVolumeChecker = hostvol.NewStaticBootVolumeChecker(bootVolume)
	}
	return host, nil
}

func partitionDirs(base string, n int) ([]string, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("bgenvctl: list %q: %w", base, err)
	}
	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, base+"/"+e.Name())
		}
	}
	return dirs, nil
}

type dumpEntry struct {
	Volume       int    `yaml:"volume"`
	Revision     uint32 `yaml:"revision"`
	InProgress   bool   `yaml:"in_progress"`
	State        string `yaml:"state"`
	KernelFile   string `yaml:"kernel_file"`
	KernelParams string `yaml:"kernel_params"`
	Watchdog     uint32 `yaml:"watchdog_timeout_sec"`
	Error        string `yaml:"error,omitempty"`
}

func dump(host cfgpart.VolumeHost, out *os.File) error {
	volumeIndices, err := host.EnumerateConfigPartitions()
	if err != nil {
		return fmt.Errorf("bgenvctl: enumerate: %w", err)
	}

	entries := make([]dumpEntry, 0, len(volumeIndices))
	for _, idx := range volumeIndices {
		rec, errored, rerr := cfgpart.ReadRecord(host, idx)
		entry := dumpEntry{Volume: idx}
		if rerr != nil {
			entry.Error = rerr.Error()
			entries = append(entries, entry)
			continue
		}
		entry.Revision = rec.Revision
		entry.InProgress = rec.InProgress != 0
		entry.State = rec.UState.String()
		entry.KernelFile = rec.KernelFile
		entry.KernelParams = rec.KernelParams
		entry.Watchdog = rec.WatchdogTimeoutSec
		if errored {
			entry.Error = "partition read with degraded confidence"
		}
		entries = append(entries, entry)
	}

	enc := yaml.NewEncoder(out)
	defer enc.Close()
	return enc.Encode(entries)
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("dump", "Show every config partition's record", "", &dumpCommand{})
	parser.AddCommand("create", "Write a new INSTALLED record to a config partition", "", &createCommand{})
	parser.AddCommand("simulate-boot", "Run the selector against the configured partitions", "", &simulateBootCommand{})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
