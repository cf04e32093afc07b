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

// Package bgselect is the boot-time configuration selector: it scans
// configuration partitions, ranks whatever records it can read, and
// applies the INSTALLED -> TESTING -> OK state machine (with FAILED as
// a terminal sink) to the chosen record before handing a loader
// decision back to the caller.
package bgselect

import (
	"errors"
	"fmt"
	"log"

	"github.com/efibootguard/bgselect/cfgpart"
	"github.com/efibootguard/bgselect/envdata"
	"github.com/efibootguard/bgselect/rank"
)

// Status classifies the outcome of a LoadConfig call.
type Status int

const (
	Success Status = iota
	PartiallyCorrupted
	ConfigError
	NotImplemented
	OtherError
)

func (st Status) String() string {
	switch st {
	case Success:
		return "success"
	case PartiallyCorrupted:
		return "partially-corrupted"
	case ConfigError:
		return "config-error"
	case NotImplemented:
		return "not-implemented"
	case OtherError:
		return "other-error"
	default:
		return fmt.Sprintf("status(%d)", int(st))
	}
}

// LoaderParams is the decision handed to the downstream payload
// loader: which kernel to boot, with what arguments, and under what
// watchdog timeout. Both strings are freshly owned copies — nothing in
// LoaderParams aliases the host's config partitions.
type LoaderParams struct {
	PayloadPath    string
	PayloadOptions string
	TimeoutSec     uint32
}

var (
	ErrNoViableConfig   = errors.New("bgselect: no viable configuration partition")
	ErrNoFallbackConfig = errors.New("bgselect: testing record failed, no previous configuration available")
	ErrNotImplemented   = errors.New("bgselect: not implemented")
)

// errorFlag is the sticky per-volume error indicator folded across a
// LoadConfig run. It is a tiny commutative monoid: Clean is the
// identity, Errored annihilates it (Errored ⊕ anything = Errored).
type errorFlag bool

const (
	clean   errorFlag = false
	errored errorFlag = true
)

func (f errorFlag) fold(other errorFlag) errorFlag { return f || other }

// Logger is the minimal leveled logging surface LoadConfig uses to
// report per-volume anomalies, mirroring the INFO/WARNING/ERROR macros
// of the original firmware implementation.
type Logger interface {
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// stdLogger adapts a standard library *log.Logger to Logger, prefixing
// each line with its level the way the original firmware's INFO/
// WARNING/ERROR macros tag their output.
type stdLogger struct{ l *log.Logger }

// NewLogger adapts l to the Logger interface, for callers who want
// LoadConfig's diagnostics on their own *log.Logger (a distinct
// prefix, a file instead of stderr, and so on) rather than the
// log.Default() LoadConfig uses when no Logger is supplied.
func NewLogger(l *log.Logger) Logger { return stdLogger{l: l} }

func (s stdLogger) Infof(format string, args ...interface{}) {
	s.l.Printf("INFO: "+format, args...)
}
func (s stdLogger) Warningf(format string, args ...interface{}) {
	s.l.Printf("WARNING: "+format, args...)
}
func (s stdLogger) Errorf(format string, args ...interface{}) {
	s.l.Printf("ERROR: "+format, args...)
}

var defaultLogger Logger = NewLogger(log.Default())

// Option configures a LoadConfig call.
type Option func(*options)

type options struct {
	logger Logger
}

// WithLogger routes LoadConfig's diagnostic messages to logger instead
// of the package's log.Default()-backed logger.
func WithLogger(logger Logger) Option {
	return func(o *options) { o.logger = logger }
}

// LoadConfig selects, and if necessary mutates and persists, the
// configuration record that should drive this boot.
//
// The returned LoaderParams is populated only when Status is Success
// or PartiallyCorrupted; on ConfigError it is the zero value.
func LoadConfig(host cfgpart.VolumeHost, opts ...Option) (LoaderParams, Status, error) {
	o := options{logger: defaultLogger}
	for _, opt := range opts {
		opt(&o)
	}

	volumeIndices, scanErrored, err := cfgpart.Scan(host, envdata.NumConfigParts)
	if err != nil {
		o.logger.Errorf("could not enumerate config partitions: %v", err)
		return LoaderParams{}, ConfigError, err
	}

	flag := clean
	if scanErrored {
		flag = errored
		o.logger.Warningf("unexpected config partition count: found %d, expected %d", len(volumeIndices), envdata.NumConfigParts)
	}

	ranker := rank.New(host.IsOnBootVolume)

	for _, vol := range volumeIndices {
		o.logger.Infof("reading config file on volume %d", vol)

		rec, readErrored, readErr := cfgpart.ReadRecord(host, vol)
		if readErrored {
			flag = flag.fold(errored)
		}
		if readErr != nil {
			o.logger.Warningf("could not read environment file on config partition %d: %v", vol, readErr)
			continue
		}

		ranker.Insert(rank.Candidate{VolumeIndex: vol, Record: rec})
	}

	best := ranker.Best()
	prev := ranker.SecondBest()

	if best == nil || !best.Record.Bootable() {
		o.logger.Errorf("could not find any valid config partition")
		return LoaderParams{}, ConfigError, ErrNoViableConfig
	}

	chosen := best
	switch best.Record.UState {
	case envdata.Installed:
		best.Record.UState = envdata.Testing
		if werr := persist(host, best); werr != nil {
			flag = flag.fold(errored)
			o.logger.Warningf("could not persist testing state to volume %d: %v", best.VolumeIndex, werr)
		}
		chosen = best

	case envdata.Testing:
		// Seeing TESTING again means the boot that promoted this
		// generation never completed the post-boot promotion to OK:
		// demote it. The writeback happens even when prev is absent
		// (so the demotion sticks and this generation is not retried
		// next boot), even though the call still fails overall.
		best.Record.UState = envdata.Failed
		best.Record.Revision = envdata.RevisionFailed
		if werr := persist(host, best); werr != nil {
			flag = flag.fold(errored)
			o.logger.Warningf("could not persist failed state to volume %d: %v", best.VolumeIndex, werr)
		}
		if prev == nil {
			o.logger.Errorf("could not find previous valid config partition")
			return LoaderParams{}, ConfigError, ErrNoFallbackConfig
		}
		chosen = prev

	case envdata.OK:
		chosen = best

	default:
		// FAILED or an unrecognised ustate. The ranker's rank table
		// puts these last, so this arm is reached only when no better
		// record exists. Boot it anyway rather than refuse to boot.
		chosen = best
	}

	params := LoaderParams{
		PayloadPath:    chosen.Record.KernelFile,
		PayloadOptions: chosen.Record.KernelParams,
		TimeoutSec:     chosen.Record.WatchdogTimeoutSec,
	}

	o.logger.Infof("choosing config on volume %d", chosen.VolumeIndex)
	o.logger.Infof(" revision: %d", chosen.Record.Revision)
	o.logger.Infof(" ustate: %s", chosen.Record.UState)
	o.logger.Infof(" kernel: %s", params.PayloadPath)
	o.logger.Infof(" args: %s", params.PayloadOptions)
	o.logger.Infof(" timeout: %d seconds", params.TimeoutSec)

	status := Success
	if flag == errored {
		status = PartiallyCorrupted
	}
	return params, status, nil
}

func persist(host cfgpart.VolumeHost, c *rank.Candidate) error {
	return cfgpart.WriteRecord(host, c.VolumeIndex, c.Record)
}

// SaveConfig writes a new record to the configuration partitions.
// Creating new generations is a host-updater task, not the boot-time
// selector's — this always reports NotImplemented, matching the
// original firmware's save_config stub.
func SaveConfig(LoaderParams) (Status, error) {
	return NotImplemented, ErrNotImplemented
}
