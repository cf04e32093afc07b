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

// Package envdata implements the on-disk layout of a single boot
// configuration record: encoding, decoding and the CRC32 that protects
// it. The wire format is fixed size and must stay bit-identical with
// the host-side updater tooling that writes these records.
package envdata

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/xerrors"
)

// StringLength is the fixed number of UTF-16 code units reserved for
// kernelfile and kernelparams, including the terminating NUL.
const StringLength = 256

// NumConfigParts is the number of redundant configuration partitions
// the platform is expected to carry.
const NumConfigParts = 2

// RevisionFailed is the sentinel revision written into a record that
// has been demoted after a failed update trial.
const RevisionFailed uint32 = 0

const wideStringBytes = StringLength * 2

// RecordSize is the fixed, on-disk size of an encoded record in bytes:
// revision(4) + in_progress(2) + ustate(2) + kernelfile + kernelparams +
// watchdog_timeout_sec(4) + crc32(4).
const RecordSize = 4 + 2 + 2 + wideStringBytes + wideStringBytes + 4 + 4

const (
	offRevision   = 0
	offInProgress = offRevision + 4
	offUState     = offInProgress + 2
	offKernelFile = offUState + 2
	offKernelArgs = offKernelFile + wideStringBytes
	offWatchdog   = offKernelArgs + wideStringBytes
	offCRC        = offWatchdog + 4
)

// UState is the update state of a configuration record.
type UState uint16

const (
	Installed UState = 0
	Testing   UState = 1
	OK        UState = 2
	Failed    UState = 3
)

func (s UState) String() string {
	switch s {
	case Installed:
		return "installed"
	case Testing:
		return "testing"
	case OK:
		return "ok"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("ustate(%d)", uint16(s))
	}
}

// Rank returns the ranker's preference order for the state: lower is
// preferred. INSTALLED is tried first so it can be promoted to TESTING
// this boot; TESTING beats OK so an in-flight trial continues; FAILED
// and any unrecognised value are nearly unselectable.
func (s UState) Rank() int {
	switch s {
	case Installed:
		return 0
	case Testing:
		return 1
	case OK:
		return 2
	default:
		return 3
	}
}

// EnvData is one boot configuration record.
type EnvData struct {
	Revision           uint32
	InProgress         uint16
	UState             UState
	KernelFile         string
	KernelParams       string
	WatchdogTimeoutSec uint32
	CRC32              uint32
}

// Bootable reports whether a successfully decoded record is eligible
// to boot. Decode already guarantees CRC validity and NUL-terminated
// strings, so only the in-progress flag remains to check here.
func (r EnvData) Bootable() bool {
	return r.InProgress == 0
}

var (
	ErrShortRead     = xerrors.New("envdata: short read")
	ErrCRCMismatch   = xerrors.New("envdata: crc32 mismatch")
	ErrStringTooLong = xerrors.New("envdata: string exceeds field width")
)

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Encode serialises r into a RecordSize buffer. The CRC32 field of the
// returned bytes reflects the checksum computed over every other
// field; r itself is not mutated.
func Encode(r EnvData) ([]byte, error) {
	buf := make([]byte, RecordSize)

	binary.LittleEndian.PutUint32(buf[offRevision:], r.Revision)
	binary.LittleEndian.PutUint16(buf[offInProgress:], r.InProgress)
	binary.LittleEndian.PutUint16(buf[offUState:], uint16(r.UState))

	if err := putWideString(buf[offKernelFile:offKernelFile+wideStringBytes], r.KernelFile); err != nil {
		return nil, xerrors.Errorf("encode kernelfile: %w", err)
	}
	if err := putWideString(buf[offKernelArgs:offKernelArgs+wideStringBytes], r.KernelParams); err != nil {
		return nil, xerrors.Errorf("encode kernelparams: %w", err)
	}

	binary.LittleEndian.PutUint32(buf[offWatchdog:], r.WatchdogTimeoutSec)

	crc := crc32.ChecksumIEEE(buf[:offCRC])
	binary.LittleEndian.PutUint32(buf[offCRC:], crc)

	return buf, nil
}

// Decode parses a RecordSize buffer into a record. The CRC check is
// performed against the raw bytes before the kernelfile/kernelparams
// strings are normalised, so normalisation can never mask a CRC
// failure (and a CRC failure is reported even when the unnormalised
// strings could not be decoded as UTF-16 at all).
func Decode(data []byte) (EnvData, error) {
	if len(data) < RecordSize {
		return EnvData{}, xerrors.Errorf("%w: got %d bytes, want %d", ErrShortRead, len(data), RecordSize)
	}
	data = data[:RecordSize]

	crc := crc32.ChecksumIEEE(data[:offCRC])
	stored := binary.LittleEndian.Uint32(data[offCRC:])
	if crc != stored {
		return EnvData{}, xerrors.Errorf("%w: calculated %#x, stored %#x", ErrCRCMismatch, crc, stored)
	}

	var r EnvData
	r.Revision = binary.LittleEndian.Uint32(data[offRevision:])
	r.InProgress = binary.LittleEndian.Uint16(data[offInProgress:])
	r.UState = UState(binary.LittleEndian.Uint16(data[offUState:]))

	kf, err := normalisedWideString(data[offKernelFile : offKernelFile+wideStringBytes])
	if err != nil {
		return EnvData{}, xerrors.Errorf("decode kernelfile: %w", err)
	}
	r.KernelFile = kf

	kp, err := normalisedWideString(data[offKernelArgs : offKernelArgs+wideStringBytes])
	if err != nil {
		return EnvData{}, xerrors.Errorf("decode kernelparams: %w", err)
	}
	r.KernelParams = kp

	r.WatchdogTimeoutSec = binary.LittleEndian.Uint32(data[offWatchdog:])
	r.CRC32 = stored

	return r, nil
}

// putWideString encodes s as zero-padded UTF-16LE into dst, which must
// be exactly StringLength code units wide. The last code unit is
// always left zero, reserved for the terminator.
func putWideString(dst []byte, s string) error {
	encoded, _, err := transform.Bytes(utf16LE.NewEncoder(), []byte(s))
	if err != nil {
		return xerrors.Errorf("utf-16 encode: %w", err)
	}
	if len(encoded) > len(dst)-2 {
		return ErrStringTooLong
	}
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, encoded)
	return nil
}

// normalisedWideString decodes a fixed-width UTF-16LE field, forcing
// the last code unit to zero before looking for the terminator so a
// torn or unterminated field can never run past the field boundary.
func normalisedWideString(field []byte) (string, error) {
	local := make([]byte, len(field))
	copy(local, field)
	local[len(local)-2] = 0
	local[len(local)-1] = 0

	nul := len(local)
	for i := 0; i+1 < len(local); i += 2 {
		if local[i] == 0 && local[i+1] == 0 {
			nul = i
			break
		}
	}

	decoded, _, err := transform.Bytes(utf16LE.NewDecoder(), local[:nul])
	if err != nil {
		return "", xerrors.Errorf("utf-16 decode: %w", err)
	}
	return string(decoded), nil
}
