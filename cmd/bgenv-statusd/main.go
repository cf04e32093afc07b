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

// Command bgenv-statusd runs the selector once at startup, arms the
// systemd watchdog for the chosen payload's timeout, and serves the
// resulting decision over HTTP so other services on the system (and
// operators debugging a failed boot) can see what the selector picked
// without parsing logs.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	efi "github.com/canonical/go-efilib"
	"github.com/gorilla/mux"

	"github.com/efibootguard/bgselect/bgselect"
	"github.com/efibootguard/bgselect/hostconfig"
	"github.com/efibootguard/bgselect/hostvol"
)

// decision is the JSON shape served at /v1/status. It is recomputed
// once, at startup: the status daemon reports the decision the
// selector already made and already armed the watchdog for, not a
// live re-evaluation of the partitions.
type decision struct {
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	PayloadPath   string `json:"payload_path,omitempty"`
	PayloadArgs   string `json:"payload_args,omitempty"`
	TimeoutSec    uint32 `json:"timeout_sec,omitempty"`
	WatchdogArmed bool   `json:"watchdog_armed"`
}

type statusServer struct {
	mu       sync.RWMutex
	decision decision
}

func (s *statusServer) set(d decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decision = d
}

func (s *statusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	d := s.decision
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if d.Status != bgselect.Success.String() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(d); err != nil {
		log.Printf("bgenv-statusd: encode status: %v", err)
	}
}

func newRouter(s *statusServer) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/status", s.handleStatus).Methods("GET")
	return r
}

func main() {
	configFile := flag.String("config", "/etc/bgenv.conf", "path to bgenvctl's ini config file")
	flag.Parse()

	cfg, err := hostconfig.Load(*configFile)
	if err != nil {
		log.Fatalf("bgenv-statusd: load config: %v", err)
	}

	dirs := partitionDirs(cfg)
	host := hostvol.NewDirectoryHost(dirs, 0)
	host.BootVolumeChecker = hostvol.NewEFIBootVolumeChecker(efiDevicePaths(dirs))

	logger := bgselect.NewLogger(log.New(os.Stderr, "bgenv-statusd: ", log.LstdFlags))
	params, status, loadErr := bgselect.LoadConfig(host, bgselect.WithLogger(logger))

	d := decision{Status: status.String()}
	if loadErr != nil {
		d.Error = loadErr.Error()
	} else {
		d.PayloadPath = params.PayloadPath
		d.PayloadArgs = params.PayloadOptions
		d.TimeoutSec = params.TimeoutSec
		if armed, werr := bgselect.ArmWatchdog(params); werr != nil {
			log.Printf("bgenv-statusd: arm watchdog: %v", werr)
		} else {
			d.WatchdogArmed = armed
		}
	}

	s := &statusServer{}
	s.set(d)

	log.Printf("bgenv-statusd: listening on %s, last decision: %s", cfg.StatusListenAddr, d.Status)
	if err := http.ListenAndServe(cfg.StatusListenAddr, newRouter(s)); err != nil {
		log.Fatalf("bgenv-statusd: serve: %v", err)
	}
}

// partitionDirs lists the subdirectories of cfg.ConfigPartsDir as the
// candidate config partition mount points, indexed in the order
// os.ReadDir returns them.
func partitionDirs(cfg hostconfig.Config) []string {
	ents, err := os.ReadDir(cfg.ConfigPartsDir)
	if err != nil {
		log.Printf("bgenv-statusd: list %q: %v", cfg.ConfigPartsDir, err)
		return nil
	}
	dirs := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(cfg.ConfigPartsDir, e.Name()))
		}
	}
	return dirs
}

// efiDevicePaths resolves each directory's underlying EFI device path
// for the EFIBootVolumeChecker wired into the host above. A directory
// whose device path can't be resolved (no EFI firmware, not its own
// partition, permissions) gets a nil entry, which simply never matches
// the firmware's current boot entry.
func efiDevicePaths(dirs []string) []efi.DevicePath {
	paths := make([]efi.DevicePath, len(dirs))
	for i, dir := range dirs {
		p, err := hostvol.DevicePathForDir(dir)
		if err != nil {
			log.Printf("bgenv-statusd: %v", err)
			continue
		}
		paths[i] = p
	}
	return paths
}
