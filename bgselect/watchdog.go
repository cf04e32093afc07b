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

package bgselect

import (
	"fmt"

	"github.com/coreos/go-systemd/daemon"
)

// ArmWatchdog tells systemd (if the process is supervised and a
// watchdog interval was configured on the unit) about the timeout
// carried by the chosen record, and signals readiness. It is a no-op,
// returning (false, nil), outside of a systemd-supervised process —
// LoadConfig itself never calls this, since arming the post-handoff
// watchdog is the caller's concern once it has accepted the decision.
func ArmWatchdog(params LoaderParams) (bool, error) {
	state := fmt.Sprintf("READY=1\nWATCHDOG_USEC=%d", uint64(params.TimeoutSec)*1e6)
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		return sent, fmt.Errorf("bgselect: notify systemd watchdog: %w", err)
	}
	return sent, nil
}
