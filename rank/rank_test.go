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

package rank_test

import (
	"math/rand"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/efibootguard/bgselect/envdata"
	"github.com/efibootguard/bgselect/rank"
)

func Test(t *testing.T) { TestingT(t) }

type rankSuite struct{}

var _ = Suite(&rankSuite{})

func noBootVolume(int) bool { return false }

func (s *rankSuite) TestEmpty(c *C) {
	r := rank.New(noBootVolume)
	c.Check(r.Best(), IsNil)
	c.Check(r.SecondBest(), IsNil)
}

func (s *rankSuite) TestSingleInsert(c *C) {
	r := rank.New(noBootVolume)
	r.Insert(rank.Candidate{VolumeIndex: 0, Record: envdata.EnvData{UState: envdata.OK}})
	c.Assert(r.Best(), NotNil)
	c.Check(r.Best().VolumeIndex, Equals, 0)
	c.Check(r.SecondBest(), IsNil)
}

func (s *rankSuite) TestRevisionWins(c *C) {
	r := rank.New(noBootVolume)
	r.Insert(rank.Candidate{VolumeIndex: 0, Record: envdata.EnvData{Revision: 1, UState: envdata.OK}})
	r.Insert(rank.Candidate{VolumeIndex: 1, Record: envdata.EnvData{Revision: 2, UState: envdata.OK}})
	c.Check(r.Best().VolumeIndex, Equals, 1)
	c.Check(r.SecondBest().VolumeIndex, Equals, 0)
}

func (s *rankSuite) TestInProgressLoses(c *C) {
	r := rank.New(noBootVolume)
	r.Insert(rank.Candidate{VolumeIndex: 0, Record: envdata.EnvData{Revision: 2, InProgress: 1, UState: envdata.OK}})
	r.Insert(rank.Candidate{VolumeIndex: 1, Record: envdata.EnvData{Revision: 1, UState: envdata.OK}})
	c.Check(r.Best().VolumeIndex, Equals, 1)
}

func (s *rankSuite) TestUStateRankBreaksRevisionTie(c *C) {
	r := rank.New(noBootVolume)
	r.Insert(rank.Candidate{VolumeIndex: 0, Record: envdata.EnvData{Revision: 1, UState: envdata.OK}})
	r.Insert(rank.Candidate{VolumeIndex: 1, Record: envdata.EnvData{Revision: 1, UState: envdata.Installed}})
	c.Check(r.Best().VolumeIndex, Equals, 1, Commentf("INSTALLED must be tried before OK at equal revision"))
}

func (s *rankSuite) TestOnBootVolumeTiebreak(c *C) {
	onBoot := func(v int) bool { return v == 1 }
	r := rank.New(onBoot)
	r.Insert(rank.Candidate{VolumeIndex: 0, Record: envdata.EnvData{Revision: 1, UState: envdata.OK}})
	r.Insert(rank.Candidate{VolumeIndex: 1, Record: envdata.EnvData{Revision: 1, UState: envdata.OK}})
	c.Check(r.Best().VolumeIndex, Equals, 1)
}

func (s *rankSuite) TestVolumeIndexFinalTiebreak(c *C) {
	r := rank.New(noBootVolume)
	r.Insert(rank.Candidate{VolumeIndex: 3, Record: envdata.EnvData{Revision: 1, UState: envdata.OK}})
	r.Insert(rank.Candidate{VolumeIndex: 1, Record: envdata.EnvData{Revision: 1, UState: envdata.OK}})
	c.Check(r.Best().VolumeIndex, Equals, 1)
}

// TestShuffleInvariance reinserts the same multiset of candidates in
// ten random orders and asserts the chosen best/second-best pair never
// changes, matching the original firmware test harness's ten-iteration
// shuffle sweep.
func (s *rankSuite) TestShuffleInvariance(c *C) {
	base := []rank.Candidate{
		{VolumeIndex: 0, Record: envdata.EnvData{Revision: 5, UState: envdata.OK}},
		{VolumeIndex: 1, Record: envdata.EnvData{Revision: 9, UState: envdata.Testing}},
		{VolumeIndex: 2, Record: envdata.EnvData{Revision: 9, UState: envdata.Installed}},
		{VolumeIndex: 3, Record: envdata.EnvData{Revision: 1, InProgress: 1, UState: envdata.OK}},
	}
	onBoot := func(v int) bool { return v == 2 }

	rnd := rand.New(rand.NewSource(1))

	var wantBest, wantSecond int
	for iter := 0; iter < 10; iter++ {
		shuffled := append([]rank.Candidate(nil), base...)
		rnd.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		r := rank.New(onBoot)
		for _, cand := range shuffled {
			r.Insert(cand)
		}

		if iter == 0 {
			wantBest = r.Best().VolumeIndex
			wantSecond = r.SecondBest().VolumeIndex
			continue
		}
		c.Check(r.Best().VolumeIndex, Equals, wantBest, Commentf("iteration %d", iter))
		c.Check(r.SecondBest().VolumeIndex, Equals, wantSecond, Commentf("iteration %d", iter))
	}
}
