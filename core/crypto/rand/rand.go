// rand.go - cryptographically secure randomness helpers.
// Copyright (C) 2017  Yawning Angel.
// Copyright (C) 2020-3 adapted for the subscriber-group key distributor.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package rand provides randomness helpers used to jitter the
// distributor's rekey timer and to generate ephemeral key material.
package rand

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"time"
)

// Reader is the package's entropy source. It is a var so tests can
// substitute a deterministic reader.
var Reader = rand.Reader

// Jitter returns base plus a uniformly distributed random duration in
// [0, spread). It's used for spec's reKeyRandomize: the periodic rekey
// timer is deliberately not made perfectly periodic so that many
// key-makers started at the same time don't all rekey in lockstep.
func Jitter(base, spread time.Duration) time.Duration {
	if spread <= 0 {
		return base
	}
	var b [8]byte
	if _, err := io.ReadFull(Reader, b[:]); err != nil {
		return base
	}
	n := binary.BigEndian.Uint64(b[:]) % uint64(spread)
	return base + time.Duration(n)
}
