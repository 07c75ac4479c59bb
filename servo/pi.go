/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package servo

import (
	log "github.com/sirupsen/logrus"

	"github.com/ptpd1/ptpd/protocol"
)

// PiServoCfg carries the PI servo's attenuation coefficients and the two
// policy flags that gate stepping.
type PiServoCfg struct {
	// AP and AI are the proportional and integral attenuation
	// coefficients ("a_p"/"a_i"); values below 1 are coerced up to 1 to
	// avoid division by zero.
	AP int64
	AI int64
	// NoAdjust disables actually applying any adjustment; Sample still
	// computes and returns one (monitor-only mode).
	NoAdjust bool
	// NoResetClock disables stepping: a seconds-magnitude offset is
	// absorbed by saturating the frequency adjustment instead.
	NoResetClock bool
}

// DefaultPiServoCfg returns the spec's default coefficients.
func DefaultPiServoCfg() PiServoCfg {
	return PiServoCfg{AP: 10, AI: 1000}
}

func (c *PiServoCfg) coerce() {
	if c.AP < 1 {
		c.AP = 1
	}
	if c.AI < 1 {
		c.AI = 1
	}
}

// PiServo is the two-path clock servo of spec §4.6: a seconds-path
// step-or-saturate decision, and a sub-second proportional-integral
// controller whose accumulated drift term never exceeds MaxFreqPPB.
type PiServo struct {
	cfg   PiServoCfg
	drift int64
}

// NewPiServo constructs a PiServo with coefficients coerced into range.
func NewPiServo(cfg PiServoCfg) *PiServo {
	cfg.coerce()
	return &PiServo{cfg: cfg}
}

// Reset clears the accumulated drift (the servo's I term), mirroring
// initClock zeroing observed_drift on every re-entry to SLAVE/INITIALIZING.
func (s *PiServo) Reset() {
	s.drift = 0
}

// Drift returns the current accumulated drift term (observed_drift),
// primarily for stats display.
func (s *PiServo) Drift() int64 {
	return s.drift
}

// Sample runs one updateClock step given the filtered offset from
// master, and returns the frequency adjustment (ppb) the caller should
// apply via the time source, plus the resulting State.
//
// For StateJump the returned adjustment is always zero: the caller is
// expected to step the clock by -offset and call Reset, per updateClock's
// adjTimeOffset+initClock pair.
func (s *PiServo) Sample(offset protocol.TimeInternal) (adjPPB int64, state State) {
	if offset.Seconds != 0 {
		if !s.cfg.NoResetClock {
			return 0, StateJump
		}
		adj := int64(MaxFreqPPB)
		if offset.Nanoseconds <= 0 {
			adj = -adj
		}
		log.Debugf("servo: seconds-magnitude offset %ds, saturating to %d ppb", offset.Seconds, -adj)
		return -adj, StateLocked
	}

	s.cfg.coerce()
	s.drift += int64(offset.Nanoseconds) / s.cfg.AI
	if s.drift > MaxFreqPPB {
		s.drift = MaxFreqPPB
	} else if s.drift < -MaxFreqPPB {
		s.drift = -MaxFreqPPB
	}

	adj := int64(offset.Nanoseconds)/s.cfg.AP + s.drift
	log.Debugf("servo: offset %dns drift %d adj %d", offset.Nanoseconds, s.drift, -adj)
	return -adj, StateLocked
}
