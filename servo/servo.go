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

// Package servo implements the PI clock servo: the step-vs-slew decision
// and the proportional-integral controller that turns a filtered offset
// from master into a frequency adjustment.
package servo

// State reports what the last Sample call decided the caller should do.
type State uint8

// Servo states. Unlike the teacher's v2 PiServo (which bootstraps through
// StateInit/StateFilter while it accumulates enough samples to estimate
// frequency), this servo has only two live outcomes: step the clock, or
// apply a slew.
const (
	// StateInit is the zero value; Sample never returns it.
	StateInit State = iota
	// StateJump means the offset carried a nonzero seconds component and
	// stepping is permitted: the caller must step the clock and call
	// Reset before the next Sample.
	StateJump
	// StateLocked means the returned adjustment should be applied via
	// the time source's frequency-adjust path.
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateJump:
		return "JUMP"
	case StateLocked:
		return "LOCKED"
	default:
		return "INIT"
	}
}

// MaxFreqPPB is ADJ_FREQ_MAX: the largest frequency adjustment, in parts
// per billion, the servo will ever request. The canonical IEEE 1588-2002
// value of 5,120,000 ppb was found insufficient under host load (see
// spec §4.6/§9); this implementation carries the corrected 512,000,000.
const MaxFreqPPB = 512000000
