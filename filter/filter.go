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

// Package filter implements the two single-pole IIR filters that turn raw
// Sync/Delay-Req/Delay-Resp timestamps into a smoothed one-way delay and
// offset from master.
package filter

import "github.com/ptpd1/ptpd/protocol"

// abs32 avoids importing math for a single int32 absolute value.
func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// OWDFilter is the one-way-delay filter: a variable-order single-pole IIR
// whose order (s_exp) ramps up from 1 toward 1<<stiffness on every sample,
// and is capped below that to avoid overflowing the fixed-point
// accumulator.
type OWDFilter struct {
	// Stiffness is the configured filter order exponent ("s" in the
	// original, -filterstiffness on the CLI), 0-6 per spec §6.
	Stiffness int16

	sExp     int32
	nsecPrev int32
	y        int32
}

// Reset clears the filter to its post-initClock state.
func (f *OWDFilter) Reset() {
	f.sExp = 0
	f.nsecPrev = 0
}

// OneWayDelay is the filter's current smoothed estimate.
func (f *OWDFilter) OneWayDelay() protocol.TimeInternal {
	return protocol.TimeInternal{Nanoseconds: f.y}
}

// Sample folds in one (send, recv) pair for a Delay-Req/Delay-Resp round
// trip, given the already-computed master-to-slave delay, and returns the
// filtered one-way delay. masterToSlaveDelay and the send/recv pair
// together reproduce updateDelay's slave_to_master_delay and combined
// one_way_delay calculation.
func (f *OWDFilter) Sample(masterToSlaveDelay, sendTime, recvTime protocol.TimeInternal) protocol.TimeInternal {
	slaveToMasterDelay := protocol.Sub(recvTime, sendTime)
	owd := protocol.Add(masterToSlaveDelay, slaveToMasterDelay)
	owd.Seconds /= 2
	owd.Nanoseconds /= 2

	if owd.Seconds != 0 {
		// Cannot filter across a second boundary; the clock is far off
		// and only a step will fix it. Clear the filter and pass the
		// unfiltered (and likely meaningless) value through.
		f.Reset()
		return owd
	}

	s := f.Stiffness
	for abs32(f.y)>>uint(31-s) != 0 {
		s--
	}

	switch {
	case f.sExp < 1:
		f.sExp = 1
	case f.sExp < 1<<uint(s):
		f.sExp++
	case f.sExp > 1<<uint(s):
		f.sExp = 1 << uint(s)
	}

	f.y = (f.sExp-1)*f.y/f.sExp + (owd.Nanoseconds/2+f.nsecPrev/2)/f.sExp
	f.nsecPrev = owd.Nanoseconds
	owd.Nanoseconds = f.y
	return owd
}

// OFMFilter is the offset-from-master filter: a fixed two-tap average of
// the current and previous sample.
type OFMFilter struct {
	nsecPrev int32
	y        int32
}

// Reset clears the filter's history, as initClock does to owd_filt but
// OFM's own nsec_prev is only ever cleared on a seconds-magnitude sample
// (see Sample below); exposed for symmetry and for servo re-init.
func (f *OFMFilter) Reset() {
	f.nsecPrev = 0
	f.y = 0
}

// Sample folds in one Sync/Follow-Up pair given the already-computed
// one-way delay, and returns the filtered offset from master.
func (f *OFMFilter) Sample(oneWayDelay, sendTime, recvTime protocol.TimeInternal) protocol.TimeInternal {
	masterToSlaveDelay := protocol.Sub(recvTime, sendTime)
	offset := protocol.Sub(masterToSlaveDelay, oneWayDelay)

	if offset.Seconds != 0 {
		f.nsecPrev = 0
		return offset
	}

	f.y = offset.Nanoseconds/2 + f.nsecPrev/2
	f.nsecPrev = offset.Nanoseconds
	offset.Nanoseconds = f.y
	return offset
}
