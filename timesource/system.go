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

package timesource

import (
	"fmt"
	"time"
	"unsafe"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ptpd1/ptpd/protocol"
)

// ppbPerTimexPPM converts between the servo's PPB adjustments and the
// ppm-with-16-bit-fraction unit clock_adjtime(2) wants in struct timex's
// Freq field (2^16 = 65536 units per ppm).
const ppbPerTimexPPM = 65.536

// timex mode bits consumed below, from linux/timex.h; the rest of the
// ADJ_* vocabulary (status, TAI, time constant, ...) has no caller here.
const (
	timexModeFrequency uint32 = 0x0002
	timexModeSetOffset uint32 = 0x0100
	timexModeNano      uint32 = 0x2000
	timexModeTick      uint32 = 0x4000
)

// baseTickMicros is the kernel's nominal tick length; ADJ_TICK lets it
// slew by up to +/-10% (see kernel Documentation/timers/no_hz.rst and
// linux/kernel/time/ntp.c's tickadj bound), which is the basis for
// minTickMicros/maxTickMicros below.
const baseTickMicros = 10000

const (
	minTickMicros = baseTickMicros - baseTickMicros/10
	maxTickMicros = baseTickMicros + baseTickMicros/10
)

// kernelClockServo drives CLOCK_ADJTIME(2) for a single clockid on behalf
// of the PTPv1 servo: a frequency term scaled to the clock's own reported
// tolerance, plus a tick-length term that absorbs whatever the frequency
// term alone cannot reach.
type kernelClockServo struct {
	clockid int32
	maxPPB  float64
}

func newKernelClockServo(clockid int32) (kernelClockServo, error) {
	maxPPB, err := clockTolerancePPB(clockid)
	if err != nil {
		return kernelClockServo{}, err
	}
	return kernelClockServo{clockid: clockid, maxPPB: maxPPB}, nil
}

// step moves the clock by d immediately (ADJ_SETOFFSET).
func (k kernelClockServo) step(d time.Duration) error {
	sign := time.Duration(1)
	if d < 0 {
		sign = -1
		d = -d
	}
	tx := &unix.Timex{Modes: timexModeSetOffset | timexModeNano}
	tx.Time.Sec = int64(sign) * int64(d/time.Second)
	tx.Time.Usec = int64(sign) * int64(d%time.Second)
	// the timeval sum must keep tv_usec non-negative.
	if tx.Time.Usec < 0 {
		tx.Time.Sec--
		tx.Time.Usec += 1000000000
	}
	_, err := clockAdjtime(k.clockid, tx)
	return err
}

// slew applies adjPPB split across a frequency term (bounded by maxPPB)
// and, for whatever the frequency term overflows, a tick-length term.
func (k kernelClockServo) slew(adjPPB int64) error {
	freqTerm := adjPPB
	var tickMicros int64
	if k.maxPPB > 0 && float64(abs64(adjPPB)) > k.maxPPB {
		sign := int64(1)
		if adjPPB < 0 {
			sign = -1
		}
		freqTerm = sign * int64(k.maxPPB)
		overflow := adjPPB - freqTerm
		// overflow is in ppb; convert to a tick-length nudge in
		// microseconds around the nominal 10ms tick.
		tickMicros = baseTickMicros + overflow*baseTickMicros/1000000000
		if tickMicros < minTickMicros {
			tickMicros = minTickMicros
		} else if tickMicros > maxTickMicros {
			tickMicros = maxTickMicros
		}
	}
	tx := &unix.Timex{Modes: timexModeFrequency, Freq: int64(float64(freqTerm) * ppbPerTimexPPM)}
	if _, err := clockAdjtime(k.clockid, tx); err != nil {
		return fmt.Errorf("adjusting clock frequency: %w", err)
	}
	if tickMicros != 0 {
		tick := &unix.Timex{Modes: timexModeTick, Tick: tickMicros}
		if _, err := clockAdjtime(k.clockid, tick); err != nil {
			return fmt.Errorf("adjusting clock tick: %w", err)
		}
	}
	return nil
}

// clockAdjtime is the raw CLOCK_ADJTIME syscall: read the clock's timex
// state when tx.Modes is zero, or apply the requested modes otherwise.
func clockAdjtime(clockid int32, tx *unix.Timex) (state int, err error) {
	r0, _, errno := unix.Syscall(unix.SYS_CLOCK_ADJTIME, uintptr(clockid), uintptr(unsafe.Pointer(tx)), 0)
	if errno != 0 {
		return int(r0), errno
	}
	return int(r0), nil
}

// clockTolerancePPB reads the clock's maximum frequency adjustment in PPB,
// falling back to a conservative default when the kernel reports none.
func clockTolerancePPB(clockid int32) (float64, error) {
	tx := &unix.Timex{}
	if _, err := clockAdjtime(clockid, tx); err != nil {
		return 0, err
	}
	if tx.Tolerance == 0 {
		return 500000, nil
	}
	return float64(tx.Tolerance) / ppbPerTimexPPM, nil
}

// systemSource disciplines the OS realtime clock through a
// kernelClockServo (spec §4.3 "Frequency slewing on the OS clock").
type systemSource struct {
	noAdjust bool
	servo    kernelClockServo

	rx rxFIFO
	tx txSlot
}

func newSystemSource(noAdjust bool) (*systemSource, error) {
	servo, err := newKernelClockServo(unix.CLOCK_REALTIME)
	if err != nil {
		return nil, fmt.Errorf("querying system clock max frequency adjustment: %w", err)
	}
	return &systemSource{noAdjust: noAdjust, servo: servo}, nil
}

func (s *systemSource) GetTime() (protocol.TimeInternal, error) {
	return protocol.FromTime(time.Now()), nil
}

func (s *systemSource) SetTime(t protocol.TimeInternal) error {
	if s.noAdjust {
		return nil
	}
	log.Infof("timesource: stepping system clock to %v", t.Time())
	return s.servo.step(t.Time().Sub(time.Now()))
}

func (s *systemSource) AdjTimeOffset(offset protocol.TimeInternal) error {
	if s.noAdjust {
		return nil
	}
	return s.servo.step(-offset.Duration())
}

func (s *systemSource) AdjTime(adjPPB int64, _ protocol.TimeInternal) error {
	if s.noAdjust {
		return nil
	}
	return s.servo.slew(adjPPB)
}

func (s *systemSource) PushReceiveTime(uuid protocol.UUID, seqID uint16, ts protocol.TimeInternal) {
	s.rx.push(uuid, seqID, ts)
}

func (s *systemSource) GetReceiveTime(uuid protocol.UUID, seqID uint16) (protocol.TimeInternal, bool) {
	return s.rx.get(uuid, seqID)
}

func (s *systemSource) SetSendTime(ts protocol.TimeInternal) {
	s.tx.set(ts)
}

func (s *systemSource) GetSendTime() (protocol.TimeInternal, bool) {
	return s.tx.get()
}

func (s *systemSource) Idle() {}

func (s *systemSource) Close() error { return nil }

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
