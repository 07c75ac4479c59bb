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

// Package phc talks to a Linux PTP Hardware Clock device (/dev/ptpN):
// reading its time, disciplining its frequency and offset, and taking
// cross-timestamps against the system clock.
package phc

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultMaxClockFreqPPB is the frequency tolerance assumed for a PHC
// that reports none of its own. Value from linuxptp's clockadj.c.
const DefaultMaxClockFreqPPB = 500000.0

// ppbPerTimexPPM converts PPB to the ppm-with-16-bit-fraction unit
// clock_adjtime(2) wants in struct timex's Freq field.
const ppbPerTimexPPM = 65.536

// timex mode bits from linux/timex.h; only the ones this package issues.
const (
	timexModeFrequency uint32 = 0x0002
	timexModeSetOffset uint32 = 0x0100
	timexModeNano      uint32 = 0x2000
)

// ioctl request numbers for the PTP character device, as encoded by
// PTP_CLK_MAGIC('=') in linux/ptp_clock.h. These are fixed values on every
// architecture Go targets for Linux; hand-encoded here rather than pulled
// in through a request-number-building helper package.
const (
	ioctlClockGetcaps      uintptr = 0x80503d01 // PTP_CLOCK_GETCAPS
	ioctlSysOffsetExtended uintptr = 0xc4c03d09 // PTP_SYS_OFFSET_EXTENDED
)

const maxOffsetSamples = 25

// hwTimestamp mirrors struct ptp_clock_time from linux/ptp_clock.h; field
// order/types/sizes must match the kernel ABI.
type hwTimestamp struct {
	sec      int64
	nsec     uint32
	reserved uint32
}

func (t hwTimestamp) Time() time.Time { return time.Unix(t.sec, int64(t.nsec)) }

// clockCaps mirrors struct ptp_clock_caps from linux/ptp_clock.h; only the
// fields this package reads are named, the rest pads out the ABI layout.
type clockCaps struct {
	maxAdj            int32
	nAlarm            int32
	nExtTS            int32
	nPerOut           int32
	pps               int32
	nPins             int32
	crossTimestamping int32
	adjustPhase       int32
	_                 [12]int32
}

func (c *clockCaps) maxAdjPPB() float64 {
	if c == nil || c.maxAdj == 0 {
		return DefaultMaxClockFreqPPB
	}
	return float64(c.maxAdj)
}

// sysOffsetExtended mirrors struct ptp_sys_offset_extended from
// linux/ptp_clock.h: the kernel fills in nSamples (system-before, phc,
// system-after) triples so the caller can pick the tightest bracket.
type sysOffsetExtended struct {
	nSamples uint32
	_        [3]uint32
	ts       [maxOffsetSamples][3]hwTimestamp
}

// NICClock is an open handle to a PTP hardware clock device node.
type NICClock struct {
	file *os.File
}

// FromFile wraps an already-open PHC device file as a NICClock.
func FromFile(file *os.File) *NICClock { return &NICClock{file: file} }

// File returns the underlying device file.
func (c *NICClock) File() *os.File { return c.file }

func (c *NICClock) fd() uintptr { return c.file.Fd() }

// clockID derives the dynamic clockid for this device's fd, per
// clock_gettime(3)'s FD_TO_CLOCKID macro.
func (c *NICClock) clockID() int32 { return int32((int(^c.fd()) << 3) | 3) }

// Time reads the PHC via clock_gettime on its derived clockid.
func (c *NICClock) Time() (time.Time, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(c.clockID(), &ts); err != nil {
		return time.Time{}, fmt.Errorf("phc: clock_gettime on %s: %w", c.file.Name(), err)
	}
	return time.Unix(ts.Unix()), nil
}

func (c *NICClock) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, c.fd(), req, uintptr(arg))
	if errno != 0 {
		return fmt.Errorf("phc: ioctl %#x on %s: %w", req, c.file.Name(), errno)
	}
	return nil
}

func (c *NICClock) caps() (*clockCaps, error) {
	var caps clockCaps
	if err := c.ioctl(ioctlClockGetcaps, unsafe.Pointer(&caps)); err != nil {
		return nil, fmt.Errorf("reading PHC capabilities on %s: %w", c.file.Name(), err)
	}
	return &caps, nil
}

// MaxFreqAdjPPB returns the clock's maximum frequency adjustment, in PPB.
func (c *NICClock) MaxFreqAdjPPB() (float64, error) {
	caps, err := c.caps()
	if err != nil {
		return 0, err
	}
	return caps.maxAdjPPB(), nil
}

// AdjFreq slews the clock frequency by freqPPB, parts per billion.
func (c *NICClock) AdjFreq(freqPPB float64) error {
	tx := &unix.Timex{Modes: timexModeFrequency, Freq: int64(freqPPB * ppbPerTimexPPM)}
	if _, err := clockAdjtime(c.clockID(), tx); err != nil {
		return fmt.Errorf("adjusting PHC frequency on %s: %w", c.file.Name(), err)
	}
	return nil
}

// Step moves the clock by step immediately.
func (c *NICClock) Step(step time.Duration) error {
	sign := time.Duration(1)
	if step < 0 {
		sign = -1
		step = -step
	}
	tx := &unix.Timex{Modes: timexModeSetOffset | timexModeNano}
	tx.Time.Sec = int64(sign) * int64(step/time.Second)
	tx.Time.Usec = int64(sign) * int64(step%time.Second)
	// the timeval sum must keep tv_usec non-negative.
	if tx.Time.Usec < 0 {
		tx.Time.Sec--
		tx.Time.Usec += 1000000000
	}
	if _, err := clockAdjtime(c.clockID(), tx); err != nil {
		return fmt.Errorf("stepping PHC on %s: %w", c.file.Name(), err)
	}
	return nil
}

func (c *NICClock) readSysOffsetExtended(nsamples int) (*sysOffsetExtended, error) {
	res := &sysOffsetExtended{nSamples: uint32(nsamples)}
	if err := c.ioctl(ioctlSysOffsetExtended, unsafe.Pointer(res)); err != nil {
		return nil, fmt.Errorf("reading extended sys offset on %s: %w", c.file.Name(), err)
	}
	return res, nil
}

// clockAdjtime issues CLOCK_ADJTIME, reading a clock's timex state when
// tx.Modes is zero, or applying the requested modes otherwise.
func clockAdjtime(clockid int32, tx *unix.Timex) (state int, err error) {
	r0, _, errno := unix.Syscall(unix.SYS_CLOCK_ADJTIME, uintptr(clockid), uintptr(unsafe.Pointer(tx)), 0)
	if errno != 0 {
		return int(r0), errno
	}
	return int(r0), nil
}
