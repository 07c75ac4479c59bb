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

package phc

import (
	"fmt"
	"os"
	"time"
)

// ReadMethod selects how TimeAndOffsetFromDevice cross-timestamps a PHC
// against the system clock.
type ReadMethod string

// Supported read methods.
const (
	MethodSyscallClockGettime    ReadMethod = "syscall_clock_gettime"
	MethodIoctlSysOffsetExtended ReadMethod = "ioctl_PTP_SYS_OFFSET_EXTENDED"
)

// ClockOffset is one cross-timestamp reading: the system and PHC times it
// was derived from, and the delay/offset between them.
type ClockOffset struct {
	SysTime time.Time
	PHCTime time.Time
	Delay   time.Duration
	Offset  time.Duration
}

const extendedSampleCount = 5

// TimeAndOffsetFromDevice reads a cross-timestamp between the PHC at
// devicePath and the system clock, using the given method.
func TimeAndOffsetFromDevice(devicePath string, method ReadMethod) (ClockOffset, error) {
	switch method {
	case MethodSyscallClockGettime:
		return offsetViaClockGettime(devicePath)
	case MethodIoctlSysOffsetExtended:
		return offsetViaSysOffsetExtended(devicePath)
	default:
		return ClockOffset{}, fmt.Errorf("unsupported PHC read method %q", method)
	}
}

func offsetViaClockGettime(devicePath string) (ClockOffset, error) {
	f, err := os.Open(devicePath)
	if err != nil {
		return ClockOffset{}, fmt.Errorf("opening %s: %w", devicePath, err)
	}
	defer f.Close()

	dev := FromFile(f)
	before := time.Now()
	phcTime, err := dev.Time()
	after := time.Now()
	if err != nil {
		return ClockOffset{}, err
	}
	return bracketOffset(before, phcTime, after), nil
}

func offsetViaSysOffsetExtended(devicePath string) (ClockOffset, error) {
	f, err := os.OpenFile(devicePath, os.O_RDWR, 0)
	if err != nil {
		return ClockOffset{}, fmt.Errorf("opening %s: %w", devicePath, err)
	}
	defer f.Close()

	dev := FromFile(f)
	ext, err := dev.readSysOffsetExtended(extendedSampleCount)
	if err != nil {
		return ClockOffset{}, err
	}
	return tightestBracket(ext), nil
}

// bracketOffset derives an offset from a single PHC read bracketed by two
// system clock reads (used when the kernel doesn't support
// PTP_SYS_OFFSET_EXTENDED and we fall back to plain clock_gettime).
func bracketOffset(before, phc, after time.Time) ClockOffset {
	interval := after.Sub(before)
	return ClockOffset{
		SysTime: before.Add(interval / 2),
		PHCTime: phc,
		Delay:   interval,
		Offset:  after.Sub(phc) - interval/2,
	}
}

// tightestBracket picks the kernel-provided (system-before, phc,
// system-after) triple with the shortest system-clock read interval,
// loosely following sysoff_estimate from ptp4l's sysoff.c.
func tightestBracket(ext *sysOffsetExtended) ClockOffset {
	best := tripleOffset(ext.ts[0])
	for i := 1; i < int(ext.nSamples); i++ {
		if sample := tripleOffset(ext.ts[i]); sample.Delay < best.Delay {
			best = sample
		}
	}
	return best
}

func tripleOffset(ts [3]hwTimestamp) ClockOffset {
	before, phc, after := ts[0].Time(), ts[1].Time(), ts[2].Time()
	interval := after.Sub(before)
	sysTime := before.Add(interval / 2)
	return ClockOffset{
		SysTime: sysTime,
		PHCTime: phc,
		Delay:   interval,
		Offset:  sysTime.Sub(phc),
	}
}
