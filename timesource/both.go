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

	log "github.com/sirupsen/logrus"

	"github.com/ptpd1/ptpd/filter"
	"github.com/ptpd1/ptpd/phc"
	"github.com/ptpd1/ptpd/protocol"
	"github.com/ptpd1/ptpd/servo"
)

// bothResyncInterval is the "at most once per second" cap spec §4.3 puts
// on the secondary servo.
const bothResyncInterval = time.Second

// bothSource disciplines the NIC clock as the primary source (all of
// Source's methods act on it) while additionally steering the OS clock
// toward the NIC clock through a second, independent servo instance fed
// by PTP_SYS_OFFSET_EXTENDED reads — the kernel's COMPARETS-equivalent,
// returning a sys-time bracket around a PHC read and so a symmetric
// sys<->NIC delay and offset (spec §9's "C3's BOTH-mode helper holds a
// separate servo instance, passed by reference").
type bothSource struct {
	*nicSource

	devicePath string
	sys        *systemSource

	owd  filter.OWDFilter
	ofm  filter.OFMFilter
	servo *servo.PiServo

	lastResync time.Time
}

func newBothSource(iface string, noAdjust bool) (*bothSource, error) {
	primary, err := newNICSource(iface, noAdjust)
	if err != nil {
		return nil, err
	}
	devicePath, err := phc.IfaceToPHCDevice(iface)
	if err != nil {
		return nil, fmt.Errorf("resolving PHC device for %s: %w", iface, err)
	}
	sys, err := newSystemSource(noAdjust)
	if err != nil {
		return nil, err
	}
	return &bothSource{
		nicSource:  primary,
		devicePath: devicePath,
		sys:        sys,
		owd:        filter.OWDFilter{Stiffness: 4},
		servo:      servo.NewPiServo(servo.DefaultPiServoCfg()),
	}, nil
}

// Idle runs the secondary sys<->NIC resync at most once per second.
func (b *bothSource) Idle() {
	now := time.Now()
	if !b.lastResync.IsZero() && now.Sub(b.lastResync) < bothResyncInterval {
		return
	}
	b.lastResync = now

	result, err := phc.TimeAndOffsetFromDevice(b.devicePath, phc.MethodIoctlSysOffsetExtended)
	if err != nil {
		log.Debugf("timesource: BOTH-mode resync read failed: %v", err)
		return
	}

	nicTime := protocol.FromTime(result.PHCTime)
	sysTime := protocol.FromTime(result.SysTime)
	halfDelay := protocol.FromDuration(result.Delay / 2)

	owd := b.owd.Sample(halfDelay, nicTime, sysTime)
	offset := b.ofm.Sample(owd, nicTime, sysTime)

	adjPPB, state := b.servo.Sample(offset)
	switch state {
	case servo.StateJump:
		if err := b.sys.SetTime(protocol.Sub(sysTime, offset)); err != nil {
			log.Warningf("timesource: BOTH-mode secondary step failed: %v", err)
			return
		}
		b.servo.Reset()
		b.owd.Reset()
		b.ofm.Reset()
	default:
		if err := b.sys.AdjTime(adjPPB, offset); err != nil {
			log.Warningf("timesource: BOTH-mode secondary slew failed: %v", err)
		}
	}
}

// Close releases both the NIC device and the secondary system clock's
// resources (the latter holds none today, but Close is forwarded for
// symmetry and future-proofing against a source that does).
func (b *bothSource) Close() error {
	if err := b.nicSource.Close(); err != nil {
		return err
	}
	return b.sys.Close()
}
