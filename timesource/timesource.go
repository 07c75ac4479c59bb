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

// Package timesource abstracts the clock the servo disciplines, behind a
// single closed set of seven variants (spec §4.3/§9: "Dynamic dispatch on
// time source is best expressed as a tagged variant with a switch in each
// operation").
package timesource

import (
	"fmt"

	"github.com/ptpd1/ptpd/protocol"
)

// Variant names one of the seven time-source modes a port can select at
// startup.
type Variant uint8

// Time source variants per spec §4.3.
const (
	// System disciplines only the OS clock.
	System Variant = iota
	// Nic disciplines only the NIC hardware clock.
	Nic
	// Both disciplines the NIC clock as the primary source and runs a
	// secondary servo that steers the OS clock to track the NIC clock.
	Both
	// SystemAssisted disciplines the OS clock but takes RX/TX
	// timestamps from the NIC where available.
	SystemAssisted
	// SystemKernelHW disciplines the OS clock using kernel hardware RX/TX
	// timestamps (SO_TIMESTAMPING with hardware reporting).
	SystemKernelHW
	// SystemKernelSW disciplines the OS clock using kernel software
	// timestamps only.
	SystemKernelSW
	// NicOnly disciplines the NIC clock and takes no OS clock timestamps
	// at all.
	NicOnly
)

func (v Variant) String() string {
	switch v {
	case System:
		return "SYSTEM"
	case Nic:
		return "NIC"
	case Both:
		return "BOTH"
	case SystemAssisted:
		return "SYSTEM_ASSISTED"
	case SystemKernelHW:
		return "SYSTEM_KERNEL_HW"
	case SystemKernelSW:
		return "SYSTEM_KERNEL_SW"
	case NicOnly:
		return "NIC_ONLY"
	default:
		return fmt.Sprintf("Variant(%d)", uint8(v))
	}
}

// Source is the contract every time-source variant implements (spec
// §4.3).
type Source interface {
	// GetTime returns the disciplined clock's current time.
	GetTime() (protocol.TimeInternal, error)
	// SetTime steps the clock to t.
	SetTime(t protocol.TimeInternal) error
	// AdjTime requests a frequency adjustment of adjPPB parts per
	// billion; a variant that cannot slew falls back to stepping by
	// offset.
	AdjTime(adjPPB int64, offset protocol.TimeInternal) error
	// AdjTimeOffset steps the clock by offset, used when the servo
	// decides to jump.
	AdjTimeOffset(offset protocol.TimeInternal) error
	// PushReceiveTime records ts as the RX timestamp for the event
	// packet identified by (uuid, seqID).
	PushReceiveTime(uuid protocol.UUID, seqID uint16, ts protocol.TimeInternal)
	// GetReceiveTime looks up and consumes the RX timestamp for
	// (uuid, seqID); it is single-use.
	GetReceiveTime(uuid protocol.UUID, seqID uint16) (protocol.TimeInternal, bool)
	// SetSendTime records the TX timestamp of the most recently sent
	// event packet.
	SetSendTime(ts protocol.TimeInternal)
	// GetSendTime returns and consumes the TX timestamp of the most
	// recent outgoing event packet, if available.
	GetSendTime() (protocol.TimeInternal, bool)
	// Idle is invoked by the event loop whenever it wakes with no
	// socket activity; BOTH mode uses it to run its secondary-servo
	// resync, bounded to at most once per second.
	Idle()
	// Close releases any resources (file descriptors) the source holds.
	Close() error
}

// rxFIFODepth is the bounded RX timestamp queue's capacity (spec §4.3).
const rxFIFODepth = 10

type rxEntry struct {
	uuid  protocol.UUID
	seqID uint16
	ts    protocol.TimeInternal
	valid bool
}

// rxFIFO is the bounded, oldest-drop RX timestamp queue. Overflow policy:
// the oldest slot is overwritten and the write index bumps, so an
// unclaimed timestamp is never silently replaced by one for a different
// packet at the same index without that index itself moving on.
type rxFIFO struct {
	entries [rxFIFODepth]rxEntry
	next    int
}

func (f *rxFIFO) push(uuid protocol.UUID, seqID uint16, ts protocol.TimeInternal) {
	f.entries[f.next] = rxEntry{uuid: uuid, seqID: seqID, ts: ts, valid: true}
	f.next = (f.next + 1) % rxFIFODepth
}

func (f *rxFIFO) get(uuid protocol.UUID, seqID uint16) (protocol.TimeInternal, bool) {
	for i := range f.entries {
		e := &f.entries[i]
		if e.valid && e.uuid == uuid && e.seqID == seqID {
			e.valid = false
			return e.ts, true
		}
	}
	return protocol.TimeInternal{}, false
}

// txSlot is the single-slot TX timestamp buffer (the protocol guarantees
// at most one in-flight event packet per port).
type txSlot struct {
	ts    protocol.TimeInternal
	valid bool
}

func (t *txSlot) set(ts protocol.TimeInternal) {
	*t = txSlot{ts: ts, valid: true}
}

func (t *txSlot) get() (protocol.TimeInternal, bool) {
	if !t.valid {
		return protocol.TimeInternal{}, false
	}
	ts := t.ts
	t.valid = false
	return ts, true
}
