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

package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// SyncLength and DelayReqLength are the fixed on-wire message lengths
// (header + body) for Sync and Delay-Req, which share a body layout.
const (
	SyncLength     = 124
	DelayReqLength = 124
	syncBodyLength = SyncLength - HeaderLength
	syncReserved   = 31
)

// SyncBody is the payload shared by Sync and Delay-Req messages: the
// origin timestamp plus the sender's view of the grandmaster, its own
// clock quality, and its parent, all inputs to BMC and to the offset/
// delay filters.
type SyncBody struct {
	OriginTimestamp TimeRepresentation

	EpochNumber      uint16
	CurrentUTCOffset int16

	GrandmasterCommTechnology  CommTechnology
	GrandmasterClockUUID      UUID
	GrandmasterPortID         uint16
	GrandmasterSequenceID     uint16
	GrandmasterClockStratum   uint8
	GrandmasterClockIdentifier [4]byte
	GrandmasterClockVariance  int16
	GrandmasterPreferred      bool
	GrandmasterIsBoundaryClock bool

	SyncInterval int8

	LocalClockVariance int16
	LocalStepsRemoved  uint16
	LocalClockStratum  uint8
	LocalClockIdentifier [4]byte

	ParentCommTechnology         CommTechnology
	ParentUUID                  UUID
	ParentPortID                 uint16
	ParentLastSyncSequenceNumber uint16

	reserved [syncReserved]byte
}

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func (b *SyncBody) pack(buf *bytes.Buffer) error {
	fields := []any{
		b.OriginTimestamp.Seconds,
		b.OriginTimestamp.Nanoseconds,
		b.EpochNumber,
		b.CurrentUTCOffset,
		uint8(b.GrandmasterCommTechnology),
		b.GrandmasterClockUUID,
		b.GrandmasterPortID,
		b.GrandmasterSequenceID,
		b.GrandmasterClockStratum,
		b.GrandmasterClockIdentifier,
		b.GrandmasterClockVariance,
		boolToByte(b.GrandmasterPreferred),
		boolToByte(b.GrandmasterIsBoundaryClock),
		b.SyncInterval,
		b.LocalClockVariance,
		b.LocalStepsRemoved,
		b.LocalClockStratum,
		b.LocalClockIdentifier,
		uint8(b.ParentCommTechnology),
		b.ParentUUID,
		b.ParentPortID,
		b.ParentLastSyncSequenceNumber,
		b.reserved,
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.BigEndian, f); err != nil {
			return err
		}
	}
	return nil
}

func (b *SyncBody) unpack(r *bytes.Reader) error {
	var gPreferred, gBoundary, gCommTech, pCommTech uint8
	fields := []any{
		&b.OriginTimestamp.Seconds,
		&b.OriginTimestamp.Nanoseconds,
		&b.EpochNumber,
		&b.CurrentUTCOffset,
		&gCommTech,
		&b.GrandmasterClockUUID,
		&b.GrandmasterPortID,
		&b.GrandmasterSequenceID,
		&b.GrandmasterClockStratum,
		&b.GrandmasterClockIdentifier,
		&b.GrandmasterClockVariance,
		&gPreferred,
		&gBoundary,
		&b.SyncInterval,
		&b.LocalClockVariance,
		&b.LocalStepsRemoved,
		&b.LocalClockStratum,
		&b.LocalClockIdentifier,
		&pCommTech,
		&b.ParentUUID,
		&b.ParentPortID,
		&b.ParentLastSyncSequenceNumber,
		&b.reserved,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return err
		}
	}
	b.GrandmasterCommTechnology = CommTechnology(gCommTech)
	b.GrandmasterPreferred = gPreferred != 0
	b.GrandmasterIsBoundaryClock = gBoundary != 0
	b.ParentCommTechnology = CommTechnology(pCommTech)
	return nil
}

// Sync is the periodic time-carrying message issued by a master.
type Sync struct {
	Header
	SyncBody
}

var _ Packet = (*Sync)(nil)

// MessageType implements Packet.
func (s *Sync) MessageType() MessageType { return MessageSync }

func (s *Sync) bodyBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.SyncBody.pack(&buf); err != nil {
		return nil, err
	}
	if buf.Len() != syncBodyLength {
		return nil, fmt.Errorf("sync body length %d, want %d", buf.Len(), syncBodyLength)
	}
	return buf.Bytes(), nil
}

func (s *Sync) unpackBody(r *bytes.Reader) error {
	return s.SyncBody.unpack(r)
}
