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

// HeaderLength is the fixed on-wire length of MsgHeader.
const HeaderLength = 40

// SubdomainNameLength is the fixed width of the subdomain name field.
const SubdomainNameLength = 16

// MessageType identifies which of the five v1 message bodies follows the
// header.
type MessageType uint8

// Message types per IEEE 1588-2002 §7.2.
const (
	MessageSync MessageType = iota
	MessageDelayReq
	MessageFollowUp
	MessageDelayResp
	MessageManagement
)

func (m MessageType) String() string {
	switch m {
	case MessageSync:
		return "Sync"
	case MessageDelayReq:
		return "Delay-Req"
	case MessageFollowUp:
		return "Follow-Up"
	case MessageDelayResp:
		return "Delay-Resp"
	case MessageManagement:
		return "Management"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(m))
	}
}

// Control is the header's "control" byte, a second, coarser-grained
// discriminant historically used by hardware filters that can't inspect
// messageType.
type Control uint8

// Control field values, mirroring messageType one-for-one except for the
// catch-all "other" bucket.
const (
	ControlSync       Control = 0
	ControlDelayReq   Control = 1
	ControlFollowUp   Control = 2
	ControlDelayResp  Control = 3
	ControlManagement Control = 4
	ControlOther      Control = 5
)

// Header flag bits.
const (
	// FlagAssist signals that a Follow-Up carrying the precise origin
	// timestamp will follow this Sync.
	FlagAssist uint16 = 1 << 1
	// FlagSyncBurst marks a Sync sent as part of a burst; a port ignores
	// these unless burst mode is explicitly enabled (see the daemon
	// package's Config.BurstEnabled).
	FlagSyncBurst uint16 = 1 << 2
)

// Header is the 40-byte MsgHeader common to every v1 message.
type Header struct {
	VersionPTP      uint16
	VersionNetwork  uint16
	SubdomainName   [SubdomainNameLength]byte
	MessageType     MessageType
	SourceCommTech  CommTechnology
	SourceUUID      UUID
	SourcePortID    uint16
	SequenceID      uint16
	Control         Control
	reserved        uint8
	Flags           uint16
	reserved2       [4]byte
}

// SourceIdentity returns the header's source as a PortIdentity.
func (h *Header) SourceIdentity() PortIdentity {
	return PortIdentity{CommTechnology: h.SourceCommTech, UUID: h.SourceUUID, PortID: h.SourcePortID}
}

// SetSequence implements Packet.
func (h *Header) SetSequence(seq uint16) {
	h.SequenceID = seq
}

// Sequence returns the header's sequence ID.
func (h *Header) Sequence() uint16 {
	return h.SequenceID
}

// GetHeader implements Packet.
func (h *Header) GetHeader() *Header {
	return h
}

// MessageTypeOf implements the non-pointer part of Packet for embedders
// that want the header's messageType field as the packet's type.
func (h *Header) MessageTypeOf() MessageType {
	return h.MessageType
}

func packHeader(buf *bytes.Buffer, h *Header) error {
	fields := []any{
		h.VersionPTP,
		h.VersionNetwork,
		h.SubdomainName,
		uint8(h.MessageType),
		uint8(h.SourceCommTech),
		h.SourceUUID,
		h.SourcePortID,
		h.SequenceID,
		uint8(h.Control),
		h.reserved,
		h.Flags,
		h.reserved2,
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.BigEndian, f); err != nil {
			return fmt.Errorf("packing header: %w", err)
		}
	}
	return nil
}

func unpackHeader(r *bytes.Reader, h *Header) error {
	var msgType, commTech, control uint8
	fields := []any{
		&h.VersionPTP,
		&h.VersionNetwork,
		&h.SubdomainName,
		&msgType,
		&commTech,
		&h.SourceUUID,
		&h.SourcePortID,
		&h.SequenceID,
		&control,
		&h.reserved,
		&h.Flags,
		&h.reserved2,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return fmt.Errorf("unpacking header: %w", err)
		}
	}
	h.MessageType = MessageType(msgType)
	h.SourceCommTech = CommTechnology(commTech)
	h.Control = Control(control)
	return nil
}
