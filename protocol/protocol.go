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
	"fmt"
)

// Packet is implemented by every v1 message type (Header plus a typed
// body). It mirrors the teacher's Packet interface (MessageType/
// SetSequence) so Bytes/FromBytes/DecodePacket can stay generic.
type Packet interface {
	MessageType() MessageType
	SetSequence(seq uint16)
	GetHeader() *Header
	bodyBytes() ([]byte, error)
	unpackBody(r *bytes.Reader) error
}

// Bytes packs p (header + body) into a contiguous big-endian buffer.
func Bytes(p Packet) ([]byte, error) {
	var buf bytes.Buffer
	if err := packHeader(&buf, p.GetHeader()); err != nil {
		return nil, err
	}
	body, err := p.bodyBytes()
	if err != nil {
		return nil, fmt.Errorf("packing %s body: %w", p.MessageType(), err)
	}
	buf.Write(body)
	return buf.Bytes(), nil
}

// FromBytes unpacks rawBytes into p, which must already be the correct
// concrete type for the message's header.messageType (use DecodePacket
// when the type is not known ahead of time).
func FromBytes(rawBytes []byte, p Packet) error {
	if len(rawBytes) < HeaderLength {
		return fmt.Errorf("short message: %d bytes, need at least %d", len(rawBytes), HeaderLength)
	}
	r := bytes.NewReader(rawBytes)
	if err := unpackHeader(r, p.GetHeader()); err != nil {
		return err
	}
	if err := p.unpackBody(r); err != nil {
		return fmt.Errorf("unpacking %s body: %w", p.GetHeader().MessageType, err)
	}
	return nil
}

// PeekHeader performs the cheap msgPeek validation: enough bytes for a
// header, and the embedded messageType is one we understand. It does not
// allocate a body.
func PeekHeader(rawBytes []byte) (Header, error) {
	var h Header
	if len(rawBytes) < HeaderLength {
		return h, fmt.Errorf("short message: %d bytes, need at least %d", len(rawBytes), HeaderLength)
	}
	if err := unpackHeader(bytes.NewReader(rawBytes), &h); err != nil {
		return h, err
	}
	switch h.MessageType {
	case MessageSync, MessageDelayReq, MessageFollowUp, MessageDelayResp, MessageManagement:
	default:
		return h, fmt.Errorf("unknown message type %d", uint8(h.MessageType))
	}
	return h, nil
}

// DecodePacket inspects the header embedded in rawBytes and unpacks it
// into the matching concrete Packet type.
func DecodePacket(rawBytes []byte) (Packet, error) {
	h, err := PeekHeader(rawBytes)
	if err != nil {
		return nil, err
	}
	var p Packet
	switch h.MessageType {
	case MessageSync:
		p = &Sync{}
	case MessageDelayReq:
		p = &DelayReq{}
	case MessageFollowUp:
		p = &FollowUp{}
	case MessageDelayResp:
		p = &DelayResp{}
	case MessageManagement:
		p = &Management{}
	default:
		return nil, fmt.Errorf("unknown message type %d", uint8(h.MessageType))
	}
	if err := FromBytes(rawBytes, p); err != nil {
		return nil, err
	}
	return p, nil
}
