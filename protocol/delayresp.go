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

// DelayRespLength is the fixed on-wire length of a Delay-Resp message.
const (
	DelayRespLength     = 60
	delayRespBodyLength = DelayRespLength - HeaderLength
	delayRespReserved   = 1
)

// DelayRespBody carries the master's receive timestamp for a Delay-Req,
// addressed back to the requester by identity and sequence ID.
type DelayRespBody struct {
	DelayReceiptTimestamp TimeRepresentation

	RequestingSourceCommTechnology CommTechnology
	RequestingSourceUUID           UUID
	RequestingSourcePortID         uint16
	RequestingSourceSequenceID     uint16

	reserved [delayRespReserved]byte
}

// RequestingSourceIdentity returns the (uuid, portID) pair this
// Delay-Resp is addressed to, for matching against an outstanding
// Delay-Req.
func (b *DelayRespBody) RequestingSourceIdentity() PortIdentity {
	return PortIdentity{
		CommTechnology: b.RequestingSourceCommTechnology,
		UUID:           b.RequestingSourceUUID,
		PortID:         b.RequestingSourcePortID,
	}
}

func (b *DelayRespBody) pack(buf *bytes.Buffer) error {
	fields := []any{
		b.DelayReceiptTimestamp.Seconds,
		b.DelayReceiptTimestamp.Nanoseconds,
		uint8(b.RequestingSourceCommTechnology),
		b.RequestingSourceUUID,
		b.RequestingSourcePortID,
		b.RequestingSourceSequenceID,
		b.reserved,
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.BigEndian, f); err != nil {
			return err
		}
	}
	return nil
}

func (b *DelayRespBody) unpack(r *bytes.Reader) error {
	var commTech uint8
	fields := []any{
		&b.DelayReceiptTimestamp.Seconds,
		&b.DelayReceiptTimestamp.Nanoseconds,
		&commTech,
		&b.RequestingSourceUUID,
		&b.RequestingSourcePortID,
		&b.RequestingSourceSequenceID,
		&b.reserved,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return err
		}
	}
	b.RequestingSourceCommTechnology = CommTechnology(commTech)
	return nil
}

// DelayResp answers a Delay-Req with the master's receive timestamp.
type DelayResp struct {
	Header
	DelayRespBody
}

var _ Packet = (*DelayResp)(nil)

// MessageType implements Packet.
func (d *DelayResp) MessageType() MessageType { return MessageDelayResp }

func (d *DelayResp) bodyBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.DelayRespBody.pack(&buf); err != nil {
		return nil, err
	}
	if buf.Len() != delayRespBodyLength {
		return nil, fmt.Errorf("delay-resp body length %d, want %d", buf.Len(), delayRespBodyLength)
	}
	return buf.Bytes(), nil
}

func (d *DelayResp) unpackBody(r *bytes.Reader) error {
	return d.DelayRespBody.unpack(r)
}
