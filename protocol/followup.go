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

// FollowUpLength is the fixed on-wire length of a Follow-Up message.
const (
	FollowUpLength     = 52
	followUpBodyLength = FollowUpLength - HeaderLength
	followUpReserved   = 2
)

// FollowUpBody carries the precise origin timestamp a preceding
// ASSIST-flagged Sync promised.
type FollowUpBody struct {
	AssociatedSequenceID   uint16
	PreciseOriginTimestamp TimeRepresentation
	reserved               [followUpReserved]byte
}

func (b *FollowUpBody) pack(buf *bytes.Buffer) error {
	fields := []any{
		b.AssociatedSequenceID,
		b.PreciseOriginTimestamp.Seconds,
		b.PreciseOriginTimestamp.Nanoseconds,
		b.reserved,
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.BigEndian, f); err != nil {
			return err
		}
	}
	return nil
}

func (b *FollowUpBody) unpack(r *bytes.Reader) error {
	fields := []any{
		&b.AssociatedSequenceID,
		&b.PreciseOriginTimestamp.Seconds,
		&b.PreciseOriginTimestamp.Nanoseconds,
		&b.reserved,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return err
		}
	}
	return nil
}

// FollowUp carries the precise egress timestamp for an assisted Sync.
type FollowUp struct {
	Header
	FollowUpBody
}

var _ Packet = (*FollowUp)(nil)

// MessageType implements Packet.
func (f *FollowUp) MessageType() MessageType { return MessageFollowUp }

func (f *FollowUp) bodyBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := f.FollowUpBody.pack(&buf); err != nil {
		return nil, err
	}
	if buf.Len() != followUpBodyLength {
		return nil, fmt.Errorf("follow-up body length %d, want %d", buf.Len(), followUpBodyLength)
	}
	return buf.Bytes(), nil
}

func (f *FollowUp) unpackBody(r *bytes.Reader) error {
	return f.FollowUpBody.unpack(r)
}
