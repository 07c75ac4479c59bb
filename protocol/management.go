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

// ManagementMaxLength is the largest on-wire Management message this
// implementation will pack or accept (header + fixed management fields +
// opaque parameter data).
const ManagementMaxLength = 136

// managementFixedLength is the size of ManagementBody's fixed fields,
// excluding the variable-length opaque Data tail.
const managementFixedLength = 16

// managementMaxData is the largest Data payload that still fits within
// ManagementMaxLength.
const managementMaxData = ManagementMaxLength - HeaderLength - managementFixedLength

// AllPorts is the wildcard TargetPortID meaning "every port on the
// addressed clock".
const AllPorts uint16 = 0xFFFF

// ManagementKey identifies the operation a Management message requests.
// Per spec.md §1/§4.8, the per-key payload shape is out of scope; only
// the routing contract (GET_* vs a mutating request) is implemented
// here, with Data carrying an opaque, key-specific blob.
type ManagementKey uint8

// A representative subset of management keys; GET_* values route to the
// daemon's issueManagementReply, everything else to its applyManagement.
const (
	ManagementKeyNull ManagementKey = iota
	ManagementKeyGetDefaultDataSet
	ManagementKeyGetCurrentDataSet
	ManagementKeyGetParentDataSet
	ManagementKeyGetPortDataSet
	ManagementKeySetDefaultDataSet
	ManagementKeySetPortDataSet
)

// IsGet reports whether k is a read-only GET_* request.
func (k ManagementKey) IsGet() bool {
	switch k {
	case ManagementKeyGetDefaultDataSet, ManagementKeyGetCurrentDataSet,
		ManagementKeyGetParentDataSet, ManagementKeyGetPortDataSet:
		return true
	default:
		return false
	}
}

// ManagementBody addresses a target clock/port and carries an opaque,
// key-specific parameter blob.
type ManagementBody struct {
	TargetCommTechnology CommTechnology
	TargetUUID           UUID
	TargetPortID         uint16

	StartingBoundaryHops int16
	BoundaryHops         int16

	ManagementMessageKey ManagementKey

	// Data is the key-specific opaque payload; its shape is out of scope
	// (spec.md §1), only its length and routing are fixed here.
	Data []byte
}

func (b *ManagementBody) pack(buf *bytes.Buffer) error {
	if len(b.Data) > managementMaxData {
		return fmt.Errorf("management data %d bytes exceeds max %d", len(b.Data), managementMaxData)
	}
	fields := []any{
		uint8(b.TargetCommTechnology),
		b.TargetUUID,
		b.TargetPortID,
		b.StartingBoundaryHops,
		b.BoundaryHops,
		uint8(b.ManagementMessageKey),
		uint16(len(b.Data)),
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.BigEndian, f); err != nil {
			return err
		}
	}
	buf.Write(b.Data)
	return nil
}

func (b *ManagementBody) unpack(r *bytes.Reader) error {
	var commTech, key uint8
	var paramLen uint16
	fields := []any{
		&commTech,
		&b.TargetUUID,
		&b.TargetPortID,
		&b.StartingBoundaryHops,
		&b.BoundaryHops,
		&key,
		&paramLen,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return err
		}
	}
	if int(paramLen) > managementMaxData {
		return fmt.Errorf("management data length %d exceeds max %d", paramLen, managementMaxData)
	}
	b.TargetCommTechnology = CommTechnology(commTech)
	b.ManagementMessageKey = ManagementKey(key)
	b.Data = make([]byte, paramLen)
	if paramLen > 0 {
		if _, err := r.Read(b.Data); err != nil {
			return fmt.Errorf("reading management data: %w", err)
		}
	}
	return nil
}

// TargetIdentity returns the Management message's addressed clock/port.
func (b *ManagementBody) TargetIdentity() PortIdentity {
	return PortIdentity{CommTechnology: b.TargetCommTechnology, UUID: b.TargetUUID, PortID: b.TargetPortID}
}

// Management carries GET_*/SET configuration requests and replies.
type Management struct {
	Header
	ManagementBody
}

var _ Packet = (*Management)(nil)

// MessageType implements Packet.
func (m *Management) MessageType() MessageType { return MessageManagement }

func (m *Management) bodyBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.ManagementBody.pack(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Management) unpackBody(r *bytes.Reader) error {
	return m.ManagementBody.unpack(r)
}
