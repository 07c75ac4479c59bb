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
	"fmt"
	"net"
)

// UUIDLength is the length in bytes of a v1 clock/port UUID, derived from
// a 6-byte MAC address.
const UUIDLength = 6

// UUID identifies a clock or port, derived from an interface's hardware
// address.
type UUID [UUIDLength]byte

// String renders u in MAC-address notation.
func (u UUID) String() string {
	return net.HardwareAddr(u[:]).String()
}

// PortIdentity is the v1 equivalent of a source/parent/grandmaster
// identity triple: the communication technology the sender used, its
// clock UUID, and the port number within that clock.
type PortIdentity struct {
	CommTechnology CommTechnology
	UUID           UUID
	PortID         uint16
}

// CommTechnology is the "communication technology" octet carried in every
// v1 header and in the grandmaster/parent identity fields.
type CommTechnology uint8

// Communication technology values per IEEE 1588-2002 Table 3.
const (
	CommTechnologyEthernet CommTechnology = 1
	CommTechnologyDefault  CommTechnology = 0xFE
)

// NewClockIdentity derives a clock UUID from an interface's hardware
// address, mirroring the teacher's NewClockIdentity helper for deriving a
// v2 EUI-64 clock identity, but truncated to the plain 6-byte UUID v1
// uses directly as a MAC address.
func NewClockIdentity(iface *net.Interface) (UUID, error) {
	var id UUID
	if iface == nil {
		return id, fmt.Errorf("nil interface")
	}
	if len(iface.HardwareAddr) < UUIDLength {
		return id, fmt.Errorf("interface %s has no usable hardware address", iface.Name)
	}
	copy(id[:], iface.HardwareAddr[:UUIDLength])
	return id, nil
}
