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

package netio

import (
	"net"

	"github.com/cespare/xxhash/v2"
)

// EventPort and GeneralPort are the two well-known UDP ports PTPv1 runs
// over (spec §4.2).
const (
	EventPort   = 319
	GeneralPort = 320
)

// The four well-known PTPv1 subdomains and their default multicast groups.
const (
	DefaultDomainName  = "_DFLT"
	AlternateDomain1   = "_ALT1"
	AlternateDomain2   = "_ALT2"
	AlternateDomain3   = "_ALT3"
	defaultDomainAddr  = "224.0.1.129"
	alternateAddr1     = "224.0.1.130"
	alternateAddr2     = "224.0.1.131"
	alternateAddr3     = "224.0.1.132"
)

// multicastGroup resolves a 16-byte subdomain name to its IPv4 multicast
// group. The four well-known subdomains map to fixed addresses; any other
// subdomain name hashes onto one of the three alternate groups, spreading
// unrecognized subdomains across the same three addresses the original
// deterministically picked with a CRC (spec §4.2, `lookupSubdomainAddress`
// in `original_source/src/dep/net.c`). xxhash replaces the original's ad
// hoc CRC as the hash function — any well-distributed hash satisfies the
// same "pick one of three" contract.
func multicastGroup(subdomainName string) net.IP {
	switch subdomainName {
	case DefaultDomainName:
		return net.ParseIP(defaultDomainAddr)
	case AlternateDomain1:
		return net.ParseIP(alternateAddr1)
	case AlternateDomain2:
		return net.ParseIP(alternateAddr2)
	case AlternateDomain3:
		return net.ParseIP(alternateAddr3)
	default:
		switch xxhash.Sum64String(subdomainName) % 3 {
		case 0:
			return net.ParseIP(alternateAddr1)
		case 1:
			return net.ParseIP(alternateAddr2)
		default:
			return net.ParseIP(alternateAddr3)
		}
	}
}
