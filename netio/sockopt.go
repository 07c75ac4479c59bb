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

	"golang.org/x/sys/unix"
)

// setMulticastTTL sets IP_MULTICAST_TTL (spec §4.2: "TTL 1", matching
// `original_source/src/dep/net.c`'s netInit).
func setMulticastTTL(conn *net.UDPConn, ttl int) error {
	fd, err := connFd(conn)
	if err != nil {
		return err
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_TTL, ttl)
}

// setMulticastLoop sets IP_MULTICAST_LOOP. The original only needs
// loopback when the system clock timestamps its own multicast sends
// (`useSystemTimeStamps` in net.c); hardware/software kernel timestamping
// gets its TX timestamp straight from the socket error queue and doesn't
// need to see its own packet looped back.
func setMulticastLoop(conn *net.UDPConn, enabled bool) error {
	fd, err := connFd(conn)
	if err != nil {
		return err
	}
	v := 0
	if enabled {
		v = 1
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP, v)
}
