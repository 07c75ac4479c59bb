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
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// StampMode selects how RX/TX timestamps are captured on a socket.
type StampMode int

const (
	// StampNone disables kernel timestamping; the caller supplies its
	// own timestamp (used by the SYSTEM time source, which just calls
	// time.Now at the point of send/receive).
	StampNone StampMode = iota
	// StampSoftware enables SO_TIMESTAMPING in software-only mode.
	StampSoftware
	// StampHardware enables SO_TIMESTAMPING with hardware reporting and
	// arms the NIC's PHC timestamping via SIOCSHWTSTAMP.
	StampHardware
)

const (
	hwtstampTXOn      = 0x00000001
	hwtstampFilterAll = 0x00000001

	controlSizeBytes = 128
	payloadSizeBytes = 128
	maxTXAttempts     = 100
)

type ifreq struct {
	name [unix.IFNAMSIZ]byte
	data uintptr
}

type hwtstampConfig struct {
	flags    int
	txType   int
	rxFilter int
}

func connFd(conn *net.UDPConn) (int, error) {
	sc, err := conn.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	if err := sc.Control(func(rawFd uintptr) { fd = int(rawFd) }); err != nil {
		return -1, err
	}
	return fd, nil
}

func ioctlHWTimestamp(fd int, iface string) error {
	hw := &hwtstampConfig{flags: 0, txType: hwtstampTXOn, rxFilter: hwtstampFilterAll}
	req := &ifreq{data: uintptr(unsafe.Pointer(hw))}
	copy(req.name[:unix.IFNAMSIZ-1], iface)

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.SIOCSHWTSTAMP, uintptr(unsafe.Pointer(req))); errno != 0 {
		return fmt.Errorf("ioctl SIOCSHWTSTAMP: %w", errno)
	}
	return nil
}

// EnableTimestamps arms the requested stamping mode on conn. iface is only
// consulted for StampHardware, where it names the NIC to arm via
// SIOCSHWTSTAMP.
func EnableTimestamps(mode StampMode, conn *net.UDPConn, iface string) error {
	switch mode {
	case StampNone:
		return nil
	case StampHardware:
		fd, err := connFd(conn)
		if err != nil {
			return err
		}
		if err := ioctlHWTimestamp(fd, iface); err != nil {
			return err
		}
		flags := unix.SOF_TIMESTAMPING_TX_HARDWARE |
			unix.SOF_TIMESTAMPING_RX_HARDWARE |
			unix.SOF_TIMESTAMPING_RAW_HARDWARE
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TIMESTAMPING, flags); err != nil {
			return err
		}
		return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SELECT_ERR_QUEUE, 1)
	case StampSoftware:
		fd, err := connFd(conn)
		if err != nil {
			return err
		}
		flags := unix.SOF_TIMESTAMPING_TX_SOFTWARE |
			unix.SOF_TIMESTAMPING_RX_SOFTWARE |
			unix.SOF_TIMESTAMPING_SOFTWARE
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TIMESTAMPING, flags); err != nil {
			return err
		}
		return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SELECT_ERR_QUEUE, 1)
	default:
		return fmt.Errorf("netio: unknown stamp mode %d", mode)
	}
}

func byteToTime(data []byte) (time.Time, error) {
	ts := &unix.Timespec{}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, ts); err != nil {
		return time.Time{}, err
	}
	return time.Unix(ts.Unix()), nil
}

// scmDataToTime parses a SO_TIMESTAMPING control message's Data field.
// Up to three timestamps are carried; only one is ever non-zero. Most
// timestamps land in ts[0] (software); hardware timestamps land in ts[2].
func scmDataToTime(data []byte) (time.Time, error) {
	ts, err := byteToTime(data[32:48])
	if err != nil {
		return ts, err
	}
	if ts.UnixNano() == 0 {
		ts, err = byteToTime(data[0:16])
		if err != nil {
			return ts, err
		}
		if ts.UnixNano() == 0 {
			return ts, fmt.Errorf("got zero timestamp")
		}
	}
	return ts, nil
}

func waitForErrQueue(conn *net.UDPConn, timeout time.Duration) error {
	fd, err := connFd(conn)
	if err != nil {
		return err
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLPRI}}
	_, err = unix.Poll(fds, int(timeout/time.Millisecond))
	return err
}

// ReadTXTimestamp waits up to timeout for the kernel to deliver a TX
// timestamp for the most recently sent event packet via MSG_ERRQUEUE
// (spec §4.2's "500ms TX-timestamp poll"). Multiple stale timestamps can
// accumulate in the error queue; this drains it and returns the last
// (newest) one found.
func ReadTXTimestamp(conn *net.UDPConn, timeout time.Duration) (time.Time, error) {
	fd, err := connFd(conn)
	if err != nil {
		return time.Time{}, err
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, payloadSizeBytes)
	oob := make([]byte, controlSizeBytes)
	var oobLen int
	found := false

	for attempts := 0; attempts < maxTXAttempts && time.Now().Before(deadline); attempts++ {
		if !found {
			_ = waitForErrQueue(conn, time.Until(deadline))
		}
		_, n, _, _, err := unix.Recvmsg(fd, buf, oob, unix.MSG_ERRQUEUE)
		if err != nil {
			if found {
				break
			}
			continue
		}
		found = true
		oobLen = n
	}
	if !found {
		return time.Time{}, fmt.Errorf("no TX timestamp within %v", timeout)
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobLen])
	if err != nil {
		return time.Time{}, err
	}
	for _, m := range msgs {
		if m.Header.Level == unix.SOL_SOCKET && m.Header.Type == unix.SO_TIMESTAMPING {
			return scmDataToTime(m.Data)
		}
	}
	return time.Time{}, fmt.Errorf("no SO_TIMESTAMPING control message in error queue")
}

// ReadPacketWithRXTimestamp reads one packet plus its kernel RX timestamp.
func ReadPacketWithRXTimestamp(conn *net.UDPConn) (packet []byte, from *net.UDPAddr, ts time.Time, err error) {
	buf := make([]byte, payloadSizeBytes)
	oob := make([]byte, controlSizeBytes)

	n, oobn, _, addr, err := conn.ReadMsgUDP(buf, oob)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("reading packet: %w", err)
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, addr, time.Time{}, err
	}
	for _, m := range msgs {
		if m.Header.Level == unix.SOL_SOCKET && m.Header.Type == unix.SO_TIMESTAMPING {
			ts, err := scmDataToTime(m.Data)
			if err != nil {
				return buf[:n], addr, time.Time{}, err
			}
			return buf[:n], addr, ts, nil
		}
	}
	return buf[:n], addr, time.Time{}, nil
}
