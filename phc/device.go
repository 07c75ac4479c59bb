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

package phc

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ifreq mirrors struct ifreq as used by SIOCETHTOOL: an interface name
// plus an opaque data pointer (linux/if.h).
type ifreq struct {
	name [unix.IFNAMSIZ]byte
	data uintptr
}

// ethtoolTSInfo mirrors struct ethtool_ts_info (linux/ethtool.h); only
// phcIndex is consumed here, the rest pads out the ABI layout.
type ethtoolTSInfo struct {
	cmd            uint32
	soTimestamping uint32
	phcIndex       int32
	txTypes        uint32
	_              [3]uint32
	rxFilters      uint32
	_              [3]uint32
}

func ifaceTSInfo(iface string) (*ethtoolTSInfo, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, fmt.Errorf("opening ioctl socket: %w", err)
	}
	defer unix.Close(fd)

	info := &ethtoolTSInfo{cmd: unix.ETHTOOL_GET_TS_INFO}
	req := &ifreq{data: uintptr(unsafe.Pointer(info))}
	copy(req.name[:unix.IFNAMSIZ-1], iface)

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.SIOCETHTOOL), uintptr(unsafe.Pointer(req)))
	if errno != 0 {
		return nil, fmt.Errorf("reading timestamping info for %s: %w", iface, errno)
	}
	return info, nil
}

func tsInfoToDevicePath(info *ethtoolTSInfo) (string, error) {
	if info.phcIndex < 0 {
		return "", fmt.Errorf("interface has no associated PHC")
	}
	return fmt.Sprintf("/dev/ptp%d", info.phcIndex), nil
}

// IfaceToPHCDevice resolves the /dev/ptpN device backing iface's
// hardware clock.
func IfaceToPHCDevice(iface string) (string, error) {
	info, err := ifaceTSInfo(iface)
	if err != nil {
		return "", fmt.Errorf("resolving PHC device for %s: %w", iface, err)
	}
	return tsInfoToDevicePath(info)
}
