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

package timesource

import "fmt"

// New constructs the Source for the requested variant. SYSTEM_ASSISTED,
// SYSTEM_KERNEL_HW and SYSTEM_KERNEL_SW all discipline the OS clock the
// same way SYSTEM does; they differ only in where the event-packet RX/TX
// timestamps come from (software stamps vs NIC hardware stamps), which is
// netio's concern (its StampMode), not this package's — so all four share
// one implementation
// here. NIC and NIC_ONLY are likewise the same Source; NIC_ONLY just means
// netio never bothers reading NIC hardware timestamps for the OS clock's
// benefit, since nothing here consumes them that way.
func New(variant Variant, iface string, noAdjust bool) (Source, error) {
	switch variant {
	case System, SystemAssisted, SystemKernelHW, SystemKernelSW:
		return newSystemSource(noAdjust)
	case Nic, NicOnly:
		return newNICSource(iface, noAdjust)
	case Both:
		return newBothSource(iface, noAdjust)
	default:
		return nil, fmt.Errorf("timesource: unknown variant %v", variant)
	}
}
