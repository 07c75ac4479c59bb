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
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClockIdentity(t *testing.T) {
	iface := &net.Interface{Name: "eth0", HardwareAddr: net.HardwareAddr{0x00, 0x1b, 0x21, 0x0a, 0xbc, 0xde}}
	id, err := NewClockIdentity(iface)
	require.NoError(t, err)
	require.Equal(t, UUID{0x00, 0x1b, 0x21, 0x0a, 0xbc, 0xde}, id)
	require.Equal(t, "00:1b:21:0a:bc:de", id.String())
}

func TestNewClockIdentityNoHardwareAddr(t *testing.T) {
	iface := &net.Interface{Name: "lo"}
	_, err := NewClockIdentity(iface)
	require.Error(t, err)
}

func TestNewClockIdentityNilInterface(t *testing.T) {
	_, err := NewClockIdentity(nil)
	require.Error(t, err)
}
