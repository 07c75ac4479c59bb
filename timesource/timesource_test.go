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

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ptpd1/ptpd/protocol"
)

func TestVariantString(t *testing.T) {
	cases := map[Variant]string{
		System:         "SYSTEM",
		Nic:            "NIC",
		Both:           "BOTH",
		SystemAssisted: "SYSTEM_ASSISTED",
		SystemKernelHW: "SYSTEM_KERNEL_HW",
		SystemKernelSW: "SYSTEM_KERNEL_SW",
		NicOnly:        "NIC_ONLY",
		Variant(99):    "Variant(99)",
	}
	for v, want := range cases {
		require.Equal(t, want, v.String())
	}
}

func TestNewRejectsUnknownVariant(t *testing.T) {
	_, err := New(Variant(200), "eth0", true)
	require.Error(t, err)
}

func uuidFor(b byte) protocol.UUID {
	var u protocol.UUID
	for i := range u {
		u[i] = b
	}
	return u
}

func TestRXFIFOPushGetIsSingleUse(t *testing.T) {
	var f rxFIFO
	ts := protocol.TimeInternal{Seconds: 5, Nanoseconds: 6}
	f.push(uuidFor(1), 10, ts)

	got, ok := f.get(uuidFor(1), 10)
	require.True(t, ok)
	require.Equal(t, ts, got)

	_, ok = f.get(uuidFor(1), 10)
	require.False(t, ok, "a consumed entry must not be returned again")
}

func TestRXFIFOMissLookupReturnsFalse(t *testing.T) {
	var f rxFIFO
	_, ok := f.get(uuidFor(9), 1)
	require.False(t, ok)
}

func TestRXFIFOOverflowDropsOldest(t *testing.T) {
	var f rxFIFO
	for i := 0; i < rxFIFODepth+1; i++ {
		f.push(uuidFor(byte(i)), uint16(i), protocol.TimeInternal{Seconds: int32(i)})
	}
	// the very first push (seq 0) should have been evicted by the time
	// rxFIFODepth+1 pushes have landed.
	_, ok := f.get(uuidFor(0), 0)
	require.False(t, ok)

	// the most recent push must still be present.
	got, ok := f.get(uuidFor(byte(rxFIFODepth)), uint16(rxFIFODepth))
	require.True(t, ok)
	require.Equal(t, int32(rxFIFODepth), got.Seconds)
}

func TestTXSlotIsSingleUse(t *testing.T) {
	var s txSlot
	_, ok := s.get()
	require.False(t, ok, "empty slot must report no value")

	ts := protocol.TimeInternal{Seconds: 1, Nanoseconds: 2}
	s.set(ts)

	got, ok := s.get()
	require.True(t, ok)
	require.Equal(t, ts, got)

	_, ok = s.get()
	require.False(t, ok, "a consumed TX timestamp must not be returned again")
}

func TestTXSlotOverwrite(t *testing.T) {
	var s txSlot
	s.set(protocol.TimeInternal{Seconds: 1})
	s.set(protocol.TimeInternal{Seconds: 2})

	got, ok := s.get()
	require.True(t, ok)
	require.Equal(t, int32(2), got.Seconds)
}
