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

package foreign

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ptpd1/ptpd/protocol"
)

func identity(b byte) protocol.PortIdentity {
	var u protocol.UUID
	for i := range u {
		u[i] = b
	}
	return protocol.PortIdentity{CommTechnology: protocol.CommTechnologyEthernet, UUID: u, PortID: 1}
}

func TestNewSetDefaultsCapacity(t *testing.T) {
	s := NewSet(0)
	require.Equal(t, DefaultCapacity, s.capacity)
}

func TestUpdateInsertsNewRecords(t *testing.T) {
	s := NewSet(3)

	isNew := s.Update(identity(1), protocol.Header{}, protocol.SyncBody{})
	require.True(t, isNew)
	require.Equal(t, 1, s.Len())

	isNew = s.Update(identity(2), protocol.Header{}, protocol.SyncBody{})
	require.True(t, isNew)
	require.Equal(t, 2, s.Len())
}

func TestUpdateBumpsExistingRecord(t *testing.T) {
	s := NewSet(3)
	s.Update(identity(1), protocol.Header{}, protocol.SyncBody{})

	isNew := s.Update(identity(1), protocol.Header{SequenceID: 7}, protocol.SyncBody{})
	require.False(t, isNew)
	require.Equal(t, 1, s.Len())

	rec := s.Records()[0]
	require.Equal(t, uint32(2), rec.SyncCount)
	require.Equal(t, uint16(7), rec.Header.SequenceID)
}

func TestUpdateOverwritesOldestWhenFull(t *testing.T) {
	s := NewSet(2)
	s.Update(identity(1), protocol.Header{}, protocol.SyncBody{})
	s.Update(identity(2), protocol.Header{}, protocol.SyncBody{})
	require.Equal(t, 2, s.Len())

	s.Update(identity(3), protocol.Header{}, protocol.SyncBody{})
	require.Equal(t, 2, s.Len(), "ring must not grow past capacity")

	found1, found3 := false, false
	for _, r := range s.Records() {
		if r.Identity == identity(1) {
			found1 = true
		}
		if r.Identity == identity(3) {
			found3 = true
		}
	}
	require.False(t, found1, "oldest record must be evicted")
	require.True(t, found3, "newest record must be present")
}

func TestBestReturnsFalseWhenUnset(t *testing.T) {
	s := NewSet(3)
	_, ok := s.Best()
	require.False(t, ok)
}

func TestSetBestThenBest(t *testing.T) {
	s := NewSet(3)
	s.Update(identity(1), protocol.Header{}, protocol.SyncBody{})
	s.Update(identity(2), protocol.Header{}, protocol.SyncBody{})

	s.SetBest(1)
	rec, ok := s.Best()
	require.True(t, ok)
	require.Equal(t, identity(2), rec.Identity)
}

func TestSetBestIgnoresOutOfRange(t *testing.T) {
	s := NewSet(3)
	s.Update(identity(1), protocol.Header{}, protocol.SyncBody{})
	s.SetBest(5)
	_, ok := s.Best()
	require.True(t, ok, "out-of-range SetBest must not corrupt the existing best index")
}
