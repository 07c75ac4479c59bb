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
	"testing"

	"github.com/stretchr/testify/require"
)

func testHeader(msgType MessageType, control Control) Header {
	var h Header
	h.VersionPTP = 1
	h.VersionNetwork = 1
	copy(h.SubdomainName[:], "_DFLT")
	h.MessageType = msgType
	h.SourceCommTech = CommTechnologyEthernet
	h.SourceUUID = UUID{0x00, 0x1b, 0x21, 0x0a, 0xbc, 0xde}
	h.SourcePortID = 1
	h.SequenceID = 42
	h.Control = control
	h.Flags = FlagAssist
	return h
}

func TestSyncRoundTrip(t *testing.T) {
	s := &Sync{Header: testHeader(MessageSync, ControlSync)}
	s.OriginTimestamp = TimeRepresentation{Seconds: 1000, Nanoseconds: 5000}
	s.GrandmasterClockUUID = UUID{1, 2, 3, 4, 5, 6}
	s.GrandmasterClockStratum = 2
	s.GrandmasterPreferred = true
	s.ParentUUID = UUID{6, 5, 4, 3, 2, 1}
	s.ParentLastSyncSequenceNumber = 7

	raw, err := Bytes(s)
	require.NoError(t, err)
	require.Len(t, raw, SyncLength)

	var got Sync
	require.NoError(t, FromBytes(raw, &got))
	require.Equal(t, *s, got)
}

func TestDelayReqRoundTrip(t *testing.T) {
	d := &DelayReq{Header: testHeader(MessageDelayReq, ControlDelayReq)}
	d.OriginTimestamp = TimeRepresentation{Seconds: 77, Nanoseconds: 1}

	raw, err := Bytes(d)
	require.NoError(t, err)
	require.Len(t, raw, DelayReqLength)

	var got DelayReq
	require.NoError(t, FromBytes(raw, &got))
	require.Equal(t, *d, got)
}

func TestFollowUpRoundTrip(t *testing.T) {
	f := &FollowUp{Header: testHeader(MessageFollowUp, ControlFollowUp)}
	f.AssociatedSequenceID = 42
	f.PreciseOriginTimestamp = TimeRepresentation{Seconds: 1000, Nanoseconds: halfEpochBit | 123}

	raw, err := Bytes(f)
	require.NoError(t, err)
	require.Len(t, raw, FollowUpLength)

	var got FollowUp
	require.NoError(t, FromBytes(raw, &got))
	require.Equal(t, *f, got)
}

func TestDelayRespRoundTrip(t *testing.T) {
	d := &DelayResp{Header: testHeader(MessageDelayResp, ControlDelayResp)}
	d.DelayReceiptTimestamp = TimeRepresentation{Seconds: 9, Nanoseconds: 1}
	d.RequestingSourceCommTechnology = CommTechnologyEthernet
	d.RequestingSourceUUID = UUID{9, 8, 7, 6, 5, 4}
	d.RequestingSourcePortID = 3
	d.RequestingSourceSequenceID = 42

	raw, err := Bytes(d)
	require.NoError(t, err)
	require.Len(t, raw, DelayRespLength)

	var got DelayResp
	require.NoError(t, FromBytes(raw, &got))
	require.Equal(t, *d, got)
}

func TestManagementRoundTrip(t *testing.T) {
	m := &Management{Header: testHeader(MessageManagement, ControlManagement)}
	m.TargetPortID = AllPorts
	m.ManagementMessageKey = ManagementKeyGetPortDataSet
	m.Data = []byte("opaque-payload")

	raw, err := Bytes(m)
	require.NoError(t, err)
	require.LessOrEqual(t, len(raw), ManagementMaxLength)

	var got Management
	require.NoError(t, FromBytes(raw, &got))
	require.Equal(t, *m, got)
	require.True(t, got.ManagementMessageKey.IsGet())
}

func TestDecodePacketDispatchesByType(t *testing.T) {
	s := &Sync{Header: testHeader(MessageSync, ControlSync)}
	raw, err := Bytes(s)
	require.NoError(t, err)

	p, err := DecodePacket(raw)
	require.NoError(t, err)
	require.Equal(t, MessageSync, p.MessageType())
	_, ok := p.(*Sync)
	require.True(t, ok)
}

func TestDecodePacketShortMessage(t *testing.T) {
	_, err := DecodePacket(make([]byte, HeaderLength-1))
	require.Error(t, err)
}

func TestDecodePacketUnknownType(t *testing.T) {
	h := testHeader(MessageType(200), ControlOther)
	raw, err := Bytes(&Sync{Header: h})
	require.NoError(t, err)
	_, err = DecodePacket(raw)
	require.Error(t, err)
}

func TestSequenceWrap(t *testing.T) {
	s := &Sync{Header: testHeader(MessageSync, ControlSync)}
	s.SetSequence(65535)
	raw, err := Bytes(s)
	require.NoError(t, err)
	var got Sync
	require.NoError(t, FromBytes(raw, &got))
	require.Equal(t, uint16(65535), got.Sequence())
}
