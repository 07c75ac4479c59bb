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

package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptpd1/ptpd/protocol"
)

func TestRunSessionCleanShutdownOnContextCancel(t *testing.T) {
	p, _, _ := testPort(t, nil)
	p.state = StateListening

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.runSession(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runSession did not return after context cancellation")
	}
}

func TestRunSessionReturnsFaultedOnReceiveError(t *testing.T) {
	p, conn, _ := testPort(t, nil)
	p.state = StateListening

	// Close the conn up front so ReceiveEvent/ReceiveGeneral fail
	// immediately, simulating a socket error surfacing through the
	// reader goroutines.
	conn.Close()

	done := make(chan error, 1)
	go func() { done <- p.runSession(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, errFaulted))
		assert.Equal(t, StateFaulty, p.state)
	case <-time.After(2 * time.Second):
		t.Fatal("runSession did not return after a receive error")
	}
}

func TestDispatchLoopHandlesQueuedEventPacket(t *testing.T) {
	p, _, _ := testPort(t, nil)
	p.state = StateListening

	eventCh := make(chan eventPacket, 1)
	generalCh := make(chan generalPacket, 1)
	faultCh := make(chan error, 1)

	requester := protocol.PortIdentity{CommTechnology: protocol.CommTechnologyEthernet, UUID: protocol.UUID{3, 3, 3, 3, 3, 3}, PortID: 1}
	sync := &protocol.Sync{Header: *headerFrom(requester, protocol.MessageSync, 1, 0)}
	raw, err := protocol.Bytes(sync)
	require.NoError(t, err)

	eventCh <- eventPacket{data: raw, rx: protocol.FromTime(time.Now())}
	generalCh <- generalPacket{data: []byte{}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.dispatchLoop(ctx, eventCh, generalCh, faultCh) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatchLoop did not return after context cancellation")
	}

	// The queued event-socket Sync should have been dispatched (it is
	// foreign to this LISTENING port, so it lands in the foreign set); the
	// empty general packet, in whatever order it is drained, leaves the
	// foreign set with exactly that one record.
	assert.Equal(t, 1, p.foreignSet.Len())
}

func TestDispatchLoopStopsOnFault(t *testing.T) {
	p, _, _ := testPort(t, nil)
	p.state = StateListening

	eventCh := make(chan eventPacket)
	generalCh := make(chan generalPacket)
	faultCh := make(chan error, 1)
	faultCh <- errors.New("socket died")

	err := p.dispatchLoop(context.Background(), eventCh, generalCh, faultCh)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errFaulted))
	assert.Equal(t, StateFaulty, p.state)
}
