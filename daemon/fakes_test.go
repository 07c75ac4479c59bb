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
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ptpd1/ptpd/foreign"
	"github.com/ptpd1/ptpd/protocol"
	"github.com/ptpd1/ptpd/ptimer"
	"github.com/ptpd1/ptpd/servo"
)

// fakeEventPkt and fakeGeneralPkt are queued onto a fakeConn to simulate
// an arriving datagram without a real socket.
type fakeEventPkt struct {
	data []byte
	from *net.UDPAddr
	ts   time.Time
}

type fakeGeneralPkt struct {
	data []byte
	from *net.UDPAddr
}

// fakeConn implements portConn entirely in memory: SendEvent/SendGeneral
// record what was sent, and ReceiveEvent/ReceiveGeneral block on a queue
// fed by the test until Close unblocks them with an error, mirroring how
// a real socket read fails once the fd is closed out from under it.
type fakeConn struct {
	iface *net.Interface

	mu          sync.Mutex
	sentEvent   [][]byte
	sentGeneral [][]byte
	txTime      time.Time
	sendErr     error

	eventCh   chan fakeEventPkt
	generalCh chan fakeGeneralPkt
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		iface:     &net.Interface{Name: "fake0", HardwareAddr: net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01}},
		eventCh:   make(chan fakeEventPkt, 16),
		generalCh: make(chan fakeGeneralPkt, 16),
		done:      make(chan struct{}),
	}
}

func (c *fakeConn) SendEvent(b []byte) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return time.Time{}, c.sendErr
	}
	c.sentEvent = append(c.sentEvent, append([]byte(nil), b...))
	return c.txTime, nil
}

func (c *fakeConn) SendGeneral(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sentGeneral = append(c.sentGeneral, append([]byte(nil), b...))
	return nil
}

func (c *fakeConn) ReceiveEvent() ([]byte, *net.UDPAddr, time.Time, error) {
	select {
	case p := <-c.eventCh:
		return p.data, p.from, p.ts, nil
	case <-c.done:
		return nil, nil, time.Time{}, fmt.Errorf("fakeConn: closed")
	}
}

func (c *fakeConn) ReceiveGeneral() ([]byte, *net.UDPAddr, error) {
	select {
	case p := <-c.generalCh:
		return p.data, p.from, nil
	case <-c.done:
		return nil, nil, fmt.Errorf("fakeConn: closed")
	}
}

func (c *fakeConn) Interface() *net.Interface { return c.iface }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) pushEvent(data []byte, ts time.Time) {
	c.eventCh <- fakeEventPkt{data: data, ts: ts}
}

func (c *fakeConn) pushGeneral(data []byte) {
	c.generalCh <- fakeGeneralPkt{data: data}
}

func (c *fakeConn) lastSentEvent() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sentEvent) == 0 {
		return nil
	}
	return c.sentEvent[len(c.sentEvent)-1]
}

func (c *fakeConn) lastSentGeneral() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sentGeneral) == 0 {
		return nil
	}
	return c.sentGeneral[len(c.sentGeneral)-1]
}

// fakeSource implements timesource.Source with in-memory bookkeeping, so
// daemon tests can assert on what the servo/port asked of the clock
// without touching any real clock.
type fakeSource struct {
	mu sync.Mutex

	now       protocol.TimeInternal
	adjCalls  []int64
	stepCalls []protocol.TimeInternal
	idleCalls int
	getErr    error
}

func newFakeSource() *fakeSource {
	return &fakeSource{}
}

func (s *fakeSource) GetTime() (protocol.TimeInternal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return protocol.TimeInternal{}, s.getErr
	}
	return s.now, nil
}

func (s *fakeSource) SetTime(t protocol.TimeInternal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = t
	return nil
}

func (s *fakeSource) AdjTime(adjPPB int64, offset protocol.TimeInternal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjCalls = append(s.adjCalls, adjPPB)
	return nil
}

func (s *fakeSource) AdjTimeOffset(offset protocol.TimeInternal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepCalls = append(s.stepCalls, offset)
	return nil
}

func (s *fakeSource) PushReceiveTime(uuid protocol.UUID, seqID uint16, ts protocol.TimeInternal) {}

func (s *fakeSource) GetReceiveTime(uuid protocol.UUID, seqID uint16) (protocol.TimeInternal, bool) {
	return protocol.TimeInternal{}, false
}

func (s *fakeSource) SetSendTime(ts protocol.TimeInternal) {}

func (s *fakeSource) GetSendTime() (protocol.TimeInternal, bool) {
	return protocol.TimeInternal{}, false
}

func (s *fakeSource) Idle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idleCalls++
}

func (s *fakeSource) Close() error { return nil }

type testingHelper interface {
	Helper()
}

// testPort builds a Port with fakes wired in, bypassing New (which binds
// real sockets via doInit). The returned Port starts in LISTENING, the
// same state doInit leaves a freshly constructed port in. clock, if
// non-nil, drives the port's timers deterministically; a nil clock uses
// a real wall-clock Set.
func testPort(t testingHelper, clock func() time.Time) (*Port, *fakeConn, *fakeSource) {
	t.Helper()
	conn := newFakeConn()
	source := newFakeSource()

	timers := ptimer.NewSet()
	if clock != nil {
		timers = ptimer.NewSetWithClock(clock)
	}

	p := &Port{
		cfg: Config{
			AP: 10, AI: 1000,
			MaxForeignRecords: foreign.DefaultCapacity,
			Stratum:           8,
			ClockIdentifier:   [4]byte{'T', 'E', 'S', 'T'},
			ClockVariance:     100,
			Rand:              nil,
		},
		conn:         conn,
		source:       source,
		timers:       timers,
		identity:     protocol.PortIdentity{CommTechnology: protocol.CommTechnologyEthernet, UUID: protocol.UUID{0x02, 0, 0, 0, 0, 0x01}, PortID: 1},
		state:        StateListening,
		syncInterval: 0,
		foreignSet:   foreign.NewSet(foreign.DefaultCapacity),
		servo:        servo.NewPiServo(servo.DefaultPiServoCfg()),
	}
	p.cfg.setDefaults()
	return p, conn, source
}
