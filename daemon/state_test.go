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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptpd1/ptpd/protocol"
	"github.com/ptpd1/ptpd/ptimer"
	"github.com/ptpd1/ptpd/servo"
)

type recordingStats struct {
	transitions []struct{ from, to State }
}

func (r *recordingStats) RecordTransition(from, to State) {
	r.transitions = append(r.transitions, struct{ from, to State }{from, to})
}
func (r *recordingStats) RecordSample(offset, owd protocol.TimeInternal, driftPPB int64, state servo.State) {
}

func TestToStateIsNoopWhenUnchanged(t *testing.T) {
	p, _, _ := testPort(t, nil)
	p.state = StateMaster
	p.timers.Start(ptimer.SyncIntervalTimer, time.Hour)

	p.toState(StateMaster)

	assert.Equal(t, StateMaster, p.state)
	assert.True(t, p.timers.Remaining(ptimer.SyncIntervalTimer) > 0, "re-entering the same state must not disturb its timers")
}

func TestToStateMasterStartsSyncIntervalAndStopsReceipt(t *testing.T) {
	p, _, _ := testPort(t, nil)
	p.timers.Start(ptimer.SyncReceiptTimer, time.Hour)

	p.toState(StateMaster)

	assert.Equal(t, StateMaster, p.state)
	_, ok := p.timers.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), p.timers.Remaining(ptimer.SyncReceiptTimer))
}

func TestToStateSlaveResetsCycleState(t *testing.T) {
	p, _, _ := testPort(t, nil)
	p.syncCount = 3
	p.waitingForFollow = true
	p.haveDelayReqSend = true
	p.haveDelayReqRecv = true

	p.toState(StateSlave)

	assert.Equal(t, StateSlave, p.state)
	assert.Zero(t, p.syncCount)
	assert.False(t, p.waitingForFollow)
	assert.False(t, p.haveDelayReqSend)
	assert.False(t, p.haveDelayReqRecv)
	assert.Greater(t, p.delayReqThreshold, 0)
	assert.True(t, p.timers.Remaining(ptimer.SyncReceiptTimer) > 0)
}

func TestToStateFaultyStopsAllTimers(t *testing.T) {
	p, _, _ := testPort(t, nil)
	p.timers.Start(ptimer.SyncIntervalTimer, time.Hour)
	p.timers.Start(ptimer.SyncReceiptTimer, time.Hour)
	p.timers.Start(ptimer.DelayReqIntervalTimer, time.Hour)

	p.toState(StateFaulty)

	assert.Equal(t, StateFaulty, p.state)
	_, ok := p.timers.NextDeadline()
	assert.False(t, ok, "FAULTY must disarm every timer")
}

func TestCheckTimersSyncReceiptTimeoutGoesMasterWhenEligible(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	p, _, _ := testPort(t, clock)
	p.cfg.SlaveOnly = false
	p.state = StateListening
	p.haveParent = true
	p.timers.Start(ptimer.SyncReceiptTimer, time.Millisecond)

	now = now.Add(2 * time.Millisecond)
	p.checkTimers()

	assert.Equal(t, StateMaster, p.state)
	assert.False(t, p.haveParent)
}

func TestCheckTimersSyncReceiptTimeoutStaysListeningWhenSlaveOnly(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	p, _, _ := testPort(t, clock)
	p.cfg.SlaveOnly = true
	p.state = StateSlave
	p.timers.Start(ptimer.SyncReceiptTimer, time.Millisecond)

	now = now.Add(2 * time.Millisecond)
	p.checkTimers()

	assert.Equal(t, StateListening, p.state)
}

func TestCheckTimersMasterIssuesSyncOnIntervalExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	p, conn, _ := testPort(t, clock)
	p.state = StateMaster
	p.timers.Start(ptimer.SyncIntervalTimer, time.Millisecond)

	now = now.Add(2 * time.Millisecond)
	p.checkTimers()

	assert.NotNil(t, conn.lastSentEvent(), "expired SYNC_INTERVAL timer must trigger issueSync")
	assert.NotNil(t, conn.lastSentGeneral(), "issueSync always follows with a Follow-Up")
}

func TestFaultTransitionsToFaulty(t *testing.T) {
	p, _, _ := testPort(t, nil)
	p.state = StateSlave

	p.fault(assertableErr{"boom"})

	assert.Equal(t, StateFaulty, p.state)
}

type assertableErr struct{ msg string }

func (e assertableErr) Error() string { return e.msg }

func TestToStateRecordsTransitionWithStats(t *testing.T) {
	p, _, _ := testPort(t, nil)
	stats := &recordingStats{}
	p.cfg.Stats = stats

	p.toState(StateMaster)

	require.Len(t, stats.transitions, 1)
	assert.Equal(t, StateListening, stats.transitions[0].from)
	assert.Equal(t, StateMaster, stats.transitions[0].to)
}
