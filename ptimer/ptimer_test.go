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

package ptimer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSyncIntervalDurationBoundaries(t *testing.T) {
	require.Equal(t, 4*time.Second, SyncIntervalDuration(2))
	require.Equal(t, 250*time.Millisecond, SyncIntervalDuration(-2))
	require.Equal(t, 16*time.Second, SyncIntervalDuration(4))
}

func TestSyncReceiptTimeoutIsFourIntervals(t *testing.T) {
	require.Equal(t, 4*time.Second, SyncReceiptTimeout(0))
}

func TestTimerExpiredAndRearms(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	s := NewSetWithClock(clock)

	s.Start(SyncIntervalTimer, time.Second)
	require.False(t, s.Expired(SyncIntervalTimer))

	now = now.Add(time.Second)
	require.True(t, s.Expired(SyncIntervalTimer))
	// re-armed for the next period from "now", not from the missed deadline
	require.False(t, s.Expired(SyncIntervalTimer))

	now = now.Add(time.Second)
	require.True(t, s.Expired(SyncIntervalTimer))
}

func TestTimerStopDisarms(t *testing.T) {
	now := time.Unix(1000, 0)
	s := NewSetWithClock(func() time.Time { return now })
	s.Start(SyncReceiptTimer, time.Second)
	s.Stop(SyncReceiptTimer)
	now = now.Add(time.Hour)
	require.False(t, s.Expired(SyncReceiptTimer))
}

func TestNextDeadlinePicksSoonest(t *testing.T) {
	now := time.Unix(1000, 0)
	s := NewSetWithClock(func() time.Time { return now })
	s.Start(SyncIntervalTimer, 5*time.Second)
	s.Start(SyncReceiptTimer, time.Second)

	d, ok := s.NextDeadline()
	require.True(t, ok)
	require.Equal(t, time.Second, d)
}

func TestNextDeadlineNoneArmed(t *testing.T) {
	s := NewSet()
	_, ok := s.NextDeadline()
	require.False(t, ok)
}
