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

package servo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ptpd1/ptpd/protocol"
)

func TestPiServoStepsOnSecondsOffset(t *testing.T) {
	pi := NewPiServo(DefaultPiServoCfg())
	adj, state := pi.Sample(protocol.TimeInternal{Seconds: 3, Nanoseconds: 0})
	require.Equal(t, StateJump, state)
	require.Zero(t, adj)
}

func TestPiServoSaturatesWhenStepDisabled(t *testing.T) {
	pi := NewPiServo(PiServoCfg{AP: 10, AI: 1000, NoResetClock: true})

	adj, state := pi.Sample(protocol.TimeInternal{Seconds: 2, Nanoseconds: 500})
	require.Equal(t, StateLocked, state)
	require.Equal(t, int64(-MaxFreqPPB), adj)

	adj, state = pi.Sample(protocol.TimeInternal{Seconds: -2, Nanoseconds: -500})
	require.Equal(t, StateLocked, state)
	require.Equal(t, int64(MaxFreqPPB), adj)
}

func TestPiServoSubSecondPath(t *testing.T) {
	pi := NewPiServo(PiServoCfg{AP: 10, AI: 1000})

	adj, state := pi.Sample(protocol.TimeInternal{Seconds: 0, Nanoseconds: 1000})
	require.Equal(t, StateLocked, state)
	// drift = 1000/1000 = 1; adj = 1000/10 + 1 = 101; returned = -101
	require.Equal(t, int64(-101), adj)
	require.Equal(t, int64(1), pi.Drift())
}

func TestPiServoDriftSaturates(t *testing.T) {
	pi := NewPiServo(PiServoCfg{AP: 1, AI: 1})
	for i := 0; i < 1000; i++ {
		_, state := pi.Sample(protocol.TimeInternal{Seconds: 0, Nanoseconds: MaxFreqPPB})
		require.Equal(t, StateLocked, state)
		require.LessOrEqual(t, pi.Drift(), int64(MaxFreqPPB))
		require.GreaterOrEqual(t, pi.Drift(), int64(-MaxFreqPPB))
	}
	require.Equal(t, int64(MaxFreqPPB), pi.Drift())
}

func TestPiServoCoercesZeroCoefficients(t *testing.T) {
	pi := NewPiServo(PiServoCfg{AP: 0, AI: 0})
	require.Equal(t, int64(1), pi.cfg.AP)
	require.Equal(t, int64(1), pi.cfg.AI)

	_, state := pi.Sample(protocol.TimeInternal{Seconds: 0, Nanoseconds: 500})
	require.Equal(t, StateLocked, state)
}

func TestPiServoResetClearsDrift(t *testing.T) {
	pi := NewPiServo(PiServoCfg{AP: 10, AI: 1})
	pi.Sample(protocol.TimeInternal{Seconds: 0, Nanoseconds: 500})
	require.NotZero(t, pi.Drift())
	pi.Reset()
	require.Zero(t, pi.Drift())
}
