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

func TestTimeArithmeticClosure(t *testing.T) {
	cases := []struct {
		name string
		a, b TimeInternal
	}{
		{"both positive", TimeInternal{Seconds: 5, Nanoseconds: 900000000}, TimeInternal{Seconds: 2, Nanoseconds: 300000000}},
		{"both negative", TimeInternal{Seconds: -5, Nanoseconds: -900000000}, TimeInternal{Seconds: -2, Nanoseconds: -300000000}},
		{"mixed signs", TimeInternal{Seconds: 3, Nanoseconds: 100000000}, TimeInternal{Seconds: -1, Nanoseconds: -900000000}},
		{"zero", TimeInternal{}, TimeInternal{Seconds: 1, Nanoseconds: 500000000}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sum := Add(c.a, c.b)
			require.Less(t, sum.Nanoseconds, int32(nsPerSecond))
			require.Greater(t, sum.Nanoseconds, int32(-nsPerSecond))

			diff := Sub(c.a, c.b)
			require.Less(t, diff.Nanoseconds, int32(nsPerSecond))
			require.Greater(t, diff.Nanoseconds, int32(-nsPerSecond))

			require.Equal(t, c.a, Sub(sum, c.b))
		})
	}
}

func TestHalfEpochRoundTrip(t *testing.T) {
	cases := []TimeInternal{
		{Seconds: 0, Nanoseconds: 0},
		{Seconds: 1000, Nanoseconds: 500000000},
		{Seconds: -1000, Nanoseconds: -500000000},
		{Seconds: 2147483647, Nanoseconds: 999999999},
		{Seconds: -2147483647, Nanoseconds: -999999999},
	}
	for _, halfEpoch := range []bool{false, true} {
		for _, tc := range cases {
			got := ToInternalTime(FromInternalTime(tc, halfEpoch), halfEpoch)
			require.Equal(t, tc, got)
		}
	}
}

func TestFromInternalTimeSignBit(t *testing.T) {
	tr := FromInternalTime(TimeInternal{Seconds: -5, Nanoseconds: -100}, false)
	require.Equal(t, uint32(5), tr.Seconds)
	require.Equal(t, halfEpochBit|100, tr.Nanoseconds)

	tr = FromInternalTime(TimeInternal{Seconds: 5, Nanoseconds: 100}, false)
	require.Equal(t, uint32(5), tr.Seconds)
	require.Equal(t, uint32(100), tr.Nanoseconds)
}
