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

import "time"

// nsPerSecond is the number of nanoseconds in a second.
const nsPerSecond = 1000000000

// halfEpochBit is the sign bit of the on-wire nanoseconds field. A
// negative TimeInternal is represented on the wire as a positive
// magnitude with this bit set (Table 3, half-epoch representation).
const halfEpochBit uint32 = 1 << 31

// TimeInternal is the internal (seconds, nanoseconds) pair used for all
// arithmetic. Canonical form requires |Nanoseconds| < 1e9 and that
// Seconds and Nanoseconds share a sign, or one of them is zero.
type TimeInternal struct {
	Seconds     int32
	Nanoseconds int32
}

// canonicalize brings a (seconds, nanoseconds) pair into canonical form by
// carrying any excess nanoseconds into seconds and aligning signs.
func canonicalize(sec, nsec int64) TimeInternal {
	sec += nsec / nsPerSecond
	nsec %= nsPerSecond
	if sec > 0 && nsec < 0 {
		sec--
		nsec += nsPerSecond
	} else if sec < 0 && nsec > 0 {
		sec++
		nsec -= nsPerSecond
	}
	return TimeInternal{Seconds: int32(sec), Nanoseconds: int32(nsec)}
}

// Add returns a+b in canonical form.
func Add(a, b TimeInternal) TimeInternal {
	return canonicalize(int64(a.Seconds)+int64(b.Seconds), int64(a.Nanoseconds)+int64(b.Nanoseconds))
}

// Sub returns a-b in canonical form.
func Sub(a, b TimeInternal) TimeInternal {
	return canonicalize(int64(a.Seconds)-int64(b.Seconds), int64(a.Nanoseconds)-int64(b.Nanoseconds))
}

// IsZero reports whether t represents exactly zero.
func (t TimeInternal) IsZero() bool {
	return t.Seconds == 0 && t.Nanoseconds == 0
}

// Duration converts a TimeInternal to a time.Duration.
func (t TimeInternal) Duration() time.Duration {
	return time.Duration(t.Seconds)*time.Second + time.Duration(t.Nanoseconds)
}

// FromDuration builds a canonical TimeInternal from a time.Duration.
func FromDuration(d time.Duration) TimeInternal {
	return canonicalize(int64(d/time.Second), int64(d%time.Second))
}

// FromTime builds a canonical TimeInternal from a time.Time, relative to
// the Unix epoch.
func FromTime(t time.Time) TimeInternal {
	return canonicalize(t.Unix(), int64(t.Nanosecond()))
}

// Time converts a TimeInternal to a time.Time relative to the Unix epoch.
func (t TimeInternal) Time() time.Time {
	return time.Unix(int64(t.Seconds), int64(t.Nanoseconds))
}

// TimeRepresentation is the on-wire time format: unsigned seconds plus a
// nanoseconds field whose top bit (the "half-epoch" bit) carries the sign
// of the represented value.
type TimeRepresentation struct {
	Seconds     uint32
	Nanoseconds uint32
}

// ToInternalTime converts a wire TimeRepresentation to internal form.
// halfEpoch is accepted but does not affect the conversion.
func ToInternalTime(tr TimeRepresentation, halfEpoch bool) TimeInternal {
	negative := tr.Nanoseconds&halfEpochBit != 0
	nsec := int32(tr.Nanoseconds &^ halfEpochBit)
	sec := int32(tr.Seconds)
	if negative {
		return TimeInternal{Seconds: -sec, Nanoseconds: -nsec}
	}
	return TimeInternal{Seconds: sec, Nanoseconds: nsec}
}

// FromInternalTime converts an internal TimeInternal to wire form.
func FromInternalTime(t TimeInternal, halfEpoch bool) TimeRepresentation {
	if t.Seconds < 0 || t.Nanoseconds < 0 {
		return TimeRepresentation{
			Seconds:     uint32(-t.Seconds),
			Nanoseconds: uint32(-t.Nanoseconds) | halfEpochBit,
		}
	}
	return TimeRepresentation{
		Seconds:     uint32(t.Seconds),
		Nanoseconds: uint32(t.Nanoseconds),
	}
}
