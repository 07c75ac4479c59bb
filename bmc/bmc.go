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

// Package bmc implements the Best Master Clock comparison for PTPv1's
// foreign-master set (spec §4.7). v1 carries no Announce message, so the
// comparable fields (stratum, identifier, variance) travel in each
// candidate's most recent Sync instead.
package bmc

import (
	"bytes"

	"github.com/ptpd1/ptpd/foreign"
	"github.com/ptpd1/ptpd/protocol"
)

// ComparisonResult mirrors the sptp client's ComparisonResult shape
// (`sptp/bmc/bmc.go`), narrowed to the two outcomes v1's lexicographic
// compare needs.
type ComparisonResult int8

const (
	// ABetter means the first candidate is the better master.
	ABetter ComparisonResult = 1
	// Equal means the two candidates are indistinguishable by this
	// comparison (never true between distinct UUIDs, since UUID is the
	// final tie-break).
	Equal ComparisonResult = 0
	// BBetter means the second candidate is the better master.
	BBetter ComparisonResult = -1
)

// Properties is the subset of a candidate's Sync-carried clock quality
// BMC compares: stratum (lower is better), a 4-byte clock identifier,
// variance (lower is better), and the UUID used as a final tie-break.
type Properties struct {
	Stratum    uint8
	Identifier [4]byte
	Variance   int16
	UUID       protocol.UUID
}

// PropertiesFromGrandmaster extracts Properties from a Sync body's
// grandmaster-quality fields.
func PropertiesFromGrandmaster(b protocol.SyncBody) Properties {
	return Properties{
		Stratum:    b.GrandmasterClockStratum,
		Identifier: b.GrandmasterClockIdentifier,
		Variance:   b.GrandmasterClockVariance,
		UUID:       b.GrandmasterClockUUID,
	}
}

// Compare performs the lexicographic (stratum, identifier, variance,
// UUID) comparison spec §294's glossary entry names.
func Compare(a, b Properties) ComparisonResult {
	if a.Stratum != b.Stratum {
		if a.Stratum < b.Stratum {
			return ABetter
		}
		return BBetter
	}
	if c := bytes.Compare(a.Identifier[:], b.Identifier[:]); c != 0 {
		if c < 0 {
			return ABetter
		}
		return BBetter
	}
	if a.Variance != b.Variance {
		if a.Variance < b.Variance {
			return ABetter
		}
		return BBetter
	}
	if c := bytes.Compare(a.UUID[:], b.UUID[:]); c != 0 {
		if c < 0 {
			return ABetter
		}
		return BBetter
	}
	return Equal
}

// State is the recommendation BMC hands back to the protocol state
// machine (spec §4.7: "returns the recommended state").
type State int

const (
	// RecommendMaster means no better candidate was observed; this
	// clock should become/stay MASTER.
	RecommendMaster State = iota
	// RecommendSlave means Best names a strictly better master; this
	// clock should track it as SLAVE.
	RecommendSlave
	// RecommendPassive means the best candidate compares Equal to this
	// clock; this port should neither track it nor advertise itself.
	RecommendPassive
)

// Recommend runs BMC over the foreign set against this clock's own
// Properties, returning the recommended state and, when RecommendSlave
// or RecommendPassive, the winning record's index into set.Records() (spec §4.7's
// foreign_record_best).
func Recommend(own Properties, set *foreign.Set) (State, int) {
	bestIdx := -1
	var best Properties

	for i, rec := range set.Records() {
		candidate := PropertiesFromGrandmaster(rec.Sync)
		if bestIdx == -1 || Compare(candidate, best) == ABetter {
			best = candidate
			bestIdx = i
		}
	}

	if bestIdx == -1 {
		return RecommendMaster, -1
	}

	switch Compare(own, best) {
	case ABetter:
		return RecommendMaster, -1
	case Equal:
		return RecommendPassive, bestIdx
	default:
		return RecommendSlave, bestIdx
	}
}
