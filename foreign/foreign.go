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

// Package foreign holds the bounded ring of observed master candidates
// that feeds the Best Master Clock decision (spec §4.5,
// `addForeign` in `original_source/src/protocol.c`).
package foreign

import (
	"github.com/ptpd1/ptpd/protocol"
)

// DefaultCapacity is the original's default max_foreign_records.
const DefaultCapacity = 5

// Record is one observed candidate master: its identity, the last Sync
// it sent (and the header that carried it), and how many Syncs it has
// sent in total.
type Record struct {
	Identity protocol.PortIdentity
	Header   protocol.Header
	Sync     protocol.SyncBody
	SyncCount uint32
}

// Set is the fixed-capacity, round-robin foreign-master ring.
type Set struct {
	capacity int
	records  []Record

	insertAt int
	best     int
}

// NewSet builds an empty set with the given capacity (spec's
// max_foreign_records; 0 or negative falls back to DefaultCapacity).
func NewSet(capacity int) *Set {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Set{capacity: capacity}
}

// Len returns the number of records currently held.
func (s *Set) Len() int { return len(s.records) }

// Records returns the live records, in ring order.
func (s *Set) Records() []Record { return s.records }

// Best returns the record BMC last selected, if any.
func (s *Set) Best() (Record, bool) {
	if s.best >= len(s.records) {
		return Record{}, false
	}
	return s.records[s.best], true
}

// SetBest records which index BMC most recently picked, so the next
// Update scan starts there (mirroring the original's
// foreign_record_best-first scan order).
func (s *Set) SetBest(i int) {
	if i >= 0 && i < len(s.records) {
		s.best = i
	}
}

// Update records a Sync from identity, either bumping an existing
// record's sync count or inserting a new one at the round-robin index,
// overwriting the oldest entry once the ring is full. It reports whether
// this was a new identity (the original's "not found" branch), which the
// caller uses to decide whether BMC needs to re-run.
func (s *Set) Update(identity protocol.PortIdentity, header protocol.Header, sync protocol.SyncBody) (isNew bool) {
	start := s.best
	for i := 0; i < len(s.records); i++ {
		j := (start + i) % len(s.records)
		if s.records[j].Identity == identity {
			s.records[j].SyncCount++
			s.records[j].Header = header
			s.records[j].Sync = sync
			return false
		}
	}

	var j int
	if len(s.records) < s.capacity {
		j = len(s.records)
		s.records = append(s.records, Record{})
	} else {
		j = s.insertAt
	}
	s.records[j] = Record{Identity: identity, Header: header, Sync: sync, SyncCount: 1}
	s.insertAt = (s.insertAt + 1) % s.capacity
	return true
}
