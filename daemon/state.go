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

// Package daemon implements the PTPv1 port state machine: message
// dispatch, state transitions, and the event loop that drives both off
// two multicast sockets and a set of interval timers.
package daemon

import (
	log "github.com/sirupsen/logrus"

	"github.com/ptpd1/ptpd/ptimer"
)

// State is one of the nine port states of IEEE 1588-2002's state diagram.
type State uint8

// Port states.
const (
	StateInitializing State = iota
	StateFaulty
	StateListening
	StatePassive
	StateUncalibrated
	StateSlave
	StatePreMaster
	StateMaster
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateFaulty:
		return "FAULTY"
	case StateListening:
		return "LISTENING"
	case StatePassive:
		return "PASSIVE"
	case StateUncalibrated:
		return "UNCALIBRATED"
	case StateSlave:
		return "SLAVE"
	case StatePreMaster:
		return "PRE_MASTER"
	case StateMaster:
		return "MASTER"
	case StateDisabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

// toState runs the entry actions for transitioning into new and records
// the transition with the stats sink, per spec §4.8's "Actions on entry".
// It is a no-op if the port is already in new.
func (p *Port) toState(new State) {
	old := p.state
	if old == new {
		return
	}
	p.state = new
	log.Infof("daemon: port %s: %s -> %s", p.identity.UUID, old, new)
	if p.cfg.Stats != nil {
		p.cfg.Stats.RecordTransition(old, new)
	}

	switch new {
	case StateMaster:
		p.timers.Start(ptimer.SyncIntervalTimer, ptimer.SyncIntervalDuration(p.syncInterval))
		p.timers.Stop(ptimer.SyncReceiptTimer)

	case StateSlave:
		p.servo.Reset()
		p.owd.Reset()
		p.ofm.Reset()
		p.syncCount = 0
		p.delayReqThreshold = p.nextDelayReqThreshold()
		p.waitingForFollow = false
		p.haveDelayReqSend = false
		p.haveDelayReqRecv = false
		p.timers.Start(ptimer.SyncReceiptTimer, ptimer.SyncReceiptTimeout(p.syncInterval))

	case StateListening:
		p.timers.Start(ptimer.SyncReceiptTimer, ptimer.SyncReceiptTimeout(p.syncInterval))

	case StateFaulty:
		p.timers.Stop(ptimer.SyncIntervalTimer)
		p.timers.Stop(ptimer.SyncReceiptTimer)
		p.timers.Stop(ptimer.DelayReqIntervalTimer)

	case StateInitializing:
		// Entry actions run from doInit, which owns network/time-source
		// (re)construction and sets this state itself; Run calls doInit
		// again after a session ends in FAULTY.
	}
}

// fault logs err and transitions to FAULTY; the event loop's next
// iteration will call doInit, which self-heals back to INITIALIZING.
func (p *Port) fault(err error) {
	log.Errorf("daemon: port %s: fatal error, entering FAULTY: %v", p.identity.UUID, err)
	p.toState(StateFaulty)
}

// checkTimers polls every armed timer and reacts to expiry, per
// spec §4.8's timeout transitions and §4.4's timer semantics.
func (p *Port) checkTimers() {
	switch p.state {
	case StateMaster:
		if p.timers.Expired(ptimer.SyncIntervalTimer) {
			p.issueSync()
		}

	case StateListening, StatePassive, StateUncalibrated, StateSlave:
		if p.timers.Expired(ptimer.SyncReceiptTimer) {
			log.Warnf("daemon: port %s: sync receipt timeout in %s", p.identity.UUID, p.state)
			p.haveParent = false
			if p.cfg.SlaveOnly {
				p.toState(StateListening)
			} else {
				p.toState(StateMaster)
			}
		}
	}
}
