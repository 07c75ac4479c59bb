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
	log "github.com/sirupsen/logrus"

	"github.com/ptpd1/ptpd/protocol"
	"github.com/ptpd1/ptpd/servo"
)

// SetBurst turns burst-sync mode on or off (spec §9's supplemented
// "burst-sync gating"): while active and cfg.BurstEnabled is set,
// outgoing Syncs carry FlagSyncBurst. Incoming burst-flagged Syncs are
// accepted whenever cfg.BurstEnabled is set, independent of this switch.
// Off by default.
func (p *Port) SetBurst(active bool) {
	p.burstActive = active
}

// issueSync sends a periodic MASTER Sync and, since this implementation
// always runs two-step (spec's message set always includes Follow-Up),
// immediately follows it with a Follow-Up carrying the precise TX time.
//
// This captures the TX timestamp directly from SendEvent's return value
// rather than by detecting the Sync's own multicast loopback arrival in
// handleSync: netio.Conn.SendEvent already resolves to the correct
// precision (a clock read right after the send when no kernel stamping is
// armed, kernel-reported otherwise) at the point of the call, so there is
// no need to round-trip
// through the receive path to learn it.
func (p *Port) issueSync() {
	seq := p.nextEventSeq()
	hdr := p.buildHeader(protocol.MessageSync, protocol.ControlSync, seq)
	hdr.Flags |= protocol.FlagAssist
	if p.cfg.BurstEnabled && p.burstActive {
		hdr.Flags |= protocol.FlagSyncBurst
	}

	now, err := p.source.GetTime()
	if err != nil {
		p.fault(err)
		return
	}

	sync := &protocol.Sync{Header: hdr, SyncBody: p.grandmasterSyncBody(seq, now)}
	raw, err := protocol.Bytes(sync)
	if err != nil {
		p.fault(err)
		return
	}
	txTime, err := p.conn.SendEvent(raw)
	if err != nil {
		p.fault(err)
		return
	}

	precise := protocol.Add(protocol.FromTime(txTime), protocol.FromDuration(p.cfg.OutboundLatency))
	p.issueFollowUp(seq, precise)
}

func (p *Port) issueFollowUp(associatedSeq uint16, preciseOrigin protocol.TimeInternal) {
	fu := &protocol.FollowUp{
		Header: p.buildHeader(protocol.MessageFollowUp, protocol.ControlFollowUp, p.nextGeneralSeq()),
		FollowUpBody: protocol.FollowUpBody{
			AssociatedSequenceID:   associatedSeq,
			PreciseOriginTimestamp: protocol.FromInternalTime(preciseOrigin, false),
		},
	}
	raw, err := protocol.Bytes(fu)
	if err != nil {
		p.fault(err)
		return
	}
	if err := p.conn.SendGeneral(raw); err != nil {
		p.fault(err)
	}
}

// issueDelayReq sends a Delay-Req and records its own send time directly
// from SendEvent's return, for the same reason issueSync does: the
// loopback-arrival path spec §4.8 describes for "own" Delay-Req handling
// is unnecessary once SendEvent already returns the resolved TX time.
func (p *Port) issueDelayReq() {
	seq := p.nextEventSeq()
	hdr := p.buildHeader(protocol.MessageDelayReq, protocol.ControlDelayReq, seq)
	dreq := &protocol.DelayReq{Header: hdr, SyncBody: p.lastSyncBody}
	raw, err := protocol.Bytes(dreq)
	if err != nil {
		p.fault(err)
		return
	}
	txTime, err := p.conn.SendEvent(raw)
	if err != nil {
		p.fault(err)
		return
	}

	p.delayReqSeq = seq
	p.delayReqSendTime = protocol.Add(protocol.FromTime(txTime), protocol.FromDuration(p.cfg.OutboundLatency))
	p.haveDelayReqSend = true
	p.maybeFinishDelay()
}

// maybeFinishDelay completes the one-way-delay measurement once both legs
// of the Delay-Req/Delay-Resp round trip are known, per spec §4.8.
func (p *Port) maybeFinishDelay() {
	if !p.haveDelayReqSend || !p.haveDelayReqRecv {
		return
	}
	p.owd.Sample(p.masterToSlaveDelay, p.delayReqSendTime, p.delayReqRecvTime)
	p.haveDelayReqSend = false
	p.haveDelayReqRecv = false
}

// updateClock runs the filtered offset through the PI servo and applies
// the result to the time source, per spec §4.6.
func (p *Port) updateClock(offset protocol.TimeInternal) {
	adjPPB, state := p.servo.Sample(offset)

	switch state {
	case servo.StateJump:
		// Clock stepping is logged at a level above the usual sample
		// chatter, per spec §7 ("Clock stepping is logged at NOTICE
		// level"); logrus has no Notice level, so Info is the closest
		// equivalent that is still on by default.
		log.Infof("daemon: port %s: stepping clock by %v", p.identity.UUID, offset.Duration())
		if err := p.source.AdjTimeOffset(offset); err != nil {
			p.fault(err)
			return
		}
		p.servo.Reset()
		p.owd.Reset()
		p.ofm.Reset()
	case servo.StateLocked:
		if err := p.source.AdjTime(adjPPB, offset); err != nil {
			p.fault(err)
			return
		}
	}

	if p.cfg.Stats != nil {
		p.cfg.Stats.RecordSample(offset, p.owd.OneWayDelay(), p.servo.Drift(), state)
	}
}

// grandmasterSyncBody builds the SyncBody this port advertises as MASTER:
// its own clock is the grandmaster and its own parent, since it sits at
// the root of its view of the hierarchy.
func (p *Port) grandmasterSyncBody(seq uint16, now protocol.TimeInternal) protocol.SyncBody {
	return protocol.SyncBody{
		OriginTimestamp: protocol.FromInternalTime(now, false),

		GrandmasterCommTechnology:  p.identity.CommTechnology,
		GrandmasterClockUUID:       p.identity.UUID,
		GrandmasterPortID:          p.identity.PortID,
		GrandmasterSequenceID:      seq,
		GrandmasterClockStratum:    p.cfg.Stratum,
		GrandmasterClockIdentifier: p.cfg.ClockIdentifier,
		GrandmasterClockVariance:   p.cfg.ClockVariance,

		SyncInterval: p.syncInterval,

		LocalClockVariance:   p.cfg.ClockVariance,
		LocalClockStratum:    p.cfg.Stratum,
		LocalClockIdentifier: p.cfg.ClockIdentifier,

		ParentCommTechnology:         p.identity.CommTechnology,
		ParentUUID:                   p.identity.UUID,
		ParentPortID:                 p.identity.PortID,
		ParentLastSyncSequenceNumber: seq,
	}
}
