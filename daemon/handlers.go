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
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/ptpd1/ptpd/bmc"
	"github.com/ptpd1/ptpd/protocol"
	"github.com/ptpd1/ptpd/ptimer"
)

// handleEvent dispatches one event-socket datagram (Sync or Delay-Req,
// the two message types that need a receive timestamp). badTime signals a
// missing ("bad") timestamp: spec §4.2's "no timestamp rather than a
// synthesized value". A present rxTime is corrected by cfg.InboundLatency.
func (p *Port) handleEvent(raw []byte, _ *net.UDPAddr, rxTime protocol.TimeInternal, badTime bool) {
	if !badTime {
		rxTime = protocol.Sub(rxTime, protocol.FromDuration(p.cfg.InboundLatency))
	}
	pkt, err := protocol.DecodePacket(raw)
	if err != nil {
		log.Debugf("daemon: dropping malformed event packet: %v", err)
		if len(raw) < protocol.HeaderLength {
			// Short messages of an expected type are a fatal fault per
			// spec §4.8; a below-header-length datagram can't even be
			// attributed to a type, so treat it the same way.
			p.fault(err)
		}
		return
	}
	h := pkt.GetHeader()
	if !p.acceptsHeader(h) {
		log.Debugf("daemon: dropping event packet: version/subdomain mismatch")
		return
	}

	switch msg := pkt.(type) {
	case *protocol.Sync:
		p.handleSync(h, &msg.SyncBody, rxTime)
	case *protocol.DelayReq:
		p.handleDelayReq(h, &msg.SyncBody, rxTime, badTime)
	default:
		log.Debugf("daemon: unexpected message type %s on event socket", h.MessageType)
	}
}

// handleGeneral dispatches one general-socket datagram (Follow-Up,
// Delay-Resp, or Management).
func (p *Port) handleGeneral(raw []byte, _ *net.UDPAddr) {
	pkt, err := protocol.DecodePacket(raw)
	if err != nil {
		log.Debugf("daemon: dropping malformed general packet: %v", err)
		return
	}
	h := pkt.GetHeader()
	if !p.acceptsHeader(h) {
		log.Debugf("daemon: dropping general packet: version/subdomain mismatch")
		return
	}

	switch msg := pkt.(type) {
	case *protocol.FollowUp:
		p.handleFollowUp(h, &msg.FollowUpBody)
	case *protocol.DelayResp:
		p.handleDelayResp(h, &msg.DelayRespBody)
	case *protocol.Management:
		p.handleManagement(h, &msg.ManagementBody)
	default:
		log.Debugf("daemon: unexpected message type %s on general socket", h.MessageType)
	}
}

// handleSync implements spec §4.8's Sync handling for both SLAVE and
// MASTER.
func (p *Port) handleSync(h *protocol.Header, body *protocol.SyncBody, rxTime protocol.TimeInternal) {
	if p.state == StateSlave {
		p.handleSyncAsSlave(h, body, rxTime)
		return
	}

	if p.state != StateMaster && p.state != StateListening && p.state != StatePassive && p.state != StateUncalibrated {
		return
	}
	if h.SourceIdentity() == p.identity {
		// Our own Sync looped back on the multicast group; its TX
		// timestamp and Follow-Up were already handled synchronously in
		// issueSync, so there is nothing left to do here.
		return
	}
	if h.SourceCommTech != protocol.CommTechnologyEthernet && h.SourceCommTech != protocol.CommTechnologyDefault {
		return
	}
	if h.Flags&protocol.FlagSyncBurst != 0 && !p.cfg.BurstEnabled {
		return
	}
	isNew := p.foreignSet.Update(h.SourceIdentity(), *h, *body)
	if isNew {
		p.runBMC()
	}
}

// handleSyncAsSlave implements the SLAVE branch of spec §4.8's Sync
// handling.
//
// Open question (spec §9): the original's handleSync falls through from
// the SLAVE case into the generic MASTER/foreign-set branch with no
// break, so a SLAVE's accepted Sync is also inserted into its own
// foreign set. This implementation makes that explicit instead of
// relying on fallthrough: only an accepted Sync from the current parent
// is recorded in the foreign set. A Sync from any other source, or one
// rejected below, is never added, so while SLAVE a newly appearing master
// neither enters the foreign set nor triggers BMC.
func (p *Port) handleSyncAsSlave(h *protocol.Header, body *protocol.SyncBody, rxTime protocol.TimeInternal) {
	if h.Flags&protocol.FlagSyncBurst != 0 && !p.cfg.BurstEnabled {
		return
	}
	if !p.haveParent || h.SourceIdentity() != p.parent {
		return
	}
	if !seqGreater(h.SequenceID, p.parentLastSyncSeq) {
		return
	}

	p.parentLastSyncSeq = h.SequenceID
	p.lastSyncSeq = h.SequenceID
	p.lastSyncBody = *body
	p.syncReceiveTime = rxTime

	if h.Flags&protocol.FlagAssist == 0 {
		origin := protocol.ToInternalTime(body.OriginTimestamp, false)
		p.masterToSlaveDelay = protocol.Sub(rxTime, origin)
		offset := p.ofm.Sample(p.owd.OneWayDelay(), origin, rxTime)
		p.updateClock(offset)
	} else {
		p.waitingForFollow = true
	}

	p.syncCount++
	if p.syncCount >= p.delayReqThreshold {
		p.syncCount = 0
		p.delayReqThreshold = p.nextDelayReqRedraw()
		p.issueDelayReq()
	}

	p.timers.Start(ptimer.SyncReceiptTimer, ptimer.SyncReceiptTimeout(p.syncInterval))

	isNew := p.foreignSet.Update(h.SourceIdentity(), *h, *body)
	if isNew {
		p.runBMC()
	}
}

// handleFollowUp implements spec §4.8's Follow-Up handling (SLAVE only).
func (p *Port) handleFollowUp(h *protocol.Header, body *protocol.FollowUpBody) {
	if p.state != StateSlave || !p.waitingForFollow {
		return
	}
	// Preserves the original's ordering (spec §9's third open question):
	// lastSyncSeq was already updated by handleSyncAsSlave before
	// this comparison runs, exactly as s1() runs ahead of the Follow-Up
	// match in the source.
	if body.AssociatedSequenceID != p.lastSyncSeq {
		return
	}
	p.waitingForFollow = false

	origin := protocol.ToInternalTime(body.PreciseOriginTimestamp, false)
	p.masterToSlaveDelay = protocol.Sub(p.syncReceiveTime, origin)
	offset := p.ofm.Sample(p.owd.OneWayDelay(), origin, p.syncReceiveTime)
	p.updateClock(offset)
}

// handleDelayReq implements spec §4.8's Delay-Req handling for MASTER.
// The SLAVE side of Delay-Req (capturing its own send time) happens
// synchronously in issueDelayReq rather than via a loopback arrival here
// (see issueDelayReq's comment).
func (p *Port) handleDelayReq(h *protocol.Header, body *protocol.SyncBody, rxTime protocol.TimeInternal, badTime bool) {
	if p.state != StateMaster {
		return
	}
	if h.SourceIdentity() == p.identity {
		return
	}
	if badTime {
		log.Debugf("daemon: not answering Delay-Req from %s: no receive timestamp", h.SourceIdentity().UUID)
		return
	}

	resp := &protocol.DelayResp{
		Header: p.buildHeader(protocol.MessageDelayResp, protocol.ControlDelayResp, p.nextGeneralSeq()),
		DelayRespBody: protocol.DelayRespBody{
			DelayReceiptTimestamp:          protocol.FromInternalTime(rxTime, false),
			RequestingSourceCommTechnology: h.SourceCommTech,
			RequestingSourceUUID:           h.SourceUUID,
			RequestingSourcePortID:         h.SourcePortID,
			RequestingSourceSequenceID:     h.SequenceID,
		},
	}
	raw, err := protocol.Bytes(resp)
	if err != nil {
		p.fault(err)
		return
	}
	if err := p.conn.SendGeneral(raw); err != nil {
		p.fault(err)
	}
}

// handleDelayResp implements spec §4.8's Delay-Resp handling (SLAVE
// only): match on the requesting triple, then complete the delay
// measurement once both timestamps of the round trip are in hand.
func (p *Port) handleDelayResp(h *protocol.Header, body *protocol.DelayRespBody) {
	if p.state != StateSlave {
		return
	}
	req := body.RequestingSourceIdentity()
	if req != p.identity || body.RequestingSourceSequenceID != p.delayReqSeq {
		return
	}

	p.delayReqRecvTime = protocol.ToInternalTime(body.DelayReceiptTimestamp, false)
	p.haveDelayReqRecv = true
	p.maybeFinishDelay()
}

// handleManagement implements spec §4.8's routing contract: GET_*
// requests are answered (out of scope: the per-key reply payload shape),
// everything else is passed to applyManagement.
func (p *Port) handleManagement(h *protocol.Header, body *protocol.ManagementBody) {
	target := body.TargetIdentity()
	broadcast := target.UUID == (protocol.UUID{})
	if !broadcast && target.UUID != p.identity.UUID {
		return
	}
	if target.PortID != protocol.AllPorts && target.PortID != p.identity.PortID {
		return
	}

	if body.ManagementMessageKey.IsGet() {
		p.issueManagementReply(h, body)
		return
	}
	p.applyManagement(body)
}

// issueManagementReply answers a GET_* request. The reply's Data payload
// shape is out of scope (spec §1); only that a reply is sent, addressed
// back to the requester, is implemented.
func (p *Port) issueManagementReply(h *protocol.Header, req *protocol.ManagementBody) {
	reply := &protocol.Management{
		Header: p.buildHeader(protocol.MessageManagement, protocol.ControlManagement, p.nextGeneralSeq()),
		ManagementBody: protocol.ManagementBody{
			TargetCommTechnology: h.SourceCommTech,
			TargetUUID:           h.SourceUUID,
			TargetPortID:         h.SourcePortID,
			ManagementMessageKey: req.ManagementMessageKey,
		},
	}
	raw, err := protocol.Bytes(reply)
	if err != nil {
		p.fault(err)
		return
	}
	if err := p.conn.SendGeneral(raw); err != nil {
		p.fault(err)
	}
}

// applyManagement handles a non-GET management request by logging it:
// SET_DEFAULT_DATA_SET is logged at Info, anything else at Debug. No
// management key changes the port's state or configuration (per-key
// mutation semantics are out of scope, spec §1).
func (p *Port) applyManagement(body *protocol.ManagementBody) {
	switch body.ManagementMessageKey {
	case protocol.ManagementKeySetDefaultDataSet:
		log.Infof("daemon: port %s: management SET_DEFAULT_DATA_SET", p.identity.UUID)
	default:
		log.Debugf("daemon: port %s: ignoring management key %d", p.identity.UUID, body.ManagementMessageKey)
	}
}

// runBMC re-evaluates the foreign set against this clock's own
// properties and drives the resulting state transition, per spec §4.7.
func (p *Port) runBMC() {
	own := bmc.Properties{
		Stratum:    p.cfg.Stratum,
		Identifier: p.cfg.ClockIdentifier,
		Variance:   p.cfg.ClockVariance,
		UUID:       p.identity.UUID,
	}

	rec, idx := bmc.Recommend(own, p.foreignSet)
	switch rec {
	case bmc.RecommendMaster:
		if p.cfg.SlaveOnly {
			p.toState(StateListening)
			return
		}
		p.toState(StateMaster)

	case bmc.RecommendSlave:
		best := p.foreignSet.Records()[idx]
		p.foreignSet.SetBest(idx)
		p.haveParent = true
		p.parent = best.Identity
		p.parentLastSyncSeq = best.Header.SequenceID
		p.toState(StateSlave)

	case bmc.RecommendPassive:
		p.foreignSet.SetBest(idx)
		p.toState(StatePassive)
	}
}

// seqGreater reports whether a is strictly greater than b modulo 2^16,
// per spec §4.8's "wrapping is defined modulo 2^16".
func seqGreater(a, b uint16) bool {
	return int16(a-b) > 0
}
