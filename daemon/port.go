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
	"fmt"
	"math/rand"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ptpd1/ptpd/filter"
	"github.com/ptpd1/ptpd/foreign"
	"github.com/ptpd1/ptpd/netio"
	"github.com/ptpd1/ptpd/protocol"
	"github.com/ptpd1/ptpd/ptimer"
	"github.com/ptpd1/ptpd/servo"
	"github.com/ptpd1/ptpd/timesource"
)

// versionPTP and versionNetwork are the only wire version this
// implementation speaks; any other value on a received header is a
// silently-dropped mismatch per spec §4.8.
const (
	versionPTP     uint16 = 1
	versionNetwork uint16 = 1
)

// delayReqIntervalBase is PTP_DELAY_REQ_INTERVAL from the original: the
// redraw of R after each Delay-Req is rand()%(delayReqIntervalBase-2)+2.
const delayReqIntervalBase = 16

// StatsRecorder receives state transitions and per-sample clock data;
// internal/stats implements it. A nil StatsRecorder is valid and simply
// means nothing is recorded.
type StatsRecorder interface {
	// RecordTransition is called by toState on every state change.
	RecordTransition(from, to State)
	// RecordSample is called after every updateClock-equivalent step,
	// per spec §9's "stats at every transition" supplement.
	RecordSample(offset, owd protocol.TimeInternal, driftPPB int64, state servo.State)
}

// Config configures a Port at construction. Only Iface, SubdomainName,
// and TimeSource have no usable zero value; everything else defaults to
// the spec's canonical values.
type Config struct {
	Iface          string
	SubdomainName  string
	UnicastAddress string
	StampMode      netio.StampMode

	TimeSource   timesource.Variant
	NoAdjust     bool
	NoResetClock bool
	SlaveOnly    bool

	AP, AI          int64
	FilterStiffness int16

	InboundLatency, OutboundLatency time.Duration

	MaxForeignRecords int
	SyncIntervalLog2  int8

	// BurstEnabled allows this port to honor/emit FlagSyncBurst Syncs
	// (spec §9 supplement); off by default.
	BurstEnabled bool

	// Stratum, ClockIdentifier, and ClockVariance are this clock's own
	// advertised quality, compared against foreign candidates by BMC.
	Stratum         uint8
	ClockIdentifier [4]byte
	ClockVariance   int16

	// Rand seeds the per-port Sync-count-before-Delay-Req draw (spec
	// §4.8's R = rand()%4+4); nil falls back to a clock-seeded source.
	Rand *rand.Rand

	Stats StatsRecorder
}

func (c *Config) setDefaults() {
	if c.AP == 0 {
		c.AP = 10
	}
	if c.AI == 0 {
		c.AI = 1000
	}
	if c.MaxForeignRecords <= 0 {
		c.MaxForeignRecords = foreign.DefaultCapacity
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
}

// portConn is the subset of *netio.Conn the daemon depends on, narrowed
// to an interface so tests can substitute a fake rather than bind real
// sockets, mirroring the teacher's UDPConn interface in
// `ptp/sptp/client/client.go`.
type portConn interface {
	SendEvent(b []byte) (time.Time, error)
	SendGeneral(b []byte) error
	ReceiveEvent() ([]byte, *net.UDPAddr, time.Time, error)
	ReceiveGeneral() ([]byte, *net.UDPAddr, error)
	Interface() *net.Interface
	Close() error
}

var _ portConn = (*netio.Conn)(nil)

// Port is the owning aggregate for all of one PTP port's mutable state
// (spec §3's "PtpClock"): network/time-source handles, timers, filters,
// servo, foreign-master set, and the per-cycle bookkeeping the state
// machine and message handlers need.
type Port struct {
	cfg Config

	conn   portConn
	source timesource.Source
	timers *ptimer.Set

	identity      protocol.PortIdentity
	subdomainName [protocol.SubdomainNameLength]byte

	state        State
	syncInterval int8

	// sequence counters. eventSeq is shared between Sync and Delay-Req
	// (spec §4.8's "last_sync_event_sequence_number"); generalSeq covers
	// Follow-Up, Delay-Resp, and Management.
	eventSeq   uint16
	generalSeq uint16

	// Parent tracking (valid only once haveParent is true).
	haveParent        bool
	parent            protocol.PortIdentity
	parentLastSyncSeq uint16

	// Per-cycle Sync/Follow-Up/Delay-Req/Delay-Resp bookkeeping.
	waitingForFollow bool
	syncReceiveTime  protocol.TimeInternal
	lastSyncSeq      uint16
	lastSyncBody     protocol.SyncBody

	delayReqSendTime protocol.TimeInternal
	haveDelayReqSend bool
	delayReqRecvTime protocol.TimeInternal
	haveDelayReqRecv bool
	delayReqSeq      uint16

	// masterToSlaveDelay is recv-send from the most recent Sync/Follow-Up
	// pair, carried forward so the next completed Delay-Req/Delay-Resp
	// round trip can average it into the one-way-delay filter (spec
	// §4.5's updateDelay).
	masterToSlaveDelay protocol.TimeInternal

	syncCount         int
	delayReqThreshold int

	owd   filter.OWDFilter
	ofm   filter.OFMFilter
	servo *servo.PiServo

	foreignSet *foreign.Set

	burstActive bool
}

// New constructs a Port: binds the network, opens the configured time
// source, and brings the state machine up through INITIALIZING to
// LISTENING (or FAULTY, surfaced as an error, if either fails — spec
// §7's "Startup fatal").
func New(cfg Config) (*Port, error) {
	cfg.setDefaults()

	p := &Port{
		cfg:     cfg,
		timers:  ptimer.NewSet(),
		owd:     filter.OWDFilter{Stiffness: cfg.FilterStiffness},
		servo:   servo.NewPiServo(servo.PiServoCfg{AP: cfg.AP, AI: cfg.AI, NoAdjust: cfg.NoAdjust, NoResetClock: cfg.NoResetClock}),
		foreignSet: foreign.NewSet(cfg.MaxForeignRecords),
		syncInterval: cfg.SyncIntervalLog2,
		state:   StateInitializing,
	}
	copy(p.subdomainName[:], cfg.SubdomainName)

	if err := p.doInit(); err != nil {
		return nil, fmt.Errorf("daemon: initial startup failed: %w", err)
	}
	return p, nil
}

// doInit (re)builds the network connection and time source and brings
// the port to LISTENING, mirroring the original's doInit being re-run on
// every entry to INITIALIZING (including FAULTY's self-heal). Any
// previously held conn/source is closed first.
func (p *Port) doInit() error {
	p.state = StateInitializing
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	if p.source != nil {
		p.source.Close()
		p.source = nil
	}

	conn, err := netio.New(netio.Config{
		Iface:          p.cfg.Iface,
		SubdomainName:  p.cfg.SubdomainName,
		UnicastAddress: p.cfg.UnicastAddress,
		StampMode:      p.cfg.StampMode,
	})
	if err != nil {
		return fmt.Errorf("binding network: %w", err)
	}

	source, err := timesource.New(p.cfg.TimeSource, p.cfg.Iface, p.cfg.NoAdjust)
	if err != nil {
		conn.Close()
		return fmt.Errorf("opening time source: %w", err)
	}

	identity, err := protocol.NewClockIdentity(conn.Interface())
	if err != nil {
		conn.Close()
		source.Close()
		return fmt.Errorf("deriving clock identity: %w", err)
	}

	p.conn = conn
	p.source = source
	p.identity = protocol.PortIdentity{CommTechnology: protocol.CommTechnologyEthernet, UUID: identity, PortID: 1}

	log.Infof("daemon: port %s initialized on %s, subdomain %q", p.identity.UUID, p.cfg.Iface, p.cfg.SubdomainName)
	p.toState(StateListening)
	return nil
}

// Close releases the port's sockets and time source.
func (p *Port) Close() error {
	var firstErr error
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			firstErr = err
		}
	}
	if p.source != nil {
		if err := p.source.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// State returns the port's current state.
func (p *Port) State() State { return p.state }

func (p *Port) nextEventSeq() uint16 {
	seq := p.eventSeq
	p.eventSeq++
	return seq
}

func (p *Port) nextGeneralSeq() uint16 {
	seq := p.generalSeq
	p.generalSeq++
	return seq
}

// nextDelayReqThreshold redraws R, the number of Syncs a slave waits
// between Delay-Req transmissions, per spec §4.8.
func (p *Port) nextDelayReqThreshold() int {
	return p.cfg.Rand.Intn(4) + 4
}

// nextDelayReqRedraw redraws R after a Delay-Req has just been sent, per
// spec §4.8: rand()%(PTP_DELAY_REQ_INTERVAL-2)+2.
func (p *Port) nextDelayReqRedraw() int {
	return p.cfg.Rand.Intn(delayReqIntervalBase-2) + 2
}

func (p *Port) buildHeader(msgType protocol.MessageType, control protocol.Control, seq uint16) protocol.Header {
	return protocol.Header{
		VersionPTP:     versionPTP,
		VersionNetwork: versionNetwork,
		SubdomainName:  p.subdomainName,
		MessageType:    msgType,
		SourceCommTech: p.identity.CommTechnology,
		SourceUUID:     p.identity.UUID,
		SourcePortID:   p.identity.PortID,
		SequenceID:     seq,
		Control:        control,
	}
}

// acceptsHeader reports whether h was sent in this port's subdomain
// with a version this port understands; mismatches are silently ignored
// per spec §4.8.
func (p *Port) acceptsHeader(h *protocol.Header) bool {
	return h.VersionPTP == versionPTP && h.SubdomainName == p.subdomainName
}
