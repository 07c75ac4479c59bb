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
	"context"
	"errors"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ptpd1/ptpd/protocol"
)

// idlePollInterval bounds how long the dispatch loop ever blocks without
// re-checking the timer set, even when nothing is armed.
const idlePollInterval = time.Second

// reinitBackoff is how long Run waits before retrying doInit after a
// failed FAULTY->INITIALIZING self-heal.
const reinitBackoff = time.Second

var errFaulted = errors.New("daemon: port entered FAULTY, reinitializing")

type eventPacket struct {
	data    []byte
	from    *net.UDPAddr
	rx      protocol.TimeInternal
	badTime bool
}

type generalPacket struct {
	data []byte
	from *net.UDPAddr
}

// Run drives the port for as long as ctx is live. Each pass binds one
// errgroup-supervised session to the port's current connection (spec
// §4.9's event loop, given the goroutine shape of
// `ptp/sptp/client/sptp.go`); a FAULTY transition ends the session and
// Run calls doInit to self-heal before starting the next one, per spec
// §4.8's "FAULTY auto-transitions to INITIALIZING on the next iteration".
// Run returns nil on a clean ctx cancellation.
func (p *Port) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := p.runSession(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errFaulted) {
			return err
		}

		if err := p.doInit(); err != nil {
			log.Errorf("daemon: port: re-init failed, retrying: %v", err)
			select {
			case <-time.After(reinitBackoff):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// runSession supervises one generation of the port's connection: two
// goroutines read the event/general sockets and hand packets to the
// single dispatch goroutine, a third closes the connection when the
// session ends (unblocking the readers), per spec §5's single-threaded
// dispatch guarantee — only dispatchLoop ever mutates port state.
func (p *Port) runSession(ctx context.Context) error {
	eg, sctx := errgroup.WithContext(ctx)
	conn := p.conn

	eventCh := make(chan eventPacket, 8)
	generalCh := make(chan generalPacket, 8)
	faultCh := make(chan error, 2)

	eg.Go(func() error {
		for {
			b, from, ts, err := conn.ReceiveEvent()
			if err != nil {
				select {
				case faultCh <- err:
				case <-sctx.Done():
				}
				return nil
			}
			select {
			case eventCh <- eventPacket{data: b, from: from, rx: protocol.FromTime(ts), badTime: ts.IsZero()}:
			case <-sctx.Done():
				return nil
			}
		}
	})

	eg.Go(func() error {
		for {
			b, from, err := conn.ReceiveGeneral()
			if err != nil {
				select {
				case faultCh <- err:
				case <-sctx.Done():
				}
				return nil
			}
			select {
			case generalCh <- generalPacket{data: b, from: from}:
			case <-sctx.Done():
				return nil
			}
		}
	})

	eg.Go(func() error {
		<-sctx.Done()
		conn.Close()
		return nil
	})

	eg.Go(func() error {
		return p.dispatchLoop(sctx, eventCh, generalCh, faultCh)
	})

	_ = eg.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if p.state == StateFaulty {
		return errFaulted
	}
	return nil
}

// dispatchLoop is the single-threaded heart of the event loop (spec §5:
// "no message is processed until the previous handler has returned").
// Event-socket packets are drained ahead of general-socket packets
// whenever both are pending, per spec §4.9.
func (p *Port) dispatchLoop(ctx context.Context, eventCh <-chan eventPacket, generalCh <-chan generalPacket, faultCh <-chan error) error {
	for {
		select {
		case pkt := <-eventCh:
			p.handleEvent(pkt.data, pkt.from, pkt.rx, pkt.badTime)
			p.checkTimers()
			if p.state == StateFaulty {
				return errFaulted
			}
			continue
		default:
		}

		timeout := idlePollInterval
		if d, ok := p.timers.NextDeadline(); ok && d < timeout {
			timeout = d
		}
		timer := time.NewTimer(timeout)

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case err := <-faultCh:
			timer.Stop()
			p.fault(err)
			// Returning a non-nil error here (rather than nil) is what
			// makes errgroup cancel sctx immediately: canceling only on
			// Wait() returning would be too late, since the closer
			// goroutine that unblocks the still-running readers is
			// itself waiting on sctx.Done().
			return errFaulted

		case pkt := <-eventCh:
			timer.Stop()
			p.handleEvent(pkt.data, pkt.from, pkt.rx, pkt.badTime)

		case pkt := <-generalCh:
			timer.Stop()
			p.handleGeneral(pkt.data, pkt.from)

		case <-timer.C:
			p.source.Idle()
		}

		p.checkTimers()
		if p.state == StateFaulty {
			return errFaulted
		}
	}
}
