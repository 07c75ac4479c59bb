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

package timesource

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/ptpd1/ptpd/phc"
	"github.com/ptpd1/ptpd/protocol"
)

// nicSource disciplines a NIC's PTP hardware clock (PHC) through its
// /dev/ptpN device node.
type nicSource struct {
	file     *os.File
	dev      *phc.NICClock
	noAdjust bool
	maxAdj   float64

	rx rxFIFO
	tx txSlot
}

func newNICSource(iface string, noAdjust bool) (*nicSource, error) {
	devicePath, err := phc.IfaceToPHCDevice(iface)
	if err != nil {
		return nil, fmt.Errorf("resolving PHC device for %s: %w", iface, err)
	}
	f, err := os.OpenFile(devicePath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", devicePath, err)
	}
	dev := phc.FromFile(f)
	maxAdj, err := dev.MaxFreqAdjPPB()
	if err != nil || maxAdj == 0 {
		maxAdj = phc.DefaultMaxClockFreqPPB
	}
	return &nicSource{file: f, dev: dev, noAdjust: noAdjust, maxAdj: maxAdj}, nil
}

func (s *nicSource) GetTime() (protocol.TimeInternal, error) {
	t, err := s.dev.Time()
	if err != nil {
		return protocol.TimeInternal{}, err
	}
	return protocol.FromTime(t), nil
}

func (s *nicSource) SetTime(t protocol.TimeInternal) error {
	if s.noAdjust {
		return nil
	}
	now, err := s.dev.Time()
	if err != nil {
		return err
	}
	log.Infof("timesource: stepping NIC clock to %v", t.Time())
	return s.dev.Step(t.Time().Sub(now))
}

func (s *nicSource) AdjTimeOffset(offset protocol.TimeInternal) error {
	if s.noAdjust {
		return nil
	}
	return s.dev.Step(-offset.Duration())
}

func (s *nicSource) AdjTime(adjPPB int64, offset protocol.TimeInternal) error {
	if s.noAdjust {
		return nil
	}
	if float64(abs64(adjPPB)) > s.maxAdj {
		// Cannot slew by this much in one go; this variant has no tick
		// term to absorb the overflow, so it falls back to stepping.
		return s.AdjTimeOffset(offset)
	}
	return s.dev.AdjFreq(float64(adjPPB))
}

func (s *nicSource) PushReceiveTime(uuid protocol.UUID, seqID uint16, ts protocol.TimeInternal) {
	s.rx.push(uuid, seqID, ts)
}

func (s *nicSource) GetReceiveTime(uuid protocol.UUID, seqID uint16) (protocol.TimeInternal, bool) {
	return s.rx.get(uuid, seqID)
}

func (s *nicSource) SetSendTime(ts protocol.TimeInternal) {
	s.tx.set(ts)
}

func (s *nicSource) GetSendTime() (protocol.TimeInternal, bool) {
	return s.tx.get()
}

func (s *nicSource) Idle() {}

func (s *nicSource) Close() error {
	return s.file.Close()
}
