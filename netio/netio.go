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

// Package netio owns the multicast UDP transport PTPv1 runs over: binding
// the event (319) and general (320) sockets, resolving a subdomain to its
// multicast group, and capturing RX/TX timestamps at whatever precision
// the configured time source needs (spec §4.2).
package netio

import (
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

// txTimestampTimeout bounds how long a kernel-timestamped send waits
// for the kernel to deliver the TX timestamp before giving up.
const txTimestampTimeout = 500 * time.Millisecond

// Config describes how to bind a port's sockets.
type Config struct {
	Iface          string
	SubdomainName  string
	UnicastAddress string
	StampMode      StampMode
}

// Conn owns the event and general multicast sockets for one port.
type Conn struct {
	cfg Config

	iface         *net.Interface
	multicastAddr net.IP
	unicastAddr   net.IP

	event   *net.UDPConn
	general *net.UDPConn
}

// New binds and configures the event/general sockets described by cfg:
// joins the subdomain's multicast group on iface, sets TTL 1, enables
// loopback only when no kernel timestamping is in play (loopback is
// how a SYSTEM-sourced port sees its own multicast sends, mirroring
// `original_source/src/dep/net.c`'s `useSystemTimeStamps` gate on
// IP_MULTICAST_LOOP), and arms RX/TX timestamping per cfg.StampMode.
func New(cfg Config) (*Conn, error) {
	iface, err := net.InterfaceByName(cfg.Iface)
	if err != nil {
		return nil, fmt.Errorf("netio: resolving interface %s: %w", cfg.Iface, err)
	}

	group := multicastGroup(cfg.SubdomainName)
	if group == nil {
		return nil, fmt.Errorf("netio: could not resolve multicast group for subdomain %q", cfg.SubdomainName)
	}

	c := &Conn{cfg: cfg, iface: iface, multicastAddr: group}
	if cfg.UnicastAddress != "" {
		c.unicastAddr = net.ParseIP(cfg.UnicastAddress)
		if c.unicastAddr == nil {
			return nil, fmt.Errorf("netio: invalid unicast address %q", cfg.UnicastAddress)
		}
	}

	c.event, err = c.bind(EventPort)
	if err != nil {
		return nil, err
	}
	c.general, err = c.bind(GeneralPort)
	if err != nil {
		c.event.Close()
		return nil, err
	}

	for _, conn := range []*net.UDPConn{c.event, c.general} {
		if err := EnableTimestamps(cfg.StampMode, conn, cfg.Iface); err != nil {
			c.Close()
			return nil, fmt.Errorf("netio: enabling timestamps on %s: %w", cfg.Iface, err)
		}
	}

	log.Infof("netio: bound subdomain %q to multicast group %s on %s", cfg.SubdomainName, group, cfg.Iface)
	return c, nil
}

func (c *Conn) bind(port int) (*net.UDPConn, error) {
	conn, err := net.ListenMulticastUDP("udp4", c.iface, &net.UDPAddr{IP: c.multicastAddr, Port: port})
	if err != nil {
		return nil, fmt.Errorf("netio: listening on port %d: %w", port, err)
	}
	loop := c.cfg.StampMode == StampNone
	if err := setMulticastLoop(conn, loop); err != nil {
		conn.Close()
		return nil, err
	}
	if err := setMulticastTTL(conn, 1); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// SendEvent sends b on the event socket to the multicast group (or the
// configured unicast address, if any), returning the outgoing send time
// when the configured stamp mode can report one.
func (c *Conn) SendEvent(b []byte) (time.Time, error) {
	return c.send(c.event, b, EventPort)
}

// SendGeneral sends b on the general socket. General messages (Follow-Up,
// Delay-Resp, Management) never need a TX timestamp.
func (c *Conn) SendGeneral(b []byte) error {
	_, err := c.send(c.general, b, GeneralPort)
	return err
}

func (c *Conn) send(conn *net.UDPConn, b []byte, port int) (time.Time, error) {
	dest := c.destination(port)
	if _, err := conn.WriteToUDP(b, dest); err != nil {
		return time.Time{}, fmt.Errorf("netio: sending to %v: %w", dest, err)
	}
	switch c.cfg.StampMode {
	case StampNone:
		return time.Now(), nil
	default:
		return ReadTXTimestamp(conn, txTimestampTimeout)
	}
}

func (c *Conn) destination(port int) *net.UDPAddr {
	if c.unicastAddr != nil {
		return &net.UDPAddr{IP: c.unicastAddr, Port: port}
	}
	return &net.UDPAddr{IP: c.multicastAddr, Port: port}
}

// ReceiveEvent blocks for the next event-socket packet and its RX
// timestamp (hardware/software per cfg.StampMode, or time.Now for
// StampNone).
func (c *Conn) ReceiveEvent() ([]byte, *net.UDPAddr, time.Time, error) {
	return c.receive(c.event)
}

// ReceiveGeneral blocks for the next general-socket packet.
func (c *Conn) ReceiveGeneral() ([]byte, *net.UDPAddr, error) {
	b, from, _, err := c.receive(c.general)
	return b, from, err
}

func (c *Conn) receive(conn *net.UDPConn) ([]byte, *net.UDPAddr, time.Time, error) {
	if c.cfg.StampMode == StampNone {
		buf := make([]byte, payloadSizeBytes)
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return nil, nil, time.Time{}, err
		}
		return buf[:n], from, time.Now(), nil
	}
	b, from, ts, err := ReadPacketWithRXTimestamp(conn)
	return b, from, ts, err
}

// EventFd and GeneralFd expose the two sockets' raw descriptors. The
// daemon's event loop does not use them; it reads through ReceiveEvent
// and ReceiveGeneral.
func (c *Conn) EventFd() (int, error)   { return connFd(c.event) }
func (c *Conn) GeneralFd() (int, error) { return connFd(c.general) }

// Interface returns the bound network interface.
func (c *Conn) Interface() *net.Interface { return c.iface }

// Close releases both sockets.
func (c *Conn) Close() error {
	var firstErr error
	if c.event != nil {
		if err := c.event.Close(); err != nil {
			firstErr = err
		}
	}
	if c.general != nil {
		if err := c.general.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
