// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package netio provides the one concrete iface.Network collaborator
// this repository ships: a plain UDP socket. The core pipeline only
// ever depends on the iface.Network interface; this is the
// implementation cmd/rocrecv and cmd/rocsend use.
package netio

import (
	"net"
	"time"

	"github.com/rocwire/rocstream/internal/iface"
)

// UDPConn adapts a *net.UDPConn to iface.Network. Recv never blocks on
// the pipeline's behalf: it suspends only inside ReadFromUDP.
type UDPConn struct {
	conn *net.UDPConn
	mtu  int
}

// Listen opens a UDP socket at addr (e.g. ":4010") sized for datagrams
// up to mtu bytes.
func Listen(addr string, mtu int) (*UDPConn, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	return &UDPConn{conn: conn, mtu: mtu}, nil
}

// Recv blocks until one datagram arrives, tagging it with the
// receiver's arrival time.
func (u *UDPConn) Recv() (iface.Datagram, error) {
	buf := make([]byte, u.mtu)
	n, addr, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		return iface.Datagram{}, err
	}
	return iface.Datagram{
		Bytes:    buf[:n],
		Arrival:  time.Now(),
		PeerAddr: addr,
	}, nil
}

// Send writes b to dest.
func (u *UDPConn) Send(b []byte, dest net.Addr) error {
	_, err := u.conn.WriteTo(b, dest)
	return err
}

// Close closes the underlying socket, unblocking any in-flight Recv.
func (u *UDPConn) Close() error {
	return u.conn.Close()
}

// LocalAddr returns the socket's bound address.
func (u *UDPConn) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}
