// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bacnet's socket layer keeps two UDP sockets rather than one: a
// well-known-port discovery socket that other BACnet/IP stacks on the same
// host may also be bound to, and a private ephemeral-port client socket
// for unicast confirmed-request traffic. Sharing the well-known port with
// SO_REUSEPORT would let the kernel load-balance replies to confirmed
// requests across every process bound to it, delivering a reply to the
// wrong one; keeping unicast traffic off that socket avoids the problem
// entirely.
package bacnet

import (
	"fmt"
	"net"
)

// socketPair bundles the discovery and client sockets the engine listens
// and sends on.
type socketPair struct {
	discovery *net.UDPConn // bound to 0.0.0.0:port, SO_REUSEADDR/REUSEPORT
	client    *net.UDPConn // bound to an ephemeral port, unicast only
	port      int
}

// openSockets binds both sockets. The discovery socket always binds
// 0.0.0.0:port: which interface's broadcast address Who-Is goes out on is
// chosen per-send by broadcastAddr, not by restricting the bind.
func openSockets(port int) (*socketPair, error) {
	discConn, err := openDiscoverySocket(port)
	if err != nil {
		return nil, fmt.Errorf("%w: discovery socket: %v", ErrBind, err)
	}

	clientConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		discConn.Close()
		return nil, fmt.Errorf("%w: client socket: %v", ErrBind, err)
	}

	return &socketPair{discovery: discConn, client: clientConn, port: port}, nil
}

func (s *socketPair) Close() error {
	err1 := s.discovery.Close()
	err2 := s.client.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// broadcastAddr resolves the broadcast address Who-Is is sent to. When
// iface names a bound network interface with an IPv4 address, it resolves
// to that interface's subnet-directed broadcast (host | ^netmask), which
// routers pass along unlike the limited broadcast; otherwise it falls back
// to 255.255.255.255.
func broadcastAddr(iface string, port int) *net.UDPAddr {
	if addr, ok := directedBroadcast(iface); ok {
		return &net.UDPAddr{IP: addr, Port: port}
	}
	return &net.UDPAddr{IP: net.IPv4bcast, Port: port}
}

// directedBroadcast computes the IPv4 subnet-directed broadcast address of
// the named interface, e.g. 192.0.2.1/24 -> 192.0.2.255.
func directedBroadcast(iface string) (net.IP, bool) {
	if iface == "" {
		return nil, false
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, false
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, false
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			continue
		}
		mask := ipNet.Mask
		if len(mask) != net.IPv4len {
			mask = mask[len(mask)-net.IPv4len:]
		}
		broadcast := make(net.IP, net.IPv4len)
		for i := range broadcast {
			broadcast[i] = ip4[i] | ^mask[i]
		}
		return broadcast, true
	}
	return nil, false
}
