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

//go:build !linux

package bacnet

import (
	"fmt"
	"net"
)

// openDiscoverySocket binds 0.0.0.0:port without SO_REUSEPORT: that option
// is Linux-specific, and net.ListenUDP's own default SO_REUSEADDR handling
// on BSD/Darwin is enough to let the discovery socket rebind quickly
// across process restarts even if it cannot share the port concurrently
// with another process.
func openDiscoverySocket(port int) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp4", addr)
}
