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

package bacnet

import (
	"net"
	"time"
)

// DiscoveredDevice is what the engine knows about a device after an I-Am.
// A later I-Am for the same DeviceID replaces the record wholesale.
type DiscoveredDevice struct {
	DeviceID        uint32
	Address         *net.UDPAddr
	VendorID        uint16
	VendorName      string
	MaxAPDUAccepted uint16
	Segmentation    Segmentation
	LastSeen        time.Time
}

// PointRecord is one polled object on a device: the last value the poller
// read, and whether that value is stale (the most recent poll attempt
// failed).
type PointRecord struct {
	Identifier  ObjectIdentifier
	CachedValue string
	Units       string
	LastUpdated time.Time
	Stale       bool
}
