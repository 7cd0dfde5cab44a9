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

// vendorNames maps a subset of ASHRAE-assigned BACnet vendor IDs to their
// registered names. Not exhaustive; unknown IDs fall back to a generic name.
var vendorNames = map[uint16]string{
	0:   "ASHRAE",
	5:   "Trane",
	8:   "Johnson Controls",
	10:  "Automated Logic",
	12:  "Carrier",
	14:  "Fisher Controls",
	15:  "Honeywell",
	17:  "Alerton",
	24:  "Siemens",
	32:  "BACnet Testing Laboratories",
	36:  "Schneider Electric",
	46:  "Reliable Controls",
	91:  "PolarSoft",
	95:  "Lutron",
	185: "KMC Controls",
	260: "Distech Controls",
}

// vendorName returns the registered name for id, or a generic fallback.
func vendorName(id uint16) string {
	if name, ok := vendorNames[id]; ok {
		return name
	}
	return "Unknown Vendor"
}
