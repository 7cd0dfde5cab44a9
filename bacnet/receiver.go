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
	"context"
	"log/slog"
	"net"
	"sync"
)

// discoveryQueueSize bounds each discovery subscriber's channel; once full,
// the oldest undelivered device is dropped to make room for the newest one
// rather than blocking the receiver loop.
const discoveryQueueSize = 32

// receiver classifies datagrams arriving on both sockets: Unconfirmed
// Who-Is replies (I-Am) are fanned out to discovery subscribers, and
// confirmed-service replies are handed to the dispatcher for correlation
// with the request that's awaiting them.
type receiver struct {
	sockets    *socketPair
	dispatcher *dispatcher
	metrics    *Metrics
	logger     *slog.Logger

	subsMu sync.Mutex
	subs   []chan DiscoveredDevice

	onDevice func(DiscoveredDevice)
}

func newReceiver(sockets *socketPair, d *dispatcher, m *Metrics, logger *slog.Logger) *receiver {
	return &receiver{sockets: sockets, dispatcher: d, metrics: m, logger: logger}
}

// Subscribe registers a channel that receives every DiscoveredDevice
// observed from now until Unsubscribe is called.
func (r *receiver) Subscribe() chan DiscoveredDevice {
	ch := make(chan DiscoveredDevice, discoveryQueueSize)
	r.subsMu.Lock()
	r.subs = append(r.subs, ch)
	r.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (r *receiver) Unsubscribe(ch chan DiscoveredDevice) {
	r.subsMu.Lock()
	for i, c := range r.subs {
		if c == ch {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			break
		}
	}
	r.subsMu.Unlock()
	close(ch)
}

func (r *receiver) publish(dev DiscoveredDevice) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- dev:
		default:
			// Queue full: drop the oldest entry to make room, matching the
			// "prefer freshest state" semantics a device-discovery stream wants.
			select {
			case <-ch:
				r.metrics.DiscoveryDropped.Inc()
			default:
			}
			select {
			case ch <- dev:
			default:
			}
		}
	}
}

// Run reads from conn until ctx is cancelled or the socket errors; the
// engine starts one Run per socket.
// It never returns on a decode error: malformed datagrams are dropped and
// counted, never surfaced to the caller.
func (r *receiver) Run(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		r.handleDatagram(buf[:n], addr)
	}
}

func (r *receiver) handleDatagram(data []byte, addr *net.UDPAddr) {
	bvlc, err := DecodeBVLC(data)
	if err != nil {
		r.metrics.DecodeErrors.Inc()
		r.logger.Debug("dropping malformed BVLC datagram", "peer", addr, "error", err)
		return
	}
	if int(bvlc.Length) != len(data) {
		r.logger.Debug("BVLC length field mismatch, trusting datagram length",
			"peer", addr, "header_length", bvlc.Length, "datagram_length", len(data))
	}

	// Forwarded-NPDU carries a 6-byte originating-address trailer (4-byte
	// IP + 2-byte port) between the BVLC header and the NPDU.
	npduOffset := 4
	switch bvlc.Function {
	case BVLCOriginalUnicastNPDU, BVLCOriginalBroadcastNPDU:
	case BVLCForwardedNPDU:
		npduOffset = 10
	default:
		// BDT/FDT/registration traffic: foreign-device/BBMD support is out
		// of scope, so anything else on the BVLC layer is ignored.
		return
	}
	if len(data) < npduOffset {
		r.metrics.DecodeErrors.Inc()
		r.logger.Debug("dropping truncated BVLC datagram", "peer", addr, "function", bvlc.Function)
		return
	}

	npdu, offset, err := DecodeNPDU(data[npduOffset:])
	if err != nil {
		r.metrics.DecodeErrors.Inc()
		r.logger.Debug("dropping malformed NPDU", "peer", addr, "error", err)
		return
	}
	if npdu.Control&NPDUControlNetworkLayerMessage != 0 {
		// Router management traffic (network-number queries, etc.) has no
		// consumer in this engine.
		return
	}

	apdu, err := DecodeAPDU(data[npduOffset+offset:])
	if err != nil {
		r.metrics.DecodeErrors.Inc()
		r.logger.Debug("dropping malformed APDU", "peer", addr, "error", err)
		return
	}

	switch apdu.Type {
	case PDUTypeUnconfirmedRequest:
		r.handleUnconfirmed(apdu, addr)
	case PDUTypeSimpleAck, PDUTypeComplexAck, PDUTypeError, PDUTypeReject, PDUTypeAbort:
		r.metrics.ResponsesReceived.Inc()
		r.dispatcher.Resolve(apdu.InvokeID, addr, apdu)
	default:
		r.metrics.DecodeErrors.Inc()
	}
}

func (r *receiver) handleUnconfirmed(apdu *APDU, addr *net.UDPAddr) {
	if UnconfirmedServiceChoice(apdu.Service) != ServiceIAm {
		return
	}
	iam, err := DecodeIAm(apdu.Data)
	if err != nil {
		r.metrics.DecodeErrors.Inc()
		r.logger.Debug("dropping malformed I-Am", "peer", addr, "error", err)
		return
	}
	r.metrics.IAmReceived.Inc()

	dev := DiscoveredDevice{
		DeviceID:        iam.DeviceID.Instance,
		Address:         addr,
		VendorID:        iam.VendorID,
		VendorName:      vendorName(iam.VendorID),
		MaxAPDUAccepted: uint16(iam.MaxAPDULength),
		Segmentation:    iam.Segmentation,
	}
	if r.onDevice != nil {
		r.onDevice(dev)
	}
	r.publish(dev)
}
