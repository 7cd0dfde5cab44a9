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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIAmDatagram(t *testing.T, deviceID uint32, vendorID uint16) []byte {
	t.Helper()
	oid := NewObjectIdentifier(ObjectTypeDevice, deviceID)
	var body []byte
	body = append(body, EncodeObjectIdentifierTag(oid)...)
	body = append(body, EncodeUnsignedTag(1476)...)
	body = append(body, EncodeEnumeratedTag(uint32(SegmentationNone))...)
	body = append(body, EncodeUnsignedTag(uint32(vendorID))...)

	npdu := EncodeNPDU(false, NPDUControlPriorityNormal)
	apdu := EncodeUnconfirmedRequest(ServiceIAm, body)

	datagram := append(npdu, apdu...)
	bvlc := EncodeBVLC(BVLCOriginalBroadcastNPDU, len(datagram))
	return append(bvlc, datagram...)
}

// wrapForwardedNPDU prepends the BVLC-Forwarded-NPDU originating-address
// trailer (4-byte IP + 2-byte port) a BBMD inserts between its own BVLC
// header and the original NPDU/APDU.
func wrapForwardedNPDU(t *testing.T, originalDatagram []byte, origin *net.UDPAddr) []byte {
	t.Helper()
	npduAndAPDU := originalDatagram[4:]

	trailer := append(append([]byte{}, origin.IP.To4()...), byte(origin.Port>>8), byte(origin.Port))
	bvlc := EncodeBVLC(BVLCForwardedNPDU, len(trailer)+len(npduAndAPDU))
	return append(append(bvlc, trailer...), npduAndAPDU...)
}

func TestReceiverHandlesForwardedNPDU(t *testing.T) {
	r := newReceiver(nil, newDispatcher(), NewMetrics(), testLogger())
	defer r.dispatcher.Shutdown()

	ch := r.Subscribe()
	defer r.Unsubscribe(ch)

	origin := &net.UDPAddr{IP: net.ParseIP("10.0.0.20"), Port: 47808}
	datagram := wrapForwardedNPDU(t, buildIAmDatagram(t, 777, 260), origin)

	bbmd := &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 47808}
	r.handleDatagram(datagram, bbmd)

	select {
	case dev := <-ch:
		assert.EqualValues(t, 777, dev.DeviceID)
	case <-time.After(time.Second):
		t.Fatal("I-Am inside Forwarded-NPDU never published to subscriber")
	}

	assert.Equal(t, float64(0), testutil.ToFloat64(r.metrics.DecodeErrors), "Forwarded-NPDU trailer must not be mistaken for the NPDU header")
}

func TestReceiverHandlesIAmAndPublishes(t *testing.T) {
	r := newReceiver(nil, newDispatcher(), NewMetrics(), testLogger())
	defer r.dispatcher.Shutdown()

	ch := r.Subscribe()
	defer r.Unsubscribe(ch)

	var recorded DiscoveredDevice
	r.onDevice = func(dev DiscoveredDevice) { recorded = dev }

	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.20"), Port: 47808}
	r.handleDatagram(buildIAmDatagram(t, 999, 260), addr)

	select {
	case dev := <-ch:
		assert.EqualValues(t, 999, dev.DeviceID)
		assert.EqualValues(t, 260, dev.VendorID)
	case <-time.After(time.Second):
		t.Fatal("I-Am never published to subscriber")
	}

	assert.EqualValues(t, 999, recorded.DeviceID)
	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.IAmReceived))
}

func TestReceiverDropsMalformedBVLC(t *testing.T) {
	r := newReceiver(nil, newDispatcher(), NewMetrics(), testLogger())
	defer r.dispatcher.Shutdown()

	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.20"), Port: 47808}
	r.handleDatagram([]byte{0xFF, 0x00}, addr)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.DecodeErrors))
}

func TestReceiverDropsTruncatedIAmBody(t *testing.T) {
	r := newReceiver(nil, newDispatcher(), NewMetrics(), testLogger())
	defer r.dispatcher.Shutdown()

	npdu := EncodeNPDU(false, NPDUControlPriorityNormal)
	apdu := EncodeUnconfirmedRequest(ServiceIAm, EncodeObjectIdentifierTag(NewObjectIdentifier(ObjectTypeDevice, 1)))
	datagram := append(npdu, apdu...)
	bvlc := EncodeBVLC(BVLCOriginalBroadcastNPDU, len(datagram))
	full := append(bvlc, datagram...)

	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.20"), Port: 47808}
	r.handleDatagram(full, addr)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.DecodeErrors))
}

func TestReceiverDiscoveryQueueDropsOldestWhenFull(t *testing.T) {
	r := newReceiver(nil, newDispatcher(), NewMetrics(), testLogger())
	defer r.dispatcher.Shutdown()

	ch := r.Subscribe()
	defer r.Unsubscribe(ch)

	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.20"), Port: 47808}
	for i := 0; i < discoveryQueueSize+5; i++ {
		r.handleDatagram(buildIAmDatagram(t, uint32(i), 1), addr)
	}

	require.Equal(t, discoveryQueueSize, len(ch))
	assert.Greater(t, testutil.ToFloat64(r.metrics.DiscoveryDropped), float64(0))
}

func TestReceiverResolvesConfirmedReply(t *testing.T) {
	d := newDispatcher()
	defer d.Shutdown()
	r := newReceiver(nil, d, NewMetrics(), testLogger())

	peer := testPeer()
	id, reply, err := d.Allocate(peer, time.Now().Add(time.Second))
	require.NoError(t, err)

	npdu := EncodeNPDU(false, NPDUControlPriorityNormal)
	apdu := []byte{byte(PDUTypeSimpleAck), id, byte(ServiceReadProperty)}
	datagram := append(npdu, apdu...)
	bvlc := EncodeBVLC(BVLCOriginalUnicastNPDU, len(datagram))
	full := append(bvlc, datagram...)

	r.handleDatagram(full, peer)

	select {
	case result := <-reply:
		require.NoError(t, result.err)
		assert.Equal(t, PDUTypeSimpleAck, result.apdu.Type)
	case <-time.After(time.Second):
		t.Fatal("confirmed reply never resolved")
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.ResponsesReceived))
}
