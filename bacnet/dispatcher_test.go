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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPeer() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 47808}
}

func TestDispatcherAllocateUniqueInvokeIDs(t *testing.T) {
	d := newDispatcher()
	defer d.Shutdown()

	seen := make(map[uint8]bool)
	for i := 0; i < 256; i++ {
		id, _, err := d.Allocate(testPeer(), time.Now().Add(time.Second))
		require.NoError(t, err)
		assert.False(t, seen[id], "invoke ID %d allocated twice while in flight", id)
		seen[id] = true
	}
	assert.Len(t, seen, 256)
}

func TestDispatcherAllocateBlocksWhenPoolExhausted(t *testing.T) {
	d := newDispatcher()
	defer d.Shutdown()

	for i := 0; i < 256; i++ {
		_, _, err := d.Allocate(testPeer(), time.Now().Add(time.Minute))
		require.NoError(t, err)
	}

	start := time.Now()
	_, _, err := d.Allocate(testPeer(), time.Now().Add(50*time.Millisecond))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestDispatcherResolveDeliversReply(t *testing.T) {
	d := newDispatcher()
	defer d.Shutdown()

	peer := testPeer()
	id, reply, err := d.Allocate(peer, time.Now().Add(time.Second))
	require.NoError(t, err)

	apdu := &APDU{Type: PDUTypeSimpleAck, InvokeID: id}
	d.Resolve(id, peer, apdu)

	select {
	case result := <-reply:
		require.NoError(t, result.err)
		assert.Same(t, apdu, result.apdu)
	case <-time.After(time.Second):
		t.Fatal("reply never delivered")
	}
}

func TestDispatcherResolveIgnoresMismatchedPeer(t *testing.T) {
	d := newDispatcher()
	defer d.Shutdown()

	peer := testPeer()
	id, reply, err := d.Allocate(peer, time.Now().Add(100*time.Millisecond))
	require.NoError(t, err)

	other := &net.UDPAddr{IP: net.ParseIP("10.0.0.6"), Port: 47808}
	d.Resolve(id, other, &APDU{Type: PDUTypeSimpleAck, InvokeID: id})

	select {
	case result := <-reply:
		var timeoutErr *TimeoutError
		assert.ErrorAs(t, result.err, &timeoutErr)
	case <-time.After(time.Second):
		t.Fatal("pending request never timed out")
	}
}

func TestDispatcherAllocateTimesOutWithoutReply(t *testing.T) {
	d := newDispatcher()
	defer d.Shutdown()

	peer := testPeer()
	id, reply, err := d.Allocate(peer, time.Now().Add(30*time.Millisecond))
	require.NoError(t, err)

	select {
	case result := <-reply:
		var timeoutErr *TimeoutError
		require.ErrorAs(t, result.err, &timeoutErr)
		assert.Equal(t, id, timeoutErr.InvokeID)
		assert.ErrorIs(t, result.err, ErrTimeout)
	case <-time.After(time.Second):
		t.Fatal("request never timed out")
	}
}

func TestDispatcherShutdownCancelsPending(t *testing.T) {
	d := newDispatcher()

	peer := testPeer()
	_, reply, err := d.Allocate(peer, time.Now().Add(time.Minute))
	require.NoError(t, err)

	d.Shutdown()

	select {
	case result := <-reply:
		assert.ErrorIs(t, result.err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("pending request never cancelled on shutdown")
	}

	_, _, err = d.Allocate(peer, time.Now().Add(time.Second))
	assert.ErrorIs(t, err, ErrCancelled)
}
