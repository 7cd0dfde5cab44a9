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
	"sync"
	"time"
)

// requestResult is what a pending confirmed request resolves to: either an
// APDU (SimpleAck/ComplexAck/Error/Reject/Abort, decoded by the caller) or
// an error (timeout, cancellation).
type requestResult struct {
	apdu *APDU
	err  error
}

// pendingRequest is the dispatcher's bookkeeping for one in-flight
// confirmed request. It is never exposed outside this file.
type pendingRequest struct {
	invokeID uint8
	peer     *net.UDPAddr
	deadline time.Time
	reply    chan requestResult
	timer    *time.Timer
}

// dispatcher is the single source of truth for invoke-ID allocation and
// pending-request tracking. Invoke IDs are drawn from a fixed pool of 256
// (the full 8-bit space); Allocate blocks if every ID is currently in use
// rather than reusing one, so two in-flight requests never share an ID.
type dispatcher struct {
	free chan uint8

	mu      sync.Mutex
	pending map[uint8]*pendingRequest
	closed  bool
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		free:    make(chan uint8, 256),
		pending: make(map[uint8]*pendingRequest),
	}
	for i := 0; i < 256; i++ {
		d.free <- uint8(i)
	}
	return d
}

// Allocate blocks until an invoke ID is available or deadline passes (then
// it returns ErrTimeout), then registers a pending request awaiting a reply
// from peer by deadline.
func (d *dispatcher) Allocate(peer *net.UDPAddr, deadline time.Time) (uint8, <-chan requestResult, error) {
	var id uint8
	select {
	case id = <-d.free:
	default:
		// Pool exhausted; block without a busy spin, still honoring deadline.
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		select {
		case id = <-d.free:
		case <-timer.C:
			return 0, nil, ErrTimeout
		}
	}

	reply := make(chan requestResult, 1)
	pr := &pendingRequest{
		invokeID: id,
		peer:     peer,
		deadline: deadline,
		reply:    reply,
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.free <- id
		return 0, nil, ErrCancelled
	}
	d.pending[id] = pr
	d.mu.Unlock()

	pr.timer = time.AfterFunc(time.Until(deadline), func() {
		d.resolve(id, requestResult{err: &TimeoutError{Peer: peer.String(), InvokeID: id}})
	})

	return id, reply, nil
}

// Resolve delivers apdu to the pending request with the given invoke ID, if
// one exists and the peer matches. It is a no-op otherwise (e.g. a reply
// to an invoke ID that already timed out).
func (d *dispatcher) Resolve(invokeID uint8, from *net.UDPAddr, apdu *APDU) {
	d.mu.Lock()
	pr, ok := d.pending[invokeID]
	d.mu.Unlock()
	if !ok || !addrEqual(pr.peer, from) {
		return
	}
	d.resolve(invokeID, requestResult{apdu: apdu})
}

func (d *dispatcher) resolve(invokeID uint8, result requestResult) {
	d.mu.Lock()
	pr, ok := d.pending[invokeID]
	if ok {
		delete(d.pending, invokeID)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	if pr.timer != nil {
		pr.timer.Stop()
	}
	pr.reply <- result
	d.free <- invokeID
}

// Shutdown cancels every pending request and stops accepting new ones.
func (d *dispatcher) Shutdown() {
	d.mu.Lock()
	d.closed = true
	ids := make([]uint8, 0, len(d.pending))
	for id := range d.pending {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	for _, id := range ids {
		d.resolve(id, requestResult{err: ErrCancelled})
	}
}

func addrEqual(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
