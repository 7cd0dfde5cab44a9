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
	"net"
	"time"
)

// polledDevice is one device's point set under poll, as populated by a
// prior ReadObjectList call.
type polledDevice struct {
	peer    *net.UDPAddr
	records map[ObjectIdentifier]*PointRecord
}

// TrackObjectList registers deviceID's objects (as returned by
// ReadObjectList) for polling, creating one PointRecord per object. The
// device's own Device object is excluded: present-value has no meaning on
// it. A second call for the same device replaces its point set.
func (e *Engine) TrackObjectList(peer *net.UDPAddr, deviceID uint32, objects []ObjectIdentifier) {
	records := make(map[ObjectIdentifier]*PointRecord, len(objects))
	for _, oid := range objects {
		if oid.Type == ObjectTypeDevice {
			continue
		}
		records[oid] = &PointRecord{Identifier: oid}
	}

	e.pollMu.Lock()
	e.points[deviceID] = &polledDevice{peer: peer, records: records}
	e.pollMu.Unlock()
}

// Point returns the current PointRecord for objectID on deviceID, if it
// has been registered via TrackObjectList.
func (e *Engine) Point(deviceID uint32, objectID ObjectIdentifier) (PointRecord, bool) {
	e.pollMu.Lock()
	defer e.pollMu.Unlock()
	dev, ok := e.points[deviceID]
	if !ok {
		return PointRecord{}, false
	}
	rec, ok := dev.records[objectID]
	if !ok {
		return PointRecord{}, false
	}
	return *rec, true
}

// EnablePolling starts a background sweep that reads every tracked point's
// present-value once per interval (or the engine's configured poll
// interval if interval is 0), spacing individual requests by
// WithInterRequestSpacing to avoid flooding a slow device. Calling it
// again replaces the previous poller.
func (e *Engine) EnablePolling(interval time.Duration) {
	if interval <= 0 {
		interval = e.opts.pollInterval
	}

	e.DisablePolling()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	e.pollMu.Lock()
	e.pollStop = cancel
	e.pollDone = done
	e.pollMu.Unlock()

	go e.pollLoop(ctx, interval, done)
}

// DisablePolling stops the background sweep, if one is running, and waits
// for the in-flight sweep to finish its current point.
func (e *Engine) DisablePolling() {
	e.pollMu.Lock()
	stop := e.pollStop
	done := e.pollDone
	e.pollStop = nil
	e.pollDone = nil
	e.pollMu.Unlock()

	if stop == nil {
		return
	}
	stop()
	<-done
}

func (e *Engine) pollLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pollSweep(ctx)
		}
	}
}

// pollSweep reads every tracked point once. A point whose read fails is
// marked Stale and the sweep continues; one unreachable device never
// halts the rest of the sweep. Running with no tracked points issues zero
// datagrams.
func (e *Engine) pollSweep(ctx context.Context) {
	e.pollMu.Lock()
	type target struct {
		peer *net.UDPAddr
		rec  *PointRecord
	}
	var targets []target
	for _, dev := range e.points {
		for _, rec := range dev.records {
			targets = append(targets, target{peer: dev.peer, rec: rec})
		}
	}
	e.pollMu.Unlock()

	for i, t := range targets {
		if ctx.Err() != nil {
			return
		}
		if i > 0 {
			select {
			case <-time.After(e.opts.interRequestGap):
			case <-ctx.Done():
				return
			}
		}

		value, err := e.ReadPresentValue(ctx, t.peer, t.rec.Identifier)

		e.pollMu.Lock()
		if err != nil {
			e.metrics.PollsFailed.Inc()
			t.rec.Stale = true
		} else {
			e.metrics.PollsSucceeded.Inc()
			t.rec.CachedValue = value
			t.rec.LastUpdated = time.Now()
			t.rec.Stale = false
		}
		e.pollMu.Unlock()
	}

	e.pollMu.Lock()
	var stale int
	for _, dev := range e.points {
		for _, rec := range dev.records {
			if rec.Stale {
				stale++
			}
		}
	}
	e.pollMu.Unlock()
	e.metrics.StalePoints.Set(float64(stale))
}
