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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return &Engine{
		opts:    &engineOptions{interRequestGap: time.Millisecond, pollInterval: 10 * time.Millisecond},
		metrics: NewMetrics(),
		points:  make(map[uint32]*polledDevice),
	}
}

func TestPollSweepWithEmptyPointsIsNoOp(t *testing.T) {
	e := newTestEngine()

	e.pollSweep(context.Background())

	assert.Equal(t, float64(0), testutil.ToFloat64(e.metrics.StalePoints))
	assert.Equal(t, float64(0), testutil.ToFloat64(e.metrics.PollsSucceeded))
	assert.Equal(t, float64(0), testutil.ToFloat64(e.metrics.PollsFailed))
}

func TestEnableDisablePollingOnEmptyEngine(t *testing.T) {
	e := newTestEngine()

	e.EnablePolling(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	e.DisablePolling()

	assert.Equal(t, float64(0), testutil.ToFloat64(e.metrics.StalePoints))
}

func TestTrackObjectListExcludesDeviceObject(t *testing.T) {
	e := newTestEngine()
	peer := &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 47808}

	objects := []ObjectIdentifier{
		NewObjectIdentifier(ObjectTypeDevice, 100),
		NewObjectIdentifier(ObjectTypeAnalogInput, 1),
		NewObjectIdentifier(ObjectTypeBinaryValue, 2),
	}
	e.TrackObjectList(peer, 100, objects)

	_, ok := e.Point(100, NewObjectIdentifier(ObjectTypeDevice, 100))
	assert.False(t, ok, "device object itself should not be tracked as a point")

	rec, ok := e.Point(100, NewObjectIdentifier(ObjectTypeAnalogInput, 1))
	require.True(t, ok)
	assert.False(t, rec.Stale)
}

func TestTrackObjectListReplacesPriorSet(t *testing.T) {
	e := newTestEngine()
	peer := &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 47808}

	e.TrackObjectList(peer, 100, []ObjectIdentifier{NewObjectIdentifier(ObjectTypeAnalogInput, 1)})
	e.TrackObjectList(peer, 100, []ObjectIdentifier{NewObjectIdentifier(ObjectTypeAnalogInput, 2)})

	_, ok := e.Point(100, NewObjectIdentifier(ObjectTypeAnalogInput, 1))
	assert.False(t, ok, "earlier tracked object should be gone after re-tracking")

	_, ok = e.Point(100, NewObjectIdentifier(ObjectTypeAnalogInput, 2))
	assert.True(t, ok)
}
