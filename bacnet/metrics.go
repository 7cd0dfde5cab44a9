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
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's counters, gauges, and latency histogram. It
// registers into its own prometheus.Registry rather than the global
// default one, so more than one Engine (or a test run) can coexist
// without a "duplicate metrics collector registration" panic.
type Metrics struct {
	Registry *prometheus.Registry

	// Request/response traffic
	RequestsSent      prometheus.Counter
	RequestsSucceeded prometheus.Counter
	RequestsFailed    prometheus.Counter
	RequestsTimedOut  prometheus.Counter
	ResponsesReceived prometheus.Counter
	ErrorsReceived    prometheus.Counter
	RejectsReceived   prometheus.Counter
	AbortsReceived    prometheus.Counter
	ActiveRequests    prometheus.Gauge
	RequestLatency    prometheus.Histogram

	// Discovery
	WhoIsSent         prometheus.Counter
	IAmReceived       prometheus.Counter
	DevicesDiscovered prometheus.Gauge
	DiscoveryDropped  prometheus.Counter

	// Decode health
	DecodeErrors prometheus.Counter

	// Polling
	PollsSucceeded prometheus.Counter
	PollsFailed    prometheus.Counter
	StalePoints    prometheus.Gauge

	// Wire volume
	BytesSent     prometheus.Counter
	BytesReceived prometheus.Counter
}

// NewMetrics builds and registers a fresh metric set. Each Engine owns one.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	namespace := "bacnet"

	m := &Metrics{
		Registry: reg,
		RequestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_sent_total",
			Help: "Confirmed service requests sent.",
		}),
		RequestsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_succeeded_total",
			Help: "Confirmed requests that received a SimpleAck/ComplexAck.",
		}),
		RequestsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_failed_total",
			Help: "Confirmed requests that received Error/Reject/Abort, failed to send, timed out or were cancelled.",
		}),
		RequestsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_timed_out_total",
			Help: "Confirmed requests that never received a reply before their deadline.",
		}),
		ResponsesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "responses_received_total",
			Help: "Confirmed-service reply APDUs received (any PDU type).",
		}),
		ErrorsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_received_total",
			Help: "BACnet-Error APDUs received.",
		}),
		RejectsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rejects_received_total",
			Help: "Reject-PDU APDUs received.",
		}),
		AbortsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "aborts_received_total",
			Help: "Abort-PDU APDUs received.",
		}),
		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_requests",
			Help: "Confirmed requests currently awaiting a reply.",
		}),
		RequestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "request_latency_seconds",
			Help:    "Time from sending a confirmed request to receiving its reply.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8s
		}),
		WhoIsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "who_is_sent_total",
			Help: "Who-Is broadcasts sent.",
		}),
		IAmReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "i_am_received_total",
			Help: "I-Am unconfirmed requests received and successfully decoded.",
		}),
		DevicesDiscovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "devices_discovered",
			Help: "Distinct device IDs seen via I-Am since startup.",
		}),
		DiscoveryDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "discovery_dropped_total",
			Help: "Discovered devices dropped from a subscriber's queue because it was full.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "decode_errors_total",
			Help: "Datagrams dropped for failing to decode as BVLC/NPDU/APDU.",
		}),
		PollsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "polls_succeeded_total",
			Help: "Poller reads that returned a present-value.",
		}),
		PollsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "polls_failed_total",
			Help: "Poller reads that errored (timeout, reject, abort, BACnet error).",
		}),
		StalePoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stale_points",
			Help: "Polled points whose most recent read attempt failed.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_sent_total",
			Help: "Bytes written to either UDP socket.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_received_total",
			Help: "Bytes read from either UDP socket.",
		}),
	}

	reg.MustRegister(
		m.RequestsSent, m.RequestsSucceeded, m.RequestsFailed, m.RequestsTimedOut,
		m.ResponsesReceived, m.ErrorsReceived, m.RejectsReceived, m.AbortsReceived,
		m.ActiveRequests, m.RequestLatency,
		m.WhoIsSent, m.IAmReceived, m.DevicesDiscovered, m.DiscoveryDropped,
		m.DecodeErrors, m.PollsSucceeded, m.PollsFailed, m.StalePoints,
		m.BytesSent, m.BytesReceived,
	)

	return m
}
