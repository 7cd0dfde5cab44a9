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
	"log/slog"
	"time"
)

// engineOptions holds configuration for the Engine.
type engineOptions struct {
	port      int
	iface     string
	segmentation Segmentation

	requestTimeout   time.Duration
	discoveryWindow  time.Duration
	pollInterval     time.Duration
	interRequestGap  time.Duration

	metrics *Metrics
	logger  *slog.Logger
}

func defaultEngineOptions() *engineOptions {
	return &engineOptions{
		port:            DefaultPort,
		segmentation:    SegmentationNone,
		requestTimeout:  3 * time.Second,
		discoveryWindow: 3 * time.Second,
		pollInterval:    5 * time.Second,
		interRequestGap: 100 * time.Millisecond,
		logger:          slog.Default(),
	}
}

// EngineOption configures an Engine at Start time.
type EngineOption func(*engineOptions)

// WithPort binds the discovery socket to a non-default UDP port. Rarely
// needed outside of tests running multiple engines on one host.
func WithPort(port int) EngineOption {
	return func(o *engineOptions) {
		o.port = port
	}
}

// WithInterface names the network interface whose subnet-directed
// broadcast address Discover sends Who-Is to. It does not restrict the
// bind: the discovery socket always listens on 0.0.0.0. An empty value
// (the default) sends Who-Is to 255.255.255.255.
func WithInterface(iface string) EngineOption {
	return func(o *engineOptions) {
		o.iface = iface
	}
}

// WithSegmentation sets the segmentation capability the engine advertises
// in its confirmed requests (the segmented-response-accepted flag).
func WithSegmentation(seg Segmentation) EngineOption {
	return func(o *engineOptions) {
		o.segmentation = seg
	}
}

// WithRequestTimeout sets how long a confirmed request waits for a reply
// before resolving with a *TimeoutError.
func WithRequestTimeout(d time.Duration) EngineOption {
	return func(o *engineOptions) {
		o.requestTimeout = d
	}
}

// WithDiscoveryWindow sets the default listen window Discover uses when
// called without an explicit window.
func WithDiscoveryWindow(d time.Duration) EngineOption {
	return func(o *engineOptions) {
		o.discoveryWindow = d
	}
}

// WithPollInterval sets the sweep period EnablePolling uses when called
// without an explicit interval.
func WithPollInterval(d time.Duration) EngineOption {
	return func(o *engineOptions) {
		o.pollInterval = d
	}
}

// WithInterRequestSpacing sets the minimum delay the poller leaves between
// consecutive confirmed requests, so a large point list doesn't flood a
// slow field device.
func WithInterRequestSpacing(d time.Duration) EngineOption {
	return func(o *engineOptions) {
		o.interRequestGap = d
	}
}

// WithMetrics injects a pre-built *Metrics (and its prometheus.Registry)
// instead of letting Start create one. Useful when a CLI wants to serve
// metrics from several engines on one /metrics endpoint.
func WithMetrics(m *Metrics) EngineOption {
	return func(o *engineOptions) {
		o.metrics = m
	}
}

// WithLogger sets the logger the engine and its workers log through.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}
