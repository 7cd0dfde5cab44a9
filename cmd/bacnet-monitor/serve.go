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

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet-monitor/bacnet"
)

var metricsAddr string

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9100", "Address to serve Prometheus metrics on")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run discovery, polling and a Prometheus metrics endpoint continuously",
	Long: `serve starts the engine, discovers devices, enumerates and polls
every object it finds, and exposes the engine's request, discovery and
polling counters as Prometheus metrics until interrupted. Point values
themselves are not exported as metrics.

Examples:
  bacnet-monitor serve --metrics-addr :9100`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	engine, err := startEngine(ctx)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer engine.Shutdown(context.Background())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(engine.Metrics().Registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: metricsAddr, Handler: mux}

	go func() {
		logger.Info("serving metrics", "addr", metricsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	engine.EnablePolling(pollInterval)
	defer engine.DisablePolling()

	serveDiscoveryLoop(ctx, engine)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// serveDiscoveryLoop periodically re-broadcasts Who-Is and enumerates any
// newly discovered device's objects so the poller picks them up without a
// restart. It blocks until ctx is cancelled.
func serveDiscoveryLoop(ctx context.Context, engine *bacnet.Engine) {
	known := make(map[uint32]bool)

	sweep := func() {
		devices, err := engine.Discover(ctx, discoveryWindow)
		if err != nil {
			logger.Error("discover failed", "error", err)
			return
		}
		for dev := range devices {
			if known[dev.DeviceID] {
				continue
			}
			readCtx, readCancel := context.WithTimeout(ctx, requestTimeout)
			objects, err := engine.ReadObjectList(readCtx, dev.Address, dev.DeviceID)
			readCancel()
			if err != nil {
				logger.Warn("read object list failed", "device", dev.DeviceID, "error", err)
				continue
			}
			known[dev.DeviceID] = true
			logger.Info("tracking device", "device", dev.DeviceID, "objects", len(objects))
		}
	}

	sweep()

	ticker := time.NewTicker(discoveryWindow + requestTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
