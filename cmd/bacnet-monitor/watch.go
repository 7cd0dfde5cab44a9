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
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll a device's objects and print updates as they arrive",
	Long: `watch reads a device's object-list, enables polling on every object
found, and prints each point's present-value once per sweep until
interrupted.

Examples:
  bacnet-monitor watch --host 192.168.1.50 --device 1234
  bacnet-monitor watch --host 192.168.1.50 --device 1234 --poll-interval 5s`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	if host == "" || deviceID == 0 {
		return fmt.Errorf("--host and --device are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nStopping watch...")
		cancel()
	}()

	engine, err := startEngine(ctx)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer engine.Shutdown(context.Background())

	peer := &net.UDPAddr{IP: net.ParseIP(host), Port: port}

	listCtx, listCancel := context.WithTimeout(ctx, requestTimeout)
	objects, err := engine.ReadObjectList(listCtx, peer, deviceID)
	listCancel()
	if err != nil {
		return fmt.Errorf("read object list: %w", err)
	}
	if len(objects) == 0 {
		fmt.Println("Device has no pollable objects")
		return nil
	}

	engine.EnablePolling(pollInterval)
	defer engine.DisablePolling()

	fmt.Printf("Watching %d object(s) on device %d, every %s\n", len(objects), deviceID, pollInterval)
	fmt.Println("Press Ctrl+C to stop")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			var rows [][]string
			for _, oid := range objects {
				rec, ok := engine.Point(deviceID, oid)
				if !ok {
					continue
				}
				status := "ok"
				if rec.Stale {
					status = "stale"
				}
				rows = append(rows, []string{
					oid.String(),
					rec.CachedValue,
					status,
					rec.LastUpdated.Format(time.RFC3339),
				})
			}
			newFormatter(outputFmt).print([]string{"object", "value", "status", "last_updated"}, rows)
			fmt.Println()
		}
	}
}
