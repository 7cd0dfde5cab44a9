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
	"os"

	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Broadcast a Who-Is and list devices that reply",
	Long: `discover sends a Who-Is broadcast and prints every I-Am reply seen
during the discovery window.

Examples:
  bacnet-monitor discover
  bacnet-monitor discover --discovery-window 10s`,
	RunE: runDiscover,
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), discoveryWindow+requestTimeout)
	defer cancel()

	engine, err := startEngine(ctx)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer engine.Shutdown(context.Background())

	fmt.Fprintln(os.Stderr, "Discovering BACnet devices...")

	devices, err := engine.Discover(ctx, discoveryWindow)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	var rows [][]string
	for dev := range devices {
		rows = append(rows, []string{
			fmt.Sprintf("%d", dev.DeviceID),
			dev.Address.String(),
			dev.VendorName,
			dev.Segmentation.String(),
			fmt.Sprintf("%d", dev.MaxAPDUAccepted),
		})
	}

	if len(rows) == 0 {
		fmt.Println("No devices found")
		return nil
	}

	newFormatter(outputFmt).print(
		[]string{"device_id", "address", "vendor", "segmentation", "max_apdu"},
		rows,
	)
	fmt.Printf("\nFound %d device(s)\n", len(rows))
	return nil
}
