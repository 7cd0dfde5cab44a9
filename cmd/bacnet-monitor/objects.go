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

	"github.com/spf13/cobra"
)

var readObjectsCmd = &cobra.Command{
	Use:   "read-objects",
	Short: "Enumerate the objects on a device",
	Long: `read-objects reads device's object-list property and prints every
object found other than the Device object itself. The request goes
straight to --host; no prior discover is needed.

Examples:
  bacnet-monitor read-objects --host 192.168.1.50 --device 1234`,
	RunE: runReadObjects,
}

func runReadObjects(cmd *cobra.Command, args []string) error {
	if host == "" || deviceID == 0 {
		return fmt.Errorf("--host and --device are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	engine, err := startEngine(ctx)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer engine.Shutdown(context.Background())

	peer := &net.UDPAddr{IP: net.ParseIP(host), Port: port}

	objects, err := engine.ReadObjectList(ctx, peer, deviceID)
	if err != nil {
		return fmt.Errorf("read object list: %w", err)
	}

	var rows [][]string
	for _, oid := range objects {
		rows = append(rows, []string{oid.Type.String(), fmt.Sprintf("%d", oid.Instance)})
	}

	newFormatter(outputFmt).print([]string{"type", "instance"}, rows)
	fmt.Printf("\n%d object(s)\n", len(rows))
	return nil
}
