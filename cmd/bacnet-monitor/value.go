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
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet-monitor/bacnet"
)

var objectFlag string

func init() {
	readValueCmd.Flags().StringVar(&objectFlag, "object", "", "Object to read, as type:instance (e.g. analog-input:1)")
}

var readValueCmd = &cobra.Command{
	Use:   "read-value",
	Short: "Read one object's present-value",
	Long: `read-value reads the present-value property of a single object.

Examples:
  bacnet-monitor read-value --host 192.168.1.50 --device 1234 --object analog-input:1`,
	RunE: runReadValue,
}

func parseObjectRef(s string) (bacnet.ObjectIdentifier, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return bacnet.ObjectIdentifier{}, fmt.Errorf("expected type:instance, got %q", s)
	}
	objType, ok := bacnet.ParseObjectType(parts[0])
	if !ok {
		return bacnet.ObjectIdentifier{}, fmt.Errorf("unknown object type %q", parts[0])
	}
	instance, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return bacnet.ObjectIdentifier{}, fmt.Errorf("invalid instance %q: %w", parts[1], err)
	}
	return bacnet.NewObjectIdentifier(objType, uint32(instance)), nil
}

func runReadValue(cmd *cobra.Command, args []string) error {
	if host == "" || objectFlag == "" {
		return fmt.Errorf("--host and --object are required")
	}

	objectID, err := parseObjectRef(objectFlag)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	engine, err := startEngine(ctx)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer engine.Shutdown(context.Background())

	peer := &net.UDPAddr{IP: net.ParseIP(host), Port: port}

	value, err := engine.ReadPresentValue(ctx, peer, objectID)
	if err != nil {
		return fmt.Errorf("read present value: %w", err)
	}

	newFormatter(outputFmt).print(
		[]string{"object", "value"},
		[][]string{{objectID.String(), value}},
	)
	return nil
}
