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
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgeo-scada/bacnet-monitor/bacnet"
)

var (
	cfgFile         string
	host            string
	deviceID        uint32
	port            int
	iface           string
	requestTimeout  time.Duration
	discoveryWindow time.Duration
	pollInterval    time.Duration
	interRequestMs  int
	outputFmt       string
	verbose         bool

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bacnet-monitor",
	Short: "A BACnet/IP discovery and monitoring engine CLI",
	Long: `bacnet-monitor discovers BACnet/IP devices, enumerates their objects,
and polls present-value readings over time.

Examples:
  # Discover devices on the network
  bacnet-monitor discover

  # List the objects on a discovered device
  bacnet-monitor read-objects --host 192.168.1.50 --device 1234

  # Read one object's present value
  bacnet-monitor read-value --host 192.168.1.50 --object analog-input:1

  # Poll a device's objects and print updates as they arrive
  bacnet-monitor watch --host 192.168.1.50 --device 1234`,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Resolve every setting through viper: flags > BACNET_* env > config file.
		host = viper.GetString("host")
		deviceID = viper.GetUint32("device")
		port = viper.GetInt("port")
		iface = viper.GetString("interface")
		requestTimeout = viper.GetDuration("timeout")
		discoveryWindow = viper.GetDuration("discovery-window")
		pollInterval = viper.GetDuration("poll-interval")
		interRequestMs = viper.GetInt("inter-request-ms")
		outputFmt = viper.GetString("output")
		verbose = viper.GetBool("verbose")

		logLevel := slog.LevelInfo
		if verbose {
			logLevel = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.bacnet-monitor.yaml)")
	rootCmd.PersistentFlags().StringVarP(&host, "host", "H", "", "Target device IP address")
	rootCmd.PersistentFlags().Uint32VarP(&deviceID, "device", "d", 0, "Target device instance ID")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", bacnet.DefaultPort, "BACnet/IP UDP port")
	rootCmd.PersistentFlags().StringVar(&iface, "interface", "", "Network interface whose directed broadcast address Who-Is is sent to")
	rootCmd.PersistentFlags().DurationVarP(&requestTimeout, "timeout", "t", 3*time.Second, "Confirmed request timeout")
	rootCmd.PersistentFlags().DurationVar(&discoveryWindow, "discovery-window", 3*time.Second, "How long to listen for I-Am replies")
	rootCmd.PersistentFlags().DurationVar(&pollInterval, "poll-interval", 5*time.Second, "Time between full poll sweeps")
	rootCmd.PersistentFlags().IntVar(&interRequestMs, "inter-request-ms", 100, "Minimum delay between poll requests, in milliseconds")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format (table, json, csv)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	viper.BindPFlag("host", rootCmd.PersistentFlags().Lookup("host"))
	viper.BindPFlag("device", rootCmd.PersistentFlags().Lookup("device"))
	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("interface", rootCmd.PersistentFlags().Lookup("interface"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("discovery-window", rootCmd.PersistentFlags().Lookup("discovery-window"))
	viper.BindPFlag("poll-interval", rootCmd.PersistentFlags().Lookup("poll-interval"))
	viper.BindPFlag("inter-request-ms", rootCmd.PersistentFlags().Lookup("inter-request-ms"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(readObjectsCmd)
	rootCmd.AddCommand(readValueCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".bacnet-monitor")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BACNET")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// startEngine opens an Engine using the current flag/config values.
func startEngine(ctx context.Context) (*bacnet.Engine, error) {
	return bacnet.Start(ctx,
		bacnet.WithPort(port),
		bacnet.WithInterface(iface),
		bacnet.WithRequestTimeout(requestTimeout),
		bacnet.WithDiscoveryWindow(discoveryWindow),
		bacnet.WithPollInterval(pollInterval),
		bacnet.WithInterRequestSpacing(time.Duration(interRequestMs)*time.Millisecond),
		bacnet.WithLogger(logger),
	)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("bacnet-monitor version 1.0.0")
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
