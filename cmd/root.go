// Copyright © 2023 NAME HERE <EMAIL ADDRESS>
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

package cmd

import (
	"fmt"
	"os"

	"github.com/RubenT17/CCSDS-Protocol-FyCUS23/ccsds"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fycus",
	Short: "Encode, decode and serve vehicle bus packets and transfer frames",
	Long: `fycus works with the two framing formats used by the vehicle:
the intra-bus packet format and the space-link transfer frame format.
It can build frames for transmission, extract and decode packets from
recorded byte streams, serve decoded packets to websocket clients and
bridge them to an MQTT broker.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var crcProvider string

// Verbose enables extra progress output on all subcommands
var Verbose bool

func init() {
	rootCmd.PersistentFlags().StringVar(&crcProvider, "crc", "software", "Error control implementation: software or table")
	rootCmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "v", false, "verbose output")
}

// newBusPacketCodec builds the codec selected by the --crc flag.
func newBusPacketCodec() *ccsds.BusPacketCodec {
	if crcProvider == "table" {
		return ccsds.NewBusPacketCodec(ccsds.NewTableErrorControl())
	}
	return ccsds.NewBusPacketCodec(nil)
}
