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
	"errors"
	"fmt"
	"time"

	"github.com/RubenT17/CCSDS-Protocol-FyCUS23/ccsds"
	"github.com/spf13/cobra"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode [files]",
	Short: "Extract and print bus packets from recorded frame files",
	Long: `decode scans one or more recorded byte streams for the frame
synchronization marker, validates the bus packets that follow and prints
one line per packet.  Packets that fail length or error control checks
are skipped silently, matching the receiver's behavior on the wire.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 {
			return errors.New("requires at least one arg")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		decodeFiles(args)
	},
}

var decodeHex bool

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().BoolVar(&decodeHex, "hex", false, "print packet payloads as hex")
}

func decodeFiles(args []string) {
	if Verbose {
		fmt.Printf("crc=%v\n", crcProvider)
		for i := 0; i < len(args); i++ {
			fmt.Printf(" arg[%d]=%s\n", i, args[i])
		}
	}

	codec := newBusPacketCodec()
	startTime := time.Now()

	var packetCount int
	PacketFileCallback(codec, args, func(p *ccsds.BusPacket) {
		packetCount++
		kind := "TM"
		if p.PacketType == ccsds.PacketTypeTC {
			kind = "TC"
		}
		if decodeHex {
			fmt.Printf("%s apid=%d length=%d data=% X\n", kind, p.APID, p.Length, p.Data)
		} else {
			fmt.Printf("%s apid=%d length=%d data=%v\n", kind, p.APID, p.Length, p.Data)
		}
	})

	elapsed := time.Now().Sub(startTime)
	fmt.Printf("%d packets were processed in %s.\n", packetCount, elapsed)
}
