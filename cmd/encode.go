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
	"encoding/hex"
	"fmt"
	"os"

	"github.com/RubenT17/CCSDS-Protocol-FyCUS23/ccsds"
	"github.com/spf13/cobra"
)

// encodeCmd represents the encode command
var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Build one marker-framed bus packet",
	Long: `encode builds a single bus packet from the flags, prepends the frame
synchronization marker and writes the result to a file or, as hex, to
standard output.  The output is what the receiver side of this tool
(and the flight software) expects on the wire.`,
	Run: func(cmd *cobra.Command, args []string) {
		encodePacket()
	},
}

var encodeAPID int
var encodeTC bool
var encodeNoECF bool
var encodeData string
var encodeOut string

func init() {
	rootCmd.AddCommand(encodeCmd)

	encodeCmd.Flags().IntVar(&encodeAPID, "apid", 0, "application process identifier (0-127)")
	encodeCmd.MarkFlagRequired("apid")
	encodeCmd.Flags().BoolVar(&encodeTC, "tc", false, "build a telecommand packet instead of telemetry")
	encodeCmd.Flags().BoolVar(&encodeNoECF, "no-ecf", false, "omit the error control field")
	encodeCmd.Flags().StringVar(&encodeData, "data", "", "payload as a hex string, e.g. 64010c")
	encodeCmd.Flags().StringVarP(&encodeOut, "out", "o", "", "append the framed packet to this file instead of printing hex")
}

func encodePacket() {
	data, err := hex.DecodeString(encodeData)
	if err != nil {
		fmt.Printf("The payload isn't valid hex: %v\n", err)
		os.Exit(1)
	}
	if encodeAPID < 0 || encodeAPID > 127 {
		fmt.Printf("apid %d is out of range (0-127)\n", encodeAPID)
		os.Exit(1)
	}

	packetType := ccsds.PacketTypeTM
	if encodeTC {
		packetType = ccsds.PacketTypeTC
	}

	codec := newBusPacketCodec()
	frame, err := codec.EncodePacketize(packetType, byte(encodeAPID), !encodeNoECF, data)
	if err != nil {
		fmt.Printf("An error occurred building the packet: %v\n", err)
		os.Exit(1)
	}

	if encodeOut == "" {
		fmt.Printf("% X % X\n", ccsds.FrameSync[:], frame)
		return
	}

	file, err := os.OpenFile(encodeOut, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		fmt.Printf("An error occurred opening %s: %v\n", encodeOut, err)
		os.Exit(1)
	}
	defer file.Close()

	if err := ccsds.WriteFrame(file, frame); err != nil {
		fmt.Printf("An error occurred writing %s: %v\n", encodeOut, err)
		os.Exit(1)
	}
	if Verbose {
		fmt.Printf("wrote %d bytes to %s\n", ccsds.FrameSyncSize+len(frame), encodeOut)
	}
}
