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
	"time"

	"github.com/RubenT17/CCSDS-Protocol-FyCUS23/ccsds"
	"github.com/RubenT17/CCSDS-Protocol-FyCUS23/server"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server [files]",
	Short: "Serve decoded bus packets to websocket clients",
	Long: `server starts the realtime websocket server and replays the packets
found in the files given on the command line, optionally throttled to a
bit rate.  Clients subscribe by apid and receive each matching packet as
a JSON message.`,
	Run: func(cmd *cobra.Command, args []string) {
		runServer(args)
	},
}

var serverHost string
var serverPort int
var bitsPerSecond int

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&serverHost, "host", "", "Interface to listen on.  Defaults to all interfaces")
	serverCmd.Flags().IntVar(&serverPort, "port", 8000, "Port to listen on")
	serverCmd.Flags().IntVar(&bitsPerSecond, "bps", 0, "Limit playback to bits per second")
}

func runServer(args []string) {
	channel := make(chan *ccsds.BusPacket, 300)

	serv := server.Server{
		Host:       serverHost,
		Port:       serverPort,
		PacketChan: channel,
	}

	// Start the server first
	done := make(chan struct{})
	go func() {
		serv.Run()
		close(done)
	}()

	// Wait for it to start
	time.Sleep(2 * time.Second)

	// Start sending packets
	go PacketFileCallbackBPS(newBusPacketCodec(), bitsPerSecond, args, func(p *ccsds.BusPacket) {
		channel <- p
	})

	<-done
}
