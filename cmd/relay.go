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
	"os"

	"github.com/RubenT17/CCSDS-Protocol-FyCUS23/ccsds"
	"github.com/RubenT17/CCSDS-Protocol-FyCUS23/relay"
	"github.com/spf13/cobra"
)

// relayCmd represents the relay command
var relayCmd = &cobra.Command{
	Use:   "relay [files]",
	Short: "Publish decoded bus packets to an MQTT broker",
	Long: `relay replays the packets found in the files given on the command
line, optionally throttled to a bit rate, and publishes each one to a
per-apid topic on an MQTT broker, e.g. fycus/tm/40.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 {
			return errors.New("requires at least one arg")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		runRelay(args)
	},
}

var brokerURL string
var topicPrefix string
var relayQOS int
var relayBPS int

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().StringVar(&brokerURL, "broker", "mqtt://localhost:1883/fycus", "Broker URL.  The path becomes the topic prefix")
	relayCmd.Flags().StringVar(&topicPrefix, "topic-prefix", "", "Override the topic prefix from the broker URL")
	relayCmd.Flags().IntVar(&relayQOS, "qos", 0, "MQTT quality of service for published packets")
	relayCmd.Flags().IntVar(&relayBPS, "bps", 0, "Limit playback to bits per second")
}

func runRelay(args []string) {
	publisher, err := relay.NewPublisher(brokerURL)
	if err != nil {
		fmt.Printf("An error occurred parsing the broker url: %v\n", err)
		os.Exit(1)
	}
	if topicPrefix != "" {
		publisher.TopicPrefix = topicPrefix
	}
	publisher.QOS = byte(relayQOS)

	if err := publisher.Connect(); err != nil {
		fmt.Printf("An error occurred connecting to the broker: %v\n", err)
		os.Exit(1)
	}
	defer publisher.Close()

	channel := make(chan *ccsds.BusPacket, 300)
	go PacketFileChannelBPS(newBusPacketCodec(), relayBPS, args, channel)
	publisher.Run(channel)
}
