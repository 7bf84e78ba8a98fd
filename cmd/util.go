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
	"log"
	"os/user"
	"path/filepath"
	"time"

	"github.com/RubenT17/CCSDS-Protocol-FyCUS23/ccsds"
)

//
// generatePackets
//

// PacketFileCallback generates a stream of packets and sends them using a callback
func PacketFileCallback(codec *ccsds.BusPacketCodec, args []string, callback func(p *ccsds.BusPacket)) {
	for _, basePattern := range args {
		pat := basePattern
		if len(pat) >= 2 && pat[:2] == "~/" {
			usr, _ := user.Current()
			dir := usr.HomeDir
			pat = filepath.Join(dir, pat[2:])
		}
		if !filepath.IsAbs(pat) {
			pat = filepath.Join(".", pat)
		}
		matches, err := filepath.Glob(pat)
		if err != nil {
			log.Printf("error expanding file pattern %s: %v\n", pat, err)
			continue
		}

		for _, fname := range matches {
			pktfile := ccsds.BusPacketFile{Filename: fname, Codec: codec}
			if err := pktfile.Iterate(callback); err != nil {
				log.Printf("error reading %s: %v\n", fname, err)
			}
		}
	}
}

// PacketFileChannel generates a stream of packets and sends them to a channel
func PacketFileChannel(codec *ccsds.BusPacketCodec, args []string, channel chan *ccsds.BusPacket) {
	PacketFileCallback(codec, args, func(p *ccsds.BusPacket) {
		channel <- p
	})
	close(channel)
}

// PacketFileCallbackBPS generates a stream of packets and sends them via a callback, slowing the calls
// to a given bits-per-second
func PacketFileCallbackBPS(codec *ccsds.BusPacketCodec, bps int, args []string, callback func(p *ccsds.BusPacket)) {
	if bps <= 0 {
		PacketFileCallback(codec, args, callback)
		return
	}
	var totalBits int64
	startTime := time.Now()
	targetTime := startTime
	PacketFileCallback(codec, args, func(p *ccsds.BusPacket) {
		// Insert the governer
		time.Sleep(time.Until(targetTime))
		totalBits += 8 * int64(int(p.Length)+ccsds.FrameSyncSize+1)
		targetSecondsDelay := float64(totalBits) / float64(bps)
		targetTime = startTime.Add(time.Duration(targetSecondsDelay * float64(time.Second)))

		callback(p)
	})
}

// PacketFileChannelBPS generates a stream of packets and sends them to a channel, slowing the calls
// to a given bits-per-second
func PacketFileChannelBPS(codec *ccsds.BusPacketCodec, bps int, args []string, channel chan *ccsds.BusPacket) {
	PacketFileCallbackBPS(codec, bps, args, func(p *ccsds.BusPacket) {
		channel <- p
	})
	close(channel)
}
