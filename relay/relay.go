// Package relay bridges decoded bus packets to an MQTT broker so ground
// tools can follow the vehicle bus without speaking the framing protocol.
package relay

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/RubenT17/CCSDS-Protocol-FyCUS23/ccsds"
)

// DefaultConnectTimeout bounds the initial broker handshake.
const DefaultConnectTimeout = 10 * time.Second

// ClientOptionsFromURL creates ClientOptions from a broker URL.  The URL path
// becomes the topic prefix, e.g. mqtt://host:1883/fycus.
func ClientOptionsFromURL(serverURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, "", errors.Wrap(err, "parsing broker url")
	}
	scheme := u.Scheme
	if scheme == "" || scheme == "mqtt" {
		scheme = "tcp"
	}

	topicPrefix := strings.Trim(u.Path, "/")

	opts := paho.NewClientOptions()
	opts.AddBroker(scheme + "://" + u.Host)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if password, ok := u.User.Password(); ok {
			opts.SetPassword(password)
		}
	}
	return opts, topicPrefix, nil
}

// A Publisher publishes decoded bus packets to per-APID topics.
type Publisher struct {
	TopicPrefix    string
	QOS            byte
	ConnectTimeout time.Duration

	client paho.Client
}

// NewPublisher creates a Publisher for the given broker URL.
func NewPublisher(brokerURL string) (*Publisher, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		TopicPrefix:    topicPrefix,
		ConnectTimeout: DefaultConnectTimeout,
	}
	p.client = paho.NewClient(opts)
	return p, nil
}

// Connect establishes the broker session.
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(p.ConnectTimeout) {
		return errors.New("broker connect timed out")
	}
	return errors.Wrap(token.Error(), "connecting to broker")
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// Topic returns the topic a packet is published on:
// <prefix>/tm/<apid> or <prefix>/tc/<apid>.
func (p *Publisher) Topic(pkt *ccsds.BusPacket) string {
	kind := "tm"
	if pkt.PacketType == ccsds.PacketTypeTC {
		kind = "tc"
	}
	if p.TopicPrefix == "" {
		return fmt.Sprintf("%s/%d", kind, pkt.APID)
	}
	return fmt.Sprintf("%s/%s/%d", p.TopicPrefix, kind, pkt.APID)
}

// A PacketRecord is the JSON payload published for one packet.
type PacketRecord struct {
	APID       int    `json:"apid"`
	PacketType string `json:"type"`
	Length     int    `json:"length"`
	Data       []byte `json:"data"`
}

// NewPacketRecord converts a decoded packet into its published form.
func NewPacketRecord(pkt *ccsds.BusPacket) PacketRecord {
	packetType := "TM"
	if pkt.PacketType == ccsds.PacketTypeTC {
		packetType = "TC"
	}
	return PacketRecord{
		APID:       int(pkt.APID),
		PacketType: packetType,
		Length:     int(pkt.Length),
		Data:       pkt.Data,
	}
}

// Publish sends one decoded packet to its topic.
func (p *Publisher) Publish(pkt *ccsds.BusPacket) error {
	payload, err := json.Marshal(NewPacketRecord(pkt))
	if err != nil {
		return errors.Wrap(err, "marshalling packet record")
	}
	token := p.client.Publish(p.Topic(pkt), p.QOS, false, payload)
	token.Wait()
	return errors.Wrapf(token.Error(), "publishing apid %d", pkt.APID)
}

// Run publishes packets from the channel until it closes, dropping packets
// that fail to publish.
func (p *Publisher) Run(channel <-chan *ccsds.BusPacket) {
	for pkt := range channel {
		if err := p.Publish(pkt); err != nil {
			log.Printf("relay: %v", err)
		}
	}
}
