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

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/RubenT17/CCSDS-Protocol-FyCUS23/ccsds"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

//
// Server
//

// APIDCount is the number of dispatch slots; the bus packet APID is 7 bits.
const APIDCount = 128

// Server fans decoded bus packets out to websocket clients subscribed by APID
type Server struct {
	// Configuration
	Host string
	Port int

	WebsocketPrefix string
	ReportPrefix    string

	// Channels
	PacketChan chan *ccsds.BusPacket // incoming decoded packets

	// Internal state
	clients           *map[*websocket.Conn]*Client // immutable, updated by handleSubscriptions()
	apidDispatchTable [APIDCount]*apidDispatch     // values in slots are immutable, nil means no subscribers

	addClientChan                 chan *Client
	removeClientChan              chan *Client
	updateClientSubscriptionsChan chan *updateClientSubscriptionsMsg

	StopRequest chan os.Signal
}

// Run runs the realtime server
func (server *Server) Run() {
	// Prepare defaults
	if server.Port == 0 {
		server.Port = 8000
	}
	// The default server.Host is ""
	if server.WebsocketPrefix == "" {
		server.WebsocketPrefix = "/realtime/"
	}
	if server.ReportPrefix == "" {
		server.ReportPrefix = "/report"
	}
	if server.PacketChan == nil {
		server.PacketChan = make(chan *ccsds.BusPacket, 300)
	}

	// Initialize internal state
	server.clients = &map[*websocket.Conn]*Client{}
	server.addClientChan = make(chan *Client, 20)
	server.removeClientChan = make(chan *Client, 20)
	server.updateClientSubscriptionsChan = make(chan *updateClientSubscriptionsMsg, 20)

	router := mux.NewRouter()

	// REST
	router.HandleFunc(server.ReportPrefix, func(w http.ResponseWriter, r *http.Request) {
		server.handleReport(w, r)
	}).Methods("GET")

	router.HandleFunc("/shutdown", func(w http.ResponseWriter, r *http.Request) {
		server.handleShutdown(w, r)
	}).Methods("GET")

	// WebSocket
	router.HandleFunc(server.WebsocketPrefix, func(w http.ResponseWriter, req *http.Request) {
		server.serveWS(w, req)
	})

	// add/remove clients, update subscriptions
	go server.handleSubscriptions()

	// distribute packets
	go server.packetPump()

	addr := fmt.Sprintf("%s:%d", server.Host, server.Port)
	h := &http.Server{Addr: addr, Handler: router}

	// Receive interrupts and shut down gracefully
	server.StopRequest = make(chan os.Signal, 2)
	signal.Notify(server.StopRequest, os.Interrupt)

	// Run the server
	go func() {
		log.Printf("Listening on %s\n", addr)
		err := h.ListenAndServe()
		if err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-server.StopRequest
	log.Printf("Shutting down the server ...\n")
	h.Shutdown(context.Background())
	log.Printf("Server gracefully stopped.\n")
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16384,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (server *Server) serveWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Println(err)
		return
	}
	client := newClient(server, conn)
	server.addClientChan <- client
}

//
// Handle Subscriptions
//

// All management of subscriptions is centralized here.  The datastructures
// are contained on the server and client objects and don't allow concurrent
// access.  The packet pump reads dispatch slots without locking; slots are
// only ever swapped whole.

func (server *Server) handleSubscriptions() {
	for {
		select {

		case client := <-server.addClientChan:
			// add a client
			oldClientMap := *server.clients
			newClientMap := make(map[*websocket.Conn]*Client)
			for oldconn, oldclient := range oldClientMap {
				newClientMap[oldconn] = oldclient
			}
			newClientMap[client.conn] = client
			server.clients = &newClientMap
			// No need to touch the dispatch table

			go client.writePump()
			go client.readPump()

		case client := <-server.removeClientChan:
			oldConn := client.conn
			client.conn = nil
			// attempt to close the connection
			if oldConn != nil {
				err := oldConn.Close()
				if err != nil {
					log.Printf("removing client: error closing connection: %v", err.Error())
				}
			}

			// remove the client; rebuild dispatch for the apids it held
			oldClientMap := *server.clients
			newClientMap := make(map[*websocket.Conn]*Client)
			for oldconn, oldclient := range oldClientMap {
				if oldclient != client {
					newClientMap[oldconn] = oldclient
				}
			}
			server.clients = &newClientMap

			server.rebuildApidDispatch(client.subscriptions)

		case msg := <-server.updateClientSubscriptionsChan:
			touched := make(map[int]bool)
			newSubscriptions := copyClientSubscriptions(msg.client.subscriptions)
			var badApids []int
			for _, apid := range msg.apids {
				if apid < 0 || apid >= APIDCount {
					badApids = append(badApids, apid)
					continue
				}
				touched[apid] = true
				if msg.isAdd {
					newSubscriptions[apid] = true
				} else {
					delete(newSubscriptions, apid)
				}
			}
			msg.client.subscriptions = newSubscriptions
			server.rebuildApidDispatch(touched)

			// Generate a response to the client
			verb := "subscribe"
			if !msg.isAdd {
				verb = "unsubscribe"
			}
			if len(badApids) > 0 {
				sendJSON(SubscribeResponse{Response: verb, Token: msg.token, Status: "error", BadAPIDs: badApids}, msg.client)
			} else {
				sendJSON(SubscribeResponse{Response: verb, Token: msg.token, Status: "success"}, msg.client)
			}
		}
	}
}

// rebuildApidDispatch recomputes the dispatch slots for the given apids from
// the current client map.  Each slot is replaced whole.
func (server *Server) rebuildApidDispatch(apids map[int]bool) {
	for apid := range apids {
		if apid < 0 || apid >= APIDCount {
			continue
		}
		subscribers := make([]*Client, 0, 4)
		for _, client := range *server.clients {
			if client.subscriptions[apid] {
				subscribers = append(subscribers, client)
			}
		}
		if len(subscribers) == 0 {
			server.apidDispatchTable[apid] = nil
		} else {
			server.apidDispatchTable[apid] = &apidDispatch{clients: subscribers}
		}
	}
}

func copyClientSubscriptions(subscriptions map[int]bool) map[int]bool {
	newSubscriptions := make(map[int]bool, len(subscriptions))
	for k, v := range subscriptions {
		newSubscriptions[k] = v
	}
	return newSubscriptions
}

// One of these is stored in each element of the dispatch table.  Entries are
// immutable once built; the table slots are swapped as atomic operations.
type apidDispatch struct {
	clients []*Client
}

//
// Realtime Packet Distribution
//

func (server *Server) packetPump() {
	for pkt := range server.PacketChan {
		dispatch := server.apidDispatchTable[int(pkt.APID)%APIDCount] // Refetch the slot every time
		if dispatch == nil {
			continue
		}
		sendJSON(newPacketMessage(pkt), dispatch.clients...)
	}
}

func newPacketMessage(pkt *ccsds.BusPacket) PacketMessage {
	packetType := "TM"
	if pkt.PacketType == ccsds.PacketTypeTC {
		packetType = "TC"
	}
	return PacketMessage{
		Response:   "data",
		APID:       int(pkt.APID),
		PacketType: packetType,
		Length:     int(pkt.Length),
		Data:       pkt.Data,
	}
}

//
// HandleReport
//

func (server *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	clients := *server.clients
	connections := make([]ReportWebsocketConnection, 0, len(clients))
	for conn, client := range clients {
		apids := client.getSubscribedAPIDs()
		connections = append(connections, ReportWebsocketConnection{Address: conn.RemoteAddr().String(), SubscriptionCount: len(apids), APIDs: apids})
	}

	response := ReportTemplate{Version: "0.1", Connections: connections, ConnectionCount: len(connections)}
	prepareHeader(w, r)
	json.NewEncoder(w).Encode(response)
}

func prepareHeader(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

//
// HandleShutdown
//

func (server *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	server.StopRequest <- &FakeInterrupt{}
}

// FakeInterrupt is for mocking the server shutdown message
type FakeInterrupt struct{}

// String is needed to match an interrupt's interface
func (f *FakeInterrupt) String() string { return "fake interrupt" }

// Signal is needed to match an interrupt's interface
func (f FakeInterrupt) Signal() {}

////////////////////////////////////////////////////////////////////////
// Client
////////////////////////////////////////////////////////////////////////

// Client is the middleman between the websocket connection and the server
type Client struct {
	server        *Server
	conn          *websocket.Conn
	msgChan       chan []byte  // Client receives msgs from channel and sends to the websocket connection
	subscriptions map[int]bool // immutable
}

func newClient(server *Server, conn *websocket.Conn) *Client {
	return &Client{
		server:        server,
		conn:          conn,
		msgChan:       make(chan []byte, 32),
		subscriptions: make(map[int]bool),
	}
}

//
// Read Pump
//

func (client *Client) readPump() {
	for {
		messageType, p, err := client.conn.ReadMessage()
		if messageType == websocket.CloseMessage {
			oldConn := client.conn
			requestRemoveClient(client)
			log.Printf("websocket: %s closed", oldConn.RemoteAddr().String())
			return
		} else if err != nil {
			oldConn := client.conn
			requestRemoveClient(client)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				log.Printf("websocket(%s) closed unexpectedly: %v", oldConn.RemoteAddr().String(), err.Error())
			} else {
				log.Printf("websocket: %s closed", oldConn.RemoteAddr().String())
			}
			return
		} else if messageType != websocket.TextMessage {
			oldConn := client.conn
			requestRemoveClient(client)
			log.Printf("websocket(%s) received a non-text message of type %d", oldConn.RemoteAddr().String(), messageType)
			return
		}

		var msg GenericRequest
		if err := json.Unmarshal(p, &msg); err != nil {
			log.Printf("websocket(%s) received a non-json message: %s", client.conn.RemoteAddr().String(), string(p))
			continue
		}

		var err1, err2 error
		switch msg.Request {
		case "ping":
			err2 = client.handlePing(&msg)
		case "subscribe":
			var req SubscribeRequest
			err1 = json.Unmarshal(p, &req)
			if err1 == nil {
				err2 = client.handleSubscribe(&req)
			}
		case "unsubscribe":
			var req UnsubscribeRequest
			err1 = json.Unmarshal(p, &req)
			if err1 == nil {
				err2 = client.handleUnsubscribe(&req)
			}
		case "report-subscriptions":
			client.handleReportSubscriptions()
		default:
			err1 = fmt.Errorf("websocket(%s) received a request(%s) with no handler: %s", client.conn.RemoteAddr().String(), msg.Request, string(p))
		}

		if err1 != nil {
			log.Printf("websocket(%s) error parsing %s request: %v", client.conn.RemoteAddr().String(), msg.Request, err1)
			sendJSON(ErrorResponse{Response: msg.Request, Token: msg.Token, Error: err1.Error()}, client)
		} else if err2 != nil {
			log.Printf("websocket(%s) error processing %s request: %v", client.conn.RemoteAddr().String(), msg.Request, err2)
			sendJSON(ErrorResponse{Response: msg.Request, Token: msg.Token, Error: err2.Error()}, client)
		}
	}
}

//
// Write Pump
//

func (client *Client) writePump() {
	for msg := range client.msgChan {
		c := client.conn
		if c == nil {
			continue
		}
		err := c.WriteMessage(websocket.TextMessage, msg)
		if err == websocket.ErrCloseSent {
			requestRemoveClient(client)
			return
		}
		if err != nil {
			log.Printf("websocket error on write: %v", err)
			requestRemoveClient(client)
			return
		}
	}
}

func requestRemoveClient(client *Client) {
	client.conn = nil
	client.server.removeClientChan <- client
}

//
// Message Handlers
//

func (client *Client) handlePing(r *GenericRequest) error {
	sendJSON(GenericResponse{Response: "ping", Token: r.Token}, client)
	return nil
}

func (client *Client) handleSubscribe(r *SubscribeRequest) error {
	client.server.updateClientSubscriptionsChan <- &updateClientSubscriptionsMsg{isAdd: true, apids: r.APIDs, client: client, token: r.Token}
	return nil
}

func (client *Client) handleUnsubscribe(r *UnsubscribeRequest) error {
	client.server.updateClientSubscriptionsChan <- &updateClientSubscriptionsMsg{isAdd: false, apids: r.APIDs, client: client, token: r.Token}
	return nil
}

func (client *Client) handleReportSubscriptions() {
	sendJSON(ReportSubscriptionsResponse{Response: "report-subscriptions", APIDs: client.getSubscribedAPIDs()}, client)
}

func (client *Client) getSubscribedAPIDs() []int {
	apids := make([]int, 0, len(client.subscriptions))
	for apid := range client.subscriptions {
		apids = append(apids, apid)
	}
	return apids
}

//
// Message Helper Functions
//

// send a message to one or more clients
func send(msg []byte, clients ...*Client) {
	for i := 0; i < len(clients); i++ {
		clients[i].msgChan <- msg
	}
}

// sendJSON to one or more clients
func sendJSON(msg interface{}, clients ...*Client) {
	if len(clients) < 1 {
		return
	}
	if bytes, err := json.Marshal(msg); err == nil {
		send(bytes, clients...)
	} else {
		log.Printf("Error preparing json for a message: %s", msg)
	}
}

//
// Public Websocket Message Templates
//

// GenericRequest is a message template.  Also used as a minimal request
type GenericRequest struct {
	Request string      `json:"request"`
	Token   interface{} `json:"token"`
}

// GenericResponse is a message template
type GenericResponse struct {
	Response string      `json:"response"`
	Token    interface{} `json:"token"`
}

// SubscribeRequest is a message template
type SubscribeRequest struct {
	Request string      `json:"request"`
	Token   interface{} `json:"token"`
	APIDs   []int       `json:"apids"`
}

// SubscribeResponse is a message template
type SubscribeResponse struct {
	Response string      `json:"response"`
	Token    interface{} `json:"token"`
	Status   string      `json:"status"`
	BadAPIDs []int       `json:"bad_apids,omitempty"`
}

// UnsubscribeRequest is a message template
type UnsubscribeRequest struct {
	Request string      `json:"request"`
	Token   interface{} `json:"token"`
	APIDs   []int       `json:"apids"`
}

// ReportSubscriptionsResponse is a message template
type ReportSubscriptionsResponse struct {
	Response string `json:"response"`
	APIDs    []int  `json:"apids"`
}

// ErrorResponse is a generic message template
type ErrorResponse struct {
	Response string      `json:"response"`
	Token    interface{} `json:"token"`
	Error    string      `json:"error"`
}

// PacketMessage carries one decoded bus packet to subscribed clients
type PacketMessage struct {
	Response   string `json:"response"`
	APID       int    `json:"apid"`
	PacketType string `json:"type"`
	Length     int    `json:"length"`
	Data       []byte `json:"data"`
}

//
// Public REST Message Templates
//

// ReportTemplate is the REST report response
type ReportTemplate struct {
	Version         string                      `json:"version"`
	ConnectionCount int                         `json:"connection_count"`
	Connections     []ReportWebsocketConnection `json:"connections"`
}

// ReportWebsocketConnection describes one websocket connection in the report
type ReportWebsocketConnection struct {
	Address           string `json:"address"`
	SubscriptionCount int    `json:"subscription_count"`
	APIDs             []int  `json:"apids"`
}

//
// Internal Message Templates
//

type updateClientSubscriptionsMsg struct {
	client *Client
	isAdd  bool
	token  interface{}
	apids  []int
}
