package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ErinBejtaa/chat-app/pkg/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum request size allowed from peer. Encrypted payloads carry
	// base64 ciphertext on top of the 1000-char plaintext bound.
	maxMessageSize = 8192

	// Outbound frame buffer per session. A session that falls this far
	// behind starts losing frames instead of blocking fan-out.
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one live connection. Its identity and room are written only by
// the session's own read goroutine; delivery to it goes through the buffered
// send channel.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	user   string // bound identity, empty until the first join_room
	room   string // current room, empty until the first join_room
	secure bool   // session has carried encrypted payloads or key material
}

// readPump processes requests from the connection strictly in arrival order,
// so two requests from the same session never interleave.
func (c *Client) readPump() {
	defer func() {
		c.disconnect()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("Session read error: %v", err)
			}
			break
		}

		var req model.Request
		if err := json.Unmarshal(raw, &req); err != nil || req.Event == "" {
			continue
		}
		c.handle(context.Background(), req)
	}
}

// writePump drains the send channel onto the connection and keeps the peer
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues a frame for delivery, dropping it if the session is too far
// behind.
func (c *Client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
	}
}

// ack answers a request. A zero seq means the client did not ask for one.
func (c *Client) ack(seq int64, payload any) {
	if seq == 0 {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	frame, err := json.Marshal(model.Frame{Type: model.FrameAck, Seq: seq, Data: raw})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

// fail rejects a request with a descriptive message.
func (c *Client) fail(seq int64, msg string) {
	c.ack(seq, model.Ack{OK: false, Error: msg})
}

// push sends a server event to this session only.
func (c *Client) push(event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	frame, err := encodeFrame(event, raw)
	if err != nil {
		return
	}
	c.enqueue(frame)
}

// serveWs upgrades an HTTP request into a session. A session holds no
// subscriptions until it joins, so closing an unjoined connection releases
// nothing.
func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &Client{hub: hub, conn: conn, send: make(chan []byte, sendBuffer)}
	go client.writePump()
	go client.readPump()
}
