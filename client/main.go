// Interactive terminal client for the chat gateway.
//
// Usage:
//
//	client -addr localhost:8080 -user alice -room general
//
// Stdin lines are sent as room messages. Commands: /dm <user> <text> sends a
// private message, /typing signals typing in the room, /history loads the
// previous history page, /quit exits.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ErinBejtaa/chat-app/pkg/model"
)

var seq atomic.Int64

func send(c *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	req := model.Request{Event: event, Seq: seq.Add(1), Data: raw}
	return c.WriteJSON(req)
}

func printEvent(frame model.Frame) {
	switch frame.Event {
	case "message":
		var msg model.ChatMessage
		if json.Unmarshal(frame.Data, &msg) != nil {
			return
		}
		if msg.Text != "" {
			fmt.Printf("\r%s: %s\n> ", msg.User, msg.Text)
		} else {
			fmt.Printf("\r%s: [encrypted]\n> ", msg.User)
		}
	case "typing":
		var evt model.TypingEvent
		if json.Unmarshal(frame.Data, &evt) != nil || !evt.IsTyping {
			return
		}
		fmt.Printf("\r%s is typing...\n> ", evt.User)
	case "private_message":
		var msg model.DirectMessage
		if json.Unmarshal(frame.Data, &msg) != nil {
			return
		}
		body := msg.Text
		if body == "" {
			body = "[encrypted]"
		}
		fmt.Printf("\r[dm] %s -> %s: %s\n> ", msg.From, msg.To, body)
	case "room_history":
		var hist model.RoomHistory
		if json.Unmarshal(frame.Data, &hist) != nil {
			return
		}
		fmt.Printf("\r--- last %d messages in %s ---\n", len(hist.Messages), hist.Room)
		for _, msg := range hist.Messages {
			fmt.Printf("%s: %s\n", msg.User, msg.Text)
		}
		fmt.Print("> ")
	case "user_joined", "user_left":
		var p model.Presence
		if json.Unmarshal(frame.Data, &p) != nil {
			return
		}
		verb := "joined"
		if frame.Event == "user_left" {
			verb = "left"
		}
		fmt.Printf("\r* %s %s %s\n> ", p.User, verb, p.Room)
	}
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway address")
	user := flag.String("user", "user1", "username")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var frame model.Frame
			if err := c.ReadJSON(&frame); err != nil {
				log.Println("read:", err)
				return
			}
			switch frame.Type {
			case model.FrameEvent:
				printEvent(frame)
			case model.FrameAck:
				var ack model.Ack
				if json.Unmarshal(frame.Data, &ack) == nil && !ack.OK {
					fmt.Printf("\rserver: %s\n> ", ack.Error)
				}
			}
		}
	}()

	if err := send(c, "join_room", map[string]string{"username": *user, "room": *room}); err != nil {
		log.Fatal("join:", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := scanner.Text()
			if text == "" {
				fmt.Print("> ")
				continue
			}

			var err error
			switch {
			case text == "/quit":
				close(interrupt)
				return
			case text == "/typing":
				err = send(c, "typing_start", map[string]string{"room": *room})
			case text == "/history":
				err = send(c, "load_history", map[string]any{"room": *room, "offset": 0, "limit": 10})
			case strings.HasPrefix(text, "/dm "):
				parts := strings.SplitN(text[len("/dm "):], " ", 2)
				if len(parts) != 2 {
					fmt.Print("usage: /dm <user> <text>\n> ")
					continue
				}
				err = send(c, "private_message", map[string]string{"to": parts[0], "text": parts[1]})
			default:
				err = send(c, "send_message", map[string]string{"text": text})
			}
			if err != nil {
				log.Println("write:", err)
				return
			}
			fmt.Print("> ")
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("interrupt")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("write close:", err)
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
