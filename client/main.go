package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	MsgTypeHeartbeat        = 1
	MsgTypeAuth             = 2
	MsgTypeJoinRoom         = 101
	MsgTypeSendMessage      = 201
	MsgTypePreviousMessages = 301
	MsgTypeNewMessage       = 302
	MsgTypeAck              = 303
)

type chatMessage struct {
	ID        string    `json:"id"`
	GameID    string    `json:"game_id"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

type historyPayload struct {
	RoomID   string        `json:"room_id"`
	Messages []chatMessage `json:"messages"`
}

type ackPayload struct {
	Op    string `json:"op"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, data []byte) error {
	packet := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[4:], data)

	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func sendJSON(c *websocket.Conn, msgID uint16, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return send(c, msgID, data)
}

// printMessage highlights messages that mention the given user.
func printMessage(msg chatMessage, username string) {
	line := fmt.Sprintf("[%s] %s: %s",
		msg.Timestamp.Format("15:04:05"), msg.Sender, msg.Body)
	if username != "" && strings.Contains(msg.Body, "@"+username) {
		line = "\033[33m" + line + "\033[0m"
	}
	log.Println(line)
}

func handlePacket(message []byte, username string) {
	if len(message) < 4 {
		log.Printf("Received invalid packet of size %d", len(message))
		return
	}
	msgID := binary.BigEndian.Uint16(message[0:2])
	data := message[4:]

	switch msgID {
	case MsgTypeAck:
		var ack ackPayload
		if err := json.Unmarshal(data, &ack); err != nil {
			log.Printf("Bad ack payload: %v", err)
			return
		}
		if ack.OK {
			log.Printf("-> %s ok", ack.Op)
		} else {
			log.Printf("-> %s failed: %s", ack.Op, ack.Error)
		}
	case MsgTypePreviousMessages:
		var history historyPayload
		if err := json.Unmarshal(data, &history); err != nil {
			log.Printf("Bad history payload: %v", err)
			return
		}
		log.Printf("--- %d previous messages in room %s ---", len(history.Messages), history.RoomID)
		// 历史按最新在前送达，这里反转为时间顺序显示
		for i := len(history.Messages) - 1; i >= 0; i-- {
			printMessage(history.Messages[i], username)
		}
	case MsgTypeNewMessage:
		var msg chatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Bad message payload: %v", err)
			return
		}
		printMessage(msg, username)
	default:
		log.Printf("<- RECV (ID: %d): %s", msgID, string(data))
	}
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	token := flag.String("token", "", "JWT from /login")
	room := flag.String("room", "", "game ID of the chat room to join")
	username := flag.String("user", "", "own username, used to highlight @mentions")
	flag.Parse()

	if *token == "" || *room == "" {
		log.Fatal("both -token and -room are required")
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			handlePacket(message, *username)
		}
	}()

	// 先认证，再加入房间
	if err := sendJSON(c, MsgTypeAuth, map[string]string{"token": *token}); err != nil {
		log.Fatalf("Auth write error: %v", err)
	}
	if err := sendJSON(c, MsgTypeJoinRoom, map[string]string{"room_id": *room}); err != nil {
		log.Fatalf("Join write error: %v", err)
	}

	// Heartbeat keeps the session out of the idle reaper.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := send(c, MsgTypeHeartbeat, []byte{}); err != nil {
					return
				}
			}
		}
	}()

	log.Println("Client started. Type a message and press Enter to send.")

	// Write loop
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		default:
			text, _ := reader.ReadString('\n')
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			payload := map[string]string{"room_id": *room, "body": text}
			if err := sendJSON(c, MsgTypeSendMessage, payload); err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}
