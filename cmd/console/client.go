package main

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/shadowmere/dungeon-gm/pkg/protocol"
)

// GameClient wraps the WebSocket connection. A reader goroutine feeds
// server messages into Incoming; writes are serialized with a mutex.
type GameClient struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	Incoming chan protocol.ServerMessage
}

func Connect(wsURL string) (*GameClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}

	c := &GameClient{
		conn:     conn,
		Incoming: make(chan protocol.ServerMessage, 64),
	}
	go c.readLoop()
	return c, nil
}

func (c *GameClient) readLoop() {
	defer close(c.Incoming)
	for {
		var msg protocol.ServerMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.Incoming <- msg
	}
}

func (c *GameClient) SendInit(party []protocol.PartyMemberInit, locale string, floor int, stageName string) error {
	return c.send(protocol.ClientMessage{
		Type:      protocol.ClientInit,
		Party:     party,
		Locale:    locale,
		Floor:     floor,
		StageName: stageName,
	})
}

func (c *GameClient) SendCommand(text string) error {
	return c.send(protocol.ClientMessage{
		Type: protocol.ClientCommand,
		Text: text,
	})
}

func (c *GameClient) send(msg protocol.ClientMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *GameClient) Close() error {
	return c.conn.Close()
}
