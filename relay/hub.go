/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 NestChat Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package relay

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nestchat/nestchat-go-sdk/signaling"
)

// client is one WebSocket connection belonging to a user. A user may be
// connected from several devices at once.
type client struct {
	userID  string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) send(msg *signaling.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Hub tracks connected clients keyed by user id and delivers signaling
// frames to all of a user's connections.
type Hub struct {
	mu      sync.Mutex
	clients map[string][]*client
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string][]*client),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.userID] = append(h.clients[c.userID], c)
	h.mu.Unlock()
	log.Info().Str("user_id", c.userID).Msg("client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	conns := h.clients[c.userID]
	for i, other := range conns {
		if other == c {
			h.clients[c.userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.clients[c.userID]) == 0 {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()
	log.Info().Str("user_id", c.userID).Msg("client disconnected")
}

// SendPersonal delivers a message to every connection of the given user.
// Dead connections are skipped; the read loop handles their cleanup.
func (h *Hub) SendPersonal(userID string, msg *signaling.Message) {
	h.mu.Lock()
	conns := append([]*client(nil), h.clients[userID]...)
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.send(msg); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("failed to deliver signaling frame")
		}
	}
}

// IsOnline reports whether the user has at least one live connection
func (h *Hub) IsOnline(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID]) > 0
}
