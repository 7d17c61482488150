/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 NestChat Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package relay implements the signaling relay server: it accepts
// WebSocket connections keyed by user id and routes call offers,
// answers, ICE candidates, and hangups between the two participants of
// each call.
package relay

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nestchat/nestchat-go-sdk/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict origins before exposing beyond dev
	CheckOrigin: func(r *http.Request) bool { return true },
}

// TokenValidator checks a connection token and returns the user id it
// authenticates, or an empty string to reject.
type TokenValidator func(token string) string

// Config holds the relay server configuration
type Config struct {
	// Validate authenticates the token query parameter. nil accepts
	// any non-empty token as the path user id.
	Validate TokenValidator
}

// Server is the signaling relay
type Server struct {
	hub      *Hub
	registry *Registry
	config   *Config
}

// NewServer creates a relay server
func NewServer(config *Config) *Server {
	if config == nil {
		config = &Config{}
	}
	return &Server{
		hub:      NewHub(),
		registry: NewRegistry(),
		config:   config,
	}
}

// Hub exposes the connection hub, mainly for tests
func (s *Server) Hub() *Hub {
	return s.hub
}

// Registry exposes the call registry, mainly for tests
func (s *Server) Registry() *Registry {
	return s.registry
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws/{userID}", s.ServeWS)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})

	return r
}

// ServeWS upgrades the connection and runs the per-client read loop
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	token := r.URL.Query().Get("token")

	authedUser := s.authenticate(token, userID)
	if authedUser == "" || authedUser != userID {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{userID: userID, conn: conn}
	s.hub.register(c)

	l := log.With().Str("user_id", userID).Logger()

	defer func() {
		s.hub.unregister(c)
		conn.Close()
	}()

	for {
		var msg signaling.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Warn().Err(err).Msg("unexpected close")
			}
			return
		}

		s.route(c, &msg)
	}
}

// authenticate resolves the token to a user id
func (s *Server) authenticate(token, pathUserID string) string {
	if s.config.Validate != nil {
		return s.config.Validate(token)
	}
	if token == "" {
		return ""
	}
	return pathUserID
}

// route dispatches one inbound frame
func (s *Server) route(c *client, msg *signaling.Message) {
	switch msg.Type {
	case signaling.MessageTypeCallOffer:
		s.handleOffer(c, msg)
	case signaling.MessageTypeCallAnswer:
		s.handleAnswer(c, msg)
	case signaling.MessageTypeIceCandidate:
		s.handleIceCandidate(c, msg)
	case signaling.MessageTypeCallEnd:
		s.handleEnd(c, msg)
	default:
		log.Debug().Str("type", string(msg.Type)).Msg("ignoring non-call frame")
	}
}

// handleOffer registers the call and forwards the offer to the callee
func (s *Server) handleOffer(c *client, msg *signaling.Message) {
	if msg.CalleeID == "" || msg.SDP == nil {
		log.Warn().Str("user_id", c.userID).Msg("malformed offer dropped")
		return
	}

	callID := msg.CallID
	if callID == "" {
		callID = uuid.NewString()
	}

	s.registry.Create(callID, c.userID, msg.CalleeID, msg.CallType)

	s.hub.SendPersonal(msg.CalleeID, &signaling.Message{
		Type:         signaling.MessageTypeCallOffer,
		CallID:       callID,
		CallerID:     c.userID,
		CallerName:   msg.CallerName,
		CallerAvatar: msg.CallerAvatar,
		CallType:     msg.CallType,
		SDP:          msg.SDP,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	})
}

// handleAnswer forwards the answer to the caller
func (s *Server) handleAnswer(c *client, msg *signaling.Message) {
	call := s.registry.Join(msg.CallID, c.userID)
	if call == nil {
		log.Warn().Str("call_id", msg.CallID).Msg("answer for unknown call dropped")
		return
	}

	s.hub.SendPersonal(call.CallerID, &signaling.Message{
		Type:       signaling.MessageTypeCallAnswer,
		CallID:     call.CallID,
		AnswererID: c.userID,
		SDP:        msg.SDP,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

// handleIceCandidate fans the candidate to the other participant
func (s *Server) handleIceCandidate(c *client, msg *signaling.Message) {
	call := s.registry.Get(msg.CallID)
	if call == nil || msg.Candidate == nil {
		return
	}

	for _, userID := range call.Participants() {
		if userID == c.userID {
			continue
		}
		s.hub.SendPersonal(userID, &signaling.Message{
			Type:      signaling.MessageTypeIceCandidate,
			CallID:    call.CallID,
			UserID:    c.userID,
			Candidate: msg.Candidate,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// handleEnd notifies the other participant and clears the call
func (s *Server) handleEnd(c *client, msg *signaling.Message) {
	call := s.registry.Get(msg.CallID)
	if call == nil {
		return
	}

	for _, userID := range call.Participants() {
		if userID == c.userID {
			continue
		}
		s.hub.SendPersonal(userID, &signaling.Message{
			Type:      signaling.MessageTypeCallEnded,
			CallID:    call.CallID,
			EndedBy:   c.userID,
			Reason:    msg.Reason,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}

	s.registry.End(call.CallID)
}
