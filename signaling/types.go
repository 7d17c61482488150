/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 NestChat Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package signaling

import (
	"github.com/pion/webrtc/v4"
)

// MessageType identifies the type of a signaling frame.
type MessageType string

const (
	// Call signaling
	MessageTypeCallOffer    MessageType = "call_offer"
	MessageTypeCallAnswer   MessageType = "call_answer"
	MessageTypeIceCandidate MessageType = "ice_candidate"
	MessageTypeCallEnd      MessageType = "call_end"
	// MessageTypeCallEnded is the relay-fanned form of call_end delivered
	// to the other participant.
	MessageTypeCallEnded MessageType = "call_ended"

	// Chat passthrough (not interpreted by the calling core)
	MessageTypeChatMessage MessageType = "chat_message"
	MessageTypeTyping      MessageType = "typing"
	MessageTypePresence    MessageType = "presence"

	// Synthetic local events, never sent on the wire. Dispatched to
	// handlers when the transport drops or comes back.
	MessageTypeDisconnected MessageType = "disconnected"
	MessageTypeReconnected  MessageType = "reconnected"
)

// Message is a single signaling frame exchanged over the WebSocket.
// One JSON object per frame; unused fields are omitted.
type Message struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id,omitempty"`

	// Offer routing: CalleeID on the way out, caller identity on the way in.
	CalleeID     string `json:"callee_id,omitempty"`
	CallerID     string `json:"caller_id,omitempty"`
	CallerName   string `json:"caller_name,omitempty"`
	CallerAvatar string `json:"caller_avatar,omitempty"`

	// Answer / ICE / end attribution, stamped by the relay.
	AnswererID string `json:"answerer_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	EndedBy    string `json:"ended_by,omitempty"`

	CallType string `json:"call_type,omitempty"`

	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`

	// Reason is set on call_end ("declined", "busy").
	Reason string `json:"reason,omitempty"`

	// RoomID routes a group-call offer to a room instead of a single callee.
	RoomID string `json:"room_id,omitempty"`

	Timestamp string `json:"timestamp,omitempty"`
}
