/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 NestChat Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// ---- Enums / Constants ----

// CallType indicates whether a call carries audio only or audio and video
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// CallDirection indicates whether a call is incoming or outgoing
type CallDirection string

const (
	CallDirectionIncoming CallDirection = "incoming"
	CallDirectionOutgoing CallDirection = "outgoing"
)

// CallStatus is the terminal outcome recorded in the call log
type CallStatus string

const (
	CallStatusCompleted CallStatus = "completed"
	CallStatusRejected  CallStatus = "rejected"
	CallStatusMissed    CallStatus = "missed"
	CallStatusCancelled CallStatus = "cancelled"
)

// ---- Call Model ----

// Peer identifies the other party of a call
type Peer struct {
	ID     string
	Name   string
	Avatar string
}

// ActiveCall is the manager's record of the single in-progress call.
// It holds identifiers and descriptors only; media handles stay inside
// the session engine.
type ActiveCall struct {
	CallID    string
	Peer      Peer
	Type      CallType
	Direction CallDirection

	// StartTime is zero until the call reaches the connected state.
	StartTime time.Time
}

// IncomingCall is the transient notification held between receipt of a
// remote offer and the user's accept/decline action.
type IncomingCall struct {
	CallID string
	From   Peer
	Type   CallType
	Offer  webrtc.SessionDescription
}

// ---- Call Log REST Types ----

// CallRecord is a single call history entry returned by the call-log service
type CallRecord struct {
	ID         string   `json:"id"`
	CallerID   string   `json:"caller_id"`
	CallerName string   `json:"caller_name"`
	CalleeID   string   `json:"callee_id"`
	CalleeName string   `json:"callee_name"`
	CallType   CallType `json:"call_type"`
	Status     CallStatus `json:"status"`
	Duration   int      `json:"duration"`
	Timestamp  string   `json:"timestamp"`
	IsOutgoing bool     `json:"is_outgoing"`
}

// CreateCallLogResponse is returned when a call-log entry is created
type CreateCallLogResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// ---- Configuration ----

// Config holds configuration for the Calling plugin
type Config struct {
	// Media is the WebRTC media configuration for session engines
	// created by this client.
	Media *MediaConfig

	// EndedResetDelay is how long the manager stays in the ended state
	// before resetting to idle after a remote hangup.
	EndedResetDelay time.Duration
}

// DefaultConfig returns the default configuration for the Calling plugin
func DefaultConfig() *Config {
	return &Config{
		Media:           DefaultMediaConfig(),
		EndedResetDelay: 1 * time.Second,
	}
}
