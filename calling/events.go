/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 NestChat Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import "sync"

// ---- Call State & Event Enums ----

// CallState represents the state of a call in the state machine
type CallState string

const (
	CallStateIdle CallState = "idle"
	// CallStateCalling: outgoing, offer sent, awaiting signal
	CallStateCalling CallState = "calling"
	// CallStateRinging: outgoing, the remote peer has been notified
	CallStateRinging CallState = "ringing"
	// CallStateConnecting: incoming, accept clicked, session being set up
	CallStateConnecting CallState = "connecting"
	CallStateConnected  CallState = "connected"
	// CallStateEnded is terminal and auto-resets to idle after a short delay
	CallStateEnded CallState = "ended"
)

// EngineEventKey identifies a session engine event
type EngineEventKey string

const (
	EngineEventLocalStream  EngineEventKey = "localStream"
	EngineEventRemoteStream EngineEventKey = "remoteStream"
	EngineEventIceCandidate EngineEventKey = "iceCandidate"
	EngineEventConnected    EngineEventKey = "connected"
	EngineEventDisconnected EngineEventKey = "disconnected"
	EngineEventError        EngineEventKey = "error"
)

// CallEventKey identifies a call manager event
type CallEventKey string

const (
	CallEventIncoming    CallEventKey = "incoming_call"
	CallEventStateChange CallEventKey = "state_change"
	// CallEventDeclined fires when the remote peer declines a call —
	// the "busy" surface shown to the caller.
	CallEventDeclined CallEventKey = "call_declined"
	CallEventEnded    CallEventKey = "call_ended"
	CallEventError    CallEventKey = "call_error"
)

// ---- Event Emitter ----

// EventHandler is a callback function for events
type EventHandler func(data interface{})

// EventEmitter provides a simple event pub/sub system
type EventEmitter struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

// NewEventEmitter creates a new EventEmitter
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{
		handlers: make(map[string][]EventHandler),
	}
}

// On registers an event handler for a specific event type
func (e *EventEmitter) On(event string, handler EventHandler) {
	if handler == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[event] = append(e.handlers[event], handler)
}

// Off removes all handlers for a specific event type
func (e *EventEmitter) Off(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, event)
}

// Emit fires an event, calling all registered handlers
func (e *EventEmitter) Emit(event string, data interface{}) {
	e.mu.RLock()
	handlers := make([]EventHandler, len(e.handlers[event]))
	copy(handlers, e.handlers[event])
	e.mu.RUnlock()

	for _, handler := range handlers {
		handler(data)
	}
}
