/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 NestChat Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package relay

import (
	"sync"
	"time"
)

// Call is the relay's record of an in-flight call between two users
type Call struct {
	CallID    string
	CallerID  string
	CalleeID  string
	CallType  string
	Status    string // ringing, active, ended
	StartedAt time.Time
}

// Participants returns the users attached to the call
func (c *Call) Participants() []string {
	out := []string{c.CallerID}
	if c.CalleeID != "" && c.CalleeID != c.CallerID {
		out = append(out, c.CalleeID)
	}
	return out
}

// Registry tracks active calls so signaling can be routed between the
// two participants without the client naming the peer on every frame.
type Registry struct {
	mu        sync.Mutex
	calls     map[string]*Call  // call_id -> call
	userCalls map[string]string // user_id -> call_id
}

// NewRegistry creates an empty call registry
func NewRegistry() *Registry {
	return &Registry{
		calls:     make(map[string]*Call),
		userCalls: make(map[string]string),
	}
}

// Create records a new ringing call
func (r *Registry) Create(callID, callerID, calleeID, callType string) *Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := &Call{
		CallID:    callID,
		CallerID:  callerID,
		CalleeID:  calleeID,
		CallType:  callType,
		Status:    "ringing",
		StartedAt: time.Now().UTC(),
	}
	r.calls[callID] = call
	r.userCalls[callerID] = callID
	return call
}

// Join marks the callee as having answered
func (r *Registry) Join(callID, userID string) *Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	call, ok := r.calls[callID]
	if !ok {
		return nil
	}
	call.Status = "active"
	r.userCalls[userID] = callID
	return call
}

// Get returns the call for the given id, or nil
func (r *Registry) Get(callID string) *Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[callID]
}

// UserCall returns the call id the user is attached to, or empty
func (r *Registry) UserCall(userID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userCalls[userID]
}

// End removes the call and its user mappings; returns the removed call
// or nil when unknown.
func (r *Registry) End(callID string) *Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	call, ok := r.calls[callID]
	if !ok {
		return nil
	}
	call.Status = "ended"
	for _, userID := range call.Participants() {
		if r.userCalls[userID] == callID {
			delete(r.userCalls, userID)
		}
	}
	delete(r.calls, callID)
	return call
}
