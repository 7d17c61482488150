/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 NestChat Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/nestchat/nestchat-go-sdk/signaling"
)

// SignalSender sends an outbound signaling message over the transport.
// The signaling.Client satisfies this; tests substitute a recorder.
type SignalSender interface {
	Send(msg *signaling.Message) error
}

// CallLogRecorder records terminal call outcomes. The CallLogsClient
// satisfies this; a nil recorder disables logging.
type CallLogRecorder interface {
	Create(calleeID string, callType CallType, status CallStatus, duration int) (*CreateCallLogResponse, error)
}

// CallManager owns the call lifecycle for exactly one call at a time. It
// mediates between inbound/outbound signaling and the session engine, and
// exposes the mute/video/speaker toggles and call-log recording as side
// effects.
//
// All state transitions are strictly sequential; a new inbound offer while
// a call is active is rejected with a busy signal.
type CallManager struct {
	mu sync.Mutex

	engine    *SessionEngine
	transport SignalSender
	logs      CallLogRecorder

	state    CallState
	active   *ActiveCall
	incoming *IncomingCall

	muted        bool
	videoEnabled bool
	speakerOn    bool

	endedResetDelay time.Duration
	resetTimer      *time.Timer

	// Events: incoming_call, state_change, call_declined, call_ended,
	// call_error
	Emitter *EventEmitter
}

// NewCallManager creates a call manager bound to the given signaling
// transport. config may be nil for defaults.
func NewCallManager(transport SignalSender, logs CallLogRecorder, config *Config) *CallManager {
	if config == nil {
		config = DefaultConfig()
	}

	m := &CallManager{
		engine:          NewSessionEngine(config.Media),
		transport:       transport,
		logs:            logs,
		state:           CallStateIdle,
		videoEnabled:    true,
		endedResetDelay: config.EndedResetDelay,
		Emitter:         NewEventEmitter(),
	}

	// Discovered local candidates are relayed to the peer for the
	// duration of the active call.
	m.engine.Emitter.On(string(EngineEventIceCandidate), func(data interface{}) {
		candidate, ok := data.(*webrtc.ICECandidateInit)
		if !ok {
			return
		}
		m.mu.Lock()
		active := m.active
		m.mu.Unlock()
		if active == nil {
			return
		}
		if err := m.transport.Send(&signaling.Message{
			Type:      signaling.MessageTypeIceCandidate,
			CallID:    active.CallID,
			Candidate: candidate,
		}); err != nil {
			log.Warn().Err(err).Msg("failed to send ICE candidate")
		}
	})

	m.engine.Emitter.On(string(EngineEventConnected), func(interface{}) {
		m.markConnected()
	})

	// Transport-level loss is not detected separately; the engine's
	// disconnected event is the sole detector and is treated as a
	// remote hangup.
	m.engine.Emitter.On(string(EngineEventDisconnected), func(interface{}) {
		m.handleRemoteEnd("", "")
	})

	return m
}

// Engine returns the session engine owned by this manager
func (m *CallManager) Engine() *SessionEngine {
	return m.engine
}

// State returns the current lifecycle state
func (m *CallManager) State() CallState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ActiveCall returns a copy of the active call record, or nil
func (m *CallManager) ActiveCall() *ActiveCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	c := *m.active
	return &c
}

// IncomingCall returns a copy of the pending incoming call notification, or nil
func (m *CallManager) IncomingCall() *IncomingCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incoming == nil {
		return nil
	}
	c := *m.incoming
	return &c
}

// IsMuted reports whether the local audio is muted
func (m *CallManager) IsMuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// IsVideoEnabled reports whether the local video is enabled
func (m *CallManager) IsVideoEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoEnabled
}

// IsSpeakerOn reports whether speaker output is selected
func (m *CallManager) IsSpeakerOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speakerOn
}

// newCallID generates a locally unique call id for an outgoing call
func newCallID() string {
	return fmt.Sprintf("call-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// InitiateCall starts an outgoing call to the given peer: it opens a
// session, acquires local media, creates an offer, sends it over the
// signaling channel, and moves to the ringing state. Any failure in this
// chain reverts to idle and tears down the partially-created session —
// no call is left half-open.
func (m *CallManager) InitiateCall(peer Peer, callType CallType) error {
	m.mu.Lock()
	if m.state != CallStateIdle {
		m.mu.Unlock()
		return ErrCallInProgress
	}
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}

	callID := newCallID()
	m.active = &ActiveCall{
		CallID:    callID,
		Peer:      peer,
		Type:      callType,
		Direction: CallDirectionOutgoing,
	}
	m.state = CallStateCalling
	m.muted = false
	m.videoEnabled = callType == CallTypeVideo
	m.mu.Unlock()

	m.Emitter.Emit(string(CallEventStateChange), CallStateCalling)

	if err := m.engine.CreateSession(); err != nil {
		return m.abortSetup(fmt.Errorf("failed to open session: %w", err))
	}

	stream, err := m.engine.AcquireLocalMedia(callType == CallTypeVideo)
	if err != nil {
		return m.abortSetup(err)
	}
	if err := m.engine.AttachLocalMedia(stream); err != nil {
		return m.abortSetup(err)
	}

	offer, err := m.engine.CreateOffer()
	if err != nil {
		return m.abortSetup(err)
	}

	if err := m.transport.Send(&signaling.Message{
		Type:     signaling.MessageTypeCallOffer,
		CallID:   callID,
		CalleeID: peer.ID,
		CallType: string(callType),
		SDP:      offer,
	}); err != nil {
		return m.abortSetup(fmt.Errorf("failed to send offer: %w", err))
	}

	m.mu.Lock()
	// The user may have hung up during an async boundary above.
	ringing := m.state == CallStateCalling
	if ringing {
		m.state = CallStateRinging
	}
	m.mu.Unlock()

	if ringing {
		m.Emitter.Emit(string(CallEventStateChange), CallStateRinging)
	}
	return nil
}

// abortSetup reverts a failed call setup to idle and tears down any
// partial session.
func (m *CallManager) abortSetup(err error) error {
	log.Error().Err(err).Msg("call setup failed")

	m.mu.Lock()
	m.active = nil
	m.incoming = nil
	m.state = CallStateIdle
	m.muted = false
	m.videoEnabled = true
	m.mu.Unlock()

	m.engine.Teardown()

	m.Emitter.Emit(string(CallEventError), err)
	m.Emitter.Emit(string(CallEventStateChange), CallStateIdle)
	return err
}

// HandleSignal routes an inbound signaling message to the state machine.
// ICE candidates are forwarded to the engine regardless of state; the
// engine's queue handles ordering.
func (m *CallManager) HandleSignal(msg *signaling.Message) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case signaling.MessageTypeCallOffer:
		m.handleRemoteOffer(msg)
	case signaling.MessageTypeCallAnswer:
		m.handleRemoteAnswer(msg)
	case signaling.MessageTypeIceCandidate:
		if msg.Candidate != nil {
			_ = m.engine.AddRemoteCandidate(*msg.Candidate)
		}
	case signaling.MessageTypeCallEnd, signaling.MessageTypeCallEnded:
		m.handleRemoteEnd(msg.CallID, msg.Reason)
	}
}

// handleRemoteOffer records an incoming call notification. The state
// machine stays idle until the user accepts or declines. A second offer
// while a call is active is rejected with a busy signal without touching
// the active call.
func (m *CallManager) handleRemoteOffer(msg *signaling.Message) {
	if msg.SDP == nil {
		log.Warn().Str("call_id", msg.CallID).Msg("offer without SDP ignored")
		return
	}

	m.mu.Lock()
	busy := m.state != CallStateIdle || m.incoming != nil
	m.mu.Unlock()

	if busy {
		log.Info().Str("call_id", msg.CallID).Msg("rejecting offer: busy")
		if err := m.transport.Send(&signaling.Message{
			Type:   signaling.MessageTypeCallEnd,
			CallID: msg.CallID,
			Reason: "busy",
		}); err != nil {
			log.Warn().Err(err).Msg("failed to send busy signal")
		}
		m.recordLog(msg.CallerID, CallType(msg.CallType), CallStatusRejected, 0)
		return
	}

	callType := CallType(msg.CallType)
	if callType == "" {
		callType = CallTypeVoice
	}

	incoming := &IncomingCall{
		CallID: msg.CallID,
		From: Peer{
			ID:     msg.CallerID,
			Name:   msg.CallerName,
			Avatar: msg.CallerAvatar,
		},
		Type:  callType,
		Offer: *msg.SDP,
	}

	m.mu.Lock()
	m.incoming = incoming
	m.mu.Unlock()

	m.Emitter.Emit(string(CallEventIncoming), incoming)
}

// handleRemoteAnswer applies the remote answer and moves the outgoing call
// to connected.
func (m *CallManager) handleRemoteAnswer(msg *signaling.Message) {
	m.mu.Lock()
	active := m.active
	state := m.state
	m.mu.Unlock()

	if active == nil || (state != CallStateCalling && state != CallStateRinging) {
		log.Warn().Str("call_id", msg.CallID).Msg("answer ignored: no outgoing call awaiting one")
		return
	}
	if msg.CallID != "" && msg.CallID != active.CallID {
		log.Warn().Str("call_id", msg.CallID).Msg("answer ignored: call id mismatch")
		return
	}
	if msg.SDP == nil {
		log.Warn().Str("call_id", msg.CallID).Msg("answer without SDP ignored")
		return
	}

	if err := m.engine.ApplyRemoteDescription(*msg.SDP); err != nil {
		log.Error().Err(err).Msg("failed to apply remote answer")
		m.Emitter.Emit(string(CallEventError), err)
		return
	}

	m.markConnected()
}

// markConnected transitions an active call to connected and records the
// start time, once.
func (m *CallManager) markConnected() {
	m.mu.Lock()
	if m.active == nil || m.state == CallStateConnected {
		m.mu.Unlock()
		return
	}
	m.state = CallStateConnected
	if m.active.StartTime.IsZero() {
		m.active.StartTime = time.Now()
	}
	m.mu.Unlock()

	m.Emitter.Emit(string(CallEventStateChange), CallStateConnected)
}

// AcceptCall answers the pending incoming call: it opens a session,
// acquires local media matching the call type, applies the stored offer,
// creates and sends an answer, and transitions to connected. Failures
// revert to idle with a full teardown.
func (m *CallManager) AcceptCall() error {
	m.mu.Lock()
	inc := m.incoming
	if inc == nil {
		m.mu.Unlock()
		return ErrNoIncomingCall
	}
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}

	callID := inc.CallID
	if callID == "" {
		callID = newCallID()
	}

	m.active = &ActiveCall{
		CallID:    callID,
		Peer:      inc.From,
		Type:      inc.Type,
		Direction: CallDirectionIncoming,
	}
	m.incoming = nil
	m.state = CallStateConnecting
	m.muted = false
	m.videoEnabled = inc.Type == CallTypeVideo
	m.mu.Unlock()

	m.Emitter.Emit(string(CallEventStateChange), CallStateConnecting)

	if err := m.engine.CreateSession(); err != nil {
		return m.abortSetup(fmt.Errorf("failed to open session: %w", err))
	}

	stream, err := m.engine.AcquireLocalMedia(inc.Type == CallTypeVideo)
	if err != nil {
		return m.abortSetup(err)
	}
	if err := m.engine.AttachLocalMedia(stream); err != nil {
		return m.abortSetup(err)
	}

	if err := m.engine.ApplyRemoteDescription(inc.Offer); err != nil {
		return m.abortSetup(err)
	}

	answer, err := m.engine.CreateAnswer()
	if err != nil {
		return m.abortSetup(err)
	}

	if err := m.transport.Send(&signaling.Message{
		Type:   signaling.MessageTypeCallAnswer,
		CallID: callID,
		SDP:    answer,
	}); err != nil {
		return m.abortSetup(fmt.Errorf("failed to send answer: %w", err))
	}

	// Optimistic: the engine's connected event has either already fired
	// or will follow immediately.
	m.markConnected()
	return nil
}

// DeclineCall rejects the pending incoming call: it sends a decline
// signal to the caller, logs a rejected call record, and clears the
// notification. No session is ever created.
func (m *CallManager) DeclineCall() error {
	m.mu.Lock()
	inc := m.incoming
	m.incoming = nil
	m.mu.Unlock()

	if inc == nil {
		return nil
	}

	if err := m.transport.Send(&signaling.Message{
		Type:   signaling.MessageTypeCallEnd,
		CallID: inc.CallID,
		Reason: "declined",
	}); err != nil {
		log.Warn().Err(err).Msg("failed to send decline signal")
	}

	m.recordLog(inc.From.ID, inc.Type, CallStatusRejected, 0)
	return nil
}

// EndCall hangs up the active call: it sends an end signal, writes a
// completed call-log entry with the connected duration, tears down the
// session, and resets all toggles. Idempotent — a second call is a no-op.
func (m *CallManager) EndCall() error {
	m.mu.Lock()
	active := m.active
	if active == nil {
		m.mu.Unlock()
		return nil
	}
	m.active = nil
	m.state = CallStateIdle
	m.muted = false
	m.videoEnabled = true
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}
	m.mu.Unlock()

	if err := m.transport.Send(&signaling.Message{
		Type:   signaling.MessageTypeCallEnd,
		CallID: active.CallID,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to send end signal")
	}

	if !active.StartTime.IsZero() {
		duration := int(time.Since(active.StartTime).Seconds())
		m.recordLog(active.Peer.ID, active.Type, CallStatusCompleted, duration)
	}

	// The UI transition is immediate; track/connection cleanup completes
	// in the background from the caller's perspective.
	m.engine.Teardown()

	m.Emitter.Emit(string(CallEventStateChange), CallStateIdle)
	return nil
}

// handleRemoteEnd processes a remote hangup, decline, or transport loss.
// The call moves to ended, then auto-resets to idle after a short delay.
// End frames carrying a call id that matches neither the active call nor
// the pending notification are ignored; an empty id always matches, as
// with answers.
func (m *CallManager) handleRemoteEnd(callID, reason string) {
	m.mu.Lock()
	if callID != "" {
		known := (m.active != nil && m.active.CallID == callID) ||
			(m.incoming != nil && m.incoming.CallID == callID)
		if !known {
			m.mu.Unlock()
			log.Warn().Str("call_id", callID).Msg("end frame ignored: call id mismatch")
			return
		}
	}
	hadIncoming := m.incoming != nil
	m.incoming = nil

	if m.active == nil {
		m.mu.Unlock()
		if hadIncoming {
			// Caller cancelled before the user acted on the notification.
			m.Emitter.Emit(string(CallEventEnded), reason)
		}
		return
	}

	m.active = nil
	m.state = CallStateEnded
	m.muted = false
	m.videoEnabled = true

	if m.resetTimer != nil {
		m.resetTimer.Stop()
	}
	m.resetTimer = time.AfterFunc(m.endedResetDelay, func() {
		m.mu.Lock()
		if m.state == CallStateEnded {
			m.state = CallStateIdle
		}
		m.resetTimer = nil
		m.mu.Unlock()
		m.Emitter.Emit(string(CallEventStateChange), CallStateIdle)
	})
	m.mu.Unlock()

	m.engine.Teardown()

	if reason == "declined" {
		m.Emitter.Emit(string(CallEventDeclined), reason)
	}
	m.Emitter.Emit(string(CallEventEnded), reason)
	m.Emitter.Emit(string(CallEventStateChange), CallStateEnded)
}

// ToggleMute flips the local audio track's enabled flag and returns the
// new muted state.
func (m *CallManager) ToggleMute() bool {
	enabled := m.engine.ToggleAudio()
	m.mu.Lock()
	m.muted = !enabled
	muted := m.muted
	m.mu.Unlock()
	return muted
}

// ToggleVideo flips the local video track's enabled flag and returns the
// new video-enabled state.
func (m *CallManager) ToggleVideo() bool {
	enabled := m.engine.ToggleVideo()
	m.mu.Lock()
	m.videoEnabled = enabled
	m.mu.Unlock()
	return enabled
}

// ToggleSpeaker flips the speaker flag and returns the new state.
// Speaker selection is UI state only; it has no media-engine effect.
func (m *CallManager) ToggleSpeaker() bool {
	m.mu.Lock()
	m.speakerOn = !m.speakerOn
	on := m.speakerOn
	m.mu.Unlock()
	return on
}

// recordLog writes a call-log entry, best-effort.
func (m *CallManager) recordLog(peerID string, callType CallType, status CallStatus, duration int) {
	if m.logs == nil {
		return
	}
	if _, err := m.logs.Create(peerID, callType, status, duration); err != nil {
		log.Warn().Err(err).Str("status", string(status)).Msg("failed to record call log")
	}
}
