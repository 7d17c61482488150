/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 NestChat Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// SessionEngine wraps a single peer-to-peer media session. It translates
// between the signaling layer's plain-data messages (session descriptions,
// ICE candidates) and the live connection/media objects, and buffers
// network events that arrive out of order.
//
// One session is live at a time; CreateSession tears down any prior state.
// The engine exclusively owns the local media stream and peer connection —
// the call manager only ever holds identifiers, never raw media handles.
type SessionEngine struct {
	mu sync.Mutex

	iceServers []webrtc.ICEServer
	devices    MediaDevices

	pc           *webrtc.PeerConnection
	localStream  *LocalStream
	remoteStream *RemoteStream

	// Candidates received before the remote description was applied.
	// ICE candidates must never reach the peer connection before a
	// remote session description exists; this queue absorbs the race.
	pendingCandidates []webrtc.ICECandidateInit
	remoteDescSet     bool

	// Events: localStream, remoteStream, iceCandidate, connected,
	// disconnected, error
	Emitter *EventEmitter
}

// NewSessionEngine creates a session engine with the given media config
func NewSessionEngine(config *MediaConfig) *SessionEngine {
	if config == nil {
		config = DefaultMediaConfig()
	}
	devices := config.Devices
	if devices == nil {
		devices = &StaticTrackDevices{}
	}

	return &SessionEngine{
		iceServers: config.ICEServers,
		devices:    devices,
		Emitter:    NewEventEmitter(),
	}
}

// CreateSession destroys any prior session state, then instantiates a new
// peer connection configured with the engine's STUN servers. Local ICE
// candidates, connection state changes, and remote tracks are surfaced
// through the Emitter as they occur.
func (e *SessionEngine) CreateSession() error {
	e.mu.Lock()
	e.teardownLocked()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: e.iceServers,
	})
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	e.pc = pc
	e.remoteStream = &RemoteStream{}
	e.mu.Unlock()

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		e.Emitter.Emit(string(EngineEventIceCandidate), &init)
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Debug().Str("state", s.String()).Msg("peer connection state changed")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			e.Emitter.Emit(string(EngineEventConnected), nil)
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			e.Emitter.Emit(string(EngineEventDisconnected), nil)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Debug().Str("kind", track.Kind().String()).Msg("remote track received")
		e.mu.Lock()
		stream := e.remoteStream
		e.mu.Unlock()
		if stream == nil {
			return
		}
		// Emit the stream handle once, on the first track.
		if stream.add(track) == 1 {
			e.Emitter.Emit(string(EngineEventRemoteStream), stream)
		}
	})

	return nil
}

// ensureSession creates a session if none exists. This supports receiving
// a call before explicit session setup: applying a remote offer implicitly
// brings up the peer connection first.
func (e *SessionEngine) ensureSession() error {
	e.mu.Lock()
	exists := e.pc != nil
	e.mu.Unlock()
	if exists {
		return nil
	}
	return e.CreateSession()
}

// AcquireLocalMedia requests microphone (always) and camera (only if
// wantsVideo) access from the platform. On success it emits the local
// stream and returns it; on denial it emits an error event and fails
// with ErrMediaAccessDenied.
func (e *SessionEngine) AcquireLocalMedia(wantsVideo bool) (*LocalStream, error) {
	stream, err := e.devices.GetUserMedia(wantsVideo)
	if err != nil {
		e.Emitter.Emit(string(EngineEventError), err)
		return nil, fmt.Errorf("%w: %v", ErrMediaAccessDenied, err)
	}

	e.mu.Lock()
	e.localStream = stream
	e.mu.Unlock()

	e.Emitter.Emit(string(EngineEventLocalStream), stream)
	return stream, nil
}

// AttachLocalMedia binds every track of the given stream to the active
// peer connection for transmission.
func (e *SessionEngine) AttachLocalMedia(stream *LocalStream) error {
	e.mu.Lock()
	pc := e.pc
	e.mu.Unlock()
	if pc == nil {
		return ErrNoActiveSession
	}

	for _, t := range stream.Tracks() {
		// Bidirectional transceivers so OnTrack fires for the remote side.
		if _, err := pc.AddTransceiverFromTrack(t.Track(),
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv},
		); err != nil {
			return fmt.Errorf("failed to add %s transceiver: %w", t.Kind(), err)
		}
	}

	return nil
}

// CreateOffer produces a session description requesting both audio and
// video reception, sets it as the local description, and returns it.
// Candidates gathered afterwards are emitted individually (trickle ICE).
func (e *SessionEngine) CreateOffer() (*webrtc.SessionDescription, error) {
	e.mu.Lock()
	pc := e.pc
	e.mu.Unlock()
	if pc == nil {
		return nil, ErrNoActiveSession
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}

	return &offer, nil
}

// CreateAnswer is the callee-side counterpart of CreateOffer. It must only
// be called after a remote offer has been applied.
func (e *SessionEngine) CreateAnswer() (*webrtc.SessionDescription, error) {
	e.mu.Lock()
	pc := e.pc
	e.mu.Unlock()
	if pc == nil {
		return nil, ErrNoActiveSession
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}

	return &answer, nil
}

// ApplyRemoteDescription sets the given description as the remote
// description. The first remote description for the session flips the
// remote-description-applied flag and immediately drains the pending ICE
// queue in arrival order. Applying an offer with no session live
// implicitly creates one first.
func (e *SessionEngine) ApplyRemoteDescription(desc webrtc.SessionDescription) error {
	e.mu.Lock()
	noSession := e.pc == nil
	e.mu.Unlock()

	if noSession {
		if desc.Type != webrtc.SDPTypeOffer {
			return ErrNoActiveSession
		}
		if err := e.ensureSession(); err != nil {
			return err
		}
	}

	e.mu.Lock()
	pc := e.pc
	e.mu.Unlock()
	if pc == nil {
		// Torn down concurrently between the session check and here.
		return ErrNoActiveSession
	}

	if err := pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	e.mu.Lock()
	first := !e.remoteDescSet
	e.remoteDescSet = true
	pending := e.pendingCandidates
	e.pendingCandidates = nil
	e.mu.Unlock()

	if first && len(pending) > 0 {
		log.Debug().Int("count", len(pending)).Msg("draining queued ICE candidates")
		for _, c := range pending {
			if err := pc.AddICECandidate(c); err != nil {
				// Best-effort: connectivity can still succeed via others.
				log.Warn().Err(err).Msg("failed to apply queued ICE candidate")
			}
		}
	}

	return nil
}

// AddRemoteCandidate applies a remote ICE candidate to the connection.
// Candidates arriving before the session exists or before the remote
// description is applied are queued — that is an expected race, not a
// failure. An individual apply failure is logged and does not abort the
// session.
func (e *SessionEngine) AddRemoteCandidate(candidate webrtc.ICECandidateInit) error {
	e.mu.Lock()
	if e.pc == nil || !e.remoteDescSet {
		e.pendingCandidates = append(e.pendingCandidates, candidate)
		e.mu.Unlock()
		return nil
	}
	pc := e.pc
	e.mu.Unlock()

	if err := pc.AddICECandidate(candidate); err != nil {
		log.Warn().Err(err).Msg("failed to apply ICE candidate")
	}
	return nil
}

// ToggleAudio flips the enabled flag on the first local audio track and
// returns the new enabled state. No-op (returns true) without a local stream.
func (e *SessionEngine) ToggleAudio() bool {
	e.mu.Lock()
	stream := e.localStream
	e.mu.Unlock()
	if stream == nil {
		return true
	}
	return stream.ToggleAudio()
}

// ToggleVideo flips the enabled flag on the first local video track and
// returns the new enabled state. No-op (returns true) without a local stream.
func (e *SessionEngine) ToggleVideo() bool {
	e.mu.Lock()
	stream := e.localStream
	e.mu.Unlock()
	if stream == nil {
		return true
	}
	return stream.ToggleVideo()
}

// LocalStream returns the current local stream, or nil
func (e *SessionEngine) LocalStream() *LocalStream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localStream
}

// RemoteStream returns the current remote stream, or nil
func (e *SessionEngine) RemoteStream() *RemoteStream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remoteStream
}

// HasSession reports whether a peer connection is currently live
func (e *SessionEngine) HasSession() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pc != nil
}

// Teardown stops every track of the local and remote streams, closes the
// peer connection, and clears the ICE queue and the remote-description
// flag. Safe to call multiple times and from any state.
func (e *SessionEngine) Teardown() {
	e.mu.Lock()
	e.teardownLocked()
	e.mu.Unlock()
}

func (e *SessionEngine) teardownLocked() {
	if e.localStream != nil {
		e.localStream.Stop()
		e.localStream = nil
	}
	e.remoteStream = nil

	if e.pc != nil {
		if err := e.pc.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing peer connection")
		}
		e.pc = nil
	}

	e.pendingCandidates = nil
	e.remoteDescSet = false
}
