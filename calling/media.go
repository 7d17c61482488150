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
)

// MediaDevices is the platform boundary for acquiring capture hardware.
// The default implementation produces static sample tracks suitable for
// feeding encoded audio/video; integrations with real capture devices
// (e.g. pion/mediadevices) provide their own implementation.
type MediaDevices interface {
	// GetUserMedia acquires a microphone track, plus a camera track when
	// wantsVideo is set. It returns ErrMediaAccessDenied (wrapped) when
	// the platform refuses access.
	GetUserMedia(wantsVideo bool) (*LocalStream, error)
}

// MediaConfig holds configuration for session engines
type MediaConfig struct {
	// ICEServers is the list of ICE servers to use. STUN only — no TURN
	// relay is configured, so calls may fail to connect across
	// restrictive NATs. That is a deliberate simplicity trade-off.
	ICEServers []webrtc.ICEServer

	// Devices is the media acquisition boundary. Defaults to
	// StaticTrackDevices.
	Devices MediaDevices
}

// DefaultMediaConfig returns a MediaConfig with the standard public STUN set.
func DefaultMediaConfig() *MediaConfig {
	return &MediaConfig{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
			{URLs: []string{"stun:stun2.l.google.com:19302"}},
		},
		Devices: &StaticTrackDevices{},
	}
}

// ---- Local Media Model ----

// LocalTrack wraps a local media track with an enabled flag, mirroring
// the track-enabled semantics of browser media tracks. Disabling a track
// mutes it without detaching it from the peer connection.
type LocalTrack struct {
	mu      sync.Mutex
	track   webrtc.TrackLocal
	kind    webrtc.RTPCodecType
	enabled bool
	stop    func()
}

// NewLocalTrack wraps a track for use in a LocalStream. stop may be nil;
// when set it is invoked once on stream teardown to release the capture
// device behind the track.
func NewLocalTrack(track webrtc.TrackLocal, kind webrtc.RTPCodecType, stop func()) *LocalTrack {
	return &LocalTrack{
		track:   track,
		kind:    kind,
		enabled: true,
		stop:    stop,
	}
}

// Track returns the underlying webrtc track
func (t *LocalTrack) Track() webrtc.TrackLocal {
	return t.track
}

// Kind returns whether this is an audio or video track
func (t *LocalTrack) Kind() webrtc.RTPCodecType {
	return t.kind
}

// Enabled reports whether the track is currently enabled
func (t *LocalTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// SetEnabled sets the enabled flag and returns the new value
func (t *LocalTrack) SetEnabled(enabled bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	return t.enabled
}

// Stop releases the capture device behind the track, if any. Safe to
// call more than once.
func (t *LocalTrack) Stop() {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	t.enabled = false
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// LocalStream groups the local tracks acquired for a call
type LocalStream struct {
	mu     sync.Mutex
	tracks []*LocalTrack
}

// NewLocalStream creates a stream from the given tracks
func NewLocalStream(tracks ...*LocalTrack) *LocalStream {
	return &LocalStream{tracks: tracks}
}

// Tracks returns the tracks in the stream
func (s *LocalStream) Tracks() []*LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*LocalTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// AudioTrack returns the first audio track, or nil
func (s *LocalStream) AudioTrack() *LocalTrack {
	return s.firstTrack(webrtc.RTPCodecTypeAudio)
}

// VideoTrack returns the first video track, or nil
func (s *LocalStream) VideoTrack() *LocalTrack {
	return s.firstTrack(webrtc.RTPCodecTypeVideo)
}

func (s *LocalStream) firstTrack(kind webrtc.RTPCodecType) *LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		if t.kind == kind {
			return t
		}
	}
	return nil
}

// ToggleAudio flips the enabled flag on the first audio track and returns
// the new enabled state. Returns true when no audio track exists.
func (s *LocalStream) ToggleAudio() bool {
	return s.toggle(webrtc.RTPCodecTypeAudio)
}

// ToggleVideo flips the enabled flag on the first video track and returns
// the new enabled state. Returns true when no video track exists.
func (s *LocalStream) ToggleVideo() bool {
	return s.toggle(webrtc.RTPCodecTypeVideo)
}

func (s *LocalStream) toggle(kind webrtc.RTPCodecType) bool {
	t := s.firstTrack(kind)
	if t == nil {
		return true
	}
	return t.SetEnabled(!t.Enabled())
}

// Stop stops every track in the stream
func (s *LocalStream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// RemoteStream collects the remote peer's tracks as they arrive
type RemoteStream struct {
	mu     sync.Mutex
	tracks []*webrtc.TrackRemote
}

// Tracks returns the remote tracks received so far
func (s *RemoteStream) Tracks() []*webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*webrtc.TrackRemote, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *RemoteStream) add(track *webrtc.TrackRemote) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, track)
	return len(s.tracks)
}

// ---- Default Devices ----

// StaticTrackDevices is the default MediaDevices implementation. It
// produces static sample tracks (Opus audio, VP8 video) that callers feed
// with encoded media. It never denies access.
type StaticTrackDevices struct{}

// GetUserMedia creates an audio track, plus a video track when wantsVideo
// is set.
func (d *StaticTrackDevices) GetUserMedia(wantsVideo bool) (*LocalStream, error) {
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio",
		"nestchat",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}

	tracks := []*LocalTrack{NewLocalTrack(audio, webrtc.RTPCodecTypeAudio, nil)}

	if wantsVideo {
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video",
			"nestchat",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create video track: %w", err)
		}
		tracks = append(tracks, NewLocalTrack(video, webrtc.RTPCodecTypeVideo, nil))
	}

	return NewLocalStream(tracks...), nil
}
