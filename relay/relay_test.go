/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 NestChat Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package relay

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/nestchat/nestchat-go-sdk/signaling"
)

func newTestRelay(t *testing.T, config *Config) (*Server, *httptest.Server) {
	t.Helper()
	server := NewServer(config)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return server, ts
}

func dial(t *testing.T, ts *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(
		fmt.Sprintf("%s/ws/%s?token=test-token", wsURL, userID), nil)
	if err != nil {
		t.Fatalf("dial failed for %s: %v", userID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *signaling.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg signaling.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return &msg
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	_, ts := newTestRelay(t, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/ws/alice", nil)
	if err == nil {
		t.Fatal("Expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 response, got %+v", resp)
	}
}

func TestCustomValidator(t *testing.T) {
	cfg := &Config{
		Validate: func(token string) string {
			if token == "secret" {
				return "alice"
			}
			return ""
		},
	}
	_, ts := newTestRelay(t, cfg)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	t.Run("accepted", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/alice?token=secret", nil)
		if err != nil {
			t.Fatalf("Expected dial to succeed: %v", err)
		}
		conn.Close()
	})

	t.Run("wrong token", func(t *testing.T) {
		if _, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/alice?token=wrong", nil); err == nil {
			t.Error("Expected dial to fail with wrong token")
		}
	})

	t.Run("user mismatch", func(t *testing.T) {
		if _, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/bob?token=secret", nil); err == nil {
			t.Error("Expected dial to fail when token authenticates a different user")
		}
	})
}

func TestOfferRouting(t *testing.T) {
	server, ts := newTestRelay(t, nil)

	alice := dial(t, ts, "alice")
	bob := dial(t, ts, "bob")

	offer := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
	if err := alice.WriteJSON(&signaling.Message{
		Type:       signaling.MessageTypeCallOffer,
		CallID:     "call-1",
		CalleeID:   "bob",
		CallerName: "Alice",
		CallType:   "video",
		SDP:        offer,
	}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := readFrame(t, bob)
	if got.Type != signaling.MessageTypeCallOffer {
		t.Fatalf("Expected call_offer, got %s", got.Type)
	}
	if got.CallerID != "alice" {
		t.Errorf("Expected relay to stamp caller id alice, got %q", got.CallerID)
	}
	if got.CallerName != "Alice" {
		t.Errorf("Expected caller name preserved, got %q", got.CallerName)
	}
	if got.CallID != "call-1" || got.CallType != "video" {
		t.Errorf("Expected call identity preserved, got %+v", got)
	}
	if got.SDP == nil || got.SDP.Type != webrtc.SDPTypeOffer {
		t.Error("Expected SDP offer forwarded")
	}
	if got.Timestamp == "" {
		t.Error("Expected relay to stamp a timestamp")
	}

	if call := server.Registry().Get("call-1"); call == nil || call.CallerID != "alice" || call.CalleeID != "bob" {
		t.Errorf("Expected registered call alice->bob, got %+v", call)
	}
}

func TestAnswerRouting(t *testing.T) {
	server, ts := newTestRelay(t, nil)

	alice := dial(t, ts, "alice")
	bob := dial(t, ts, "bob")

	offer := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
	alice.WriteJSON(&signaling.Message{
		Type: signaling.MessageTypeCallOffer, CallID: "call-1", CalleeID: "bob", SDP: offer,
	})
	readFrame(t, bob)

	answer := &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"}
	if err := bob.WriteJSON(&signaling.Message{
		Type:   signaling.MessageTypeCallAnswer,
		CallID: "call-1",
		SDP:    answer,
	}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := readFrame(t, alice)
	if got.Type != signaling.MessageTypeCallAnswer {
		t.Fatalf("Expected call_answer, got %s", got.Type)
	}
	if got.AnswererID != "bob" {
		t.Errorf("Expected relay to stamp answerer id bob, got %q", got.AnswererID)
	}
	if got.SDP == nil || got.SDP.Type != webrtc.SDPTypeAnswer {
		t.Error("Expected SDP answer forwarded")
	}

	if call := server.Registry().Get("call-1"); call == nil || call.Status != "active" {
		t.Errorf("Expected call marked active, got %+v", call)
	}
}

func TestIceCandidateFanOut(t *testing.T) {
	_, ts := newTestRelay(t, nil)

	alice := dial(t, ts, "alice")
	bob := dial(t, ts, "bob")

	offer := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
	alice.WriteJSON(&signaling.Message{
		Type: signaling.MessageTypeCallOffer, CallID: "call-1", CalleeID: "bob", SDP: offer,
	})
	readFrame(t, bob)

	candidate := &webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 192.0.2.1 1 typ host"}
	if err := alice.WriteJSON(&signaling.Message{
		Type:      signaling.MessageTypeIceCandidate,
		CallID:    "call-1",
		Candidate: candidate,
	}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := readFrame(t, bob)
	if got.Type != signaling.MessageTypeIceCandidate {
		t.Fatalf("Expected ice_candidate, got %s", got.Type)
	}
	if got.UserID != "alice" {
		t.Errorf("Expected candidate attributed to alice, got %q", got.UserID)
	}
	if got.Candidate == nil || got.Candidate.Candidate != candidate.Candidate {
		t.Error("Expected candidate payload forwarded")
	}
}

func TestCallEndFanOut(t *testing.T) {
	server, ts := newTestRelay(t, nil)

	alice := dial(t, ts, "alice")
	bob := dial(t, ts, "bob")

	offer := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
	alice.WriteJSON(&signaling.Message{
		Type: signaling.MessageTypeCallOffer, CallID: "call-1", CalleeID: "bob", SDP: offer,
	})
	readFrame(t, bob)

	if err := bob.WriteJSON(&signaling.Message{
		Type:   signaling.MessageTypeCallEnd,
		CallID: "call-1",
		Reason: "declined",
	}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := readFrame(t, alice)
	if got.Type != signaling.MessageTypeCallEnded {
		t.Fatalf("Expected call_ended, got %s", got.Type)
	}
	if got.EndedBy != "bob" {
		t.Errorf("Expected ended_by bob, got %q", got.EndedBy)
	}
	if got.Reason != "declined" {
		t.Errorf("Expected declined reason forwarded, got %q", got.Reason)
	}

	// End frames clear the registry.
	deadline := time.Now().Add(time.Second)
	for server.Registry().Get("call-1") != nil {
		if time.Now().After(deadline) {
			t.Fatal("Expected call removed from registry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMalformedOfferDropped(t *testing.T) {
	server, ts := newTestRelay(t, nil)

	alice := dial(t, ts, "alice")

	// No callee, no SDP.
	if err := alice.WriteJSON(&signaling.Message{
		Type:   signaling.MessageTypeCallOffer,
		CallID: "call-x",
	}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if server.Registry().Get("call-x") != nil {
		t.Error("Expected malformed offer to be ignored")
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestRelay(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	call := r.Create("call-1", "alice", "bob", "voice")
	if call.Status != "ringing" {
		t.Errorf("Expected ringing status, got %q", call.Status)
	}
	if r.UserCall("alice") != "call-1" {
		t.Error("Expected caller mapped to call")
	}

	t.Run("join", func(t *testing.T) {
		joined := r.Join("call-1", "bob")
		if joined == nil || joined.Status != "active" {
			t.Errorf("Expected active call after join, got %+v", joined)
		}
		if r.UserCall("bob") != "call-1" {
			t.Error("Expected callee mapped to call")
		}
	})

	t.Run("join unknown", func(t *testing.T) {
		if r.Join("call-none", "bob") != nil {
			t.Error("Expected nil for unknown call")
		}
	})

	t.Run("end", func(t *testing.T) {
		ended := r.End("call-1")
		if ended == nil || ended.Status != "ended" {
			t.Errorf("Expected ended call, got %+v", ended)
		}
		if r.Get("call-1") != nil {
			t.Error("Expected call removed")
		}
		if r.UserCall("alice") != "" || r.UserCall("bob") != "" {
			t.Error("Expected user mappings cleared")
		}
	})

	t.Run("end unknown", func(t *testing.T) {
		if r.End("call-none") != nil {
			t.Error("Expected nil for unknown call")
		}
	})
}
