/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 NestChat Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package calling implements pairwise voice and video calls over WebRTC.
//
// The package splits the problem into two layers: the SessionEngine owns a
// single peer connection and its media (tracks, SDP exchange, ICE candidate
// ordering), while the CallManager drives the call lifecycle on top of it
// (offer/answer signaling, accept/decline/hang-up, busy handling, call-log
// recording). A Client ties both to the core REST client and a signaling
// transport.
package calling

import (
	"sync"

	"github.com/nestchat/nestchat-go-sdk/nestsdk"
)

// Client is the calling plugin: call lifecycle plus call history
type Client struct {
	coreClient *nestsdk.Client
	config     *Config

	mu       sync.Mutex
	callLogs *CallLogsClient
	manager  *CallManager
}

// New creates a new Calling plugin
func New(coreClient *nestsdk.Client, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	return &Client{
		coreClient: coreClient,
		config:     config,
	}
}

// CallLogs returns the call history client
func (c *Client) CallLogs() *CallLogsClient {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.callLogsLocked()
}

// Manager returns the call manager bound to the given signaling transport.
// The manager is created on first use and reused afterwards; the transport
// argument of later calls is ignored.
func (c *Client) Manager(transport SignalSender) *CallManager {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.manager == nil {
		c.manager = NewCallManager(transport, c.callLogsLocked(), c.config)
	}
	return c.manager
}

// callLogsLocked returns the call history client; callers must hold c.mu.
func (c *Client) callLogsLocked() *CallLogsClient {
	if c.callLogs == nil {
		c.callLogs = NewCallLogsClient(c.coreClient)
	}
	return c.callLogs
}
