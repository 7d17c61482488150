/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 NestChat Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package nestchat is the top-level entry point of the NestChat Go SDK.
// It bundles the REST core, the signaling channel, and the calling
// plugin behind one client.
package nestchat

import (
	"sync"

	"github.com/nestchat/nestchat-go-sdk/calling"
	"github.com/nestchat/nestchat-go-sdk/nestsdk"
	"github.com/nestchat/nestchat-go-sdk/signaling"
)

// NestChatClient is the top-level client for the NestChat API
type NestChatClient struct {
	// Core client for the NestChat REST API
	core *nestsdk.Client

	// Plugins
	callingClient   *calling.Client
	signalingClient *signaling.Client

	managerWired sync.Once
}

// NewClient creates a new NestChat client with the given access token and
// optional configuration
func NewClient(accessToken string, config *nestsdk.Config) (*NestChatClient, error) {
	core, err := nestsdk.NewClient(accessToken, config)
	if err != nil {
		return nil, err
	}

	client := &NestChatClient{
		core: core,
	}

	return client, nil
}

// Core returns the underlying REST core client
func (c *NestChatClient) Core() *nestsdk.Client {
	return c.core
}

// Calling returns the Calling plugin
func (c *NestChatClient) Calling() *calling.Client {
	if c.callingClient == nil {
		c.callingClient = calling.New(c.core, nil)
	}
	return c.callingClient
}

// Signaling returns the Signaling client
func (c *NestChatClient) Signaling() *signaling.Client {
	if c.signalingClient == nil {
		c.signalingClient = signaling.New(c.core, nil)
	}
	return c.signalingClient
}

// CallManager returns a call manager wired to the signaling client. The
// signaling connection must be established separately via
// Signaling().Connect; inbound call frames are routed to the manager
// automatically.
func (c *NestChatClient) CallManager() *calling.CallManager {
	sig := c.Signaling()
	manager := c.Calling().Manager(sig)

	c.managerWired.Do(func() {
		for _, t := range []signaling.MessageType{
			signaling.MessageTypeCallOffer,
			signaling.MessageTypeCallAnswer,
			signaling.MessageTypeIceCandidate,
			signaling.MessageTypeCallEnd,
			signaling.MessageTypeCallEnded,
		} {
			sig.On(t, manager.HandleSignal)
		}
	})

	return manager
}
