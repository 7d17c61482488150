/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 NestChat Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"fmt"
	"net/http"

	"github.com/nestchat/nestchat-go-sdk/nestsdk"
)

// CreateCallLogRequest is the body for recording a call outcome
type CreateCallLogRequest struct {
	CalleeID string     `json:"callee_id"`
	CallType CallType   `json:"call_type"`
	Status   CallStatus `json:"status"`
	Duration int        `json:"duration"`
}

// CallLogsClient is the call history API client
type CallLogsClient struct {
	coreClient *nestsdk.Client
}

// NewCallLogsClient creates a call history client on the given core client
func NewCallLogsClient(coreClient *nestsdk.Client) *CallLogsClient {
	return &CallLogsClient{
		coreClient: coreClient,
	}
}

// Create records a terminal call outcome in the user's call history
func (c *CallLogsClient) Create(calleeID string, callType CallType, status CallStatus, duration int) (*CreateCallLogResponse, error) {
	if calleeID == "" {
		return nil, fmt.Errorf("calleeID is required")
	}

	body := &CreateCallLogRequest{
		CalleeID: calleeID,
		CallType: callType,
		Status:   status,
		Duration: duration,
	}

	resp, err := c.coreClient.Request(http.MethodPost, "calls", nil, body)
	if err != nil {
		return nil, err
	}

	var result CreateCallLogResponse
	if err := nestsdk.ParseResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// List returns the user's call history, most recent first
func (c *CallLogsClient) List() ([]CallRecord, error) {
	resp, err := c.coreClient.Request(http.MethodGet, "calls", nil, nil)
	if err != nil {
		return nil, err
	}

	var records []CallRecord
	if err := nestsdk.ParseResponse(resp, &records); err != nil {
		return nil, err
	}

	return records, nil
}

// Delete removes a single call history entry by ID
func (c *CallLogsClient) Delete(callLogID string) error {
	if callLogID == "" {
		return fmt.Errorf("callLogID is required")
	}

	path := fmt.Sprintf("calls/%s", callLogID)
	resp, err := c.coreClient.Request(http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}

	return nestsdk.ParseResponse(resp, nil)
}

// Clear removes the user's entire call history
func (c *CallLogsClient) Clear() error {
	resp, err := c.coreClient.Request(http.MethodDelete, "calls", nil, nil)
	if err != nil {
		return err
	}

	return nestsdk.ParseResponse(resp, nil)
}
