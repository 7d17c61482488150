/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 NestChat Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import "errors"

var (
	// ErrMediaAccessDenied is returned when the platform denies camera or
	// microphone access. The call attempt is aborted and state reverts to idle.
	ErrMediaAccessDenied = errors.New("media access denied")

	// ErrNoActiveSession is returned when an operation that requires a live
	// peer connection (offer/answer creation, track attach) is invoked
	// without one. This is a programming-contract violation, not a runtime
	// condition to retry.
	ErrNoActiveSession = errors.New("no active session")

	// ErrCallInProgress is returned by InitiateCall while another call is
	// active. Only one call may be active at a time.
	ErrCallInProgress = errors.New("a call is already in progress")

	// ErrNoIncomingCall is returned by AcceptCall when there is no pending
	// incoming call notification.
	ErrNoIncomingCall = errors.New("no incoming call to accept")
)
