/* SessionID.go: SessionIDs are the unique tags of session handles.
 *               This implementation uses UUIDs for SessionIDs.
 *
 * Author: J. Lowell Wofford <lowell@lanl.gov>
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package core

import (
	uuid "github.com/satori/go.uuid"
)

////////////////////
// SessionID Object /
//////////////////

/*
 * SessionIDs are intended to be read-only.
 * If you need a new value, create a new one.
 */

// SessionID uses UUID for session tags; successive sessions to the same
// target get distinct tags
type SessionID struct {
	u uuid.UUID
}

// NewSessionID generates a fresh random SessionID
func NewSessionID() *SessionID {
	return &SessionID{
		u: uuid.NewV4(),
	}
}

// SessionIDFromString creates a SessionID object based on the ID string
func SessionIDFromString(id string) *SessionID {
	u := uuid.FromStringOrNil(id)
	sid := SessionID{
		u: u,
	}
	return &sid
}

// Equal determines if two SessionIDs are equal
func (n *SessionID) Equal(n2 *SessionID) bool {
	if n2 == nil {
		return false
	}
	return uuid.Equal(n.u, n2.u)
}

// Binary converts the SessionID to a binary representation in []bytes
func (n *SessionID) Binary() []byte {
	return n.u.Bytes()
}

// String ...
func (n *SessionID) String() string {
	return n.u.String()
}

// Nil determines this SessionID is Nil (effectively: is it valid?)
func (n *SessionID) Nil() bool {
	return uuid.Equal(n.u, uuid.UUID{})
}
