/* Registry.go: the registry tracks live sessions and observers for enumeration
 *
 * Author: J. Lowell Wofford <lowell@lanl.gov>
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package core

import (
	"fmt"
	"sync"
)

//////////////////////
// Registry Object  /
////////////////////

// A SessionRecord is what the registry knows about a live session:
// where it points and the handle it was given.
type SessionRecord struct {
	Target string // host:port of the BMC
	Handle *SessionID
}

// Stats is the enumeration snapshot returned by Registry.Stats
type Stats struct {
	Sessions  []SessionRecord `json:"sessions"`
	Observers []string        `json:"observers"`
}

// The Registry holds references to live sessions for enumeration only;
// it never owns them.  Sessions register on open and deregister on close
// or teardown.  Observer names are tracked alongside for stats().
type Registry struct {
	mutex     sync.Mutex
	sessions  map[string]SessionRecord // keyed by handle string
	observers map[string]bool          // observer (listener) names
}

// NewRegistry creates an initialized, empty Registry
func NewRegistry() *Registry {
	r := &Registry{
		sessions:  make(map[string]SessionRecord),
		observers: make(map[string]bool),
	}
	return r
}

// AddSession registers a live session under its handle
func (r *Registry) AddSession(target string, handle *SessionID) (e error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	k := handle.String()
	if _, ok := r.sessions[k]; ok {
		return fmt.Errorf("session handle already registered: %s", k)
	}
	r.sessions[k] = SessionRecord{Target: target, Handle: handle}
	return
}

// DeleteSession removes a session; removing an unknown handle is not an error,
// teardown paths may race with explicit close
func (r *Registry) DeleteSession(handle *SessionID) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.sessions, handle.String())
}

// GetSession finds the record for a handle, if it's live
func (r *Registry) GetSession(handle *SessionID) (rec SessionRecord, ok bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	rec, ok = r.sessions[handle.String()]
	return
}

// AddObserver records an observer name
func (r *Registry) AddObserver(name string) (e error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.observers[name]; ok {
		return fmt.Errorf("observer already registered: %s", name)
	}
	r.observers[name] = true
	return
}

// DeleteObserver removes an observer name
func (r *Registry) DeleteObserver(name string) (e error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.observers[name]; !ok {
		return fmt.Errorf("no such observer: %s", name)
	}
	delete(r.observers, name)
	return
}

// Stats takes an enumeration snapshot
func (r *Registry) Stats() (s Stats) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, rec := range r.sessions {
		s.Sessions = append(s.Sessions, rec)
	}
	for n := range r.observers {
		s.Observers = append(s.Observers, n)
	}
	return
}
