/* client.go: the top-level client: sessions, readers, events, stats
 *
 * Author: J. Lowell Wofford <lowell@lanl.gov>
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package ipmi

import (
	"sync"
	"time"

	"github.com/kraken-hpc/ipmilan/core"
	"github.com/kraken-hpc/ipmilan/lib/types"
)

// Client ties the pieces together: it owns the event dispatch engine and
// the registry of live sessions, and hands out session handles.  Sessions
// themselves each run on their own goroutine; the client only brokers.
type Client struct {
	mutex    sync.Mutex
	log      types.Logger
	logc     chan core.LoggerEvent
	disp     *core.EventDispatchEngine
	reg      *core.Registry
	sessions map[string]*Session
}

// NewClient stands up a client with its dispatch engine running.  Sessions
// log from their own goroutines, so their messages funnel through a
// ServiceLogger channel into the client's logger.
func NewClient(log types.Logger) (c *Client) {
	if log == nil {
		log = core.NewWriterLogger(nullWriter{}, "ipmilan", types.LLERROR)
	}
	c = &Client{
		log:      log,
		logc:     make(chan core.LoggerEvent, 64),
		disp:     core.NewEventDispatchEngine(log),
		reg:      core.NewRegistry(),
		sessions: make(map[string]*Session),
	}
	go core.ServiceLoggerListener(log, c.logc)
	go c.disp.Run()
	return
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

// Ping probes a host for RMCP/ASF presence with IPMI support
func (c *Client) Ping(host string, timeout time.Duration) bool {
	return Ping(host, timeout)
}

// Open establishes a session and returns its handle
func (c *Client) Open(host string, opts *Options) (handle *core.SessionID, e error) {
	tag := core.NewSessionID()
	slog := core.NewServiceLogger(c.logc, "session:"+tag.String(), c.log.GetLoggerLevel())
	s, e := OpenSession(host, opts, tag, slog, c.disp.EventChan())
	if e != nil {
		return nil, e
	}
	c.mutex.Lock()
	c.sessions[tag.String()] = s
	c.mutex.Unlock()
	c.reg.AddSession(s.Target(), tag)

	// reap the registry entry when the session dies, however it dies
	go func() {
		<-s.donec
		c.mutex.Lock()
		delete(c.sessions, tag.String())
		c.mutex.Unlock()
		c.reg.DeleteSession(tag)
	}()
	return tag, nil
}

// Close shuts down the session behind a handle
func (c *Client) Close(handle *core.SessionID) (e error) {
	s, ok := c.session(handle)
	if !ok {
		return ErrNoSession
	}
	return s.Close()
}

// Raw carries one arbitrary IPMI command over a session
func (c *Client) Raw(handle *core.SessionID, netFn, cmd uint8, data []byte) (cc uint8, rdata []byte, e error) {
	s, ok := c.session(handle)
	if !ok {
		return 0, nil, ErrNoSession
	}
	return s.Request(netFn, cmd, data)
}

// ReadFRU reads and decodes one FRU inventory device; (nil, nil) means the
// device doesn't exist
func (c *Client) ReadFRU(handle *core.SessionID, fruID uint8) (info *FRUInfo, e error) {
	s, ok := c.session(handle)
	if !ok {
		return nil, ErrNoSession
	}
	info, e = ReadFRU(s, fruID)
	if e != nil && e != ErrNoSession {
		switch e.(type) {
		case *TimeoutError, *TransportError, *ClosedError:
		default:
			// FRU-local trouble never kills the session; let observers know
			s.emitEvent(types.Event_FRU, FRUParseError{Handle: handle.String(), FRUID: fruID, Err: e.Error()})
		}
	}
	return
}

// ReadSEL reads the System Event Log; clear wipes it afterwards under the
// same reservation
func (c *Client) ReadSEL(handle *core.SessionID, clear bool) (entries []SELEntry, e error) {
	s, ok := c.session(handle)
	if !ok {
		return nil, ErrNoSession
	}
	return ReadSEL(s, clear, func(recordID uint16, err error) {
		s.emitEvent(types.Event_SEL, SELParseError{Handle: handle.String(), RecordID: recordID, Err: err.Error()})
	})
}

// Subscribe registers an observer channel for an event type; name must be
// unique among observers
func (c *Client) Subscribe(name string, t types.EventType, ec chan<- types.Event) (e error) {
	if e = c.reg.AddObserver(name); e != nil {
		return
	}
	el := core.NewEventListener(name, t,
		func(ev types.Event) bool { return true },
		func(ev types.Event) error { return core.ChanSender(ev, ec) })
	c.disp.SubscriptionChan() <- el
	return
}

// Unsubscribe removes an observer by name
func (c *Client) Unsubscribe(name string) (e error) {
	if e = c.reg.DeleteObserver(name); e != nil {
		return
	}
	el := core.NewEventListener(name, types.Event_ALL, nil, nil)
	el.SetState(types.EventListener_UNSUBSCRIBE)
	c.disp.SubscriptionChan() <- el
	return
}

// Stats enumerates live sessions and observers
func (c *Client) Stats() core.Stats {
	return c.reg.Stats()
}

// Session resolves a handle to its live session, mostly for callers that
// want the lower-level Request interface
func (c *Client) Session(handle *core.SessionID) (s *Session, e error) {
	s, ok := c.session(handle)
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

func (c *Client) session(handle *core.SessionID) (s *Session, ok bool) {
	if handle == nil {
		return nil, false
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	s, ok = c.sessions[handle.String()]
	return
}
