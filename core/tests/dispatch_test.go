/* dispatch_test.go: event dispatch, listeners, and the session registry
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package core

import (
	"fmt"
	"os"
	"testing"
	"time"

	. "github.com/kraken-hpc/ipmilan/core"
	"github.com/kraken-hpc/ipmilan/lib/types"
)

func testLogger() types.Logger {
	return NewWriterLogger(os.Stderr, "test", types.LLERROR)
}

func TestEventDispatch(t *testing.T) {
	d := NewEventDispatchEngine(testLogger())
	go d.Run()

	sessc := make(chan types.Event, 4)
	allc := make(chan types.Event, 4)
	d.SubscriptionChan() <- NewEventListener("sess", types.Event_SESSION,
		func(ev types.Event) bool { return true },
		func(ev types.Event) error { return ChanSender(ev, sessc) })
	d.SubscriptionChan() <- NewEventListener("all", types.Event_ALL,
		func(ev types.Event) bool { return true },
		func(ev types.Event) error { return ChanSender(ev, allc) })

	time.Sleep(20 * time.Millisecond)
	d.EventChan() <- []types.Event{NewEvent(types.Event_SESSION, SessionURL("abc"), "established")}
	d.EventChan() <- []types.Event{NewEvent(types.Event_DECODE, SessionURL("abc"), "bad_checksum")}

	// the typed listener sees only its type
	select {
	case ev := <-sessc:
		if ev.Type() != types.Event_SESSION || ev.URL() != "ipmilan/session/abc" {
			t.Errorf("unexpected event: %v %v", ev.Type(), ev.URL())
		}
	case <-time.After(time.Second):
		t.Fatalf("session event never delivered")
	}
	select {
	case ev := <-sessc:
		t.Errorf("typed listener got a foreign event: %v", ev.Type())
	case <-time.After(50 * time.Millisecond):
	}

	// the ALL listener sees both
	got := 0
	for got < 2 {
		select {
		case <-allc:
			got++
		case <-time.After(time.Second):
			t.Fatalf("ALL listener got %d events, want 2", got)
		}
	}
}

func TestEventListenerFilter(t *testing.T) {
	ev := NewEvent(types.Event_SESSION, SessionURL("tag-1"), nil)
	match := NewEventListener("m", types.Event_SESSION,
		func(e types.Event) bool { return FilterRegexpStr(e, "^ipmilan/session/tag-1$") },
		func(e types.Event) error { return nil })
	if !match.Filter(ev) {
		t.Errorf("filter should match")
	}
	miss := NewEventListener("n", types.Event_SESSION,
		func(e types.Event) bool { return FilterSimple(e, []string{"ipmilan/session/other"}) },
		func(e types.Event) error { t.Errorf("send on filtered event"); return nil })
	if miss.Filter(ev) {
		t.Errorf("filter should not match")
	}
	miss.Send(ev)
}

func TestEventEmitter(t *testing.T) {
	em := NewEventEmitter(types.Event_ALL)
	ec := make(chan []types.Event, 4)
	if e := em.Subscribe("sink", ec); e != nil {
		t.Fatalf("%v", e)
	}
	if e := em.Subscribe("sink", ec); e == nil {
		t.Errorf("duplicate subscription id should be rejected")
	}

	em.EmitOne(NewEvent(types.Event_SESSION, SessionURL("abc"), "established"))
	select {
	case evs := <-ec:
		if len(evs) != 1 || evs[0].URL() != "ipmilan/session/abc" {
			t.Errorf("unexpected events: %+v", evs)
		}
	case <-time.After(time.Second):
		t.Fatalf("emitted event never arrived")
	}

	if e := em.Unsubscribe("sink"); e != nil {
		t.Fatalf("%v", e)
	}
	if e := em.Unsubscribe("sink"); e == nil {
		t.Errorf("double unsubscribe should fail")
	}
	em.EmitOne(NewEvent(types.Event_SESSION, SessionURL("abc"), "closed"))
	select {
	case evs := <-ec:
		t.Errorf("event delivered after unsubscribe: %+v", evs)
	case <-time.After(50 * time.Millisecond):
	}
}

// captureLogger records messages for assertions
type captureLogger struct {
	lv   types.LoggerLevel
	msgc chan string
}

func (l *captureLogger) Log(lv types.LoggerLevel, m string) {
	if l.IsEnabledFor(lv) {
		l.msgc <- m
	}
}
func (l *captureLogger) Logf(lv types.LoggerLevel, f string, v ...interface{}) {
	l.Log(lv, fmt.Sprintf(f, v...))
}
func (l *captureLogger) SetModule(string)                       {}
func (l *captureLogger) GetModule() string                      { return "capture" }
func (l *captureLogger) SetLoggerLevel(lv types.LoggerLevel)    { l.lv = lv }
func (l *captureLogger) GetLoggerLevel() types.LoggerLevel      { return l.lv }
func (l *captureLogger) IsEnabledFor(lv types.LoggerLevel) bool { return lv <= l.lv }

func TestServiceLogger(t *testing.T) {
	logc := make(chan LoggerEvent, 4)
	sl := NewServiceLogger(logc, "session:abc", types.LLINFO)

	// below-threshold messages never hit the channel
	sl.Log(types.LLDEBUG, "too quiet")
	select {
	case le := <-logc:
		t.Fatalf("filtered message sent: %+v", le)
	default:
	}

	sl.Logf(types.LLINFO, "seq %d timed out", 7)
	select {
	case le := <-logc:
		if le.Module != "session:abc" || le.Level != types.LLINFO || le.Message != "seq 7 timed out" {
			t.Errorf("unexpected event: %+v", le)
		}
		logc <- le // put it back for the listener below
	default:
		t.Fatalf("no log event on the channel")
	}

	// the listener forwards channel events into a backing logger
	back := &captureLogger{lv: types.LLINFO, msgc: make(chan string, 4)}
	go ServiceLoggerListener(back, logc)
	select {
	case m := <-back.msgc:
		if m != "session:abc:seq 7 timed out" {
			t.Errorf("forwarded message = %q", m)
		}
	case <-time.After(time.Second):
		t.Fatalf("listener never forwarded the event")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	h1, h2 := NewSessionID(), NewSessionID()
	if h1.Equal(h2) {
		t.Fatalf("successive session tags must differ")
	}
	if e := r.AddSession("10.0.0.1:623", h1); e != nil {
		t.Fatalf("%v", e)
	}
	if e := r.AddSession("10.0.0.1:623", h1); e == nil {
		t.Errorf("duplicate handle should be rejected")
	}
	r.AddSession("10.0.0.2:623", h2)
	r.AddObserver("watcher")

	s := r.Stats()
	if len(s.Sessions) != 2 || len(s.Observers) != 1 {
		t.Errorf("stats: %+v", s)
	}

	r.DeleteSession(h1)
	r.DeleteSession(h1) // deleting twice is not an error
	if rec, ok := r.GetSession(h2); !ok || rec.Target != "10.0.0.2:623" {
		t.Errorf("lost h2: %v %v", rec, ok)
	}
	if _, ok := r.GetSession(h1); ok {
		t.Errorf("h1 should be gone")
	}
}

func TestSessionID(t *testing.T) {
	id := NewSessionID()
	if id.Nil() {
		t.Errorf("fresh id is nil")
	}
	round := SessionIDFromString(id.String())
	if !id.Equal(round) {
		t.Errorf("string round trip broke identity")
	}
	if !SessionIDFromString("not-a-uuid").Nil() {
		t.Errorf("garbage should parse to the nil id")
	}
}
