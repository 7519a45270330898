/* types.go: provides the shared interfaces of ipmilan
 *
 * Author: J. Lowell Wofford <lowell@lanl.gov>
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package types

/*
 * Events
 */

type EventType uint8

const (
	Event_SESSION EventType = iota // session lifecycle: established, closed
	Event_DECODE                   // protocol decode failures
	Event_REQUEST                  // request-level notices: timeouts, orphan responses
	Event_FRU                      // FRU parse notices
	Event_SEL                      // SEL parse notices
	Event_ALL
)

var EventTypeString = map[EventType]string{
	Event_SESSION: "SESSION",
	Event_DECODE:  "DECODE",
	Event_REQUEST: "REQUEST",
	Event_FRU:     "FRU",
	Event_SEL:     "SEL",
	Event_ALL:     "ALL",
}

var EventTypeValue = map[string]EventType{
	"SESSION": Event_SESSION,
	"DECODE":  Event_DECODE,
	"REQUEST": Event_REQUEST,
	"FRU":     Event_FRU,
	"SEL":     Event_SEL,
	"ALL":     Event_ALL,
}

// Event 's capture a happening's type, location, and optional data
type Event interface {
	Type() EventType   // We may need to handle event types differently
	URL() string       // URL must describe what the event pertains to
	Data() interface{} // consumer should know what we have based on type
}

// EventEmitter 's emit events. They're a firehose; no filtering.
// It's expected that the subscriber will be an event dispatcher
// that will make decisions about where the events need to go.
// An Emitter emits only one EventType.
type EventEmitter interface {
	Subscribe(string, chan<- []Event) error
	Unsubscribe(string) error
	Emit([]Event)
	EmitOne(Event)
	EventType() EventType
}

// An EventDispatchEngine subscribes to event sources and re-transmits events
// It can filter events for its subscribers
type EventDispatchEngine interface {
	// Direct call to subscribe, or modify a subscription
	AddListener(listener EventListener) error
	// Send an EventListener to subscribe, or modify a subscription
	SubscriptionChan() chan<- EventListener
	EventChan() chan<- []Event
	Run() // goroutine
}

// An EventListener decides if an event should be provided on this subscription.
// It also provides the channel on which it should be provided.
// Name must be unique. It is used to key Listeners for logging and subscription modification.
// Send should call Filter, and should always send iff Filter == true
// Filter is exposed so a Dispatch can know if a message would be sent without sending.
type EventListener interface {
	Name() string
	Filter(Event) bool
	Send(Event) error
	State() EventListenerState
	SetState(EventListenerState)
	Type() EventType
}

type EventListenerState uint8

const (
	EventListener_STOP        EventListenerState = 0
	EventListener_RUN         EventListenerState = 1
	EventListener_UNSUBSCRIBE EventListenerState = 2
)

/*
 * Logger interface
 */

type LoggerLevel uint8

const (
	LLPANIC    LoggerLevel = iota
	LLFATAL    LoggerLevel = iota
	LLCRITICAL LoggerLevel = iota
	LLERROR    LoggerLevel = iota
	LLWARNING  LoggerLevel = iota
	LLNOTICE   LoggerLevel = iota
	LLINFO     LoggerLevel = iota
	LLDEBUG    LoggerLevel = iota
	LLDDEBUG   LoggerLevel = iota
	LLDDDEBUG  LoggerLevel = iota
)

var LoggerLevels = [...]string{
	"PANIC",
	"FATAL",
	"CRITICAL",
	"ERROR",
	"WARNING",
	"NOTICE",
	"INFO",
	"DEBUG",
	"DDEBUG",
	"DDDEBUG",
}

type Logger interface {
	Log(level LoggerLevel, m string)
	Logf(level LoggerLevel, fmt string, v ...interface{})

	SetModule(name string)
	GetModule() string

	SetLoggerLevel(LoggerLevel)
	GetLoggerLevel() LoggerLevel
	IsEnabledFor(LoggerLevel) bool
}
