/* session.go: the per-target IPMI v1.5 session state machine
 *
 * Author: J. Lowell Wofford <lowell@lanl.gov>
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package ipmi

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kraken-hpc/ipmilan/core"
	"github.com/kraken-hpc/ipmilan/lib/types"
)

/*
 * Session sequence:
 * GetChannelAuthCap - see what auth support exists
 * GetSessionChallenge - start auth
 * ActivateSession - finish auth/activate session
 * SetSessionPriv - set our privilege level
 * ...
 * CloseSession - bye!
 */

// Phase is the lifecycle state of a session
type Phase uint8

const (
	PhaseClosed Phase = iota
	PhaseAuthCap
	PhaseChallenge
	PhaseActivate
	PhaseSetPriv
	PhaseActive
	PhaseClosing
)

var PhaseString = map[Phase]string{
	PhaseClosed:    "closed",
	PhaseAuthCap:   "authcap",
	PhaseChallenge: "challenge",
	PhaseActivate:  "activate",
	PhaseSetPriv:   "setpriv",
	PhaseActive:    "active",
	PhaseClosing:   "closing",
}

// replayWindow tracks inbound session sequence numbers; a packet whose
// sequence was already seen, or trails the highest seen by the window
// width or more, is a replay
type replayWindow struct {
	primed bool
	max    uint32
	bits   uint8 // bit d set means max-d was seen
}

func (w *replayWindow) check(seq uint32) bool {
	if seq == 0 {
		// unauthenticated traffic carries no sequence
		return true
	}
	if !w.primed {
		w.primed = true
		w.max = seq
		w.bits = 1
		return true
	}
	if seq > w.max {
		d := seq - w.max
		if d >= IPMIReplayWindow {
			w.bits = 1
		} else {
			w.bits = w.bits<<d | 1
		}
		w.max = seq
		return true
	}
	d := w.max - seq
	if d >= IPMIReplayWindow {
		return false
	}
	if w.bits&(1<<d) != 0 {
		return false
	}
	w.bits |= 1 << d
	return true
}

type rawRequest struct {
	netFn uint8
	lun   uint8
	cmd   uint8
	data  []byte
	respc chan *rawResponse
	seq   uint8 // filled in by the run loop once allocated
}

type rawResponse struct {
	cc   uint8
	data []byte
	err  error
}

// A Session owns one UDP endpoint and one in-flight table.  After Open
// succeeds the run goroutine has exclusive access to the wire state;
// callers talk to it over channels.
type Session struct {
	target  *net.UDPAddr
	opts    *Options
	tag     *core.SessionID
	log     types.Logger
	emitter types.EventEmitter

	authType uint8
	password []byte
	sid      uint32
	sseqOut  uint32
	inWin    replayWindow
	rqLun    uint8
	setupSeq uint8

	tr    *Transport
	table *reqTable
	phase Phase

	reqc    chan *rawRequest
	cancelc chan *rawRequest
	closec  chan string
	donec   chan struct{}
}

// OpenSession dials a BMC and walks the activation sequence:
// AuthCap -> Challenge -> Activate -> SetPriv.  Setup requests go one at a
// time; any failure or timeout aborts the open with the step named.
// Lifecycle and error notifications are emitted onto evchan, usually an
// EventDispatchEngine's EventChan; nil means nobody is listening.
func OpenSession(host string, opts *Options, tag *core.SessionID, log types.Logger, evchan chan<- []types.Event) (s *Session, e error) {
	if opts == nil {
		opts = NewOptions()
	}
	if e = opts.Err(); e != nil {
		return
	}
	addr, e := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, fmt.Sprintf("%d", opts.Port)))
	if e != nil {
		return nil, &TransportError{Op: "resolve", Err: e}
	}
	tr, e := NewTransport()
	if e != nil {
		return
	}
	emitter := core.NewEventEmitter(types.Event_ALL)
	if evchan != nil {
		emitter.Subscribe(tag.String(), evchan)
	}
	s = &Session{
		target:   addr,
		opts:     opts,
		tag:      tag,
		log:      log,
		emitter:  emitter,
		authType: IPMIAuthTypeNONE,
		password: []byte(opts.Password),
		tr:       tr,
		table:    newReqTable(),
		reqc:     make(chan *rawRequest),
		cancelc:  make(chan *rawRequest),
		closec:   make(chan string, 1),
		donec:    make(chan struct{}),
	}
	if e = s.setup(); e != nil {
		s.tr.Close()
		return nil, e
	}
	s.phase = PhaseActive
	s.inWin = replayWindow{}
	s.emitEvent(types.Event_SESSION, SessionEstablished{Target: s.Target(), Handle: s.tag.String()})
	s.logf(core.INFO, "session established with %s (auth type %d)", s.Target(), s.authType)
	go s.run()
	return
}

// Target is the host:port this session points at
func (s *Session) Target() string { return s.target.String() }

// Tag is the unique handle tag of this session
func (s *Session) Tag() *core.SessionID { return s.tag }

// Request submits one IPMI command and blocks for exactly one reply: a
// response, a timeout, a BMC completion-code error, or the error that ended
// the session.  Undecodable datagrams are reported as events and never
// complete a request.
func (s *Session) Request(netFn, cmd uint8, data []byte) (cc uint8, rdata []byte, e error) {
	return s.RequestContext(context.Background(), netFn, cmd, data)
}

// RequestContext is Request with caller-initiated cancellation.  A canceled
// request is evicted from the in-flight table; its response, if one arrives
// later, is discarded.
func (s *Session) RequestContext(ctx context.Context, netFn, cmd uint8, data []byte) (cc uint8, rdata []byte, e error) {
	r := &rawRequest{
		netFn: netFn,
		cmd:   cmd,
		data:  data,
		respc: make(chan *rawResponse, 1),
	}
	select {
	case s.reqc <- r:
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case <-s.donec:
		return 0, nil, ErrNoSession
	}
	select {
	case resp := <-r.respc:
		return resp.cc, resp.data, resp.err
	case <-ctx.Done():
		select {
		case s.cancelc <- r:
		case <-s.donec:
		}
		return 0, nil, ctx.Err()
	case <-s.donec:
		// teardown responds to drained requests; collect it if it won the race
		select {
		case resp := <-r.respc:
			return resp.cc, resp.data, resp.err
		default:
			return 0, nil, ErrNoSession
		}
	}
}

// Close shuts the session down; pending requests fail with {closed, user}
func (s *Session) Close() (e error) {
	// closec is buffered, so check for a finished session first
	select {
	case <-s.donec:
		return ErrNoSession
	default:
	}
	select {
	case s.closec <- "user":
	case <-s.donec:
		return ErrNoSession
	}
	<-s.donec
	return
}

// Active reports whether the run loop is still alive
func (s *Session) Active() bool {
	select {
	case <-s.donec:
		return false
	default:
		return true
	}
}

////////////////////////
// Unexported methods /
//////////////////////

func (s *Session) logf(lv types.LoggerLevel, f string, v ...interface{}) {
	if s.log != nil {
		s.log.Logf(lv, f, v...)
	}
}

// emitEvent publishes through the session's emitter; Emit is non-blocking
// for us, so the run loop never waits on listeners
func (s *Session) emitEvent(t types.EventType, data interface{}) {
	s.emitter.EmitOne(core.NewEvent(t, core.SessionURL(s.tag.String()), data))
}

// nextSseq hands out the session sequence for one transmitted packet.
// Before activation the sequence rides at zero.
func (s *Session) nextSseq() (q uint32) {
	if s.sid == 0 {
		return 0
	}
	q = s.sseqOut
	s.sseqOut++
	return
}

// buildPacket frames one LAN message bottom-up: request, message header,
// session header (with auth code), RMCP envelope
func (s *Session) buildPacket(netFn, lun, cmd, rqSeq uint8, data []byte) []byte {
	msg := &IPMIRequest{
		RqAddr:   s.opts.RqAddr,
		RqSeqLun: rqSeq<<2 | s.rqLun&0x03,
		Cmd:      cmd,
		Data:     data,
	}
	msgHdr := &IPMIMessageHeader{
		RsAddr:   IPMIRsAddrBMCResponder,
		NetFnLun: netFn<<2 | lun&0x03,
		Data:     packer.PackMust(msg),
	}
	sessHdr := &IPMISessionHeader{
		AuthType:              s.authType,
		SessionSequenceNumber: s.nextSseq(),
		SessionID:             s.sid,
		Payload:               packer.PackMust(msgHdr),
	}
	if s.authType != IPMIAuthTypeNONE {
		sessHdr.MsgAuthCode = authCode(s.authType, s.password, sessHdr.SessionID,
			sessHdr.SessionSequenceNumber, sessHdr.Payload)
	}
	rmcpHdr := &RMCPHeader{
		Version:        RMCPVersion1_0,
		SequenceNumber: RMCPSeqNoACK,
		Class:          RMCPClassIPMI,
		Data:           packer.PackMust(sessHdr),
	}
	return packer.PackMust(rmcpHdr)
}

// parseDatagram peels one datagram down to an IPMI response.  drop means
// the frame was fine but not for us (ACKs, requests, foreign classes).
func (s *Session) parseDatagram(b []byte) (resp *IPMIResponse, sess *IPMISessionHeader, drop bool, e error) {
	rmcpHdr := &RMCPHeader{}
	if e = packer.Unpack(b, rmcpHdr); e != nil {
		return
	}
	if rmcpHdr.Version != RMCPVersion1_0 {
		e = &DecodeError{Reason: ReasonBadVersion, Detail: fmt.Sprintf("rmcp version %#x", rmcpHdr.Version)}
		return
	}
	if rmcpHdr.IsACK() {
		drop = true
		return
	}
	if rmcpHdr.ClassOf() != RMCPClassIPMI {
		e = &DecodeError{Reason: ReasonUnexpectedClass, Detail: fmt.Sprintf("class %#x", rmcpHdr.Class)}
		return
	}
	sess = &IPMISessionHeader{}
	if e = packer.Unpack(rmcpHdr.Data, sess); e != nil {
		return
	}
	msgHdr := &IPMIMessageHeader{}
	if e = packer.Unpack(sess.Payload, msgHdr); e != nil {
		return
	}
	if msgHdr.NetFn()%2 != 1 {
		// a request, not a response; BMCs shouldn't originate these to us
		s.logf(core.DDEBUG, "dropping inbound IPMI request frame, netfn %#x", msgHdr.NetFn())
		drop = true
		return
	}
	resp = &IPMIResponse{}
	e = packer.Unpack(msgHdr.Data, resp)
	return
}

// fromTarget guards against spoofed replies from unrelated hosts
func (s *Session) fromTarget(from *net.UDPAddr) bool {
	return from != nil && from.Port == s.target.Port && from.IP.Equal(s.target.IP)
}

/*
 * Setup phase
 */

func (s *Session) setup() (e error) {
	var cc uint8
	var data []byte

	// what can the channel do for us?
	s.phase = PhaseAuthCap
	cc, data, e = s.setupChat(IPMIFnAppReq, IPMICmdGetChanAuthCap,
		[]byte{IPMIGetChanAuthCapGetChannel, s.opts.Privilege})
	if e = s.setupCheck(cc, e, 2, len(data)); e != nil {
		return
	}
	chosen, ok := chooseAuthType(data[1], len(s.password) > 0)
	if !ok {
		return &AuthError{Step: s.phase, Err: fmt.Errorf("channel offers no usable auth type (%#x)", data[1])}
	}

	// ask for a challenge
	s.phase = PhaseChallenge
	user := pad16([]byte(s.opts.User))
	cc, data, e = s.setupChat(IPMIFnAppReq, IPMICmdGetSessionChal,
		append([]byte{chosen}, user[:]...))
	if e = s.setupCheck(cc, e, 20, len(data)); e != nil {
		return
	}
	tempSid := packer.ByteOrder.Uint32(data[0:4])
	challenge := data[4:20]

	// activate with the challenge echoed under the chosen auth type
	s.phase = PhaseActivate
	s.authType = chosen
	s.sid = tempSid
	aData := []byte{chosen, s.opts.Privilege}
	aData = append(aData, challenge...)
	var seqBuf [4]byte
	packer.ByteOrder.PutUint32(seqBuf[:], s.opts.InitialOutboundSeq)
	aData = append(aData, seqBuf[:]...)
	cc, data, e = s.setupChat(IPMIFnAppReq, IPMICmdActivateSess, aData)
	if e = s.setupCheck(cc, e, 10, len(data)); e != nil {
		return
	}
	s.authType = data[0]
	s.sid = packer.ByteOrder.Uint32(data[1:5])
	s.sseqOut = packer.ByteOrder.Uint32(data[5:9])
	if data[9] < s.opts.Privilege {
		return &AuthError{Step: s.phase,
			Err: fmt.Errorf("privilege level %d exceeds session maximum %d", s.opts.Privilege, data[9])}
	}

	// raise our privilege to the configured level
	s.phase = PhaseSetPriv
	cc, data, e = s.setupChat(IPMIFnAppReq, IPMICmdSetSessionPriv, []byte{s.opts.Privilege})
	if e = s.setupCheck(cc, e, 1, len(data)); e != nil {
		return
	}
	if data[0] != s.opts.Privilege {
		return &AuthError{Step: s.phase, Err: fmt.Errorf("privilege set to %d, wanted %d", data[0], s.opts.Privilege)}
	}
	return
}

// setupCheck folds the per-step error handling: transport/timeout errors,
// completion codes, and undersized responses all become AuthErrors naming
// the step
func (s *Session) setupCheck(cc uint8, e error, want, got int) error {
	if e != nil {
		if _, ok := e.(*AuthError); ok {
			return e
		}
		return &AuthError{Step: s.phase, Err: e}
	}
	if cc != 0 {
		return &AuthError{Step: s.phase, Err: &CompletionError{Code: cc}}
	}
	if got < want {
		return &AuthError{Step: s.phase, Err: &DecodeError{Reason: ReasonBadLength,
			Detail: fmt.Sprintf("setup response %d bytes, want %d", got, want)}}
	}
	return nil
}

// setupChat sends one setup request and waits for its reply; strictly one
// in flight at a time
func (s *Session) setupChat(netFn, cmd uint8, data []byte) (cc uint8, rdata []byte, e error) {
	seq := s.setupSeq % IPMIRqSeqMod
	s.setupSeq++
	packet := s.buildPacket(netFn, 0, cmd, seq, data)
	if e = s.tr.Send(s.target, packet); e != nil {
		return
	}
	deadline := time.Now().Add(s.opts.Timeout)
	for {
		wait := time.Until(deadline)
		if wait <= 0 {
			e = &TimeoutError{Seq: seq}
			return
		}
		select {
		case <-time.After(wait):
			e = &TimeoutError{Seq: seq}
			return
		case dg, ok := <-s.tr.RecvChan():
			if !ok {
				e = s.tr.Err()
				if e == nil {
					e = &TransportError{Op: "recv", Err: fmt.Errorf("socket closed")}
				}
				return
			}
			if !s.fromTarget(dg.From) {
				s.logf(core.DDEBUG, "ignoring datagram from %s", dg.From)
				continue
			}
			resp, _, drop, de := s.parseDatagram(dg.Data)
			if de != nil {
				// a bad frame during setup aborts the open
				e = de
				return
			}
			if drop {
				continue
			}
			if resp.RqSeq() != seq || resp.Cmd != cmd {
				s.logf(core.DDEBUG, "setup: out-of-step response seq %d cmd %#x", resp.RqSeq(), resp.Cmd)
				continue
			}
			return resp.CompCode, resp.Data, nil
		}
	}
}

/*
 * Active phase
 */

func (s *Session) run() {
	for {
		var timerc <-chan time.Time
		if d, ok := s.table.nextDeadline(); ok {
			timerc = time.After(time.Until(d))
		}
		select {
		case dg, ok := <-s.tr.RecvChan():
			if !ok {
				s.teardown("transport_error")
				return
			}
			s.handleDatagram(dg)
		case r := <-s.reqc:
			if !s.handleRequest(r) {
				s.teardown("transport_error")
				return
			}
		case r := <-s.cancelc:
			if p, ok := s.table.take(r.seq); ok && p.respc == r.respc {
				s.logf(core.DDEBUG, "request canceled: seq %d cmd %#x", p.seq, p.cmd)
			}
		case <-timerc:
			s.handleTimeouts()
		case reason := <-s.closec:
			s.teardown(reason)
			return
		}
	}
}

// handleRequest allocates a sequence, frames, and transmits; false means
// the transport is gone and the session must die
func (s *Session) handleRequest(r *rawRequest) bool {
	seq, ok := s.table.alloc()
	if !ok {
		r.respc <- &rawResponse{err: fmt.Errorf("all %d requestor sequence numbers in flight", IPMIRqSeqMod)}
		return true
	}
	r.seq = seq
	packet := s.buildPacket(r.netFn, r.lun, r.cmd, seq, r.data)
	if e := s.tr.Send(s.target, packet); e != nil {
		r.respc <- &rawResponse{err: e}
		return false
	}
	s.table.insert(&pendingRequest{
		seq:      seq,
		netFn:    r.netFn,
		cmd:      r.cmd,
		deadline: time.Now().Add(s.opts.Timeout),
		respc:    r.respc,
	})
	return true
}

// handleDatagram is the decoding floor of section 4.2
func (s *Session) handleDatagram(dg Datagram) {
	if !s.fromTarget(dg.From) {
		s.logf(core.DDEBUG, "ignoring datagram from %s", dg.From)
		return
	}
	resp, sess, drop, e := s.parseDatagram(dg.Data)
	if e != nil {
		reason := ReasonBadLength
		detail := e.Error()
		if de, ok := e.(*DecodeError); ok {
			reason = de.Reason
			detail = de.Detail
		}
		s.emitEvent(types.Event_DECODE, DecodeErrorEvent{Handle: s.tag.String(), Reason: reason, Detail: detail})
		s.logf(core.DEBUG, "dropping undecodable datagram: %v", e)
		return
	}
	if drop {
		return
	}
	if !s.inWin.check(sess.SessionSequenceNumber) {
		s.logf(core.DDEBUG, "dropping replayed session seq %d", sess.SessionSequenceNumber)
		return
	}
	seq := resp.RqSeq()
	p, ok := s.table.take(seq)
	if !ok {
		s.emitEvent(types.Event_REQUEST, NoRequestor{Handle: s.tag.String(), Seq: seq, Data: resp.Data})
		s.logf(core.DEBUG, "response for unknown requestor seq %d", seq)
		return
	}
	rr := &rawResponse{cc: resp.CompCode, data: resp.Data}
	if resp.CompCode != IPMICmpNorm {
		rr.err = &CompletionError{Code: resp.CompCode}
	}
	p.respc <- rr
}

func (s *Session) handleTimeouts() {
	for _, p := range s.table.expire(time.Now()) {
		p.respc <- &rawResponse{err: &TimeoutError{Seq: p.seq}}
		s.emitEvent(types.Event_REQUEST, RequestTimeout{Handle: s.tag.String(), Seq: p.seq})
		s.logf(core.DEBUG, "request timed out: seq %d cmd %#x", p.seq, p.cmd)
	}
}

// teardown runs the Closing state: best-effort Close Session, drain
// pending, release the socket, announce
func (s *Session) teardown(reason string) {
	s.phase = PhaseClosing
	if reason != "transport_error" {
		var sidBuf [4]byte
		packer.ByteOrder.PutUint32(sidBuf[:], s.sid)
		if seq, ok := s.table.alloc(); ok {
			packet := s.buildPacket(IPMIFnAppReq, 0, IPMICmdCloseSess, seq, sidBuf[:])
			s.tr.Send(s.target, packet) // we don't even check to see if this fails
		}
	}
	for _, p := range s.table.drain() {
		p.respc <- &rawResponse{err: &ClosedError{Reason: reason}}
	}
	s.tr.Close()
	s.phase = PhaseClosed
	s.emitEvent(types.Event_SESSION, SessionClosed{Target: s.Target(), Handle: s.tag.String(), Reason: reason})
	s.logf(core.INFO, "session with %s closed: %s", s.Target(), reason)
	close(s.donec)
}
