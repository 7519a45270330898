/* ping.go: RMCP/ASF presence probe
 *
 * Author: J. Lowell Wofford <lowell@lanl.gov>
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package ipmi

import (
	"fmt"
	"net"
	"time"
)

// Ping sends one ASF presence ping and waits for the pong.  RMCP ACK
// frames are ignored while waiting.  Returns true iff the pong arrives in
// time and advertises IPMI among its supported entities; every error path
// just reports false.
func Ping(host string, timeout time.Duration) bool {
	r, _ := ping(host, timeout)
	return r
}

// ping is Ping with the reason for a false result; Ping discards the reason
func ping(host string, timeout time.Duration) (r bool, e error) {
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, fmt.Sprintf("%d", RMCPPortPrimary))
	}
	addr, e := net.ResolveUDPAddr("udp4", host)
	if e != nil {
		return false, &TransportError{Op: "resolve", Err: e}
	}
	tr, e := NewTransport()
	if e != nil {
		return
	}
	defer tr.Close()

	pingASF := &ASFMessageHeader{
		IANA: ASFIANA,
		Type: ASFTypePing,
		Tag:  0x00,
	}
	pingRMCP := &RMCPHeader{
		Version:        RMCPVersion1_0,
		SequenceNumber: RMCPSeqNoACK,
		Class:          RMCPClassASF,
		Data:           packer.PackMust(pingASF),
	}
	if e = tr.Send(addr, packer.PackMust(pingRMCP)); e != nil {
		return
	}

	deadline := time.Now().Add(timeout)
	for {
		wait := time.Until(deadline)
		if wait <= 0 {
			return false, &TimeoutError{}
		}
		select {
		case <-time.After(wait):
			return false, &TimeoutError{}
		case dg, ok := <-tr.RecvChan():
			if !ok {
				return false, tr.Err()
			}
			if dg.From == nil || !dg.From.IP.Equal(addr.IP) {
				continue
			}
			rmcpHdr := &RMCPHeader{}
			if err := packer.Unpack(dg.Data, rmcpHdr); err != nil {
				continue
			}
			if rmcpHdr.Version != RMCPVersion1_0 {
				continue
			}
			if rmcpHdr.IsACK() {
				// keep waiting for the pong proper
				continue
			}
			if rmcpHdr.ClassOf() != RMCPClassASF {
				continue
			}
			asfHdr := &ASFMessageHeader{}
			if err := packer.Unpack(rmcpHdr.Data, asfHdr); err != nil {
				continue
			}
			if asfHdr.Type != ASFTypePong {
				continue
			}
			pong := &ASFMessagePong{}
			if err := packer.Unpack(asfHdr.Data, pong); err != nil {
				continue
			}
			// acknowledge receipt unless the sender waived it
			if rmcpHdr.SequenceNumber != RMCPSeqNoACK {
				ack := &RMCPHeader{
					Version:        RMCPVersion1_0,
					SequenceNumber: rmcpHdr.SequenceNumber,
					Class:          rmcpHdr.Class | RMCPClassACK,
				}
				tr.Send(addr, packer.PackMust(ack))
			}
			return pong.SupportsIPMI(), nil
		}
	}
}
