/* packer_test.go: pack/unpack and checksum behavior
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package ipmi

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestPacker_Pack(t *testing.T) {
	data := []byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80, 0x90}
	t.Run("RMCPHeader", func(t *testing.T) {
		r := RMCPHeader{
			Version:        0x06,
			SequenceNumber: 0xff,
			Class:          0x07,
			Data:           data,
		}
		b, e := packer.Pack(&r)
		if e != nil {
			t.Fatalf("%v", e)
		}
		want := append([]byte{0x06, 0x00, 0xff, 0x07}, data...)
		if !bytes.Equal(b, want) {
			t.Errorf("got:\n%vwant:\n%v", hex.Dump(b), hex.Dump(want))
		}
	})
	t.Run("ASFMessageHeader(len)", func(t *testing.T) {
		r := ASFMessageHeader{
			IANA: ASFIANA,
			Type: ASFTypePing,
			Tag:  0x02,
			Data: data,
		}
		b, e := packer.Pack(&r)
		if e != nil {
			t.Fatalf("%v", e)
		}
		// IANA is network order on the wire
		if !bytes.Equal(b[0:4], []byte{0x00, 0x00, 0x11, 0xbe}) {
			t.Errorf("IANA encoded %x", b[0:4])
		}
		if b[7] != uint8(len(data)) {
			t.Errorf("DataLen = %d, want %d", b[7], len(data))
		}
	})
	t.Run("IPMIRequest(cksum2)", func(t *testing.T) {
		r := IPMIRequest{
			RqAddr:   0x81,
			RqSeqLun: 0x02 << 2,
			Cmd:      0x38,
			Data:     data,
		}
		b, e := packer.Pack(&r)
		if e != nil {
			t.Fatalf("%v", e)
		}
		// the running sum of a checksummed message must vanish
		if s := sum8(b); s != 0 {
			t.Errorf("byte sum = %#x, want 0\n%v", s, hex.Dump(b))
		}
		if r.Checksum != b[len(b)-1] {
			t.Errorf("checksum field not filled in")
		}
	})
	t.Run("IPMISessionHeader(authcode)", func(t *testing.T) {
		r := IPMISessionHeader{
			AuthType:              IPMIAuthTypeMD5,
			SessionSequenceNumber: 0x11223344,
			SessionID:             0x55667788,
			MsgAuthCode:           bytes.Repeat([]byte{0xaa}, 16),
			Payload:               data,
		}
		b, e := packer.Pack(&r)
		if e != nil {
			t.Fatalf("%v", e)
		}
		if len(b) != 1+4+4+16+1+len(data) {
			t.Fatalf("packed %d bytes", len(b))
		}
		// session integers are little-endian
		if !bytes.Equal(b[1:5], []byte{0x44, 0x33, 0x22, 0x11}) {
			t.Errorf("session seq encoded %x", b[1:5])
		}
		if b[25] != uint8(len(data)) {
			t.Errorf("PayloadLength = %d, want %d", b[25], len(data))
		}
	})
}

func TestPacker_Unpack(t *testing.T) {
	t.Run("RMCPHeader", func(t *testing.T) {
		b := []byte{0x06, 0x00, 0xff, 0x07, 0x10, 0x20, 0x30}
		r := RMCPHeader{}
		if e := packer.Unpack(b, &r); e != nil {
			t.Fatalf("%v", e)
		}
		if r.Version != 0x06 || r.Class != 0x07 || len(r.Data) != 3 {
			t.Errorf("bad decode: %+v", r)
		}
	})
	t.Run("short buffer", func(t *testing.T) {
		r := RMCPHeader{}
		e := packer.Unpack([]byte{0x06, 0x00}, &r)
		if !IsDecode(e, ReasonBadLength) {
			t.Errorf("want bad_length, got %v", e)
		}
	})
	t.Run("IPMIResponse(cksum2)", func(t *testing.T) {
		resp := &IPMIResponse{
			RqAddr:   0x81,
			RqSeqLun: 0x04,
			Cmd:      0x38,
			CompCode: 0x00,
			Data:     []byte{0x01, 0x02},
		}
		b := packer.PackMust(resp)
		got := &IPMIResponse{}
		if e := packer.Unpack(b, got); e != nil {
			t.Fatalf("%v", e)
		}
		if got.Cmd != 0x38 || !bytes.Equal(got.Data, resp.Data) {
			t.Errorf("bad decode: %+v", got)
		}
	})
	t.Run("IPMIResponse(bad cksum)", func(t *testing.T) {
		resp := &IPMIResponse{RqAddr: 0x81, Cmd: 0x38, Data: []byte{0x01}}
		b := packer.PackMust(resp)
		b[len(b)-1] ^= 0xff
		e := packer.Unpack(b, &IPMIResponse{})
		if !IsDecode(e, ReasonBadChecksum) {
			t.Errorf("want bad_checksum, got %v", e)
		}
	})
	t.Run("session header trailing pad", func(t *testing.T) {
		h := &IPMISessionHeader{
			AuthType: IPMIAuthTypeNONE,
			Payload:  []byte{0x01, 0x02, 0x03},
		}
		b := packer.PackMust(h)
		b = append(b, 0x00) // legacy pad byte after the payload
		got := &IPMISessionHeader{}
		if e := packer.Unpack(b, got); e != nil {
			t.Fatalf("%v", e)
		}
		if len(got.Payload) != 3 {
			t.Errorf("payload not bounded by PayloadLength: %d bytes", len(got.Payload))
		}
	})
	t.Run("auth code width follows auth type", func(t *testing.T) {
		h := &IPMISessionHeader{
			AuthType:    IPMIAuthTypePasswd,
			MsgAuthCode: bytes.Repeat([]byte{0x55}, 16),
			Payload:     []byte{0xde, 0xad},
		}
		b := packer.PackMust(h)
		got := &IPMISessionHeader{}
		if e := packer.Unpack(b, got); e != nil {
			t.Fatalf("%v", e)
		}
		if len(got.MsgAuthCode) != 16 || !bytes.Equal(got.Payload, h.Payload) {
			t.Errorf("bad decode: %+v", got)
		}
	})
}

// encode(decode(F)) must reproduce canonical frames byte-for-byte
func TestPacker_RoundTrip(t *testing.T) {
	frames := map[string][]byte{
		"rmcp+asf ping": packer.PackMust(&RMCPHeader{
			Version:        RMCPVersion1_0,
			SequenceNumber: RMCPSeqNoACK,
			Class:          RMCPClassASF,
			Data: packer.PackMust(&ASFMessageHeader{
				IANA: ASFIANA,
				Type: ASFTypePing,
				Tag:  0x01,
			}),
		}),
		"ipmi lan message": packer.PackMust(&RMCPHeader{
			Version:        RMCPVersion1_0,
			SequenceNumber: RMCPSeqNoACK,
			Class:          RMCPClassIPMI,
			Data: packer.PackMust(&IPMISessionHeader{
				AuthType: IPMIAuthTypeNONE,
				Payload: packer.PackMust(&IPMIMessageHeader{
					RsAddr:   IPMIRsAddrBMCResponder,
					NetFnLun: IPMIFnAppReq << 2,
					Data: packer.PackMust(&IPMIRequest{
						RqAddr: 0x81,
						Cmd:    IPMICmdGetChanAuthCap,
						Data:   []byte{0x0e, 0x04},
					}),
				}),
			}),
		}),
	}
	for name, f := range frames {
		t.Run(name, func(t *testing.T) {
			r := &RMCPHeader{}
			if e := packer.Unpack(f, r); e != nil {
				t.Fatalf("%v", e)
			}
			b, e := packer.Pack(r)
			if e != nil {
				t.Fatalf("%v", e)
			}
			if !bytes.Equal(b, f) {
				t.Errorf("round trip drifted:\n%v!=\n%v", hex.Dump(b), hex.Dump(f))
			}
		})
	}
}
