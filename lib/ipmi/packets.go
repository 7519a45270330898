/* packets.go: wire structures for RMCP, ASF, and the IPMI v1.5 session layer
 *
 * Author: J. Lowell Wofford <lowell@lanl.gov>
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package ipmi

// Multi-byte integers at the session layer are little-endian (section 13.6);
// the ASF IANA enterprise number travels in network order, marked `be`.

type RMCPHeader struct {
	Version        uint8  `pack:""`
	reserved       uint8  `pack:"zeros"`
	SequenceNumber uint8  `pack:""`
	Class          uint8  `pack:""`
	Data           []byte `pack:"fill=0"`
}

// IsACK is true for RMCP ACK frames (class high bit set, empty payload)
func (r *RMCPHeader) IsACK() bool {
	return r.Class&RMCPClassACK != 0
}

// ClassOf strips the ACK bit
func (r *RMCPHeader) ClassOf() uint8 {
	return r.Class &^ RMCPClassACK
}

type ASFMessageHeader struct {
	IANA     uint32 `pack:"be"`
	Type     uint8  `pack:""`
	Tag      uint8  `pack:""`
	reserved uint8  `pack:"zeros"`
	DataLen  uint8  `pack:"len=Data"`
	Data     []byte `pack:"fill=0"`
}

type ASFMessagePong struct {
	IANA         uint32  `pack:"be"`
	OEM          uint32  `pack:"be"`
	Entities     uint8   `pack:""`
	Interactions uint8   `pack:""`
	reserved     [6]byte `pack:"zeros"`
}

// SupportsIPMI is true iff the pong advertises IPMI in its entities byte
func (p *ASFMessagePong) SupportsIPMI() bool {
	return p.Entities&ASFEntitiesIPMISupport != 0
}

type IPMISessionHeader struct {
	AuthType              uint8  `pack:""`
	SessionSequenceNumber uint32 `pack:""`
	SessionID             uint32 `pack:""`
	MsgAuthCode           []byte `pack:"authcodelen=AuthType"` // 16 bytes unless AuthType is none
	PayloadLength         uint8  `pack:"len=Payload"`
	Payload               []byte `pack:"fill=0"`
}

type IPMIMessageHeader struct {
	RsAddr   uint8  `pack:""`
	NetFnLun uint8  `pack:""`
	Checksum uint8  `pack:"cksum2"`
	Data     []byte `pack:"fill=0"`
}

// NetFn strips the LUN bits
func (h *IPMIMessageHeader) NetFn() uint8 { return h.NetFnLun >> 2 }

// LUN strips the NetFn bits
func (h *IPMIMessageHeader) LUN() uint8 { return h.NetFnLun & 0x03 }

type IPMIRequest struct {
	RqAddr   uint8  `pack:""`
	RqSeqLun uint8  `pack:""`
	Cmd      uint8  `pack:""`
	Data     []byte `pack:"fill=-1"`
	Checksum uint8  `pack:"cksum2"`
}

type IPMIResponse struct {
	RqAddr   uint8  `pack:""`
	RqSeqLun uint8  `pack:""`
	Cmd      uint8  `pack:""`
	CompCode uint8  `pack:""`
	Data     []byte `pack:"fill=-1"`
	Checksum uint8  `pack:"cksum2"`
}

// RqSeq strips the LUN bits
func (r *IPMIResponse) RqSeq() uint8 { return r.RqSeqLun >> 2 }
