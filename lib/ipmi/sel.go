/* sel.go: System Event Log reading
 *
 * Author: J. Lowell Wofford <lowell@lanl.gov>
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package ipmi

import (
	"errors"
	"time"
)

var errUnknownSELRecord = errors.New("unknown sel record type")

// SEL record type ranges
const (
	SELTypeSystemEvent uint8 = 0x02
	// 0xc0..0xdf timestamped OEM, 0xe0..0xff non-timestamped OEM
)

// A SELEntry is one decoded 16-byte log record (section 31.6)
type SELEntry struct {
	RecordID   uint16 `json:"record_id"`
	RecordType uint8  `json:"record_type"`

	// system event records (type 0x02)
	Timestamp      uint32 `json:"timestamp,omitempty"`
	GeneratorID    uint16 `json:"generator_id,omitempty"`
	EvMRev         uint8  `json:"evm_rev,omitempty"`
	SensorType     uint8  `json:"sensor_type,omitempty"`
	SensorNumber   uint8  `json:"sensor_number,omitempty"`
	EventDir       uint8  `json:"event_dir,omitempty"`  // 0 assertion, 1 deassertion
	EventType      uint8  `json:"event_type,omitempty"` // 7 bits of byte 13
	EventData      [3]byte `json:"event_data,omitempty"`

	// OEM records
	ManufacturerID uint32 `json:"manufacturer_id,omitempty"` // timestamped OEM only
	OEMData        []byte `json:"oem_data,omitempty"`
}

// Time converts the 32-bit SEL timestamp
func (s *SELEntry) Time() time.Time {
	return time.Unix(int64(s.Timestamp), 0).UTC()
}

// selReporter is how the reader surfaces skipped entries; wired to the
// event bus by the client
type selReporter func(recordID uint16, err error)

// ReadSEL iterates the System Event Log: reserve, walk the record chain
// from the first entry, optionally clear.  Entries that fail to decode are
// skipped and reported; they never fail the read.
func ReadSEL(r Requester, clear bool, report selReporter) (entries []SELEntry, e error) {
	// an empty log saves us the reservation dance
	_, data, e := r.Request(IPMIFnStorageReq, IPMICmdGetSELInfo, nil)
	if e != nil {
		return
	}
	if len(data) < 3 {
		return nil, &DecodeError{Reason: ReasonBadLength, Detail: "sel info response"}
	}
	if packer.ByteOrder.Uint16(data[1:3]) == 0 {
		return
	}

	_, data, e = r.Request(IPMIFnStorageReq, IPMICmdReserveSEL, nil)
	if e != nil {
		return
	}
	if len(data) < 2 {
		return nil, &DecodeError{Reason: ReasonBadLength, Detail: "sel reservation response"}
	}
	reservation := data[0:2]

	next := IPMISELFirst
	for next != IPMISELNextLast {
		req := make([]byte, 6)
		copy(req[0:2], reservation)
		packer.ByteOrder.PutUint16(req[2:4], next)
		req[4] = 0x00 // offset into record
		req[5] = 0xff // whole record
		var rdata []byte
		_, rdata, e = r.Request(IPMIFnStorageReq, IPMICmdGetSELEntry, req)
		if e != nil {
			return
		}
		if len(rdata) < 2 {
			return entries, &DecodeError{Reason: ReasonBadLength, Detail: "sel entry response"}
		}
		cur := next
		next = packer.ByteOrder.Uint16(rdata[0:2])
		entry, err := decodeSELEntry(rdata[2:])
		if err != nil {
			if report != nil {
				report(cur, err)
			}
			continue
		}
		entries = append(entries, *entry)
	}

	if clear {
		req := make([]byte, 6)
		copy(req[0:2], reservation)
		req[2], req[3], req[4] = 'C', 'L', 'R'
		req[5] = 0xaa // initiate erase
		if _, _, e = r.Request(IPMIFnStorageReq, IPMICmdClearSEL, req); e != nil {
			return
		}
	}
	return
}

// decodeSELEntry decodes one 16-byte record
func decodeSELEntry(b []byte) (s *SELEntry, e error) {
	if len(b) < 16 {
		return nil, &DecodeError{Reason: ReasonBadLength, Detail: "sel record"}
	}
	le := packer.ByteOrder
	s = &SELEntry{
		RecordID:   le.Uint16(b[0:2]),
		RecordType: b[2],
	}
	switch {
	case s.RecordType == SELTypeSystemEvent:
		s.Timestamp = le.Uint32(b[3:7])
		s.GeneratorID = le.Uint16(b[7:9])
		s.EvMRev = b[9]
		s.SensorType = b[10]
		s.SensorNumber = b[11]
		s.EventDir = b[12] >> 7
		s.EventType = b[12] & 0x7f
		copy(s.EventData[:], b[13:16])
	case s.RecordType >= 0xc0 && s.RecordType <= 0xdf:
		s.Timestamp = le.Uint32(b[3:7])
		s.ManufacturerID = uint32(b[7]) | uint32(b[8])<<8 | uint32(b[9])<<16
		s.OEMData = append([]byte{}, b[10:16]...)
	case s.RecordType >= 0xe0:
		s.OEMData = append([]byte{}, b[3:16]...)
	default:
		return nil, errUnknownSELRecord
	}
	return
}
