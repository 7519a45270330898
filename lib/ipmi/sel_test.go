/* sel_test.go: SEL iteration and decoding
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package ipmi

import (
	"bytes"
	"testing"
)

// selServer fakes a BMC SEL with a fixed record chain
type selServer struct {
	records  [][]byte // raw 16-byte records, in chain order
	reserved bool
	cleared  bool
	reqs     []uint8 // commands seen
}

func (s *selServer) requester() *scriptRequester {
	return &scriptRequester{handler: func(netFn, cmd uint8, data []byte) (uint8, []byte) {
		s.reqs = append(s.reqs, cmd)
		switch cmd {
		case IPMICmdGetSELInfo:
			resp := make([]byte, 14)
			resp[0] = 0x51
			packer.ByteOrder.PutUint16(resp[1:3], uint16(len(s.records)))
			return 0, resp
		case IPMICmdReserveSEL:
			s.reserved = true
			return 0, []byte{0x34, 0x12}
		case IPMICmdGetSELEntry:
			if !s.reserved {
				return IPMICmpReservationCanceled, nil
			}
			id := packer.ByteOrder.Uint16(data[2:4])
			idx := 0
			if id != IPMISELFirst {
				idx = int(id)
			}
			if idx >= len(s.records) {
				return IPMICmpParamOutOfRange, nil
			}
			next := IPMISELNextLast
			if idx+1 < len(s.records) {
				next = uint16(idx + 1)
			}
			resp := make([]byte, 2)
			packer.ByteOrder.PutUint16(resp, next)
			return 0, append(resp, s.records[idx]...)
		case IPMICmdClearSEL:
			if !bytes.Equal(data[0:2], []byte{0x34, 0x12}) ||
				!bytes.Equal(data[2:5], []byte{'C', 'L', 'R'}) || data[5] != 0xaa {
				return IPMICmpInvalidDataField, nil
			}
			s.cleared = true
			return 0, []byte{0x01}
		}
		return IPMICmpInvalidCommand, nil
	}}
}

func systemEventRecord(id uint16, ts uint32, sensor uint8) []byte {
	b := make([]byte, 16)
	packer.ByteOrder.PutUint16(b[0:2], id)
	b[2] = SELTypeSystemEvent
	packer.ByteOrder.PutUint32(b[3:7], ts)
	packer.ByteOrder.PutUint16(b[7:9], 0x0020)
	b[9] = 0x04 // EvMRev for IPMI v1.5
	b[10] = 0x01
	b[11] = sensor
	b[12] = 0x01 // threshold, assertion
	b[13], b[14], b[15] = 0x57, 0x00, 0x00
	return b
}

func TestReadSEL(t *testing.T) {
	srv := &selServer{records: [][]byte{
		systemEventRecord(1, 1000, 0x30),
		systemEventRecord(2, 2000, 0x31),
	}}
	entries, e := ReadSEL(srv.requester(), false, nil)
	if e != nil {
		t.Fatalf("%v", e)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].RecordID != 1 || entries[0].Timestamp != 1000 || entries[0].SensorNumber != 0x30 {
		t.Errorf("bad first entry: %+v", entries[0])
	}
	if entries[1].EventDir != 0 || entries[1].EventType != 0x01 {
		t.Errorf("bad event dir/type: %+v", entries[1])
	}
	if srv.cleared {
		t.Errorf("SEL cleared without being asked")
	}
}

func TestReadSEL_Empty(t *testing.T) {
	srv := &selServer{}
	entries, e := ReadSEL(srv.requester(), false, nil)
	if e != nil || len(entries) != 0 {
		t.Errorf("empty log: got (%v, %v)", entries, e)
	}
	for _, cmd := range srv.reqs {
		if cmd == IPMICmdReserveSEL {
			t.Errorf("reserved an empty SEL")
		}
	}
}

func TestReadSEL_Clear(t *testing.T) {
	srv := &selServer{records: [][]byte{systemEventRecord(1, 1, 0x01)}}
	if _, e := ReadSEL(srv.requester(), true, nil); e != nil {
		t.Fatalf("%v", e)
	}
	if !srv.cleared {
		t.Errorf("clear requested but not performed")
	}
}

// malformed entries are skipped and reported, never fatal
func TestReadSEL_SkipsMalformed(t *testing.T) {
	bad := make([]byte, 16)
	packer.ByteOrder.PutUint16(bad[0:2], 2)
	bad[2] = 0x55 // reserved record type
	srv := &selServer{records: [][]byte{
		systemEventRecord(1, 1000, 0x30),
		bad,
		systemEventRecord(3, 3000, 0x32),
	}}
	var reported []uint16
	entries, e := ReadSEL(srv.requester(), false, func(id uint16, err error) {
		reported = append(reported, id)
	})
	if e != nil {
		t.Fatalf("%v", e)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
	if len(reported) != 1 {
		t.Errorf("reported %v, want one skip", reported)
	}
}

func TestDecodeSELEntry_OEM(t *testing.T) {
	b := make([]byte, 16)
	packer.ByteOrder.PutUint16(b[0:2], 9)
	b[2] = 0xc5 // timestamped OEM
	packer.ByteOrder.PutUint32(b[3:7], 777)
	b[7], b[8], b[9] = 0x22, 0x11, 0x00
	s, e := decodeSELEntry(b)
	if e != nil {
		t.Fatalf("%v", e)
	}
	if s.ManufacturerID != 0x1122 || s.Timestamp != 777 || len(s.OEMData) != 6 {
		t.Errorf("bad decode: %+v", s)
	}

	b[2] = 0xe0 // non-timestamped OEM
	s, e = decodeSELEntry(b)
	if e != nil {
		t.Fatalf("%v", e)
	}
	if len(s.OEMData) != 13 {
		t.Errorf("oem data %d bytes, want 13", len(s.OEMData))
	}
}
