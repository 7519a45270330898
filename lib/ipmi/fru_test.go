/* fru_test.go: FRU reading and decoding
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package ipmi

import (
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

// scriptRequester fakes the session side of the Requester contract; like a
// real session it folds non-zero completion codes into errors
type scriptRequester struct {
	handler func(netFn, cmd uint8, data []byte) (cc uint8, rdata []byte)
}

func (s *scriptRequester) Request(netFn, cmd uint8, data []byte) (uint8, []byte, error) {
	cc, rdata := s.handler(netFn, cmd, data)
	if cc != IPMICmpNorm {
		return cc, rdata, &CompletionError{Code: cc}
	}
	return cc, rdata, nil
}

// fruServer serves a FRU buffer the way a BMC would: area info, then
// chunked reads.  maxReturn trims responses below the asked-for count.
func fruServer(buf []byte, unit int, maxReturn int) *scriptRequester {
	return &scriptRequester{handler: func(netFn, cmd uint8, data []byte) (uint8, []byte) {
		switch cmd {
		case IPMICmdGetFRUAreaInfo:
			resp := make([]byte, 3)
			packer.ByteOrder.PutUint16(resp[0:2], uint16(len(buf)/unit))
			if unit == 2 {
				resp[2] = 0x01
			}
			return 0, resp
		case IPMICmdReadFRUData:
			off := int(packer.ByteOrder.Uint16(data[1:3])) * unit
			n := int(data[3]) * unit
			if maxReturn > 0 && n > maxReturn {
				n = maxReturn
			}
			if off+n > len(buf) {
				n = len(buf) - off
			}
			chunk := buf[off : off+n]
			return 0, append([]byte{uint8(len(chunk))}, chunk...)
		}
		return IPMICmpInvalidCommand, nil
	}}
}

// buildBoardArea assembles a checksummed board info area; size is padded
// to a multiple of 8
func buildBoardArea(lang uint8, mfgMinutes uint32, fields ...[]byte) []byte {
	a := []byte{0x01, 0x00, lang,
		uint8(mfgMinutes), uint8(mfgMinutes >> 8), uint8(mfgMinutes >> 16)}
	for _, f := range fields {
		a = append(a, 0xc0|uint8(len(f)))
		a = append(a, f...)
	}
	a = append(a, 0xc1)
	for len(a)%8 != 7 {
		a = append(a, 0x00)
	}
	a[1] = uint8((len(a) + 1) / 8)
	a = append(a, packer.Cksum2(a))
	return a
}

// S5: common header + one board area with two English fields
func TestDecodeFRU_BoardArea(t *testing.T) {
	hdr := []byte{0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}
	hdr[7] = packer.Cksum2(hdr[:7])
	board := buildBoardArea(25, 1, []byte("ACME"), []byte("X42"))
	buf := append(hdr, board...)
	if len(buf) != 32 {
		t.Fatalf("fixture is %d bytes, want 32", len(buf))
	}

	info, e := DecodeFRU(buf)
	if e != nil {
		t.Fatalf("%v", e)
	}
	if info.Board == nil {
		t.Fatalf("no board area decoded:\n%s", spew.Sdump(info))
	}
	if info.Board.Manufacturer != "ACME" {
		t.Errorf("manufacturer = %q, want ACME", info.Board.Manufacturer)
	}
	if info.Board.ProductName != "X42" {
		t.Errorf("product name = %q, want X42", info.Board.ProductName)
	}
	if info.Board.MfgDateMinutes != 1 {
		t.Errorf("manufacturing date = %d, want 1", info.Board.MfgDateMinutes)
	}
}

// a corrupt chassis area must not take the board area down with it
func TestDecodeFRU_Leniency(t *testing.T) {
	chassis := []byte{0x01, 0x01, 0x17, 0xc1, 0x00, 0x00, 0x00, 0x00}
	chassis[7] = packer.Cksum2(chassis[:7])
	board := buildBoardArea(0, 42, []byte("ACME"))

	hdr := []byte{0x01, 0x00, 0x01, 0x02, 0x00, 0x00, 0x00, 0x00}
	hdr[7] = packer.Cksum2(hdr[:7])
	buf := append(append(hdr, chassis...), board...)

	info, e := DecodeFRU(buf)
	if e != nil {
		t.Fatalf("%v", e)
	}
	if info.Chassis == nil || info.Board == nil {
		t.Fatalf("intact areas should both decode:\n%s", spew.Sdump(info))
	}

	// now corrupt the chassis checksum
	buf[8+7] ^= 0xff
	info, e = DecodeFRU(buf)
	if e != nil {
		t.Fatalf("%v", e)
	}
	if info.Chassis != nil {
		t.Errorf("corrupt chassis area should be dropped")
	}
	if info.Board == nil || info.Board.Manufacturer != "ACME" {
		t.Errorf("board area should survive a bad chassis area:\n%s", spew.Sdump(info))
	}
}

func TestDecodeFRU_BadHeader(t *testing.T) {
	hdr := []byte{0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x99}
	if _, e := DecodeFRU(hdr); e != ErrIncorrectHeaderChecksum {
		t.Errorf("want incorrect_header_checksum, got %v", e)
	}
	if _, e := DecodeFRU([]byte{0x02}); e != ErrUnsupportedFRUData {
		t.Errorf("want unsupported_fru_data, got %v", e)
	}
}

// a field list that opens with the sentinel is empty, cursor just past it
func TestFieldReader_Sentinel(t *testing.T) {
	f := &fieldReader{buf: []byte{0xc1, 0xde, 0xad}, pos: 0}
	if _, ok := f.next(); ok {
		t.Errorf("sentinel should end the list")
	}
	if f.pos != 1 {
		t.Errorf("cursor at %d, want 1", f.pos)
	}
	if r := f.rest(); len(r) != 0 {
		t.Errorf("rest after sentinel: %v", r)
	}
}

func TestFieldEncodings(t *testing.T) {
	t.Run("bcd plus", func(t *testing.T) {
		if got := decodeBCDPlus([]byte{0x12, 0xb3}); got != "12-3" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("6-bit ascii", func(t *testing.T) {
		// "IPMI": I=0x29 P=0x30 M=0x2d I=0x29, packed 6 bits at a time LSB-first
		packed := []byte{0x29, 0xdc, 0xa6}
		if got := decode6BitASCII(packed); got != "IPMI" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("utf16le", func(t *testing.T) {
		if got := decodeUTF16LE([]byte{0x41, 0x00, 0x42, 0x00}); got != "AB" {
			t.Errorf("got %q", got)
		}
	})
}

// S6: compatibility bitmap expansion
func TestDecodeCompatibility(t *testing.T) {
	payload := []byte{0x22, 0x11, 0x00, 0x01, 42, 10, 0x3f, 0x18}
	d, e := decodeCompatibility(payload)
	if e != nil {
		t.Fatalf("%v", e)
	}
	r := d.(*CompatibilityRecord)
	if r.ManufacturerID != 0x1122 || r.EntityID != 0x01 || r.CompatibilityBase != 42 {
		t.Errorf("bad record fields:\n%s", spew.Sdump(r))
	}
	want := []int{10, 11, 12, 13, 14, 15, 16, 22, 23}
	if !reflect.DeepEqual(r.CompatibleCodes, want) {
		t.Errorf("codes = %v, want %v", r.CompatibleCodes, want)
	}
}

func buildMultiRecord(rtype uint8, eol bool, payload []byte) []byte {
	hdr := make([]byte, 5)
	hdr[0] = rtype
	hdr[1] = 0x02 // record format version
	if eol {
		hdr[1] |= 0x80
	}
	hdr[2] = uint8(len(payload))
	hdr[3] = packer.Cksum2(payload)
	hdr[4] = packer.Cksum2(hdr[:4])
	return append(hdr, payload...)
}

// the end-of-list bit halts parsing even with a plausible record behind it
func TestMultiRecord_Termination(t *testing.T) {
	first := buildMultiRecord(FRURecordManagementAccess, true, append([]byte{0x02}, []byte("node1")...))
	second := buildMultiRecord(FRURecordManagementAccess, false, append([]byte{0x02}, []byte("node2")...))
	records := decodeMultiRecords(append(first, second...))
	if len(records) != 1 {
		t.Fatalf("decoded %d records, want 1:\n%s", len(records), spew.Sdump(records))
	}
	ma := records[0].Decoded.(*ManagementAccessRecord)
	if ma.Data != "node1" {
		t.Errorf("data = %q", ma.Data)
	}
}

// a bad header abandons the chain; a bad payload only skips the record
func TestMultiRecord_Checksums(t *testing.T) {
	good := buildMultiRecord(FRURecordManagementAccess, false, append([]byte{0x02}, []byte("keep")...))
	badPayload := buildMultiRecord(FRURecordManagementAccess, false, append([]byte{0x02}, []byte("skip")...))
	badPayload[3] ^= 0xff // break the payload checksum, then re-fix the header
	badPayload[4] = packer.Cksum2(badPayload[:4])
	tail := buildMultiRecord(FRURecordManagementAccess, true, append([]byte{0x02}, []byte("tail")...))

	records := decodeMultiRecords(append(append(badPayload, good...), tail...))
	if len(records) != 2 {
		t.Fatalf("decoded %d records, want 2:\n%s", len(records), spew.Sdump(records))
	}

	// now break a header; everything after it is unreachable
	broken := buildMultiRecord(FRURecordManagementAccess, false, append([]byte{0x02}, []byte("x")...))
	broken[4] ^= 0xff
	records = decodeMultiRecords(append(broken, good...))
	if len(records) != 0 {
		t.Errorf("records past a bad header should be abandoned, got %d", len(records))
	}
}

func TestDecodePowerRecords(t *testing.T) {
	t.Run("dc output", func(t *testing.T) {
		p := make([]byte, 13)
		p[0] = 0x81 // standby, output 1
		packer.ByteOrder.PutUint16(p[1:3], uint16(1200))  // 12.00 V
		packer.ByteOrder.PutUint16(p[9:11], uint16(500))  // 0.5 A
		packer.ByteOrder.PutUint16(p[11:13], uint16(1500))
		d, e := decodeDCOutput(p)
		if e != nil {
			t.Fatalf("%v", e)
		}
		r := d.(*DCOutputRecord)
		if !r.Standby || r.OutputNumber != 1 || r.NominalVoltage != 12.0 ||
			r.MinCurrentA != 0.5 || r.MaxCurrentA != 1.5 {
			t.Errorf("bad decode:\n%s", spew.Sdump(r))
		}
	})
	t.Run("power supply", func(t *testing.T) {
		p := make([]byte, 24)
		packer.ByteOrder.PutUint16(p[0:2], 750)
		p[17] = 0x09 // predictive fail + hot swap
		d, e := decodePowerSupply(p)
		if e != nil {
			t.Fatalf("%v", e)
		}
		r := d.(*PowerSupplyRecord)
		if r.CapacityWatts != 750 || !r.PredictiveFail || !r.HotSwappable || r.PowerFactorCorr {
			t.Errorf("bad decode:\n%s", spew.Sdump(r))
		}
	})
}

// S4: "parameter out of range" means the FRU doesn't exist
func TestReadFRU_Empty(t *testing.T) {
	r := &scriptRequester{handler: func(netFn, cmd uint8, data []byte) (uint8, []byte) {
		return IPMICmpParamOutOfRange, nil
	}}
	info, e := ReadFRU(r, 3)
	if e != nil || info != nil {
		t.Errorf("want (nil, nil), got (%v, %v)", info, e)
	}
}

func TestReadFRU_Chunked(t *testing.T) {
	hdr := []byte{0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}
	hdr[7] = packer.Cksum2(hdr[:7])
	board := buildBoardArea(25, 7, []byte("ACME"), []byte("X42"), []byte("SN-1"))
	buf := append(hdr, board...)

	t.Run("byte access", func(t *testing.T) {
		info, e := ReadFRU(fruServer(buf, 1, 0), 0)
		if e != nil {
			t.Fatalf("%v", e)
		}
		if info == nil || info.Board == nil || info.Board.SerialNumber != "SN-1" {
			t.Fatalf("bad decode:\n%s", spew.Sdump(info))
		}
	})
	t.Run("short returns", func(t *testing.T) {
		// BMC hands back less than asked; offsets must follow actual counts
		info, e := ReadFRU(fruServer(buf, 1, 5), 0)
		if e != nil {
			t.Fatalf("%v", e)
		}
		if info == nil || info.Board == nil || info.Board.Manufacturer != "ACME" {
			t.Fatalf("bad decode:\n%s", spew.Sdump(info))
		}
	})
	t.Run("word access", func(t *testing.T) {
		info, e := ReadFRU(fruServer(buf, 2, 0), 0)
		if e != nil {
			t.Fatalf("%v", e)
		}
		if info == nil || info.Board == nil || info.Board.ProductName != "X42" {
			t.Fatalf("bad decode:\n%s", spew.Sdump(info))
		}
	})
}
