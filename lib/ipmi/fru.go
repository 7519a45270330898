/* fru.go: FRU inventory reading and decoding
 *
 * Author: J. Lowell Wofford <lowell@lanl.gov>
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package ipmi

import (
	"encoding/hex"
	"fmt"
	"time"
	"unicode/utf16"
)

// A Requester can carry one IPMI command; satisfied by *Session
type Requester interface {
	Request(netFn, cmd uint8, data []byte) (cc uint8, rdata []byte, e error)
}

// FRUInfo is the decoded FRU inventory of one device.  Areas that failed
// their checksum are nil; a bad chassis area never invalidates the board
// area next to it.
type FRUInfo struct {
	Chassis *ChassisArea  `json:"chassis,omitempty"`
	Board   *BoardArea    `json:"board,omitempty"`
	Product *ProductArea  `json:"product,omitempty"`
	Records []MultiRecord `json:"records,omitempty"`
}

type ChassisArea struct {
	Type         uint8    `json:"type"`
	TypeName     string   `json:"type_name"`
	PartNumber   string   `json:"part_number,omitempty"`
	SerialNumber string   `json:"serial_number,omitempty"`
	Custom       []string `json:"custom,omitempty"`
}

type BoardArea struct {
	LanguageCode   uint8    `json:"language_code"`
	MfgDateMinutes uint32   `json:"manufacturing_date"` // minutes since 1996-01-01 00:00 GMT
	Manufacturer   string   `json:"manufacturer,omitempty"`
	ProductName    string   `json:"product_name,omitempty"`
	SerialNumber   string   `json:"serial_number,omitempty"`
	PartNumber     string   `json:"part_number,omitempty"`
	FRUFileID      string   `json:"fru_file_id,omitempty"`
	Custom         []string `json:"custom,omitempty"`
}

// MfgDate converts the minute counter to wall time
func (b *BoardArea) MfgDate() time.Time {
	epoch := time.Date(1996, 1, 1, 0, 0, 0, 0, time.UTC)
	return epoch.Add(time.Duration(b.MfgDateMinutes) * time.Minute)
}

type ProductArea struct {
	LanguageCode uint8    `json:"language_code"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	ProductName  string   `json:"product_name,omitempty"`
	PartNumber   string   `json:"part_number,omitempty"`
	Version      string   `json:"version,omitempty"`
	SerialNumber string   `json:"serial_number,omitempty"`
	AssetTag     string   `json:"asset_tag,omitempty"`
	FRUFileID    string   `json:"fru_file_id,omitempty"`
	Custom       []string `json:"custom,omitempty"`
}

// SMBIOS chassis types, as far as FRUs in the field use them
var chassisTypeName = map[uint8]string{
	0x01: "Other",
	0x02: "Unknown",
	0x03: "Desktop",
	0x04: "Low Profile Desktop",
	0x05: "Pizza Box",
	0x06: "Mini Tower",
	0x07: "Tower",
	0x08: "Portable",
	0x09: "Laptop",
	0x0a: "Notebook",
	0x0b: "Hand Held",
	0x0c: "Docking Station",
	0x0d: "All in One",
	0x0e: "Sub Notebook",
	0x0f: "Space-saving",
	0x10: "Lunch Box",
	0x11: "Main Server Chassis",
	0x12: "Expansion Chassis",
	0x13: "SubChassis",
	0x14: "Bus Expansion Chassis",
	0x15: "Peripheral Chassis",
	0x16: "RAID Chassis",
	0x17: "Rack Mount Chassis",
	0x18: "Sealed-case PC",
	0x19: "Multi-system Chassis",
	0x1a: "Compact PCI",
	0x1b: "Advanced TCA",
	0x1c: "Blade",
	0x1d: "Blade Enclosure",
}

// ReadFRU pulls and decodes the inventory of one FRU device.  A BMC that
// answers "parameter out of range" has no such FRU; that comes back as
// (nil, nil).
func ReadFRU(r Requester, fruID uint8) (info *FRUInfo, e error) {
	_, data, e := r.Request(IPMIFnStorageReq, IPMICmdGetFRUAreaInfo, []byte{fruID})
	if e != nil {
		if IsCompletion(e, IPMICmpParamOutOfRange) {
			return nil, nil
		}
		return
	}
	if len(data) < 3 {
		return nil, &DecodeError{Reason: ReasonBadLength, Detail: "fru area info response"}
	}
	sizeUnits := int(packer.ByteOrder.Uint16(data[0:2]))
	unit := 1
	if data[2]&0x01 != 0 {
		unit = 2 // device is accessed by words
	}
	if sizeUnits == 0 {
		return nil, nil
	}

	buf, e := readFRUData(r, fruID, sizeUnits, unit)
	if e != nil {
		return
	}
	return DecodeFRU(buf)
}

// readFRUData chunks through the inventory area.  Block size is the
// 23-byte LAN payload budget, halved when the device speaks words; offset
// arithmetic follows the byte count the BMC actually returned.
func readFRUData(r Requester, fruID uint8, sizeUnits, unit int) (buf []byte, e error) {
	block := IPMIFRUBlockSize / unit
	buf = make([]byte, 0, sizeUnits*unit)
	for offset := 0; offset < sizeUnits; {
		count := block
		if sizeUnits-offset < count {
			count = sizeUnits - offset
		}
		req := make([]byte, 4)
		req[0] = fruID
		packer.ByteOrder.PutUint16(req[1:3], uint16(offset))
		req[3] = uint8(count)
		_, data, err := r.Request(IPMIFnStorageReq, IPMICmdReadFRUData, req)
		if err != nil {
			return nil, err
		}
		if len(data) < 2 || int(data[0]) != len(data)-1 {
			return nil, &DecodeError{Reason: ReasonBadLength, Detail: "fru read response"}
		}
		got := data[1:]
		if len(got)/unit == 0 {
			// a BMC that returns nothing would pin us here forever
			return nil, &DecodeError{Reason: ReasonBadLength, Detail: "fru read returned no data"}
		}
		buf = append(buf, got...)
		offset += len(got) / unit
	}
	return
}

// DecodeFRU decodes a complete FRU inventory buffer: common header, the
// three info areas, and the multi-record chain.  Per-area checksums are
// lenient; a corrupt area is dropped, not fatal.
func DecodeFRU(buf []byte) (info *FRUInfo, e error) {
	if len(buf) < 8 {
		return nil, ErrUnsupportedFRUData
	}
	if buf[0]&0x0f != 0x01 {
		return nil, ErrUnsupportedFRUData
	}
	if sum8(buf[0:8]) != 0 {
		return nil, ErrIncorrectHeaderChecksum
	}

	// area offsets in 8-byte units: internal-use, chassis, board, product,
	// multi-record
	offsets := []int{int(buf[1]) * 8, int(buf[2]) * 8, int(buf[3]) * 8, int(buf[4]) * 8, int(buf[5]) * 8}

	info = &FRUInfo{}
	if a, err := sliceArea(buf, offsets, 1); err == nil && a != nil {
		if c, err := decodeChassisArea(a); err == nil {
			info.Chassis = c
		}
	}
	if a, err := sliceArea(buf, offsets, 2); err == nil && a != nil {
		if b, err := decodeBoardArea(a); err == nil {
			info.Board = b
		}
	}
	if a, err := sliceArea(buf, offsets, 3); err == nil && a != nil {
		if p, err := decodeProductArea(a); err == nil {
			info.Product = p
		}
	}
	if off := offsets[4]; off > 0 && off < len(buf) {
		info.Records = decodeMultiRecords(buf[off:])
	}
	return
}

// sliceArea cuts area idx out of buf: [offset, next nonzero offset), or to
// the end of the buffer for the last area.  Checksum is verified over the
// area's own declared length; failures drop the area.
func sliceArea(buf []byte, offsets []int, idx int) (a []byte, e error) {
	off := offsets[idx]
	if off == 0 {
		return nil, nil
	}
	if off+2 > len(buf) {
		return nil, ErrUnsupportedFRUData
	}
	end := len(buf)
	for _, o := range offsets {
		if o > off && o < end {
			end = o
		}
	}
	alen := int(buf[off+1]) * 8
	if alen == 0 || off+alen > end {
		// fall back on the offset-derived range
		alen = end - off
	}
	a = buf[off : off+alen]
	if sum8(a) != 0 {
		return nil, ErrIncorrectHeaderChecksum
	}
	return
}

func sum8(b []byte) (s uint8) {
	for _, x := range b {
		s += x
	}
	return
}

// English is plain 8-bit Latin-1; anything else makes type-3 fields UTF-16LE
func langEnglish(lang uint8) bool { return lang == 0 || lang == 25 }

// fieldReader walks the type/length-encoded field list of an info area
type fieldReader struct {
	buf  []byte
	pos  int
	lang uint8
	done bool
}

// next decodes one field.  done flips on the 0xC1 sentinel (or a truncated
// buffer) with the cursor just past it.
func (f *fieldReader) next() (val string, ok bool) {
	if f.done || f.pos >= len(f.buf) {
		f.done = true
		return
	}
	tl := f.buf[f.pos]
	if tl == 0xc1 {
		f.pos++
		f.done = true
		return
	}
	typ := tl >> 6
	l := int(tl & 0x3f)
	f.pos++
	if f.pos+l > len(f.buf) {
		f.done = true
		return
	}
	data := f.buf[f.pos : f.pos+l]
	f.pos += l
	switch typ {
	case 0: // unspecified binary
		val = hex.EncodeToString(data)
	case 1: // BCD plus
		val = decodeBCDPlus(data)
	case 2: // 6-bit packed ASCII
		val = decode6BitASCII(data)
	case 3:
		if langEnglish(f.lang) {
			val = decodeLatin1(data)
		} else {
			val = decodeUTF16LE(data)
		}
	}
	return val, true
}

// rest collects the remaining (custom) fields; zero-length fields are
// omitted entirely
func (f *fieldReader) rest() (r []string) {
	for {
		v, ok := f.next()
		if !ok {
			return
		}
		if v != "" {
			r = append(r, v)
		}
	}
}

var bcdPlus = "0123456789 -."

func decodeBCDPlus(data []byte) string {
	var out []byte
	for _, b := range data {
		for _, nib := range []uint8{b >> 4, b & 0x0f} {
			if int(nib) < len(bcdPlus) {
				out = append(out, bcdPlus[nib])
			}
		}
	}
	return string(out)
}

func decode6BitASCII(data []byte) string {
	var out []byte
	for i := 0; i+2 < len(data); i += 3 {
		b0, b1, b2 := data[i], data[i+1], data[i+2]
		out = append(out,
			0x20+(b0&0x3f),
			0x20+((b0>>6)|((b1&0x0f)<<2)),
			0x20+((b1>>4)|((b2&0x03)<<4)),
			0x20+(b2>>2))
	}
	switch len(data) % 3 {
	case 1:
		b0 := data[len(data)-1]
		out = append(out, 0x20+(b0&0x3f))
	case 2:
		b0, b1 := data[len(data)-2], data[len(data)-1]
		out = append(out, 0x20+(b0&0x3f), 0x20+((b0>>6)|((b1&0x0f)<<2)))
	}
	return string(out)
}

func decodeLatin1(data []byte) string {
	out := make([]rune, len(data))
	for i, b := range data {
		out[i] = rune(b)
	}
	return string(out)
}

func decodeUTF16LE(data []byte) string {
	u := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		u = append(u, uint16(data[i])|uint16(data[i+1])<<8)
	}
	return string(utf16.Decode(u))
}

func decodeChassisArea(a []byte) (c *ChassisArea, e error) {
	if len(a) < 3 || a[0]&0x0f != 0x01 {
		return nil, ErrUnsupportedFRUData
	}
	c = &ChassisArea{Type: a[2]}
	c.TypeName = chassisTypeName[c.Type]
	if c.TypeName == "" {
		c.TypeName = fmt.Sprintf("Reserved (%#x)", c.Type)
	}
	f := &fieldReader{buf: a, pos: 3} // chassis area carries no language code
	c.PartNumber, _ = f.next()
	c.SerialNumber, _ = f.next()
	c.Custom = f.rest()
	return
}

func decodeBoardArea(a []byte) (b *BoardArea, e error) {
	if len(a) < 6 || a[0]&0x0f != 0x01 {
		return nil, ErrUnsupportedFRUData
	}
	b = &BoardArea{LanguageCode: a[2]}
	b.MfgDateMinutes = uint32(a[3]) | uint32(a[4])<<8 | uint32(a[5])<<16
	f := &fieldReader{buf: a, pos: 6, lang: b.LanguageCode}
	b.Manufacturer, _ = f.next()
	b.ProductName, _ = f.next()
	b.SerialNumber, _ = f.next()
	b.PartNumber, _ = f.next()
	b.FRUFileID, _ = f.next()
	b.Custom = f.rest()
	return
}

func decodeProductArea(a []byte) (p *ProductArea, e error) {
	if len(a) < 3 || a[0]&0x0f != 0x01 {
		return nil, ErrUnsupportedFRUData
	}
	p = &ProductArea{LanguageCode: a[2]}
	f := &fieldReader{buf: a, pos: 3, lang: p.LanguageCode}
	p.Manufacturer, _ = f.next()
	p.ProductName, _ = f.next()
	p.PartNumber, _ = f.next()
	p.Version, _ = f.next()
	p.SerialNumber, _ = f.next()
	p.AssetTag, _ = f.next()
	p.FRUFileID, _ = f.next()
	p.Custom = f.rest()
	return
}
