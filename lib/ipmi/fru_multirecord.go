/* fru_multirecord.go: FRU multi-record area decoding
 *
 * Author: J. Lowell Wofford <lowell@lanl.gov>
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package ipmi

import (
	"sort"
)

// Multi-record types we know how to decode
const (
	FRURecordPowerSupply      uint8 = 0x00
	FRURecordDCOutput         uint8 = 0x01
	FRURecordDCLoad           uint8 = 0x02
	FRURecordManagementAccess uint8 = 0x03
	FRURecordBaseCompat       uint8 = 0x04
	FRURecordExtendedCompat   uint8 = 0x05
)

// A MultiRecord is one link of the chain: its raw payload plus a typed
// decode when the record type is known
type MultiRecord struct {
	Type    uint8       `json:"type"`
	Format  uint8       `json:"format"`
	Raw     []byte      `json:"raw,omitempty"`
	Decoded interface{} `json:"decoded,omitempty"`
}

// A MultiRecordDecoder turns a verified payload into a typed record
type MultiRecordDecoder func(payload []byte) (interface{}, error)

// OEM (e.g. PICMG) record decoders register here; builtin types win
var oemRecordDecoders = map[uint8]MultiRecordDecoder{}

// RegisterMultiRecordDecoder installs a decoder for an OEM record type.
// Unregistered types are silently dropped from decode results.
func RegisterMultiRecordDecoder(recordType uint8, d MultiRecordDecoder) {
	oemRecordDecoders[recordType] = d
}

var builtinRecordDecoders = map[uint8]MultiRecordDecoder{
	FRURecordPowerSupply:      decodePowerSupply,
	FRURecordDCOutput:         decodeDCOutput,
	FRURecordDCLoad:           decodeDCLoad,
	FRURecordManagementAccess: decodeManagementAccess,
	FRURecordBaseCompat:       decodeCompatibility,
	FRURecordExtendedCompat:   decodeCompatibility,
}

// decodeMultiRecords walks the record chain.  5-byte headers: type,
// end-of-list bit + format version, payload length, payload checksum,
// header checksum.  A bad header abandons the chain (offsets past it
// can't be trusted); a bad payload just skips that record.
func decodeMultiRecords(buf []byte) (records []MultiRecord) {
	pos := 0
	for pos+5 <= len(buf) {
		hdr := buf[pos : pos+5]
		if sum8(hdr) != 0 {
			return
		}
		rtype := hdr[0]
		eol := hdr[1]&0x80 != 0
		format := hdr[1] & 0x0f
		plen := int(hdr[2])
		if pos+5+plen > len(buf) {
			return
		}
		payload := buf[pos+5 : pos+5+plen]
		pos += 5 + plen

		if sum8(payload)+hdr[3] == 0 {
			dec := builtinRecordDecoders[rtype]
			if dec == nil {
				dec = oemRecordDecoders[rtype]
			}
			if dec != nil {
				r := MultiRecord{Type: rtype, Format: format, Raw: payload}
				if d, err := dec(payload); err == nil {
					r.Decoded = d
					records = append(records, r)
				}
			}
			// unrecognized types are dropped without comment
		}

		if eol {
			return
		}
	}
	return
}

// unspec16 maps the 0 / 0xffff sentinels to "unspecified" (zero)
func unspec16(v uint16) int {
	if v == 0xffff {
		return 0
	}
	return int(v)
}

// unspec8 maps the 0 / 0xff sentinels to "unspecified" (zero)
func unspec8(v uint8) int {
	if v == 0xff {
		return 0
	}
	return int(v)
}

// PowerSupplyRecord per the FRU storage definition section 18.1.
// Zero values mean unspecified.  Voltages are volts, currents amps.
type PowerSupplyRecord struct {
	CapacityWatts      int        `json:"capacity_watts"`
	PeakVA             int        `json:"peak_va"`
	InrushCurrentA     int        `json:"inrush_current_a"`
	InrushIntervalMS   int        `json:"inrush_interval_ms"`
	InputRange1        [2]float64 `json:"input_range1_v"`
	InputRange2        [2]float64 `json:"input_range2_v"`
	InputFrequencyHz   [2]int     `json:"input_frequency_hz"`
	DropoutToleranceMS int        `json:"dropout_tolerance_ms"`
	PredictiveFail     bool       `json:"predictive_fail"`
	PowerFactorCorr    bool       `json:"power_factor_correction"`
	AutoswitchInput    bool       `json:"autoswitch_input"`
	HotSwappable       bool       `json:"hot_swappable"`
	PeakWattage        int        `json:"peak_wattage"`
	HoldUpTimeSec      int        `json:"hold_up_time_sec"`
	CombinedVoltages   [2]string  `json:"combined_voltages"`
	CombinedWattage    int        `json:"combined_wattage"`
	TachLowerThreshold int        `json:"tach_lower_threshold"`
}

var combinedVoltageName = [4]string{"12V", "-12V", "5V", "3.3V"}

func decodePowerSupply(p []byte) (interface{}, error) {
	if len(p) < 24 {
		return nil, ErrUnsupportedFRUData
	}
	le := packer.ByteOrder
	r := &PowerSupplyRecord{
		CapacityWatts:    unspec16(le.Uint16(p[0:2]) & 0x0fff),
		PeakVA:           unspec16(le.Uint16(p[2:4])),
		InrushCurrentA:   unspec8(p[4]),
		InrushIntervalMS: unspec8(p[5]),
		InputRange1: [2]float64{
			float64(int16(le.Uint16(p[6:8]))) / 100,
			float64(int16(le.Uint16(p[8:10]))) / 100,
		},
		InputRange2: [2]float64{
			float64(int16(le.Uint16(p[10:12]))) / 100,
			float64(int16(le.Uint16(p[12:14]))) / 100,
		},
		InputFrequencyHz:   [2]int{int(p[14]), int(p[15])},
		DropoutToleranceMS: int(p[16]),
		PredictiveFail:     p[17]&0x01 != 0,
		PowerFactorCorr:    p[17]&0x02 != 0,
		AutoswitchInput:    p[17]&0x04 != 0,
		HotSwappable:       p[17]&0x08 != 0,
	}
	pw := le.Uint16(p[18:20])
	r.HoldUpTimeSec = int(pw >> 12)
	r.PeakWattage = unspec16(pw & 0x0fff)
	r.CombinedVoltages = [2]string{
		combinedVoltageName[p[20]>>4&0x03],
		combinedVoltageName[p[20]&0x03],
	}
	r.CombinedWattage = unspec16(le.Uint16(p[21:23]))
	r.TachLowerThreshold = unspec8(p[23])
	return r, nil
}

// DCOutputRecord per section 18.2.  Voltages volts, currents amps.
type DCOutputRecord struct {
	OutputNumber    int     `json:"output_number"`
	Standby         bool    `json:"standby"`
	NominalVoltage  float64 `json:"nominal_voltage_v"`
	MaxNegDeviation float64 `json:"max_negative_deviation_v"`
	MaxPosDeviation float64 `json:"max_positive_deviation_v"`
	RippleMV        int     `json:"ripple_mv"`
	MinCurrentA     float64 `json:"min_current_a"`
	MaxCurrentA     float64 `json:"max_current_a"`
}

func decodeDCOutput(p []byte) (interface{}, error) {
	if len(p) < 13 {
		return nil, ErrUnsupportedFRUData
	}
	le := packer.ByteOrder
	return &DCOutputRecord{
		OutputNumber:    int(p[0] & 0x0f),
		Standby:         p[0]&0x80 != 0,
		NominalVoltage:  float64(int16(le.Uint16(p[1:3]))) / 100,
		MaxNegDeviation: float64(int16(le.Uint16(p[3:5]))) / 100,
		MaxPosDeviation: float64(int16(le.Uint16(p[5:7]))) / 100,
		RippleMV:        unspec16(le.Uint16(p[7:9])),
		MinCurrentA:     float64(le.Uint16(p[9:11])) / 1000,
		MaxCurrentA:     float64(le.Uint16(p[11:13])) / 1000,
	}, nil
}

// DCLoadRecord per section 18.3
type DCLoadRecord struct {
	OutputNumber   int     `json:"output_number"`
	NominalVoltage float64 `json:"nominal_voltage_v"`
	MinVoltage     float64 `json:"min_voltage_v"`
	MaxVoltage     float64 `json:"max_voltage_v"`
	RippleMV       int     `json:"ripple_mv"`
	MinCurrentA    float64 `json:"min_current_a"`
	MaxCurrentA    float64 `json:"max_current_a"`
}

func decodeDCLoad(p []byte) (interface{}, error) {
	if len(p) < 13 {
		return nil, ErrUnsupportedFRUData
	}
	le := packer.ByteOrder
	return &DCLoadRecord{
		OutputNumber:   int(p[0] & 0x0f),
		NominalVoltage: float64(int16(le.Uint16(p[1:3]))) / 100,
		MinVoltage:     float64(int16(le.Uint16(p[3:5]))) / 100,
		MaxVoltage:     float64(int16(le.Uint16(p[5:7]))) / 100,
		RippleMV:       unspec16(le.Uint16(p[7:9])),
		MinCurrentA:    float64(le.Uint16(p[9:11])) / 1000,
		MaxCurrentA:    float64(le.Uint16(p[11:13])) / 1000,
	}, nil
}

// Management access sub-record types, section 18.4
var mgmtAccessName = map[uint8]string{
	0x01: "System Management URL",
	0x02: "System Name",
	0x03: "System Ping Address",
	0x04: "Component Management URL",
	0x05: "Component Name",
	0x06: "Component Ping Address",
	0x07: "System Unique ID",
}

type ManagementAccessRecord struct {
	SubType     uint8  `json:"sub_type"`
	SubTypeName string `json:"sub_type_name"`
	Data        string `json:"data"`
}

func decodeManagementAccess(p []byte) (interface{}, error) {
	if len(p) < 1 {
		return nil, ErrUnsupportedFRUData
	}
	name, ok := mgmtAccessName[p[0]]
	if !ok {
		return nil, ErrUnsupportedFRUData
	}
	return &ManagementAccessRecord{
		SubType:     p[0],
		SubTypeName: name,
		Data:        decodeLatin1(p[1:]),
	}, nil
}

// CompatibilityRecord covers both base (0x04) and extended (0x05)
// compatibility records, section 18.5/18.6
type CompatibilityRecord struct {
	ManufacturerID    uint32 `json:"manufacturer_id"`
	EntityID          uint8  `json:"entity_id"`
	CompatibilityBase uint8  `json:"compatibility_base"`
	CodeStart         uint8  `json:"code_start"`
	CompatibleCodes   []int  `json:"compatible_codes"`
}

// decodeCompatibility expands the code range mask into a sorted code list.
// Bits enumerate MSB-first within each mask byte; bit i contributes
// code-start + (i div 8)*8 + (8 - i mod 8), and code-start itself is
// always compatible.
func decodeCompatibility(p []byte) (interface{}, error) {
	if len(p) < 6 {
		return nil, ErrUnsupportedFRUData
	}
	r := &CompatibilityRecord{
		ManufacturerID:    uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16,
		EntityID:          p[3],
		CompatibilityBase: p[4],
		CodeStart:         p[5] & 0x7f,
	}
	start := int(r.CodeStart)
	codes := map[int]bool{start: true}
	for bi, b := range p[6:] {
		for j := 0; j < 8; j++ {
			if b&(0x80>>uint(j)) != 0 {
				i := bi*8 + j
				codes[start+(i/8)*8+(8-i%8)] = true
			}
		}
	}
	for c := range codes {
		r.CompatibleCodes = append(r.CompatibleCodes, c)
	}
	sort.Ints(r.CompatibleCodes)
	return r, nil
}
