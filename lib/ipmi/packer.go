/* packer.go: reflect-driven pack/unpack of wire structs by `pack` field tags
 *
 * Author: J. Lowell Wofford <lowell@lanl.gov>
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package ipmi

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Tag grammar:
//   pack:""                   plain field, default byte order
//   pack:"be"                 big-endian integer
//   pack:"zeros"              reserved; packs as zeros, skipped on unpack
//   pack:"len=Field"          uint8 that carries the byte length of Field
//   pack:"fill=N"             trailing []byte; on unpack takes remainder+N bytes
//   pack:"cksum2"             uint8 two's-complement checksum of preceding bytes
//   pack:"authcodelen=Field"  []byte that is empty or 16 bytes wide, by auth type
type Packer struct {
	ByteOrder binary.ByteOrder
}

// the session layer is little-endian
var packer = Packer{ByteOrder: binary.LittleEndian}

func (p Packer) parseArgs(args string) map[string]string {
	r := make(map[string]string)
	argv := strings.Split(args, ",")
	for _, arg := range argv {
		pair := strings.SplitN(arg, "=", 2)
		if len(pair) == 2 {
			r[strings.TrimSpace(pair[0])] = strings.TrimSpace(pair[1])
		} else {
			r[strings.TrimSpace(pair[0])] = ""
		}
	}
	return r
}

// Cksum2 is the two's complement of the byte sum mod 256; appending it
// makes the running sum of the covered bytes vanish
func (p Packer) Cksum2(buf []byte) uint8 {
	i := 0
	for _, b := range buf {
		i = (i + int(b)) % 256
	}
	i = -i
	return uint8(i)
}

func (p Packer) order(flags map[string]string) binary.ByteOrder {
	if _, ok := flags["be"]; ok {
		return binary.BigEndian
	}
	return p.ByteOrder
}

// Pack serializes a tagged struct into wire bytes, filling in lengths and
// checksums as it goes
func (p Packer) Pack(packet interface{}) (b []byte, e error) {
	sv := reflect.Indirect(reflect.ValueOf(packet))
	st := sv.Type()
	if st.Kind() != reflect.Struct {
		e = fmt.Errorf("not a struct: %v", st)
		return
	}
	last := 0
	buf := make([]byte, 1500)
	for i := 0; i < st.NumField(); i++ {
		ft := st.Field(i)
		fv := sv.Field(i)
		flagStr, ok := ft.Tag.Lookup("pack")
		if !ok {
			continue
		}
		flags := p.parseArgs(flagStr)

		switch ft.Type.Kind() {
		case reflect.Array:
			if ft.Type.Elem().Kind() != reflect.Uint8 {
				e = fmt.Errorf("arrays must be of bytes")
				return
			}
			l := ft.Type.Len()
			if _, ok := flags["zeros"]; !ok { // don't copy zeros
				reflect.Copy(reflect.ValueOf(buf[last:]), fv)
			}
			last += l
		case reflect.Slice:
			if ft.Type.Elem().Kind() != reflect.Uint8 {
				e = fmt.Errorf("slices must be of bytes")
				return
			}
			l := fv.Len()
			if _, ok := flags["zeros"]; !ok {
				copy(buf[last:], fv.Bytes())
			}
			last += l
		case reflect.Uint8:
			if _, ok := flags["cksum2"]; ok { // are we supposed to fill out a checksum?
				if fv.CanSet() {
					fv.Set(reflect.ValueOf(p.Cksum2(buf[0:last])))
				}
				buf[last] = p.Cksum2(buf[0:last])
				last++
				continue
			}
			if ref, ok := flags["len"]; ok { // are we supposed to fill out a length?
				refv := sv.FieldByName(ref)
				if refv.IsValid() && refv.Kind() == reflect.Slice {
					if fv.CanSet() {
						fv.Set(reflect.ValueOf(uint8(refv.Len())))
					}
					buf[last] = uint8(refv.Len())
					last++
					continue
				}
			}
			buf[last] = uint8(fv.Uint())
			last++
		case reflect.Uint16:
			p.order(flags).PutUint16(buf[last:], uint16(fv.Uint()))
			last += 2
		case reflect.Uint32:
			p.order(flags).PutUint32(buf[last:], uint32(fv.Uint()))
			last += 4
		case reflect.Uint64:
			p.order(flags).PutUint64(buf[last:], uint64(fv.Uint()))
			last += 8
		default:
			e = fmt.Errorf("unhandled kind: %v", ft.Type.Kind())
			return
		}
	}
	b = make([]byte, last)
	copy(b, buf)
	return
}

// Unpack deserializes wire bytes into a tagged struct.  Malformed input
// comes back as a DecodeError; it never panics on short buffers.
func (p Packer) Unpack(b []byte, packet interface{}) (e error) {
	sv := reflect.Indirect(reflect.ValueOf(packet))
	st := sv.Type()
	if st.Kind() != reflect.Struct {
		return fmt.Errorf("not a struct: %v", st)
	}
	last := 0
	lengths := make(map[string]int) // lengths recorded by len= fields

	for i := 0; i < st.NumField(); i++ {
		ft := st.Field(i)
		fv := sv.Field(i)
		flagStr, ok := ft.Tag.Lookup("pack")
		if !ok {
			continue
		}
		flags := p.parseArgs(flagStr)

		switch ft.Type.Kind() {
		case reflect.Array:
			if ft.Type.Elem().Kind() != reflect.Uint8 {
				return fmt.Errorf("arrays must be of bytes")
			}
			l := ft.Type.Len()
			if len(b) < last+l {
				return &DecodeError{Reason: ReasonBadLength, Detail: st.Name() + "." + ft.Name}
			}
			if _, ok := flags["zeros"]; !ok && fv.CanSet() {
				reflect.Copy(fv, reflect.ValueOf(b[last:last+l]))
			}
			last += l
		case reflect.Slice:
			if ft.Type.Elem().Kind() != reflect.Uint8 {
				return fmt.Errorf("slices must be of bytes")
			}
			// compute the slice width
			l := len(b[last:])
			if offStr, ok := flags["fill"]; ok && offStr != "" {
				off, err := strconv.Atoi(offStr)
				if err != nil {
					return err
				}
				l += off
			}
			if ref, ok := flags["authcodelen"]; ok {
				ac := sv.FieldByName(ref)
				if !ac.IsValid() || ac.Kind() != reflect.Uint8 {
					return fmt.Errorf("authcodelen must reference a uint8 field")
				}
				if uint8(ac.Uint()) == IPMIAuthTypeNONE {
					l = 0
				} else {
					l = 16
				}
			}
			if n, ok := lengths[ft.Name]; ok {
				// a preceding len= byte bounds us; trailing pad is legal
				if n > len(b[last:]) {
					return &DecodeError{Reason: ReasonBadLength, Detail: st.Name() + "." + ft.Name}
				}
				l = n
			}
			if l < 0 || len(b) < last+l {
				return &DecodeError{Reason: ReasonBadLength, Detail: st.Name() + "." + ft.Name}
			}
			if _, ok := flags["zeros"]; !ok && l != 0 && fv.CanSet() {
				fv.SetBytes(b[last : last+l])
			}
			last += l
		case reflect.Uint8:
			if len(b) < last+1 {
				return &DecodeError{Reason: ReasonBadLength, Detail: st.Name() + "." + ft.Name}
			}
			if _, ok := flags["cksum2"]; ok {
				if ck := p.Cksum2(b[0:last]); ck != b[last] {
					return &DecodeError{
						Reason: ReasonBadChecksum,
						Detail: fmt.Sprintf("%s.%s: %02x != %02x", st.Name(), ft.Name, ck, b[last]),
					}
				}
			}
			if ref, ok := flags["len"]; ok {
				lengths[ref] = int(b[last])
			}
			if _, ok := flags["zeros"]; !ok && fv.CanSet() {
				fv.Set(reflect.ValueOf(uint8(b[last])))
			}
			last++
		case reflect.Uint16:
			if len(b) < last+2 {
				return &DecodeError{Reason: ReasonBadLength, Detail: st.Name() + "." + ft.Name}
			}
			if _, ok := flags["zeros"]; !ok && fv.CanSet() {
				fv.Set(reflect.ValueOf(p.order(flags).Uint16(b[last:])))
			}
			last += 2
		case reflect.Uint32:
			if len(b) < last+4 {
				return &DecodeError{Reason: ReasonBadLength, Detail: st.Name() + "." + ft.Name}
			}
			if _, ok := flags["zeros"]; !ok && fv.CanSet() {
				fv.Set(reflect.ValueOf(p.order(flags).Uint32(b[last:])))
			}
			last += 4
		case reflect.Uint64:
			if len(b) < last+8 {
				return &DecodeError{Reason: ReasonBadLength, Detail: st.Name() + "." + ft.Name}
			}
			if _, ok := flags["zeros"]; !ok && fv.CanSet() {
				fv.Set(reflect.ValueOf(p.order(flags).Uint64(b[last:])))
			}
			last += 8
		default:
			return fmt.Errorf("unhandled kind: %v", ft.Type.Kind())
		}
	}
	return
}

// PackMust packs or panics; for packets built from constants where a
// failure is a programming error
func (p Packer) PackMust(i interface{}) []byte {
	b, e := p.Pack(i)
	if e != nil {
		panic(e)
	}
	return b
}
