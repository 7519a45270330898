/* auth.go: IPMI v1.5 session authentication codes
 *
 * Author: J. Lowell Wofford <lowell@lanl.gov>
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package ipmi

import (
	"crypto/md5"
)

// pad16 right-pads a credential to the 16-byte field width
func pad16(s []byte) (b [16]byte) {
	copy(b[:], s)
	return
}

// authCode computes the 16-byte session auth code for an outbound packet.
// For the digest types the input is
// session-id | password | payload | session-seq | password
// with both integers in wire (little-endian) order.  Returns nil when the
// auth type carries no code.
func authCode(authType uint8, password []byte, sid uint32, sseq uint32, payload []byte) []byte {
	switch authType {
	case IPMIAuthTypeNONE:
		return nil
	case IPMIAuthTypePasswd:
		p := pad16(password)
		return p[:]
	case IPMIAuthTypeMD5, IPMIAuthTypeMD2:
		p := pad16(password)
		var in []byte
		var b4 [4]byte
		packer.ByteOrder.PutUint32(b4[:], sid)
		in = append(in, b4[:]...)
		in = append(in, p[:]...)
		in = append(in, payload...)
		packer.ByteOrder.PutUint32(b4[:], sseq)
		in = append(in, b4[:]...)
		in = append(in, p[:]...)
		if authType == IPMIAuthTypeMD5 {
			sum := md5.Sum(in)
			return sum[:]
		}
		sum := md2Sum(in)
		return sum[:]
	}
	return nil
}

// chooseAuthType picks the best auth type the channel offers that we can
// speak: MD5, then MD2, then straight password, then none
func chooseAuthType(support uint8, havePassword bool) (t uint8, ok bool) {
	if havePassword {
		switch {
		case support&IPMIAuthTypeBFMD5 != 0:
			return IPMIAuthTypeMD5, true
		case support&IPMIAuthTypeBFMD2 != 0:
			return IPMIAuthTypeMD2, true
		case support&IPMIAuthTypeBFPasswd != 0:
			return IPMIAuthTypePasswd, true
		}
	}
	if support&IPMIAuthTypeBFNONE != 0 {
		return IPMIAuthTypeNONE, true
	}
	return 0, false
}
