/* const.go: protocol constants for RMCP, ASF, and IPMI v1.5 over LAN
 *
 * Author: J. Lowell Wofford <lowell@lanl.gov>
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package ipmi

// RMCP constants
const (
	RMCPVersion1_0 uint8 = 0x06

	// Class bitmasks
	RMCPClassNormal uint8 = 0x00
	RMCPClassACK    uint8 = 0x80
	RMCPClassASF    uint8 = 0x06
	RMCPClassIPMI   uint8 = 0x07
	RMCPClassOEM    uint8 = 0x08

	RMCPSeqNoACK uint8 = 0xff

	RMCPPortPrimary = 623
)

// ASF constants
const (
	ASFIANA              uint32 = 0x11be // 4542, the ASF IANA enterprise number
	ASFTypePing          uint8  = 0x80
	ASFTypePong          uint8  = 0x40
	ASFTagUnidirectional uint8  = 0xff

	// bitmask
	ASFEntitiesIPMISupport uint8 = 0x80
	ASFEntitiesVersion1_0  uint8 = 0x01

	// bitmask
	ASFInteractionsRMCPSec  uint8 = 0x80
	ASFInteractionsDMTFDASH uint8 = 0x20
)

// IPMI NetFn codes
const (
	IPMIFnChassisReq   uint8 = 0x00
	IPMIFnChassisRes   uint8 = 0x01
	IPMIFnBridgeReq    uint8 = 0x02
	IPMIFnBridgeRes    uint8 = 0x03
	IPMIFnSensorReq    uint8 = 0x04
	IPMIFnSensorRes    uint8 = 0x05
	IPMIFnAppReq       uint8 = 0x06
	IPMIFnAppRes       uint8 = 0x07
	IPMIFnFirmwareReq  uint8 = 0x08
	IPMIFnFirmwareRes  uint8 = 0x09
	IPMIFnStorageReq   uint8 = 0x0a
	IPMIFnStorageRes   uint8 = 0x0b
	IPMIFnTransportReq uint8 = 0x0c
	IPMIFnTransportRes uint8 = 0x0d
	IPMIFnGroupReq     uint8 = 0x2c
	IPMIFnGroupRes     uint8 = 0x2d
	IPMIFnOEMReq       uint8 = 0x2e
	IPMIFnOEMRes       uint8 = 0x2f
)

// IPMI commands (table G-1), limited to what this library speaks
const (
	// App: session management
	IPMICmdGetChanAuthCap uint8 = 0x38
	IPMICmdGetSessionChal uint8 = 0x39
	IPMICmdActivateSess   uint8 = 0x3a
	IPMICmdSetSessionPriv uint8 = 0x3b
	IPMICmdCloseSess      uint8 = 0x3c

	// Chassis
	IPMICmdChassisStatus uint8 = 0x01
	IPMICmdChassisCtl    uint8 = 0x02

	IPMIChassisCtlDown         uint8 = 0x00
	IPMIChassisCtlUp           uint8 = 0x01
	IPMIChassisCtlCycle        uint8 = 0x02
	IPMIChassisCtlHardReset    uint8 = 0x03
	IPMIChassisCtlPulseDiag    uint8 = 0x04
	IPMIChassisCtlSoftShutdown uint8 = 0x05

	// Storage: FRU inventory
	IPMICmdGetFRUAreaInfo uint8 = 0x10
	IPMICmdReadFRUData    uint8 = 0x11
	IPMICmdWriteFRUData   uint8 = 0x12

	// Storage: SEL
	IPMICmdGetSELInfo  uint8 = 0x40
	IPMICmdReserveSEL  uint8 = 0x42
	IPMICmdGetSELEntry uint8 = 0x43
	IPMICmdClearSEL    uint8 = 0x47

	IPMIRsAddrBMCResponder uint8 = 0x20
)

// IPMI command data constants
const (
	IPMIGetChanAuthCapGetChannel uint8 = 0x0e

	IPMIPrivCallback uint8 = 0x01
	IPMIPrivUser     uint8 = 0x02
	IPMIPrivOperator uint8 = 0x03
	IPMIPrivAdmin    uint8 = 0x04
	IPMIPrivOEM      uint8 = 0x05

	// bitfield, GetChanAuthCap response
	IPMIAuthTypeBFIPMI2  uint8 = 0x80
	IPMIAuthTypeBFOEM    uint8 = 0x20
	IPMIAuthTypeBFPasswd uint8 = 0x10
	IPMIAuthTypeBFMD5    uint8 = 0x04
	IPMIAuthTypeBFMD2    uint8 = 0x02
	IPMIAuthTypeBFNONE   uint8 = 0x01

	IPMIAuthTypeOEM    uint8 = 0x05
	IPMIAuthTypePasswd uint8 = 0x04
	IPMIAuthTypeMD5    uint8 = 0x02
	IPMIAuthTypeMD2    uint8 = 0x01
	IPMIAuthTypeNONE   uint8 = 0x00
)

// Requestor addressing; software IDs are odd addresses 0x81..0x8d
const (
	IPMIRqAddrDefault uint8 = 0x81
	IPMIRqAddrMin     uint8 = 0x81
	IPMIRqAddrMax     uint8 = 0x8d
)

// Session layer limits
const (
	// The LAN message layer caps the whole message at 32 bytes; after
	// addressing, sequencing and checksums that leaves 23 bytes of
	// command payload for a Read FRU Data response.
	IPMIFRUBlockSize = 23

	// requestor sequence numbers are 6 bits wide
	IPMIRqSeqMod = 64

	// inbound session sequence tolerance
	IPMIReplayWindow = 8

	IPMISELNextLast uint16 = 0xffff
	IPMISELFirst    uint16 = 0x0000
)
