/* completion.go: IPMI completion codes and their error representation
 *
 * Author: J. Lowell Wofford <lowell@lanl.gov>
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package ipmi

import "fmt"

// Completion codes per section 5.2
const (
	IPMICmpNorm                 uint8 = 0x00
	IPMICmpNodeBusy             uint8 = 0xc0
	IPMICmpInvalidCommand       uint8 = 0xc1
	IPMICmpInvalidLUN           uint8 = 0xc2
	IPMICmpTimeout              uint8 = 0xc3
	IPMICmpOutOfSpace           uint8 = 0xc4
	IPMICmpReservationCanceled  uint8 = 0xc5
	IPMICmpRequestTruncated     uint8 = 0xc6
	IPMICmpRequestLengthInvalid uint8 = 0xc7
	IPMICmpRequestFieldExceeded uint8 = 0xc8
	IPMICmpParamOutOfRange      uint8 = 0xc9
	IPMICmpCannotReturnCount    uint8 = 0xca
	IPMICmpDataNotPresent       uint8 = 0xcb
	IPMICmpInvalidDataField     uint8 = 0xcc
	IPMICmpIllegalForSensor     uint8 = 0xcd
	IPMICmpNoResponse           uint8 = 0xce
	IPMICmpDuplicatedRequest    uint8 = 0xcf
	IPMICmpSDRInUpdate          uint8 = 0xd0
	IPMICmpFirmwareUpdate       uint8 = 0xd1
	IPMICmpBMCInitializing      uint8 = 0xd2
	IPMICmpDestUnavailable      uint8 = 0xd3
	IPMICmpInsufficientPriv     uint8 = 0xd4
	IPMICmpNotSupportedNow      uint8 = 0xd5
	IPMICmpSubFnDisabled        uint8 = 0xd6
	IPMICmpUnspecified          uint8 = 0xff
)

// Mnemonics from table 5-2; anything not listed renders as its numeric value
var IPMICmpString = map[uint8]string{
	IPMICmpNorm:                 "normal",
	IPMICmpNodeBusy:             "node_busy",
	IPMICmpInvalidCommand:       "invalid_command",
	IPMICmpInvalidLUN:           "invalid_command_for_lun",
	IPMICmpTimeout:              "processing_timeout",
	IPMICmpOutOfSpace:           "out_of_space",
	IPMICmpReservationCanceled:  "reservation_canceled",
	IPMICmpRequestTruncated:     "request_data_truncated",
	IPMICmpRequestLengthInvalid: "request_data_length_invalid",
	IPMICmpRequestFieldExceeded: "request_data_field_length_limit_exceeded",
	IPMICmpParamOutOfRange:      "parameter_out_of_range",
	IPMICmpCannotReturnCount:    "cannot_return_requested_data_bytes",
	IPMICmpDataNotPresent:       "requested_data_not_present",
	IPMICmpInvalidDataField:     "invalid_data_field",
	IPMICmpIllegalForSensor:     "command_illegal_for_sensor",
	IPMICmpNoResponse:           "response_not_provided",
	IPMICmpDuplicatedRequest:    "duplicated_request",
	IPMICmpSDRInUpdate:          "sdr_repository_in_update",
	IPMICmpFirmwareUpdate:       "device_in_firmware_update",
	IPMICmpBMCInitializing:      "bmc_initialization_in_progress",
	IPMICmpDestUnavailable:      "destination_unavailable",
	IPMICmpInsufficientPriv:     "insufficient_privilege",
	IPMICmpNotSupportedNow:      "not_supported_in_present_state",
	IPMICmpSubFnDisabled:        "subfunction_disabled",
	IPMICmpUnspecified:          "unspecified_error",
}

// CompletionError surfaces a non-zero BMC completion code as an error
type CompletionError struct {
	Code uint8
}

// Kind returns the mnemonic for the code, or its numeric value if unknown
func (c *CompletionError) Kind() string {
	if s, ok := IPMICmpString[c.Code]; ok {
		return s
	}
	return fmt.Sprintf("0x%02x", c.Code)
}

func (c *CompletionError) Error() string {
	return fmt.Sprintf("bmc_error: %s", c.Kind())
}

// IsCompletion reports whether e is a CompletionError with the given code
func IsCompletion(e error, code uint8) bool {
	if ce, ok := e.(*CompletionError); ok {
		return ce.Code == code
	}
	return false
}
