/* options.go: per-session configuration
 *
 * Author: J. Lowell Wofford <lowell@lanl.gov>
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package ipmi

import (
	"fmt"
	"time"
)

// Privilege levels as configuration values
var privilegeValue = map[string]uint8{
	"callback":      IPMIPrivCallback,
	"user":          IPMIPrivUser,
	"operator":      IPMIPrivOperator,
	"administrator": IPMIPrivAdmin,
}

// Options is a builder for session configuration.  Zero value is not
// usable; start from NewOptions and chain setters.  Setters validate and
// record the first error; Err() reports it.
type Options struct {
	Port               int
	Timeout            time.Duration
	User               string
	Password           string
	Privilege          uint8
	RqAddr             uint8
	InitialOutboundSeq uint32

	err error
}

// NewOptions returns the documented defaults
func NewOptions() *Options {
	return &Options{
		Port:               RMCPPortPrimary,
		Timeout:            time.Second,
		Privilege:          IPMIPrivAdmin,
		RqAddr:             IPMIRqAddrDefault,
		InitialOutboundSeq: 0x1337,
	}
}

func (o *Options) fail(f string, v ...interface{}) *Options {
	if o.err == nil {
		o.err = fmt.Errorf(f, v...)
	}
	return o
}

// Err reports the first setter validation failure, if any
func (o *Options) Err() error { return o.err }

// SetPort sets the BMC UDP port
func (o *Options) SetPort(p int) *Options {
	if p < 1 || p > 65535 {
		return o.fail("port out of range: %d", p)
	}
	o.Port = p
	return o
}

// SetTimeout sets the per-request deadline
func (o *Options) SetTimeout(d time.Duration) *Options {
	if d <= 0 {
		return o.fail("timeout must be positive: %v", d)
	}
	o.Timeout = d
	return o
}

// SetUser sets the username; at most 16 bytes
func (o *Options) SetUser(u string) *Options {
	if len(u) > 16 {
		return o.fail("username exceeds 16 bytes: %q", u)
	}
	o.User = u
	return o
}

// SetPassword sets the password; at most 16 bytes
func (o *Options) SetPassword(p string) *Options {
	if len(p) > 16 {
		return o.fail("password exceeds 16 bytes")
	}
	o.Password = p
	return o
}

// SetPrivilege sets the requested privilege level by name
func (o *Options) SetPrivilege(level string) *Options {
	v, ok := privilegeValue[level]
	if !ok {
		return o.fail("unknown privilege level: %q", level)
	}
	o.Privilege = v
	return o
}

// SetRqAddr sets the requestor address; software IDs 0x81..0x8d
func (o *Options) SetRqAddr(a uint8) *Options {
	if a < IPMIRqAddrMin || a > IPMIRqAddrMax {
		return o.fail("requestor address out of range: %#x", a)
	}
	o.RqAddr = a
	return o
}

// SetInitialOutboundSeq sets the outbound session sequence requested at
// activation
func (o *Options) SetInitialOutboundSeq(s uint32) *Options {
	o.InitialOutboundSeq = s
	return o
}

// Set applies a string-keyed option; unknown keys are rejected.  This is
// the entry point for option bags read from config files.
func (o *Options) Set(key string, value interface{}) error {
	bad := func() error {
		return fmt.Errorf("bad value for option %q: %v", key, value)
	}
	switch key {
	case "port":
		v, ok := value.(int)
		if !ok {
			return bad()
		}
		o.SetPort(v)
	case "timeout":
		switch v := value.(type) {
		case int:
			o.SetTimeout(time.Duration(v) * time.Millisecond)
		case time.Duration:
			o.SetTimeout(v)
		default:
			return bad()
		}
	case "user":
		v, ok := value.(string)
		if !ok {
			return bad()
		}
		o.SetUser(v)
	case "password":
		v, ok := value.(string)
		if !ok {
			return bad()
		}
		o.SetPassword(v)
	case "privilege":
		v, ok := value.(string)
		if !ok {
			return bad()
		}
		o.SetPrivilege(v)
	case "rq_addr":
		v, ok := value.(int)
		if !ok {
			return bad()
		}
		o.SetRqAddr(uint8(v))
	case "initial_outbound_seq_nr":
		v, ok := value.(int)
		if !ok {
			return bad()
		}
		o.SetInitialOutboundSeq(uint32(v))
	default:
		return fmt.Errorf("unknown option key: %q", key)
	}
	return o.err
}
