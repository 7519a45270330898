/* ipmilan.go: the ipmilan executable talks to a BMC from the command line
 *
 * Author: J. Lowell Wofford <lowell@lanl.gov>
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kraken-hpc/ipmilan/core"
	"github.com/kraken-hpc/ipmilan/lib/ipmi"
	"github.com/kraken-hpc/ipmilan/lib/types"
	"gopkg.in/yaml.v2"
)

// Globals
var verbose bool
var quiet bool

func pError(f string, args ...interface{}) {
	log.Printf("ERROR: "+f, args...)
}

func pFail(f string, args ...interface{}) {
	log.Printf("FAIL: "+f, args...)
	os.Exit(1)
}

func pInfo(f string, args ...interface{}) {
	if !quiet {
		log.Printf("INFO: "+f, args...)
	}
}

// BMCConfig is the optional YAML side of the command line
type BMCConfig struct {
	Port      int    `yaml:"port,omitempty"`
	TimeoutMS int    `yaml:"timeout,omitempty"`
	User      string `yaml:"user,omitempty"`
	Password  string `yaml:"password,omitempty"`
	Privilege string `yaml:"privilege,omitempty"`
	RqAddr    int    `yaml:"rq_addr,omitempty"`
}

func loadConfig(path string) (opts *ipmi.Options, e error) {
	opts = ipmi.NewOptions()
	if path == "" {
		return
	}
	data, e := ioutil.ReadFile(path)
	if e != nil {
		return
	}
	cfg := &BMCConfig{}
	if e = yaml.UnmarshalStrict(data, cfg); e != nil {
		return
	}
	if cfg.Port != 0 {
		opts.SetPort(cfg.Port)
	}
	if cfg.TimeoutMS != 0 {
		opts.SetTimeout(time.Duration(cfg.TimeoutMS) * time.Millisecond)
	}
	if cfg.User != "" {
		opts.SetUser(cfg.User)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.Privilege != "" {
		opts.SetPrivilege(cfg.Privilege)
	}
	if cfg.RqAddr != 0 {
		opts.SetRqAddr(uint8(cfg.RqAddr))
	}
	e = opts.Err()
	return
}

func printJSON(v interface{}) {
	out, e := json.MarshalIndent(v, "", "  ")
	if e != nil {
		pFail("could not render result: %v", e)
	}
	fmt.Println(string(out))
}

func main() {
	var (
		host    = flag.String("host", "", "BMC host (required)")
		op      = flag.String("op", "ping", "operation: ping, fru, sel, raw, chassis-status, watch")
		conf    = flag.String("conf", "", "YAML config file")
		user    = flag.String("user", "", "username (overrides config)")
		pass    = flag.String("pass", "", "password (overrides config)")
		fruID   = flag.Int("fru", 0, "FRU device ID for -op fru")
		clear   = flag.Bool("clear", false, "clear the SEL after reading for -op sel")
		rawArg  = flag.String("data", "", "netfn,cmd[,hexdata] for -op raw, e.g. 0x06,0x01")
		timeout = flag.Duration("timeout", 5*time.Second, "ping timeout")
		level   = flag.Int("log", int(types.LLNOTICE), "log level (0-9)")
	)
	flag.BoolVar(&verbose, "v", false, "verbose output")
	flag.BoolVar(&quiet, "q", false, "no informational output")
	flag.Parse()

	if *host == "" {
		fmt.Println("a BMC host is required:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	lv := types.LoggerLevel(*level)
	if verbose {
		lv = types.LLDEBUG
	}
	logger := core.NewWriterLogger(os.Stderr, "ipmilan", lv)
	client := ipmi.NewClient(logger)

	if *op == "ping" {
		if client.Ping(*host, *timeout) {
			pInfo("%s speaks IPMI", *host)
			os.Exit(0)
		}
		pFail("%s is not an IPMI endpoint (or did not answer)", *host)
	}

	opts, e := loadConfig(*conf)
	if e != nil {
		pFail("bad configuration: %v", e)
	}
	if *user != "" {
		opts.SetUser(*user)
	}
	if *pass != "" {
		opts.SetPassword(*pass)
	}
	if e = opts.Err(); e != nil {
		pFail("bad configuration: %v", e)
	}

	handle, e := client.Open(*host, opts)
	if e != nil {
		pFail("could not open session with %s: %v", *host, e)
	}
	defer client.Close(handle)
	pInfo("session established with %s (%s)", *host, handle)

	switch *op {
	case "fru":
		info, e := client.ReadFRU(handle, uint8(*fruID))
		if e != nil {
			pFail("FRU read failed: %v", e)
		}
		if info == nil {
			pInfo("FRU device %d is not present", *fruID)
			return
		}
		printJSON(info)
	case "sel":
		entries, e := client.ReadSEL(handle, *clear)
		if e != nil {
			pFail("SEL read failed: %v", e)
		}
		pInfo("%d SEL entries", len(entries))
		printJSON(entries)
	case "raw":
		parts := strings.Split(*rawArg, ",")
		if len(parts) < 2 {
			pFail("-data wants netfn,cmd[,hexdata]")
		}
		netFn, e1 := strconv.ParseUint(parts[0], 0, 8)
		cmd, e2 := strconv.ParseUint(parts[1], 0, 8)
		if e1 != nil || e2 != nil {
			pFail("could not parse netfn/cmd from %q", *rawArg)
		}
		var data []byte
		if len(parts) > 2 {
			if data, e = hex.DecodeString(parts[2]); e != nil {
				pFail("bad hex data: %v", e)
			}
		}
		cc, rdata, e := client.Raw(handle, uint8(netFn), uint8(cmd), data)
		if e != nil {
			pFail("raw command failed: %v", e)
		}
		fmt.Printf("cc=%02x data=% x\n", cc, rdata)
	case "chassis-status":
		_, d, e := client.Raw(handle, ipmi.IPMIFnChassisReq, ipmi.IPMICmdChassisStatus, nil)
		if e != nil {
			pFail("chassis status failed: %v", e)
		}
		if len(d) < 3 {
			pFail("short chassis status response")
		}
		state := "POWER_OFF"
		if d[0]&0x01 != 0 {
			state = "POWER_ON"
		}
		fmt.Println(state)
		if d[0]&0x02 != 0 {
			pError("power overload")
		}
		if d[0]&0x04 != 0 {
			pError("interlock")
		}
		if d[0]&0x08 != 0 {
			pError("power fault")
		}
		if d[0]&0x10 != 0 {
			pError("power control fault")
		}
	case "watch":
		// stream session events until interrupted
		ec := make(chan types.Event, 16)
		if e := client.Subscribe("ipmilan-cli", types.Event_ALL, ec); e != nil {
			pFail("subscribe failed: %v", e)
		}
		defer client.Unsubscribe("ipmilan-cli")
		for ev := range ec {
			fmt.Printf("%s %s %+v\n", types.EventTypeString[ev.Type()], ev.URL(), ev.Data())
		}
	default:
		pFail("unknown operation: %s", *op)
	}
}
