/* ipmiapi.go: this api exposes the ipmilan client over ReST + websocket
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
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/kraken-hpc/ipmilan/core"
	"github.com/kraken-hpc/ipmilan/lib/ipmi"
	"github.com/kraken-hpc/ipmilan/lib/types"
)

var log = logrus.New()

// APIConfig is the YAML-side configuration of the daemon
type APIConfig struct {
	Addr      string `yaml:"addr"`
	Port      uint   `yaml:"port"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Privilege string `yaml:"privilege"`
	TimeoutMS int    `yaml:"timeout"`
}

type api struct {
	cfg    *APIConfig
	client *ipmi.Client
	hub    *hub
}

/*
 * Websocket hub; events fan out to every connected socket
 */

// Payload is one event as it goes over the wire
type Payload struct {
	Type string      `json:"type"`
	URL  string      `json:"url"`
	Data interface{} `json:"data"`
}

type hub struct {
	clients    map[*wsClient]bool
	broadcast  chan *Payload
	register   chan *wsClient
	unregister chan *wsClient
}

type wsClient struct {
	conn *websocket.Conn
	send chan *Payload
}

func newHub() *hub {
	return &hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan *Payload, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			log.WithField("clients", len(h.clients)).Debug("websocket client registered")
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case p := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- p:
				default: // slow consumer; drop it
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

func (c *wsClient) writePump(h *hub) {
	defer c.conn.Close()
	for p := range c.send {
		if e := c.conn.WriteJSON(p); e != nil {
			h.unregister <- c
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

/*
 * Handlers
 */

func (a *api) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (a *api) writeError(w http.ResponseWriter, code int, e error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": e.Error()})
}

func (a *api) ping(w http.ResponseWriter, r *http.Request) {
	host := mux.Vars(r)["host"]
	reachable := a.client.Ping(host, 5*time.Second)
	a.writeJSON(w, map[string]interface{}{"host": host, "reachable": reachable})
}

type openRequest struct {
	User      string `json:"user"`
	Password  string `json:"password"`
	Privilege string `json:"privilege"`
}

func (a *api) open(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	host := mux.Vars(r)["host"]
	opts := ipmi.NewOptions()
	if a.cfg.User != "" {
		opts.SetUser(a.cfg.User)
	}
	if a.cfg.Password != "" {
		opts.SetPassword(a.cfg.Password)
	}
	if a.cfg.Privilege != "" {
		opts.SetPrivilege(a.cfg.Privilege)
	}
	if a.cfg.TimeoutMS != 0 {
		opts.SetTimeout(time.Duration(a.cfg.TimeoutMS) * time.Millisecond)
	}
	or := &openRequest{}
	if e := json.NewDecoder(r.Body).Decode(or); e == nil {
		if or.User != "" {
			opts.SetUser(or.User)
		}
		if or.Password != "" {
			opts.SetPassword(or.Password)
		}
		if or.Privilege != "" {
			opts.SetPrivilege(or.Privilege)
		}
	}
	if e := opts.Err(); e != nil {
		a.writeError(w, http.StatusBadRequest, e)
		return
	}
	handle, e := a.client.Open(host, opts)
	if e != nil {
		a.writeError(w, http.StatusBadGateway, e)
		return
	}
	log.WithFields(logrus.Fields{"host": host, "handle": handle.String()}).Info("session opened")
	a.writeJSON(w, map[string]string{"handle": handle.String(), "target": host})
}

func (a *api) handleOf(r *http.Request) *core.SessionID {
	return core.SessionIDFromString(mux.Vars(r)["tag"])
}

func (a *api) close(w http.ResponseWriter, r *http.Request) {
	handle := a.handleOf(r)
	if e := a.client.Close(handle); e != nil {
		a.writeError(w, http.StatusNotFound, e)
		return
	}
	log.WithField("handle", handle.String()).Info("session closed")
	a.writeJSON(w, map[string]string{"closed": handle.String()})
}

func (a *api) fru(w http.ResponseWriter, r *http.Request) {
	handle := a.handleOf(r)
	id, e := strconv.ParseUint(mux.Vars(r)["id"], 0, 8)
	if e != nil {
		a.writeError(w, http.StatusBadRequest, e)
		return
	}
	info, e := a.client.ReadFRU(handle, uint8(id))
	if e != nil {
		a.writeError(w, http.StatusBadGateway, e)
		return
	}
	if info == nil {
		a.writeError(w, http.StatusNotFound, fmt.Errorf("no FRU device %d", id))
		return
	}
	a.writeJSON(w, info)
}

func (a *api) sel(w http.ResponseWriter, r *http.Request) {
	handle := a.handleOf(r)
	clear := r.URL.Query().Get("clear") == "true"
	entries, e := a.client.ReadSEL(handle, clear)
	if e != nil {
		a.writeError(w, http.StatusBadGateway, e)
		return
	}
	a.writeJSON(w, entries)
}

type rawRequest struct {
	NetFn uint8  `json:"netfn"`
	Cmd   uint8  `json:"cmd"`
	Data  string `json:"data"` // hex
}

func (a *api) raw(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	handle := a.handleOf(r)
	rr := &rawRequest{}
	if e := json.NewDecoder(r.Body).Decode(rr); e != nil {
		a.writeError(w, http.StatusBadRequest, e)
		return
	}
	data, e := hex.DecodeString(rr.Data)
	if e != nil {
		a.writeError(w, http.StatusBadRequest, e)
		return
	}
	cc, rdata, e := a.client.Raw(handle, rr.NetFn, rr.Cmd, data)
	if e != nil {
		a.writeError(w, http.StatusBadGateway, e)
		return
	}
	a.writeJSON(w, map[string]interface{}{"cc": cc, "data": hex.EncodeToString(rdata)})
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, a.client.Stats())
}

func (a *api) ws(w http.ResponseWriter, r *http.Request) {
	conn, e := upgrader.Upgrade(w, r, nil)
	if e != nil {
		log.WithError(e).Error("websocket upgrade failed")
		return
	}
	c := &wsClient{conn: conn, send: make(chan *Payload, 64)}
	a.hub.register <- c
	go c.writePump(a.hub)
}

func main() {
	var (
		conf       = flag.String("conf", "", "YAML config file")
		listenIP   = flag.String("ip", "127.0.0.1", "ip to listen on")
		listenPort = flag.Uint("port", 8264, "port to listen on")
		debug      = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg := &APIConfig{Addr: *listenIP, Port: *listenPort}
	if *conf != "" {
		data, e := ioutil.ReadFile(*conf)
		if e != nil {
			log.WithError(e).Fatal("could not read config")
		}
		if e := yaml.UnmarshalStrict(data, cfg); e != nil {
			log.WithError(e).Fatal("could not parse config")
		}
	}

	a := &api{
		cfg:    cfg,
		client: ipmi.NewClient(nil),
		hub:    newHub(),
	}
	go a.hub.run()

	// every library event goes to the websocket fan-out
	ec := make(chan types.Event, 64)
	if e := a.client.Subscribe("ipmiapi", types.Event_ALL, ec); e != nil {
		log.WithError(e).Fatal("could not subscribe to events")
	}
	go func() {
		for ev := range ec {
			a.hub.broadcast <- &Payload{
				Type: types.EventTypeString[ev.Type()],
				URL:  ev.URL(),
				Data: ev.Data(),
			}
		}
	}()

	router := mux.NewRouter()
	router.HandleFunc("/ping/{host}", a.ping).Methods("GET")
	router.HandleFunc("/session/{host}", a.open).Methods("POST")
	router.HandleFunc("/session/{tag}", a.close).Methods("DELETE")
	router.HandleFunc("/session/{tag}/fru/{id}", a.fru).Methods("GET")
	router.HandleFunc("/session/{tag}/sel", a.sel).Methods("GET")
	router.HandleFunc("/session/{tag}/raw", a.raw).Methods("POST")
	router.HandleFunc("/stats", a.stats).Methods("GET")
	router.HandleFunc("/ws", a.ws).Methods("GET")

	srv := &http.Server{
		Handler: handlers.CORS(
			handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"}),
			handlers.AllowedOrigins([]string{"*"}),
			handlers.AllowedMethods([]string{"GET", "POST", "DELETE"}),
		)(router),
		Addr:         fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port),
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	log.WithField("addr", srv.Addr).Info("starting ipmiapi")
	daemon.SdNotify(false, daemon.SdNotifyReady)
	if e := srv.ListenAndServe(); e != nil {
		log.WithError(e).Error("http service stopped")
		os.Exit(1)
	}
}
