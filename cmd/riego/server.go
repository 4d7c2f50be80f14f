package main

import (
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"gitlab.com/lologarithm/riego/rnet"
)

type userAccess struct {
	Name   string
	Pwd    string
	Access int
}

// Access levels
const (
	AccessNone  int = 0
	AccessRead      = 1
	AccessWrite     = 2
)

type server struct {
	c     *controller
	users map[string]userAccess
	page  *template.Template

	clientslock   sync.Mutex
	clientStreams []*websocket.Conn
}

func newServer(c *controller, users map[string]userAccess) *server {
	srv := &server{
		c:     c,
		users: users,
		page:  template.Must(template.New("index").Parse(page)),
	}
	c.push = srv.broadcast
	return srv
}

func (srv *server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", srv.require(AccessRead, srv.index)).Methods(http.MethodGet)
	r.HandleFunc("/status", srv.require(AccessRead, srv.statusHandler)).Methods(http.MethodGet)
	r.HandleFunc("/stats", srv.require(AccessRead, srv.stats)).Methods(http.MethodGet)
	r.HandleFunc("/water", srv.require(AccessWrite, srv.water)).Methods(http.MethodPost)
	r.HandleFunc("/stop", srv.require(AccessWrite, srv.stop)).Methods(http.MethodPost)
	r.HandleFunc("/stream", srv.clientStreamHandler)
	r.Handle("/metrics", srv.c.metrics.handler())
	return handlers.LoggingHandler(log.Writer(), r)
}

// serve starts the http listener in the background.
func (srv *server) serve(host string) *http.Server {
	hs := &http.Server{Addr: host, Handler: srv.routes(), ReadHeaderTimeout: 10 * time.Second}
	log.Printf("starting webhost on: %s", host)
	go func() {
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()
	return hs
}

func (srv *server) index(w http.ResponseWriter, r *http.Request) {
	if err := srv.page.Execute(w, srv.c.Status()); err != nil {
		log.Printf("[Error] Failed to render page: %s", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Error] Failed to write response: %s", err)
	}
}

func (srv *server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, srv.c.Status())
}

// stats returns logged records since ?since= (RFC3339 time or a duration back from now, default 24h).
func (srv *server) stats(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			since = time.Now().Add(-d)
		} else if t, err := time.Parse(time.RFC3339, v); err == nil {
			since = t
		} else {
			http.Error(w, "since must be a duration or RFC3339 time", http.StatusBadRequest)
			return
		}
	}
	recs, err := srv.c.store.Load(since)
	if err != nil {
		log.Printf("[Error] Failed to load stats: %s", err)
		http.Error(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (srv *server) water(w http.ResponseWriter, r *http.Request) {
	d, err := time.ParseDuration(r.URL.Query().Get("d"))
	if err != nil || d <= 0 {
		http.Error(w, "d must be a positive duration like 30s", http.StatusBadRequest)
		return
	}
	if err := srv.c.submit(rnet.Command{Water: d}); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, rnet.Command{Water: d})
}

func (srv *server) stop(w http.ResponseWriter, r *http.Request) {
	if err := srv.c.submit(rnet.Command{Stop: true}); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// require wraps h so that only users with at least level get through.
func (srv *server) require(level int, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		access := srv.auth(w, r)
		if access == AccessNone {
			return
		}
		if access < level {
			http.Error(w, "NO ACCESS.", http.StatusForbidden)
			return
		}
		h(w, r)
	}
}

// remoteIP is the client address. X-Real-IP is only honoured from a local reverse proxy.
func remoteIP(r *http.Request) string {
	host := hostOf(r.RemoteAddr)
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		if paddr := r.Header.Get("X-Real-IP"); paddr != "" {
			return hostOf(paddr)
		}
	}
	return host
}

func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func lan(r *http.Request) bool {
	ip := net.ParseIP(remoteIP(r))
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

// auth allows intra-net access without auth, everyone else needs basic auth.
// Writes the 401 itself and returns AccessNone on failure.
func (srv *server) auth(w http.ResponseWriter, r *http.Request) int {
	if lan(r) {
		return AccessWrite
	}
	log.Printf("Unauthed User: %s", r.RemoteAddr)
	name, pwd, _ := r.BasicAuth()
	user, ok := srv.users[name]
	if !ok || user.Pwd != pwd || user.Access == AccessNone {
		w.Header().Set("WWW-Authenticate", `Basic realm="Riego"`)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("NO ACCESS."))
		return AccessNone
	}
	return user.Access
}

// broadcast pushes msg to all connected websockets, dropping any that are dead.
func (srv *server) broadcast(msg rnet.Msg) {
	d, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[Error] Failed to marshal update to json: %s", err)
		return
	}
	deadstreams := []int{}
	srv.clientslock.Lock()
	defer srv.clientslock.Unlock()
	for i, cs := range srv.clientStreams {
		if err := cs.WriteMessage(websocket.TextMessage, d); err != nil {
			deadstreams = append(deadstreams, i)
		}
	}
	// remove dead streams now
	for i := len(deadstreams) - 1; i > -1; i-- {
		idx := deadstreams[i]
		srv.clientStreams[idx].Close()
		srv.clientStreams = append(srv.clientStreams[:idx], srv.clientStreams[idx+1:]...)
	}
}
