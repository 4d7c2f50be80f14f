package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gitlab.com/lologarithm/riego/datalog"
	"gitlab.com/lologarithm/riego/rnet"
)

func testServer(t *testing.T) (*server, http.Handler) {
	t.Helper()
	c, _ := testController(t, &fixedSensor{temp: 21, humi: 55, ok: true})
	srv := newServer(c, map[string]userAccess{
		"reader": {Name: "reader", Pwd: "r", Access: AccessRead},
		"writer": {Name: "writer", Pwd: "w", Access: AccessWrite},
	})
	return srv, srv.routes()
}

func do(h http.Handler, method, target, remote string, setup func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = remote
	if setup != nil {
		setup(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

const (
	lanAddr    = "192.168.1.5:1234"
	publicAddr = "8.8.8.8:1234"
)

func TestAuth(t *testing.T) {
	_, h := testServer(t)

	if w := do(h, http.MethodGet, "/status", lanAddr, nil); w.Code != http.StatusOK {
		t.Errorf("lan status: %d", w.Code)
	}
	w := do(h, http.MethodGet, "/status", publicAddr, nil)
	if w.Code != http.StatusUnauthorized || w.Header().Get("WWW-Authenticate") == "" {
		t.Errorf("public without auth: %d", w.Code)
	}
	if w := do(h, http.MethodGet, "/status", publicAddr, func(r *http.Request) { r.SetBasicAuth("reader", "nope") }); w.Code != http.StatusUnauthorized {
		t.Errorf("bad password: %d", w.Code)
	}
	if w := do(h, http.MethodGet, "/status", publicAddr, func(r *http.Request) { r.SetBasicAuth("reader", "r") }); w.Code != http.StatusOK {
		t.Errorf("reader status: %d", w.Code)
	}
	if w := do(h, http.MethodPost, "/water?d=5s", publicAddr, func(r *http.Request) { r.SetBasicAuth("reader", "r") }); w.Code != http.StatusForbidden {
		t.Errorf("reader watering: %d", w.Code)
	}
	if w := do(h, http.MethodPost, "/stop", publicAddr, func(r *http.Request) { r.SetBasicAuth("writer", "w") }); w.Code != http.StatusNoContent {
		t.Errorf("writer stop: %d", w.Code)
	}
}

func TestAuthRealIP(t *testing.T) {
	srv, h := testServer(t)
	spoof := func(ip string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("X-Real-IP", ip) }
	}

	if w := do(h, http.MethodPost, "/water?d=10s", publicAddr, spoof("127.0.0.1")); w.Code != http.StatusUnauthorized {
		t.Errorf("public client claiming loopback: %d", w.Code)
	}
	if w := do(h, http.MethodPost, "/water?d=10s", publicAddr, spoof("192.168.1.5:80")); w.Code != http.StatusUnauthorized {
		t.Errorf("public client claiming lan: %d", w.Code)
	}
	select {
	case cmd := <-srv.c.commands:
		t.Fatalf("unauthenticated watering queued: %#v", cmd)
	default:
	}

	// Behind a local proxy the forwarded address decides.
	if w := do(h, http.MethodGet, "/status", "127.0.0.1:5555", spoof("8.8.4.4")); w.Code != http.StatusUnauthorized {
		t.Errorf("proxied public client: %d", w.Code)
	}
	if w := do(h, http.MethodGet, "/status", "127.0.0.1:5555", spoof("10.0.0.7")); w.Code != http.StatusOK {
		t.Errorf("proxied lan client: %d", w.Code)
	}
}

func TestWaterHandler(t *testing.T) {
	srv, h := testServer(t)

	for _, q := range []string{"", "?d=bad", "?d=-5s"} {
		if w := do(h, http.MethodPost, "/water"+q, lanAddr, nil); w.Code != http.StatusBadRequest {
			t.Errorf("water%s: %d", q, w.Code)
		}
	}
	if w := do(h, http.MethodPost, "/water?d=10s", lanAddr, nil); w.Code != http.StatusAccepted {
		t.Fatalf("water: %d %s", w.Code, w.Body.String())
	}
	// Nothing drains the queue without the loop running.
	if w := do(h, http.MethodPost, "/water?d=10s", lanAddr, nil); w.Code != http.StatusConflict {
		t.Errorf("second water: %d", w.Code)
	}
	select {
	case cmd := <-srv.c.commands:
		if cmd.Water != 10*time.Second {
			t.Errorf("queued %#v", cmd)
		}
	default:
		t.Error("nothing queued")
	}
}

func TestStatusStatsAndPage(t *testing.T) {
	srv, h := testServer(t)
	srv.c.tick(context.Background())

	w := do(h, http.MethodGet, "/status", lanAddr, nil)
	var st struct {
		Name     string
		SensorOK bool
	}
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Name != "riego" || !st.SensorOK {
		t.Errorf("status %#v", st)
	}

	w = do(h, http.MethodGet, "/stats?since=1h", lanAddr, nil)
	var recs []datalog.Record
	if err := json.NewDecoder(w.Body).Decode(&recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Kind != datalog.KindReading {
		t.Errorf("stats %#v", recs)
	}
	if w := do(h, http.MethodGet, "/stats?since=yesterday", lanAddr, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad since: %d", w.Code)
	}

	w = do(h, http.MethodGet, "/metrics", lanAddr, nil)
	if body := w.Body.String(); !strings.Contains(body, "riego_pump_on") || !strings.Contains(body, "riego_humidity_percent 55") {
		t.Errorf("metrics missing values:\n%s", body)
	}

	w = do(h, http.MethodGet, "/", lanAddr, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "riego") {
		t.Errorf("index: %d", w.Code)
	}
}

func TestStream(t *testing.T) {
	srv, h := testServer(t)
	ts := httptest.NewServer(h)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg rnet.Msg
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Status == nil || msg.Status.Name != "riego" {
		t.Fatalf("first message should be status, got %#v", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"Water":"1s"}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case cmd := <-srv.c.commands:
		if cmd.Water != time.Second {
			t.Errorf("queued %#v", cmd)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("websocket command never queued")
	}

	srv.c.publish(srv.c.Status())
	msg = rnet.Msg{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Status == nil {
		t.Errorf("expected broadcast status, got %#v", msg)
	}
}
