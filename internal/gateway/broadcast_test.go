package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// envelope is the parsed WS message structure.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	TS   string          `json:"ts"`
	Seq  int64           `json:"seq"`
}

// recorder is an in-memory Subscriber.
type recorder struct {
	mu   sync.Mutex
	msgs [][]byte
	fail bool
}

func (r *recorder) Send(msg []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broken pipe")
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

// TestBroadcastEnvelopeFormat verifies {"type":"signal","data":...,"ts":"...","seq":N}.
func TestBroadcastEnvelopeFormat(t *testing.T) {
	data := []byte(`{"signal":"BUY","price":84.37,"stop_loss":83.1,"chart_data":{"15m":[{"time":1,"value":2}]}}`)
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)

	buf := buildEnvelope("signal", data, now, 42)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	if env.Type != "signal" {
		t.Errorf("type: got %q", env.Type)
	}
	if env.Seq != 42 {
		t.Errorf("seq: got %d, want 42", env.Seq)
	}
	if string(env.Data) != string(data) {
		t.Errorf("data not embedded verbatim: %s", env.Data)
	}
	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	if err != nil || !parsed.Equal(now) {
		t.Errorf("ts: got %q (%v)", env.TS, err)
	}
}

// A failing subscriber is removed without affecting the others.
func TestBroadcast_FailingSubscriberRemoved(t *testing.T) {
	hub := NewHub(16)
	b := NewBroadcaster(hub)
	removed := 0
	b.OnRemove = func() { removed++ }

	s1, s2, s3 := &recorder{}, &recorder{fail: true}, &recorder{}
	hub.Subscribe(s1)
	hub.Subscribe(s2)
	hub.Subscribe(s3)

	if n := b.Broadcast([]byte(`{"signal":"HOLD"}`), time.Time{}); n != 2 {
		t.Errorf("delivered: got %d, want 2", n)
	}
	if s1.count() != 1 || s3.count() != 1 {
		t.Errorf("healthy subscribers: got %d and %d messages, want 1 each", s1.count(), s3.count())
	}
	if hub.Has(s2) {
		t.Error("failing subscriber still in active set")
	}
	if hub.Count() != 2 || removed != 1 {
		t.Errorf("count=%d removed=%d, want 2 and 1", hub.Count(), removed)
	}

	// Next broadcast reaches only the remaining two.
	b.Broadcast([]byte(`{"signal":"HOLD"}`), time.Time{})
	if s1.count() != 2 || s3.count() != 2 {
		t.Errorf("second broadcast: got %d and %d", s1.count(), s3.count())
	}
}

func TestBroadcast_SeqAndLatest(t *testing.T) {
	hub := NewHub(16)
	b := NewBroadcaster(hub)
	if hub.Latest() != nil {
		t.Fatal("latest should be nil before first broadcast")
	}

	for i := int64(1); i <= 5; i++ {
		b.Broadcast([]byte(`{}`), time.Now().Add(-time.Millisecond))
		var env envelope
		if err := json.Unmarshal(hub.Latest(), &env); err != nil {
			t.Fatal(err)
		}
		if env.Seq != i {
			t.Errorf("seq: got %d, want %d", env.Seq, i)
		}
	}
	if hub.Latency.Stats().Count != 5 {
		t.Errorf("latency samples: got %d", hub.Latency.Stats().Count)
	}

	// Late subscriber gets the latest envelope on join.
	late := &recorder{}
	hub.Subscribe(late)
	if late.count() != 1 {
		t.Fatalf("late subscriber: got %d messages, want 1", late.count())
	}
}

func TestHub_UnsubscribeIdempotent(t *testing.T) {
	hub := NewHub(4)
	counts := []int{}
	hub.OnCountChange = func(n int) { counts = append(counts, n) }

	s := &recorder{}
	hub.Subscribe(s)
	hub.Unsubscribe(s)
	hub.Unsubscribe(s)

	if len(counts) != 2 || counts[0] != 1 || counts[1] != 0 {
		t.Errorf("count changes: got %v, want [1 0]", counts)
	}
}

func TestClient_SendAfterClose(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}
	if err := c.Send([]byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := c.Send([]byte("b")); !errors.Is(err, errSendFull) {
		t.Errorf("full buffer: got %v", err)
	}
	c.close()
	c.close()
	if err := c.Send([]byte("c")); !errors.Is(err, errClientClosed) {
		t.Errorf("closed client: got %v", err)
	}
}

func dialHub(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("bad envelope %s: %v", msg, err)
	}
	return env
}

func waitForCount(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber count: got %d, want %d", hub.Count(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_WebSocketEndToEnd(t *testing.T) {
	hub := NewHub(16)
	b := NewBroadcaster(hub)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	b.Broadcast([]byte(`{"n":1}`), time.Time{})
	b.Broadcast([]byte(`{"n":2}`), time.Time{})

	// Fresh client: latest envelope only.
	c1 := dialHub(t, srv, "/ws")
	defer c1.Close()
	if env := readEnvelope(t, c1); env.Seq != 2 {
		t.Errorf("initial envelope seq: got %d, want 2", env.Seq)
	}

	// Reconnecting client: everything after its last seq.
	c2 := dialHub(t, srv, "/ws?last_seq=0")
	defer c2.Close()
	if env := readEnvelope(t, c2); env.Seq != 1 {
		t.Errorf("replay first seq: got %d, want 1", env.Seq)
	}
	if env := readEnvelope(t, c2); env.Seq != 2 {
		t.Errorf("replay second seq: got %d, want 2", env.Seq)
	}
	waitForCount(t, hub, 2)

	b.Broadcast([]byte(`{"n":3}`), time.Time{})
	for _, c := range []*websocket.Conn{c1, c2} {
		env := readEnvelope(t, c)
		if env.Seq != 3 || string(env.Data) != `{"n":3}` {
			t.Errorf("live envelope: got seq=%d data=%s", env.Seq, env.Data)
		}
	}

	c1.Close()
	waitForCount(t, hub, 1)
}

func TestHub_OriginAllowlist(t *testing.T) {
	hub := NewHub(4, "http://localhost:3000")
	srv := httptest.NewServer(hub)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://localhost:3000"}})
	if err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
	conn.Close()

	conn, _, err = websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("no origin header: %v", err)
	}
	conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	if err == nil {
		t.Fatal("foreign origin was upgraded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("foreign origin: got %v, want 403", resp)
	}
}

func TestAllowOrigins(t *testing.T) {
	tests := []struct {
		origins []string
		origin  string
		want    bool
	}{
		{nil, "http://evil.example", true},
		{[]string{"*"}, "http://evil.example", true},
		{[]string{"http://a.example"}, "http://a.example", true},
		{[]string{"http://a.example"}, "http://b.example", false},
		{[]string{"http://a.example"}, "", true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := allowOrigins(tt.origins)(r); got != tt.want {
			t.Errorf("allowOrigins(%v)(%q) = %v, want %v", tt.origins, tt.origin, got, tt.want)
		}
	}
}
