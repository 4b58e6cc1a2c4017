package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/redalert/redalert/internal/overlay"
	"github.com/redalert/redalert/internal/session"
	"github.com/redalert/redalert/internal/transport"
	"github.com/redalert/redalert/internal/types"
	"github.com/redalert/redalert/internal/webui"
)

type stubSession struct {
	mu         sync.Mutex
	snap       session.Snapshot
	reconnects int
}

func (s *stubSession) Snapshot() session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubSession) Reconnect() {
	s.mu.Lock()
	s.reconnects++
	s.mu.Unlock()
}

func (s *stubSession) Acknowledge(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Alert == nil || s.snap.Seq != seq {
		return false
	}
	s.snap.Alert = nil
	return true
}

func (s *stubSession) replace(a *types.Alert, seq uint64) {
	s.mu.Lock()
	s.snap.Alert, s.snap.Seq = a, seq
	s.mu.Unlock()
}

type stubOpener struct {
	mu     sync.Mutex
	opened []string
	err    error
}

func (o *stubOpener) Open(url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, url)
	return o.err
}

func (o *stubOpener) setErr(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

func (o *stubOpener) first() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.opened) == 0 {
		return ""
	}
	return o.opened[0]
}

func (s *stubSession) reconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

func strPtr(s string) *string { return &s }

func newTestServer(t *testing.T, snap session.Snapshot) (*httptest.Server, *stubSession, *stubOpener) {
	t.Helper()
	sess := &stubSession{snap: snap}
	op := &stubOpener{}
	p := overlay.NewPresenter(sess, op, zerolog.Nop())
	health := func() transport.Health {
		return transport.Health{State: snap.Status, URL: "ws://localhost:8081/ws-red-alert/websocket", ReconnectCount: 2}
	}
	s := NewServer(sess, p, health, zerolog.Nop(), "127.0.0.1:0")
	s.SetVersion("1.2.3", "abc123", "2026-01-01")

	lb := webui.NewLogBuffer(10)
	zerolog.New(lb).Warn().Msg("Alert stream connection lost, will retry")
	s.SetLogBuffer(lb)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, sess, op
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func post(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestHealthAndStatus(t *testing.T) {
	srv, _, _ := newTestServer(t, session.Snapshot{Status: types.Connected})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if body := decode(t, resp); body["status"] != "healthy" {
		t.Fatalf("health = %v", body)
	}

	resp, err = http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	if body["status_text"] != "Monitoring Red-Alert System" || body["version"] != "1.2.3" || body["alert_active"] != false {
		t.Fatalf("status = %v", body)
	}
	conn, _ := body["connection"].(map[string]any)
	if conn["state"] != "connected" || conn["reconnect_count"] != float64(2) {
		t.Fatalf("connection = %v", conn)
	}
}

func TestAlertView(t *testing.T) {
	a := &types.Alert{Title: "Aula X", Date: "2024-01-01T10:00:00", URL: strPtr("https://x"), IsUrgent: true}
	srv, _, _ := newTestServer(t, session.Snapshot{Alert: a, Seq: 4, Status: types.Connected})

	resp, err := http.Get(srv.URL + "/alert")
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	alert, _ := body["alert"].(map[string]any)
	if alert["title"] != "Aula X" || body["display_date"] != "01/01/2024 10:00" || body["status"] != "connected" || body["seq"] != float64(4) {
		t.Fatalf("alert view = %v", body)
	}
	actions, _ := body["actions"].([]any)
	if len(actions) != 3 {
		t.Fatalf("actions = %v", actions)
	}
	cal := actions[1].(map[string]any)
	if cal["kind"] != "calendar" || cal["enabled"] != false {
		t.Fatalf("calendar action = %v", cal)
	}
}

func TestAlertViewEmpty(t *testing.T) {
	srv, _, _ := newTestServer(t, session.Snapshot{Status: types.Error})
	resp, err := http.Get(srv.URL + "/alert")
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	if body["alert"] != nil || body["status_text"] != "Connection error - retrying" {
		t.Fatalf("view = %v", body)
	}
}

func TestActions(t *testing.T) {
	full := func() *types.Alert {
		return &types.Alert{Title: "T", Date: "d", URL: strPtr("https://meet"), CalendarLink: strPtr("https://cal")}
	}
	bare := func() *types.Alert { return &types.Alert{Title: "T", Date: "d"} }

	tests := []struct {
		name      string
		alert     *types.Alert
		action    string
		code      int
		cleared   bool
		opened    string
		openerErr error
	}{
		{"join", full(), "join?seq=5", http.StatusOK, true, "https://meet", nil},
		{"calendar keeps alert", full(), "calendar?seq=5", http.StatusOK, false, "https://cal", nil},
		{"dismiss", bare(), "dismiss?seq=5", http.StatusOK, true, "", nil},
		{"join without url", bare(), "join?seq=5", http.StatusConflict, false, "", nil},
		{"calendar without link", bare(), "calendar?seq=5", http.StatusConflict, false, "", nil},
		{"no alert", nil, "dismiss?seq=5", http.StatusNotFound, false, "", nil},
		{"unknown action", full(), "snooze?seq=5", http.StatusNotFound, false, "", nil},
		{"missing seq", full(), "dismiss", http.StatusBadRequest, false, "", nil},
		{"stale seq", full(), "join?seq=4", http.StatusConflict, false, "", nil},
		{"opener fails still clears", full(), "join?seq=5", http.StatusBadGateway, true, "https://meet", errors.New("no browser")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, sess, op := newTestServer(t, session.Snapshot{Alert: tt.alert, Seq: 5})
			op.setErr(tt.openerErr)

			resp := post(t, srv.URL+"/alert/"+tt.action)
			resp.Body.Close()
			if resp.StatusCode != tt.code {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.code)
			}
			cleared := tt.alert != nil && sess.Snapshot().Alert == nil
			if cleared != tt.cleared {
				t.Errorf("cleared = %v, want %v", cleared, tt.cleared)
			}
			if opened := op.first(); opened != tt.opened {
				t.Errorf("opened %q, want %q", opened, tt.opened)
			}
		})
	}
}

func TestActionOnReplacedAlertKeepsNewer(t *testing.T) {
	a := &types.Alert{Title: "A", Date: "d", URL: strPtr("https://meet/a")}
	srv, sess, op := newTestServer(t, session.Snapshot{Alert: a, Seq: 1})

	// the page rendered A, then B took the slot before the click landed
	b := &types.Alert{Title: "B", Date: "d"}
	sess.replace(b, 2)

	for _, action := range []string{"dismiss", "join"} {
		resp := post(t, srv.URL+"/alert/"+action+"?seq=1")
		body := decode(t, resp)
		if resp.StatusCode != http.StatusConflict || body["success"] != false {
			t.Fatalf("%s: status = %d, body = %v", action, resp.StatusCode, body)
		}
	}
	if got := sess.Snapshot(); got.Alert == nil || got.Alert.Title != "B" {
		t.Fatalf("newer alert lost: %+v", got.Alert)
	}
	if opened := op.first(); opened != "" {
		t.Fatalf("opened %q for a replaced alert", opened)
	}

	resp := post(t, srv.URL+"/alert/dismiss?seq=2")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || sess.Snapshot().Alert != nil {
		t.Fatalf("dismiss of the shown alert: status %d", resp.StatusCode)
	}
}

func TestActionRequiresPost(t *testing.T) {
	srv, _, _ := newTestServer(t, session.Snapshot{})
	resp, err := http.Get(srv.URL + "/alert/dismiss")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestReconnect(t *testing.T) {
	srv, sess, _ := newTestServer(t, session.Snapshot{})
	resp := post(t, srv.URL+"/api/reconnect")
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || sess.reconnectCount() != 1 {
		t.Fatalf("status %d, reconnects %d", resp.StatusCode, sess.reconnectCount())
	}
}

func TestLogsAPI(t *testing.T) {
	srv, _, _ := newTestServer(t, session.Snapshot{})

	resp, err := http.Get(srv.URL + "/api/logs?level=warn&limit=5")
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	if body["count"] != float64(1) {
		t.Fatalf("logs = %v", body)
	}

	for _, q := range []string{"?limit=abc", "?limit=0", "?level=loud"} {
		resp, err := http.Get(srv.URL + "/api/logs" + q)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status %d", q, resp.StatusCode)
		}
	}
}

func TestCueAndPage(t *testing.T) {
	srv, _, _ := newTestServer(t, session.Snapshot{Status: types.Connecting})

	resp, err := http.Get(srv.URL + "/cue.wav")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	resp.Body.Close()
	if resp.Header.Get("Content-Type") != "audio/wav" || !bytes.HasPrefix(buf.Bytes(), []byte("RIFF")) {
		t.Fatalf("cue: %s, %d bytes", resp.Header.Get("Content-Type"), buf.Len())
	}

	resp, err = http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	buf.ReadFrom(resp.Body)
	resp.Body.Close()
	page := buf.String()
	for _, want := range []string{"Connecting to Red-Alert System", "1.2.3", "Alert stream connection lost", "data.seq !== shown", "'?seq=' + shown"} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}

	resp, err = http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown path status %d", resp.StatusCode)
	}
}

// idleSource is a transport that never delivers on its own
type idleSource struct{}

func (idleSource) State() types.ConnectionState { return types.Connected }

func (idleSource) OnStateChange(func(types.ConnectionState)) func() { return func() {} }

func (idleSource) OnAlert(func(types.Alert)) func() { return func() {} }

func (idleSource) Connect() {}

func (idleSource) Disconnect() {}

func TestRepeatedAlertGetsNewSeq(t *testing.T) {
	sess := session.New(idleSource{}, nil, zerolog.Nop())
	t.Cleanup(sess.Close)
	p := overlay.NewPresenter(sess, &stubOpener{}, zerolog.Nop())
	srv := httptest.NewServer(NewServer(sess, p, func() transport.Health { return transport.Health{} }, zerolog.Nop(), "127.0.0.1:0").Handler())
	t.Cleanup(srv.Close)

	seqOf := func() float64 {
		t.Helper()
		resp, err := http.Get(srv.URL + "/alert")
		if err != nil {
			t.Fatal(err)
		}
		seq, _ := decode(t, resp)["seq"].(float64)
		return seq
	}

	a := types.Alert{Title: "same", Date: "2024-01-01T10:00:00Z"}
	sess.Receive(a)
	first := seqOf()
	sess.Receive(a)
	second := seqOf()
	if first == 0 || second == first {
		t.Fatalf("seq = %v then %v; an identical repeat must be a new alert", first, second)
	}
}
