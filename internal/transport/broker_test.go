package transport

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

// fakeBroker is a minimal STOMP server on a real WebSocket, enough to
// drive the client through its whole lifecycle
type fakeBroker struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	heartBeat string // heart-beat header sent in CONNECTED
	reject    string // when set, CONNECT is answered with ERROR
	current   *websocket.Conn
	all       []*websocket.Conn
	writeMu   sync.Mutex
	messageID int

	connects    atomic.Int32
	heartbeats  atomic.Int32
	subscribed  chan string
	disconnects chan struct{}
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	b := newBroker(t)
	b.srv = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.close)
	return b
}

// newFakeTLSBroker serves wss:// with the httptest self-signed certificate
func newFakeTLSBroker(t *testing.T) *fakeBroker {
	t.Helper()
	b := newBroker(t)
	b.srv = httptest.NewTLSServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.close)
	return b
}

func newBroker(t *testing.T) *fakeBroker {
	return &fakeBroker{
		t:           t,
		heartBeat:   "0,0",
		upgrader:    websocket.Upgrader{Subprotocols: []string{"v12.stomp"}},
		subscribed:  make(chan string, 16),
		disconnects: make(chan struct{}, 16),
	}
}

func (b *fakeBroker) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws-red-alert/websocket"
}

func (b *fakeBroker) setReject(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reject = msg
}

func (b *fakeBroker) setHeartBeat(v string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.heartBeat = v
}

func (b *fakeBroker) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	b.connects.Add(1)

	b.mu.Lock()
	b.all = append(b.all, ws)
	reject, heartBeat := b.reject, b.heartBeat
	b.mu.Unlock()

	connect, err := readTestFrame(ws)
	if err != nil || connect == nil || connect.Command != cmdConnect {
		ws.Close()
		return
	}
	if reject != "" {
		b.writeFrame(ws, frame.New(cmdError, hdrMessage, reject))
		ws.Close()
		return
	}
	b.writeFrame(ws, frame.New(cmdConnected, hdrVersion, "1.2", hdrHeartBeat, heartBeat))

	b.mu.Lock()
	b.current = ws
	b.mu.Unlock()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if len(bytes.Trim(data, "\r\n")) == 0 {
			b.heartbeats.Add(1)
			continue
		}
		f, err := frame.NewReader(bytes.NewReader(data)).Read()
		if err != nil || f == nil {
			continue
		}
		switch f.Command {
		case cmdSubscribe:
			b.subscribed <- f.Header.Get(hdrDestination)
		case cmdDisconnect:
			b.disconnects <- struct{}{}
		}
	}
}

// publish pushes a MESSAGE frame with the given body to the live connection
func (b *fakeBroker) publish(body string) {
	b.t.Helper()
	b.mu.Lock()
	ws := b.current
	b.messageID++
	id := strconv.Itoa(b.messageID)
	b.mu.Unlock()
	if ws == nil {
		b.t.Fatal("publish with no live connection")
	}
	f := frame.New(cmdMessage,
		hdrDestination, "/topic/alerts",
		"subscription", "sub-0",
		"message-id", id,
		"content-type", "application/json",
	)
	f.Body = []byte(body)
	b.writeFrame(ws, f)
}

// sendError pushes an ERROR frame on the live connection
func (b *fakeBroker) sendError(msg string) {
	b.mu.Lock()
	ws := b.current
	b.mu.Unlock()
	b.writeFrame(ws, frame.New(cmdError, hdrMessage, msg))
}

// drop closes the live socket without a close handshake
func (b *fakeBroker) drop() {
	b.mu.Lock()
	ws := b.current
	b.current = nil
	b.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
}

func (b *fakeBroker) writeFrame(ws *websocket.Conn, f *frame.Frame) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		b.t.Errorf("encode frame: %v", err)
		return
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = ws.WriteMessage(websocket.TextMessage, buf.Bytes())
}

func (b *fakeBroker) close() {
	b.mu.Lock()
	for _, ws := range b.all {
		ws.Close()
	}
	b.mu.Unlock()
	b.srv.Close()
}

func readTestFrame(ws *websocket.Conn) (*frame.Frame, error) {
	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return frame.NewReader(bytes.NewReader(data)).Read()
}
