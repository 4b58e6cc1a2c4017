package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

// STOMP 1.2 commands and headers used by the client
const (
	cmdConnect     = "CONNECT"
	cmdConnected   = "CONNECTED"
	cmdSubscribe   = "SUBSCRIBE"
	cmdDisconnect  = "DISCONNECT"
	cmdMessage     = "MESSAGE"
	cmdError       = "ERROR"
	cmdReceipt     = "RECEIPT"
	hdrAccept      = "accept-version"
	hdrHost        = "host"
	hdrLogin       = "login"
	hdrPasscode    = "passcode"
	hdrHeartBeat   = "heart-beat"
	hdrDestination = "destination"
	hdrID          = "id"
	hdrAck         = "ack"
	hdrMessage     = "message"
	hdrVersion     = "version"
)

const (
	writeTimeout   = 5 * time.Second
	goodbyeTimeout = time.Second
)

// ErrHeartbeatTimeout is reported when the server goes silent for longer
// than twice the negotiated incoming heartbeat
var ErrHeartbeatTimeout = errors.New("heartbeat timeout")

// ProtocolError carries a STOMP ERROR frame or an unexpected handshake reply
type ProtocolError struct {
	Message string
	Body    string
}

func (e *ProtocolError) Error() string {
	if e.Body == "" {
		return "stomp error: " + e.Message
	}
	return fmt.Sprintf("stomp error: %s: %s", e.Message, strings.TrimSpace(e.Body))
}

// handshake is what the client offers in CONNECT
type handshake struct {
	host     string
	login    string
	passcode string
	// heartbeat offer: send is how often we can send, recv how often we want to hear
	send time.Duration
	recv time.Duration
}

// stompConn is one established STOMP session over a WebSocket
type stompConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	sendEvery   time.Duration // 0 disables outgoing heartbeats
	readTimeout time.Duration // 0 disables the inbound watchdog
	version     string

	done      chan struct{}
	closeOnce sync.Once
}

// dialStomp opens the WebSocket and completes the CONNECT/CONNECTED exchange
func dialStomp(ctx context.Context, dialer *websocket.Dialer, url string, hs handshake) (*stompConn, error) {
	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &stompConn{ws: ws, done: make(chan struct{})}

	headers := []string{
		hdrAccept, "1.2",
		hdrHeartBeat, formatHeartBeat(hs.send, hs.recv),
	}
	if hs.host != "" {
		headers = append(headers, hdrHost, hs.host)
	}
	if hs.login != "" {
		headers = append(headers, hdrLogin, hs.login, hdrPasscode, hs.passcode)
	}
	if err := c.writeFrame(frame.New(cmdConnect, headers...)); err != nil {
		c.close()
		return nil, fmt.Errorf("send CONNECT: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		ws.SetReadDeadline(deadline)
	}
	reply, err := c.readFrame()
	if err != nil {
		c.close()
		return nil, fmt.Errorf("await CONNECTED: %w", err)
	}
	switch reply.Command {
	case cmdConnected:
	case cmdError:
		c.close()
		return nil, errorFrame(reply)
	default:
		c.close()
		return nil, &ProtocolError{Message: "unexpected " + reply.Command + " during handshake"}
	}
	ws.SetReadDeadline(time.Time{})

	serverSend, serverRecv := parseHeartBeat(reply.Header.Get(hdrHeartBeat))
	c.sendEvery = negotiate(hs.send, serverRecv)
	c.readTimeout = 2 * negotiate(serverSend, hs.recv)
	c.version = reply.Header.Get(hdrVersion)

	return c, nil
}

// subscribe registers for the topic with automatic acknowledgement
func (c *stompConn) subscribe(id, destination string) error {
	return c.writeFrame(frame.New(cmdSubscribe,
		hdrID, id,
		hdrDestination, destination,
		hdrAck, "auto",
	))
}

// next blocks for the next frame. A nil frame is a heartbeat.
func (c *stompConn) next() (*frame.Frame, error) {
	if c.readTimeout > 0 {
		c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	f, err := c.readFrame()
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w after %s", ErrHeartbeatTimeout, c.readTimeout)
		}
		return nil, err
	}
	return f, nil
}

func (c *stompConn) readFrame() (*frame.Frame, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	if len(bytes.Trim(data, "\r\n")) == 0 {
		return nil, nil
	}
	f, err := frame.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, &ProtocolError{Message: "malformed frame", Body: err.Error()}
	}
	return f, nil
}

func (c *stompConn) writeFrame(f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return fmt.Errorf("encode %s: %w", f.Command, err)
	}
	return c.write(buf.Bytes())
}

func (c *stompConn) heartbeat() error {
	return c.write([]byte("\n"))
}

func (c *stompConn) write(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, p)
}

// disconnect says goodbye politely, then closes. The socket is closed
// after goodbyeTimeout at the latest, even if a write is stuck on a
// stalled peer. It blocks until then, so callers run it in a goroutine.
func (c *stompConn) disconnect() {
	select {
	case <-c.done:
		return
	default:
	}
	backstop := time.AfterFunc(goodbyeTimeout, c.close)
	defer backstop.Stop()

	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(frame.New(cmdDisconnect)); err == nil {
		deadline := time.Now().Add(goodbyeTimeout)
		c.writeMu.Lock()
		c.ws.SetWriteDeadline(deadline)
		if c.ws.WriteMessage(websocket.TextMessage, buf.Bytes()) == nil {
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		}
		c.writeMu.Unlock()
	}
	c.close()
}

func (c *stompConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func errorFrame(f *frame.Frame) error {
	return &ProtocolError{Message: f.Header.Get(hdrMessage), Body: string(f.Body)}
}

func formatHeartBeat(send, recv time.Duration) string {
	return strconv.FormatInt(millis(send), 10) + "," + strconv.FormatInt(millis(recv), 10)
}

func millis(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return d.Milliseconds()
}

// parseHeartBeat reads "sx,sy". Anything unparseable counts as no heartbeat.
func parseHeartBeat(v string) (send, recv time.Duration) {
	parts := strings.Split(v, ",")
	if len(parts) != 2 {
		return 0, 0
	}
	sx, err1 := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	sy, err2 := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err1 != nil || err2 != nil || sx < 0 || sy < 0 {
		return 0, 0
	}
	return time.Duration(sx) * time.Millisecond, time.Duration(sy) * time.Millisecond
}

// negotiate applies the STOMP 1.2 rule: zero on either side disables,
// otherwise the larger of the two wins
func negotiate(ours, theirs time.Duration) time.Duration {
	if ours <= 0 || theirs <= 0 {
		return 0
	}
	if ours > theirs {
		return ours
	}
	return theirs
}
