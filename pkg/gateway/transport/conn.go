package transport

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second
	// pongWait is how long to wait for a pong before dropping the peer.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = 54 * time.Second
)

// ErrClosed is returned on use after Close.
var ErrClosed = errors.New("stream connection closed")

// Upgrader accepts media-stream websocket connections. The telephony
// provider does not send a browser Origin header.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn is one media-stream websocket connection. Reads are single-owner
// (the call's read loop); writes are serialized by a mutex so the pacer,
// barge-in clears and the ping ticker can interleave safely.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
	closed  bool

	mu        sync.RWMutex
	streamSID string

	pingDone chan struct{}
	pingOnce sync.Once
}

// Upgrade converts an HTTP request into a media-stream connection and
// starts the keepalive ticker.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return NewConn(ws), nil
}

// NewConn wraps an established websocket.
func NewConn(ws *websocket.Conn) *Conn {
	c := &Conn{ws: ws, pingDone: make(chan struct{})}
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.pingLoop()
	return c
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.pingDone:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			if c.closed {
				c.writeMu.Unlock()
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// StreamSID returns the stream id learned from the start event.
func (c *Conn) StreamSID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.streamSID
}

// ReadEvent blocks for the next inbound event. Unknown event types are
// skipped. A transport failure surfaces as an error; the caller treats
// it as fatal.
func (c *Conn) ReadEvent() (Event, error) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("reading stream frame: %w", err)
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Event {
		case "connected":
			return ConnectedEvent{}, nil
		case "start":
			if msg.Start == nil {
				continue
			}
			c.mu.Lock()
			c.streamSID = msg.Start.StreamSID
			c.mu.Unlock()
			return StartEvent{
				StreamSID:    msg.Start.StreamSID,
				CallSID:      msg.Start.CallSID,
				AccountSID:   msg.Start.AccountSID,
				Tracks:       msg.Start.Tracks,
				MediaFormat:  msg.Start.MediaFormat,
				CustomParams: msg.Start.CustomParams,
			}, nil
		case "media":
			if msg.Media == nil || msg.Media.Payload == "" {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				continue
			}
			return MediaEvent{Track: msg.Media.Track, Timestamp: msg.Media.Timestamp, Payload: payload}, nil
		case "mark":
			if msg.Mark == nil {
				continue
			}
			return MarkEvent{Name: msg.Mark.Name}, nil
		case "stop":
			evt := StopEvent{}
			if msg.Stop != nil {
				evt.AccountSID = msg.Stop.AccountSID
				evt.CallSID = msg.Stop.CallSID
			}
			return evt, nil
		}
	}
}

func (c *Conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// SendMedia writes one outbound audio chunk wrapped in the media envelope.
func (c *Conn) SendMedia(payload []byte) error {
	msg := streamMessage{
		Event:     "media",
		StreamSID: c.StreamSID(),
		Media:     &mediaPayload{Payload: base64.StdEncoding.EncodeToString(payload)},
	}
	if err := c.writeJSON(msg); err != nil {
		return fmt.Errorf("sending media frame: %w", err)
	}
	return nil
}

// SendMark writes a named mark for playback synchronization.
func (c *Conn) SendMark(name string) error {
	msg := streamMessage{Event: "mark", StreamSID: c.StreamSID(), Mark: &markPayload{Name: name}}
	if err := c.writeJSON(msg); err != nil {
		return fmt.Errorf("sending mark: %w", err)
	}
	return nil
}

// SendClear tells the peer to drop buffered outbound audio (barge-in).
func (c *Conn) SendClear() error {
	msg := streamMessage{Event: "clear", StreamSID: c.StreamSID()}
	if err := c.writeJSON(msg); err != nil {
		return fmt.Errorf("sending clear: %w", err)
	}
	return nil
}

// SendStop signals end of stream before closing.
func (c *Conn) SendStop() error {
	msg := streamMessage{Event: "stop", StreamSID: c.StreamSID()}
	if err := c.writeJSON(msg); err != nil {
		return fmt.Errorf("sending stop: %w", err)
	}
	return nil
}

// Close shuts the websocket down. Safe to call more than once.
func (c *Conn) Close() error {
	c.pingOnce.Do(func() { close(c.pingDone) })

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.ws.Close()
}
