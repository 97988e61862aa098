package stream

import (
	"io"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/hub"
)

const (
	maxMessageSize = 64 * 1024
)

// ViewerConn adapts a raw WebSocket connection to the hub's Viewer
// interface. The protocol is server-push only: incoming client frames are
// read, logged, and otherwise ignored.
type ViewerConn struct {
	conn   net.Conn
	hub    *hub.Hub
	send   chan []byte
	logger *zap.Logger

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewViewerConn(conn net.Conn, h *hub.Hub, sendBuffer int, logger *zap.Logger) *ViewerConn {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &ViewerConn{
		conn:       conn,
		hub:        h,
		send:       make(chan []byte, sendBuffer),
		logger:     logger,
		writeWait:  5 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 50 * time.Second,
	}
}

// Start registers with the hub (which pushes the initial snapshot) and
// launches the pumps.
func (c *ViewerConn) Start() {
	go c.writePump()
	go c.readPump()
	c.hub.Register(c)
}

func (c *ViewerConn) ID() string { return c.conn.RemoteAddr().String() }
func (c *ViewerConn) Close()     { close(c.send) } // Only close channel, let writePump close conn

// SendBytes never blocks: a full buffer means the viewer is too slow, and
// the frame is dropped rather than stalling the broadcast loop.
func (c *ViewerConn) SendBytes(b []byte) {
	defer func() {
		// Hub may race a send against Unregister closing the channel
		_ = recover()
	}()
	select {
	case c.send <- b:
	default:
	}
}

func (c *ViewerConn) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			break
		}

		if header.Length > int64(maxMessageSize) {
			c.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			break
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			break
		}

		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		if header.OpCode == ws.OpClose {
			break
		}
		if header.OpCode == ws.OpPong {
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
			continue
		}

		if header.OpCode == ws.OpText {
			// Server-push protocol: nothing to act on
			c.logger.Debug("ignoring client message",
				zap.String("viewer", c.ID()),
				zap.ByteString("payload", payload))
		}
	}
}

func (c *ViewerConn) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				c.conn.Write(ws.CompiledClose)
				return
			}
			if err := wsutil.WriteServerText(c.conn, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}
