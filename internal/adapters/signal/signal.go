// Package signal is the connection layer: it owns one websocket per client,
// frames and parses protocol messages, and forwards them to the coordinator.
// It applies no playback semantics of its own.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/syncplayserver/internal/app"
	"github.com/dkeye/syncplayserver/internal/config"
	"github.com/dkeye/syncplayserver/internal/core"
	"github.com/dkeye/syncplayserver/internal/protocol"
)

var ErrBackpressure = errors.New("backpressure")

// handshakeWait bounds how long a fresh connection may sit silent before
// presenting its join.
const handshakeWait = 10 * time.Second

type Controller struct {
	Coord *app.Coordinator
	cfg   *config.Config

	seekLimiter *Limiter
	chatLimiter *Limiter
}

func NewController(coord *app.Coordinator, cfg *config.Config) *Controller {
	return &Controller{
		Coord:       coord,
		cfg:         cfg,
		seekLimiter: NewLimiter(8, 2*time.Second),
		chatLimiter: NewLimiter(10, 5*time.Second),
	}
}

// WsConn carries one client's outbound queue. TrySend never blocks; a full
// queue means the peer cannot keep up and the send is refused.
type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the connection and runs the join handshake: the first
// frame must be a join, answered with either a joined ack or a coded error
// before the connection is closed. On success the session is bound and the
// read/write pumps take over.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.cfg.ReadLimit)

	conn := &WsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	sess, ok := ctl.handshake(ws, conn)
	if !ok {
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sess, conn)
}

func (ctl *Controller) handshake(ws *websocket.Conn, conn *WsConn) (*core.Session, bool) {
	_ = ws.SetReadDeadline(time.Now().Add(handshakeWait))
	_, data, err := ws.ReadMessage()
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("handshake read")
		return nil, false
	}
	_ = ws.SetReadDeadline(time.Time{})

	kind, err := protocol.DecodeType(data)
	if err != nil || kind != protocol.TypeJoin {
		ctl.writeDirect(ws, protocol.NewError(protocol.CodeProtocol, "first message must be join"))
		return nil, false
	}
	var join protocol.Join
	if err := json.Unmarshal(data, &join); err != nil {
		ctl.writeDirect(ws, protocol.NewError(protocol.CodeProtocol, "malformed join"))
		return nil, false
	}

	sess, ack, err := ctl.Coord.Connect(app.Handshake{
		Version:  join.Version,
		Room:     join.Room,
		Password: join.Password,
		Name:     join.Name,
	}, conn)
	if err != nil {
		var je *app.JoinError
		if errors.As(err, &je) {
			ctl.writeDirect(ws, protocol.NewError(je.Code, je.Message))
		} else {
			log.Error().Err(err).Str("module", "signal").Msg("join failed")
			ctl.writeDirect(ws, protocol.NewError(protocol.CodeProtocol, "join failed"))
		}
		return nil, false
	}

	ctl.sendJSON(conn, ack)
	return sess, true
}

// writeDirect is for handshake-phase replies, before the write pump exists.
func (ctl *Controller) writeDirect(ws *websocket.Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = ws.WriteMessage(websocket.TextMessage, b)
}

func (ctl *Controller) sendJSON(c *WsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
