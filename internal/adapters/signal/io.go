package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/syncplayserver/internal/core"
	"github.com/dkeye/syncplayserver/internal/protocol"
)

func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump decodes the finite sequence of inbound frames; it ends when the
// connection closes and is never resumed. Closing always runs the leave
// transition exactly once for this session.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sess *core.Session, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sess.ID)).Msg("readPump closing")
		ctl.Coord.Disconnect(sess)
		ctl.seekLimiter.Forget(sess.ID)
		ctl.chatLimiter.Forget(sess.ID)
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sess.ID)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID)).Msg("readPump read error")
				}
				return
			}
			if !ctl.handleMessage(sess, c, data) {
				return
			}
		}
	}
}

// handleMessage routes one decoded frame. Returns false when the
// connection should end (explicit leave).
func (ctl *Controller) handleMessage(sess *core.Session, c *WsConn, data []byte) bool {
	kind, err := protocol.DecodeType(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID)).Msg("bad json")
		ctl.sendJSON(c, protocol.NewError(protocol.CodeProtocol, "malformed message"))
		return false
	}

	switch kind {
	case protocol.TypeReport:
		ctl.handleReport(sess, c, data)
	case protocol.TypeSeek:
		ctl.handleSeek(sess, c, data)
	case protocol.TypeReady:
		ctl.Coord.Ready(sess)
	case protocol.TypeChat:
		ctl.handleChat(sess, c, data)
	case protocol.TypePing:
		ctl.handlePing(c)
	case protocol.TypeLeave:
		ctl.Coord.Disconnect(sess)
		return false
	case protocol.TypeJoin:
		ctl.sendJSON(c, protocol.NewError(protocol.CodeProtocol, "already joined"))
	default:
		log.Warn().Str("module", "signal").Str("type", kind).Msg("unknown message type")
	}
	return true
}
