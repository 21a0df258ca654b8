package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/syncplayserver/internal/core"
	"github.com/dkeye/syncplayserver/internal/protocol"
)

func (ctl *Controller) handleSeek(sess *core.Session, c *WsConn, data []byte) {
	if !ctl.seekLimiter.Allow(sess.ID) {
		ctl.sendJSON(c, protocol.NewError(protocol.CodeRateLimited, "too many seeks"))
		return
	}
	var p protocol.Seek
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad seek payload")
		ctl.sendJSON(c, protocol.NewError(protocol.CodeProtocol, "malformed seek"))
		return
	}
	ctl.Coord.Seek(sess, p.Position)
}

func (ctl *Controller) handleChat(sess *core.Session, c *WsConn, data []byte) {
	if !ctl.chatLimiter.Allow(sess.ID) {
		ctl.sendJSON(c, protocol.NewError(protocol.CodeRateLimited, "too many messages"))
		return
	}
	var p protocol.Chat
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad chat payload")
		ctl.sendJSON(c, protocol.NewError(protocol.CodeProtocol, "malformed chat"))
		return
	}
	if p.Message == "" {
		return
	}
	ctl.Coord.Chat(sess, p.Message)
}
